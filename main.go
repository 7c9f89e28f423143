package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"civil-law-rag/api"
	"civil-law-rag/chat"
	"civil-law-rag/config"
	"civil-law-rag/database"
	"civil-law-rag/embeddings"
	"civil-law-rag/index"
	"civil-law-rag/ingestion"
	"civil-law-rag/knowledge"
	"civil-law-rag/llm"
	"civil-law-rag/retrieval"
)

func main() {
	logger := log.New(os.Stdout, "", log.LstdFlags)
	_ = godotenv.Load()

	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	cfg, err := config.Load(os.Getenv("CONFIG_FILE"))
	if err != nil {
		logger.Fatalf("load config: %v", err)
	}

	switch os.Args[1] {
	case "ingest":
		ingestCmd(cfg, logger, os.Args[2:])
	case "chat":
		chatCmd(cfg, logger, os.Args[2:])
	case "serve":
		serveCmd(cfg, logger, os.Args[2:])
	case "stats":
		statsCmd(cfg, logger, os.Args[2:])
	case "clear":
		clearCmd(cfg, logger, os.Args[2:])
	default:
		logger.Printf("unknown command: %s", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

func ingestCmd(cfg config.Config, logger *log.Logger, args []string) {
	flags := flag.NewFlagSet("ingest", flag.ExitOnError)
	dataDir := flags.String("dir", cfg.DataDir, "directory containing source documents")
	force := flags.Bool("force", false, "rebuild the index even if it already holds data")
	if err := flags.Parse(args); err != nil {
		logger.Fatalf("parse ingest flags: %v", err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	stats := ingestion.NewStats()
	embedder, err := connectEmbedder(ctx, cfg, logger, func() { stats.RetryCount++ })
	if err != nil {
		logger.Fatalf("embedder setup: %v", err)
	}

	pool, dim, err := openDatabase(ctx, cfg, embedder)
	if err != nil {
		logger.Fatalf("database setup: %v", err)
	}
	defer pool.Close()
	logger.Printf("vector schema ready, dimension %d", dim)

	mgr := index.NewManager(index.NewPostgresIndex(pool), cfg.Index.BatchSize, cfg.Index.CreateThreshold, logger).ForceRecreate(*force)
	svc := ingestion.NewService(cfg, embedder, mgr, logger).
		WithDocumentStore(database.NewDocumentStore(pool)).
		Force(*force)

	if cfg.GraphEnabled {
		driver, err := database.NewNeo4jDriver(ctx, cfg.Neo4jURI, cfg.Neo4jUser, cfg.Neo4jPass)
		if err != nil {
			logger.Fatalf("neo4j connection: %v", err)
		}
		defer driver.Close(ctx)
		svc = svc.WithGraph(knowledge.NewGraph(driver))
	}

	logger.Printf("ingesting documents from %s using %s/%s embeddings", *dataDir, strings.ToUpper(cfg.Embeddings.Provider), cfg.Embeddings.Model)

	runStats, err := svc.IngestDirectory(ctx, *dataDir)
	if runStats != nil {
		runStats.RetryCount += stats.RetryCount
		printStats(runStats)
	}
	if err != nil {
		logger.Fatalf("ingestion failed: %v", err)
	}
}

func chatCmd(cfg config.Config, logger *log.Logger, args []string) {
	flags := flag.NewFlagSet("chat", flag.ExitOnError)
	question := flags.String("q", "", "question to ask; empty starts an interactive session")
	method := flags.String("method", cfg.Retrieval.Method, "retrieval method: similarity, mmr or similarity_score_threshold")
	if err := flags.Parse(args); err != nil {
		logger.Fatalf("parse chat flags: %v", err)
	}
	cfg.Retrieval.Method = *method

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	svc, cleanup, err := buildChatService(ctx, cfg, logger)
	if err != nil {
		logger.Fatalf("chat setup: %v", err)
	}
	defer cleanup()

	if strings.TrimSpace(*question) != "" {
		askOnce(ctx, svc, *question, logger)
		return
	}

	fmt.Println("输入问题开始对话，输入 exit 退出。")
	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print("> ")
		if !scanner.Scan() {
			break
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if line == "exit" || line == "quit" {
			break
		}
		askOnce(ctx, svc, line, logger)
		if ctx.Err() != nil {
			break
		}
	}
	if err := scanner.Err(); err != nil {
		logger.Fatalf("read question: %v", err)
	}
}

func askOnce(ctx context.Context, svc *chat.Service, question string, logger *log.Logger) {
	resp, err := svc.AskStream(ctx, question, func(unit string) error {
		fmt.Print(unit)
		return nil
	})
	fmt.Println()
	if err != nil {
		logger.Printf("chat failed: %v", err)
		return
	}
	if len(resp.Sources) > 0 {
		fmt.Println("依据条文:")
		for i, src := range resp.Sources {
			header := src.Article
			if header == "" {
				header = src.ChunkID
			}
			if src.Scored {
				fmt.Printf("%d. %s (%.3f)\n", i+1, header, src.Score)
			} else {
				fmt.Printf("%d. %s\n", i+1, header)
			}
		}
	}
}

func serveCmd(cfg config.Config, logger *log.Logger, args []string) {
	flags := flag.NewFlagSet("serve", flag.ExitOnError)
	addr := flags.String("addr", cfg.HTTPAddr, "listen address")
	if err := flags.Parse(args); err != nil {
		logger.Fatalf("parse serve flags: %v", err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	embedder, err := connectEmbedder(ctx, cfg, logger, nil)
	if err != nil {
		logger.Fatalf("embedder setup: %v", err)
	}

	pool, dim, err := openDatabase(ctx, cfg, embedder)
	if err != nil {
		logger.Fatalf("database setup: %v", err)
	}
	defer pool.Close()
	logger.Printf("vector schema ready, dimension %d", dim)

	store := index.NewPostgresIndex(pool)
	mgr := index.NewManager(store, cfg.Index.BatchSize, cfg.Index.CreateThreshold, logger)
	ingestSvc := ingestion.NewService(cfg, embedder, mgr, logger).
		WithDocumentStore(database.NewDocumentStore(pool))

	if cfg.GraphEnabled {
		driver, err := database.NewNeo4jDriver(ctx, cfg.Neo4jURI, cfg.Neo4jUser, cfg.Neo4jPass)
		if err != nil {
			logger.Fatalf("neo4j connection: %v", err)
		}
		defer driver.Close(ctx)
		ingestSvc = ingestSvc.WithGraph(knowledge.NewGraph(driver))
	}

	strategy, err := retrieval.New(cfg.Retrieval, store)
	if err != nil {
		logger.Fatalf("retrieval setup: %v", err)
	}
	llmClient, err := llm.NewClient(cfg)
	if err != nil {
		logger.Fatalf("llm setup: %v", err)
	}
	chatSvc := chat.NewService(embedder, strategy, llmClient, cfg.Retrieval.TopK, cfg.StreamMinLen, logger)

	server := &http.Server{
		Addr:    *addr,
		Handler: api.New(cfg, ingestSvc, chatSvc, store, logger).Handler(),
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		_ = server.Shutdown(shutdownCtx)
	}()

	logger.Printf("listening on %s, retrieval method %s", *addr, strategy.Name())
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Fatalf("http server: %v", err)
	}
}

// statsCmd reports what the system currently holds: index size, configured
// models and retrieval method, and the article counts in the structure graph
// when it is enabled.
func statsCmd(cfg config.Config, logger *log.Logger, args []string) {
	flags := flag.NewFlagSet("stats", flag.ExitOnError)
	if err := flags.Parse(args); err != nil {
		logger.Fatalf("parse stats flags: %v", err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	pool, err := database.NewPostgresPool(ctx, cfg.PostgresDSN)
	if err != nil {
		logger.Fatalf("postgres connection: %v", err)
	}
	defer pool.Close()

	count, err := index.NewPostgresIndex(pool).Count(ctx)
	if err != nil {
		logger.Fatalf("count index: %v", err)
	}

	fmt.Printf("Indexed chunks: %d\n", count)
	fmt.Printf("Embedding model: %s/%s\n", cfg.Embeddings.Provider, cfg.Embeddings.Model)
	fmt.Printf("LLM model: %s/%s\n", cfg.LLM.Provider, cfg.LLM.Model)
	fmt.Printf("Retrieval: %s (top_k %d)\n", cfg.Retrieval.Method, cfg.Retrieval.TopK)

	if !cfg.GraphEnabled {
		return
	}

	titles, err := database.NewDocumentStore(pool).Titles(ctx)
	if err != nil {
		logger.Fatalf("list documents: %v", err)
	}
	driver, err := database.NewNeo4jDriver(ctx, cfg.Neo4jURI, cfg.Neo4jUser, cfg.Neo4jPass)
	if err != nil {
		logger.Fatalf("neo4j connection: %v", err)
	}
	defer driver.Close(ctx)
	graph := knowledge.NewGraph(driver)

	for _, title := range titles {
		articles, err := graph.ArticleCount(ctx, title)
		if err != nil {
			logger.Printf("graph count for %s: %v", title, err)
			continue
		}
		fmt.Printf("Graph articles in %s: %d\n", title, articles)
	}
}

func clearCmd(cfg config.Config, logger *log.Logger, args []string) {
	flags := flag.NewFlagSet("clear", flag.ExitOnError)
	confirmed := flags.Bool("confirm", false, "skip confirmation prompt")
	if err := flags.Parse(args); err != nil {
		logger.Fatalf("parse clear flags: %v", err)
	}

	if !*confirmed {
		fmt.Print("This will permanently delete the indexed corpus. Continue? [y/N]: ")
		scanner := bufio.NewScanner(os.Stdin)
		if !scanner.Scan() {
			if err := scanner.Err(); err != nil {
				logger.Fatalf("read confirmation: %v", err)
			}
			logger.Println("clear aborted")
			return
		}
		answer := strings.ToLower(strings.TrimSpace(scanner.Text()))
		if answer != "y" && answer != "yes" {
			logger.Println("clear aborted")
			return
		}
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	pool, err := database.NewPostgresPool(ctx, cfg.PostgresDSN)
	if err != nil {
		logger.Fatalf("postgres connection: %v", err)
	}
	defer pool.Close()

	if err := index.NewPostgresIndex(pool).Clear(ctx); err != nil {
		logger.Fatalf("clear index: %v", err)
	}
	logger.Println("cleared law_documents and law_chunks")

	if cfg.GraphEnabled {
		driver, err := database.NewNeo4jDriver(ctx, cfg.Neo4jURI, cfg.Neo4jUser, cfg.Neo4jPass)
		if err != nil {
			logger.Fatalf("neo4j connection: %v", err)
		}
		defer driver.Close(ctx)

		session := driver.NewSession(ctx, neo4j.SessionConfig{AccessMode: neo4j.AccessModeWrite})
		defer session.Close(ctx)
		if err := purgeGraph(ctx, session); err != nil {
			logger.Fatalf("clear neo4j: %v", err)
		}
		logger.Println("cleared structure graph")
	}
}

func purgeGraph(ctx context.Context, session neo4j.SessionWithContext) error {
	queries := []string{
		"MATCH (a:Article) DETACH DELETE a",
		"MATCH (c:Chapter) DETACH DELETE c",
		"MATCH (p:Part) DETACH DELETE p",
		"MATCH (d:Document) DETACH DELETE d",
	}
	for _, query := range queries {
		result, err := session.Run(ctx, query, nil)
		if err != nil {
			return err
		}
		if _, err := result.Consume(ctx); err != nil {
			return err
		}
	}
	return nil
}

// connectEmbedder builds the configured embedder and, for a local provider,
// waits until the service answers a probe.
func connectEmbedder(ctx context.Context, cfg config.Config, logger *log.Logger, onRetry func()) (embeddings.Embedder, error) {
	embedder, err := embeddings.NewEmbedder(cfg)
	if err != nil {
		return nil, err
	}

	if prober, ok := embedder.(embeddings.Prober); ok {
		err := embeddings.Connect(ctx, prober, cfg.Embeddings.Model, embeddings.RetryOptions{
			MaxRetries:   cfg.Retry.MaxRetries,
			BaseDelay:    cfg.Retry.BaseDelay,
			StartService: embeddings.StartOllama,
			OnRetry:      onRetry,
			Logger:       logger,
		})
		if err != nil {
			return nil, err
		}
	}
	return embedder, nil
}

// openDatabase connects to postgres and ensures the schema, resolving the
// embedding dimension by probing when not configured.
func openDatabase(ctx context.Context, cfg config.Config, embedder embeddings.Embedder) (pool *pgxpool.Pool, dim int, err error) {
	dim = cfg.Embeddings.Dimension
	if dim <= 0 {
		vecs, err := embedder.Embed(ctx, []string{"维度检测"})
		if err != nil {
			return nil, 0, fmt.Errorf("resolve embedding dimension: %w", err)
		}
		dim = len(vecs[0])
	}

	pool, err = database.NewPostgresPool(ctx, cfg.PostgresDSN)
	if err != nil {
		return nil, 0, err
	}
	if err := database.EnsureLawSchema(ctx, pool, dim); err != nil {
		pool.Close()
		return nil, 0, err
	}
	return pool, dim, nil
}

func buildChatService(ctx context.Context, cfg config.Config, logger *log.Logger) (*chat.Service, func(), error) {
	embedder, err := connectEmbedder(ctx, cfg, logger, nil)
	if err != nil {
		return nil, nil, err
	}

	pool, _, err := openDatabase(ctx, cfg, embedder)
	if err != nil {
		return nil, nil, err
	}

	store := index.NewPostgresIndex(pool)
	strategy, err := retrieval.New(cfg.Retrieval, store)
	if err != nil {
		pool.Close()
		return nil, nil, err
	}
	llmClient, err := llm.NewClient(cfg)
	if err != nil {
		pool.Close()
		return nil, nil, err
	}

	svc := chat.NewService(embedder, strategy, llmClient, cfg.Retrieval.TopK, cfg.StreamMinLen, logger)
	return svc, pool.Close, nil
}

func printStats(stats *ingestion.Stats) {
	fmt.Printf("Files: %d processed, %d skipped, %d failed of %d\n", stats.ProcessedFiles, stats.SkippedFiles, stats.FailedFiles, stats.TotalFiles)
	fmt.Printf("Chunks: %d, articles: %d\n", stats.TotalChunks, stats.ArticlesFound)
	if len(stats.SectionsFound) > 0 {
		fmt.Printf("Sections: %s\n", strings.Join(stats.SectionsFound, ", "))
	}
	if stats.RetryCount > 0 {
		fmt.Printf("Embedding retries: %d\n", stats.RetryCount)
	}
	fmt.Printf("Elapsed: %s\n", stats.Duration().Round(time.Millisecond))
}

func printUsage() {
	fmt.Println("Usage: civil-law-rag <command> [options]")
	fmt.Println("Commands:")
	fmt.Println("  ingest   Segment, embed and index documents (use -dir, -force)")
	fmt.Println("  chat     Ask a question or start an interactive session (-q, -method)")
	fmt.Println("  serve    Run the HTTP API (-addr)")
	fmt.Println("  stats    Show index size, configured models and graph counts")
	fmt.Println("  clear    Remove the indexed corpus (-confirm)")
}
