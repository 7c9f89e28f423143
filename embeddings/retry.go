package embeddings

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os/exec"
	"strings"
	"syscall"
	"time"
)

var (
	// ErrServiceUnavailable means the embedding service never answered within
	// the retry budget.
	ErrServiceUnavailable = errors.New("embedding service unavailable")
	// ErrModelUnavailable means the service answered but the configured model
	// is absent or returned an empty vector.
	ErrModelUnavailable = errors.New("embedding model unavailable")
)

// RetryOptions tunes the connect loop. StartService, when set, is invoked at
// most once, and only when the first attempt fails with connection refused.
// OnRetry is called once per failed attempt so callers can keep counters.
type RetryOptions struct {
	MaxRetries   int
	BaseDelay    time.Duration
	StartService func() error
	OnRetry      func()
	Logger       *log.Logger
}

// Connect verifies the embedding service end to end: the probe must return a
// non-empty vector and, when the model list is reachable, the configured
// model must appear in it. Failed attempts back off exponentially from
// BaseDelay. Model absence is terminal; it is not retried.
func Connect(ctx context.Context, prober Prober, model string, opts RetryOptions) error {
	if opts.MaxRetries <= 0 {
		opts.MaxRetries = 3
	}
	if opts.BaseDelay <= 0 {
		opts.BaseDelay = 2 * time.Second
	}
	logger := opts.Logger
	if logger == nil {
		logger = log.Default()
	}

	var lastErr error

	for attempt := 1; attempt <= opts.MaxRetries; attempt++ {
		vec, err := prober.Probe(ctx)
		if err == nil {
			if len(vec) == 0 {
				return fmt.Errorf("%w: %s returned an empty vector", ErrModelUnavailable, model)
			}
			if err := checkModel(ctx, prober, model, logger); err != nil {
				return err
			}
			logger.Printf("embedding service ready, model %s, dimension %d", model, len(vec))
			return nil
		}

		lastErr = err
		if opts.OnRetry != nil {
			opts.OnRetry()
		}

		if attempt == 1 && isConnRefused(err) && opts.StartService != nil {
			logger.Printf("embedding service not reachable, attempting to start it")
			if startErr := opts.StartService(); startErr != nil {
				logger.Printf("failed to start embedding service: %v", startErr)
			}
		}

		if attempt == opts.MaxRetries {
			break
		}

		delay := opts.BaseDelay << (attempt - 1)
		logger.Printf("embedding probe failed (attempt %d/%d): %v, retrying in %s", attempt, opts.MaxRetries, err, delay)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
	}

	return fmt.Errorf("%w after %d attempts: %v", ErrServiceUnavailable, opts.MaxRetries, lastErr)
}

func checkModel(ctx context.Context, prober Prober, model string, logger *log.Logger) error {
	models, err := prober.Models(ctx)
	if err != nil {
		// The probe already succeeded; a broken tags endpoint should not
		// fail startup.
		logger.Printf("could not list models: %v", err)
		return nil
	}
	for _, name := range models {
		if name == model || strings.TrimSuffix(name, ":latest") == strings.TrimSuffix(model, ":latest") {
			return nil
		}
	}
	return fmt.Errorf("%w: model %s not found, pull it first", ErrModelUnavailable, model)
}

func isConnRefused(err error) bool {
	if errors.Is(err, syscall.ECONNREFUSED) {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "connection refused") || strings.Contains(msg, "connect: cannot assign")
}

// StartOllama launches the local ollama service, preferring systemd and
// falling back to a detached `ollama serve`.
func StartOllama() error {
	if err := exec.Command("systemctl", "start", "ollama").Run(); err == nil {
		return nil
	}
	cmd := exec.Command("ollama", "serve")
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("start ollama serve: %w", err)
	}
	go func() { _ = cmd.Wait() }()
	return nil
}
