package embeddings

import (
	"context"
	"errors"
	"syscall"
	"testing"
	"time"
)

type fakeProber struct {
	probeResults []probeResult
	models       []string
	modelsErr    error
	calls        int
}

type probeResult struct {
	vec []float32
	err error
}

func (f *fakeProber) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	return nil, errors.New("not used")
}

func (f *fakeProber) Probe(ctx context.Context) ([]float32, error) {
	result := f.probeResults[f.calls]
	if f.calls < len(f.probeResults)-1 {
		f.calls++
	}
	return result.vec, result.err
}

func (f *fakeProber) Models(ctx context.Context) ([]string, error) {
	return f.models, f.modelsErr
}

func TestConnectSucceedsFirstTry(t *testing.T) {
	prober := &fakeProber{
		probeResults: []probeResult{{vec: []float32{0.1, 0.2}}},
		models:       []string{"nomic-embed-text:latest"},
	}

	err := Connect(context.Background(), prober, "nomic-embed-text:latest", RetryOptions{
		MaxRetries: 3,
		BaseDelay:  time.Millisecond,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestConnectExhaustsRetries(t *testing.T) {
	prober := &fakeProber{
		probeResults: []probeResult{{err: syscall.ECONNREFUSED}},
	}
	retries := 0

	err := Connect(context.Background(), prober, "model", RetryOptions{
		MaxRetries: 3,
		BaseDelay:  time.Millisecond,
		OnRetry:    func() { retries++ },
	})
	if !errors.Is(err, ErrServiceUnavailable) {
		t.Fatalf("expected ErrServiceUnavailable, got %v", err)
	}
	if retries != 3 {
		t.Fatalf("expected 3 retry callbacks, got %d", retries)
	}
}

func TestConnectStartsServiceOnce(t *testing.T) {
	prober := &fakeProber{
		probeResults: []probeResult{
			{err: syscall.ECONNREFUSED},
			{err: syscall.ECONNREFUSED},
			{vec: []float32{0.5}},
		},
		models: []string{"model"},
	}
	starts := 0

	err := Connect(context.Background(), prober, "model", RetryOptions{
		MaxRetries:   3,
		BaseDelay:    time.Millisecond,
		StartService: func() error { starts++; return nil },
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if starts != 1 {
		t.Fatalf("expected one service start, got %d", starts)
	}
}

func TestConnectDoesNotStartServiceOnLaterRefusal(t *testing.T) {
	prober := &fakeProber{
		probeResults: []probeResult{
			{err: errors.New("request timed out")},
			{err: syscall.ECONNREFUSED},
			{vec: []float32{0.5}},
		},
		models: []string{"model"},
	}
	starts := 0

	err := Connect(context.Background(), prober, "model", RetryOptions{
		MaxRetries:   3,
		BaseDelay:    time.Millisecond,
		StartService: func() error { starts++; return nil },
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	// A refusal on a later attempt means the service was up moments ago;
	// only a first-attempt refusal triggers a start.
	if starts != 0 {
		t.Fatalf("expected no service start, got %d", starts)
	}
}

func TestConnectEmptyVectorMeansModelUnavailable(t *testing.T) {
	prober := &fakeProber{
		probeResults: []probeResult{{vec: []float32{}}},
	}

	err := Connect(context.Background(), prober, "model", RetryOptions{
		MaxRetries: 3,
		BaseDelay:  time.Millisecond,
	})
	if !errors.Is(err, ErrModelUnavailable) {
		t.Fatalf("expected ErrModelUnavailable, got %v", err)
	}
}

func TestConnectMissingModelIsTerminal(t *testing.T) {
	prober := &fakeProber{
		probeResults: []probeResult{{vec: []float32{0.1}}},
		models:       []string{"other-model"},
	}

	err := Connect(context.Background(), prober, "wanted-model", RetryOptions{
		MaxRetries: 3,
		BaseDelay:  time.Millisecond,
	})
	if !errors.Is(err, ErrModelUnavailable) {
		t.Fatalf("expected ErrModelUnavailable, got %v", err)
	}
}

func TestConnectBackoffDoubles(t *testing.T) {
	prober := &fakeProber{
		probeResults: []probeResult{{err: errors.New("connection refused to host")}},
	}

	start := time.Now()
	err := Connect(context.Background(), prober, "model", RetryOptions{
		MaxRetries: 3,
		BaseDelay:  20 * time.Millisecond,
	})
	elapsed := time.Since(start)

	if !errors.Is(err, ErrServiceUnavailable) {
		t.Fatalf("expected ErrServiceUnavailable, got %v", err)
	}
	// Two waits: 20ms then 40ms.
	if elapsed < 60*time.Millisecond {
		t.Fatalf("backoff too short: %s", elapsed)
	}
}

func TestConnectHonorsContextCancellation(t *testing.T) {
	prober := &fakeProber{
		probeResults: []probeResult{{err: errors.New("connection refused")}},
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	err := Connect(ctx, prober, "model", RetryOptions{
		MaxRetries: 5,
		BaseDelay:  time.Second,
	})
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected context deadline error, got %v", err)
	}
}
