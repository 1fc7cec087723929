package server_test

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/example/go-trait-tts/internal/fault"
	"github.com/example/go-trait-tts/internal/server"
	"github.com/example/go-trait-tts/internal/synth"
)

const happyBody = `{"text":"%s","character":"twilight","trait":"happy"}`

func ttsBody(text string) string {
	return strings.Replace(happyBody, "%s", text, 1)
}

func TestTTS_OversizedTextRejectedAs413(t *testing.T) {
	h := server.NewHandler(&stubSynthesizer{res: okResult()}, writeLibrary(t), server.WithMaxTextBytes(10))

	rec := postTTS(t, h, ttsBody(strings.Repeat("x", 11)))
	if rec.Code != http.StatusRequestEntityTooLarge {
		t.Fatalf("want 413, got %d", rec.Code)
	}
	if decodeError(t, rec) == "" {
		t.Error("want non-empty error field")
	}
}

func TestTTS_TextAtExactLimitIsAccepted(t *testing.T) {
	h := server.NewHandler(&stubSynthesizer{res: okResult()}, writeLibrary(t), server.WithMaxTextBytes(5))

	rec := postTTS(t, h, ttsBody("hello"))
	if rec.Code != http.StatusOK {
		t.Fatalf("want 200 for exactly-limit text, got %d", rec.Code)
	}
}

func TestTTS_RequestTimeoutCancelsInFlight(t *testing.T) {
	s := &blockingSynthesizer{blocked: make(chan struct{})}
	h := server.NewHandler(s, writeLibrary(t), server.WithRequestTimeout(20*time.Millisecond))

	rec := postTTS(t, h, ttsBody("Hello."))
	if rec.Code != http.StatusGatewayTimeout {
		t.Fatalf("want 504 on timeout, got %d", rec.Code)
	}
	if decodeError(t, rec) == "" {
		t.Error("want non-empty error field")
	}
}

func TestTTS_ErrorKindsMapToStatus(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"input", fault.Input("validate", "speed must be > 0"), http.StatusBadRequest},
		{"capability", fault.Capability("generate", errors.New("graph failed")), http.StatusInternalServerError},
		{"consistency", fault.Consistency("concat", "mismatch"), http.StatusInternalServerError},
	}

	lib := writeLibrary(t)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := server.NewHandler(&stubSynthesizer{err: tt.err}, lib)
			rec := postTTS(t, h, ttsBody("Hello."))
			if rec.Code != tt.want {
				t.Fatalf("want %d, got %d", tt.want, rec.Code)
			}
			if got := decodeError(t, rec); !strings.Contains(got, tt.err.Error()) {
				t.Fatalf("error = %q", got)
			}
		})
	}
}

// ---------------------------------------------------------------------------
// worker pool / concurrency throttling
// ---------------------------------------------------------------------------

func TestTTS_ConcurrencyThrottling(t *testing.T) {
	const workers = 2
	const totalRequests = 5

	var (
		mu         sync.Mutex
		peak       int
		current    int32
		releaseAll = make(chan struct{})
	)
	s := &countingSynthesizer{
		onEnter: func() {
			n := int(atomic.AddInt32(&current, 1))
			mu.Lock()
			if n > peak {
				peak = n
			}
			mu.Unlock()
			<-releaseAll
		},
		onExit: func() { atomic.AddInt32(&current, -1) },
	}
	h := server.NewHandler(s, writeLibrary(t), server.WithWorkers(workers))

	var wg sync.WaitGroup
	codes := make([]int, totalRequests)
	for i := range totalRequests {
		wg.Add(1)
		go func(idx int) {
			defer wg.Done()
			codes[idx] = postTTS(t, h, ttsBody("Hi.")).Code
		}(i)
	}

	// Give goroutines time to enter the synthesizer.
	time.Sleep(50 * time.Millisecond)
	close(releaseAll)
	wg.Wait()

	mu.Lock()
	got := peak
	mu.Unlock()
	if got > workers {
		t.Errorf("peak concurrency %d exceeded worker limit %d", got, workers)
	}
	for i, code := range codes {
		if code != http.StatusOK {
			t.Errorf("request %d: want 200, got %d", i, code)
		}
	}
}

func TestTTS_WaiterCancelledWhileThrottled(t *testing.T) {
	release := make(chan struct{})
	lib := writeLibrary(t)
	h := server.NewHandler(&blockingSynthesizer{blocked: release}, lib, server.WithWorkers(1))

	done := make(chan struct{})
	go func() {
		defer close(done)
		postTTS(t, h, ttsBody("First."))
	}()
	time.Sleep(20 * time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	rec := postTTSWithContext(t, h, ctx, ttsBody("Second."))
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("want 503 when waiter context cancelled, got %d", rec.Code)
	}

	close(release)
	<-done
}

// ---------------------------------------------------------------------------
// helpers
// ---------------------------------------------------------------------------

// blockingSynthesizer blocks until blocked is closed or ctx ends.
type blockingSynthesizer struct {
	blocked chan struct{}
}

func (b *blockingSynthesizer) Synthesize(ctx context.Context, _ synth.Request) (synth.Result, error) {
	select {
	case <-b.blocked:
		return okResult(), nil
	case <-ctx.Done():
		return synth.Result{}, ctx.Err()
	}
}

// countingSynthesizer calls onEnter/onExit around the synthesize call.
type countingSynthesizer struct {
	onEnter func()
	onExit  func()
}

func (c *countingSynthesizer) Synthesize(context.Context, synth.Request) (synth.Result, error) {
	c.onEnter()
	defer c.onExit()
	return okResult(), nil
}

func TestTTS_RateLimitRejectsBurstOverflow(t *testing.T) {
	h := server.NewHandler(&stubSynthesizer{res: okResult()}, writeLibrary(t), server.WithRateLimit(0.001, 2))

	for i := range 2 {
		if rec := postTTS(t, h, ttsBody("Hi.")); rec.Code != http.StatusOK {
			t.Fatalf("request %d within burst: want 200, got %d", i, rec.Code)
		}
	}
	rec := postTTS(t, h, ttsBody("Hi."))
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("want 429 past the burst, got %d", rec.Code)
	}
	if decodeError(t, rec) == "" {
		t.Error("want non-empty error field")
	}
}
