package server_test

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"testing"

	"github.com/example/go-trait-tts/internal/server"
)

// capturingHandler captures all slog records during a test.
type capturingHandler struct {
	mu      sync.Mutex
	records []slog.Record
}

func (c *capturingHandler) Enabled(context.Context, slog.Level) bool { return true }
func (c *capturingHandler) Handle(_ context.Context, r slog.Record) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.records = append(c.records, r)
	return nil
}
func (c *capturingHandler) WithAttrs([]slog.Attr) slog.Handler { return c }
func (c *capturingHandler) WithGroup(string) slog.Handler      { return c }

func (c *capturingHandler) find(msg string) (map[string]any, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, r := range c.records {
		if r.Message != msg {
			continue
		}
		m := make(map[string]any)
		r.Attrs(func(a slog.Attr) bool {
			m[a.Key] = a.Value.Any()
			return true
		})
		return m, true
	}
	return nil, false
}

func TestTTS_LogsCallAttributes(t *testing.T) {
	capture := &capturingHandler{}
	h := server.NewHandler(&stubSynthesizer{res: okResult()}, writeLibrary(t), server.WithLogger(slog.New(capture)))

	rec := postTTS(t, h, ttsBody("Hello world."))
	if rec.Code != http.StatusOK {
		t.Fatalf("want 200, got %d", rec.Code)
	}

	attrs, ok := capture.find("synthesis complete")
	if !ok {
		t.Fatal("no synthesis complete record")
	}
	if attrs["character"] != "twilight" || attrs["trait"] != "happy" {
		t.Errorf("attrs = %v", attrs)
	}
	if attrs["call_id"] != "call-1" {
		t.Errorf("call_id = %v", attrs["call_id"])
	}
	for _, key := range []string{"text_len", "duration_ms", "segments", "wav_bytes"} {
		if _, ok := attrs[key]; !ok {
			t.Errorf("want %s attribute in log record", key)
		}
	}
}

func TestTTS_LogsErrorOnFailure(t *testing.T) {
	capture := &capturingHandler{}
	h := server.NewHandler(&stubSynthesizer{err: errors.New("vocoder exploded")}, writeLibrary(t),
		server.WithLogger(slog.New(capture)))

	rec := postTTS(t, h, ttsBody("Hello."))
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("want 500, got %d", rec.Code)
	}

	attrs, ok := capture.find("synthesis failed")
	if !ok {
		t.Fatal("no synthesis failed record")
	}
	if attrs["error"] != "vocoder exploded" {
		t.Errorf("error attr = %v", attrs["error"])
	}
}

func TestParseLogLevel(t *testing.T) {
	cases := []struct {
		level   string
		wantLvl slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"info", slog.LevelInfo},
		{"WARN", slog.LevelWarn},
		{"warning", slog.LevelWarn},
		{"error", slog.LevelError},
		{"", slog.LevelInfo},
	}

	for _, tc := range cases {
		t.Run(tc.level, func(t *testing.T) {
			lvl, err := server.ParseLogLevel(tc.level)
			if err != nil {
				t.Fatalf("ParseLogLevel(%q) error: %v", tc.level, err)
			}
			if lvl != tc.wantLvl {
				t.Errorf("ParseLogLevel(%q) = %v, want %v", tc.level, lvl, tc.wantLvl)
			}
		})
	}

	if _, err := server.ParseLogLevel("verbose"); err == nil {
		t.Error("want error for unknown log level")
	}
}
