package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"runtime/debug"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/example/go-trait-tts/internal/config"
	"github.com/example/go-trait-tts/internal/fault"
	"github.com/example/go-trait-tts/internal/lang"
	"github.com/example/go-trait-tts/internal/reference"
	"github.com/example/go-trait-tts/internal/synth"
	"github.com/example/go-trait-tts/internal/text"
	"github.com/example/go-trait-tts/internal/traits"
)

// ParseLogLevel converts a case-insensitive level string to slog.Level.
// An empty string returns slog.LevelInfo. Unknown strings return an error.
func ParseLogLevel(s string) (slog.Level, error) {
	switch strings.ToLower(s) {
	case "", "info":
		return slog.LevelInfo, nil
	case "debug":
		return slog.LevelDebug, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("unknown log level %q (want debug|info|warn|error)", s)
	}
}

// Synthesizer runs one synthesis call.
type Synthesizer interface {
	Synthesize(ctx context.Context, req synth.Request) (synth.Result, error)
}

// TraitSource lists and opens per-character trait bundles.
type TraitSource interface {
	Characters() ([]string, error)
	Open(character string) (*traits.Bundle, error)
}

// ---------------------------------------------------------------------------
// Functional options
// ---------------------------------------------------------------------------

type options struct {
	maxTextBytes   int
	workers        int
	requestTimeout time.Duration
	defaults       config.SynthConfig
	metrics        *Metrics
	logger         *slog.Logger
	rateLimit      float64
	rateBurst      int
}

func defaultOptions() options {
	return options{
		maxTextBytes:   4096,
		workers:        2,
		requestTimeout: 120 * time.Second,
		defaults:       config.DefaultConfig().Synth,
		logger:         slog.Default(),
	}
}

// Option configures the HTTP handler.
type Option func(*options)

// WithMaxTextBytes sets the maximum allowed text length in bytes for POST /tts.
func WithMaxTextBytes(n int) Option {
	return func(o *options) { o.maxTextBytes = n }
}

// WithWorkers sets the maximum number of concurrent synthesis calls. Zero
// disables the limit.
func WithWorkers(n int) Option {
	return func(o *options) { o.workers = n }
}

// WithRequestTimeout sets the per-request synthesis deadline.
func WithRequestTimeout(d time.Duration) Option {
	return func(o *options) { o.requestTimeout = d }
}

// WithDefaults sets the synthesis parameters used when a request omits them.
func WithDefaults(d config.SynthConfig) Option {
	return func(o *options) { o.defaults = d }
}

// WithMetrics enables GET /metrics and request accounting.
func WithMetrics(m *Metrics) Option {
	return func(o *options) { o.metrics = m }
}

// WithRateLimit admits at most perSecond synthesis requests per second with
// bursts of burst. Excess requests get 429. perSecond <= 0 disables it.
func WithRateLimit(perSecond float64, burst int) Option {
	return func(o *options) {
		o.rateLimit = perSecond
		o.rateBurst = burst
	}
}

// WithLogger sets the slog.Logger used for request logging.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) { o.logger = l }
}

// ---------------------------------------------------------------------------
// handler
// ---------------------------------------------------------------------------

type handler struct {
	synth  Synthesizer
	traits TraitSource
	opts   options
	sem    chan struct{}
	limit  *rate.Limiter
	log    *slog.Logger
}

// NewHandler returns an http.Handler that serves /health, /traits, POST /tts
// and, with WithMetrics, /metrics.
func NewHandler(s Synthesizer, src TraitSource, optFns ...Option) http.Handler {
	opts := defaultOptions()
	for _, fn := range optFns {
		fn(&opts)
	}

	h := &handler{
		synth:  s,
		traits: src,
		opts:   opts,
		log:    opts.logger,
	}
	if opts.rateLimit > 0 {
		h.limit = rate.NewLimiter(rate.Limit(opts.rateLimit), max(opts.rateBurst, 1))
	}
	if opts.workers > 0 {
		h.sem = make(chan struct{}, opts.workers)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/health", h.handleHealth)
	mux.HandleFunc("/traits", h.handleTraits)
	mux.HandleFunc("/tts", h.handleTTS)
	if opts.metrics != nil {
		mux.Handle("/metrics", opts.metrics.Handler())
	}
	return mux
}

func buildVersion() string {
	if info, ok := debug.ReadBuildInfo(); ok && info.Main.Version != "" {
		return info.Main.Version
	}
	return "dev"
}

func (h *handler) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":  "ok",
		"version": buildVersion(),
	})
}

// TraitInfo is one trait of a character with its number of slots.
type TraitInfo struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}

// CharacterInfo describes one bundle in the trait library.
type CharacterInfo struct {
	Character string      `json:"character"`
	Language  string      `json:"language"`
	Traits    []TraitInfo `json:"traits"`
}

func (h *handler) handleTraits(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	out := []CharacterInfo{}
	if h.traits != nil {
		chars, err := h.traits.Characters()
		if err != nil {
			h.log.ErrorContext(r.Context(), "list traits failed", slog.String("error", err.Error()))
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		for _, c := range chars {
			info, err := h.describe(c)
			if err != nil {
				h.log.WarnContext(r.Context(), "skipping unreadable trait bundle",
					slog.String("character", c),
					slog.String("error", err.Error()),
				)
				continue
			}
			out = append(out, info)
		}
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *handler) describe(character string) (CharacterInfo, error) {
	b, err := h.traits.Open(character)
	if err != nil {
		return CharacterInfo{}, err
	}
	defer b.Close()

	info := CharacterInfo{Character: character, Language: string(b.Language()), Traits: []TraitInfo{}}
	for _, t := range b.Traits() {
		info.Traits = append(info.Traits, TraitInfo{Name: t, Count: b.Count(t)})
	}
	return info, nil
}

type ttsRequest struct {
	Text     string `json:"text"`
	Language string `json:"language"`
	Strategy string `json:"strategy"`

	Character      string `json:"character"`
	Trait          string `json:"trait"`
	TraitIndex     int    `json:"trait_index"`
	PromptLanguage string `json:"prompt_language"`
	RefFree        bool   `json:"ref_free"`

	TopK        *int     `json:"top_k"`
	TopP        *float64 `json:"top_p"`
	Temperature *float64 `json:"temperature"`
	Speed       *float64 `json:"speed"`
	Freeze      bool     `json:"freeze"`
}

// requestError is reported to the client with its status code.
type requestError struct {
	status int
	msg    string
}

func (e *requestError) Error() string { return e.msg }

func (h *handler) handleTTS(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	status := h.serveTTS(w, r)
	if h.opts.metrics != nil {
		h.opts.metrics.observeRequest(status, time.Since(start))
	}
}

func (h *handler) serveTTS(w http.ResponseWriter, r *http.Request) int {
	if r.Method != http.MethodPost {
		return writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
	if h.limit != nil && !h.limit.Allow() {
		return writeError(w, http.StatusTooManyRequests, "rate limit exceeded")
	}
	if r.Body == nil {
		return writeError(w, http.StatusBadRequest, "request body is required")
	}

	var body ttsRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		return writeError(w, http.StatusBadRequest, "invalid JSON: "+err.Error())
	}
	if body.Text == "" {
		return writeError(w, http.StatusBadRequest, "text field is required")
	}
	if len(body.Text) > h.opts.maxTextBytes {
		return writeError(w, http.StatusRequestEntityTooLarge,
			fmt.Sprintf("text exceeds maximum size of %d bytes", h.opts.maxTextBytes))
	}

	req, err := h.buildRequest(body)
	if err != nil {
		var re *requestError
		if errors.As(err, &re) {
			return writeError(w, re.status, re.msg)
		}
		return writeError(w, http.StatusInternalServerError, err.Error())
	}

	// Acquire a worker slot, honoring cancellation while waiting.
	if h.sem != nil {
		select {
		case h.sem <- struct{}{}:
		case <-r.Context().Done():
			return writeError(w, http.StatusServiceUnavailable, "request cancelled while waiting for worker")
		}
		defer func() { <-h.sem }()
	}
	if m := h.opts.metrics; m != nil {
		m.inFlight.Inc()
		defer m.inFlight.Dec()
	}

	ctx, cancel := context.WithTimeout(r.Context(), h.opts.requestTimeout)
	defer cancel()

	start := time.Now()
	res, err := h.synth.Synthesize(ctx, req)
	durationMS := time.Since(start).Milliseconds()

	attrs := []any{
		slog.String("character", body.Character),
		slog.String("trait", body.Trait),
		slog.Int("text_len", len(body.Text)),
		slog.Int64("duration_ms", durationMS),
	}
	if err != nil {
		attrs = append(attrs, slog.String("error", err.Error()))
		switch {
		case errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled):
			h.log.WarnContext(r.Context(), "synthesis timed out", attrs...)
			return writeError(w, http.StatusGatewayTimeout, "synthesis timed out")
		case errors.Is(err, fault.ErrInput):
			h.log.InfoContext(r.Context(), "synthesis rejected", attrs...)
			return writeError(w, http.StatusBadRequest, err.Error())
		default:
			h.log.ErrorContext(r.Context(), "synthesis failed", attrs...)
			return writeError(w, http.StatusInternalServerError, err.Error())
		}
	}

	wav, err := res.WAV()
	if err != nil {
		return writeError(w, http.StatusInternalServerError, err.Error())
	}
	if h.opts.metrics != nil {
		h.opts.metrics.observeResult(res)
	}

	h.log.InfoContext(r.Context(), "synthesis complete", append(attrs,
		slog.String("call_id", res.CallID),
		slog.Int("segments", res.Segments),
		slog.Int("wav_bytes", len(wav)),
	)...)

	w.Header().Set("Content-Type", "audio/wav")
	w.Header().Set("X-Call-ID", res.CallID)
	w.Header().Set("X-Segments", strconv.Itoa(res.Segments))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(wav)
	return http.StatusOK
}

// buildRequest resolves the trait slot and fills omitted parameters from the
// configured defaults.
func (h *handler) buildRequest(body ttsRequest) (synth.Request, error) {
	d := h.opts.defaults
	req := synth.Request{
		Text:        body.Text,
		Language:    lang.ParseTag(firstNonEmpty(body.Language, d.Language)),
		Strategy:    text.ParseStrategy(firstNonEmpty(body.Strategy, d.Strategy)),
		TopK:        valueOr(body.TopK, d.TopK),
		TopP:        valueOr(body.TopP, d.TopP),
		Temperature: valueOr(body.Temperature, d.Temperature),
		Speed:       valueOr(body.Speed, d.Speed),
		Freeze:      body.Freeze,
	}

	if body.Character == "" || body.Trait == "" {
		return synth.Request{}, &requestError{http.StatusBadRequest, "character and trait fields are required"}
	}
	if h.traits == nil {
		return synth.Request{}, &requestError{http.StatusServiceUnavailable, "no trait library configured"}
	}

	if err := traits.CheckCharacter(body.Character); err != nil {
		return synth.Request{}, &requestError{http.StatusBadRequest, err.Error()}
	}
	b, err := h.traits.Open(body.Character)
	if err != nil {
		return synth.Request{}, &requestError{http.StatusNotFound, fmt.Sprintf("character %q: %v", body.Character, err)}
	}
	defer b.Close()

	n := b.Count(body.Trait)
	if n == 0 {
		return synth.Request{}, &requestError{http.StatusNotFound, fmt.Sprintf("character %q has no trait %q", body.Character, body.Trait)}
	}
	if body.TraitIndex < 0 || body.TraitIndex >= n {
		return synth.Request{}, &requestError{http.StatusBadRequest,
			fmt.Sprintf("trait_index %d out of range (%d candidates)", body.TraitIndex, n)}
	}
	slot, err := b.Lookup(body.Trait, body.TraitIndex)
	if err != nil {
		return synth.Request{}, err
	}

	refLang := b.Language()
	if !refLang.Valid() {
		refLang = lang.ParseTag(firstNonEmpty(body.PromptLanguage, string(lang.English)))
	}
	req.Reference = reference.Request{
		Language: refLang,
		RefFree:  body.RefFree,
		Slot:     &slot,
	}
	return req, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}

func valueOr[T any](p *T, def T) T {
	if p != nil {
		return *p
	}
	return def
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) int {
	writeJSON(w, status, map[string]string{"error": msg})
	return status
}

// ---------------------------------------------------------------------------
// Server wires the handler into net/http.Server with graceful shutdown.
// ---------------------------------------------------------------------------

type Server struct {
	cfg     config.ServerConfig
	handler http.Handler
}

// New builds a server from the server config section. Handler options
// derived from cfg come first so opts can override them.
func New(cfg config.ServerConfig, s Synthesizer, src TraitSource, opts ...Option) *Server {
	handlerOpts := append([]Option{
		WithWorkers(cfg.Workers),
		WithMaxTextBytes(cfg.MaxTextBytes),
		WithRequestTimeout(time.Duration(cfg.RequestTimeout) * time.Second),
		WithRateLimit(cfg.RateLimit, cfg.RateBurst),
	}, opts...)

	return &Server{cfg: cfg, handler: NewHandler(s, src, handlerOpts...)}
}

// Start serves until ctx is canceled, then drains for ShutdownTimeout seconds.
func (s *Server) Start(ctx context.Context) error {
	httpServer := &http.Server{
		Addr:              s.cfg.ListenAddr,
		Handler:           s.handler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- httpServer.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		drain := time.Duration(s.cfg.ShutdownTimeout) * time.Second
		if drain <= 0 {
			drain = 30 * time.Second
		}
		shutdownCtx, cancel := context.WithTimeout(context.Background(), drain)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("http shutdown: %w", err)
		}
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("http listen: %w", err)
	}
}

// ProbeHTTP checks GET /health on addr.
func ProbeHTTP(addr string) error {
	resp, err := http.Get("http://" + addr + "/health") //nolint:noctx
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected health status: %s", resp.Status)
	}
	return nil
}
