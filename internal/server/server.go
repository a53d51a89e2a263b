package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"runtime/debug"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/example/go-tacotron2/internal/config"
	"github.com/example/go-tacotron2/internal/runtime/tensor"
	"github.com/example/go-tacotron2/internal/safetensors"
)

// ParseLogLevel converts a case-insensitive level string to slog.Level.
// An empty string returns slog.LevelInfo. Unknown strings return an error.
func ParseLogLevel(s string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
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

// Synthesis is the mel output of one request.
type Synthesis struct {
	Mel        *tensor.Tensor   // [1, num_mels, T]
	MelPostnet *tensor.Tensor   // [1, num_mels, T]
	Alignments []*tensor.Tensor // one [1, steps, T_enc] per text chunk
}

// Synthesizer turns text into mel-spectrograms.
type Synthesizer interface {
	Synthesize(ctx context.Context, text string, chunk bool) (Synthesis, error)
}

type options struct {
	maxTextBytes   int
	workers        int
	requestTimeout time.Duration
	logger         *slog.Logger
}

func defaultOptions() options {
	return options{
		maxTextBytes:   2048,
		workers:        1,
		requestTimeout: 120 * time.Second,
		logger:         slog.Default(),
	}
}

// Option configures the HTTP handler.
type Option func(*options)

// WithMaxTextBytes sets the maximum allowed text length in bytes for POST /infer.
func WithMaxTextBytes(n int) Option {
	return func(o *options) { o.maxTextBytes = n }
}

// WithWorkers sets the maximum number of concurrent synthesis calls.
func WithWorkers(n int) Option {
	return func(o *options) { o.workers = n }
}

// WithRequestTimeout sets the per-request synthesis deadline.
func WithRequestTimeout(d time.Duration) Option {
	return func(o *options) { o.requestTimeout = d }
}

// WithLogger sets the slog.Logger used for request logging.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}

type handler struct {
	synth Synthesizer
	opts  options
	sem   chan struct{}
	log   *slog.Logger
}

// NewHandler returns an http.Handler that serves /health and POST /infer.
func NewHandler(synth Synthesizer, optFns ...Option) http.Handler {
	opts := defaultOptions()
	for _, fn := range optFns {
		fn(&opts)
	}

	h := &handler{synth: synth, opts: opts, log: opts.logger}
	if opts.workers > 0 {
		h.sem = make(chan struct{}, opts.workers)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/health", h.handleHealth)
	mux.HandleFunc("/infer", h.handleInfer)

	return withRequestID(mux)
}

const requestIDHeader = "X-Request-ID"

type requestIDKey struct{}

// withRequestID tags every request with an ID, reusing the caller's
// X-Request-ID when present.
func withRequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := strings.TrimSpace(r.Header.Get(requestIDHeader))
		if id == "" {
			id = uuid.NewString()
		}

		w.Header().Set(requestIDHeader, id)
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), requestIDKey{}, id)))
	})
}

// RequestID returns the ID attached by the handler, or "".
func RequestID(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
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

type inferRequest struct {
	Text   string `json:"text"`
	Chunk  bool   `json:"chunk"`
	Format string `json:"format"`
}

type inferResponse struct {
	RequestID       string      `json:"request_id"`
	MelShape        []int64     `json:"mel_shape"`
	Frames          int64       `json:"frames"`
	AlignmentShapes [][]int64   `json:"alignment_shapes"`
	MelPostnet      [][]float32 `json:"mel_postnet"`
}

const (
	formatJSON        = "json"
	formatSafetensors = "safetensors"
)

func (h *handler) handleInfer(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	id := RequestID(r.Context())
	log := h.log.With(slog.String("request_id", id))

	var req inferRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, int64(h.opts.maxTextBytes)+4096)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON: "+err.Error())
		return
	}

	if len(req.Text) > h.opts.maxTextBytes {
		writeError(w, http.StatusRequestEntityTooLarge,
			fmt.Sprintf("text exceeds maximum size of %d bytes", h.opts.maxTextBytes))
		return
	}

	format := strings.ToLower(strings.TrimSpace(req.Format))
	if format == "" {
		format = formatJSON
	}

	if format != formatJSON && format != formatSafetensors {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("unknown format %q (want json|safetensors)", req.Format))
		return
	}

	if h.sem != nil {
		select {
		case h.sem <- struct{}{}:
		case <-r.Context().Done():
			writeError(w, http.StatusServiceUnavailable, "request cancelled while waiting for worker")
			return
		}
		defer func() { <-h.sem }()
	}

	ctx, cancel := context.WithTimeout(r.Context(), h.opts.requestTimeout)
	defer cancel()

	start := time.Now()
	res, err := h.synth.Synthesize(ctx, req.Text, req.Chunk)
	durationMS := time.Since(start).Milliseconds()

	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
			log.WarnContext(ctx, "synthesis timed out",
				slog.Int("text_len", len(req.Text)),
				slog.Int64("duration_ms", durationMS),
				slog.String("error", err.Error()),
			)
			writeError(w, http.StatusGatewayTimeout, "synthesis timed out")

			return
		}

		log.ErrorContext(ctx, "synthesis failed",
			slog.Int("text_len", len(req.Text)),
			slog.Int64("duration_ms", durationMS),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, err.Error())

		return
	}

	frames := res.MelPostnet.Dim(-1)

	log.InfoContext(ctx, "synthesis complete",
		slog.Int("text_len", len(req.Text)),
		slog.Int64("duration_ms", durationMS),
		slog.Int64("frames", frames),
		slog.Int("chunks", len(res.Alignments)),
	)

	if format == formatSafetensors {
		body, err := encodeSynthesis(res)
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}

		w.Header().Set("Content-Type", "application/octet-stream")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(body)

		return
	}

	resp := inferResponse{
		RequestID:  id,
		MelShape:   res.MelPostnet.Shape(),
		Frames:     frames,
		MelPostnet: rows(res.MelPostnet),
	}
	for _, a := range res.Alignments {
		resp.AlignmentShapes = append(resp.AlignmentShapes, a.Shape())
	}

	writeJSON(w, http.StatusOK, resp)
}

// rows splits [1, C, T] into C rows of T values.
func rows(x *tensor.Tensor) [][]float32 {
	c, t := x.Dim(-2), x.Dim(-1)
	data := x.RawData()
	out := make([][]float32, c)

	for i := range out {
		out[i] = data[int64(i)*t : int64(i+1)*t]
	}

	return out
}

func encodeSynthesis(res Synthesis) ([]byte, error) {
	tensors := []safetensors.Tensor{
		{Name: "mel", Shape: res.Mel.Shape(), Data: res.Mel.RawData()},
		{Name: "mel_postnet", Shape: res.MelPostnet.Shape(), Data: res.MelPostnet.RawData()},
	}

	for i, a := range res.Alignments {
		tensors = append(tensors, safetensors.Tensor{
			Name: fmt.Sprintf("alignments.%d", i), Shape: a.Shape(), Data: a.RawData(),
		})
	}

	return safetensors.Encode(tensors, nil)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// Server wires the HTTP handler into a net/http.Server with graceful shutdown.
type Server struct {
	cfg   config.ServerConfig
	synth Synthesizer
	log   *slog.Logger
}

func New(cfg config.ServerConfig, synth Synthesizer, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}

	return &Server{cfg: cfg, synth: synth, log: logger}
}

// Handler builds the request handler from the server config.
func (s *Server) Handler() http.Handler {
	return NewHandler(s.synth,
		WithWorkers(s.cfg.Workers),
		WithMaxTextBytes(s.cfg.MaxTextBytes),
		WithRequestTimeout(s.cfg.RequestTimeoutDuration()),
		WithLogger(s.log),
	)
}

// Start serves until ctx is cancelled, then drains in-flight requests.
func (s *Server) Start(ctx context.Context) error {
	httpServer := &http.Server{
		Addr:              s.cfg.ListenAddr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- httpServer.ListenAndServe()
	}()

	s.log.Info("listening", slog.String("addr", s.cfg.ListenAddr))

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeoutDuration())
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
