// Package server exposes the render pipeline over HTTP.
//
// Routes:
//
//	GET /healthz   liveness probe, always "ok"
//	GET /render    ?width=&height=&threads=&format=&banding=&compression=&refresh=
//
// A successful render responds with the encoded image and these headers:
//
//	Content-Type      image/png, image/tiff or image/bmp
//	X-Render-ID       identifier of the pipeline run, also logged
//	X-Render-Seconds  parallel render time; 0 when served from cache
//	X-Cache           HIT or MISS
//
// Invalid parameters yield 400 with a plain-text message; engine or encoder
// failures yield 500.
package server

import (
	"context"
	stderrors "errors"
	"net/http"
	"runtime"
	"strconv"
	"time"

	"github.com/charmbracelet/log"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/matzehuels/mandelbrot/pkg/band"
	"github.com/matzehuels/mandelbrot/pkg/errors"
	"github.com/matzehuels/mandelbrot/pkg/pipeline"
	"github.com/matzehuels/mandelbrot/pkg/sink"
)

// shutdownTimeout bounds how long in-flight renders may finish after the
// serve context is cancelled.
const shutdownTimeout = 10 * time.Second

// Server serves renders from a shared pipeline runner.
type Server struct {
	runner *pipeline.Runner
	logger *log.Logger
	router chi.Router

	// MaxDimension caps width and height per request.
	MaxDimension int

	// DefaultThreads is used when a request omits threads.
	DefaultThreads int
}

// New creates a server backed by runner. A nil logger uses log.Default().
func New(runner *pipeline.Runner, logger *log.Logger) *Server {
	if logger == nil {
		logger = log.Default()
	}
	s := &Server{
		runner:         runner,
		logger:         logger,
		MaxDimension:   pipeline.MaxServeDimension,
		DefaultThreads: runtime.GOMAXPROCS(0),
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.requestLogger)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", s.handleHealth)
	r.Get("/render", s.handleRender)

	s.router = r
	return s
}

// Handler returns the HTTP handler for the server's routes.
func (s *Server) Handler() http.Handler {
	return s.router
}

// ListenAndServe serves on addr until ctx is cancelled, then shuts down
// gracefully. A clean shutdown returns nil.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("listening", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; err != nil && !stderrors.Is(err, http.ErrServerClosed) {
		return err
	}
	s.logger.Info("server stopped")
	return nil
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = w.Write([]byte("ok"))
}

func (s *Server) handleRender(w http.ResponseWriter, r *http.Request) {
	opts, err := s.parseRenderQuery(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	result, err := s.runner.Execute(r.Context(), opts)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	cacheStatus := "MISS"
	if result.CacheHit {
		cacheStatus = "HIT"
	}
	h := w.Header()
	h.Set("Content-Type", result.Format.ContentType())
	h.Set("Content-Length", strconv.Itoa(len(result.Data)))
	h.Set("X-Render-ID", result.ID)
	h.Set("X-Render-Seconds", strconv.FormatFloat(result.Stats.RenderTime.Seconds(), 'f', -1, 64))
	h.Set("X-Cache", cacheStatus)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(result.Data)
}

// parseRenderQuery converts query parameters into pipeline options.
func (s *Server) parseRenderQuery(r *http.Request) (pipeline.Options, error) {
	q := r.URL.Query()

	width, err := intParam(q.Get("width"), "width", 0)
	if err != nil {
		return pipeline.Options{}, err
	}
	height, err := intParam(q.Get("height"), "height", 0)
	if err != nil {
		return pipeline.Options{}, err
	}
	threads, err := intParam(q.Get("threads"), "threads", s.DefaultThreads)
	if err != nil {
		return pipeline.Options{}, err
	}

	if width > s.MaxDimension || height > s.MaxDimension {
		return pipeline.Options{}, errors.New(errors.ErrCodeInvalidConfiguration,
			"image size %dx%d exceeds the limit of %d per side", width, height, s.MaxDimension)
	}

	format, err := sink.ParseFormat(q.Get("format"))
	if err != nil {
		return pipeline.Options{}, err
	}
	strategy, err := band.ParseStrategy(q.Get("banding"))
	if err != nil {
		return pipeline.Options{}, err
	}
	compression, err := sink.ParseCompression(q.Get("compression"))
	if err != nil {
		return pipeline.Options{}, err
	}
	refresh, _ := strconv.ParseBool(q.Get("refresh"))

	opts := pipeline.Options{
		Width:       width,
		Height:      height,
		Threads:     threads,
		Banding:     strategy,
		Format:      format,
		Compression: compression,
		Refresh:     refresh,
		Logger:      s.logger.With("request_id", middleware.GetReqID(r.Context())),
	}
	if err := opts.ValidateAndSetDefaults(); err != nil {
		return pipeline.Options{}, err
	}
	return opts, nil
}

// intParam parses an integer query parameter. An empty value yields def.
func intParam(v, name string, def int) (int, error) {
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, errors.New(errors.ErrCodeInvalidConfiguration, "%s must be an integer, got %q", name, v)
	}
	return n, nil
}

// writeError maps error codes to HTTP status codes.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		s.logger.Error("render request failed",
			"request_id", middleware.GetReqID(r.Context()),
			"code", errors.GetCode(err),
			"error", err)
	}
	http.Error(w, errors.UserMessage(err), status)
}

func statusFor(err error) int {
	switch errors.GetCode(err) {
	case errors.ErrCodeInvalidConfiguration, errors.ErrCodeInvalidFormat, errors.ErrCodeInvalidPath:
		return http.StatusBadRequest
	}
	if stderrors.Is(err, context.Canceled) {
		return 499
	}
	return http.StatusInternalServerError
}

// requestLogger logs one line per request with the chi request ID.
func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		defer func() {
			s.logger.Info("request",
				"method", r.Method,
				"path", r.URL.Path,
				"status", ww.Status(),
				"bytes", ww.BytesWritten(),
				"duration", time.Since(start),
				"request_id", middleware.GetReqID(r.Context()))
		}()
		next.ServeHTTP(ww, r)
	})
}
