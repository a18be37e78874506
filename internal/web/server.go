// Package web serves the steno HTTP API.
package web

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/rs/cors"

	"github.com/hpungsan/steno/internal/config"
	"github.com/hpungsan/steno/internal/logging"
	"github.com/hpungsan/steno/internal/media"
	"github.com/hpungsan/steno/internal/render"
)

// Renderer is the render job surface used by the API.
type Renderer interface {
	Submit(ctx context.Context, input render.SubmitInput) (*render.SubmitOutput, error)
	Status(id string) (*render.StatusOutput, error)
	Cancel(id string) (*render.CancelOutput, error)
	List() []render.Snapshot
}

// VideoStore holds uploaded videos and finished renders.
type VideoStore interface {
	Save(r io.Reader, filename string) (*media.SaveResult, error)
	Resolve(videoID string) (string, error)
	Delete(videoID string) error
	OutputFile(name string) (string, error)
}

// Deps are the services behind the API.
type Deps struct {
	DB      *sql.DB
	Videos  VideoStore
	Renders Renderer
	Config  *config.Config
	Logger  *slog.Logger
	Version string
}

// NewServer creates and configures the HTTP server.
func NewServer(deps Deps) *http.Server {
	cfg := deps.Config
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	logger := logging.NewComponentLogger(deps.Logger, "web")

	h := &Handlers{
		db:      deps.DB,
		videos:  deps.Videos,
		renders: deps.Renders,
		cfg:     cfg,
		logger:  logger,
		version: deps.Version,
		started: time.Now(),
	}

	return &http.Server{
		Addr:              fmt.Sprintf("%s:%d", cfg.Bind, cfg.Port),
		Handler:           h.routes(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       5 * time.Minute, // uploads
		WriteTimeout:      5 * time.Minute, // render downloads
		IdleTimeout:       60 * time.Second,
	}
}

func (h *Handlers) routes() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", h.HandleHealth)

	mux.HandleFunc("POST /render", h.HandleSubmitRender)
	mux.HandleFunc("GET /render", h.HandleListRenders)
	mux.HandleFunc("GET /render/{jobId}", h.HandleRenderStatus)
	mux.HandleFunc("DELETE /render/{jobId}", h.HandleCancelRender)
	mux.HandleFunc("GET /renders/{file}", h.HandleRenderOutput)

	mux.HandleFunc("POST /videos", h.HandleUploadVideo)
	mux.HandleFunc("GET /videos/{videoId}", h.HandleGetVideo)
	mux.HandleFunc("DELETE /videos/{videoId}", h.HandleDeleteVideo)

	mux.HandleFunc("GET /documents", h.HandleListDocuments)
	mux.HandleFunc("PUT /documents/{videoId}", h.HandlePutDocument)
	mux.HandleFunc("GET /documents/{videoId}", h.HandleGetDocument)
	mux.HandleFunc("DELETE /documents/{videoId}", h.HandleDeleteDocument)
	mux.HandleFunc("PATCH /documents/{videoId}/captions/{captionId}", h.HandlePatchCaption)
	mux.HandleFunc("GET /documents/{videoId}/tracks", h.HandleTracks)
	mux.HandleFunc("GET /documents/{videoId}/preview", h.HandlePreview)
	mux.HandleFunc("POST /documents/{videoId}/stylize", h.HandleStylize)

	c := cors.New(cors.Options{
		AllowedOrigins: h.cfg.AllowedOrigins,
		AllowedMethods: []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Content-Type", "Authorization"},
	})
	return c.Handler(logRequests(h.logger, securityHeaders(mux)))
}

// securityHeaders adds security-related HTTP headers to all responses.
func securityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Security-Policy", "default-src 'none'; frame-ancestors 'none'")
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		next.ServeHTTP(w, r)
	})
}

// statusRecorder captures the response status for request logs.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (rw *statusRecorder) WriteHeader(code int) {
	rw.status = code
	rw.ResponseWriter.WriteHeader(code)
}

func logRequests(logger *slog.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)

		level := slog.LevelInfo
		if rec.status >= http.StatusInternalServerError {
			level = slog.LevelError
		}
		logger.Log(r.Context(), level, "http request",
			logging.String("method", r.Method),
			logging.String("path", r.URL.Path),
			logging.Int("status", rec.status),
			logging.Duration("elapsed", time.Since(start)),
		)
	})
}

// Run starts the HTTP server and shuts it down gracefully when ctx is done
// or on SIGINT/SIGTERM.
func Run(ctx context.Context, srv *http.Server, logger *slog.Logger) error {
	if logger == nil {
		logger = logging.NewNop()
	}
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	logger.Info("steno API listening", logging.String("addr", "http://"+srv.Addr))
	if strings.HasPrefix(srv.Addr, "0.0.0.0") || strings.Contains(srv.Addr, "::") {
		logger.Warn("server is binding to all interfaces and may be accessible from the network")
	}

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}
