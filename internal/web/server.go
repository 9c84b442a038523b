package web

import (
	"context"
	"io/fs"
	"log"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/cjeanneret/LensGo/internal/logic/motion"
)

// Server wraps the HTTP server and handlers.
type Server struct {
	addr     string
	handlers *Handlers
}

// NewServer creates a server configured for the given address and dependencies.
func NewServer(addr string, ctrl *motion.Controller, broadcaster *StatusBroadcaster) *Server {
	subFS, err := fs.Sub(staticFiles, "static")
	if err != nil {
		log.Fatalf("web: failed to sub static fs: %v", err)
	}

	return &Server{
		addr:     addr,
		handlers: NewHandlers(ctrl, broadcaster, subFS),
	}
}

// Router returns an http.Handler with all routes registered.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	r.Get("/", s.handlers.ServeIndex)
	r.Get("/axes", s.handlers.HandleAxes)
	r.Get("/status/stream", s.handlers.HandleStatusStream)
	r.Get("/status/{mtype}", s.handlers.HandleStatus)
	r.Get("/calibration/{mtype}", s.handlers.HandleCalibration)
	r.Get("/move/{mtype}/{steps}/{clockwise}", s.handlers.HandleMove)
	r.Get("/memory/{query}", s.handlers.HandleMemory)
	r.Handle("/static/*", http.StripPrefix("/static/", http.FileServer(http.FS(s.handlers.staticFS))))

	return r
}

// Run starts the server and blocks until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.addr,
		Handler:           s.Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		log.Printf("web server listening on %s", s.addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}
