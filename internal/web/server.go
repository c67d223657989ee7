// Package web serves the controller's local status surface: an HTML page for
// people on the LAN, JSON for scripts, the panel display line, and a health
// check for the supervisor.
package web

import (
	"context"
	"net/http"
	"time"

	"github.com/sweeney/sump-controller/internal/status"
)

// Server answers status requests from a Tracker.
type Server struct {
	httpServer *http.Server
	tracker    *status.Tracker
}

// New builds a Server listening on addr. Nothing is served until
// ListenAndServe or Serve is called.
func New(addr string, tracker *status.Tracker) *Server {
	s := &Server{tracker: tracker}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /{$}", s.page)
	mux.HandleFunc("GET /index.html", s.page)
	mux.HandleFunc("GET /index.json", s.json)
	mux.HandleFunc("GET /display", s.display)
	mux.HandleFunc("GET /healthz", s.healthz)

	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           noStore(mux),
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      10 * time.Second,
	}
	return s
}

// ListenAndServe blocks until Shutdown.
func (s *Server) ListenAndServe() error {
	return s.httpServer.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// noStore keeps browsers and proxies from showing a stale pump state.
func noStore(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Cache-Control", "no-store")
		next.ServeHTTP(w, r)
	})
}

func (s *Server) page(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	renderHTML(w, s.tracker.Snapshot())
}

func (s *Server) json(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Write(status.FormatJSON(s.tracker.Snapshot()))
}

// display serves the one-line summary shown on the panel display.
func (s *Server) display(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Write([]byte(s.tracker.Snapshot().DisplayLine() + "\n"))
}

// healthz is 200 "ok" while the controller can act on the water level,
// otherwise 503 with the reason.
func (s *Server) healthz(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	problem := s.tracker.Snapshot().Problem()
	if problem == "" {
		w.Write([]byte("ok\n"))
		return
	}
	w.WriteHeader(http.StatusServiceUnavailable)
	w.Write([]byte(problem + "\n"))
}
