// Package server provides the HTTP control surface used in daemon mode.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	jsoniter "github.com/json-iterator/go"

	"github.com/bryan-buckman/feedmail/internal/database"
	"github.com/bryan-buckman/feedmail/internal/model"
	"github.com/bryan-buckman/feedmail/internal/opml"
	"github.com/bryan-buckman/feedmail/internal/pipeline"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// RunTimeout bounds a run started over HTTP.
const RunTimeout = 5 * time.Minute

// Server is the main HTTP server.
type Server struct {
	store    database.Store
	runner   *pipeline.Runner
	poller   *pipeline.Poller
	defaults model.FeedConfig
	router   chi.Router
}

// New creates a new server. poller may be nil.
func New(store database.Store, runner *pipeline.Runner, poller *pipeline.Poller, defaults model.FeedConfig) *Server {
	s := &Server{
		store:    store,
		runner:   runner,
		poller:   poller,
		defaults: defaults,
	}
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Compress(5))

	r.Get("/healthz", s.handleHealth)

	r.Route("/api", func(r chi.Router) {
		r.Get("/feeds", s.handleFeeds)
		r.Post("/run", s.handleRun)
		r.Post("/import-opml", s.handleImportOPML)
		r.Get("/export-opml", s.handleExportOPML)
	})

	s.router = r
}

// Handler returns the router.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start starts the poller and serves until ctx is cancelled.
func (s *Server) Start(ctx context.Context, addr string) error {
	if s.poller != nil {
		s.poller.Start()
		defer s.poller.Stop()
	}

	srv := &http.Server{Addr: addr, Handler: s.router, ReadHeaderTimeout: 10 * time.Second}
	errCh := make(chan error, 1)
	go func() {
		slog.Info("server starting", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "store": s.store.Backend()})
}

type feedView struct {
	Index       int              `json:"index"`
	URL         string           `json:"url"`
	Config      model.FeedConfig `json:"config"`
	Resolved    model.FeedConfig `json:"resolved"`
	LastUpdated time.Time        `json:"last_updated"`
	LastMessage string           `json:"last_message,omitempty"`
}

func (s *Server) handleFeeds(w http.ResponseWriter, r *http.Request) {
	feeds, err := s.store.GetFeeds()
	if err != nil {
		slog.Error("can't load feeds", "error", err)
		http.Error(w, "Failed to get feeds", http.StatusInternalServerError)
		return
	}
	views := make([]feedView, len(feeds))
	for i, f := range feeds {
		views[i] = feedView{
			Index:       i,
			URL:         f.URL,
			Config:      f.Config,
			Resolved:    f.Config.Resolve(s.defaults),
			LastUpdated: f.LastUpdated,
			LastMessage: f.LastMessage,
		}
	}
	writeJSON(w, http.StatusOK, views)
}

type feedResult struct {
	URL       string `json:"url"`
	Found     int    `json:"found"`
	Attempted int    `json:"attempted"`
	Delivered int    `json:"delivered"`
	Error     string `json:"error,omitempty"`
}

func (s *Server) handleRun(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), RunTimeout)
	defer cancel()

	results, err := s.runner.Run(ctx, s.store)
	if err != nil && results == nil {
		http.Error(w, fmt.Sprintf("Run error: %v", err), http.StatusInternalServerError)
		return
	}

	out := make([]feedResult, len(results))
	for i, res := range results {
		out[i] = feedResult{
			URL:       res.Feed.URL,
			Found:     res.Found,
			Attempted: res.Attempted,
			Delivered: res.Delivered,
		}
		if res.Err != nil {
			out[i].Error = res.Err.Error()
		}
	}
	resp := map[string]interface{}{
		"status":  "ok",
		"summary": pipeline.Summarize(results),
		"feeds":   out,
	}
	if err != nil {
		resp["status"] = "error"
		resp["error"] = err.Error()
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleImportOPML(w http.ResponseWriter, r *http.Request) {
	file, _, err := r.FormFile("opml")
	if err != nil {
		http.Error(w, "No file provided", http.StatusBadRequest)
		return
	}
	defer file.Close()

	entries, err := opml.Parse(file)
	if err != nil {
		http.Error(w, fmt.Sprintf("Failed to parse OPML: %v", err), http.StatusBadRequest)
		return
	}

	imported := 0
	for _, f := range opml.Feeds(entries) {
		if err := s.store.AddFeed(f); err != nil {
			if !errors.Is(err, database.ErrFeedExists) {
				slog.Error("can't import feed", "feed", f.URL, "error", err)
			}
			continue
		}
		imported++
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":   "ok",
		"imported": imported,
		"total":    len(entries),
	})
}

func (s *Server) handleExportOPML(w http.ResponseWriter, r *http.Request) {
	feeds, err := s.store.GetFeeds()
	if err != nil {
		http.Error(w, "Failed to get feeds", http.StatusInternalServerError)
		return
	}

	data, err := opml.Export("feedmail OPML Export", feeds, s.defaults)
	if err != nil {
		http.Error(w, "Failed to export", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/xml")
	w.Header().Set("Content-Disposition", "attachment; filename=feedmail-feeds.opml")
	w.Write(data)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("can't encode response", "error", err)
	}
}
