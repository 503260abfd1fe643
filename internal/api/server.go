// Package api exposes the anime service and the stream proxy over HTTP.
package api

import (
	"context"
	"errors"
	"github.com/PizzaHomicide/otakuin/internal/config"
	"github.com/PizzaHomicide/otakuin/internal/domain"
	"github.com/PizzaHomicide/otakuin/internal/log"
	"github.com/PizzaHomicide/otakuin/internal/metrics"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"net/http"
	"time"
)

// AnimeService is the part of the service layer the API serves
type AnimeService interface {
	GetAnimeDetail(ctx context.Context, id int) (*domain.AnimeDetail, error)
	GetEpisodeStreams(ctx context.Context, id int, n float64) (*domain.EpisodeStreams, error)
	SearchAnime(ctx context.Context, query string, page int) (*domain.AnimePage, error)
	AnimeByGenre(ctx context.Context, genre string, page int) (*domain.AnimePage, error)
	Home(ctx context.Context) ([]domain.FeedItem, error)
	Top10(ctx context.Context) ([]domain.FeedItem, error)
}

// StreamProxy relays the stream behind a token.  It returns an error only while nothing has been written.
type StreamProxy interface {
	Serve(w http.ResponseWriter, r *http.Request, token string) error
}

type Server struct {
	cfg   config.ServerConfig
	svc   AnimeService
	proxy StreamProxy
}

func NewServer(cfg config.ServerConfig, svc AnimeService, proxy StreamProxy) *Server {
	return &Server{cfg: cfg, svc: svc, proxy: proxy}
}

// Routes returns the router with every endpoint
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger)
	r.Use(middleware.Recoverer)
	r.Use(metrics.Middleware)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Handle("/metrics", metrics.Handler())

	// Players cannot send custom headers, so streams stay outside the API key check
	r.Get("/stream/{token}", s.handleStream)

	r.Route("/api", func(r chi.Router) {
		if s.cfg.APIKeyEnabled {
			r.Use(requireAPIKey(s.cfg.APIKey))
		}
		r.Get("/anime/{id}", s.handleAnimeDetail)
		r.Get("/anime/{id}/episode/{episode}", s.handleEpisode)
		r.Get("/home", s.handleHome)
		r.Get("/top10", s.handleTop10)
		r.Get("/search", s.handleSearch)
		r.Get("/genre/{genre}", s.handleGenre)
	})

	return r
}

// Run serves until ctx is cancelled, then shuts down gracefully
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.cfg.Addr,
		Handler:           s.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("HTTP server listening", "addr", s.cfg.Addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	log.Info("Shutting down HTTP server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
