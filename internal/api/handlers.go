package api

import (
	"encoding/json"
	"errors"
	"github.com/PizzaHomicide/otakuin/internal/domain"
	"github.com/PizzaHomicide/otakuin/internal/log"
	"github.com/go-chi/chi/v5"
	"net/http"
	"strconv"
	"strings"
)

const (
	msgTokenNotFound   = "Stream ID not found or has expired. Please fetch a new one."
	msgUnsupportedHost = "This stream provider is not yet supported for proxying."
)

func (s *Server) handleAnimeDetail(w http.ResponseWriter, r *http.Request) {
	id, ok := animeID(w, r)
	if !ok {
		return
	}

	detail, err := s.svc.GetAnimeDetail(r.Context(), id)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, detail)
}

func (s *Server) handleEpisode(w http.ResponseWriter, r *http.Request) {
	id, ok := animeID(w, r)
	if !ok {
		return
	}
	n, err := strconv.ParseFloat(chi.URLParam(r, "episode"), 64)
	if err != nil || n <= 0 {
		writeError(w, http.StatusBadRequest, "Invalid episode number.")
		return
	}

	streams, err := s.svc.GetEpisodeStreams(r.Context(), id, n)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, streams)
}

func (s *Server) handleHome(w http.ResponseWriter, r *http.Request) {
	items, err := s.svc.Home(r.Context())
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, items)
}

func (s *Server) handleTop10(w http.ResponseWriter, r *http.Request) {
	items, err := s.svc.Top10(r.Context())
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, items)
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	query := strings.TrimSpace(r.URL.Query().Get("q"))
	if query == "" {
		writeError(w, http.StatusBadRequest, "Query parameter q is required.")
		return
	}

	page, err := s.svc.SearchAnime(r.Context(), query, pageParam(r))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, page)
}

func (s *Server) handleGenre(w http.ResponseWriter, r *http.Request) {
	genre := chi.URLParam(r, "genre")
	page, err := s.svc.AnimeByGenre(r.Context(), genre, pageParam(r))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, page)
}

func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	token := chi.URLParam(r, "token")
	err := s.proxy.Serve(w, r, token)
	switch {
	case err == nil:
	case errors.Is(err, domain.ErrTokenExpired):
		writeError(w, http.StatusNotFound, msgTokenNotFound)
	case errors.Is(err, domain.ErrUnsupportedHost):
		writeError(w, http.StatusNotImplemented, msgUnsupportedHost)
	default:
		log.Error("Stream proxy failed", "token", token, "error", err)
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}

func animeID(w http.ResponseWriter, r *http.Request) (int, bool) {
	id, err := strconv.Atoi(chi.URLParam(r, "id"))
	if err != nil || id <= 0 {
		writeError(w, http.StatusBadRequest, "Invalid AniList ID.")
		return 0, false
	}
	return id, true
}

// pageParam reads the optional page query parameter, defaulting to the first page
func pageParam(r *http.Request) int {
	page, err := strconv.Atoi(r.URL.Query().Get("page"))
	if err != nil || page < 1 {
		return 1
	}
	return page
}

// writeServiceError maps service errors onto statuses
func writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	var msgErr *domain.MessageError
	switch {
	case errors.As(err, &msgErr) && errors.Is(err, domain.ErrNotFound):
		writeError(w, http.StatusNotFound, msgErr.Message)
	case errors.Is(err, domain.ErrNotFound):
		writeError(w, http.StatusNotFound, "Anime not found.")
	default:
		log.Error("Request failed", "path", r.URL.Path, "error", err)
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		log.Debug("Unable to write response", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
