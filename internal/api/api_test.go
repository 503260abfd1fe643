package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"github.com/PizzaHomicide/otakuin/internal/cache"
	"github.com/PizzaHomicide/otakuin/internal/config"
	"github.com/PizzaHomicide/otakuin/internal/domain"
	"github.com/PizzaHomicide/otakuin/internal/stream"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"
)

type fakeService struct {
	mu        sync.Mutex
	lastPage  int
	lastQuery string
	lastN     float64
}

// last returns the arguments of the most recent listing and episode calls
func (f *fakeService) last() (query string, page int, n float64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.lastQuery, f.lastPage, f.lastN
}

func (f *fakeService) GetAnimeDetail(_ context.Context, id int) (*domain.AnimeDetail, error) {
	switch id {
	case 130003:
		return &domain.AnimeDetail{
			Anime:       &domain.Anime{ID: id, Title: domain.AnimeTitle{Romaji: "Bocchi the Rock!"}},
			EpisodeList: []domain.Episode{{Number: 12, Title: "Episode 12"}},
		}, nil
	case 500:
		return nil, errors.New("anilist exploded")
	case 666:
		panic("boom")
	default:
		return nil, fmt.Errorf("anime %d: %w", id, domain.ErrNotFound)
	}
}

func (f *fakeService) GetEpisodeStreams(_ context.Context, id int, n float64) (*domain.EpisodeStreams, error) {
	f.mu.Lock()
	f.lastN = n
	f.mu.Unlock()
	if id != 130003 {
		return nil, &domain.MessageError{
			Message: fmt.Sprintf("Could not find a matching slug for ID %d from any source.", id),
			Err:     domain.ErrNotFound,
		}
	}
	return &domain.EpisodeStreams{
		AnimeID: id,
		Episode: n,
		Sources: map[domain.SourceName]domain.SourceInfo{domain.SourceNimegami: {}},
		Streams: map[domain.SourceName][]domain.StreamRef{
			domain.SourceSamehadaku: {{Server: "Blogspot 720p", Resolution: "720p", StreamID: "abc123"}},
		},
	}, nil
}

func (f *fakeService) SearchAnime(_ context.Context, query string, page int) (*domain.AnimePage, error) {
	f.mu.Lock()
	f.lastQuery, f.lastPage = query, page
	f.mu.Unlock()
	return &domain.AnimePage{PageInfo: domain.PageInfo{CurrentPage: page}, Media: []domain.AnimeSummary{}}, nil
}

func (f *fakeService) AnimeByGenre(_ context.Context, genre string, page int) (*domain.AnimePage, error) {
	f.mu.Lock()
	f.lastQuery, f.lastPage = genre, page
	f.mu.Unlock()
	return &domain.AnimePage{PageInfo: domain.PageInfo{CurrentPage: page}, Media: []domain.AnimeSummary{}}, nil
}

func (f *fakeService) Home(context.Context) ([]domain.FeedItem, error) {
	return []domain.FeedItem{{Title: "Kaiju No. 8", RawSlug: "kaiju-no-8"}}, nil
}

func (f *fakeService) Top10(context.Context) ([]domain.FeedItem, error) {
	return nil, errors.New("store down")
}

func newTestServer(t *testing.T, cfg config.ServerConfig, proxy StreamProxy) (*httptest.Server, *fakeService) {
	t.Helper()
	svc := &fakeService{}
	if proxy == nil {
		store := cache.NewMemoryStore()
		issuer := stream.NewIssuer(store, time.Hour)
		proxy = stream.NewProxy(issuer, store, http.DefaultClient, time.Hour)
	}
	srv := httptest.NewServer(NewServer(cfg, svc, proxy).Routes())
	t.Cleanup(srv.Close)
	return srv, svc
}

func get(t *testing.T, url string, headers map[string]string) (int, map[string]any) {
	t.Helper()
	req, err := http.NewRequest(http.MethodGet, url, nil)
	require.NoError(t, err)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var body map[string]any
	_ = json.NewDecoder(resp.Body).Decode(&body)
	return resp.StatusCode, body
}

func TestAnimeRoutes(t *testing.T) {
	srv, svc := newTestServer(t, config.ServerConfig{}, nil)

	t.Run("Detail", func(t *testing.T) {
		status, body := get(t, srv.URL+"/api/anime/130003", nil)
		assert.Equal(t, http.StatusOK, status)
		assert.Equal(t, float64(130003), body["id"])
		assert.Len(t, body["episode_list"], 1)
	})

	t.Run("InvalidID", func(t *testing.T) {
		status, body := get(t, srv.URL+"/api/anime/abc", nil)
		assert.Equal(t, http.StatusBadRequest, status)
		assert.Equal(t, "Invalid AniList ID.", body["error"])
	})

	t.Run("NotFound", func(t *testing.T) {
		status, body := get(t, srv.URL+"/api/anime/1", nil)
		assert.Equal(t, http.StatusNotFound, status)
		assert.Equal(t, "Anime not found.", body["error"])
	})

	t.Run("InternalError", func(t *testing.T) {
		status, body := get(t, srv.URL+"/api/anime/500", nil)
		assert.Equal(t, http.StatusInternalServerError, status)
		assert.Equal(t, "anilist exploded", body["error"])
	})

	t.Run("PanicIsRecovered", func(t *testing.T) {
		status, _ := get(t, srv.URL+"/api/anime/666", nil)
		assert.Equal(t, http.StatusInternalServerError, status)
	})

	t.Run("Episode", func(t *testing.T) {
		status, body := get(t, srv.URL+"/api/anime/130003/episode/12.5", nil)
		assert.Equal(t, http.StatusOK, status)
		_, _, n := svc.last()
		assert.Equal(t, 12.5, n)
		assert.Equal(t, float64(130003), body["anilist_id"])

		sources := body["sources"].(map[string]any)
		assert.Equal(t, map[string]any{
			"found_slug_title": nil, "found_slug": nil, "episode_url": nil, "match_method": nil,
		}, sources["nimegami"])
	})

	t.Run("EpisodeInvalid", func(t *testing.T) {
		for _, ep := range []string{"0", "-1", "twelve"} {
			status, body := get(t, srv.URL+"/api/anime/130003/episode/"+ep, nil)
			assert.Equal(t, http.StatusBadRequest, status, ep)
			assert.Equal(t, "Invalid episode number.", body["error"], ep)
		}
	})

	t.Run("EpisodeNoSource", func(t *testing.T) {
		status, body := get(t, srv.URL+"/api/anime/21/episode/1", nil)
		assert.Equal(t, http.StatusNotFound, status)
		assert.Equal(t, "Could not find a matching slug for ID 21 from any source.", body["error"])
	})

	t.Run("Search", func(t *testing.T) {
		status, _ := get(t, srv.URL+"/api/search?q=bocchi&page=3", nil)
		assert.Equal(t, http.StatusOK, status)
		query, page, _ := svc.last()
		assert.Equal(t, "bocchi", query)
		assert.Equal(t, 3, page)

		status, _ = get(t, srv.URL+"/api/search?q=", nil)
		assert.Equal(t, http.StatusBadRequest, status)
	})

	t.Run("Genre", func(t *testing.T) {
		status, body := get(t, srv.URL+"/api/genre/Action?page=zero", nil)
		assert.Equal(t, http.StatusOK, status)
		query, page, _ := svc.last()
		assert.Equal(t, "Action", query)
		assert.Equal(t, 1, page)
		assert.Contains(t, body, "pageInfo")
	})

	t.Run("Feeds", func(t *testing.T) {
		resp, err := http.Get(srv.URL + "/api/home")
		require.NoError(t, err)
		defer resp.Body.Close()
		var items []domain.FeedItem
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&items))
		require.Len(t, items, 1)
		assert.Equal(t, "kaiju-no-8", items[0].RawSlug)

		status, _ := get(t, srv.URL+"/api/top10", nil)
		assert.Equal(t, http.StatusInternalServerError, status)
	})

	t.Run("Health", func(t *testing.T) {
		status, body := get(t, srv.URL+"/healthz", nil)
		assert.Equal(t, http.StatusOK, status)
		assert.Equal(t, "ok", body["status"])
	})

	t.Run("Metrics", func(t *testing.T) {
		resp, err := http.Get(srv.URL + "/metrics")
		require.NoError(t, err)
		defer resp.Body.Close()
		assert.Equal(t, http.StatusOK, resp.StatusCode)
	})
}

func TestAPIKey(t *testing.T) {
	srv, _ := newTestServer(t, config.ServerConfig{APIKey: "secret", APIKeyEnabled: true}, nil)

	status, body := get(t, srv.URL+"/api/anime/130003", nil)
	assert.Equal(t, http.StatusUnauthorized, status)
	assert.Equal(t, "Invalid or missing API key.", body["error"])

	status, _ = get(t, srv.URL+"/api/anime/130003", map[string]string{"x-api-key": "wrong"})
	assert.Equal(t, http.StatusUnauthorized, status)

	status, _ = get(t, srv.URL+"/api/anime/130003", map[string]string{"x-api-key": "secret"})
	assert.Equal(t, http.StatusOK, status)

	// Streams and health stay public
	status, _ = get(t, srv.URL+"/healthz", nil)
	assert.Equal(t, http.StatusOK, status)
	status, _ = get(t, srv.URL+"/stream/unknown", nil)
	assert.Equal(t, http.StatusNotFound, status)
}

type errProxy struct {
	err error
}

func (p errProxy) Serve(http.ResponseWriter, *http.Request, string) error {
	return p.err
}

func TestStreamRoute(t *testing.T) {
	t.Run("UnknownToken", func(t *testing.T) {
		srv, _ := newTestServer(t, config.ServerConfig{}, nil)
		status, body := get(t, srv.URL+"/stream/deadbeef0000", nil)
		assert.Equal(t, http.StatusNotFound, status)
		assert.Equal(t, "Stream ID not found or has expired. Please fetch a new one.", body["error"])
	})

	t.Run("UnsupportedHost", func(t *testing.T) {
		srv, _ := newTestServer(t, config.ServerConfig{}, errProxy{err: domain.ErrUnsupportedHost})
		status, body := get(t, srv.URL+"/stream/abc", nil)
		assert.Equal(t, http.StatusNotImplemented, status)
		assert.Equal(t, "This stream provider is not yet supported for proxying.", body["error"])
	})

	t.Run("UpstreamFailure", func(t *testing.T) {
		err := &domain.UpstreamError{URL: "https://cdn.example/v.mp4", StatusCode: 502}
		srv, _ := newTestServer(t, config.ServerConfig{}, errProxy{err: err})
		status, body := get(t, srv.URL+"/stream/abc", nil)
		assert.Equal(t, http.StatusInternalServerError, status)
		assert.Equal(t, err.Error(), body["error"])
	})

	t.Run("RelaysIssuedStream", func(t *testing.T) {
		upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "video/mp4")
			_, _ = w.Write([]byte("video bytes"))
		}))
		t.Cleanup(upstream.Close)

		store := cache.NewMemoryStore()
		issuer := stream.NewIssuer(store, time.Hour)
		proxy := stream.NewProxy(issuer, store, upstream.Client(), time.Hour, stream.NewDirectStrategy([]string{"127.0.0.1"}))
		srv, _ := newTestServer(t, config.ServerConfig{}, proxy)

		refs, err := issuer.Issue(context.Background(), []domain.Embed{{Server: "Direct", URL: upstream.URL + "/v.mp4"}})
		require.NoError(t, err)
		require.Len(t, refs, 1)

		resp, err := http.Get(srv.URL + "/stream/" + refs[0].StreamID)
		require.NoError(t, err)
		defer resp.Body.Close()
		assert.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Equal(t, "video/mp4", resp.Header.Get("Content-Type"))
	})
}
