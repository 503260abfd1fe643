package anilist

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"github.com/PizzaHomicide/otakuin/internal/cache"
	"github.com/PizzaHomicide/otakuin/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"
)

type graphRequest struct {
	Query     string                 `json:"query"`
	Variables map[string]interface{} `json:"variables"`
}

// newGraphServer answers each request with the handler's data object
func newGraphServer(t *testing.T, handler func(req graphRequest) string) (*httptest.Server, *atomic.Int32) {
	t.Helper()
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		var req graphRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, handler(req))
	}))
	t.Cleanup(srv.Close)
	return srv, &hits
}

const bocchiMedia = `{"data": {"Media": {
	"id": 130003,
	"title": {"romaji": "Bocchi the Rock!", "english": "BOCCHI THE ROCK!", "native": "ぼっち・ざ・ろっく！"},
	"status": "FINISHED",
	"description": "Hitori Gotou is a high school girl...",
	"startDate": {"year": 2022, "month": 10, "day": 9},
	"endDate": {"year": 2022, "month": 12, "day": null},
	"seasonYear": 2022,
	"episodes": 12,
	"duration": 24,
	"trailer": {"id": "abc", "site": "youtube", "thumbnail": "t.jpg"},
	"coverImage": {"large": "cover.jpg"},
	"bannerImage": "banner.jpg",
	"genres": ["Comedy", "Music"],
	"averageScore": 88,
	"studios": {"nodes": [{"name": "CloverWorks"}]}
}}}`

func TestGetAnimeByID(t *testing.T) {
	srv, _ := newGraphServer(t, func(req graphRequest) string {
		if req.Variables["id"] == float64(130003) {
			return bocchiMedia
		}
		return `{"data": {"Media": null}, "errors": [{"message": "Not Found.", "status": 404}]}`
	})
	repo := NewAnimeRepository(NewClient(srv.URL, 0, srv.Client()))

	anime, err := repo.GetAnimeByID(context.Background(), 130003)
	require.NoError(t, err)
	assert.Equal(t, "Bocchi the Rock!", anime.Title.Romaji)
	assert.Equal(t, domain.FuzzyDate{Year: 2022, Month: 12}, anime.EndDate)
	assert.Equal(t, []string{"CloverWorks"}, anime.Studios)
	assert.Equal(t, 88, anime.AverageScore)
	require.NotNil(t, anime.Trailer)
	assert.Equal(t, "youtube", anime.Trailer.Site)

	_, err = repo.GetAnimeByID(context.Background(), 1)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestCachedRepository(t *testing.T) {
	srv, hits := newGraphServer(t, func(graphRequest) string { return bocchiMedia })
	store := cache.NewMemoryStore()
	repo := NewCachedRepository(NewAnimeRepository(NewClient(srv.URL, 0, srv.Client())), store, 24*time.Hour)

	for range 3 {
		anime, err := repo.GetAnimeByID(context.Background(), 130003)
		require.NoError(t, err)
		assert.Equal(t, 130003, anime.ID)
	}
	assert.Equal(t, int32(1), hits.Load())

	_, ok, err := store.Get(context.Background(), cache.Keys.Metadata(130003))
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestSearchAndGenre(t *testing.T) {
	srv, _ := newGraphServer(t, func(req graphRequest) string {
		if !strings.Contains(req.Query, "POPULARITY_DESC") {
			return `{"errors": [{"message": "unexpected query"}]}`
		}
		return `{"data": {"Page": {
			"pageInfo": {"total": 41, "currentPage": 2, "lastPage": 3, "hasNextPage": true},
			"media": [{"id": 1, "title": {"romaji": "Cowboy Bebop"}, "coverImage": {"large": "", "medium": "m.jpg"}, "averageScore": null, "format": "TV", "episodes": 26, "status": "FINISHED"}]
		}}}`
	})
	repo := NewAnimeRepository(NewClient(srv.URL, 0, srv.Client()))

	page, err := repo.SearchAnime(context.Background(), "bebop", 2)
	require.NoError(t, err)
	assert.True(t, page.PageInfo.HasNextPage)
	require.Len(t, page.Media, 1)
	assert.Equal(t, "m.jpg", page.Media[0].CoverImage)
	assert.Equal(t, 0, page.Media[0].AverageScore)

	page, err = repo.AnimeByGenre(context.Background(), "Action", 0)
	require.NoError(t, err)
	assert.Equal(t, 41, page.PageInfo.Total)
}

func TestFindBestMatch(t *testing.T) {
	var terms []string
	srv, _ := newGraphServer(t, func(req graphRequest) string {
		term, _ := req.Variables["search"].(string)
		terms = append(terms, term)
		if term == "Tensura Season 3" {
			return `{"data": {"Page": {"media": []}}}`
		}
		return `{"data": {"Page": {"media": [
			{"id": 1, "title": {"romaji": "Tensura"}},
			{"id": 2, "title": {"romaji": "Tensura Nikki"}},
			{"id": 3, "title": {"romaji": "Tensei Shitara Slime Datta Ken 3rd Season", "english": "That Time I Got Reincarnated as a Slime Season 3"}}
		]}}}`
	})
	repo := NewAnimeRepository(NewClient(srv.URL, 0, srv.Client()))

	best, err := repo.FindBestMatch(context.Background(), "Tensura Season 3")
	require.NoError(t, err)
	require.NotNil(t, best)
	assert.Equal(t, 3, best.ID)
	assert.Equal(t, []string{"Tensura Season 3", "Tensura"}, terms)
}

func TestFindBestMatchNoResults(t *testing.T) {
	srv, _ := newGraphServer(t, func(graphRequest) string { return `{"data": {"Page": {"media": []}}}` })
	repo := NewAnimeRepository(NewClient(srv.URL, 0, srv.Client()))

	best, err := repo.FindBestMatch(context.Background(), "nothing at all")
	require.NoError(t, err)
	assert.Nil(t, best)
}

func TestRankCandidates(t *testing.T) {
	candidates := []domain.AnimeSummary{
		{ID: 1, Title: domain.AnimeTitle{Romaji: "Tensura"}},
		{ID: 2, Title: domain.AnimeTitle{Romaji: "Tensura Nikki"}},
		{ID: 3, Title: domain.AnimeTitle{
			Romaji:  "Tensei Shitara Slime Datta Ken 3rd Season",
			English: "That Time I Got Reincarnated as a Slime Season 3",
		}},
	}

	assert.Equal(t, 3, rankCandidates("Tensura Season 3", candidates).ID, "season tie-breaker")
	assert.Equal(t, 1, rankCandidates("Tensura", candidates).ID)
	assert.Equal(t, 1, rankCandidates("zzzz qqqq", candidates).ID, "first result when nothing is similar")
}

func TestSearchTerms(t *testing.T) {
	assert.Equal(t, []string{"Overlord Season 4", "Overlord"}, searchTerms("Overlord Season 4"))
	assert.Equal(t, []string{"Mushoku Tensei Part 2 Extra", "Mushoku Tensei Extra"}, searchTerms("Mushoku Tensei Part 2 Extra"))
	assert.Equal(t, []string{"Frieren"}, searchTerms(" Frieren "))
	assert.Empty(t, searchTerms(""))
}

func TestClientThrottle(t *testing.T) {
	srv, _ := newGraphServer(t, func(graphRequest) string { return `{"data": {"Page": {"media": []}}}` })
	client := NewClient(srv.URL, 50*time.Millisecond, srv.Client())

	start := time.Now()
	for range 3 {
		var out pageResult
		require.NoError(t, client.Query(context.Background(), "query { Page { media { id } } }", nil, &out))
	}
	assert.GreaterOrEqual(t, time.Since(start), 100*time.Millisecond)
}

func TestClientNetworkError(t *testing.T) {
	srv, _ := newGraphServer(t, func(graphRequest) string { return `{}` })
	endpoint := srv.URL
	srv.Close()

	client := NewClient(endpoint, 0, nil)
	var out pageResult
	err := client.Query(context.Background(), "query { Page { media { id } } }", nil, &out)

	var netErr NetworkError
	assert.True(t, errors.As(err, &netErr), "got %v", err)
}
