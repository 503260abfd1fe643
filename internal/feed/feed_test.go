package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"github.com/PizzaHomicide/otakuin/internal/cache"
	"github.com/PizzaHomicide/otakuin/internal/catalog"
	"github.com/PizzaHomicide/otakuin/internal/config"
	"github.com/PizzaHomicide/otakuin/internal/domain"
	"github.com/PizzaHomicide/otakuin/internal/source"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

type release struct {
	slug    string
	title   string
	episode int
}

// newFrontPage serves samehadaku style latest release pages and a top10 block on the index
func newFrontPage(t *testing.T, latest map[int][]release, top10 []string) *httptest.Server {
	t.Helper()
	var srv *httptest.Server
	srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/" {
			fmt.Fprint(w, `<div class="topten-animesu"><ul>`)
			for i, slug := range top10 {
				fmt.Fprintf(w, `<li><a class="series" href="%s/anime/%s/"><b class="is-topten">TOP %d</b><span class="judul">%s</span></a></li>`,
					srv.URL, slug, i+1, strings.ReplaceAll(slug, "-", " "))
			}
			fmt.Fprint(w, `</ul></div>`)
			return
		}

		page := 0
		switch {
		case r.URL.Path == "/anime-terbaru/":
			page = 1
		default:
			fmt.Sscanf(r.URL.Path, "/anime-terbaru/page/%d/", &page)
		}
		releases, ok := latest[page]
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		fmt.Fprint(w, `<div class="post-show"><ul>`)
		for _, rel := range releases {
			fmt.Fprintf(w, `<li><a href="%s/%s-episode-%d/"><img src="%s.jpg"></a><h2 class="entry-title">%s</h2><span>Episode %d</span></li>`,
				srv.URL, rel.slug, rel.episode, rel.slug, rel.title, rel.episode)
		}
		fmt.Fprint(w, `</ul></div>`)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func readFeed(t *testing.T, store cache.Store, name domain.FeedName) []domain.FeedItem {
	t.Helper()
	items, err := catalog.NewStore(store).Feed(context.Background(), name)
	require.NoError(t, err)
	return items
}

func drainQueue(t *testing.T, store cache.Store) []domain.EnrichmentJob {
	t.Helper()
	var jobs []domain.EnrichmentJob
	for {
		raw, ok, err := store.LPop(context.Background(), cache.Keys.EnrichmentQueue())
		require.NoError(t, err)
		if !ok {
			return jobs
		}
		var job domain.EnrichmentJob
		require.NoError(t, json.Unmarshal([]byte(raw), &job))
		jobs = append(jobs, job)
	}
}

func intPtr(n int) *int { return &n }

func strPtr(s string) *string { return &s }

func TestRefreshHome(t *testing.T) {
	ctx := context.Background()

	t.Run("MergesMappedItems", func(t *testing.T) {
		srv := newFrontPage(t, map[int][]release{
			1: {{"kaiju-no-8", "Kaiju No. 8", 5}, {"dandadan", "Dandadan", 2}},
			2: {{"dandadan", "Dandadan", 2}, {"frieren-season-2", "Frieren Season 2", 1}},
		}, nil)
		store := cache.NewMemoryStore()

		// Mapped last week from the previous episode page
		previous := []domain.FeedItem{{
			ID:             intPtr(178754),
			Title:          "Kaiju No. 8",
			Rating:         intPtr(80),
			RawSlug:        srv.URL + "/kaiju-no-8-episode-4/",
			NormalizedSlug: "kaiju no 8",
			LastEpisode:    strPtr("4"),
		}}
		require.NoError(t, cache.SetJSON(ctx, store, cache.Keys.Feed("home"), previous, 0))

		r := NewRefresher(srv.Client(), store, source.NewSamehadaku(srv.URL), config.FeedConfig{HomePages: 2})
		queued, err := r.RefreshHome(ctx)
		require.NoError(t, err)
		assert.Equal(t, 2, queued)

		items := readFeed(t, store, domain.FeedHome)
		require.Len(t, items, 3)

		assert.Equal(t, 178754, *items[0].ID)
		assert.Equal(t, 80, *items[0].Rating)
		assert.Equal(t, srv.URL+"/kaiju-no-8-episode-5/", items[0].RawSlug)
		assert.Equal(t, "5", *items[0].LastEpisode)

		assert.Nil(t, items[1].ID)
		assert.Equal(t, "dandadan", items[1].NormalizedSlug)
		assert.Equal(t, "frieren", items[2].NormalizedSlug)

		jobs := drainQueue(t, store)
		require.Len(t, jobs, 2)
		assert.Equal(t, domain.FeedHome, jobs[0].Feed)
		assert.Equal(t, srv.URL+"/dandadan-episode-2/", jobs[0].RawSlug)
		assert.Equal(t, "dandadan", jobs[0].NormalizedSlug)
		assert.Equal(t, "2", *jobs[0].LastEpisode)
		assert.Equal(t, "Frieren Season 2", jobs[1].Title)
	})

	t.Run("UnmappedItemsAreQueuedAgain", func(t *testing.T) {
		srv := newFrontPage(t, map[int][]release{1: {{"dandadan", "Dandadan", 2}}}, nil)
		store := cache.NewMemoryStore()
		r := NewRefresher(srv.Client(), store, source.NewSamehadaku(srv.URL), config.FeedConfig{HomePages: 1})

		_, err := r.RefreshHome(ctx)
		require.NoError(t, err)
		queued, err := r.RefreshHome(ctx)
		require.NoError(t, err)

		assert.Equal(t, 1, queued)
		assert.Len(t, drainQueue(t, store), 2)
		assert.Len(t, readFeed(t, store, domain.FeedHome), 1)
	})

	t.Run("LaterPageFailureKeepsEarlierPages", func(t *testing.T) {
		srv := newFrontPage(t, map[int][]release{1: {{"dandadan", "Dandadan", 2}}}, nil)
		store := cache.NewMemoryStore()
		r := NewRefresher(srv.Client(), store, source.NewSamehadaku(srv.URL), config.FeedConfig{HomePages: 3})

		queued, err := r.RefreshHome(ctx)
		require.NoError(t, err)
		assert.Equal(t, 1, queued)
	})

	t.Run("FirstPageFailure", func(t *testing.T) {
		srv := newFrontPage(t, map[int][]release{}, nil)
		store := cache.NewMemoryStore()
		r := NewRefresher(srv.Client(), store, source.NewSamehadaku(srv.URL), config.FeedConfig{HomePages: 1})

		_, err := r.RefreshHome(ctx)
		assert.ErrorIs(t, err, domain.ErrUpstreamUnavailable)
		_, found, err := store.Get(ctx, cache.Keys.Feed("home"))
		require.NoError(t, err)
		assert.False(t, found)
	})
}

func TestRefreshTop10(t *testing.T) {
	ctx := context.Background()
	srv := newFrontPage(t, nil, []string{"one-piece", "dandadan"})
	store := cache.NewMemoryStore()
	r := NewRefresher(srv.Client(), store, source.NewSamehadaku(srv.URL), config.FeedConfig{})

	queued, err := r.RefreshTop10(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, queued)

	items := readFeed(t, store, domain.FeedTop10)
	require.Len(t, items, 2)
	assert.Equal(t, 1, *items[0].Rank)
	assert.Equal(t, "one piece", items[0].NormalizedSlug)
	assert.Equal(t, 2, *items[1].Rank)

	jobs := drainQueue(t, store)
	require.Len(t, jobs, 2)
	assert.Equal(t, domain.FeedTop10, jobs[0].Feed)
	assert.Equal(t, 1, *jobs[0].Rank)
}

type fakeRepo struct {
	anime    map[int]*domain.Anime
	matches  map[string]*domain.AnimeSummary
	searched []string
}

func (r *fakeRepo) GetAnimeByID(_ context.Context, id int) (*domain.Anime, error) {
	if a, ok := r.anime[id]; ok {
		return a, nil
	}
	return nil, fmt.Errorf("anime %d: %w", id, domain.ErrNotFound)
}

func (r *fakeRepo) SearchAnime(context.Context, string, int) (*domain.AnimePage, error) {
	return &domain.AnimePage{}, nil
}

func (r *fakeRepo) AnimeByGenre(context.Context, string, int) (*domain.AnimePage, error) {
	return &domain.AnimePage{}, nil
}

func (r *fakeRepo) FindBestMatch(_ context.Context, search string) (*domain.AnimeSummary, error) {
	r.searched = append(r.searched, search)
	return r.matches[search], nil
}

func seedJob(t *testing.T, store cache.Store, name domain.FeedName, items []domain.FeedItem, job domain.EnrichmentJob) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, cache.SetJSON(ctx, store, cache.Keys.Feed(string(name)), items, 0))
	data, err := json.Marshal(job)
	require.NoError(t, err)
	require.NoError(t, store.RPush(ctx, cache.Keys.EnrichmentQueue(), string(data)))
}

func TestWorkerStep(t *testing.T) {
	ctx := context.Background()
	dandadan := domain.FeedItem{Title: "Dandadan", RawSlug: "https://s.example/dandadan-episode-2/", NormalizedSlug: "dandadan"}
	job := domain.EnrichmentJob{Feed: domain.FeedHome, RawSlug: dandadan.RawSlug, Title: dandadan.Title, NormalizedSlug: "dandadan"}

	t.Run("SearchMatch", func(t *testing.T) {
		store := cache.NewMemoryStore()
		seedJob(t, store, domain.FeedHome, []domain.FeedItem{dandadan}, job)
		repo := &fakeRepo{matches: map[string]*domain.AnimeSummary{
			"dandadan": {ID: 171018, AverageScore: 84, CoverImage: "cover.jpg"},
		}}

		w := NewWorker(store, repo, catalog.NewStore(store), config.WorkerConfig{})
		processed, err := w.Step(ctx)
		require.NoError(t, err)
		assert.True(t, processed)

		items := readFeed(t, store, domain.FeedHome)
		require.Len(t, items, 1)
		require.NotNil(t, items[0].ID)
		assert.Equal(t, 171018, *items[0].ID)
		assert.Equal(t, 84, *items[0].Rating)
		assert.Equal(t, "cover.jpg", items[0].Thumbnail)
		assert.Equal(t, "Dandadan", items[0].Title)
	})

	t.Run("OverrideWins", func(t *testing.T) {
		store := cache.NewMemoryStore()
		seedJob(t, store, domain.FeedHome, []domain.FeedItem{dandadan}, job)
		cat := catalog.NewStore(store)
		require.NoError(t, cat.SetOverride(ctx, domain.SourceSamehadaku, 999, "https://s.example/anime/dandadan/"))
		repo := &fakeRepo{anime: map[int]*domain.Anime{999: {ID: 999, AverageScore: 70}}}

		w := NewWorker(store, repo, cat, config.WorkerConfig{})
		_, err := w.Step(ctx)
		require.NoError(t, err)

		items := readFeed(t, store, domain.FeedHome)
		assert.Equal(t, 999, *items[0].ID)
		assert.Equal(t, 70, *items[0].Rating)
		assert.Empty(t, repo.searched)
	})

	t.Run("NoMatch", func(t *testing.T) {
		store := cache.NewMemoryStore()
		seedJob(t, store, domain.FeedHome, []domain.FeedItem{dandadan}, job)
		repo := &fakeRepo{}

		w := NewWorker(store, repo, catalog.NewStore(store), config.WorkerConfig{})
		processed, err := w.Step(ctx)
		require.NoError(t, err)
		assert.True(t, processed)
		assert.Equal(t, []string{"dandadan"}, repo.searched)
		assert.Nil(t, readFeed(t, store, domain.FeedHome)[0].ID)
	})

	t.Run("ItemGone", func(t *testing.T) {
		store := cache.NewMemoryStore()
		seedJob(t, store, domain.FeedHome, []domain.FeedItem{}, job)
		repo := &fakeRepo{matches: map[string]*domain.AnimeSummary{"dandadan": {ID: 171018}}}

		w := NewWorker(store, repo, catalog.NewStore(store), config.WorkerConfig{})
		processed, err := w.Step(ctx)
		require.NoError(t, err)
		assert.True(t, processed)
		assert.Empty(t, readFeed(t, store, domain.FeedHome))
	})

	t.Run("MalformedJob", func(t *testing.T) {
		store := cache.NewMemoryStore()
		require.NoError(t, store.RPush(ctx, cache.Keys.EnrichmentQueue(), "{not json"))

		w := NewWorker(store, &fakeRepo{}, catalog.NewStore(store), config.WorkerConfig{})
		processed, err := w.Step(ctx)
		require.NoError(t, err)
		assert.True(t, processed)
	})

	t.Run("EmptyQueue", func(t *testing.T) {
		store := cache.NewMemoryStore()
		w := NewWorker(store, &fakeRepo{}, catalog.NewStore(store), config.WorkerConfig{})
		processed, err := w.Step(ctx)
		require.NoError(t, err)
		assert.False(t, processed)
	})
}

func TestWorkerRun(t *testing.T) {
	store := cache.NewMemoryStore()
	dandadan := domain.FeedItem{RawSlug: "https://s.example/dandadan-episode-2/", NormalizedSlug: "dandadan"}
	seedJob(t, store, domain.FeedTop10, []domain.FeedItem{dandadan},
		domain.EnrichmentJob{Feed: domain.FeedTop10, RawSlug: dandadan.RawSlug, NormalizedSlug: "dandadan"})
	repo := &fakeRepo{matches: map[string]*domain.AnimeSummary{"dandadan": {ID: 171018}}}

	ctx, cancel := context.WithCancel(context.Background())
	w := NewWorker(store, repo, catalog.NewStore(store), config.WorkerConfig{PollInterval: 10 * time.Millisecond})
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	require.Eventually(t, func() bool {
		items, err := catalog.NewStore(store).Feed(context.Background(), domain.FeedTop10)
		return err == nil && len(items) == 1 && items[0].ID != nil
	}, time.Second, 10*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("worker did not stop after cancellation")
	}
}
