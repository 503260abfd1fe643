// Package service joins canonical metadata, slug resolution, extraction and stream tokens into the answers the
// API serves.
package service

import (
	"context"
	"fmt"
	"github.com/PizzaHomicide/otakuin/internal/cache"
	"github.com/PizzaHomicide/otakuin/internal/catalog"
	"github.com/PizzaHomicide/otakuin/internal/domain"
	"github.com/PizzaHomicide/otakuin/internal/episodes"
	"github.com/PizzaHomicide/otakuin/internal/extract"
	"github.com/PizzaHomicide/otakuin/internal/log"
	"github.com/PizzaHomicide/otakuin/internal/resolver"
	"github.com/PizzaHomicide/otakuin/internal/source"
	"github.com/PizzaHomicide/otakuin/internal/stream"
	"golang.org/x/sync/errgroup"
	"strings"
	"time"
)

// Dependencies are the components an AnimeService is assembled from
type Dependencies struct {
	Repo      domain.AnimeRepository
	Catalog   *catalog.Store
	Sources   *source.Registry
	Episodes  *episodes.Retriever
	Extractor *extract.Extractor
	Issuer    *stream.Issuer
	Store     cache.Store
	TTLs      cache.TTLs
	// RequestTimeout bounds an aggregate request end to end.  Zero means no deadline.
	RequestTimeout time.Duration
}

type AnimeService struct {
	repo      domain.AnimeRepository
	catalog   *catalog.Store
	matcher   *resolver.Matcher
	sources   *source.Registry
	episodes  *episodes.Retriever
	extractor *extract.Extractor
	issuer    *stream.Issuer
	store     cache.Store
	ttls      cache.TTLs
	timeout   time.Duration
}

func NewAnimeService(deps Dependencies) *AnimeService {
	return &AnimeService{
		repo:      deps.Repo,
		catalog:   deps.Catalog,
		matcher:   resolver.NewMatcher(resolver.Engine{}, deps.Catalog),
		sources:   deps.Sources,
		episodes:  deps.Episodes,
		extractor: deps.Extractor,
		issuer:    deps.Issuer,
		store:     deps.Store,
		ttls:      deps.TTLs,
		timeout:   deps.RequestTimeout,
	}
}

// mergedListing is the cached episode list of a detail page together with the source it came from
type mergedListing struct {
	Source   domain.SourceName `json:"source"`
	Episodes []domain.Episode  `json:"episodes"`
}

// GetAnimeDetail returns the canonical metadata with the episode list of the first source, in fallback order,
// that has one
func (s *AnimeService) GetAnimeDetail(ctx context.Context, id int) (*domain.AnimeDetail, error) {
	ctx, cancel := s.withDeadline(ctx)
	defer cancel()

	anime, err := s.repo.GetAnimeByID(ctx, id)
	if err != nil {
		return nil, err
	}

	detail := &domain.AnimeDetail{Anime: anime, EpisodeList: []domain.Episode{}}

	key := cache.Keys.EpisodeList(id, "")
	if cached, ok, err := cache.GetJSON[mergedListing](ctx, s.store, key); err != nil {
		log.Warn("Unable to read cached episode list", "id", id, "error", err)
	} else if ok {
		detail.EpisodeSource = cached.Source
		detail.EpisodeList = cached.Episodes
		return detail, nil
	}

	for _, adapter := range s.sources.All() {
		res, err := s.matcher.Match(ctx, adapter.Name(), anime)
		if err != nil {
			log.Warn("Slug resolution failed", "source", adapter.Name(), "id", id, "error", err)
			continue
		}
		if res == nil {
			continue
		}

		listing, err := s.episodes.Get(ctx, id, adapter, res.Slug)
		if err != nil || len(listing) == 0 {
			continue
		}

		detail.EpisodeSource = adapter.Name()
		detail.EpisodeList = listing
		break
	}

	if len(detail.EpisodeList) > 0 {
		merged := mergedListing{Source: detail.EpisodeSource, Episodes: detail.EpisodeList}
		if err := cache.SetJSON(ctx, s.store, key, merged, s.ttls.EpisodeList); err != nil {
			log.Warn("Unable to cache episode list", "id", id, "error", err)
		}
	} else {
		log.Info("No source has an episode list", "id", id, "title", anime.Title.Preferred())
	}

	return detail, nil
}

// sourceResult is the outcome of one source for an episode request.  Each goroutine writes only its own slot.
type sourceResult struct {
	resolution *domain.Resolution
	episodeURL string
	streams    []domain.StreamRef
}

// GetEpisodeStreams resolves every source for episode n of a title, extracts the embeds of the matched episode
// pages and replaces their URLs with stream tokens.  It only fails when no source resolves the title.
func (s *AnimeService) GetEpisodeStreams(ctx context.Context, id int, n float64) (*domain.EpisodeStreams, error) {
	ctx, cancel := s.withDeadline(ctx)
	defer cancel()

	key := cache.Keys.EpisodeStreams(id, source.FormatEpisode(n))
	if cached, ok, err := cache.GetJSON[domain.EpisodeStreams](ctx, s.store, key); err != nil {
		log.Warn("Unable to read cached episode streams", "key", key, "error", err)
	} else if ok {
		return &cached, nil
	}

	anime, err := s.repo.GetAnimeByID(ctx, id)
	if err != nil {
		return nil, err
	}

	adapters := s.sources.All()
	results := make([]sourceResult, len(adapters))

	// Resolve the slug of every source
	var resolution errgroup.Group
	for i, adapter := range adapters {
		resolution.Go(func() error {
			res, err := s.matcher.Match(ctx, adapter.Name(), anime)
			if err != nil {
				log.Warn("Slug resolution failed", "source", adapter.Name(), "id", id, "error", err)
				return nil
			}
			results[i].resolution = res
			return nil
		})
	}
	_ = resolution.Wait()

	resolved := 0
	for _, r := range results {
		if r.resolution != nil {
			resolved++
		}
	}
	if resolved == 0 {
		return nil, &domain.MessageError{
			Message: fmt.Sprintf("Could not find a matching slug for ID %d from any source.", id),
			Err:     domain.ErrNotFound,
		}
	}

	// Locate the episode and extract its embeds on every resolved source
	var extraction errgroup.Group
	for i, adapter := range adapters {
		if results[i].resolution == nil {
			continue
		}
		extraction.Go(func() error {
			results[i].episodeURL, results[i].streams = s.episodeStreams(ctx, id, n, adapter, results[i].resolution)
			return nil
		})
	}
	_ = extraction.Wait()

	response := &domain.EpisodeStreams{
		AnimeID: id,
		Episode: n,
		Sources: make(map[domain.SourceName]domain.SourceInfo, len(adapters)),
		Streams: make(map[domain.SourceName][]domain.StreamRef, len(adapters)),
	}
	total := 0
	for i, adapter := range adapters {
		response.Sources[adapter.Name()] = sourceInfo(results[i])
		streams := results[i].streams
		if streams == nil {
			streams = []domain.StreamRef{}
		}
		response.Streams[adapter.Name()] = streams
		total += len(streams)
	}

	log.Info("Episode streams resolved", "id", id, "episode", n, "sources", resolved, "streams", total)

	// An answer without streams is most likely a transient upstream failure and is not worth keeping
	if total > 0 {
		if err := cache.SetJSON(ctx, s.store, key, response, s.ttls.EpisodeStreams); err != nil {
			log.Warn("Unable to cache episode streams", "key", key, "error", err)
		}
	}

	return response, nil
}

// episodeStreams locates episode n on one source and returns the episode URL with its stream tokens.  Failures
// are logged and yield no streams.
func (s *AnimeService) episodeStreams(ctx context.Context, id int, n float64, adapter source.Adapter,
	res *domain.Resolution) (string, []domain.StreamRef) {
	locator, ok := s.locate(ctx, id, n, adapter, res)
	if !ok {
		log.Debug("Episode not listed", "source", adapter.Name(), "slug", res.Slug, "episode", n)
		return "", nil
	}

	episodeURL := locator
	if !strings.HasPrefix(locator, "http") {
		// Opaque payloads are not addressable, the listing page is the closest URL
		episodeURL = adapter.ListingURL(res.Slug)
	}

	embeds := s.embeds(ctx, adapter, locator)
	if len(embeds) == 0 {
		return episodeURL, nil
	}

	refs, err := s.issuer.Issue(ctx, embeds)
	if err != nil {
		log.Warn("Unable to issue stream tokens", "source", adapter.Name(), "error", err)
		return episodeURL, nil
	}
	return episodeURL, refs
}

// locate finds the locator of episode n.  Sources that can address an episode without the listing skip the fetch.
func (s *AnimeService) locate(ctx context.Context, id int, n float64, adapter source.Adapter,
	res *domain.Resolution) (string, bool) {
	if locator, ok := adapter.EpisodeLocator(res.Slug, n, nil); ok {
		return locator, true
	}

	listing, err := s.episodes.Get(ctx, id, adapter, res.Slug)
	if err != nil {
		log.Debug("Episode list unavailable", "source", adapter.Name(), "slug", res.Slug, "error", err)
	}
	if locator, ok := adapter.EpisodeLocator(res.Slug, n, listing); ok {
		return locator, true
	}

	// A manual slug may not be in any listing, try the conventional page address
	if fb, ok := adapter.(source.FallbackLocator); ok && res.Method == domain.MatchManual {
		return fb.FallbackLocator(res.Slug, n), true
	}
	return "", false
}

// embeds returns the cached embeds of an episode page, extracting them on a miss
func (s *AnimeService) embeds(ctx context.Context, adapter source.Adapter, locator string) []domain.Embed {
	key := cache.Keys.Embeds(locator)
	if cached, ok, err := cache.GetJSON[[]domain.Embed](ctx, s.store, key); err != nil {
		log.Warn("Unable to read cached embeds", "source", adapter.Name(), "error", err)
	} else if ok {
		return cached
	}

	embeds := s.extractor.Extract(ctx, adapter.EmbedSource(locator))
	if len(embeds) > 0 {
		if err := cache.SetJSON(ctx, s.store, key, embeds, s.ttls.Embeds); err != nil {
			log.Warn("Unable to cache embeds", "source", adapter.Name(), "error", err)
		}
	}
	return embeds
}

func sourceInfo(r sourceResult) domain.SourceInfo {
	if r.resolution == nil {
		return domain.SourceInfo{}
	}
	info := domain.SourceInfo{
		FoundSlugTitle: &r.resolution.SlugTitle,
		FoundSlug:      &r.resolution.Slug,
		MatchMethod:    &r.resolution.Method,
	}
	if r.episodeURL != "" {
		info.EpisodeURL = &r.episodeURL
	}
	return info
}

func (s *AnimeService) SearchAnime(ctx context.Context, query string, page int) (*domain.AnimePage, error) {
	return s.repo.SearchAnime(ctx, query, page)
}

func (s *AnimeService) AnimeByGenre(ctx context.Context, genre string, page int) (*domain.AnimePage, error) {
	return s.repo.AnimeByGenre(ctx, genre, page)
}

// Home returns the latest releases list maintained by the feed refresher
func (s *AnimeService) Home(ctx context.Context) ([]domain.FeedItem, error) {
	return s.catalog.Feed(ctx, domain.FeedHome)
}

func (s *AnimeService) Top10(ctx context.Context) ([]domain.FeedItem, error) {
	return s.catalog.Feed(ctx, domain.FeedTop10)
}

func (s *AnimeService) withDeadline(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, s.timeout)
}
