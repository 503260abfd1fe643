package main

import (
	"context"
	"fmt"
	"github.com/PizzaHomicide/otakuin/internal/api"
	"github.com/PizzaHomicide/otakuin/internal/cache"
	"github.com/PizzaHomicide/otakuin/internal/catalog"
	"github.com/PizzaHomicide/otakuin/internal/config"
	"github.com/PizzaHomicide/otakuin/internal/crawler"
	"github.com/PizzaHomicide/otakuin/internal/domain"
	"github.com/PizzaHomicide/otakuin/internal/episodes"
	"github.com/PizzaHomicide/otakuin/internal/extract"
	"github.com/PizzaHomicide/otakuin/internal/feed"
	"github.com/PizzaHomicide/otakuin/internal/httpclient"
	"github.com/PizzaHomicide/otakuin/internal/log"
	"github.com/PizzaHomicide/otakuin/internal/repository/anilist"
	"github.com/PizzaHomicide/otakuin/internal/service"
	"github.com/PizzaHomicide/otakuin/internal/source"
	"github.com/PizzaHomicide/otakuin/internal/stream"
	"net/http"
)

// app holds the components shared by every command
type app struct {
	cfg     *config.Config
	store   cache.Store
	http    *httpclient.Client
	repo    domain.AnimeRepository
	catalog *catalog.Store
	sources *source.Registry
	ttls    cache.TTLs
	close   func()
}

func newApp(ctx context.Context, cfg *config.Config) (*app, error) {
	store, closeStore, err := openStore(ctx, cfg.Redis)
	if err != nil {
		return nil, err
	}

	client, err := httpclient.New(httpclient.Options{
		UserAgent:          cfg.HTTP.UserAgent,
		Timeout:            cfg.HTTP.Timeout,
		InsecureSkipVerify: cfg.HTTP.InsecureSkipVerify,
		UTLSDomains:        cfg.HTTP.UTLSDomains,
		Proxy:              cfg.HTTP.Proxy,
	})
	if err != nil {
		closeStore()
		return nil, fmt.Errorf("creating http client: %w", err)
	}

	ttls := cache.NewTTLs(cfg.Cache)
	anilistClient := anilist.NewClient(cfg.AniList.URL, cfg.AniList.MinInterval, &http.Client{Timeout: cfg.HTTP.Timeout})
	repo := anilist.NewCachedRepository(anilist.NewAnimeRepository(anilistClient), store, ttls.Metadata)

	return &app{
		cfg:     cfg,
		store:   store,
		http:    client,
		repo:    repo,
		catalog: catalog.NewStore(store),
		sources: source.NewRegistry(cfg.Sources),
		ttls:    ttls,
		close:   closeStore,
	}, nil
}

// openStore connects to redis when an address is configured and falls back to the in-process store otherwise
func openStore(ctx context.Context, cfg config.RedisConfig) (cache.Store, func(), error) {
	if cfg.Addr == "" {
		log.Warn("No redis address configured, using the in-process store")
		return cache.NewMemoryStore(), func() {}, nil
	}
	store, err := cache.Dial(ctx, cfg.Addr, cfg.Password, cfg.DB)
	if err != nil {
		return nil, nil, err
	}
	log.Info("Connected to redis", "addr", cfg.Addr, "db", cfg.DB)
	return store, func() {
		if err := store.Close(); err != nil {
			log.Warn("Closing redis connection failed", "error", err)
		}
	}, nil
}

func (a *app) server() *api.Server {
	memo := cache.NewTTLCache[extract.PlayerResult](a.cfg.Extract.MemoTTL, a.cfg.Extract.MemoSize)
	player := extract.NewPlayerResolver(a.http, memo, extract.PlayerOptions{
		Timeout: a.cfg.Extract.PlayerTimeout,
		Retries: a.cfg.Extract.PlayerRetries,
		Backoff: a.cfg.Extract.PlayerBackoff,
	})
	issuer := stream.NewIssuer(a.store, a.ttls.StreamToken)

	svc := service.NewAnimeService(service.Dependencies{
		Repo:           a.repo,
		Catalog:        a.catalog,
		Sources:        a.sources,
		Episodes:       episodes.NewRetriever(a.http, a.store, a.ttls.EpisodeList),
		Extractor:      extract.New(a.http, player, a.cfg.Extract.GatewayHosts),
		Issuer:         issuer,
		Store:          a.store,
		TTLs:           a.ttls,
		RequestTimeout: a.cfg.Server.RequestTimeout,
	})

	proxy := stream.NewProxy(issuer, a.store, a.http.Stream(), a.ttls.ProxyResolution,
		stream.DefaultStrategies(a.http, a.cfg.Extract.DirectHosts)...)

	return api.NewServer(a.cfg.Server, svc, proxy)
}

func (a *app) refresher() *feed.Refresher {
	return feed.NewRefresher(a.http, a.store, source.NewSamehadaku(a.cfg.Sources.Samehadaku), a.cfg.Feed)
}

func (a *app) worker() *feed.Worker {
	return feed.NewWorker(a.store, a.repo, a.catalog, a.cfg.Worker)
}

func (a *app) crawler() *crawler.Crawler {
	return crawler.New(a.http, a.catalog, a.cfg.Crawler)
}
