package cache

import (
	"github.com/PizzaHomicide/otakuin/internal/config"
	"time"
)

// TTLs holds the lifetime of every kind of entry in the shared store
type TTLs struct {
	EpisodeList     time.Duration
	EpisodeStreams  time.Duration
	Embeds          time.Duration
	StreamToken     time.Duration
	Metadata        time.Duration
	ProxyResolution time.Duration
}

// NewTTLs reads the TTLs from config.  Unset values fall back to the defaults.
func NewTTLs(cfg config.CacheConfig) TTLs {
	d := DefaultTTLs()
	return TTLs{
		EpisodeList:     orDefault(cfg.EpisodeList, d.EpisodeList),
		EpisodeStreams:  orDefault(cfg.EpisodeStreams, d.EpisodeStreams),
		Embeds:          orDefault(cfg.Embeds, d.Embeds),
		StreamToken:     orDefault(cfg.StreamToken, d.StreamToken),
		Metadata:        orDefault(cfg.Metadata, d.Metadata),
		ProxyResolution: orDefault(cfg.ProxyResolution, d.ProxyResolution),
	}
}

func DefaultTTLs() TTLs {
	return TTLs{
		EpisodeList:     300 * time.Second,
		EpisodeStreams:  7200 * time.Second,
		Embeds:          3600 * time.Second,
		StreamToken:     21600 * time.Second,
		Metadata:        86400 * time.Second,
		ProxyResolution: time.Hour,
	}
}

func orDefault(v, def time.Duration) time.Duration {
	if v <= 0 {
		return def
	}
	return v
}
