package config

import (
	"dario.cat/mergo"
	"errors"
	"fmt"
	"gopkg.in/yaml.v3"
	"os"
	"path/filepath"
	"time"
)

// Config represents the application configuration
type Config struct {
	Server  ServerConfig  `yaml:"server,omitempty"`
	Redis   RedisConfig   `yaml:"redis,omitempty"`
	Sources SourcesConfig `yaml:"sources,omitempty"`
	HTTP    HTTPConfig    `yaml:"http,omitempty"`
	Cache   CacheConfig   `yaml:"cache,omitempty"`
	Extract ExtractConfig `yaml:"extract,omitempty"`
	AniList AniListConfig `yaml:"anilist,omitempty"`
	Crawler CrawlerConfig `yaml:"crawler,omitempty"`
	Feed    FeedConfig    `yaml:"feed,omitempty"`
	Worker  WorkerConfig  `yaml:"worker,omitempty"`
	Logging LoggingConfig `yaml:"logging,omitempty"`
}

// ServerConfig contains the HTTP API settings
type ServerConfig struct {
	Addr          string `yaml:"addr,omitempty"`
	APIKey        string `yaml:"api_key,omitempty"`
	APIKeyEnabled bool   `yaml:"api_key_enabled,omitempty"`
	// RequestTimeout bounds a whole aggregate request across every source
	RequestTimeout time.Duration `yaml:"request_timeout,omitempty"`
}

// RedisConfig contains the shared cache connection settings.  An empty Addr selects the in-process store.
type RedisConfig struct {
	Addr     string `yaml:"addr,omitempty"`
	Password string `yaml:"password,omitempty"`
	DB       int    `yaml:"db,omitempty"`
}

// SourcesConfig contains the base URL of each scraped site
type SourcesConfig struct {
	Samehadaku string `yaml:"samehadaku,omitempty"`
	Nimegami   string `yaml:"nimegami,omitempty"`
	Animasu    string `yaml:"animasu,omitempty"`
}

// HTTPConfig contains outbound HTTP client settings
type HTTPConfig struct {
	UserAgent          string        `yaml:"user_agent,omitempty"`
	Timeout            time.Duration `yaml:"timeout,omitempty"`
	InsecureSkipVerify bool          `yaml:"insecure_skip_verify,omitempty"`
	// UTLSDomains are hosts that reject Go's TLS fingerprint and are dialled with a browser fingerprint instead
	UTLSDomains []string `yaml:"utls_domains,omitempty"`
	// Proxy is an optional socks5://host:port proxy
	Proxy string `yaml:"proxy,omitempty"`
}

// CacheConfig holds every TTL used against the shared store
type CacheConfig struct {
	EpisodeList     time.Duration `yaml:"episode_list,omitempty"`
	EpisodeStreams  time.Duration `yaml:"episode_streams,omitempty"`
	Embeds          time.Duration `yaml:"embeds,omitempty"`
	StreamToken     time.Duration `yaml:"stream_token,omitempty"`
	Metadata        time.Duration `yaml:"metadata,omitempty"`
	ProxyResolution time.Duration `yaml:"proxy_resolution,omitempty"`
}

// ExtractConfig tunes the embed extractors
type ExtractConfig struct {
	PlayerTimeout time.Duration `yaml:"player_timeout,omitempty"`
	PlayerRetries int           `yaml:"player_retries,omitempty"`
	PlayerBackoff time.Duration `yaml:"player_backoff,omitempty"`
	MemoTTL       time.Duration `yaml:"memo_ttl,omitempty"`
	MemoSize      int           `yaml:"memo_size,omitempty"`
	GatewayHosts  []string      `yaml:"gateway_hosts,omitempty"`
	DirectHosts   []string      `yaml:"direct_hosts,omitempty"`
}

// AniListConfig contains metadata provider settings
type AniListConfig struct {
	URL         string        `yaml:"url,omitempty"`
	MinInterval time.Duration `yaml:"min_interval,omitempty"`
}

// CrawlerConfig controls catalog rebuilds
type CrawlerConfig struct {
	PagesPerBatch int           `yaml:"pages_per_batch,omitempty"`
	BatchDelay    time.Duration `yaml:"batch_delay,omitempty"`
	SourceDelay   time.Duration `yaml:"source_delay,omitempty"`
	MaxPages      int           `yaml:"max_pages,omitempty"`
}

// FeedConfig controls the home and top10 refresh loops
type FeedConfig struct {
	HomePages     int           `yaml:"home_pages,omitempty"`
	HomeInterval  time.Duration `yaml:"home_interval,omitempty"`
	Top10Interval time.Duration `yaml:"top10_interval,omitempty"`
}

// WorkerConfig controls the enrichment worker loop
type WorkerConfig struct {
	PollInterval time.Duration `yaml:"poll_interval,omitempty"`
	ErrorBackoff time.Duration `yaml:"error_backoff,omitempty"`
}

// LoggingConfig contains log related settings
type LoggingConfig struct {
	Level    string `yaml:"level,omitempty"`
	FilePath string `yaml:"file_path,omitempty"`
}

// Load builds a configuration struct from multiple sources using these steps:
// 1. Create a base config with default values
// 2. If no config file exists on disk, save the default config to that location
// 3. Apply 'dynamic' properties, those determined at runtime rather than fixed defaults
// 4. Load & merge the config file, overwriting any defaults with user-specified values
// 5. Apply environment variable overrides
func Load() (*Config, error) {
	cfg := createBaseDefaultConfig()

	configPath, err := getConfigPath()
	if err != nil {
		return nil, fmt.Errorf("unable to determine config file path: %w", err)
	}

	if _, err := os.Stat(configPath); errors.Is(err, os.ErrNotExist) {
		// A read-only filesystem should not stop startup, the defaults are still usable
		_ = save(cfg, configPath)
	}

	applyDynamicDefaults(cfg)

	fileConfig, err := loadFromDisk(configPath)
	if err != nil {
		return nil, err
	}
	if err = mergo.Merge(cfg, fileConfig, mergo.WithOverride); err != nil {
		return nil, fmt.Errorf("error merging config loaded from disk: %w", err)
	}

	if err := applyEnvVarOverrides(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// applyDynamicDefaults sets runtime-determined default values for any properties that haven't been explicitly
// configured.  These are never written into the default config file.
func applyDynamicDefaults(cfg *Config) {
	if port := os.Getenv("PORT"); port != "" {
		cfg.Server.Addr = ":" + port
	}
}

// loadFromDisk loads the YAML config from disk and returns the unmarshalled Config
func loadFromDisk(configPath string) (*Config, error) {
	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("unable to read config file: %w", err)
	}

	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("unable to parse config file: %w", err)
	}

	return cfg, nil
}

func save(cfg *Config, configPath string) error {
	if err := os.MkdirAll(filepath.Dir(configPath), 0700); err != nil {
		return err
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}

	return os.WriteFile(configPath, data, 0600)
}

// getConfigPath returns the path to the config file.  Uses the environment variable override if present, else tries
// to use OS config location defaults.
func getConfigPath() (string, error) {
	if configPath := os.Getenv("OTAKUIN_CONFIG_PATH"); configPath != "" {
		return configPath, nil
	}

	configDir, err := os.UserConfigDir()
	if err != nil {
		return "", err
	}

	return filepath.Join(configDir, "otakuin", "config.yaml"), nil
}

// createBaseDefaultConfig creates a config with all default values
func createBaseDefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Addr:           ":3000",
			RequestTimeout: 45 * time.Second,
		},
		Redis: RedisConfig{
			Addr: "localhost:6379",
		},
		Sources: SourcesConfig{
			Samehadaku: "https://v1.samehadaku.how",
			Nimegami:   "https://nimegami.id",
			Animasu:    "https://v1.animasu.top",
		},
		HTTP: HTTPConfig{
			UserAgent: "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
			Timeout:   10 * time.Second,
			// The scraped sites serve broken certificate chains often enough that verification is off by default
			InsecureSkipVerify: true,
		},
		Cache: CacheConfig{
			EpisodeList:     300 * time.Second,
			EpisodeStreams:  7200 * time.Second,
			Embeds:          3600 * time.Second,
			StreamToken:     21600 * time.Second,
			Metadata:        86400 * time.Second,
			ProxyResolution: time.Hour,
		},
		Extract: ExtractConfig{
			PlayerTimeout: 8 * time.Second,
			PlayerRetries: 2,
			PlayerBackoff: 1500 * time.Millisecond,
			MemoTTL:       5 * time.Minute,
			MemoSize:      512,
			GatewayHosts:  []string{"berkasdrive.com"},
		},
		AniList: AniListConfig{
			URL:         "https://graphql.anilist.co",
			MinInterval: time.Second,
		},
		Crawler: CrawlerConfig{
			PagesPerBatch: 10,
			BatchDelay:    time.Second,
			SourceDelay:   5 * time.Second,
			MaxPages:      500,
		},
		Feed: FeedConfig{
			HomePages:     2,
			HomeInterval:  15 * time.Minute,
			Top10Interval: 6 * time.Hour,
		},
		Worker: WorkerConfig{
			PollInterval: 10 * time.Second,
			ErrorBackoff: 5 * time.Second,
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}
