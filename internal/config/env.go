package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

type envVar struct {
	name  string
	desc  string
	apply func(*Config, string) error
}

var supportedEnvVars = []envVar{
	{
		// Documentation only.  The config path is read before the config is loaded.
		name:  "OTAKUIN_CONFIG_PATH",
		desc:  "Sets the path to the config file.  Default: OS-specific config directory",
		apply: func(c *Config, s string) error { return nil },
	},
	{
		name:  "OTAKUIN_CONFIG_SERVER_ADDR",
		desc:  "Sets the HTTP listen address.  Default: :3000",
		apply: func(c *Config, s string) error { c.Server.Addr = s; return nil },
	},
	{
		name:  "OTAKUIN_CONFIG_SERVER_API_KEY",
		desc:  "Sets the API key clients must send in the x-api-key header.  Default: None",
		apply: func(c *Config, s string) error { c.Server.APIKey = s; return nil },
	},
	{
		name:  "OTAKUIN_CONFIG_SERVER_API_KEY_ENABLED",
		desc:  "Enables API key checks.  Default: false",
		apply: func(c *Config, s string) error { return parseBool(s, &c.Server.APIKeyEnabled) },
	},
	{
		name:  "OTAKUIN_CONFIG_SERVER_REQUEST_TIMEOUT",
		desc:  "Sets the end-to-end deadline of an aggregate request.  Default: 45s",
		apply: func(c *Config, s string) error { return parseDuration(s, &c.Server.RequestTimeout) },
	},
	{
		name:  "OTAKUIN_CONFIG_REDIS_ADDR",
		desc:  "Sets the redis address.  An empty value keeps the default.  Default: localhost:6379",
		apply: func(c *Config, s string) error { c.Redis.Addr = s; return nil },
	},
	{
		name:  "OTAKUIN_CONFIG_REDIS_PASSWORD",
		desc:  "Sets the redis password.  Default: None",
		apply: func(c *Config, s string) error { c.Redis.Password = s; return nil },
	},
	{
		name:  "OTAKUIN_CONFIG_SOURCES_SAMEHADAKU",
		desc:  "Sets the samehadaku base URL",
		apply: func(c *Config, s string) error { c.Sources.Samehadaku = strings.TrimRight(s, "/"); return nil },
	},
	{
		name:  "OTAKUIN_CONFIG_SOURCES_NIMEGAMI",
		desc:  "Sets the nimegami base URL",
		apply: func(c *Config, s string) error { c.Sources.Nimegami = strings.TrimRight(s, "/"); return nil },
	},
	{
		name:  "OTAKUIN_CONFIG_SOURCES_ANIMASU",
		desc:  "Sets the animasu base URL",
		apply: func(c *Config, s string) error { c.Sources.Animasu = strings.TrimRight(s, "/"); return nil },
	},
	{
		name:  "OTAKUIN_CONFIG_HTTP_PROXY",
		desc:  "Sets a socks5 proxy for outbound scraping.  Default: None",
		apply: func(c *Config, s string) error { c.HTTP.Proxy = s; return nil },
	},
	{
		name:  "OTAKUIN_CONFIG_HTTP_INSECURE_SKIP_VERIFY",
		desc:  "Disables TLS verification for scraped sites.  Default: true",
		apply: func(c *Config, s string) error { return parseBool(s, &c.HTTP.InsecureSkipVerify) },
	},
	{
		name:  "OTAKUIN_CONFIG_LOGGING_LEVEL",
		desc:  "Sets the logging level.  One of: trace, debug, info, warn, error.  Default: info",
		apply: func(c *Config, s string) error { c.Logging.Level = s; return nil },
	},
	{
		name:  "OTAKUIN_CONFIG_LOGGING_FILE_PATH",
		desc:  "Sets the logging file path.  Default: stdout",
		apply: func(c *Config, s string) error { c.Logging.FilePath = s; return nil },
	},
}

func applyEnvVarOverrides(c *Config) error {
	for _, envVar := range supportedEnvVars {
		if value := os.Getenv(envVar.name); value != "" {
			if err := envVar.apply(c, value); err != nil {
				return fmt.Errorf("invalid value for %s: %w", envVar.name, err)
			}
		}
	}
	return nil
}

// EnvVarHelp lists the supported environment variables, one per line
func EnvVarHelp() string {
	var sb strings.Builder
	for _, envVar := range supportedEnvVars {
		sb.WriteString(fmt.Sprintf("  %s\n      %s\n", envVar.name, envVar.desc))
	}
	return sb.String()
}

func parseBool(s string, dst *bool) error {
	v, err := strconv.ParseBool(s)
	if err != nil {
		return err
	}
	*dst = v
	return nil
}

func parseDuration(s string, dst *time.Duration) error {
	v, err := time.ParseDuration(s)
	if err != nil {
		return err
	}
	*dst = v
	return nil
}
