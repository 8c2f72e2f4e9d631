package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const keyEnv = "ENV"
const envLocal = "local"

const (
	EngineMeilisearch = "meilisearch"
	EngineLocal       = "local"
)

const (
	defaultIndex            = "site_scp-jp"
	defaultLinkScheme       = "http"
	defaultLinkHostSuffix   = "wikidot.com"
	defaultPollInterval     = 250 * time.Millisecond
	defaultLiveQueryRate    = 20.0
	defaultDiscoveryRate    = 2.0
	defaultKVDBPath         = "./.raven/settings.db"
	defaultLocalIndexFolder = "index.bleve"
)

type Config struct {
	config *viper.Viper
}

func Load(env ...string) (*Config, error) {

	var selected string
	if len(env) > 0 {
		selected = env[0]
	}
	if len(selected) == 0 {
		if selected = os.Getenv(keyEnv); len(selected) == 0 {
			selected = envLocal
		}
	}

	configPath, err := getConfigPath(selected)

	viperConfig := viper.New()
	if err == nil {
		viperConfig.SetConfigFile(configPath)
		if err := viperConfig.ReadInConfig(); err != nil {
			slog.Warn(fmt.Sprintf("error reading config file, %s", err))
		}
	}
	viperConfig.AutomaticEnv()

	cfg := &Config{
		config: viperConfig,
	}

	return cfg, nil
}

// Set overrides a key at runtime; CLI flags use it.
func (c *Config) Set(key string, value any) {
	c.config.Set(key, value)
}

func (c *Config) getString(envKey string, fileKey string) string {
	value := c.config.GetString(envKey)
	if len(value) == 0 {
		value = c.config.GetString(fileKey)
	}

	return value
}

func (c *Config) GetPort() string {
	port := c.getString("PORT", "server.port")
	if len(port) == 0 {
		port = "8080"
	}

	return port
}

// GetSecureCookies marks the session cookie Secure; enable it behind TLS.
func (c *Config) GetSecureCookies() bool {
	if c.config.IsSet("SECURE_COOKIES") {
		return c.config.GetBool("SECURE_COOKIES")
	}
	return c.config.GetBool("server.secure_cookies")
}

func (c *Config) GetKVDBPath() string {
	kvdbPath := c.getString("KVDB_PATH", "database.kvdb_path")
	if len(kvdbPath) == 0 {
		kvdbPath = defaultKVDBPath
	}

	return kvdbPath
}

func (c *Config) GetIndexPath() string {
	indexPath := c.getString("INDEX_PATH", "database.index_path")
	if len(indexPath) == 0 {
		indexPath = defaultLocalIndexFolder
	}

	return indexPath
}

func (c *Config) GetStoragePath() string {
	return c.getString("STORAGE_PATH", "database.storage_path")
}

func (c *Config) GetMeilisearchURL() string {
	return c.getString("MEILISEARCH_API_URL", "meilisearch.url")
}

// GetMeilisearchAPIKey is the fallback credential used until a session saves its own.
func (c *Config) GetMeilisearchAPIKey() string {
	return c.getString("MEILISEARCH_API_KEY", "meilisearch.api_key")
}

func (c *Config) GetDefaultIndex() string {
	index := c.getString("DEFAULT_INDEX", "search.default_index")
	if len(index) == 0 {
		index = defaultIndex
	}

	return index
}

func (c *Config) GetSearchEngine() string {
	engine := strings.ToLower(c.getString("SEARCH_ENGINE", "search.engine"))
	if engine != EngineLocal {
		engine = EngineMeilisearch
	}

	return engine
}

func (c *Config) GetLinkScheme() string {
	scheme := c.getString("LINK_SCHEME", "link.scheme")
	if len(scheme) == 0 {
		scheme = defaultLinkScheme
	}

	return scheme
}

func (c *Config) GetLinkHostSuffix() string {
	suffix := c.getString("LINK_HOST_SUFFIX", "link.host_suffix")
	if len(suffix) == 0 {
		suffix = defaultLinkHostSuffix
	}

	return suffix
}

// GetAllowedOrigins lists the parent origins an embedded page may report its height to.
// EMBED_ALLOWED_ORIGINS is comma separated.
func (c *Config) GetAllowedOrigins() []string {
	var origins []string
	if raw := c.config.GetString("EMBED_ALLOWED_ORIGINS"); len(raw) > 0 {
		origins = strings.Split(raw, ",")
	} else {
		origins = c.config.GetStringSlice("embed.allowed_origins")
	}

	cleaned := make([]string, 0, len(origins))
	for _, origin := range origins {
		origin = strings.TrimSpace(origin)
		if len(origin) > 0 {
			cleaned = append(cleaned, origin)
		}
	}

	return cleaned
}

func (c *Config) GetViewportPollInterval() time.Duration {
	interval := c.config.GetDuration("VIEWPORT_POLL_INTERVAL")
	if interval <= 0 {
		interval = c.config.GetDuration("embed.poll_interval")
	}
	if interval <= 0 {
		interval = defaultPollInterval
	}

	return interval
}

func (c *Config) GetLogLevel() string {
	return c.getString("LOG_LEVEL", "log.level")
}

// GetLiveQueryRate is the number of queries per second a single live session may issue.
func (c *Config) GetLiveQueryRate() float64 {
	rate := c.config.GetFloat64("LIVE_QUERY_RATE")
	if rate <= 0 {
		rate = c.config.GetFloat64("live.query_rate")
	}
	if rate <= 0 {
		rate = defaultLiveQueryRate
	}

	return rate
}

// GetIndexDiscoveryRate is the number of index discovery requests per second the server
// forwards to the engine.
func (c *Config) GetIndexDiscoveryRate() float64 {
	rate := c.config.GetFloat64("INDEX_DISCOVERY_RATE")
	if rate <= 0 {
		rate = c.config.GetFloat64("search.discovery_rate")
	}
	if rate <= 0 {
		rate = defaultDiscoveryRate
	}

	return rate
}

func getProjectRoot() (string, error) {
	currentDir, err := os.Getwd()
	if err != nil {
		return "", fmt.Errorf("failed to get current working directory: %w", err)
	}

	for {
		configDir := filepath.Join(currentDir, "config")
		if info, err := os.Stat(configDir); err == nil && info.IsDir() {
			return currentDir, nil
		}

		parent := filepath.Dir(currentDir)

		if parent == currentDir {
			break
		}

		currentDir = parent
	}

	return "", fmt.Errorf("could not find project root (directory containing 'config' folder)")
}

func getConfigPath(env string) (string, error) {
	configFile := fmt.Sprintf("config.%s.yaml", env)

	projectRoot, err := getProjectRoot()
	if err != nil {
		slog.Warn("failed to find project root with config directory, will use environment variables instead", "err", err.Error())
		return "", fmt.Errorf("failed to find project root: %w", err)
	}
	configPath := filepath.Join(projectRoot, "config", configFile)
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		slog.Warn("failed to find config file within config directory, will use environment variables instead", "err", err.Error())
		return "", fmt.Errorf("config file does not exist: %s", configPath)
	}

	return configPath, nil
}
