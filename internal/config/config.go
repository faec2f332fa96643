package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Default upstream feeds.
const (
	DefaultEarthquakeFeedURL = "https://earthquake.usgs.gov/earthquakes/feed/v1.0/summary/all_month.geojson"
	DefaultFaultLineFeedURL  = "https://raw.githubusercontent.com/fraxen/tectonicplates/master/GeoJSON/PB2002_boundaries.json"
)

// Config holds service configuration loaded from YAML and env.
type Config struct {
	ServerPort string
	LogLevel   string

	EarthquakeFeedURL string
	FaultLineFeedURL  string
	FeedTimeout       time.Duration

	RequestTimeout time.Duration
	CacheTTL       time.Duration
	StaleCacheTTL  time.Duration // 0 disables stale fallback
	CacheBackend   string        // "in_memory" or "memcached"
	WarmInterval   time.Duration // 0 disables periodic warming

	MemcachedAddrs        string
	MemcachedTimeout      time.Duration
	MemcachedMaxIdleConns int

	RetryAttempts  int
	RetryBaseDelay time.Duration
	RetryMaxDelay  time.Duration
	RateLimitRPS   int
	RateLimitBurst int

	CircuitBreakerEnabled          bool
	CircuitBreakerFailureThreshold int
	CircuitBreakerSuccessThreshold int
	CircuitBreakerTimeout          time.Duration

	CORSAllowedOrigins []string

	ShutdownTimeout  time.Duration
	DegradedWindow   time.Duration
	DegradedErrorPct int

	// TileAPIKey is the key for the keyed base layers. Empty is allowed:
	// those tiles fail to load, everything else works.
	TileAPIKey    string
	MapCenter     [2]float64 // lat, lng
	MapZoom       int
	PopupLocation *time.Location
}

type fileConfig struct {
	Server struct {
		Port string `yaml:"port"`
	} `yaml:"server"`

	Log struct {
		Level string `yaml:"level"`
	} `yaml:"log"`

	Feeds struct {
		Earthquakes string `yaml:"earthquakes"`
		FaultLines  string `yaml:"fault_lines"`
		Timeout     string `yaml:"timeout"`
	} `yaml:"feeds"`

	Request struct {
		Timeout string `yaml:"timeout"`
	} `yaml:"request"`

	Cache struct {
		Backend      string `yaml:"backend"`
		TTL          string `yaml:"ttl"`
		StaleTTL     string `yaml:"stale_ttl"`
		WarmInterval string `yaml:"warm_interval"`
		Memcached    struct {
			Addrs        string `yaml:"addrs"`
			Timeout      string `yaml:"timeout"`
			MaxIdleConns int    `yaml:"max_idle_conns"`
		} `yaml:"memcached"`
	} `yaml:"cache"`

	Reliability struct {
		RetryMaxAttempts int    `yaml:"retry_max_attempts"`
		RetryBaseDelay   string `yaml:"retry_base_delay"`
		RetryMaxDelay    string `yaml:"retry_max_delay"`
		RateLimitRPS     int    `yaml:"rate_limit_rps"`
		RateLimitBurst   int    `yaml:"rate_limit_burst"`
		CircuitBreaker   struct {
			Enabled          *bool  `yaml:"enabled"`
			FailureThreshold int    `yaml:"failure_threshold"`
			SuccessThreshold int    `yaml:"success_threshold"`
			Timeout          string `yaml:"timeout"`
		} `yaml:"circuit_breaker"`
	} `yaml:"reliability"`

	CORS struct {
		AllowedOrigins []string `yaml:"allowed_origins"`
	} `yaml:"cors"`

	Shutdown struct {
		Timeout string `yaml:"timeout"`
	} `yaml:"shutdown"`

	Health struct {
		DegradedWindow   string `yaml:"degraded_window"`
		DegradedErrorPct int    `yaml:"degraded_error_pct"`
	} `yaml:"health"`

	Map struct {
		Center        []float64 `yaml:"center"`
		Zoom          int       `yaml:"zoom"`
		PopupTimezone string    `yaml:"popup_timezone"`
	} `yaml:"map"`
}

type secretsFile struct {
	TileAPIKey string `yaml:"tile_api_key"`
}

// Load reads configuration from config/{ENV_NAME}.yaml (default dev) and
// config/secrets.yaml relative to the working directory.
func Load() (*Config, error) {
	cwd, err := os.Getwd()
	if err != nil {
		return nil, fmt.Errorf("config: get working directory: %w", err)
	}
	return LoadFrom(cwd)
}

// LoadFrom is Load rooted at dir. The tile key comes from MAPBOX_ACCESS_TOKEN
// or secrets.yaml tile_api_key.
func LoadFrom(dir string) (*Config, error) {
	env := os.Getenv("ENV_NAME")
	if env == "" {
		env = "dev"
	}

	configPath := filepath.Join(dir, "config", env+".yaml")
	data, err := os.ReadFile(configPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("config file not found: %s", configPath)
		}
		return nil, fmt.Errorf("read config file: %w", err)
	}

	var fc fileConfig
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return nil, fmt.Errorf("parse config file: %w", err)
	}

	cfg := &Config{}
	cfg.ServerPort = fc.Server.Port
	if cfg.ServerPort == "" {
		cfg.ServerPort = "8080"
	}
	cfg.LogLevel = strings.TrimSpace(fc.Log.Level)
	if cfg.LogLevel == "" {
		cfg.LogLevel = "info"
	}

	cfg.TileAPIKey, err = loadTileAPIKey(dir)
	if err != nil {
		return nil, err
	}

	cfg.EarthquakeFeedURL = strings.TrimSpace(fc.Feeds.Earthquakes)
	if cfg.EarthquakeFeedURL == "" {
		cfg.EarthquakeFeedURL = DefaultEarthquakeFeedURL
	}
	cfg.FaultLineFeedURL = strings.TrimSpace(fc.Feeds.FaultLines)
	if cfg.FaultLineFeedURL == "" {
		cfg.FaultLineFeedURL = DefaultFaultLineFeedURL
	}
	cfg.FeedTimeout = parseDurationOrZero(fc.Feeds.Timeout, 10*time.Second)

	cfg.RequestTimeout = parseDuration(fc.Request.Timeout, 15*time.Second)
	cfg.CacheTTL = parseDuration(fc.Cache.TTL, 5*time.Minute)
	cfg.StaleCacheTTL = parseDurationOrZero(fc.Cache.StaleTTL, time.Hour)
	if cfg.StaleCacheTTL < 0 {
		cfg.StaleCacheTTL = 0
	}
	cfg.WarmInterval = parseDurationOrZero(fc.Cache.WarmInterval, 0)
	if cfg.WarmInterval < 0 {
		cfg.WarmInterval = 0
	}
	cfg.CacheBackend = strings.TrimSpace(strings.ToLower(os.Getenv("CACHE_BACKEND")))
	if cfg.CacheBackend == "" {
		cfg.CacheBackend = strings.TrimSpace(strings.ToLower(fc.Cache.Backend))
	}
	if cfg.CacheBackend == "" {
		cfg.CacheBackend = "in_memory"
	}
	cfg.MemcachedAddrs = strings.TrimSpace(os.Getenv("MEMCACHED_ADDRS"))
	if cfg.MemcachedAddrs == "" {
		cfg.MemcachedAddrs = strings.TrimSpace(fc.Cache.Memcached.Addrs)
	}
	if cfg.MemcachedAddrs == "" {
		cfg.MemcachedAddrs = "localhost:11211"
	}
	cfg.MemcachedTimeout = parseDuration(fc.Cache.Memcached.Timeout, 500*time.Millisecond)
	cfg.MemcachedMaxIdleConns = fc.Cache.Memcached.MaxIdleConns
	if cfg.MemcachedMaxIdleConns <= 0 {
		cfg.MemcachedMaxIdleConns = 2
	}

	cfg.RetryAttempts = fc.Reliability.RetryMaxAttempts
	if cfg.RetryAttempts <= 0 {
		cfg.RetryAttempts = 3
	}
	cfg.RetryBaseDelay = parseDuration(fc.Reliability.RetryBaseDelay, 200*time.Millisecond)
	cfg.RetryMaxDelay = parseDuration(fc.Reliability.RetryMaxDelay, 3*time.Second)
	cfg.RateLimitRPS = fc.Reliability.RateLimitRPS
	if cfg.RateLimitRPS <= 0 {
		cfg.RateLimitRPS = 50
	}
	cfg.RateLimitBurst = fc.Reliability.RateLimitBurst
	if cfg.RateLimitBurst <= 0 {
		cfg.RateLimitBurst = 100
	}

	cb := fc.Reliability.CircuitBreaker
	cfg.CircuitBreakerEnabled = true
	if cb.Enabled != nil {
		cfg.CircuitBreakerEnabled = *cb.Enabled
	}
	cfg.CircuitBreakerFailureThreshold = cb.FailureThreshold
	if cfg.CircuitBreakerFailureThreshold <= 0 {
		cfg.CircuitBreakerFailureThreshold = 5
	}
	cfg.CircuitBreakerSuccessThreshold = cb.SuccessThreshold
	if cfg.CircuitBreakerSuccessThreshold <= 0 {
		cfg.CircuitBreakerSuccessThreshold = 1
	}
	cfg.CircuitBreakerTimeout = parseDuration(cb.Timeout, 30*time.Second)

	cfg.CORSAllowedOrigins = fc.CORS.AllowedOrigins
	if len(cfg.CORSAllowedOrigins) == 0 {
		cfg.CORSAllowedOrigins = []string{"*"}
	}

	cfg.ShutdownTimeout = parseDuration(fc.Shutdown.Timeout, 30*time.Second)
	cfg.DegradedWindow = parseDuration(fc.Health.DegradedWindow, 60*time.Second)
	cfg.DegradedErrorPct = fc.Health.DegradedErrorPct
	if cfg.DegradedErrorPct <= 0 {
		cfg.DegradedErrorPct = 5
	}

	cfg.MapCenter = [2]float64{37.09, -95.71}
	if len(fc.Map.Center) == 2 {
		cfg.MapCenter = [2]float64{fc.Map.Center[0], fc.Map.Center[1]}
	} else if len(fc.Map.Center) != 0 {
		return nil, fmt.Errorf("map.center must be [lat, lng], got %v", fc.Map.Center)
	}
	cfg.MapZoom = fc.Map.Zoom
	if cfg.MapZoom <= 0 {
		cfg.MapZoom = 4
	}
	cfg.PopupLocation = time.UTC
	if tz := strings.TrimSpace(fc.Map.PopupTimezone); tz != "" {
		loc, err := time.LoadLocation(tz)
		if err != nil {
			return nil, fmt.Errorf("map.popup_timezone: %w", err)
		}
		cfg.PopupLocation = loc
	}

	if err := validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// loadTileAPIKey reads the tile key from env, then the secrets file. A
// missing key is not an error.
func loadTileAPIKey(dir string) (string, error) {
	if key := strings.TrimSpace(os.Getenv("MAPBOX_ACCESS_TOKEN")); key != "" {
		return key, nil
	}
	secretsPath := filepath.Join(dir, "config", "secrets.yaml")
	data, err := os.ReadFile(secretsPath)
	if err != nil {
		if os.IsNotExist(err) {
			return "", nil
		}
		return "", fmt.Errorf("read secrets file: %w", err)
	}
	var sec secretsFile
	if err := yaml.Unmarshal(data, &sec); err != nil {
		return "", fmt.Errorf("parse secrets file: %w", err)
	}
	return strings.TrimSpace(sec.TileAPIKey), nil
}

// parseDuration parses a duration string and returns defaultVal if parsing fails or result is <= 0.
func parseDuration(s string, defaultVal time.Duration) time.Duration {
	d := parseDurationOrZero(s, defaultVal)
	if d <= 0 {
		return defaultVal
	}
	return d
}

// parseDurationOrZero parses a duration string, returning defaultVal on empty string or parse error.
// Returns zero or negative durations as-is (caller should handle fallback).
func parseDurationOrZero(s string, defaultVal time.Duration) time.Duration {
	s = strings.TrimSpace(s)
	if s == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return defaultVal
	}
	return d
}

// validate performs post-load validation. RequestTimeout is raised above
// FeedTimeout when needed so a request can outlive one upstream call.
func validate(cfg *Config) error {
	if cfg.FeedTimeout <= 0 {
		return fmt.Errorf("feeds.timeout must be positive")
	}
	if cfg.RequestTimeout <= cfg.FeedTimeout {
		cfg.RequestTimeout = cfg.FeedTimeout + time.Second
	}
	switch cfg.CacheBackend {
	case "in_memory", "memcached":
	default:
		return fmt.Errorf("cache.backend must be in_memory or memcached, got %q", cfg.CacheBackend)
	}
	if cfg.StaleCacheTTL > 0 && cfg.StaleCacheTTL < cfg.CacheTTL {
		return fmt.Errorf("cache.stale_ttl (%s) must not be shorter than cache.ttl (%s)", cfg.StaleCacheTTL, cfg.CacheTTL)
	}
	lat, lng := cfg.MapCenter[0], cfg.MapCenter[1]
	if lat < -90 || lat > 90 || lng < -180 || lng > 180 {
		return fmt.Errorf("map.center out of range: [%v, %v]", lat, lng)
	}
	return nil
}
