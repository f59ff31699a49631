package config

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"golang.org/x/text/language"
	"gopkg.in/yaml.v3"
)

// Cache and spatial backend names.
const (
	CacheInMemory  = "in_memory"
	CacheMemcached = "memcached"
	CacheRedis     = "redis"
	CacheSQLite    = "sqlite"

	SpatialMemory  = "memory"
	SpatialPostGIS = "postgis"
	SpatialNone    = "none"
)

// Config holds service configuration loaded from YAML and env.
type Config struct {
	ServerPort string

	RequestTimeout                time.Duration
	MaxPoints                     int
	ShutdownTimeout               time.Duration
	ShutdownInFlightTimeout       time.Duration
	ShutdownInFlightCheckInterval time.Duration

	// Pipeline
	BatchSize              int
	MaxConcurrentBatches   int
	RequestsPerWindow      int
	WindowDuration         time.Duration
	MaxRetries             int
	InitialDelay           time.Duration
	DropUnresolved         bool
	EscalateUnresolvedOnly bool
	Coalesce               bool

	// Provider
	ProviderAccessToken string
	ProviderURL         string
	ProviderPath        string
	ProviderLanguage    string
	ProviderTimeout     time.Duration

	CircuitBreakerEnabled          bool
	CircuitBreakerFailureThreshold int
	CircuitBreakerSuccessThreshold int
	CircuitBreakerTimeout          time.Duration

	// Cache
	CacheBackend          string
	CacheTTL              time.Duration
	MemcachedAddrs        string
	MemcachedTimeout      time.Duration
	MemcachedMaxIdleConns int
	RedisAddr             string
	RedisDB               int
	SQLitePath            string

	// Spatial
	SpatialBackend string
	BoundariesPath string
	NameProperty   string
	StateProperty  string
	RegionProperty string
	Country        string
	PostgresDSN    string
	PostGISTable   string

	// Inbound /enrich throttling; RateLimitRPS 0 disables it.
	RateLimitRPS   int
	RateLimitBurst int

	DegradedWindow      time.Duration
	DegradedErrorPct    int
	DegradedMinRequests int
}

type fileConfig struct {
	Server struct {
		Port string `yaml:"port"`
	} `yaml:"server"`

	Request struct {
		Timeout   string `yaml:"timeout"`
		MaxPoints int    `yaml:"max_points"`
	} `yaml:"request"`

	Pipeline struct {
		BatchSize              int    `yaml:"batch_size"`
		MaxConcurrentBatches   int    `yaml:"max_concurrent_batches"`
		RequestsPerWindow      int    `yaml:"requests_per_window"`
		WindowDuration         string `yaml:"window_duration"`
		MaxRetries             int    `yaml:"max_retries"`
		InitialDelay           string `yaml:"initial_delay"`
		DropUnresolved         *bool  `yaml:"drop_unresolved"`
		EscalateUnresolvedOnly bool   `yaml:"escalate_unresolved_only"`
		Coalesce               bool   `yaml:"coalesce"`
	} `yaml:"pipeline"`

	Provider struct {
		URL            string `yaml:"url"`
		Path           string `yaml:"path"`
		Language       string `yaml:"language"`
		Timeout        string `yaml:"timeout"`
		CircuitBreaker struct {
			Enabled          bool   `yaml:"enabled"`
			FailureThreshold int    `yaml:"failure_threshold"`
			SuccessThreshold int    `yaml:"success_threshold"`
			Timeout          string `yaml:"timeout"`
		} `yaml:"circuit_breaker"`
	} `yaml:"provider"`

	Cache struct {
		Backend   string `yaml:"backend"`
		TTL       string `yaml:"ttl"`
		Memcached struct {
			Addrs        string `yaml:"addrs"`
			Timeout      string `yaml:"timeout"`
			MaxIdleConns int    `yaml:"max_idle_conns"`
		} `yaml:"memcached"`
		Redis struct {
			Addr string `yaml:"addr"`
			DB   int    `yaml:"db"`
		} `yaml:"redis"`
		SQLite struct {
			Path string `yaml:"path"`
		} `yaml:"sqlite"`
	} `yaml:"cache"`

	Spatial struct {
		Backend        string `yaml:"backend"`
		BoundariesPath string `yaml:"boundaries_path"`
		NameProperty   string `yaml:"name_property"`
		StateProperty  string `yaml:"state_property"`
		RegionProperty string `yaml:"region_property"`
		Country        string `yaml:"country"`
		PostGIS        struct {
			Table string `yaml:"table"`
		} `yaml:"postgis"`
	} `yaml:"spatial"`

	Reliability struct {
		RateLimitRPS   int `yaml:"rate_limit_rps"`
		RateLimitBurst int `yaml:"rate_limit_burst"`
	} `yaml:"reliability"`

	Shutdown struct {
		Timeout               string `yaml:"timeout"`
		InFlightTimeout       string `yaml:"in_flight_timeout"`
		InFlightCheckInterval string `yaml:"in_flight_check_interval"`
	} `yaml:"shutdown"`

	Health struct {
		DegradedWindow      string `yaml:"degraded_window"`
		DegradedErrorPct    int    `yaml:"degraded_error_pct"`
		DegradedMinRequests int    `yaml:"degraded_min_requests"`
	} `yaml:"health"`
}

type secretsFile struct {
	GeocoderAccessToken string `yaml:"geocoder_access_token"`
	PostgresDSN         string `yaml:"postgres_dsn"`
}

// Load reads config/{ENV_NAME}.yaml (default dev) and config/secrets.yaml
// relative to the working directory. Call from project root.
func Load() (*Config, error) {
	cwd, err := os.Getwd()
	if err != nil {
		return nil, eris.Wrap(err, "config: get working directory")
	}
	return LoadFrom(cwd)
}

// LoadFrom is Load with an explicit project root.
func LoadFrom(root string) (*Config, error) {
	env := os.Getenv("ENV_NAME")
	if env == "" {
		env = "dev"
	}

	configPath := filepath.Join(root, "config", env+".yaml")
	data, err := os.ReadFile(configPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, eris.Errorf("config file not found: %s", configPath)
		}
		return nil, eris.Wrap(err, "read config file")
	}

	var fc fileConfig
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return nil, eris.Wrap(err, "parse config file")
	}

	sec, err := readSecrets(filepath.Join(root, "config", "secrets.yaml"))
	if err != nil {
		return nil, err
	}

	cfg := &Config{}

	cfg.ServerPort = fc.Server.Port
	if cfg.ServerPort == "" {
		cfg.ServerPort = "8080"
	}
	cfg.RequestTimeout = parseDuration(fc.Request.Timeout, 120*time.Second)
	cfg.MaxPoints = fc.Request.MaxPoints
	if cfg.MaxPoints <= 0 {
		cfg.MaxPoints = 10000
	}

	cfg.BatchSize = intOr(fc.Pipeline.BatchSize, 55)
	cfg.MaxConcurrentBatches = intOr(fc.Pipeline.MaxConcurrentBatches, 6)
	cfg.RequestsPerWindow = intOr(fc.Pipeline.RequestsPerWindow, 600)
	cfg.WindowDuration = parseDuration(fc.Pipeline.WindowDuration, 60*time.Second)
	cfg.MaxRetries = intOr(fc.Pipeline.MaxRetries, 3)
	cfg.InitialDelay = parseDuration(fc.Pipeline.InitialDelay, time.Second)
	cfg.DropUnresolved = true
	if fc.Pipeline.DropUnresolved != nil {
		cfg.DropUnresolved = *fc.Pipeline.DropUnresolved
	}
	cfg.EscalateUnresolvedOnly = fc.Pipeline.EscalateUnresolvedOnly
	cfg.Coalesce = fc.Pipeline.Coalesce

	cfg.ProviderAccessToken = firstNonEmpty(os.Getenv("GEOCODER_ACCESS_TOKEN"), sec.GeocoderAccessToken)
	if cfg.ProviderAccessToken == "" {
		return nil, eris.New("GEOCODER_ACCESS_TOKEN required (set env or config/secrets.yaml geocoder_access_token)")
	}
	cfg.ProviderURL = firstNonEmpty(strings.TrimSpace(fc.Provider.URL), "https://api.mapbox.com")
	cfg.ProviderPath = firstNonEmpty(strings.TrimSpace(fc.Provider.Path), "/search/geocode/v6/reverse")
	cfg.ProviderLanguage = firstNonEmpty(strings.TrimSpace(fc.Provider.Language), "pt-BR")
	cfg.ProviderTimeout = parseDurationOrZero(fc.Provider.Timeout, 10*time.Second)
	cfg.CircuitBreakerEnabled = fc.Provider.CircuitBreaker.Enabled
	cfg.CircuitBreakerFailureThreshold = intOr(fc.Provider.CircuitBreaker.FailureThreshold, 5)
	cfg.CircuitBreakerSuccessThreshold = intOr(fc.Provider.CircuitBreaker.SuccessThreshold, 2)
	cfg.CircuitBreakerTimeout = parseDuration(fc.Provider.CircuitBreaker.Timeout, 30*time.Second)

	cfg.CacheBackend = envOrLower("CACHE_BACKEND", fc.Cache.Backend, CacheInMemory)
	cfg.CacheTTL = parseDuration(fc.Cache.TTL, 30*24*time.Hour)
	cfg.MemcachedAddrs = firstNonEmpty(strings.TrimSpace(os.Getenv("MEMCACHED_ADDRS")), strings.TrimSpace(fc.Cache.Memcached.Addrs), "localhost:11211")
	cfg.MemcachedTimeout = parseDuration(fc.Cache.Memcached.Timeout, 500*time.Millisecond)
	cfg.MemcachedMaxIdleConns = intOr(fc.Cache.Memcached.MaxIdleConns, 2)
	cfg.RedisAddr = firstNonEmpty(strings.TrimSpace(os.Getenv("REDIS_ADDR")), strings.TrimSpace(fc.Cache.Redis.Addr), "localhost:6379")
	cfg.RedisDB = fc.Cache.Redis.DB
	cfg.SQLitePath = firstNonEmpty(strings.TrimSpace(os.Getenv("SQLITE_PATH")), strings.TrimSpace(fc.Cache.SQLite.Path), "location-cache.db")

	cfg.SpatialBackend = envOrLower("SPATIAL_BACKEND", fc.Spatial.Backend, SpatialNone)
	cfg.BoundariesPath = strings.TrimSpace(fc.Spatial.BoundariesPath)
	cfg.NameProperty = strings.TrimSpace(fc.Spatial.NameProperty)
	cfg.StateProperty = strings.TrimSpace(fc.Spatial.StateProperty)
	cfg.RegionProperty = strings.TrimSpace(fc.Spatial.RegionProperty)
	cfg.Country = strings.TrimSpace(fc.Spatial.Country)
	cfg.PostgresDSN = firstNonEmpty(strings.TrimSpace(os.Getenv("POSTGRES_DSN")), sec.PostgresDSN)
	cfg.PostGISTable = strings.TrimSpace(fc.Spatial.PostGIS.Table)

	cfg.RateLimitRPS = fc.Reliability.RateLimitRPS
	if cfg.RateLimitRPS < 0 {
		cfg.RateLimitRPS = 0
	}
	cfg.RateLimitBurst = fc.Reliability.RateLimitBurst
	if cfg.RateLimitRPS > 0 && cfg.RateLimitBurst <= 0 {
		cfg.RateLimitBurst = cfg.RateLimitRPS
	}

	cfg.ShutdownTimeout = parseDuration(fc.Shutdown.Timeout, 30*time.Second)
	cfg.ShutdownInFlightTimeout = parseDuration(fc.Shutdown.InFlightTimeout, 60*time.Second)
	cfg.ShutdownInFlightCheckInterval = parseDuration(fc.Shutdown.InFlightCheckInterval, 500*time.Millisecond)

	cfg.DegradedWindow = parseDuration(fc.Health.DegradedWindow, 5*time.Minute)
	cfg.DegradedErrorPct = intOr(fc.Health.DegradedErrorPct, 50)
	cfg.DegradedMinRequests = intOr(fc.Health.DegradedMinRequests, 3)

	if err := validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func readSecrets(path string) (secretsFile, error) {
	var sec secretsFile
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return sec, nil
		}
		return sec, eris.Wrap(err, "read secrets file")
	}
	if err := yaml.Unmarshal(data, &sec); err != nil {
		return sec, eris.Wrap(err, "parse secrets file")
	}
	return sec, nil
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
// Zero or negative durations are returned as-is so validate can reject them.
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

func intOr(v, def int) int {
	if v <= 0 {
		return def
	}
	return v
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}

func envOrLower(env, fileVal, def string) string {
	v := strings.TrimSpace(strings.ToLower(os.Getenv(env)))
	if v == "" {
		v = strings.TrimSpace(strings.ToLower(fileVal))
	}
	if v == "" {
		v = def
	}
	return v
}

// validate performs post-load validation. RequestTimeout is raised above
// ProviderTimeout so a single attempt can always finish.
func validate(cfg *Config) error {
	if cfg.ProviderTimeout <= 0 {
		return eris.New("provider.timeout must be positive")
	}
	if cfg.RequestTimeout <= cfg.ProviderTimeout {
		cfg.RequestTimeout = cfg.ProviderTimeout + time.Second
	}
	tag, err := language.Parse(cfg.ProviderLanguage)
	if err != nil {
		return eris.Wrapf(err, "provider.language %q", cfg.ProviderLanguage)
	}
	cfg.ProviderLanguage = tag.String()

	switch cfg.CacheBackend {
	case CacheInMemory, CacheMemcached, CacheRedis, CacheSQLite:
	default:
		return eris.Errorf("cache.backend must be in_memory, memcached, redis or sqlite, got %q", cfg.CacheBackend)
	}

	switch cfg.SpatialBackend {
	case SpatialNone:
	case SpatialMemory:
		if cfg.BoundariesPath == "" {
			return eris.New("spatial.boundaries_path is required for the memory backend")
		}
	case SpatialPostGIS:
		if cfg.PostgresDSN == "" {
			return eris.New("POSTGRES_DSN required for the postgis backend (env or config/secrets.yaml postgres_dsn)")
		}
	default:
		return eris.Errorf("spatial.backend must be memory, postgis or none, got %q", cfg.SpatialBackend)
	}
	return nil
}
