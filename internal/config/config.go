package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/kjstillabower/location-weather/internal/models"
	"github.com/kjstillabower/location-weather/internal/validation"
)

// Cache backends and geolocation providers accepted in configuration.
const (
	BackendInMemory  = "in_memory"
	BackendSQLite    = "sqlite"
	BackendMemcached = "memcached"
	BackendRedis     = "redis"

	ProviderStatic = "static"
	ProviderIP     = "ip"
	ProviderNone   = "none"
)

// entryValidity is how long a stored entry may be served. Backends with their
// own expiry must retain entries longer than this.
const entryValidity = 10 * time.Minute

// Config holds configuration loaded from YAML, .env and the environment.
type Config struct {
	ServerPort string

	WeatherAPIKey     string
	WeatherAPIURL     string
	WeatherAPITimeout time.Duration

	RequestTimeout                time.Duration
	ShutdownTimeout               time.Duration
	ShutdownInFlightTimeout       time.Duration
	ShutdownInFlightCheckInterval time.Duration

	CacheBackend          string
	CacheKey              string
	CacheRetention        time.Duration
	SQLitePath            string
	MemcachedAddrs        string
	MemcachedTimeout      time.Duration
	MemcachedMaxIdleConns int
	RedisAddr             string
	RedisPassword         string
	RedisDB               int

	GeolocationProvider string
	StaticPosition      models.Coordinates
	IPLookupURL         string
	GeolocationTimeout  time.Duration

	CoalesceEnabled bool
	CoalesceTimeout time.Duration

	CircuitBreakerEnabled          bool
	CircuitBreakerFailureThreshold int
	CircuitBreakerSuccessThreshold int
	CircuitBreakerTimeout          time.Duration

	RateLimitRPS   int
	RateLimitBurst int

	TracingEndpoint string
}

type fileConfig struct {
	Server struct {
		Port string `yaml:"port"`
	} `yaml:"server"`

	WeatherAPI struct {
		URL     string `yaml:"url"`
		Timeout string `yaml:"timeout"`
	} `yaml:"weather_api"`

	Request struct {
		Timeout string `yaml:"timeout"`
	} `yaml:"request"`

	Cache struct {
		Backend   string `yaml:"backend"`
		Key       string `yaml:"key"`
		Retention string `yaml:"retention"`
		SQLite    struct {
			Path string `yaml:"path"`
		} `yaml:"sqlite"`
		Memcached struct {
			Addrs        string `yaml:"addrs"`
			Timeout      string `yaml:"timeout"`
			MaxIdleConns int    `yaml:"max_idle_conns"`
		} `yaml:"memcached"`
		Redis struct {
			Addr string `yaml:"addr"`
			DB   int    `yaml:"db"`
		} `yaml:"redis"`
	} `yaml:"cache"`

	Geolocation struct {
		Provider  string   `yaml:"provider"`
		Latitude  *float64 `yaml:"latitude"`
		Longitude *float64 `yaml:"longitude"`
		IPURL     string   `yaml:"ip_url"`
		Timeout   string   `yaml:"timeout"`
	} `yaml:"geolocation"`

	Reliability struct {
		CoalesceEnabled                *bool  `yaml:"coalesce_enabled"`
		CoalesceTimeout                string `yaml:"coalesce_timeout"`
		CircuitBreakerEnabled          bool   `yaml:"circuit_breaker_enabled"`
		CircuitBreakerFailureThreshold int    `yaml:"circuit_breaker_failure_threshold"`
		CircuitBreakerSuccessThreshold int    `yaml:"circuit_breaker_success_threshold"`
		CircuitBreakerTimeout          string `yaml:"circuit_breaker_timeout"`
		RateLimitRPS                   int    `yaml:"rate_limit_rps"`
		RateLimitBurst                 int    `yaml:"rate_limit_burst"`
	} `yaml:"reliability"`

	Shutdown struct {
		Timeout               string `yaml:"timeout"`
		InFlightTimeout       string `yaml:"in_flight_timeout"`
		InFlightCheckInterval string `yaml:"in_flight_check_interval"`
	} `yaml:"shutdown"`

	Tracing struct {
		Endpoint string `yaml:"endpoint"`
	} `yaml:"tracing"`
}

type secretsFile struct {
	WeatherAPIKey string `yaml:"weather_api_key"`
	RedisPassword string `yaml:"redis_password"`
}

// Load reads configuration from config/{ENV_NAME}.yaml (default dev) under the
// working directory. Call from project root.
func Load() (*Config, error) {
	cwd, err := os.Getwd()
	if err != nil {
		return nil, fmt.Errorf("config: get working directory: %w", err)
	}
	return LoadDir(cwd)
}

// LoadDir reads configuration rooted at dir. Secrets and overrides are looked
// up in the process environment first, then in dir/.env, then in
// config/secrets.yaml.
func LoadDir(dir string) (*Config, error) {
	dotenv, err := readDotEnv(filepath.Join(dir, ".env"))
	if err != nil {
		return nil, err
	}
	lookup := func(key string) string {
		if v := strings.TrimSpace(os.Getenv(key)); v != "" {
			return v
		}
		return strings.TrimSpace(dotenv[key])
	}

	env := lookup("ENV_NAME")
	if env == "" {
		env = "dev"
	}
	configPath := filepath.Join(dir, "config", env+".yaml")
	data, err := os.ReadFile(configPath)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("config file not found: %s", configPath)
		}
		return nil, fmt.Errorf("read config file: %w", err)
	}

	var fc fileConfig
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return nil, fmt.Errorf("parse config file: %w", err)
	}

	sec, err := readSecrets(filepath.Join(dir, "config", "secrets.yaml"))
	if err != nil {
		return nil, err
	}

	cfg := &Config{}

	cfg.ServerPort = firstNonEmpty(lookup("PORT"), fc.Server.Port, "8080")

	cfg.WeatherAPIKey = firstNonEmpty(lookup("WEATHER_API_KEY"), sec.WeatherAPIKey)
	if cfg.WeatherAPIKey == "" {
		return nil, fmt.Errorf("WEATHER_API_KEY required (set env, .env or config/secrets.yaml weather_api_key)")
	}
	cfg.WeatherAPIURL = firstNonEmpty(fc.WeatherAPI.URL, "https://api.openweathermap.org/data/2.5/weather")
	cfg.WeatherAPITimeout = parseDurationOrZero(fc.WeatherAPI.Timeout, 5*time.Second)
	cfg.RequestTimeout = parseDuration(fc.Request.Timeout, 10*time.Second)

	cfg.CacheBackend = strings.ToLower(firstNonEmpty(lookup("CACHE_BACKEND"), strings.TrimSpace(fc.Cache.Backend), BackendSQLite))
	cfg.CacheKey = firstNonEmpty(strings.TrimSpace(fc.Cache.Key), "weatherData")
	cfg.CacheRetention = parseDurationOrZero(fc.Cache.Retention, 24*time.Hour)
	cfg.SQLitePath = firstNonEmpty(lookup("SQLITE_PATH"), fc.Cache.SQLite.Path, defaultSQLitePath())
	cfg.MemcachedAddrs = firstNonEmpty(lookup("MEMCACHED_ADDRS"), strings.TrimSpace(fc.Cache.Memcached.Addrs), "localhost:11211")
	cfg.MemcachedTimeout = parseDuration(fc.Cache.Memcached.Timeout, 500*time.Millisecond)
	cfg.MemcachedMaxIdleConns = fc.Cache.Memcached.MaxIdleConns
	if cfg.MemcachedMaxIdleConns <= 0 {
		cfg.MemcachedMaxIdleConns = 2
	}
	cfg.RedisAddr = firstNonEmpty(lookup("REDIS_ADDR"), strings.TrimSpace(fc.Cache.Redis.Addr), "localhost:6379")
	cfg.RedisPassword = firstNonEmpty(lookup("REDIS_PASSWORD"), sec.RedisPassword)
	cfg.RedisDB = fc.Cache.Redis.DB

	cfg.GeolocationProvider = strings.ToLower(firstNonEmpty(lookup("GEOLOCATION_PROVIDER"), strings.TrimSpace(fc.Geolocation.Provider), ProviderIP))
	if fc.Geolocation.Latitude != nil {
		cfg.StaticPosition.Latitude = *fc.Geolocation.Latitude
	}
	if fc.Geolocation.Longitude != nil {
		cfg.StaticPosition.Longitude = *fc.Geolocation.Longitude
	}
	staticSet := fc.Geolocation.Latitude != nil && fc.Geolocation.Longitude != nil
	if lat, lon := lookup("GEO_LATITUDE"), lookup("GEO_LONGITUDE"); lat != "" && lon != "" {
		pos, err := parseCoordinates(lat, lon)
		if err != nil {
			return nil, err
		}
		cfg.StaticPosition = pos
		staticSet = true
	}
	cfg.IPLookupURL = firstNonEmpty(fc.Geolocation.IPURL, "http://ip-api.com/json")
	cfg.GeolocationTimeout = parseDuration(fc.Geolocation.Timeout, 5*time.Second)

	cfg.CoalesceEnabled = true
	if fc.Reliability.CoalesceEnabled != nil {
		cfg.CoalesceEnabled = *fc.Reliability.CoalesceEnabled
	}
	cfg.CoalesceTimeout = parseDuration(fc.Reliability.CoalesceTimeout, 15*time.Second)
	cfg.CircuitBreakerEnabled = fc.Reliability.CircuitBreakerEnabled
	cfg.CircuitBreakerFailureThreshold = fc.Reliability.CircuitBreakerFailureThreshold
	if cfg.CircuitBreakerFailureThreshold <= 0 {
		cfg.CircuitBreakerFailureThreshold = 5
	}
	cfg.CircuitBreakerSuccessThreshold = fc.Reliability.CircuitBreakerSuccessThreshold
	if cfg.CircuitBreakerSuccessThreshold <= 0 {
		cfg.CircuitBreakerSuccessThreshold = 2
	}
	cfg.CircuitBreakerTimeout = parseDuration(fc.Reliability.CircuitBreakerTimeout, 30*time.Second)
	cfg.RateLimitRPS = fc.Reliability.RateLimitRPS
	if cfg.RateLimitRPS < 0 {
		cfg.RateLimitRPS = 0
	}
	cfg.RateLimitBurst = fc.Reliability.RateLimitBurst
	if cfg.RateLimitBurst <= 0 {
		cfg.RateLimitBurst = cfg.RateLimitRPS * 2
	}

	cfg.ShutdownTimeout = parseDuration(fc.Shutdown.Timeout, 10*time.Second)
	cfg.ShutdownInFlightTimeout = parseDuration(fc.Shutdown.InFlightTimeout, 5*time.Second)
	cfg.ShutdownInFlightCheckInterval = parseDuration(fc.Shutdown.InFlightCheckInterval, 100*time.Millisecond)

	cfg.TracingEndpoint = firstNonEmpty(lookup("TRACING_ENDPOINT"), strings.TrimSpace(fc.Tracing.Endpoint))

	if err := validate(cfg, staticSet); err != nil {
		return nil, err
	}
	return cfg, nil
}

func readDotEnv(path string) (map[string]string, error) {
	values, err := godotenv.Read(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return map[string]string{}, nil
		}
		return nil, fmt.Errorf("read .env file: %w", err)
	}
	return values, nil
}

func readSecrets(path string) (secretsFile, error) {
	var sec secretsFile
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return sec, nil
		}
		return sec, fmt.Errorf("read secrets file: %w", err)
	}
	if err := yaml.Unmarshal(data, &sec); err != nil {
		return sec, fmt.Errorf("parse secrets file: %w", err)
	}
	return sec, nil
}

func parseCoordinates(lat, lon string) (models.Coordinates, error) {
	la, err := strconv.ParseFloat(lat, 64)
	if err != nil {
		return models.Coordinates{}, fmt.Errorf("GEO_LATITUDE: %w", err)
	}
	lo, err := strconv.ParseFloat(lon, 64)
	if err != nil {
		return models.Coordinates{}, fmt.Errorf("GEO_LONGITUDE: %w", err)
	}
	return models.Coordinates{Latitude: la, Longitude: lo}, nil
}

func defaultSQLitePath() string {
	dir, err := os.UserCacheDir()
	if err != nil {
		return filepath.Join(".", "data", "weather.db")
	}
	return filepath.Join(dir, "location-weather", "weather.db")
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
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
// Zero or negative durations are returned as-is for validate to reject.
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
// WeatherAPITimeout when needed.
func validate(cfg *Config, staticSet bool) error {
	if cfg.WeatherAPITimeout <= 0 {
		return fmt.Errorf("weather_api.timeout must be positive")
	}
	if cfg.RequestTimeout <= cfg.WeatherAPITimeout {
		cfg.RequestTimeout = cfg.WeatherAPITimeout + time.Second
	}

	switch cfg.CacheBackend {
	case BackendInMemory, BackendSQLite:
	case BackendMemcached, BackendRedis:
		if cfg.CacheRetention <= entryValidity {
			return fmt.Errorf("cache.retention must exceed %s for %s, got %s", entryValidity, cfg.CacheBackend, cfg.CacheRetention)
		}
	default:
		return fmt.Errorf("cache.backend must be in_memory, sqlite, memcached or redis, got %q", cfg.CacheBackend)
	}

	switch cfg.GeolocationProvider {
	case ProviderIP, ProviderNone:
	case ProviderStatic:
		if !staticSet {
			return fmt.Errorf("geolocation.provider static requires latitude and longitude")
		}
		if err := validation.ValidateCoordinates(cfg.StaticPosition); err != nil {
			return fmt.Errorf("geolocation: %w", err)
		}
	default:
		return fmt.Errorf("geolocation.provider must be static, ip or none, got %q", cfg.GeolocationProvider)
	}
	return nil
}
