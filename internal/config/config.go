package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"flight-map-dashboard/internal/model"
)

type Config struct {
	Server   ServerConfig   `yaml:"server"`
	OpenSky  OpenSkyConfig  `yaml:"opensky"`
	Refresh  RefreshConfig  `yaml:"refresh"`
	Throttle ThrottleConfig `yaml:"throttle"`
	Registry RegistryConfig `yaml:"registry"`
	Photo    PhotoConfig    `yaml:"photo"`
	Detail   DetailConfig   `yaml:"detail"`
	Warmup   WarmupConfig   `yaml:"warmup"`
	Logging  LoggingConfig  `yaml:"logging"`
}

type ServerConfig struct {
	Port            int           `yaml:"port"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	IdleTimeout     time.Duration `yaml:"idle_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	AllowedOrigins  []string      `yaml:"allowed_origins"`
	TLSDomains      []string      `yaml:"tls_domains"`
	CertCacheDir    string        `yaml:"cert_cache_dir"`
}

type OpenSkyConfig struct {
	BaseURL        string        `yaml:"base_url"`
	RequestTimeout time.Duration `yaml:"request_timeout"`
	Username       string        `yaml:"username"`
	Password       string        `yaml:"password"`
	MaxAircraft    int           `yaml:"max_aircraft"`
}

type RefreshConfig struct {
	Interval     time.Duration `yaml:"interval"`
	QueryTimeout time.Duration `yaml:"query_timeout"`
}

type ThrottleConfig struct {
	QueriesPerSecond float64 `yaml:"queries_per_second"`
	Burst            int     `yaml:"burst"`
}

type RegistryConfig struct {
	Path string `yaml:"path"` // .csv or .xlsx
}

type PhotoConfig struct {
	BaseURL string        `yaml:"base_url"`
	Timeout time.Duration `yaml:"timeout"`
}

type DetailConfig struct {
	TrackerURL string `yaml:"tracker_url"`
}

type WarmupConfig struct {
	Hosts    []string      `yaml:"hosts"`
	Timeout  time.Duration `yaml:"timeout"`
	Insecure bool          `yaml:"insecure"`
}

type LoggingConfig struct {
	Level string `yaml:"level"` // "DEBUG", "INFO", "WARN", "ERROR"
}

func Load(configPath string) (*Config, error) {
	config := &Config{}

	config.setDefaults()

	if configPath != "" {
		data, err := os.ReadFile(configPath)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}

		if err := yaml.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	config.loadFromEnv()

	if err := config.validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return config, nil
}

func (c *Config) setDefaults() {
	c.Server.Port = 8080
	c.Server.ReadTimeout = 15 * time.Second
	c.Server.WriteTimeout = 15 * time.Second
	c.Server.IdleTimeout = 60 * time.Second
	c.Server.ShutdownTimeout = 30 * time.Second
	c.Server.AllowedOrigins = []string{"*"}
	c.Server.CertCacheDir = "certs"

	c.OpenSky.BaseURL = "https://opensky-network.org/api"
	c.OpenSky.RequestTimeout = 10 * time.Second
	c.OpenSky.MaxAircraft = model.MaxAircraft

	c.Refresh.Interval = 10 * time.Second
	c.Refresh.QueryTimeout = 15 * time.Second

	c.Throttle.QueriesPerSecond = 1
	c.Throttle.Burst = 5

	c.Registry.Path = "data/aircraftDatabase.csv"

	c.Photo.BaseURL = "https://www.jetphotos.com/photo/keyword"
	c.Photo.Timeout = 5 * time.Second

	c.Detail.TrackerURL = "https://www.flightradar24.com"

	c.Warmup.Hosts = []string{"https://sy-apis.onrender.com/"}
	c.Warmup.Timeout = 1 * time.Second
	c.Warmup.Insecure = true

	c.Logging.Level = "INFO"
}

func (c *Config) loadFromEnv() {
	if port := os.Getenv("PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			c.Server.Port = p
		}
	}

	if baseURL := os.Getenv("OPENSKY_BASE_URL"); baseURL != "" {
		c.OpenSky.BaseURL = baseURL
	}

	if username := os.Getenv("OPENSKY_USERNAME"); username != "" {
		c.OpenSky.Username = username
	}

	if password := os.Getenv("OPENSKY_PASSWORD"); password != "" {
		c.OpenSky.Password = password
	}

	if logLevel := os.Getenv("LOG_LEVEL"); logLevel != "" {
		c.Logging.Level = strings.ToUpper(logLevel)
	}

	if interval := os.Getenv("REFRESH_INTERVAL"); interval != "" {
		if d, err := time.ParseDuration(interval); err == nil {
			c.Refresh.Interval = d
		}
	}

	if path := os.Getenv("REGISTRY_PATH"); path != "" {
		c.Registry.Path = path
	}

	if hosts := os.Getenv("WARMUP_HOSTS"); hosts != "" {
		c.Warmup.Hosts = splitList(hosts)
	}

	if domains := os.Getenv("TLS_DOMAINS"); domains != "" {
		c.Server.TLSDomains = splitList(domains)
	}
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func (c *Config) validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("server port must be between 1 and 65535")
	}

	if c.OpenSky.BaseURL == "" {
		return fmt.Errorf("opensky base URL cannot be empty")
	}

	if c.OpenSky.MaxAircraft < 1 || c.OpenSky.MaxAircraft > model.MaxAircraft {
		return fmt.Errorf("opensky max aircraft must be between 1 and %d", model.MaxAircraft)
	}

	if c.Refresh.Interval < time.Second {
		return fmt.Errorf("refresh interval must be at least 1s")
	}

	if c.Throttle.QueriesPerSecond <= 0 {
		return fmt.Errorf("throttle queries per second must be positive")
	}

	if c.Throttle.Burst < 1 {
		return fmt.Errorf("throttle burst must be at least 1")
	}

	if c.Logging.Level != "DEBUG" && c.Logging.Level != "INFO" && c.Logging.Level != "WARN" && c.Logging.Level != "ERROR" {
		return fmt.Errorf("log level must be 'DEBUG', 'INFO', 'WARN', or 'ERROR'")
	}

	return nil
}

// Addr is the listen address for the HTTP server.
func (c *Config) Addr() string {
	return fmt.Sprintf(":%d", c.Server.Port)
}
