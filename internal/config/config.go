package config

import (
	"fmt"
	"strings"
	"time"
	_ "time/tzdata"

	"github.com/spf13/viper"
)

type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Log       LogConfig       `mapstructure:"log"`
	DB        DBConfig        `mapstructure:"db"`
	Capture   CaptureConfig   `mapstructure:"capture"`
	API       APIConfig       `mapstructure:"api"`
	Notify    NotifyConfig    `mapstructure:"notify"`
	Proxy     ProxyConfig     `mapstructure:"proxy"`
	Transform TransformConfig `mapstructure:"transform"`
	Metrics   MetricsConfig   `mapstructure:"metrics"`
	// Timezone is the IANA zone used to render datetimes and to interpret
	// query time filters.
	Timezone string `mapstructure:"timezone"`
}

type ServerConfig struct {
	Port         int           `mapstructure:"port"`
	Host         string        `mapstructure:"host"`
	AppName      string        `mapstructure:"app_name"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	IdleTimeout  time.Duration `mapstructure:"idle_timeout"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"` // json or console
}

type DBConfig struct {
	Type     string `mapstructure:"type"` // postgres, oracle, couchbase, mongodb, sqlite, mysql, memory
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	Database string `mapstructure:"database"`
	// DSN overrides the connection string built from the fields above. For
	// sqlite it is the database file.
	DSN  string `mapstructure:"dsn"`
	Pool struct {
		MaxConns        int           `mapstructure:"max_conns"`
		MinConns        int           `mapstructure:"min_conns"`
		MaxIdleConns    int           `mapstructure:"max_idle_conns"`
		ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	} `mapstructure:"pool"`
}

type CaptureConfig struct {
	Enabled             bool          `mapstructure:"enabled"`
	IgnoreSuccessfulGet bool          `mapstructure:"ignore_successful_get"`
	ErrorPage           bool          `mapstructure:"error_page"`
	PersistTimeout      time.Duration `mapstructure:"persist_timeout"`
	NotifyTimeout       time.Duration `mapstructure:"notify_timeout"`
	// Routes label requests when the handlers are not registered on the
	// serving app, as in proxy mode.
	Routes []RouteConfig `mapstructure:"routes"`
}

type RouteConfig struct {
	Method  string `mapstructure:"method"` // empty or * matches any method
	Path    string `mapstructure:"path"`
	Name    string `mapstructure:"name"` // app:url
	Handler string `mapstructure:"handler"`
}

type APIConfig struct {
	Enabled   bool            `mapstructure:"enabled"`
	Prefix    string          `mapstructure:"prefix"`
	RateLimit RateLimitConfig `mapstructure:"rate_limit"`
}

type RateLimitConfig struct {
	Enabled   bool          `mapstructure:"enabled"`
	Requests  int           `mapstructure:"requests"`
	Window    time.Duration `mapstructure:"window"`
	Burst     int           `mapstructure:"burst"`
	WhiteList []string      `mapstructure:"whitelist"` // IPs or CIDRs
	Storage   struct {
		Type  string      `mapstructure:"type"` // memory or redis
		Redis RedisConfig `mapstructure:"redis"`
	} `mapstructure:"storage"`
}

type RedisConfig struct {
	Host     string        `mapstructure:"host"`
	Port     int           `mapstructure:"port"`
	Password string        `mapstructure:"password"`
	DB       int           `mapstructure:"db"`
	Timeout  time.Duration `mapstructure:"timeout"`
}

type NotifyConfig struct {
	Type    string `mapstructure:"type"` // empty (disabled), log, webhook or redis
	Webhook struct {
		URL     string            `mapstructure:"url"`
		Headers map[string]string `mapstructure:"headers"`
	} `mapstructure:"webhook"`
	Redis struct {
		RedisConfig `mapstructure:",squash"`
		Channel     string `mapstructure:"channel"`
	} `mapstructure:"redis"`
}

type ProxyConfig struct {
	Target                string        `mapstructure:"target"`
	Timeout               time.Duration `mapstructure:"timeout"`
	MaxIdleConns          int           `mapstructure:"max_idle_conns"`
	IdleConnTimeout       time.Duration `mapstructure:"idle_conn_timeout"`
	TLSTimeout            time.Duration `mapstructure:"tls_timeout"`
	ResponseHeaderTimeout time.Duration `mapstructure:"response_header_timeout"`
	MaxConnsPerHost       int           `mapstructure:"max_conns_per_host"`
}

// TransformConfig represents the redaction scripts applied to captured payloads
type TransformConfig struct {
	// Directory containing one sub directory of scripts per service
	ScriptsDir string `mapstructure:"scripts_dir"`
	// Service mappings
	Services map[string]ServiceTransform `mapstructure:"services"`
}

// ServiceTransform binds a request path to a script directory
type ServiceTransform struct {
	// Request path; a trailing * matches any suffix
	URL string `mapstructure:"url"`
	// Service name for script directory
	ServiceName string `mapstructure:"service_name"`
}

type MetricsConfig struct {
	Enabled   bool   `mapstructure:"enabled"`
	Path      string `mapstructure:"path"`
	Namespace string `mapstructure:"namespace"`
}

// LoadConfig reads configPath (optional) and APILOG_ prefixed environment
// variables on top of the defaults, then validates the result.
func LoadConfig(configPath string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("APILOG")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", configPath, err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &config, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("timezone", "UTC")

	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.app_name", "apilog")
	v.SetDefault("server.read_timeout", 30*time.Second)
	v.SetDefault("server.write_timeout", 30*time.Second)
	v.SetDefault("server.idle_timeout", 60*time.Second)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	v.SetDefault("db.type", "memory")
	v.SetDefault("db.host", "localhost")
	v.SetDefault("db.user", "")
	v.SetDefault("db.password", "")
	v.SetDefault("db.database", "apilog")
	v.SetDefault("db.dsn", "")
	v.SetDefault("db.pool.max_conns", 10)
	v.SetDefault("db.pool.min_conns", 2)
	v.SetDefault("db.pool.max_idle_conns", 5)
	v.SetDefault("db.pool.conn_max_lifetime", time.Hour)

	v.SetDefault("capture.enabled", true)
	v.SetDefault("capture.ignore_successful_get", true)
	v.SetDefault("capture.error_page", false)
	v.SetDefault("capture.persist_timeout", 5*time.Second)
	v.SetDefault("capture.notify_timeout", 5*time.Second)

	v.SetDefault("api.enabled", true)
	v.SetDefault("api.prefix", "/_apilog")
	v.SetDefault("api.rate_limit.enabled", false)
	v.SetDefault("api.rate_limit.requests", 60)
	v.SetDefault("api.rate_limit.window", time.Minute)
	v.SetDefault("api.rate_limit.storage.type", "memory")
	v.SetDefault("api.rate_limit.storage.redis.host", "localhost")
	v.SetDefault("api.rate_limit.storage.redis.port", 6379)
	v.SetDefault("api.rate_limit.storage.redis.timeout", 2*time.Second)

	v.SetDefault("notify.type", "")
	v.SetDefault("notify.webhook.url", "")
	v.SetDefault("notify.redis.host", "localhost")
	v.SetDefault("notify.redis.port", 6379)
	v.SetDefault("notify.redis.timeout", 2*time.Second)
	v.SetDefault("notify.redis.channel", "apilog:alerts")

	v.SetDefault("proxy.target", "")
	v.SetDefault("proxy.timeout", 30*time.Second)
	v.SetDefault("proxy.max_idle_conns", 100)
	v.SetDefault("proxy.idle_conn_timeout", 90*time.Second)
	v.SetDefault("proxy.tls_timeout", 10*time.Second)
	v.SetDefault("proxy.response_header_timeout", 30*time.Second)

	v.SetDefault("transform.scripts_dir", "scripts")

	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.path", "/metrics")
	v.SetDefault("metrics.namespace", "apilog")
}

var dbTypes = map[string]bool{
	"postgres": true, "oracle": true, "couchbase": true, "mongodb": true,
	"sqlite": true, "mysql": true, "memory": true,
}

// Validate reports the first configuration error.
func (c *Config) Validate() error {
	if _, err := c.Location(); err != nil {
		return fmt.Errorf("timezone: %w", err)
	}
	if !dbTypes[c.DB.Type] {
		return fmt.Errorf("db.type: unsupported database type %q", c.DB.Type)
	}
	if c.DB.Type == "sqlite" && c.DB.DSN == "" {
		return fmt.Errorf("db.dsn: required for sqlite")
	}
	if c.Capture.PersistTimeout <= 0 {
		return fmt.Errorf("capture.persist_timeout: must be positive")
	}
	if c.Capture.NotifyTimeout <= 0 {
		return fmt.Errorf("capture.notify_timeout: must be positive")
	}
	for i, r := range c.Capture.Routes {
		if !strings.HasPrefix(r.Path, "/") {
			return fmt.Errorf("capture.routes[%d].path: must start with /", i)
		}
	}
	if !strings.HasPrefix(c.API.Prefix, "/") {
		return fmt.Errorf("api.prefix: must start with /")
	}
	if rl := c.API.RateLimit; rl.Enabled {
		if rl.Requests <= 0 || rl.Window <= 0 {
			return fmt.Errorf("api.rate_limit: requests and window must be positive")
		}
		if rl.Storage.Type != "memory" && rl.Storage.Type != "redis" {
			return fmt.Errorf("api.rate_limit.storage.type: unsupported store %q", rl.Storage.Type)
		}
	}
	switch c.Notify.Type {
	case "", "log", "redis":
	case "webhook":
		if c.Notify.Webhook.URL == "" {
			return fmt.Errorf("notify.webhook.url: required for webhook notifier")
		}
	default:
		return fmt.Errorf("notify.type: unsupported notifier %q", c.Notify.Type)
	}
	return nil
}

// Location loads the configured timezone.
func (c *Config) Location() (*time.Location, error) {
	if c.Timezone == "" {
		return time.UTC, nil
	}
	return time.LoadLocation(c.Timezone)
}
