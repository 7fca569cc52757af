package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Env      string
	HttpPort string
	LogLevel string
	LogJSON  bool

	StoreDriver    string // minio|aws
	StoreEndpoint  string
	StoreAccessKey string
	StoreSecretKey string
	StoreRegion    string
	StoreUseSSL    bool
	StoreTimeout   time.Duration // per-call deadline for store operations; 0 disables

	UploadExpiry       time.Duration
	UploadTimeout      time.Duration
	MaxMultipartMemory int64
	OwnershipTagKey    string
	TaskWorkers        int

	DBDriver string // sqlite|postgres|none
	DBPath   string // used when DBDriver=sqlite
	DBDsn    string // used when DBDriver=postgres (e.g., DATABASE_URL)

	RedisAddr  string // empty disables the liveness publisher
	ProbeQueue string

	CORSAllowedOrigins []string
	RateLimitRPS       float64
	RateLimitBurst     int
}

var defaults = map[string]any{
	"APP_ENV":              "dev",
	"HTTP_PORT":            "8080",
	"LOG_LEVEL":            "info",
	"LOG_JSON":             true,
	"STORE_DRIVER":         "minio",
	"STORE_ENDPOINT":       "localhost:9000",
	"STORE_ACCESS_KEY":     "minioadmin",
	"STORE_SECRET_KEY":     "minioadmin",
	"STORE_REGION":         "us-east-1",
	"STORE_USE_SSL":        false,
	"STORE_TIMEOUT":        "30s",
	"UPLOAD_EXPIRY":        "1h",
	"UPLOAD_TIMEOUT":       "0s",
	"MAX_MULTIPART_MEMORY": int64(8 << 20),
	"OWNERSHIP_TAG_KEY":    "projectId",
	"TASK_WORKERS":         8,
	"DB_DRIVER":            "sqlite",
	"DB_PATH":              "data/bucketgw.db",
	"DATABASE_URL":         "",
	"DB_DSN":               "",
	"REDIS_ADDR":           "",
	"PROBE_QUEUE":          "bucketgw:liveness",
	"CORS_ALLOWED_ORIGINS": "*",
	"RATE_LIMIT_RPS":       0.0,
	"RATE_LIMIT_BURST":     20,
}

// New returns a viper instance reading the process environment with the
// gateway defaults applied. Callers may bind flags onto it before FromViper.
func New() *viper.Viper {
	v := viper.New()
	for k, def := range defaults {
		v.SetDefault(k, def)
	}
	v.AutomaticEnv()
	return v
}

// Load reads the configuration from the environment.
func Load() (*Config, error) {
	return FromViper(New())
}

func FromViper(v *viper.Viper) (*Config, error) {
	dsn := v.GetString("DATABASE_URL")
	if dsn == "" {
		dsn = v.GetString("DB_DSN")
	}
	cfg := &Config{
		Env:                v.GetString("APP_ENV"),
		HttpPort:           v.GetString("HTTP_PORT"),
		LogLevel:           strings.ToLower(v.GetString("LOG_LEVEL")),
		LogJSON:            v.GetBool("LOG_JSON"),
		StoreDriver:        strings.ToLower(strings.TrimSpace(v.GetString("STORE_DRIVER"))),
		StoreEndpoint:      v.GetString("STORE_ENDPOINT"),
		StoreAccessKey:     v.GetString("STORE_ACCESS_KEY"),
		StoreSecretKey:     v.GetString("STORE_SECRET_KEY"),
		StoreRegion:        v.GetString("STORE_REGION"),
		StoreUseSSL:        v.GetBool("STORE_USE_SSL"),
		StoreTimeout:       v.GetDuration("STORE_TIMEOUT"),
		UploadExpiry:       v.GetDuration("UPLOAD_EXPIRY"),
		UploadTimeout:      v.GetDuration("UPLOAD_TIMEOUT"),
		MaxMultipartMemory: v.GetInt64("MAX_MULTIPART_MEMORY"),
		OwnershipTagKey:    v.GetString("OWNERSHIP_TAG_KEY"),
		TaskWorkers:        v.GetInt("TASK_WORKERS"),
		DBDriver:           strings.ToLower(strings.TrimSpace(v.GetString("DB_DRIVER"))),
		DBPath:             v.GetString("DB_PATH"),
		DBDsn:              dsn,
		RedisAddr:          v.GetString("REDIS_ADDR"),
		ProbeQueue:         v.GetString("PROBE_QUEUE"),
		CORSAllowedOrigins: splitList(v.GetString("CORS_ALLOWED_ORIGINS")),
		RateLimitRPS:       v.GetFloat64("RATE_LIMIT_RPS"),
		RateLimitBurst:     v.GetInt("RATE_LIMIT_BURST"),
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects configurations the gateway cannot start with.
func (c *Config) Validate() error {
	switch c.StoreDriver {
	case "minio", "aws":
	default:
		return fmt.Errorf("config: unknown STORE_DRIVER %q (want minio or aws)", c.StoreDriver)
	}
	switch c.DBDriver {
	case "sqlite", "postgres", "postgresql", "none":
	default:
		return fmt.Errorf("config: unknown DB_DRIVER %q (want sqlite, postgres or none)", c.DBDriver)
	}
	if c.StoreEndpoint == "" && c.StoreDriver == "minio" {
		return fmt.Errorf("config: STORE_ENDPOINT is required for the minio driver")
	}
	if c.OwnershipTagKey == "" {
		return fmt.Errorf("config: OWNERSHIP_TAG_KEY must not be empty")
	}
	if c.UploadExpiry <= 0 || c.UploadExpiry > 7*24*time.Hour {
		return fmt.Errorf("config: UPLOAD_EXPIRY must be within (0, 168h], got %s", c.UploadExpiry)
	}
	if c.StoreTimeout < 0 || c.UploadTimeout < 0 {
		return fmt.Errorf("config: timeouts must not be negative")
	}
	if c.TaskWorkers <= 0 {
		return fmt.Errorf("config: TASK_WORKERS must be positive, got %d", c.TaskWorkers)
	}
	if c.RateLimitRPS < 0 {
		return fmt.Errorf("config: RATE_LIMIT_RPS must not be negative")
	}
	return nil
}

// MirrorEnabled reports whether the bucket side table is configured.
func (c *Config) MirrorEnabled() bool { return c.DBDriver != "none" }

func splitList(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
