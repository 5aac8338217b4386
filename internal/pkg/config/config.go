package config

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sethvargo/go-envconfig"
)

type Config struct {
	Port      string `env:"PORT,       default=8080"`
	Env       string `env:"ENV,        default=development"`
	LogLevel  string `env:"LOG_LEVEL,  default=info"`
	LogPretty bool   `env:"LOG_PRETTY, default=false"`

	Auth     AuthConfig
	Mongo    MongoConfig
	Redis    RedisConfig
	CheckIn  CheckInConfig
	Scan     ScanConfig
	Catalog  CatalogConfig
	Timezone string `env:"TIMEZONE, default=UTC"`
}

type AuthConfig struct {
	JWTSecret string        `env:"JWT_SECRET"`
	TokenTTL  time.Duration `env:"JWT_TTL, default=24h"`
}

type MongoConfig struct {
	URI         string        `env:"MONGO_URI,           default=mongodb://localhost:27017"`
	Database    string        `env:"MONGO_DB,            default=attendance_system"`
	Timeout     time.Duration `env:"MONGO_TIMEOUT,       default=10s"`
	MaxPoolSize uint64        `env:"MONGO_MAX_POOL_SIZE, default=50"`
}

type RedisConfig struct {
	Addr     string `env:"REDIS_ADDR,      default=localhost:6379"`
	Password string `env:"REDIS_PASSWORD"`
	DB       int    `env:"REDIS_DB,        default=0"`
	PoolSize int    `env:"REDIS_POOL_SIZE, default=20"`
}

type CheckInConfig struct {
	DedupWindow         time.Duration `env:"CHECKIN_DEDUP_WINDOW,    default=60s"`
	IssuanceMaxAttempts int           `env:"ISSUANCE_MAX_ATTEMPTS,   default=5"`
	TouchTimeout        time.Duration `env:"TOUCH_TIMEOUT,           default=5s"`
	RatePerMinute       int           `env:"CHECKIN_RATE_PER_MINUTE, default=30"`
}

type ScanConfig struct {
	Workers        int    `env:"SCAN_WORKERS,         default=8"`
	QueueKey       string `env:"SCAN_QUEUE_KEY,       default=iot:scans"`
	SourceEnabled  bool   `env:"SCAN_SOURCE_ENABLED,  default=false"`
	DefaultSubject string `env:"SCAN_DEFAULT_SUBJECT, default=General"`
}

// CatalogConfig lists the subjects and rooms offered by the check-in pickers.
type CatalogConfig struct {
	Subjects []string `env:"SUBJECTS, delimiter=;, default=Math 101;Physics 101;Chemistry 101;Computer Science 101;English 101;History 101;Biology 101;Engineering 101"`
	Rooms    []string `env:"ROOMS,    delimiter=;, default=Room A;Room B;Room C;Room D;Auditorium;Lab 1;Lab 2"`
}

// Load reads configuration from environment variables using go-envconfig.
func Load(ctx context.Context) (*Config, error) {
	return load(ctx, envconfig.OsLookuper())
}

// MustLoad is Load for process startup: it panics on error.
func MustLoad() *Config {
	cfg, err := Load(context.Background())
	if err != nil {
		panic(fmt.Sprintf("config: failed to load configuration: %v", err))
	}
	return cfg
}

func load(ctx context.Context, lookuper envconfig.Lookuper) (*Config, error) {
	var cfg Config
	if err := envconfig.ProcessWith(ctx, &envconfig.Config{Target: &cfg, Lookuper: lookuper}); err != nil {
		return nil, err
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	if c.Auth.JWTSecret == "" && c.Env != "development" && c.Env != "test" {
		return errors.New("JWT_SECRET is required outside development")
	}
	if c.CheckIn.DedupWindow <= 0 {
		return fmt.Errorf("CHECKIN_DEDUP_WINDOW must be positive, got %s", c.CheckIn.DedupWindow)
	}
	if c.Scan.Workers <= 0 {
		return fmt.Errorf("SCAN_WORKERS must be positive, got %d", c.Scan.Workers)
	}
	if _, err := c.Location(); err != nil {
		return err
	}
	return nil
}

// Location resolves TIMEZONE for day boundaries in check-in summaries.
func (c *Config) Location() (*time.Location, error) {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return nil, fmt.Errorf("TIMEZONE %q: %w", c.Timezone, err)
	}
	return loc, nil
}
