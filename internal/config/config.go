package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

const (
	SeedSourceEmbedded = "embedded"
	SeedSourceDatabase = "database"
)

type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Database  DatabaseConfig  `yaml:"database"`
	Redis     RedisConfig     `yaml:"redis"`
	Seed      SeedConfig      `yaml:"seed"`
	Worker    WorkerConfig    `yaml:"worker"`
	Cache     CacheConfig     `yaml:"cache"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
	Log       LogConfig       `yaml:"log"`
}

type ServerConfig struct {
	Host            string        `yaml:"host" env:"HOST" env-default:"localhost"`
	Port            string        `yaml:"port" env:"PORT" env-default:"8080"`
	ReadTimeout     time.Duration `yaml:"read_timeout" env:"READ_TIMEOUT" env-default:"30s"`
	WriteTimeout    time.Duration `yaml:"write_timeout" env:"WRITE_TIMEOUT" env-default:"30s"`
	IdleTimeout     time.Duration `yaml:"idle_timeout" env:"IDLE_TIMEOUT" env-default:"60s"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" env:"SHUTDOWN_TIMEOUT" env-default:"10s"`
	Environment     string        `yaml:"environment" env:"ENVIRONMENT" env-default:"development"`
	CORSOrigins     []string      `yaml:"cors_origins" env:"CORS_ORIGINS" env-default:"http://localhost:5173"`
}

type DatabaseConfig struct {
	Driver          string        `yaml:"driver" env:"DB_DRIVER" env-default:"sqlite"`
	DSN             string        `yaml:"dsn" env:"DB_DSN"`
	MaxOpenConns    int           `yaml:"max_open_conns" env:"DB_MAX_OPEN_CONNS" env-default:"25"`
	MaxIdleConns    int           `yaml:"max_idle_conns" env:"DB_MAX_IDLE_CONNS" env-default:"10"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime" env:"DB_CONN_MAX_LIFETIME" env-default:"1h"`
	ConnMaxIdleTime time.Duration `yaml:"conn_max_idle_time" env:"DB_CONN_MAX_IDLE_TIME" env-default:"30m"`
}

type RedisConfig struct {
	Enabled      bool          `yaml:"enabled" env:"REDIS_ENABLED" env-default:"false"`
	Host         string        `yaml:"host" env:"REDIS_HOST" env-default:"localhost"`
	Port         string        `yaml:"port" env:"REDIS_PORT" env-default:"6379"`
	Password     string        `yaml:"password" env:"REDIS_PASSWORD"`
	DB           int           `yaml:"db" env:"REDIS_DB" env-default:"0"`
	PoolSize     int           `yaml:"pool_size" env:"REDIS_POOL_SIZE" env-default:"10"`
	MinIdleConns int           `yaml:"min_idle_conns" env:"REDIS_MIN_IDLE_CONNS" env-default:"2"`
	MaxRetries   int           `yaml:"max_retries" env:"REDIS_MAX_RETRIES" env-default:"3"`
	DialTimeout  time.Duration `yaml:"dial_timeout" env:"REDIS_DIAL_TIMEOUT" env-default:"5s"`
	ReadTimeout  time.Duration `yaml:"read_timeout" env:"REDIS_READ_TIMEOUT" env-default:"3s"`
	WriteTimeout time.Duration `yaml:"write_timeout" env:"REDIS_WRITE_TIMEOUT" env-default:"3s"`
	KeyPrefix    string        `yaml:"key_prefix" env:"REDIS_KEY_PREFIX" env-default:"taskdash:"`
}

type SeedConfig struct {
	Source string `yaml:"source" env:"SEED_SOURCE" env-default:"embedded"`
}

type WorkerConfig struct {
	Concurrency int           `yaml:"concurrency" env:"WORKER_CONCURRENCY" env-default:"2"`
	PollTimeout time.Duration `yaml:"poll_timeout" env:"WORKER_POLL_TIMEOUT" env-default:"5s"`
	JobTimeout  time.Duration `yaml:"job_timeout" env:"WORKER_JOB_TIMEOUT" env-default:"30s"`
}

type CacheConfig struct {
	StatsTTL           time.Duration `yaml:"stats_ttl" env:"CACHE_STATS_TTL" env-default:"5m"`
	CategoriesTTL      time.Duration `yaml:"categories_ttl" env:"CACHE_CATEGORIES_TTL" env-default:"10m"`
	BreakerMaxFailures int           `yaml:"breaker_max_failures" env:"CACHE_BREAKER_MAX_FAILURES" env-default:"5"`
	BreakerTimeout     time.Duration `yaml:"breaker_timeout" env:"CACHE_BREAKER_TIMEOUT" env-default:"30s"`
}

type RateLimitConfig struct {
	Enabled           bool    `yaml:"enabled" env:"RATE_LIMIT_ENABLED" env-default:"true"`
	RequestsPerSecond float64 `yaml:"requests_per_second" env:"RATE_LIMIT_RPS" env-default:"20"`
	Burst             int     `yaml:"burst" env:"RATE_LIMIT_BURST" env-default:"40"`
}

type LogConfig struct {
	Level  string `yaml:"level" env:"LOG_LEVEL" env-default:"INFO"`
	Format string `yaml:"format" env:"LOG_FORMAT" env-default:"text"`
}

// LoadConfig reads path when it exists and falls back to the environment
// otherwise. Environment variables override values from the file.
func LoadConfig(path string) (*Config, error) {
	var cfg Config

	if path == "" {
		if err := cleanenv.ReadEnv(&cfg); err != nil {
			return nil, fmt.Errorf("cannot read env: %w", err)
		}
	} else if err := cleanenv.ReadConfig(path, &cfg); err != nil {
		var pe *os.PathError
		if !errors.As(err, &pe) {
			return nil, fmt.Errorf("cannot read config %q: %w", path, err)
		}
		cfg = Config{}
		if err := cleanenv.ReadEnv(&cfg); err != nil {
			return nil, fmt.Errorf("cannot read env: %w", err)
		}
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	var errs []error

	switch c.Seed.Source {
	case SeedSourceEmbedded:
	case SeedSourceDatabase:
		if c.Database.DSN == "" {
			errs = append(errs, errors.New("DB_DSN is required when SEED_SOURCE=database"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown seed source %q", c.Seed.Source))
	}

	switch c.Database.Driver {
	case "sqlite", "postgres":
	default:
		errs = append(errs, fmt.Errorf("unsupported database driver %q", c.Database.Driver))
	}

	if c.IsProduction() {
		for _, origin := range c.Server.CORSOrigins {
			if strings.TrimSpace(origin) == "*" {
				errs = append(errs, errors.New("wildcard CORS origin is not allowed in production"))
			}
		}
		if c.Redis.Enabled && c.Redis.Password == "" {
			errs = append(errs, errors.New("redis password is required in production"))
		}
	}

	return errors.Join(errs...)
}

func (c *Config) GetRedisAddr() string {
	return fmt.Sprintf("%s:%s", c.Redis.Host, c.Redis.Port)
}

func (c *Config) GetServerAddr() string {
	return fmt.Sprintf("%s:%s", c.Server.Host, c.Server.Port)
}

func (c *Config) IsProduction() bool {
	return c.Server.Environment == "production"
}
