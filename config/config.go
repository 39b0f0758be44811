package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// Config holds application configuration loaded from environment.
type Config struct {
	Server    ServerConfig
	Database  DatabaseConfig
	Redis     RedisConfig
	JWT       JWTConfig
	AWS       AWSConfig
	Bot       BotConfig
	Scheduler SchedulerConfig
}

// ServerConfig holds dashboard HTTP server settings.
type ServerConfig struct {
	Port         string
	ReadTimeout  int
	WriteTimeout int
}

// DatabaseConfig holds PostgreSQL connection settings.
type DatabaseConfig struct {
	URL      string // if set, used as-is
	Host     string
	Port     string
	User     string
	Password string
	DBName   string
	SSLMode  string
	MaxConns int
}

// RedisConfig holds Redis connection settings.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// JWTConfig holds dashboard token settings.
type JWTConfig struct {
	Secret      string
	ExpireHours int
}

// AWSConfig holds S3 settings for the lottery result archive. An empty
// ResultsBucket disables archiving.
type AWSConfig struct {
	Region          string
	AccessKeyID     string
	SecretAccessKey string
	ResultsBucket   string
	Endpoint        string
}

// BotConfig holds Telegram and lottery settings.
type BotConfig struct {
	Token                string
	AdminIDs             []int64
	WaitlistTimeoutHours int
	// Timezone is used to render closing times.
	Timezone string
	Debug    bool
}

// SchedulerConfig holds the timer poll settings.
type SchedulerConfig struct {
	PollMillis int
}

// DSN returns the PostgreSQL connection string.
func (c DatabaseConfig) DSN() string {
	if c.URL != "" {
		return c.URL
	}
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%s/%s?sslmode=%s",
		c.User, c.Password, c.Host, c.Port, c.DBName, c.SSLMode,
	)
}

// Load reads configuration from environment, with optional .env file.
func Load() (*Config, error) {
	_ = godotenv.Load()      // .env
	_ = godotenv.Load("env") // env (no leading dot)

	cfg := &Config{
		Server: ServerConfig{
			Port:         getEnv("PORT", "8080"),
			ReadTimeout:  getEnvInt("READ_TIMEOUT_SEC", 30),
			WriteTimeout: getEnvInt("WRITE_TIMEOUT_SEC", 30),
		},
		Database: DatabaseConfig{
			URL:      getEnv("DATABASE_URL", ""),
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnv("DB_PORT", "5432"),
			User:     getEnv("DB_USER", "postgres"),
			Password: getEnv("DB_PASSWORD", "postgres"),
			DBName:   getEnv("DB_NAME", "regbot"),
			SSLMode:  getEnv("DB_SSLMODE", "disable"),
			MaxConns: getEnvInt("DB_MAX_CONNS", 0),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", "localhost:6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvInt("REDIS_DB", 0),
		},
		JWT: JWTConfig{
			Secret:      getEnv("JWT_SECRET", "change-me-in-production"),
			ExpireHours: getEnvInt("JWT_EXPIRE_HOURS", 24),
		},
		AWS: AWSConfig{
			Region:          getEnv("AWS_REGION", "us-east-1"),
			AccessKeyID:     getEnv("AWS_ACCESS_KEY_ID", ""),
			SecretAccessKey: getEnv("AWS_SECRET_ACCESS_KEY", ""),
			ResultsBucket:   getEnv("AWS_S3_RESULTS_BUCKET", ""),
			Endpoint:        getEnv("AWS_S3_ENDPOINT", ""),
		},
		Bot: BotConfig{
			Token:                getEnv("BOT_TOKEN", ""),
			AdminIDs:             parseIDs(getEnv("ADMIN_IDS", "")),
			WaitlistTimeoutHours: getEnvInt("WAITLIST_TIMEOUT_HOURS", 24),
			Timezone:             getEnv("TZ_DISPLAY", "UTC"),
			Debug:                getEnv("BOT_DEBUG", "") == "true",
		},
		Scheduler: SchedulerConfig{
			PollMillis: getEnvInt("SCHEDULER_POLL_MS", 1000),
		},
	}
	return cfg, nil
}

// Validate reports settings the bot cannot run without.
func (c *Config) Validate() error {
	var errs []error
	if c.Bot.Token == "" {
		errs = append(errs, errors.New("BOT_TOKEN is required"))
	}
	if c.Bot.WaitlistTimeoutHours <= 0 {
		errs = append(errs, errors.New("WAITLIST_TIMEOUT_HOURS must be positive"))
	}
	return errors.Join(errs...)
}

// parseIDs reads a comma-separated id list; malformed entries are skipped.
func parseIDs(s string) []int64 {
	var out []int64
	for _, v := range strings.Split(s, ",") {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			continue
		}
		out = append(out, id)
	}
	return out
}

func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
