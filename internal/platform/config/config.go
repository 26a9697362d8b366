package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Mail backends.
const (
	MailBackendLog = "log"
	MailBackendSES = "ses"
)

// Server captures process level configuration.
type Server struct {
	Addr         string
	DatabaseURL  string
	Migrate      bool
	AdminToken   string
	CookieSecure bool
	RateLimitOff bool
	SessionTTL   time.Duration
	ChallengeTTL time.Duration
	Redis        RedisConfig
	Mail         MailConfig
}

// RedisConfig configures the applicant session store. An empty URL keeps
// sessions in memory.
type RedisConfig struct {
	URL          string
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

type MailConfig struct {
	Backend string
	Region  string
	From    string
}

// Load reads an optional .env file and then the environment. Variables
// already set win over the file.
func Load(envFiles ...string) (Server, error) {
	if len(envFiles) == 0 {
		envFiles = []string{".env"}
	}
	for _, path := range envFiles {
		if _, err := os.Stat(path); err != nil {
			continue
		}
		if err := godotenv.Load(path); err != nil {
			return Server{}, fmt.Errorf("load %s: %w", path, err)
		}
	}
	return FromEnv()
}

// FromEnv builds a Server config from environment variables so main stays lean.
func FromEnv() (Server, error) {
	cfg := Server{
		Addr:        getEnv("INTAKE_ADDR", ":8080"),
		DatabaseURL: os.Getenv("DATABASE_URL"),
		AdminToken:  os.Getenv("ADMIN_API_TOKEN"),
		Redis: RedisConfig{
			URL:          os.Getenv("REDIS_URL"),
			PoolSize:     10,
			MinIdleConns: 2,
			DialTimeout:  5 * time.Second,
			ReadTimeout:  3 * time.Second,
			WriteTimeout: 3 * time.Second,
		},
		Mail: MailConfig{
			Backend: getEnv("MAIL_BACKEND", MailBackendLog),
			Region:  getEnv("SES_REGION", "eu-central-1"),
			From:    os.Getenv("MAIL_FROM"),
		},
	}

	var err error
	if cfg.Migrate, err = getBool("DB_MIGRATE", false); err != nil {
		return Server{}, err
	}
	if cfg.CookieSecure, err = getBool("COOKIE_SECURE", true); err != nil {
		return Server{}, err
	}
	if cfg.RateLimitOff, err = getBool("RATE_LIMIT_DISABLED", false); err != nil {
		return Server{}, err
	}
	if cfg.SessionTTL, err = getDuration("SESSION_TTL", 12*time.Hour); err != nil {
		return Server{}, err
	}
	if cfg.ChallengeTTL, err = getDuration("CHALLENGE_TTL", 10*time.Minute); err != nil {
		return Server{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Server{}, err
	}
	return cfg, nil
}

// Validate rejects configurations the server cannot start with.
func (c Server) Validate() error {
	if len(c.AdminToken) < 16 {
		return fmt.Errorf("ADMIN_API_TOKEN must be at least 16 characters")
	}
	switch c.Mail.Backend {
	case MailBackendLog:
	case MailBackendSES:
		if c.Mail.From == "" {
			return fmt.Errorf("MAIL_FROM is required for the ses mail backend")
		}
	default:
		return fmt.Errorf("MAIL_BACKEND must be %q or %q", MailBackendLog, MailBackendSES)
	}
	return nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getBool(key string, fallback bool) (bool, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, fmt.Errorf("%s: %w", key, err)
	}
	return b, nil
}

func getDuration(key string, fallback time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("%s must be positive", key)
	}
	return d, nil
}
