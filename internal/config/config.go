package config

import (
	"errors"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

var (
	ErrMissingDatabaseURL = errors.New("DATABASE_URL is required")
	ErrMissingAPIKey      = errors.New("SECTORBOARD_API_KEY is required")
)

type Config struct {
	Addr        string
	DatabaseURL string
	// APIKey must accompany every non-health request in the apikey header.
	APIKey     string
	JWTSecret  string
	AccessTTL  time.Duration
	RefreshTTL time.Duration
	CORSOrigin string
	LogLevel   string

	RealtimeDebounce time.Duration
	SearchDebounce   time.Duration
	SearchLimit      int
	InvitationTTL    time.Duration
	PublicURL        string

	MeiliURL       string
	MeiliMasterKey string
	// SMTP - email disabled when SMTPHost is empty
	SMTPHost     string
	SMTPPort     string
	SMTPUsername string
	SMTPPassword string
	SMTPFrom     string
	SMTPFromName string

	RedisURL     string
	RedisChannel string
}

// Load reads an optional .env file and then the process environment.
// Values already present in the environment win over the file.
func Load(envFiles ...string) Config {
	if len(envFiles) == 0 {
		envFiles = []string{".env"}
	}
	for _, file := range envFiles {
		_ = godotenv.Load(file)
	}

	return Config{
		Addr:             getenv("API_ADDR", ":8787"),
		DatabaseURL:      strings.TrimSpace(os.Getenv("DATABASE_URL")),
		APIKey:           strings.TrimSpace(os.Getenv("SECTORBOARD_API_KEY")),
		JWTSecret:        getenv("SECTORBOARD_JWT_SECRET", "sectorboard-dev-secret"),
		AccessTTL:        time.Duration(getenvInt("SECTORBOARD_ACCESS_TTL_SECONDS", 900)) * time.Second,
		RefreshTTL:       time.Duration(getenvInt("SECTORBOARD_REFRESH_TTL_SECONDS", 2592000)) * time.Second,
		CORSOrigin:       getenv("SECTORBOARD_CORS_ORIGIN", "*"),
		LogLevel:         getenv("LOG_LEVEL", "info"),
		RealtimeDebounce: time.Duration(getenvInt("SECTORBOARD_REALTIME_DEBOUNCE_MS", 300)) * time.Millisecond,
		SearchDebounce:   time.Duration(getenvInt("SECTORBOARD_SEARCH_DEBOUNCE_MS", 250)) * time.Millisecond,
		SearchLimit:      getenvInt("SECTORBOARD_SEARCH_LIMIT", 20),
		InvitationTTL:    time.Duration(getenvInt("SECTORBOARD_INVITATION_TTL_HOURS", 168)) * time.Hour,
		PublicURL:        getenv("SECTORBOARD_PUBLIC_URL", "http://localhost:5173"),
		MeiliURL:         getenv("MEILI_URL", ""),
		MeiliMasterKey:   getenv("MEILI_MASTER_KEY", ""),
		SMTPHost:         getenv("SMTP_HOST", ""),
		SMTPPort:         getenv("SMTP_PORT", "587"),
		SMTPUsername:     getenv("SMTP_USERNAME", ""),
		SMTPPassword:     getenv("SMTP_PASSWORD", ""),
		SMTPFrom:         getenv("SMTP_FROM", ""),
		SMTPFromName:     getenv("SMTP_FROM_NAME", "SectorBoard"),
		RedisURL:         getenv("REDIS_URL", "redis://localhost:6379/0"),
		RedisChannel:     getenv("SECTORBOARD_REDIS_CHANNEL", "sectorboard:changes"),
	}
}

// Validate reports every missing mandatory setting.
func (c Config) Validate() error {
	var errs []error
	if c.DatabaseURL == "" {
		errs = append(errs, ErrMissingDatabaseURL)
	}
	if c.APIKey == "" {
		errs = append(errs, ErrMissingAPIKey)
	}
	return errors.Join(errs...)
}

func getenv(key, fallback string) string {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	return value
}

func getenvInt(key string, fallback int) int {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return parsed
}
