package shared

import (
	"errors"
	"io/fs"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
)

type Config struct {
	AppEnv        string
	LogLevel      string
	HTTPAddr      string
	HTTPTimeout   time.Duration
	MetricsAddr   string
	MySQLDSN      string
	RedisAddr     string
	RedisDB       int
	RedisPass     string
	DraftTTL      time.Duration
	SubmitTimeout time.Duration
	SubmitLockTTL time.Duration
	PricingFile   string
	PhoneRegion   string
	BackendBase   string
	BackendKey    string
	BackendRPS    int
	SyncWorkers   int
	SyncBatch     int
	SyncInterval  time.Duration
}

// Load reads the environment. A .env file in the working directory is applied first;
// variables already set in the process win.
func Load() Config {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		log.Warn().Err(err).Msg("could not read .env")
	}

	atoi := func(k string, def int) int {
		if v := os.Getenv(k); v != "" {
			if n, err := strconv.Atoi(v); err == nil {
				return n
			}
			log.Warn().Str("key", k).Str("value", v).Msg("not an integer, using default")
		}
		return def
	}
	secs := func(k string, def int) time.Duration { return time.Duration(atoi(k, def)) * time.Second }

	c := Config{
		AppEnv:        env("APP_ENV", "prod"),
		LogLevel:      env("LOG_LEVEL", "info"),
		HTTPAddr:      env("HTTP_ADDR", ":8080"),
		HTTPTimeout:   secs("HTTP_TIMEOUT_SECONDS", 15),
		MetricsAddr:   env("METRICS_ADDR", ""),
		MySQLDSN:      env("MYSQL_DSN", "root:root@tcp(localhost:3306)/booking?parseTime=true&charset=utf8mb4,utf8&loc=UTC"),
		RedisAddr:     env("REDIS_ADDR", "localhost:6379"),
		RedisPass:     env("REDIS_PASSWORD", ""),
		RedisDB:       atoi("REDIS_DB", 0),
		DraftTTL:      secs("DRAFT_TTL_SECONDS", 7200),
		SubmitTimeout: secs("SUBMIT_TIMEOUT_SECONDS", 10),
		SubmitLockTTL: secs("SUBMIT_LOCK_SECONDS", 15),
		PricingFile:   env("PRICING_FILE", ""),
		PhoneRegion:   env("PHONE_REGION", "DE"),
		BackendBase:   env("BACKEND_BASE_URL", ""),
		BackendKey:    env("BACKEND_API_KEY", ""),
		BackendRPS:    atoi("BACKEND_RPS", 5),
		SyncWorkers:   atoi("SYNC_WORKERS", 4),
		SyncBatch:     atoi("SYNC_BATCH", 100),
		SyncInterval:  secs("SYNC_INTERVAL_SECONDS", 0),
	}
	if c.SubmitLockTTL <= c.SubmitTimeout {
		// the lock must outlive the submission it guards
		c.SubmitLockTTL = c.SubmitTimeout + 5*time.Second
	}
	if c.SyncWorkers <= 0 {
		c.SyncWorkers = 1
	}
	return c
}

func env(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}
