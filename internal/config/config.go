package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	ListenPort      string        // ex: ":8080"
	ShutdownTimeout time.Duration // ex: 5s

	LogLevel  string // "debug" | "info" | "warn" | "error"
	PrettyLog bool   // true => zap dev (color), false => zap prod (JSON)

	// Backend
	SupabaseURL     string // project URL (ex: https://abc.supabase.co)
	SupabaseAnonKey string // anon key; user scoping comes from the session token
	AccountEmail    string // account the daemon signs in as
	AccountPassword string

	StoreOpTimeout time.Duration // per durable write/delete/list round trip (default: 10s)
	ResyncInterval time.Duration // periodic authoritative resync (default: 15m)

	// Change feed
	FeedTable        string        // table the realtime subscription watches
	FeedReconnectMin time.Duration // initial reconnect backoff (default: 2s)
	FeedReconnectMax time.Duration // max reconnect backoff (default: 30s)

	// Redis snapshot cache (optional, empty addr = disabled)
	RedisAddr           string
	RedisUser           string
	RedisPassword       string
	RedisDB             int
	RedisDialTimeout    time.Duration
	RedisReadTimeout    time.Duration
	RedisWriteTimeout   time.Duration
	RedisPoolSize       int
	RedisConnectTimeout time.Duration
	RedisRetryInterval  time.Duration
	RedisMaxWait        time.Duration
	RedisPingTimeout    time.Duration
	RedisWarnThreshold  int

	SeedFile       string   // path to a bookmarks seed yaml (optional, empty = no import)
	AllowedOrigins []string // CORS origins for the dashboard (empty = same-origin only)
}

func Load() *Config {
	cfg := &Config{
		// Server settings
		ListenPort:      getenv("SHELF_LISTEN_PORT", ":8080"),
		ShutdownTimeout: mustDuration("SHELF_SHUTDOWN_TIMEOUT", 5*time.Second),

		// Logging
		LogLevel:  getenv("SHELF_LOG_LEVEL", "info"),
		PrettyLog: mustBool("SHELF_PRETTY_LOG", true),

		// Backend
		SupabaseURL:     requireEnv("SHELF_SUPABASE_URL"),
		SupabaseAnonKey: requireEnv("SHELF_SUPABASE_ANON_KEY"),
		AccountEmail:    requireEnv("SHELF_ACCOUNT_EMAIL"),
		AccountPassword: requireEnv("SHELF_ACCOUNT_PASSWORD"),
		StoreOpTimeout:  mustDuration("SHELF_STORE_OP_TIMEOUT", 10*time.Second),
		ResyncInterval:  mustDuration("SHELF_RESYNC_INTERVAL", 15*time.Minute),

		// Change feed
		FeedTable:        getenv("SHELF_FEED_TABLE", "bookmarks"),
		FeedReconnectMin: mustDuration("SHELF_FEED_RECONNECT_MIN", 2*time.Second),
		FeedReconnectMax: mustDuration("SHELF_FEED_RECONNECT_MAX", 30*time.Second),

		// Redis settings (optional)
		RedisAddr:           getenv("SHELF_REDIS_ADDR", ""),
		RedisUser:           getenv("SHELF_REDIS_USERNAME", "default"),
		RedisPassword:       getenv("SHELF_REDIS_PASSWORD", ""),
		RedisDB:             getenvInt("SHELF_REDIS_DB", 0),
		RedisDialTimeout:    mustDuration("REDIS_DIAL_TIMEOUT", 5*time.Second),
		RedisReadTimeout:    mustDuration("REDIS_READ_TIMEOUT", 3*time.Second),
		RedisWriteTimeout:   mustDuration("REDIS_WRITE_TIMEOUT", 3*time.Second),
		RedisPoolSize:       getenvInt("REDIS_POOL_SIZE", 10),
		RedisConnectTimeout: mustDuration("REDIS_CONNECT_TIMEOUT", 30*time.Second),
		RedisRetryInterval:  mustDuration("REDIS_RETRY_INTERVAL", 2*time.Second),
		RedisMaxWait:        mustDuration("REDIS_MAX_WAIT", 10*time.Second),
		RedisPingTimeout:    mustDuration("REDIS_PING_TIMEOUT", 5*time.Second),
		RedisWarnThreshold:  getenvInt("REDIS_WARN_THRESHOLD", 3),

		SeedFile:       getenv("SHELF_SEED_FILE", ""),
		AllowedOrigins: getenvSlice("SHELF_ALLOWED_ORIGINS", nil),
	}

	// Log config only in debug mode with redacted sensitive fields
	if cfg.LogLevel == "debug" {
		cfgCopy := *cfg
		cfgCopy.SupabaseAnonKey = "***REDACTED***"
		cfgCopy.AccountPassword = "***REDACTED***"
		if cfg.RedisPassword != "" {
			cfgCopy.RedisPassword = "***REDACTED***"
		}
		log.Printf("[DEBUG] cfg: %+v\n", cfgCopy)
	}

	return cfg
}

// helpers
func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func requireEnv(key string) string {
	v := os.Getenv(key)
	if v == "" {
		panic(fmt.Sprintf("❌ FATAL: required environment variable %s is not set", key))
	}
	return v
}

func getenvInt(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		panic(fmt.Sprintf("❌ FATAL: %s must be an integer, got %q", key, v))
	}
	return n
}

func mustDuration(key string, def time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		panic(fmt.Sprintf("❌ FATAL: %s must be a duration, got %q", key, v))
	}
	return d
}

func mustBool(key string, def bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		panic(fmt.Sprintf("❌ FATAL: %s must be a boolean, got %q", key, v))
	}
	return b
}

func getenvSlice(key string, def []string) []string {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
