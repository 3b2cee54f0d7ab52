package config // package config loads application configuration from environment variables

import (
	"log"     // log is used to report configuration errors and halt execution
	"os"      // os provides access to environment variables
	"strconv" // strconv parses integer values
	"time"    // time parses duration values
)

// Config holds all runtime configuration values. Each field corresponds to
// an environment variable. The types reflect how the values are used in the
// application: strings for identifiers and secrets, durations for intervals.
type Config struct {
	Env             string        // application environment (e.g. "dev", "prod")
	BotToken        string        // Telegram bot token
	AdminPort       string        // port for the admin/health HTTP server
	DBUser          string        // database username
	DBPass          string        // database password (optional)
	DBHost          string        // database host address
	DBPort          string        // database port number
	DBName          string        // database name
	DBMaxConns      int           // connection pool cap
	DBConnLifetime  time.Duration // connection recycle age
	PollInterval    time.Duration // how often the reminder scheduler polls for due reminders
	DisplayTZ       string        // IANA zone used to interpret and display all user-facing times
	CatalogBaseURL  string        // base URL of the external event catalog API
	CatalogCacheTTL time.Duration // lifetime of cached catalog search results
	ExportDir       string        // directory where export files are written
}

// Load reads configuration values from environment variables and returns a
// Config. Required variables are enforced by must() and missing values cause
// the program to exit with a fatal log message. Everything else falls back
// to a sensible default.
func Load() Config {
	return Config{
		Env:             getenv("APP_ENV", "dev"),
		BotToken:        must("BOT_TOKEN"),
		AdminPort:       getenv("ADMIN_PORT", "8081"),
		DBUser:          must("DB_USER"),
		DBPass:          os.Getenv("DB_PASS"), // empty allowed
		DBHost:          must("DB_HOST"),
		DBPort:          must("DB_PORT"),
		DBName:          must("DB_NAME"),
		DBMaxConns:      mustInt("DB_MAX_CONNS", 10),
		DBConnLifetime:  mustDur("DB_CONN_LIFETIME", "30m"),
		PollInterval:    mustDur("REMINDER_POLL_INTERVAL", "10m"),
		DisplayTZ:       getenv("DISPLAY_TIMEZONE", "Europe/Moscow"),
		CatalogBaseURL:  getenv("CATALOG_BASE_URL", "https://kudago.com/public-api/v1.4"),
		CatalogCacheTTL: mustDur("CATALOG_CACHE_TTL", "10m"),
		ExportDir:       getenv("EXPORT_DIR", "exports"),
	}
}

// must retrieves the value of a required environment variable. If the
// variable is unset or empty, the application logs a fatal error and exits.
func must(key string) string {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		log.Fatalf("missing required env var: %s", key)
	}
	return v
}

// getenv returns the value of an environment variable or the given default
// when the variable is unset or empty.
func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

// mustInt reads an integer-valued variable, falling back to def when unset.
// An unparsable value is treated as a configuration error and exits.
func mustInt(key string, def int) int {
	s := os.Getenv(key)
	if s == "" {
		return def
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		log.Fatalf("invalid integer for %s: %q", key, s)
	}
	return n
}

// mustDur reads a duration-valued variable, falling back to def when unset.
// An unparsable value is treated as a configuration error and exits.
func mustDur(key, def string) time.Duration {
	s := getenv(key, def)
	d, err := time.ParseDuration(s)
	if err != nil {
		log.Fatalf("invalid duration for %s: %q", key, s)
	}
	return d
}
