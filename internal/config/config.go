package config // package config loads application configuration from environment variables

import (
	"log"     // log is used to report configuration errors and halt execution
	"os"      // os provides access to environment variables
	"strconv" // strconv converts strings to other types
	"time"    // time parses duration tunables
)

// Config holds all runtime configuration values.  Each field corresponds to
// an environment variable.  The types reflect how the values are used in
// the application: strings for identifiers and secrets, durations for
// timeouts and TTLs.
type Config struct {
	Env          string // application environment (e.g. "dev", "prod")
	Port         string // HTTP port to listen on
	DBUser       string // database username
	DBPass       string // database password (optional)
	DBHost       string // database host address
	DBPort       string // database port number
	DBName       string // database name
	JWTSecret    string // secret used to sign JWTs
	AccessTTLMin int    // access token time-to-live in minutes
	BcryptCost   int    // bcrypt cost for password hashing
	AMQPURL      string // RabbitMQ URL; empty disables event publishing

	ReservationTTL   time.Duration // how long a PENDING reservation holds its units
	ReaperInterval   time.Duration // how often the expiry sweep runs
	ReaperBatch      int           // max reservations expired per sweep
	LockTTL          time.Duration // per-SKU lock lifetime
	LockPollInterval time.Duration // how often lock waiters retry
	LockMaxAttempts  int           // lock acquisition attempts before timing out
}

// Load reads configuration values from environment variables and returns a
// Config.  Required variables are enforced by must() and missing values
// cause the program to exit with a fatal log message.  Tunables fall back
// to defaults when unset.
func Load() Config {
	return Config{
		Env:          must("APP_ENV"),      // environment (dev/test/prod)
		Port:         must("APP_PORT"),     // port to bind the HTTP server
		DBUser:       must("DB_USER"),      // database user
		DBPass:       os.Getenv("DB_PASS"), // database password (empty allowed)
		DBHost:       must("DB_HOST"),      // database host
		DBPort:       must("DB_PORT"),      // database port
		DBName:       must("DB_NAME"),      // database name
		JWTSecret:    must("JWT_SECRET"),   // secret used for signing JWTs
		AccessTTLMin: mustInt("ACCESS_TOKEN_TTL_MIN"),
		BcryptCost:   mustInt("BCRYPT_COST"),
		AMQPURL:      os.Getenv("AMQP_URL"), // broker URL (empty allowed)

		ReservationTTL:   getdur("RESERVATION_TTL", 15*time.Minute),
		ReaperInterval:   getdur("REAPER_INTERVAL", 5*time.Minute),
		ReaperBatch:      getint("REAPER_BATCH", 100),
		LockTTL:          getdur("LOCK_TTL", 5*time.Minute),
		LockPollInterval: getdur("LOCK_POLL_INTERVAL", time.Second),
		LockMaxAttempts:  getint("LOCK_MAX_ATTEMPTS", 30),
	}
}

// must retrieves the value of a required environment variable.  If the
// variable is unset or empty, the application logs a fatal error and exits.
func must(key string) string {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		log.Fatalf("missing required env var: %s", key)
	}
	return v
}

// mustInt is like must() but converts the retrieved string into an integer.
// If conversion fails, the application logs a fatal error and exits.
func mustInt(key string) int {
	s := must(key)
	n, err := strconv.Atoi(s)
	if err != nil {
		log.Fatalf("invalid int for %s: %q", key, s)
	}
	return n
}

// getint reads an optional integer variable, falling back to def when the
// variable is unset.  A malformed value is fatal rather than silently
// replaced with the default.
func getint(key string, def int) int {
	s, ok := os.LookupEnv(key)
	if !ok || s == "" {
		return def
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		log.Fatalf("invalid int for %s: %q", key, s)
	}
	return n
}

// getdur reads an optional duration variable ("30s", "5m", "1h"), falling
// back to def when the variable is unset.
func getdur(key string, def time.Duration) time.Duration {
	s, ok := os.LookupEnv(key)
	if !ok || s == "" {
		return def
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		log.Fatalf("invalid duration for %s: %q", key, s)
	}
	return d
}
