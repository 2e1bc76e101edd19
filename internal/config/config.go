package config // package config loads application configuration from environment variables

import (
    "log"
    "os"
    "strconv"

    "github.com/joho/godotenv"
)

// Config holds all runtime configuration values.  Each field corresponds to
// an environment variable.
type Config struct {
    Env            string // application environment (e.g. "dev", "prod")
    Port           string // HTTP port to listen on
    DBUser         string // database username
    DBPass         string // database password (optional)
    DBHost         string // database host address
    DBPort         string // database port number
    DBName         string // database name
    DBMigrate      bool   // apply schema on startup
    JWTSecret      string // secret used to sign JWTs
    AccessTTLMin   int    // access token time-to-live in minutes
    RefreshTTLDays int    // refresh token time-to-live in days
    BcryptCost     int    // bcrypt cost for password hashing
    LogLevel       string // logrus level name
    LogFormat      string // "json" or "text"
    RulesFile      string // optional YAML file with booking rules
    RabbitMQURL    string // broker URL; events are disabled when empty
    ConsumerOn     bool   // run the notification consumer in-process
    EventLogDir    string // directory the consumer appends notification lines to
}

// Load reads an optional .env file and then the environment.  Required
// variables are enforced by must(); a missing value halts startup.
func Load() Config {
    // A missing .env is normal outside local development.
    _ = godotenv.Load()

    return Config{
        Env:            must("APP_ENV"),
        Port:           must("APP_PORT"),
        DBUser:         must("DB_USER"),
        DBPass:         os.Getenv("DB_PASS"),
        DBHost:         must("DB_HOST"),
        DBPort:         must("DB_PORT"),
        DBName:         must("DB_NAME"),
        DBMigrate:      envBool("DB_MIGRATE", false),
        JWTSecret:      must("JWT_SECRET"),
        AccessTTLMin:   mustInt("ACCESS_TOKEN_TTL_MIN"),
        RefreshTTLDays: mustInt("REFRESH_TOKEN_TTL_DAYS"),
        BcryptCost:     mustInt("BCRYPT_COST"),
        LogLevel:       envStr("LOG_LEVEL", "info"),
        LogFormat:      envStr("LOG_FORMAT", "json"),
        RulesFile:      os.Getenv("BOOKING_RULES_FILE"),
        RabbitMQURL:    rabbitURL(),
        ConsumerOn:     envBool("EVENT_CONSUMER_ENABLED", false),
        EventLogDir:    envStr("EVENT_LOG_DIR", "logs"),
    }
}

// rabbitURL honours both RABBITMQ_URL and the older AMQP_URL name.
func rabbitURL() string {
    if v := os.Getenv("RABBITMQ_URL"); v != "" {
        return v
    }
    return os.Getenv("AMQP_URL")
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
func mustInt(key string) int {
    s := must(key)
    n, err := strconv.Atoi(s)
    if err != nil {
        log.Fatalf("invalid int for %s: %q", key, s)
    }
    return n
}
