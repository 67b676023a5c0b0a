package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds application configuration loaded from environment.
type Config struct {
	Kafka struct {
		Broker  string
		Topic   string
		GroupID string
	}
	DB struct {
		DSN string
	}
	Redis struct {
		URL string
	}
	API struct {
		Port     string
		BasePath string
	}
	Auth struct {
		JWTSecret  string
		CookieName string
	}
	Logging struct {
		Dir   string
		Level string
	}
	Notification struct {
		QueueSize  int
		MaxWorkers int
	}
	Push struct {
		TTL              time.Duration
		RateLimit        int
		ApprovalTokenTTL time.Duration
	}
	Webhook struct {
		Timeout    time.Duration
		AllowLocal bool
	}
	Stream struct {
		HeartbeatInterval time.Duration
		MaxConnsPerUser   int
	}
}

// Load reads environment variables, applies defaults, and returns a Config.
func Load() (Config, error) {
	// Load .env if present
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		return Config{}, fmt.Errorf("failed to load .env file: %w", err)
	}

	var cfg Config

	// Kafka settings
	cfg.Kafka.Broker = os.Getenv("KAFKA_BROKER")
	cfg.Kafka.Topic = os.Getenv("KAFKA_TOPIC")
	cfg.Kafka.GroupID = os.Getenv("KAFKA_GROUP_ID")

	// Storage
	cfg.DB.DSN = os.Getenv("DB_DSN")
	cfg.Redis.URL = os.Getenv("REDIS_URL")

	// API settings
	cfg.API.Port = os.Getenv("API_PORT")
	cfg.API.BasePath = os.Getenv("API_BASE_PATH")
	cfg.Auth.JWTSecret = os.Getenv("JWT_SECRET")
	cfg.Auth.CookieName = os.Getenv("SESSION_COOKIE_NAME")

	cfg.Logging.Dir = os.Getenv("LOG_DIR")
	cfg.Logging.Level = os.Getenv("LOG_LEVEL")

	// Worker settings
	if qs, err := strconv.Atoi(os.Getenv("QUEUE_SIZE")); err == nil {
		cfg.Notification.QueueSize = qs
	}
	if mw, err := strconv.Atoi(os.Getenv("MAX_WORKERS")); err == nil {
		cfg.Notification.MaxWorkers = mw
	}

	var err error
	if cfg.Push.TTL, err = durationEnv("PUSH_TTL", 60*time.Second); err != nil {
		return Config{}, err
	}
	if cfg.Push.ApprovalTokenTTL, err = durationEnv("APPROVAL_TOKEN_TTL", 300*time.Second); err != nil {
		return Config{}, err
	}
	if rl, err := strconv.Atoi(os.Getenv("PUBLISH_RATE_LIMIT")); err == nil {
		cfg.Push.RateLimit = rl
	}
	if cfg.Webhook.Timeout, err = durationEnv("WEBHOOK_TIMEOUT", 10*time.Second); err != nil {
		return Config{}, err
	}
	// SSRF protection stays on unless explicitly disabled.
	if v := os.Getenv("ALLOW_LOCAL_WEBHOOKS"); v != "" {
		allow, err := strconv.ParseBool(v)
		if err != nil {
			return Config{}, fmt.Errorf("invalid ALLOW_LOCAL_WEBHOOKS %q: %w", v, err)
		}
		cfg.Webhook.AllowLocal = allow
	}
	if cfg.Stream.HeartbeatInterval, err = durationEnv("HEARTBEAT_INTERVAL", 30*time.Second); err != nil {
		return Config{}, err
	}
	if mc, err := strconv.Atoi(os.Getenv("MAX_LIVE_CONNECTIONS_PER_USER")); err == nil {
		cfg.Stream.MaxConnsPerUser = mc
	}

	// Validate required settings
	missing := []string{}
	if cfg.DB.DSN == "" {
		missing = append(missing, "DB_DSN")
	}
	if cfg.Auth.JWTSecret == "" {
		missing = append(missing, "JWT_SECRET")
	}
	if len(missing) > 0 {
		return Config{}, fmt.Errorf("missing required configurations: %v", missing)
	}

	applyDefaults(&cfg)
	return cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.Redis.URL == "" {
		cfg.Redis.URL = "redis://localhost:6379/0"
	}
	if cfg.API.Port == "" {
		cfg.API.Port = ":8080"
	}
	if cfg.API.BasePath == "" {
		cfg.API.BasePath = "/api/v0"
	}
	if cfg.Auth.CookieName == "" {
		cfg.Auth.CookieName = "session"
	}
	if cfg.Logging.Dir == "" {
		cfg.Logging.Dir = "logs"
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Kafka.GroupID == "" {
		cfg.Kafka.GroupID = "webpush-service"
	}
	if cfg.Notification.QueueSize == 0 {
		cfg.Notification.QueueSize = 500
	}
	if cfg.Notification.MaxWorkers == 0 {
		cfg.Notification.MaxWorkers = 10
	}
	if cfg.Push.RateLimit == 0 {
		cfg.Push.RateLimit = 5
	}
	if cfg.Stream.MaxConnsPerUser == 0 {
		cfg.Stream.MaxConnsPerUser = 10
	}
}

// durationEnv accepts Go durations ("30s") or a bare number of seconds.
func durationEnv(key string, def time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	if secs, err := strconv.Atoi(v); err == nil {
		return time.Duration(secs) * time.Second, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, v, err)
	}
	return d, nil
}
