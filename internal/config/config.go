package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds application configuration loaded from environment.
type Config struct {
	Store struct {
		Driver string // postgres | memory
	}
	DB struct {
		DSN string
	}
	Kafka struct {
		Broker  string
		Topic   string
		GroupID string
	}
	Redis struct {
		URI string
	}
	API struct {
		Port     string
		BasePath string
	}
	Logging struct {
		Dir   string
		Level string
	}
	Dispatch struct {
		QueueSize int
		Workers   int
	}
	Realtime struct {
		MaxConnsPerUser int
		PingInterval    time.Duration
	}
	Evidence struct {
		Driver string // memory | cloudinary | s3
	}
	Cloudinary struct {
		CloudName string
		APIKey    string
		APISecret string
		Folder    string
	}
	S3 struct {
		Bucket    string
		Region    string
		Endpoint  string
		PathStyle bool

		// Static keys for S3-compatible endpoints. Empty uses the default AWS chain.
		AccessKeyID     string
		SecretAccessKey string
	}
	Telegram struct {
		BotToken    string
		StaffChatID int64
		RateLimit   int
	}
}

// Load reads environment variables, applies defaults, and returns a Config.
func Load() (Config, error) {
	// Load .env if present
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		return Config{}, fmt.Errorf("failed to load .env file: %w", err)
	}

	var cfg Config

	cfg.Store.Driver = strings.ToLower(os.Getenv("STORE_DRIVER"))
	cfg.DB.DSN = os.Getenv("DB_DSN")

	// Kafka settings
	cfg.Kafka.Broker = os.Getenv("KAFKA_BROKER")
	cfg.Kafka.Topic = os.Getenv("KAFKA_TOPIC")
	cfg.Kafka.GroupID = os.Getenv("KAFKA_GROUP_ID")

	cfg.Redis.URI = os.Getenv("REDIS_URI")

	// API settings
	cfg.API.Port = os.Getenv("API_PORT")
	cfg.API.BasePath = os.Getenv("API_BASE_PATH")

	cfg.Logging.Dir = os.Getenv("LOG_DIR")
	cfg.Logging.Level = os.Getenv("LOG_LEVEL")

	// Dispatch worker settings
	if qs, err := strconv.Atoi(os.Getenv("DISPATCH_QUEUE_SIZE")); err == nil {
		cfg.Dispatch.QueueSize = qs
	}
	if w, err := strconv.Atoi(os.Getenv("DISPATCH_WORKERS")); err == nil {
		cfg.Dispatch.Workers = w
	}

	if mc, err := strconv.Atoi(os.Getenv("WS_MAX_CONNS_PER_USER")); err == nil {
		cfg.Realtime.MaxConnsPerUser = mc
	}
	if pi, err := time.ParseDuration(os.Getenv("WS_PING_INTERVAL")); err == nil {
		cfg.Realtime.PingInterval = pi
	}

	cfg.Evidence.Driver = strings.ToLower(os.Getenv("EVIDENCE_DRIVER"))
	cfg.Cloudinary.CloudName = os.Getenv("CLOUDINARY_CLOUD_NAME")
	cfg.Cloudinary.APIKey = os.Getenv("CLOUDINARY_API_KEY")
	cfg.Cloudinary.APISecret = os.Getenv("CLOUDINARY_API_SECRET")
	cfg.Cloudinary.Folder = os.Getenv("CLOUDINARY_FOLDER")
	cfg.S3.Bucket = os.Getenv("S3_BUCKET")
	cfg.S3.Region = os.Getenv("S3_REGION")
	cfg.S3.Endpoint = os.Getenv("S3_ENDPOINT")
	cfg.S3.PathStyle = os.Getenv("S3_PATH_STYLE") == "true"
	cfg.S3.AccessKeyID = os.Getenv("S3_ACCESS_KEY_ID")
	cfg.S3.SecretAccessKey = os.Getenv("S3_SECRET_ACCESS_KEY")

	cfg.Telegram.BotToken = os.Getenv("TELEGRAM_BOT_TOKEN")
	if id, err := strconv.ParseInt(os.Getenv("TELEGRAM_STAFF_CHAT_ID"), 10, 64); err == nil {
		cfg.Telegram.StaffChatID = id
	}
	if rl, err := strconv.Atoi(os.Getenv("TELEGRAM_RATE_LIMIT")); err == nil {
		cfg.Telegram.RateLimit = rl
	}

	applyDefaults(&cfg)

	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.Store.Driver == "" {
		cfg.Store.Driver = "postgres"
	}
	if cfg.Kafka.Topic == "" {
		cfg.Kafka.Topic = "campus_events"
	}
	if cfg.Kafka.GroupID == "" {
		cfg.Kafka.GroupID = "violation-service"
	}
	if cfg.API.Port == "" {
		cfg.API.Port = ":9191"
	}
	if cfg.API.BasePath == "" {
		cfg.API.BasePath = "/api/v0"
	}
	if cfg.Logging.Dir == "" {
		cfg.Logging.Dir = "logs"
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Dispatch.QueueSize == 0 {
		cfg.Dispatch.QueueSize = 500
	}
	if cfg.Dispatch.Workers == 0 {
		cfg.Dispatch.Workers = 4
	}
	if cfg.Realtime.MaxConnsPerUser == 0 {
		cfg.Realtime.MaxConnsPerUser = 10
	}
	if cfg.Realtime.PingInterval == 0 {
		cfg.Realtime.PingInterval = 30 * time.Second
	}
	if cfg.Evidence.Driver == "" {
		cfg.Evidence.Driver = "memory"
	}
	if cfg.Cloudinary.Folder == "" {
		cfg.Cloudinary.Folder = "contest-evidence"
	}
	if cfg.Telegram.RateLimit == 0 {
		cfg.Telegram.RateLimit = 20
	}
}

func (cfg Config) validate() error {
	missing := []string{}
	if cfg.Store.Driver == "postgres" && cfg.DB.DSN == "" {
		missing = append(missing, "DB_DSN")
	}
	if cfg.Evidence.Driver == "cloudinary" {
		if cfg.Cloudinary.CloudName == "" {
			missing = append(missing, "CLOUDINARY_CLOUD_NAME")
		}
		if cfg.Cloudinary.APIKey == "" {
			missing = append(missing, "CLOUDINARY_API_KEY")
		}
		if cfg.Cloudinary.APISecret == "" {
			missing = append(missing, "CLOUDINARY_API_SECRET")
		}
	}
	if cfg.Evidence.Driver == "s3" && cfg.S3.Bucket == "" {
		missing = append(missing, "S3_BUCKET")
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing required configurations: %v", missing)
	}

	switch cfg.Store.Driver {
	case "postgres", "memory":
	default:
		return fmt.Errorf("unknown STORE_DRIVER %q", cfg.Store.Driver)
	}
	switch cfg.Evidence.Driver {
	case "memory", "cloudinary", "s3":
	default:
		return fmt.Errorf("unknown EVIDENCE_DRIVER %q", cfg.Evidence.Driver)
	}
	return nil
}
