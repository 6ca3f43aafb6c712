package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Env  string
	Port string

	PostgresURL      string
	DBSearchPath     string
	StatementTimeout time.Duration
	LockTimeout      time.Duration

	KafkaBrokers      []string
	OrderEventsTopic  string
	WorkerGroupID     string
	EmailServiceURL   string
	PharmacyInbox     string
	OTelEnabled       bool
	ServiceVersion    string
	LogLevel          string
	LogFormat         string
	JWTSecret         string
	JWTTTL            time.Duration
	UploadsDir        string
	MaxUploadBytes    int64
	S3Endpoint        string
	S3Bucket          string
	S3Region          string
	S3AccessKey       string
	S3SecretKey       string
	RateLimitRPS      float64
	RateLimitBurst    int
	StrictRestock     bool
	OwnerOnlyOrderGet bool
}

func Default() Config {
	return Config{
		Env:              "dev",
		Port:             "8080",
		StatementTimeout: 5 * time.Second,
		LockTimeout:      3 * time.Second,
		OrderEventsTopic: "order.events",
		WorkerGroupID:    "notification-worker",
		PharmacyInbox:    "pharmacy@medstore.local",
		ServiceVersion:   "0.1.0",
		LogLevel:         "info",
		LogFormat:        "json",
		JWTTTL:           24 * time.Hour,
		UploadsDir:       "./uploads",
		MaxUploadBytes:   5 << 20,
		S3Bucket:         "medicine-store",
		S3Region:         "us-east-1",
		RateLimitRPS:     5,
		RateLimitBurst:   10,
	}
}

// Load reads .env files (variables already in the environment win) and
// applies environment overrides on top of Default.
func Load(files ...string) Config {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		_ = godotenv.Load(f)
	}
	return fromEnv(Default())
}

func fromEnv(c Config) Config {
	c.Env = str("APP_ENV", c.Env)
	c.Port = str("PORT", c.Port)
	c.PostgresURL = str("POSTGRES_URL", c.PostgresURL)
	c.DBSearchPath = str("DB_SEARCH_PATH", c.DBSearchPath)
	c.StatementTimeout = dur("DB_STATEMENT_TIMEOUT", c.StatementTimeout)
	c.LockTimeout = dur("DB_LOCK_TIMEOUT", c.LockTimeout)
	if v := os.Getenv("KAFKA_BROKERS"); v != "" {
		c.KafkaBrokers = splitList(v)
	}
	c.OrderEventsTopic = str("ORDER_EVENTS_TOPIC", c.OrderEventsTopic)
	c.PharmacyInbox = str("PHARMACY_INBOX", c.PharmacyInbox)
	c.WorkerGroupID = str("WORKER_GROUP_ID", c.WorkerGroupID)
	c.EmailServiceURL = str("EMAIL_SERVICE_URL", c.EmailServiceURL)
	c.OTelEnabled = boolean("OTEL_ENABLED", c.OTelEnabled)
	c.ServiceVersion = str("SERVICE_VERSION", c.ServiceVersion)
	c.LogLevel = str("LOG_LEVEL", c.LogLevel)
	c.LogFormat = str("LOG_FORMAT", c.LogFormat)
	c.JWTSecret = str("JWT_SECRET", c.JWTSecret)
	c.JWTTTL = dur("JWT_TTL", c.JWTTTL)
	c.UploadsDir = str("UPLOADS_DIR", c.UploadsDir)
	c.S3Endpoint = str("S3_ENDPOINT", c.S3Endpoint)
	c.S3Bucket = str("S3_BUCKET_NAME", c.S3Bucket)
	c.S3Region = str("S3_REGION", c.S3Region)
	c.S3AccessKey = str("S3_ACCESS_KEY", c.S3AccessKey)
	c.S3SecretKey = str("S3_SECRET_KEY", c.S3SecretKey)
	if v := os.Getenv("MAX_UPLOAD_BYTES"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil && n > 0 {
			c.MaxUploadBytes = n
		}
	}
	if v := os.Getenv("RATE_LIMIT_RPS"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil && f > 0 {
			c.RateLimitRPS = f
		}
	}
	if v := os.Getenv("RATE_LIMIT_BURST"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			c.RateLimitBurst = n
		}
	}
	c.StrictRestock = boolean("ORDERS_STRICT_RESTOCK", c.StrictRestock)
	c.OwnerOnlyOrderGet = boolean("ORDERS_OWNER_ONLY_READ", c.OwnerOnlyOrderGet)
	return c
}

func (c Config) IsProduction() bool {
	return c.Env == "production"
}

func str(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func dur(key string, def time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil || d < 0 {
		return def
	}
	return d
}

func boolean(key string, def bool) bool {
	switch os.Getenv(key) {
	case "1", "true", "TRUE", "True":
		return true
	case "0", "false", "FALSE", "False":
		return false
	}
	return def
}

func splitList(v string) []string {
	var out []string
	for _, p := range strings.Split(v, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
