// Package config reads process configuration from the environment, optionally
// seeded from a .env file.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
)

// DBConfig addresses one MySQL shard.
type DBConfig struct {
	Host string
	Port string
	User string
	Pass string
	Name string
}

func (c DBConfig) DSN() string {
	return fmt.Sprintf("%s:%s@tcp(%s:%s)/%s?parseTime=true", c.User, c.Pass, c.Host, c.Port, c.Name)
}

type Server struct {
	Port          string
	Shards        []DBConfig
	RedisAddr     string
	KafkaBrokers  []string
	ProductTopic  string
	OrderTopic    string
	JWTSecret     string
	AdminKey      string
	TokenTTL      time.Duration
	RateLimit     float64
	RateBurst     int
	CacheTTL      time.Duration
	IdempotentTTL time.Duration
}

type Sync struct {
	APIBaseURL     string
	Token          string
	RedisAddr      string
	KeyPrefix      string
	KafkaBrokers   []string
	ProductTopic   string
	GroupID        string
	RetryAttempts  int
	RetryBaseDelay time.Duration
	TombstoneGrace time.Duration
	RefreshEvery   time.Duration
}

// LoadServer reads the API server configuration. DB1_* .. DB<SHARD_COUNT>_*
// describe the shards; shard 1 also holds the product table.
func LoadServer() Server {
	loadDotEnv()

	shardCount := getEnvInt("SHARD_COUNT", 3)
	shards := make([]DBConfig, 0, shardCount)
	for i := 1; i <= shardCount; i++ {
		prefix := fmt.Sprintf("DB%d_", i)
		shards = append(shards, DBConfig{
			Host: getEnv(prefix+"HOST", "localhost"),
			Port: getEnv(prefix+"PORT", "3306"),
			User: getEnv(prefix+"USER", "root"),
			Pass: getEnv(prefix+"PASS", ""),
			Name: getEnv(prefix+"NAME", fmt.Sprintf("storefront_%d", i)),
		})
	}

	return Server{
		Port:          getEnv("PORT", "8080"),
		Shards:        shards,
		RedisAddr:     getEnv("REDIS_ADDR", "localhost:6379"),
		KafkaBrokers:  KafkaBrokerURLs(),
		ProductTopic:  getEnv("PRODUCT_TOPIC", "product-topic"),
		OrderTopic:    getEnv("ORDER_TOPIC", "order-topic"),
		JWTSecret:     getEnv("JWT_SECRET", "change-me"),
		AdminKey:      getEnv("ADMIN_KEY", ""),
		TokenTTL:      getEnvDuration("TOKEN_TTL", 72*time.Hour),
		RateLimit:     getEnvFloat("RATE_LIMIT", 10),
		RateBurst:     getEnvInt("RATE_BURST", 30),
		CacheTTL:      getEnvDuration("PRODUCT_CACHE_TTL", 10*time.Minute),
		IdempotentTTL: getEnvDuration("IDEMPOTENT_KEY_TTL", 24*time.Hour),
	}
}

// LoadSync reads the storefront sync agent configuration.
func LoadSync() Sync {
	loadDotEnv()

	return Sync{
		APIBaseURL:     getEnv("API_BASE_URL", "http://localhost:8080"),
		Token:          getEnv("API_TOKEN", ""),
		RedisAddr:      getEnv("REDIS_ADDR", "localhost:6379"),
		KeyPrefix:      getEnv("KV_PREFIX", "storefront:"),
		KafkaBrokers:   KafkaBrokerURLs(),
		ProductTopic:   getEnv("PRODUCT_TOPIC", "product-topic"),
		GroupID:        getEnv("KAFKA_GROUP_ID", "storefront-sync-"+uuid.NewString()),
		RetryAttempts:  getEnvInt("RETRY_ATTEMPTS", 5),
		RetryBaseDelay: getEnvDuration("RETRY_BASE_DELAY", 500*time.Millisecond),
		TombstoneGrace: getEnvDuration("TOMBSTONE_GRACE", 2*time.Minute),
		RefreshEvery:   getEnvDuration("REFRESH_INTERVAL", 5*time.Minute),
	}
}

// loadDotEnv loads .env when present; real environment variables win.
func loadDotEnv() {
	if _, err := os.Stat(".env"); err == nil {
		_ = godotenv.Load()
	}
}

func getEnv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && strings.TrimSpace(v) != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	v, err := strconv.Atoi(getEnv(key, ""))
	if err != nil {
		return fallback
	}
	return v
}

func getEnvFloat(key string, fallback float64) float64 {
	v, err := strconv.ParseFloat(getEnv(key, ""), 64)
	if err != nil {
		return fallback
	}
	return v
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	v, err := time.ParseDuration(getEnv(key, ""))
	if err != nil {
		return fallback
	}
	return v
}
