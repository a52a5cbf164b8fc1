package config

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLoadServerDefaults(t *testing.T) {
	t.Setenv("SHARD_COUNT", "2")
	t.Setenv("DB2_NAME", "carts_b")
	t.Setenv("KAFKA_BROKERS", "k1:9092,k2:9092")
	t.Setenv("RATE_LIMIT", "not-a-number")

	cfg := LoadServer()
	assert.Len(t, cfg.Shards, 2)
	assert.Equal(t, "storefront_1", cfg.Shards[0].Name)
	assert.Equal(t, "carts_b", cfg.Shards[1].Name)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.KafkaBrokers)
	assert.Equal(t, 10.0, cfg.RateLimit)
	assert.Equal(t, 24*time.Hour, cfg.IdempotentTTL)
	assert.Equal(t, "root:@tcp(localhost:3306)/storefront_1?parseTime=true", cfg.Shards[0].DSN())
}

func TestLoadSyncOverrides(t *testing.T) {
	t.Setenv("RETRY_ATTEMPTS", "7")
	t.Setenv("TOMBSTONE_GRACE", "90s")
	t.Setenv("API_BASE_URL", "http://api.internal")

	cfg := LoadSync()
	assert.Equal(t, 7, cfg.RetryAttempts)
	assert.Equal(t, 90*time.Second, cfg.TombstoneGrace)
	assert.Equal(t, "http://api.internal", cfg.APIBaseURL)
	assert.Equal(t, 500*time.Millisecond, cfg.RetryBaseDelay)
}

func TestLoadSyncGroupIDPerInstance(t *testing.T) {
	t.Setenv("KAFKA_GROUP_ID", "")

	first, second := LoadSync(), LoadSync()
	assert.True(t, strings.HasPrefix(first.GroupID, "storefront-sync-"))
	assert.NotEqual(t, first.GroupID, second.GroupID, "each agent reads every snapshot")

	t.Setenv("KAFKA_GROUP_ID", "shared")
	assert.Equal(t, "shared", LoadSync().GroupID)
}
