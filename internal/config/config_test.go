package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("STORE_DRIVER", "memory")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "campus_events", cfg.Kafka.Topic)
	assert.Equal(t, "violation-service", cfg.Kafka.GroupID)
	assert.Equal(t, ":9191", cfg.API.Port)
	assert.Equal(t, "/api/v0", cfg.API.BasePath)
	assert.Equal(t, 4, cfg.Dispatch.Workers)
	assert.Equal(t, 30*time.Second, cfg.Realtime.PingInterval)
	assert.Equal(t, "memory", cfg.Evidence.Driver)
	assert.Equal(t, 20, cfg.Telegram.RateLimit)
}

func TestLoadReadsEnvironment(t *testing.T) {
	t.Setenv("STORE_DRIVER", "Postgres")
	t.Setenv("DB_DSN", "postgres://localhost/violations")
	t.Setenv("DISPATCH_WORKERS", "8")
	t.Setenv("WS_PING_INTERVAL", "5s")
	t.Setenv("TELEGRAM_STAFF_CHAT_ID", "-1001")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "postgres", cfg.Store.Driver)
	assert.Equal(t, 8, cfg.Dispatch.Workers)
	assert.Equal(t, 5*time.Second, cfg.Realtime.PingInterval)
	assert.Equal(t, int64(-1001), cfg.Telegram.StaffChatID)
}

func TestLoadValidates(t *testing.T) {
	t.Run("postgres needs a dsn", func(t *testing.T) {
		t.Setenv("STORE_DRIVER", "postgres")
		t.Setenv("DB_DSN", "")
		_, err := Load()
		assert.ErrorContains(t, err, "DB_DSN")
	})

	t.Run("cloudinary needs credentials", func(t *testing.T) {
		t.Setenv("STORE_DRIVER", "memory")
		t.Setenv("EVIDENCE_DRIVER", "cloudinary")
		_, err := Load()
		assert.ErrorContains(t, err, "CLOUDINARY_API_KEY")
	})

	t.Run("unknown evidence driver", func(t *testing.T) {
		t.Setenv("STORE_DRIVER", "memory")
		t.Setenv("EVIDENCE_DRIVER", "ftp")
		_, err := Load()
		assert.ErrorContains(t, err, "EVIDENCE_DRIVER")
	})
}
