package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad(t *testing.T) {
	t.Run("loads default values when env vars not set", func(t *testing.T) {
		cfg, err := Load()
		require.NoError(t, err)

		assert.Equal(t, "itsm-sync", cfg.App.Name)
		assert.Equal(t, "development", cfg.App.Env)
		assert.Equal(t, "8080", cfg.App.Port)
		assert.Equal(t, "postgres", cfg.Database.Driver)
		assert.Equal(t, "localhost", cfg.Database.Host)
		assert.Equal(t, 5432, cfg.Database.Port)
		assert.Equal(t, "itsm", cfg.Database.DBName)
		assert.Equal(t, 25, cfg.Database.MaxOpenConns)
		assert.False(t, cfg.Redis.Enabled)

		assert.True(t, cfg.Sync.ProcessorEnabled)
		assert.Equal(t, 4, cfg.Sync.Workers)
		assert.Equal(t, 50, cfg.Sync.BatchSize)
		assert.Equal(t, time.Second, cfg.Sync.PollInterval)
		assert.Equal(t, 3, cfg.Sync.MaxAttempts)
		assert.Equal(t, 30*time.Second, cfg.Sync.DeliveryTimeout)
		assert.Equal(t, 2*time.Minute, cfg.Sync.LockTTL)
		assert.False(t, cfg.Webhook.Acknowledge)
		assert.Equal(t, int64(1<<20), cfg.Webhook.MaxBodySize)
		assert.Equal(t, 20.0, cfg.Webhook.RateLimitRPS)
		assert.Equal(t, 40, cfg.Webhook.RateLimitBurst)
	})

	t.Run("loads values from environment variables with ITSM prefix", func(t *testing.T) {
		t.Setenv("ITSM_APP_NAME", "sync-test")
		t.Setenv("ITSM_DATABASE_DRIVER", "sqlite")
		t.Setenv("ITSM_DATABASE_SQLITE_PATH", "/tmp/itsm-test.db")
		t.Setenv("ITSM_SYNC_WORKERS", "8")
		t.Setenv("ITSM_SYNC_PROCESSOR_ENABLED", "false")
		t.Setenv("ITSM_WEBHOOK_ACKNOWLEDGE", "true")
		t.Setenv("ITSM_REDIS_ENABLED", "true")

		cfg, err := Load()
		require.NoError(t, err)

		assert.Equal(t, "sync-test", cfg.App.Name)
		assert.Equal(t, "sqlite", cfg.Database.Driver)
		assert.Equal(t, "/tmp/itsm-test.db", cfg.Database.DSN())
		assert.Equal(t, 8, cfg.Sync.Workers)
		assert.False(t, cfg.Sync.ProcessorEnabled)
		assert.True(t, cfg.Webhook.Acknowledge)
		assert.True(t, cfg.Redis.Enabled)
		assert.Equal(t, "localhost:6379", cfg.Redis.Addr())
	})

	t.Run("rejects unknown database driver", func(t *testing.T) {
		t.Setenv("ITSM_DATABASE_DRIVER", "mysql")

		_, err := Load()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "database.driver")
	})

	t.Run("validates MaxIdleConns cannot exceed MaxOpenConns", func(t *testing.T) {
		t.Setenv("ITSM_DATABASE_MAX_OPEN_CONNS", "10")
		t.Setenv("ITSM_DATABASE_MAX_IDLE_CONNS", "20")

		_, err := Load()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "cannot exceed")
	})

	t.Run("lock ttl must outlive a delivery", func(t *testing.T) {
		t.Setenv("ITSM_SYNC_DELIVERY_TIMEOUT", "5m")
		t.Setenv("ITSM_SYNC_LOCK_TTL", "1m")

		_, err := Load()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "sync.lock_ttl")
	})

	t.Run("storage requires a bucket", func(t *testing.T) {
		t.Setenv("ITSM_STORAGE_ENABLED", "true")

		_, err := Load()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "storage.bucket")
	})
}

func TestLoad_ProductionValidation(t *testing.T) {
	setValidProductionBase := func(t *testing.T) {
		t.Setenv("ITSM_APP_ENV", "production")
		t.Setenv("ITSM_JWT_SECRET", "this-is-a-very-secure-jwt-secret-key-32chars")
		t.Setenv("ITSM_DATABASE_PASSWORD", "secure-password")
		t.Setenv("ITSM_DATABASE_SSLMODE", "require")
		t.Setenv("ITSM_WEBHOOK_SERVICENOW_SECRET", "snow-secret")
		t.Setenv("ITSM_WEBHOOK_JIRA_SECRET", "jira-secret")
	}

	t.Run("passes validation with valid production config", func(t *testing.T) {
		setValidProductionBase(t)

		cfg, err := Load()
		require.NoError(t, err)
		assert.Equal(t, "production", cfg.App.Env)
	})

	tests := []struct {
		name    string
		key     string
		value   string
		wantErr string
	}{
		{"requires jwt.secret", "ITSM_JWT_SECRET", "", "jwt.secret is required in production"},
		{"requires long jwt.secret", "ITSM_JWT_SECRET", "short-secret", "at least 32 characters"},
		{"requires database.password", "ITSM_DATABASE_PASSWORD", "", "database.password is required"},
		{"requires ssl", "ITSM_DATABASE_SSLMODE", "disable", "sslmode cannot be 'disable'"},
		{"requires postgres", "ITSM_DATABASE_DRIVER", "sqlite", "must be postgres in production"},
		{"requires webhook secrets", "ITSM_WEBHOOK_JIRA_SECRET", "", "webhook secrets are required"},
		{"rejects wildcard cors", "ITSM_HTTP_CORS_ALLOW_ORIGINS", "*", "cors_allow_origins"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			setValidProductionBase(t)
			t.Setenv(tt.key, tt.value)

			_, err := Load()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestDatabaseConfig_DSN(t *testing.T) {
	t.Run("generates valid postgres DSN", func(t *testing.T) {
		cfg := DatabaseConfig{
			Driver:   "postgres",
			Host:     "localhost",
			Port:     5432,
			User:     "testuser",
			Password: "testpass",
			DBName:   "testdb",
			SSLMode:  "disable",
		}

		dsn := cfg.DSN()
		assert.Contains(t, dsn, "localhost:5432")
		assert.Contains(t, dsn, "testuser")
		assert.Contains(t, dsn, "testdb")
		assert.Contains(t, dsn, "sslmode=disable")
	})

	t.Run("escapes special characters in password", func(t *testing.T) {
		cfg := DatabaseConfig{Driver: "postgres", Host: "localhost", Port: 5432, User: "user", Password: "pass@word#123", DBName: "db", SSLMode: "disable"}
		assert.Contains(t, cfg.DSN(), "pass%40word%23123")
	})

	t.Run("sqlite uses the file path", func(t *testing.T) {
		cfg := DatabaseConfig{Driver: "sqlite", SQLitePath: "file::memory:?cache=shared"}
		assert.Equal(t, "file::memory:?cache=shared", cfg.DSN())
	})
}
