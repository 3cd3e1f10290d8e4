package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("QUIZ_TIME_BUDGET_SECONDS", "")
	t.Setenv("STORE_DRIVER", "")

	cfg := Load()

	assert.Equal(t, 600*time.Second, cfg.TimeBudget)
	assert.Equal(t, 60*time.Second, cfg.PeriodicSave)
	assert.Equal(t, 30*time.Second, cfg.CountdownSave)
	assert.Equal(t, StoreDriverSQLite, cfg.StoreDriver)
	assert.Equal(t, 15*time.Second, cfg.BackendTimeout)
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("QUIZ_TIME_BUDGET_SECONDS", "120")
	t.Setenv("STORE_DRIVER", "Redis")
	t.Setenv("BACKEND_URL", "http://lms.test/")
	t.Setenv("ALLOWED_ORIGINS", " http://a.test , ,http://b.test")

	cfg := Load()

	assert.Equal(t, 120*time.Second, cfg.TimeBudget)
	assert.Equal(t, StoreDriverRedis, cfg.StoreDriver)
	assert.Equal(t, "http://lms.test", cfg.BackendURL)
	assert.Equal(t, []string{"http://a.test", "http://b.test"}, cfg.AllowedOrigins)
}

func TestGetEnvIntRejectsGarbage(t *testing.T) {
	t.Setenv("PERIODIC_SAVE_SECONDS", "soon")
	assert.Equal(t, 60, getEnvInt("PERIODIC_SAVE_SECONDS", 60))

	t.Setenv("PERIODIC_SAVE_SECONDS", "-5")
	assert.Equal(t, 60, getEnvInt("PERIODIC_SAVE_SECONDS", 60))
}

func TestStorageKeys(t *testing.T) {
	assert.Equal(t, "quiz_7_42_state", StorageKey.QuizStateKey("7", "42"))
	assert.Equal(t, "quiz_answers_7_42", StorageKey.QuizAnswersKey("7", "42"))
	assert.Equal(t, "access_token", StorageKey.AccessToken)
}
