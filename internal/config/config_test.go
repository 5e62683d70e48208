package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("STORE_DRIVER", "")
	t.Setenv("QUOTA_PER_MINUTE", "")
	t.Setenv("QUOTA_PER_DAY", "")
	t.Setenv("GENERATION_TIMEOUT", "")
	t.Setenv("REQUIRE_MODERATION_FOR_USER_CONTENT", "")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "postgres", cfg.StoreDriver)
	assert.Equal(t, 15, cfg.QuotaPerMinute)
	assert.Equal(t, 500, cfg.QuotaPerDay)
	assert.Equal(t, 30*time.Second, cfg.GenerationTimeout)
	assert.False(t, cfg.RequireModerationForUserContent)
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("STORE_DRIVER", "memory")
	t.Setenv("QUOTA_PER_MINUTE", "3")
	t.Setenv("GENERATION_TIMEOUT", "5s")
	t.Setenv("REQUIRE_MODERATION_FOR_USER_CONTENT", "yes")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "memory", cfg.StoreDriver)
	assert.Equal(t, 3, cfg.QuotaPerMinute)
	assert.Equal(t, 5*time.Second, cfg.GenerationTimeout)
	assert.True(t, cfg.RequireModerationForUserContent)
}

func TestLoadRejectsBadValues(t *testing.T) {
	t.Setenv("QUOTA_PER_DAY", "lots")
	_, err := Load()
	assert.Error(t, err)

	t.Setenv("QUOTA_PER_DAY", "")
	t.Setenv("STORE_DRIVER", "mongo")
	_, err = Load()
	assert.Error(t, err)
}

func TestLoadRejectsMistypedBool(t *testing.T) {
	t.Setenv("REQUIRE_MODERATION_FOR_USER_CONTENT", "ture")
	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "REQUIRE_MODERATION_FOR_USER_CONTENT")

	t.Setenv("REQUIRE_MODERATION_FOR_USER_CONTENT", "Yes")
	cfg, err := Load()
	require.NoError(t, err)
	assert.True(t, cfg.RequireModerationForUserContent)
}
