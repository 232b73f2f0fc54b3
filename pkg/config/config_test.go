package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadEngine_Defaults(t *testing.T) {
	cfg, err := LoadEngine()
	require.NoError(t, err)

	assert.Equal(t, 20, cfg.HeaderScanRows)
	assert.InDelta(t, 0.70, cfg.ProfileSimilarity, 1e-9)
	assert.InDelta(t, 0.7, cfg.ProposalConfidence, 1e-9)
	assert.True(t, cfg.PreferReference)
	assert.Equal(t, "INR", cfg.DefaultCurrency)
	assert.InDelta(t, 100, cfg.AutoPostConfidence, 1e-9)
	assert.Equal(t, "*/15 * * * *", cfg.AutoPostSchedule)
	assert.Equal(t, 10*time.Minute, cfg.AutoPostTimeout)
}

func TestLoadEngine_Overrides(t *testing.T) {
	t.Setenv("RECONCILE_PROFILE_SIMILARITY", "0.85")
	t.Setenv("RECONCILE_WORKERS", "0")
	t.Setenv("RECONCILE_AUTO_POST_ENABLED", "true")
	t.Setenv("RECONCILE_RULES_FILE", "/etc/reconcile/rules.yaml")

	cfg, err := LoadEngine()
	require.NoError(t, err)

	assert.InDelta(t, 0.85, cfg.ProfileSimilarity, 1e-9)
	assert.Equal(t, 1, cfg.Workers, "clamped")
	assert.True(t, cfg.AutoPostEnabled)
	assert.Equal(t, "/etc/reconcile/rules.yaml", cfg.RulesFile)
}

func TestLoadEngine_RejectsBadSimilarity(t *testing.T) {
	t.Setenv("RECONCILE_PROFILE_SIMILARITY", "1.5")

	_, err := LoadEngine()
	assert.Error(t, err)
}

func TestLoad(t *testing.T) {
	t.Setenv("POSTGRES_HOST", "db")
	t.Setenv("POSTGRES_PORT", "6543")
	t.Setenv("SERVER_MAX_UPLOAD_MB", "5")
	t.Setenv("DATABASE_URL", "")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, int64(5<<20), cfg.Server.MaxUploadBytes)
	assert.Equal(t, "host=db port=6543 user=postgres password=postgres dbname=reconciler sslmode=disable", cfg.Database.DSN())
}
