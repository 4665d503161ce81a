package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("PORT", "")
	t.Setenv("ENV", "")
	t.Setenv("LOG_LEVEL", "")
	t.Setenv("SCORING_WEIGHT_CONDITION", "")
	t.Setenv("ALERT_HIGH_OCCUPANCY_PCT", "")
	t.Setenv("ALERT_CRITICAL_OCCUPANCY_PCT", "")
	t.Setenv("ALERT_RECIPIENTS", "")
	cfg := Load()

	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, "development", cfg.Env)
	assert.False(t, cfg.IsProduction())
	assert.InDelta(t, 0.35, cfg.WeightCondition, 1e-9)
	assert.InDelta(t, 0.25, cfg.WeightSpecialization, 1e-9)
	assert.InDelta(t, 0.20, cfg.WeightEquipment, 1e-9)
	assert.InDelta(t, 0.15, cfg.WeightInfection, 1e-9)
	assert.InDelta(t, 0.05, cfg.WeightPreference, 1e-9)
	assert.Equal(t, 3, cfg.MaxAlternatives)
	assert.Equal(t, 85.0, cfg.HighOccupancyPct)
	assert.Equal(t, 90.0, cfg.CriticalOccupancyPct)
	assert.Equal(t, 2*time.Hour, cfg.CleaningOverdueAfter)
	assert.Equal(t, "none", cfg.PolicyProvider)
	assert.Nil(t, cfg.AlertRecipients)
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("ENV", "production")
	t.Setenv("DATABASE_URL", "postgres://user@host/db")
	t.Setenv("SCORING_WEIGHT_CONDITION", "0.5")
	t.Setenv("SCORING_MAX_ALTERNATIVES", "5")
	t.Setenv("ALERT_CRITICAL_OCCUPANCY_PCT", "95")
	t.Setenv("ALERT_SWEEP_INTERVAL", "30s")
	t.Setenv("ALERT_RECIPIENTS", "ops@example.com, , charge@example.com")
	t.Setenv("POLICY_PROVIDER", " Bedrock ")
	t.Setenv("USE_MEMORY_STORE", "true")
	cfg := Load()

	assert.Equal(t, "9090", cfg.Port)
	assert.True(t, cfg.IsProduction())
	assert.Equal(t, "postgres://user@host/db", cfg.DatabaseURL)
	assert.InDelta(t, 0.5, cfg.WeightCondition, 1e-9)
	assert.Equal(t, 5, cfg.MaxAlternatives)
	assert.Equal(t, 95.0, cfg.CriticalOccupancyPct)
	assert.Equal(t, 30*time.Second, cfg.SweepInterval)
	assert.Equal(t, []string{"ops@example.com", "charge@example.com"}, cfg.AlertRecipients)
	assert.Equal(t, "bedrock", cfg.PolicyProvider)
	assert.True(t, cfg.UseMemoryStore)
}

func TestInvalidValuesFallBack(t *testing.T) {
	t.Setenv("SCORING_MAX_ALTERNATIVES", "many")
	t.Setenv("SCORING_NOTABLE_THRESHOLD", "high")
	t.Setenv("WORKFLOW_DEADLINE", "soon")
	cfg := Load()

	assert.Equal(t, 3, cfg.MaxAlternatives)
	assert.InDelta(t, 0.8, cfg.NotableThreshold, 1e-9)
	assert.Equal(t, 2*time.Minute, cfg.WorkflowDeadline)
}
