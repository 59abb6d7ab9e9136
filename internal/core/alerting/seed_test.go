package alerting

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const seedYAML = `
channels:
  - id: ch-oncall
    name: oncall webhook
    type: webhook
    config:
      url: http://hooks.example.com/oncall

escalation_policies:
  - id: p-default
    name: default chain
    levels:
      - delay: 5m
        channel_ids: [ch-oncall]
      - delay: 15m
        channel_ids: [ch-oncall]

rules:
  - id: r-cpu
    name: cpu high
    metric: cpu_percent
    operator: gt
    threshold: 90
    window: 5m
    frequency: 1m
    consecutive_failures: 3
    severity: critical
    channel_ids: [ch-oncall]
    escalation_policy_id: p-default
    max_per_window: 4
    cooldown: 10m

maintenance_windows:
  - id: w-deploy
    name: friday deploy
    starts_at: 2026-09-04T18:00:00Z
    ends_at: 2026-09-04T19:00:00Z
    scope: all
`

func writeSeed(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "definitions.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func seedStores() SeedStores {
	return SeedStores{
		Rules:    newMemRuleStore(),
		Channels: newMemChannelStore(),
		Policies: newMemPolicyStore(),
		Windows:  newMemMaintenanceStore(),
	}
}

func TestLoadSeedFile(t *testing.T) {
	stores := seedStores()
	ctx := context.Background()

	require.NoError(t, LoadSeedFile(ctx, writeSeed(t, seedYAML), stores, testLogger()))

	ch, err := stores.Channels.Get(ctx, "ch-oncall")
	require.NoError(t, err)
	assert.Equal(t, ChannelWebhook, ch.Type)
	assert.True(t, ch.Enabled)

	policy, err := stores.Policies.Get(ctx, "p-default")
	require.NoError(t, err)
	require.Len(t, policy.Levels, 2)
	assert.Equal(t, 5*time.Minute, policy.Levels[0].Delay)
	assert.Equal(t, 15*time.Minute, policy.Levels[1].Delay)

	rule, err := stores.Rules.Get(ctx, "r-cpu")
	require.NoError(t, err)
	assert.Equal(t, OpGreaterThan, rule.Operator)
	assert.Equal(t, 3, rule.ConsecutiveFailures)
	assert.Equal(t, 4, rule.RateLimit.MaxPerWindow)
	assert.Equal(t, 10*time.Minute, rule.RateLimit.Cooldown)
	assert.True(t, rule.Active)

	window, err := stores.Windows.Get(ctx, "w-deploy")
	require.NoError(t, err)
	assert.Equal(t, ScopeAll, window.Scope)
	assert.True(t, window.Active)
}

func TestLoadSeedFileIsIdempotent(t *testing.T) {
	stores := seedStores()
	ctx := context.Background()
	path := writeSeed(t, seedYAML)

	require.NoError(t, LoadSeedFile(ctx, path, stores, testLogger()))
	require.NoError(t, LoadSeedFile(ctx, path, stores, testLogger()))

	rules, err := stores.Rules.List(ctx)
	require.NoError(t, err)
	assert.Len(t, rules, 1)
}

func TestLoadSeedFileRejectsInvalidRule(t *testing.T) {
	bad := `
rules:
  - id: r-bad
    name: broken
    metric: cpu_percent
    operator: between
    threshold: 90
    window: 5m
    frequency: 1m
    consecutive_failures: 1
    severity: critical
`
	err := LoadSeedFile(context.Background(), writeSeed(t, bad), seedStores(), testLogger())
	require.Error(t, err)
}

func TestLoadSeedFileMissingFile(t *testing.T) {
	err := LoadSeedFile(context.Background(), filepath.Join(t.TempDir(), "nope.yaml"), seedStores(), testLogger())
	require.Error(t, err)
}
