package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"mit.edu/dsg/sqlroute/planner"
)

func TestDefault(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, planner.DefaultOptions(), cfg.PlanOptions())
	assert.True(t, cfg.PlanCache.Enabled)
}

func TestParse(t *testing.T) {
	cfg, err := Parse([]byte(`
default_schema: shop
databases: [shop, audit]
executor:
  batch_size: 8
  join_algorithm: hash
log:
  level: debug
`))
	require.NoError(t, err)
	assert.Equal(t, "shop", cfg.DefaultSchema)
	assert.Equal(t, []string{"shop", "audit"}, cfg.Databases)
	assert.Equal(t, planner.Options{
		JoinAlgorithm: planner.HashAlgorithm,
		BatchSize:     8,
		MaxBatchSize:  planner.DefaultMaxBatchSize,
	}, cfg.PlanOptions())
	assert.Equal(t, "debug", cfg.Log.Level)
	// Untouched sections keep their defaults.
	assert.Equal(t, 1024, cfg.PlanCache.MaxEntries)

	cfg, err = Parse(nil)
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestParseErrors(t *testing.T) {
	tests := []struct {
		name string
		yaml string
		msg  string
	}{
		{"unknown field", "executor: {batch: 3}", "batch"},
		{"batch size", "executor: {batch_size: 0}", "batch_size"},
		{"max batch size", "executor: {max_batch_size: 0}", "max_batch_size"},
		{"batch size above max", "executor: {batch_size: 500, max_batch_size: 50}", "exceeds executor.max_batch_size"},
		{"join algorithm", "executor: {join_algorithm: merge}", "join_algorithm"},
		{"max entries", "plan_cache: {max_entries: -1}", "max_entries"},
		{"default schema", "default_schema: nope", "default_schema"},
		{"syntax", "executor: [", "parse config"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.yaml))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.msg)
		})
	}
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sqlroute.yaml")
	require.NoError(t, os.WriteFile(path, []byte("plan_cache: {enabled: false}\n"), 0o644))
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.False(t, cfg.PlanCache.Enabled)

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
}
