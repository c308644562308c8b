// Package config loads the engine configuration from YAML.
package config

import (
	"bytes"
	"io"
	"os"

	"github.com/cockroachdb/errors"
	"gopkg.in/yaml.v3"
	"mit.edu/dsg/sqlroute/planner"
)

type Config struct {
	// DefaultSchema is the schema new sessions start in.
	DefaultSchema string `yaml:"default_schema"`
	// Databases are created when the engine starts.
	Databases []string  `yaml:"databases"`
	Executor  Executor  `yaml:"executor"`
	PlanCache PlanCache `yaml:"plan_cache"`
	Log       Log       `yaml:"log"`
}

type Executor struct {
	// BatchSize is the number of outer rows bound per batch nested-loop join batch.
	BatchSize     int    `yaml:"batch_size"`
	// MaxBatchSize bounds batch_size and the batch size of submitted plan descriptions.
	MaxBatchSize  int    `yaml:"max_batch_size"`
	JoinAlgorithm string `yaml:"join_algorithm"`
}

type PlanCache struct {
	Enabled    bool `yaml:"enabled"`
	MaxEntries int  `yaml:"max_entries"`
}

type Log struct {
	// Level is a zap level name: debug, info, warn, error.
	Level       string `yaml:"level"`
	Development bool   `yaml:"development"`
}

func Default() *Config {
	opts := planner.DefaultOptions()
	return &Config{
		DefaultSchema: "test",
		Databases:     []string{"test"},
		Executor: Executor{
			BatchSize:     opts.BatchSize,
			MaxBatchSize:  opts.MaxBatchSize,
			JoinAlgorithm: opts.JoinAlgorithm.String(),
		},
		PlanCache: PlanCache{Enabled: true, MaxEntries: 1024},
		Log:       Log{Level: "info"},
	}
}

// Parse reads a YAML document over the defaults. Unknown fields are rejected.
func Parse(data []byte) (*Config, error) {
	cfg := Default()
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, errors.Wrap(err, "parse config")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "read config %s", path)
	}
	cfg, err := Parse(data)
	if err != nil {
		return nil, errors.Wrapf(err, "%s", path)
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	if c.Executor.BatchSize <= 0 {
		return errors.Newf("executor.batch_size must be positive, got %d", c.Executor.BatchSize)
	}
	if c.Executor.MaxBatchSize <= 0 {
		return errors.Newf("executor.max_batch_size must be positive, got %d", c.Executor.MaxBatchSize)
	}
	if c.Executor.BatchSize > c.Executor.MaxBatchSize {
		return errors.Newf("executor.batch_size %d exceeds executor.max_batch_size %d",
			c.Executor.BatchSize, c.Executor.MaxBatchSize)
	}
	if _, err := planner.ParseJoinAlgorithm(c.Executor.JoinAlgorithm); err != nil {
		return errors.Wrap(err, "executor.join_algorithm")
	}
	if c.PlanCache.MaxEntries < 0 {
		return errors.Newf("plan_cache.max_entries must not be negative, got %d", c.PlanCache.MaxEntries)
	}
	if c.DefaultSchema != "" && !c.hasDatabase(c.DefaultSchema) {
		return errors.Newf("default_schema %q is not one of databases", c.DefaultSchema)
	}
	return nil
}

func (c *Config) hasDatabase(name string) bool {
	for _, db := range c.Databases {
		if db == name {
			return true
		}
	}
	return false
}

// PlanOptions converts the executor section into planner options. The configuration
// must be valid.
func (c *Config) PlanOptions() planner.Options {
	algorithm, _ := planner.ParseJoinAlgorithm(c.Executor.JoinAlgorithm)
	return planner.Options{
		JoinAlgorithm: algorithm,
		BatchSize:     c.Executor.BatchSize,
		MaxBatchSize:  c.Executor.MaxBatchSize,
	}
}
