package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testYAML = `
datasets:
  arc:
    kind: arc
    root: /data/openneuro/ds004884
  isles:
    kind: isles24
    root: /data/zenodo/isles24/train
    split: train
storage:
  type: memory
upload:
  shard_rows: 1
  retry_count: 3
  retry_interval: 200ms
http:
  address: ":8500"
`

func TestConfig_LoadYAML(t *testing.T) {
	c := Default()
	err := c.LoadYAML([]byte(testYAML), false)
	require.NoError(t, err)
	require.NoError(t, c.Check())

	assert.Len(t, c.Datasets, 2)
	assert.Equal(t, "arc", c.Datasets["arc"].Kind)
	assert.Equal(t, "train", c.Datasets["arc"].SplitName()) // default applied
	assert.Equal(t, "memory", c.Storage.Type)
	assert.Equal(t, 3, c.Upload.RetryCount)
	assert.Equal(t, 200*time.Millisecond, c.Upload.RetryInterval)
}

func TestConfig_LoadYAML_expandEnv(t *testing.T) {
	t.Setenv("BIDS_ROOT", "/mnt/bids")
	c := Default()
	err := c.LoadYAML([]byte("datasets:\n  arc:\n    kind: arc\n    root: ${BIDS_ROOT}\n"), true)
	require.NoError(t, err)
	assert.Equal(t, "/mnt/bids", c.Datasets["arc"].Root)
}

func TestConfig_Check(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr string
	}{
		{"no-datasets", func(c *Config) { c.Datasets = nil }, "no datasets"},
		{"no-kind", func(c *Config) {
			c.Datasets["arc"] = Dataset{Root: "/data"}
		}, "no kind"},
		{"no-root", func(c *Config) {
			c.Datasets["arc"] = Dataset{Kind: "arc"}
		}, "no root"},
		{"bad-address", func(c *Config) { c.HTTP.Address = "nonsense" }, "http.address"},
		{"bad-shard-rows", func(c *Config) { c.Upload.ShardRows = 0 }, "shard_rows"},
		{"short-retry", func(c *Config) { c.Upload.RetryInterval = time.Millisecond }, "retry_interval"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := Default()
			require.NoError(t, c.LoadYAML([]byte(testYAML), false))
			tt.mutate(&c)
			err := c.Check()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestConfig_UnknownKeyRejected(t *testing.T) {
	c := Default()
	err := c.LoadYAML([]byte("bogus_key: true\n"), false)
	assert.Error(t, err)
}
