// Package config implements the YAML config file parser
package config

import (
	"fmt"
	"net"
	"os"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v2"

	"github.com/The-Obstacle-Is-The-Way/neuroimaging-go-brrrr/config/logger"
)

const (
	// DefaultShardRows is the default number of table rows per uploaded shard.
	// One row per shard keeps the embedded image payloads for any single
	// in-memory shard small enough to avoid exhausting RAM.
	DefaultShardRows = 1

	// DefaultRetryCount is the default number of storage Store attempts
	// before an upload is considered permanently failed.
	DefaultRetryCount = 10

	// DefaultRetryInterval is the default wait between storage Store attempts.
	DefaultRetryInterval = 5 * time.Second

	// DefaultSplit is the dataset split used when none is configured.
	DefaultSplit = "train"
)

// Config is the config root object
type Config struct {
	Datasets map[string]Dataset `yaml:"datasets"`
	Storage  Storage            `yaml:"storage"`
	Upload   Upload             `yaml:"upload"`
	HTTP     HTTP               `yaml:"http"`
	Log      logger.Config      `yaml:"log"`

	// Instance name for shard metadata, defaults to the hostname
	Instance string `yaml:"instance"`

	// Set to current version by main
	Version string `yaml:"-"`
}

// Dataset configures a single source dataset
type Dataset struct {
	Kind  string `yaml:"kind"`  // Registered builder kind, e.g. "arc"
	Root  string `yaml:"root"`  // Path to the BIDS root directory
	Split string `yaml:"split"` // Split name, defaults to DefaultSplit
}

// Storage selects and configures a simpleblob storage backend
type Storage struct {
	Type    string                 `yaml:"type"` // e.g. "fs", "memory" or "s3"
	Options map[string]interface{} `yaml:"options"`
}

// Upload configures the shard-sequential upload loop
type Upload struct {
	ShardRows     int           `yaml:"shard_rows"`     // Rows per shard
	RetryCount    int           `yaml:"retry_count"`    // Store attempts per shard
	RetryForever  bool          `yaml:"retry_forever"`  // Never give up on Store errors
	RetryInterval time.Duration `yaml:"retry_interval"` // Wait between attempts
	TempDir       string        `yaml:"temp_dir"`       // Defaults to the OS temp dir
}

// HTTP configures the HTTP server with Prometheus metrics and status page
type HTTP struct {
	Address string `yaml:"address"` // Address like ":8500"
}

// Check validates a Config instance
func (c Config) Check() error {
	if err := c.Log.Check(); err != nil {
		return err
	}
	if len(c.Datasets) < 1 {
		return fmt.Errorf("no datasets configured")
	}
	for name, d := range c.Datasets {
		prefix := fmt.Sprintf("dataset %q", name)
		if d.Kind == "" {
			return fmt.Errorf("%s: no kind configured", prefix)
		}
		if d.Root == "" {
			return fmt.Errorf("%s: no root configured", prefix)
		}
	}
	if c.HTTP.Address != "" {
		if _, _, err := net.SplitHostPort(c.HTTP.Address); err != nil {
			return fmt.Errorf("http.address: %v", err)
		}
	}
	if c.Upload.ShardRows < 1 {
		return fmt.Errorf("upload.shard_rows: must be at least 1")
	}
	if c.Upload.RetryInterval < 100*time.Millisecond {
		return fmt.Errorf("upload.retry_interval: too short interval")
	}
	return nil
}

// Split returns the configured split for a dataset, with the default applied.
func (d Dataset) SplitName() string {
	if d.Split == "" {
		return DefaultSplit
	}
	return d.Split
}

// String returns the config as a YAML string.
func (c Config) String() string {
	y, err := yaml.Marshal(c)
	if err != nil {
		logrus.Panicf("YAML marshal of config failed: %v", err) // Should never happen
	}
	return string(y)
}

// LoadYAML loads config from YAML. Any set value overwrites any existing value,
// but omitted keys are untouched.
func (c *Config) LoadYAML(yamlContents []byte, expandEnv bool) error {
	if expandEnv {
		yamlContents = []byte(os.ExpandEnv(string(yamlContents)))
	}
	return yaml.UnmarshalStrict(yamlContents, c)
}

// LoadYAMLFile loads config from a YAML file. Any set value overwrites any existing value,
// but omitted keys are untouched.
func (c *Config) LoadYAMLFile(fpath string, expandEnv bool) error {
	contents, err := os.ReadFile(fpath)
	if err != nil {
		return errors.Wrap(err, "open yaml file")
	}
	return c.LoadYAML(contents, expandEnv)
}

// Default returns a Config with default settings
func Default() Config {
	return Config{
		Log: logger.DefaultConfig,
		Upload: Upload{
			ShardRows:     DefaultShardRows,
			RetryCount:    DefaultRetryCount,
			RetryInterval: DefaultRetryInterval,
		},
	}
}
