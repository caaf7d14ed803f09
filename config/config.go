// Copyright 2023 CascadeDB, Inc.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package config

import (
	"os"
	"sync/atomic"

	"github.com/BurntSushi/toml"
	"github.com/pingcap/errors"
)

// Config contains configuration options of the join engine.
type Config struct {
	// MaxChunkSize is the max number of rows one result chunk may hold.
	MaxChunkSize int `toml:"max-chunk-size" json:"max-chunk-size"`
	// JoinConcurrency is the number of build and probe workers of one hash join.
	JoinConcurrency int `toml:"join-concurrency" json:"join-concurrency"`
	// JoinPartitionCount is the number of build side partitions.
	JoinPartitionCount int `toml:"join-partition-count" json:"join-partition-count"`
	// OOMUseTmpStorage indicates whether spill the build side to disk when the
	// memory quota of a query is exceeded.
	OOMUseTmpStorage bool `toml:"oom-use-tmp-storage" json:"oom-use-tmp-storage"`
	// TempStoragePath is the directory for the spilled data. An empty path
	// means the OS default temporary directory.
	TempStoragePath string `toml:"tmp-storage-path" json:"tmp-storage-path"`
	// MemQuotaQuery is the memory quota of one query in bytes, <= 0 means no limit.
	MemQuotaQuery int64 `toml:"mem-quota-query" json:"mem-quota-query"`
	// MaxSpillRounds limits how many restore rounds may be nested before the
	// engine gives up partitioning further.
	MaxSpillRounds int `toml:"max-spill-rounds" json:"max-spill-rounds"`

	Log Log `toml:"log" json:"log"`
}

// Log is the log section of config.
type Log struct {
	// Level is the log level, one of "debug", "info", "warn", "error", "fatal".
	Level string `toml:"level" json:"level"`
	// Format is the log format, one of "text" or "json".
	Format string `toml:"format" json:"format"`
	// File is the log file path, empty means stderr.
	File string `toml:"file" json:"file"`
}

var defaultConf = Config{
	MaxChunkSize:       1024,
	JoinConcurrency:    5,
	JoinPartitionCount: 16,
	OOMUseTmpStorage:   true,
	TempStoragePath:    os.TempDir(),
	MemQuotaQuery:      1 << 30,
	MaxSpillRounds:     3,
	Log: Log{
		Level:  "info",
		Format: "text",
	},
}

var globalConf atomic.Value

func init() {
	conf := defaultConf
	StoreGlobalConfig(&conf)
}

// NewConfig creates a new config instance with default value.
func NewConfig() *Config {
	conf := defaultConf
	return &conf
}

// GetGlobalConfig returns the global configuration for this server.
// It should store configuration from command line and configuration file.
// Other parts of the system can read the global configuration use this function.
func GetGlobalConfig() *Config {
	return globalConf.Load().(*Config)
}

// StoreGlobalConfig stores a new config to the globalConf.
func StoreGlobalConfig(config *Config) {
	globalConf.Store(config)
}

// Load loads config options from a toml file.
func (c *Config) Load(confFile string) error {
	metaData, err := toml.DecodeFile(confFile, c)
	if err != nil {
		return errors.Trace(err)
	}
	if undecoded := metaData.Undecoded(); len(undecoded) > 0 {
		return errors.Errorf("config file %s contained unknown configuration options: %v", confFile, undecoded)
	}
	return nil
}

// Valid checks if this config is valid.
func (c *Config) Valid() error {
	if c.MaxChunkSize < 2 {
		return errors.Errorf("max-chunk-size should be no less than 2, got %d", c.MaxChunkSize)
	}
	if c.JoinConcurrency < 1 {
		return errors.Errorf("join-concurrency should be no less than 1, got %d", c.JoinConcurrency)
	}
	if c.JoinPartitionCount < 1 {
		return errors.Errorf("join-partition-count should be no less than 1, got %d", c.JoinPartitionCount)
	}
	if c.MaxSpillRounds < 0 {
		return errors.Errorf("max-spill-rounds should be non-negative, got %d", c.MaxSpillRounds)
	}
	switch c.Log.Level {
	case "debug", "info", "warn", "error", "fatal":
	default:
		return errors.Errorf("invalid log level %q", c.Log.Level)
	}
	return nil
}
