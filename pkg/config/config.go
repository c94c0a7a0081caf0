// Package config holds the settings the core recognises, decoded from YAML
// and overridable by CLI flags in cmd/sessiond.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the full set of tunables the scheduler core reads.
type Config struct {
	Scheduler SchedulerConfig `yaml:"scheduler"`
	Health    HealthConfig    `yaml:"health"`
	RPC       RPCConfig       `yaml:"rpc"`
	Raft      RaftConfig      `yaml:"raft"`
	Redis     RedisConfig     `yaml:"redis"`
	Bolt      BoltConfig      `yaml:"bolt"`
	Log       LogConfig       `yaml:"log"`
}

// SchedulerConfig controls the coordinator's main loop (spec §6.4, §4.4).
type SchedulerConfig struct {
	TickIntervalSec       int `yaml:"tick_interval"`
	DebounceMS            int `yaml:"debounce_ms"`
	LockAcquireTimeoutMS  int `yaml:"lock_acquire_timeout_ms"`
}

// HealthConfig holds the health monitor's tick and per-keeper thresholds.
// Only CheckIntervalSec is read; the keepers use their own fixed 900 s and
// 600 s thresholds, so PullingThresholdSec and CreatingThresholdSec have no
// effect.
type HealthConfig struct {
	CheckIntervalSec   int `yaml:"check_interval_sec"`
	PullingThresholdSec int `yaml:"pulling_threshold_sec"`
	CreatingThresholdSec int `yaml:"creating_threshold_sec"`
}

// RPCConfig holds agent RPC timeouts. cmd/sessiond applies CheckTimeoutSec
// to every agent RPC and does not read ControlTimeoutSec.
type RPCConfig struct {
	CheckTimeoutSec   int `yaml:"check_timeout_sec"`
	ControlTimeoutSec int `yaml:"control_timeout_sec"`
}

// RaftConfig wires the leader-elected consensus layer behind the
// coordinator and the repository contracts.
type RaftConfig struct {
	NodeID   string `yaml:"node_id"`
	BindAddr string `yaml:"bind_addr"`
	// ControlAddr is the grpc listener new voters dial to ask the leader
	// for a Raft seat (pkg/manager's Join); distinct from BindAddr, which
	// raft's own TCP transport owns.
	ControlAddr string `yaml:"control_addr"`
	DataDir     string `yaml:"data_dir"`
	JoinAddr    string `yaml:"join_addr"`
}

// RedisConfig wires the named-lock service and the ephemeral cache layer.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// BoltConfig holds bolt.data_dir. cmd/sessiond does not read it: the
// embedded store's data file is created under raft.data_dir.
type BoltConfig struct {
	DataDir string `yaml:"data_dir"`
}

// LogConfig controls pkg/log.
type LogConfig struct {
	Level      string `yaml:"level"`
	JSONOutput bool   `yaml:"json_output"`
}

// Default returns a Config populated with every default from spec §6.4.
func Default() Config {
	return Config{
		Scheduler: SchedulerConfig{
			TickIntervalSec:      1,
			DebounceMS:           100,
			LockAcquireTimeoutMS: 5000,
		},
		Health: HealthConfig{
			CheckIntervalSec:     60,
			PullingThresholdSec:  900,
			CreatingThresholdSec: 600,
		},
		RPC: RPCConfig{
			CheckTimeoutSec:   10,
			ControlTimeoutSec: 30,
		},
		Bolt:  BoltConfig{DataDir: "./data"},
		Redis: RedisConfig{Addr: "127.0.0.1:6379"},
		Log:   LogConfig{Level: "info", JSONOutput: true},
	}
}

// Load reads and parses a YAML config file, filling any unset field with its
// default.
func Load(path string) (Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// Validate checks that raft.node_id is set and that scheduler.tick_interval
// and health.check_interval_sec are positive; no other field is checked.
func (c Config) Validate() error {
	if c.Raft.NodeID == "" {
		return fmt.Errorf("raft.node_id is required")
	}
	if c.Scheduler.TickIntervalSec <= 0 {
		return fmt.Errorf("scheduler.tick_interval must be positive")
	}
	if c.Health.CheckIntervalSec <= 0 {
		return fmt.Errorf("health.check_interval_sec must be positive")
	}
	return nil
}

func (c SchedulerConfig) TickInterval() time.Duration {
	return time.Duration(c.TickIntervalSec) * time.Second
}

func (c SchedulerConfig) Debounce() time.Duration {
	return time.Duration(c.DebounceMS) * time.Millisecond
}

func (c SchedulerConfig) LockAcquireTimeout() time.Duration {
	return time.Duration(c.LockAcquireTimeoutMS) * time.Millisecond
}

func (c HealthConfig) CheckInterval() time.Duration {
	return time.Duration(c.CheckIntervalSec) * time.Second
}

func (c HealthConfig) PullingThreshold() time.Duration {
	return time.Duration(c.PullingThresholdSec) * time.Second
}

func (c HealthConfig) CreatingThreshold() time.Duration {
	return time.Duration(c.CreatingThresholdSec) * time.Second
}

func (c RPCConfig) CheckTimeout() time.Duration {
	return time.Duration(c.CheckTimeoutSec) * time.Second
}

func (c RPCConfig) ControlTimeout() time.Duration {
	return time.Duration(c.ControlTimeoutSec) * time.Second
}
