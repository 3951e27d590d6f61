package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	"chess-worker/engine"

	"github.com/rs/zerolog"
)

type Config struct {
	Engine EngineConfig `json:"engine"`
	Server ServerConfig `json:"server"`
	Log    LogConfig    `json:"log"`
}

type EngineConfig struct {
	ReservedMarginMs       int `json:"reserved_margin_ms"`
	BranchingEstimate      int `json:"branching_estimate"`
	SliceMs                int `json:"slice_ms"`
	ClockCheckNodes        int `json:"clock_check_nodes"`
	MaxPly                 int `json:"max_ply"`
	DefaultQuiescenceDepth int `json:"default_quiescence_depth"`
}

type ServerConfig struct {
	Listen              string `json:"listen"`
	Stdio               bool   `json:"stdio"`
	HeartbeatIntervalMs int    `json:"heartbeat_interval_ms"`
	ShutdownTimeoutMs   int    `json:"shutdown_timeout_ms"`
}

type LogConfig struct {
	Level  string `json:"level"`
	Pretty bool   `json:"pretty"`
}

func Default() Config {
	return Config{
		Engine: EngineConfig{
			ReservedMarginMs:       200,
			BranchingEstimate:      8,
			SliceMs:                16,
			ClockCheckNodes:        64,
			MaxPly:                 64,
			DefaultQuiescenceDepth: 6,
		},
		Server: ServerConfig{
			Stdio:               true,
			HeartbeatIntervalMs: 30000,
			ShutdownTimeoutMs:   5000,
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// Load overlays the JSON file at path on the defaults. An empty path returns the defaults.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config: %w", err)
	}
	if err := json.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config %s: %w", path, err)
	}
	return cfg, cfg.Validate()
}

func (c Config) Validate() error {
	var errs []error
	if c.Engine.ReservedMarginMs < 0 {
		errs = append(errs, errors.New("engine.reserved_margin_ms must not be negative"))
	}
	if c.Engine.BranchingEstimate < 1 {
		errs = append(errs, errors.New("engine.branching_estimate must be at least 1"))
	}
	if c.Engine.SliceMs < 1 {
		errs = append(errs, errors.New("engine.slice_ms must be at least 1"))
	}
	if c.Engine.ClockCheckNodes < 1 {
		errs = append(errs, errors.New("engine.clock_check_nodes must be at least 1"))
	}
	if c.Engine.MaxPly < 1 {
		errs = append(errs, errors.New("engine.max_ply must be at least 1"))
	}
	if c.Engine.DefaultQuiescenceDepth < 0 {
		errs = append(errs, errors.New("engine.default_quiescence_depth must not be negative"))
	}
	if !c.Server.Stdio && c.Server.Listen == "" {
		errs = append(errs, errors.New("nothing to serve: enable server.stdio or set server.listen"))
	}
	if c.Server.HeartbeatIntervalMs < 1 {
		errs = append(errs, errors.New("server.heartbeat_interval_ms must be at least 1"))
	}
	if _, err := zerolog.ParseLevel(c.Log.Level); err != nil {
		errs = append(errs, fmt.Errorf("log.level: %w", err))
	}
	return errors.Join(errs...)
}

// EngineOptions maps the file values onto engine options. Evaluator, yield and logger are
// left for the caller.
func (c Config) EngineOptions() engine.Options {
	opts := engine.DefaultOptions()
	opts.ReservedMargin = time.Duration(c.Engine.ReservedMarginMs) * time.Millisecond
	opts.BranchingEstimate = c.Engine.BranchingEstimate
	opts.Slice = time.Duration(c.Engine.SliceMs) * time.Millisecond
	opts.ClockCheckNodes = uint64(c.Engine.ClockCheckNodes)
	opts.MaxPly = c.Engine.MaxPly
	opts.DefaultQuiescenceDepth = c.Engine.DefaultQuiescenceDepth
	return opts
}

func (c Config) HeartbeatInterval() time.Duration {
	return time.Duration(c.Server.HeartbeatIntervalMs) * time.Millisecond
}

func (c Config) ShutdownTimeout() time.Duration {
	return time.Duration(c.Server.ShutdownTimeoutMs) * time.Millisecond
}
