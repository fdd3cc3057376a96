// ABOUTME: Player configuration schema
// ABOUTME: YAML-backed settings for connection, output, timing and observability
package config

import (
	"time"

	"github.com/google/uuid"
)

// LogLevel controls log verbosity.
type LogLevel string

const (
	LogDebug LogLevel = "debug"
	LogInfo  LogLevel = "info"
	LogWarn  LogLevel = "warn"
	LogError LogLevel = "error"
)

// IsValid reports whether l is a recognised log level.
func (l LogLevel) IsValid() bool {
	switch l {
	case LogDebug, LogInfo, LogWarn, LogError:
		return true
	}
	return false
}

// Config is the top-level player configuration.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Player   PlayerConfig   `yaml:"player"`
	Playback PlaybackConfig `yaml:"playback"`
	Log      LogConfig      `yaml:"log"`
	Metrics  MetricsConfig  `yaml:"metrics"`
}

// ServerConfig says where to connect.
type ServerConfig struct {
	// Address is host:port or a URL. Empty means discover via mDNS.
	Address string `yaml:"address"`

	// DiscoveryTimeout bounds the mDNS search.
	DiscoveryTimeout time.Duration `yaml:"discovery_timeout"`

	// ReconnectDelay is the wait before redialing a lost connection.
	ReconnectDelay time.Duration `yaml:"reconnect_delay"`
}

// PlayerConfig identifies the player.
type PlayerConfig struct {
	ID     string `yaml:"id"`
	Name   string `yaml:"name"`
	Volume int    `yaml:"volume"`

	// Output is the audio backend: malgo, oto or null.
	Output string `yaml:"output"`
}

// PlaybackConfig tunes scheduling and protocol timers.
type PlaybackConfig struct {
	Lookahead        time.Duration `yaml:"lookahead"`
	Debounce         time.Duration `yaml:"debounce"`
	TimeSyncInterval time.Duration `yaml:"time_sync_interval"`
	StateInterval    time.Duration `yaml:"state_interval"`
}

// LogConfig controls logging.
type LogConfig struct {
	Level LogLevel `yaml:"level"`
	File  string   `yaml:"file"`
}

// MetricsConfig controls the Prometheus endpoint.
type MetricsConfig struct {
	// Addr is the listen address for /metrics. Empty disables it.
	Addr string `yaml:"addr"`
}

// Default returns a configuration with every field set.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			DiscoveryTimeout: 10 * time.Second,
			ReconnectDelay:   5 * time.Second,
		},
		Player: PlayerConfig{
			ID:     uuid.New().String(),
			Volume: 100,
			Output: "malgo",
		},
		Playback: PlaybackConfig{
			Lookahead:        200 * time.Millisecond,
			Debounce:         50 * time.Millisecond,
			TimeSyncInterval: 5 * time.Second,
			StateInterval:    5 * time.Second,
		},
		Log: LogConfig{
			Level: LogInfo,
			File:  "resonate-player.log",
		},
	}
}
