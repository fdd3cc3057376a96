// ABOUTME: Configuration loading and validation
// ABOUTME: Strict YAML decoding over defaults plus a joined validation error
package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"slices"
	"time"

	"gopkg.in/yaml.v3"
)

// ValidOutputs lists the audio backends the player can open.
var ValidOutputs = []string{"malgo", "oto", "null"}

// Load reads the YAML configuration file at path and returns a validated [Config].
// It is a convenience wrapper around [LoadFromReader] and [Validate].
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r on top of [Default] and
// validates the result. Unknown keys are rejected.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := Default()
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	if cfg.Player.ID == "" {
		errs = append(errs, errors.New("player.id is required"))
	}
	switch {
	case cfg.Player.Volume == 0:
		// The player treats a zero volume as unset and starts at 100
		errs = append(errs, errors.New("player.volume 0 is not allowed; use mute to start silent"))
	case cfg.Player.Volume < 0 || cfg.Player.Volume > 100:
		errs = append(errs, fmt.Errorf("player.volume %d is out of range [1, 100]", cfg.Player.Volume))
	}
	if cfg.Player.Output != "" && !slices.Contains(ValidOutputs, cfg.Player.Output) {
		errs = append(errs, fmt.Errorf("player.output %q is invalid; valid values: malgo, oto, null", cfg.Player.Output))
	}

	if cfg.Log.Level != "" && !cfg.Log.Level.IsValid() {
		errs = append(errs, fmt.Errorf("log.level %q is invalid; valid values: debug, info, warn, error", cfg.Log.Level))
	}

	durations := []struct {
		name  string
		value time.Duration
	}{
		{"server.discovery_timeout", cfg.Server.DiscoveryTimeout},
		{"server.reconnect_delay", cfg.Server.ReconnectDelay},
		{"playback.lookahead", cfg.Playback.Lookahead},
		{"playback.debounce", cfg.Playback.Debounce},
		{"playback.time_sync_interval", cfg.Playback.TimeSyncInterval},
		{"playback.state_interval", cfg.Playback.StateInterval},
	}
	for _, d := range durations {
		if d.value < 0 {
			errs = append(errs, fmt.Errorf("%s %s must not be negative", d.name, d.value))
		}
	}
	if cfg.Playback.Debounce > 0 && cfg.Playback.Lookahead > 0 && cfg.Playback.Debounce >= cfg.Playback.Lookahead {
		errs = append(errs, fmt.Errorf("playback.debounce %s must be shorter than playback.lookahead %s", cfg.Playback.Debounce, cfg.Playback.Lookahead))
	}

	return errors.Join(errs...)
}
