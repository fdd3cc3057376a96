package config_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/Resonate-Protocol/resonate-player/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultIsValid(t *testing.T) {
	t.Parallel()
	cfg := config.Default()

	require.NoError(t, config.Validate(cfg))
	assert.NotEmpty(t, cfg.Player.ID)
	assert.Equal(t, 100, cfg.Player.Volume)
	assert.Equal(t, 200*time.Millisecond, cfg.Playback.Lookahead)
	assert.Equal(t, 50*time.Millisecond, cfg.Playback.Debounce)
	assert.Equal(t, 5*time.Second, cfg.Server.ReconnectDelay)
}

func TestLoadFromReader_OverridesDefaults(t *testing.T) {
	t.Parallel()
	yaml := `
server:
  address: music.local:8927
player:
  id: kitchen
  name: Kitchen
  volume: 40
  output: oto
playback:
  lookahead: 300ms
log:
  level: debug
metrics:
  addr: ":9464"
`
	cfg, err := config.LoadFromReader(strings.NewReader(yaml))
	require.NoError(t, err)

	assert.Equal(t, "music.local:8927", cfg.Server.Address)
	assert.Equal(t, "kitchen", cfg.Player.ID)
	assert.Equal(t, 40, cfg.Player.Volume)
	assert.Equal(t, "oto", cfg.Player.Output)
	assert.Equal(t, 300*time.Millisecond, cfg.Playback.Lookahead)
	assert.Equal(t, 50*time.Millisecond, cfg.Playback.Debounce, "unset keys keep defaults")
	assert.Equal(t, config.LogDebug, cfg.Log.Level)
	assert.Equal(t, ":9464", cfg.Metrics.Addr)
}

func TestLoadFromReader_Empty(t *testing.T) {
	t.Parallel()
	cfg, err := config.LoadFromReader(strings.NewReader(""))
	require.NoError(t, err)
	assert.Equal(t, config.LogInfo, cfg.Log.Level)
}

func TestLoadFromReader_RejectsUnknownKeys(t *testing.T) {
	t.Parallel()
	_, err := config.LoadFromReader(strings.NewReader("player:\n  colour: blue\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "colour")
}

func TestValidate_CollectsAllErrors(t *testing.T) {
	t.Parallel()
	yaml := `
player:
  id: ""
  volume: 140
  output: alsa
log:
  level: loud
playback:
  debounce: -1s
`
	_, err := config.LoadFromReader(strings.NewReader(yaml))
	require.Error(t, err)

	for _, want := range []string{"player.id", "player.volume", "player.output", "log.level", "playback.debounce"} {
		assert.Contains(t, err.Error(), want)
	}
}

func TestValidate_RejectsZeroVolume(t *testing.T) {
	t.Parallel()
	_, err := config.LoadFromReader(strings.NewReader("player:\n  volume: 0\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "player.volume 0")
	assert.Contains(t, err.Error(), "mute")
}

func TestValidate_DebounceShorterThanLookahead(t *testing.T) {
	t.Parallel()
	yaml := `
playback:
  lookahead: 50ms
  debounce: 80ms
`
	_, err := config.LoadFromReader(strings.NewReader(yaml))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "shorter than")
}

func TestLoad_File(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "player.yaml")
	require.NoError(t, os.WriteFile(path, []byte("player:\n  name: Den\n"), 0o600))

	cfg, err := config.Load(path)
	require.NoError(t, err)
	assert.Equal(t, "Den", cfg.Player.Name)

	_, err = config.Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.ErrorContains(t, err, "open")
}
