// ABOUTME: Entry point for the Resonate player
// ABOUTME: Parses CLI flags, loads config and runs the player with its TUI
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Resonate-Protocol/resonate-player/internal/config"
	"github.com/Resonate-Protocol/resonate-player/internal/discovery"
	"github.com/Resonate-Protocol/resonate-player/internal/observe"
	"github.com/Resonate-Protocol/resonate-player/internal/ui"
	"github.com/Resonate-Protocol/resonate-player/internal/version"
	"github.com/Resonate-Protocol/resonate-player/pkg/resonate"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

// errQuit ends the run group when the user leaves the TUI
var errQuit = errors.New("quit")

type options struct {
	configPath  string
	server      string
	name        string
	output      string
	volume      int
	logLevel    string
	logFile     string
	metricsAddr string
	noTUI       bool
}

func main() {
	if err := newRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	opts := &options{}

	cmd := &cobra.Command{
		Use:          "resonate-player",
		Short:        "Synchronized Resonate audio player",
		Long:         "Connect to a Resonate server and play its audio stream in sync with the rest of the group",
		Version:      version.Version,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd, opts)
			if err != nil {
				return err
			}
			return run(cmd.Context(), cfg, !opts.noTUI)
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&opts.configPath, "config", "", "YAML config file")
	flags.StringVar(&opts.server, "server", "", "Server address (skip mDNS)")
	flags.StringVar(&opts.name, "name", "", "Player friendly name (default: hostname-resonate-player)")
	flags.StringVar(&opts.output, "output", "", "Audio backend: malgo, oto or null")
	flags.IntVar(&opts.volume, "volume", 100, "Initial volume (1-100)")
	flags.StringVar(&opts.logLevel, "log-level", "", "Log level: debug, info, warn or error")
	flags.StringVar(&opts.logFile, "log-file", "", "Log file path")
	flags.StringVar(&opts.metricsAddr, "metrics-addr", "", "Serve Prometheus metrics on this address")
	flags.BoolVar(&opts.noTUI, "no-tui", false, "Disable TUI, stream logs to stdout")

	return cmd
}

// loadConfig reads the config file, if any, and applies flags the user set
func loadConfig(cmd *cobra.Command, opts *options) (*config.Config, error) {
	cfg := config.Default()
	if opts.configPath != "" {
		var err error
		if cfg, err = config.Load(opts.configPath); err != nil {
			return nil, err
		}
	}

	flags := cmd.Flags()
	if flags.Changed("server") {
		cfg.Server.Address = opts.server
	}
	if flags.Changed("name") {
		cfg.Player.Name = opts.name
	}
	if flags.Changed("output") {
		cfg.Player.Output = opts.output
	}
	if flags.Changed("volume") {
		cfg.Player.Volume = opts.volume
	}
	if flags.Changed("log-level") {
		cfg.Log.Level = config.LogLevel(opts.logLevel)
	}
	if flags.Changed("log-file") {
		cfg.Log.File = opts.logFile
	}
	if flags.Changed("metrics-addr") {
		cfg.Metrics.Addr = opts.metricsAddr
	}

	if cfg.Player.Name == "" {
		hostname, err := os.Hostname()
		if err != nil {
			hostname = "unknown"
		}
		cfg.Player.Name = fmt.Sprintf("%s-resonate-player", hostname)
	}

	if err := config.Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func slogLevel(l config.LogLevel) slog.Level {
	switch l {
	case config.LogDebug:
		return slog.LevelDebug
	case config.LogWarn:
		return slog.LevelWarn
	case config.LogError:
		return slog.LevelError
	}
	return slog.LevelInfo
}

// newLogger logs to the file only while the TUI owns the terminal, and to
// both stdout and the file otherwise
func newLogger(cfg config.LogConfig, useTUI bool) (*slog.Logger, io.Closer, error) {
	var w io.Writer = os.Stdout
	var closer io.Closer = io.NopCloser(nil)

	if cfg.File != "" {
		f, err := os.OpenFile(cfg.File, os.O_RDWR|os.O_CREATE|os.O_APPEND, 0o644)
		if err != nil {
			return nil, nil, fmt.Errorf("open log file: %w", err)
		}
		closer = f
		w = f
		if !useTUI {
			w = io.MultiWriter(os.Stdout, f)
		}
	} else if useTUI {
		w = io.Discard
	}

	handler := slog.NewTextHandler(w, &slog.HandlerOptions{Level: slogLevel(cfg.Level)})
	return slog.New(handler), closer, nil
}

func run(ctx context.Context, cfg *config.Config, useTUI bool) error {
	logger, logCloser, err := newLogger(cfg.Log, useTUI)
	if err != nil {
		return err
	}
	defer func() { _ = logCloser.Close() }()
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger.Info("starting resonate player", "name", cfg.Player.Name, "version", version.Version)

	serverAddr := cfg.Server.Address
	if serverAddr == "" {
		logger.Info("starting server discovery", "timeout", cfg.Server.DiscoveryTimeout)
		browser := discovery.NewBrowser(discovery.Config{Logger: logger})
		server, err := browser.Discover(ctx, cfg.Server.DiscoveryTimeout)
		if err != nil {
			return err
		}
		serverAddr = server.Addr()
	}

	metrics, err := observe.NewProvider("resonate-player", version.Version)
	if err != nil {
		return fmt.Errorf("create metrics provider: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = metrics.Shutdown(shutdownCtx)
	}()

	player, err := resonate.NewPlayer(resonate.PlayerConfig{
		ServerAddr: serverAddr,
		PlayerID:   cfg.Player.ID,
		PlayerName: cfg.Player.Name,
		Volume:     cfg.Player.Volume,
		Output:     cfg.Player.Output,
		DeviceInfo: resonate.DeviceInfo{
			ProductName:     version.Product,
			Manufacturer:    version.Manufacturer,
			SoftwareVersion: version.Version,
		},
		Lookahead:        cfg.Playback.Lookahead,
		Debounce:         cfg.Playback.Debounce,
		TimeSyncInterval: cfg.Playback.TimeSyncInterval,
		StateInterval:    cfg.Playback.StateInterval,
		ReconnectDelay:   cfg.Server.ReconnectDelay,
		Logger:           logger,
		Recorder:         metrics.Metrics,
	})
	if err != nil {
		return fmt.Errorf("create player: %w", err)
	}
	defer func() {
		if err := player.Close(); err != nil {
			logger.Error("error closing player", "error", err)
		}
		logger.Info("player stopped")
	}()

	// A failed first dial keeps retrying in the background
	if err := player.Connect(ctx); err != nil {
		logger.Warn("connection failed, retrying", "server", serverAddr, "error", err)
	}

	g, gctx := errgroup.WithContext(ctx)

	if cfg.Metrics.Addr != "" {
		g.Go(func() error {
			return metrics.Serve(gctx, cfg.Metrics.Addr, logger)
		})
	}

	if useTUI {
		prog := ui.Run(player, serverAddr)
		g.Go(func() error {
			if _, err := prog.Run(); err != nil {
				return fmt.Errorf("tui: %w", err)
			}
			return errQuit
		})
		g.Go(func() error {
			<-gctx.Done()
			prog.Quit()
			return nil
		})
	} else {
		g.Go(func() error {
			logStats(gctx, player, logger)
			return nil
		})
	}

	if err := g.Wait(); err != nil && !errors.Is(err, errQuit) {
		return err
	}
	return nil
}

// logStats reports playback statistics while the TUI is disabled
func logStats(ctx context.Context, player *resonate.Player, logger *slog.Logger) {
	ticker := time.NewTicker(10 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			conn, streaming := player.Status()
			stats := player.Stats()
			logger.Info("stats",
				"conn", conn.String(),
				"streaming", streaming,
				"received", stats.Received,
				"scheduled", stats.Scheduled,
				"late", stats.Late,
				"dropped", stats.Dropped,
				"synced", stats.Synchronized,
				"sync_error_us", stats.SyncError)
		}
	}
}
