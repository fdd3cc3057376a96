// ABOUTME: Clock sync probe for Resonate servers
// ABOUTME: Connects with a silent output and prints the clock filter as it converges
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Resonate-Protocol/resonate-player/pkg/resonate"
)

var (
	serverAddr = flag.String("server", "localhost:8927", "Server address")
	name       = flag.String("name", "sync-probe", "Player name")
	interval   = flag.Duration("sync-interval", time.Second, "client/time interval")
	duration   = flag.Duration("duration", 30*time.Second, "How long to probe")
)

func main() {
	flag.Parse()

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))

	player, err := resonate.NewPlayer(resonate.PlayerConfig{
		ServerAddr:       *serverAddr,
		PlayerName:       *name,
		Output:           "null",
		TimeSyncInterval: *interval,
		Logger:           logger,
	})
	if err != nil {
		logger.Error("create player", "error", err)
		os.Exit(1)
	}
	defer player.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithTimeout(ctx, *duration)
	defer cancel()

	fmt.Printf("Probing %s as %q for %s\n", *serverAddr, *name, *duration)
	if err := player.Connect(ctx); err != nil {
		logger.Warn("connection failed, retrying", "error", err)
	}

	fmt.Printf("%-8s %-12s %8s %12s %12s %14s\n", "elapsed", "state", "samples", "offset(µs)", "error(µs)", "drift")
	start := time.Now()
	ticker := time.NewTicker(*interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			conn, _ := player.Status()
			s := player.Stats()
			fmt.Printf("%-8s %-12s %8d %12.0f %12.1f %14.9f\n",
				time.Since(start).Round(time.Second), conn, s.SyncSamples, s.Offset, s.SyncError, s.Drift)
		}
	}
}
