// ABOUTME: High-level Resonate player library API
// ABOUTME: Provides the Player facade and the engine, scheduler and state behind it
// Package resonate provides a synchronized Resonate audio player.
//
// A Player connects to a server over WebSocket, performs the handshake,
// keeps the local clock in sync with the server and plays timestamped
// audio frames at the moment the server intended.
//
// Internally:
//   - Engine: protocol state machine (handshake, time sync, state reports, reconnects)
//   - Scheduler: decodes frames, reorders them and schedules them on the output
//   - State: volume, mute, stream format, stream anchor and periodic timers
//
// Example:
//
//	player, err := resonate.NewPlayer(resonate.PlayerConfig{
//	    ServerAddr: "localhost:8927",
//	    PlayerName: "Living Room",
//	    Volume:     80,
//	})
//	err = player.Connect(ctx)
//	player.SetVolume(50)
//	defer player.Close()
package resonate
