// ABOUTME: Resonate wire protocol package
// ABOUTME: Defines protocol messages, the binary frame codec and the WebSocket transport
// Package protocol implements the Resonate wire protocol.
//
// Provides message types, audio frame parsing and a WebSocket transport
// for communicating with Resonate servers.
//
// Example:
//
//	t := protocol.NewTransport(protocol.Handlers{OnText: handle})
//	err := t.Connect(ctx, "ws://localhost:8927/resonate?player_id=abc")
//	err = t.Send(protocol.Message{Type: protocol.TypeClientTime, Payload: protocol.ClientTime{ClientTransmitted: now}})
package protocol
