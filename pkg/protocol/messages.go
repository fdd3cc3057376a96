// ABOUTME: Resonate Protocol message type definitions
// ABOUTME: Defines structs for all control messages exchanged with the server
package protocol

import "encoding/json"

// Message types
const (
	TypeClientHello   = "client/hello"
	TypeClientTime    = "client/time"
	TypeClientState   = "client/state"
	TypeServerHello   = "server/hello"
	TypeServerTime    = "server/time"
	TypeServerState   = "server/state"
	TypeServerCommand = "server/command"
	TypeStreamStart   = "stream/start"
	TypeStreamUpdate  = "stream/update"
	TypeStreamClear   = "stream/clear"
	TypeStreamEnd     = "stream/end"
	TypeGroupUpdate   = "group/update"
)

// Player states reported in client/state
const (
	PlayerStateSynchronized = "synchronized"
	PlayerStateError        = "error"
)

// Player commands accepted in server/command
const (
	CommandVolume = "volume"
	CommandMute   = "mute"
)

// Message is the top-level wrapper for outgoing messages
type Message struct {
	Type    string `json:"type"`
	Payload any    `json:"payload"`
}

// Envelope is the top-level wrapper for incoming messages; the payload is
// decoded once the type is known.
type Envelope struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// DecodePayload unmarshals the payload into v. A missing payload leaves v
// untouched.
func (e Envelope) DecodePayload(v any) error {
	if len(e.Payload) == 0 || string(e.Payload) == "null" {
		return nil
	}
	return json.Unmarshal(e.Payload, v)
}

// ClientHello is sent by clients to initiate the handshake
type ClientHello struct {
	ClientID       string         `json:"client_id"`
	Name           string         `json:"name"`
	Version        int            `json:"version"`
	SupportedRoles []string       `json:"supported_roles"`
	DeviceInfo     *DeviceInfo    `json:"device_info,omitempty"`
	PlayerSupport  *PlayerSupport `json:"player_support,omitempty"`
}

// DeviceInfo contains device identification
type DeviceInfo struct {
	ProductName     string `json:"product_name,omitempty"`
	Manufacturer    string `json:"manufacturer,omitempty"`
	SoftwareVersion string `json:"software_version,omitempty"`
}

// PlayerSupport describes player capabilities
type PlayerSupport struct {
	SupportedFormats  []AudioFormat `json:"supported_formats"` // Ordered by preference
	BufferCapacity    int           `json:"buffer_capacity"`   // Bytes
	SupportedCommands []string      `json:"supported_commands"`
}

// AudioFormat describes a supported audio format
type AudioFormat struct {
	Codec      string `json:"codec"`
	Channels   int    `json:"channels"`
	SampleRate int    `json:"sample_rate"`
	BitDepth   int    `json:"bit_depth"`
}

// ServerHello is the server's response to client/hello
type ServerHello struct {
	ServerID    string   `json:"server_id,omitempty"`
	Name        string   `json:"name,omitempty"`
	Version     int      `json:"version,omitempty"`
	ActiveRoles []string `json:"active_roles,omitempty"`
}

// ClientTime is sent for clock synchronization
type ClientTime struct {
	ClientTransmitted int64 `json:"client_transmitted"` // Client timestamp in microseconds
}

// ServerTime is the response to client/time
type ServerTime struct {
	ClientTransmitted int64 `json:"client_transmitted"` // Echoed client timestamp
	ServerReceived    int64 `json:"server_received"`    // Server receive timestamp
	ServerTransmitted int64 `json:"server_transmitted"` // Server send timestamp
}

// ClientStateMessage is sent as client/state with role-specific objects
type ClientStateMessage struct {
	Player *PlayerState `json:"player,omitempty"`
}

// PlayerState reports the player's current state. All fields are required.
type PlayerState struct {
	State  string `json:"state"`  // "synchronized" or "error"
	Volume int    `json:"volume"` // 0-100
	Muted  bool   `json:"muted"`
}

// ServerCommandMessage is sent as server/command with role-specific objects
type ServerCommandMessage struct {
	Player *PlayerCommand `json:"player,omitempty"`
}

// PlayerCommand is a control command for the player. Volume and Mute are
// pointers so an absent field can be told apart from a zero value.
type PlayerCommand struct {
	Command string `json:"command"` // "volume" or "mute"
	Volume  *int   `json:"volume,omitempty"`
	Mute    *bool  `json:"mute,omitempty"`
}

// StreamFormat describes the audio carried by binary frames
type StreamFormat struct {
	Codec       string `json:"codec"`
	SampleRate  int    `json:"sample_rate"`
	Channels    int    `json:"channels"`
	BitDepth    int    `json:"bit_depth,omitempty"`
	CodecHeader string `json:"codec_header,omitempty"` // Base64-encoded
}

// StreamStart notifies the client of the stream format
type StreamStart struct {
	Player *StreamFormat `json:"player,omitempty"`
}

// StreamFormatUpdate carries only the format fields that changed
type StreamFormatUpdate struct {
	Codec       *string `json:"codec,omitempty"`
	SampleRate  *int    `json:"sample_rate,omitempty"`
	Channels    *int    `json:"channels,omitempty"`
	BitDepth    *int    `json:"bit_depth,omitempty"`
	CodecHeader *string `json:"codec_header,omitempty"`
}

// Apply returns f with the provided fields of u merged in
func (u StreamFormatUpdate) Apply(f StreamFormat) StreamFormat {
	if u.Codec != nil {
		f.Codec = *u.Codec
	}
	if u.SampleRate != nil {
		f.SampleRate = *u.SampleRate
	}
	if u.Channels != nil {
		f.Channels = *u.Channels
	}
	if u.BitDepth != nil {
		f.BitDepth = *u.BitDepth
	}
	if u.CodecHeader != nil {
		f.CodecHeader = *u.CodecHeader
	}
	return f
}

// StreamUpdate carries a partial format change for the running stream
type StreamUpdate struct {
	Player *StreamFormatUpdate `json:"player,omitempty"`
}

// StreamClear instructs clients to drop buffered audio (for seek)
type StreamClear struct {
	Roles []string `json:"roles,omitempty"`
}

// StreamEnd ends the stream
type StreamEnd struct {
	Roles []string `json:"roles,omitempty"`
}

// ServerStateMessage is sent as server/state; the player does not act on it
type ServerStateMessage struct {
	Metadata *MetadataState `json:"metadata,omitempty"`
}

// MetadataState contains track metadata
type MetadataState struct {
	Title  *string `json:"title,omitempty"`
	Artist *string `json:"artist,omitempty"`
	Album  *string `json:"album,omitempty"`
}

// GroupUpdate is sent as group/update; the player does not act on it
type GroupUpdate struct {
	PlaybackState *string `json:"playback_state,omitempty"` // "playing", "paused", "stopped"
	GroupID       *string `json:"group_id,omitempty"`
	GroupName     *string `json:"group_name,omitempty"`
}

// derefString safely dereferences a string pointer
func derefString(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

// String renders the metadata for logs
func (m *MetadataState) String() string {
	if m == nil {
		return ""
	}
	return derefString(m.Artist) + " - " + derefString(m.Title) + " (" + derefString(m.Album) + ")"
}
