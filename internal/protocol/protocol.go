package protocol

import "encoding/json"

// MessageType defines the type of WebSocket message
type MessageType string

const (
	// TypeState is sent by the server with an automation status snapshot
	TypeState MessageType = "state"

	// TypeCommand is sent by a client to start or stop automation
	TypeCommand MessageType = "command"

	// TypeCommandResult is the server's answer to TypeCommand
	TypeCommandResult MessageType = "command_result"

	// TypePing can be used for application-level heartbeats if needed
	TypePing MessageType = "ping"
)

// Command actions
const (
	ActionStart = "start"
	ActionStop  = "stop"
)

// Message is the generic container for all WebSocket messages
type Message struct {
	Type    MessageType `json:"type"`
	Payload interface{} `json:"payload,omitempty"`
}

// CommandPayload is the payload for TypeCommand
type CommandPayload struct {
	Action string `json:"action"`
}

// CommandResultPayload is the payload for TypeCommandResult
type CommandResultPayload struct {
	Action string `json:"action"`
	OK     bool   `json:"ok"`
	Error  string `json:"error,omitempty"`
}

// DecodePayload converts a decoded generic payload into v.
func DecodePayload(msg Message, v interface{}) error {
	data, err := json.Marshal(msg.Payload)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, v)
}
