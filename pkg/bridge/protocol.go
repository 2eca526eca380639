package bridge

import (
	"time"

	"github.com/google/uuid"

	"github.com/Veraticus/idlewatch/pkg/inactivity"
)

// MessageType identifies a bridge wire message.
type MessageType string

const (
	// MsgHello greets a new client with the run's identity and policy.
	MsgHello MessageType = "hello"
	// MsgState carries a full engine state snapshot.
	MsgState MessageType = "state"
	// MsgEvent carries one engine event.
	MsgEvent MessageType = "event"
)

// Message is the envelope every bridge frame uses.
type Message struct {
	Type    MessageType `json:"type"`
	Payload interface{} `json:"payload"`
}

// HelloPayload identifies the wrapped run to a connecting client.
type HelloPayload struct {
	RunID          string    `json:"runId"`
	Command        string    `json:"command"`
	StartedAt      time.Time `json:"startedAt"`
	TimeoutSeconds int       `json:"timeoutSeconds"`
	WarningSeconds int       `json:"warningSeconds,omitempty"`
}

// NewHello builds the greeting for a run, minting a fresh run ID.
func NewHello(command string, startedAt time.Time, policy inactivity.Policy) HelloPayload {
	return HelloPayload{
		RunID:          uuid.NewString(),
		Command:        command,
		StartedAt:      startedAt,
		TimeoutSeconds: int(policy.Timeout / time.Second),
		WarningSeconds: int(policy.WarningThreshold / time.Second),
	}
}
