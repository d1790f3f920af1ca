package ws

import (
	"time"

	"github.com/4ea-ind/ssatrend/internal/journal"
)

// MessageType discriminates stream messages.
type MessageType string

const (
	MessageRequestCompleted MessageType = "request.completed"
)

// Message is the envelope sent to stream subscribers.
type Message struct {
	Type      MessageType `json:"type"`
	Timestamp time.Time   `json:"timestamp"`
	Data      any         `json:"data"`
}

// completedMessage wraps a finished request. Series values are not included.
func completedMessage(e journal.Entry) Message {
	return Message{
		Type:      MessageRequestCompleted,
		Timestamp: e.ReceivedAt.Add(e.Duration),
		Data:      e,
	}
}
