package pubsub

import "context"

// Event kinds published over a conversation topic.
const (
	// CreatedEvent announces a new sealed message.
	CreatedEvent EventType = "created"
	// DeltaEvent carries a streaming content update for the tail message.
	DeltaEvent EventType = "delta"
	// FinalizedEvent announces that the tail message was sealed.
	FinalizedEvent EventType = "finalized"
	// RetractedEvent withdraws a previously announced message.
	RetractedEvent EventType = "retracted"
	// ProgressEvent reports pipeline stage changes (searching, generating).
	ProgressEvent EventType = "progress"
)

// Progress stages carried by ProgressEvent payloads.
const (
	StageSearching  = "searching"
	StageGenerating = "generating"
)

type (
	// EventType identifies the kind of event.
	EventType string

	// Event is one occurrence on a conversation topic.
	Event[T any] struct {
		Type    EventType
		Payload T
	}

	// Publisher publishes events to all subscribers of a topic.
	Publisher[T any] interface {
		Publish(topic string, t EventType, payload T)
	}

	// Subscriber returns a read-only event channel that closes with the
	// context.
	Subscriber[T any] interface {
		Subscribe(ctx context.Context, topic string) <-chan Event[T]
	}
)

// MessageEvent is the payload published for chat message lifecycle events.
type MessageEvent struct {
	ConversationID string `json:"conversation_id"`
	MessageID      string `json:"message_id,omitempty"`
	Role           string `json:"role,omitempty"`
	Content        string `json:"content,omitempty"`
	Done           bool   `json:"done,omitempty"`
	Stage          string `json:"stage,omitempty"`
}
