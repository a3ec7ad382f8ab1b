package queue

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// Message is the broker envelope. Exactly one payload is set and it must
// match Kind.
type Message struct {
	MessageID     string           `json:"messageId"`
	CorrelationID string           `json:"correlationId,omitempty"`
	Kind          Kind             `json:"kind"`
	Publish       *PublishPayload  `json:"publish,omitempty"`
	Revision      *RevisionPayload `json:"revision,omitempty"`
}

type PublishPayload struct {
	Category     string            `json:"category"`
	Event        string            `json:"event"`
	Title        string            `json:"title"`
	Body         string            `json:"body,omitempty"`
	Reference    *ReferencePayload `json:"reference,omitempty"`
	ActorID      *int64            `json:"actorId,omitempty"`
	ExcludeActor bool              `json:"excludeActor,omitempty"`
}

type ReferencePayload struct {
	EntityType string `json:"entityType"`
	EntityID   int64  `json:"entityId"`
}

type RevisionPayload struct {
	EntityType string          `json:"entityType"`
	EntityID   int64           `json:"entityId"`
	ActorID    *int64          `json:"actorId,omitempty"`
	Changes    []ChangePayload `json:"changes"`
}

type ChangePayload struct {
	Field    string  `json:"field"`
	OldValue *string `json:"oldValue"`
	NewValue *string `json:"newValue"`
}

func NewPublishMessage(payload PublishPayload) Message {
	return Message{
		MessageID: uuid.NewString(),
		Kind:      KindPublish,
		Publish:   &payload,
	}
}

func NewRevisionMessage(payload RevisionPayload) Message {
	return Message{
		MessageID: uuid.NewString(),
		Kind:      KindRevision,
		Revision:  &payload,
	}
}

// Validate checks the envelope shape only. Field-level rules are enforced by
// the services the worker hands the payload to.
func (m Message) Validate() error {
	if strings.TrimSpace(m.MessageID) == "" {
		return fmt.Errorf("messageId is required")
	}

	switch m.Kind {
	case KindPublish:
		if m.Publish == nil {
			return fmt.Errorf("publish payload is required for kind %q", m.Kind)
		}
		if m.Revision != nil {
			return fmt.Errorf("revision payload is not allowed for kind %q", m.Kind)
		}
	case KindRevision:
		if m.Revision == nil {
			return fmt.Errorf("revision payload is required for kind %q", m.Kind)
		}
		if m.Publish != nil {
			return fmt.Errorf("publish payload is not allowed for kind %q", m.Kind)
		}
		if len(m.Revision.Changes) == 0 {
			return fmt.Errorf("revision payload must include at least one change")
		}
	default:
		return fmt.Errorf("invalid kind %q", m.Kind)
	}

	return nil
}
