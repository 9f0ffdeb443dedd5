package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
)

// LinkEvent is a platform-detected linkage between two content items, as
// published on the link-events topic by the platform sync pipeline.
type LinkEvent struct {
	SourceContentID  string    `json:"source_content_id"`
	TargetContentID  string    `json:"target_content_id"`
	RelationshipType string    `json:"relationship_type"`
	Platform         string    `json:"platform"`
	Confidence       float64   `json:"confidence"`
	DetectedAt       time.Time `json:"detected_at"`
	SchemaVersion    string    `json:"schema_version,omitempty"`
}

// MalformedMessageError marks a message that can never be processed. The
// consumer routes these to the DLQ instead of blocking the partition.
type MalformedMessageError struct {
	Err error
}

func (e *MalformedMessageError) Error() string {
	return fmt.Sprintf("malformed message: %v", e.Err)
}

func (e *MalformedMessageError) Unwrap() error { return e.Err }

// LinkEventHandler decodes link-event messages and forwards them to a
// domain handler.
type LinkEventHandler struct {
	handler func(ctx context.Context, event LinkEvent) error
	logger  *logrus.Logger
}

// NewLinkEventHandler creates a handler for platform link events.
func NewLinkEventHandler(handler func(ctx context.Context, event LinkEvent) error, logger *logrus.Logger) *LinkEventHandler {
	return &LinkEventHandler{handler: handler, logger: logger}
}

// HandleMessage implements the consumer Handler signature.
func (h *LinkEventHandler) HandleMessage(ctx context.Context, msg Message) error {
	var event LinkEvent
	if err := json.Unmarshal(msg.Value, &event); err != nil {
		return &MalformedMessageError{Err: err}
	}

	if event.SourceContentID == "" || event.TargetContentID == "" {
		return &MalformedMessageError{Err: fmt.Errorf("missing source or target content id")}
	}

	if event.DetectedAt.IsZero() {
		event.DetectedAt = msg.Timestamp
	}

	return h.handler(ctx, event)
}
