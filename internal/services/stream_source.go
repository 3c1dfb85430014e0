package services

import "context"

// StreamEvent is one emission from the AI generation source. Text carries the
// accumulated text of its region so far; the surface applies full-replace
// streaming updates.
type StreamEvent struct {
	Kind string
	Text string
}

const (
	EventReasoning = "reasoning"
	EventContent   = "content"
	EventStatus    = "status"
)

// StreamSource is the boundary to the AI generation stream. Recv blocks until
// the next event and returns io.EOF when the stream completed successfully.
type StreamSource interface {
	Recv(ctx context.Context) (StreamEvent, error)
}
