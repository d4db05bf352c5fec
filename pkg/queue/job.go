package queue

import (
	"context"
	"encoding/json"
)

// Job handles one message type.
type Job interface {
	// Name identifies the job in logs.
	Name() string

	// Type is the message type the job consumes.
	Type() string

	// Handle processes a payload. A returned error schedules a retry until
	// the retry limit is reached, then the message goes to the dead letter list.
	Handle(ctx context.Context, payload json.RawMessage) error
}

// JobFunc adapts a function to Job.
type JobFunc struct {
	JobName string
	MsgType string
	Fn      func(ctx context.Context, payload json.RawMessage) error
}

func (j JobFunc) Name() string { return j.JobName }
func (j JobFunc) Type() string { return j.MsgType }
func (j JobFunc) Handle(ctx context.Context, payload json.RawMessage) error {
	return j.Fn(ctx, payload)
}
