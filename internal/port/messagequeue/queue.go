// Package messagequeue defines the run lifecycle event subjects, their
// payloads and the queue port.
package messagequeue

import "context"

// Subjects used for run lifecycle events.
const (
	SubjectRunCreated = "runs.created" // a run was launched and persisted
	SubjectRunStuck   = "runs.stuck"   // a run cannot make progress in its region
	SubjectRunStatus  = "runs.status"  // the execution layer reports a status change
)

// Handler processes one message. A returned error asks for redelivery.
// The context carries the publisher's request id when one was sent.
type Handler func(ctx context.Context, subject string, data []byte) error

// Publisher emits run events.
type Publisher interface {
	Publish(ctx context.Context, subject string, data []byte) error
}

// Queue is a Publisher that can also consume subjects.
type Queue interface {
	Publisher

	// Subscribe starts delivering subject to handler until the returned
	// cancel func is called.
	Subscribe(ctx context.Context, subject string, handler Handler) (cancel func(), err error)

	// Drain stops accepting messages and waits for in-flight handlers.
	Drain() error
	Close() error
	IsConnected() bool
}
