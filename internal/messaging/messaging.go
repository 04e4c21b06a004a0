package messaging

import (
	"context"
	"time"

	"github.com/google/uuid"
)

const (
	ScanQueue       = "scan_queue"
	ProcessQueue    = "process_queue"
	RetryDelay      = 5 * time.Second
	MaxConnectRetry = 5
)

type Task interface {
	Type() string

	Payload() []byte

	Ack() error

	Nack() error

	Reject() error
}

// ScanTaskPayload triggers expanding a job's source listing into process tasks.
type ScanTaskPayload struct {
	JobId uuid.UUID
}

// ProcessTaskPayload identifies one chunk of photos to run through a job's pipeline.
type ProcessTaskPayload struct {
	JobId  uuid.UUID
	TaskId int
}

type Publisher interface {
	PublishScanTask(ctx context.Context, payload ScanTaskPayload) error

	PublishProcessTask(ctx context.Context, payload ProcessTaskPayload) error

	Close()
}

type Receiver interface {
	Tasks() <-chan Task

	Close()
}
