// Package jobs defines the asynchronous work the ledger offloads:
// ingesting uploaded bank statements into transactions.
package jobs

import (
	"context"
	"time"
)

// JobStatus is the current state of a job.
type JobStatus string

const (
	JobStatusPending   JobStatus = "pending"
	JobStatusRunning   JobStatus = "running"
	JobStatusCompleted JobStatus = "completed"
	JobStatusFailed    JobStatus = "failed"
	JobStatusRetrying  JobStatus = "retrying"
)

// ImportStatementJob ingests a bank statement file from object storage
// into the open exercise of a building and year.
type ImportStatementJob struct {
	// JobID is the unique identifier for this job.
	JobID string `json:"job_id"`

	// BuildingID is the building whose ledger receives the transactions.
	BuildingID string `json:"building_id"`

	// GCSURI points at the uploaded statement file.
	GCSURI string `json:"gcs_uri"`

	// Imported is the number of transactions created, set on completion.
	Imported int `json:"imported"`

	// Years lists the fiscal years the imported rows fell into, set on
	// completion. Each row resolves its exercise from its own date, so a
	// statement may span several years.
	Years []int `json:"years,omitempty"`

	Status      JobStatus  `json:"status"`
	CreatedAt   time.Time  `json:"created_at"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`

	// Error contains failure details when Status is failed.
	Error string `json:"error,omitempty"`

	RetryCount int `json:"retry_count"`
	MaxRetries int `json:"max_retries"`
}

// Publisher enqueues jobs. The abstraction allows different queue
// implementations (in-memory, Cloud Tasks, Pub/Sub).
type Publisher interface {
	// PublishImportStatement enqueues a statement import.
	PublishImportStatement(ctx context.Context, job *ImportStatementJob) error

	// Close releases the publisher's resources.
	Close() error
}

// Consumer processes jobs from a queue.
type Consumer interface {
	// Start begins consuming; handler is called for each job.
	Start(ctx context.Context, handler Handler) error

	// Stop stops consuming and waits for in-flight jobs.
	Stop(ctx context.Context) error
}

// Handler processes one job. A returned error marks the job for retry.
type Handler func(ctx context.Context, job *ImportStatementJob) error

// Store tracks job state so callers can poll progress.
type Store interface {
	SaveJob(ctx context.Context, job *ImportStatementJob) error
	GetJob(ctx context.Context, jobID string) (*ImportStatementJob, error)
	ListJobs(ctx context.Context, filter Filter) ([]*ImportStatementJob, error)
}

// Filter selects jobs when listing.
type Filter struct {
	BuildingID string
	Status     JobStatus
	Limit      int
	Offset     int
}
