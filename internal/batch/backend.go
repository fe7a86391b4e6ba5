package batch

import (
	"context"
	"time"
)

//go:generate mockgen -destination=mocks/mock_backend.go -package=mocks github.com/mgeaghan/cpg-chip/internal/batch Backend

// Backend dispatches a batch for execution.
type Backend interface {
	Submit(ctx context.Context, b *Batch, opts SubmitOptions) (*Submission, error)
}

// SubmitOptions controls dispatch.
type SubmitOptions struct {
	// Wait blocks until every job has completed. The CLI always dispatches with Wait false.
	Wait bool
	// PollInterval is the status poll period when Wait is set.
	PollInterval time.Duration
}

// Submission describes a dispatched batch.
type Submission struct {
	ID     int64  `json:"id"`
	Token  string `json:"token"`
	URL    string `json:"url,omitempty"`
	State  string `json:"state,omitempty"`
	DryRun bool   `json:"dry_run,omitempty"`
}

var (
	_ Backend = (*ServiceBackend)(nil)
	_ Backend = (*DryRunBackend)(nil)
)
