package batch

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
)

// DryRunBackend writes the batch spec as indented JSON instead of submitting it.
type DryRunBackend struct {
	w io.Writer
}

// NewDryRunBackend returns a backend that renders to w.
func NewDryRunBackend(w io.Writer) *DryRunBackend {
	return &DryRunBackend{w: w}
}

// Submit renders the batch. Wait has no effect.
func (d *DryRunBackend) Submit(_ context.Context, b *Batch, _ SubmitOptions) (*Submission, error) {
	spec, err := b.Spec()
	if err != nil {
		return nil, err
	}
	data, err := json.MarshalIndent(spec, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal batch spec: %w", err)
	}
	if _, err := fmt.Fprintln(d.w, string(data)); err != nil {
		return nil, fmt.Errorf("write batch spec: %w", err)
	}
	return &Submission{Token: b.Token, State: "dry-run", DryRun: true}, nil
}
