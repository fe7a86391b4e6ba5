// Package purge builds the job that removes a run's outputs from the release bucket.
package purge

import (
	"errors"
	"fmt"
	"regexp"

	"github.com/mgeaghan/cpg-chip/internal/batch"
	"github.com/mgeaghan/cpg-chip/internal/config"
	"github.com/mgeaghan/cpg-chip/internal/log"
)

// JobName is the name of the purge job.
const JobName = "move-chip-output-files"

const (
	tierMain    = "main"
	tierRelease = "release"
	outputsDir  = "mutect2-chip"
	keyFile     = "/gsa-key/key.json"
)

var (
	// ErrInvalidBucket reports a bucket outside the allow-list.
	ErrInvalidBucket = errors.New("invalid bucket")
	// ErrInvalidPath reports a target path with disallowed characters.
	ErrInvalidPath = errors.New("invalid path")

	mainSuffix = regexp.MustCompile(`-main$`)
)

// Policy is the allow-list a purge target must satisfy.
type Policy struct {
	Scheme   string
	Prefix   string
	Projects []string
}

// DefaultPolicy allows only the kccg-genomics-med buckets.
func DefaultPolicy() Policy {
	return Policy{
		Scheme:   "gs",
		Prefix:   "cpg",
		Projects: []string{"kccg-genomics-med"},
	}
}

// ReleaseBucket maps a main bucket to its release bucket by naming convention.
// A bucket without a trailing -main is returned unchanged.
func ReleaseBucket(bucket string) string {
	return mainSuffix.ReplaceAllString(bucket, "-release")
}

// ValidateBucket checks bucket is exactly <scheme>://<prefix>-<project>-<tier>
// for an allowed project.
func (p Policy) ValidateBucket(bucket, tier string) error {
	for _, project := range p.Projects {
		if bucket == fmt.Sprintf("%s://%s-%s-%s", p.Scheme, p.Prefix, project, tier) {
			return nil
		}
	}
	return fmt.Errorf("%w: %q is not an allowed %s bucket", ErrInvalidBucket, bucket, tier)
}

// ValidatePath checks path is a <scheme>:// URL built from letters, digits and -_./ only.
func (p Policy) ValidatePath(path string) error {
	pattern, err := regexp.Compile(`^` + regexp.QuoteMeta(p.Scheme) + `://[A-Za-z0-9\-_/.]+$`)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidPath, err)
	}
	if !pattern.MatchString(path) {
		return fmt.Errorf("%w: %q", ErrInvalidPath, path)
	}
	return nil
}

// Target is a validated purge location.
type Target struct {
	CromwellBucket string
	OutputBucket   string
	OutputPrefix   string
	Path           string
}

// ResolveTarget derives the purge path from cfg and validates both buckets and
// the final path against policy.
func ResolveTarget(cfg *config.Config, policy Policy) (Target, error) {
	cromwellBucket, err := cfg.DefaultBucket()
	if err != nil {
		return Target{}, err
	}
	outputBucket := ReleaseBucket(cromwellBucket)

	if err := policy.ValidateBucket(cromwellBucket, tierMain); err != nil {
		return Target{}, err
	}
	if err := policy.ValidateBucket(outputBucket, tierRelease); err != nil {
		return Target{}, err
	}

	w := cfg.Workflow
	var missing []error
	for _, f := range []struct{ key, value string }{
		{"workflow.name", w.Name},
		{"workflow.workflow_name", w.WorkflowName},
		{"workflow.run_id", w.RunID},
	} {
		if f.value == "" {
			missing = append(missing, config.MissingKeyError(f.key))
		}
	}
	if err := errors.Join(missing...); err != nil {
		return Target{}, err
	}

	prefix := w.Name + "/" + w.WorkflowName + "/" + w.RunID
	path := outputBucket + "/" + prefix + "/" + outputsDir + "/" + prefix
	if err := policy.ValidatePath(path); err != nil {
		return Target{}, err
	}

	return Target{
		CromwellBucket: cromwellBucket,
		OutputBucket:   outputBucket,
		OutputPrefix:   prefix,
		Path:           path,
	}, nil
}

// Command is the shell command that deletes t.
func (t Target) Command() string {
	return "gcloud -q auth activate-service-account --key-file=" + keyFile + "; gsutil rm -r " + t.Path
}

// BuildJob adds the purge job to b. Nothing is added unless every check passes.
func BuildJob(b *batch.Batch, cfg *config.Config, policy Policy) (*batch.Job, error) {
	target, err := ResolveTarget(cfg, policy)
	if err != nil {
		return nil, err
	}

	job := b.NewJob(JobName).
		CPU("0.25").
		Memory("lowmem").
		Attribute("target", target.Path).
		Command(target.Command())
	log.WithJob(JobName).Info("purge job added", "path", target.Path, "bucket", target.OutputBucket)
	return job, nil
}
