package gitrepo

import (
	"fmt"

	"github.com/mgeaghan/cpg-chip/internal/batch"
)

const (
	// DefaultOrganisation owns the repositories driver jobs clone.
	DefaultOrganisation = "populationgenomics"
	// KeyFile is the service account key mounted into every job.
	KeyFile = "/gsa-key/key.json"
)

// PrepareOptions selects what a job checks out.
type PrepareOptions struct {
	Organisation string
	Repo         string
	Commit       string
	// IsTest skips the check that Commit is on the main branch.
	IsTest bool
	// Quiet disables command tracing.
	Quiet bool
}

// Validate reports options PrepareJob would reject.
func (o PrepareOptions) Validate() error {
	if o.Repo == "" || o.Commit == "" {
		return fmt.Errorf("%w: repo and commit are required", ErrResolution)
	}
	return nil
}

// PrepareJob writes commands onto job that clone Repo and check out Commit when the job runs.
// Outside the test tier the commit must already be merged into main.
func PrepareJob(job *batch.Job, opts PrepareOptions) error {
	if err := opts.Validate(); err != nil {
		return err
	}
	org := opts.Organisation
	if org == "" {
		org = DefaultOrganisation
	}

	job.Env("GOOGLE_APPLICATION_CREDENTIALS", KeyFile)
	if !opts.Quiet {
		job.Command("set -x")
	}
	job.Command("gcloud -q auth activate-service-account --key-file=$GOOGLE_APPLICATION_CREDENTIALS")

	repoURL := fmt.Sprintf("https://github.com/%s/%s.git", org, opts.Repo)
	job.Command("git clone --recurse-submodules " + batch.ShellQuote(repoURL))
	job.Command("cd " + batch.ShellQuote(opts.Repo))

	commit := batch.ShellQuote(opts.Commit)
	if !opts.IsTest {
		job.Command("git checkout main")
		job.Command(fmt.Sprintf(
			`git merge-base --is-ancestor %s HEAD || { echo "error: commit "%s" is not in the main branch"; exit 1; }`,
			commit, commit))
	}
	job.Command("git checkout " + commit)
	job.Command("git submodule update")
	return nil
}
