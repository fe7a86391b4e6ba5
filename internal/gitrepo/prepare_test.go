package gitrepo_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mgeaghan/cpg-chip/internal/batch"
	"github.com/mgeaghan/cpg-chip/internal/gitrepo"
)

func newJob() *batch.Job {
	b := batch.New(batch.Options{BillingProject: "p", DefaultImage: "driver"})
	return b.NewJob("mutect2-chip-full_submit")
}

func TestPrepareJobProduction(t *testing.T) {
	job := newJob()
	err := gitrepo.PrepareJob(job, gitrepo.PrepareOptions{Repo: "mutect2-chip", Commit: "abc123"})
	require.NoError(t, err)

	assert.Equal(t, []string{
		"set -x",
		"gcloud -q auth activate-service-account --key-file=$GOOGLE_APPLICATION_CREDENTIALS",
		"git clone --recurse-submodules 'https://github.com/populationgenomics/mutect2-chip.git'",
		"cd 'mutect2-chip'",
		"git checkout main",
		`git merge-base --is-ancestor 'abc123' HEAD || { echo "error: commit "'abc123'" is not in the main branch"; exit 1; }`,
		"git checkout 'abc123'",
		"git submodule update",
	}, job.Commands())
	assert.Equal(t, []batch.EnvVar{{Name: "GOOGLE_APPLICATION_CREDENTIALS", Value: "/gsa-key/key.json"}}, job.EnvVars())
}

func TestPrepareJobTestTierSkipsMainCheck(t *testing.T) {
	job := newJob()
	err := gitrepo.PrepareJob(job, gitrepo.PrepareOptions{
		Organisation: "mgeaghan",
		Repo:         "mutect2-chip",
		Commit:       "abc123",
		IsTest:       true,
		Quiet:        true,
	})
	require.NoError(t, err)

	cmds := job.Commands()
	assert.NotContains(t, cmds, "git checkout main")
	assert.NotContains(t, cmds, "set -x")
	assert.Contains(t, cmds, "git clone --recurse-submodules 'https://github.com/mgeaghan/mutect2-chip.git'")
	assert.Equal(t, "git checkout 'abc123'", cmds[len(cmds)-2])
}

func TestPrepareJobQuotesHostileValues(t *testing.T) {
	job := newJob()
	err := gitrepo.PrepareJob(job, gitrepo.PrepareOptions{Repo: "repo", Commit: "x'; rm -rf /; '"})
	require.NoError(t, err)
	assert.Contains(t, job.Commands(), `git checkout 'x'\''; rm -rf /; '\'''`)
}

func TestPrepareJobRequiresRepoAndCommit(t *testing.T) {
	err := gitrepo.PrepareJob(newJob(), gitrepo.PrepareOptions{Repo: "repo"})
	assert.ErrorIs(t, err, gitrepo.ErrResolution)
}
