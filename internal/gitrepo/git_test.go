package gitrepo_test

import (
	"context"
	"errors"
	"os/exec"
	"testing"

	"github.com/golang/mock/gomock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mgeaghan/cpg-chip/internal/gitrepo"
	"github.com/mgeaghan/cpg-chip/internal/gitrepo/mocks"
)

func TestRepoNameFromRemote(t *testing.T) {
	tests := []struct {
		remote  string
		want    string
		wantErr bool
	}{
		{"git@github.com:populationgenomics/mutect2-chip.git", "mutect2-chip", false},
		{"https://github.com/populationgenomics/mutect2-chip.git", "mutect2-chip", false},
		{"https://github.com/populationgenomics/mutect2-chip", "mutect2-chip", false},
		{"https://github.com/populationgenomics/mutect2-chip/", "mutect2-chip", false},
		{"ssh://git@github.com/populationgenomics/mutect2-chip.git", "mutect2-chip", false},
		{"/local/path/repo.git", "repo", false},
		{"", "", true},
		{"https://github.com", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.remote, func(t *testing.T) {
			got, err := gitrepo.RepoNameFromRemote(tt.remote)
			if tt.wantErr {
				assert.ErrorIs(t, err, gitrepo.ErrResolution)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestResolveSkipsResolverWhenExplicit(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	// No expectations: any call fails the test.
	resolver := mocks.NewMockResolver(ctrl)

	repo, commit, err := gitrepo.Resolve(context.Background(), resolver, "mutect2-chip", "abc123")
	require.NoError(t, err)
	assert.Equal(t, "mutect2-chip", repo)
	assert.Equal(t, "abc123", commit)
}

func TestResolveFromResolver(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	ctx := context.Background()
	resolver := mocks.NewMockResolver(ctrl)
	resolver.EXPECT().DefaultRemote(ctx).Return("git@github.com:populationgenomics/mutect2-chip.git", nil)
	resolver.EXPECT().CommitRef(ctx).Return("deadbeef\n", nil)

	repo, commit, err := gitrepo.Resolve(ctx, resolver, "", "")
	require.NoError(t, err)
	assert.Equal(t, "mutect2-chip", repo)
	assert.Equal(t, "deadbeef", commit)
}

func TestResolveErrors(t *testing.T) {
	ctx := context.Background()

	t.Run("remote lookup fails", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		resolver := mocks.NewMockResolver(ctrl)
		resolver.EXPECT().DefaultRemote(ctx).Return("", errors.New("not a git repository"))

		_, _, err := gitrepo.Resolve(ctx, resolver, "", "abc")
		assert.ErrorIs(t, err, gitrepo.ErrResolution)
		assert.Contains(t, err.Error(), "not a git repository")
	})

	t.Run("commit lookup fails", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		resolver := mocks.NewMockResolver(ctrl)
		resolver.EXPECT().CommitRef(ctx).Return("", errors.New("no HEAD"))

		_, _, err := gitrepo.Resolve(ctx, resolver, "repo", "")
		assert.ErrorIs(t, err, gitrepo.ErrResolution)
	})

	t.Run("nil resolver", func(t *testing.T) {
		_, _, err := gitrepo.Resolve(ctx, nil, "", "")
		assert.ErrorIs(t, err, gitrepo.ErrResolution)
	})
}

func TestCLI(t *testing.T) {
	if _, err := exec.LookPath("git"); err != nil {
		t.Skip("git not installed")
	}

	dir := t.TempDir()
	run := func(args ...string) {
		t.Helper()
		cmd := exec.Command("git", args...)
		cmd.Dir = dir
		out, err := cmd.CombinedOutput()
		require.NoError(t, err, string(out))
	}

	ctx := context.Background()
	cli := gitrepo.NewCLI(dir)

	run("init", "-q")
	_, err := cli.DefaultRemote(ctx)
	assert.ErrorIs(t, err, gitrepo.ErrResolution)
	_, err = cli.CommitRef(ctx)
	assert.ErrorIs(t, err, gitrepo.ErrResolution)

	run("remote", "add", "upstream", "https://github.com/other/fork.git")
	run("remote", "add", "origin", "git@github.com:populationgenomics/mutect2-chip.git")
	run("-c", "user.name=test", "-c", "user.email=test@example.com", "commit", "-q", "--allow-empty", "-m", "init")

	remote, err := cli.DefaultRemote(ctx)
	require.NoError(t, err)
	assert.Equal(t, "git@github.com:populationgenomics/mutect2-chip.git", remote)

	commit, err := cli.CommitRef(ctx)
	require.NoError(t, err)
	assert.Len(t, commit, 40)
}
