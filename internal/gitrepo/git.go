// Package gitrepo resolves the repository a driver job should check out and
// writes the checkout commands onto the job.
package gitrepo

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
)

// ErrResolution reports that the repository or commit could not be determined.
var ErrResolution = errors.New("git resolution error")

//go:generate mockgen -destination=mocks/mock_resolver.go -package=mocks github.com/mgeaghan/cpg-chip/internal/gitrepo Resolver

// Resolver finds the repository context of the local checkout.
type Resolver interface {
	DefaultRemote(ctx context.Context) (string, error)
	CommitRef(ctx context.Context) (string, error)
}

// CLI resolves repository context by running git in Dir.
type CLI struct {
	Dir string
}

// NewCLI returns a Resolver for the checkout at dir ("" for the working directory).
func NewCLI(dir string) *CLI {
	return &CLI{Dir: dir}
}

// DefaultRemote returns the URL of origin, or of the first remote when there is no origin.
func (c *CLI) DefaultRemote(ctx context.Context) (string, error) {
	out, err := c.git(ctx, "remote")
	if err != nil {
		return "", err
	}
	remotes := strings.Fields(out)
	if len(remotes) == 0 {
		return "", fmt.Errorf("%w: repository has no remotes", ErrResolution)
	}

	remote := remotes[0]
	for _, r := range remotes {
		if r == "origin" {
			remote = r
			break
		}
	}
	return c.git(ctx, "remote", "get-url", remote)
}

// CommitRef returns the full hash of HEAD.
func (c *CLI) CommitRef(ctx context.Context) (string, error) {
	return c.git(ctx, "rev-parse", "HEAD")
}

func (c *CLI) git(ctx context.Context, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, "git", args...)
	cmd.Dir = c.Dir

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		msg := strings.TrimSpace(stderr.String())
		if msg == "" {
			msg = err.Error()
		}
		return "", fmt.Errorf("%w: git %s: %s", ErrResolution, strings.Join(args, " "), msg)
	}
	return strings.TrimSpace(stdout.String()), nil
}

// RepoNameFromRemote extracts the repository name from a remote URL.
// Supported forms: git@host:org/repo.git, https://host/org/repo(.git), ssh://git@host/org/repo.git.
func RepoNameFromRemote(remote string) (string, error) {
	remote = strings.TrimSpace(remote)
	if remote == "" {
		return "", fmt.Errorf("%w: empty remote url", ErrResolution)
	}

	path := remote
	if i := strings.Index(path, "://"); i >= 0 {
		path = path[i+3:]
		if j := strings.Index(path, "/"); j >= 0 {
			path = path[j+1:]
		} else {
			path = ""
		}
	} else if i := strings.Index(path, ":"); i >= 0 {
		path = path[i+1:]
	}

	path = strings.TrimSuffix(strings.TrimRight(path, "/"), ".git")
	name := path
	if i := strings.LastIndex(path, "/"); i >= 0 {
		name = path[i+1:]
	}
	if name == "" {
		return "", fmt.Errorf("%w: cannot parse repository name from %q", ErrResolution, remote)
	}
	return name, nil
}

// Resolve fills in repo and commit from r when they are empty.
// r is not consulted when both are already set.
func Resolve(ctx context.Context, r Resolver, repo, commit string) (string, string, error) {
	if repo == "" {
		if r == nil {
			return "", "", fmt.Errorf("%w: no repository given and no resolver available", ErrResolution)
		}
		remote, err := r.DefaultRemote(ctx)
		if err != nil {
			return "", "", wrapResolution(err)
		}
		if repo, err = RepoNameFromRemote(remote); err != nil {
			return "", "", err
		}
	}
	if commit == "" {
		if r == nil {
			return "", "", fmt.Errorf("%w: no commit given and no resolver available", ErrResolution)
		}
		ref, err := r.CommitRef(ctx)
		if err != nil {
			return "", "", wrapResolution(err)
		}
		commit = strings.TrimSpace(ref)
		if commit == "" {
			return "", "", fmt.Errorf("%w: empty commit ref", ErrResolution)
		}
	}
	return repo, commit, nil
}

func wrapResolution(err error) error {
	if errors.Is(err, ErrResolution) {
		return err
	}
	return fmt.Errorf("%w: %v", ErrResolution, err)
}
