package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/mgeaghan/cpg-chip/internal/batch"
	"github.com/mgeaghan/cpg-chip/internal/config"
	"github.com/mgeaghan/cpg-chip/internal/gitrepo"
	"github.com/mgeaghan/cpg-chip/internal/log"
	"github.com/mgeaghan/cpg-chip/internal/purge"
	"github.com/mgeaghan/cpg-chip/internal/submit"
)

const purgeBatchName = "remove-chip-outputs"

// newBackend is replaced in tests.
var newBackend = func(ctx context.Context, cfg *config.Config, dryRun bool, out io.Writer) (batch.Backend, error) {
	if dryRun {
		return batch.NewDryRunBackend(out), nil
	}
	return batch.NewServiceBackend(ctx, batch.ServiceOptions{
		URL:        cfg.Hail.ServiceURL,
		Namespace:  cfg.Hail.Namespace,
		TokensFile: cfg.Hail.TokensFile,
	})
}

func runSubmit(args []string) int {
	var common commonFlags
	var repo, commit string
	fs := flag.NewFlagSet("submit", flag.ContinueOnError)
	common.register(fs)
	fs.StringVar(&repo, "repo", "", "Repository to check out (default: name of the local default remote)")
	fs.StringVar(&commit, "commit", "", "Commit to check out (default: local HEAD)")
	if !parseFlags(fs, args) {
		return 1
	}

	cfg, err := common.loadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Load error: %v\n", err)
		return 1
	}
	if err := cfg.RequireSubmit(); err != nil {
		fmt.Fprintf(os.Stderr, "Config error: %v\n", err)
		return 1
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	sub := submit.FullPipeline(cfg)
	sub.Repo = repo
	sub.Commit = commit

	b, err := newBatch(cfg, sub.JobPrefix)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Config error: %v\n", err)
		return 1
	}

	job, outputs, err := submit.New(cfg, gitrepo.NewCLI("")).Submit(ctx, b, sub)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Submit error: %v\n", err)
		return 1
	}
	log.WithBatch(b.Token).Debug("driver job built", "job", job.Name, "outputs", len(outputs))

	return dispatch(ctx, cfg, b, common.dryRun)
}

func runPurge(args []string) int {
	var common commonFlags
	fs := flag.NewFlagSet("purge", flag.ContinueOnError)
	common.register(fs)
	if !parseFlags(fs, args) {
		return 1
	}

	cfg, err := common.loadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Load error: %v\n", err)
		return 1
	}
	if err := cfg.RequirePurge(); err != nil {
		fmt.Fprintf(os.Stderr, "Config error: %v\n", err)
		return 1
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	b, err := newBatch(cfg, purgeBatchName)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Config error: %v\n", err)
		return 1
	}
	if _, err := purge.BuildJob(b, cfg, purge.DefaultPolicy()); err != nil {
		fmt.Fprintf(os.Stderr, "Purge error: %v\n", err)
		return 1
	}

	return dispatch(ctx, cfg, b, common.dryRun)
}

// newBatch creates a batch billed to the configured project. Jobs default to
// the driver image from config, else $DRIVER_IMAGE.
func newBatch(cfg *config.Config, name string) (*batch.Batch, error) {
	tmpdir, err := cfg.RemoteTmpdir()
	if err != nil {
		return nil, err
	}
	image := cfg.Workflow.DriverImage
	if image == "" {
		image = os.Getenv(submit.EnvDriverImage)
	}
	return batch.New(batch.Options{
		Name:           name,
		BillingProject: cfg.Hail.BillingProject,
		RemoteTmpdir:   tmpdir,
		DefaultImage:   image,
		Attributes: map[string]string{
			"dataset":       cfg.Workflow.Dataset,
			"access_level":  cfg.Workflow.AccessLevel,
			"config_digest": cfg.ShortFingerprint(),
		},
	}), nil
}

// dispatch submits b without waiting for it to finish.
func dispatch(ctx context.Context, cfg *config.Config, b *batch.Batch, dryRun bool) int {
	backend, err := newBackend(ctx, cfg, dryRun, os.Stdout)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Backend error: %v\n", err)
		return 1
	}

	res, err := backend.Submit(ctx, b, batch.SubmitOptions{Wait: false})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Dispatch error: %v\n", err)
		return 1
	}
	if res.DryRun {
		log.WithBatch(b.Token).Info("dry run, batch not submitted", "jobs", b.Len())
		return 0
	}
	fmt.Printf("batch %d submitted: %s\n", res.ID, res.URL)
	return 0
}
