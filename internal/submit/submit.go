// Package submit builds the driver job that launches a Cromwell workflow run.
package submit

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/mgeaghan/cpg-chip/internal/batch"
	"github.com/mgeaghan/cpg-chip/internal/config"
	"github.com/mgeaghan/cpg-chip/internal/cromwell"
	"github.com/mgeaghan/cpg-chip/internal/gitrepo"
	"github.com/mgeaghan/cpg-chip/internal/log"
)

// EnvDriverImage is the environment fallback for the driver image.
const EnvDriverImage = "DRIVER_IMAGE"

// WorkflowSubmission describes one workflow run to launch.
type WorkflowSubmission struct {
	JobPrefix   string
	Dataset     string
	AccessLevel string
	// Workflow is the WDL file to run, relative to WorkingDir.
	Workflow     string
	Libraries    []string
	OutputPrefix string
	Labels       map[string]string
	// Inputs and InputPaths are both forwarded when set.
	Inputs       config.Params
	InputPaths   []string
	Organisation string
	Repo         string
	Commit       string
	WorkingDir   string
	DriverImage  string
	Project      string
	CopyOutputs  bool
	// Outputs, when set, adds a watch job that collects these workflow outputs.
	Outputs []cromwell.OutputType
}

// Submitter adds driver jobs to a batch. It never dispatches the batch.
type Submitter struct {
	cfg       *config.Config
	git       gitrepo.Resolver
	lookupEnv func(string) (string, bool)
	logger    *slog.Logger
}

// New returns a Submitter reading storage and Cromwell settings from cfg and
// repository context from resolver.
func New(cfg *config.Config, resolver gitrepo.Resolver) *Submitter {
	return &Submitter{
		cfg:       cfg,
		git:       resolver,
		lookupEnv: os.LookupEnv,
		logger:    log.WithComponent("submit"),
	}
}

// WithLookupEnv overrides environment lookup.
func (s *Submitter) WithLookupEnv(fn func(string) (string, bool)) *Submitter {
	s.lookupEnv = fn
	return s
}

// Submit adds a <JobPrefix>_submit job to b that checks out the repository and
// posts the workflow to Cromwell. The returned outputs always contain the
// workflow id under cromwell.WorkflowIDOutput. Every error is returned before
// any job is added.
func (s *Submitter) Submit(ctx context.Context, b *batch.Batch, sub WorkflowSubmission) (*batch.Job, cromwell.Outputs, error) {
	if err := s.validate(sub); err != nil {
		return nil, nil, err
	}

	image := sub.DriverImage
	if image == "" {
		if v, ok := s.lookupEnv(EnvDriverImage); ok {
			image = strings.TrimSpace(v)
		}
	}
	if image == "" {
		return nil, nil, fmt.Errorf("%w: no driver image given and %s is not set", config.ErrConfiguration, EnvDriverImage)
	}

	paths, err := s.paths(sub)
	if err != nil {
		return nil, nil, err
	}

	repo, commit, err := gitrepo.Resolve(ctx, s.git, sub.Repo, sub.Commit)
	if err != nil {
		return nil, nil, err
	}

	logger := s.logger.With("job_prefix", sub.JobPrefix, "repo", repo, "commit", commit)

	prepare := gitrepo.PrepareOptions{
		Organisation: sub.Organisation,
		Repo:         repo,
		Commit:       commit,
		IsTest:       sub.AccessLevel == config.AccessLevelTest,
	}
	settings := cromwell.SettingsFromConfig(s.cfg.Cromwell)
	run := cromwell.RunOptions{
		Dataset:      sub.Dataset,
		AccessLevel:  sub.AccessLevel,
		Workflow:     sub.Workflow,
		Cwd:          sub.WorkingDir,
		Libs:         sub.Libraries,
		OutputPrefix: sub.OutputPrefix,
		Inputs:       sub.Inputs,
		InputPaths:   sub.InputPaths,
		Labels:       sub.Labels,
		Project:      sub.Project,
		CopyOutputs:  sub.CopyOutputs,
		Paths:        paths,
		Settings:     settings,
	}
	if err := errors.Join(prepare.Validate(), run.Validate(), validateOutputs(sub.Outputs)); err != nil {
		return nil, nil, err
	}

	job := b.NewJob(sub.JobPrefix+"_submit").Image(image).Attribute("workflow", sub.Workflow)
	if err := gitrepo.PrepareJob(job, prepare); err != nil {
		return nil, nil, err
	}
	wid, err := cromwell.RunWorkflow(job, run)
	if err != nil {
		return nil, nil, err
	}

	outputs := cromwell.Outputs{cromwell.WorkflowIDOutput: {Single: wid}}
	if len(sub.Outputs) > 0 {
		watch, collected, err := cromwell.WatchWorkflow(b, cromwell.WatchOptions{
			JobPrefix:  sub.JobPrefix,
			WorkflowID: wid,
			Outputs:    sub.Outputs,
			Image:      image,
			Settings:   settings,
		})
		if err != nil {
			return nil, nil, err
		}
		for name, o := range collected {
			outputs[name] = o
		}
		logger.Debug("watch job added", "job", watch.Name, "outputs", len(collected))
	}

	logger.Info("driver job added", "job", job.Name, "workflow", sub.Workflow, "image", image)
	return job, outputs, nil
}

func (s *Submitter) validate(sub WorkflowSubmission) error {
	var errs []error
	if sub.JobPrefix == "" {
		errs = append(errs, fmt.Errorf("%w: job prefix is required", config.ErrConfiguration))
	}
	if sub.Workflow == "" {
		errs = append(errs, fmt.Errorf("%w: workflow is required", config.ErrConfiguration))
	}
	if sub.AccessLevel == "" {
		errs = append(errs, config.MissingKeyError("workflow.access_level"))
	}
	if s.cfg.Cromwell.URL == "" {
		errs = append(errs, config.MissingKeyError("cromwell.url"))
	}
	return errors.Join(errs...)
}

// validateOutputs checks watched outputs can be declared and do not shadow
// the workflow id.
func validateOutputs(types []cromwell.OutputType) error {
	for _, ot := range types {
		if ot.Name == cromwell.WorkflowIDOutput {
			return fmt.Errorf("%w: output name %q is reserved", cromwell.ErrInvalidRun, ot.Name)
		}
	}
	return cromwell.ValidateOutputs(types)
}

func (s *Submitter) paths(sub WorkflowSubmission) (cromwell.Paths, error) {
	st, err := s.cfg.DatasetStorage(sub.Dataset)
	if err != nil {
		return cromwell.Paths{}, err
	}
	if st.Default == "" {
		return cromwell.Paths{}, config.MissingKeyError("storage." + sub.Dataset + ".default")
	}

	prefix := strings.Trim(sub.OutputPrefix, "/")
	main := strings.TrimRight(st.Default, "/")
	analysis := main
	if st.Analysis != "" {
		analysis = strings.TrimRight(st.Analysis, "/")
	}
	tmp := main + "/tmp"
	if st.Tmp != "" {
		tmp = strings.TrimRight(st.Tmp, "/")
	}

	return cromwell.Paths{
		Intermediate: tmp + "/cromwell",
		Outputs:      main + "/" + prefix,
		Logs:         analysis + "/cromwell_logs/" + prefix,
	}, nil
}
