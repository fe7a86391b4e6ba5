package batch

import (
	"errors"
	"fmt"
	"path"
	"strings"
)

var (
	// ErrEmptyBatch is returned when a batch without jobs is rendered or submitted.
	ErrEmptyBatch = errors.New("batch has no jobs")
	// ErrNoImage is returned when a job has no image and the batch no default.
	ErrNoImage = errors.New("job has no container image")
	// ErrNoRemoteTmpdir is returned when outputs are declared without a remote tmpdir.
	ErrNoRemoteTmpdir = errors.New("batch has outputs but no remote tmpdir")
)

// Spec is the wire form of a batch.
type Spec struct {
	BillingProject string            `json:"billing_project"`
	Token          string            `json:"token"`
	NJobs          int               `json:"n_jobs"`
	Attributes     map[string]string `json:"attributes,omitempty"`
	Jobs           []JobSpec         `json:"jobs"`
}

// JobSpec is the wire form of a job.
type JobSpec struct {
	JobID       int               `json:"job_id"`
	ParentIDs   []int             `json:"parent_ids"`
	AlwaysRun   bool              `json:"always_run"`
	Process     ProcessSpec       `json:"process"`
	Env         []EnvVar          `json:"env,omitempty"`
	Resources   *ResourceSpec     `json:"resources,omitempty"`
	InputFiles  []FileTransfer    `json:"input_files,omitempty"`
	OutputFiles []FileTransfer    `json:"output_files,omitempty"`
	Attributes  map[string]string `json:"attributes"`
}

// ProcessSpec describes the container run by a job.
type ProcessSpec struct {
	Type              string   `json:"type"`
	Image             string   `json:"image"`
	Command           []string `json:"command"`
	MountDockerSocket bool     `json:"mount_docker_socket"`
}

// ResourceSpec describes requested compute resources.
type ResourceSpec struct {
	CPU    string `json:"cpu,omitempty"`
	Memory string `json:"memory,omitempty"`
}

// FileTransfer copies a file between remote storage and the container.
type FileTransfer struct {
	From string `json:"from"`
	To   string `json:"to"`
}

// Spec renders the batch. It fails if any job cannot be started remotely.
func (b *Batch) Spec() (*Spec, error) {
	if len(b.jobs) == 0 {
		return nil, ErrEmptyBatch
	}

	spec := &Spec{
		BillingProject: b.BillingProject,
		Token:          b.Token,
		NJobs:          len(b.jobs),
		Attributes:     b.Attributes,
		Jobs:           make([]JobSpec, 0, len(b.jobs)),
	}

	for _, j := range b.jobs {
		js, err := j.spec()
		if err != nil {
			return nil, fmt.Errorf("job %d (%s): %w", j.ID, j.Name, err)
		}
		spec.Jobs = append(spec.Jobs, js)
	}
	return spec, nil
}

func (j *Job) spec() (JobSpec, error) {
	image := j.ImageRef()
	if image == "" {
		return JobSpec{}, ErrNoImage
	}

	js := JobSpec{
		JobID:      j.ID,
		ParentIDs:  make([]int, 0, len(j.parents)),
		Env:        j.EnvVars(),
		Attributes: j.attributes,
		Process: ProcessSpec{
			Type:    "docker",
			Image:   image,
			Command: []string{"/bin/bash", "-c", j.containerScript()},
		},
	}
	for _, p := range j.parents {
		js.ParentIDs = append(js.ParentIDs, p.ID)
	}

	if j.cpu != "" || j.memory != "" {
		js.Resources = &ResourceSpec{CPU: j.cpu, Memory: j.memory}
	}

	for _, r := range j.inputs {
		if r.RemotePath == "" {
			return JobSpec{}, ErrNoRemoteTmpdir
		}
		js.InputFiles = append(js.InputFiles, FileTransfer{From: r.RemotePath, To: r.LocalPath})
	}
	for _, r := range j.outputs {
		if r.RemotePath == "" {
			return JobSpec{}, ErrNoRemoteTmpdir
		}
		js.OutputFiles = append(js.OutputFiles, FileTransfer{From: r.LocalPath, To: r.RemotePath})
	}

	return js, nil
}

// strictMode makes the container script stop at the first failing command,
// including a failure anywhere in a pipeline.
const strictMode = "set -eo pipefail\n"

// containerScript runs the job commands in strict mode after creating the
// output directories.
func (j *Job) containerScript() string {
	var prelude strings.Builder
	prelude.WriteString(strictMode)
	dirs := make(map[string]bool)
	for _, r := range j.outputs {
		dir := path.Dir(r.LocalPath)
		if dirs[dir] {
			continue
		}
		dirs[dir] = true
		prelude.WriteString("mkdir -p " + dir + "\n")
	}
	return prelude.String() + j.Script()
}
