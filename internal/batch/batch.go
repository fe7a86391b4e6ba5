// Package batch models a declarative collection of container jobs and the
// backends that dispatch them to a batch service.
package batch

import (
	"strings"

	"github.com/google/uuid"
)

// Options configures a new Batch.
type Options struct {
	Name           string
	BillingProject string
	RemoteTmpdir   string
	DefaultImage   string
	Attributes     map[string]string
}

// Batch is a set of jobs submitted together.
type Batch struct {
	Name           string
	BillingProject string
	RemoteTmpdir   string
	DefaultImage   string
	Attributes     map[string]string
	// Token identifies the batch to the service; resubmitting the same token is idempotent.
	Token string

	jobs []*Job
}

// New creates an empty batch with a fresh token.
func New(opts Options) *Batch {
	attrs := make(map[string]string, len(opts.Attributes)+1)
	for k, v := range opts.Attributes {
		attrs[k] = v
	}
	if opts.Name != "" {
		attrs["name"] = opts.Name
	}

	return &Batch{
		Name:           opts.Name,
		BillingProject: opts.BillingProject,
		RemoteTmpdir:   strings.TrimRight(opts.RemoteTmpdir, "/"),
		DefaultImage:   opts.DefaultImage,
		Attributes:     attrs,
		Token:          uuid.NewString(),
	}
}

// NewJob appends a job to the batch. Job ids are 1-based in creation order.
func (b *Batch) NewJob(name string) *Job {
	j := &Job{
		batch:      b,
		ID:         len(b.jobs) + 1,
		UID:        strings.ReplaceAll(uuid.NewString(), "-", "")[:12],
		Name:       name,
		attributes: map[string]string{"name": name},
	}
	b.jobs = append(b.jobs, j)
	return j
}

// Jobs returns the jobs in creation order.
func (b *Batch) Jobs() []*Job {
	out := make([]*Job, len(b.jobs))
	copy(out, b.jobs)
	return out
}

// Len returns the number of jobs.
func (b *Batch) Len() int {
	return len(b.jobs)
}

// EnvVar is a single job environment variable.
type EnvVar struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// Job is one container invocation inside a Batch.
type Job struct {
	ID   int
	UID  string
	Name string

	batch      *Batch
	image      string
	commands   []string
	env        []EnvVar
	cpu        string
	memory     string
	parents    []*Job
	inputs     []*Resource
	outputs    []*Resource
	attributes map[string]string
}

// Image sets the container image.
func (j *Job) Image(ref string) *Job {
	j.image = ref
	return j
}

// ImageRef returns the job image, falling back to the batch default.
func (j *Job) ImageRef() string {
	if j.image != "" {
		return j.image
	}
	return j.batch.DefaultImage
}

// Command appends a shell command. Commands run in order in one bash process.
func (j *Job) Command(cmd string) *Job {
	j.commands = append(j.commands, cmd)
	return j
}

// Commands returns the job's commands in order.
func (j *Job) Commands() []string {
	out := make([]string, len(j.commands))
	copy(out, j.commands)
	return out
}

// Script renders the commands as the single script the container runs.
func (j *Job) Script() string {
	return strings.Join(j.commands, "\n")
}

// Env sets an environment variable, replacing an earlier value for the same name.
func (j *Job) Env(name, value string) *Job {
	for i := range j.env {
		if j.env[i].Name == name {
			j.env[i].Value = value
			return j
		}
	}
	j.env = append(j.env, EnvVar{Name: name, Value: value})
	return j
}

// EnvVars returns the environment in insertion order.
func (j *Job) EnvVars() []EnvVar {
	out := make([]EnvVar, len(j.env))
	copy(out, j.env)
	return out
}

// CPU sets the requested CPU (e.g. "0.25", "1").
func (j *Job) CPU(v string) *Job {
	j.cpu = v
	return j
}

// Memory sets the requested memory (e.g. "standard", "3.75Gi").
func (j *Job) Memory(v string) *Job {
	j.memory = v
	return j
}

// Attribute sets a job attribute shown by the batch service.
func (j *Job) Attribute(key, value string) *Job {
	j.attributes[key] = value
	return j
}

// DependsOn makes j start after the given jobs complete.
func (j *Job) DependsOn(parents ...*Job) *Job {
	for _, p := range parents {
		if p == nil || p == j || j.hasParent(p) {
			continue
		}
		j.parents = append(j.parents, p)
	}
	return j
}

// Parents returns the jobs j depends on.
func (j *Job) Parents() []*Job {
	out := make([]*Job, len(j.parents))
	copy(out, j.parents)
	return out
}

func (j *Job) hasParent(p *Job) bool {
	for _, existing := range j.parents {
		if existing == p {
			return true
		}
	}
	return false
}

// Output declares a file the job writes. Declaring the same name twice returns
// the same resource.
func (j *Job) Output(name string) *Resource {
	for _, r := range j.outputs {
		if r.Name == name {
			return r
		}
	}
	r := &Resource{
		Name:      name,
		Job:       j,
		LocalPath: "/io/batch/" + j.UID + "/" + name,
	}
	if j.batch.RemoteTmpdir != "" {
		r.RemotePath = j.batch.RemoteTmpdir + "/" + j.batch.Token + "/" + j.UID + "/" + name
	}
	j.outputs = append(j.outputs, r)
	return r
}

// Outputs returns the declared output resources in declaration order.
func (j *Job) Outputs() []*Resource {
	out := make([]*Resource, len(j.outputs))
	copy(out, j.outputs)
	return out
}

// Read makes r available to j and returns the local path to use in commands.
// Reading another job's output adds a dependency on that job.
func (j *Job) Read(r *Resource) string {
	if r.Job != j {
		j.DependsOn(r.Job)
		if !j.hasInput(r) {
			j.inputs = append(j.inputs, r)
		}
	}
	return r.LocalPath
}

func (j *Job) hasInput(r *Resource) bool {
	for _, existing := range j.inputs {
		if existing == r {
			return true
		}
	}
	return false
}

// Resource is a file produced by a job and materialised for its readers.
type Resource struct {
	Name       string
	Job        *Job
	LocalPath  string
	RemotePath string
}

// String returns the in-container path.
func (r *Resource) String() string {
	return r.LocalPath
}
