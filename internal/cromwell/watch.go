package cromwell

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"time"

	"github.com/mgeaghan/cpg-chip/internal/batch"
)

const (
	// DefaultPollInterval is how often the watch job asks for the run status.
	DefaultPollInterval = 60 * time.Second
	// DefaultWatchTimeout bounds how long the watch job waits for the run.
	DefaultWatchTimeout = 72 * time.Hour
)

// WatchOptions configures a job that waits for a submitted run and collects
// its outputs.
type WatchOptions struct {
	JobPrefix    string
	WorkflowID   *batch.Resource
	Outputs      []OutputType
	Image        string
	Settings     Settings
	PollInterval time.Duration
	// Timeout fails the watch job when the run has not finished in time.
	Timeout time.Duration
}

// Validate reports options WatchWorkflow would reject.
func (o WatchOptions) Validate() error {
	if o.WorkflowID == nil {
		return fmt.Errorf("%w: workflow id resource is required", ErrInvalidRun)
	}
	if o.Settings.URL == "" {
		return fmt.Errorf("%w: %w", ErrInvalidRun, errors.New("cromwell url is required"))
	}
	return ValidateOutputs(o.Outputs)
}

// maxPolls is the number of status checks that fit in the timeout.
func (o WatchOptions) maxPolls() (int, time.Duration) {
	interval := o.PollInterval
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	timeout := o.Timeout
	if timeout <= 0 {
		timeout = DefaultWatchTimeout
	}
	polls := int(math.Ceil(float64(timeout) / float64(interval)))
	if polls < 1 {
		polls = 1
	}
	return polls, interval
}

// WatchWorkflow adds a <prefix>_watch job that polls Cromwell until the run
// identified by opts.WorkflowID finishes, then writes each declared output.
// The job fails on a missing run id, an unknown status or a timeout.
func WatchWorkflow(b *batch.Batch, opts WatchOptions) (*batch.Job, Outputs, error) {
	if err := opts.Validate(); err != nil {
		return nil, nil, err
	}
	polls, interval := opts.maxPolls()

	job := b.NewJob(opts.JobPrefix + "_watch")
	if opts.Image != "" {
		job.Image(opts.Image)
	}
	job.CPU("0.25").Memory("lowmem")
	outputs := declare(job, opts.Outputs)

	api := batch.ShellQuote(opts.Settings.URL + workflowsPath)
	token := "$(" + identityTokenCommand(opts.Settings) + ")"

	job.Env("GOOGLE_APPLICATION_CREDENTIALS", keyFile)
	job.Command("gcloud -q auth activate-service-account --key-file=" + keyFile)
	job.Command(fmt.Sprintf("wid=$(cat %s)", job.Read(opts.WorkflowID)))
	job.Command(`if [ -z "$wid" ]; then echo "error: no workflow id to watch" >&2; exit 1; fi`)
	job.Command(fmt.Sprintf(`polls=0
while true; do
  status=$(curl --fail -sS -H "Authorization: Bearer %s" %s"/$wid/status" | jq -r .status)
  case "$status" in
    Succeeded) break ;;
    Failed|Aborted) echo "workflow $wid finished with status $status" >&2; exit 1 ;;
    Submitted|Running|Aborting|"On Hold") ;;
    *) echo "error: unexpected status '$status' for workflow $wid" >&2; exit 1 ;;
  esac
  polls=$((polls + 1))
  if [ "$polls" -ge %d ]; then echo "error: workflow $wid still $status after %d polls" >&2; exit 1; fi
  sleep %s
done`, token, api, polls, polls, strconv.FormatFloat(interval.Seconds(), 'f', -1, 64)))
	job.Command(fmt.Sprintf(`curl --fail -sS -H "Authorization: Bearer %s" %s"/$wid/outputs" > outputs.json`, token, api))

	for _, ot := range opts.Outputs {
		o := outputs[ot.Name]
		if !ot.Shape.IsArray() {
			job.Command(collect(ot, "", o.Single))
			continue
		}
		for i, r := range o.Array {
			job.Command(collect(ot, fmt.Sprintf("[%d]", i), r))
		}
	}
	return job, outputs, nil
}

func collect(ot OutputType, index string, r *batch.Resource) string {
	value := fmt.Sprintf("jq -r --arg k %s '.outputs[$k]%s' outputs.json", batch.ShellQuote(ot.Name), index)
	if ot.CopyFileIntoBatch {
		return fmt.Sprintf(`gsutil cp "$(%s)" %s`, value, r)
	}
	return fmt.Sprintf("%s > %s", value, r)
}
