// Package cromwell writes the driver-job commands that submit a WDL workflow
// to the Cromwell server and collect its outputs.
package cromwell

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/mgeaghan/cpg-chip/internal/batch"
	"github.com/mgeaghan/cpg-chip/internal/config"
)

const (
	// WorkflowIDOutput is the output name under which the run id resource is returned.
	WorkflowIDOutput = "workflow_id"

	keyFile       = "/gsa-key/key.json"
	depsArchive   = "tools.zip"
	optionsFile   = "workflow-options.json"
	inlineInputs  = "${TMPDIR:-/tmp}/inputs.json"
	computeLabel  = "compute-category"
	computeValue  = "cromwell"
	workflowsPath = "/api/workflows/v1"
)

// ErrInvalidRun reports options that cannot produce a workflow submission.
var ErrInvalidRun = errors.New("invalid cromwell run")

// Settings locates the Cromwell server and the secrets used to reach it.
type Settings struct {
	URL           string
	Audience      string
	SecretProject string
}

// SettingsFromConfig maps the cromwell config section.
func SettingsFromConfig(c config.CromwellConfig) Settings {
	return Settings{
		URL:           strings.TrimRight(c.URL, "/"),
		Audience:      c.Audience,
		SecretProject: c.SecretProject,
	}
}

// Paths are the storage locations the workflow engine writes to.
type Paths struct {
	// Intermediate is the engine's execution root.
	Intermediate string
	// Outputs receives final workflow outputs when outputs are copied.
	Outputs string
	// Logs receives final call logs.
	Logs string
}

// RunOptions describes one workflow submission.
type RunOptions struct {
	Dataset     string
	AccessLevel string
	// Workflow is the WDL file, relative to Cwd.
	Workflow string
	Cwd      string
	// Libs are directories zipped and sent as workflow dependencies.
	Libs         []string
	OutputPrefix string
	// Inputs are written to a JSON file in order. InputPaths are sent as is.
	Inputs      config.Params
	InputPaths  []string
	Labels      map[string]string
	Project     string
	CopyOutputs bool
	Paths       Paths
	Settings    Settings
}

// Validate reports every problem that would stop RunWorkflow writing a submission.
func (o RunOptions) Validate() error {
	var errs []error
	if o.Workflow == "" {
		errs = append(errs, errors.New("workflow is required"))
	}
	if o.Dataset == "" {
		errs = append(errs, errors.New("dataset is required"))
	}
	if o.AccessLevel == "" {
		errs = append(errs, errors.New("access level is required"))
	}
	if o.Settings.URL == "" {
		errs = append(errs, errors.New("cromwell url is required"))
	}
	if o.CopyOutputs && o.Paths.Outputs == "" {
		errs = append(errs, errors.New("output path is required when copying outputs"))
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidRun, err)
	}
	return nil
}

// KeySecretName is the secret holding the dataset's Cromwell service account key.
func KeySecretName(dataset, accessLevel string) string {
	return fmt.Sprintf("%s-cromwell-%s-key", dataset, accessLevel)
}

// workflowOptions is the static part of workflow-options.json. The service account
// fields are added inside the job once the key has been fetched.
type workflowOptions struct {
	GoogleProject           string            `json:"google_project,omitempty"`
	JesGCSRoot              string            `json:"jes_gcs_root,omitempty"`
	FinalCallLogsDir        string            `json:"final_call_logs_dir,omitempty"`
	FinalWorkflowOutputsDir string            `json:"final_workflow_outputs_dir,omitempty"`
	GoogleLabels            map[string]string `json:"google_labels"`
}

// RunWorkflow writes onto job the commands that submit the workflow to Cromwell
// and returns the resource the run id is written to.
func RunWorkflow(job *batch.Job, opts RunOptions) (*batch.Resource, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}

	if opts.Cwd != "" {
		job.Command("cd " + batch.ShellQuote(opts.Cwd))
	}

	if len(opts.Libs) > 0 {
		quoted := make([]string, 0, len(opts.Libs))
		for _, lib := range opts.Libs {
			quoted = append(quoted, batch.ShellQuote(strings.TrimRight(lib, "/")+"/"))
		}
		job.Command("zip -r " + depsArchive + " " + strings.Join(quoted, " "))
	}

	labels := make(map[string]string, len(opts.Labels)+1)
	for k, v := range opts.Labels {
		labels[k] = v
	}
	labels[computeLabel] = computeValue

	options := workflowOptions{
		GoogleProject:    opts.Project,
		JesGCSRoot:       opts.Paths.Intermediate,
		FinalCallLogsDir: opts.Paths.Logs,
		GoogleLabels:     labels,
	}
	if opts.CopyOutputs {
		options.FinalWorkflowOutputsDir = opts.Paths.Outputs
	}
	optionsJSON, err := json.Marshal(options)
	if err != nil {
		return nil, fmt.Errorf("marshal workflow options: %w", err)
	}

	job.Env("GOOGLE_APPLICATION_CREDENTIALS", keyFile)
	job.Command(fmt.Sprintf("sa_key=$(gcloud secrets versions access latest --secret=%s --project=%s)",
		batch.ShellQuote(KeySecretName(opts.Dataset, opts.AccessLevel)),
		batch.ShellQuote(opts.Settings.SecretProject)))
	job.Command(fmt.Sprintf(
		`jq -n --arg key "$sa_key" --argjson base %s '$base + {user_service_account_json: $key, google_compute_service_account: ($key | fromjson | .client_email)}' > %s`,
		batch.ShellQuote(string(optionsJSON)), optionsFile))

	inputForms := make([]string, 0, len(opts.InputPaths)+1)
	for _, p := range opts.InputPaths {
		inputForms = append(inputForms, batch.ShellQuote(inputsField(len(inputForms))+"=@"+p))
	}
	if len(opts.Inputs) > 0 {
		inputsJSON, err := json.Marshal(opts.Inputs)
		if err != nil {
			return nil, fmt.Errorf("marshal workflow inputs: %w", err)
		}
		job.Command(fmt.Sprintf(`echo %s > "%s"`, batch.ShellQuote(string(inputsJSON)), inlineInputs))
		inputForms = append(inputForms, fmt.Sprintf(`"%s=@%s"`, inputsField(len(inputForms)), inlineInputs))
	}

	job.Command("access_token=$(" + identityTokenCommand(opts.Settings) + ")")

	var curl strings.Builder
	fmt.Fprintf(&curl, "response=$(curl --fail -sS -X POST %s \\\n", batch.ShellQuote(opts.Settings.URL+workflowsPath))
	curl.WriteString("    -H \"Authorization: Bearer $access_token\" \\\n")
	curl.WriteString("    -H \"accept: application/json\" \\\n")
	curl.WriteString("    -H \"Content-Type: multipart/form-data\" \\\n")
	fmt.Fprintf(&curl, "    -F %s \\\n", batch.ShellQuote("workflowSource=@"+opts.Workflow))
	for _, form := range inputForms {
		fmt.Fprintf(&curl, "    -F %s \\\n", form)
	}
	if len(opts.Libs) > 0 {
		fmt.Fprintf(&curl, "    -F \"workflowDependencies=@%s\" \\\n", depsArchive)
	}
	fmt.Fprintf(&curl, "    -F \"workflowOptions=@%s;type=application/json\")", optionsFile)
	job.Command(curl.String())

	out := job.Output(WorkflowIDOutput)
	job.Command(`wid=$(echo "$response" | jq -r .id)`)
	job.Command(`if [ -z "$wid" ] || [ "$wid" = "null" ]; then echo "error: cromwell returned no workflow id: $response" >&2; exit 1; fi`)
	job.Command(`echo "Submitted workflow with ID $wid"`)
	job.Command(fmt.Sprintf(`echo "$wid" > %s`, out))
	return out, nil
}

// inputsField names the n-th (0-based) workflowInputs form field.
func inputsField(n int) string {
	if n == 0 {
		return "workflowInputs"
	}
	return fmt.Sprintf("workflowInputs_%d", n+1)
}

func identityTokenCommand(s Settings) string {
	if s.Audience == "" {
		return "gcloud auth print-identity-token --include-email"
	}
	return "gcloud auth print-identity-token --audiences=" + batch.ShellQuote(s.Audience) + " --include-email"
}
