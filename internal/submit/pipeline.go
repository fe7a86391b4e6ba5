package submit

import (
	"strings"

	"github.com/mgeaghan/cpg-chip/internal/config"
)

const (
	// FullJobPrefix names the jobs of the full Mutect2 CHIP run.
	FullJobPrefix = "mutect2-chip-full"
	// InputsPrefix qualifies workflow inputs taken from the mutect2_chip section.
	InputsPrefix = "Mutect2CHIP"
)

// FullPipeline describes the full Mutect2 CHIP run for the configured dataset.
func FullPipeline(cfg *config.Config) WorkflowSubmission {
	w := cfg.Workflow
	prefix := strings.Trim(w.OutputPrefix, "/")
	if w.Name != "" {
		prefix += "/" + w.Name
	}

	return WorkflowSubmission{
		JobPrefix:    FullJobPrefix,
		Dataset:      w.Dataset,
		AccessLevel:  w.AccessLevel,
		Workflow:     "full.wdl",
		OutputPrefix: prefix,
		Labels: map[string]string{
			"dataset":  w.Dataset,
			"workflow": FullJobPrefix,
		},
		Inputs:      cfg.Mutect2CHIP.Prefixed(InputsPrefix),
		WorkingDir:  "workflow/",
		DriverImage: w.DriverImage,
		CopyOutputs: true,
	}
}
