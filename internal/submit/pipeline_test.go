package submit_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/mgeaghan/cpg-chip/internal/config"
	"github.com/mgeaghan/cpg-chip/internal/submit"
)

func TestFullPipeline(t *testing.T) {
	cfg := testConfig()
	cfg.Workflow.DriverImage = "driver:cfg"
	s := submit.FullPipeline(cfg)

	assert.Equal(t, "mutect2-chip-full", s.JobPrefix)
	assert.Equal(t, "full.wdl", s.Workflow)
	assert.Equal(t, "workflow/", s.WorkingDir)
	assert.Equal(t, "mgeaghan/mutect2-chip/run1", s.OutputPrefix)
	assert.Equal(t, "driver:cfg", s.DriverImage)
	assert.True(t, s.CopyOutputs)
	assert.Empty(t, s.Libraries)
	assert.Equal(t, config.Params{
		{Key: "Mutect2CHIP.ref_fasta", Value: "gs://ref/hg38.fa"},
		{Key: "Mutect2CHIP.scatter_count", Value: 10},
	}, s.Inputs)
}
