package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const baseYAML = `
hail:
  billing_project: kccg-genomics-med
workflow:
  dataset: kccg-genomics-med
  access_level: test
  name: chip-run-1
  driver_image: australia-southeast1-docker.pkg.dev/cpg-common/images/driver:latest
storage:
  kccg-genomics-med:
    default: gs://cpg-kccg-genomics-med-main
    tmp: gs://cpg-kccg-genomics-med-main-tmp
mutect2_chip:
  ref_fasta: gs://ref/hg38.fasta
  scatter_count: 10
  run_funcotator: true
`

func writeFile(t *testing.T, dir, name, contents string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(contents), 0644))
	return path
}

func TestLoad(t *testing.T) {
	tests := []struct {
		name    string
		files   []string
		env     map[string]string
		wantErr bool
		checkFn func(t *testing.T, cfg *Config)
	}{
		{
			name:  "single file with defaults",
			files: []string{baseYAML},
			checkFn: func(t *testing.T, cfg *Config) {
				assert.Equal(t, "kccg-genomics-med", cfg.Hail.BillingProject)
				assert.Equal(t, "https://batch.hail.is", cfg.Hail.ServiceURL)
				assert.Equal(t, "default", cfg.Hail.Namespace)
				assert.Equal(t, "mgeaghan/mutect2-chip", cfg.Workflow.OutputPrefix)
				assert.Equal(t, "gs://cpg-kccg-genomics-med-main", cfg.Storage["kccg-genomics-med"].Default)
				assert.Equal(t, "info", cfg.Logging.Level)
				assert.True(t, cfg.IsTest())
				assert.Len(t, cfg.SourceFiles, 1)
				assert.Len(t, cfg.Fingerprint, 64)
			},
		},
		{
			name: "later file overrides per key",
			files: []string{baseYAML, `
workflow:
  access_level: standard
  run_id: abc-123
mutect2_chip:
  scatter_count: 20
  extra_flag: yes
`},
			checkFn: func(t *testing.T, cfg *Config) {
				assert.Equal(t, "standard", cfg.Workflow.AccessLevel)
				assert.Equal(t, "chip-run-1", cfg.Workflow.Name)
				assert.Equal(t, "abc-123", cfg.Workflow.RunID)
				assert.False(t, cfg.IsTest())

				keys := make([]string, 0, len(cfg.Mutect2CHIP.Params))
				for _, p := range cfg.Mutect2CHIP.Params {
					keys = append(keys, p.Key)
				}
				assert.Equal(t, []string{"ref_fasta", "scatter_count", "run_funcotator", "extra_flag"}, keys)
				assert.Equal(t, 20, cfg.Mutect2CHIP.Params[1].Value)
				assert.Len(t, cfg.SourceFiles, 2)
			},
		},
		{
			name: "env var interpolation",
			files: []string{`
hail:
  billing_project: ${TEST_BILLING}
workflow:
  driver_image: ${TEST_IMAGE}
`},
			env: map[string]string{
				"TEST_BILLING": "proj-a",
				"TEST_IMAGE":   "driver:1.2",
			},
			checkFn: func(t *testing.T, cfg *Config) {
				assert.Equal(t, "proj-a", cfg.Hail.BillingProject)
				assert.Equal(t, "driver:1.2", cfg.Workflow.DriverImage)
			},
		},
		{
			name:  "unresolved placeholder is kept",
			files: []string{"workflow:\n  run_id: ${CPG_CHIP_UNSET_VAR}\n"},
			checkFn: func(t *testing.T, cfg *Config) {
				assert.Equal(t, "${CPG_CHIP_UNSET_VAR}", cfg.Workflow.RunID)
			},
		},
		{
			name:  "empty file is allowed",
			files: []string{"", baseYAML},
			checkFn: func(t *testing.T, cfg *Config) {
				assert.Equal(t, "chip-run-1", cfg.Workflow.Name)
				assert.Len(t, cfg.SourceFiles, 2)
			},
		},
		{
			name:    "invalid yaml",
			files:   []string{"hail: [unclosed"},
			wantErr: true,
		},
		{
			name:    "top level sequence",
			files:   []string{"- a\n- b\n"},
			wantErr: true,
		},
		{
			name:    "mutect2_chip must be a mapping",
			files:   []string{"mutect2_chip: [1, 2]\n"},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.env {
				t.Setenv(k, v)
			}

			dir := t.TempDir()
			var paths []string
			for i, contents := range tt.files {
				paths = append(paths, writeFile(t, dir, "config"+string(rune('a'+i))+".yaml", contents))
			}

			cfg, err := Load(paths...)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			tt.checkFn(t, cfg)
		})
	}
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "config file not found")
}

func TestLoadNoPaths(t *testing.T) {
	_, err := Load()
	assert.ErrorIs(t, err, ErrConfiguration)
}

func TestResolvePaths(t *testing.T) {
	t.Run("explicit wins", func(t *testing.T) {
		t.Setenv(EnvConfigPath, "/env/a.yaml")
		paths, err := ResolvePaths([]string{"x.yaml"})
		require.NoError(t, err)
		assert.Equal(t, []string{"x.yaml"}, paths)
	})

	t.Run("env list is split and trimmed", func(t *testing.T) {
		t.Setenv(EnvConfigPath, " /env/a.yaml, ,/env/b.yaml ")
		paths, err := ResolvePaths(nil)
		require.NoError(t, err)
		assert.Equal(t, []string{"/env/a.yaml", "/env/b.yaml"}, paths)
	})

	t.Run("nothing found", func(t *testing.T) {
		t.Setenv(EnvConfigPath, "")
		wd, err := os.Getwd()
		require.NoError(t, err)
		require.NoError(t, os.Chdir(t.TempDir()))
		t.Cleanup(func() { _ = os.Chdir(wd) })

		_, err = ResolvePaths(nil)
		assert.ErrorIs(t, err, ErrConfiguration)
	})
}

func TestFingerprintChangesWithContent(t *testing.T) {
	a, err := Parse([]byte(baseYAML))
	require.NoError(t, err)
	b, err := Parse([]byte(baseYAML + "\nlogging:\n  level: debug\n"))
	require.NoError(t, err)

	assert.NotEqual(t, a.Fingerprint, b.Fingerprint)
	assert.Len(t, a.ShortFingerprint(), 12)
	assert.Equal(t, "debug", b.Logging.Level)
}
