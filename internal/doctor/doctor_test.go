package doctor

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/mgeaghan/cpg-chip/internal/config"
)

func validConfig() *config.Config {
	cfg := config.Defaults()
	cfg.Hail.BillingProject = "kccg-genomics-med"
	cfg.Workflow.Dataset = "kccg-genomics-med"
	cfg.Workflow.AccessLevel = "standard"
	cfg.Workflow.Name = "J"
	cfg.Workflow.WorkflowName = "W"
	cfg.Workflow.RunID = "R"
	cfg.Workflow.DriverImage = "driver:1"
	cfg.Storage = map[string]config.StorageConfig{
		"kccg-genomics-med": {
			Default: "gs://cpg-kccg-genomics-med-main",
			Tmp:     "gs://cpg-kccg-genomics-med-main-tmp",
		},
	}
	cfg.Mutect2CHIP = config.Section{Params: config.Params{{Key: "ref_fasta", Value: "gs://ref"}}}
	return cfg
}

func noEnv(string) (string, bool) { return "", false }

func hasIssue(issues []Issue, field string) bool {
	for _, i := range issues {
		if i.Field == field {
			return true
		}
	}
	return false
}

func TestValidate_ValidConfig(t *testing.T) {
	t.Parallel()
	for _, mode := range []Mode{ModeSubmit, ModePurge} {
		r := New(validConfig()).WithLookupEnv(noEnv).Validate(mode)
		if !r.Valid {
			t.Fatalf("%s: expected valid, got errors: %v", mode, r.Errors)
		}
		if len(r.Warnings) != 0 {
			t.Fatalf("%s: expected no warnings, got %v", mode, r.Warnings)
		}
	}
}

func TestValidate_MissingKeys(t *testing.T) {
	t.Parallel()
	cfg := validConfig()
	cfg.Hail.BillingProject = ""
	cfg.Workflow.RunID = ""

	r := New(cfg).WithLookupEnv(noEnv).Validate(ModePurge)
	if r.Valid {
		t.Fatal("expected invalid")
	}
	if len(r.Errors) != 2 {
		t.Fatalf("expected 2 errors, got %v", r.Errors)
	}
	if !strings.Contains(r.Errors[0].Message, "hail.billing_project") {
		t.Fatalf("unexpected first error %q", r.Errors[0].Message)
	}
}

func TestValidate_DriverImage(t *testing.T) {
	t.Parallel()
	cfg := validConfig()
	cfg.Workflow.DriverImage = ""

	r := New(cfg).WithLookupEnv(noEnv).Validate(ModeSubmit)
	if r.Valid || !hasIssue(r.Errors, "workflow.driver_image") {
		t.Fatalf("expected driver image error, got %v", r.Errors)
	}

	env := func(k string) (string, bool) { return "driver:env", k == "DRIVER_IMAGE" }
	r = New(cfg).WithLookupEnv(env).Validate(ModeSubmit)
	if !r.Valid {
		t.Fatalf("expected valid with env image, got %v", r.Errors)
	}
	if !hasIssue(r.Warnings, "workflow.driver_image") {
		t.Fatalf("expected env fallback warning, got %v", r.Warnings)
	}
}

func TestValidate_PurgeBucketOutsideAllowList(t *testing.T) {
	t.Parallel()
	cfg := validConfig()
	cfg.Storage["kccg-genomics-med"] = config.StorageConfig{Default: "gs://cpg-fewgenomes-main", Tmp: "gs://tmp"}

	r := Check(cfg, ModePurge)
	if r.Valid || !hasIssue(r.Errors, "storage.kccg-genomics-med.default") {
		t.Fatalf("expected bucket error, got %v", r.Errors)
	}
}

func TestValidate_PurgeBadPath(t *testing.T) {
	t.Parallel()
	cfg := validConfig()
	cfg.Workflow.RunID = "R; ls"

	r := Check(cfg, ModePurge)
	if r.Valid || r.Errors[0].Category != "purge" {
		t.Fatalf("expected path error, got %v", r.Errors)
	}
}

func TestValidate_Warnings(t *testing.T) {
	t.Parallel()
	cfg := validConfig()
	cfg.Workflow.AccessLevel = "prod"
	cfg.Cromwell.URL = "http://cromwell.local"
	cfg.Mutect2CHIP = config.Section{}

	r := New(cfg).WithLookupEnv(noEnv).Validate(ModeSubmit)
	if !r.Valid {
		t.Fatalf("expected valid, got %v", r.Errors)
	}
	for _, field := range []string{"workflow.access_level", "cromwell.url", "mutect2_chip"} {
		if !hasIssue(r.Warnings, field) {
			t.Errorf("expected warning for %s, got %v", field, r.Warnings)
		}
	}
}

func TestValidate_InvalidURL(t *testing.T) {
	t.Parallel()
	cfg := validConfig()
	cfg.Hail.ServiceURL = "batch.hail.is"

	r := New(cfg).WithLookupEnv(noEnv).Validate(ModeSubmit)
	if r.Valid || !hasIssue(r.Errors, "hail.service_url") {
		t.Fatalf("expected url error, got %v", r.Errors)
	}
}

func TestParseMode(t *testing.T) {
	t.Parallel()
	if m, err := ParseMode("purge"); err != nil || m != ModePurge {
		t.Fatalf("ParseMode(purge) = %q, %v", m, err)
	}
	if _, err := ParseMode("deploy"); err == nil {
		t.Fatal("expected error for unknown mode")
	}
}

func TestFormatHuman(t *testing.T) {
	t.Parallel()
	r := &Result{Valid: true}
	if got := FormatHuman(r); got != "Configuration valid.\n" {
		t.Fatalf("unexpected output %q", got)
	}

	r = &Result{
		Valid:    false,
		Errors:   []Issue{{Category: "config", Field: "workflow.name", Message: "required"}},
		Warnings: []Issue{{Category: "inputs", Message: "none"}},
	}
	got := FormatHuman(r)
	for _, want := range []string{
		"Configuration invalid (1 error(s), 1 warning(s))",
		"ERROR [config] workflow.name: required",
		"WARN  [inputs] none",
	} {
		if !strings.Contains(got, want) {
			t.Errorf("output missing %q:\n%s", want, got)
		}
	}
}

func TestFormatJSON(t *testing.T) {
	t.Parallel()
	out, err := FormatJSON(&Result{Mode: ModeSubmit, Valid: true})
	if err != nil {
		t.Fatal(err)
	}
	var decoded map[string]any
	if err := json.Unmarshal([]byte(out), &decoded); err != nil {
		t.Fatalf("invalid json: %v", err)
	}
	if decoded["mode"] != "submit" || decoded["valid"] != true {
		t.Fatalf("unexpected json %s", out)
	}
}
