// Package doctor validates a cpg-chip configuration for a given command.
package doctor

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"os"
	"strings"

	"github.com/mgeaghan/cpg-chip/internal/config"
	"github.com/mgeaghan/cpg-chip/internal/purge"
	"github.com/mgeaghan/cpg-chip/internal/submit"
)

// Mode selects which command's requirements are checked.
type Mode string

const (
	ModeSubmit Mode = "submit"
	ModePurge  Mode = "purge"
)

// ParseMode validates a mode name.
func ParseMode(s string) (Mode, error) {
	switch Mode(s) {
	case ModeSubmit, ModePurge:
		return Mode(s), nil
	}
	return "", fmt.Errorf("unknown mode %q (want submit or purge)", s)
}

var knownAccessLevels = map[string]bool{
	config.AccessLevelTest: true,
	"standard":             true,
	"full":                 true,
}

// Result holds the outcome of a validation run.
type Result struct {
	Mode     Mode    `json:"mode"`
	Valid    bool    `json:"valid"`
	Errors   []Issue `json:"errors,omitempty"`
	Warnings []Issue `json:"warnings,omitempty"`
}

// Issue describes a single validation error or warning.
type Issue struct {
	Category string `json:"category"`
	Message  string `json:"message"`
	Field    string `json:"field,omitempty"`
}

// Doctor validates configuration before a batch is built.
type Doctor struct {
	cfg       *config.Config
	policy    purge.Policy
	lookupEnv func(string) (string, bool)
}

// New creates a Doctor for cfg using the default purge policy.
func New(cfg *config.Config) *Doctor {
	return &Doctor{cfg: cfg, policy: purge.DefaultPolicy(), lookupEnv: os.LookupEnv}
}

// WithLookupEnv overrides environment lookup.
func (d *Doctor) WithLookupEnv(fn func(string) (string, bool)) *Doctor {
	d.lookupEnv = fn
	return d
}

// Check runs the checks for mode with the default purge policy.
func Check(cfg *config.Config, mode Mode) *Result {
	return New(cfg).Validate(mode)
}

// Validate runs all checks for mode and returns a result.
func (d *Doctor) Validate(mode Mode) *Result {
	r := &Result{Mode: mode}

	switch mode {
	case ModeSubmit:
		d.validateRequired(r, d.cfg.RequireSubmit())
		d.validateDriverImage(r)
		d.validateAccessLevel(r)
		d.validateURL(r, "cromwell.url", d.cfg.Cromwell.URL)
		d.warnEmptyInputs(r)
	case ModePurge:
		d.validateRequired(r, d.cfg.RequirePurge())
		d.validatePurgeTarget(r)
	default:
		d.addError(r, "mode", "", fmt.Sprintf("unknown mode %q", mode))
	}
	d.validateURL(r, "hail.service_url", d.cfg.Hail.ServiceURL)

	r.Valid = len(r.Errors) == 0
	return r
}

func (d *Doctor) addError(r *Result, category, field, msg string) {
	r.Errors = append(r.Errors, Issue{Category: category, Field: field, Message: msg})
}

func (d *Doctor) addWarning(r *Result, category, field, msg string) {
	r.Warnings = append(r.Warnings, Issue{Category: category, Field: field, Message: msg})
}

// validateRequired turns each joined requirement error into its own issue.
func (d *Doctor) validateRequired(r *Result, err error) {
	if err == nil {
		return
	}
	errs := []error{err}
	if joined, ok := err.(interface{ Unwrap() []error }); ok {
		errs = joined.Unwrap()
	}
	for _, e := range errs {
		d.addError(r, "config", "", e.Error())
	}
}

func (d *Doctor) validateDriverImage(r *Result) {
	if d.cfg.Workflow.DriverImage != "" {
		return
	}
	if v, ok := d.lookupEnv(submit.EnvDriverImage); ok && strings.TrimSpace(v) != "" {
		d.addWarning(r, "image", "workflow.driver_image",
			fmt.Sprintf("not set; falling back to $%s (%s)", submit.EnvDriverImage, v))
		return
	}
	d.addError(r, "image", "workflow.driver_image",
		fmt.Sprintf("driver image not set and $%s is empty", submit.EnvDriverImage))
}

func (d *Doctor) validateAccessLevel(r *Result) {
	level := d.cfg.Workflow.AccessLevel
	if level == "" || knownAccessLevels[level] {
		return
	}
	d.addWarning(r, "config", "workflow.access_level",
		fmt.Sprintf("unknown access level %q; it is treated as a production tier", level))
}

func (d *Doctor) validateURL(r *Result, field, raw string) {
	if raw == "" {
		return
	}
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		d.addError(r, "config", field, fmt.Sprintf("invalid url %q", raw))
		return
	}
	if u.Scheme != "https" {
		d.addWarning(r, "config", field, fmt.Sprintf("url %q does not use https", raw))
	}
}

func (d *Doctor) warnEmptyInputs(r *Result) {
	if d.cfg.Mutect2CHIP.IsZero() {
		d.addWarning(r, "inputs", "mutect2_chip", "no workflow inputs configured")
	}
}

func (d *Doctor) validatePurgeTarget(r *Result) {
	_, err := purge.ResolveTarget(d.cfg, d.policy)
	switch {
	case err == nil, errors.Is(err, config.ErrConfiguration):
		// missing keys are reported by validateRequired
	case errors.Is(err, purge.ErrInvalidBucket):
		d.addError(r, "purge", "storage."+d.cfg.Workflow.Dataset+".default", err.Error())
	default:
		d.addError(r, "purge", "", err.Error())
	}
}

// FormatHuman returns a human-readable validation report.
func FormatHuman(r *Result) string {
	var b strings.Builder

	if r.Valid && len(r.Warnings) == 0 {
		b.WriteString("Configuration valid.\n")
		return b.String()
	}

	if r.Valid && len(r.Warnings) > 0 {
		b.WriteString("Configuration valid")
		fmt.Fprintf(&b, " (%d warning(s))\n", len(r.Warnings))
	}

	if !r.Valid {
		fmt.Fprintf(&b, "Configuration invalid (%d error(s), %d warning(s))\n", len(r.Errors), len(r.Warnings))
	}

	for _, e := range r.Errors {
		if e.Field != "" {
			fmt.Fprintf(&b, "  ERROR [%s] %s: %s\n", e.Category, e.Field, e.Message)
		} else {
			fmt.Fprintf(&b, "  ERROR [%s] %s\n", e.Category, e.Message)
		}
	}
	for _, w := range r.Warnings {
		if w.Field != "" {
			fmt.Fprintf(&b, "  WARN  [%s] %s: %s\n", w.Category, w.Field, w.Message)
		} else {
			fmt.Fprintf(&b, "  WARN  [%s] %s\n", w.Category, w.Message)
		}
	}

	return b.String()
}

// FormatJSON returns the result as indented JSON.
func FormatJSON(r *Result) (string, error) {
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return "", err
	}
	return string(data), nil
}
