package config

import (
	"errors"
	"fmt"
	"strings"
)

// RequireSubmit checks the keys the submit command reads.
func (c *Config) RequireSubmit() error {
	var errs []error
	requireKey(&errs, "hail.billing_project", c.Hail.BillingProject)
	requireKey(&errs, "workflow.dataset", c.Workflow.Dataset)
	requireKey(&errs, "workflow.access_level", c.Workflow.AccessLevel)
	requireKey(&errs, "workflow.name", c.Workflow.Name)
	requireKey(&errs, "cromwell.url", c.Cromwell.URL)
	if _, err := c.RemoteTmpdir(); err != nil {
		errs = append(errs, err)
	}
	errs = append(errs, unresolved(c)...)
	return errors.Join(errs...)
}

// RequirePurge checks the keys the purge command reads.
func (c *Config) RequirePurge() error {
	var errs []error
	requireKey(&errs, "hail.billing_project", c.Hail.BillingProject)
	requireKey(&errs, "workflow.dataset", c.Workflow.Dataset)
	requireKey(&errs, "workflow.name", c.Workflow.Name)
	requireKey(&errs, "workflow.workflow_name", c.Workflow.WorkflowName)
	requireKey(&errs, "workflow.run_id", c.Workflow.RunID)
	if _, err := c.DefaultBucket(); err != nil {
		errs = append(errs, err)
	}
	if _, err := c.RemoteTmpdir(); err != nil {
		errs = append(errs, err)
	}
	errs = append(errs, unresolved(c)...)
	return errors.Join(errs...)
}

func requireKey(errs *[]error, key, value string) {
	if strings.TrimSpace(value) == "" {
		*errs = append(*errs, MissingKeyError(key))
	}
}

// unresolved reports ${VAR} placeholders left behind by interpolation.
func unresolved(c *Config) []error {
	fields := []struct{ key, value string }{
		{"hail.billing_project", c.Hail.BillingProject},
		{"workflow.dataset", c.Workflow.Dataset},
		{"workflow.name", c.Workflow.Name},
		{"workflow.driver_image", c.Workflow.DriverImage},
		{"workflow.run_id", c.Workflow.RunID},
	}
	var errs []error
	for _, f := range fields {
		if envVarPattern.MatchString(f.value) {
			errs = append(errs, fmt.Errorf("%w: %s references an unset environment variable (%s)",
				ErrConfiguration, f.key, f.value))
		}
	}
	return errs
}
