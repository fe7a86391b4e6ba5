package config

import (
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

// GetPath retrieves a value from the configuration using a dot-notation path.
func (c *Config) GetPath(path string) (any, error) {
	data, err := yaml.Marshal(c)
	if err != nil {
		return nil, fmt.Errorf("marshal config: %w", err)
	}

	var m map[string]any
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	return getValue(m, path)
}

func getValue(m map[string]any, path string) (any, error) {
	parts := strings.Split(path, ".")
	var current any = m

	for _, part := range parts {
		if part == "" {
			continue
		}

		m, ok := current.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("path %q breaks at %q (not a map)", path, part)
		}

		val, exists := m[part]
		if !exists {
			return nil, fmt.Errorf("path %q: key %q not found", path, part)
		}
		current = val
	}

	return current, nil
}

// DatasetStorage returns the storage section for a dataset.
func (c *Config) DatasetStorage(dataset string) (StorageConfig, error) {
	if dataset == "" {
		return StorageConfig{}, MissingKeyError("workflow.dataset")
	}
	st, ok := c.Storage[dataset]
	if !ok {
		return StorageConfig{}, MissingKeyError("storage." + dataset)
	}
	return st, nil
}

// DefaultBucket returns storage.<workflow.dataset>.default.
func (c *Config) DefaultBucket() (string, error) {
	st, err := c.DatasetStorage(c.Workflow.Dataset)
	if err != nil {
		return "", err
	}
	if st.Default == "" {
		return "", MissingKeyError("storage." + c.Workflow.Dataset + ".default")
	}
	return st.Default, nil
}

// RemoteTmpdir returns the batch scratch location: the dataset tmp bucket,
// else hail.bucket/batch-tmp.
func (c *Config) RemoteTmpdir() (string, error) {
	if st, err := c.DatasetStorage(c.Workflow.Dataset); err == nil && st.Tmp != "" {
		return strings.TrimRight(st.Tmp, "/"), nil
	}
	if c.Hail.Bucket != "" {
		return strings.TrimRight(c.Hail.Bucket, "/") + "/batch-tmp", nil
	}
	return "", MissingKeyError("storage." + c.Workflow.Dataset + ".tmp or hail.bucket")
}

// IsTest reports whether the configured access level is the test tier.
func (c *Config) IsTest() bool {
	return c.Workflow.AccessLevel == AccessLevelTest
}
