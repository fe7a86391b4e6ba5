package config

import (
	"errors"
	"fmt"
)

// ErrConfiguration reports a missing or unusable configuration value.
var ErrConfiguration = errors.New("configuration error")

// MissingKeyError returns an ErrConfiguration for a required key.
func MissingKeyError(key string) error {
	return fmt.Errorf("%w: %s is required", ErrConfiguration, key)
}
