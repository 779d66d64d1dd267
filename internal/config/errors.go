package config

import (
	"errors"
	"fmt"
)

// ErrNotFound is returned by a Store when no configuration has been saved yet.
var ErrNotFound = errors.New("configuration not set")

// ConfigurationError signals that the configuration cannot serve a request:
// an unknown project type, a missing sheet URL, a broken invariant.
type ConfigurationError struct {
	Field  string
	Reason string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("configuration error [%s]: %s", e.Field, e.Reason)
}
