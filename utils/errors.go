// Package utils contains small helpers shared by the station, its drivers and the collector.
package utils

import (
	"github.com/pkg/errors"
)

// NewUnknownModelError is used when nothing is registered under a model name.
func NewUnknownModelError(kind, model string) error {
	return errors.Errorf("unknown %s model %q", kind, model)
}

// NewUnimplementedInterfaceError is used when there is a failed interface check.
func NewUnimplementedInterfaceError(expected string, actual interface{}) error {
	return errors.Errorf("expected implementation of %s but got %T", expected, actual)
}
