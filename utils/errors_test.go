package utils

import (
	"testing"

	"go.viam.com/test"
)

func TestNewUnknownModelError(t *testing.T) {
	err := NewUnknownModelError("sensor", "bme680")
	test.That(t, err.Error(), test.ShouldEqual, `unknown sensor model "bme680"`)
}

func TestNewUnimplementedInterfaceError(t *testing.T) {
	err := NewUnimplementedInterfaceError("board.I2C", someStruct{})
	test.That(t, err.Error(), test.ShouldEqual, "expected implementation of board.I2C but got utils.someStruct")
}

type someStruct struct{}
