package fake

import (
	"context"
	"testing"

	"go.viam.com/test"

	"github.com/grovesense/weatherlink/components/board"
	"github.com/grovesense/weatherlink/logging"
)

func TestRegisterBank(t *testing.T) {
	ctx := context.Background()
	bus := NewI2C("test")
	bus.SetRegisters(0x40, 0x10, []byte{1, 2, 3})

	_, err := bus.OpenHandle(0x41)
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, err.Error(), test.ShouldContainSubstring, "no device at i2c address 0x41")

	handle, err := bus.OpenHandle(0x40)
	test.That(t, err, test.ShouldBeNil)

	_, err = bus.OpenHandle(0x40)
	test.That(t, err, test.ShouldNotBeNil)

	block, err := handle.ReadBlockData(ctx, 0x10, 3)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, block, test.ShouldResemble, []byte{1, 2, 3})

	// A write sets the register pointer used by the following read.
	test.That(t, handle.Write(ctx, []byte{0x11}), test.ShouldBeNil)
	raw, err := handle.Read(ctx, 2)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, raw, test.ShouldResemble, []byte{2, 3})

	reg := &board.I2CRegister{Handle: handle, Register: 0x10}
	test.That(t, reg.UpdateBits(ctx, 0x03, 0x02), test.ShouldBeNil)
	v, err := reg.ReadByteData(ctx)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, v, test.ShouldEqual, byte(0x02))

	test.That(t, handle.WriteBlockData(ctx, 0x20, []byte{9, 8}), test.ShouldBeNil)
	test.That(t, bus.Registers(0x40, 0x20, 2), test.ShouldResemble, []byte{9, 8})

	test.That(t, handle.Close(), test.ShouldBeNil)
	_, err = handle.ReadByteData(ctx, 0x10)
	test.That(t, err, test.ShouldNotBeNil)

	test.That(t, bus.Close(ctx), test.ShouldBeNil)
	test.That(t, bus.Closed(), test.ShouldBeTrue)
	_, err = bus.OpenHandle(0x40)
	test.That(t, err, test.ShouldNotBeNil)
}

func TestRegisteredModel(t *testing.T) {
	ctx := context.Background()
	bus, err := board.NewI2C(ctx, Model, board.I2CConfig{Name: "main"}, logging.NewTestLogger(t))
	test.That(t, err, test.ShouldBeNil)
	defer bus.Close(ctx)

	handle, err := bus.OpenHandle(0x76)
	test.That(t, err, test.ShouldBeNil)
	defer handle.Close()

	id, err := handle.ReadByteData(ctx, 0xD0)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, id, test.ShouldEqual, byte(0x60))

	_, err = board.NewI2C(ctx, "spi", board.I2CConfig{Name: "main"}, logging.NewTestLogger(t))
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, err.Error(), test.ShouldContainSubstring, `unknown board model "spi"`)
}
