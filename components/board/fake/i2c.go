// Package fake implements an in-memory I2C bus whose devices are plain register banks.
package fake

import (
	"context"
	"sync"

	"github.com/pkg/errors"

	"github.com/grovesense/weatherlink/components/board"
	"github.com/grovesense/weatherlink/logging"
)

// Model is the registered name of the fake bus.
const Model = "fake"

func init() {
	board.RegisterI2C(Model, func(ctx context.Context, conf board.I2CConfig, logger logging.Logger) (board.I2C, error) {
		bus := NewI2C(conf.Name)
		// Both BME280 addresses answer so either strap setting works without hardware.
		SeedBME280(bus, 0x76)
		SeedBME280(bus, 0x77)
		return bus, nil
	})
}

// I2C is a fake bus. Every device address owns 256 byte-wide registers with auto-increment on
// multi-byte transfers.
type I2C struct {
	name string

	mu     sync.Mutex
	banks  map[byte]*[256]byte
	open   map[byte]bool
	closed bool
}

// NewI2C returns an empty fake bus.
func NewI2C(name string) *I2C {
	return &I2C{name: name, banks: map[byte]*[256]byte{}, open: map[byte]bool{}}
}

// SetRegisters writes data into the registers of addr starting at start, creating the device if
// needed.
func (b *I2C) SetRegisters(addr, start byte, data []byte) {
	b.mu.Lock()
	defer b.mu.Unlock()
	bank := b.bankLocked(addr)
	for i, v := range data {
		bank[byte(int(start)+i)] = v
	}
}

// Registers returns count registers of addr starting at start.
func (b *I2C) Registers(addr, start byte, count int) []byte {
	b.mu.Lock()
	defer b.mu.Unlock()
	bank := b.bankLocked(addr)
	out := make([]byte, count)
	for i := range out {
		out[i] = bank[byte(int(start)+i)]
	}
	return out
}

// Closed reports whether Close was called.
func (b *I2C) Closed() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.closed
}

func (b *I2C) bankLocked(addr byte) *[256]byte {
	bank, ok := b.banks[addr]
	if !ok {
		bank = &[256]byte{}
		b.banks[addr] = bank
	}
	return bank
}

// OpenHandle returns a handle for a device previously created with SetRegisters.
func (b *I2C) OpenHandle(addr byte) (board.I2CHandle, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil, errors.Errorf("i2c bus %q is closed", b.name)
	}
	if _, ok := b.banks[addr]; !ok {
		return nil, errors.Errorf("no device at i2c address 0x%02x on bus %q", addr, b.name)
	}
	if b.open[addr] {
		return nil, errors.Errorf("i2c address 0x%02x on bus %q already has an open handle", addr, b.name)
	}
	b.open[addr] = true
	return &handle{bus: b, addr: addr}, nil
}

// Close marks the bus closed.
func (b *I2C) Close(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
	return nil
}

type handle struct {
	bus     *I2C
	addr    byte
	pointer byte
	closed  bool
}

func (h *handle) Write(ctx context.Context, tx []byte) error {
	if err := h.check(); err != nil {
		return err
	}
	if len(tx) == 0 {
		return nil
	}
	h.pointer = tx[0]
	if len(tx) > 1 {
		h.bus.SetRegisters(h.addr, tx[0], tx[1:])
	}
	return nil
}

func (h *handle) Read(ctx context.Context, count int) ([]byte, error) {
	if err := h.check(); err != nil {
		return nil, err
	}
	out := h.bus.Registers(h.addr, h.pointer, count)
	h.pointer += byte(count)
	return out, nil
}

func (h *handle) ReadByteData(ctx context.Context, register byte) (byte, error) {
	if err := h.check(); err != nil {
		return 0, err
	}
	return h.bus.Registers(h.addr, register, 1)[0], nil
}

func (h *handle) WriteByteData(ctx context.Context, register, data byte) error {
	if err := h.check(); err != nil {
		return err
	}
	h.bus.SetRegisters(h.addr, register, []byte{data})
	return nil
}

func (h *handle) ReadBlockData(ctx context.Context, register byte, numBytes uint8) ([]byte, error) {
	if err := h.check(); err != nil {
		return nil, err
	}
	return h.bus.Registers(h.addr, register, int(numBytes)), nil
}

func (h *handle) WriteBlockData(ctx context.Context, register byte, data []byte) error {
	if err := h.check(); err != nil {
		return err
	}
	h.bus.SetRegisters(h.addr, register, data)
	return nil
}

func (h *handle) Close() error {
	if h.closed {
		return nil
	}
	h.closed = true
	h.bus.mu.Lock()
	defer h.bus.mu.Unlock()
	delete(h.bus.open, h.addr)
	return nil
}

func (h *handle) check() error {
	if h.closed {
		return errors.New("i2c handle is closed")
	}
	return nil
}
