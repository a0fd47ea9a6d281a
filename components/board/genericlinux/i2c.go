// Package genericlinux opens the I2C buses of a Linux host through periph.io.
package genericlinux

import (
	"context"
	"sync"

	"github.com/pkg/errors"
	"go.uber.org/atomic"
	"periph.io/x/conn/v3/i2c"
	"periph.io/x/conn/v3/i2c/i2creg"
	"periph.io/x/host/v3"

	"github.com/grovesense/weatherlink/components/board"
	"github.com/grovesense/weatherlink/logging"
)

// Model is the registered name of the Linux I2C bus.
const Model = "genericlinux"

func init() {
	board.RegisterI2C(Model, func(ctx context.Context, conf board.I2CConfig, logger logging.Logger) (board.I2C, error) {
		return NewI2C(conf, logger)
	})
}

// NewI2C initializes the host drivers and opens the bus named in conf. An empty bus name opens the
// first bus the host reports, which on a Raspberry Pi is /dev/i2c-1.
func NewI2C(conf board.I2CConfig, logger logging.Logger) (*I2CBus, error) {
	if _, err := host.Init(); err != nil {
		return nil, errors.Wrap(err, "initializing host drivers")
	}
	bus, err := i2creg.Open(conf.Bus)
	if err != nil {
		return nil, errors.Wrapf(err, "opening i2c bus %q", conf.Bus)
	}
	logger.Debugw("opened i2c bus", "name", conf.Name, "bus", bus.String())
	return &I2CBus{name: conf.Name, bus: bus, open: map[byte]bool{}, logger: logger}, nil
}

// I2CBus is a periph.io bus that hands out at most one handle per device address.
type I2CBus struct {
	name   string
	logger logging.Logger

	mu   sync.Mutex
	bus  i2c.BusCloser
	open map[byte]bool
}

// OpenHandle returns a handle for the device at addr.
func (b *I2CBus) OpenHandle(addr byte) (board.I2CHandle, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.bus == nil {
		return nil, errors.Errorf("i2c bus %q is closed", b.name)
	}
	if b.open[addr] {
		return nil, errors.Errorf("i2c address 0x%02x on bus %q already has an open handle", addr, b.name)
	}
	b.open[addr] = true
	return &i2cHandle{parent: b, addr: addr, dev: &i2c.Dev{Bus: b.bus, Addr: uint16(addr)}}, nil
}

// PeriphBus exposes the underlying bus for drivers written against periph.io.
func (b *I2CBus) PeriphBus() i2c.Bus {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.bus
}

// Close releases the bus.
func (b *I2CBus) Close(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.bus == nil {
		return nil
	}
	if len(b.open) != 0 {
		b.logger.Warnw("closing i2c bus with open handles", "name", b.name, "handles", len(b.open))
	}
	err := b.bus.Close()
	b.bus = nil
	return err
}

func (b *I2CBus) release(addr byte) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.open, addr)
}

var errHandleClosed = errors.New("i2c handle is closed")

// i2cHandle wraps a periph device so it satisfies board.I2CHandle. Once closed it refuses every
// transaction and its address may be handed out again.
type i2cHandle struct {
	parent *I2CBus
	addr   byte
	dev    *i2c.Dev
	closed atomic.Bool
}

func (h *i2cHandle) tx(w, r []byte) error {
	if h.closed.Load() {
		return h.wrap(errHandleClosed)
	}
	return h.wrap(h.dev.Tx(w, r))
}

func (h *i2cHandle) Write(ctx context.Context, tx []byte) error {
	return h.tx(tx, nil)
}

func (h *i2cHandle) Read(ctx context.Context, count int) ([]byte, error) {
	buffer := make([]byte, count)
	if err := h.tx(nil, buffer); err != nil {
		return nil, err
	}
	return buffer, nil
}

func (h *i2cHandle) ReadByteData(ctx context.Context, register byte) (byte, error) {
	buffer := make([]byte, 1)
	if err := h.tx([]byte{register}, buffer); err != nil {
		return 0, err
	}
	return buffer[0], nil
}

func (h *i2cHandle) WriteByteData(ctx context.Context, register, data byte) error {
	return h.tx([]byte{register, data}, nil)
}

func (h *i2cHandle) ReadBlockData(ctx context.Context, register byte, numBytes uint8) ([]byte, error) {
	buffer := make([]byte, numBytes)
	if err := h.tx([]byte{register}, buffer); err != nil {
		return nil, err
	}
	return buffer, nil
}

func (h *i2cHandle) WriteBlockData(ctx context.Context, register byte, data []byte) error {
	// on devices that use registers, this is equivalent to writing the register address and then
	// the relevant bytes.
	rawData := make([]byte, len(data)+1)
	rawData[0] = register
	copy(rawData[1:], data)
	return h.tx(rawData, nil)
}

// Close gives the address back to the bus. Only the first call releases it, so a stale handle
// cannot free an address that was opened again since.
func (h *i2cHandle) Close() error {
	if h.closed.CompareAndSwap(false, true) {
		h.parent.release(h.addr)
	}
	return nil
}

func (h *i2cHandle) wrap(err error) error {
	if err == nil {
		return nil
	}
	return errors.Wrapf(err, "i2c address 0x%02x on bus %q", h.addr, h.parent.name)
}
