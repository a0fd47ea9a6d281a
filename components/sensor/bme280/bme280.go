// Package bme280 implements a bme280 sensor for temperature, humidity, and pressure.
// Compensation follows the floating point formulas of the Bosch BME280 datasheet (section 8.1).
package bme280

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/pkg/errors"
	"go.uber.org/multierr"
	goutils "go.viam.com/utils"

	"github.com/grovesense/weatherlink/components/board"
	"github.com/grovesense/weatherlink/components/sensor"
	"github.com/grovesense/weatherlink/logging"
	"github.com/grovesense/weatherlink/utils"
)

const (
	// Model is the registered name of this driver.
	Model = "bme280"
	// DefaultI2CAddr is the address of the Grove module, SDO pulled low.
	DefaultI2CAddr = 0x76
	// AltI2CAddr is the address with SDO pulled high.
	AltI2CAddr = 0x77

	chipID = 0x60

	regCalib1   = 0x88
	regChipID   = 0xD0
	regReset    = 0xE0
	regCalib2   = 0xE1
	regCtrlHum  = 0xF2
	regStatus   = 0xF3
	regCtrlMeas = 0xF4
	regConfig   = 0xF5
	regData     = 0xF7

	calib1Len = 26
	calib2Len = 7
	dataLen   = 8

	resetCommand = 0xB6

	statusMeasuring = 1 << 3
	statusIMUpdate  = 1 << 0

	modeMask   = 0b11
	modeSleep  = 0b00
	modeForced = 0b01

	// x1 oversampling on every channel, filter off.
	ctrlHumX1  = 0b001
	ctrlMeasX1 = 0b001<<5 | 0b001<<2

	skippedTP = 0x80000
	skippedH  = 0x8000

	// Datasheet appendix B: 1.25 + 2.3 + (2.3 + 0.575) + (2.3 + 0.575) ms, rounded up.
	measurementTime = 10 * time.Millisecond
	startupTime     = 2 * time.Millisecond
	pollInterval    = 2 * time.Millisecond
	maxPolls        = 25
)

func init() {
	sensor.Register(Model, func(
		ctx context.Context,
		bus board.I2C,
		attributes utils.AttributeMap,
		logger logging.Logger,
	) (sensor.Sensor, error) {
		var conf Config
		if err := utils.TransformAttributeMapToStruct(&conf, attributes); err != nil {
			return nil, err
		}
		if err := conf.Validate("sensor.attributes"); err != nil {
			return nil, err
		}
		return NewSensor(ctx, bus, conf, logger)
	})
}

// Config is used for converting config attributes.
type Config struct {
	I2CAddr int `json:"i2c_addr,omitempty"`
}

// Validate ensures all parts of the config are valid.
func (conf *Config) Validate(path string) error {
	switch conf.I2CAddr {
	case 0, DefaultI2CAddr, AltI2CAddr:
		return nil
	default:
		return goutils.NewConfigValidationError(path,
			errors.Errorf("i2c_addr must be 0x%02x or 0x%02x, got 0x%02x", DefaultI2CAddr, AltI2CAddr, conf.I2CAddr))
	}
}

// Option configures a sensor.
type Option func(*bme280)

// WithClock replaces the clock used to wait for the chip.
func WithClock(clk clock.Clock) Option {
	return func(s *bme280) {
		s.clock = clk
	}
}

// NewSensor identifies, resets and configures the chip at conf.I2CAddr. The returned sensor owns an
// open handle on bus until Close.
func NewSensor(
	ctx context.Context,
	bus board.I2C,
	conf Config,
	logger logging.Logger,
	opts ...Option,
) (sensor.Sensor, error) {
	addr := byte(conf.I2CAddr)
	if addr == 0 {
		addr = DefaultI2CAddr
	}

	s := &bme280{addr: addr, logger: logger, clock: clock.New()}
	for _, opt := range opts {
		opt(s)
	}

	handle, err := bus.OpenHandle(addr)
	if err != nil {
		return nil, errors.Wrapf(err, "opening i2c handle at 0x%02x", addr)
	}
	s.handle = handle

	if err := s.init(ctx); err != nil {
		return nil, multierr.Combine(err, handle.Close())
	}
	logger.Debugw("bme280 ready", "addr", fmt.Sprintf("0x%02x", addr), "calibration", s.calib)
	return s, nil
}

// bme280 is a i2c sensor device.
type bme280 struct {
	logger logging.Logger
	clock  clock.Clock
	addr   byte

	mu     sync.Mutex
	handle board.I2CHandle
	calib  calibration
}

func (s *bme280) init(ctx context.Context) error {
	id, err := s.handle.ReadByteData(ctx, regChipID)
	if err != nil {
		return errors.Wrap(err, "reading chip id")
	}
	if id != chipID {
		return errors.Errorf("unexpected chip id 0x%02x at i2c address 0x%02x, want 0x%02x", id, s.addr, chipID)
	}

	if err := s.handle.WriteByteData(ctx, regReset, resetCommand); err != nil {
		return errors.Wrap(err, "resetting")
	}
	s.clock.Sleep(startupTime)
	if err := s.waitStatusClear(ctx, statusIMUpdate); err != nil {
		return errors.Wrap(err, "waiting for calibration copy")
	}

	block1, err := s.handle.ReadBlockData(ctx, regCalib1, calib1Len)
	if err != nil {
		return errors.Wrap(err, "reading calibration")
	}
	block2, err := s.handle.ReadBlockData(ctx, regCalib2, calib2Len)
	if err != nil {
		return errors.Wrap(err, "reading calibration")
	}
	s.calib, err = parseCalibration(block1, block2)
	if err != nil {
		return err
	}

	// ctrl_hum only takes effect after the following ctrl_meas write.
	if err := s.handle.WriteByteData(ctx, regCtrlHum, ctrlHumX1); err != nil {
		return errors.Wrap(err, "configuring humidity oversampling")
	}
	if err := s.handle.WriteByteData(ctx, regConfig, 0); err != nil {
		return errors.Wrap(err, "configuring filter")
	}
	if err := s.handle.WriteByteData(ctx, regCtrlMeas, ctrlMeasX1|modeSleep); err != nil {
		return errors.Wrap(err, "configuring oversampling")
	}
	return nil
}

// Readings runs one forced measurement and compensates it.
func (s *bme280) Readings(ctx context.Context) (sensor.Reading, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.handle == nil {
		return sensor.Reading{}, &sensor.ReadError{Err: errors.New("sensor is closed")}
	}

	if err := s.handle.WriteByteData(ctx, regCtrlMeas, ctrlMeasX1|modeForced); err != nil {
		return sensor.Reading{}, &sensor.ReadError{Err: errors.Wrap(err, "starting measurement")}
	}
	s.clock.Sleep(measurementTime)
	if err := s.waitStatusClear(ctx, statusMeasuring); err != nil {
		return sensor.Reading{}, &sensor.ReadError{Err: err}
	}

	// One burst read keeps the three channels from the same measurement.
	buffer, err := s.handle.ReadBlockData(ctx, regData, dataLen)
	if err != nil {
		return sensor.Reading{}, &sensor.ReadError{Err: errors.Wrap(err, "reading measurement")}
	}
	if len(buffer) != dataLen {
		return sensor.Reading{}, &sensor.ReadError{Err: errors.Errorf("short measurement read: %d bytes", len(buffer))}
	}
	return s.calib.compensate(decodeRaw(buffer))
}

func (s *bme280) waitStatusClear(ctx context.Context, bit byte) error {
	for i := 0; i < maxPolls; i++ {
		status, err := s.handle.ReadByteData(ctx, regStatus)
		if err != nil {
			return errors.Wrap(err, "reading status")
		}
		if status&bit == 0 {
			return nil
		}
		s.clock.Sleep(pollInterval)
	}
	return errors.Errorf("status bit 0x%02x still set after %d polls", bit, maxPolls)
}

// Close puts the chip to sleep and releases the handle.
func (s *bme280) Close(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.handle == nil {
		return nil
	}
	err := (&board.I2CRegister{Handle: s.handle, Register: regCtrlMeas}).UpdateBits(ctx, modeMask, modeSleep)
	err = multierr.Combine(err, s.handle.Close())
	s.handle = nil
	return err
}

type rawMeasurement struct {
	temperature int32
	pressure    int32
	humidity    int32
}

func decodeRaw(b []byte) rawMeasurement {
	return rawMeasurement{
		pressure:    int32(b[0])<<12 | int32(b[1])<<4 | int32(b[2])>>4,
		temperature: int32(b[3])<<12 | int32(b[4])<<4 | int32(b[5])>>4,
		humidity:    int32(b[6])<<8 | int32(b[7]),
	}
}
