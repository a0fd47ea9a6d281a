// Package bmxx80 exposes the periph.io BME280 driver as a sensor. It needs a bus backed by
// periph.io, such as the genericlinux one.
package bmxx80

import (
	"context"
	"strings"
	"sync"

	"github.com/pkg/errors"
	"go.uber.org/multierr"
	goutils "go.viam.com/utils"
	"periph.io/x/conn/v3/physic"
	"periph.io/x/devices/v3/bmxx80"

	"github.com/grovesense/weatherlink/components/board"
	"github.com/grovesense/weatherlink/components/sensor"
	"github.com/grovesense/weatherlink/logging"
	"github.com/grovesense/weatherlink/utils"
)

// Model is the registered name of this driver.
const Model = "bmxx80"

const defaultI2CAddr = 0x76

var oversampling = map[int]bmxx80.Oversampling{
	1:  bmxx80.O1x,
	2:  bmxx80.O2x,
	4:  bmxx80.O4x,
	8:  bmxx80.O8x,
	16: bmxx80.O16x,
}

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
		return NewSensor(bus, conf, logger)
	})
}

// Config is used for converting config attributes.
type Config struct {
	I2CAddr      int `json:"i2c_addr,omitempty"`
	Oversampling int `json:"oversampling,omitempty"`
}

// Validate ensures all parts of the config are valid.
func (conf *Config) Validate(path string) error {
	if conf.Oversampling == 0 {
		return nil
	}
	if _, ok := oversampling[conf.Oversampling]; !ok {
		return goutils.NewConfigValidationError(path,
			errors.Errorf("oversampling must be one of 1, 2, 4, 8 or 16, got %d", conf.Oversampling))
	}
	return nil
}

// NewSensor opens the device through periph.io. Only the BME280 variant is accepted since a
// BMP280 has no humidity channel.
func NewSensor(bus board.I2C, conf Config, logger logging.Logger) (sensor.Sensor, error) {
	periphBus, ok := bus.(board.PeriphI2C)
	if !ok {
		return nil, utils.NewUnimplementedInterfaceError("board.PeriphI2C", bus)
	}
	addr := conf.I2CAddr
	if addr == 0 {
		addr = defaultI2CAddr
	}
	over := bmxx80.O1x
	if conf.Oversampling != 0 {
		over = oversampling[conf.Oversampling]
	}

	dev, err := bmxx80.NewI2C(periphBus.PeriphBus(), uint16(addr), &bmxx80.Opts{
		Temperature: over,
		Pressure:    over,
		Humidity:    over,
	})
	if err != nil {
		return nil, errors.Wrapf(err, "opening bmxx80 at 0x%02x", addr)
	}
	if strings.HasPrefix(dev.String(), "BMP280") {
		return nil, multierr.Combine(errors.New("found a BMP280, which cannot measure humidity"), dev.Halt())
	}
	logger.Debugw("bmxx80 ready", "device", dev.String())
	return &bme{dev: dev}, nil
}

type bme struct {
	mu  sync.Mutex
	dev *bmxx80.Dev
}

func (s *bme) Readings(ctx context.Context) (sensor.Reading, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.dev == nil {
		return sensor.Reading{}, &sensor.ReadError{Err: errors.New("sensor is closed")}
	}
	var env physic.Env
	if err := s.dev.Sense(&env); err != nil {
		return sensor.Reading{}, &sensor.ReadError{Err: err}
	}
	reading := envToReading(env)
	if err := reading.Validate(); err != nil {
		return sensor.Reading{}, err
	}
	return reading, nil
}

func (s *bme) Close(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.dev == nil {
		return nil
	}
	err := s.dev.Halt()
	s.dev = nil
	return err
}

func envToReading(env physic.Env) sensor.Reading {
	return sensor.Reading{
		Temperature: float64(env.Temperature-physic.ZeroCelsius) / float64(physic.Celsius),
		Humidity:    float64(env.Humidity) / float64(physic.PercentRH),
		Pressure:    float64(env.Pressure) / float64(physic.Pascal) / 100,
	}
}
