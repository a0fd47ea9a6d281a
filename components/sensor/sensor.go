// Package sensor defines the weather sensor abstraction the station polls.
package sensor

import (
	"context"
	"fmt"
	"math"
	"sync"

	"github.com/pkg/errors"

	"github.com/grovesense/weatherlink/components/board"
	"github.com/grovesense/weatherlink/logging"
	"github.com/grovesense/weatherlink/utils"
)

// Channel names, also used as the json keys of a report.
const (
	ChannelTemperature = "temperature"
	ChannelHumidity    = "humidity"
	ChannelPressure    = "pressure"
)

// A Reading is one complete environmental sample. All fields are populated together.
type Reading struct {
	// Temperature in degrees Celsius.
	Temperature float64
	// Humidity in percent relative humidity.
	Humidity float64
	// Pressure in hectopascals.
	Pressure float64
}

// Validate returns a *ReadError naming the first channel that does not hold a finite number.
func (r Reading) Validate() error {
	for _, ch := range []struct {
		name  string
		value float64
	}{
		{ChannelTemperature, r.Temperature},
		{ChannelHumidity, r.Humidity},
		{ChannelPressure, r.Pressure},
	} {
		if math.IsNaN(ch.value) || math.IsInf(ch.value, 0) {
			return &ReadError{Channel: ch.name, Err: errors.Errorf("non-finite value %v", ch.value)}
		}
	}
	return nil
}

// A Sensor produces readings on demand.
type Sensor interface {
	// Readings performs one measurement. Any failure returns a *ReadError and no partial reading.
	Readings(ctx context.Context) (Reading, error)
	// Close puts the device in its idle state and releases its bus handle.
	Close(ctx context.Context) error
}

// ReadError reports that a measurement could not be completed. Channel is empty when the failure
// is not specific to one channel, e.g. the bus transaction itself failed.
type ReadError struct {
	Channel string
	Err     error
}

func (e *ReadError) Error() string {
	if e.Channel == "" {
		return fmt.Sprintf("sensor read failed: %v", e.Err)
	}
	return fmt.Sprintf("sensor read failed on %s channel: %v", e.Channel, e.Err)
}

func (e *ReadError) Unwrap() error {
	return e.Err
}

// A CreateSensor opens a sensor attached to bus.
type CreateSensor func(
	ctx context.Context,
	bus board.I2C,
	attributes utils.AttributeMap,
	logger logging.Logger,
) (Sensor, error)

var (
	registryMu     sync.RWMutex
	sensorRegistry = map[string]CreateSensor{}
)

// Register registers a sensor model to a creator.
func Register(model string, creator CreateSensor) {
	registryMu.Lock()
	defer registryMu.Unlock()
	if _, old := sensorRegistry[model]; old {
		panic(errors.Errorf("trying to register two sensors with same model %s", model))
	}
	sensorRegistry[model] = creator
}

// Lookup looks up a sensor creator by the given model. nil is returned if there is no creator
// registered.
func Lookup(model string) CreateSensor {
	registryMu.RLock()
	defer registryMu.RUnlock()
	return sensorRegistry[model]
}

// New opens a sensor of the given model on bus.
func New(
	ctx context.Context,
	model string,
	bus board.I2C,
	attributes utils.AttributeMap,
	logger logging.Logger,
) (Sensor, error) {
	creator := Lookup(model)
	if creator == nil {
		return nil, utils.NewUnknownModelError("sensor", model)
	}
	s, err := creator(ctx, bus, attributes, logger)
	if err != nil {
		return nil, errors.Wrapf(err, "opening %s sensor", model)
	}
	return s, nil
}
