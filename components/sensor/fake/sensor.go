// Package fake implements a fake Sensor.
package fake

import (
	"context"
	"sync"

	"github.com/grovesense/weatherlink/components/board"
	"github.com/grovesense/weatherlink/components/sensor"
	"github.com/grovesense/weatherlink/logging"
	"github.com/grovesense/weatherlink/utils"
)

// Model is the registered name of the fake sensor.
const Model = "fake"

// Config is used for converting config attributes. Zero fields fall back to DefaultReading.
type Config struct {
	Temperature float64 `json:"temperature,omitempty"`
	Humidity    float64 `json:"humidity,omitempty"`
	Pressure    float64 `json:"pressure,omitempty"`
}

// DefaultReading is a mild, dry day at sea level.
var DefaultReading = sensor.Reading{Temperature: 23.456, Humidity: 41.2, Pressure: 1013.05}

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
		reading := DefaultReading
		if conf.Temperature != 0 {
			reading.Temperature = conf.Temperature
		}
		if conf.Humidity != 0 {
			reading.Humidity = conf.Humidity
		}
		if conf.Pressure != 0 {
			reading.Pressure = conf.Pressure
		}
		return NewSensor(reading), nil
	})
}

// NewSensor returns a sensor that always reports reading.
func NewSensor(reading sensor.Reading) *Sensor {
	return &Sensor{reading: reading}
}

// Sensor is a fake Sensor device that always returns the set reading.
type Sensor struct {
	mu      sync.Mutex
	reading sensor.Reading
	reads   int
	closed  bool
}

// Readings always returns the set values.
func (s *Sensor) Readings(ctx context.Context) (sensor.Reading, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reads++
	return s.reading, nil
}

// Set replaces the reported values.
func (s *Sensor) Set(reading sensor.Reading) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reading = reading
}

// Reads returns how many readings were taken.
func (s *Sensor) Reads() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.reads
}

// Closed reports whether Close was called.
func (s *Sensor) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// Close marks the sensor closed.
func (s *Sensor) Close(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}
