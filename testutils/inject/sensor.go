package inject

import (
	"context"

	"github.com/grovesense/weatherlink/components/sensor"
)

// Sensor is an injected sensor.
type Sensor struct {
	sensor.Sensor
	ReadingsFunc func(ctx context.Context) (sensor.Reading, error)
	CloseFunc    func(ctx context.Context) error
}

// Readings calls the injected Readings or the real version.
func (s *Sensor) Readings(ctx context.Context) (sensor.Reading, error) {
	if s.ReadingsFunc == nil {
		return s.Sensor.Readings(ctx)
	}
	return s.ReadingsFunc(ctx)
}

// Close calls the injected Close or the real version.
func (s *Sensor) Close(ctx context.Context) error {
	if s.CloseFunc == nil {
		if s.Sensor == nil {
			return nil
		}
		return s.Sensor.Close(ctx)
	}
	return s.CloseFunc(ctx)
}
