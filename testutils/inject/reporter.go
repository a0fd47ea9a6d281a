package inject

import (
	"context"

	"github.com/grovesense/weatherlink/components/sensor"
)

// Reporter is an injected reporter.
type Reporter struct {
	SendFunc func(ctx context.Context, reading sensor.Reading) error
}

// Send calls the injected Send or does nothing.
func (r *Reporter) Send(ctx context.Context, reading sensor.Reading) error {
	if r.SendFunc == nil {
		return nil
	}
	return r.SendFunc(ctx, reading)
}
