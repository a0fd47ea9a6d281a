package board

import (
	"context"
	"sync"

	"github.com/pkg/errors"

	"github.com/grovesense/weatherlink/logging"
	"github.com/grovesense/weatherlink/utils"
)

// A CreateI2C opens an I2C bus from a given config.
type CreateI2C func(ctx context.Context, conf I2CConfig, logger logging.Logger) (I2C, error)

var (
	registryMu  sync.RWMutex
	i2cRegistry = map[string]CreateI2C{}
)

// RegisterI2C registers an I2C bus model to a creator.
func RegisterI2C(model string, creator CreateI2C) {
	registryMu.Lock()
	defer registryMu.Unlock()
	if _, old := i2cRegistry[model]; old {
		panic(errors.Errorf("trying to register two i2c buses with same model %s", model))
	}
	i2cRegistry[model] = creator
}

// I2CLookup looks up an I2C creator by the given model. nil is returned if there is no creator
// registered.
func I2CLookup(model string) CreateI2C {
	registryMu.RLock()
	defer registryMu.RUnlock()
	return i2cRegistry[model]
}

// NewI2C opens the bus described by conf using the creator registered for model.
func NewI2C(ctx context.Context, model string, conf I2CConfig, logger logging.Logger) (I2C, error) {
	creator := I2CLookup(model)
	if creator == nil {
		return nil, utils.NewUnknownModelError("board", model)
	}
	bus, err := creator(ctx, conf, logger)
	if err != nil {
		return nil, errors.Wrapf(err, "opening i2c bus %q", conf.Name)
	}
	return bus, nil
}
