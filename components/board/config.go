package board

import (
	"go.viam.com/utils"
)

// I2CConfig enumerates a specific, shareable I2C bus. An empty Bus selects the first bus the host
// reports.
type I2CConfig struct {
	Name string `json:"name"`
	Bus  string `json:"bus"`
}

// Validate ensures all parts of the config are valid.
func (config *I2CConfig) Validate(path string) error {
	if config.Name == "" {
		return utils.NewConfigValidationFieldRequiredError(path, "name")
	}
	return nil
}
