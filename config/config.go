// Package config defines the station's configuration and how it is read from disk.
package config

import (
	"net/url"

	"github.com/pkg/errors"
	"go.viam.com/utils"

	"github.com/grovesense/weatherlink/components/board"
	"github.com/grovesense/weatherlink/logging"
	rutils "github.com/grovesense/weatherlink/utils"
)

// DefaultEndpoint is the collector every station reports to unless a config file says otherwise.
const DefaultEndpoint = "http://172.20.10.7:9999"

// Config describes a station: the bus the sensor hangs off, the sensor itself, where readings go
// and how the process logs.
type Config struct {
	ConfigFilePath string `json:"-"`

	Board    BoardConfig    `json:"board"`
	Sensor   SensorConfig   `json:"sensor"`
	Reporter ReporterConfig `json:"reporter"`
	Log      LogConfig      `json:"log"`
}

// Default returns the configuration used when no file is given: a BME280 at 0x76 on the first I2C
// bus of a Linux host, reporting to DefaultEndpoint.
func Default() *Config {
	return &Config{
		Board: BoardConfig{
			Model: "genericlinux",
			I2C:   board.I2CConfig{Name: "main"},
		},
		Sensor: SensorConfig{
			Name:  "bme280",
			Model: "bme280",
		},
		Reporter: ReporterConfig{Endpoint: DefaultEndpoint},
	}
}

// Validate ensures all parts of the config are valid.
func (c *Config) Validate() error {
	if err := c.Board.Validate("board"); err != nil {
		return err
	}
	if err := c.Sensor.Validate("sensor"); err != nil {
		return err
	}
	if err := c.Reporter.Validate("reporter"); err != nil {
		return err
	}
	return c.Log.Validate("log")
}

// BoardConfig selects the bus implementation.
type BoardConfig struct {
	Model string          `json:"model"`
	I2C   board.I2CConfig `json:"i2c"`
}

// Validate ensures all parts of the config are valid.
func (config *BoardConfig) Validate(path string) error {
	if config.Model == "" {
		return utils.NewConfigValidationFieldRequiredError(path, "model")
	}
	return config.I2C.Validate(path + ".i2c")
}

// SensorConfig selects the sensor driver. Attributes are decoded by the driver.
type SensorConfig struct {
	Name       string              `json:"name"`
	Model      string              `json:"model"`
	Attributes rutils.AttributeMap `json:"attributes,omitempty"`
}

// Validate ensures all parts of the config are valid.
func (config *SensorConfig) Validate(path string) error {
	if config.Name == "" {
		return utils.NewConfigValidationFieldRequiredError(path, "name")
	}
	if config.Model == "" {
		return utils.NewConfigValidationFieldRequiredError(path, "model")
	}
	return nil
}

// ReporterConfig says where readings are posted.
type ReporterConfig struct {
	Endpoint string `json:"endpoint"`
}

// Validate ensures all parts of the config are valid.
func (config *ReporterConfig) Validate(path string) error {
	if config.Endpoint == "" {
		return utils.NewConfigValidationFieldRequiredError(path, "endpoint")
	}
	u, err := url.Parse(config.Endpoint)
	if err != nil {
		return utils.NewConfigValidationError(path, errors.Wrap(err, "invalid endpoint"))
	}
	if u.Scheme != "http" || u.Host == "" {
		return utils.NewConfigValidationError(path,
			errors.Errorf("endpoint must be an absolute http URL, got %q", config.Endpoint))
	}
	return nil
}

// LogConfig sets the station's log level and adds an optional rotating log file next to stdout.
type LogConfig struct {
	// Level is one of debug, info, warn or error. Empty means info.
	Level      string `json:"level,omitempty"`
	File       string `json:"file,omitempty"`
	MaxSizeMB  int    `json:"max_size_mb,omitempty"`
	MaxBackups int    `json:"max_backups,omitempty"`
}

// LogLevel returns the configured level, INFO when none is set.
func (config *LogConfig) LogLevel() (logging.Level, error) {
	if config.Level == "" {
		return logging.INFO, nil
	}
	return logging.LevelFromString(config.Level)
}

// Validate ensures all parts of the config are valid.
func (config *LogConfig) Validate(path string) error {
	if _, err := config.LogLevel(); err != nil {
		return utils.NewConfigValidationError(path, err)
	}
	if config.MaxSizeMB < 0 {
		return utils.NewConfigValidationError(path, errors.New("max_size_mb cannot be negative"))
	}
	if config.MaxBackups < 0 {
		return utils.NewConfigValidationError(path, errors.New("max_backups cannot be negative"))
	}
	return nil
}
