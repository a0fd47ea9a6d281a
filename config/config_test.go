package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"go.viam.com/test"

	"github.com/grovesense/weatherlink/logging"
	"github.com/grovesense/weatherlink/utils"
)

func TestDefault(t *testing.T) {
	cfg := Default()
	test.That(t, cfg.Validate(), test.ShouldBeNil)
	test.That(t, cfg.Reporter.Endpoint, test.ShouldEqual, "http://172.20.10.7:9999")
	test.That(t, cfg.Board.Model, test.ShouldEqual, "genericlinux")
	test.That(t, cfg.Board.I2C.Bus, test.ShouldEqual, "")
	test.That(t, cfg.Sensor.Model, test.ShouldEqual, "bme280")
	level, err := cfg.Log.LogLevel()
	test.That(t, err, test.ShouldBeNil)
	test.That(t, level, test.ShouldEqual, logging.INFO)
}

func TestFromReader(t *testing.T) {
	logger := logging.NewTestLogger(t)

	cfg, err := FromReader("station.json", strings.NewReader(`{
		"board": {"model": "fake", "i2c": {"name": "main", "bus": "1"}},
		"sensor": {"name": "porch", "model": "bme280", "attributes": {"i2c_addr": 119}}
	}`), logger)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, cfg.ConfigFilePath, test.ShouldEqual, "station.json")
	test.That(t, cfg.Board.Model, test.ShouldEqual, "fake")
	test.That(t, cfg.Board.I2C.Bus, test.ShouldEqual, "1")
	test.That(t, cfg.Sensor.Attributes, test.ShouldResemble, utils.AttributeMap{"i2c_addr": 119.0})
	// Untouched sections keep their defaults.
	test.That(t, cfg.Reporter.Endpoint, test.ShouldEqual, DefaultEndpoint)

	cfg, err = FromReader("", strings.NewReader(`{"log": {"level": "WARN"}}`), logger)
	test.That(t, err, test.ShouldBeNil)
	level, err := cfg.Log.LogLevel()
	test.That(t, err, test.ShouldBeNil)
	test.That(t, level, test.ShouldEqual, logging.WARN)

	for _, tc := range []struct {
		name   string
		json   string
		errStr string
	}{
		{"unknown field", `{"interval": "1s"}`, `unknown field "interval"`},
		{"bad json", `{"board": `, "failed to decode Config from json"},
		{"missing model", `{"board": {"model": ""}}`, `error validating "board": "model" is required`},
		{"missing bus name", `{"board": {"model": "fake", "i2c": {"name": ""}}}`, `error validating "board.i2c": "name" is required`},
		{"missing sensor model", `{"sensor": {"name": "porch", "model": ""}}`, `error validating "sensor": "model" is required`},
		{"https endpoint", `{"reporter": {"endpoint": "https://example.com"}}`, "absolute http URL"},
		{"relative endpoint", `{"reporter": {"endpoint": "/readings"}}`, "absolute http URL"},
		{"negative size", `{"log": {"file": "x.log", "max_size_mb": -1}}`, "max_size_mb cannot be negative"},
		{"unknown level", `{"log": {"level": "loud"}}`, `error validating "log": unknown log level: "loud"`},
	} {
		t.Run(tc.name, func(t *testing.T) {
			_, err := FromReader("", strings.NewReader(tc.json), logger)
			test.That(t, err, test.ShouldNotBeNil)
			test.That(t, err.Error(), test.ShouldContainSubstring, tc.errStr)
		})
	}
}

func TestReadExpandsEnvironment(t *testing.T) {
	logger := logging.NewTestLogger(t)
	t.Setenv("COLLECTOR_URL", "http://192.168.1.20:9999")

	path := filepath.Join(t.TempDir(), "station.json")
	err := os.WriteFile(path, []byte(`{"reporter": {"endpoint": "${COLLECTOR_URL}"}}`), 0o600)
	test.That(t, err, test.ShouldBeNil)

	cfg, err := Read(path, logger)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, cfg.Reporter.Endpoint, test.ShouldEqual, "http://192.168.1.20:9999")

	_, err = Read(filepath.Join(t.TempDir(), "missing.json"), logger)
	test.That(t, err, test.ShouldNotBeNil)
}
