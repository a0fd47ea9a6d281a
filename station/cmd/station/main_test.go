package main

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/pkg/errors"
	"go.viam.com/test"

	"github.com/grovesense/weatherlink/logging"
	"github.com/grovesense/weatherlink/station"
)

func writeConfig(t *testing.T, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "station.json")
	test.That(t, os.WriteFile(path, []byte(contents), 0o600), test.ShouldBeNil)
	return path
}

func TestMainWithArgs(t *testing.T) {
	logger := logging.NewTestLogger(t)

	t.Run("bad flag", func(t *testing.T) {
		err := mainWithArgs(context.Background(), []string{"station", "--interval=1s"}, logger)
		test.That(t, err, test.ShouldNotBeNil)
	})

	t.Run("missing config", func(t *testing.T) {
		err := mainWithArgs(context.Background(), []string{"station", "--config", filepath.Join(t.TempDir(), "nope.json")}, logger)
		test.That(t, err, test.ShouldNotBeNil)
	})

	t.Run("sensor missing", func(t *testing.T) {
		// The fake bus is not backed by periph.io, so the periph driver cannot open on it.
		path := writeConfig(t, `{"board": {"model": "fake", "i2c": {"name": "main"}},
			"sensor": {"name": "porch", "model": "bmxx80"}}`)
		err := mainWithArgs(context.Background(), []string{"station", "--config", path}, logger)
		var initErr *station.InitError
		test.That(t, errors.As(err, &initErr), test.ShouldBeTrue)
		test.That(t, initErr.Stage, test.ShouldEqual, station.StageSensor)
	})

	t.Run("runs until cancelled", func(t *testing.T) {
		logFile := filepath.Join(t.TempDir(), "station.log")
		path := writeConfig(t, `{"board": {"model": "fake", "i2c": {"name": "main"}},
			"sensor": {"name": "porch", "model": "fake"},
			"reporter": {"endpoint": "http://127.0.0.1:1"},
			"log": {"file": "`+logFile+`"}}`)

		ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
		defer cancel()
		err := mainWithArgs(ctx, []string{"station", "--config", path}, logging.NewBlankLogger("station"))
		test.That(t, err, test.ShouldBeNil)

		contents, err := os.ReadFile(logFile)
		test.That(t, err, test.ShouldBeNil)
		test.That(t, string(contents), test.ShouldContainSubstring, "Temperature: 23.5C")
		test.That(t, string(contents), test.ShouldContainSubstring, "Failed to send data")
	})
	t.Run("level from config", func(t *testing.T) {
		logFile := filepath.Join(t.TempDir(), "station.log")
		path := writeConfig(t, `{"board": {"model": "fake", "i2c": {"name": "main"}},
			"sensor": {"name": "porch", "model": "fake"},
			"reporter": {"endpoint": "http://127.0.0.1:1"},
			"log": {"level": "error", "file": "`+logFile+`"}}`)

		ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
		defer cancel()
		logger := logging.NewBlankLogger("station")
		err := mainWithArgs(ctx, []string{"station", "--config", path}, logger)
		test.That(t, err, test.ShouldBeNil)
		test.That(t, logger.GetLevel(), test.ShouldEqual, logging.ERROR)

		contents, err := os.ReadFile(logFile)
		test.That(t, err, test.ShouldBeNil)
		test.That(t, string(contents), test.ShouldNotContainSubstring, "Temperature:")
		test.That(t, string(contents), test.ShouldContainSubstring, "Failed to send data")
	})

	t.Run("bad level", func(t *testing.T) {
		path := writeConfig(t, `{"log": {"level": "loud"}}`)
		err := mainWithArgs(context.Background(), []string{"station", "--config", path}, logger)
		test.That(t, err, test.ShouldNotBeNil)
		test.That(t, err.Error(), test.ShouldContainSubstring, `unknown log level: "loud"`)
	})
}
