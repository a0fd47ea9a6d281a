// Package main runs a weather station: it samples the configured sensor every five seconds and
// posts each reading to the collector until SIGINT or SIGTERM.
package main

import (
	"context"

	"go.uber.org/multierr"
	"go.uber.org/zap"
	"go.viam.com/utils"

	// registers all buses and sensors.
	_ "github.com/grovesense/weatherlink/components/register"
	"github.com/grovesense/weatherlink/config"
	"github.com/grovesense/weatherlink/logging"
	"github.com/grovesense/weatherlink/station"
)

var logger = logging.NewLogger("station")

func main() {
	utils.ContextualMain(mainWithArgs, logger)
}

// Arguments for the command.
type Arguments struct {
	ConfigFile string `flag:"config,usage=station config file; compiled-in defaults when empty"`
	Debug      bool   `flag:"debug,usage=enable debug logging"`
}

func mainWithArgs(ctx context.Context, args []string, logger logging.Logger) (err error) {
	var argsParsed Arguments
	if err := utils.ParseFlags(args, &argsParsed); err != nil {
		return err
	}

	cfg := config.Default()
	if argsParsed.ConfigFile != "" {
		cfg, err = config.Read(argsParsed.ConfigFile, logger)
		if err != nil {
			return err
		}
	}

	level, err := cfg.Log.LogLevel()
	if err != nil {
		return err
	}
	if argsParsed.Debug {
		level = logging.DEBUG
	}
	logger.SetLevel(level)
	if level == logging.DEBUG {
		logging.GlobalLogLevel.SetLevel(zap.DebugLevel)
	}
	if cfg.Log.File != "" {
		appender := logging.NewFileAppender(logging.FileConfig{
			Path:       cfg.Log.File,
			MaxSizeMB:  cfg.Log.MaxSizeMB,
			MaxBackups: cfg.Log.MaxBackups,
		})
		logger.AddAppender(appender)
		defer func() {
			err = multierr.Combine(err, logger.Sync(), appender.Close())
		}()
	}

	st, err := station.Open(ctx, cfg, logger)
	if err != nil {
		return err
	}
	utils.ContextMainReadyFunc(ctx)()
	return st.Run(ctx)
}
