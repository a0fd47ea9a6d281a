// Package main runs the collector: stations post readings to it, and it stores and plots them.
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/pkg/errors"
	"github.com/urfave/cli/v2"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/grovesense/weatherlink/collector"
	"github.com/grovesense/weatherlink/logging"
)

const (
	// Flags.
	flagAddr  = "addr"
	flagDB    = "db"
	flagDebug = "debug"
	flagLimit = "limit"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger := logging.NewLogger("collector")
	if err := newApp(logger).RunContext(ctx, os.Args); err != nil {
		logger.Error(err)
		//nolint:errcheck
		logger.Sync()
		stop()
		os.Exit(1)
	}
}

func newApp(logger logging.Logger) *cli.App {
	return &cli.App{
		Name:  "collector",
		Usage: "receive, store and plot weather station readings",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  flagAddr,
				Value: collector.DefaultAddr,
				Usage: "listen on `HOST:PORT`",
			},
			&cli.StringFlag{
				Name:  flagDB,
				Value: collector.DefaultDBPath,
				Usage: "store readings in SQLite `FILE`",
			},
			&cli.BoolFlag{
				Name:  flagDebug,
				Usage: "enable debug logging",
			},
		},
		Before: func(c *cli.Context) error {
			if c.Bool(flagDebug) {
				logging.GlobalLogLevel.SetLevel(zap.DebugLevel)
				logger.SetLevel(logging.DEBUG)
			}
			return nil
		},
		Action: func(c *cli.Context) error {
			return serve(c.Context, c.String(flagAddr), c.String(flagDB), logger)
		},
		Commands: []*cli.Command{
			{
				Name:  "history",
				Usage: "print the most recent stored readings",
				Flags: []cli.Flag{
					&cli.IntFlag{
						Name:  flagLimit,
						Value: collector.HistoryLimit,
						Usage: "print at most `N` readings",
					},
				},
				Action: func(c *cli.Context) error {
					return printHistory(c.Context, c.App.Writer, c.String(flagDB), c.Int(flagLimit))
				},
			},
		},
	}
}

func printHistory(ctx context.Context, w io.Writer, dbPath string, limit int) (err error) {
	if limit <= 0 {
		return errors.Errorf("--%s must be positive, got %d", flagLimit, limit)
	}
	store, err := collector.OpenSQLStore(ctx, dbPath)
	if err != nil {
		return err
	}
	defer func() {
		err = multierr.Combine(err, store.Close())
	}()

	readings, err := store.Last(ctx, limit)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(w, collector.HistoryTable(readings))
	return err
}

func serve(ctx context.Context, addr, dbPath string, logger logging.Logger) (err error) {
	store, err := collector.OpenSQLStore(ctx, dbPath)
	if err != nil {
		return err
	}
	defer func() {
		err = multierr.Combine(err, store.Close())
	}()
	logger.Infow("Database initialized successfully", "path", dbPath)

	if err := collector.NewServer(store, logger).Run(ctx, addr); err != nil {
		return errors.Wrap(err, "collector stopped")
	}
	return nil
}
