// Package station runs the sample-and-report loop of a weather station: read the sensor, post the
// reading, sleep, until told to terminate.
package station

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/pkg/errors"
	"go.uber.org/atomic"
	"go.uber.org/multierr"

	"github.com/grovesense/weatherlink/components/board"
	"github.com/grovesense/weatherlink/components/sensor"
	"github.com/grovesense/weatherlink/config"
	"github.com/grovesense/weatherlink/logging"
	"github.com/grovesense/weatherlink/reporter"
)

// SampleInterval is the pause between the end of one report and the next reading. It is fixed.
const SampleInterval = 5 * time.Second

// State is the lifecycle stage of a station.
type State int32

// Station lifecycle: Initializing -> Running -> Terminating -> Stopped.
const (
	Initializing State = iota
	Running
	Terminating
	Stopped
)

func (s State) String() string {
	switch s {
	case Initializing:
		return "initializing"
	case Running:
		return "running"
	case Terminating:
		return "terminating"
	case Stopped:
		return "stopped"
	}
	return fmt.Sprintf("State(%d)", int32(s))
}

// Init stages.
const (
	StageBus      = "bus"
	StageSensor   = "sensor"
	StageReporter = "reporter"
)

// InitError means the station could not start; the process should exit non-zero.
type InitError struct {
	Stage string
	Err   error
}

func (e *InitError) Error() string {
	return fmt.Sprintf("station init failed at %s: %v", e.Stage, e.Err)
}

func (e *InitError) Unwrap() error {
	return e.Err
}

// A Reporter delivers one reading. Failures are logged by the station and never retried.
type Reporter interface {
	Send(ctx context.Context, reading sensor.Reading) error
}

// Option configures Open.
type Option func(*Station)

// WithClock replaces the wall clock used for the sleep between samples.
func WithClock(clk clock.Clock) Option {
	return func(s *Station) {
		s.clock = clk
	}
}

// WithReporter replaces the HTTP reporter built from the config.
func WithReporter(r Reporter) Option {
	return func(s *Station) {
		s.reporter = r
	}
}

// WithBusOpener replaces the board registry lookup.
func WithBusOpener(open func(ctx context.Context) (board.I2C, error)) Option {
	return func(s *Station) {
		s.openBus = open
	}
}

// WithSensorOpener replaces the sensor registry lookup.
func WithSensorOpener(open func(ctx context.Context, bus board.I2C) (sensor.Sensor, error)) Option {
	return func(s *Station) {
		s.openSensor = open
	}
}

// Station owns the bus and sensor from Open until Run returns.
type Station struct {
	logger   logging.Logger
	clock    clock.Clock
	reporter Reporter

	openBus    func(ctx context.Context) (board.I2C, error)
	openSensor func(ctx context.Context, bus board.I2C) (sensor.Sensor, error)

	bus    board.I2C
	sensor sensor.Sensor

	state     atomic.Int32
	terminate atomic.Bool
	wake      chan struct{}
	wakeOnce  sync.Once
	closeOnce sync.Once
	closeErr  error
}

// Open brings up the bus and then the sensor described by cfg. On failure everything already
// opened is released and an *InitError is returned.
func Open(ctx context.Context, cfg *config.Config, logger logging.Logger, opts ...Option) (*Station, error) {
	s := &Station{
		logger: logger,
		clock:  clock.New(),
		wake:   make(chan struct{}),
	}
	s.state.Store(int32(Initializing))
	s.openBus = func(ctx context.Context) (board.I2C, error) {
		return board.NewI2C(ctx, cfg.Board.Model, cfg.Board.I2C, logger.Sublogger("board"))
	}
	s.openSensor = func(ctx context.Context, bus board.I2C) (sensor.Sensor, error) {
		return sensor.New(ctx, cfg.Sensor.Model, bus, cfg.Sensor.Attributes, logger.Sublogger(cfg.Sensor.Name))
	}
	for _, opt := range opts {
		opt(s)
	}

	bus, err := s.openBus(ctx)
	if err != nil {
		return nil, &InitError{Stage: StageBus, Err: err}
	}
	s.bus = bus

	sens, err := s.openSensor(ctx, bus)
	if err != nil {
		return nil, &InitError{Stage: StageSensor, Err: multierr.Combine(err, bus.Close(ctx))}
	}
	s.sensor = sens

	if s.reporter == nil {
		r, err := reporter.New(cfg.Reporter.Endpoint, logger.Sublogger("reporter"))
		if err != nil {
			return nil, &InitError{Stage: StageReporter, Err: multierr.Combine(err, s.Close(ctx))}
		}
		s.reporter = r
	}
	logger.Infow("station initialized", "board", cfg.Board.Model, "sensor", cfg.Sensor.Model,
		"endpoint", cfg.Reporter.Endpoint)
	return s, nil
}

// State returns the current lifecycle stage.
func (s *Station) State() State {
	return State(s.state.Load())
}

// Terminate asks the loop to stop. It only sets a flag and wakes the sleep, so it is safe to call
// from any goroutine, any number of times. A reading or send in progress runs to completion.
func (s *Station) Terminate() {
	s.terminate.Store(true)
	s.wakeOnce.Do(func() { close(s.wake) })
}

// Run samples and reports until Terminate is called or ctx is cancelled, then releases the sensor
// and bus. Cancelling ctx does not interrupt a reading or send in progress.
func (s *Station) Run(ctx context.Context) error {
	if !s.state.CompareAndSwap(int32(Initializing), int32(Running)) {
		return errors.Errorf("station cannot run while %s", s.State())
	}
	stop := context.AfterFunc(ctx, s.Terminate)
	defer stop()

	opCtx := context.WithoutCancel(ctx)
	s.logger.Info("Starting sensor monitoring...")
	for !s.terminate.Load() {
		s.sample(opCtx)
		s.sleep()
	}

	s.state.Store(int32(Terminating))
	s.logger.Info("Shutting down...")
	err := s.Close(opCtx)
	s.state.Store(int32(Stopped))
	return err
}

func (s *Station) sample(ctx context.Context) {
	reading, err := s.sensor.Readings(ctx)
	if err != nil {
		s.logger.Errorw("Failed to read sensor data", "error", err)
		return
	}
	s.logger.Infof("Temperature: %.1fC", reading.Temperature)
	s.logger.Infof("Humidity: %.1f%%", reading.Humidity)
	s.logger.Infof("Pressure: %.1fhPa", reading.Pressure)

	if err := s.reporter.Send(ctx, reading); err != nil {
		s.logger.Errorw("Failed to send data", "error", err)
	}
}

func (s *Station) sleep() {
	select {
	case <-s.wake:
	case <-s.clock.After(SampleInterval):
	}
}

// Close releases the sensor then the bus. Run calls it on the way out; it is only needed directly
// when a station is opened but never run.
func (s *Station) Close(ctx context.Context) error {
	s.closeOnce.Do(func() {
		if s.sensor != nil {
			s.closeErr = multierr.Combine(s.closeErr, errors.Wrap(s.sensor.Close(ctx), "closing sensor"))
		}
		if s.bus != nil {
			s.closeErr = multierr.Combine(s.closeErr, errors.Wrap(s.bus.Close(ctx), "closing bus"))
		}
	})
	return s.closeErr
}
