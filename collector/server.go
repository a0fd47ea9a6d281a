package collector

import (
	"context"
	_ "embed"
	"encoding/json"
	"math"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/cors"
	"github.com/samber/lo"
	"github.com/spf13/cast"
	"goji.io"
	"goji.io/pat"
	"golang.org/x/sync/errgroup"

	"github.com/grovesense/weatherlink/components/sensor"
	"github.com/grovesense/weatherlink/logging"
)

// DefaultAddr is where the collector listens when no address is given. Stations post to port
// 9999 by default.
const DefaultAddr = "0.0.0.0:9999"

const timestampLayout = "2006-01-02 15:04:05"

//go:embed dashboard.html
var dashboardHTML []byte

// Response bodies.
const (
	errMissingFields = "Missing required fields"
	errInvalidFormat = "Invalid data format"
	errStoreFailed   = "Failed to store data"
	errDatabase      = "Database error"
)

// Series is the columnar shape of GET /readings, oldest first.
type Series struct {
	Timestamps  []string  `json:"timestamps"`
	Temperature []float64 `json:"temperature"`
	Humidity    []float64 `json:"humidity"`
	Pressure    []float64 `json:"pressure"`
}

// Server is the collector's HTTP surface.
type Server struct {
	store  Store
	hub    *Hub
	logger logging.Logger
	now    func() time.Time

	handler http.Handler
}

// NewServer returns a server storing into store. The store is not closed by the server.
func NewServer(store Store, logger logging.Logger) *Server {
	s := &Server{
		store:  store,
		hub:    NewHub(logger.Sublogger("ws")),
		logger: logger,
		now:    time.Now,
	}

	mux := goji.NewMux()
	mux.HandleFunc(pat.Post("/"), s.handleReading)
	mux.HandleFunc(pat.Get("/readings"), s.handleHistory)
	mux.Handle(pat.Get("/ws"), s.hub)
	mux.HandleFunc(pat.Get("/"), s.handleDashboard)

	s.handler = cors.AllowAll().Handler(mux)
	return s
}

// Handler returns the routed handler with CORS applied.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Hub returns the live feed hub.
func (s *Server) Hub() *Hub {
	return s.hub
}

// Run listens on addr and serves until ctx is done.
func (s *Server) Run(ctx context.Context, addr string) error {
	var lc net.ListenConfig
	listener, err := lc.Listen(ctx, "tcp", addr)
	if err != nil {
		return errors.Wrapf(err, "listening on %s", addr)
	}
	return s.Serve(ctx, listener)
}

// Serve serves on listener until ctx is done, then shuts down gracefully.
func (s *Server) Serve(ctx context.Context, listener net.Listener) error {
	httpServer := &http.Server{
		ReadTimeout:    10 * time.Second,
		MaxHeaderBytes: 1 << 20,
		Handler:        s.handler,
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		s.logger.Infow("serving", "url", "http://"+listener.Addr().String())
		if err := httpServer.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		// hijacked websocket connections are not tracked by Shutdown.
		s.hub.Close()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

func (s *Server) handleReading(w http.ResponseWriter, r *http.Request) {
	var body map[string]interface{}
	decoder := json.NewDecoder(r.Body)
	decoder.UseNumber()
	if err := decoder.Decode(&body); err != nil || body == nil {
		s.logger.Errorw("Data validation error", "error", err)
		s.writeError(w, http.StatusBadRequest, errInvalidFormat)
		return
	}

	for _, field := range []string{sensor.ChannelTemperature, sensor.ChannelHumidity, sensor.ChannelPressure} {
		if _, ok := body[field]; !ok {
			s.writeError(w, http.StatusBadRequest, errMissingFields)
			return
		}
	}

	var reading sensor.Reading
	var err error
	for field, dst := range map[string]*float64{
		sensor.ChannelTemperature: &reading.Temperature,
		sensor.ChannelHumidity:    &reading.Humidity,
		sensor.ChannelPressure:    &reading.Pressure,
	} {
		if *dst, err = parseValue(body[field]); err != nil {
			s.logger.Errorw("Data validation error", "field", field, "error", err)
			s.writeError(w, http.StatusBadRequest, errInvalidFormat)
			return
		}
	}

	if err := s.store.Insert(r.Context(), reading); err != nil {
		s.logger.Errorw("Error inserting data", "error", err)
		s.writeError(w, http.StatusInternalServerError, errStoreFailed)
		return
	}
	s.logger.Infof("Received and stored: Temp=%v°C, Humidity=%v%%, Pressure=%vhPa",
		reading.Temperature, reading.Humidity, reading.Pressure)
	s.hub.Broadcast(StoredReading{Reading: reading, Timestamp: s.now().Format(timestampLayout)})

	s.writeJSON(w, http.StatusOK, map[string]string{"status": "success"})
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	readings, err := s.store.Last(r.Context(), HistoryLimit)
	if err != nil {
		s.logger.Errorw("Database error", "error", err)
		s.writeError(w, http.StatusInternalServerError, errDatabase)
		return
	}
	s.writeJSON(w, http.StatusOK, toSeries(readings))
}

func (s *Server) handleDashboard(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if _, err := w.Write(dashboardHTML); err != nil {
		s.logger.Debugw("writing dashboard", "error", err)
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, msg string) {
	s.writeJSON(w, status, map[string]string{"error": msg})
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Debugw("writing response", "error", err)
	}
}

func toSeries(readings []StoredReading) Series {
	return Series{
		Timestamps:  lo.Map(readings, func(r StoredReading, _ int) string { return r.Timestamp }),
		Temperature: lo.Map(readings, func(r StoredReading, _ int) float64 { return r.Temperature }),
		Humidity:    lo.Map(readings, func(r StoredReading, _ int) float64 { return r.Humidity }),
		Pressure:    lo.Map(readings, func(r StoredReading, _ int) float64 { return r.Pressure }),
	}
}

// parseValue accepts a JSON number or a string holding one. Values must be finite.
func parseValue(v interface{}) (float64, error) {
	switch val := v.(type) {
	case json.Number:
	case string:
		v = strings.TrimSpace(val)
	default:
		return 0, errors.Errorf("expected a number, got %T", v)
	}
	f, err := cast.ToFloat64E(v)
	if err != nil {
		return 0, err
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, errors.Errorf("%v is not finite", v)
	}
	return f, nil
}
