// Package collector implements the HTTP endpoint stations post their readings to. Readings are
// kept in SQLite and served back as plot-ready series and as a live websocket feed.
package collector

import (
	"context"
	"database/sql"

	// register the sqlite3 driver.
	_ "github.com/mattn/go-sqlite3"
	"github.com/pkg/errors"
	"go.uber.org/multierr"

	"github.com/grovesense/weatherlink/components/sensor"
)

// DefaultDBPath is the database file used when none is given.
const DefaultDBPath = "sensor_data.db"

// HistoryLimit is how many readings GET /readings returns.
const HistoryLimit = 100

const createTable = `
CREATE TABLE IF NOT EXISTS sensor_readings (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	temperature REAL NOT NULL,
	humidity REAL NOT NULL,
	pressure REAL NOT NULL,
	timestamp DATETIME DEFAULT CURRENT_TIMESTAMP
)`

// Newest n rows, re-sorted oldest first. id breaks ties between rows stored in the same second.
const selectLast = `
SELECT temperature, humidity, pressure, ts FROM (
	SELECT id, temperature, humidity, pressure, datetime(timestamp, 'localtime') AS ts
	FROM sensor_readings
	ORDER BY timestamp DESC, id DESC
	LIMIT ?
) ORDER BY ts ASC, id ASC`

// StoredReading is a reading together with the local time it was stored at, formatted
// "YYYY-MM-DD HH:MM:SS".
type StoredReading struct {
	sensor.Reading
	Timestamp string
}

// Store persists readings.
type Store interface {
	Insert(ctx context.Context, reading sensor.Reading) error
	// Last returns up to n of the most recent readings, oldest first.
	Last(ctx context.Context, n int) ([]StoredReading, error)
	Close() error
}

// SQLStore is a Store backed by a SQLite file.
type SQLStore struct {
	db *sql.DB
}

// OpenSQLStore opens (creating if needed) the database at path and ensures the readings table
// exists.
func OpenSQLStore(ctx context.Context, path string) (*SQLStore, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, errors.Wrapf(err, "opening database %q", path)
	}
	// sqlite serializes writers; one connection avoids "database is locked" between handlers.
	db.SetMaxOpenConns(1)
	if _, err := db.ExecContext(ctx, createTable); err != nil {
		return nil, multierr.Combine(errors.Wrap(err, "creating readings table"), db.Close())
	}
	return &SQLStore{db: db}, nil
}

// Insert stores one reading stamped with the current time.
func (s *SQLStore) Insert(ctx context.Context, reading sensor.Reading) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO sensor_readings (temperature, humidity, pressure) VALUES (?, ?, ?)`,
		reading.Temperature, reading.Humidity, reading.Pressure)
	return errors.Wrap(err, "inserting reading")
}

// Last returns up to n of the most recent readings, oldest first.
func (s *SQLStore) Last(ctx context.Context, n int) ([]StoredReading, error) {
	rows, err := s.db.QueryContext(ctx, selectLast, n)
	if err != nil {
		return nil, errors.Wrap(err, "querying readings")
	}
	defer func() {
		//nolint:errcheck
		rows.Close()
	}()

	out := make([]StoredReading, 0, n)
	for rows.Next() {
		var r StoredReading
		if err := rows.Scan(&r.Temperature, &r.Humidity, &r.Pressure, &r.Timestamp); err != nil {
			return nil, errors.Wrap(err, "scanning reading")
		}
		out = append(out, r)
	}
	return out, errors.Wrap(rows.Err(), "iterating readings")
}

// Close closes the database.
func (s *SQLStore) Close() error {
	return s.db.Close()
}
