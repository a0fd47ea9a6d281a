package collector

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"go.viam.com/test"

	"github.com/grovesense/weatherlink/components/sensor"
	"github.com/grovesense/weatherlink/testutils"
)

func TestMain(m *testing.M) {
	testutils.VerifyTestMain(m)
}

func openTestStore(t *testing.T) *SQLStore {
	t.Helper()
	store, err := OpenSQLStore(context.Background(), filepath.Join(t.TempDir(), DefaultDBPath))
	test.That(t, err, test.ShouldBeNil)
	t.Cleanup(func() {
		test.That(t, store.Close(), test.ShouldBeNil)
	})
	return store
}

func TestSQLStore(t *testing.T) {
	ctx := context.Background()
	store := openTestStore(t)

	readings, err := store.Last(ctx, HistoryLimit)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, readings, test.ShouldBeEmpty)

	test.That(t, store.Insert(ctx, sensor.Reading{Temperature: 25.08, Humidity: 55, Pressure: 1006.53}), test.ShouldBeNil)
	readings, err = store.Last(ctx, HistoryLimit)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, len(readings), test.ShouldEqual, 1)
	test.That(t, readings[0].Reading, test.ShouldResemble, sensor.Reading{Temperature: 25.08, Humidity: 55, Pressure: 1006.53})

	stamped, err := time.ParseInLocation(timestampLayout, readings[0].Timestamp, time.Local)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, time.Since(stamped), test.ShouldBeLessThan, time.Minute)
	test.That(t, time.Since(stamped), test.ShouldBeGreaterThan, -time.Minute)
}

func TestSQLStoreLastIsNewestOldestFirst(t *testing.T) {
	ctx := context.Background()
	store := openTestStore(t)

	for i := 0; i < HistoryLimit+5; i++ {
		test.That(t, store.Insert(ctx, sensor.Reading{Temperature: float64(i), Humidity: 50, Pressure: 1000}), test.ShouldBeNil)
	}

	readings, err := store.Last(ctx, HistoryLimit)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, len(readings), test.ShouldEqual, HistoryLimit)
	for i, r := range readings {
		test.That(t, r.Temperature, test.ShouldEqual, float64(i+5))
	}
}

func TestSQLStoreReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "reopen.db")

	store, err := OpenSQLStore(ctx, path)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, store.Insert(ctx, sensor.Reading{Temperature: 1, Humidity: 2, Pressure: 3}), test.ShouldBeNil)
	test.That(t, store.Close(), test.ShouldBeNil)

	store, err = OpenSQLStore(ctx, path)
	test.That(t, err, test.ShouldBeNil)
	defer func() {
		test.That(t, store.Close(), test.ShouldBeNil)
	}()
	readings, err := store.Last(ctx, HistoryLimit)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, len(readings), test.ShouldEqual, 1)
}

func TestSQLStoreClosed(t *testing.T) {
	ctx := context.Background()
	store, err := OpenSQLStore(ctx, filepath.Join(t.TempDir(), "closed.db"))
	test.That(t, err, test.ShouldBeNil)
	test.That(t, store.Close(), test.ShouldBeNil)

	test.That(t, store.Insert(ctx, sensor.Reading{}), test.ShouldNotBeNil)
	_, err = store.Last(ctx, HistoryLimit)
	test.That(t, err, test.ShouldNotBeNil)
}

func TestOpenSQLStoreBadPath(t *testing.T) {
	_, err := OpenSQLStore(context.Background(), filepath.Join(t.TempDir(), "missing", "dir", "x.db"))
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, err.Error(), test.ShouldContainSubstring, "creating readings table")
}
