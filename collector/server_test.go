package collector

import (
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/pkg/errors"
	"go.viam.com/test"

	"github.com/grovesense/weatherlink/components/sensor"
	"github.com/grovesense/weatherlink/logging"
)

// failingStore fails every call.
type failingStore struct{}

func (failingStore) Insert(context.Context, sensor.Reading) error {
	return errors.New("disk full")
}

func (failingStore) Last(context.Context, int) ([]StoredReading, error) {
	return nil, errors.New("disk full")
}

func (failingStore) Close() error {
	return nil
}

func newTestServer(t *testing.T, store Store) (*Server, *httptest.Server) {
	t.Helper()
	srv := NewServer(store, logging.NewTestLogger(t))
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(func() {
		srv.Hub().Close()
		ts.Close()
	})
	return srv, ts
}

func post(t *testing.T, url, body string) (int, map[string]string) {
	t.Helper()
	resp, err := http.Post(url, "application/json", strings.NewReader(body))
	test.That(t, err, test.ShouldBeNil)
	defer resp.Body.Close()
	test.That(t, resp.Header.Get("Content-Type"), test.ShouldEqual, "application/json")

	var decoded map[string]string
	test.That(t, json.NewDecoder(resp.Body).Decode(&decoded), test.ShouldBeNil)
	return resp.StatusCode, decoded
}

func getSeries(t *testing.T, url string) Series {
	t.Helper()
	resp, err := http.Get(url + "/readings")
	test.That(t, err, test.ShouldBeNil)
	defer resp.Body.Close()
	test.That(t, resp.StatusCode, test.ShouldEqual, http.StatusOK)

	var series Series
	test.That(t, json.NewDecoder(resp.Body).Decode(&series), test.ShouldBeNil)
	return series
}

func TestPostReading(t *testing.T) {
	_, ts := newTestServer(t, openTestStore(t))

	status, body := post(t, ts.URL, `{"temperature": 25.08, "humidity": 55.00, "pressure": 1006.53}`)
	test.That(t, status, test.ShouldEqual, http.StatusOK)
	test.That(t, body, test.ShouldResemble, map[string]string{"status": "success"})

	// numeric strings are accepted too.
	status, _ = post(t, ts.URL, `{"temperature": "-3.5", "humidity": " 80 ", "pressure": 990}`)
	test.That(t, status, test.ShouldEqual, http.StatusOK)

	series := getSeries(t, ts.URL)
	test.That(t, series.Temperature, test.ShouldResemble, []float64{25.08, -3.5})
	test.That(t, series.Humidity, test.ShouldResemble, []float64{55, 80})
	test.That(t, series.Pressure, test.ShouldResemble, []float64{1006.53, 990})
	test.That(t, len(series.Timestamps), test.ShouldEqual, 2)
	for _, ts := range series.Timestamps {
		_, err := time.ParseInLocation(timestampLayout, ts, time.Local)
		test.That(t, err, test.ShouldBeNil)
	}
}

func TestPostReadingRejected(t *testing.T) {
	_, ts := newTestServer(t, openTestStore(t))

	for _, tc := range []struct {
		name     string
		body     string
		expected string
	}{
		{"missing pressure", `{"temperature": 25.08, "humidity": 55.00}`, errMissingFields},
		{"empty object", `{}`, errMissingFields},
		{"not a number", `{"temperature": "warm", "humidity": 55.00, "pressure": 1006.53}`, errInvalidFormat},
		{"null value", `{"temperature": null, "humidity": 55.00, "pressure": 1006.53}`, errInvalidFormat},
		{"boolean", `{"temperature": 25, "humidity": true, "pressure": 1006.53}`, errInvalidFormat},
		{"not finite", `{"temperature": "NaN", "humidity": 55.00, "pressure": 1006.53}`, errInvalidFormat},
		{"not json", `temperature=25`, errInvalidFormat},
		{"json array", `[25.08, 55.00, 1006.53]`, errInvalidFormat},
		{"json null", `null`, errInvalidFormat},
	} {
		t.Run(tc.name, func(t *testing.T) {
			status, body := post(t, ts.URL, tc.body)
			test.That(t, status, test.ShouldEqual, http.StatusBadRequest)
			test.That(t, body, test.ShouldResemble, map[string]string{"error": tc.expected})
		})
	}

	test.That(t, getSeries(t, ts.URL).Timestamps, test.ShouldBeEmpty)
}

func TestStorageFailures(t *testing.T) {
	_, ts := newTestServer(t, failingStore{})

	status, body := post(t, ts.URL, `{"temperature": 25.08, "humidity": 55.00, "pressure": 1006.53}`)
	test.That(t, status, test.ShouldEqual, http.StatusInternalServerError)
	test.That(t, body, test.ShouldResemble, map[string]string{"error": errStoreFailed})

	resp, err := http.Get(ts.URL + "/readings")
	test.That(t, err, test.ShouldBeNil)
	defer resp.Body.Close()
	test.That(t, resp.StatusCode, test.ShouldEqual, http.StatusInternalServerError)
	var decoded map[string]string
	test.That(t, json.NewDecoder(resp.Body).Decode(&decoded), test.ShouldBeNil)
	test.That(t, decoded, test.ShouldResemble, map[string]string{"error": errDatabase})
}

func TestEmptyHistory(t *testing.T) {
	_, ts := newTestServer(t, openTestStore(t))

	resp, err := http.Get(ts.URL + "/readings")
	test.That(t, err, test.ShouldBeNil)
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, strings.TrimSpace(string(raw)), test.ShouldEqual,
		`{"timestamps":[],"temperature":[],"humidity":[],"pressure":[]}`)
}

func TestDashboardAndCORS(t *testing.T) {
	_, ts := newTestServer(t, openTestStore(t))

	req, err := http.NewRequest(http.MethodGet, ts.URL+"/", nil)
	test.That(t, err, test.ShouldBeNil)
	req.Header.Set("Origin", "http://example.com")
	resp, err := http.DefaultClient.Do(req)
	test.That(t, err, test.ShouldBeNil)
	defer resp.Body.Close()
	test.That(t, resp.StatusCode, test.ShouldEqual, http.StatusOK)
	test.That(t, resp.Header.Get("Content-Type"), test.ShouldStartWith, "text/html")
	test.That(t, resp.Header.Get("Access-Control-Allow-Origin"), test.ShouldEqual, "*")
	page, err := io.ReadAll(resp.Body)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, string(page), test.ShouldContainSubstring, `fetch("/readings")`)
}

func TestLiveFeed(t *testing.T) {
	srv, ts := newTestServer(t, openTestStore(t))
	srv.now = func() time.Time { return time.Date(2024, 5, 1, 12, 30, 0, 0, time.Local) }

	conn, resp, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(ts.URL, "http")+"/ws", nil)
	test.That(t, err, test.ShouldBeNil)
	defer resp.Body.Close()
	defer conn.Close()

	for srv.Hub().Clients() == 0 {
		time.Sleep(time.Millisecond)
	}

	status, _ := post(t, ts.URL, `{"temperature": 25.08, "humidity": 55.00, "pressure": 1006.53}`)
	test.That(t, status, test.ShouldEqual, http.StatusOK)

	test.That(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)), test.ShouldBeNil)
	var msg liveReading
	test.That(t, conn.ReadJSON(&msg), test.ShouldBeNil)
	test.That(t, msg, test.ShouldResemble, liveReading{
		Timestamp:   "2024-05-01 12:30:00",
		Temperature: 25.08,
		Humidity:    55,
		Pressure:    1006.53,
	})

	// rejected readings are not broadcast.
	status, _ = post(t, ts.URL, `{"temperature": 25.08}`)
	test.That(t, status, test.ShouldEqual, http.StatusBadRequest)

	srv.Hub().Close()
	test.That(t, srv.Hub().Clients(), test.ShouldEqual, 0)
	_, _, err = conn.ReadMessage()
	test.That(t, err, test.ShouldNotBeNil)
}

func TestServeUntilCanceled(t *testing.T) {
	srv := NewServer(openTestStore(t), logging.NewTestLogger(t))
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	test.That(t, err, test.ShouldBeNil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- srv.Serve(ctx, listener)
	}()

	url := "http://" + listener.Addr().String()
	status, _ := post(t, url, `{"temperature": 20, "humidity": 40, "pressure": 1000}`)
	test.That(t, status, test.ShouldEqual, http.StatusOK)
	test.That(t, len(getSeries(t, url).Temperature), test.ShouldEqual, 1)
	http.DefaultClient.CloseIdleConnections()

	cancel()
	select {
	case err := <-done:
		test.That(t, err, test.ShouldBeNil)
	case <-time.After(10 * time.Second):
		t.Fatal("server did not stop")
	}
}

func TestRunBadAddress(t *testing.T) {
	srv := NewServer(openTestStore(t), logging.NewTestLogger(t))
	err := srv.Run(context.Background(), "not-an-address")
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, err.Error(), test.ShouldContainSubstring, "listening on not-an-address")
}
