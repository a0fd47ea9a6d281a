package reporter

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/pkg/errors"

	"github.com/grovesense/weatherlink/components/sensor"
	"github.com/grovesense/weatherlink/logging"
)

// DefaultTimeout bounds a whole send: connect, request and response.
const DefaultTimeout = 3 * time.Second

// TransportError reports that a reading did not reach the collector. The station logs it and
// moves on to the next sample.
type TransportError struct {
	Endpoint string
	Err      error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("sending reading to %s: %v", e.Endpoint, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// Option configures a Reporter.
type Option func(*Reporter)

// WithTimeout replaces DefaultTimeout.
func WithTimeout(timeout time.Duration) Option {
	return func(r *Reporter) {
		r.timeout = timeout
	}
}

// WithTransport replaces the HTTP transport, e.g. to reach an httptest server.
func WithTransport(transport http.RoundTripper) Option {
	return func(r *Reporter) {
		r.transport = transport
	}
}

// Reporter posts one reading per call. It never retries and keeps nothing between calls.
type Reporter struct {
	endpoint  string
	timeout   time.Duration
	transport http.RoundTripper
	client    *http.Client
	logger    logging.Logger
}

// New returns a reporter posting to endpoint.
func New(endpoint string, logger logging.Logger, opts ...Option) (*Reporter, error) {
	u, err := url.Parse(endpoint)
	if err != nil {
		return nil, errors.Wrapf(err, "invalid endpoint %q", endpoint)
	}
	if u.Scheme != "http" || u.Host == "" {
		return nil, errors.Errorf("endpoint must be an absolute http URL, got %q", endpoint)
	}

	r := &Reporter{endpoint: endpoint, timeout: DefaultTimeout, logger: logger}
	for _, opt := range opts {
		opt(r)
	}
	r.client = &http.Client{Timeout: r.timeout, Transport: r.transport}
	return r, nil
}

// Endpoint returns the URL readings are posted to.
func (r *Reporter) Endpoint() string {
	return r.endpoint
}

// Send posts reading once. Any failure to deliver it, including the timeout, is a *TransportError.
// The collector's status code is only logged: a rejected reading is not retried either.
func (r *Reporter) Send(ctx context.Context, reading sensor.Reading) error {
	body, err := EncodeReading(reading)
	if err != nil {
		return err
	}
	r.logger.Infof("Sending JSON: %s", body)

	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.endpoint, bytes.NewReader(body))
	if err != nil {
		return &TransportError{Endpoint: r.endpoint, Err: err}
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := r.client.Do(req)
	if err != nil {
		return &TransportError{Endpoint: r.endpoint, Err: err}
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			r.logger.Debugw("closing response body", "error", err)
		}
	}()
	// Drain so the connection can be reused; the content is not needed.
	if _, err := io.Copy(io.Discard, resp.Body); err != nil {
		return &TransportError{Endpoint: r.endpoint, Err: errors.Wrap(err, "reading response")}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		r.logger.Warnw("collector did not accept reading", "status", resp.StatusCode)
		return nil
	}
	r.logger.Infow("Data sent successfully", "status", resp.StatusCode)
	return nil
}
