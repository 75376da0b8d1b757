// Package forex fetches exchange rates from a Frankfurter compatible HTTP
// API (https://frankfurter.dev).
package forex

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/PaesslerAG/jsonpath"
	"github.com/jffcastro/assetflow"
	"github.com/jffcastro/assetflow/date"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"
)

// DefaultBaseURL is the public Frankfurter API.
const DefaultBaseURL = "https://api.frankfurter.dev/v1"

var _ assetflow.RateSource = (*Client)(nil)

// Client fetches rates of foreign currencies against a base currency,
// expressed in foreign units per base unit.
type Client struct {
	base    string
	baseURL string
	client  *http.Client
	limiter *rate.Limiter
	log     logrus.FieldLogger
}

// Option configures a Client.
type Option func(*Client)

// WithBaseURL sets the API root.
func WithBaseURL(u string) Option { return func(c *Client) { c.baseURL = u } }

// WithHTTPClient sets the HTTP client used for requests.
func WithHTTPClient(h *http.Client) Option { return func(c *Client) { c.client = h } }

// WithLimiter sets the request rate limiter.
func WithLimiter(l *rate.Limiter) Option { return func(c *Client) { c.limiter = l } }

// WithLogger sets the logger.
func WithLogger(l logrus.FieldLogger) Option { return func(c *Client) { c.log = l } }

// WithDiskCache caches successful responses in dir. Historical rates never
// expire, latest rates expire every day.
func WithDiskCache(dir string) Option {
	return func(c *Client) {
		base := c.client.Transport
		if base == nil {
			base = http.DefaultTransport
		}
		c.client = &http.Client{Transport: &diskCache{base: base, dir: dir, log: c.log}, Timeout: c.client.Timeout}
	}
}

// New returns a client for rates against the base currency.
func New(base string, opts ...Option) *Client {
	c := &Client{
		base:    base,
		baseURL: DefaultBaseURL,
		client:  &http.Client{Timeout: 10 * time.Second},
		limiter: rate.NewLimiter(rate.Every(100*time.Millisecond), 5),
		log:     logrus.StandardLogger(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// LiveRate returns the latest published rate of currency.
func (c *Client) LiveRate(ctx context.Context, currency string) (decimal.Decimal, error) {
	return c.fetch(ctx, "latest", currency)
}

// HistoricalRate returns the rate of currency published for day on. When
// no rate is published that day the API serves the previous one.
func (c *Client) HistoricalRate(ctx context.Context, currency string, on date.Date) (decimal.Decimal, error) {
	if on.IsZero() {
		return decimal.Zero, fmt.Errorf("historical %s rate: missing date", currency)
	}
	return c.fetch(ctx, on.String(), currency)
}

func (c *Client) fetch(ctx context.Context, endpoint, currency string) (decimal.Decimal, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return decimal.Zero, err
	}
	q := url.Values{"from": {c.base}, "to": {currency}}
	addr := fmt.Sprintf("%s/%s?%s", c.baseURL, endpoint, q.Encode())

	jobj, err := c.jget(ctx, addr)
	if err != nil {
		return decimal.Zero, fmt.Errorf("error retrieving %s/%s %s: %w", c.base, currency, endpoint, err)
	}
	path := "$.rates." + currency
	jval, err := jsonpath.Get(path, jobj)
	if err != nil {
		return decimal.Zero, fmt.Errorf("error parsing %s/%s: %q %w", c.base, currency, path, err)
	}
	n, ok := jval.(json.Number)
	if !ok {
		return decimal.Zero, fmt.Errorf("error parsing %s/%s: %q not a number: %v", c.base, currency, path, jval)
	}
	r, err := decimal.NewFromString(n.String())
	if err != nil {
		return decimal.Zero, fmt.Errorf("error parsing %s/%s: %w", c.base, currency, err)
	}
	if !r.IsPositive() {
		return decimal.Zero, fmt.Errorf("invalid %s/%s rate %s", c.base, currency, r)
	}
	return r, nil
}

// jget performs an HTTP GET request and decodes the JSON response, keeping
// numbers as json.Number.
func (c *Client) jget(ctx context.Context, addr string) (any, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, addr, nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	c.log.WithFields(logrus.Fields{"host": resp.Request.URL.Host, "path": resp.Request.URL.Path}).Debug(resp.Status)
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("cannot http GET %v%v: %v", resp.Request.URL.Host, resp.Request.URL.Path, resp.Status)
	}
	var buf bytes.Buffer
	if _, err := io.Copy(&buf, resp.Body); err != nil {
		return nil, err
	}
	dec := json.NewDecoder(&buf)
	dec.UseNumber()
	var jobj any
	if err := dec.Decode(&jobj); err != nil {
		return nil, err
	}
	return jobj, nil
}
