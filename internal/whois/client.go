// Package whois implements the registry lookup gateway over the WHOIS
// protocol.
package whois

import (
	"bufio"
	"context"
	"errors"
	"strings"
	"time"

	"github.com/likexian/whois"
	"github.com/sirupsen/logrus"

	"tg_domain_watch_bot/internal/logging"
	"tg_domain_watch_bot/internal/metrics"
	"tg_domain_watch_bot/internal/registry"
)

// DefaultTimeout bounds a single lookup when no timeout is configured.
const DefaultTimeout = 15 * time.Second

type whoisClient interface {
	Whois(domain string, servers ...string) (string, error)
}

// dialWhois is overridable in tests.
var dialWhois = func(timeout time.Duration) whoisClient {
	return whois.NewClient().SetTimeout(timeout)
}

// notFoundMarkers are lower-cased phrases registries put at the top of the
// answer for unregistered names.
var notFoundMarkers = []string{
	"no match",
	"not found",
	"no entries found",
	"no data found",
	"no object found",
	"domain not found",
	"status: free",
	"status: available",
}

// Client looks up domains with the WHOIS protocol.
type Client struct {
	client  whoisClient
	timeout time.Duration
	source  string
	metrics *metrics.Metrics
	logger  *logrus.Entry
}

// Option customizes the Client.
type Option func(*Client)

// WithTimeout bounds each lookup.
func WithTimeout(timeout time.Duration) Option {
	return func(c *Client) {
		if timeout > 0 {
			c.timeout = timeout
		}
	}
}

// WithMetrics records lookups under the given source label.
func WithMetrics(m *metrics.Metrics, source string) Option {
	return func(c *Client) {
		c.metrics = m
		if source != "" {
			c.source = source
		}
	}
}

// NewClient constructs a WHOIS gateway.
func NewClient(logger *logrus.Entry, opts ...Option) *Client {
	c := &Client{
		timeout: DefaultTimeout,
		source:  "whois",
		logger:  logging.Component(logger, "whois"),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}
	c.client = dialWhois(c.timeout)

	return c
}

// Lookup queries the registry and returns its key/value fields in order.
func (c *Client) Lookup(ctx context.Context, name string) (registry.Response, error) {
	raw, err := c.LookupRaw(ctx, name)
	if err != nil {
		return nil, err
	}

	resp := Parse(raw)
	if len(resp) == 0 || isNotFound(raw) {
		return nil, &registry.LookupError{Domain: name, Err: registry.ErrNotFound}
	}

	return resp, nil
}

// LookupRaw returns the unparsed registry answer.
func (c *Client) LookupRaw(ctx context.Context, name string) (string, error) {
	if c == nil || c.client == nil {
		return "", errors.New("whois client is not initialized")
	}
	if ctx == nil {
		return "", errors.New("context is required")
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return "", &registry.LookupError{Domain: name, Err: errors.New("domain name is required")}
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	type answer struct {
		text string
		err  error
	}
	done := make(chan answer, 1)
	started := time.Now()

	go func() {
		text, err := c.client.Whois(name)
		done <- answer{text: text, err: err}
	}()

	select {
	case <-ctx.Done():
		c.observe(name, metrics.ResultFailure, started, ctx.Err())
		return "", &registry.LookupError{Domain: name, Err: ctx.Err()}
	case res := <-done:
		if res.err != nil {
			c.observe(name, metrics.ResultFailure, started, res.err)
			return "", &registry.LookupError{Domain: name, Err: res.err}
		}
		result := metrics.ResultSuccess
		if isNotFound(res.text) {
			result = metrics.ResultNotFound
		}
		c.observe(name, result, started, nil)
		return res.text, nil
	}
}

func (c *Client) observe(name, result string, started time.Time, err error) {
	elapsed := time.Since(started)
	c.metrics.ObserveLookup(c.source, result, elapsed)

	entry := c.logger.WithFields(logging.Fields{
		"event":       "whois_lookup",
		"domain":      name,
		"result":      result,
		"duration_ms": elapsed.Milliseconds(),
	})
	if err != nil {
		entry.WithError(err).Warn("whois lookup failed")
		return
	}
	entry.Debug("whois lookup finished")
}

// notFoundScanLines is how many leading answer lines are checked for a
// not-found marker. Legal notices further down mention the same phrases.
const notFoundScanLines = 5

// Parse extracts "key: value" lines from a WHOIS answer. Comment lines, the
// ">>> Last update" trailer and lines without a value are skipped. Keys keep
// their original spelling and order.
func Parse(raw string) registry.Response {
	resp := registry.Response{}

	scanner := bufio.NewScanner(strings.NewReader(raw))
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "%") || strings.HasPrefix(line, "#") || strings.HasPrefix(line, ">>>") {
			continue
		}

		key, value, ok := strings.Cut(line, ":")
		if !ok {
			continue
		}
		key = strings.TrimSpace(key)
		value = strings.TrimSpace(value)
		if key == "" || value == "" || strings.HasPrefix(value, "//") {
			continue
		}

		resp = append(resp, registry.Field{Key: key, Value: value})
	}

	return resp
}

func isNotFound(raw string) bool {
	checked := 0
	for _, line := range strings.Split(raw, "\n") {
		line = strings.ToLower(strings.TrimSpace(line))
		if line == "" || strings.HasPrefix(line, "%") || strings.HasPrefix(line, "#") {
			continue
		}
		for _, marker := range notFoundMarkers {
			if strings.Contains(line, marker) {
				return true
			}
		}
		checked++
		if checked == notFoundScanLines {
			break
		}
	}
	return false
}
