// Package network fetches requests from the origin over HTTP.
package network

import (
	"context"
	"io"
	"net/http"
	"time"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/skyline93/offline/internal/offline"
)

// Client implements offline.Fetcher with net/http.
type Client struct {
	hc *http.Client
}

var _ offline.Fetcher = &Client{}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient sets the HTTP client used for requests.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.hc = hc
	}
}

// WithTimeout limits the duration of a single fetch including reading the
// body.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		hc := *c.hc
		hc.Timeout = d
		c.hc = &hc
	}
}

// New returns a Client.
func New(opts ...Option) *Client {
	c := &Client{hc: &http.Client{}}
	for _, opt := range opts {
		opt(c)
	}
	if c.hc == nil {
		c.hc = &http.Client{}
	}
	return c
}

// hop-by-hop and conditional headers; a fetch always wants a full body.
var dropHeaders = []string{
	"Connection",
	"Keep-Alive",
	"Proxy-Connection",
	"Te",
	"Transfer-Encoding",
	"Upgrade",
	"If-None-Match",
	"If-Modified-Since",
	"Range",
	"If-Range",
}

// Fetch issues req and buffers the whole response. Only failures to reach the
// origin are returned as errors; any HTTP status is a response.
func (c *Client) Fetch(ctx context.Context, req *offline.Request, opts offline.FetchOptions) (*offline.Response, error) {
	method := req.Method
	if method == "" {
		method = http.MethodGet
	}

	hreq, err := http.NewRequestWithContext(ctx, method, req.CacheURL(), nil)
	if err != nil {
		return nil, errors.Wrap(err, "NewRequest")
	}
	for k, v := range req.Header {
		hreq.Header[k] = append([]string(nil), v...)
	}
	for _, h := range dropHeaders {
		hreq.Header.Del(h)
	}
	if opts.NoStore {
		hreq.Header.Set("Cache-Control", "no-store")
		hreq.Header.Set("Pragma", "no-cache")
	}

	start := time.Now()
	resp, err := c.hc.Do(hreq)
	if err != nil {
		return nil, errors.Wrapf(err, "fetch %v", req)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errors.Wrapf(err, "read body of %v", req)
	}

	log.WithFields(log.Fields{
		"url":      req.CacheURL(),
		"status":   resp.StatusCode,
		"bytes":    len(body),
		"no_store": opts.NoStore,
		"took":     time.Since(start),
	}).Debug("fetched")

	header := resp.Header.Clone()
	header.Del("Content-Length")
	return &offline.Response{
		Status: resp.StatusCode,
		Header: header,
		Body:   body,
		Source: offline.SourceNetwork,
	}, nil
}
