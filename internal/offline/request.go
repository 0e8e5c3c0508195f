// Package offline defines the requests, responses and cache storage
// interfaces shared by the worker, its storage backends and the proxy.
package offline

import (
	"net/http"
	"net/url"
	"strings"

	"github.com/pkg/errors"
)

// Mode is the request mode a browser reports through Sec-Fetch-Mode.
type Mode uint8

const (
	ModeNoCORS Mode = iota
	ModeNavigate
	ModeSameOrigin
	ModeCORS
	ModeWebSocket
)

func (m Mode) String() string {
	s := "no-cors"
	switch m {
	case ModeNavigate:
		s = "navigate"
	case ModeSameOrigin:
		s = "same-origin"
	case ModeCORS:
		s = "cors"
	case ModeWebSocket:
		s = "websocket"
	}
	return s
}

// ParseMode converts a Sec-Fetch-Mode header value. Unknown values map to
// ModeNoCORS.
func ParseMode(s string) Mode {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "navigate":
		return ModeNavigate
	case "same-origin":
		return ModeSameOrigin
	case "cors":
		return ModeCORS
	case "websocket":
		return ModeWebSocket
	}
	return ModeNoCORS
}

// Request is the identity of an intercepted request.
type Request struct {
	Method string
	URL    *url.URL
	Header http.Header

	Mode Mode
	// Destination is the Sec-Fetch-Dest value, e.g. "document" or "image".
	Destination string
}

// NewRequest returns a GET request for rawURL.
func NewRequest(rawURL string) (*Request, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, errors.Wrap(err, "url.Parse")
	}
	if !u.IsAbs() {
		return nil, errors.Errorf("request url %q is not absolute", rawURL)
	}

	return &Request{
		Method: http.MethodGet,
		URL:    u,
		Header: make(http.Header),
	}, nil
}

// FromHTTP builds a Request from an incoming HTTP request. The absolute URL u
// replaces r.URL, which is origin-form for requests received by a server.
//
// Browsers omit the Sec-Fetch headers on insecure non-local origins, and
// older ones never send them. A GET without them that accepts text/html is
// taken as a navigation to a document.
func FromHTTP(r *http.Request, u *url.URL) *Request {
	req := &Request{
		Method:      r.Method,
		URL:         u,
		Header:      r.Header.Clone(),
		Mode:        ParseMode(r.Header.Get("Sec-Fetch-Mode")),
		Destination: strings.ToLower(r.Header.Get("Sec-Fetch-Dest")),
	}

	if r.Header.Get("Sec-Fetch-Mode") == "" && req.IsGet() && acceptsHTML(r.Header) {
		req.Mode = ModeNavigate
		if req.Destination == "" {
			req.Destination = "document"
		}
	}
	return req
}

func acceptsHTML(h http.Header) bool {
	for _, v := range h.Values("Accept") {
		for _, part := range strings.Split(v, ",") {
			mt, _, _ := strings.Cut(strings.TrimSpace(part), ";")
			if strings.EqualFold(strings.TrimSpace(mt), "text/html") {
				return true
			}
		}
	}
	return false
}

// IsGet reports whether the request uses the GET method.
func (r *Request) IsGet() bool {
	return r.Method == http.MethodGet || r.Method == ""
}

// IsNavigation reports whether the browser loads the URL as a document.
func (r *Request) IsNavigation() bool {
	return r.Mode == ModeNavigate
}

// CacheURL returns the URL used for cache identity, without its fragment.
func (r *Request) CacheURL() string {
	u := *r.URL
	u.Fragment = ""
	u.RawFragment = ""
	return u.String()
}

// SameOrigin reports whether the request targets origin.
func (r *Request) SameOrigin(origin *url.URL) bool {
	return Origin(r.URL) == Origin(origin)
}

func (r *Request) String() string {
	method := r.Method
	if method == "" {
		method = http.MethodGet
	}
	return method + " " + r.CacheURL()
}

// Origin returns the serialised origin of u: scheme, host and an explicit
// port only when it differs from the scheme default.
func Origin(u *url.URL) string {
	scheme := strings.ToLower(u.Scheme)
	host := strings.ToLower(u.Hostname())
	port := u.Port()
	if (scheme == "http" && port == "80") || (scheme == "https" && port == "443") {
		port = ""
	}
	if port != "" {
		host = host + ":" + port
	}
	return scheme + "://" + host
}
