package offline

import (
	"bytes"
	"net/http"
	"strings"
	"time"
)

// Source tells where a response came from.
type Source uint8

const (
	SourceNetwork Source = iota
	SourceCache
)

func (s Source) String() string {
	if s == SourceCache {
		return "cache"
	}
	return "network"
}

// Response is a fully buffered response.
type Response struct {
	Status int
	Header http.Header
	Body   []byte

	Source Source
}

// OK reports whether the status is in the 2xx range.
func (r *Response) OK() bool {
	return r != nil && r.Status >= 200 && r.Status <= 299
}

// Clone returns a deep copy of r.
func (r *Response) Clone() *Response {
	if r == nil {
		return nil
	}
	return &Response{
		Status: r.Status,
		Header: r.Header.Clone(),
		Body:   bytes.Clone(r.Body),
		Source: r.Source,
	}
}

// hop-by-hop headers are never stored.
var hopHeaders = []string{
	"Connection",
	"Keep-Alive",
	"Proxy-Authenticate",
	"Proxy-Authorization",
	"Proxy-Connection",
	"Te",
	"Trailer",
	"Transfer-Encoding",
	"Upgrade",
}

// Entry is a stored (request, response) pair.
type Entry struct {
	Method string      `json:"method"`
	URL    string      `json:"url"`
	Vary   http.Header `json:"vary,omitempty"`

	Status int         `json:"status"`
	Header http.Header `json:"header"`
	Body   []byte      `json:"body"`

	StoredAt time.Time `json:"stored_at"`
}

// NewEntry copies req and resp into an Entry. The request headers named by
// the response's Vary header are recorded for matching.
func NewEntry(req *Request, resp *Response) *Entry {
	header := resp.Header.Clone()
	if header == nil {
		header = make(http.Header)
	}
	for _, h := range hopHeaders {
		header.Del(h)
	}

	e := &Entry{
		Method:   http.MethodGet,
		URL:      req.CacheURL(),
		Status:   resp.Status,
		Header:   header,
		Body:     bytes.Clone(resp.Body),
		StoredAt: time.Now().UTC(),
	}

	for _, name := range varyNames(header) {
		if e.Vary == nil {
			e.Vary = make(http.Header)
		}
		if name == "*" {
			e.Vary.Set("*", "*")
			continue
		}
		if v, ok := req.Header[http.CanonicalHeaderKey(name)]; ok {
			e.Vary[http.CanonicalHeaderKey(name)] = append([]string(nil), v...)
		} else {
			e.Vary[http.CanonicalHeaderKey(name)] = nil
		}
	}

	return e
}

// Matches reports whether req is answered by e according to the Vary
// headers recorded at store time.
func (e *Entry) Matches(req *Request) bool {
	if !req.IsGet() || e.URL != req.CacheURL() {
		return false
	}
	for name, want := range e.Vary {
		if name == "*" {
			return false
		}
		got := req.Header.Values(name)
		if strings.Join(got, ",") != strings.Join(want, ",") {
			return false
		}
	}
	return true
}

// Response returns a copy of the stored response marked as served from cache.
func (e *Entry) Response() *Response {
	return &Response{
		Status: e.Status,
		Header: e.Header.Clone(),
		Body:   bytes.Clone(e.Body),
		Source: SourceCache,
	}
}

// Request rebuilds the stored request identity.
func (e *Entry) Request() (*Request, error) {
	return NewRequest(e.URL)
}

func varyNames(h http.Header) []string {
	var names []string
	for _, v := range h.Values("Vary") {
		for _, name := range strings.Split(v, ",") {
			name = strings.TrimSpace(name)
			if name != "" {
				names = append(names, name)
			}
		}
	}
	return names
}
