// Package route decides how an intercepted request is served.
package route

import (
	"net/url"
	"strings"

	"github.com/skyline93/offline/internal/offline"
)

// Strategy is the fetch policy chosen for a request.
type Strategy uint8

const (
	// Passthrough leaves the request to the default network fetch.
	Passthrough Strategy = iota
	NetworkFirst
	CacheFirst
)

func (s Strategy) String() string {
	switch s {
	case NetworkFirst:
		return "network-first"
	case CacheFirst:
		return "cache-first"
	}
	return "passthrough"
}

// Matcher recognises the paths of the app's HTML shell.
type Matcher struct {
	// Exact paths, e.g. "/".
	Exact []string
	// Suffixes, e.g. "/index.html" or "/sound-wave-lab/".
	Suffixes []string
}

// DefaultMatcher matches "/", any ".../index.html" and, when the scope is not
// the site root, the scope path itself.
func DefaultMatcher(scope *url.URL) Matcher {
	m := Matcher{
		Exact:    []string{"/"},
		Suffixes: []string{"/index.html"},
	}
	if scope != nil {
		if p := scopePath(scope); p != "/" {
			m.Suffixes = append(m.Suffixes, p)
		}
	}
	return m
}

// Match reports whether path belongs to the HTML shell.
func (m Matcher) Match(path string) bool {
	for _, e := range m.Exact {
		if path == e {
			return true
		}
	}
	for _, s := range m.Suffixes {
		if s != "" && strings.HasSuffix(path, s) {
			return true
		}
	}
	return false
}

// Router classifies requests for one origin.
type Router struct {
	Origin *url.URL
	HTML   Matcher
}

// Classify picks the strategy for req. Only same-origin GET requests are
// handled; documents and navigations go network-first, everything else
// cache-first.
func (r Router) Classify(req *offline.Request) Strategy {
	if !req.IsGet() {
		return Passthrough
	}
	if r.Origin == nil || !req.SameOrigin(r.Origin) {
		return Passthrough
	}

	if req.IsNavigation() || r.HTML.Match(req.URL.Path) || req.Destination == "document" {
		return NetworkFirst
	}
	return CacheFirst
}

func scopePath(u *url.URL) string {
	p := u.Path
	if p == "" {
		return "/"
	}
	if i := strings.LastIndex(p, "/"); i >= 0 {
		p = p[:i+1]
	}
	return p
}
