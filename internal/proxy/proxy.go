// Package proxy exposes a worker container as an HTTP proxy in front of the
// origin that serves the app.
package proxy

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httputil"
	"net/url"
	"strconv"
	"strings"

	log "github.com/sirupsen/logrus"

	"github.com/skyline93/offline/internal/host"
	"github.com/skyline93/offline/internal/offline"
)

const (
	// ClientCookie carries the client id of a browser.
	ClientCookie = "offline-client"

	// StatusPath reports the container state as JSON.
	StatusPath = "/.offline/status"
	// ReleasePath forgets the calling client, e.g. from a pagehide beacon.
	ReleasePath = "/.offline/release"

	// SourceHeader tells whether a handled response came from the network
	// or the cache.
	SourceHeader = "X-Offline-Source"
)

// Handler turns HTTP requests into fetch events.
type Handler struct {
	origin      *url.URL
	container   *host.Container
	caches      offline.Storage
	passthrough http.Handler
}

// Option configures a Handler.
type Option func(*Handler)

// WithTransport sets the transport used for requests the worker leaves to
// the network.
func WithTransport(rt http.RoundTripper) Option {
	return func(h *Handler) {
		if rp, ok := h.passthrough.(*httputil.ReverseProxy); ok {
			rp.Transport = rt
		}
	}
}

// New returns a Handler forwarding origin-form requests to origin.
func New(origin *url.URL, c *host.Container, caches offline.Storage, opts ...Option) *Handler {
	h := &Handler{
		origin:    origin,
		container: c,
		caches:    caches,
		passthrough: &httputil.ReverseProxy{
			Rewrite: rewrite,
			ErrorHandler: func(w http.ResponseWriter, r *http.Request, err error) {
				log.WithError(err).WithField("url", r.URL.String()).Warn("passthrough failed")
				w.WriteHeader(http.StatusBadGateway)
			},
		},
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

type targetKey struct{}

func rewrite(pr *httputil.ProxyRequest) {
	target := pr.In.Context().Value(targetKey{}).(*url.URL)
	pr.Out.URL = target
	pr.Out.Host = target.Host
	stripClientCookie(pr.Out.Header)
	pr.SetXForwarded()
}

// target returns the absolute URL of r. Forward-proxy requests already carry
// one and are only accepted for the origin; origin-form requests are mapped
// onto the origin.
func (h *Handler) target(r *http.Request) (*url.URL, bool) {
	if r.URL.IsAbs() {
		u := *r.URL
		return &u, offline.Origin(&u) == offline.Origin(h.origin)
	}
	return &url.URL{
		Scheme:   h.origin.Scheme,
		Host:     h.origin.Host,
		Path:     r.URL.Path,
		RawPath:  r.URL.RawPath,
		RawQuery: r.URL.RawQuery,
	}, true
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if !r.URL.IsAbs() {
		switch r.URL.Path {
		case StatusPath:
			h.serveStatus(w, r)
			return
		case ReleasePath:
			h.serveRelease(w, r)
			return
		}
	}

	target, ok := h.target(r)
	if !ok {
		log.WithField("url", target.String()).Warn("refusing request for foreign host")
		http.Error(w, "offline: only "+offline.Origin(h.origin)+" is proxied", http.StatusForbidden)
		return
	}
	req := offline.FromHTTP(r, target)
	stripClientCookie(req.Header)

	clientID := clientFromCookie(r)
	if clientID == "" && req.IsNavigation() {
		clientID = newClientID()
		http.SetCookie(w, &http.Cookie{
			Name:     ClientCookie,
			Value:    clientID,
			Path:     "/",
			HttpOnly: true,
			SameSite: http.SameSiteLaxMode,
		})
	}

	l := log.WithFields(log.Fields{"client": clientID, "request": req.String()})

	resp, handled, err := h.container.Fetch(r.Context(), clientID, req)
	if !handled {
		l.Debug("passthrough")
		r = r.WithContext(context.WithValue(r.Context(), targetKey{}, target))
		h.passthrough.ServeHTTP(w, r)
		return
	}
	if err != nil {
		l.WithError(err).Warn("fetch failed")
		http.Error(w, "offline: "+err.Error(), http.StatusBadGateway)
		return
	}

	writeResponse(w, resp)
}

func writeResponse(w http.ResponseWriter, resp *offline.Response) {
	for k, v := range resp.Header {
		w.Header()[k] = append([]string(nil), v...)
	}
	w.Header().Set(SourceHeader, resp.Source.String())
	w.Header().Set("Content-Length", strconv.Itoa(len(resp.Body)))
	w.WriteHeader(resp.Status)
	if _, err := w.Write(resp.Body); err != nil {
		log.WithError(err).Debug("writing response body failed")
	}
}

type status struct {
	host.Status
	Caches []string `json:"caches"`
}

func (h *Handler) serveStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", http.MethodGet)
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	s := status{Status: h.container.Status()}
	tags, err := h.caches.Keys(r.Context())
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	s.Caches = tags
	if s.Caches == nil {
		s.Caches = []string{}
	}

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	_ = enc.Encode(s)
}

func (h *Handler) serveRelease(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	_, _ = io.Copy(io.Discard, r.Body)

	if id := clientFromCookie(r); id != "" {
		if err := h.container.Release(r.Context(), id); err != nil {
			log.WithError(err).Error("activating waiting version failed")
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
	}
	w.WriteHeader(http.StatusNoContent)
}

func clientFromCookie(r *http.Request) string {
	c, err := r.Cookie(ClientCookie)
	if err != nil {
		return ""
	}
	return c.Value
}

// stripClientCookie removes our cookie so the origin never sees it.
func stripClientCookie(header http.Header) {
	cookies := header.Values("Cookie")
	if len(cookies) == 0 {
		return
	}

	var keep []string
	for _, line := range cookies {
		for _, part := range strings.Split(line, ";") {
			part = strings.TrimSpace(part)
			if part == "" || strings.HasPrefix(part, ClientCookie+"=") {
				continue
			}
			keep = append(keep, part)
		}
	}

	header.Del("Cookie")
	if len(keep) > 0 {
		header.Set("Cookie", strings.Join(keep, "; "))
	}
}

func newClientID() string {
	var id [16]byte
	if _, err := io.ReadFull(rand.Reader, id[:]); err != nil {
		panic(err)
	}
	return hex.EncodeToString(id[:])
}
