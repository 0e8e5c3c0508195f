// Package host runs worker versions: it dispatches lifecycle and fetch
// events, decides when a new version takes over, and tracks which version
// controls each client.
package host

import (
	"context"
	"fmt"
	"sync"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/skyline93/offline/internal/offline"
)

var (
	// ErrInstallFailed marks errors from a failed install event.
	ErrInstallFailed = errors.New("install failed")
	// ErrActivateFailed marks errors from a failed activate event.
	ErrActivateFailed = errors.New("activate failed")
)

// LifecycleError wraps the error of a failed lifecycle event.
type LifecycleError struct {
	Phase   error
	Version string
	Err     error
}

func (e *LifecycleError) Error() string {
	return fmt.Sprintf("%v: %v: %v", e.Version, e.Phase, e.Err)
}

func (e *LifecycleError) Unwrap() error {
	return e.Err
}

// Is matches the phase sentinel.
func (e *LifecycleError) Is(target error) bool {
	return target == e.Phase
}

// Container holds the versions of one worker registration.
type Container struct {
	// reg serialises install and activation
	reg sync.Mutex

	mu         sync.Mutex
	nextID     uint64
	installing *Version
	waiting    *Version
	active     *Version

	clients *Clients
}

// NewContainer returns an empty container.
func NewContainer() *Container {
	return &Container{clients: newClients()}
}

// Clients returns the client registry.
func (c *Container) Clients() *Clients {
	return c.clients
}

// Active returns the active version, or nil.
func (c *Container) Active() *Version {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.active
}

// Waiting returns the installed version waiting for activation, or nil.
func (c *Container) Waiting() *Version {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.waiting
}

// Status is a snapshot of the container.
type Status struct {
	Installing *VersionInfo `json:"installing,omitempty"`
	Waiting    *VersionInfo `json:"waiting,omitempty"`
	Active     *VersionInfo `json:"active,omitempty"`
	Clients    []ClientInfo `json:"clients"`
}

func (c *Container) Status() Status {
	c.mu.Lock()
	s := Status{
		Installing: c.installing.info(),
		Waiting:    c.waiting.info(),
		Active:     c.active.info(),
	}
	c.mu.Unlock()

	s.Clients = c.clients.MatchAll()
	return s
}

// Register installs h as a new version. When the install fails the version
// becomes redundant and the active version keeps serving. Otherwise the
// version is activated right away if it called SkipWaiting, if nothing is
// active, or if no client is controlled by the active version; else it
// waits until Release frees the last such client.
func (c *Container) Register(ctx context.Context, name string, h Handler) (*Version, error) {
	c.reg.Lock()
	defer c.reg.Unlock()

	c.mu.Lock()
	c.nextID++
	v := &Version{id: c.nextID, name: name, handler: h}
	v.setState(StateInstalling)
	c.installing = v
	c.mu.Unlock()

	l := log.WithField("version", v.String())
	l.Info("installing")

	ev := &InstallEvent{ExtendableEvent: newExtendableEvent(ctx), version: v}
	err := dispatch(ev.ExtendableEvent, func() { h.OnInstall(ev) }).Wait(ctx)

	c.mu.Lock()
	c.installing = nil
	if err != nil {
		c.mu.Unlock()
		v.setState(StateRedundant)
		l.WithError(err).Error("install failed")
		return v, &LifecycleError{Phase: ErrInstallFailed, Version: v.String(), Err: err}
	}

	v.setState(StateInstalled)
	if old := c.waiting; old != nil {
		old.setState(StateRedundant)
	}
	c.waiting = v
	active := c.active
	c.mu.Unlock()

	if !v.skipWaiting.Load() && active != nil && c.clients.count(active) > 0 {
		l.Info("installed, waiting for clients of the active version to close")
		return v, nil
	}

	return v, c.activate(ctx, v)
}

// activate must be called with c.reg held.
func (c *Container) activate(ctx context.Context, v *Version) error {
	c.mu.Lock()
	prev := c.active
	c.active = v
	if c.waiting == v {
		c.waiting = nil
	}
	v.setState(StateActivating)
	c.mu.Unlock()

	// pages of the previous version follow the registration to v
	c.clients.replace(prev, v)

	l := log.WithField("version", v.String())
	l.Info("activating")

	ev := &ActivateEvent{
		ExtendableEvent: newExtendableEvent(ctx),
		clients:         &VersionClients{clients: c.clients, version: v},
	}
	err := dispatch(ev.ExtendableEvent, func() { v.handler.OnActivate(ev) }).Wait(ctx)
	if err != nil {
		c.mu.Lock()
		c.active = prev
		c.mu.Unlock()
		c.clients.replace(v, prev)
		v.setState(StateRedundant)

		l.WithError(err).Error("activate failed")
		return &LifecycleError{Phase: ErrActivateFailed, Version: v.String(), Err: err}
	}

	if prev != nil {
		prev.setState(StateRedundant)
	}
	v.setState(StateActivated)
	l.Info("activated")
	return nil
}

// Release forgets a closed client. If it was the last client of the active
// version, a waiting version is activated.
func (c *Container) Release(ctx context.Context, clientID string) error {
	c.reg.Lock()
	defer c.reg.Unlock()

	if !c.clients.remove(clientID) {
		return nil
	}

	c.mu.Lock()
	waiting, active := c.waiting, c.active
	c.mu.Unlock()

	if waiting == nil || c.clients.count(active) > 0 {
		return nil
	}
	return c.activate(ctx, waiting)
}

// Fetch dispatches req to the version controlling the client. Navigations
// load a new document, which is controlled by the active version. The
// request is not handled when no version controls the client or the
// version does not respond.
func (c *Container) Fetch(ctx context.Context, clientID string, req *offline.Request) (*offline.Response, bool, error) {
	var v *Version
	if req.IsNavigation() {
		v = c.Active()
		if clientID != "" {
			c.clients.set(clientID, v)
		}
	} else if clientID != "" {
		v = c.clients.Controller(clientID)
	}

	if v == nil {
		return nil, false, nil
	}

	return v.dispatchFetch(newFetchEvent(ctx, clientID, req))
}
