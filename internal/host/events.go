package host

import (
	"context"
	"sync"

	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/skyline93/offline/internal/offline"
)

// ExtendableEvent is an event whose lifetime listeners can extend.
type ExtendableEvent struct {
	ctx  context.Context
	g    *errgroup.Group
	gctx context.Context
}

func newExtendableEvent(ctx context.Context) *ExtendableEvent {
	g, gctx := errgroup.WithContext(ctx)
	return &ExtendableEvent{ctx: ctx, g: g, gctx: gctx}
}

// Context returns the context the event was dispatched with.
func (e *ExtendableEvent) Context() context.Context {
	return e.ctx
}

// WaitUntil starts fn and keeps the event pending until it returns. The
// event fails with the first error; the context passed to the other
// functions is cancelled at that point.
func (e *ExtendableEvent) WaitUntil(fn func(ctx context.Context) error) {
	e.g.Go(func() error {
		return fn(e.gctx)
	})
}

func (e *ExtendableEvent) wait() error {
	return e.g.Wait()
}

// Completion signals that an event and all work it waits for has settled.
type Completion struct {
	done chan struct{}
	err  error
}

// dispatch calls fire, which runs the listener synchronously, and returns a
// Completion for the work the listener registered.
func dispatch(e *ExtendableEvent, fire func()) *Completion {
	c := &Completion{done: make(chan struct{})}
	fire()
	go func() {
		defer close(c.done)
		c.err = e.wait()
	}()
	return c
}

// Done is closed once the event has settled.
func (c *Completion) Done() <-chan struct{} {
	return c.done
}

// Wait blocks until the event has settled or ctx is done.
func (c *Completion) Wait(ctx context.Context) error {
	select {
	case <-c.done:
		return c.err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// InstallEvent is dispatched once to a new version.
type InstallEvent struct {
	*ExtendableEvent
	version *Version
}

// SkipWaiting activates the version as soon as it is installed, even when
// clients are still controlled by the previous version.
func (e *InstallEvent) SkipWaiting() {
	e.version.skipWaiting.Store(true)
}

// ActivateEvent is dispatched once the version may take control.
type ActivateEvent struct {
	*ExtendableEvent
	clients *VersionClients
}

// Clients returns the client registry as seen by the activating version.
func (e *ActivateEvent) Clients() *VersionClients {
	return e.clients
}

// FetchEvent is dispatched for every request from a controlled client.
type FetchEvent struct {
	*ExtendableEvent
	Request  *offline.Request
	ClientID string

	mu      sync.Mutex
	respond func(ctx context.Context) (*offline.Response, error)
}

func newFetchEvent(ctx context.Context, clientID string, req *offline.Request) *FetchEvent {
	return &FetchEvent{
		ExtendableEvent: newExtendableEvent(ctx),
		Request:         req,
		ClientID:        clientID,
	}
}

// RespondWith takes over the request. Without a call the request goes to
// the network untouched. Only the first call counts.
func (e *FetchEvent) RespondWith(fn func(ctx context.Context) (*offline.Response, error)) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.respond != nil {
		log.WithField("request", e.Request.String()).Warn("RespondWith called twice, ignoring")
		return
	}
	e.respond = fn
}

func (e *FetchEvent) responder() func(ctx context.Context) (*offline.Response, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.respond
}

// settle waits for background work registered on a fetch event.
func (e *FetchEvent) settle() {
	if err := e.wait(); err != nil {
		log.WithError(err).WithField("request", e.Request.String()).Warn("fetch event work failed")
	}
}
