package host

import (
	"context"
	"net/http"
	"sync/atomic"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/skyline93/offline/internal/offline"
)

type fakeHandler struct {
	name        string
	skipWaiting bool
	claim       bool
	installErr  error
	activateErr error
	respond     bool

	installs  atomic.Int32
	activates atomic.Int32
	fetches   atomic.Int32
}

func (h *fakeHandler) OnInstall(e *InstallEvent) {
	h.installs.Add(1)
	if h.skipWaiting {
		e.SkipWaiting()
	}
	e.WaitUntil(func(ctx context.Context) error {
		return h.installErr
	})
}

func (h *fakeHandler) OnActivate(e *ActivateEvent) {
	h.activates.Add(1)
	e.WaitUntil(func(ctx context.Context) error {
		if h.activateErr != nil {
			return h.activateErr
		}
		if h.claim {
			return e.Clients().Claim(ctx)
		}
		return nil
	})
}

func (h *fakeHandler) OnFetch(e *FetchEvent) {
	h.fetches.Add(1)
	if !h.respond {
		return
	}
	e.RespondWith(func(ctx context.Context) (*offline.Response, error) {
		return &offline.Response{Status: http.StatusOK, Body: []byte(h.name)}, nil
	})
}

func navigation(t *testing.T) *offline.Request {
	t.Helper()
	req, err := offline.NewRequest("http://example.com/")
	require.NoError(t, err)
	req.Mode = offline.ModeNavigate
	return req
}

func subresource(t *testing.T) *offline.Request {
	t.Helper()
	req, err := offline.NewRequest("http://example.com/manifest.json")
	require.NoError(t, err)
	return req
}

func TestRegisterFirstVersionActivates(t *testing.T) {
	ctx := context.Background()
	c := NewContainer()
	h := &fakeHandler{name: "v1", respond: true}

	v, err := c.Register(ctx, "v1", h)
	require.NoError(t, err)
	assert.Equal(t, StateActivated, v.State())
	assert.Equal(t, v, c.Active())
	assert.Nil(t, c.Waiting())
	assert.EqualValues(t, 1, h.installs.Load())
	assert.EqualValues(t, 1, h.activates.Load())
}

func TestInstallFailureKeepsPreviousVersion(t *testing.T) {
	ctx := context.Background()
	c := NewContainer()

	v1, err := c.Register(ctx, "v1", &fakeHandler{name: "v1"})
	require.NoError(t, err)

	h2 := &fakeHandler{name: "v2", skipWaiting: true, installErr: errors.New("asset fetch failed")}
	v2, err := c.Register(ctx, "v2", h2)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrInstallFailed))
	assert.False(t, errors.Is(err, ErrActivateFailed))
	assert.Equal(t, StateRedundant, v2.State())
	assert.EqualValues(t, 0, h2.activates.Load())

	assert.Equal(t, v1, c.Active())
	assert.Equal(t, StateActivated, v1.State())
}

func TestActivateFailureKeepsPreviousVersion(t *testing.T) {
	ctx := context.Background()
	c := NewContainer()

	v1, err := c.Register(ctx, "v1", &fakeHandler{name: "v1"})
	require.NoError(t, err)

	v2, err := c.Register(ctx, "v2", &fakeHandler{name: "v2", skipWaiting: true, activateErr: errors.New("delete failed")})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrActivateFailed))
	assert.Equal(t, StateRedundant, v2.State())
	assert.Equal(t, v1, c.Active())
}

func TestWaitingWithoutSkipWaiting(t *testing.T) {
	ctx := context.Background()
	c := NewContainer()

	v1, err := c.Register(ctx, "v1", &fakeHandler{name: "v1", respond: true})
	require.NoError(t, err)

	_, handled, err := c.Fetch(ctx, "tab", navigation(t))
	require.NoError(t, err)
	require.True(t, handled)

	v2, err := c.Register(ctx, "v2", &fakeHandler{name: "v2", respond: true})
	require.NoError(t, err)
	assert.Equal(t, StateInstalled, v2.State())
	assert.Equal(t, v2, c.Waiting())
	assert.Equal(t, v1, c.Active())

	require.NoError(t, c.Release(ctx, "tab"))
	assert.Equal(t, v2, c.Active())
	assert.Equal(t, StateActivated, v2.State())
	assert.Equal(t, StateRedundant, v1.State())
}

func TestSkipWaitingTakesOverClients(t *testing.T) {
	ctx := context.Background()
	c := NewContainer()

	_, err := c.Register(ctx, "v1", &fakeHandler{name: "v1", respond: true})
	require.NoError(t, err)

	_, _, err = c.Fetch(ctx, "tab", navigation(t))
	require.NoError(t, err)

	v2, err := c.Register(ctx, "v2", &fakeHandler{name: "v2", respond: true, skipWaiting: true})
	require.NoError(t, err)
	assert.Equal(t, v2, c.Active())
	assert.Equal(t, v2, c.Clients().Controller("tab"))

	resp, handled, err := c.Fetch(ctx, "tab", subresource(t))
	require.NoError(t, err)
	require.True(t, handled)
	assert.Equal(t, "v2", string(resp.Body))
}

func TestClaimControlsUncontrolledClients(t *testing.T) {
	ctx := context.Background()
	c := NewContainer()

	// page loaded before any worker was active
	_, handled, err := c.Fetch(ctx, "tab", navigation(t))
	require.NoError(t, err)
	assert.False(t, handled)
	assert.Nil(t, c.Clients().Controller("tab"))

	_, handled, err = c.Fetch(ctx, "tab", subresource(t))
	require.NoError(t, err)
	assert.False(t, handled)

	v1, err := c.Register(ctx, "v1", &fakeHandler{name: "v1", respond: true, claim: true})
	require.NoError(t, err)
	assert.Equal(t, v1, c.Clients().Controller("tab"))

	resp, handled, err := c.Fetch(ctx, "tab", subresource(t))
	require.NoError(t, err)
	require.True(t, handled)
	assert.Equal(t, "v1", string(resp.Body))
}

func TestWithoutClaimClientStaysUncontrolled(t *testing.T) {
	ctx := context.Background()
	c := NewContainer()

	_, _, err := c.Fetch(ctx, "tab", navigation(t))
	require.NoError(t, err)

	h := &fakeHandler{name: "v1", respond: true}
	_, err = c.Register(ctx, "v1", h)
	require.NoError(t, err)

	_, handled, err := c.Fetch(ctx, "tab", subresource(t))
	require.NoError(t, err)
	assert.False(t, handled)
	assert.EqualValues(t, 0, h.fetches.Load())
}

func TestFetchWithoutRespondIsPassthrough(t *testing.T) {
	ctx := context.Background()
	c := NewContainer()

	h := &fakeHandler{name: "v1"}
	_, err := c.Register(ctx, "v1", h)
	require.NoError(t, err)

	_, handled, err := c.Fetch(ctx, "tab", navigation(t))
	require.NoError(t, err)
	assert.False(t, handled)
	assert.EqualValues(t, 1, h.fetches.Load())
}

func TestClaimRequiresActivation(t *testing.T) {
	v := &Version{name: "v1"}
	v.setState(StateInstalled)
	vc := &VersionClients{clients: newClients(), version: v}

	err := vc.Claim(context.Background())
	assert.True(t, errors.Is(err, ErrInvalidState))
}

func TestStatus(t *testing.T) {
	ctx := context.Background()
	c := NewContainer()

	_, err := c.Register(ctx, "v1", &fakeHandler{name: "v1"})
	require.NoError(t, err)
	_, _, err = c.Fetch(ctx, "tab", navigation(t))
	require.NoError(t, err)

	s := c.Status()
	require.NotNil(t, s.Active)
	assert.Equal(t, "v1", s.Active.Name)
	assert.Equal(t, "activated", s.Active.State)
	assert.Nil(t, s.Waiting)
	require.Len(t, s.Clients, 1)
	assert.Equal(t, "tab", s.Clients[0].ID)
}

func TestWaitUntilFirstErrorWins(t *testing.T) {
	e := newExtendableEvent(context.Background())
	boom := errors.New("boom")
	e.WaitUntil(func(ctx context.Context) error { return nil })
	e.WaitUntil(func(ctx context.Context) error { return boom })

	c := dispatch(e, func() {})
	err := c.Wait(context.Background())
	assert.Equal(t, boom, err)
	<-c.Done()
}
