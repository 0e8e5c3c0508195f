package host

import (
	"fmt"
	"sync/atomic"

	"github.com/skyline93/offline/internal/offline"
)

// State is the lifecycle state of a worker version.
type State uint32

const (
	StateParsed State = iota
	StateInstalling
	StateInstalled
	StateActivating
	StateActivated
	StateRedundant
)

func (s State) String() string {
	s2 := "invalid"
	switch s {
	case StateParsed:
		s2 = "parsed"
	case StateInstalling:
		s2 = "installing"
	case StateInstalled:
		s2 = "installed"
	case StateActivating:
		s2 = "activating"
	case StateActivated:
		s2 = "activated"
	case StateRedundant:
		s2 = "redundant"
	}
	return s2
}

// Handler receives the events of one worker version. A listener that wants
// the host to wait for asynchronous work registers it with WaitUntil or
// RespondWith before returning.
type Handler interface {
	OnInstall(e *InstallEvent)
	OnActivate(e *ActivateEvent)
	OnFetch(e *FetchEvent)
}

// Version is one registered worker.
type Version struct {
	id      uint64
	name    string
	handler Handler

	state       atomic.Uint32
	skipWaiting atomic.Bool
}

// ID returns the container-unique id of v.
func (v *Version) ID() uint64 {
	return v.id
}

// Name is the name v was registered with, usually its cache tag.
func (v *Version) Name() string {
	return v.name
}

func (v *Version) State() State {
	return State(v.state.Load())
}

func (v *Version) setState(s State) {
	v.state.Store(uint32(s))
}

func (v *Version) String() string {
	return fmt.Sprintf("%s#%d(%v)", v.name, v.id, v.State())
}

// VersionInfo is a snapshot of a version for status reports.
type VersionInfo struct {
	ID    uint64 `json:"id"`
	Name  string `json:"name"`
	State string `json:"state"`
}

func (v *Version) info() *VersionInfo {
	if v == nil {
		return nil
	}
	return &VersionInfo{ID: v.id, Name: v.name, State: v.State().String()}
}

// dispatchFetch runs the fetch listener of v. A request without a
// RespondWith call is not handled.
func (v *Version) dispatchFetch(e *FetchEvent) (*offline.Response, bool, error) {
	v.handler.OnFetch(e)
	go e.settle()

	fn := e.responder()
	if fn == nil {
		return nil, false, nil
	}
	resp, err := fn(e.Context())
	return resp, true, err
}
