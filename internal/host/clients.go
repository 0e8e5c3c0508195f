package host

import (
	"context"
	"sort"
	"sync"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

// ErrInvalidState is returned when a version uses an API its state does not
// allow.
var ErrInvalidState = errors.New("invalid state")

// Clients tracks open pages and the version controlling each. A nil
// controller means the page is not controlled.
type Clients struct {
	mu sync.Mutex
	m  map[string]*Version
}

func newClients() *Clients {
	return &Clients{m: make(map[string]*Version)}
}

func (cs *Clients) set(id string, v *Version) {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	cs.m[id] = v
}

// Controller returns the version controlling client id, or nil.
func (cs *Clients) Controller(id string) *Version {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	return cs.m[id]
}

func (cs *Clients) remove(id string) bool {
	cs.mu.Lock()
	defer cs.mu.Unlock()

	_, ok := cs.m[id]
	delete(cs.m, id)
	return ok
}

// count returns the number of clients controlled by v.
func (cs *Clients) count(v *Version) int {
	if v == nil {
		return 0
	}

	cs.mu.Lock()
	defer cs.mu.Unlock()

	n := 0
	for _, c := range cs.m {
		if c == v {
			n++
		}
	}
	return n
}

// replace moves every client controlled by from to to.
func (cs *Clients) replace(from, to *Version) {
	if from == nil {
		return
	}

	cs.mu.Lock()
	defer cs.mu.Unlock()

	for id, c := range cs.m {
		if c == from {
			cs.m[id] = to
		}
	}
}

// ClientInfo describes one client.
type ClientInfo struct {
	ID         string `json:"id"`
	Controller string `json:"controller,omitempty"`
}

// MatchAll lists all known clients sorted by id.
func (cs *Clients) MatchAll() []ClientInfo {
	cs.mu.Lock()
	defer cs.mu.Unlock()

	list := make([]ClientInfo, 0, len(cs.m))
	for id, v := range cs.m {
		ci := ClientInfo{ID: id}
		if v != nil {
			ci.Controller = v.String()
		}
		list = append(list, ci)
	}
	sort.Slice(list, func(i, j int) bool { return list[i].ID < list[j].ID })
	return list
}

// VersionClients is the client registry from the point of view of one version.
type VersionClients struct {
	clients *Clients
	version *Version
}

// MatchAll lists all known clients.
func (vc *VersionClients) MatchAll() []ClientInfo {
	return vc.clients.MatchAll()
}

// Claim makes the version the controller of every open client, including
// clients that loaded before any version was active.
func (vc *VersionClients) Claim(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s := vc.version.State(); s != StateActivating && s != StateActivated {
		return errors.Wrapf(ErrInvalidState, "claim from %v", vc.version)
	}

	vc.clients.mu.Lock()
	n := len(vc.clients.m)
	for id := range vc.clients.m {
		vc.clients.m[id] = vc.version
	}
	vc.clients.mu.Unlock()

	log.WithField("version", vc.version.String()).Infof("claimed %d clients", n)
	return nil
}
