// Package connector pushes peers and routes into the payment connector that
// moves value. peerd never moves value itself; it only tells the connector
// whom to peer with and where to route.
package connector

import (
	"context"
	"sort"
	"sync"
)

// Router is the routing side of the payment connector.
type Router interface {
	// AddPeer declares a peer reachable at endpoint, authenticating with
	// authToken. An empty token means no authentication.
	AddPeer(ctx context.Context, id string, endpoint string, authToken string) error

	// AddRoute routes the address prefix through nextHop. Higher priorities
	// are preferred.
	AddRoute(ctx context.Context, prefix string, nextHop string, priority int) error
}

// Peer is a peer known to an InmemRouter.
type Peer struct {
	ID        string `json:"id"`
	Endpoint  string `json:"endpoint"`
	AuthToken string `json:"-"`
}

// Route is a route known to an InmemRouter.
type Route struct {
	Prefix   string `json:"prefix"`
	NextHop  string `json:"nextHop"`
	Priority int    `json:"priority"`
}

// InmemRouter records peers and routes in memory. It stands in for the
// connector when none is configured and in tests.
type InmemRouter struct {
	sync.RWMutex
	peers  map[string]Peer
	routes map[string]Route
}

// NewInmemRouter creates an empty InmemRouter.
func NewInmemRouter() *InmemRouter {
	return &InmemRouter{
		peers:  make(map[string]Peer),
		routes: make(map[string]Route),
	}
}

// AddPeer implements Router. Adding a known peer updates it.
func (r *InmemRouter) AddPeer(ctx context.Context, id string, endpoint string, authToken string) error {
	r.Lock()
	defer r.Unlock()
	r.peers[id] = Peer{ID: id, Endpoint: endpoint, AuthToken: authToken}
	return nil
}

// AddRoute implements Router. A prefix has a single route; adding it again
// replaces it.
func (r *InmemRouter) AddRoute(ctx context.Context, prefix string, nextHop string, priority int) error {
	r.Lock()
	defer r.Unlock()
	r.routes[prefix] = Route{Prefix: prefix, NextHop: nextHop, Priority: priority}
	return nil
}

// Peers returns the known peers ordered by id.
func (r *InmemRouter) Peers() []Peer {
	r.RLock()
	defer r.RUnlock()
	res := make([]Peer, 0, len(r.peers))
	for _, p := range r.peers {
		res = append(res, p)
	}
	sort.Slice(res, func(i, j int) bool { return res[i].ID < res[j].ID })
	return res
}

// Routes returns the known routes ordered by prefix.
func (r *InmemRouter) Routes() []Route {
	r.RLock()
	defer r.RUnlock()
	res := make([]Route, 0, len(r.routes))
	for _, rt := range r.routes {
		res = append(res, rt)
	}
	sort.Slice(res, func(i, j int) bool { return res[i].Prefix < res[j].Prefix })
	return res
}

// Peer returns the peer with the given id.
func (r *InmemRouter) Peer(id string) (Peer, bool) {
	r.RLock()
	defer r.RUnlock()
	p, ok := r.peers[id]
	return p, ok
}
