package relay

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/nostrpay/peerd/src/record"
)

// ErrRelayDown is returned by in-memory relays switched off with SetDown.
var ErrRelayDown = errors.New("relay down")

// InmemRelay is a relay living in process memory. It keeps every record it is
// given, including superseded replaceable ones, and supports fault injection.
type InmemRelay struct {
	sync.RWMutex
	url         string
	records     []*record.Record
	subs        map[int]*inmemSub
	nextSub     int
	down        bool
	failPublish bool
	failQuery   bool
	delay       time.Duration
	published   int
}

type inmemSub struct {
	filters record.Filters
	handler Handler
}

// NewInmemRelay creates an empty relay identified by url.
func NewInmemRelay(url string) *InmemRelay {
	return &InmemRelay{
		url:  url,
		subs: make(map[int]*inmemSub),
	}
}

// SetDown makes every operation fail with ErrRelayDown.
func (r *InmemRelay) SetDown(down bool) {
	r.Lock()
	defer r.Unlock()
	r.down = down
}

// SetFailPublish makes Publish fail while keeping queries working.
func (r *InmemRelay) SetFailPublish(fail bool) {
	r.Lock()
	defer r.Unlock()
	r.failPublish = fail
}

// SetFailQuery makes Query fail while keeping publishing working.
func (r *InmemRelay) SetFailQuery(fail bool) {
	r.Lock()
	defer r.Unlock()
	r.failQuery = fail
}

// SetDelay delays the acknowledgement of every publish.
func (r *InmemRelay) SetDelay(d time.Duration) {
	r.Lock()
	defer r.Unlock()
	r.delay = d
}

// Store adds records without notifying subscribers.
func (r *InmemRelay) Store(records ...*record.Record) {
	r.Lock()
	defer r.Unlock()
	r.records = append(r.records, records...)
}

// Records returns a copy of everything the relay holds.
func (r *InmemRelay) Records() []*record.Record {
	r.RLock()
	defer r.RUnlock()
	res := make([]*record.Record, len(r.records))
	copy(res, r.records)
	return res
}

// Published returns the number of records accepted through Publish.
func (r *InmemRelay) Published() int {
	r.RLock()
	defer r.RUnlock()
	return r.published
}

// Subscribers returns the number of open subscriptions.
func (r *InmemRelay) Subscribers() int {
	r.RLock()
	defer r.RUnlock()
	return len(r.subs)
}

// Inject pushes rec to the matching subscribers and stores it, bypassing the
// fault switches.
func (r *InmemRelay) Inject(rec *record.Record) {
	r.Lock()
	r.records = append(r.records, rec)
	handlers := r.matching(rec)
	r.Unlock()

	for _, h := range handlers {
		h(rec)
	}
}

func (r *InmemRelay) matching(rec *record.Record) []Handler {
	var res []Handler
	for _, s := range r.subs {
		if s.filters.Match(rec) {
			res = append(res, s.handler)
		}
	}
	return res
}

func (r *InmemRelay) URL() string {
	return r.url
}

func (r *InmemRelay) Query(ctx context.Context, filter record.Filter) ([]*record.Record, error) {
	r.RLock()
	defer r.RUnlock()

	if r.down || r.failQuery {
		return nil, ErrRelayDown
	}

	var res []*record.Record
	for _, rec := range r.records {
		if filter.Matches(rec) {
			res = append(res, rec)
		}
	}
	if filter.Limit > 0 && len(res) > filter.Limit {
		res = res[len(res)-filter.Limit:]
	}
	return res, nil
}

func (r *InmemRelay) Publish(ctx context.Context, rec *record.Record) error {
	r.RLock()
	delay := r.delay
	r.RUnlock()

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	r.Lock()
	if r.down || r.failPublish {
		r.Unlock()
		return ErrRelayDown
	}
	r.records = append(r.records, rec)
	r.published++
	handlers := r.matching(rec)
	r.Unlock()

	for _, h := range handlers {
		go h(rec)
	}
	return nil
}

func (r *InmemRelay) Subscribe(ctx context.Context, filters record.Filters, h Handler) (Subscription, error) {
	r.Lock()
	defer r.Unlock()

	if r.down {
		return nil, ErrRelayDown
	}

	id := r.nextSub
	r.nextSub++
	r.subs[id] = &inmemSub{filters: filters, handler: h}

	return newCancelFunc(func() {
		r.Lock()
		defer r.Unlock()
		delete(r.subs, id)
	}), nil
}

// Close does nothing; the relay outlives its connections.
func (r *InmemRelay) Close() error {
	return nil
}

// InmemNetwork is a set of in-memory relays addressable by URL.
type InmemNetwork struct {
	sync.Mutex
	relays map[string]*InmemRelay
}

// NewInmemNetwork creates an empty network.
func NewInmemNetwork() *InmemNetwork {
	return &InmemNetwork{relays: make(map[string]*InmemRelay)}
}

// Relay returns the relay at url, creating it on first use.
func (n *InmemNetwork) Relay(url string) *InmemRelay {
	n.Lock()
	defer n.Unlock()
	r, ok := n.relays[url]
	if !ok {
		r = NewInmemRelay(url)
		n.relays[url] = r
	}
	return r
}

// Dial is a Dialer resolving inmem:// URLs against the network. Dialing a
// relay that is down fails.
func (n *InmemNetwork) Dial(ctx context.Context, url string) (Endpoint, error) {
	if !strings.HasPrefix(url, "inmem://") {
		return nil, fmt.Errorf("not an in-memory relay: %s", url)
	}
	r := n.Relay(url)
	r.RLock()
	down := r.down
	r.RUnlock()
	if down {
		return nil, ErrRelayDown
	}
	return r, nil
}
