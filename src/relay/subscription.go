package relay

import (
	"sync"

	"github.com/nostrpay/peerd/src/record"
)

// fanInSubscription merges the subscriptions opened on several endpoints into
// one handle. Deliveries are serialised, so the handler never runs
// concurrently with itself, and Cancel waits for an in-flight delivery.
type fanInSubscription struct {
	l         sync.Mutex
	handler   Handler
	cancelled bool
	subs      []Subscription
	seen      map[string]struct{}
}

func newFanInSubscription(h Handler) *fanInSubscription {
	return &fanInSubscription{
		handler: h,
		seen:    make(map[string]struct{}),
	}
}

func (f *fanInSubscription) add(s Subscription) {
	f.l.Lock()
	defer f.l.Unlock()

	if f.cancelled {
		s.Cancel()
		return
	}
	f.subs = append(f.subs, s)
}

// deliver drops records already delivered by another relay.
func (f *fanInSubscription) deliver(rec *record.Record) {
	f.l.Lock()
	defer f.l.Unlock()

	if f.cancelled || rec == nil {
		return
	}
	if rec.ID != "" {
		if _, ok := f.seen[rec.ID]; ok {
			return
		}
		f.seen[rec.ID] = struct{}{}
	}
	f.handler(rec)
}

func (f *fanInSubscription) Cancel() {
	f.l.Lock()
	if f.cancelled {
		f.l.Unlock()
		return
	}
	f.cancelled = true
	subs := f.subs
	f.subs = nil
	f.l.Unlock()

	for _, s := range subs {
		s.Cancel()
	}
}

// cancelFunc adapts a function to the Subscription interface, running it at
// most once.
type cancelFunc struct {
	once sync.Once
	fn   func()
}

func newCancelFunc(fn func()) *cancelFunc {
	return &cancelFunc{fn: fn}
}

func (c *cancelFunc) Cancel() {
	c.once.Do(c.fn)
}
