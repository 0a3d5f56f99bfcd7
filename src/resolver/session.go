package resolver

import (
	"sync"

	"github.com/nostrpay/peerd/src/record"
)

// Resolver keeps the latest record of every partition it has been fed during a
// discovery session. Feeding order does not affect the outcome.
type Resolver struct {
	sync.RWMutex
	latest     map[Key]*record.Record
	validators []Validator
}

// New creates a Resolver applying validators to every record it is fed.
func New(validators ...Validator) *Resolver {
	return &Resolver{
		latest:     make(map[Key]*record.Record),
		validators: validators,
	}
}

// Add feeds records to the resolver and returns the number of partitions whose
// authoritative record changed.
func (r *Resolver) Add(records ...*record.Record) int {
	r.Lock()
	defer r.Unlock()

	changed := 0
	for _, rec := range records {
		if !valid(rec, r.validators) {
			continue
		}
		k := KeyOf(rec)
		if Supersedes(rec, r.latest[k]) {
			r.latest[k] = rec
			changed++
		}
	}
	return changed
}

// Get returns the authoritative record for key, if any.
func (r *Resolver) Get(key Key) (*record.Record, bool) {
	r.RLock()
	defer r.RUnlock()
	rec, ok := r.latest[key]
	return rec, ok
}

// Kind returns the authoritative records of the given kind, keyed by author.
func (r *Resolver) Kind(kind int) map[string]*record.Record {
	r.RLock()
	defer r.RUnlock()

	res := make(map[string]*record.Record)
	for k, rec := range r.latest {
		if k.Kind == kind {
			res[k.Author] = rec
		}
	}
	return res
}

// Invalidate forgets the authoritative record of key.
func (r *Resolver) Invalidate(key Key) {
	r.Lock()
	defer r.Unlock()
	delete(r.latest, key)
}

// Clear forgets everything.
func (r *Resolver) Clear() {
	r.Lock()
	defer r.Unlock()
	r.latest = make(map[Key]*record.Record)
}

// Len returns the number of partitions held.
func (r *Resolver) Len() int {
	r.RLock()
	defer r.RUnlock()
	return len(r.latest)
}
