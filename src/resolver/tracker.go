package resolver

import (
	"sync"

	"github.com/nostrpay/peerd/src/record"
)

// Tracker filters a live stream of replaceable records, letting through only
// records strictly newer than the last one accepted for the same partition.
// A Tracker belongs to a single subscription.
type Tracker struct {
	sync.Mutex
	lastSeen   map[Key]record.Timestamp
	validators []Validator
}

// NewTracker creates an empty Tracker.
func NewTracker(validators ...Validator) *Tracker {
	return &Tracker{
		lastSeen:   make(map[Key]record.Timestamp),
		validators: validators,
	}
}

// Seed records rec as seen without reporting it. It is used to prime the
// tracker with the results of an initial query.
func (t *Tracker) Seed(rec *record.Record) {
	t.Offer(rec)
}

// Offer returns true if rec is valid and newer than anything seen so far for
// its partition, in which case it becomes the new reference point.
func (t *Tracker) Offer(rec *record.Record) bool {
	if !valid(rec, t.validators) {
		return false
	}

	t.Lock()
	defer t.Unlock()

	k := KeyOf(rec)
	last, ok := t.lastSeen[k]
	if ok && !IsNewer(rec, last) {
		return false
	}
	t.lastSeen[k] = rec.CreatedAt
	return true
}

// LastSeen returns the creation time of the last record accepted for key.
func (t *Tracker) LastSeen(key Key) (record.Timestamp, bool) {
	t.Lock()
	defer t.Unlock()
	ts, ok := t.lastSeen[key]
	return ts, ok
}
