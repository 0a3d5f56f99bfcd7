// Package resolver selects the authoritative record among competing versions
// of a replaceable record.
//
// For a given (author, kind) pair only the record with the greatest creation
// time counts. Records sharing the greatest creation time are ordered by id,
// the lexicographically smallest id wins, so the outcome never depends on the
// order in which relays delivered them. Records rejected by a Validator are
// removed before any comparison takes place.
package resolver

import (
	"github.com/nostrpay/peerd/src/common"
	"github.com/nostrpay/peerd/src/crypto/keys"
	"github.com/nostrpay/peerd/src/record"
)

// Validator returns an error for records that must not take part in
// resolution.
type Validator func(*record.Record) error

// Key identifies a replaceable record partition.
type Key struct {
	Author string
	Kind   int
}

// KeyOf returns the partition rec belongs to.
func KeyOf(rec *record.Record) Key {
	return Key{Author: rec.PubKey, Kind: rec.Kind}
}

// Verified is a Validator rejecting records whose id or signature does not
// check out.
func Verified(rec *record.Record) error {
	if !keys.Verify(rec) {
		return common.Errorf("resolver", common.InvalidRecord, rec.ID, "bad id or signature")
	}
	return nil
}

// Supersedes reports whether a should replace b. b may be nil.
func Supersedes(a, b *record.Record) bool {
	if b == nil {
		return true
	}
	if a.CreatedAt != b.CreatedAt {
		return a.CreatedAt > b.CreatedAt
	}
	return a.ID < b.ID
}

// IsNewer reports whether candidate is strictly more recent than lastSeen.
func IsNewer(candidate *record.Record, lastSeen record.Timestamp) bool {
	return candidate.CreatedAt > lastSeen
}

func valid(rec *record.Record, validators []Validator) bool {
	if rec == nil {
		return false
	}
	for _, v := range validators {
		if v(rec) != nil {
			return false
		}
	}
	return true
}

// ResolveLatest returns the authoritative record of partition key among
// records, or nil if no valid record belongs to it.
func ResolveLatest(key Key, records []*record.Record, validators ...Validator) *record.Record {
	var latest *record.Record
	for _, rec := range records {
		if rec == nil || KeyOf(rec) != key {
			continue
		}
		if !valid(rec, validators) {
			continue
		}
		if Supersedes(rec, latest) {
			latest = rec
		}
	}
	return latest
}

// ResolveAll partitions records by (author, kind) and returns the
// authoritative record of every partition holding at least one valid record.
func ResolveAll(records []*record.Record, validators ...Validator) map[Key]*record.Record {
	res := make(map[Key]*record.Record)
	for _, rec := range records {
		if !valid(rec, validators) {
			continue
		}
		k := KeyOf(rec)
		if Supersedes(rec, res[k]) {
			res[k] = rec
		}
	}
	return res
}
