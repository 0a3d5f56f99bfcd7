package resolver

import (
	"fmt"
	"math/rand"
	"strings"
	"testing"

	"github.com/nostrpay/peerd/src/common"
	"github.com/nostrpay/peerd/src/crypto/keys"
	"github.com/nostrpay/peerd/src/record"
)

var (
	alice = strings.Repeat("a", 64)
	bob   = strings.Repeat("b", 64)
)

func rec(id string, author string, kind int, ts int64) *record.Record {
	return &record.Record{
		ID:        id,
		PubKey:    author,
		Kind:      kind,
		CreatedAt: record.Timestamp(ts),
		Content:   `{"ilpAddress":"g.x","btpEndpoint":"btp+ws://x"}`,
	}
}

func shuffled(in []*record.Record, seed int64) []*record.Record {
	out := make([]*record.Record, len(in))
	copy(out, in)
	r := rand.New(rand.NewSource(seed))
	r.Shuffle(len(out), func(i, j int) { out[i], out[j] = out[j], out[i] })
	return out
}

func TestResolveLatestPicksGreatestTimestamp(t *testing.T) {
	key := Key{Author: alice, Kind: record.KindPeerAdvertisement}
	records := []*record.Record{
		rec("01", alice, record.KindPeerAdvertisement, 100),
		rec("02", alice, record.KindPeerAdvertisement, 300),
		rec("03", alice, record.KindPeerAdvertisement, 200),
		rec("04", bob, record.KindPeerAdvertisement, 900),
		rec("05", alice, record.KindFollowList, 900),
	}

	latest := ResolveLatest(key, records)
	if latest == nil || latest.ID != "02" {
		t.Fatalf("latest should be 02, not %v", latest)
	}

	if res := ResolveLatest(Key{Author: strings.Repeat("c", 64), Kind: 3}, records); res != nil {
		t.Fatalf("unknown partition should resolve to nil, not %v", res)
	}
}

func TestResolveLatestTieIsDeterministic(t *testing.T) {
	key := Key{Author: alice, Kind: record.KindPeerAdvertisement}
	records := []*record.Record{
		rec("cc", alice, record.KindPeerAdvertisement, 500),
		rec("aa", alice, record.KindPeerAdvertisement, 500),
		rec("bb", alice, record.KindPeerAdvertisement, 500),
		rec("00", alice, record.KindPeerAdvertisement, 499),
	}

	for i := int64(0); i < 20; i++ {
		latest := ResolveLatest(key, shuffled(records, i))
		if latest.ID != "aa" {
			t.Fatalf("permutation %d: expected aa, got %s", i, latest.ID)
		}
	}
}

func TestMalformedExcludedBeforeComparison(t *testing.T) {
	key := Key{Author: alice, Kind: record.KindPeerAdvertisement}
	broken := rec("ff", alice, record.KindPeerAdvertisement, 1000)
	broken.Content = "{"

	records := []*record.Record{
		rec("01", alice, record.KindPeerAdvertisement, 10),
		broken,
	}

	latest := ResolveLatest(key, records, record.ValidPeerAdvertisement)
	if latest == nil || latest.ID != "01" {
		t.Fatalf("expected the older valid record, got %v", latest)
	}

	if res := ResolveLatest(key, []*record.Record{broken}, record.ValidPeerAdvertisement); res != nil {
		t.Fatalf("only malformed records should resolve to nil")
	}
}

func TestResolveAll(t *testing.T) {
	records := []*record.Record{
		rec("01", alice, record.KindPeerAdvertisement, 1),
		rec("02", alice, record.KindPeerAdvertisement, 2),
		rec("03", bob, record.KindPeerAdvertisement, 5),
		rec("04", bob, record.KindPeerAdvertisement, 4),
		nil,
	}

	all := ResolveAll(records)
	if len(all) != 2 {
		t.Fatalf("expected 2 partitions, got %d", len(all))
	}
	if id := all[Key{alice, record.KindPeerAdvertisement}].ID; id != "02" {
		t.Fatalf("alice: expected 02, got %s", id)
	}
	if id := all[Key{bob, record.KindPeerAdvertisement}].ID; id != "03" {
		t.Fatalf("bob: expected 03, got %s", id)
	}
}

func TestIsNewer(t *testing.T) {
	r := rec("01", alice, record.KindPeerAdvertisement, 100)
	cases := []struct {
		lastSeen record.Timestamp
		newer    bool
	}{
		{99, true},
		{100, false},
		{101, false},
		{0, true},
	}
	for _, c := range cases {
		if got := IsNewer(r, c.lastSeen); got != c.newer {
			t.Fatalf("IsNewer(100, %d) should be %v", c.lastSeen, c.newer)
		}
	}
}

func TestFeedOrderDoesNotMatter(t *testing.T) {
	var records []*record.Record
	for i := 0; i < 10; i++ {
		records = append(records, rec(fmt.Sprintf("%02d", i), alice, record.KindFollowList, int64(i*10)))
	}

	forward := New()
	forward.Add(records...)

	backward := New()
	for i := len(records) - 1; i >= 0; i-- {
		backward.Add(records[i])
	}

	key := Key{alice, record.KindFollowList}
	f, _ := forward.Get(key)
	b, _ := backward.Get(key)
	if f.ID != "09" || b.ID != "09" {
		t.Fatalf("expected 09 both ways, got %s and %s", f.ID, b.ID)
	}

	backward.Clear()
	if backward.Len() != 0 {
		t.Fatalf("Clear should empty the resolver")
	}
}

func TestTracker(t *testing.T) {
	tr := NewTracker()

	stream := []struct {
		r      *record.Record
		accept bool
	}{
		{rec("01", alice, record.KindPeerAdvertisement, 100), true},
		{rec("02", alice, record.KindPeerAdvertisement, 100), false},
		{rec("03", alice, record.KindPeerAdvertisement, 90), false},
		{rec("04", bob, record.KindPeerAdvertisement, 50), true},
		{rec("05", alice, record.KindPeerAdvertisement, 101), true},
		{rec("06", alice, record.KindPeerAdvertisement, 100), false},
	}

	for _, s := range stream {
		if got := tr.Offer(s.r); got != s.accept {
			t.Fatalf("record %s: expected %v, got %v", s.r.ID, s.accept, got)
		}
	}

	ts, ok := tr.LastSeen(Key{alice, record.KindPeerAdvertisement})
	if !ok || ts != 101 {
		t.Fatalf("last seen for alice should be 101, got %d", ts)
	}
}

func TestVerified(t *testing.T) {
	kr, err := keys.GenerateKeyring()
	if err != nil {
		t.Fatal(err)
	}

	ev, err := record.BuildPeerAdvertisement(&record.PeerAdvertisement{
		ILPAddress:  "g.alice",
		BTPEndpoint: "btp+ws://alice",
	}, 10)
	if err != nil {
		t.Fatal(err)
	}
	if err := kr.Sign(ev); err != nil {
		t.Fatal(err)
	}

	if err := Verified(ev); err != nil {
		t.Fatalf("signed record should verify: %v", err)
	}

	ev.Content = `{"ilpAddress":"g.mallory","btpEndpoint":"btp+ws://mallory"}`
	if err := Verified(ev); !common.Is(err, common.InvalidRecord) {
		t.Fatalf("tampered record should be InvalidRecord, got %v", err)
	}
}
