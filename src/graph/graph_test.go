package graph

import (
	"context"
	"fmt"
	"math/big"
	"strings"
	"sync"
	"testing"

	"github.com/nostrpay/peerd/src/common"
	"github.com/nostrpay/peerd/src/record"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeQuerier answers from a fixed record list and counts queries.
type fakeQuerier struct {
	sync.Mutex
	records []*record.Record
	queries int
}

func (f *fakeQuerier) QueryAll(ctx context.Context, urls []string, filter record.Filter) ([]*record.Record, error) {
	f.Lock()
	defer f.Unlock()
	f.queries++
	var res []*record.Record
	for _, r := range f.records {
		if filter.Matches(r) {
			res = append(res, r)
		}
	}
	return res, nil
}

func (f *fakeQuerier) add(r *record.Record) {
	f.Lock()
	defer f.Unlock()
	f.records = append(f.records, r)
}

func (f *fakeQuerier) count() int {
	f.Lock()
	defer f.Unlock()
	return f.queries
}

func id(n int) string {
	return fmt.Sprintf("%064x", n)
}

var followListSeq int

func followList(author string, ts int64, targets ...string) *record.Record {
	edges := make([]record.FollowEdge, len(targets))
	for i, t := range targets {
		edges[i] = record.FollowEdge{To: t}
	}
	rec := record.BuildFollowList(edges, record.Timestamp(ts))
	rec.PubKey = author
	followListSeq++
	rec.ID = fmt.Sprintf("%064x", 1<<20+followListSeq)
	return rec
}

func newTestGraph(t *testing.T, records ...*record.Record) (*Graph, *fakeQuerier) {
	q := &fakeQuerier{records: records}
	return New(q, nil, nil, nil, common.NewTestEntry(t, "graph")), q
}

func TestGetFollowsUsesLatestList(t *testing.T) {
	self := id(1)
	g, _ := newTestGraph(t,
		followList(self, 10, id(2), id(3)),
		followList(self, 20, id(4)),
		followList(self, 15, id(5)),
	)

	follows, err := g.GetFollows(context.Background(), self)
	require.NoError(t, err)
	assert.Equal(t, []string{id(4)}, follows.Sorted())
}

func TestGetFollowsWithoutList(t *testing.T) {
	g, _ := newTestGraph(t)
	follows, err := g.GetFollows(context.Background(), id(9))
	require.NoError(t, err)
	assert.Empty(t, follows)

	_, err = g.GetFollows(context.Background(), strings.ToUpper(id(9)))
	assert.True(t, common.Is(err, common.InvalidIdentity))
}

func TestWorkedExample(t *testing.T) {
	self, subject := id(1), id(2)

	var shared []string
	for i := 0; i < 10; i++ {
		shared = append(shared, id(100+i))
	}

	g, _ := newTestGraph(t,
		followList(self, 1, append([]string{subject}, shared...)...),
		followList(subject, 1, shared...),
	)

	ts, err := g.ComputeTrust(context.Background(), self, subject, DefaultTrustConfig())
	require.NoError(t, err)

	assert.True(t, ts.IsFollowed)
	assert.False(t, ts.FollowsBack)
	assert.Equal(t, 10, ts.MutualFollowerCount)
	assert.Equal(t, "1500", ts.CreditLimit.String())
	assert.Equal(t, 15, ts.Score)
}

func TestScore(t *testing.T) {
	self, subject := id(1), id(2)
	conf := DefaultTrustConfig()

	cases := []struct {
		name           string
		selfFollows    Set
		subjectFollows Set
		credit         string
		score          int
	}{
		{"strangers", NewSet(), NewSet(), "0", 0},
		{"followed", NewSet(subject), NewSet(), "1000", 10},
		{"follows back", NewSet(subject), NewSet(self), "1500", 15},
		{"follows back only", NewSet(), NewSet(self), "0", 0},
		{"two mutual", NewSet(subject, id(3), id(4)), NewSet(id(3), id(4)), "1200", 12},
		{"follows back and mutual", NewSet(subject, id(3), id(4), id(5), id(6), id(7), id(8)),
			NewSet(self, id(3), id(4), id(5), id(6), id(7), id(8)), "2000", 20},
	}

	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			ts := Score(self, subject, c.selfFollows, c.subjectFollows, conf)
			assert.Equal(t, c.credit, ts.CreditLimit.String())
			assert.Equal(t, c.score, ts.Score)
		})
	}
}

func TestScoreClampAndBigValues(t *testing.T) {
	self, subject := id(1), id(2)

	huge, ok := new(big.Int).SetString("123456789012345678901234567890", 10)
	require.True(t, ok)

	conf := TrustConfig{
		BaseCreditForFollowed:   huge,
		BaseCreditForUnfollowed: big.NewInt(0),
		MutualFollowerBonus:     big.NewInt(1),
		MaxMutualBonus:          big.NewInt(1),
		MaxCreditLimit:          new(big.Int).Mul(huge, big.NewInt(10)),
	}

	ts := Score(self, subject, NewSet(subject), NewSet(self), conf)
	expected := new(big.Int).Add(huge, new(big.Int).Quo(huge, big.NewInt(2)))
	assert.Equal(t, expected.String(), ts.CreditLimit.String())
	assert.Equal(t, 15, ts.Score)

	conf.MaxCreditLimit = big.NewInt(500)
	ts = Score(self, subject, NewSet(subject), NewSet(self), conf)
	assert.Equal(t, "500", ts.CreditLimit.String())
	assert.Equal(t, 100, ts.Score)

	conf.MaxCreditLimit = big.NewInt(0)
	ts = Score(self, subject, NewSet(subject), NewSet(self), conf)
	assert.Equal(t, "0", ts.CreditLimit.String())
	assert.Equal(t, 0, ts.Score)
}

func TestCachingAndInvalidation(t *testing.T) {
	self, subject := id(1), id(2)
	g, q := newTestGraph(t, followList(self, 1, subject))
	ctx := context.Background()

	ts, err := g.ComputeTrust(ctx, self, subject, DefaultTrustConfig())
	require.NoError(t, err)
	assert.False(t, ts.FollowsBack)
	queries := q.count()

	_, err = g.ComputeTrust(ctx, self, subject, DefaultTrustConfig())
	require.NoError(t, err)
	assert.Equal(t, queries, q.count(), "second computation should be served from cache")

	// the subject follows back, but nothing changes until invalidation
	q.add(followList(subject, 5, self))
	ts, _ = g.ComputeTrust(ctx, self, subject, DefaultTrustConfig())
	assert.False(t, ts.FollowsBack)

	g.Invalidate(subject)
	ts, err = g.ComputeTrust(ctx, self, subject, DefaultTrustConfig())
	require.NoError(t, err)
	assert.True(t, ts.FollowsBack)
	assert.Equal(t, "1500", ts.CreditLimit.String())

	g.Clear()
	follows, trust := g.Cached()
	assert.Equal(t, 0, follows)
	assert.Equal(t, 0, trust)
}

func TestComputeTrustFollowsConfig(t *testing.T) {
	self, subject := id(1), id(2)
	g, _ := newTestGraph(t, followList(self, 10, subject))
	ctx := context.Background()

	ts, err := g.ComputeTrust(ctx, self, subject, DefaultTrustConfig())
	require.NoError(t, err)
	assert.Equal(t, "1000", ts.CreditLimit.String())

	conf := DefaultTrustConfig()
	conf.BaseCreditForFollowed = big.NewInt(5000)
	ts, err = g.ComputeTrust(ctx, self, subject, conf)
	require.NoError(t, err)
	assert.Equal(t, "5000", ts.CreditLimit.String())

	ts, err = g.ComputeTrust(ctx, self, subject, DefaultTrustConfig())
	require.NoError(t, err)
	assert.Equal(t, "1000", ts.CreditLimit.String())

	g.Invalidate(self)
	_, trust := g.Cached()
	assert.Equal(t, 0, trust)
}

func TestFollowers(t *testing.T) {
	self := id(1)
	g, _ := newTestGraph(t,
		followList(id(2), 1, self),
		followList(id(3), 1, self, id(2)),
		// id(4) used to follow self but no longer does
		followList(id(4), 1, self),
		followList(id(4), 2, id(2)),
		followList(id(5), 1, id(2)),
	)

	followers, err := g.Followers(context.Background(), self)
	require.NoError(t, err)
	assert.Equal(t, []string{id(2), id(3)}, followers.Sorted())

	follows, err := g.GetFollows(context.Background(), id(4))
	require.NoError(t, err)
	assert.Equal(t, []string{id(2)}, follows.Sorted())
}
