package graph

import (
	"context"
	"strings"

	"github.com/nostrpay/peerd/src/crypto/keys"
	"github.com/nostrpay/peerd/src/metrics"
	"github.com/nostrpay/peerd/src/record"
	"github.com/nostrpay/peerd/src/resolver"
	cache "github.com/patrickmn/go-cache"
	"github.com/sirupsen/logrus"
)

// Querier is the part of the transport the graph needs.
type Querier interface {
	QueryAll(ctx context.Context, urls []string, filter record.Filter) ([]*record.Record, error)
}

// Graph answers follow and trust questions by querying follow-lists through a
// Querier.
type Graph struct {
	querier    Querier
	relays     []string
	validators []resolver.Validator
	follows    *cache.Cache
	followers  *cache.Cache
	trust      *cache.Cache
	metrics    *metrics.Metrics
	logger     *logrus.Entry
}

// New creates a Graph querying relays, or the querier's defaults if relays is
// nil. Follow-lists failing one of the validators are ignored.
func New(querier Querier,
	relays []string,
	validators []resolver.Validator,
	m *metrics.Metrics,
	logger *logrus.Entry) *Graph {

	return &Graph{
		querier:    querier,
		relays:     relays,
		validators: append([]resolver.Validator{record.ValidFollowList}, validators...),
		follows:    cache.New(cache.NoExpiration, 0),
		followers:  cache.New(cache.NoExpiration, 0),
		trust:      cache.New(cache.NoExpiration, 0),
		metrics:    m,
		logger:     logger.WithField("component", "graph"),
	}
}

// GetFollows returns the identities followed by identity according to its
// latest follow-list. An identity without a follow-list follows nobody.
func (g *Graph) GetFollows(ctx context.Context, identity string) (Set, error) {
	if err := keys.ValidatePublicKeyHex(identity); err != nil {
		return nil, err
	}

	if s, ok := g.follows.Get(identity); ok {
		return s.(Set), nil
	}

	records, err := g.querier.QueryAll(ctx, g.relays, record.Filter{
		Kinds:   []int{record.KindFollowList},
		Authors: []string{identity},
	})
	if err != nil {
		return nil, err
	}

	key := resolver.Key{Author: identity, Kind: record.KindFollowList}
	follows := g.cacheFollows(key, resolver.ResolveLatest(key, records, g.validators...))

	return follows, nil
}

func (g *Graph) cacheFollows(key resolver.Key, latest *record.Record) Set {
	follows := Set{}
	if latest != nil {
		edges, _ := record.ParseFollowList(latest)
		follows = Set(record.Targets(edges))
	}

	g.logger.WithFields(logrus.Fields{
		"identity": key.Author,
		"follows":  len(follows),
	}).Debug("Resolved follow-list")

	g.follows.Set(key.Author, follows, cache.NoExpiration)
	return follows
}

// Followers returns the identities whose latest follow-list includes
// identity. Candidates are found by looking for follow-lists tagging identity,
// then confirmed against the latest follow-list of each candidate, since an
// older list may still tag identity after a newer one dropped it.
func (g *Graph) Followers(ctx context.Context, identity string) (Set, error) {
	if err := keys.ValidatePublicKeyHex(identity); err != nil {
		return nil, err
	}

	if s, ok := g.followers.Get(identity); ok {
		return s.(Set), nil
	}

	tagged, err := g.querier.QueryAll(ctx, g.relays, record.Filter{
		Kinds: []int{record.KindFollowList},
		Tags:  record.TagMap{"p": []string{identity}},
	})
	if err != nil {
		return nil, err
	}

	candidates := Set{}
	for _, rec := range tagged {
		if keys.ValidatePublicKeyHex(rec.PubKey) == nil && rec.PubKey != identity {
			candidates[rec.PubKey] = struct{}{}
		}
	}

	followers := Set{}
	if len(candidates) > 0 {
		latest, err := g.querier.QueryAll(ctx, g.relays, record.Filter{
			Kinds:   []int{record.KindFollowList},
			Authors: candidates.Sorted(),
		})
		if err != nil {
			return nil, err
		}

		resolved := resolver.ResolveAll(latest, g.validators...)
		for author := range candidates {
			key := resolver.Key{Author: author, Kind: record.KindFollowList}
			if g.cacheFollows(key, resolved[key]).Has(identity) {
				followers[author] = struct{}{}
			}
		}
	}

	g.followers.Set(identity, followers, cache.NoExpiration)
	return followers, nil
}

func trustKey(self, subject string, conf TrustConfig) string {
	return self + ":" + subject + ":" + conf.fingerprint()
}

// ComputeTrust returns the trust self places in subject under conf.
func (g *Graph) ComputeTrust(ctx context.Context, self string, subject string, conf TrustConfig) (*TrustScore, error) {
	if err := keys.ValidatePublicKeyHex(subject); err != nil {
		return nil, err
	}

	k := trustKey(self, subject, conf)
	if ts, ok := g.trust.Get(k); ok {
		return ts.(*TrustScore), nil
	}

	selfFollows, err := g.GetFollows(ctx, self)
	if err != nil {
		return nil, err
	}

	subjectFollows, err := g.GetFollows(ctx, subject)
	if err != nil {
		return nil, err
	}

	ts := Score(self, subject, selfFollows, subjectFollows, conf)
	g.metrics.TrustComputed()

	g.logger.WithFields(logrus.Fields{
		"subject":      subject,
		"followed":     ts.IsFollowed,
		"follows_back": ts.FollowsBack,
		"mutual":       ts.MutualFollowerCount,
		"credit":       ts.CreditLimit.String(),
	}).Debug("Computed trust")

	g.trust.Set(k, ts, cache.NoExpiration)
	return ts, nil
}

// Invalidate forgets the follows of identity and everything derived from
// them: every trust score identity takes part in, and all follower sets.
func (g *Graph) Invalidate(identity string) {
	g.follows.Delete(identity)
	g.followers.Flush()

	for k, item := range g.trust.Items() {
		ts := item.Object.(*TrustScore)
		if ts.Subject == identity || strings.HasPrefix(k, identity+":") {
			g.trust.Delete(k)
		}
	}
}

// Clear forgets everything.
func (g *Graph) Clear() {
	g.follows.Flush()
	g.followers.Flush()
	g.trust.Flush()
}

// Cached returns the number of memoised follow sets and trust scores.
func (g *Graph) Cached() (follows int, trust int) {
	return g.follows.ItemCount(), g.trust.ItemCount()
}
