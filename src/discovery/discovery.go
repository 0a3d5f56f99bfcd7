// Package discovery turns the follow graph of the local agent into a list of
// payment peers.
//
// Peers are the identities self follows that published a valid
// peer-advertisement. Identities without one are simply absent. The latest
// advertisement of every author is kept in a session resolver until Clear is
// called; live updates only report advertisements strictly newer than the
// last one seen by the subscription.
package discovery

import (
	"context"
	"math/big"

	"github.com/nostrpay/peerd/src/crypto/keys"
	"github.com/nostrpay/peerd/src/graph"
	"github.com/nostrpay/peerd/src/metrics"
	"github.com/nostrpay/peerd/src/record"
	"github.com/nostrpay/peerd/src/relay"
	"github.com/nostrpay/peerd/src/resolver"
	"github.com/sirupsen/logrus"
)

// DefaultCreditLimit is the flat credit limit granted to followed peers when
// no credit function is given.
const DefaultCreditLimit = 1000

// Transport is the part of the relay pool discovery needs.
type Transport interface {
	QueryAll(ctx context.Context, urls []string, filter record.Filter) ([]*record.Record, error)
	Subscribe(ctx context.Context, urls []string, filter record.Filter, h relay.Handler) (relay.Subscription, error)
}

// Peer is a discovered peer.
type Peer struct {
	Identity      string                    `json:"identity"`
	Followed      bool                      `json:"followed"`
	CreatedAt     record.Timestamp          `json:"createdAt"`
	Advertisement *record.PeerAdvertisement `json:"advertisement"`
}

// Credit is the credit extended to a peer and the priority of its routes.
type Credit struct {
	Limit    *big.Int
	Priority int
}

// CreditFunc decides the credit self extends to peer.
type CreditFunc func(ctx context.Context, self string, peer Peer) (Credit, error)

// PeerConfig is what the payment connector needs to know about a peer.
type PeerConfig struct {
	ID          string              `json:"id"`
	ILPAddress  string              `json:"ilpAddress"`
	BTPEndpoint string              `json:"btpEndpoint"`
	AuthToken   string              `json:"-"`
	Assets      []record.Asset      `json:"assets,omitempty"`
	Settlement  []record.Settlement `json:"settlement,omitempty"`
	Relays      []string            `json:"relays,omitempty"`
	CreditLimit *big.Int            `json:"creditLimit"`
	Priority    int                 `json:"priority"`
}

// FlatCredit grants limit to followed peers and nothing to the others.
func FlatCredit(limit *big.Int) CreditFunc {
	return func(ctx context.Context, self string, peer Peer) (Credit, error) {
		if peer.Followed {
			return Credit{Limit: new(big.Int).Set(limit)}, nil
		}
		return Credit{Limit: new(big.Int)}, nil
	}
}

// TrustCredit derives the credit from the trust self places in the peer. The
// trust score doubles as route priority.
func TrustCredit(g *graph.Graph, conf graph.TrustConfig) CreditFunc {
	return func(ctx context.Context, self string, peer Peer) (Credit, error) {
		ts, err := g.ComputeTrust(ctx, self, peer.Identity, conf)
		if err != nil {
			return Credit{}, err
		}
		return Credit{Limit: new(big.Int).Set(ts.CreditLimit), Priority: ts.Score}, nil
	}
}

// Orchestrator discovers peers.
type Orchestrator struct {
	transport  Transport
	graph      *graph.Graph
	relays     []string
	validators []resolver.Validator
	session    *resolver.Resolver
	credit     CreditFunc
	metrics    *metrics.Metrics
	logger     *logrus.Entry
}

// New creates an Orchestrator querying relays, or the transport's defaults if
// relays is nil. Advertisements failing one of the validators are ignored.
func New(transport Transport,
	g *graph.Graph,
	relays []string,
	validators []resolver.Validator,
	m *metrics.Metrics,
	logger *logrus.Entry) *Orchestrator {

	validators = append([]resolver.Validator{record.ValidPeerAdvertisement}, validators...)

	return &Orchestrator{
		transport:  transport,
		graph:      g,
		relays:     relays,
		validators: validators,
		session:    resolver.New(validators...),
		credit:     FlatCredit(big.NewInt(DefaultCreditLimit)),
		metrics:    m,
		logger:     logger.WithField("component", "discovery"),
	}
}

func advertisementKey(author string) resolver.Key {
	return resolver.Key{Author: author, Kind: record.KindPeerAdvertisement}
}

func (o *Orchestrator) peer(rec *record.Record, followed bool) (Peer, bool) {
	adv, err := record.ParsePeerAdvertisement(rec)
	if err != nil {
		return Peer{}, false
	}
	return Peer{
		Identity:      rec.PubKey,
		Followed:      followed,
		CreatedAt:     rec.CreatedAt,
		Advertisement: adv,
	}, true
}

// DiscoverPeers returns the peers self follows, ordered by identity.
func (o *Orchestrator) DiscoverPeers(ctx context.Context, self string) ([]Peer, error) {
	if err := keys.ValidatePublicKeyHex(self); err != nil {
		return nil, err
	}

	follows, err := o.graph.GetFollows(ctx, self)
	if err != nil {
		return nil, err
	}

	peers := []Peer{}
	if len(follows) == 0 {
		o.metrics.DiscoveredPeers(0)
		return peers, nil
	}

	authors := follows.Sorted()
	records, err := o.transport.QueryAll(ctx, o.relays, record.Filter{
		Kinds:   []int{record.KindPeerAdvertisement},
		Authors: authors,
	})
	if err != nil {
		return nil, err
	}

	o.session.Add(records...)

	for _, author := range authors {
		rec, ok := o.session.Get(advertisementKey(author))
		if !ok {
			continue
		}
		if p, ok := o.peer(rec, true); ok {
			peers = append(peers, p)
		}
	}

	o.metrics.DiscoveredPeers(len(peers))
	o.logger.WithFields(logrus.Fields{
		"follows": len(follows),
		"peers":   len(peers),
	}).Debug("Discovered peers")

	return peers, nil
}

// GetPeerConfigs discovers the peers of self and maps each of them through
// credit, or FlatCredit with DefaultCreditLimit if credit is nil.
func (o *Orchestrator) GetPeerConfigs(ctx context.Context, self string, credit CreditFunc) ([]PeerConfig, error) {
	if credit == nil {
		credit = o.credit
	}

	peers, err := o.DiscoverPeers(ctx, self)
	if err != nil {
		return nil, err
	}

	configs := make([]PeerConfig, 0, len(peers))
	for _, p := range peers {
		c, err := credit(ctx, self, p)
		if err != nil {
			return nil, err
		}
		configs = append(configs, NewPeerConfig(p, c))
	}

	return configs, nil
}

// NewPeerConfig combines an advertisement and a credit decision.
func NewPeerConfig(p Peer, c Credit) PeerConfig {
	limit := c.Limit
	if limit == nil {
		limit = new(big.Int)
	}
	return PeerConfig{
		ID:          p.Identity,
		ILPAddress:  p.Advertisement.ILPAddress,
		BTPEndpoint: p.Advertisement.BTPEndpoint,
		Assets:      p.Advertisement.Assets,
		Settlement:  p.Advertisement.Settlement,
		Relays:      p.Advertisement.Relays,
		CreditLimit: limit,
		Priority:    c.Priority,
	}
}

// SubscribeToUpdates calls cb for every advertisement of a followed identity
// that is newer than the last one seen. The subscription starts from what the
// session already knows, so advertisements reported by DiscoverPeers are not
// reported again.
func (o *Orchestrator) SubscribeToUpdates(ctx context.Context, self string, cb func(Peer)) (relay.Subscription, error) {
	if err := keys.ValidatePublicKeyHex(self); err != nil {
		return nil, err
	}

	follows, err := o.graph.GetFollows(ctx, self)
	if err != nil {
		return nil, err
	}

	authors := follows.Sorted()
	tracker := resolver.NewTracker(o.validators...)
	for _, author := range authors {
		if rec, ok := o.session.Get(advertisementKey(author)); ok {
			tracker.Seed(rec)
		}
	}

	return o.transport.Subscribe(ctx, o.relays, record.Filter{
		Kinds:   []int{record.KindPeerAdvertisement},
		Authors: authors,
	}, func(rec *record.Record) {
		if !follows.Has(rec.PubKey) || !tracker.Offer(rec) {
			return
		}
		o.session.Add(rec)
		if p, ok := o.peer(rec, true); ok {
			o.logger.WithField("peer", p.Identity).Debug("Peer advertisement updated")
			cb(p)
		}
	})
}

// Clear forgets the advertisements resolved so far.
func (o *Orchestrator) Clear() {
	o.session.Clear()
}
