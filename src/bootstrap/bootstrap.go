// Package bootstrap joins the network through a handful of known seed peers.
//
// Seeds are processed one after the other. For each seed the sequencer checks
// its identity, fetches its peer-advertisement, runs a payment setup exchange
// through the relays the seed advertises, registers the seed with the payment
// connector and finally publishes the local advertisement to those relays. A
// seed failing any step is logged and skipped; the others are unaffected.
package bootstrap

import (
	"context"
	"time"

	"github.com/nostrpay/peerd/src/common"
	"github.com/nostrpay/peerd/src/connector"
	"github.com/nostrpay/peerd/src/crypto/keys"
	"github.com/nostrpay/peerd/src/metrics"
	"github.com/nostrpay/peerd/src/record"
	"github.com/nostrpay/peerd/src/resolver"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"
)

// DefaultPacing is the minimum interval between two seeds.
const DefaultPacing = 250 * time.Millisecond

// Transport is the part of the relay pool the sequencer needs.
type Transport interface {
	QueryAll(ctx context.Context, urls []string, filter record.Filter) ([]*record.Record, error)
	PublishAny(ctx context.Context, urls []string, rec *record.Record) error
}

// Requester runs payment setup exchanges.
type Requester interface {
	Request(ctx context.Context, recipient string, req record.PaymentSetupRequest, relays []string) (*record.PaymentSetupResponse, error)
}

// Result describes a seed that was joined.
type Result struct {
	Seed          Seed                         `json:"seed"`
	Advertisement *record.PeerAdvertisement    `json:"advertisement"`
	Response      *record.PaymentSetupResponse `json:"-"`
	Relays        []string                     `json:"relays"`
}

// Config holds the settings of a Sequencer.
type Config struct {
	// ILPAddress and Settlement are sent to seeds in payment setup
	// requests.
	ILPAddress string
	Settlement []record.Settlement

	// OwnAdvertisement is the signed advertisement published to every joined
	// seed. Nothing is published when it is nil.
	OwnAdvertisement *record.Record

	// Pacing is the minimum interval between two seeds. Zero disables
	// pacing.
	Pacing time.Duration

	Validators []resolver.Validator
}

// Sequencer bootstraps the local agent from seed peers.
type Sequencer struct {
	transport  Transport
	requester  Requester
	router     connector.Router
	conf       Config
	validators []resolver.Validator
	limiter    *rate.Limiter
	metrics    *metrics.Metrics
	logger     *logrus.Entry
}

// New creates a Sequencer.
func New(transport Transport,
	requester Requester,
	router connector.Router,
	conf Config,
	m *metrics.Metrics,
	logger *logrus.Entry) *Sequencer {

	limit := rate.Inf
	if conf.Pacing > 0 {
		limit = rate.Every(conf.Pacing)
	}

	return &Sequencer{
		transport:  transport,
		requester:  requester,
		router:     router,
		conf:       conf,
		validators: append([]resolver.Validator{record.ValidPeerAdvertisement}, conf.Validators...),
		limiter:    rate.NewLimiter(limit, 1),
		metrics:    m,
		logger:     logger.WithField("component", "bootstrap"),
	}
}

// Bootstrap processes seeds in order and returns the seeds that were fully
// joined, in the same order. It stops early only if ctx is done.
func (s *Sequencer) Bootstrap(ctx context.Context, seeds []Seed) []Result {
	results := []Result{}

	for i, seed := range seeds {
		if err := s.limiter.Wait(ctx); err != nil {
			s.logger.WithError(err).Warn("Bootstrap interrupted")
			break
		}

		logger := s.logger.WithFields(logrus.Fields{
			"seed":  seed.PubKey,
			"index": i,
		})

		res, err := s.join(ctx, seed)
		if err != nil {
			s.metrics.Seed(metrics.SeedFailed)
			if common.Is(err, common.InvalidIdentity) {
				logger.WithError(err).Error("Invalid seed identity")
			} else {
				logger.WithError(err).Warn("Joining seed failed")
			}
			continue
		}

		s.metrics.Seed(metrics.SeedSucceeded)
		logger.WithField("ilp_address", res.Advertisement.ILPAddress).Info("Joined seed")
		results = append(results, res)
	}

	s.logger.WithFields(logrus.Fields{
		"seeds":  len(seeds),
		"joined": len(results),
	}).Info("Bootstrap done")

	return results
}

func (s *Sequencer) join(ctx context.Context, seed Seed) (Result, error) {
	if err := keys.ValidatePublicKeyHex(seed.PubKey); err != nil {
		return Result{}, err
	}

	var seedRelays []string
	if seed.Relay != "" {
		seedRelays = []string{seed.Relay}
	}

	records, err := s.transport.QueryAll(ctx, seedRelays, record.Filter{
		Kinds:   []int{record.KindPeerAdvertisement},
		Authors: []string{seed.PubKey},
	})
	if err != nil {
		return Result{}, err
	}

	key := resolver.Key{Author: seed.PubKey, Kind: record.KindPeerAdvertisement}
	latest := resolver.ResolveLatest(key, records, s.validators...)
	if latest == nil {
		return Result{}, common.Errorf("bootstrap", common.NotFound, seed.PubKey, "no peer advertisement")
	}

	adv, err := record.ParsePeerAdvertisement(latest)
	if err != nil {
		return Result{}, err
	}

	relays := seedRelays
	if len(adv.Relays) > 0 {
		relays = adv.Relays
	}

	resp, err := s.requester.Request(ctx, seed.PubKey, record.PaymentSetupRequest{
		ILPAddress: s.conf.ILPAddress,
		Settlement: s.conf.Settlement,
	}, relays)
	if err != nil {
		return Result{}, err
	}

	if err := s.router.AddPeer(ctx, seed.PubKey, adv.BTPEndpoint, resp.SharedSecret); err != nil {
		return Result{}, err
	}
	if err := s.router.AddRoute(ctx, adv.ILPAddress, seed.PubKey, 0); err != nil {
		return Result{}, err
	}

	if s.conf.OwnAdvertisement != nil {
		if err := s.transport.PublishAny(ctx, relays, s.conf.OwnAdvertisement); err != nil {
			return Result{}, err
		}
	}

	return Result{
		Seed:          seed,
		Advertisement: adv,
		Response:      resp,
		Relays:        relays,
	}, nil
}
