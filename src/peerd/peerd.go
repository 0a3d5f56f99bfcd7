package peerd

import (
	"context"
	"crypto/ecdsa"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"path/filepath"
	"sort"
	"sync"

	"github.com/nostrpay/peerd/src/bootstrap"
	"github.com/nostrpay/peerd/src/config"
	"github.com/nostrpay/peerd/src/connector"
	"github.com/nostrpay/peerd/src/correlator"
	"github.com/nostrpay/peerd/src/crypto/keys"
	"github.com/nostrpay/peerd/src/discovery"
	"github.com/nostrpay/peerd/src/graph"
	"github.com/nostrpay/peerd/src/metrics"
	"github.com/nostrpay/peerd/src/record"
	"github.com/nostrpay/peerd/src/relay"
	"github.com/nostrpay/peerd/src/resolver"
	"github.com/nostrpay/peerd/src/service"
	"github.com/sirupsen/logrus"
)

// Peerd is the top-level object of a peerd agent. It wires the relay pool,
// the social graph, discovery, payment setup exchanges, bootstrap and the
// connector together.
type Peerd struct {
	Config     *config.Config
	Keyring    *keys.Keyring
	Metrics    *metrics.Metrics
	Pool       *relay.Pool
	Graph      *graph.Graph
	Discovery  *discovery.Orchestrator
	Correlator *correlator.Correlator
	Responder  *correlator.Responder
	Sequencer  *bootstrap.Sequencer
	Router     connector.Router
	Service    *service.Service

	logger *logrus.Entry

	l          sync.RWMutex
	peers      map[string]discovery.PeerConfig
	tokens     map[string]string
	credit     discovery.CreditFunc
	trustConf  graph.TrustConfig
	updates    relay.Subscription
	watchCtx   context.Context
	validators []resolver.Validator
}

// NewPeerd creates an agent from conf. Init must be called before Run.
func NewPeerd(conf *config.Config) *Peerd {
	return &Peerd{
		Config: conf,
		peers:  make(map[string]discovery.PeerConfig),
		tokens: make(map[string]string),
	}
}

func (p *Peerd) initKey() error {
	if p.Config.Key == nil {
		keyfile := keys.NewSimpleKeyfile(p.Config.Keyfile())

		privKey, err := keyfile.ReadKey()
		if err != nil {
			p.logger.WithError(err).Warn("Cannot read private key from file")

			privKey, err = Keygen(p.Config.DataDir)
			if err != nil {
				p.logger.WithError(err).Error("Cannot generate a new private key")
				return err
			}

			p.logger.WithField("pubkey", keys.PublicKeyHex(&privKey.PublicKey)).Info("Created a new key")
		}

		p.Config.Key = privKey
	}

	p.Keyring = keys.NewKeyring(p.Config.Key)

	return nil
}

func (p *Peerd) initTransport() error {
	dial := relay.NewDialer(relay.DialerConfig{
		WampRealm:   p.Config.WampRealm,
		CallTimeout: p.Config.RequestTimeout,
		Inmem:       p.Config.Inmem,
	}, p.logger)

	p.Pool = relay.NewPool(p.Config.Relays, dial, p.Metrics, p.logger)

	return nil
}

func (p *Peerd) initCredit() error {
	trustConf, err := p.Config.TrustConfig()
	if err != nil {
		return err
	}

	var credit discovery.CreditFunc
	if p.Config.TrustCredit {
		credit = discovery.TrustCredit(p.Graph, trustConf)
	} else {
		limit, err := p.Config.FlatCreditLimit()
		if err != nil {
			return err
		}
		credit = discovery.FlatCredit(limit)
	}

	p.l.Lock()
	p.trustConf = trustConf
	p.credit = credit
	p.l.Unlock()

	return nil
}

func (p *Peerd) initRouter() error {
	if p.Router != nil {
		return nil
	}

	if p.Config.ConnectorURL == "" {
		p.logger.Debug("No connector configured, keeping routes in memory")
		p.Router = connector.NewInmemRouter()
		return nil
	}

	p.Router = connector.NewAdminClient(connector.AdminConfig{
		URL:     p.Config.ConnectorURL,
		Secret:  p.Config.ConnectorSecret,
		Subject: p.Keyring.PublicKey(),
		Timeout: p.Config.RequestTimeout,
	}, p.logger)

	return nil
}

func (p *Peerd) initResponder() {
	if !p.Config.Respond {
		return
	}

	if p.Config.ILPAddress == "" {
		p.logger.Warn("No ILP address configured, not answering payment setup requests")
		return
	}

	p.Responder = correlator.NewResponder(
		p.Pool,
		p.Keyring,
		correlator.AccountHandler(p.Config.ILPAddress, nil),
		nil,
		p.validators,
		p.logger,
	)
}

func (p *Peerd) initSequencer() error {
	var own *record.Record

	if adv := p.Config.Advertisement(); adv != nil {
		var err error
		if own, err = p.signedAdvertisement(adv); err != nil {
			return err
		}
	}

	p.Sequencer = bootstrap.New(
		p.Pool,
		p.Correlator,
		p.Router,
		bootstrap.Config{
			ILPAddress:       p.Config.ILPAddress,
			OwnAdvertisement: own,
			Pacing:           p.Config.BootstrapPacing,
			Validators:       p.validators,
		},
		p.Metrics,
		p.logger,
	)

	return nil
}

func (p *Peerd) initService() {
	if !p.Config.NoService && p.Config.ServiceAddr != "" {
		p.Service = service.NewService(p.Config.ServiceAddr, p, p.Metrics.Handler(), p.logger)
	}
}

// Init validates the configuration and builds every component.
func (p *Peerd) Init() error {
	p.logger = p.Config.Logger()

	if err := p.Config.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %v", err)
	}

	if err := p.initKey(); err != nil {
		return err
	}

	p.logger = p.logger.WithField("pubkey", p.Keyring.PublicKey())

	if p.Config.VerifySignatures {
		p.validators = []resolver.Validator{resolver.Verified}
	}

	p.Metrics = metrics.New("peerd")

	if err := p.initTransport(); err != nil {
		return err
	}

	p.Graph = graph.New(p.Pool, nil, p.validators, p.Metrics, p.logger)
	p.Discovery = discovery.New(p.Pool, p.Graph, nil, p.validators, p.Metrics, p.logger)

	if err := p.initCredit(); err != nil {
		return err
	}

	p.Correlator = correlator.New(p.Pool, p.Keyring, correlator.Config{
		Timeout:    p.Config.RequestTimeout,
		Validators: p.validators,
	}, p.Metrics, p.logger)

	if err := p.initRouter(); err != nil {
		return err
	}

	p.initResponder()

	if err := p.initSequencer(); err != nil {
		return err
	}

	p.initService()

	return nil
}

// Run bootstraps the agent from the seed list, publishes its own records,
// discovers the peers it follows and keeps routes in sync with advertisement
// updates until ctx is done.
func (p *Peerd) Run(ctx context.Context) error {
	if p.Service != nil {
		go p.Service.Serve()
	}

	if p.Responder != nil {
		if err := p.Responder.Start(ctx); err != nil {
			return err
		}
	}

	if err := p.Announce(ctx); err != nil {
		p.logger.WithError(err).Warn("Announcing failed")
	}

	seeds, err := bootstrap.NewJSONSeedList(p.Config.DataDir).Seeds()
	if err != nil {
		p.logger.WithError(err).Warn("Cannot read seed list")
	} else if len(seeds) > 0 {
		p.Bootstrap(ctx, seeds)
	}

	if _, err := p.Refresh(ctx); err != nil {
		p.logger.WithError(err).Warn("Discovery failed")
	}

	if err := p.watch(ctx); err != nil {
		p.logger.WithError(err).Warn("Cannot subscribe to advertisement updates")
	}

	<-ctx.Done()

	p.Shutdown()

	return nil
}

// Bootstrap joins the given seeds and remembers the secrets they handed out,
// which authenticate the agent on later route syncs.
func (p *Peerd) Bootstrap(ctx context.Context, seeds []bootstrap.Seed) []bootstrap.Result {
	results := p.Sequencer.Bootstrap(ctx, seeds)

	p.l.Lock()
	for _, res := range results {
		p.tokens[res.Seed.PubKey] = res.Response.SharedSecret
	}
	p.l.Unlock()

	return results
}

// withToken fills in the auth token obtained at bootstrap. p.l must be held.
func (p *Peerd) withToken(pc discovery.PeerConfig) discovery.PeerConfig {
	if pc.AuthToken == "" {
		pc.AuthToken = p.tokens[pc.ID]
	}
	return pc
}

// Announce publishes the advertisement of the agent and, when it answers
// payment setup requests, its static payment setup info.
func (p *Peerd) Announce(ctx context.Context) error {
	adv := p.Config.Advertisement()
	if adv == nil {
		return nil
	}

	rec, err := p.signedAdvertisement(adv)
	if err != nil {
		return err
	}

	if err := p.Pool.PublishAny(ctx, nil, rec); err != nil {
		return err
	}

	if p.Responder == nil {
		return nil
	}

	secret := make([]byte, 32)
	if _, err := rand.Read(secret); err != nil {
		return err
	}

	info, err := record.BuildPaymentSetupInfo(&record.PaymentSetupInfo{
		DestinationAccount: p.Config.ILPAddress,
		SharedSecret:       base64.StdEncoding.EncodeToString(secret),
	}, record.Now())
	if err != nil {
		return err
	}
	if err := p.Keyring.Sign(info); err != nil {
		return err
	}

	return p.Pool.PublishAny(ctx, nil, info)
}

func (p *Peerd) signedAdvertisement(adv *record.PeerAdvertisement) (*record.Record, error) {
	rec, err := record.BuildPeerAdvertisement(adv, record.Now())
	if err != nil {
		return nil, err
	}
	if err := p.Keyring.Sign(rec); err != nil {
		return nil, err
	}
	return rec, nil
}

// Refresh discovers the followed peers, computes their credit and registers
// them with the connector.
func (p *Peerd) Refresh(ctx context.Context) ([]discovery.PeerConfig, error) {
	p.l.RLock()
	credit := p.credit
	p.l.RUnlock()

	configs, err := p.Discovery.GetPeerConfigs(ctx, p.Keyring.PublicKey(), credit)
	if err != nil {
		return nil, err
	}

	p.l.Lock()
	p.peers = make(map[string]discovery.PeerConfig, len(configs))
	for i, pc := range configs {
		configs[i] = p.withToken(pc)
		p.peers[pc.ID] = configs[i]
	}
	p.l.Unlock()

	synced, err := discovery.SyncRoutes(ctx, p.Router, configs, p.logger)

	p.logger.WithFields(logrus.Fields{
		"peers":  len(configs),
		"synced": synced,
	}).Info("Refreshed peers")

	return configs, err
}

func (p *Peerd) watch(ctx context.Context) error {
	sub, err := p.Discovery.SubscribeToUpdates(ctx, p.Keyring.PublicKey(), func(peer discovery.Peer) {
		p.onUpdate(ctx, peer)
	})
	if err != nil {
		return err
	}

	p.l.Lock()
	old := p.updates
	p.updates = sub
	p.watchCtx = ctx
	p.l.Unlock()

	// Cancel waits for running handlers, which take p.l.
	if old != nil {
		old.Cancel()
	}

	return nil
}

// rewatch reopens the update subscription, if there is one, so that it
// filters on the current follows of the agent.
func (p *Peerd) rewatch() {
	p.l.RLock()
	ctx, active := p.watchCtx, p.updates != nil
	p.l.RUnlock()

	if !active || ctx.Err() != nil {
		return
	}

	if err := p.watch(ctx); err != nil {
		p.logger.WithError(err).Warn("Cannot resubscribe to advertisement updates")
	}
}

func (p *Peerd) onUpdate(ctx context.Context, peer discovery.Peer) {
	p.l.RLock()
	credit := p.credit
	p.l.RUnlock()

	c, err := credit(ctx, p.Keyring.PublicKey(), peer)
	if err != nil {
		p.logger.WithError(err).WithField("peer", peer.Identity).Warn("Computing credit failed")
		return
	}

	p.l.Lock()
	pc := p.withToken(discovery.NewPeerConfig(peer, c))
	p.peers[pc.ID] = pc
	p.l.Unlock()

	if _, err := discovery.SyncRoutes(ctx, p.Router, []discovery.PeerConfig{pc}, p.logger); err != nil {
		p.logger.WithError(err).WithField("peer", pc.ID).Warn("Syncing route failed")
	}
}

// Reload applies the credit settings of conf and drops every cached graph and
// advertisement so the next refresh sees them.
func (p *Peerd) Reload(conf *config.Config) error {
	p.Config.TrustCredit = conf.TrustCredit
	p.Config.FlatCredit = conf.FlatCredit
	p.Config.CreditFollowed = conf.CreditFollowed
	p.Config.CreditUnfollowed = conf.CreditUnfollowed
	p.Config.MutualFollowerBonus = conf.MutualFollowerBonus
	p.Config.MaxMutualFollowerBonus = conf.MaxMutualFollowerBonus
	p.Config.MaxCreditLimit = conf.MaxCreditLimit

	if err := p.initCredit(); err != nil {
		return err
	}

	p.Graph.Clear()
	p.Discovery.Clear()
	p.rewatch()

	p.logger.Info("Configuration reloaded")

	return nil
}

// Shutdown stops the subscriptions, the responder and the service, and closes
// the relay connections.
func (p *Peerd) Shutdown() {
	p.l.Lock()
	updates := p.updates
	p.updates = nil
	p.l.Unlock()

	if updates != nil {
		updates.Cancel()
	}

	if p.Responder != nil {
		p.Responder.Stop()
	}

	if p.Service != nil {
		if err := p.Service.Shutdown(context.Background()); err != nil {
			p.logger.WithError(err).Warn("Stopping service")
		}
	}

	p.Pool.Close()
}

// PubKey returns the identity of the agent.
func (p *Peerd) PubKey() string {
	return p.Keyring.PublicKey()
}

// Peers returns the peer configurations known to the agent, ordered by id.
func (p *Peerd) Peers() []discovery.PeerConfig {
	p.l.RLock()
	defer p.l.RUnlock()

	res := make([]discovery.PeerConfig, 0, len(p.peers))
	for _, pc := range p.peers {
		res = append(res, pc)
	}
	sort.Slice(res, func(i, j int) bool { return res[i].ID < res[j].ID })

	return res
}

// Trust computes the trust score of subject from the agent's point of view.
func (p *Peerd) Trust(ctx context.Context, subject string) (*graph.TrustScore, error) {
	p.l.RLock()
	conf := p.trustConf
	p.l.RUnlock()

	return p.Graph.ComputeTrust(ctx, p.Keyring.PublicKey(), subject, conf)
}

// Followers returns the identities whose latest follow-list includes identity.
func (p *Peerd) Followers(ctx context.Context, identity string) ([]string, error) {
	followers, err := p.Graph.Followers(ctx, identity)
	if err != nil {
		return nil, err
	}
	return followers.Sorted(), nil
}

// Invalidate drops what is cached about identity. Invalidating the agent's
// own identity also reopens the update subscription on its current follows.
func (p *Peerd) Invalidate(identity string) {
	p.Graph.Invalidate(identity)
	if identity == p.Keyring.PublicKey() {
		p.rewatch()
	}
}

// Keygen creates a new key in datadir. It refuses to overwrite an existing
// key.
func Keygen(datadir string) (*ecdsa.PrivateKey, error) {
	keyfile := keys.NewSimpleKeyfile(filepath.Join(datadir, config.DefaultKeyfile))

	if _, err := keyfile.ReadKey(); err == nil {
		return nil, fmt.Errorf("another key already lives under %s", datadir)
	}

	privKey, err := keys.GenerateKey()
	if err != nil {
		return nil, err
	}

	if err := keyfile.WriteKey(privKey); err != nil {
		return nil, err
	}

	return privKey, nil
}
