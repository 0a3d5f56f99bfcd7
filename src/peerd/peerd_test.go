package peerd

import (
	"context"
	"io/ioutil"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/nostrpay/peerd/src/bootstrap"
	"github.com/nostrpay/peerd/src/config"
	"github.com/nostrpay/peerd/src/connector"
	"github.com/nostrpay/peerd/src/crypto/keys"
	"github.com/nostrpay/peerd/src/record"
	"github.com/nostrpay/peerd/src/relay"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const relayURL = "inmem://r1"

type agent struct {
	*Peerd
	router *connector.InmemRouter
	cancel context.CancelFunc
	done   chan struct{}
}

func newAgent(t *testing.T, network *relay.InmemNetwork, ilp string) *agent {
	dir, err := ioutil.TempDir("", "peerd")
	require.NoError(t, err)
	t.Cleanup(func() { os.RemoveAll(dir) })

	conf := config.NewTestConfig(t, logrus.DebugLevel)
	conf.SetDataDir(dir)
	conf.Relays = []string{relayURL}
	conf.Inmem = network
	conf.NoService = true
	conf.BootstrapPacing = 0
	conf.RequestTimeout = 5 * time.Second
	if ilp != "" {
		conf.ILPAddress = ilp
		conf.BTPEndpoint = "btp+ws://" + ilp
	}

	router := connector.NewInmemRouter()
	p := NewPeerd(conf)
	p.Router = router

	require.NoError(t, p.Init())

	return &agent{Peerd: p, router: router}
}

func (a *agent) start() {
	ctx, cancel := context.WithCancel(context.Background())
	a.cancel = cancel
	a.done = make(chan struct{})
	go func() {
		defer close(a.done)
		a.Run(ctx)
	}()
}

func (a *agent) stop(t *testing.T) {
	a.cancel()
	select {
	case <-a.done:
	case <-time.After(5 * time.Second):
		t.Fatal("agent did not stop")
	}
}

func hasRecord(r *relay.InmemRelay, author string, kind int) bool {
	for _, rec := range r.Records() {
		if rec.PubKey == author && rec.Kind == kind {
			return true
		}
	}
	return false
}

func TestInitGeneratesKey(t *testing.T) {
	a := newAgent(t, relay.NewInmemNetwork(), "")

	assert.NoError(t, keys.ValidatePublicKeyHex(a.PubKey()))
	assert.FileExists(t, a.Config.Keyfile())
	assert.Nil(t, a.Responder)
	assert.Nil(t, a.Service)

	_, err := Keygen(a.Config.DataDir)
	assert.Error(t, err)
}

func TestInitRejectsInvalidConfig(t *testing.T) {
	conf := config.NewTestConfig(t, logrus.DebugLevel)
	conf.SetDataDir(filepath.Join(os.TempDir(), "peerd-invalid"))
	conf.Relays = nil

	assert.Error(t, NewPeerd(conf).Init())
}

func TestAnnounce(t *testing.T) {
	network := relay.NewInmemNetwork()
	a := newAgent(t, network, "g.alice")
	defer a.Shutdown()

	require.NoError(t, a.Announce(context.Background()))

	r := network.Relay(relayURL)
	assert.True(t, hasRecord(r, a.PubKey(), record.KindPeerAdvertisement))
	assert.True(t, hasRecord(r, a.PubKey(), record.KindPaymentSetupInfo))

	info, err := a.Correlator.StaticInfo(context.Background(), a.PubKey(), nil)
	require.NoError(t, err)
	assert.Equal(t, "g.alice", info.DestinationAccount)
}

func TestRunBootstrapsAndDiscovers(t *testing.T) {
	network := relay.NewInmemNetwork()
	r := network.Relay(relayURL)

	bob := newAgent(t, network, "g.bob")
	bob.start()
	defer bob.stop(t)

	require.Eventually(t, func() bool {
		return hasRecord(r, bob.PubKey(), record.KindPeerAdvertisement)
	}, 5*time.Second, 10*time.Millisecond)

	alice := newAgent(t, network, "g.alice")

	follows := record.BuildFollowList([]record.FollowEdge{{To: bob.PubKey()}}, record.Now())
	require.NoError(t, alice.Keyring.Sign(follows))
	r.Store(follows)

	seeds := bootstrap.NewJSONSeedList(alice.Config.DataDir)
	require.NoError(t, seeds.Write([]bootstrap.Seed{{PubKey: bob.PubKey(), Relay: relayURL}}))

	alice.start()
	defer alice.stop(t)

	require.Eventually(t, func() bool {
		return len(alice.Peers()) == 1
	}, 5*time.Second, 10*time.Millisecond)

	peer, ok := alice.router.Peer(bob.PubKey())
	require.True(t, ok)
	assert.Equal(t, "btp+ws://g.bob", peer.Endpoint)
	assert.NotEmpty(t, peer.AuthToken)

	routes := alice.router.Routes()
	require.Len(t, routes, 1)
	assert.Equal(t, "g.bob", routes[0].Prefix)
	assert.Equal(t, bob.PubKey(), routes[0].NextHop)

	pc := alice.Peers()[0]
	assert.Equal(t, int64(1000), pc.CreditLimit.Int64())
	assert.Equal(t, peer.AuthToken, pc.AuthToken)

	// An advertisement update reaches the router.
	require.Eventually(t, func() bool {
		alice.l.RLock()
		defer alice.l.RUnlock()
		return alice.updates != nil
	}, 5*time.Second, 10*time.Millisecond)

	update, err := record.BuildPeerAdvertisement(&record.PeerAdvertisement{
		ILPAddress:  "g.bob",
		BTPEndpoint: "btp+ws://bob.moved",
	}, record.Now()+1)
	require.NoError(t, err)
	require.NoError(t, bob.Keyring.Sign(update))
	require.NoError(t, bob.Pool.PublishAny(context.Background(), nil, update))

	require.Eventually(t, func() bool {
		p, _ := alice.router.Peer(bob.PubKey())
		return p.Endpoint == "btp+ws://bob.moved"
	}, 5*time.Second, 10*time.Millisecond)
}

func TestWatchFollowsNewFollowList(t *testing.T) {
	network := relay.NewInmemNetwork()
	r := network.Relay(relayURL)

	bob := newAgent(t, network, "g.bob")
	bob.start()
	defer bob.stop(t)

	alice := newAgent(t, network, "g.alice")
	alice.start()
	defer alice.stop(t)

	require.Eventually(t, func() bool {
		alice.l.RLock()
		defer alice.l.RUnlock()
		return alice.updates != nil
	}, 5*time.Second, 10*time.Millisecond)

	alice.l.RLock()
	first := alice.updates
	alice.l.RUnlock()

	follows := record.BuildFollowList([]record.FollowEdge{{To: bob.PubKey()}}, record.Now())
	require.NoError(t, alice.Keyring.Sign(follows))
	r.Store(follows)

	alice.Invalidate(alice.PubKey())

	alice.l.RLock()
	assert.False(t, first == alice.updates, "subscription should be reopened")
	alice.l.RUnlock()

	update, err := record.BuildPeerAdvertisement(&record.PeerAdvertisement{
		ILPAddress:  "g.bob",
		BTPEndpoint: "btp+ws://bob.new",
	}, record.Now()+1)
	require.NoError(t, err)
	require.NoError(t, bob.Keyring.Sign(update))
	require.NoError(t, bob.Pool.PublishAny(context.Background(), nil, update))

	require.Eventually(t, func() bool {
		p, ok := alice.router.Peer(bob.PubKey())
		return ok && p.Endpoint == "btp+ws://bob.new"
	}, 5*time.Second, 10*time.Millisecond)
}

func TestTrustAndFollowers(t *testing.T) {
	network := relay.NewInmemNetwork()
	r := network.Relay(relayURL)

	alice := newAgent(t, network, "")
	defer alice.Shutdown()

	bob, err := keys.GenerateKeyring()
	require.NoError(t, err)

	aliceFollows := record.BuildFollowList([]record.FollowEdge{{To: bob.PublicKey()}}, record.Now())
	require.NoError(t, alice.Keyring.Sign(aliceFollows))
	bobFollows := record.BuildFollowList([]record.FollowEdge{{To: alice.PubKey()}}, record.Now())
	require.NoError(t, bob.Sign(bobFollows))
	r.Store(aliceFollows, bobFollows)

	score, err := alice.Trust(context.Background(), bob.PublicKey())
	require.NoError(t, err)
	assert.True(t, score.IsFollowed)
	assert.True(t, score.FollowsBack)
	assert.Equal(t, int64(1500), score.CreditLimit.Int64())
	assert.Equal(t, 15, score.Score)

	followers, err := alice.Followers(context.Background(), alice.PubKey())
	require.NoError(t, err)
	assert.Equal(t, []string{bob.PublicKey()}, followers)

	alice.Invalidate(bob.PublicKey())
	_, trust := alice.Graph.Cached()
	assert.Equal(t, 0, trust)
}

func TestReloadSwitchesCredit(t *testing.T) {
	a := newAgent(t, relay.NewInmemNetwork(), "")
	defer a.Shutdown()

	conf := config.NewDefaultConfig()
	conf.TrustCredit = true
	conf.MaxCreditLimit = "50"
	require.NoError(t, a.Reload(conf))

	assert.True(t, a.Config.TrustCredit)
	assert.Equal(t, int64(50), a.trustConf.MaxCreditLimit.Int64())

	conf.FlatCredit = "lots"
	conf.TrustCredit = false
	assert.Error(t, a.Reload(conf))
}
