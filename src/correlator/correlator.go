// Package correlator conducts encrypted payment setup exchanges over the
// event network.
//
// A Correlator publishes an encrypted request addressed to a peer and waits
// for the first response that decrypts, parses and carries the request id.
// Responses that fail any of these checks are discarded without disturbing
// the wait. The exchange ends exactly once, either resolved or timed out, and
// both the subscription and the timer are torn down on whichever path ends it.
//
// The Responder is the other side of the exchange.
package correlator

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/nostrpay/peerd/src/common"
	"github.com/nostrpay/peerd/src/crypto/keys"
	"github.com/nostrpay/peerd/src/metrics"
	"github.com/nostrpay/peerd/src/record"
	"github.com/nostrpay/peerd/src/relay"
	"github.com/nostrpay/peerd/src/resolver"
	"github.com/sirupsen/logrus"
)

// DefaultTimeout is the deadline of an exchange when none is configured.
const DefaultTimeout = 10 * time.Second

// responseWindow is how far back in time the response subscription reaches,
// to tolerate clock skew between peers.
const responseWindow = 60

// Transport is the part of the relay pool the correlator needs.
type Transport interface {
	QueryAll(ctx context.Context, urls []string, filter record.Filter) ([]*record.Record, error)
	PublishAny(ctx context.Context, urls []string, rec *record.Record) error
	Subscribe(ctx context.Context, urls []string, filter record.Filter, h relay.Handler) (relay.Subscription, error)
}

// Crypto is the local key material.
type Crypto interface {
	PublicKey() string
	Sign(rec *record.Record) error
	Encrypt(peer string, plaintext string) (string, error)
	Decrypt(peer string, ciphertext string) (string, error)
}

// Config holds the settings of a Correlator.
type Config struct {
	Timeout      time.Duration
	Validators   []resolver.Validator
	TimerFactory TimerFactory
	NewRequestID func() string
}

// Correlator runs payment setup exchanges on behalf of the local agent.
type Correlator struct {
	transport    Transport
	crypto       Crypto
	timeout      time.Duration
	validators   []resolver.Validator
	timerFactory TimerFactory
	newRequestID func() string
	metrics      *metrics.Metrics
	logger       *logrus.Entry
}

// New creates a Correlator.
func New(transport Transport, crypto Crypto, conf Config, m *metrics.Metrics, logger *logrus.Entry) *Correlator {
	c := &Correlator{
		transport:    transport,
		crypto:       crypto,
		timeout:      conf.Timeout,
		validators:   conf.Validators,
		timerFactory: conf.TimerFactory,
		newRequestID: conf.NewRequestID,
		metrics:      m,
		logger:       logger.WithField("component", "correlator"),
	}
	if c.timeout <= 0 {
		c.timeout = DefaultTimeout
	}
	if c.timerFactory == nil {
		c.timerFactory = NewTimer
	}
	if c.newRequestID == nil {
		c.newRequestID = func() string { return uuid.New().String() }
	}
	return c
}

// Timeout returns the deadline applied to exchanges.
func (c *Correlator) Timeout() time.Duration {
	return c.timeout
}

// Request sends req to recipient through relays, or the transport's default
// relays if relays is nil, and waits for the matching response. A missing
// request id is generated, as is a missing timestamp.
//
// It fails with TransportFailure if no relay accepted the request and with
// CorrelationTimeout if no valid response arrived in time.
func (c *Correlator) Request(ctx context.Context,
	recipient string,
	req record.PaymentSetupRequest,
	relays []string) (*record.PaymentSetupResponse, error) {

	if err := keys.ValidatePublicKeyHex(recipient); err != nil {
		return nil, err
	}

	if req.RequestID == "" {
		req.RequestID = c.newRequestID()
	}
	if req.Timestamp == 0 {
		req.Timestamp = time.Now().Unix()
	}

	plaintext, err := record.EncodeRequest(&req)
	if err != nil {
		return nil, err
	}

	ciphertext, err := c.crypto.Encrypt(recipient, plaintext)
	if err != nil {
		return nil, err
	}

	now := record.Now()
	rec := record.BuildRequestRecord(ciphertext, recipient, now)
	if err := c.crypto.Sign(rec); err != nil {
		return nil, err
	}

	p := &pending{
		requestID: req.RequestID,
		recipient: recipient,
		deadline:  time.Now().Add(c.timeout),
		state:     Built,
	}

	logger := c.logger.WithFields(logrus.Fields{
		"request_id": req.RequestID,
		"recipient":  recipient,
	})

	matchCh := make(chan *record.PaymentSetupResponse, 1)

	subCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	since := now - responseWindow
	sub, err := c.transport.Subscribe(subCtx, relays, record.Filter{
		Kinds:   []int{record.KindPaymentSetupResponse},
		Authors: []string{recipient},
		Tags:    record.TagMap{"p": []string{c.crypto.PublicKey()}},
		Since:   &since,
	}, func(candidate *record.Record) {
		if p.done() {
			return
		}
		resp, err := c.match(p, candidate)
		if err != nil {
			c.metrics.Correlation(metrics.OutcomeDiscarded)
			logger.WithError(err).WithField("response", candidate.ID).Debug("Discarding response")
			return
		}
		select {
		case matchCh <- resp:
		default:
		}
	})
	if err != nil {
		c.metrics.Correlation(metrics.OutcomeTransport)
		return nil, err
	}

	timer := c.timerFactory(c.timeout)
	p.teardown = func() {
		timer.Stop()
		sub.Cancel()
	}

	if err := c.transport.PublishAny(ctx, relays, rec); err != nil {
		p.finish(Failed)
		c.metrics.Correlation(metrics.OutcomeTransport)
		logger.WithError(err).Debug("Publishing request failed")
		return nil, err
	}
	p.setState(Published)
	logger.WithField("record", rec.ID).Debug("Request published")

	select {
	case resp := <-matchCh:
		p.finish(Resolved)
		c.metrics.Correlation(metrics.OutcomeResolved)
		logger.Debug("Request resolved")
		return resp, nil
	case <-timer.C():
		p.finish(TimedOut)
		c.metrics.Correlation(metrics.OutcomeTimeout)
		logger.Debug("Request timed out")
		return nil, common.Errorf("correlator", common.CorrelationTimeout, req.RequestID,
			"no response from %s within %s", recipient, c.timeout)
	case <-ctx.Done():
		p.finish(Failed)
		return nil, ctx.Err()
	}
}

// match checks that candidate answers the pending request.
func (c *Correlator) match(p *pending, candidate *record.Record) (*record.PaymentSetupResponse, error) {
	if candidate.Kind != record.KindPaymentSetupResponse || candidate.PubKey != p.recipient {
		return nil, common.Errorf("correlator", common.InvalidRecord, candidate.ID, "unexpected kind or author")
	}
	for _, v := range c.validators {
		if err := v(candidate); err != nil {
			return nil, err
		}
	}

	plaintext, err := c.crypto.Decrypt(candidate.PubKey, candidate.Content)
	if err != nil {
		return nil, common.NewError("correlator", common.InvalidRecord, candidate.ID, err)
	}

	resp, err := record.DecodeResponse(plaintext)
	if err != nil {
		return nil, err
	}

	if resp.RequestID != p.requestID {
		return nil, common.Errorf("correlator", common.InvalidRecord, candidate.ID,
			"request id %q does not match", resp.RequestID)
	}

	return resp, nil
}

// StaticInfo returns the payment setup parameters recipient published ahead of
// time, without a round trip. It fails with NotFound when recipient has no
// valid payment-setup-static record.
func (c *Correlator) StaticInfo(ctx context.Context, recipient string, relays []string) (*record.PaymentSetupInfo, error) {
	if err := keys.ValidatePublicKeyHex(recipient); err != nil {
		return nil, err
	}

	records, err := c.transport.QueryAll(ctx, relays, record.Filter{
		Kinds:   []int{record.KindPaymentSetupInfo},
		Authors: []string{recipient},
	})
	if err != nil {
		return nil, err
	}

	validators := append([]resolver.Validator{record.ValidPaymentSetupInfo}, c.validators...)
	key := resolver.Key{Author: recipient, Kind: record.KindPaymentSetupInfo}
	latest := resolver.ResolveLatest(key, records, validators...)
	if latest == nil {
		return nil, common.Errorf("correlator", common.NotFound, recipient, "no payment setup info")
	}

	return record.ParsePaymentSetupInfo(latest)
}
