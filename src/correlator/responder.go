package correlator

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"sync"
	"time"

	"github.com/nostrpay/peerd/src/common"
	"github.com/nostrpay/peerd/src/record"
	"github.com/nostrpay/peerd/src/relay"
	"github.com/nostrpay/peerd/src/resolver"
	cache "github.com/patrickmn/go-cache"
	"github.com/sirupsen/logrus"
)

// Requests are remembered for this long to drop replays.
const (
	answeredExpiration = 10 * time.Minute
	answeredCleanup    = 5 * time.Minute
)

// HandlerFunc produces the response to a payment setup request sent by
// requester. The request id of the response is filled in by the Responder.
type HandlerFunc func(ctx context.Context, requester string, req *record.PaymentSetupRequest) (*record.PaymentSetupResponse, error)

// Responder answers the payment setup requests addressed to the local agent.
type Responder struct {
	transport  Transport
	crypto     Crypto
	handler    HandlerFunc
	relays     []string
	validators []resolver.Validator
	answered   *cache.Cache
	logger     *logrus.Entry

	l   sync.Mutex
	sub relay.Subscription
	ctx context.Context
	wg  sync.WaitGroup
}

// NewResponder creates a Responder listening on relays, or the transport's
// defaults if relays is nil.
func NewResponder(transport Transport,
	crypto Crypto,
	handler HandlerFunc,
	relays []string,
	validators []resolver.Validator,
	logger *logrus.Entry) *Responder {

	return &Responder{
		transport:  transport,
		crypto:     crypto,
		handler:    handler,
		relays:     relays,
		validators: validators,
		answered:   cache.New(answeredExpiration, answeredCleanup),
		logger:     logger.WithField("component", "responder"),
	}
}

// Start subscribes to incoming requests. Requests are handled concurrently.
func (r *Responder) Start(ctx context.Context) error {
	r.l.Lock()
	defer r.l.Unlock()

	if r.sub != nil {
		return nil
	}

	since := record.Now() - responseWindow
	sub, err := r.transport.Subscribe(ctx, r.relays, record.Filter{
		Kinds: []int{record.KindPaymentSetupRequest},
		Tags:  record.TagMap{"p": []string{r.crypto.PublicKey()}},
		Since: &since,
	}, r.onRequest)
	if err != nil {
		return err
	}

	r.sub = sub
	r.ctx = ctx
	r.logger.Debug("Listening for payment setup requests")
	return nil
}

// Stop cancels the subscription and waits for in-flight requests.
func (r *Responder) Stop() {
	r.l.Lock()
	sub := r.sub
	r.sub = nil
	r.l.Unlock()

	if sub != nil {
		sub.Cancel()
	}
	r.wg.Wait()
}

func (r *Responder) onRequest(rec *record.Record) {
	if err := r.answered.Add(rec.ID, struct{}{}, cache.DefaultExpiration); err != nil {
		return
	}

	r.l.Lock()
	ctx := r.ctx
	r.l.Unlock()

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		if err := r.answer(ctx, rec); err != nil {
			r.logger.WithError(err).WithFields(logrus.Fields{
				"request":   rec.ID,
				"requester": rec.PubKey,
			}).Debug("Request not answered")
		}
	}()
}

func (r *Responder) answer(ctx context.Context, rec *record.Record) error {
	for _, v := range r.validators {
		if err := v(rec); err != nil {
			return err
		}
	}

	plaintext, err := r.crypto.Decrypt(rec.PubKey, rec.Content)
	if err != nil {
		return common.NewError("responder", common.InvalidRecord, rec.ID, err)
	}

	req, err := record.DecodeRequest(plaintext)
	if err != nil {
		return err
	}

	resp, err := r.handler(ctx, rec.PubKey, req)
	if err != nil {
		return err
	}
	resp.RequestID = req.RequestID

	out, err := record.EncodeResponse(resp)
	if err != nil {
		return err
	}

	ciphertext, err := r.crypto.Encrypt(rec.PubKey, out)
	if err != nil {
		return err
	}

	reply := record.BuildResponseRecord(ciphertext, rec.PubKey, rec.ID, record.Now())
	if err := r.crypto.Sign(reply); err != nil {
		return err
	}

	if err := r.transport.PublishAny(ctx, r.relays, reply); err != nil {
		return err
	}

	r.logger.WithFields(logrus.Fields{
		"request_id": req.RequestID,
		"requester":  rec.PubKey,
	}).Debug("Answered payment setup request")

	return nil
}

// AccountHandler answers every request with a fresh destination account under
// ilpAddress and a random shared secret.
func AccountHandler(ilpAddress string, settlement *record.Settlement) HandlerFunc {
	return func(ctx context.Context, requester string, req *record.PaymentSetupRequest) (*record.PaymentSetupResponse, error) {
		secret := make([]byte, 32)
		if _, err := rand.Read(secret); err != nil {
			return nil, err
		}

		suffix := req.RequestID
		if len(suffix) > 8 {
			suffix = suffix[:8]
		}

		return &record.PaymentSetupResponse{
			DestinationAccount: fmt.Sprintf("%s.%s", ilpAddress, suffix),
			SharedSecret:       base64.StdEncoding.EncodeToString(secret),
			Settlement:         settlement,
		}, nil
	}
}
