package relay

import (
	"context"
	"sync"

	"github.com/nbd-wtf/go-nostr"
	"github.com/nostrpay/peerd/src/record"
	"github.com/sirupsen/logrus"
)

// NostrEndpoint is a connection to a nostr relay over websockets.
type NostrEndpoint struct {
	url    string
	relay  *nostr.Relay
	logger *logrus.Entry
}

// DialNostr connects to the nostr relay at url.
func DialNostr(ctx context.Context, url string, logger *logrus.Entry) (*NostrEndpoint, error) {
	r, err := nostr.RelayConnect(ctx, url)
	if err != nil {
		return nil, err
	}
	return &NostrEndpoint{
		url:    url,
		relay:  r,
		logger: logger.WithField("relay", url),
	}, nil
}

func (e *NostrEndpoint) URL() string {
	return e.url
}

// Query waits for the relay to signal the end of stored records.
func (e *NostrEndpoint) Query(ctx context.Context, filter record.Filter) ([]*record.Record, error) {
	return e.relay.QuerySync(ctx, filter)
}

func (e *NostrEndpoint) Publish(ctx context.Context, rec *record.Record) error {
	return e.relay.Publish(ctx, *rec)
}

func (e *NostrEndpoint) Subscribe(ctx context.Context, filters record.Filters, h Handler) (Subscription, error) {
	subCtx, cancel := context.WithCancel(ctx)

	sub, err := e.relay.Subscribe(subCtx, filters)
	if err != nil {
		cancel()
		return nil, err
	}

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for {
			select {
			case ev, ok := <-sub.Events:
				if !ok {
					return
				}
				h(ev)
			case <-subCtx.Done():
				return
			}
		}
	}()

	return newCancelFunc(func() {
		sub.Unsub()
		cancel()
		wg.Wait()
	}), nil
}

func (e *NostrEndpoint) Close() error {
	return e.relay.Close()
}
