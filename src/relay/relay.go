// Package relay implements the transport peerd uses to reach the event
// network: a set of independent relays, each able to store records, answer
// filtered queries and push matching records to live subscribers.
//
// Endpoint abstracts a single relay. Three backends are provided: nostr
// websocket relays (ws:// and wss:// URLs), WAMP relays served by the
// companion dev relay (wamp:// and wamps:// URLs), and in-memory relays
// (inmem:// URLs) used by tests.
//
// Pool fans operations out over several endpoints. Queries are best effort,
// publishing succeeds as soon as one relay accepts the record, and
// subscriptions are cancellable handles whose cancellation is idempotent and
// synchronous.
package relay

import (
	"context"

	"github.com/nostrpay/peerd/src/record"
)

// Handler receives records pushed by a subscription.
type Handler func(*record.Record)

// Endpoint is a connection to a single relay.
type Endpoint interface {
	// URL returns the address of the relay.
	URL() string

	// Query returns the stored records matching filter.
	Query(ctx context.Context, filter record.Filter) ([]*record.Record, error)

	// Publish returns once the relay has accepted rec.
	Publish(ctx context.Context, rec *record.Record) error

	// Subscribe calls h for every record matching filters until the returned
	// Subscription is cancelled.
	Subscribe(ctx context.Context, filters record.Filters, h Handler) (Subscription, error)

	// Close releases the connection.
	Close() error
}

// Subscription is a handle on a live filter.
type Subscription interface {
	// Cancel stops delivery. It may be called any number of times; once it
	// returns the handler is not invoked again. It must not be called from
	// within the handler.
	Cancel()
}

// Dialer opens a connection to the relay at url.
type Dialer func(ctx context.Context, url string) (Endpoint, error)
