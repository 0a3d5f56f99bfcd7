package relay

// WAMP relay procedures and topic. A record travels as the JSON encoding of
// the event, a query filter as the JSON encoding of the filter.
const (
	WampProcPublish = "io.peerd.relay.publish"
	WampProcQuery   = "io.peerd.relay.query"
	WampTopic       = "io.peerd.relay.records"

	// ErrWampRejected is the error URI returned for invalid records or
	// filters.
	ErrWampRejected = "io.peerd.relay.rejected"
)

// DefaultWampRealm is the realm the dev relay serves when none is configured.
const DefaultWampRealm = "peerd"
