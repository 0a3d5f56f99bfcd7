// Package record defines the signed records exchanged on the event network and
// the payloads peerd builds and parses.
//
// A Record is a Nostr event: an author identity, a kind, a creation timestamp,
// an ordered list of tags and a content string, bound together by an id and a
// schnorr signature. Records are immutable once observed.
//
// Kinds fall into two classes. Replaceable kinds (follow-list, peer
// advertisement, static payment-setup info) only have one authoritative record
// per author: the newest one. Correlated kinds (payment-setup request and
// response) are one-shot encrypted messages tied together by a request id
// carried inside the encrypted payload.
//
// Parse functions are pure. They reject the wrong kind, content that is not a
// JSON object, missing required fields and fields of the wrong primitive type,
// and they ignore unknown fields and tags. Optional fields that are absent on
// the wire stay absent (nil) after parsing.
package record
