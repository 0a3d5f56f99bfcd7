package record

import (
	"github.com/nostrpay/peerd/src/crypto/keys"
)

// FollowEdge is a directed follow relationship extracted from a follow-list.
// RelayHint and Label are empty when absent.
type FollowEdge struct {
	From      string
	To        string
	RelayHint string
	Label     string
}

// BuildFollowList returns an unsigned follow-list record with one p tag per
// edge. The From field of the edges is ignored: the author is whoever signs.
func BuildFollowList(edges []FollowEdge, createdAt Timestamp) *Record {
	tags := make(Tags, 0, len(edges))
	for _, e := range edges {
		tag := Tag{"p", e.To}
		switch {
		case e.Label != "":
			tag = append(tag, e.RelayHint, e.Label)
		case e.RelayHint != "":
			tag = append(tag, e.RelayHint)
		}
		tags = append(tags, tag)
	}
	return &Record{
		CreatedAt: createdAt,
		Kind:      KindFollowList,
		Tags:      tags,
		Content:   "",
	}
}

// ParseFollowList extracts the edges of a follow-list. Tags other than p, and
// p tags that do not name a valid identity, are skipped.
func ParseFollowList(rec *Record) ([]FollowEdge, error) {
	if err := checkKind(rec, KindFollowList); err != nil {
		return nil, err
	}

	edges := []FollowEdge{}
	for _, t := range rec.Tags {
		if len(t) < 2 || t[0] != "p" {
			continue
		}
		if keys.ValidatePublicKeyHex(t[1]) != nil {
			continue
		}
		e := FollowEdge{From: rec.PubKey, To: t[1]}
		if len(t) > 2 {
			e.RelayHint = t[2]
		}
		if len(t) > 3 {
			e.Label = t[3]
		}
		edges = append(edges, e)
	}

	return edges, nil
}

// ValidFollowList is a resolver validator for follow-list records.
func ValidFollowList(rec *Record) error {
	_, err := ParseFollowList(rec)
	return err
}

// Targets returns the deduplicated set of identities the edges point to.
func Targets(edges []FollowEdge) map[string]struct{} {
	res := make(map[string]struct{}, len(edges))
	for _, e := range edges {
		res[e.To] = struct{}{}
	}
	return res
}
