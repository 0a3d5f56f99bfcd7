// Package graph derives follow relationships and trust from follow-list
// records.
//
// The follows of an identity are the targets of its latest follow-list. Trust
// of a subject, from the point of view of self, is a credit limit built from
// three facts: whether self follows the subject, whether the subject follows
// self back, and how many identities both of them follow. Credit arithmetic is
// done on big integers.
//
// Follow sets, follower sets and trust scores are memoised per identity and
// only forgotten through Invalidate or Clear.
package graph
