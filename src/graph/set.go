package graph

import "sort"

// Set is a set of identities.
type Set map[string]struct{}

// NewSet returns a set holding ids.
func NewSet(ids ...string) Set {
	s := make(Set, len(ids))
	for _, id := range ids {
		s[id] = struct{}{}
	}
	return s
}

// Has reports whether id belongs to the set.
func (s Set) Has(id string) bool {
	_, ok := s[id]
	return ok
}

// Intersect returns the number of identities s and o have in common.
func (s Set) Intersect(o Set) int {
	small, large := s, o
	if len(o) < len(s) {
		small, large = o, s
	}
	n := 0
	for id := range small {
		if large.Has(id) {
			n++
		}
	}
	return n
}

// Sorted returns the identities in lexicographic order.
func (s Set) Sorted() []string {
	res := make([]string, 0, len(s))
	for id := range s {
		res = append(res, id)
	}
	sort.Strings(res)
	return res
}
