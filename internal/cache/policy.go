package cache

import "fmt"

type (
	// FetchPolicy says how a query uses the cache
	FetchPolicy int

	// MergeRule says how an authoritative result is matched when an optimistic layer settles
	MergeRule int
)

const (
	CacheFirst  FetchPolicy = iota // use the cache if it has a complete result, else fetch
	NetworkOnly                    // always fetch, ignoring any cached result
	CacheOnly                      // never fetch
)

const (
	ByEntity MergeRule = iota // match by typename and id, so the write lands on the root entity
	ByLayer                   // match by layer, so the write lands in the layer and leaves with it
)

var policyNames = [...]string{CacheFirst: "cache-first", NetworkOnly: "network-only", CacheOnly: "cache-only"}

func (p FetchPolicy) String() string {
	if p < 0 || int(p) >= len(policyNames) {
		return fmt.Sprintf("FetchPolicy(%d)", int(p))
	}
	return policyNames[p]
}

// ParseFetchPolicy converts a name such as "network-only" to a FetchPolicy
func ParseFetchPolicy(s string) (FetchPolicy, error) {
	for i, name := range policyNames {
		if s == name {
			return FetchPolicy(i), nil
		}
	}
	return CacheFirst, fmt.Errorf("unknown fetch policy %q", s)
}

func (r MergeRule) String() string {
	switch r {
	case ByEntity:
		return "by-entity"
	case ByLayer:
		return "by-layer"
	}
	return fmt.Sprintf("MergeRule(%d)", int(r))
}

// RuleFor gives the merge rule used when an optimistic layer settles.  An authoritative result
// that touches a network-owned entity is matched by layer, so it is discarded with the layer and
// the root entity keeps the value the network-only fetch wrote.  Every other case matches by entity.
func RuleFor(networkOwned, optimistic bool) MergeRule {
	if networkOwned && optimistic {
		return ByLayer
	}
	return ByEntity
}
