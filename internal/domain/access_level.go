package domain

// AccessLevelOrder is a total order over access levels, used by conflict
// resolution: when two facts in one run disagree, the most-privileged level
// wins. The order is supplied by configuration; DefaultAccessLevelOrder
// matches the classic none < read < write < admin ladder.
type AccessLevelOrder struct {
	rank map[string]int
}

// DefaultAccessLevelOrder returns the built-in ordering.
func DefaultAccessLevelOrder() AccessLevelOrder {
	return NewAccessLevelOrder([]string{"none", "read", "write", "admin"})
}

// NewAccessLevelOrder builds an order from least to most privileged.
func NewAccessLevelOrder(levels []string) AccessLevelOrder {
	rank := make(map[string]int, len(levels))
	for i, l := range levels {
		rank[l] = i
	}
	return AccessLevelOrder{rank: rank}
}

// Rank returns the privilege rank of a level. Unknown levels rank below
// every configured level so they never win a conflict on privilege alone.
func (o AccessLevelOrder) Rank(level string) int {
	if r, ok := o.rank[level]; ok {
		return r
	}
	return -1
}

// MorePrivileged reports whether a outranks b.
func (o AccessLevelOrder) MorePrivileged(a, b string) bool {
	return o.Rank(a) > o.Rank(b)
}

// Known reports whether the level appears in the configured order.
func (o AccessLevelOrder) Known(level string) bool {
	_, ok := o.rank[level]
	return ok
}
