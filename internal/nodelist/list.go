// Package nodelist implements the ordered, bounded peer list used both as
// the successor list and the finger list in the stabilization core.
package nodelist

import "github.com/ringkeeper/chordkeep/internal/peer"

// List is an ordered sequence of peer addresses, nearest first. It is a
// pure value type: every mutator returns a new List and leaves its receiver
// untouched, mirroring the functional style the rest of the core favors.
type List struct {
	items []peer.Address
}

// Of builds a List from the given addresses, deduplicating by ID and
// preserving the given order (assumed to already be nearest-first).
func Of(addrs ...peer.Address) List {
	l := List{items: make([]peer.Address, 0, len(addrs))}
	for _, a := range addrs {
		l = l.Append(a)
	}
	return l
}

// Len returns the number of entries.
func (l List) Len() int { return len(l.items) }

// Slice returns a defensive copy of the underlying addresses.
func (l List) Slice() []peer.Address {
	out := make([]peer.Address, len(l.items))
	copy(out, l.items)
	return out
}

// Head returns the first entry and whether the list is non-empty.
func (l List) Head() (peer.Address, bool) {
	if len(l.items) == 0 {
		return peer.Address{}, false
	}
	return l.items[0], true
}

// NearestSuccessor returns the first entry whose ID differs from self. If
// every entry equals self (or the list is empty), self is returned: a node
// is always its own successor in the absence of any other peer.
func (l List) NearestSuccessor(self peer.Address) peer.Address {
	for _, item := range l.items {
		if !item.Equal(self) {
			return item
		}
	}
	return self
}

// KillNearest drops the nearest successor (relative to self) from the list.
// The result is never empty: if dropping would leave nothing, the list
// collapses to [self].
func (l List) KillNearest(self peer.Address) List {
	for i, item := range l.items {
		if !item.Equal(self) {
			rest := append([]peer.Address{}, l.items[:i]...)
			rest = append(rest, l.items[i+1:]...)
			if len(rest) == 0 {
				return Of(self)
			}
			return List{items: rest}
		}
	}
	return Of(self)
}

// Append adds p to the end of the list, skipping it if an entry with the
// same ID is already present.
func (l List) Append(p peer.Address) List {
	for _, item := range l.items {
		if item.Equal(p) {
			return l
		}
	}
	items := make([]peer.Address, len(l.items), len(l.items)+1)
	copy(items, l.items)
	items = append(items, p)
	return List{items: items}
}

// Truncate returns a List containing at most n leading entries.
func (l List) Truncate(n int) List {
	if n >= len(l.items) {
		return l
	}
	if n < 0 {
		n = 0
	}
	items := make([]peer.Address, n)
	copy(items, l.items[:n])
	return List{items: items}
}

// Contains reports whether p (by ID) is present in the list.
func (l List) Contains(p peer.Address) bool {
	for _, item := range l.items {
		if item.Equal(p) {
			return true
		}
	}
	return false
}
