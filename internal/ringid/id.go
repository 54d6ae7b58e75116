// Package ringid implements identifier arithmetic on the circular key space
// shared by every peer and chunk in the overlay.
package ringid

import (
	"crypto/sha1"
	"fmt"
	"math/big"
)

// Bits is the size of the identifier space in bits.
const Bits = 160

var (
	ringSize = new(big.Int).Exp(big.NewInt(2), big.NewInt(Bits), nil)
	zero     = big.NewInt(0)
	one      = big.NewInt(1)
)

// ID is a value on the ring [0, 2^Bits). The zero value is not a valid ID;
// use New or one of the Hash constructors.
type ID struct {
	v *big.Int
}

// New wraps an arbitrary big.Int as a ring ID, reducing it modulo the ring size.
func New(v *big.Int) ID {
	if v == nil {
		return ID{v: new(big.Int)}
	}
	return ID{v: mod(v)}
}

// HashBytes derives a ring ID from arbitrary data via SHA-1, the Chord convention.
func HashBytes(data []byte) ID {
	sum := sha1.Sum(data)
	return ID{v: new(big.Int).SetBytes(sum[:])}
}

// HashString derives a ring ID from a string.
func HashString(s string) ID {
	return HashBytes([]byte(s))
}

// HashAddress derives a node's ring ID from its network address.
func HashAddress(addr string) ID {
	return HashString(addr)
}

// IsZero reports whether the ID was never assigned a value.
func (id ID) IsZero() bool {
	return id.v == nil
}

// Equal reports whether two IDs denote the same ring position.
func (id ID) Equal(other ID) bool {
	if id.v == nil || other.v == nil {
		return id.v == other.v
	}
	return id.v.Cmp(other.v) == 0
}

// String renders the ID as a truncated hex string, matching the convention
// used in log lines throughout this module.
func (id ID) String() string {
	if id.v == nil {
		return "<nil>"
	}
	s := id.v.Text(16)
	if len(s) > 12 {
		s = s[:12]
	}
	return s
}

// Big returns a defensive copy of the underlying big.Int.
func (id ID) Big() *big.Int {
	if id.v == nil {
		return new(big.Int)
	}
	return new(big.Int).Set(id.v)
}

// InRange reports whether id lies in (start, end] on the ring, wrapping
// around the origin when end <= start. This is the predicate used to decide
// chunk ownership and successor ranges throughout the stabilizer.
func InRange(id, start, end ID) bool {
	return between(id, start, end, false, true)
}

// Between reports whether id lies strictly inside (start, end) on the ring.
func Between(id, start, end ID) bool {
	return between(id, start, end, false, false)
}

func between(id, start, end ID, inclStart, inclEnd bool) bool {
	if id.v == nil || start.v == nil || end.v == nil {
		return false
	}

	x, s, e := mod(id.v), mod(start.v), mod(end.v)

	switch s.Cmp(e) {
	case -1: // s < e, no wraparound
		loOK := x.Cmp(s) > 0 || (inclStart && x.Cmp(s) == 0)
		hiOK := x.Cmp(e) < 0 || (inclEnd && x.Cmp(e) == 0)
		return loOK && hiOK
	case 1: // s > e, wraps around the origin
		loOK := x.Cmp(s) > 0 || (inclStart && x.Cmp(s) == 0)
		hiOK := x.Cmp(e) < 0 || (inclEnd && x.Cmp(e) == 0)
		return loOK || hiOK
	default: // s == e: the whole ring except the single point s, unless inclusive
		if inclStart || inclEnd {
			return true
		}
		return x.Cmp(s) != 0
	}
}

// AddPowerOfTwo computes (id + 2^exp) mod 2^Bits, used to derive finger
// table start offsets.
func AddPowerOfTwo(id ID, exp int) ID {
	if id.v == nil || exp < 0 {
		return ID{v: new(big.Int)}
	}
	offset := new(big.Int).Exp(big.NewInt(2), big.NewInt(int64(exp)), nil)
	return ID{v: mod(new(big.Int).Add(id.v, offset))}
}

// Distance returns the clockwise distance from a to b: (b - a) mod 2^Bits.
func Distance(a, b ID) *big.Int {
	if a.v == nil || b.v == nil {
		return new(big.Int)
	}
	return mod(new(big.Int).Sub(mod(b.v), mod(a.v)))
}

func mod(x *big.Int) *big.Int {
	r := new(big.Int).Mod(x, ringSize)
	if r.Sign() < 0 {
		r.Add(r, ringSize)
	}
	return r
}

// MaxID returns the largest valid identifier on the ring.
func MaxID() ID {
	return ID{v: new(big.Int).Sub(ringSize, one)}
}

// IsValid reports whether v falls within [0, 2^Bits).
func IsValid(v *big.Int) bool {
	if v == nil {
		return false
	}
	return v.Cmp(zero) >= 0 && v.Cmp(ringSize) < 0
}

// MarshalText implements encoding.TextMarshaler so an ID can be round-tripped
// through the JSON transport codec.
func (id ID) MarshalText() ([]byte, error) {
	if id.v == nil {
		return []byte("0"), nil
	}
	return []byte(id.v.Text(16)), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (id *ID) UnmarshalText(text []byte) error {
	v, ok := new(big.Int).SetString(string(text), 16)
	if !ok {
		return fmt.Errorf("ringid: invalid hex identifier %q", text)
	}
	id.v = v
	return nil
}
