// Package peer defines the identity type shared across the stabilizer,
// node finder, and transport layer.
package peer

import (
	"fmt"

	"github.com/ringkeeper/chordkeep/internal/ringid"
)

// Address identifies a peer by its ring position and dialable network
// address. Two Addresses are equal iff their ID matches.
type Address struct {
	ID   ringid.ID `json:"id"`
	Host string    `json:"host"`
	Port int       `json:"port"`
}

// New builds an Address, deriving nothing: the caller supplies the ID
// (normally ringid.HashAddress(host:port) at bootstrap).
func New(id ringid.ID, host string, port int) Address {
	return Address{ID: id, Host: host, Port: port}
}

// FromHostPort derives an Address whose ID is the hash of its own dial
// string, the convention every node uses for its own identity.
func FromHostPort(host string, port int) Address {
	dial := fmt.Sprintf("%s:%d", host, port)
	return Address{ID: ringid.HashAddress(dial), Host: host, Port: port}
}

// Dial returns the "host:port" string used to open a transport connection.
func (a Address) Dial() string {
	return fmt.Sprintf("%s:%d", a.Host, a.Port)
}

// Equal compares two addresses by ring identity.
func (a Address) Equal(other Address) bool {
	return a.ID.Equal(other.ID)
}

// IsZero reports whether the address was never populated.
func (a Address) IsZero() bool {
	return a.ID.IsZero() && a.Host == "" && a.Port == 0
}

// String renders a short, log-friendly representation.
func (a Address) String() string {
	return fmt.Sprintf("peer{%s@%s}", a.ID, a.Dial())
}
