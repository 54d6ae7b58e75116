package transport

import "github.com/ringkeeper/chordkeep/internal/transmitter"

// ErrPeerUnreachable is transmitter.ErrPeerUnreachable re-exported under
// the transport package, the sentinel callers outside the core are
// expected to errors.Is against per the boundary named in §7.
var ErrPeerUnreachable = transmitter.ErrPeerUnreachable
