package event

import (
	"strconv"
	"sync/atomic"
)

// Identity identifies a subscriber for self-echo suppression.
// Real identities are positive and unique within the process.
type Identity uint64

// Unidentified is the sender identity that never suppresses anyone.
const Unidentified Identity = 0

var identitySeq atomic.Uint64

// NextIdentity returns a fresh process-wide identity.
func NextIdentity() Identity {
	return Identity(identitySeq.Add(1))
}

// String returns the identity in decimal.
func (id Identity) String() string {
	return strconv.FormatUint(uint64(id), 10)
}

// Identifier lazily assigns an Identity on first use.
// Embed it in any type that subscribes and publishes so its own
// publishes are not echoed back to it. The zero value is ready to use
// and must not be copied after first use.
type Identifier struct {
	id atomic.Uint64
}

// ID returns the identity, assigning one on the first call.
func (i *Identifier) ID() Identity {
	if v := i.id.Load(); v != 0 {
		return Identity(v)
	}
	next := uint64(NextIdentity())
	if i.id.CompareAndSwap(0, next) {
		return Identity(next)
	}
	return Identity(i.id.Load())
}
