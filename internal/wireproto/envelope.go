// Package wireproto implements the dtnex authenticated message envelope:
// the canonical binary codec, the Contact/Metadata payload variants, and
// the truncated-HMAC seal described by the protocol's wire format.
//
// Modeled on the packet/envelope split in a UDP discovery protocol: a
// small outer frame (hash/signature analog here is the MAC) wrapping a
// type-tagged, version-checked payload, decoded through one dispatch
// point (see Decode).
package wireproto

import (
	"errors"
	"fmt"
)

// Version is the only envelope version this implementation understands.
const Version byte = 2

// MessageType discriminates the two payload kinds carried by an Envelope.
type MessageType byte

const (
	TypeContact  MessageType = 1
	TypeMetadata MessageType = 2
)

func (t MessageType) String() string {
	switch t {
	case TypeContact:
		return "contact"
	case TypeMetadata:
		return "metadata"
	default:
		return fmt.Sprintf("unknown(%d)", byte(t))
	}
}

// MaxEnvelopeSize bounds every encoded envelope, per the wire format.
const MaxEnvelopeSize = 128

// NonceSize is the width, in bytes, of an originator-chosen nonce.
const NonceSize = 3

// MACSize is the width, in bytes, of the truncated HMAC-SHA-256 MAC.
const MACSize = 8

var (
	ErrMalformed  = errors.New("wireproto: malformed message")
	ErrAuthFailed = errors.New("wireproto: mac verification failed")
)

// Nonce is the 3 random bytes an originator attaches to a message; it is
// the loop-suppression key alongside Origin and is never regenerated by a
// forwarder.
type Nonce [NonceSize]byte

// Payload is implemented by ContactPayload and MetadataPayload. The set is
// closed: new message kinds are not expected, so this is a tagged variant
// rather than an open plugin interface.
type Payload interface {
	messageType() MessageType
	encode() []byte
}

// Envelope is the common authenticated structure for both message kinds
// (version, type, timestamp, expire_time, origin, from, nonce, payload,
// mac). Nonce is unexported: the only ways to obtain an Envelope are
// Decode (which preserves whatever nonce was on the wire) and
// NewOriginEnvelope (which mints one). Forward never takes a nonce
// parameter, so a forwarding codepath is structurally incapable of
// minting a new one (nonce stays immutable under forwarding, which is
// what keeps loop suppression keyed on origin+nonce meaningful).
type Envelope struct {
	Type       MessageType
	Timestamp  int64
	ExpireTime int64
	Origin     uint64
	From       uint64
	Payload    Payload

	nonce Nonce
}

// Nonce returns the envelope's replay-suppression nonce.
func (e Envelope) Nonce() Nonce { return e.nonce }

// NewOriginEnvelope builds an envelope for a message this node originates.
// nonce must come from a fresh call to GenerateNonce.
func NewOriginEnvelope(typ MessageType, timestamp, expireTime int64, origin uint64, nonce Nonce, payload Payload) Envelope {
	return Envelope{
		Type:       typ,
		Timestamp:  timestamp,
		ExpireTime: expireTime,
		Origin:     origin,
		From:       origin,
		Payload:    payload,
		nonce:      nonce,
	}
}

// Forward derives the envelope a forwarder sends onward: identical to e in
// every field except From, which becomes the forwarder's own id. Origin
// and Nonce are carried over unexamined; the caller must reseal (recompute
// the MAC) before transmitting, since From is inside the MAC-covered range.
func Forward(e Envelope, newFrom uint64) Envelope {
	f := e
	f.From = newFrom
	return f
}
