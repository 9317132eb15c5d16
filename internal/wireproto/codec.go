package wireproto

import "fmt"

const headerLen = 1 + 1 + 8 + 8 + 8 + 8 + NonceSize + 1 // version,type,ts,expire,origin,from,nonce,payloadLen

// sealable returns the byte sequence covered by the MAC: every envelope
// field except the MAC itself, in wire order.
func sealable(e Envelope, payload []byte) ([]byte, error) {
	if len(payload) > 255 {
		return nil, fmt.Errorf("%w: payload too large", ErrMalformed)
	}
	b := make([]byte, 0, headerLen+len(payload))
	b = append(b, Version)
	b = append(b, byte(e.Type))
	b = appendUint64(b, uint64(e.Timestamp))
	b = appendUint64(b, uint64(e.ExpireTime))
	b = appendUint64(b, e.Origin)
	b = appendUint64(b, e.From)
	b = append(b, e.nonce[:]...)
	b = append(b, byte(len(payload)))
	b = append(b, payload...)
	return b, nil
}

// Encode seals e with key, producing the wire bytes: sealable(e) || mac.
// It fails rather than silently truncate if the result would exceed
// MaxEnvelopeSize.
func Encode(e Envelope, key []byte) ([]byte, error) {
	payload := e.Payload.encode()
	body, err := sealable(e, payload)
	if err != nil {
		return nil, err
	}
	mac := Seal(key, body)
	out := append(body, mac[:]...)
	if len(out) > MaxEnvelopeSize {
		return nil, fmt.Errorf("%w: encoded envelope %d bytes exceeds max %d", ErrMalformed, len(out), MaxEnvelopeSize)
	}
	return out, nil
}

// EncodeContact builds and seals a Contact envelope from envelope fields
// and a payload.
func EncodeContact(fields Envelope, contact ContactPayload, key []byte) ([]byte, error) {
	fields.Type = TypeContact
	fields.Payload = contact
	return Encode(fields, key)
}

// EncodeMetadata builds and seals a Metadata envelope from envelope
// fields and a payload.
func EncodeMetadata(fields Envelope, metadata MetadataPayload, key []byte) ([]byte, error) {
	fields.Type = TypeMetadata
	fields.Payload = metadata
	return Encode(fields, key)
}

// Verify recomputes the MAC over the sealable prefix of b and compares it
// in constant time against the trailing MACSize bytes. It does not decode
// the payload; callers should Decode first to reject structurally invalid
// input, then Verify the original bytes.
func Verify(b []byte, key []byte) bool {
	if len(b) < MACSize {
		return false
	}
	body := b[:len(b)-MACSize]
	want := b[len(b)-MACSize:]
	got := Seal(key, body)
	return constantTimeEqual(got[:], want)
}

// Decode parses bytes into an Envelope without checking the MAC. Callers
// that receive bytes from the network must follow Decode with Verify
// before trusting the contents (see internal/engine.HandleInbound).
func Decode(b []byte, opts DecodeOptions) (Envelope, error) {
	if len(b) < headerLen+MACSize {
		return Envelope{}, fmt.Errorf("%w: short envelope (%d bytes)", ErrMalformed, len(b))
	}
	if b[0] != Version {
		return Envelope{}, fmt.Errorf("%w: unsupported version %d", ErrMalformed, b[0])
	}
	typ := MessageType(b[1])
	if typ != TypeContact && typ != TypeMetadata {
		return Envelope{}, fmt.Errorf("%w: unknown type %d", ErrMalformed, b[1])
	}

	off := 2
	timestamp := int64(readUint64(b[off : off+8]))
	off += 8
	expire := int64(readUint64(b[off : off+8]))
	off += 8
	origin := readUint64(b[off : off+8])
	off += 8
	from := readUint64(b[off : off+8])
	off += 8

	var nonce Nonce
	copy(nonce[:], b[off:off+NonceSize])
	off += NonceSize

	payloadLen := int(b[off])
	off++

	if len(b) != off+payloadLen+MACSize {
		return Envelope{}, fmt.Errorf("%w: length mismatch", ErrMalformed)
	}
	payloadBytes := b[off : off+payloadLen]
	off += payloadLen

	var payload Payload
	var err error
	switch typ {
	case TypeContact:
		payload, err = decodeContactPayload(payloadBytes)
	case TypeMetadata:
		payload, err = decodeMetadataPayload(payloadBytes, origin, opts)
	}
	if err != nil {
		return Envelope{}, err
	}

	return Envelope{
		Type:       typ,
		Timestamp:  timestamp,
		ExpireTime: expire,
		Origin:     origin,
		From:       from,
		Payload:    payload,
		nonce:      nonce,
	}, nil
}
