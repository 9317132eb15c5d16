package wireproto

import "fmt"

// MaxNameLen bounds the Metadata Name and Contact strings.
const MaxNameLen = 24

// ContactPayload advertises a directional-in-name but symmetric-in-effect
// contact between two nodes (the receiver always installs both
// directions, see internal/engine).
type ContactPayload struct {
	NodeA           uint64
	NodeB           uint64
	DurationMinutes uint16
}

func (ContactPayload) messageType() MessageType { return TypeContact }

func (c ContactPayload) encode() []byte {
	b := make([]byte, 0, 18)
	b = appendUint64(b, c.NodeA)
	b = appendUint64(b, c.NodeB)
	b = appendUint16(b, c.DurationMinutes)
	return b
}

func decodeContactPayload(b []byte) (ContactPayload, error) {
	if len(b) != 18 {
		return ContactPayload{}, fmt.Errorf("%w: contact payload length %d", ErrMalformed, len(b))
	}
	return ContactPayload{
		NodeA:           readUint64(b[0:8]),
		NodeB:           readUint64(b[8:16]),
		DurationMinutes: readUint16(b[16:18]),
	}, nil
}

// MetadataPayload is the human-readable descriptor a node advertises about
// itself. Latitude/longitude are all-or-nothing, transmitted as decimal
// degrees * 1e6.
type MetadataPayload struct {
	NodeID    uint64
	Name      string
	Contact   string
	HasGPS    bool
	LatMicro  int32
	LonMicro  int32
}

func (MetadataPayload) messageType() MessageType { return TypeMetadata }

// fieldCount byte values, chosen to match the "N-element sequence" framing
// described by the wire format: 3 (no GPS) or 5 (GPS present) when NodeID
// is carried; legacy encoders (not produced by this implementation, only
// optionally accepted on decode) omit NodeID and use 2 or 4.
const (
	fieldsNoGPSWithID   = 3
	fieldsGPSWithID     = 5
	fieldsNoGPSLegacy   = 2
	fieldsGPSLegacy     = 4
)

func (m MetadataPayload) encode() []byte {
	nameB := []byte(m.Name)
	contactB := []byte(m.Contact)
	fieldCount := byte(fieldsNoGPSWithID)
	if m.HasGPS {
		fieldCount = fieldsGPSWithID
	}
	b := make([]byte, 0, 8+1+1+len(nameB)+1+len(contactB)+8)
	b = append(b, fieldCount)
	b = appendUint64(b, m.NodeID)
	b = appendString(b, nameB)
	b = appendString(b, contactB)
	if m.HasGPS {
		b = appendInt32(b, m.LatMicro)
		b = appendInt32(b, m.LonMicro)
	}
	return b
}

// DecodeOptions controls acceptance of non-canonical payload forms.
type DecodeOptions struct {
	// CompatLegacyMetadata accepts Metadata payloads in the legacy 2- or
	// 4-element form (no leading node_id, origin substituted for it).
	// Defaults to false: new networks should reject it (spec
	// recommendation).
	CompatLegacyMetadata bool
}

func decodeMetadataPayload(b []byte, origin uint64, opts DecodeOptions) (MetadataPayload, error) {
	if len(b) < 1 {
		return MetadataPayload{}, fmt.Errorf("%w: empty metadata payload", ErrMalformed)
	}
	fieldCount := b[0]
	rest := b[1:]

	legacy := fieldCount == fieldsNoGPSLegacy || fieldCount == fieldsGPSLegacy
	if legacy && !opts.CompatLegacyMetadata {
		return MetadataPayload{}, fmt.Errorf("%w: legacy metadata form rejected", ErrMalformed)
	}

	var nodeID uint64
	if !legacy {
		if len(rest) < 8 {
			return MetadataPayload{}, fmt.Errorf("%w: truncated metadata node_id", ErrMalformed)
		}
		nodeID = readUint64(rest[0:8])
		rest = rest[8:]
	} else {
		nodeID = origin
	}

	name, rest, err := readString(rest)
	if err != nil {
		return MetadataPayload{}, err
	}
	contact, rest, err := readString(rest)
	if err != nil {
		return MetadataPayload{}, err
	}

	m := MetadataPayload{NodeID: nodeID, Name: name, Contact: contact}

	switch fieldCount {
	case fieldsGPSWithID, fieldsGPSLegacy:
		if len(rest) != 8 {
			return MetadataPayload{}, fmt.Errorf("%w: truncated metadata gps", ErrMalformed)
		}
		m.HasGPS = true
		m.LatMicro = readInt32(rest[0:4])
		m.LonMicro = readInt32(rest[4:8])
	case fieldsNoGPSWithID, fieldsNoGPSLegacy:
		if len(rest) != 0 {
			return MetadataPayload{}, fmt.Errorf("%w: trailing metadata bytes", ErrMalformed)
		}
	default:
		return MetadataPayload{}, fmt.Errorf("%w: unknown metadata field count %d", ErrMalformed, fieldCount)
	}

	if len(m.Name) > MaxNameLen || len(m.Contact) > MaxNameLen {
		return MetadataPayload{}, fmt.Errorf("%w: metadata string too long", ErrMalformed)
	}

	return m, nil
}

// LatitudeDegrees returns the decoded latitude in decimal degrees.
func (m MetadataPayload) LatitudeDegrees() float64 { return float64(m.LatMicro) / 1e6 }

// LongitudeDegrees returns the decoded longitude in decimal degrees.
func (m MetadataPayload) LongitudeDegrees() float64 { return float64(m.LonMicro) / 1e6 }
