package cache

import (
	"bytes"
	"encoding/binary"
	"errors"
	"time"
)

// Entry is a single cached value together with the write that produced it.
// Entries are never mutated after creation; a Set replaces the whole record.
type Entry struct {
	Value     []byte
	WrittenAt time.Time
	TTL       time.Duration
}

// Fresh reports whether the entry is still servable at now. Negative elapsed
// time (the clock moved backwards) counts as fresh.
func (e *Entry) Fresh(now time.Time) bool {
	elapsed := now.Sub(e.WrittenAt)
	if elapsed < 0 {
		return true
	}
	return elapsed <= e.TTL
}

// ExpiresAt returns the instant after which the entry is stale.
func (e *Entry) ExpiresAt() time.Time {
	return e.WrittenAt.Add(e.TTL)
}

// Envelope layout: magic, written-at (unix nanos), ttl (nanos), value.
var envelopeMagic = []byte("vc1")

const envelopeHeaderLen = 3 + 8 + 8

var errBadEnvelope = errors.New("malformed entry envelope")

// MarshalBinary encodes the entry into the envelope stored in external
// backends. The format is stable across restarts.
func (e *Entry) MarshalBinary() ([]byte, error) {
	if e.TTL < 0 {
		return nil, errors.New("negative ttl")
	}
	buf := make([]byte, envelopeHeaderLen, envelopeHeaderLen+len(e.Value))
	copy(buf, envelopeMagic)
	binary.BigEndian.PutUint64(buf[3:11], uint64(e.WrittenAt.UnixNano()))
	binary.BigEndian.PutUint64(buf[11:19], uint64(e.TTL))
	return append(buf, e.Value...), nil
}

// UnmarshalBinary decodes an envelope produced by MarshalBinary.
func (e *Entry) UnmarshalBinary(data []byte) error {
	if len(data) < envelopeHeaderLen || !bytes.Equal(data[:3], envelopeMagic) {
		return errBadEnvelope
	}
	ttl := time.Duration(binary.BigEndian.Uint64(data[11:19]))
	if ttl < 0 {
		return errBadEnvelope
	}
	e.WrittenAt = time.Unix(0, int64(binary.BigEndian.Uint64(data[3:11])))
	e.TTL = ttl
	e.Value = append([]byte(nil), data[envelopeHeaderLen:]...)
	return nil
}
