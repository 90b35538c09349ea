// record.go defines the on-disk record format of the audit log.
//
// File Format:
// The log is a single append-only file of variable-length records:
//
//	Record:
//	  - Sequence: uint64 (8 bytes)
//	  - Timestamp: int64 unix nanoseconds (8 bytes)
//	  - PrevHash: 32 bytes (SHA-256 of previous record; genesis is zero)
//	  - EntryHash: 32 bytes (SHA-256, see below)
//	  - Descriptor length: uint32 (4 bytes)
//	  - Descriptor: variable
//
//	Descriptor (deterministic field order):
//	  - Outcome: uint8 (1 byte)
//	  - Op: 2-byte length + bytes
//	  - Path: 2-byte length + bytes
//	  - Dest: 2-byte length + bytes
//	  - CapabilityID: 2-byte length + bytes
//	  - Detail: 2-byte length + bytes
//
// All integers are big-endian. EntryHash covers
// prevHash ‖ sequence ‖ timestamp ‖ descriptor, binding every record to
// its predecessor: altering any stored byte of a record invalidates its
// hash, and altering its hash breaks the next record's prevHash.
package audit

import (
	"crypto/sha256"
	"encoding/binary"
	"fmt"
	"time"
)

// HashSize is the size of the SHA-256 hashes chaining the log.
const HashSize = sha256.Size

// recordHeaderSize is the fixed-width prefix of every record.
const recordHeaderSize = 8 + 8 + HashSize + HashSize + 4

// maxDescriptorSize bounds a single descriptor; larger length prefixes
// are treated as corruption rather than allocated.
const maxDescriptorSize = 1 << 20

// genesisHash is the prevHash of sequence 0.
var genesisHash [HashSize]byte

// Outcome is the result of the operation an audit record describes.
type Outcome uint8

const (
	// OutcomeAllowed records a successfully authorized access.
	OutcomeAllowed Outcome = iota + 1
	// OutcomeDenied records an authorization refusal.
	OutcomeDenied
	// OutcomeCommitted records a transaction reaching its committed state.
	OutcomeCommitted
	// OutcomeRolledBack records a transaction being fully reversed.
	OutcomeRolledBack
	// OutcomeAborted records a planned transaction discarded before staging.
	OutcomeAborted
	// OutcomeFailed records a step that failed during staging.
	OutcomeFailed
)

// String returns a human-readable name for the outcome.
func (o Outcome) String() string {
	switch o {
	case OutcomeAllowed:
		return "Allowed"
	case OutcomeDenied:
		return "Denied"
	case OutcomeCommitted:
		return "Committed"
	case OutcomeRolledBack:
		return "RolledBack"
	case OutcomeAborted:
		return "Aborted"
	case OutcomeFailed:
		return "Failed"
	default:
		return fmt.Sprintf("Unknown(%d)", uint8(o))
	}
}

// Record is the caller-supplied operation descriptor of an audit entry.
type Record struct {
	// Op names the operation kind ("write-file", "mkdir", "plan", ...).
	Op string
	// Path is the primary target path.
	Path string
	// Dest is the secondary path for two-path operations (move, copy).
	Dest string
	// Outcome is the result being recorded.
	Outcome Outcome
	// CapabilityID identifies the authorizing capability.
	CapabilityID string
	// Detail carries optional context, such as a denial reason.
	Detail string
}

// Entry is a fully formed, chained audit log entry.
type Entry struct {
	Record

	Sequence  uint64
	Timestamp time.Time
	PrevHash  [HashSize]byte
	Hash      [HashSize]byte
}

// encodeDescriptor serializes the record fields in fixed order so the
// hash input is canonical.
func encodeDescriptor(r Record) ([]byte, error) {
	size := 1
	for _, s := range []string{r.Op, r.Path, r.Dest, r.CapabilityID, r.Detail} {
		if len(s) > 0xFFFF {
			return nil, newCorrupted("descriptor field exceeds 65535 bytes")
		}
		size += 2 + len(s)
	}
	if size > maxDescriptorSize {
		return nil, newCorrupted("descriptor exceeds maximum size")
	}

	buf := make([]byte, 0, size)
	buf = append(buf, byte(r.Outcome))
	for _, s := range []string{r.Op, r.Path, r.Dest, r.CapabilityID, r.Detail} {
		buf = binary.BigEndian.AppendUint16(buf, uint16(len(s)))
		buf = append(buf, s...)
	}
	return buf, nil
}

// decodeDescriptor is the inverse of encodeDescriptor.
func decodeDescriptor(data []byte) (Record, error) {
	var r Record

	if len(data) < 1 {
		return r, newCorrupted("descriptor too short")
	}
	r.Outcome = Outcome(data[0])
	data = data[1:]

	fields := []*string{&r.Op, &r.Path, &r.Dest, &r.CapabilityID, &r.Detail}
	for _, field := range fields {
		if len(data) < 2 {
			return r, newCorrupted("descriptor truncated")
		}
		n := int(binary.BigEndian.Uint16(data))
		data = data[2:]
		if len(data) < n {
			return r, newCorrupted("descriptor truncated")
		}
		*field = string(data[:n])
		data = data[n:]
	}

	if len(data) != 0 {
		return r, newCorrupted("trailing bytes in descriptor")
	}
	return r, nil
}

// entryHash computes SHA-256(prevHash ‖ seq ‖ ts ‖ descriptor).
func entryHash(prev [HashSize]byte, seq uint64, tsNano int64, descriptor []byte) [HashSize]byte {
	h := sha256.New()
	h.Write(prev[:])

	var num [8]byte
	binary.BigEndian.PutUint64(num[:], seq)
	h.Write(num[:])
	binary.BigEndian.PutUint64(num[:], uint64(tsNano))
	h.Write(num[:])

	h.Write(descriptor)

	var sum [HashSize]byte
	copy(sum[:], h.Sum(nil))
	return sum
}

// encodeEntry serializes a complete entry to its on-disk form.
func encodeEntry(e *Entry, descriptor []byte) []byte {
	buf := make([]byte, 0, recordHeaderSize+len(descriptor))
	buf = binary.BigEndian.AppendUint64(buf, e.Sequence)
	buf = binary.BigEndian.AppendUint64(buf, uint64(e.Timestamp.UnixNano()))
	buf = append(buf, e.PrevHash[:]...)
	buf = append(buf, e.Hash[:]...)
	buf = binary.BigEndian.AppendUint32(buf, uint32(len(descriptor)))
	buf = append(buf, descriptor...)
	return buf
}
