// Package audit implements the append-only, hash-chained audit log
// recording every authorized and denied filesystem operation.
//
// Entries are persisted as fixed-layout binary records (see record.go)
// and chained by SHA-256: each record stores the hash of its
// predecessor, so any post-write modification is detectable by Verify.
// The public surface is append and read only; there is no delete or
// edit operation.
//
// A single mutex serializes Append and Verify, so a verification can
// never observe a partially appended entry and two appends cannot
// interleave their hash computation.
package audit

import (
	"encoding/binary"
	"errors"
	"io"
	"os"
	"sync"
	"time"
)

// Metrics is the instrumentation hook for the audit log. Implementations
// must be nil-safe from the caller's perspective: a nil Metrics disables
// instrumentation.
type Metrics interface {
	// RecordAppend is called after a durable append, with the outcome
	// the entry recorded.
	RecordAppend(outcome Outcome)

	// RecordVerify is called after a chain verification.
	RecordVerify(ok bool)
}

// Log is an append-only, hash-chained audit log persisted to a single
// file. Safe for concurrent use.
type Log struct {
	mu      sync.Mutex
	path    string
	file    *os.File
	size    int64
	nextSeq uint64
	tail    [HashSize]byte
	closed  bool
	metrics Metrics
}

// Open opens or creates the audit log at path. For an existing file the
// full chain is verified and the tail state recovered; a log that fails
// verification refuses to open. The one exception is a record torn at
// the end of the file, as a crash between write and sync leaves behind:
// since the chain up to the tear verifies, the tear is truncated away
// and the log opens on the intact prefix. metrics may be nil.
func Open(path string, metrics Metrics) (*Log, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0600)
	if err != nil {
		return nil, newIO("open audit log", err)
	}

	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, newIO("stat audit log", err)
	}

	l := &Log{
		path:    path,
		file:    f,
		size:    info.Size(),
		tail:    genesisHash,
		metrics: metrics,
	}

	if l.size > 0 {
		tail, count, verified, err := l.replay(nil)
		if err != nil {
			if !isTornTail(err) {
				f.Close()
				return nil, err
			}
			if terr := f.Truncate(verified); terr != nil {
				f.Close()
				return nil, newIO("truncate torn audit tail", terr)
			}
			l.size = verified
		}
		l.tail = tail
		l.nextSeq = count
	}

	return l, nil
}

// isTornTail reports whether err marks a record cut short at the end of
// the file. Mid-file damage never produces this: a short read can only
// happen against end of file.
func isTornTail(err error) bool {
	return CodeOf(err) == CodeCorrupted && errors.Is(err, io.ErrUnexpectedEOF)
}

// Append computes the next chained entry from rec, writes it, and
// flushes it to stable storage before returning. A successful return
// guarantees the entry is recoverable after a crash. On storage
// failure the partial write is truncated away and an IOError returned.
func (l *Log) Append(rec Record) (*Entry, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed {
		return nil, ErrClosed
	}

	descriptor, err := encodeDescriptor(rec)
	if err != nil {
		return nil, err
	}

	entry := &Entry{
		Record:    rec,
		Sequence:  l.nextSeq,
		Timestamp: time.Now(),
		PrevHash:  l.tail,
	}
	entry.Hash = entryHash(entry.PrevHash, entry.Sequence, entry.Timestamp.UnixNano(), descriptor)

	buf := encodeEntry(entry, descriptor)
	if _, err := l.file.WriteAt(buf, l.size); err != nil {
		// Drop any partial record so the on-disk chain stays decodable.
		_ = l.file.Truncate(l.size)
		return nil, newIO("write audit entry", err)
	}
	if err := fdatasync(l.file); err != nil {
		_ = l.file.Truncate(l.size)
		return nil, newIO("sync audit entry", err)
	}

	// Advance in-memory state only after the entry is durable.
	l.size += int64(len(buf))
	l.nextSeq++
	l.tail = entry.Hash

	if l.metrics != nil {
		l.metrics.RecordAppend(rec.Outcome)
	}
	return entry, nil
}

// Verify replays the full log from genesis, recomputing every hash from
// its predecessor. Returns nil for a valid chain, a TamperDetected or
// ChainBroken error naming the first offending sequence otherwise.
// Verify holds the same lock as Append; the two never interleave.
func (l *Log) Verify() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed {
		return ErrClosed
	}

	_, _, _, err := l.replay(nil)
	if l.metrics != nil {
		l.metrics.RecordVerify(err == nil)
	}
	return err
}

// ReadEntries returns up to limit decoded entries starting at sequence
// from. A limit <= 0 returns all remaining entries. The chain is
// re-verified while reading.
func (l *Log) ReadEntries(from uint64, limit int) ([]Entry, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed {
		return nil, ErrClosed
	}

	var out []Entry
	_, _, _, err := l.replay(func(e Entry) {
		if e.Sequence < from {
			return
		}
		if limit > 0 && len(out) >= limit {
			return
		}
		out = append(out, e)
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Len returns the number of entries in the log.
func (l *Log) Len() uint64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.nextSeq
}

// TailHash returns the hash of the last entry, or the genesis constant
// for an empty log.
func (l *Log) TailHash() [HashSize]byte {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.tail
}

// Path returns the log's file path.
func (l *Log) Path() string {
	return l.path
}

// Close releases the underlying file. Further operations fail.
func (l *Log) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed {
		return nil
	}
	l.closed = true
	return l.file.Close()
}

// replay walks every record from the start of the file, checking
// sequence numbering, chain linkage and content hashes. visit, when
// non-nil, is called for each valid entry. Returns the tail hash, the
// entry count and the byte offset of the end of the verified prefix.
// Caller must hold l.mu.
func (l *Log) replay(visit func(Entry)) ([HashSize]byte, uint64, int64, error) {
	running := genesisHash
	var seq uint64
	var verified int64

	r := io.NewSectionReader(l.file, 0, l.size)
	header := make([]byte, recordHeaderSize)
	for {
		if _, err := io.ReadFull(r, header); err != nil {
			if errors.Is(err, io.EOF) {
				return running, seq, verified, nil
			}
			if errors.Is(err, io.ErrUnexpectedEOF) {
				return running, seq, verified, newTornTail("truncated record header")
			}
			return running, seq, verified, newIO("read audit entry", err)
		}

		entry, descriptor, err := decodeHeader(header)
		if err != nil {
			return running, seq, verified, err
		}
		if _, err := io.ReadFull(r, descriptor); err != nil {
			return running, seq, verified, newTornTail("truncated descriptor")
		}

		if entry.Sequence != seq {
			return running, seq, verified, newChainBroken(seq)
		}
		if entry.PrevHash != running {
			return running, seq, verified, newChainBroken(seq)
		}
		if entryHash(entry.PrevHash, entry.Sequence, entry.Timestamp.UnixNano(), descriptor) != entry.Hash {
			return running, seq, verified, newTamperDetected(seq)
		}

		rec, err := decodeDescriptor(descriptor)
		if err != nil {
			return running, seq, verified, err
		}
		entry.Record = rec

		if visit != nil {
			visit(entry)
		}
		running = entry.Hash
		seq++
		verified += int64(recordHeaderSize + len(descriptor))
	}
}

// decodeHeader parses the fixed-width record prefix and allocates the
// descriptor buffer.
func decodeHeader(header []byte) (Entry, []byte, error) {
	var e Entry

	e.Sequence = binary.BigEndian.Uint64(header[0:8])
	e.Timestamp = time.Unix(0, int64(binary.BigEndian.Uint64(header[8:16])))
	copy(e.PrevHash[:], header[16:16+HashSize])
	copy(e.Hash[:], header[16+HashSize:16+2*HashSize])

	descLen := binary.BigEndian.Uint32(header[16+2*HashSize:])
	if descLen > maxDescriptorSize {
		return e, nil, newCorrupted("descriptor length exceeds maximum")
	}
	return e, make([]byte, descLen), nil
}
