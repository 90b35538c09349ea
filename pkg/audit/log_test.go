package audit

import (
	"encoding/binary"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestLog(t *testing.T) (*Log, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "audit.log")
	l, err := Open(path, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = l.Close() })
	return l, path
}

func appendN(t *testing.T, l *Log, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		_, err := l.Append(Record{
			Op:           "write-file",
			Path:         "objects/ab/cd1234",
			Outcome:      OutcomeAllowed,
			CapabilityID: "cap-1",
		})
		require.NoError(t, err)
	}
}

// recordOffsets walks the raw file and returns the byte offset of each
// record.
func recordOffsets(t *testing.T, path string) []int64 {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)

	var offsets []int64
	var off int64
	for off < int64(len(data)) {
		offsets = append(offsets, off)
		descLen := binary.BigEndian.Uint32(data[off+recordHeaderSize-4 : off+recordHeaderSize])
		off += recordHeaderSize + int64(descLen)
	}
	return offsets
}

func flipByteAt(t *testing.T, path string, offset int64) {
	t.Helper()
	f, err := os.OpenFile(path, os.O_RDWR, 0600)
	require.NoError(t, err)
	defer f.Close()

	b := make([]byte, 1)
	_, err = f.ReadAt(b, offset)
	require.NoError(t, err)
	b[0] ^= 0x01
	_, err = f.WriteAt(b, offset)
	require.NoError(t, err)
}

func TestOpen_NewLog(t *testing.T) {
	l, _ := openTestLog(t)

	assert.Equal(t, uint64(0), l.Len())
	assert.Equal(t, genesisHash, l.TailHash())
}

func TestAppendAndVerify(t *testing.T) {
	l, path := openTestLog(t)

	appendN(t, l, 2)
	assert.Equal(t, uint64(2), l.Len())
	require.NoError(t, l.Verify())
	require.NoError(t, l.Close())

	// Reopen, recover state, append more.
	l2, err := Open(path, nil)
	require.NoError(t, err)
	defer l2.Close()

	assert.Equal(t, uint64(2), l2.Len())
	appendN(t, l2, 1)
	assert.Equal(t, uint64(3), l2.Len())
	require.NoError(t, l2.Verify())
}

func TestChainStructure(t *testing.T) {
	l, _ := openTestLog(t)
	appendN(t, l, 2)

	entries, err := l.ReadEntries(0, 0)
	require.NoError(t, err)
	require.Len(t, entries, 2)

	assert.Equal(t, genesisHash, entries[0].PrevHash)
	assert.Equal(t, entries[0].Hash, entries[1].PrevHash)
	assert.Equal(t, uint64(0), entries[0].Sequence)
	assert.Equal(t, uint64(1), entries[1].Sequence)
}

func TestVerify_TamperDetectedAtFlippedEntry(t *testing.T) {
	l, path := openTestLog(t)
	appendN(t, l, 5)
	require.NoError(t, l.Verify())

	// Flip one bit inside entry 3's descriptor payload.
	offsets := recordOffsets(t, path)
	require.Len(t, offsets, 5)
	flipByteAt(t, path, offsets[3]+recordHeaderSize)

	err := l.Verify()
	require.Error(t, err)
	assert.Equal(t, CodeTamperDetected, CodeOf(err))

	var ae *Error
	require.ErrorAs(t, err, &ae)
	assert.Equal(t, uint64(3), ae.Sequence)
}

func TestVerify_BrokenLinkage(t *testing.T) {
	l, path := openTestLog(t)
	appendN(t, l, 4)

	// Flip a byte of entry 2's stored prevHash.
	offsets := recordOffsets(t, path)
	flipByteAt(t, path, offsets[2]+16)

	err := l.Verify()
	require.Error(t, err)
	assert.Equal(t, CodeChainBroken, CodeOf(err))

	var ae *Error
	require.ErrorAs(t, err, &ae)
	assert.Equal(t, uint64(2), ae.Sequence)
}

func TestOpen_RefusesTamperedLog(t *testing.T) {
	l, path := openTestLog(t)
	appendN(t, l, 3)
	require.NoError(t, l.Close())

	offsets := recordOffsets(t, path)
	flipByteAt(t, path, offsets[1]+recordHeaderSize)

	_, err := Open(path, nil)
	require.Error(t, err)
	assert.Equal(t, CodeTamperDetected, CodeOf(err))
}

func TestReadEntries(t *testing.T) {
	l, _ := openTestLog(t)

	records := []Record{
		{Op: "mkdir", Path: "objects", Outcome: OutcomeAllowed, CapabilityID: "cap-1"},
		{Op: "write-file", Path: "objects/a", Outcome: OutcomeAllowed, CapabilityID: "cap-1"},
		{Op: "delete-file", Path: "stale", Outcome: OutcomeDenied, CapabilityID: "cap-2", Detail: "delete not granted"},
		{Op: "commit", Path: "", Outcome: OutcomeCommitted, CapabilityID: "cap-1"},
	}
	for _, rec := range records {
		_, err := l.Append(rec)
		require.NoError(t, err)
	}

	t.Run("All", func(t *testing.T) {
		entries, err := l.ReadEntries(0, 0)
		require.NoError(t, err)
		require.Len(t, entries, 4)
		for i, e := range entries {
			assert.Equal(t, records[i], e.Record)
		}
	})

	t.Run("FromWithLimit", func(t *testing.T) {
		entries, err := l.ReadEntries(1, 2)
		require.NoError(t, err)
		require.Len(t, entries, 2)
		assert.Equal(t, uint64(1), entries[0].Sequence)
		assert.Equal(t, "delete not granted", entries[1].Detail)
	})

	t.Run("PastEnd", func(t *testing.T) {
		entries, err := l.ReadEntries(10, 0)
		require.NoError(t, err)
		assert.Empty(t, entries)
	})
}

func TestAppendAfterClose(t *testing.T) {
	l, _ := openTestLog(t)
	require.NoError(t, l.Close())

	_, err := l.Append(Record{Op: "noop", Outcome: OutcomeAllowed})
	assert.ErrorIs(t, err, ErrClosed)
	assert.ErrorIs(t, l.Verify(), ErrClosed)
}

func TestOpen_RecoversTornTrailingRecord(t *testing.T) {
	l, path := openTestLog(t)
	appendN(t, l, 3)
	require.NoError(t, l.Close())

	// Chop a few bytes off the final record, as a crash between write
	// and sync would.
	offsets := recordOffsets(t, path)
	require.Len(t, offsets, 3)
	info, err := os.Stat(path)
	require.NoError(t, err)
	require.NoError(t, os.Truncate(path, info.Size()-3))

	// The verified prefix is intact, so the tear is dropped and the log
	// opens with the surviving entries.
	l2, err := Open(path, nil)
	require.NoError(t, err)
	defer l2.Close()

	assert.Equal(t, uint64(2), l2.Len())
	info, err = os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, offsets[2], info.Size())

	// The recovered log chains and appends like any other.
	appendN(t, l2, 1)
	assert.Equal(t, uint64(3), l2.Len())
	require.NoError(t, l2.Verify())
}

func TestOpen_RecoversTornRecordHeader(t *testing.T) {
	l, path := openTestLog(t)
	appendN(t, l, 2)
	require.NoError(t, l.Close())

	// Leave only a sliver of the final record's header.
	offsets := recordOffsets(t, path)
	require.Len(t, offsets, 2)
	require.NoError(t, os.Truncate(path, offsets[1]+5))

	l2, err := Open(path, nil)
	require.NoError(t, err)
	defer l2.Close()

	assert.Equal(t, uint64(1), l2.Len())
	require.NoError(t, l2.Verify())
}
