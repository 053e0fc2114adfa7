// Package journal implements WAL-like append-only “journal” files.
//
// A journal is a directory of segment files. Each segment starts with a
// fixed header and holds a sequence of records; groups of records become
// durable atomically when a commit trailer carrying a running checksum is
// written after them. Readers only ever see committed records and stop at the
// first record that fails verification.
//
// File format:
//
//   - file = segmentHeader (record* commit)*
//   - segmentHeader = magic:64 version:8 pad:8 flags:16 pad:32 ordinal:32
//     timestamp:32 prevChecksum:64 journalInvariant:256 segmentInvariant:256
//     reserved:64*3 checksum:64
//   - record = uvarint(size<<1) uvarint(timestampDelta) bytes
//   - commit = running xxhash64 (little-endian) with the low bit set
//
// Record headers always have the low bit clear, which is how a reader tells
// them apart from commit trailers.
package journal

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"

	"github.com/andreyvit/merkledb/mmap"
)

var (
	ErrIncompatible       = errors.New("incompatible journal")
	ErrUnsupportedVersion = errors.New("unsupported journal version")
	ErrClosed             = errors.New("journal closed")
	errCorruptedFile      = errors.New("corrupted journal segment file")
	errCorruptedRecord    = errors.New("corrupted journal record")
)

type Options struct {
	Context          context.Context
	FileName         string // e.g. "mydb-*.wal"
	MaxFileSize      int64  // new segment after this size
	DebugName        string
	Now              func() time.Time
	JournalInvariant [32]byte
	SegmentInvariant [32]byte

	// Sync makes every Commit durable with fdatasync.
	Sync bool

	Logger  *slog.Logger
	Verbose bool
}

const DefaultMaxFileSize = 4 * 1024 * 1024

const (
	magic          = 0x54414c4e52554f4a // "JOURNLAT" as little-endian uint64
	version0 uint8 = 0
)

const segmentHeaderSize = 16 * 8

type segmentHeader struct {
	Magic            uint64
	Version          uint8
	_                uint8
	Flags            uint16
	_                uint32
	SegmentOrdinal   uint32
	Timestamp        uint32
	PrevChecksum     uint64
	JournalInvariant [32]byte
	SegmentInvariant [32]byte
	_                [3]uint64
	Checksum         uint64
}

const (
	segFlagAligned uint16 = 1 << 0
)

const (
	recordFlagCommit byte = 1
	recordFlagShift       = 1
	timestampFmt          = "20060102T150405"
)

// Journal is an append-only writer over a journal directory. It is safe for
// concurrent use.
type Journal struct {
	context          context.Context
	maxFileSize      int64
	fileNamePrefix   string
	fileNameSuffix   string
	debugName        string
	dir              string
	now              func() time.Time
	logger           *slog.Logger
	verbose          bool
	sync             bool
	journalInvariant [32]byte
	segmentInvariant [32]byte

	writeLock sync.Mutex
	writeErr  error
	closed    bool
	writeSeg  uint32
	writeRec  uint64
	segWriter *segmentWriter
}

func (o *Options) setDefaults() {
	if o.Now == nil {
		o.Now = time.Now
	}
	if o.Context == nil {
		o.Context = context.Background()
	}
	if o.FileName == "" {
		o.FileName = "*.wal"
	}
	if o.DebugName == "" {
		o.DebugName = "journal"
	}
	if o.MaxFileSize == 0 {
		o.MaxFileSize = DefaultMaxFileSize
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
}

// Open prepares the journal in dir for appending, creating the directory if
// needed. Writes go to a new segment numbered after the last existing one.
func Open(dir string, o Options) (*Journal, error) {
	o.setDefaults()
	prefix, suffix, _ := strings.Cut(o.FileName, "*")
	j := &Journal{
		context:          o.Context,
		maxFileSize:      o.MaxFileSize,
		fileNamePrefix:   prefix,
		fileNameSuffix:   suffix,
		debugName:        o.DebugName,
		dir:              dir,
		now:              o.Now,
		verbose:          o.Verbose,
		sync:             o.Sync,
		journalInvariant: o.JournalInvariant,
		segmentInvariant: o.SegmentInvariant,
		logger:           o.Logger,
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("%v: %w", j.debugName, err)
	}
	if err := j.prepareToWrite(); err != nil {
		return nil, fmt.Errorf("%v: %w", j.debugName, err)
	}
	return j, nil
}

func (j *Journal) Now() uint32 {
	v := j.now().Unix()
	if v < 0 {
		panic("time travel disallowed")
	}
	u := uint64(v)
	if u&0xFFFF_FFFF_0000_0000 != 0 {
		panic("time travel disallowed both ways")
	}
	return uint32(u)
}

func (j *Journal) String() string {
	return j.debugName
}

// prepareToWrite finds the last valid segment, deleting segments whose
// header is corrupted, and continues its segment and record numbering.
func (j *Journal) prepareToWrite() error {
	for {
		names, err := j.segmentNames()
		if err != nil {
			return err
		}
		if len(names) == 0 {
			return nil
		}
		lastName := names[len(names)-1]
		seq, _, firstRec, err := parseSegmentName(j.trimName(lastName))
		if err != nil {
			return err
		}

		var count uint64
		err = j.readSegment(lastName, seq, func(Record) error {
			count++
			return nil
		})
		if errors.Is(err, errCorruptedFile) {
			j.logger.LogAttrs(j.context, slog.LevelWarn, "journal: deleting corrupted file", slog.String("jrnl", j.debugName), slog.String("file", lastName))
			if err := os.Remove(filepath.Join(j.dir, lastName)); err != nil {
				return fmt.Errorf("journal: failed to delete corrupted file: %w", err)
			}
			continue
		} else if errors.Is(err, errCorruptedRecord) {
			j.logger.LogAttrs(j.context, slog.LevelWarn, "journal: segment has a corrupted tail", slog.String("jrnl", j.debugName), slog.String("file", lastName), slog.Uint64("records", count))
		} else if err != nil {
			return err
		}
		j.writeSeg = seq
		j.writeRec = firstRec - 1 + count
		if j.verbose {
			j.logger.LogAttrs(j.context, slog.LevelDebug, "journal: continuing", slog.String("jrnl", j.debugName), slog.String("file", lastName), slog.Uint64("records", count))
		}
		return nil
	}
}

func (j *Journal) trimName(name string) string {
	return strings.TrimSuffix(strings.TrimPrefix(name, j.fileNamePrefix), j.fileNameSuffix)
}

// segmentNames lists segment files in ordinal order.
func (j *Journal) segmentNames() ([]string, error) {
	ents, err := os.ReadDir(j.dir)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	} else if err != nil {
		return nil, err
	}
	var names []string
	for _, ent := range ents {
		if err := j.context.Err(); err != nil {
			return nil, err
		}
		if !ent.Type().IsRegular() {
			continue
		}
		name := ent.Name()
		if !strings.HasPrefix(name, j.fileNamePrefix) || !strings.HasSuffix(name, j.fileNameSuffix) {
			continue
		}
		if _, _, _, err := parseSegmentName(j.trimName(name)); err != nil {
			continue
		}
		names = append(names, name)
	}
	slices.Sort(names)
	return names, nil
}

func (j *Journal) fail(err error) error {
	if err == nil {
		return nil
	}
	j.logger.LogAttrs(j.context, slog.LevelError, "journal: failed", slog.String("jrnl", j.debugName), slog.Any("err", err))
	j.closeSegment()
	if j.writeErr == nil {
		j.writeErr = err
	}
	return err
}

func (j *Journal) closeSegment() {
	if j.segWriter != nil {
		j.segWriter.close()
		j.segWriter = nil
	}
}

// WriteRecord appends an uncommitted record. A zero timestamp means now.
func (j *Journal) WriteRecord(timestamp uint32, data []byte) error {
	if len(data) == 0 {
		return nil
	}

	j.writeLock.Lock()
	defer j.writeLock.Unlock()

	if j.closed {
		return ErrClosed
	}
	if j.writeErr != nil {
		return j.writeErr
	}
	if timestamp == 0 {
		timestamp = j.Now()
	}

	j.writeRec++
	if j.segWriter == nil {
		j.writeSeg++
		sw, err := startSegment(j, j.writeSeg, timestamp, j.writeRec)
		if err != nil {
			return j.fail(err)
		}
		j.segWriter = sw
	}
	return j.fail(j.segWriter.writeRecord(timestamp, data))
}

// Commit makes the records written since the previous commit visible to
// readers, and rotates the segment once it outgrows MaxFileSize.
func (j *Journal) Commit() error {
	j.writeLock.Lock()
	defer j.writeLock.Unlock()

	if j.writeErr != nil {
		return j.writeErr
	}
	sw := j.segWriter
	if sw == nil {
		return nil
	}
	if err := sw.commit(); err != nil {
		return j.fail(err)
	}
	if j.sync {
		if err := mmap.Fdatasync(sw.f); err != nil {
			return j.fail(err)
		}
	}
	if sw.size >= j.maxFileSize {
		j.closeSegment()
	}
	return nil
}

// Close closes the current segment. Uncommitted records are left in the file
// and ignored by readers.
func (j *Journal) Close() error {
	j.writeLock.Lock()
	defer j.writeLock.Unlock()
	j.closed = true
	j.closeSegment()
	return nil
}

// Record is a committed journal record.
type Record struct {
	Segment   uint32
	ID        uint64
	Timestamp uint32
	Data      []byte
}

// Replay calls fn for every committed record in the journal at dir, oldest
// first. It stops silently at the first corrupted or uncommitted record, which
// is how an interrupted write looks. Data is only valid during the callback.
func Replay(dir string, o Options, fn func(Record) error) error {
	o.setDefaults()
	prefix, suffix, _ := strings.Cut(o.FileName, "*")
	j := &Journal{
		context:          o.Context,
		fileNamePrefix:   prefix,
		fileNameSuffix:   suffix,
		debugName:        o.DebugName,
		dir:              dir,
		logger:           o.Logger,
		journalInvariant: o.JournalInvariant,
	}
	names, err := j.segmentNames()
	if err != nil {
		return err
	}
	for _, name := range names {
		seq, _, _, _ := parseSegmentName(j.trimName(name))
		err := j.readSegment(name, seq, fn)
		if errors.Is(err, errCorruptedFile) || errors.Is(err, errCorruptedRecord) {
			o.Logger.LogAttrs(o.Context, slog.LevelWarn, "journal: replay stopped at corrupted data", slog.String("jrnl", j.debugName), slog.String("file", name))
			return nil
		} else if err != nil {
			return err
		}
	}
	return nil
}

// readSegment verifies a segment and delivers its committed records. Records
// after the last valid commit are dropped. A bad header is errCorruptedFile;
// bad record data is errCorruptedRecord, reported after delivering everything
// committed before it.
func (j *Journal) readSegment(name string, expectedSeq uint32, fn func(Record) error) error {
	r, err := mmap.Open(filepath.Join(j.dir, name), mmap.SequentialAccess)
	if err != nil {
		return err
	}
	defer r.Close()
	data := r.Data

	if len(data) < segmentHeaderSize {
		return errCorruptedFile
	}
	var h segmentHeader
	if err := j.decodeHeader(data[:segmentHeaderSize], &h, expectedSeq); err != nil {
		return err
	}
	var hash xxhash.Digest
	hash.Reset()
	hash.Write(data[:segmentHeaderSize])

	_, _, firstRec, _ := parseSegmentName(j.trimName(name))
	var pending []Record
	ts := h.Timestamp
	id := firstRec
	off := segmentHeaderSize
	for off < len(data) {
		if data[off]&recordFlagCommit != 0 {
			if len(data)-off < 8 {
				return errCorruptedRecord
			}
			var expected [8]byte
			binary.LittleEndian.PutUint64(expected[:], hash.Sum64())
			expected[0] |= recordFlagCommit
			if !bytes.Equal(expected[:], data[off:off+8]) {
				return errCorruptedRecord
			}
			hash.Write(data[off : off+8])
			off += 8
			for _, rec := range pending {
				if err := fn(rec); err != nil {
					return err
				}
			}
			pending = pending[:0]
			continue
		}

		start := off
		sizeAndFlags, n := binary.Uvarint(data[off:])
		if n <= 0 {
			return errCorruptedRecord
		}
		off += n
		tsDelta, n := binary.Uvarint(data[off:])
		if n <= 0 || tsDelta > 0xFFFF_FFFF {
			return errCorruptedRecord
		}
		off += n
		size := sizeAndFlags >> recordFlagShift
		if size > uint64(len(data)-off) {
			return errCorruptedRecord
		}
		end := off + int(size)
		hash.Write(data[start:end])
		ts += uint32(tsDelta)
		pending = append(pending, Record{Segment: h.SegmentOrdinal, ID: id, Timestamp: ts, Data: data[off:end]})
		id++
		off = end
	}
	return nil
}

func (j *Journal) decodeHeader(buf []byte, h *segmentHeader, expectedSeq uint32) error {
	n, err := binary.Decode(buf, binary.LittleEndian, h)
	if err != nil {
		panic(err)
	}
	if n != segmentHeaderSize {
		panic("internal size mismatch")
	}
	if h.Magic != magic {
		return errCorruptedFile
	}
	if xxhash.Sum64(buf[:segmentHeaderSize-8]) != h.Checksum {
		return errCorruptedFile
	}
	if expectedSeq != h.SegmentOrdinal {
		return errCorruptedFile
	}
	if h.Version > version0 {
		return ErrUnsupportedVersion
	}
	if h.JournalInvariant != j.journalInvariant {
		return ErrIncompatible
	}
	if h.Flags&segFlagAligned != 0 {
		return ErrIncompatible
	}
	return nil
}

type segmentWriter struct {
	f           *os.File
	seg         uint32
	ts          uint32
	size        int64
	hash        xxhash.Digest
	uncommitted bool
}

func startSegment(j *Journal, seg, ts uint32, rec uint64) (*segmentWriter, error) {
	name := formatSegmentName(j.fileNamePrefix, j.fileNameSuffix, seg, ts, rec)

	f, err := os.OpenFile(filepath.Join(j.dir, name), os.O_RDWR|os.O_CREATE|os.O_EXCL, 0o666)
	if err != nil {
		return nil, err
	}

	var ok bool
	defer closeAndDeleteUnlessOK(f, &ok)

	sw := &segmentWriter{
		f:    f,
		seg:  seg,
		ts:   ts,
		size: segmentHeaderSize,
	}
	sw.hash.Reset()

	var hbuf [segmentHeaderSize]byte
	fillSegmentHeader(hbuf[:], j, seg, ts, &sw.hash)

	_, err = f.Write(hbuf[:])
	if err != nil {
		return nil, err
	}

	if j.verbose {
		j.logger.LogAttrs(j.context, slog.LevelDebug, "journal: new segment", slog.String("jrnl", j.debugName), slog.String("file", name))
	}
	ok = true
	return sw, nil
}

const maxRecHeaderLen = binary.MaxVarintLen64 + binary.MaxVarintLen32

func (sw *segmentWriter) writeRecord(ts uint32, data []byte) error {
	var tsDelta uint32
	if ts > sw.ts {
		tsDelta = ts - sw.ts
		sw.ts = ts
	}
	sw.uncommitted = true

	var hbuf [maxRecHeaderLen]byte
	h := appendRecordHeader(hbuf[:0], len(data), tsDelta)

	sw.hash.Write(h)
	if _, err := sw.f.Write(h); err != nil {
		return err
	}
	sw.hash.Write(data)
	if _, err := sw.f.Write(data); err != nil {
		return err
	}
	sw.size += int64(len(h) + len(data))
	return nil
}

func (sw *segmentWriter) commit() error {
	if !sw.uncommitted {
		return nil
	}
	sw.uncommitted = false

	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], sw.hash.Sum64())
	buf[0] |= recordFlagCommit

	sw.hash.Write(buf[:])
	if _, err := sw.f.Write(buf[:]); err != nil {
		return err
	}
	sw.size += int64(len(buf))
	return nil
}

func (sw *segmentWriter) close() {
	if sw.f == nil {
		return
	}
	sw.f.Close()
	sw.f = nil
}

func closeAndDeleteUnlessOK(f *os.File, ok *bool) {
	if *ok {
		return
	}
	f.Close()
	os.Remove(f.Name())
}

func fillSegmentHeader(buf []byte, j *Journal, seg, ts uint32, hash *xxhash.Digest) {
	h := segmentHeader{
		Magic:            magic,
		Version:          version0,
		SegmentOrdinal:   seg,
		Timestamp:        ts,
		JournalInvariant: j.journalInvariant,
		SegmentInvariant: j.segmentInvariant,
	}

	n, err := binary.Encode(buf[:], binary.LittleEndian, h)
	if err != nil {
		panic(err)
	}
	if n != len(buf) {
		panic("internal size mismatch")
	}

	hash.Write(buf[:segmentHeaderSize-8])
	binary.LittleEndian.PutUint64(buf[segmentHeaderSize-8:], hash.Sum64())
	hash.Write(buf[segmentHeaderSize-8 : segmentHeaderSize])
}

func appendRecordHeader(b []byte, size int, tsDelta uint32) []byte {
	b = binary.AppendUvarint(b, uint64(size)<<recordFlagShift)
	b = binary.AppendUvarint(b, uint64(tsDelta))
	return b
}

func formatSegmentName(prefix, suffix string, seq, ts uint32, id uint64) string {
	t := time.Unix(int64(uint64(ts)), 0).UTC()
	return fmt.Sprintf("%s%012d-%s-%016x%s", prefix, seq, t.Format(timestampFmt), id, suffix)
}

func parseSegmentName(name string) (seq, ts uint32, id uint64, err error) {
	seqStr, rem, ok := strings.Cut(name, "-")
	if !ok {
		return 0, 0, 0, fmt.Errorf("invalid segment file name %q", name)
	}
	v, err := strconv.ParseUint(seqStr, 10, 32)
	if err != nil {
		return 0, 0, 0, fmt.Errorf("invalid segment file name %q (invalid segment number)", name)
	}
	seq = uint32(v)

	tsStr, idStr, ok := strings.Cut(rem, "-")
	if !ok {
		return 0, 0, 0, fmt.Errorf("invalid segment file name %q", name)
	}
	t, err := time.ParseInLocation(timestampFmt, tsStr, time.UTC)
	if err != nil {
		return seq, 0, 0, fmt.Errorf("invalid segment file name %q (invalid timestamp)", name)
	}
	ts = uint32(t.Unix())

	id, err = strconv.ParseUint(idStr, 16, 64)
	if err != nil {
		return seq, 0, 0, fmt.Errorf("invalid segment file name %q (invalid record identifier)", name)
	}
	return
}
