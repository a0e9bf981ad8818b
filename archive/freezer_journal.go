// Copyright (C) 2020-2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package archive

import (
	"encoding/binary"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/klauspost/compress/zstd"
)

// journalSegmentTarget is the size (bytes) a journal segment grows to
// before a new segment file is opened (spec.md §6 FREEZER_JOURNAL_TARGET).
const journalSegmentTarget = 1 << 30 // 1 GiB

// location pinpoints a record inside the journal.
type location struct {
	segment    uint32
	offset     int64
	length     uint32
	compressed bool
}

// journal is the append-only segmented log backing the immutable archive.
// Each record is length-prefixed and optionally zstd-compressed at level 3.
type journal struct {
	mu         sync.Mutex
	dir        string
	segment    uint32
	file       *os.File
	size       int64
	encoder    *zstd.Encoder
	decoder    *zstd.Decoder
	compress   bool
}

func openJournal(dir string, compress bool) (*journal, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	enc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return nil, err
	}
	dec, err := zstd.NewReader(nil)
	if err != nil {
		return nil, err
	}
	j := &journal{dir: dir, encoder: enc, decoder: dec, compress: compress}
	if err := j.openSegment(0); err != nil {
		return nil, err
	}
	return j, nil
}

func (j *journal) segmentPath(seg uint32) string {
	return filepath.Join(j.dir, fmt.Sprintf("%010d.journal", seg))
}

func (j *journal) openSegment(seg uint32) error {
	if j.file != nil {
		if err := j.file.Close(); err != nil {
			return err
		}
	}
	f, err := os.OpenFile(j.segmentPath(seg), os.O_CREATE|os.O_RDWR|os.O_APPEND, 0o644)
	if err != nil {
		return err
	}
	info, err := f.Stat()
	if err != nil {
		return err
	}
	j.file = f
	j.segment = seg
	j.size = info.Size()
	return nil
}

// append writes payload (optionally compressed) and returns its location.
// Durable once the caller fsyncs (append itself does not fsync;
// Immutable.PutSync calls sync right after append, before it records the
// location in the freezer table, which fsyncs its own log).
func (j *journal) append(payload []byte) (location, error) {
	j.mu.Lock()
	defer j.mu.Unlock()

	stored := payload
	compressed := false
	if j.compress {
		c := j.encoder.EncodeAll(payload, nil)
		if len(c) < len(payload) {
			stored = c
			compressed = true
		}
	}

	if j.size > 0 && j.size+int64(len(stored))+4 > journalSegmentTarget {
		if err := j.openSegment(j.segment + 1); err != nil {
			return location{}, err
		}
	}

	var lenBuf [4]byte
	binary.BigEndian.PutUint32(lenBuf[:], uint32(len(stored)))
	if _, err := j.file.Write(lenBuf[:]); err != nil {
		return location{}, err
	}
	offset := j.size + 4
	if _, err := j.file.Write(stored); err != nil {
		return location{}, err
	}
	j.size += int64(len(stored)) + 4

	return location{segment: j.segment, offset: offset, length: uint32(len(stored)), compressed: compressed}, nil
}

func (j *journal) sync() error {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.file.Sync()
}

func (j *journal) read(loc location) ([]byte, error) {
	j.mu.Lock()
	path := j.segmentPath(loc.segment)
	j.mu.Unlock()

	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	buf := make([]byte, loc.length)
	if _, err := f.ReadAt(buf, loc.offset); err != nil {
		return nil, err
	}
	if !loc.compressed {
		return buf, nil
	}
	return j.decoder.DecodeAll(buf, nil)
}

func (j *journal) close() error {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.encoder.Close()
	j.decoder.Close()
	return j.file.Close()
}
