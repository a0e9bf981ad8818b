// Copyright (C) 2020-2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package archive

import (
	"encoding/binary"
	"path/filepath"
	"sync"

	"github.com/cockroachdb/pebble"
	"github.com/luxfi/ids"
)

// Immutable is the height-indexed archive for finalized blocks and
// finalizations (spec.md §4.5): a freezer table + journal for content, and
// an ordinal layer (a pebble-backed sparse index) mapping height → table
// key and supporting the NextGap query the finalizer uses for repair.
type Immutable struct {
	table   *freezerTable
	journal *journal
	ordinal *pebble.DB
}

// ImmutableConfig carries the tunables from spec.md §6.
type ImmutableConfig struct {
	ResizeFrequency int
	ResizeChunk     int
	JournalCompress bool
}

// OpenImmutable opens (or creates) an Immutable archive rooted at dir.
func OpenImmutable(dir string, cfg ImmutableConfig) (*Immutable, error) {
	table, err := openFreezerTable(filepath.Join(dir, "table"), cfg.ResizeFrequency, cfg.ResizeChunk)
	if err != nil {
		return nil, err
	}
	j, err := openJournal(filepath.Join(dir, "journal"), cfg.JournalCompress)
	if err != nil {
		return nil, err
	}
	ordinal, err := pebble.Open(filepath.Join(dir, "ordinal"), &pebble.Options{})
	if err != nil {
		return nil, err
	}
	return &Immutable{table: table, journal: j, ordinal: ordinal}, nil
}

func ordinalKey(height uint64) []byte {
	k := make([]byte, 8)
	binary.BigEndian.PutUint64(k, height)
	return k
}

// PutSync writes value at height, indexed by key, fsyncing the journal and
// the table before returning. Calling it twice with the same (height, key)
// is idempotent.
func (im *Immutable) PutSync(height uint64, key ids.ID, value []byte) error {
	var tkey [32]byte
	copy(tkey[:], key[:])

	if v, closer, err := im.ordinal.Get(ordinalKey(height)); err == nil {
		existing := make([]byte, len(v))
		copy(existing, v)
		closer.Close()
		if [32]byte(existing[:32]) == tkey {
			return nil // already written, idempotent no-op
		}
	}

	loc, err := im.journal.append(value)
	if err != nil {
		return err
	}
	if err := im.journal.sync(); err != nil {
		return err
	}
	if err := im.table.put(tkey, loc); err != nil {
		return err
	}
	return im.ordinal.Set(ordinalKey(height), tkey[:], pebble.Sync)
}

// GetByIndex reads the value stored at height.
func (im *Immutable) GetByIndex(height uint64) ([]byte, error) {
	v, closer, err := im.ordinal.Get(ordinalKey(height))
	if err == pebble.ErrNotFound {
		return nil, ErrNotFound
	} else if err != nil {
		return nil, err
	}
	var tkey [32]byte
	copy(tkey[:], v)
	closer.Close()
	return im.readTableKey(tkey)
}

// GetByKey reads the value stored under key directly.
func (im *Immutable) GetByKey(key ids.ID) ([]byte, error) {
	var tkey [32]byte
	copy(tkey[:], key[:])
	return im.readTableKey(tkey)
}

func (im *Immutable) readTableKey(tkey [32]byte) ([]byte, error) {
	loc, ok := im.table.get(tkey)
	if !ok {
		return nil, ErrNotFound
	}
	return im.journal.read(loc)
}

// NextGap finds the contiguous run of populated heights starting at start,
// and the next populated height beyond the gap that follows it
// (spec.md §4.5). ok is false if nothing is populated at or after start,
// and also when the run starting at start reaches the highest populated
// height (no gap follows it); lastContiguous is then that height.
func (im *Immutable) NextGap(start uint64) (lastContiguous uint64, firstBeyondGap uint64, ok bool) {
	iter, err := im.ordinal.NewIter(&pebble.IterOptions{LowerBound: ordinalKey(start)})
	if err != nil {
		return 0, 0, false
	}
	defer iter.Close()

	if !iter.First() {
		return 0, 0, false
	}

	cur := binary.BigEndian.Uint64(iter.Key())
	if cur != start {
		// start itself is missing: nothing contiguous, data resumes at cur.
		return start - 1, cur, true
	}

	last := cur
	for iter.Next() {
		h := binary.BigEndian.Uint64(iter.Key())
		if h == last+1 {
			last = h
			continue
		}
		return last, h, true
	}
	// Contiguous all the way to the end of the index: no gap beyond it.
	return last, last, false
}

// Close releases the underlying handles.
func (im *Immutable) Close() error {
	if err := im.table.close(); err != nil {
		return err
	}
	if err := im.journal.close(); err != nil {
		return err
	}
	return im.ordinal.Close()
}
