// Copyright (C) 2020-2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package archive holds the two storage tiers the syncer owns: Prunable
// (view-indexed verified/notarized artifacts, pruned by section) and
// Immutable (height-indexed finalized artifacts, append-only freezer). Both
// are backed by github.com/cockroachdb/pebble, the teacher's transitive KV
// engine, chosen over a hand-rolled file store for the prunable tier
// because pebble's ordered keys let Prune walk every view below the cutoff
// and delete it (with its secondary key) in one atomic batch, without
// re-implementing segment file management twice (the
// immutable tier still gets a hand-built freezer, see immutable.go, since
// its value size and durability contract are materially different).
package archive

import (
	"encoding/binary"
	"fmt"
	"sync"

	"github.com/cockroachdb/pebble"
	"github.com/luxfi/ids"
)

const (
	prunablePrimaryPrefix   = 'v'
	prunableSecondaryPrefix = 'k'
	prunableHorizonKey      = "h"
)

// Prunable is the view-indexed archive for verified blocks and
// notarizations (spec.md §4.4). Sections cover itemsPerSection consecutive
// views; Prune drops whole sections below the horizon.
type Prunable struct {
	mu              sync.Mutex
	db              *pebble.DB
	itemsPerSection uint64
	horizon         uint64 // lowest view still retained; everything below it is pruned
}

// OpenPrunable opens (or creates) a Prunable archive at dir.
func OpenPrunable(dir string, itemsPerSection uint64) (*Prunable, error) {
	db, err := pebble.Open(dir, &pebble.Options{})
	if err != nil {
		return nil, fmt.Errorf("archive: open prunable at %s: %w", dir, err)
	}
	p := &Prunable{db: db, itemsPerSection: itemsPerSection}
	if v, closer, err := db.Get([]byte(prunableHorizonKey)); err == nil {
		p.horizon = binary.BigEndian.Uint64(v)
		closer.Close()
	}
	return p, nil
}

func primaryKey(view uint64) []byte {
	k := make([]byte, 9)
	k[0] = prunablePrimaryPrefix
	binary.BigEndian.PutUint64(k[1:], view)
	return k
}

func secondaryKey(digest ids.ID) []byte {
	k := make([]byte, 1+len(digest))
	k[0] = prunableSecondaryPrefix
	copy(k[1:], digest[:])
	return k
}

// Identifier selects a lookup: either by the view index, or by the
// secondary payload-digest key.
type Identifier struct {
	byIndex bool
	view    uint64
	key     ids.ID
}

// ByIndex looks up by view.
func ByIndex(view uint64) Identifier { return Identifier{byIndex: true, view: view} }

// ByKey looks up by payload digest.
func ByKey(key ids.ID) Identifier { return Identifier{key: key} }

// PutSync writes value at view, indexed secondarily by key (the payload
// digest), and fsyncs before returning. Returns ErrAlreadyPrunedTo if view
// is below the prune horizon.
func (p *Prunable) PutSync(view uint64, key ids.ID, value []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if view < p.horizon {
		return ErrAlreadyPrunedTo
	}

	record := make([]byte, len(key)+len(value))
	copy(record, key[:])
	copy(record[len(key):], value)

	b := p.db.NewBatch()
	if err := b.Set(primaryKey(view), record, nil); err != nil {
		return err
	}
	viewBytes := make([]byte, 8)
	binary.BigEndian.PutUint64(viewBytes, view)
	if err := b.Set(secondaryKey(key), viewBytes, nil); err != nil {
		return err
	}
	return b.Commit(pebble.Sync)
}

// Get resolves an Identifier to its stored value.
func (p *Prunable) Get(id Identifier) ([]byte, error) {
	view := id.view
	if !id.byIndex {
		v, closer, err := p.db.Get(secondaryKey(id.key))
		if err == pebble.ErrNotFound {
			return nil, ErrNotFound
		} else if err != nil {
			return nil, err
		}
		view = binary.BigEndian.Uint64(v)
		closer.Close()
	}

	v, closer, err := p.db.Get(primaryKey(view))
	if err == pebble.ErrNotFound {
		return nil, ErrNotFound
	} else if err != nil {
		return nil, err
	}
	defer closer.Close()
	if len(v) < ids.IDLen {
		return nil, fmt.Errorf("archive: corrupt prunable record at view %d", view)
	}
	out := make([]byte, len(v)-ids.IDLen)
	copy(out, v[ids.IDLen:])
	return out, nil
}

// Prune drops every section whose views fall entirely below minView,
// rounding down to the nearest section boundary.
func (p *Prunable) Prune(minView uint64) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.itemsPerSection == 0 {
		return nil
	}
	cutoffSection := minView / p.itemsPerSection
	cutoff := cutoffSection * p.itemsPerSection
	if cutoff <= p.horizon {
		return nil
	}

	iter, err := p.db.NewIter(&pebble.IterOptions{
		LowerBound: primaryKey(p.horizon),
		UpperBound: primaryKey(cutoff),
	})
	if err != nil {
		return err
	}
	defer iter.Close()

	b := p.db.NewBatch()
	for iter.First(); iter.Valid(); iter.Next() {
		v := iter.Value()
		if len(v) >= ids.IDLen {
			var digest ids.ID
			copy(digest[:], v[:ids.IDLen])
			if err := b.Delete(secondaryKey(digest), nil); err != nil {
				return err
			}
		}
		if err := b.Delete(iter.Key(), nil); err != nil {
			return err
		}
	}
	horizonBytes := make([]byte, 8)
	binary.BigEndian.PutUint64(horizonBytes, cutoff)
	if err := b.Set([]byte(prunableHorizonKey), horizonBytes, nil); err != nil {
		return err
	}
	if err := b.Commit(pebble.Sync); err != nil {
		return err
	}
	p.horizon = cutoff
	return nil
}

// Horizon returns the current prune horizon (lowest still-guaranteed view).
func (p *Prunable) Horizon() uint64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.horizon
}

// Close releases the underlying pebble handle.
func (p *Prunable) Close() error {
	return p.db.Close()
}
