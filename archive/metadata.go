// Copyright (C) 2020-2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package archive

import (
	"encoding/binary"

	"github.com/cockroachdb/pebble"
)

var lastIndexedHeightKey = []byte("last_indexed_height")

// Metadata is the single-slot key-value store holding the finalizer's
// durable cursor (spec.md §3 "Metadata"). It is its own pebble instance so
// the cursor write can be fsynced independently of the archives it
// describes.
type Metadata struct {
	db *pebble.DB
}

// OpenMetadata opens (or creates) the metadata partition at dir.
func OpenMetadata(dir string) (*Metadata, error) {
	db, err := pebble.Open(dir, &pebble.Options{})
	if err != nil {
		return nil, err
	}
	return &Metadata{db: db}, nil
}

// LastIndexedHeight returns the durably-written cursor, or 0 if absent.
func (m *Metadata) LastIndexedHeight() (uint64, error) {
	v, closer, err := m.db.Get(lastIndexedHeightKey)
	if err == pebble.ErrNotFound {
		return 0, nil
	} else if err != nil {
		return 0, err
	}
	defer closer.Close()
	return binary.BigEndian.Uint64(v), nil
}

// SetLastIndexedHeight durably (fsync) advances the cursor. Callers must
// only call this after the application has observed the height
// (spec.md §4.8 durability ordering invariant).
func (m *Metadata) SetLastIndexedHeight(height uint64) error {
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, height)
	return m.db.Set(lastIndexedHeightKey, buf, pebble.Sync)
}

// Close releases the underlying pebble handle.
func (m *Metadata) Close() error {
	return m.db.Close()
}
