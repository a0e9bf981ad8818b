// Copyright (C) 2020-2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package key implements the resolver's MultiIndex: a tagged union over
// the three things a peer can be asked for, serialized to a fixed-width,
// ordered, hashable key (spec.md §3 "MultiIndex key").
package key

import (
	"bytes"
	"fmt"

	"github.com/luxfi/ids"
)

// Kind discriminates the three key shapes.
type Kind byte

const (
	KindNotarized Kind = 0
	KindFinalized Kind = 1
	KindDigest    Kind = 2
)

// payloadLen is max(8, 32): the key is zero-padded to this width so every
// Kind produces a fixed-size, Ord/Hash-able key.
const payloadLen = ids.IDLen

// Len is the total fixed wire width of a Key: 1 tag byte + payloadLen.
const Len = 1 + payloadLen

// Key is a comparable, fixed-width fetch key. Two keys are equal (and
// hash equal) iff their tag and payload bytes are equal.
type Key struct {
	kind    Kind
	payload [payloadLen]byte
}

// Notarized builds a key requesting the notarized bundle for view.
func Notarized(view uint64) Key {
	var k Key
	k.kind = KindNotarized
	putUint64(k.payload[:], view)
	return k
}

// Finalized builds a key requesting the finalized bundle for height.
func Finalized(height uint64) Key {
	var k Key
	k.kind = KindFinalized
	putUint64(k.payload[:], height)
	return k
}

// Digest builds a key requesting a block by content digest.
func Digest(d ids.ID) Key {
	var k Key
	k.kind = KindDigest
	copy(k.payload[:], d[:])
	return k
}

func putUint64(b []byte, v uint64) {
	for i := 7; i >= 0; i-- {
		b[i] = byte(v)
		v >>= 8
	}
}

func getUint64(b []byte) uint64 {
	var v uint64
	for i := 0; i < 8; i++ {
		v = v<<8 | uint64(b[i])
	}
	return v
}

// Kind reports which of the three shapes this key is.
func (k Key) Kind() Kind { return k.kind }

// View is valid only when Kind() == KindNotarized.
func (k Key) View() uint64 { return getUint64(k.payload[:8]) }

// Height is valid only when Kind() == KindFinalized.
func (k Key) Height() uint64 { return getUint64(k.payload[:8]) }

// Digest is valid only when Kind() == KindDigest.
func (k Key) Digest() ids.ID {
	var d ids.ID
	copy(d[:], k.payload[:])
	return d
}

// Less gives Key a total order, so it can back an OrderedSet.
func (k Key) Less(other Key) bool {
	if k.kind != other.kind {
		return k.kind < other.kind
	}
	return bytes.Compare(k.payload[:], other.payload[:]) < 0
}

// Bytes encodes the key to its fixed Len-byte wire form.
func (k Key) Bytes() []byte {
	out := make([]byte, Len)
	out[0] = byte(k.kind)
	copy(out[1:], k.payload[:])
	return out
}

// Parse decodes a Key from its fixed wire form.
func Parse(b []byte) (Key, error) {
	var k Key
	if len(b) != Len {
		return k, fmt.Errorf("key: expected %d bytes, got %d", Len, len(b))
	}
	k.kind = Kind(b[0])
	if k.kind > KindDigest {
		return k, fmt.Errorf("key: unknown tag %d", b[0])
	}
	copy(k.payload[:], b[1:])
	return k, nil
}

func (k Key) String() string {
	switch k.kind {
	case KindNotarized:
		return fmt.Sprintf("notarized(view=%d)", k.View())
	case KindFinalized:
		return fmt.Sprintf("finalized(height=%d)", k.Height())
	default:
		d := k.Digest()
		return fmt.Sprintf("digest(%s)", d)
	}
}
