// Copyright (C) 2020-2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package wire provides the fixed big-endian binary encoding primitives
// used by the wire types in block, plus Errs, a collector for errors that
// must all be reported.
package wire

import (
	"encoding/binary"
	"errors"
	"fmt"
	"strings"
	"sync"
)

// Packer accumulates bytes for a fixed-layout wire message. It never
// allocates beyond the capacity hint passed to NewPacker.
type Packer struct {
	Bytes []byte
}

// NewPacker returns a Packer with size pre-reserved.
func NewPacker(size int) *Packer {
	return &Packer{Bytes: make([]byte, 0, size)}
}

// PackByte appends a single byte.
func (p *Packer) PackByte(b byte) {
	p.Bytes = append(p.Bytes, b)
}

// PackBytes appends a raw byte slice verbatim (no length prefix — every
// field in this wire format has a fixed, spec-defined width).
func (p *Packer) PackBytes(b []byte) {
	p.Bytes = append(p.Bytes, b...)
}

// PackUint64 appends a big-endian uint64.
func (p *Packer) PackUint64(v uint64) {
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], v)
	p.Bytes = append(p.Bytes, buf[:]...)
}

// Unpacker reads fields off a byte slice in order, recording the first
// error encountered so callers can chain calls without checking each one.
type Unpacker struct {
	Bytes  []byte
	offset int
	Err    error
}

// NewUnpacker wraps b for sequential field reads.
func NewUnpacker(b []byte) *Unpacker {
	return &Unpacker{Bytes: b}
}

// UnpackBytes reads the next n bytes.
func (u *Unpacker) UnpackBytes(n int) []byte {
	if u.Err != nil {
		return nil
	}
	if u.offset+n > len(u.Bytes) {
		u.Err = fmt.Errorf("wire: short read: need %d bytes at offset %d, have %d", n, u.offset, len(u.Bytes))
		return nil
	}
	out := make([]byte, n)
	copy(out, u.Bytes[u.offset:u.offset+n])
	u.offset += n
	return out
}

// UnpackUint64 reads the next 8 bytes as a big-endian uint64.
func (u *Unpacker) UnpackUint64() uint64 {
	b := u.UnpackBytes(8)
	if u.Err != nil {
		return 0
	}
	return binary.BigEndian.Uint64(b)
}

// UnpackByte reads the next byte.
func (u *Unpacker) UnpackByte() byte {
	b := u.UnpackBytes(1)
	if u.Err != nil {
		return 0
	}
	return b[0]
}

// Done returns an error if any bytes remain unconsumed, or if a prior
// unpack failed.
func (u *Unpacker) Done() error {
	if u.Err != nil {
		return u.Err
	}
	if u.offset != len(u.Bytes) {
		return fmt.Errorf("wire: %d trailing bytes", len(u.Bytes)-u.offset)
	}
	return nil
}

// Errs collects errors from concurrent or sequential operations that must
// all be reported, e.g. metrics.NewAveragerWithErrs recording registration
// failures. Safe for concurrent use.
type Errs struct {
	mu   sync.Mutex
	errs []error
}

// Add records err, ignoring nil.
func (e *Errs) Add(err error) {
	if err == nil {
		return
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.errs = append(e.errs, err)
}

// Errored reports whether any error has been recorded.
func (e *Errs) Errored() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.errs) > 0
}

// Err collapses the recorded errors into a single error, or nil.
func (e *Errs) Err() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	switch len(e.errs) {
	case 0:
		return nil
	case 1:
		return e.errs[0]
	default:
		var sb strings.Builder
		sb.WriteString(fmt.Sprintf("%d errors occurred:", len(e.errs)))
		for _, err := range e.errs {
			sb.WriteString("\n\t* ")
			sb.WriteString(err.Error())
		}
		return errors.New(sb.String())
	}
}
