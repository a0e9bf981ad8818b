// Copyright (C) 2020-2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package block defines the canonical wire types of the chain: Block,
// Seed, Notarization, Finalization, and the Notarized/Finalized envelopes
// that bind a proof to the block it attests. Encoding is fixed-width
// big-endian binary throughout (spec.md §6), built on the wire.Packer/
// Unpacker primitives adapted from the teacher's utils/wrappers.Packer.
package block

import (
	"crypto/sha256"
	"encoding/binary"
	"fmt"

	"github.com/luxfi/alto/signer"
	"github.com/luxfi/alto/wire"
	"github.com/luxfi/ids"
)

// GenesisBytes is the hard-coded namespace string the genesis block's
// parent digest is derived from.
const GenesisBytes = "commonware is neat"

// DigestLen is the fixed length of a SHA-256 digest.
const DigestLen = 32

// SignatureLen is the fixed length of a threshold BLS signature.
var SignatureLen = len(signer.Signature{})

// BlockLen is the fixed wire length of a Block: parent[32] || height[8] ||
// timestamp[8].
const BlockLen = DigestLen + 8 + 8

// Block is the chain's only payload: a parent link, a height, and a
// millisecond timestamp. No transactions, no state transitions
// (spec.md §1 non-goals).
type Block struct {
	parent    ids.ID
	height    uint64
	timestamp uint64 // milliseconds
	digest    ids.ID // cached on construction
}

// New constructs a Block and caches its digest.
func New(parent ids.ID, height uint64, timestamp uint64) *Block {
	b := &Block{parent: parent, height: height, timestamp: timestamp}
	b.digest = computeDigest(parent, height, timestamp)
	return b
}

func computeDigest(parent ids.ID, height, timestamp uint64) ids.ID {
	h := sha256.New()
	h.Write(parent[:])
	var be [8]byte
	binary.BigEndian.PutUint64(be[:], height)
	h.Write(be[:])
	binary.BigEndian.PutUint64(be[:], timestamp)
	h.Write(be[:])
	var out ids.ID
	copy(out[:], h.Sum(nil))
	return out
}

func (b *Block) Parent() ids.ID    { return b.parent }
func (b *Block) Height() uint64    { return b.height }
func (b *Block) Timestamp() uint64 { return b.timestamp }
func (b *Block) Digest() ids.ID    { return b.digest }

// Bytes encodes the block to its fixed 48-byte wire form.
func (b *Block) Bytes() []byte {
	p := wire.NewPacker(BlockLen)
	p.PackBytes(b.parent[:])
	p.PackUint64(b.height)
	p.PackUint64(b.timestamp)
	return p.Bytes
}

// ParseBlock decodes a Block from its fixed 48-byte wire form.
func ParseBlock(b []byte) (*Block, error) {
	if len(b) != BlockLen {
		return nil, fmt.Errorf("block: expected %d bytes, got %d", BlockLen, len(b))
	}
	u := wire.NewUnpacker(b)
	parentBytes := u.UnpackBytes(DigestLen)
	height := u.UnpackUint64()
	timestamp := u.UnpackUint64()
	if err := u.Done(); err != nil {
		return nil, err
	}
	var parent ids.ID
	copy(parent[:], parentBytes)
	return New(parent, height, timestamp), nil
}

// Genesis returns the constant genesis block: parent is the digest of the
// hard-coded namespace string, height 0, timestamp 0.
func Genesis() *Block {
	var parent ids.ID
	sum := sha256.Sum256([]byte(GenesisBytes))
	copy(parent[:], sum[:])
	return New(parent, 0, 0)
}

// Seed is the threshold-signed randomness for a view, also usable as a
// standalone artifact.
type Seed struct {
	view      uint64
	signature signer.Signature
}

// NewSeed constructs a Seed.
func NewSeed(view uint64, sig signer.Signature) *Seed {
	return &Seed{view: view, signature: sig}
}

func (s *Seed) View() uint64               { return s.view }
func (s *Seed) Signature() signer.Signature { return s.signature }

// SeedLen is Seed's fixed wire length.
var SeedLen = 8 + len(signer.Signature{})

func (s *Seed) signedMessage() []byte {
	p := wire.NewPacker(8)
	p.PackUint64(s.view)
	return p.Bytes
}

func (s *Seed) Bytes() []byte {
	p := wire.NewPacker(SeedLen)
	p.PackUint64(s.view)
	p.PackBytes(s.signature.Bytes())
	return p.Bytes
}

func ParseSeed(b []byte) (*Seed, error) {
	if len(b) != SeedLen {
		return nil, fmt.Errorf("seed: expected %d bytes, got %d", SeedLen, len(b))
	}
	u := wire.NewUnpacker(b)
	view := u.UnpackUint64()
	sigBytes := u.UnpackBytes(len(signer.Signature{}))
	if err := u.Done(); err != nil {
		return nil, err
	}
	sig, err := signer.SignatureFromBytes(sigBytes)
	if err != nil {
		return nil, err
	}
	return &Seed{view: view, signature: sig}, nil
}

// Verify checks the seed's signature under the seed sub-namespace.
func (s *Seed) Verify(id *signer.Identity) bool {
	return id.Verify(signer.SeedNamespace, s.signedMessage(), s.signature)
}

// attestationLen is the fixed wire length of the core attestation that
// Notarization/Finalization begin with: view[8] || parent_view[8] ||
// payload[32] || sig[L_sig] (the full proof length is notarizedLen).
var attestationLen = 8 + 8 + DigestLen + len(signer.Signature{})

// ProofLen exposes the fixed wire length of a Notarization/Finalization
// (attestation + seed signature) for callers sizing buffers.
func ProofLen() int { return notarizedLen }

func attestationSignedMessage(view, parentView uint64, payload ids.ID) []byte {
	p := wire.NewPacker(8 + 8 + DigestLen)
	p.PackUint64(view)
	p.PackUint64(parentView)
	p.PackBytes(payload[:])
	return p.Bytes
}

func attestationBytes(view, parentView uint64, payload ids.ID, sig signer.Signature) []byte {
	p := wire.NewPacker(attestationLen)
	p.PackUint64(view)
	p.PackUint64(parentView)
	p.PackBytes(payload[:])
	p.PackBytes(sig.Bytes())
	return p.Bytes
}

func parseAttestationFields(b []byte) (view, parentView uint64, payload ids.ID, sig signer.Signature, err error) {
	u := wire.NewUnpacker(b)
	view = u.UnpackUint64()
	parentView = u.UnpackUint64()
	payloadBytes := u.UnpackBytes(DigestLen)
	sigBytes := u.UnpackBytes(len(signer.Signature{}))
	if err = u.Done(); err != nil {
		return
	}
	sig, err = signer.SignatureFromBytes(sigBytes)
	if err != nil {
		return
	}
	copy(payload[:], payloadBytes)
	return
}

// notarizedLen is the fixed wire length of Notarization/Finalization: the
// core attestation plus a second threshold signature over the seed
// namespace, so every view's consensus round yields both a finalization
// vote and a verifiable-randomness beacon in one message (mirrors the
// original implementation's consensus engine attaching a seed share to
// each notarization/finalization activity; see Seed()).
var notarizedLen = attestationLen + len(signer.Signature{})

// Notarization attests that a view's proposal gathered enough votes to be
// a finalization candidate. The core signature binds (view, parent_view,
// payload); the seed signature binds only view, under a distinct
// namespace, and doubles as the view's randomness beacon.
type Notarization struct {
	view       uint64
	parentView uint64
	payload    ids.ID
	signature  signer.Signature
	seedSig    signer.Signature
}

func NewNotarization(view, parentView uint64, payload ids.ID, sig, seedSig signer.Signature) *Notarization {
	return &Notarization{view: view, parentView: parentView, payload: payload, signature: sig, seedSig: seedSig}
}

func (n *Notarization) View() uint64               { return n.view }
func (n *Notarization) ParentView() uint64         { return n.parentView }
func (n *Notarization) Payload() ids.ID            { return n.payload }
func (n *Notarization) Signature() signer.Signature { return n.signature }

// Seed extracts this view's randomness beacon, uploaded to the indexer
// alongside the notarization.
func (n *Notarization) Seed() *Seed { return NewSeed(n.view, n.seedSig) }

func (n *Notarization) Bytes() []byte {
	out := make([]byte, 0, notarizedLen)
	out = append(out, attestationBytes(n.view, n.parentView, n.payload, n.signature)...)
	out = append(out, n.seedSig.Bytes()...)
	return out
}

// Verify checks both the notarization's core signature under the notarize
// namespace and its seed signature under the seed namespace.
func (n *Notarization) Verify(id *signer.Identity) bool {
	if !id.Verify(signer.NotarizeNamespace, attestationSignedMessage(n.view, n.parentView, n.payload), n.signature) {
		return false
	}
	return n.Seed().Verify(id)
}

func ParseNotarization(b []byte) (*Notarization, error) {
	if len(b) != notarizedLen {
		return nil, fmt.Errorf("notarization: expected %d bytes, got %d", notarizedLen, len(b))
	}
	view, parentView, payload, sig, err := parseAttestationFields(b[:attestationLen])
	if err != nil {
		return nil, err
	}
	seedSig, err := signer.SignatureFromBytes(b[attestationLen:])
	if err != nil {
		return nil, err
	}
	return &Notarization{view: view, parentView: parentView, payload: payload, signature: sig, seedSig: seedSig}, nil
}

// Finalization attests that a proposal is irrevocably committed. Same wire
// shape as Notarization (core attestation plus a seed signature), under
// the finalize sub-namespace.
type Finalization struct {
	view       uint64
	parentView uint64
	payload    ids.ID
	signature  signer.Signature
	seedSig    signer.Signature
}

func NewFinalization(view, parentView uint64, payload ids.ID, sig, seedSig signer.Signature) *Finalization {
	return &Finalization{view: view, parentView: parentView, payload: payload, signature: sig, seedSig: seedSig}
}

func (f *Finalization) View() uint64               { return f.view }
func (f *Finalization) ParentView() uint64         { return f.parentView }
func (f *Finalization) Payload() ids.ID            { return f.payload }
func (f *Finalization) Signature() signer.Signature { return f.signature }

// Seed extracts this view's randomness beacon, uploaded to the indexer
// alongside the finalization.
func (f *Finalization) Seed() *Seed { return NewSeed(f.view, f.seedSig) }

func (f *Finalization) Bytes() []byte {
	out := make([]byte, 0, notarizedLen)
	out = append(out, attestationBytes(f.view, f.parentView, f.payload, f.signature)...)
	out = append(out, f.seedSig.Bytes()...)
	return out
}

// Verify checks both the finalization's core signature under the finalize
// namespace and its seed signature under the seed namespace.
func (f *Finalization) Verify(id *signer.Identity) bool {
	if !id.Verify(signer.FinalizeNamespace, attestationSignedMessage(f.view, f.parentView, f.payload), f.signature) {
		return false
	}
	return f.Seed().Verify(id)
}

func ParseFinalization(b []byte) (*Finalization, error) {
	if len(b) != notarizedLen {
		return nil, fmt.Errorf("finalization: expected %d bytes, got %d", notarizedLen, len(b))
	}
	view, parentView, payload, sig, err := parseAttestationFields(b[:attestationLen])
	if err != nil {
		return nil, err
	}
	seedSig, err := signer.SignatureFromBytes(b[attestationLen:])
	if err != nil {
		return nil, err
	}
	return &Finalization{view: view, parentView: parentView, payload: payload, signature: sig, seedSig: seedSig}, nil
}

// Notarized binds a Notarization to the block it attests. Deserialization
// enforces proof.Payload() == block.Digest().
type Notarized struct {
	Proof *Notarization
	Block *Block
}

func (n *Notarized) Bytes() []byte {
	out := make([]byte, 0, notarizedLen+BlockLen)
	out = append(out, n.Proof.Bytes()...)
	out = append(out, n.Block.Bytes()...)
	return out
}

func ParseNotarized(b []byte) (*Notarized, error) {
	if len(b) != notarizedLen+BlockLen {
		return nil, fmt.Errorf("notarized: expected %d bytes, got %d", notarizedLen+BlockLen, len(b))
	}
	proof, err := ParseNotarization(b[:notarizedLen])
	if err != nil {
		return nil, err
	}
	blk, err := ParseBlock(b[notarizedLen:])
	if err != nil {
		return nil, err
	}
	if proof.Payload() != blk.Digest() {
		return nil, fmt.Errorf("notarized: proof payload %s != block digest %s", proof.Payload(), blk.Digest())
	}
	return &Notarized{Proof: proof, Block: blk}, nil
}

// Finalized binds a Finalization to the block it attests. Same invariant
// as Notarized.
type Finalized struct {
	Proof *Finalization
	Block *Block
}

func (f *Finalized) Bytes() []byte {
	out := make([]byte, 0, notarizedLen+BlockLen)
	out = append(out, f.Proof.Bytes()...)
	out = append(out, f.Block.Bytes()...)
	return out
}

func ParseFinalized(b []byte) (*Finalized, error) {
	if len(b) != notarizedLen+BlockLen {
		return nil, fmt.Errorf("finalized: expected %d bytes, got %d", notarizedLen+BlockLen, len(b))
	}
	proof, err := ParseFinalization(b[:notarizedLen])
	if err != nil {
		return nil, err
	}
	blk, err := ParseBlock(b[notarizedLen:])
	if err != nil {
		return nil, err
	}
	if proof.Payload() != blk.Digest() {
		return nil, fmt.Errorf("finalized: proof payload %s != block digest %s", proof.Payload(), blk.Digest())
	}
	return &Finalized{Proof: proof, Block: blk}, nil
}
