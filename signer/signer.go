// Copyright (C) 2020-2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package signer wraps the real threshold BLS primitives from
// github.com/luxfi/crypto/bls behind the namespace-bound sign/verify shape
// the block formats need, mirroring vms/platformvm/warp/signer.go in the
// teacher repo (a BLS-signed message, verified against a single group
// public key recovered from a quorum of partial signatures upstream in the
// consensus engine — partial-signature aggregation itself is the
// consensus engine's job, out of scope per spec.md §1).
package signer

import (
	"fmt"

	"github.com/luxfi/crypto/bls"
)

// Namespace is the fixed domain-separation prefix for every signature this
// node verifies. Sub-namespaces are derived by concatenation.
const Namespace = "_ALTO"

var (
	SeedNamespace       = []byte(Namespace + "_SEED")
	NotarizeNamespace   = []byte(Namespace + "_NOTARIZE")
	NullifyNamespace    = []byte(Namespace + "_NULLIFY")
	FinalizeNamespace   = []byte(Namespace + "_FINALIZE")
)

// Signature is a threshold BLS signature, fixed at bls.SignatureLen bytes.
type Signature [bls.SignatureLen]byte

// Bytes returns the raw signature bytes.
func (s Signature) Bytes() []byte { return s[:] }

// SignatureFromBytes parses a fixed-width signature.
func SignatureFromBytes(b []byte) (Signature, error) {
	var s Signature
	if len(b) != len(s) {
		return s, fmt.Errorf("signer: signature must be %d bytes, got %d", len(s), len(b))
	}
	copy(s[:], b)
	return s, nil
}

// Identity is the static group public key the node verifies every
// signature against; the validator set and its key are fixed at genesis
// (spec.md §1 non-goals: no reconfiguration).
type Identity struct {
	pk *bls.PublicKey
}

// NewIdentity wraps a parsed group public key.
func NewIdentity(pk *bls.PublicKey) *Identity {
	return &Identity{pk: pk}
}

// IdentityFromBytes parses the group public key published at genesis.
func IdentityFromBytes(b []byte) (*Identity, error) {
	pk, err := bls.PublicKeyFromBytes(b)
	if err != nil {
		return nil, fmt.Errorf("signer: invalid group public key: %w", err)
	}
	return &Identity{pk: pk}, nil
}

// Verify checks sig over message under namespace||message against the
// group identity. namespace selects seed/notarize/nullify/finalize.
func (id *Identity) Verify(namespace []byte, message []byte, sig Signature) bool {
	s, err := bls.SignatureFromBytes(sig.Bytes())
	if err != nil {
		return false
	}
	signed := make([]byte, 0, len(namespace)+len(message))
	signed = append(signed, namespace...)
	signed = append(signed, message...)
	return bls.Verify(id.pk, s, signed)
}

// Bytes returns the group public key bytes.
func (id *Identity) Bytes() []byte {
	return bls.PublicKeyToBytes(id.pk)
}
