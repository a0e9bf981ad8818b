// Copyright (C) 2020-2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package supervisor holds the static participant roster and deterministic
// leader election, mirroring the teacher's validator-set abstractions
// (utils/validator, utils/ids) but fixed at genesis: spec.md §1 excludes
// validator-set reconfiguration, so there is no epoch argument beyond the
// view used for leader selection.
package supervisor

import (
	"crypto/sha256"
	"encoding/binary"
	"sort"

	"github.com/luxfi/alto/signer"
	"github.com/luxfi/crypto/bls"
	"github.com/luxfi/ids"
)

// leaderNamespace domain-separates the leader-election hash from any
// signature namespace.
var leaderNamespace = []byte("_ALTO_LEADER")

// Participant is one member of the fixed validator set.
type Participant struct {
	NodeID ids.NodeID
	Share  *bls.PublicKey // this participant's partial public key, if known
}

// Supervisor answers the consensus engine's static roster and leader
// questions, and hands back the group identity and local share for
// signing/verification.
type Supervisor struct {
	participants []Participant
	index        map[ids.NodeID]int
	identity     *signer.Identity
	polynomial   []byte // the serialized threshold public polynomial, opaque here
	localShare   *bls.SecretKey
}

// New constructs a Supervisor from the group identity, the threshold
// polynomial (kept opaque — only the consensus engine's signer interprets
// it), and the sorted participant list.
func New(identity *signer.Identity, polynomial []byte, participants []Participant, localShare *bls.SecretKey) *Supervisor {
	sorted := make([]Participant, len(participants))
	copy(sorted, participants)
	sort.Slice(sorted, func(i, j int) bool {
		return lessNodeID(sorted[i].NodeID, sorted[j].NodeID)
	})
	idx := make(map[ids.NodeID]int, len(sorted))
	for i, p := range sorted {
		idx[p.NodeID] = i
	}
	return &Supervisor{
		participants: sorted,
		index:        idx,
		identity:     identity,
		polynomial:   polynomial,
		localShare:   localShare,
	}
}

func lessNodeID(a, b ids.NodeID) bool {
	for i := range a {
		if a[i] != b[i] {
			return a[i] < b[i]
		}
	}
	return false
}

// Participants returns the ordered roster. view is accepted but ignored:
// the set is constant (spec.md §1).
func (s *Supervisor) Participants(view uint64) []Participant {
	return s.participants
}

// IsParticipant reports whether nodeID is in the roster, and its index.
func (s *Supervisor) IsParticipant(view uint64, nodeID ids.NodeID) (int, bool) {
	i, ok := s.index[nodeID]
	return i, ok
}

// Leader deterministically selects the view's leader from the seed bytes:
// SHA-256(leaderNamespace || be64(view) || seed), first 8 bytes mod n,
// domain-separated so it cannot be confused with any signature hash.
func (s *Supervisor) Leader(view uint64, seed []byte) ids.NodeID {
	n := len(s.participants)
	if n == 0 {
		return ids.NodeID{}
	}
	h := sha256.New()
	h.Write(leaderNamespace)
	var be [8]byte
	binary.BigEndian.PutUint64(be[:], view)
	h.Write(be[:])
	h.Write(seed)
	sum := h.Sum(nil)
	idx := int(binary.BigEndian.Uint64(sum[:8]) % uint64(n))
	return s.participants[idx].NodeID
}

// Identity returns the group's static threshold public identity.
func (s *Supervisor) Identity() *signer.Identity { return s.identity }

// Polynomial returns the opaque serialized threshold public polynomial.
func (s *Supervisor) Polynomial() []byte { return s.polynomial }

// Share returns this node's local secret share, if it holds one.
func (s *Supervisor) Share() *bls.SecretKey { return s.localShare }
