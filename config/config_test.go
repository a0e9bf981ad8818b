// Copyright (C) 2020-2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package config

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func validConfig() Config {
	cfg := Default()
	cfg.GroupPublicKey = "aabb"
	cfg.LocalNodeID = "ccdd"
	cfg.Roster = []RosterEntry{{NodeID: "ccdd"}}
	return cfg
}

func TestDefaultIsInvalidWithoutIdentity(t *testing.T) {
	cfg := Default()
	require.Error(t, cfg.Validate())
}

func TestValidConfigPasses(t *testing.T) {
	require.NoError(t, validConfig().Validate())
}

func TestValidateRejectsEmptyDataDir(t *testing.T) {
	cfg := validConfig()
	cfg.DataDir = ""
	require.ErrorIs(t, cfg.Validate(), ErrInvalidDataDir)
}

func TestValidateRejectsZeroSections(t *testing.T) {
	cfg := validConfig()
	cfg.PrunableItemsPerSection = 0
	require.ErrorIs(t, cfg.Validate(), ErrInvalidSections)

	cfg = validConfig()
	cfg.ImmutableItemsPerSection = 0
	require.ErrorIs(t, cfg.Validate(), ErrInvalidSections)
}

func TestValidateRejectsZeroActivityTimeout(t *testing.T) {
	cfg := validConfig()
	cfg.ActivityTimeout = 0
	require.ErrorIs(t, cfg.Validate(), ErrInvalidActivityTO)
}

func TestValidateRejectsNegativeSynchronyBound(t *testing.T) {
	cfg := validConfig()
	cfg.SynchronyBound = -1
	require.ErrorIs(t, cfg.Validate(), ErrInvalidSynchronyBound)
}

func TestValidateRejectsMissingGroupKey(t *testing.T) {
	cfg := validConfig()
	cfg.GroupPublicKey = ""
	require.ErrorIs(t, cfg.Validate(), ErrInvalidGroupKey)
}

func TestValidateRejectsMissingLocalNodeID(t *testing.T) {
	cfg := validConfig()
	cfg.LocalNodeID = ""
	require.ErrorIs(t, cfg.Validate(), ErrInvalidLocalNodeID)
}

func TestValidateRejectsEmptyRoster(t *testing.T) {
	cfg := validConfig()
	cfg.Roster = nil
	require.ErrorIs(t, cfg.Validate(), ErrEmptyRoster)
}
