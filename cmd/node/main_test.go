// Copyright (C) 2020-2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/luxfi/alto/config"
	"github.com/luxfi/alto/logging"
	"github.com/stretchr/testify/require"
)

func writeConfigFile(t *testing.T, contents string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o644))
	return path
}

func TestLoadConfigParsesYAMLOverDefaults(t *testing.T) {
	path := writeConfigFile(t, "data_dir: /tmp/alto-data\nlog_level: debug\nactivity_timeout: 64\n")

	cfg, err := loadConfig(path)
	require.NoError(t, err)
	require.Equal(t, "/tmp/alto-data", cfg.DataDir)
	require.Equal(t, "debug", cfg.LogLevel)
	require.Equal(t, uint64(64), cfg.ActivityTimeout)
	// Untouched fields keep their Default() values.
	require.Equal(t, config.Default().MaxRepair, cfg.MaxRepair)
}

func TestLoadConfigMissingFileReturnsError(t *testing.T) {
	_, err := loadConfig(filepath.Join(t.TempDir(), "does-not-exist.yaml"))
	require.Error(t, err)
}

func TestLoadIdentitiesRejectsInvalidGroupPublicKeyHex(t *testing.T) {
	cfg := config.Default()
	cfg.GroupPublicKey = "not-hex"
	cfg.LocalNodeID = "00"

	_, _, _, _, err := loadIdentities(cfg)
	require.Error(t, err)
}

func TestLoadIdentitiesRejectsInvalidLocalNodeIDHex(t *testing.T) {
	cfg := config.Default()
	cfg.LocalNodeID = "not-hex"

	_, _, _, _, err := loadIdentities(cfg)
	require.Error(t, err)
}

func TestLoadIdentitiesRejectsInvalidRosterEntryHex(t *testing.T) {
	cfg := config.Default()
	cfg.LocalNodeID = "00"
	cfg.Roster = []config.RosterEntry{{NodeID: "not-hex"}}

	_, _, _, _, err := loadIdentities(cfg)
	require.Error(t, err)
}

func TestOpenArchivesThenCloseArchivesRoundTrip(t *testing.T) {
	cfg := config.Default()
	cfg.DataDir = t.TempDir()

	archives, err := openArchives(cfg)
	require.NoError(t, err)
	require.NotNil(t, archives)

	closeArchives(archives, logging.NewNoOp())
}
