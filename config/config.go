// Copyright (C) 2020-2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package config defines the marshal core's tunables, in the teacher's
// Parameters/DefaultParams style (config/config.go), loaded by cmd/node
// from a YAML file via gopkg.in/yaml.v3.
package config

import (
	"errors"
	"time"
)

var (
	ErrInvalidDataDir        = errors.New("config: data_dir must be set")
	ErrInvalidSections       = errors.New("config: items-per-section must be >= 1")
	ErrInvalidActivityTO     = errors.New("config: activity_timeout must be >= 1")
	ErrInvalidSynchronyBound = errors.New("config: synchrony_bound must be >= 0")
	ErrInvalidGroupKey       = errors.New("config: group_public_key must be set")
	ErrInvalidLocalNodeID    = errors.New("config: local_node_id must be set")
	ErrEmptyRoster           = errors.New("config: roster must not be empty")
)

// RosterEntry names one fixed validator-set participant (spec.md §1: the
// set is static at genesis, no reconfiguration).
type RosterEntry struct {
	NodeID         string `yaml:"node_id"`
	SharePublicKey string `yaml:"share_public_key,omitempty"` // hex, optional
}

// Config holds every parameter spec.md §6 names.
type Config struct {
	// DataDir is the root directory archives and metadata are stored under.
	DataDir string `yaml:"data_dir"`

	PrunableItemsPerSection  uint64        `yaml:"prunable_items_per_section"`
	ImmutableItemsPerSection uint64        `yaml:"immutable_items_per_section"`
	FreezerTableResizeFreq   int           `yaml:"freezer_table_resize_frequency"`
	FreezerTableResizeChunk  int           `yaml:"freezer_table_resize_chunk"`
	FreezerJournalCompress   bool          `yaml:"freezer_journal_compression"`
	SynchronyBound           time.Duration `yaml:"synchrony_bound"`
	ActivityTimeout          uint64        `yaml:"activity_timeout"` // views
	MaxRepair                int           `yaml:"max_repair"`

	BroadcastBufferCache int `yaml:"broadcast_buffer_cache"` // per-peer digest FIFO depth

	ResolverBackfillQuota   int           `yaml:"resolver_backfill_quota"` // tokens/sec/peer
	ResolverInitialTimeout  time.Duration `yaml:"resolver_initial_timeout"`
	ResolverRequestTimeout  time.Duration `yaml:"resolver_request_timeout"`
	ResolverRetryFloor      time.Duration `yaml:"resolver_retry_floor"`
	ResolverFetchConcurrent int           `yaml:"resolver_fetch_concurrent"`
	ProduceCacheBytes       int           `yaml:"produce_cache_bytes"` // bound on the served-bundle cache

	MailboxSize int `yaml:"mailbox_size"`

	IndexerURL string `yaml:"indexer_url"` // empty disables the indexer

	LogLevel    string `yaml:"log_level"`
	MetricsAddr string `yaml:"metrics_addr"` // e.g. ":2112", empty disables the /metrics server

	// GroupPublicKey is the hex-encoded static threshold group public key
	// every Seed/Notarization/Finalization signature verifies against.
	GroupPublicKey string `yaml:"group_public_key"`
	// LocalNodeID identifies this node within Roster.
	LocalNodeID string `yaml:"local_node_id"`
	// LocalSharePrivateKey is this node's hex-encoded partial secret key,
	// if it participates in signing (empty for a read-only indexer node).
	LocalSharePrivateKey string `yaml:"local_share_private_key,omitempty"`
	// Roster is the fixed validator set (spec.md §1 non-goals: no
	// reconfiguration), used for leader election and resolver peer fan-out.
	Roster []RosterEntry `yaml:"roster"`
}

// Default returns the recommended defaults from spec.md §6.
func Default() Config {
	return Config{
		DataDir:                  "./data",
		PrunableItemsPerSection:  4096,
		ImmutableItemsPerSection: 262144,
		FreezerTableResizeFreq:   4,
		FreezerTableResizeChunk:  1 << 16,
		FreezerJournalCompress:   true,
		SynchronyBound:           500 * time.Millisecond,
		ActivityTimeout:          256,
		MaxRepair:                20,
		BroadcastBufferCache:     128,
		ResolverBackfillQuota:    16,
		ResolverInitialTimeout:   1 * time.Second,
		ResolverRequestTimeout:   2 * time.Second,
		ResolverRetryFloor:       100 * time.Millisecond,
		ResolverFetchConcurrent:  32,
		ProduceCacheBytes:        8 << 20,
		MailboxSize:              256,
		LogLevel:                 "info",
		MetricsAddr:              ":2112",
		// Roster, GroupPublicKey, LocalNodeID are left empty: they are
		// deployment-specific and must come from the config file.
	}
}

// Validate checks the parameters a misconfigured node would otherwise
// fail on much later, in a much less obvious way (spec.md §7: storage
// faults abort the process, so catching a bad config before it causes one
// is worth the up-front check).
func (c Config) Validate() error {
	if c.DataDir == "" {
		return ErrInvalidDataDir
	}
	if c.PrunableItemsPerSection == 0 || c.ImmutableItemsPerSection == 0 {
		return ErrInvalidSections
	}
	if c.ActivityTimeout == 0 {
		return ErrInvalidActivityTO
	}
	if c.SynchronyBound < 0 {
		return ErrInvalidSynchronyBound
	}
	if c.GroupPublicKey == "" {
		return ErrInvalidGroupKey
	}
	if c.LocalNodeID == "" {
		return ErrInvalidLocalNodeID
	}
	if len(c.Roster) == 0 {
		return ErrEmptyRoster
	}
	return nil
}
