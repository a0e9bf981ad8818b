// Copyright (C) 2020-2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Command node runs the marshal core as a single long-running daemon: one
// configuration file in, one process that serves consensus requests,
// backfills, and finalized state out. Unlike the teacher's cmd/consensus
// (a multi-tool parameter/simulation CLI built on cobra subcommands), this
// is a single-binary service, so a plain flag.FlagSet is enough — cobra's
// subcommand tree would be structure with nothing to hang off it.
package main

import (
	"context"
	"encoding/hex"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/luxfi/alto/application"
	"github.com/luxfi/alto/archive"
	"github.com/luxfi/alto/buffer"
	"github.com/luxfi/alto/config"
	"github.com/luxfi/alto/indexer"
	"github.com/luxfi/alto/key"
	"github.com/luxfi/alto/logging"
	"github.com/luxfi/alto/metrics"
	"github.com/luxfi/alto/p2p"
	"github.com/luxfi/alto/resolver"
	"github.com/luxfi/alto/signer"
	"github.com/luxfi/alto/supervisor"
	"github.com/luxfi/alto/syncer"
	"github.com/luxfi/crypto/bls"
	"github.com/luxfi/ids"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to the node's YAML configuration file")
	flag.Parse()

	if err := run(*configPath); err != nil {
		fmt.Fprintln(os.Stderr, "node:", err)
		os.Exit(1)
	}
}

func run(configPath string) error {
	cfg, err := loadConfig(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	log, err := logging.New("alto", cfg.LogLevel)
	if err != nil {
		return fmt.Errorf("init logging: %w", err)
	}

	reg := prometheus.NewRegistry()
	m, err := metrics.New(reg)
	if err != nil {
		return fmt.Errorf("init metrics: %w", err)
	}

	identity, localID, localShare, roster, err := loadIdentities(cfg)
	if err != nil {
		return fmt.Errorf("load identities: %w", err)
	}
	sup := supervisor.New(identity, nil, roster, localShare)

	archives, err := openArchives(cfg)
	if err != nil {
		return fmt.Errorf("open archives: %w", err)
	}
	defer closeArchives(archives, log)

	buf := buffer.New(cfg.BroadcastBufferCache)
	idxClient := indexer.NewHTTPClient(cfg.IndexerURL, log, m)

	participantIDs := make([]ids.NodeID, 0, len(sup.Participants(0)))
	for _, p := range sup.Participants(0) {
		participantIDs = append(participantIDs, p.NodeID)
	}
	transport := p2p.NoOp{Self: localID, Roster: participantIDs}

	bridge := &deliverBridge{}
	res := resolver.New(resolver.Config{
		BackfillQuota:   cfg.ResolverBackfillQuota,
		InitialTimeout:  cfg.ResolverInitialTimeout,
		RequestTimeout:  cfg.ResolverRequestTimeout,
		RetryFloor:      cfg.ResolverRetryFloor,
		FetchConcurrent: cfg.ResolverFetchConcurrent,
	}, transport, transport, bridge, log, m)
	defer res.Close()

	syn := syncer.New(syncer.Config{
		ActivityTimeout:   cfg.ActivityTimeout,
		MaxRepair:         cfg.MaxRepair,
		ProduceCacheBytes: cfg.ProduceCacheBytes,
	}, syncer.Archives{
		Verified:  archives.verified,
		Notarized: archives.notarized,
		Finalized: archives.finalized,
		Blocks:    archives.blocks,
		Metadata:  archives.metadata,
	}, buf, res, idxClient, transport, identity, log, m, cfg.MailboxSize)
	bridge.s = syn

	app := application.New(syn, log, cfg.MailboxSize)
	fz := syncer.NewFinalizer(archives.metadata, syn, log, m)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var httpServer *http.Server
	if cfg.MetricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
		httpServer = &http.Server{Addr: cfg.MetricsAddr, Handler: mux}
		go func() {
			if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Error("metrics server failed", zap.Error(err))
			}
		}()
	}

	done := make(chan struct{}, 3)
	go func() { syn.Run(ctx); done <- struct{}{} }()
	go func() { app.Run(ctx); done <- struct{}{} }()
	go func() { fz.Run(ctx); done <- struct{}{} }()

	log.Info("node started", zap.String("data_dir", cfg.DataDir), zap.String("local_node_id", cfg.LocalNodeID))
	<-ctx.Done()
	log.Info("shutting down")

	if httpServer != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = httpServer.Shutdown(shutdownCtx)
	}
	for i := 0; i < 3; i++ {
		<-done
	}
	return nil
}

// deliverBridge breaks the resolver/syncer construction cycle: the
// resolver needs a Deliverer at construction time, but the Deliverer here
// is the syncer, which itself needs the resolver (as a ResolverHandle).
// s is set once the syncer exists, before either starts processing work.
type deliverBridge struct {
	s *syncer.Syncer
}

func (b *deliverBridge) Produce(ctx context.Context, k key.Key) ([]byte, bool) {
	return b.s.Produce(ctx, k)
}

func (b *deliverBridge) Deliver(ctx context.Context, k key.Key, data []byte) bool {
	return b.s.Deliver(ctx, k, data)
}

func loadConfig(path string) (config.Config, error) {
	cfg := config.Default()
	f, err := os.Open(path)
	if err != nil {
		return cfg, err
	}
	defer f.Close()
	dec := yaml.NewDecoder(f)
	if err := dec.Decode(&cfg); err != nil {
		return cfg, fmt.Errorf("parse %s: %w", path, err)
	}
	return cfg, nil
}

// loadIdentities decodes the group public key, local node ID and share,
// and the fixed roster from hex-encoded config fields.
func loadIdentities(cfg config.Config) (*signer.Identity, ids.NodeID, *bls.SecretKey, []supervisor.Participant, error) {
	groupKeyBytes, err := hex.DecodeString(cfg.GroupPublicKey)
	if err != nil {
		return nil, ids.NodeID{}, nil, nil, fmt.Errorf("group_public_key: %w", err)
	}
	identity, err := signer.IdentityFromBytes(groupKeyBytes)
	if err != nil {
		return nil, ids.NodeID{}, nil, nil, err
	}

	localIDBytes, err := hex.DecodeString(cfg.LocalNodeID)
	if err != nil {
		return nil, ids.NodeID{}, nil, nil, fmt.Errorf("local_node_id: %w", err)
	}
	localID, err := ids.ToNodeID(localIDBytes)
	if err != nil {
		return nil, ids.NodeID{}, nil, nil, err
	}

	var localShare *bls.SecretKey
	if cfg.LocalSharePrivateKey != "" {
		shareBytes, err := hex.DecodeString(cfg.LocalSharePrivateKey)
		if err != nil {
			return nil, ids.NodeID{}, nil, nil, fmt.Errorf("local_share_private_key: %w", err)
		}
		localShare, err = bls.SecretKeyFromBytes(shareBytes)
		if err != nil {
			return nil, ids.NodeID{}, nil, nil, err
		}
	}

	roster := make([]supervisor.Participant, 0, len(cfg.Roster))
	for _, entry := range cfg.Roster {
		idBytes, err := hex.DecodeString(entry.NodeID)
		if err != nil {
			return nil, ids.NodeID{}, nil, nil, fmt.Errorf("roster node_id %q: %w", entry.NodeID, err)
		}
		nodeID, err := ids.ToNodeID(idBytes)
		if err != nil {
			return nil, ids.NodeID{}, nil, nil, err
		}
		p := supervisor.Participant{NodeID: nodeID}
		if entry.SharePublicKey != "" {
			pkBytes, err := hex.DecodeString(entry.SharePublicKey)
			if err != nil {
				return nil, ids.NodeID{}, nil, nil, fmt.Errorf("roster share_public_key for %q: %w", entry.NodeID, err)
			}
			pk, err := bls.PublicKeyFromBytes(pkBytes)
			if err != nil {
				return nil, ids.NodeID{}, nil, nil, err
			}
			p.Share = pk
		}
		roster = append(roster, p)
	}

	return identity, localID, localShare, roster, nil
}

type archiveSet struct {
	verified  *archive.Prunable
	notarized *archive.Prunable
	finalized *archive.Immutable
	blocks    *archive.Immutable
	metadata  *archive.Metadata
}

func openArchives(cfg config.Config) (*archiveSet, error) {
	verified, err := archive.OpenPrunable(filepath.Join(cfg.DataDir, "verified"), cfg.PrunableItemsPerSection)
	if err != nil {
		return nil, fmt.Errorf("open verified archive: %w", err)
	}
	notarized, err := archive.OpenPrunable(filepath.Join(cfg.DataDir, "notarized"), cfg.PrunableItemsPerSection)
	if err != nil {
		return nil, fmt.Errorf("open notarized archive: %w", err)
	}

	immCfg := archive.ImmutableConfig{
		ResizeFrequency: cfg.FreezerTableResizeFreq,
		ResizeChunk:     cfg.FreezerTableResizeChunk,
		JournalCompress: cfg.FreezerJournalCompress,
	}
	finalized, err := archive.OpenImmutable(filepath.Join(cfg.DataDir, "finalized"), immCfg)
	if err != nil {
		return nil, fmt.Errorf("open finalized archive: %w", err)
	}
	blocks, err := archive.OpenImmutable(filepath.Join(cfg.DataDir, "blocks"), immCfg)
	if err != nil {
		return nil, fmt.Errorf("open blocks archive: %w", err)
	}

	meta, err := archive.OpenMetadata(filepath.Join(cfg.DataDir, "metadata"))
	if err != nil {
		return nil, fmt.Errorf("open metadata: %w", err)
	}

	return &archiveSet{
		verified:  verified,
		notarized: notarized,
		finalized: finalized,
		blocks:    blocks,
		metadata:  meta,
	}, nil
}

func closeArchives(a *archiveSet, log logging.Logger) {
	if err := a.verified.Close(); err != nil {
		log.Error("close verified archive", zap.Error(err))
	}
	if err := a.notarized.Close(); err != nil {
		log.Error("close notarized archive", zap.Error(err))
	}
	if err := a.finalized.Close(); err != nil {
		log.Error("close finalized archive", zap.Error(err))
	}
	if err := a.blocks.Close(); err != nil {
		log.Error("close blocks archive", zap.Error(err))
	}
	if err := a.metadata.Close(); err != nil {
		log.Error("close metadata", zap.Error(err))
	}
}
