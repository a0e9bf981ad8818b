// Copyright (C) 2020-2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package application implements the application actor: the single-
// consumer mailbox that decides what to propose and whether a candidate
// block is valid (spec.md §4.1). Propose and Verify each run as an
// independent task per request so a slow parent lookup never blocks the
// mailbox, racing the syncer's answer against cancellation of the
// request's Ctx so an abandoned view cancels cleanly.
package application

import (
	"context"
	"sync"
	"time"

	"github.com/luxfi/alto/block"
	"github.com/luxfi/alto/logging"
	"github.com/luxfi/ids"
	"go.uber.org/zap"
)

// SynchronyBound is the maximum allowed skew between a proposed block's
// timestamp and wall-clock "now" (spec.md §6).
const SynchronyBound = 500 * time.Millisecond

// ParentRef names the block Propose/Verify should resolve against.
type ParentRef struct {
	View   uint64
	Digest ids.ID
}

// Syncer is everything the application actor needs from the syncer: block
// lookup by digest (optionally scoped to a view, for a resolver-backed
// fetch hint), notifying the syncer of a freshly verified block, and
// gossiping a built block.
type Syncer interface {
	Get(ctx context.Context, view *uint64, digest ids.ID) (*block.Block, bool)
	Verified(view uint64, blk *block.Block)
	Broadcast(blk *block.Block)
}

// ProposeRequest asks the application to build the next block on top of
// parent for view. Reply receives the built block's digest. Ctx is the
// caller's request-scoped context: canceling it (consensus abandoning the
// view) races against parent resolution and aborts the task cleanly.
type ProposeRequest struct {
	Ctx    context.Context
	View   uint64
	Parent ParentRef
	Reply  chan ids.ID
}

// VerifyRequest asks the application whether payload is a valid block
// extending parent in view. Reply receives the verdict. Ctx behaves as in
// ProposeRequest.
type VerifyRequest struct {
	Ctx     context.Context
	View    uint64
	Parent  ParentRef
	Payload *block.Block
	Reply   chan bool
}

// BroadcastRequest asks the application to gossip the last block it built.
type BroadcastRequest struct{}

type message struct {
	propose   *ProposeRequest
	verify    *VerifyRequest
	broadcast *BroadcastRequest
}

// Application is the application actor.
type Application struct {
	syncer  Syncer
	log     logging.Logger
	genesis *block.Block

	mailbox chan message

	mu        sync.Mutex
	lastBuilt *block.Block

	wg sync.WaitGroup
}

// New constructs the application actor. Callers must call Run in a
// goroutine to start its mailbox loop.
func New(syncer Syncer, log logging.Logger, mailboxSize int) *Application {
	return &Application{
		syncer:  syncer,
		log:     log,
		genesis: block.Genesis(),
		mailbox: make(chan message, mailboxSize),
	}
}

// Genesis returns the constant genesis block.
func (a *Application) Genesis() *block.Block { return a.genesis }

// Propose enqueues a ProposeRequest. Blocks if the mailbox is full
// (backpressure, spec.md §5).
func (a *Application) Propose(req *ProposeRequest) { a.mailbox <- message{propose: req} }

// Verify enqueues a VerifyRequest.
func (a *Application) Verify(req *VerifyRequest) { a.mailbox <- message{verify: req} }

// Broadcast enqueues a BroadcastRequest.
func (a *Application) Broadcast() { a.mailbox <- message{broadcast: &BroadcastRequest{}} }

// Run drains the mailbox until ctx is canceled, spawning one task per
// Propose/Verify message so slow parent lookups never block the mailbox.
func (a *Application) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			a.wg.Wait()
			return
		case m := <-a.mailbox:
			switch {
			case m.propose != nil:
				a.wg.Add(1)
				go a.runPropose(ctx, m.propose)
			case m.verify != nil:
				a.wg.Add(1)
				go a.runVerify(ctx, m.verify)
			case m.broadcast != nil:
				a.runBroadcast()
			}
		}
	}
}

func (a *Application) resolveParent(ctx context.Context, ref ParentRef) (*block.Block, bool) {
	if ref.Digest == a.genesis.Digest() {
		return a.genesis, true
	}
	view := ref.View
	return a.syncer.Get(ctx, &view, ref.Digest)
}

func (a *Application) runPropose(ctx context.Context, req *ProposeRequest) {
	defer a.wg.Done()

	type result struct {
		parent *block.Block
		ok     bool
	}
	resCh := make(chan result, 1)
	go func() {
		p, ok := a.resolveParent(req.Ctx, req.Parent)
		resCh <- result{parent: p, ok: ok}
	}()

	select {
	case <-ctx.Done():
		return
	case <-req.Ctx.Done():
		a.log.Debug("propose: view abandoned, dropping", zap.Uint64("view", req.View))
		return
	case res := <-resCh:
		if !res.ok {
			a.log.Warn("propose: parent not found", zap.Uint64("view", req.View), zap.Uint64("parent_view", req.Parent.View))
			close(req.Reply)
			return
		}
		parent := res.parent
		now := uint64(time.Now().UnixMilli())
		ts := now
		if parent.Timestamp()+1 > ts {
			ts = parent.Timestamp() + 1
		}
		built := block.New(parent.Digest(), parent.Height()+1, ts)

		a.mu.Lock()
		a.lastBuilt = built
		a.mu.Unlock()

		select {
		case req.Reply <- built.Digest():
		case <-req.Ctx.Done():
			// Reply receiver already gone: consensus abandoned the view.
			a.log.Debug("propose: reply channel closed, dropping", zap.Uint64("view", req.View))
		}
	}
}

func (a *Application) runVerify(ctx context.Context, req *VerifyRequest) {
	defer a.wg.Done()

	type parentResult struct {
		parent *block.Block
		ok     bool
	}
	parentCh := make(chan parentResult, 1)
	go func() {
		p, ok := a.resolveParent(req.Ctx, req.Parent)
		parentCh <- parentResult{parent: p, ok: ok}
	}()

	select {
	case <-ctx.Done():
		return
	case <-req.Ctx.Done():
		a.log.Debug("verify: view abandoned, dropping", zap.Uint64("view", req.View))
		return
	case pr := <-parentCh:
		if !pr.ok {
			a.reply(req, false)
			return
		}
		parent := pr.parent
		candidate := req.Payload

		now := uint64(time.Now().UnixMilli())
		switch {
		case candidate.Height() != parent.Height()+1:
			a.reply(req, false)
			return
		case candidate.Parent() != parent.Digest():
			a.reply(req, false)
			return
		case candidate.Timestamp() <= parent.Timestamp():
			a.reply(req, false)
			return
		case candidate.Timestamp() > now+uint64(SynchronyBound.Milliseconds()):
			a.reply(req, false)
			return
		}

		a.syncer.Verified(req.View, candidate)
		a.reply(req, true)
	}
}

func (a *Application) reply(req *VerifyRequest, ok bool) {
	select {
	case req.Reply <- ok:
	case <-req.Ctx.Done():
		a.log.Debug("verify: reply channel closed, dropping", zap.Uint64("view", req.View))
	}
}

func (a *Application) runBroadcast() {
	a.mu.Lock()
	blk := a.lastBuilt
	a.mu.Unlock()
	if blk == nil {
		return
	}
	a.syncer.Broadcast(blk)
}
