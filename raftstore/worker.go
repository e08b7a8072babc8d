// Copyright 2026 The RangeKV Authors.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or
// implied. See the License for the specific language governing
// permissions and limitations under the License.

package raftstore

import (
	"context"
	"fmt"
	"time"

	"github.com/cubefs/cubefs/blobstore/common/trace"
	"github.com/rangekv/rangekv/proto"
)

const (
	defaultTickIntervalMs   = 200
	defaultRaftElectionTick = 10
	defaultHeartbeatTick    = 3
	defaultMailboxSize      = 1024
)

type Config struct {
	TickIntervalMs    uint32 `json:"tick_interval_ms"`
	RaftElectionTick  int    `json:"raft_election_tick"`
	RaftHeartbeatTick int    `json:"raft_heartbeat_tick"`
	MailboxSize       int    `json:"mailbox_size"`
}

func (cfg *Config) applyDefaults() {
	initialDefaultConfig(&cfg.TickIntervalMs, defaultTickIntervalMs)
	if cfg.RaftElectionTick == 0 {
		cfg.RaftElectionTick = defaultRaftElectionTick
	}
	if cfg.RaftHeartbeatTick == 0 {
		cfg.RaftHeartbeatTick = defaultHeartbeatTick
	}
	if cfg.MailboxSize == 0 {
		cfg.MailboxSize = defaultMailboxSize
	}
}

type WorkerStats struct {
	StoreID proto.StoreID `json:"store_id"`
	Regions int           `json:"regions"`
}

// Worker owns one store's replication state. Every peer hosted on the
// store is driven by the worker's single loop goroutine; the mailbox is
// the only way in.
type Worker struct {
	storeID proto.StoreID
	meta    proto.ClusterMeta
	engine  *Engine
	trans   *Transport
	cfg     Config

	ch    chan Msg
	peers map[proto.RegionID]*peer
}

// NewWorker recovers the store's regions from its engine and prepares a
// peer for each one. The worker does not run until Run is called.
func NewWorker(ctx context.Context, engine *Engine, storeID proto.StoreID, meta proto.ClusterMeta, trans *Transport, cfg Config) (*Worker, error) {
	cfg.applyDefaults()

	regions, err := LoadRegions(ctx, engine)
	if err != nil {
		return nil, err
	}

	w := &Worker{
		storeID: storeID,
		meta:    meta,
		engine:  engine,
		trans:   trans,
		cfg:     cfg,
		ch:      make(chan Msg, cfg.MailboxSize),
		peers:   make(map[proto.RegionID]*peer, len(regions)),
	}
	for _, region := range regions {
		p, err := newPeer(ctx, engine, region, storeID, trans, &cfg)
		if err != nil {
			return nil, fmt.Errorf("init region %d on store %d failed: %s", region.ID, storeID, err)
		}
		w.peers[region.ID] = p
	}
	return w, nil
}

// Mailbox returns the worker's inbound channel. The channel is registered
// with the transport before Run starts.
func (w *Worker) Mailbox() chan Msg {
	return w.ch
}

func (w *Worker) Stats() WorkerStats {
	return WorkerStats{StoreID: w.storeID, Regions: len(w.peers)}
}

// Run drives the store loop until a quit message arrives or a storage
// error makes further progress unsafe. It always returns from the same
// goroutine that mutates peer state, so no locking is needed.
func (w *Worker) Run(ctx context.Context) error {
	span, ctx := trace.StartSpanFromContextWithTraceID(ctx, "", fmt.Sprintf("store-%d", w.storeID))
	span.Infof("store worker running, cluster %d, regions: %d", w.meta.ClusterID, len(w.peers))

	ticker := time.NewTicker(time.Duration(w.cfg.TickIntervalMs) * time.Millisecond)
	defer ticker.Stop()
	defer w.closePeers()

	for {
		select {
		case <-ticker.C:
			for _, p := range w.peers {
				p.tick()
				if err := p.handleReady(ctx); err != nil {
					return err
				}
			}

		case msg := <-w.ch:
			switch msg.Type {
			case MsgQuit:
				span.Infof("store worker quitting")
				w.drainMailbox()
				return nil

			case MsgRaft:
				req := msg.RaftRequest
				p, ok := w.peers[req.RegionID]
				if !ok {
					span.Warnf("drop raft message for unknown region %d", req.RegionID)
					continue
				}
				if err := p.step(req.Message); err != nil {
					span.Warnf("step raft message for region %d failed: %s", req.RegionID, err)
					continue
				}
				if err := p.handleReady(ctx); err != nil {
					return err
				}

			case MsgCommand:
				cmd := msg.Command
				p, ok := w.peers[cmd.RegionID]
				if !ok {
					cmd.respond(CommandResp{Err: fmt.Errorf("region %d is not on store %d", cmd.RegionID, w.storeID)})
					continue
				}
				p.propose(ctx, cmd)
				if err := p.handleReady(ctx); err != nil {
					return err
				}
			}
		}
	}
}

func (w *Worker) closePeers() {
	for _, p := range w.peers {
		p.close()
	}
}

// drainMailbox fails commands that were queued behind the quit message,
// so no caller is left waiting on a stopped store.
func (w *Worker) drainMailbox() {
	for {
		select {
		case msg := <-w.ch:
			if msg.Type == MsgCommand {
				msg.Command.respond(CommandResp{Err: fmt.Errorf("store %d is shutting down", w.storeID)})
			}
		default:
			return
		}
	}
}
