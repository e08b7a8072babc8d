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
	"encoding/json"
	"errors"
	"fmt"

	"github.com/cubefs/cubefs/blobstore/common/trace"
	"github.com/rangekv/rangekv/common/kvstore"
	"github.com/rangekv/rangekv/proto"
	"go.etcd.io/etcd/raft/v3"
	"go.etcd.io/etcd/raft/v3/raftpb"
)

var ErrNotLeader = errors.New("peer is not the region leader")

// command is the replicated payload of a client write.
type command struct {
	ID    uint64 `json:"id"`
	Op    CmdOp  `json:"op"`
	Key   []byte `json:"key"`
	Value []byte `json:"value,omitempty"`
}

// peer drives one region's replication state machine on this store. All
// methods run on the owning worker's goroutine; no internal locking.
type peer struct {
	region  proto.Region
	peerID  proto.PeerID
	storeID proto.StoreID

	engine *Engine
	ps     *peerStorage
	rn     *raft.RawNode
	trans  *Transport

	notifies   map[uint64]chan CommandResp
	proposalID uint64
	leaderID   uint64
}

func newPeer(ctx context.Context, engine *Engine, region proto.Region, storeID proto.StoreID, trans *Transport, cfg *Config) (*peer, error) {
	replica, ok := region.GetPeerOnStore(storeID)
	if !ok {
		return nil, fmt.Errorf("region %d has no peer on store %d", region.ID, storeID)
	}

	ps, err := newPeerStorage(ctx, engine, region)
	if err != nil {
		return nil, err
	}

	rc := &raft.Config{
		ID:              uint64(replica.ID),
		ElectionTick:    cfg.RaftElectionTick,
		HeartbeatTick:   cfg.RaftHeartbeatTick,
		Storage:         ps,
		Applied:         ps.applyState.AppliedIndex,
		MaxSizePerMsg:   1 << 20,
		MaxInflightMsgs: 256,
	}
	rn, err := raft.NewRawNode(rc)
	if err != nil {
		return nil, err
	}

	p := &peer{
		region:   region,
		peerID:   replica.ID,
		storeID:  storeID,
		engine:   engine,
		ps:       ps,
		rn:       rn,
		trans:    trans,
		notifies: make(map[uint64]chan CommandResp),
	}

	// A freshly bootstrapped region has an empty log and no conf state;
	// seed the raft group with the region's initial membership.
	if ps.raftState.LastIndex == 0 && len(ps.applyState.ConfState.Voters) == 0 {
		peers := make([]raft.Peer, 0, len(region.Peers))
		for _, rp := range region.Peers {
			peers = append(peers, raft.Peer{ID: uint64(rp.ID)})
		}
		if err := rn.Bootstrap(peers); err != nil {
			return nil, err
		}
	}
	return p, nil
}

func (p *peer) tick() {
	p.rn.Tick()
}

func (p *peer) step(m raftpb.Message) error {
	return p.rn.Step(m)
}

func (p *peer) propose(ctx context.Context, cmd *Command) {
	if cmd.Op == CmdGet {
		// Reads serve the locally applied state; callers wanting
		// leader reads route to the leader store.
		value, err := p.engine.KVStore().GetRaw(ctx, dataCF, cmd.Key)
		if err == kvstore.ErrNotFound {
			cmd.respond(CommandResp{})
			return
		}
		cmd.respond(CommandResp{Value: value, Err: err})
		return
	}

	if p.leaderID != uint64(p.peerID) {
		cmd.respond(CommandResp{Err: ErrNotLeader})
		return
	}

	p.proposalID++
	data, err := json.Marshal(&command{
		ID:    p.proposalID,
		Op:    cmd.Op,
		Key:   cmd.Key,
		Value: cmd.Value,
	})
	if err != nil {
		cmd.respond(CommandResp{Err: err})
		return
	}
	if err := p.rn.Propose(data); err != nil {
		cmd.respond(CommandResp{Err: err})
		return
	}
	if cmd.RespC != nil {
		p.notifies[p.proposalID] = cmd.RespC
	}
}

// handleReady persists raft state, applies committed entries and sends
// outbound messages. Persistence and application share one batch write,
// so a crash never leaves applied data ahead of the raft log.
func (p *peer) handleReady(ctx context.Context) error {
	if !p.rn.HasReady() {
		return nil
	}
	rd := p.rn.Ready()

	kv := p.engine.KVStore()
	batch := kv.NewWriteBatch()
	defer batch.Close()

	if !raft.IsEmptyHardState(rd.HardState) {
		if err := p.ps.setHardState(rd.HardState, batch); err != nil {
			return err
		}
	}
	if err := p.ps.append(rd.Entries, batch); err != nil {
		return err
	}

	var applied []uint64
	for i := range rd.CommittedEntries {
		done, err := p.applyEntry(ctx, &rd.CommittedEntries[i], batch)
		if err != nil {
			return err
		}
		if done != 0 {
			applied = append(applied, done)
		}
		p.ps.applyState.AppliedIndex = rd.CommittedEntries[i].Index
	}
	if len(rd.CommittedEntries) > 0 {
		if err := p.ps.stageApplyState(batch); err != nil {
			return err
		}
	}

	if err := kv.Write(ctx, batch); err != nil {
		return err
	}

	for _, id := range applied {
		if respC, ok := p.notifies[id]; ok {
			delete(p.notifies, id)
			respC <- CommandResp{}
		}
	}

	if rd.SoftState != nil {
		p.leaderID = rd.SoftState.Lead
	}
	p.sendMessages(ctx, rd.Messages)
	p.rn.Advance(rd)
	return nil
}

// applyEntry stages one committed entry's effect. It returns the proposal
// id to notify for locally proposed writes, zero otherwise.
func (p *peer) applyEntry(ctx context.Context, entry *raftpb.Entry, batch kvstore.WriteBatch) (uint64, error) {
	switch entry.Type {
	case raftpb.EntryConfChange:
		cc := raftpb.ConfChange{}
		if err := cc.Unmarshal(entry.Data); err != nil {
			return 0, err
		}
		cs := p.rn.ApplyConfChange(cc)
		p.ps.applyState.ConfState = *cs
		return 0, nil

	case raftpb.EntryNormal:
		if len(entry.Data) == 0 {
			return 0, nil
		}
		cmd := command{}
		if err := json.Unmarshal(entry.Data, &cmd); err != nil {
			return 0, err
		}
		switch cmd.Op {
		case CmdPut:
			batch.Put(dataCF, cmd.Key, cmd.Value)
		case CmdDelete:
			batch.Delete(dataCF, cmd.Key)
		}
		return cmd.ID, nil
	}
	return 0, nil
}

func (p *peer) sendMessages(ctx context.Context, messages []raftpb.Message) {
	span := trace.SpanFromContextSafe(ctx)
	for i := range messages {
		msg := messages[i]
		replica, ok := p.findPeer(proto.PeerID(msg.To))
		if !ok {
			span.Warnf("region %d: no replica for raft peer %d", p.region.ID, msg.To)
			continue
		}
		req := &RaftMessageRequest{
			ToStore:  replica.StoreID,
			RegionID: p.region.ID,
			Message:  msg,
		}
		if err := p.trans.SendTo(ctx, req); err != nil {
			span.Warnf("send raft message to store %d failed: %s", replica.StoreID, err)
			p.rn.ReportUnreachable(msg.To)
		}
	}
}

func (p *peer) findPeer(id proto.PeerID) (proto.Peer, bool) {
	for _, replica := range p.region.Peers {
		if replica.ID == id {
			return replica, true
		}
	}
	return proto.Peer{}, false
}

// close fails every pending proposal so callers never block on a stopped
// worker.
func (p *peer) close() {
	for id, respC := range p.notifies {
		delete(p.notifies, id)
		respC <- CommandResp{Err: errors.New("store worker is shutting down")}
	}
}

func (c *Command) respond(resp CommandResp) {
	if c.RespC != nil {
		c.RespC <- resp
	}
}
