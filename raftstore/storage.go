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

	"github.com/rangekv/rangekv/common/kvstore"
	"github.com/rangekv/rangekv/proto"
	"go.etcd.io/etcd/raft/v3"
	"go.etcd.io/etcd/raft/v3/raftpb"
)

type raftLocalState struct {
	HardState raftpb.HardState `json:"hard_state"`
	LastIndex uint64           `json:"last_index"`
}

type raftApplyState struct {
	AppliedIndex uint64           `json:"applied_index"`
	ConfState    raftpb.ConfState `json:"conf_state"`
}

// peerStorage implements raft.Storage on top of the engine's raft column
// family. Entries are stored one key per index; HardState and the applied
// index are small json records. Log truncation and snapshot transmission
// are not supported, so FirstIndex is always 1.
type peerStorage struct {
	engine *Engine
	region proto.Region

	raftState  raftLocalState
	applyState raftApplyState
}

func newPeerStorage(ctx context.Context, engine *Engine, region proto.Region) (*peerStorage, error) {
	s := &peerStorage{engine: engine, region: region}

	kv := engine.KVStore()
	value, err := kv.GetRaw(ctx, raftCF, raftStateKey(region.ID))
	if err != nil && err != kvstore.ErrNotFound {
		return nil, err
	}
	if err == nil {
		if err := json.Unmarshal(value, &s.raftState); err != nil {
			return nil, err
		}
	}

	value, err = kv.GetRaw(ctx, raftCF, applyStateKey(region.ID))
	if err != nil && err != kvstore.ErrNotFound {
		return nil, err
	}
	if err == nil {
		if err := json.Unmarshal(value, &s.applyState); err != nil {
			return nil, err
		}
	}
	return s, nil
}

func (s *peerStorage) InitialState() (raftpb.HardState, raftpb.ConfState, error) {
	return s.raftState.HardState, s.applyState.ConfState, nil
}

func (s *peerStorage) Entries(lo, hi, maxSize uint64) ([]raftpb.Entry, error) {
	if lo <= 0 {
		return nil, raft.ErrCompacted
	}
	if hi > s.raftState.LastIndex+1 {
		return nil, raft.ErrUnavailable
	}

	ctx := context.Background()
	lr := s.engine.KVStore().List(ctx, raftCF, raftLogPrefix(s.region.ID), raftLogKey(s.region.ID, lo))
	defer lr.Close()

	var (
		ret  []raftpb.Entry
		size uint64
	)
	for {
		key, value, err := lr.ReadNextCopy()
		if err != nil {
			return nil, err
		}
		if key == nil || raftLogIndex(key) >= hi {
			break
		}

		entry := raftpb.Entry{}
		if err := entry.Unmarshal(value); err != nil {
			return nil, err
		}
		if len(ret) > 0 && size+uint64(entry.Size()) > maxSize {
			break
		}
		size += uint64(entry.Size())
		ret = append(ret, entry)
	}
	if len(ret) == 0 {
		return nil, raft.ErrUnavailable
	}
	return ret, nil
}

func (s *peerStorage) Term(i uint64) (uint64, error) {
	if i == 0 {
		return 0, nil
	}
	if i > s.raftState.LastIndex {
		return 0, raft.ErrUnavailable
	}

	value, err := s.engine.KVStore().GetRaw(context.Background(), raftCF, raftLogKey(s.region.ID, i))
	if err != nil {
		if err == kvstore.ErrNotFound {
			return 0, raft.ErrCompacted
		}
		return 0, err
	}
	entry := raftpb.Entry{}
	if err := entry.Unmarshal(value); err != nil {
		return 0, err
	}
	return entry.Term, nil
}

func (s *peerStorage) LastIndex() (uint64, error) {
	return s.raftState.LastIndex, nil
}

func (s *peerStorage) FirstIndex() (uint64, error) {
	return 1, nil
}

func (s *peerStorage) Snapshot() (raftpb.Snapshot, error) {
	return raftpb.Snapshot{}, raft.ErrSnapshotTemporarilyUnavailable
}

// append stages entries and the updated raft state into batch. The staged
// writes become durable with the caller's single batch write, so entries
// and LastIndex cannot diverge.
func (s *peerStorage) append(entries []raftpb.Entry, batch kvstore.WriteBatch) error {
	if len(entries) == 0 {
		return nil
	}

	for i := range entries {
		value, err := entries[i].Marshal()
		if err != nil {
			return err
		}
		batch.Put(raftCF, raftLogKey(s.region.ID, entries[i].Index), value)
	}

	// entries may overwrite a conflicting unstable suffix; drop stale
	// tail entries beyond the new last index.
	newLast := entries[len(entries)-1].Index
	if s.raftState.LastIndex > newLast {
		batch.DeleteRange(raftCF,
			raftLogKey(s.region.ID, newLast+1),
			appendUint64(raftLogPrefix(s.region.ID), ^uint64(0)))
	}
	s.raftState.LastIndex = newLast
	return s.stageRaftState(batch)
}

func (s *peerStorage) setHardState(hs raftpb.HardState, batch kvstore.WriteBatch) error {
	s.raftState.HardState = hs
	return s.stageRaftState(batch)
}

func (s *peerStorage) stageRaftState(batch kvstore.WriteBatch) error {
	value, err := json.Marshal(&s.raftState)
	if err != nil {
		return err
	}
	batch.Put(raftCF, raftStateKey(s.region.ID), value)
	return nil
}

func (s *peerStorage) stageApplyState(batch kvstore.WriteBatch) error {
	value, err := json.Marshal(&s.applyState)
	if err != nil {
		return err
	}
	batch.Put(raftCF, applyStateKey(s.region.ID), value)
	return nil
}
