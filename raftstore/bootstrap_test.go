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
	"testing"

	"github.com/rangekv/rangekv/common/kvstore"
	"github.com/rangekv/rangekv/proto"
	"github.com/stretchr/testify/require"
)

func newTestEngine(t *testing.T) *Engine {
	engine, err := OpenEngine(context.TODO(), &EngineConfig{
		Path:   t.TempDir(),
		KVType: kvstore.MemoryKVType,
	})
	require.NoError(t, err)
	t.Cleanup(func() { engine.Close() })
	return engine
}

func TestBootstrapStore(t *testing.T) {
	ctx := context.TODO()
	engine := newTestEngine(t)

	ident, err := engine.ReadStoreIdent(ctx)
	require.NoError(t, err)
	require.Nil(t, ident)

	require.NoError(t, BootstrapStore(ctx, engine, 100, 1, 10))

	ident, err = engine.ReadStoreIdent(ctx)
	require.NoError(t, err)
	require.NotNil(t, ident)
	require.Equal(t, uint64(100), ident.ClusterID)
	require.Equal(t, proto.NodeID(1), ident.NodeID)
	require.Equal(t, proto.StoreID(10), ident.StoreID)

	// the ident is write-once per engine
	require.Error(t, BootstrapStore(ctx, engine, 100, 1, 10))
}

func TestBootstrapRegion(t *testing.T) {
	ctx := context.TODO()
	engine := newTestEngine(t)

	region, err := BootstrapRegion(ctx, engine, 10, 2, 3)
	require.NoError(t, err)
	require.Equal(t, proto.RegionID(2), region.ID)
	require.Empty(t, region.StartKey)
	require.Empty(t, region.EndKey)
	require.Equal(t, proto.RegionEpoch{ConfVer: 1, Version: 1}, region.Epoch)
	require.Equal(t, []proto.Peer{{ID: 3, StoreID: 10}}, region.Peers)

	regions, err := LoadRegions(ctx, engine)
	require.NoError(t, err)
	require.Equal(t, []proto.Region{region}, regions)
}

func TestClearRegion(t *testing.T) {
	ctx := context.TODO()
	engine := newTestEngine(t)

	_, err := BootstrapRegion(ctx, engine, 10, 2, 3)
	require.NoError(t, err)
	kv := engine.KVStore()
	require.NoError(t, kv.SetRaw(ctx, raftCF, raftLogKey(2, 1), []byte("entry")))
	require.NoError(t, kv.SetRaw(ctx, raftCF, raftStateKey(2), []byte("state")))

	require.NoError(t, ClearRegion(ctx, engine, 2))

	regions, err := LoadRegions(ctx, engine)
	require.NoError(t, err)
	require.Empty(t, regions)
	_, err = kv.GetRaw(ctx, raftCF, raftLogKey(2, 1))
	require.Equal(t, kvstore.ErrNotFound, err)
	_, err = kv.GetRaw(ctx, raftCF, raftStateKey(2))
	require.Equal(t, kvstore.ErrNotFound, err)

	// clearing twice is a no-op
	require.NoError(t, ClearRegion(ctx, engine, 2))
}

func TestClearRegion_KeepsOtherRegions(t *testing.T) {
	ctx := context.TODO()
	engine := newTestEngine(t)

	_, err := BootstrapRegion(ctx, engine, 10, 2, 3)
	require.NoError(t, err)
	other, err := BootstrapRegion(ctx, engine, 10, 5, 6)
	require.NoError(t, err)

	require.NoError(t, ClearRegion(ctx, engine, 2))

	regions, err := LoadRegions(ctx, engine)
	require.NoError(t, err)
	require.Equal(t, []proto.Region{other}, regions)
}
