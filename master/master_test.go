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

package master

import (
	"context"
	"sync"
	"testing"

	"github.com/rangekv/rangekv/common/kvstore"
	apierr "github.com/rangekv/rangekv/errors"
	"github.com/rangekv/rangekv/proto"
	"github.com/stretchr/testify/require"
)

func newTestMaster(t *testing.T) *Master {
	m, err := NewMaster(context.TODO(), &Config{
		ClusterID: 100,
		Path:      t.TempDir(),
		KVType:    kvstore.MemoryKVType,
	})
	require.NoError(t, err)
	t.Cleanup(m.Close)
	return m
}

func TestMaster_Alloc(t *testing.T) {
	ctx := context.TODO()
	m := newTestMaster(t)

	base, new, err := m.Alloc(ctx, proto.NodeIDScope, 1)
	require.NoError(t, err)
	require.Equal(t, uint64(0), base)
	require.Equal(t, uint64(1), new)

	base, new, err = m.Alloc(ctx, proto.NodeIDScope, 3)
	require.NoError(t, err)
	require.Equal(t, uint64(1), base)
	require.Equal(t, uint64(4), new)

	// scopes advance independently
	base, _, err = m.Alloc(ctx, proto.StoreIDScope, 1)
	require.NoError(t, err)
	require.Equal(t, uint64(0), base)

	_, _, err = m.Alloc(ctx, proto.NodeIDScope, 0)
	require.Error(t, err)
}

func TestMaster_RegisterNodeAndStore(t *testing.T) {
	ctx := context.TODO()
	m := newTestMaster(t)

	// a store needs a registered node first
	require.Error(t, m.RegisterStore(ctx, proto.Store{NodeID: 1, StoreID: 10}))

	require.NoError(t, m.RegisterNode(ctx, proto.Node{ID: 1, Addr: "127.0.0.1:9100"}))
	require.NoError(t, m.RegisterNode(ctx, proto.Node{ID: 1, Addr: "127.0.0.1:9100"}))
	require.NoError(t, m.RegisterStore(ctx, proto.Store{NodeID: 1, StoreID: 10}))

	require.Error(t, m.RegisterNode(ctx, proto.Node{Addr: "no-id"}))
	require.Error(t, m.RegisterStore(ctx, proto.Store{NodeID: 1}))

	meta, err := m.GetClusterMeta(ctx)
	require.NoError(t, err)
	require.Equal(t, uint64(100), meta.ClusterID)
	require.Equal(t, []proto.Node{{ID: 1, Addr: "127.0.0.1:9100"}}, meta.Nodes)
	require.Equal(t, []proto.Store{{NodeID: 1, StoreID: 10}}, meta.Stores)
}

func TestMaster_BootstrapOnce(t *testing.T) {
	ctx := context.TODO()
	m := newTestMaster(t)

	bootstrapped, err := m.IsClusterBootstrapped(ctx)
	require.NoError(t, err)
	require.False(t, bootstrapped)

	region := proto.Region{
		ID:    1,
		Epoch: proto.RegionEpoch{ConfVer: 1, Version: 1},
		Peers: []proto.Peer{{ID: 2, StoreID: 10}},
	}
	require.NoError(t, m.BootstrapCluster(ctx, 10, region))

	bootstrapped, err = m.IsClusterBootstrapped(ctx)
	require.NoError(t, err)
	require.True(t, bootstrapped)

	err = m.BootstrapCluster(ctx, 11, region)
	require.True(t, apierr.IsClusterAlreadyBootstrapped(err))
}

func TestMaster_BootstrapRace(t *testing.T) {
	ctx := context.TODO()
	m := newTestMaster(t)

	region := proto.Region{ID: 1, Peers: []proto.Peer{{ID: 2, StoreID: 10}}}

	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		wins int
	)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(storeID proto.StoreID) {
			defer wg.Done()
			err := m.BootstrapCluster(ctx, storeID, region)
			if err == nil {
				mu.Lock()
				wins++
				mu.Unlock()
				return
			}
			require.True(t, apierr.IsClusterAlreadyBootstrapped(err))
		}(proto.StoreID(10 + i))
	}
	wg.Wait()
	require.Equal(t, 1, wins)
}
