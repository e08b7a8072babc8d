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

package server

import (
	"context"
	"errors"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/cubefs/cubefs/blobstore/common/rpc"
	"github.com/rangekv/rangekv/client"
	"github.com/rangekv/rangekv/common/kvstore"
	apierr "github.com/rangekv/rangekv/errors"
	"github.com/rangekv/rangekv/master"
	"github.com/rangekv/rangekv/proto"
	"github.com/rangekv/rangekv/raftstore"
	"github.com/stretchr/testify/require"
)

const testClusterID = 100

var testNodeConfig = NodeConfig{
	ClusterID: testClusterID,
	Addr:      "127.0.0.1:9100",
	WorkerConfig: raftstore.Config{
		TickIntervalMs:    5,
		RaftElectionTick:  3,
		RaftHeartbeatTick: 1,
	},
}

func newTestAuthority(t *testing.T) *client.MasterClient {
	m, err := master.NewMaster(context.TODO(), &master.Config{
		ClusterID: testClusterID,
		Path:      t.TempDir(),
		KVType:    kvstore.MemoryKVType,
	})
	require.NoError(t, err)
	t.Cleanup(m.Close)

	server := httptest.NewServer(master.NewHandler(m))
	t.Cleanup(server.Close)

	cli := client.NewMasterClient(&client.MasterConfig{
		LbConfig: rpc.LbConfig{Hosts: []string{server.URL}},
	})
	t.Cleanup(cli.Close)
	return cli
}

func newNodeEngine(t *testing.T) *raftstore.Engine {
	engine, err := raftstore.OpenEngine(context.TODO(), &raftstore.EngineConfig{
		Path:   t.TempDir(),
		KVType: kvstore.MemoryKVType,
	})
	require.NoError(t, err)
	t.Cleanup(engine.Close)
	return engine
}

func newTestNode(authority Authority) *Node {
	cfg := testNodeConfig
	return NewNode(&cfg, authority, raftstore.NewTransport(&raftstore.TransportConfig{}))
}

func TestNode_FreshBootstrap(t *testing.T) {
	ctx := context.TODO()
	authority := newTestAuthority(t)
	engine := newNodeEngine(t)
	node := newTestNode(authority)

	require.NoError(t, node.Start(ctx, []*raftstore.Engine{engine}))
	defer node.Shutdown(ctx)

	require.Equal(t, proto.NodeID(1), node.NodeID())

	ident, err := engine.ReadStoreIdent(ctx)
	require.NoError(t, err)
	require.Equal(t, &proto.StoreIdent{ClusterID: testClusterID, NodeID: 1, StoreID: 1}, ident)

	regions, err := raftstore.LoadRegions(ctx, engine)
	require.NoError(t, err)
	require.Len(t, regions, 1)
	require.Equal(t, proto.RegionID(1), regions[0].ID)
	require.Equal(t, []proto.Peer{{ID: 1, StoreID: 1}}, regions[0].Peers)

	bootstrapped, err := authority.IsClusterBootstrapped(ctx)
	require.NoError(t, err)
	require.True(t, bootstrapped)

	meta, err := authority.GetClusterMeta(ctx)
	require.NoError(t, err)
	require.Equal(t, []proto.Node{{ID: 1, Addr: testNodeConfig.Addr}}, meta.Nodes)
	require.Equal(t, []proto.Store{{NodeID: 1, StoreID: 1}}, meta.Stores)

	require.Equal(t, []raftstore.WorkerStats{{StoreID: 1, Regions: 1}}, node.Stats())
}

func TestNode_RestartRecoversIdentity(t *testing.T) {
	ctx := context.TODO()
	authority := newTestAuthority(t)
	engine := newNodeEngine(t)

	node := newTestNode(authority)
	require.NoError(t, node.Start(ctx, []*raftstore.Engine{engine}))
	node.Shutdown(ctx)

	// the same engine comes back with the same identity and no new ids
	node = newTestNode(authority)
	require.NoError(t, node.Start(ctx, []*raftstore.Engine{engine}))
	defer node.Shutdown(ctx)

	require.Equal(t, proto.NodeID(1), node.NodeID())
	meta, err := authority.GetClusterMeta(ctx)
	require.NoError(t, err)
	require.Len(t, meta.Nodes, 1)
	require.Len(t, meta.Stores, 1)
}

func TestNode_SecondEngineJoinsNode(t *testing.T) {
	ctx := context.TODO()
	authority := newTestAuthority(t)
	engine := newNodeEngine(t)

	node := newTestNode(authority)
	require.NoError(t, node.Start(ctx, []*raftstore.Engine{engine}))
	node.Shutdown(ctx)

	// a fresh engine added on restart gets a new store id under the
	// recovered node id
	second := newNodeEngine(t)
	node = newTestNode(authority)
	require.NoError(t, node.Start(ctx, []*raftstore.Engine{engine, second}))
	defer node.Shutdown(ctx)

	ident, err := second.ReadStoreIdent(ctx)
	require.NoError(t, err)
	require.Equal(t, &proto.StoreIdent{ClusterID: testClusterID, NodeID: 1, StoreID: 2}, ident)
}

func TestNode_ClusterMismatch(t *testing.T) {
	ctx := context.TODO()
	engine := newNodeEngine(t)
	require.NoError(t, raftstore.BootstrapStore(ctx, engine, 999, 1, 1))

	node := newTestNode(newTestAuthority(t))
	err := node.Start(ctx, []*raftstore.Engine{engine})
	require.Equal(t, apierr.ErrClusterMismatch, err)
}

func TestNode_NodeIdentityMismatch(t *testing.T) {
	ctx := context.TODO()
	first := newNodeEngine(t)
	second := newNodeEngine(t)
	require.NoError(t, raftstore.BootstrapStore(ctx, first, testClusterID, 1, 1))
	require.NoError(t, raftstore.BootstrapStore(ctx, second, testClusterID, 2, 2))

	node := newTestNode(newTestAuthority(t))
	err := node.Start(ctx, []*raftstore.Engine{first, second})
	require.Equal(t, apierr.ErrNodeIdentityMismatch, err)
}

func TestNode_CorruptIdentity(t *testing.T) {
	ctx := context.TODO()
	engine := newNodeEngine(t)
	require.NoError(t, raftstore.BootstrapStore(ctx, engine, testClusterID, 1, 0))

	node := newTestNode(newTestAuthority(t))
	err := node.Start(ctx, []*raftstore.Engine{engine})
	require.Equal(t, apierr.ErrCorruptIdentity, err)
}

func TestNode_InconsistentBootstrapState(t *testing.T) {
	ctx := context.TODO()
	engine := newNodeEngine(t)
	require.NoError(t, raftstore.BootstrapStore(ctx, engine, testClusterID, 1, 1))

	// the engine has an identity but the authority is fresh
	node := newTestNode(newTestAuthority(t))
	err := node.Start(ctx, []*raftstore.Engine{engine})
	require.Equal(t, apierr.ErrInconsistentBootstrapState, err)
}

// staleBootstrapView reports the cluster as not bootstrapped exactly once,
// reproducing a node that read the authority's state before a sibling won
// the bootstrap race.
type staleBootstrapView struct {
	Authority

	mu       sync.Mutex
	reported bool
}

func (a *staleBootstrapView) IsClusterBootstrapped(ctx context.Context) (bool, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if !a.reported {
		a.reported = true
		return false, nil
	}
	return a.Authority.IsClusterBootstrapped(ctx)
}

func TestNode_LostBootstrapRace(t *testing.T) {
	ctx := context.TODO()
	authority := newTestAuthority(t)

	winner := newTestNode(authority)
	winnerEngine := newNodeEngine(t)
	require.NoError(t, winner.Start(ctx, []*raftstore.Engine{winnerEngine}))
	defer winner.Shutdown(ctx)

	loserEngine := newNodeEngine(t)
	loser := newTestNode(&staleBootstrapView{Authority: authority})
	require.NoError(t, loser.Start(ctx, []*raftstore.Engine{loserEngine}))
	defer loser.Shutdown(ctx)

	// the loser cleared its speculative region and serves zero regions
	regions, err := raftstore.LoadRegions(ctx, loserEngine)
	require.NoError(t, err)
	require.Empty(t, regions)
	require.Equal(t, []raftstore.WorkerStats{{StoreID: 2, Regions: 0}}, loser.Stats())

	// the winner's region is untouched
	regions, err = raftstore.LoadRegions(ctx, winnerEngine)
	require.NoError(t, err)
	require.Len(t, regions, 1)
}

func TestNode_StopStore(t *testing.T) {
	ctx := context.TODO()
	authority := newTestAuthority(t)
	engine := newNodeEngine(t)
	node := newTestNode(authority)
	require.NoError(t, node.Start(ctx, []*raftstore.Engine{engine}))

	require.NoError(t, node.StopStore(ctx, 1))

	// the second stop finds no registered channel
	require.Equal(t, apierr.ErrUnknownStore, node.StopStore(ctx, 1))
	require.Equal(t, apierr.ErrUnknownStore, node.StopStore(ctx, 42))
	require.Empty(t, node.Stats())
}

func TestNode_StopStoreWorkerAlreadyGone(t *testing.T) {
	ctx := context.TODO()
	node := newTestNode(newTestAuthority(t))

	// a registered channel without a worker handle means the worker was
	// torn down behind our back
	require.NoError(t, node.trans.AddChannel(7, make(chan raftstore.Msg, 1)))
	require.Equal(t, apierr.ErrWorkerAlreadyGone, node.StopStore(ctx, 7))
}

func TestNode_DuplicateStore(t *testing.T) {
	ctx := context.TODO()
	authority := newTestAuthority(t)

	// two engines carrying the same store identity can only happen when
	// a data directory was copied; the second start must fail fast
	first := newNodeEngine(t)
	second := newNodeEngine(t)
	require.NoError(t, raftstore.BootstrapStore(ctx, first, testClusterID, 1, 1))
	require.NoError(t, raftstore.BootstrapStore(ctx, second, testClusterID, 1, 1))

	region := proto.Region{ID: 1, Peers: []proto.Peer{{ID: 1, StoreID: 1}}}
	require.NoError(t, authority.RegisterNode(ctx, proto.Node{ID: 1, Addr: testNodeConfig.Addr}))
	require.NoError(t, authority.BootstrapCluster(ctx, 1, region))

	node := newTestNode(authority)
	err := node.Start(ctx, []*raftstore.Engine{first, second})
	require.Equal(t, apierr.ErrDuplicateStore, err)

	// the store started from the first engine did not outlive the
	// failed start; its engine is safe to close
	require.Empty(t, node.Stats())
	_, ok := node.trans.RemoveChannel(1)
	require.False(t, ok)
}

func TestNode_StopStoreAfterWorkerExit(t *testing.T) {
	ctx := context.TODO()
	node := newTestNode(newTestAuthority(t))

	// the worker loop already exited on a storage error while its
	// mailbox stayed registered; stopping must not block on the dead
	// mailbox and reports the worker's exit error
	runErr := errors.New("write raft state: disk failure")
	done := make(chan struct{})
	close(done)
	require.NoError(t, node.trans.AddChannel(3, make(chan raftstore.Msg)))
	node.handles[3] = &workerHandle{done: done, runErr: runErr}

	require.Equal(t, runErr, node.StopStore(ctx, 3))
	require.Empty(t, node.Stats())
}

func TestNode_ShutdownReapsUnreachableWorker(t *testing.T) {
	ctx := context.TODO()
	authority := newTestAuthority(t)
	first := newNodeEngine(t)
	second := newNodeEngine(t)

	node := newTestNode(authority)
	require.NoError(t, node.Start(ctx, []*raftstore.Engine{first, second}))

	// store 1 loses its registry entry out-of-band; teardown still ends
	// with an empty handle table
	_, ok := node.trans.RemoveChannel(1)
	require.True(t, ok)

	node.Shutdown(ctx)
	require.Empty(t, node.Stats())
	_, ok = node.trans.RemoveChannel(2)
	require.False(t, ok)
}

func TestNode_Shutdown(t *testing.T) {
	ctx := context.TODO()
	authority := newTestAuthority(t)
	first := newNodeEngine(t)
	second := newNodeEngine(t)

	node := newTestNode(authority)
	require.NoError(t, node.Start(ctx, []*raftstore.Engine{first, second}))
	require.Len(t, node.Stats(), 2)

	node.Shutdown(ctx)
	require.Empty(t, node.Stats())
}
