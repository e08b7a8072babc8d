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
	"sync"

	"github.com/cubefs/cubefs/blobstore/common/trace"
	apierr "github.com/rangekv/rangekv/errors"
	"github.com/rangekv/rangekv/proto"
	"github.com/rangekv/rangekv/raftstore"
)

// Authority is the node's view of the cluster authority.
type Authority interface {
	AllocID(ctx context.Context, name string, count int) (uint64, error)
	RegisterNode(ctx context.Context, node proto.Node) error
	RegisterStore(ctx context.Context, store proto.Store) error
	IsClusterBootstrapped(ctx context.Context) (bool, error)
	BootstrapCluster(ctx context.Context, storeID proto.StoreID, region proto.Region) error
	GetClusterMeta(ctx context.Context) (proto.ClusterMeta, error)
}

type NodeConfig struct {
	ClusterID uint64 `json:"cluster_id"`
	Addr      string `json:"addr"`

	WorkerConfig raftstore.Config `json:"worker_config"`
}

// workerHandle tracks one running store worker. done closes after the
// worker loop returns and runErr holds whatever it returned.
type workerHandle struct {
	worker *raftstore.Worker
	done   chan struct{}
	runErr error
}

// Node orchestrates the stores hosted by one process: it recovers their
// persisted identity, bootstraps fresh stores against the authority and
// runs one worker per store.
type Node struct {
	cfg       *NodeConfig
	authority Authority
	trans     *raftstore.Transport

	nodeID proto.NodeID
	meta   proto.ClusterMeta

	lock    sync.Mutex
	handles map[proto.StoreID]*workerHandle
}

func NewNode(cfg *NodeConfig, authority Authority, trans *raftstore.Transport) *Node {
	return &Node{
		cfg:       cfg,
		authority: authority,
		trans:     trans,
		handles:   make(map[proto.StoreID]*workerHandle),
	}
}

// NodeID is zero until Start has recovered or allocated an identity.
func (n *Node) NodeID() proto.NodeID {
	return n.nodeID
}

// CheckStores recovers the node's identity from its engines. The returned
// slice aligns with engines; a zero store id marks an engine that has
// never been bootstrapped. All bootstrapped engines must agree on the
// cluster and the node, otherwise the engines were mixed up on disk and
// starting any of them would corrupt the cluster.
func (n *Node) CheckStores(ctx context.Context, engines []*raftstore.Engine) (proto.NodeID, []proto.StoreID, error) {
	var nodeID proto.NodeID
	storeIDs := make([]proto.StoreID, len(engines))

	for i, engine := range engines {
		ident, err := engine.ReadStoreIdent(ctx)
		if err != nil {
			return 0, nil, err
		}
		if ident == nil {
			continue
		}
		if ident.ClusterID != n.cfg.ClusterID {
			return 0, nil, apierr.ErrClusterMismatch
		}
		if !ident.NodeID.Valid() || !ident.StoreID.Valid() {
			return 0, nil, apierr.ErrCorruptIdentity
		}
		if nodeID.Valid() && nodeID != ident.NodeID {
			return 0, nil, apierr.ErrNodeIdentityMismatch
		}
		nodeID = ident.NodeID
		storeIDs[i] = ident.StoreID
	}
	return nodeID, storeIDs, nil
}

// Start brings every engine's store online. Fresh engines are bootstrapped
// first; the very first store of a fresh cluster also seeds the initial
// region and races sibling nodes for the cluster bootstrap.
func (n *Node) Start(ctx context.Context, engines []*raftstore.Engine) error {
	span := trace.SpanFromContextSafe(ctx)

	nodeID, storeIDs, err := n.CheckStores(ctx, engines)
	if err != nil {
		return err
	}

	bootstrapped, err := n.authority.IsClusterBootstrapped(ctx)
	if err != nil {
		return err
	}
	if nodeID.Valid() && !bootstrapped {
		// Local state can only exist after a successful cluster
		// bootstrap; the authority lost its state or we joined the
		// wrong one.
		return apierr.ErrInconsistentBootstrapState
	}

	if !nodeID.Valid() {
		id, err := n.authority.AllocID(ctx, proto.NodeIDScope, 1)
		if err != nil {
			return err
		}
		nodeID = proto.NodeID(id)
		span.Infof("allocated node id %d", nodeID)
	}
	n.nodeID = nodeID

	if err := n.authority.RegisterNode(ctx, proto.Node{ID: nodeID, Addr: n.cfg.Addr}); err != nil {
		return err
	}

	for i, engine := range engines {
		if storeIDs[i].Valid() {
			continue
		}
		id, err := n.authority.AllocID(ctx, proto.StoreIDScope, 1)
		if err != nil {
			return err
		}
		storeIDs[i] = proto.StoreID(id)
		if err := raftstore.BootstrapStore(ctx, engine, n.cfg.ClusterID, nodeID, storeIDs[i]); err != nil {
			return err
		}
		span.Infof("bootstrapped store %d at %s", storeIDs[i], engine.Path())
	}

	if !bootstrapped && len(engines) > 0 {
		if err := n.bootstrapCluster(ctx, engines[0], storeIDs[0]); err != nil {
			return err
		}
	}

	// workers get the authority's view of the cluster they replicate in
	n.meta, err = n.authority.GetClusterMeta(ctx)
	if err != nil {
		return err
	}

	for i, engine := range engines {
		if err := n.startStore(ctx, engine, storeIDs[i]); err != nil {
			// a failed start leaves no running workers behind; the
			// caller is free to close the engines afterwards.
			n.Shutdown(ctx)
			return err
		}
	}
	return nil
}

// bootstrapCluster seeds the whole-keyspace region on the given store and
// offers it to the authority. Exactly one store in the cluster wins; a
// loser clears its speculative region and continues with the winner's
// layout, so losing the race is not an error.
func (n *Node) bootstrapCluster(ctx context.Context, engine *raftstore.Engine, storeID proto.StoreID) error {
	span := trace.SpanFromContextSafe(ctx)

	regionID, err := n.authority.AllocID(ctx, proto.RegionIDScope, 1)
	if err != nil {
		return err
	}
	peerID, err := n.authority.AllocID(ctx, proto.PeerIDScope, 1)
	if err != nil {
		return err
	}

	region, err := raftstore.BootstrapRegion(ctx, engine, storeID, proto.RegionID(regionID), proto.PeerID(peerID))
	if err != nil {
		return err
	}

	err = n.authority.BootstrapCluster(ctx, storeID, region)
	if err == nil {
		span.Infof("bootstrapped cluster %d with region %d on store %d", n.cfg.ClusterID, region.ID, storeID)
		return nil
	}
	if apierr.IsClusterAlreadyBootstrapped(err) {
		span.Infof("cluster %d is already bootstrapped, clearing region %d", n.cfg.ClusterID, region.ID)
		return raftstore.ClearRegion(ctx, engine, region.ID)
	}
	return err
}

// startStore registers the store's mailbox before its worker runs, so no
// inbound message can slip through while the store is half started.
func (n *Node) startStore(ctx context.Context, engine *raftstore.Engine, storeID proto.StoreID) error {
	span := trace.SpanFromContextSafe(ctx)

	n.lock.Lock()
	defer n.lock.Unlock()
	if _, ok := n.handles[storeID]; ok {
		return apierr.ErrDuplicateStore
	}

	worker, err := raftstore.NewWorker(ctx, engine, storeID, n.meta, n.trans, n.cfg.WorkerConfig)
	if err != nil {
		return err
	}
	if err := n.trans.AddChannel(storeID, worker.Mailbox()); err != nil {
		return err
	}

	handle := &workerHandle{worker: worker, done: make(chan struct{})}
	n.handles[storeID] = handle
	go func() {
		handle.runErr = worker.Run(context.Background())
		close(handle.done)
	}()

	// registration with the authority is advisory; the store serves
	// either way and re-registers on the next start.
	if err := n.authority.RegisterStore(ctx, proto.Store{NodeID: n.nodeID, StoreID: storeID}); err != nil {
		span.Warnf("register store %d failed: %s", storeID, err)
	}
	span.Infof("store %d started", storeID)
	return nil
}

// StopStore tears one store down and reports how its worker exited. The
// channel removal decides which caller gets to stop the worker; a second
// caller gets ErrUnknownStore.
func (n *Node) StopStore(ctx context.Context, storeID proto.StoreID) error {
	ch, ok := n.trans.RemoveChannel(storeID)
	if !ok {
		return apierr.ErrUnknownStore
	}

	n.lock.Lock()
	handle, ok := n.handles[storeID]
	delete(n.handles, storeID)
	n.lock.Unlock()
	if !ok {
		return apierr.ErrWorkerAlreadyGone
	}

	// the worker may have already exited on a storage error with its
	// mailbox full; never block sending to a dead worker.
	select {
	case ch <- raftstore.QuitMsg():
	case <-handle.done:
	}
	<-handle.done
	return handle.runErr
}

// Shutdown stops every store. Individual stop failures are logged and do
// not keep sibling stores from stopping.
func (n *Node) Shutdown(ctx context.Context) {
	span := trace.SpanFromContextSafe(ctx)

	n.lock.Lock()
	storeIDs := make([]proto.StoreID, 0, len(n.handles))
	for storeID := range n.handles {
		storeIDs = append(storeIDs, storeID)
	}
	n.lock.Unlock()

	for _, storeID := range storeIDs {
		err := n.StopStore(ctx, storeID)
		if err == nil {
			continue
		}
		span.Errorf("stop store %d failed: %s", storeID, err)

		// teardown is total: reap a worker whose channel registration
		// was already gone through its own mailbox.
		n.lock.Lock()
		handle, ok := n.handles[storeID]
		delete(n.handles, storeID)
		n.lock.Unlock()
		if ok {
			select {
			case handle.worker.Mailbox() <- raftstore.QuitMsg():
			case <-handle.done:
			}
			<-handle.done
		}
	}
}

// Stats reports the running stores.
func (n *Node) Stats() []raftstore.WorkerStats {
	n.lock.Lock()
	defer n.lock.Unlock()

	stats := make([]raftstore.WorkerStats, 0, len(n.handles))
	for _, handle := range n.handles {
		stats = append(stats, handle.worker.Stats())
	}
	return stats
}
