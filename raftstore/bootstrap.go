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

	"github.com/cubefs/cubefs/blobstore/util/errors"
	"github.com/rangekv/rangekv/proto"
)

// BootstrapStore writes the engine's store ident. The ident is written at
// most once per engine lifetime; callers resolve prior idents through
// Engine.ReadStoreIdent before bootstrapping.
func BootstrapStore(ctx context.Context, engine *Engine, clusterID uint64, nodeID proto.NodeID, storeID proto.StoreID) error {
	ident, err := engine.ReadStoreIdent(ctx)
	if err != nil {
		return err
	}
	if ident != nil {
		return errors.Newf("store ident already exists: %+v", ident)
	}

	value, err := json.Marshal(&proto.StoreIdent{
		ClusterID: clusterID,
		NodeID:    nodeID,
		StoreID:   storeID,
	})
	if err != nil {
		return err
	}
	return engine.KVStore().SetRaw(ctx, metaCF, storeIdentKey(), value)
}

// BootstrapRegion durably creates the first region of a cluster on the
// seed engine: a whole-keyspace region with a single peer on the given
// store. The returned descriptor is what the authority's bootstrap
// operation records.
func BootstrapRegion(ctx context.Context, engine *Engine, storeID proto.StoreID, regionID proto.RegionID, peerID proto.PeerID) (proto.Region, error) {
	region := proto.Region{
		ID:       regionID,
		StartKey: nil,
		EndKey:   nil,
		Epoch:    proto.RegionEpoch{ConfVer: 1, Version: 1},
		Peers:    []proto.Peer{{ID: peerID, StoreID: storeID}},
	}

	value, err := json.Marshal(&region)
	if err != nil {
		return proto.Region{}, err
	}
	if err := engine.KVStore().SetRaw(ctx, metaCF, regionMetaKey(regionID), value); err != nil {
		return proto.Region{}, err
	}
	return region, nil
}

// ClearRegion removes every trace of a region from the engine. It is the
// compensating write for a lost cluster-bootstrap race: the speculative
// seed region must leave no residual state. Clearing an absent region is
// a no-op, which keeps the loser's path idempotent.
func ClearRegion(ctx context.Context, engine *Engine, regionID proto.RegionID) error {
	kv := engine.KVStore()
	batch := kv.NewWriteBatch()
	defer batch.Close()

	batch.Delete(metaCF, regionMetaKey(regionID))
	batch.Delete(raftCF, raftStateKey(regionID))
	batch.Delete(raftCF, applyStateKey(regionID))
	logPrefix := raftLogPrefix(regionID)
	batch.DeleteRange(raftCF, raftLogKey(regionID, 0), appendUint64(logPrefix, ^uint64(0)))

	return kv.Write(ctx, batch)
}

// LoadRegions scans the engine for every region hosted by this store.
func LoadRegions(ctx context.Context, engine *Engine) ([]proto.Region, error) {
	lr := engine.KVStore().List(ctx, metaCF, regionMetaPrefix(), nil)
	defer lr.Close()

	var regions []proto.Region
	for {
		key, value, err := lr.ReadNextCopy()
		if err != nil {
			return nil, err
		}
		if key == nil {
			return regions, nil
		}
		var region proto.Region
		if err := json.Unmarshal(value, &region); err != nil {
			return nil, errors.Info(err, "unmarshal region meta failed")
		}
		regions = append(regions, region)
	}
}
