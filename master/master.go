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
	"encoding/binary"
	"encoding/json"
	"sync"

	"github.com/cubefs/cubefs/blobstore/common/trace"
	"github.com/rangekv/rangekv/common/kvstore"
	apierr "github.com/rangekv/rangekv/errors"
	"github.com/rangekv/rangekv/proto"
)

const maxAllocCount = 1000000

var (
	idCF      = kvstore.CF("id")
	nodeCF    = kvstore.CF("node")
	storeCF   = kvstore.CF("store")
	clusterCF = kvstore.CF("cluster")

	bootstrapKey = []byte("bootstrap")
)

type Config struct {
	ClusterID    uint64 `json:"cluster_id"`
	MaxPeerCount int    `json:"max_peer_count"`

	Path     string            `json:"path"`
	KVType   kvstore.LsmKVType `json:"kv_type"`
	KVOption kvstore.Option    `json:"kv_option"`
}

// bootstrapRecord is the cluster's creation certificate: which store won
// the bootstrap race and the seed region it carries.
type bootstrapRecord struct {
	StoreID proto.StoreID `json:"store_id"`
	Region  proto.Region  `json:"region"`
}

// Master is the cluster authority. Id allocation, membership and the
// bootstrap decision live here, durably in its own kv store.
type Master struct {
	cfg     *Config
	kvStore kvstore.Store

	lock sync.Mutex
}

func NewMaster(ctx context.Context, cfg *Config) (*Master, error) {
	span := trace.SpanFromContextSafe(ctx)
	if cfg.MaxPeerCount == 0 {
		cfg.MaxPeerCount = 3
	}
	if cfg.KVType == "" {
		cfg.KVType = kvstore.RocksdbLsmKVType
	}

	cfg.KVOption.ColumnFamily = append(cfg.KVOption.ColumnFamily, idCF, nodeCF, storeCF, clusterCF)
	cfg.KVOption.CreateIfMissing = true
	store, err := kvstore.NewKVStore(ctx, cfg.Path, cfg.KVType, &cfg.KVOption)
	if err != nil {
		return nil, err
	}

	span.Infof("master is up, cluster %d", cfg.ClusterID)
	return &Master{cfg: cfg, kvStore: store}, nil
}

func (m *Master) ClusterID() uint64 {
	return m.cfg.ClusterID
}

// Alloc hands out a contiguous id range [base+1, new] for the named
// scope. Zero is never allocated.
func (m *Master) Alloc(ctx context.Context, name string, count int) (base, new uint64, err error) {
	if count <= 0 {
		return 0, 0, apierr.ErrInvalidArgument
	}
	if count > maxAllocCount {
		count = maxAllocCount
	}

	m.lock.Lock()
	defer m.lock.Unlock()

	current, err := m.getScope(ctx, name)
	if err != nil && err != kvstore.ErrNotFound {
		return 0, 0, err
	}

	new = current + uint64(count)
	value := make([]byte, 8)
	binary.BigEndian.PutUint64(value, new)
	if err = m.kvStore.SetRaw(ctx, idCF, []byte(name), value); err != nil {
		return 0, 0, err
	}
	return current, new, nil
}

func (m *Master) getScope(ctx context.Context, name string) (uint64, error) {
	value, err := m.kvStore.GetRaw(ctx, idCF, []byte(name))
	if err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint64(value), nil
}

// RegisterNode records a node's address under its id. Re-registration
// with the same id overwrites, so nodes may re-announce after restarts.
func (m *Master) RegisterNode(ctx context.Context, node proto.Node) error {
	if !node.ID.Valid() || node.Addr == "" {
		return apierr.ErrInvalidArgument
	}
	value, err := json.Marshal(&node)
	if err != nil {
		return err
	}
	return m.kvStore.SetRaw(ctx, nodeCF, encodeID(uint64(node.ID)), value)
}

func (m *Master) RegisterStore(ctx context.Context, store proto.Store) error {
	if !store.NodeID.Valid() || !store.StoreID.Valid() {
		return apierr.ErrInvalidArgument
	}
	if _, err := m.kvStore.GetRaw(ctx, nodeCF, encodeID(uint64(store.NodeID))); err != nil {
		if err == kvstore.ErrNotFound {
			return apierr.ErrNotFound
		}
		return err
	}
	value, err := json.Marshal(&store)
	if err != nil {
		return err
	}
	return m.kvStore.SetRaw(ctx, storeCF, encodeID(uint64(store.StoreID)), value)
}

func (m *Master) IsClusterBootstrapped(ctx context.Context) (bool, error) {
	_, err := m.kvStore.GetRaw(ctx, clusterCF, bootstrapKey)
	if err == kvstore.ErrNotFound {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// BootstrapCluster records the seed region. The check and the write are
// one critical section, so exactly one caller ever succeeds; every later
// attempt gets ErrClusterAlreadyBootstrapped.
func (m *Master) BootstrapCluster(ctx context.Context, storeID proto.StoreID, region proto.Region) error {
	span := trace.SpanFromContextSafe(ctx)
	if !storeID.Valid() || !region.ID.Valid() {
		return apierr.ErrInvalidArgument
	}

	m.lock.Lock()
	defer m.lock.Unlock()

	bootstrapped, err := m.IsClusterBootstrapped(ctx)
	if err != nil {
		return err
	}
	if bootstrapped {
		return apierr.ErrClusterAlreadyBootstrapped
	}

	value, err := json.Marshal(&bootstrapRecord{StoreID: storeID, Region: region})
	if err != nil {
		return err
	}
	if err := m.kvStore.SetRaw(ctx, clusterCF, bootstrapKey, value); err != nil {
		return err
	}
	span.Infof("cluster %d bootstrapped by store %d with region %d", m.cfg.ClusterID, storeID, region.ID)
	return nil
}

func (m *Master) GetClusterMeta(ctx context.Context) (proto.ClusterMeta, error) {
	meta := proto.ClusterMeta{
		ClusterID:    m.cfg.ClusterID,
		MaxPeerCount: uint32(m.cfg.MaxPeerCount),
	}

	lr := m.kvStore.List(ctx, nodeCF, nil, nil)
	for {
		key, value, err := lr.ReadNextCopy()
		if err != nil {
			lr.Close()
			return proto.ClusterMeta{}, err
		}
		if key == nil {
			break
		}
		var node proto.Node
		if err := json.Unmarshal(value, &node); err != nil {
			lr.Close()
			return proto.ClusterMeta{}, err
		}
		meta.Nodes = append(meta.Nodes, node)
	}
	lr.Close()

	lr = m.kvStore.List(ctx, storeCF, nil, nil)
	defer lr.Close()
	for {
		key, value, err := lr.ReadNextCopy()
		if err != nil {
			return proto.ClusterMeta{}, err
		}
		if key == nil {
			break
		}
		var store proto.Store
		if err := json.Unmarshal(value, &store); err != nil {
			return proto.ClusterMeta{}, err
		}
		meta.Stores = append(meta.Stores, store)
	}
	return meta, nil
}

func (m *Master) Close() {
	m.kvStore.Close()
}

func encodeID(id uint64) []byte {
	key := make([]byte, 8)
	binary.BigEndian.PutUint64(key, id)
	return key
}
