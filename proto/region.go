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

package proto

// Peer is one replica of a region, placed on a store.
type Peer struct {
	ID      PeerID  `json:"id"`
	StoreID StoreID `json:"store_id"`
}

// RegionEpoch orders region metadata changes. ConfVer bumps on membership
// change, Version bumps on split/merge.
type RegionEpoch struct {
	ConfVer uint64 `json:"conf_ver"`
	Version uint64 `json:"version"`
}

// Region is the smallest unit of replicated data. The first region of a
// cluster covers the whole key space with a single peer on the seed store.
type Region struct {
	ID       RegionID    `json:"id"`
	StartKey []byte      `json:"start_key"`
	EndKey   []byte      `json:"end_key"`
	Epoch    RegionEpoch `json:"epoch"`
	Peers    []Peer      `json:"peers"`
}

// GetPeerOnStore returns the replica of the region placed on the given
// store, if any.
func (r *Region) GetPeerOnStore(storeID StoreID) (Peer, bool) {
	for _, peer := range r.Peers {
		if peer.StoreID == storeID {
			return peer, true
		}
	}
	return Peer{}, false
}

// ClusterMeta is the authority's view of the cluster, fetched by nodes at
// startup and handed to every store worker.
type ClusterMeta struct {
	ClusterID    uint64  `json:"cluster_id"`
	MaxPeerCount uint32  `json:"max_peer_count"`
	Nodes        []Node  `json:"nodes"`
	Stores       []Store `json:"stores"`
}

// NodeOfStore resolves the node hosting the given store from the cached
// cluster membership.
func (m *ClusterMeta) NodeOfStore(storeID StoreID) (Node, bool) {
	for _, store := range m.Stores {
		if store.StoreID != storeID {
			continue
		}
		for _, node := range m.Nodes {
			if node.ID == store.NodeID {
				return node, true
			}
		}
	}
	return Node{}, false
}
