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

// Node describes one process hosting one or more stores. The id stays
// InvalidID until the authority allocates one; the address is fixed at
// construction from configuration.
type Node struct {
	ID   NodeID `json:"id"`
	Addr string `json:"addr"`
}

// Store is the {node, store} pair reported to the authority. The store's
// own durable identity lives in StoreIdent, not here.
type Store struct {
	NodeID  NodeID  `json:"node_id"`
	StoreID StoreID `json:"store_id"`
}

// StoreIdent is persisted once per engine at first bootstrap and is
// immutable afterwards for the lifetime of that data directory.
type StoreIdent struct {
	ClusterID uint64  `json:"cluster_id"`
	NodeID    NodeID  `json:"node_id"`
	StoreID   StoreID `json:"store_id"`
}
