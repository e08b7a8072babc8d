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

// Id scopes handed to the authority's allocator.
const (
	NodeIDScope   = "node"
	StoreIDScope  = "store"
	RegionIDScope = "region"
	PeerIDScope   = "peer"
)

type AllocIDArgs struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}

type AllocIDRet struct {
	Base uint64 `json:"base"`
	New  uint64 `json:"new"`
}

type RegisterNodeArgs struct {
	Node Node `json:"node"`
}

type RegisterStoreArgs struct {
	Store Store `json:"store"`
}

type ClusterBootstrappedRet struct {
	Bootstrapped bool `json:"bootstrapped"`
}

type BootstrapClusterArgs struct {
	StoreID StoreID `json:"store_id"`
	Region  Region  `json:"region"`
}
