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

type (
	NodeID   uint64
	StoreID  uint64
	RegionID uint64
	PeerID   uint64
)

// InvalidID marks an identifier that has not been allocated yet. The
// authority never hands out zero, so a zero id in persisted state means
// the owning record was never bootstrapped.
const InvalidID = 0

// ReqIdKey carries the caller's trace id across grpc metadata.
const ReqIdKey = "req-id"

func (id NodeID) Valid() bool   { return id != InvalidID }
func (id StoreID) Valid() bool  { return id != InvalidID }
func (id RegionID) Valid() bool { return id != InvalidID }
func (id PeerID) Valid() bool   { return id != InvalidID }
