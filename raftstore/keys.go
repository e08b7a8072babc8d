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
	"encoding/binary"

	"github.com/rangekv/rangekv/proto"
)

// Local keys in the meta column family.
var (
	identInfix      = []byte("ident")
	regionMetaInfix = []byte("region")
)

// Local keys in the raft column family, all scoped by region id.
var (
	raftLogInfix    = []byte("l")
	raftStateInfix  = []byte("r")
	applyStateInfix = []byte("a")
)

var localPrefix = []byte{0x01}

func storeIdentKey() []byte {
	return append(append([]byte{}, localPrefix...), identInfix...)
}

func regionMetaPrefix() []byte {
	return append(append([]byte{}, localPrefix...), regionMetaInfix...)
}

func regionMetaKey(id proto.RegionID) []byte {
	return appendUint64(regionMetaPrefix(), uint64(id))
}

func raftStateKey(id proto.RegionID) []byte {
	return appendUint64(append(append([]byte{}, localPrefix...), raftStateInfix...), uint64(id))
}

func applyStateKey(id proto.RegionID) []byte {
	return appendUint64(append(append([]byte{}, localPrefix...), applyStateInfix...), uint64(id))
}

func raftLogPrefix(id proto.RegionID) []byte {
	return appendUint64(append(append([]byte{}, localPrefix...), raftLogInfix...), uint64(id))
}

func raftLogKey(id proto.RegionID, index uint64) []byte {
	return appendUint64(raftLogPrefix(id), index)
}

// raftLogIndex recovers the entry index from a raft log key produced by
// raftLogKey.
func raftLogIndex(key []byte) uint64 {
	return binary.BigEndian.Uint64(key[len(key)-8:])
}

func appendUint64(b []byte, v uint64) []byte {
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], v)
	return append(b, buf[:]...)
}
