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
	"testing"

	"github.com/rangekv/rangekv/errors"
	"github.com/stretchr/testify/require"
	"go.etcd.io/etcd/raft/v3/raftpb"
)

func TestTransport_ChannelRegistry(t *testing.T) {
	trans := NewTransport(&TransportConfig{})

	ch := make(chan Msg, 1)
	require.NoError(t, trans.AddChannel(1, ch))
	require.Equal(t, errors.ErrDuplicateStore, trans.AddChannel(1, make(chan Msg)))

	got, ok := trans.RemoveChannel(1)
	require.True(t, ok)
	require.Equal(t, ch, got)

	// exactly one remover wins
	_, ok = trans.RemoveChannel(1)
	require.False(t, ok)
}

func TestTransport_LocalDelivery(t *testing.T) {
	trans := NewTransport(&TransportConfig{})
	ch := make(chan Msg, 1)
	require.NoError(t, trans.AddChannel(7, ch))

	req := &RaftMessageRequest{
		ToStore:  7,
		RegionID: 3,
		Message:  raftpb.Message{Type: raftpb.MsgHeartbeat, To: 2, From: 1},
	}
	require.NoError(t, trans.SendTo(context.TODO(), req))

	msg := <-ch
	require.Equal(t, MsgRaft, msg.Type)
	require.Equal(t, req, msg.RaftRequest)

	// a full mailbox drops instead of blocking the sender
	require.NoError(t, trans.SendTo(context.TODO(), req))
	require.Error(t, trans.SendTo(context.TODO(), req))
}

func TestTransport_RaftMessageHandler(t *testing.T) {
	trans := NewTransport(&TransportConfig{})
	ch := make(chan Msg, 1)
	require.NoError(t, trans.AddChannel(7, ch))

	req := &RaftMessageRequest{ToStore: 7, RegionID: 3}
	_, err := trans.RaftMessage(context.TODO(), req)
	require.NoError(t, err)
	require.Equal(t, req, (<-ch).RaftRequest)

	_, err = trans.RaftMessage(context.TODO(), &RaftMessageRequest{ToStore: 8})
	require.Error(t, err)
}

func TestRaftMessageRequest_Codec(t *testing.T) {
	req := &RaftMessageRequest{
		ToStore:  7,
		RegionID: 3,
		Message: raftpb.Message{
			Type:    raftpb.MsgApp,
			To:      2,
			From:    1,
			Term:    5,
			Entries: []raftpb.Entry{{Term: 5, Index: 9, Data: []byte("payload")}},
		},
	}

	data, err := raftCodec{}.Marshal(req)
	require.NoError(t, err)

	decoded := &RaftMessageRequest{}
	require.NoError(t, raftCodec{}.Unmarshal(data, decoded))
	require.Equal(t, req.ToStore, decoded.ToStore)
	require.Equal(t, req.RegionID, decoded.RegionID)
	require.Equal(t, req.Message, decoded.Message)

	require.Error(t, decoded.Unmarshal([]byte("short")))
}
