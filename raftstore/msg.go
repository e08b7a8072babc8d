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
	"github.com/rangekv/rangekv/proto"
)

type MsgType int

const (
	// MsgQuit tells the worker to drain and exit its loop.
	MsgQuit MsgType = iota
	// MsgRaft carries an inbound replication message for one of the
	// worker's regions.
	MsgRaft
	// MsgCommand carries a client command proposed against a region.
	MsgCommand
)

type Msg struct {
	Type MsgType

	RaftRequest *RaftMessageRequest
	Command     *Command
}

type CmdOp int

const (
	CmdPut CmdOp = iota
	CmdDelete
	CmdGet
)

// Command is a client request against one region. RespC receives exactly
// one response once the command is applied, rejected or failed.
type Command struct {
	RegionID proto.RegionID
	Op       CmdOp
	Key      []byte
	Value    []byte

	RespC chan CommandResp
}

type CommandResp struct {
	Value []byte
	Err   error
}

func QuitMsg() Msg {
	return Msg{Type: MsgQuit}
}

func RaftMsg(req *RaftMessageRequest) Msg {
	return Msg{Type: MsgRaft, RaftRequest: req}
}

func CommandMsg(cmd *Command) Msg {
	return Msg{Type: MsgCommand, Command: cmd}
}
