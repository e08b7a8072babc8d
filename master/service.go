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
	"github.com/cubefs/cubefs/blobstore/common/rpc"
	"github.com/rangekv/rangekv/proto"
)

// NewHandler exposes the authority over http.
func NewHandler(m *Master) *rpc.Router {
	r := rpc.New()
	r.Handle("POST", "/id/alloc", m.AllocID, rpc.OptArgsBody())
	r.Handle("POST", "/node/register", m.NodeRegister, rpc.OptArgsBody())
	r.Handle("POST", "/store/register", m.StoreRegister, rpc.OptArgsBody())
	r.Handle("GET", "/cluster/bootstrapped", m.ClusterBootstrapped)
	r.Handle("POST", "/cluster/bootstrap", m.ClusterBootstrap, rpc.OptArgsBody())
	r.Handle("GET", "/cluster/meta", m.ClusterMeta)
	return r
}

func (m *Master) AllocID(c *rpc.Context) {
	args := new(proto.AllocIDArgs)
	if err := c.ParseArgs(args); err != nil {
		c.RespondError(err)
		return
	}
	base, new, err := m.Alloc(c.Request.Context(), args.Name, args.Count)
	if err != nil {
		c.RespondError(err)
		return
	}
	c.RespondJSON(&proto.AllocIDRet{Base: base, New: new})
}

func (m *Master) NodeRegister(c *rpc.Context) {
	args := new(proto.RegisterNodeArgs)
	if err := c.ParseArgs(args); err != nil {
		c.RespondError(err)
		return
	}
	if err := m.RegisterNode(c.Request.Context(), args.Node); err != nil {
		c.RespondError(err)
		return
	}
	c.Respond()
}

func (m *Master) StoreRegister(c *rpc.Context) {
	args := new(proto.RegisterStoreArgs)
	if err := c.ParseArgs(args); err != nil {
		c.RespondError(err)
		return
	}
	if err := m.RegisterStore(c.Request.Context(), args.Store); err != nil {
		c.RespondError(err)
		return
	}
	c.Respond()
}

func (m *Master) ClusterBootstrapped(c *rpc.Context) {
	bootstrapped, err := m.IsClusterBootstrapped(c.Request.Context())
	if err != nil {
		c.RespondError(err)
		return
	}
	c.RespondJSON(&proto.ClusterBootstrappedRet{Bootstrapped: bootstrapped})
}

func (m *Master) ClusterBootstrap(c *rpc.Context) {
	args := new(proto.BootstrapClusterArgs)
	if err := c.ParseArgs(args); err != nil {
		c.RespondError(err)
		return
	}
	if err := m.BootstrapCluster(c.Request.Context(), args.StoreID, args.Region); err != nil {
		c.RespondError(err)
		return
	}
	c.Respond()
}

func (m *Master) ClusterMeta(c *rpc.Context) {
	meta, err := m.GetClusterMeta(c.Request.Context())
	if err != nil {
		c.RespondError(err)
		return
	}
	c.RespondJSON(&meta)
}
