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

package client

import (
	"context"
	"fmt"

	"github.com/cubefs/cubefs/blobstore/common/rpc"
	"github.com/rangekv/rangekv/proto"
	"golang.org/x/sync/singleflight"
)

type MasterConfig struct {
	rpc.LbConfig
}

// MasterClient talks to the cluster authority over its http api.
type MasterClient struct {
	rpc.Client

	singleRun singleflight.Group
}

func NewMasterClient(cfg *MasterConfig) *MasterClient {
	return &MasterClient{Client: rpc.NewLbClient(&cfg.LbConfig, nil)}
}

// AllocID reserves count ids in the named scope and returns the first
// one. Ids start at one.
func (c *MasterClient) AllocID(ctx context.Context, name string, count int) (uint64, error) {
	args := &proto.AllocIDArgs{Name: name, Count: count}
	ret := &proto.AllocIDRet{}
	if err := c.PostWith(ctx, "/id/alloc", ret, args); err != nil {
		return 0, fmt.Errorf("alloc %s id failed: %s", name, err)
	}
	return ret.Base + 1, nil
}

func (c *MasterClient) RegisterNode(ctx context.Context, node proto.Node) error {
	return c.PostWith(ctx, "/node/register", nil, &proto.RegisterNodeArgs{Node: node})
}

func (c *MasterClient) RegisterStore(ctx context.Context, store proto.Store) error {
	return c.PostWith(ctx, "/store/register", nil, &proto.RegisterStoreArgs{Store: store})
}

func (c *MasterClient) IsClusterBootstrapped(ctx context.Context) (bool, error) {
	ret := &proto.ClusterBootstrappedRet{}
	if err := c.GetWith(ctx, "/cluster/bootstrapped", ret); err != nil {
		return false, err
	}
	return ret.Bootstrapped, nil
}

func (c *MasterClient) BootstrapCluster(ctx context.Context, storeID proto.StoreID, region proto.Region) error {
	return c.PostWith(ctx, "/cluster/bootstrap", nil, &proto.BootstrapClusterArgs{
		StoreID: storeID,
		Region:  region,
	})
}

// GetClusterMeta collapses concurrent callers into one request; workers
// refresh the meta on a timer and would otherwise stampede the authority.
func (c *MasterClient) GetClusterMeta(ctx context.Context) (proto.ClusterMeta, error) {
	ret, err, _ := c.singleRun.Do("cluster-meta", func() (interface{}, error) {
		meta := proto.ClusterMeta{}
		if err := c.GetWith(ctx, "/cluster/meta", &meta); err != nil {
			return proto.ClusterMeta{}, err
		}
		return meta, nil
	})
	if err != nil {
		return proto.ClusterMeta{}, err
	}
	return ret.(proto.ClusterMeta), nil
}

func (c *MasterClient) Close() {
	c.Client.Close()
}
