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

package server

import (
	"context"
	"fmt"
	"strconv"

	"github.com/cubefs/cubefs/blobstore/common/trace"
	"github.com/rangekv/rangekv/client"
	"github.com/rangekv/rangekv/metrics"
	"github.com/rangekv/rangekv/proto"
	"github.com/rangekv/rangekv/raftstore"
)

type Config struct {
	NodeConfig      NodeConfig                `json:"node_config"`
	MasterConfig    client.MasterConfig       `json:"master_config"`
	TransportConfig raftstore.TransportConfig `json:"transport_config"`
	EngineConfigs   []raftstore.EngineConfig  `json:"engine_configs"`
}

// Server wires one node together: engines, the authority client, the
// raft transport and the orchestrating Node.
type Server struct {
	node         *Node
	engines      []*raftstore.Engine
	masterClient *client.MasterClient
	trans        *raftstore.Transport
}

func NewServer(ctx context.Context, cfg *Config) (*Server, error) {
	if len(cfg.EngineConfigs) == 0 {
		return nil, fmt.Errorf("no engine configured")
	}

	masterClient := client.NewMasterClient(&cfg.MasterConfig)
	cfg.TransportConfig.Resolver = &clusterResolver{cli: masterClient}
	trans := raftstore.NewTransport(&cfg.TransportConfig)

	s := &Server{
		masterClient: masterClient,
		trans:        trans,
	}
	for i := range cfg.EngineConfigs {
		engine, err := raftstore.OpenEngine(ctx, &cfg.EngineConfigs[i])
		if err != nil {
			s.closeEngines()
			masterClient.Close()
			return nil, err
		}
		s.engines = append(s.engines, engine)
	}

	s.node = NewNode(&cfg.NodeConfig, masterClient, trans)
	if err := s.node.Start(ctx, s.engines); err != nil {
		s.closeEngines()
		masterClient.Close()
		return nil, err
	}

	stats := s.node.Stats()
	metrics.StoreCount.Set(float64(len(stats)))
	for _, st := range stats {
		metrics.RegionCount.WithLabelValues(strconv.FormatUint(uint64(st.StoreID), 10)).Set(float64(st.Regions))
	}
	return s, nil
}

func (s *Server) Node() *Node {
	return s.node
}

func (s *Server) Transport() *raftstore.Transport {
	return s.trans
}

func (s *Server) Close() {
	span := trace.SpanFromContextSafe(context.Background())
	s.node.Shutdown(context.Background())
	s.trans.Close()
	s.closeEngines()
	s.masterClient.Close()
	span.Infof("server closed")
}

func (s *Server) closeEngines() {
	for _, engine := range s.engines {
		engine.Close()
	}
	s.engines = nil
}

// clusterResolver resolves a store id to its node's address through the
// authority's cluster meta.
type clusterResolver struct {
	cli *client.MasterClient
}

func (r *clusterResolver) Resolve(ctx context.Context, storeID proto.StoreID) (string, error) {
	meta, err := r.cli.GetClusterMeta(ctx)
	if err != nil {
		return "", err
	}
	node, ok := meta.NodeOfStore(storeID)
	if !ok {
		return "", fmt.Errorf("store %d is not registered", storeID)
	}
	return node.Addr, nil
}
