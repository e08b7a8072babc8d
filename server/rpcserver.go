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
	"net"

	"github.com/cubefs/cubefs/blobstore/util/log"
	"github.com/rangekv/rangekv/metrics"
	"github.com/rangekv/rangekv/raftstore"
	"google.golang.org/grpc"
)

// RPCServer carries the raft transport's grpc endpoint.
type RPCServer struct {
	grpcServer *grpc.Server

	*Server
}

func NewRPCServer(server *Server) *RPCServer {
	grpcServer := grpc.NewServer(grpc.ChainUnaryInterceptor(
		metrics.GRPCMetrics.UnaryServerInterceptor(),
		raftstore.UnaryInterceptorWithTracer,
	))
	server.Transport().Register(grpcServer)
	metrics.GRPCMetrics.InitializeMetrics(grpcServer)

	return &RPCServer{grpcServer: grpcServer, Server: server}
}

func (r *RPCServer) Serve(addr string) {
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		log.Fatalf("listen on %s failed: %s", addr, err)
	}
	go func() {
		if err := r.grpcServer.Serve(lis); err != nil {
			log.Fatal("grpc server exits:", err)
		}
	}()

	log.Info("grpc server is running at:", addr)
}

func (r *RPCServer) Stop() {
	r.grpcServer.GracefulStop()
}
