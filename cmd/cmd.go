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

package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"strconv"
	"syscall"

	"github.com/cubefs/cubefs/blobstore/common/config"
	"github.com/cubefs/cubefs/blobstore/common/profile"
	"github.com/cubefs/cubefs/blobstore/common/rpc"
	"github.com/cubefs/cubefs/blobstore/util/errors"
	"github.com/cubefs/cubefs/blobstore/util/log"
	_ "github.com/cubefs/cubefs/blobstore/util/version"
	"github.com/rangekv/rangekv/master"
	"github.com/rangekv/rangekv/raftstore"
	"github.com/rangekv/rangekv/server"
	"github.com/rangekv/rangekv/util"
)

const (
	roleMaster = "master"
	roleNode   = "node"
	roleSingle = "single"
)

// Config service config
type Config struct {
	server.Config

	Roles []string `json:"roles"`

	HttpBindPort   uint32 `json:"http_bind_port"`
	GrpcBindPort   uint32 `json:"grpc_bind_port"`
	MasterBindPort uint32 `json:"master_bind_port"`

	EmbeddedMaster master.Config `json:"embedded_master"`

	MaxProcessors int       `json:"max_processors"`
	LogLevel      log.Level `json:"log_level"`
}

func main() {
	config.Init("f", "", "server.json")

	cfg := &Config{}
	if err := config.Load(cfg); err != nil {
		log.Fatal(errors.Detail(err))
	}

	runMaster, runNode := initConfig(cfg)
	registerLogLevel()
	modifyOpenFiles()
	log.SetOutputLevel(cfg.LogLevel)

	var masterServer *http.Server
	if runMaster {
		m, err := master.NewMaster(context.Background(), &cfg.EmbeddedMaster)
		if err != nil {
			log.Fatalf("start master failed: %s", errors.Detail(err))
		}
		defer m.Close()
		masterServer = &http.Server{
			Addr:    ":" + strconv.Itoa(int(cfg.MasterBindPort)),
			Handler: master.NewHandler(m),
		}
		go func() {
			if err := masterServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Fatal("master http server exits:", err)
			}
		}()
		log.Info("master is running at:", masterServer.Addr)
	}

	var (
		httpServer *server.HttpServer
		rpcServer  *server.RPCServer
	)
	if runNode {
		nodeServer, err := server.NewServer(context.Background(), &cfg.Config)
		if err != nil {
			log.Fatalf("start node failed: %s", errors.Detail(err))
		}
		defer nodeServer.Close()

		httpServer = server.NewHttpServer(nodeServer)
		httpServer.Serve(":" + strconv.Itoa(int(cfg.HttpBindPort)))

		rpcServer = server.NewRPCServer(nodeServer)
		rpcServer.Serve(":" + strconv.Itoa(int(cfg.GrpcBindPort)))
	}

	// wait for signal
	ch := make(chan os.Signal, 1)
	signal.Notify(ch, syscall.SIGTERM, syscall.SIGINT)
	<-ch

	if rpcServer != nil {
		rpcServer.Stop()
	}
	if httpServer != nil {
		httpServer.Stop()
	}
	if masterServer != nil {
		masterServer.Shutdown(context.Background())
	}
}

func registerLogLevel() {
	logLevelPath, logLevelHandler := log.ChangeDefaultLevelHandler()
	profile.HandleFunc(http.MethodPost, logLevelPath, func(c *rpc.Context) {
		logLevelHandler.ServeHTTP(c.Writer, c.Request)
	})
	profile.HandleFunc(http.MethodGet, logLevelPath, func(c *rpc.Context) {
		logLevelHandler.ServeHTTP(c.Writer, c.Request)
	})
}

func modifyOpenFiles() {
	var rLimit syscall.Rlimit
	err := syscall.Getrlimit(syscall.RLIMIT_NOFILE, &rLimit)
	if err != nil {
		log.Fatalf("getting rlimit failed: %s", err)
	}
	log.Info("system limit: ", rLimit)

	if rLimit.Cur >= 102400 && rLimit.Max >= 102400 {
		return
	}

	rLimit.Cur = 1024000
	rLimit.Max = 1024000

	err = syscall.Setrlimit(syscall.RLIMIT_NOFILE, &rLimit)
	if err != nil {
		log.Fatalf("setting rlimit failed: %s", err)
	}
	log.Info("system limit: ", rLimit)
}

func initConfig(cfg *Config) (runMaster, runNode bool) {
	if cfg.MaxProcessors > 0 {
		runtime.GOMAXPROCS(cfg.MaxProcessors)
	}
	if cfg.HttpBindPort == 0 {
		cfg.HttpBindPort = 9100
	}
	if cfg.GrpcBindPort == 0 {
		cfg.GrpcBindPort = 9101
	}
	if cfg.MasterBindPort == 0 {
		cfg.MasterBindPort = 9102
	}

	if len(cfg.Roles) == 0 {
		log.Fatalf("node roles must be set")
	}
	for _, role := range cfg.Roles {
		switch role {
		case roleMaster:
			runMaster = true
		case roleNode:
			runNode = true
		case roleSingle:
			runMaster = true
			runNode = true
			if cfg.NodeConfig.ClusterID == 0 {
				cfg.NodeConfig.ClusterID = 1
			}
			cfg.MasterConfig.Hosts = []string{"http://127.0.0.1:" + strconv.Itoa(int(cfg.MasterBindPort))}
		default:
			log.Fatalf("unknown role: %s", role)
		}
	}

	if runMaster {
		if cfg.EmbeddedMaster.Path == "" {
			cfg.EmbeddedMaster.Path = "./run/master"
		}
		if cfg.EmbeddedMaster.ClusterID == 0 {
			cfg.EmbeddedMaster.ClusterID = cfg.NodeConfig.ClusterID
		}
	}

	if runNode {
		if cfg.NodeConfig.Addr == "" {
			ip, err := util.GetLocalIP()
			if err != nil {
				log.Fatalf("can't get local ip address, please set the ip address for the node config")
			}
			cfg.NodeConfig.Addr = ip + ":" + strconv.Itoa(int(cfg.GrpcBindPort))
		}
		if len(cfg.EngineConfigs) == 0 {
			cfg.EngineConfigs = []raftstore.EngineConfig{{Path: "./run/store"}}
		}
	}
	return runMaster, runNode
}
