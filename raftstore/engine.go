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
	"encoding/json"

	"github.com/rangekv/rangekv/common/kvstore"
	"github.com/rangekv/rangekv/proto"
)

const (
	metaCF = kvstore.CF("meta")
	raftCF = kvstore.CF("raft")
	dataCF = kvstore.CF("data")
)

type EngineConfig struct {
	Path     string            `json:"path"`
	KVType   kvstore.LsmKVType `json:"kv_type"`
	KVOption kvstore.Option    `json:"kv_option"`
}

// Engine owns one data directory. Every store runs on exactly one engine;
// the engine carries the store's durable identity, its region metadata,
// raft logs and applied data.
type Engine struct {
	path    string
	kvStore kvstore.Store
}

func OpenEngine(ctx context.Context, cfg *EngineConfig) (*Engine, error) {
	if cfg.KVType == "" {
		cfg.KVType = kvstore.RocksdbLsmKVType
	}
	cfg.KVOption.ColumnFamily = append(cfg.KVOption.ColumnFamily, metaCF, raftCF, dataCF)

	kvStore, err := kvstore.NewKVStore(ctx, cfg.Path, cfg.KVType, &cfg.KVOption)
	if err != nil {
		return nil, err
	}
	return &Engine{path: cfg.Path, kvStore: kvStore}, nil
}

func (e *Engine) Path() string {
	return e.path
}

func (e *Engine) KVStore() kvstore.Store {
	return e.kvStore
}

// ReadStoreIdent returns nil without error when the engine has never been
// bootstrapped.
func (e *Engine) ReadStoreIdent(ctx context.Context) (*proto.StoreIdent, error) {
	value, err := e.kvStore.GetRaw(ctx, metaCF, storeIdentKey())
	if err != nil {
		if err == kvstore.ErrNotFound {
			return nil, nil
		}
		return nil, err
	}
	ident := new(proto.StoreIdent)
	if err := json.Unmarshal(value, ident); err != nil {
		return nil, err
	}
	return ident, nil
}

func (e *Engine) Close() {
	e.kvStore.Close()
}
