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

package kvstore

import (
	"context"
	"errors"
)

const (
	defaultCF = CF("default")

	RocksdbLsmKVType = LsmKVType("rocksdb")
	MemoryKVType     = LsmKVType("memory")
)

var (
	ErrNotFound       = errors.New("key not found")
	ErrKVTypeNotFound = errors.New("kv type not found")
)

type (
	CF        string
	LsmKVType string

	Store interface {
		CreateColumn(col CF) error
		GetRaw(ctx context.Context, col CF, key []byte) (value []byte, err error)
		SetRaw(ctx context.Context, col CF, key []byte, value []byte) error
		Delete(ctx context.Context, col CF, key []byte) error
		List(ctx context.Context, col CF, prefix []byte, marker []byte) ListReader
		NewWriteBatch() WriteBatch
		Write(ctx context.Context, batch WriteBatch) error
		FlushCF(ctx context.Context, col CF) error
		Stats(ctx context.Context) (Stats, error)
		Close()
	}
	ListReader interface {
		// ReadNextCopy returns a nil key when the listing range is
		// exhausted.
		ReadNextCopy() (key []byte, value []byte, err error)
		Close()
	}
	WriteBatch interface {
		Put(col CF, key, value []byte)
		Delete(col CF, key []byte)
		DeleteRange(col CF, startKey, endKey []byte)
		Close()
	}

	Stats struct {
		Used uint64
	}
	Option struct {
		Sync            bool
		ColumnFamily    []CF `json:"column_family"`
		CreateIfMissing bool
		MaxOpenFiles    int
		WriteBufferSize int
		BlockSize       int
	}
)

func NewKVStore(ctx context.Context, path string, lsmType LsmKVType, option *Option) (Store, error) {
	switch lsmType {
	case RocksdbLsmKVType:
		return newRocksdb(ctx, path, option)
	case MemoryKVType:
		return newMemdb(ctx, option), nil
	default:
		return nil, ErrKVTypeNotFound
	}
}

func (c CF) String() string {
	return string(c)
}
