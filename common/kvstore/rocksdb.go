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

//go:build cgo
// +build cgo

package kvstore

import (
	"context"
	"errors"
	"os"
	"sync"

	rdb "github.com/tecbot/gorocksdb"
)

type (
	rocksdb struct {
		path      string
		db        *rdb.DB
		opt       *rdb.Options
		readOpt   *rdb.ReadOptions
		writeOpt  *rdb.WriteOptions
		flushOpt  *rdb.FlushOptions
		cfHandles map[CF]*rdb.ColumnFamilyHandle
		lock      sync.RWMutex
	}
	listReader struct {
		iterator *rdb.Iterator
		prefix   []byte
		isFirst  bool
	}
	writeBatch struct {
		s     *rocksdb
		batch *rdb.WriteBatch
	}
)

func newRocksdb(ctx context.Context, path string, option *Option) (Store, error) {
	if path == "" {
		return nil, errors.New("path is empty")
	}
	if err := os.MkdirAll(path, 0o755); err != nil {
		return nil, err
	}

	dbOpt := genRocksdbOpts(option)

	cfNum := len(option.ColumnFamily) + 1
	cols := make([]CF, 0, cfNum)
	cols = append(cols, defaultCF)
	cols = append(cols, option.ColumnFamily...)

	cfNames := make([]string, 0, cfNum)
	cfOpts := make([]*rdb.Options, 0, cfNum)
	for i := 0; i < cfNum; i++ {
		cfNames = append(cfNames, cols[i].String())
		cfOpts = append(cfOpts, dbOpt)
	}

	db, cfhs, err := rdb.OpenDbColumnFamilies(dbOpt, path, cfNames, cfOpts)
	if err != nil {
		return nil, err
	}

	cfhMap := make(map[CF]*rdb.ColumnFamilyHandle)
	for i, h := range cfhs {
		cfhMap[cols[i]] = h
	}

	wo := rdb.NewDefaultWriteOptions()
	if option.Sync {
		wo.SetSync(option.Sync)
	}

	ins := &rocksdb{
		db:        db,
		path:      path,
		opt:       dbOpt,
		readOpt:   rdb.NewDefaultReadOptions(),
		writeOpt:  wo,
		flushOpt:  rdb.NewDefaultFlushOptions(),
		cfHandles: cfhMap,
	}
	return ins, nil
}

func (s *rocksdb) CreateColumn(col CF) error {
	s.lock.Lock()
	if s.cfHandles[col] != nil {
		s.lock.Unlock()
		return nil
	}
	h, err := s.db.CreateColumnFamily(s.opt, col.String())
	if err != nil {
		s.lock.Unlock()
		return err
	}
	s.cfHandles[col] = h
	s.lock.Unlock()
	return nil
}

func (s *rocksdb) GetRaw(ctx context.Context, col CF, key []byte) (value []byte, err error) {
	var v *rdb.Slice
	cf := s.getColumnFamily(col)
	if v, err = s.db.GetCF(s.readOpt, cf, key); err != nil {
		return nil, err
	}
	if !v.Exists() {
		return nil, ErrNotFound
	}
	value = make([]byte, v.Size())
	copy(value, v.Data())
	v.Free()
	return value, nil
}

func (s *rocksdb) SetRaw(ctx context.Context, col CF, key []byte, value []byte) error {
	cf := s.getColumnFamily(col)
	return s.db.PutCF(s.writeOpt, cf, key, value)
}

func (s *rocksdb) Delete(ctx context.Context, col CF, key []byte) error {
	cf := s.getColumnFamily(col)
	return s.db.DeleteCF(s.writeOpt, cf, key)
}

func (s *rocksdb) List(ctx context.Context, col CF, prefix []byte, marker []byte) ListReader {
	cf := s.getColumnFamily(col)

	t := s.db.NewIteratorCF(s.readOpt, cf)
	if len(marker) > 0 {
		t.Seek(marker)
	} else if prefix != nil {
		t.Seek(prefix)
	} else {
		t.SeekToFirst()
	}

	return &listReader{
		iterator: t,
		prefix:   prefix,
		isFirst:  true,
	}
}

func (s *rocksdb) NewWriteBatch() WriteBatch {
	return &writeBatch{
		s:     s,
		batch: rdb.NewWriteBatch(),
	}
}

func (s *rocksdb) Write(ctx context.Context, batch WriteBatch) error {
	return s.db.Write(s.writeOpt, batch.(*writeBatch).batch)
}

func (s *rocksdb) FlushCF(ctx context.Context, col CF) error {
	cf := s.getColumnFamily(col)
	return s.db.FlushCF(s.flushOpt, cf)
}

func (s *rocksdb) Stats(ctx context.Context) (stats Stats, err error) {
	var size int64
	files := s.db.GetLiveFilesMetaData()
	for i := range files {
		size += files[i].Size
	}
	stats = Stats{Used: uint64(size)}
	return
}

func (s *rocksdb) Close() {
	s.writeOpt.Destroy()
	s.readOpt.Destroy()
	s.opt.Destroy()
	s.flushOpt.Destroy()
	for i := range s.cfHandles {
		s.cfHandles[i].Destroy()
	}
	s.db.Close()
}

func (s *rocksdb) getColumnFamily(col CF) *rdb.ColumnFamilyHandle {
	s.lock.RLock()
	h, ok := s.cfHandles[col]
	s.lock.RUnlock()
	if !ok {
		return s.cfHandles[defaultCF]
	}
	return h
}

func (lr *listReader) ReadNextCopy() (key []byte, value []byte, err error) {
	if !lr.isFirst {
		lr.iterator.Next()
	}
	lr.isFirst = false
	if err = lr.iterator.Err(); err != nil {
		return nil, nil, err
	}
	if !lr.iterator.Valid() {
		return nil, nil, nil
	}
	if lr.prefix != nil && !lr.iterator.ValidForPrefix(lr.prefix) {
		return nil, nil, nil
	}

	k := lr.iterator.Key()
	v := lr.iterator.Value()
	key = make([]byte, len(k.Data()))
	value = make([]byte, len(v.Data()))
	copy(key, k.Data())
	copy(value, v.Data())
	k.Free()
	v.Free()
	return
}

func (lr *listReader) Close() {
	lr.iterator.Close()
}

func (w *writeBatch) Put(col CF, key, value []byte) {
	w.batch.PutCF(w.s.getColumnFamily(col), key, value)
}

func (w *writeBatch) Delete(col CF, key []byte) {
	w.batch.DeleteCF(w.s.getColumnFamily(col), key)
}

func (w *writeBatch) DeleteRange(col CF, startKey, endKey []byte) {
	w.batch.DeleteRangeCF(w.s.getColumnFamily(col), startKey, endKey)
}

func (w *writeBatch) Close() {
	w.batch.Destroy()
}

func genRocksdbOpts(opt *Option) *rdb.Options {
	dbOpt := rdb.NewDefaultOptions()
	dbOpt.SetCreateIfMissing(true)
	dbOpt.SetCreateIfMissingColumnFamilies(true)
	if opt.MaxOpenFiles > 0 {
		dbOpt.SetMaxOpenFiles(opt.MaxOpenFiles)
	}
	if opt.WriteBufferSize > 0 {
		dbOpt.SetWriteBufferSize(opt.WriteBufferSize)
	}
	if opt.BlockSize > 0 {
		blockOpt := rdb.NewDefaultBlockBasedTableOptions()
		blockOpt.SetBlockSize(opt.BlockSize)
		dbOpt.SetBlockBasedTableFactory(blockOpt)
	}
	return dbOpt
}
