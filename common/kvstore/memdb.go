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
	"bytes"
	"context"
	"sort"
	"sync"
)

// memdb keeps every column family as a sorted key slice plus a value map.
// It backs unit tests and cgo-free runs; durability is not provided.
type memdb struct {
	cols map[CF]*memColumn
	lock sync.RWMutex
}

type memColumn struct {
	keys   []string
	values map[string][]byte
}

type memListReader struct {
	keys   [][]byte
	values [][]byte
	pos    int
}

type memWriteBatch struct {
	ops []memOp
}

type memOp struct {
	col      CF
	key      []byte
	value    []byte
	endKey   []byte
	isDelete bool
	isRange  bool
}

func newMemdb(ctx context.Context, option *Option) Store {
	s := &memdb{cols: make(map[CF]*memColumn)}
	s.cols[defaultCF] = newMemColumn()
	for _, col := range option.ColumnFamily {
		s.cols[col] = newMemColumn()
	}
	return s
}

func newMemColumn() *memColumn {
	return &memColumn{values: make(map[string][]byte)}
}

func (s *memdb) CreateColumn(col CF) error {
	s.lock.Lock()
	if _, ok := s.cols[col]; !ok {
		s.cols[col] = newMemColumn()
	}
	s.lock.Unlock()
	return nil
}

func (s *memdb) GetRaw(ctx context.Context, col CF, key []byte) ([]byte, error) {
	s.lock.RLock()
	defer s.lock.RUnlock()

	v, ok := s.column(col).values[string(key)]
	if !ok {
		return nil, ErrNotFound
	}
	ret := make([]byte, len(v))
	copy(ret, v)
	return ret, nil
}

func (s *memdb) SetRaw(ctx context.Context, col CF, key []byte, value []byte) error {
	s.lock.Lock()
	s.column(col).put(key, value)
	s.lock.Unlock()
	return nil
}

func (s *memdb) Delete(ctx context.Context, col CF, key []byte) error {
	s.lock.Lock()
	s.column(col).delete(key)
	s.lock.Unlock()
	return nil
}

func (s *memdb) List(ctx context.Context, col CF, prefix []byte, marker []byte) ListReader {
	s.lock.RLock()
	defer s.lock.RUnlock()

	c := s.column(col)
	start := prefix
	if len(marker) > 0 {
		start = marker
	}

	idx := sort.SearchStrings(c.keys, string(start))
	lr := &memListReader{}
	for ; idx < len(c.keys); idx++ {
		key := []byte(c.keys[idx])
		if prefix != nil && !bytes.HasPrefix(key, prefix) {
			break
		}
		value := make([]byte, len(c.values[c.keys[idx]]))
		copy(value, c.values[c.keys[idx]])
		lr.keys = append(lr.keys, key)
		lr.values = append(lr.values, value)
	}
	return lr
}

func (s *memdb) NewWriteBatch() WriteBatch {
	return &memWriteBatch{}
}

func (s *memdb) Write(ctx context.Context, batch WriteBatch) error {
	b := batch.(*memWriteBatch)
	s.lock.Lock()
	defer s.lock.Unlock()

	for _, op := range b.ops {
		c := s.column(op.col)
		switch {
		case op.isRange:
			c.deleteRange(op.key, op.endKey)
		case op.isDelete:
			c.delete(op.key)
		default:
			c.put(op.key, op.value)
		}
	}
	return nil
}

func (s *memdb) FlushCF(ctx context.Context, col CF) error { return nil }

func (s *memdb) Stats(ctx context.Context) (Stats, error) {
	s.lock.RLock()
	defer s.lock.RUnlock()

	var used uint64
	for _, c := range s.cols {
		for k, v := range c.values {
			used += uint64(len(k) + len(v))
		}
	}
	return Stats{Used: used}, nil
}

func (s *memdb) Close() {}

func (s *memdb) column(col CF) *memColumn {
	if c, ok := s.cols[col]; ok {
		return c
	}
	return s.cols[defaultCF]
}

func (c *memColumn) put(key, value []byte) {
	k := string(key)
	if _, ok := c.values[k]; !ok {
		idx := sort.SearchStrings(c.keys, k)
		c.keys = append(c.keys, "")
		copy(c.keys[idx+1:], c.keys[idx:])
		c.keys[idx] = k
	}
	v := make([]byte, len(value))
	copy(v, value)
	c.values[k] = v
}

func (c *memColumn) delete(key []byte) {
	k := string(key)
	if _, ok := c.values[k]; !ok {
		return
	}
	delete(c.values, k)
	idx := sort.SearchStrings(c.keys, k)
	c.keys = append(c.keys[:idx], c.keys[idx+1:]...)
}

func (c *memColumn) deleteRange(start, end []byte) {
	lo := sort.SearchStrings(c.keys, string(start))
	hi := sort.SearchStrings(c.keys, string(end))
	for i := lo; i < hi; i++ {
		delete(c.values, c.keys[i])
	}
	c.keys = append(c.keys[:lo], c.keys[hi:]...)
}

func (b *memWriteBatch) Put(col CF, key, value []byte) {
	b.ops = append(b.ops, memOp{col: col, key: copyBytes(key), value: copyBytes(value)})
}

func (b *memWriteBatch) Delete(col CF, key []byte) {
	b.ops = append(b.ops, memOp{col: col, key: copyBytes(key), isDelete: true})
}

func (b *memWriteBatch) DeleteRange(col CF, startKey, endKey []byte) {
	b.ops = append(b.ops, memOp{col: col, key: copyBytes(startKey), endKey: copyBytes(endKey), isRange: true})
}

func (b *memWriteBatch) Close() {
	b.ops = nil
}

func copyBytes(b []byte) []byte {
	ret := make([]byte, len(b))
	copy(ret, b)
	return ret
}

func (lr *memListReader) ReadNextCopy() ([]byte, []byte, error) {
	if lr.pos >= len(lr.keys) {
		return nil, nil, nil
	}
	key, value := lr.keys[lr.pos], lr.values[lr.pos]
	lr.pos++
	return key, value, nil
}

func (lr *memListReader) Close() {}
