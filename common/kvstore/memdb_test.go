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
	"strconv"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMemdb_SetGetDelete(t *testing.T) {
	ctx := context.TODO()
	s, err := NewKVStore(ctx, "", MemoryKVType, &Option{ColumnFamily: []CF{"meta"}})
	require.NoError(t, err)
	defer s.Close()

	require.NoError(t, s.SetRaw(ctx, "meta", []byte("k1"), []byte("v1")))
	v, err := s.GetRaw(ctx, "meta", []byte("k1"))
	require.NoError(t, err)
	require.Equal(t, []byte("v1"), v)

	_, err = s.GetRaw(ctx, "meta", []byte("missing"))
	require.Equal(t, ErrNotFound, err)

	require.NoError(t, s.Delete(ctx, "meta", []byte("k1")))
	_, err = s.GetRaw(ctx, "meta", []byte("k1"))
	require.Equal(t, ErrNotFound, err)
}

func TestMemdb_ListPrefix(t *testing.T) {
	ctx := context.TODO()
	s, err := NewKVStore(ctx, "", MemoryKVType, &Option{})
	require.NoError(t, err)
	defer s.Close()

	for i := 0; i < 10; i++ {
		key := "p/" + strconv.Itoa(i)
		require.NoError(t, s.SetRaw(ctx, defaultCF, []byte(key), []byte(strconv.Itoa(i))))
	}
	require.NoError(t, s.SetRaw(ctx, defaultCF, []byte("q/0"), []byte("other")))

	lr := s.List(ctx, defaultCF, []byte("p/"), nil)
	defer lr.Close()

	count := 0
	for {
		key, _, err := lr.ReadNextCopy()
		require.NoError(t, err)
		if key == nil {
			break
		}
		count++
	}
	require.Equal(t, 10, count)
}

func TestMemdb_ListMarker(t *testing.T) {
	ctx := context.TODO()
	s, err := NewKVStore(ctx, "", MemoryKVType, &Option{})
	require.NoError(t, err)
	defer s.Close()

	for _, k := range []string{"a", "b", "c", "d"} {
		require.NoError(t, s.SetRaw(ctx, defaultCF, []byte(k), []byte(k)))
	}

	lr := s.List(ctx, defaultCF, nil, []byte("c"))
	defer lr.Close()

	key, _, err := lr.ReadNextCopy()
	require.NoError(t, err)
	require.Equal(t, []byte("c"), key)
	key, _, err = lr.ReadNextCopy()
	require.NoError(t, err)
	require.Equal(t, []byte("d"), key)
	key, _, err = lr.ReadNextCopy()
	require.NoError(t, err)
	require.Nil(t, key)
}

func TestMemdb_WriteBatch(t *testing.T) {
	ctx := context.TODO()
	s, err := NewKVStore(ctx, "", MemoryKVType, &Option{ColumnFamily: []CF{"raft"}})
	require.NoError(t, err)
	defer s.Close()

	for i := 0; i < 5; i++ {
		require.NoError(t, s.SetRaw(ctx, "raft", []byte("l"+strconv.Itoa(i)), []byte("v")))
	}

	batch := s.NewWriteBatch()
	batch.Put("raft", []byte("l5"), []byte("v"))
	batch.Delete("raft", []byte("l0"))
	batch.DeleteRange("raft", []byte("l2"), []byte("l4"))
	require.NoError(t, s.Write(ctx, batch))
	batch.Close()

	_, err = s.GetRaw(ctx, "raft", []byte("l0"))
	require.Equal(t, ErrNotFound, err)
	_, err = s.GetRaw(ctx, "raft", []byte("l2"))
	require.Equal(t, ErrNotFound, err)
	_, err = s.GetRaw(ctx, "raft", []byte("l3"))
	require.Equal(t, ErrNotFound, err)
	v, err := s.GetRaw(ctx, "raft", []byte("l4"))
	require.NoError(t, err)
	require.Equal(t, []byte("v"), v)
	_, err = s.GetRaw(ctx, "raft", []byte("l5"))
	require.NoError(t, err)
}
