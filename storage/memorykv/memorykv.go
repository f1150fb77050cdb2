// Copyright 2017 Google LLC. All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package memorykv is the default, in-process storage.KVEngine: an ordered
// map backed by a google/btree. It is used as the default digest-store
// backend and in tests.
package memorykv

import (
	"bytes"
	"context"
	"sync"

	"github.com/google/btree"
)

const defaultDegree = 32

// kv is the btree.Item stored in the tree: ordered by Key.
type kv struct {
	key   []byte
	value []byte
}

func (a *kv) Less(than btree.Item) bool {
	return bytes.Compare(a.key, than.(*kv).key) < 0
}

// Engine implements storage.KVEngine over an in-memory btree.BTree guarded
// by a mutex. Suitable for tests and small, single-process deployments with
// no durability requirement.
type Engine struct {
	mu   sync.RWMutex
	tree *btree.BTree
}

// New returns an empty in-memory KVEngine.
func New() *Engine {
	return &Engine{tree: btree.New(defaultDegree)}
}

func (e *Engine) Get(_ context.Context, key []byte) ([]byte, bool, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	item := e.tree.Get(&kv{key: key})
	if item == nil {
		return nil, false, nil
	}
	v := item.(*kv).value
	out := make([]byte, len(v))
	copy(out, v)
	return out, true, nil
}

func (e *Engine) Set(_ context.Context, key, value []byte) error {
	k := make([]byte, len(key))
	copy(k, key)
	v := make([]byte, len(value))
	copy(v, value)

	e.mu.Lock()
	defer e.mu.Unlock()
	e.tree.ReplaceOrInsert(&kv{key: k, value: v})
	return nil
}

func (e *Engine) Delete(_ context.Context, key []byte) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.tree.Delete(&kv{key: key})
	return nil
}

func (e *Engine) Iterate(_ context.Context, lo, hi []byte, fn func(key, value []byte) (bool, error)) error {
	e.mu.RLock()
	// Collect the snapshot under the lock, then invoke fn outside of it so
	// fn (which may call back into the engine, e.g. during rebuild) cannot
	// deadlock against the same mutex.
	var keys, vals [][]byte
	e.tree.AscendRange(&kv{key: lo}, &kv{key: hi}, func(item btree.Item) bool {
		it := item.(*kv)
		keys = append(keys, it.key)
		vals = append(vals, it.value)
		return true
	})
	e.mu.RUnlock()

	for i := range keys {
		ok, err := fn(keys[i], vals[i])
		if err != nil {
			return err
		}
		if !ok {
			break
		}
	}
	return nil
}
