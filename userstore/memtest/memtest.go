// Copyright 2016 Google Inc. All Rights Reserved.
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

// Package memtest is an in-memory reference double for userstore.Store,
// used by this repo's own tests and examples. It is explicitly not a
// production key/value store.
package memtest

import (
	"context"
	"sync"

	"github.com/opentreesync/htree/userstore"
)

// TreeIDFunc maps a key to the logical tree it belongs to, mirroring the
// engine's own tree-id provider so Iterate can scope its walk by treeID.
type TreeIDFunc func(key []byte) int64

// Store is a mutex-guarded map implementing userstore.Store.
type Store struct {
	treeIDOf TreeIDFunc

	mu   sync.RWMutex
	data map[string][]byte
}

// New returns an empty Store. treeIDOf should be the same function passed
// to the engine's Config.TreeIDProvider, so Iterate(treeID) agrees with
// how the engine buckets keys.
func New(treeIDOf TreeIDFunc) *Store {
	return &Store{treeIDOf: treeIDOf, data: make(map[string][]byte)}
}

func (s *Store) Get(_ context.Context, key []byte) ([]byte, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.data[string(key)]
	if !ok {
		return nil, false, nil
	}
	out := make([]byte, len(v))
	copy(out, v)
	return out, true, nil
}

func (s *Store) Contains(_ context.Context, key []byte) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.data[string(key)]
	return ok, nil
}

func (s *Store) Iterate(_ context.Context, treeID int64, fn func(userstore.KV) (bool, error)) error {
	s.mu.RLock()
	var snapshot []userstore.KV
	for k, v := range s.data {
		if s.treeIDOf([]byte(k)) != treeID {
			continue
		}
		snapshot = append(snapshot, userstore.KV{Key: []byte(k), Value: append([]byte(nil), v...)})
	}
	s.mu.RUnlock()

	for _, kv := range snapshot {
		ok, err := fn(kv)
		if err != nil {
			return err
		}
		if !ok {
			break
		}
	}
	return nil
}

func (s *Store) Put(_ context.Context, key, value []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	v := make([]byte, len(value))
	copy(v, value)
	s.data[string(key)] = v
	return nil
}

func (s *Store) Delete(_ context.Context, key []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.data, string(key))
	return nil
}
