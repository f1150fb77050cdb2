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

// Package lock provides the per-treeId lock provider of §4.6: rebuild and
// sync each try to acquire the lock for the tree they're about to work on
// and simply decline the work (returning zero) if another rebuild or sync
// already holds it. hPut/hRemove never take this lock.
package lock

import "sync"

// Provider hands out a non-blocking, per-treeId mutex.
type Provider interface {
	// TryAcquire attempts to lock treeID without blocking. release is
	// non-nil and must be called exactly once iff ok is true.
	TryAcquire(treeID int64) (release func(), ok bool)
}

// InProcess is the default Provider: one *sync.Mutex per treeId, created
// lazily, guarded by TryLock (Go's native non-blocking mutex acquisition).
type InProcess struct {
	mu    sync.Mutex
	locks map[int64]*sync.Mutex
}

// NewInProcess returns an empty in-process lock provider.
func NewInProcess() *InProcess {
	return &InProcess{locks: make(map[int64]*sync.Mutex)}
}

func (p *InProcess) lockFor(treeID int64) *sync.Mutex {
	p.mu.Lock()
	defer p.mu.Unlock()
	m, ok := p.locks[treeID]
	if !ok {
		m = &sync.Mutex{}
		p.locks[treeID] = m
	}
	return m
}

// TryAcquire implements Provider.
func (p *InProcess) TryAcquire(treeID int64) (func(), bool) {
	m := p.lockFor(treeID)
	if !m.TryLock() {
		return nil, false
	}
	return m.Unlock, true
}
