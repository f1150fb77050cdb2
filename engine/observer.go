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

package engine

import (
	"sync"

	"github.com/golang/glog"
)

// Observer is the typed event set of §9: a fixed set of pre/post hooks the
// engine invokes around its operations. Implementations should return
// promptly; slow observers delay the operation they're attached to.
// Observers are invoked best-effort — a panic or error from one must not
// affect engine state, so Observer methods do not return errors.
type Observer interface {
	PreHPut(treeID int64, key, value []byte)
	PostHPut(treeID int64, key, value []byte)
	PreHRemove(treeID int64, key []byte)
	PostHRemove(treeID int64, key []byte)
	PreRebuild(treeID int64)
	PostRebuild(treeID int64, segmentsProcessed int)
	PreSPut(treeID int64, n int)
	PostSPut(treeID int64, n int)
	PreSRemove(treeID int64, n int)
	PostSRemove(treeID int64, n int)
	PreSync(treeID int64)
	PostSync(treeID int64, keyDifferences, extrinsicSegments int)
}

// NoopObserver implements Observer with no-ops; embed it to implement only
// the hooks you care about.
type NoopObserver struct{}

func (NoopObserver) PreHPut(int64, []byte, []byte)             {}
func (NoopObserver) PostHPut(int64, []byte, []byte)            {}
func (NoopObserver) PreHRemove(int64, []byte)                  {}
func (NoopObserver) PostHRemove(int64, []byte)                 {}
func (NoopObserver) PreRebuild(int64)                          {}
func (NoopObserver) PostRebuild(int64, int)                     {}
func (NoopObserver) PreSPut(int64, int)                         {}
func (NoopObserver) PostSPut(int64, int)                        {}
func (NoopObserver) PreSRemove(int64, int)                      {}
func (NoopObserver) PostSRemove(int64, int)                     {}
func (NoopObserver) PreSync(int64)                              {}
func (NoopObserver) PostSync(int64, int, int)                   {}

// observerSet holds observers in an unbounded, concurrent, insertion-ordered
// collection; notifications iterate over a stable snapshot so a concurrent
// Add during notification never partially observes an event.
type observerSet struct {
	mu        sync.RWMutex
	observers []Observer
}

func (s *observerSet) Add(o Observer) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.observers = append(s.observers, o)
}

func (s *observerSet) snapshot() []Observer {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Observer, len(s.observers))
	copy(out, s.observers)
	return out
}

// notify invokes fn for every observer in a stable snapshot, recovering
// from (and logging) any panic so one misbehaving observer cannot affect
// engine state or other observers.
func (s *observerSet) notify(fn func(Observer)) {
	for _, o := range s.snapshot() {
		func(o Observer) {
			defer func() {
				if r := recover(); r != nil {
					glog.Errorf("engine: observer panicked: %v", r)
				}
			}()
			fn(o)
		}(o)
	}
}
