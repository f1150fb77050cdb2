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

// Package queue implements the non-blocking update queue described in
// §4.3: a bounded FIFO decoupling user-thread put/remove notifications
// from the digest-store writes that actually apply them, with coalescing
// of PUT_IF_ABSENT/REMOVE_IF_ABSENT items already in flight for a key.
package queue

import (
	"sync"

	"github.com/golang/glog"
)

// Op is the kind of update queued for a key.
type Op int

const (
	// Put always enqueues, overwriting any coalescing.
	Put Op = iota
	// Remove always enqueues.
	Remove
	// PutIfAbsent enqueues only if no other PutIfAbsent/RemoveIfAbsent item
	// is currently queued for the key; queued Put/Remove items are not
	// tracked and do not prevent it.
	PutIfAbsent
	// RemoveIfAbsent enqueues under the same rule as PutIfAbsent.
	RemoveIfAbsent
)

// Item is a single queued update.
type Item struct {
	Op    Op
	Key   []byte
	Value []byte
}

// Handler applies a dequeued item to the digest store. Errors are logged;
// they do not stop the worker.
type Handler func(Item) error

// stopMarker is never exposed outside this package; enqueueing it triggers
// the worker to drain and exit.
type stopMarker struct{}

// Queue is a bounded FIFO of Items with in-flight key coalescing for the
// IfAbsent variants, per §4.3/§9 ("Coalescing queue → fingerprint set +
// channel").
type Queue struct {
	items chan interface{} // Item or stopMarker
	done  chan struct{}

	mu       sync.Mutex
	onQueue  map[string]bool // keysOnQueue: IfAbsent coalescing set
	stopOnce sync.Once
}

// New creates a Queue with the given bounded capacity and starts a single
// worker goroutine draining it into handle.
func New(capacity int, handle Handler) *Queue {
	if capacity <= 0 {
		capacity = 1
	}
	q := &Queue{
		items:   make(chan interface{}, capacity),
		done:    make(chan struct{}),
		onQueue: make(map[string]bool),
	}
	go q.run(handle)
	return q
}

// Enqueue adds item to the queue. Put/Remove are always enqueued.
// PutIfAbsent/RemoveIfAbsent are enqueued only if no other
// PutIfAbsent/RemoveIfAbsent item is currently in flight for the same key
// (Put/Remove items are not tracked). Enqueue blocks while the queue is at
// capacity, until space frees up or Stop has been called.
func (q *Queue) Enqueue(item Item) {
	k := string(item.Key)

	switch item.Op {
	case PutIfAbsent, RemoveIfAbsent:
		q.mu.Lock()
		if q.onQueue[k] {
			q.mu.Unlock()
			return
		}
		q.onQueue[k] = true
		q.mu.Unlock()
	}

	select {
	case q.items <- item:
	case <-q.done:
		// Shutdown already in progress; drop rather than block forever.
	}
}

// Stop enqueues the STOP sentinel and blocks until the worker has drained
// remaining items and exited.
func (q *Queue) Stop() {
	q.stopOnce.Do(func() {
		q.items <- stopMarker{}
	})
	<-q.done
}

func (q *Queue) run(handle Handler) {
	defer close(q.done)
	for v := range q.items {
		item, ok := v.(Item)
		if !ok {
			// stopMarker: drain whatever is already buffered, then exit.
			for {
				select {
				case v2 := <-q.items:
					if it, ok := v2.(Item); ok {
						q.process(it, handle)
					}
				default:
					return
				}
			}
		}
		q.process(item, handle)
	}
}

func (q *Queue) process(item Item, handle Handler) {
	defer func() {
		switch item.Op {
		case PutIfAbsent, RemoveIfAbsent:
			q.mu.Lock()
			delete(q.onQueue, string(item.Key))
			q.mu.Unlock()
		}
	}()
	if err := handle(item); err != nil {
		glog.Errorf("queue: handler failed for key %q: %v", item.Key, err)
	}
}
