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

// Package engine implements the hash-tree engine: the component owning the
// data-model invariants of §3, the hPut/hRemove/rebuild/synch operations of
// §4.4, and the reconciliation walker of §4.5.
package engine

import (
	"fmt"
	"hash/fnv"

	"github.com/opentreesync/htree/lock"
	"github.com/opentreesync/htree/merkle"
	"github.com/opentreesync/htree/queue"
	"github.com/opentreesync/htree/storage"
	"github.com/opentreesync/htree/storage/memorykv"
	"github.com/opentreesync/htree/userstore"
)

// DefaultNoOfSegments is S when Config.NoOfSegments is left at zero.
const DefaultNoOfSegments = 1 << 17

// DefaultQueueSize stands in for the specified "unbounded-equivalent"
// default non-blocking queue size. Go channels require a fixed capacity;
// this is a large but finite default (see DESIGN.md Open Questions).
const DefaultQueueSize = 1 << 16

// reconcileFanOut bounds the number of goroutines rebuild/sync spawn at
// once for parent-hash propagation and worklist expansion, avoiding
// unbounded goroutine creation on wide trees.
const reconcileFanOut = 32

// TreeIDProvider maps a user-store key to the logical tree it belongs to.
type TreeIDProvider func(key []byte) int64

// SegIDProvider maps a key to its segment id within its tree, deterministically.
type SegIDProvider func(key []byte, noOfSegments uint32) uint32

// DefaultSegIDProvider is the modulo-of-a-stable-hash default segment-id
// provider described in §3.
func DefaultSegIDProvider(key []byte, noOfSegments uint32) uint32 {
	h := fnv.New64a()
	h.Write(key)
	return uint32(h.Sum64() % uint64(noOfSegments))
}

// Config is the engine's enumerated set of construction options (§4.4).
type Config struct {
	// NoOfSegments is S, the number of segments per tree. Must be a power
	// of two, 1 <= S <= merkle.MaxSegments. Defaults to DefaultNoOfSegments.
	NoOfSegments uint32

	// EnableNonBlockingCalls routes hPut/hRemove through the queue package
	// instead of applying them synchronously. Defaults to true.
	EnableNonBlockingCalls bool
	// explicit override so the zero value of EnableNonBlockingCalls (false)
	// can still mean "use the default" at construction time.
	nonBlockingSet bool

	// NonBlockingQueueSize bounds the queue when EnableNonBlockingCalls is
	// set. Defaults to DefaultQueueSize.
	NonBlockingQueueSize int

	// SegIDProvider defaults to DefaultSegIDProvider.
	SegIDProvider SegIDProvider

	// TreeIDProvider is required: there is no sensible default mapping
	// from key to tree.
	TreeIDProvider TreeIDProvider

	// LockProvider defaults to an in-process lock.InProcess.
	LockProvider lock.Provider

	// DigestStoreEngine backs the digest store. Defaults to an in-memory
	// memorykv.Engine.
	DigestStoreEngine storage.KVEngine

	// UserStore is required: the external key/value collaborator.
	UserStore userstore.Store
}

// SetNonBlocking is a tri-state setter so callers can explicitly choose
// false (synchronous hPut/hRemove) rather than silently falling back to the
// true default. Config.EnableNonBlockingCalls defaults to true unless this
// is called with false before NewEngine.
func (c *Config) SetNonBlocking(enabled bool) {
	c.EnableNonBlockingCalls = enabled
	c.nonBlockingSet = true
}

func (c *Config) validate() error {
	if c.TreeIDProvider == nil {
		return fmt.Errorf("engine: Config.TreeIDProvider is required")
	}
	if c.UserStore == nil {
		return fmt.Errorf("engine: Config.UserStore is required")
	}
	if c.NoOfSegments == 0 {
		c.NoOfSegments = DefaultNoOfSegments
	}
	if c.NoOfSegments != merkle.NextPowerOfTwo(c.NoOfSegments) {
		return fmt.Errorf("engine: Config.NoOfSegments (%d) must be a power of two", c.NoOfSegments)
	}
	if c.NoOfSegments > merkle.MaxSegments {
		return fmt.Errorf("engine: Config.NoOfSegments (%d) exceeds max %d", c.NoOfSegments, merkle.MaxSegments)
	}
	if !c.nonBlockingSet {
		c.EnableNonBlockingCalls = true
	}
	if c.NonBlockingQueueSize <= 0 {
		c.NonBlockingQueueSize = DefaultQueueSize
	}
	if c.SegIDProvider == nil {
		c.SegIDProvider = DefaultSegIDProvider
	}
	if c.LockProvider == nil {
		c.LockProvider = lock.NewInProcess()
	}
	if c.DigestStoreEngine == nil {
		c.DigestStoreEngine = memorykv.New()
	}
	return nil
}
