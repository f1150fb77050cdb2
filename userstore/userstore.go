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

// Package userstore defines the contract the hash-tree engine consumes
// from the application's own key/value store. The store itself is an
// external collaborator: production callers bring their own implementation
// against whatever backs their data. Package memtest provides an in-memory
// reference double used by this repo's own tests.
package userstore

import "context"

// KV is a single key/value pair as returned by an iterator.
type KV struct {
	Key   []byte
	Value []byte
}

// Store is the read/write contract the engine consumes from the user's own
// key/value store. No ordering is required of Iterate beyond enumerating
// the tree's full key set exactly once.
type Store interface {
	// Get returns the value for key, or ok=false if absent.
	Get(ctx context.Context, key []byte) (value []byte, ok bool, err error)

	// Contains reports whether key is present, without fetching its value.
	Contains(ctx context.Context, key []byte) (bool, error)

	// Iterate enumerates every (key, value) pair belonging to treeID. fn
	// returning ok=false stops iteration early.
	Iterate(ctx context.Context, treeID int64, fn func(kv KV) (ok bool, err error)) error

	// Put writes key=value.
	Put(ctx context.Context, key, value []byte) error

	// Delete removes key. Deleting an absent key is not an error.
	Delete(ctx context.Context, key []byte) error
}
