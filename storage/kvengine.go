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

// Package storage implements the digest store: the persistent, ordered
// key/value structure that backs the hash-tree engine's segment data,
// node hashes, dirty-segment bitsets and rebuild metadata.
//
// The digest store itself is a thin layer of big-endian prefix encoding
// (see keys.go) over a pluggable KVEngine. The underlying persistence
// engine is treated as an external collaborator per the specification: only
// a sorted-prefix key/value contract is assumed of it. Four
// concrete KVEngines are provided in sibling packages (memorykv, pebblekv,
// sqlkv, rediskv).
package storage

import "context"

// KVEngine is the ordered byte-range key/value contract the digest store is
// built on. Keys compare lexicographically as byte strings; Iterate walks
// keys in ascending order over a half-open range.
type KVEngine interface {
	// Get returns the value for key, or ok=false if absent.
	Get(ctx context.Context, key []byte) (value []byte, ok bool, err error)

	// Set writes key=value, durable before return.
	Set(ctx context.Context, key, value []byte) error

	// Delete removes key. Deleting an absent key is not an error.
	Delete(ctx context.Context, key []byte) error

	// Iterate calls fn once for every key in the half-open range [lo, hi)
	// in ascending order, stopping early if fn returns ok=false. The walk
	// is a point-in-time snapshot with respect to concurrent writers: it
	// presents a self-consistent view as of the moment Iterate was called.
	Iterate(ctx context.Context, lo, hi []byte, fn func(key, value []byte) (ok bool, err error)) error
}
