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

package merkle

import (
	"crypto/sha1" // nolint:gosec // digests are for difference detection, not authentication.
	"encoding/hex"
)

// DigestSize is the length in bytes of every digest and hash produced here.
const DigestSize = sha1.Size

// Digest computes the per-value digest stored alongside each key:
// SHA-1(value).
func Digest(value []byte) [DigestSize]byte {
	return sha1.Sum(value)
}

// KeyDigest is a single (key, digest) pair as ordered within a segment.
type KeyDigest struct {
	Key    []byte
	Digest [DigestSize]byte
}

// concatLines joins elements with '\n', appending a trailing '\n' after the
// final element too (including when elements is empty, in which case the
// result is the empty string). This is deliberately bit-for-bit compatible
// with the reference CONCAT_LINES format: every element, including the
// last, ends with '\n'.
func concatLines(elements []string) []byte {
	var out []byte
	for _, e := range elements {
		out = append(out, e...)
		out = append(out, '\n')
	}
	return out
}

// LeafHash computes the hash for a leaf node from its segment's
// (key, digest) stream, which must already be in ascending key order.
// hash = SHA-1( CONCAT_LINES( hex(key) + "," + hex(digest) ) )
func LeafHash(data []KeyDigest) [DigestSize]byte {
	lines := make([]string, len(data))
	for i, kd := range data {
		lines[i] = hex.EncodeToString(kd.Key) + "," + hex.EncodeToString(kd.Digest[:])
	}
	return sha1.Sum(concatLines(lines))
}

// InternalHash computes the hash for an internal node from the hashes of
// whichever of its children currently have a stored hash, in ascending
// child-id order. A child with no stored hash is omitted entirely from the
// input, not treated as an empty string — an internal node with some
// children absent is not equivalent to one whose absent children hash to
// the empty-content digest.
// hash = SHA-1( CONCAT_LINES( hex(childHash) ) )
func InternalHash(childHashesInOrder [][]byte) [DigestSize]byte {
	lines := make([]string, len(childHashesInOrder))
	for i, h := range childHashesInOrder {
		lines[i] = hex.EncodeToString(h)
	}
	return sha1.Sum(concatLines(lines))
}
