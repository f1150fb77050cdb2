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

package storage

import "encoding/binary"

// Key prefixes for the four logical maps multiplexed onto one KVEngine.
const (
	prefixSegmentData    byte = 0x01
	prefixSegmentHash    byte = 0x02
	prefixDirtySegment   byte = 0x03
	prefixMeta           byte = 0x04
	scopeLastFullRebuild byte = 0x01
)

func putUint64(b []byte, v uint64) {
	binary.BigEndian.PutUint64(b, v)
}

func putUint32(b []byte, v uint32) {
	binary.BigEndian.PutUint32(b, v)
}

// segmentDataKey encodes 0x01 | treeId(8B BE) | segId(4B BE) | keyBytes.
func segmentDataKey(treeID int64, segID uint32, key []byte) []byte {
	out := make([]byte, 1+8+4+len(key))
	out[0] = prefixSegmentData
	putUint64(out[1:9], uint64(treeID))
	putUint32(out[9:13], segID)
	copy(out[13:], key)
	return out
}

// segmentDataLowerBound and segmentDataUpperBound bracket every key in a
// given segment: [lo, hi).
func segmentDataLowerBound(treeID int64, segID uint32) []byte {
	return segmentDataKey(treeID, segID, nil)
}

func segmentDataUpperBound(treeID int64, segID uint32) []byte {
	return segmentDataKey(treeID, segID+1, nil)
}

// segmentRangeLowerBound and segmentRangeUpperBound bracket every key whose
// segment id falls in [segFrom, segTo).
func segmentRangeLowerBound(treeID int64, segFrom uint32) []byte {
	return segmentDataKey(treeID, segFrom, nil)
}

func segmentRangeUpperBound(treeID int64, segTo uint32) []byte {
	return segmentDataKey(treeID, segTo, nil)
}

// segmentHashKey encodes 0x02 | treeId(8B BE) | nodeId(4B BE).
func segmentHashKey(treeID int64, nodeID uint32) []byte {
	out := make([]byte, 1+8+4)
	out[0] = prefixSegmentHash
	putUint64(out[1:9], uint64(treeID))
	putUint32(out[9:13], nodeID)
	return out
}

func segmentHashLowerBound(treeID int64) []byte {
	return segmentHashKey(treeID, 0)
}

func segmentHashUpperBound(treeID int64) []byte {
	return segmentHashKey(treeID, ^uint32(0))
}

// dirtySegmentKey encodes 0x03 | treeId(8B BE) | segId(4B BE).
func dirtySegmentKey(treeID int64, segID uint32) []byte {
	out := make([]byte, 1+8+4)
	out[0] = prefixDirtySegment
	putUint64(out[1:9], uint64(treeID))
	putUint32(out[9:13], segID)
	return out
}

func dirtySegmentLowerBound(treeID int64) []byte {
	return dirtySegmentKey(treeID, 0)
}

func dirtySegmentUpperBound(treeID int64) []byte {
	return dirtySegmentKey(treeID, ^uint32(0))
}

// metaKey encodes 0x04 | treeId(8B BE) | scope(1B).
func metaKey(treeID int64, scope byte) []byte {
	out := make([]byte, 1+8+1)
	out[0] = prefixMeta
	putUint64(out[1:9], uint64(treeID))
	out[9] = scope
	return out
}

var dirtyPresence = []byte{0x01}

func segIDFromDataKey(treeID int64, key []byte) uint32 {
	// key = 0x01 | treeId(8B) | segId(4B) | keyBytes
	return binary.BigEndian.Uint32(key[9:13])
}

func keyBytesFromDataKey(key []byte) []byte {
	return key[13:]
}

func nodeIDFromHashKey(key []byte) uint32 {
	return binary.BigEndian.Uint32(key[9:13])
}

func segIDFromDirtyKey(key []byte) uint32 {
	return binary.BigEndian.Uint32(key[9:13])
}
