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

import (
	"context"
	"encoding/binary"
	"fmt"
	"sort"

	"github.com/golang/glog"
)

// DigestStore is the persistent, ordered digest structure described in the
// specification's §4.2: three column families (segment-data, segment-hash,
// dirty-segments) plus rebuild metadata, multiplexed over a KVEngine via
// big-endian prefix-encoded keys.
type DigestStore struct {
	kv KVEngine
}

// NewDigestStore wraps kv as a DigestStore. Construction is cheap; kv is
// expected to already be open/connected.
func NewDigestStore(kv KVEngine) *DigestStore {
	return &DigestStore{kv: kv}
}

// PutSegmentData writes the digest for key under (treeID, segID), durable
// before return.
func (d *DigestStore) PutSegmentData(ctx context.Context, treeID int64, segID uint32, key []byte, digest [20]byte) error {
	if err := d.kv.Set(ctx, segmentDataKey(treeID, segID, key), digest[:]); err != nil {
		return fmt.Errorf("putSegmentData(%d,%d): %w", treeID, segID, err)
	}
	return nil
}

// DeleteSegmentData removes the datum for key under (treeID, segID).
func (d *DigestStore) DeleteSegmentData(ctx context.Context, treeID int64, segID uint32, key []byte) error {
	if err := d.kv.Delete(ctx, segmentDataKey(treeID, segID, key)); err != nil {
		return fmt.Errorf("deleteSegmentData(%d,%d): %w", treeID, segID, err)
	}
	return nil
}

// GetSegmentData looks up the digest for key under (treeID, segID).
func (d *DigestStore) GetSegmentData(ctx context.Context, treeID int64, segID uint32, key []byte) (digest [20]byte, ok bool, err error) {
	v, ok, err := d.kv.Get(ctx, segmentDataKey(treeID, segID, key))
	if err != nil {
		return digest, false, fmt.Errorf("getSegmentData(%d,%d): %w", treeID, segID, err)
	}
	if !ok {
		return digest, false, nil
	}
	copy(digest[:], v)
	return digest, true, nil
}

// KeyDigestPair is a (key, digest) pair as returned by GetSegment.
type KeyDigestPair struct {
	Key    []byte
	Digest [20]byte
}

// GetSegment returns every (key, digest) pair in segment segID of treeID,
// ascending by key. The result is a point-in-time snapshot.
func (d *DigestStore) GetSegment(ctx context.Context, treeID int64, segID uint32) ([]KeyDigestPair, error) {
	var out []KeyDigestPair
	lo, hi := segmentDataLowerBound(treeID, segID), segmentDataUpperBound(treeID, segID)
	err := d.kv.Iterate(ctx, lo, hi, func(k, v []byte) (bool, error) {
		var digest [20]byte
		copy(digest[:], v)
		out = append(out, KeyDigestPair{Key: append([]byte(nil), keyBytesFromDataKey(k)...), Digest: digest})
		return true, nil
	})
	if err != nil {
		return nil, fmt.Errorf("getSegment(%d,%d): %w", treeID, segID, err)
	}
	return out, nil
}

// SegmentDataIterator walks segment data across a contiguous leaf
// (segment id) range [segFrom, segTo). All items in the range are read when
// the iterator is created, not lazily; each call to Next steps to the next
// one. It is restartable only by calling GetSegmentDataIterator again.
type SegmentDataIterator struct {
	items []KeyDigestPair
	segs  []uint32
	pos   int
}

// Next returns the next (segID, key, digest) triple, or ok=false when
// exhausted.
func (it *SegmentDataIterator) Next() (segID uint32, kd KeyDigestPair, ok bool) {
	if it.pos >= len(it.items) {
		return 0, KeyDigestPair{}, false
	}
	segID, kd = it.segs[it.pos], it.items[it.pos]
	it.pos++
	return segID, kd, true
}

// GetSegmentDataIterator returns an ordered iterator over segment data for
// segment ids in [segFrom, segTo), reading the whole range up front.
// Passing segFrom=0 and segTo larger than the tree's segment count covers
// the whole tree.
func (d *DigestStore) GetSegmentDataIterator(ctx context.Context, treeID int64, segFrom, segTo uint32) (*SegmentDataIterator, error) {
	it := &SegmentDataIterator{}
	lo, hi := segmentRangeLowerBound(treeID, segFrom), segmentRangeUpperBound(treeID, segTo)
	err := d.kv.Iterate(ctx, lo, hi, func(k, v []byte) (bool, error) {
		var digest [20]byte
		copy(digest[:], v)
		it.segs = append(it.segs, segIDFromDataKey(treeID, k))
		it.items = append(it.items, KeyDigestPair{Key: append([]byte(nil), keyBytesFromDataKey(k)...), Digest: digest})
		return true, nil
	})
	if err != nil {
		return nil, fmt.Errorf("getSegmentDataIterator(%d): %w", treeID, err)
	}
	return it, nil
}

// PutSegmentHash stores the hash for nodeID of treeID.
func (d *DigestStore) PutSegmentHash(ctx context.Context, treeID int64, nodeID uint32, hash [20]byte) error {
	if err := d.kv.Set(ctx, segmentHashKey(treeID, nodeID), hash[:]); err != nil {
		return fmt.Errorf("putSegmentHash(%d,%d): %w", treeID, nodeID, err)
	}
	return nil
}

// GetSegmentHash looks up the stored hash for nodeID of treeID.
func (d *DigestStore) GetSegmentHash(ctx context.Context, treeID int64, nodeID uint32) (hash [20]byte, ok bool, err error) {
	v, ok, err := d.kv.Get(ctx, segmentHashKey(treeID, nodeID))
	if err != nil {
		return hash, false, fmt.Errorf("getSegmentHash(%d,%d): %w", treeID, nodeID, err)
	}
	if !ok {
		return hash, false, nil
	}
	copy(hash[:], v)
	return hash, true, nil
}

// NodeHash is a (nodeID, hash) pair as returned by GetSegmentHashes.
type NodeHash struct {
	NodeID uint32
	Hash   [20]byte
}

// GetSegmentHashes returns only the nodes among nodeIDs that currently have
// a stored hash, ascending by node id.
func (d *DigestStore) GetSegmentHashes(ctx context.Context, treeID int64, nodeIDs []uint32) ([]NodeHash, error) {
	sorted := append([]uint32(nil), nodeIDs...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

	out := make([]NodeHash, 0, len(sorted))
	for _, n := range sorted {
		h, ok, err := d.GetSegmentHash(ctx, treeID, n)
		if err != nil {
			return nil, err
		}
		if ok {
			out = append(out, NodeHash{NodeID: n, Hash: h})
		}
	}
	return out, nil
}

// SetDirtySegment marks segID of treeID dirty.
func (d *DigestStore) SetDirtySegment(ctx context.Context, treeID int64, segID uint32) error {
	if err := d.kv.Set(ctx, dirtySegmentKey(treeID, segID), dirtyPresence); err != nil {
		return fmt.Errorf("setDirtySegment(%d,%d): %w", treeID, segID, err)
	}
	return nil
}

// ClearDirtySegment atomically tests and clears the dirty bit for segID,
// returning the prior value.
func (d *DigestStore) ClearDirtySegment(ctx context.Context, treeID int64, segID uint32) (wasDirty bool, err error) {
	key := dirtySegmentKey(treeID, segID)
	_, ok, err := d.kv.Get(ctx, key)
	if err != nil {
		return false, fmt.Errorf("clearDirtySegment(%d,%d): %w", treeID, segID, err)
	}
	if !ok {
		return false, nil
	}
	if err := d.kv.Delete(ctx, key); err != nil {
		return false, fmt.Errorf("clearDirtySegment(%d,%d): %w", treeID, segID, err)
	}
	return true, nil
}

// GetDirtySegments returns a snapshot of every segment id currently marked
// dirty for treeID, ascending.
func (d *DigestStore) GetDirtySegments(ctx context.Context, treeID int64) ([]uint32, error) {
	var out []uint32
	lo, hi := dirtySegmentLowerBound(treeID), dirtySegmentUpperBound(treeID)
	err := d.kv.Iterate(ctx, lo, hi, func(k, v []byte) (bool, error) {
		out = append(out, segIDFromDirtyKey(k))
		return true, nil
	})
	if err != nil {
		return nil, fmt.Errorf("getDirtySegments(%d): %w", treeID, err)
	}
	return out, nil
}

// ClearAndGetDirtySegments is equivalent to GetDirtySegments followed by
// clearing every bit returned, but atomic against concurrent readers: a bit
// set by a writer after the snapshot is taken is not lost.
func (d *DigestStore) ClearAndGetDirtySegments(ctx context.Context, treeID int64) ([]uint32, error) {
	segs, err := d.GetDirtySegments(ctx, treeID)
	if err != nil {
		return nil, err
	}
	for _, s := range segs {
		if _, err := d.ClearDirtySegment(ctx, treeID, s); err != nil {
			return nil, err
		}
	}
	return segs, nil
}

// MarkSegments re-marks every segment in segs as dirty. Used by rebuild to
// restore dirty bits it pre-emptively cleared, if the rebuild fails
// mid-way.
func (d *DigestStore) MarkSegments(ctx context.Context, treeID int64, segs []uint32) error {
	for _, s := range segs {
		if err := d.SetDirtySegment(ctx, treeID, s); err != nil {
			return err
		}
	}
	return nil
}

// UnmarkSegments clears the dirty bit for every segment in segs,
// unconditionally (no prior-value reporting).
func (d *DigestStore) UnmarkSegments(ctx context.Context, treeID int64, segs []uint32) error {
	for _, s := range segs {
		if err := d.kv.Delete(ctx, dirtySegmentKey(treeID, s)); err != nil {
			return fmt.Errorf("unmarkSegments(%d,%d): %w", treeID, s, err)
		}
	}
	return nil
}

// GetLastFullRebuild returns the unix-ms timestamp of the last full
// rebuild for treeID, or 0 if none has ever completed.
func (d *DigestStore) GetLastFullRebuild(ctx context.Context, treeID int64) (int64, error) {
	v, ok, err := d.kv.Get(ctx, metaKey(treeID, scopeLastFullRebuild))
	if err != nil {
		return 0, fmt.Errorf("getLastFullRebuild(%d): %w", treeID, err)
	}
	if !ok {
		return 0, nil
	}
	return int64(binary.BigEndian.Uint64(v)), nil
}

// SetLastFullRebuild records the unix-ms timestamp of a completed full
// rebuild for treeID.
func (d *DigestStore) SetLastFullRebuild(ctx context.Context, treeID int64, unixMS int64) error {
	v := make([]byte, 8)
	binary.BigEndian.PutUint64(v, uint64(unixMS))
	if err := d.kv.Set(ctx, metaKey(treeID, scopeLastFullRebuild), v); err != nil {
		return fmt.Errorf("setLastFullRebuild(%d): %w", treeID, err)
	}
	glog.V(2).Infof("tree %d: recorded full rebuild at %d", treeID, unixMS)
	return nil
}
