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
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/golang/glog"
	"golang.org/x/sync/errgroup"

	"github.com/opentreesync/htree/merkle"
	"github.com/opentreesync/htree/queue"
	"github.com/opentreesync/htree/storage"
	"github.com/opentreesync/htree/userstore"
)

// state is the engine lifecycle of §4.4: Created -> Started -> Stopped.
type state int

const (
	stateCreated state = iota
	stateStarted
	stateStopped
)

// Engine is the hash-tree engine: it owns the invariants of §3 and
// implements hPut/hRemove/rebuild/synch and segment/node lookup.
type Engine struct {
	cfg      Config
	digest   *storage.DigestStore
	observer observerSet

	height        int
	internalCount uint32

	mu    sync.RWMutex
	st    state
	queue *queue.Queue
}

// NewEngine validates cfg (failing fast per §7 kind 3) and returns a new
// Engine in the Created state. Construction is idempotent over whatever
// persistent state already exists behind cfg.DigestStoreEngine.
func NewEngine(cfg Config) (*Engine, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	registerMetrics()

	h := merkle.Height(cfg.NoOfSegments)
	e := &Engine{
		cfg:           cfg,
		digest:        storage.NewDigestStore(cfg.DigestStoreEngine),
		height:        h,
		internalCount: merkle.InternalNodeCount(h),
		st:            stateCreated,
	}
	return e, nil
}

// AddObserver registers o to receive best-effort pre/post notifications.
func (e *Engine) AddObserver(o Observer) {
	e.observer.Add(o)
}

// Start begins accepting writes. If EnableNonBlockingCalls is set, this
// starts the queue worker; otherwise it's a state transition only.
func (e *Engine) Start() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.st != stateCreated {
		return
	}
	if e.cfg.EnableNonBlockingCalls {
		e.queue = queue.New(e.cfg.NonBlockingQueueSize, e.applyQueuedItem)
	}
	e.st = stateStarted
}

// Stop drains the queue (if any) and transitions to Stopped. Already
// in-flight requests complete normally; there is no forced interruption.
func (e *Engine) Stop() {
	e.mu.Lock()
	q := e.queue
	e.st = stateStopped
	e.mu.Unlock()

	if q != nil {
		q.Stop()
	}
}

func (e *Engine) treeAndSeg(key []byte) (int64, uint32) {
	treeID := e.cfg.TreeIDProvider(key)
	segID := e.cfg.SegIDProvider(key, e.cfg.NoOfSegments)
	return treeID, segID
}

// writeErr returns why writes are refused in the current lifecycle state,
// or nil if they are accepted.
func (e *Engine) writeErr() error {
	e.mu.RLock()
	defer e.mu.RUnlock()
	switch {
	case e.st == stateStopped:
		return ErrStopped
	case e.st == stateCreated && e.cfg.EnableNonBlockingCalls:
		return ErrNotStarted
	}
	return nil
}

// HPut implements §4.4 hPut: computes (treeId, segId), writes
// (key, SHA-1(value)) to segment data, and marks the segment dirty.
// When EnableNonBlockingCalls is set, this enqueues the work and returns
// once the item is accepted onto the queue, not once it is applied.
func (e *Engine) HPut(ctx context.Context, key, value []byte) error {
	if len(key) == 0 {
		return fmt.Errorf("%w: empty key", ErrInvalidArgument)
	}
	if err := e.writeErr(); err != nil {
		return err
	}

	treeID, _ := e.treeAndSeg(key)
	e.observer.notify(func(o Observer) { o.PreHPut(treeID, key, value) })

	if e.cfg.EnableNonBlockingCalls {
		e.queue.Enqueue(queue.Item{Op: queue.Put, Key: key, Value: value})
		return nil
	}
	if err := e.applyPut(ctx, key, value); err != nil {
		return err
	}
	hputTotal.WithLabelValues(fmt.Sprint(treeID)).Inc()
	e.observer.notify(func(o Observer) { o.PostHPut(treeID, key, value) })
	return nil
}

// HRemove implements §4.4 hRemove: symmetric to HPut.
func (e *Engine) HRemove(ctx context.Context, key []byte) error {
	if len(key) == 0 {
		return fmt.Errorf("%w: empty key", ErrInvalidArgument)
	}
	if err := e.writeErr(); err != nil {
		return err
	}

	treeID, _ := e.treeAndSeg(key)
	e.observer.notify(func(o Observer) { o.PreHRemove(treeID, key) })

	if e.cfg.EnableNonBlockingCalls {
		e.queue.Enqueue(queue.Item{Op: queue.Remove, Key: key})
		return nil
	}
	if err := e.applyRemove(ctx, key); err != nil {
		return err
	}
	hremoveTotal.WithLabelValues(fmt.Sprint(treeID)).Inc()
	e.observer.notify(func(o Observer) { o.PostHRemove(treeID, key) })
	return nil
}

func (e *Engine) applyQueuedItem(item queue.Item) error {
	ctx := context.Background()
	switch item.Op {
	case queue.Put:
		return e.applyPut(ctx, item.Key, item.Value)
	case queue.Remove:
		return e.applyRemove(ctx, item.Key)
	case queue.PutIfAbsent:
		// Coalescing against other in-flight items for the key is done by
		// the queue at enqueue time; here the scanned value is applied.
		return e.applyPut(ctx, item.Key, item.Value)
	case queue.RemoveIfAbsent:
		ok, err := e.cfg.UserStore.Contains(ctx, item.Key)
		if err != nil {
			return err
		}
		if ok {
			return nil
		}
		return e.applyRemove(ctx, item.Key)
	default:
		return fmt.Errorf("engine: unknown queue op %d", item.Op)
	}
}

func (e *Engine) applyPut(ctx context.Context, key, value []byte) error {
	treeID, segID := e.treeAndSeg(key)
	digest := merkle.Digest(value)
	if err := e.digest.PutSegmentData(ctx, treeID, segID, key, digest); err != nil {
		return err
	}
	return e.digest.SetDirtySegment(ctx, treeID, segID)
}

func (e *Engine) applyRemove(ctx context.Context, key []byte) error {
	treeID, segID := e.treeAndSeg(key)
	if err := e.digest.DeleteSegmentData(ctx, treeID, segID, key); err != nil {
		return err
	}
	return e.digest.SetDirtySegment(ctx, treeID, segID)
}

// GetSegmentHash is a passthrough read (§4.4).
func (e *Engine) GetSegmentHash(ctx context.Context, treeID int64, nodeID uint32) ([20]byte, bool, error) {
	return e.digest.GetSegmentHash(ctx, treeID, nodeID)
}

// GetSegmentHashes is a passthrough read, returning only nodes that
// currently have a stored hash, nodeId-ascending (§4.4).
func (e *Engine) GetSegmentHashes(ctx context.Context, treeID int64, nodeIDs []uint32) ([]storage.NodeHash, error) {
	return e.digest.GetSegmentHashes(ctx, treeID, nodeIDs)
}

// GetSegmentData is a passthrough read (§4.4).
func (e *Engine) GetSegmentData(ctx context.Context, treeID int64, segID uint32, key []byte) ([20]byte, bool, error) {
	return e.digest.GetSegmentData(ctx, treeID, segID, key)
}

// GetSegment is a passthrough read, key-ordered (§4.4).
func (e *Engine) GetSegment(ctx context.Context, treeID int64, segID uint32) ([]storage.KeyDigestPair, error) {
	return e.digest.GetSegment(ctx, treeID, segID)
}

// SPut implements the peer-facing batched user-store mutation (§4.4): used
// by a remote calling into this engine as the remote side of a sync.
func (e *Engine) SPut(ctx context.Context, treeID int64, kvs []userstore.KV) error {
	e.observer.notify(func(o Observer) { o.PreSPut(treeID, len(kvs)) })
	for _, kv := range kvs {
		if err := e.cfg.UserStore.Put(ctx, kv.Key, kv.Value); err != nil {
			return fmt.Errorf("sPut: %w", err)
		}
		if err := e.HPut(ctx, kv.Key, kv.Value); err != nil {
			return fmt.Errorf("sPut: %w", err)
		}
	}
	e.observer.notify(func(o Observer) { o.PostSPut(treeID, len(kvs)) })
	return nil
}

// SRemove implements the peer-facing batched user-store deletion (§4.4).
func (e *Engine) SRemove(ctx context.Context, treeID int64, keys [][]byte) error {
	e.observer.notify(func(o Observer) { o.PreSRemove(treeID, len(keys)) })
	for _, k := range keys {
		if err := e.cfg.UserStore.Delete(ctx, k); err != nil {
			return fmt.Errorf("sRemove: %w", err)
		}
		if err := e.HRemove(ctx, k); err != nil {
			return fmt.Errorf("sRemove: %w", err)
		}
	}
	e.observer.notify(func(o Observer) { o.PostSRemove(treeID, len(keys)) })
	return nil
}

// DeleteTreeNode implements the peer-facing subtree deletion (§4.4): every
// user-store key whose segment falls under nodeID is deleted.
func (e *Engine) DeleteTreeNode(ctx context.Context, treeID int64, nodeID uint32) error {
	segFrom, segTo := e.segmentRangeUnder(merkle.NodeID(nodeID))

	var keys [][]byte
	err := e.cfg.UserStore.Iterate(ctx, treeID, func(kv userstore.KV) (bool, error) {
		_, seg := e.treeAndSeg(kv.Key)
		if seg >= segFrom && seg < segTo {
			keys = append(keys, kv.Key)
		}
		return true, nil
	})
	if err != nil {
		return fmt.Errorf("deleteTreeNode(%d,%d): %w", treeID, nodeID, err)
	}
	return e.SRemove(ctx, treeID, keys)
}

// segmentRangeUnder returns the half-open [from,to) segment id range
// spanned by the leaves under n.
func (e *Engine) segmentRangeUnder(n merkle.NodeID) (uint32, uint32) {
	left := merkle.LeftMostLeaf(n, e.height)
	right := merkle.RightMostLeaf(n, e.height)
	return uint32(merkle.SegmentOf(e.internalCount, left)), uint32(merkle.SegmentOf(e.internalCount, right)) + 1
}

func nowUnixMS() int64 {
	return time.Now().UnixNano() / int64(time.Millisecond)
}

// RebuildHashTree implements §4.4's rebuildHashTree: a non-blocking
// tree-lock acquisition (returns 0 immediately if the tree is already
// being rebuilt or synced), an optional full reconciliation against the
// user store, a dirty-leaf rebuild pass, and upward hash propagation.
//
// fullRebuildPeriodMs < 0 disables periodic full rebuilds (only the
// very first rebuild of a tree, when no rebuild has ever completed, is
// full). fullRebuildPeriodMs == 0 makes a call full whenever at least one
// millisecond has passed since the last full rebuild.
func (e *Engine) RebuildHashTree(ctx context.Context, treeID int64, fullRebuildPeriodMs int64) (int, error) {
	release, ok := e.cfg.LockProvider.TryAcquire(treeID)
	if !ok {
		return 0, nil
	}
	defer release()

	ctx, span := startSpan(ctx, "htree.RebuildHashTree")
	defer span.End()

	e.observer.notify(func(o Observer) { o.PreRebuild(treeID) })
	start := time.Now()

	last, err := e.digest.GetLastFullRebuild(ctx, treeID)
	if err != nil {
		return 0, fmt.Errorf("rebuildHashTree(%d): %w", treeID, err)
	}
	full := last == 0 || (fullRebuildPeriodMs >= 0 && nowUnixMS()-last > fullRebuildPeriodMs)

	if full {
		if err := e.reconcileFromUserStore(ctx, treeID); err != nil {
			return 0, fmt.Errorf("rebuildHashTree(%d): full reconcile: %w", treeID, err)
		}
	}

	n, err := e.rebuildDirtyAndPropagate(ctx, treeID)
	if err != nil {
		return 0, fmt.Errorf("rebuildHashTree(%d): %w", treeID, err)
	}

	if full {
		if err := e.digest.SetLastFullRebuild(ctx, treeID, nowUnixMS()); err != nil {
			return n, fmt.Errorf("rebuildHashTree(%d): set last full rebuild: %w", treeID, err)
		}
	}

	rebuildSegments.WithLabelValues(fmt.Sprint(treeID)).Add(float64(n))
	rebuildDuration.WithLabelValues(fmt.Sprint(treeID)).Observe(time.Since(start).Seconds())
	e.observer.notify(func(o Observer) { o.PostRebuild(treeID, n) })
	return n, nil
}

// reconcileFromUserStore is step 1 of §4.4's rebuild: bring the digest
// store's segment data back in sync with the user store, letting any
// concurrent write win over the stale value this scan observed.
func (e *Engine) reconcileFromUserStore(ctx context.Context, treeID int64) error {
	seen := make(map[string]struct{})

	err := e.cfg.UserStore.Iterate(ctx, treeID, func(kv userstore.KV) (bool, error) {
		seen[string(kv.Key)] = struct{}{}
		e.enqueueOrApply(queue.Item{Op: queue.PutIfAbsent, Key: kv.Key, Value: kv.Value})
		return true, nil
	})
	if err != nil {
		return fmt.Errorf("scan user store: %w", err)
	}

	it, err := e.digest.GetSegmentDataIterator(ctx, treeID, 0, e.cfg.NoOfSegments)
	if err != nil {
		return fmt.Errorf("iterate segment data: %w", err)
	}
	for {
		_, kd, ok := it.Next()
		if !ok {
			break
		}
		if _, present := seen[string(kd.Key)]; present {
			continue
		}
		e.enqueueOrApply(queue.Item{Op: queue.RemoveIfAbsent, Key: kd.Key})
	}
	return nil
}

// enqueueOrApply routes a reconcile-time item through the non-blocking
// queue when enabled (so it participates in the same IfAbsent
// coalescing as live traffic) or applies it synchronously otherwise.
func (e *Engine) enqueueOrApply(item queue.Item) {
	if e.cfg.EnableNonBlockingCalls && e.queue != nil {
		e.queue.Enqueue(item)
		return
	}
	if err := e.applyQueuedItem(item); err != nil {
		glog.Errorf("engine: reconcile item failed: %v", err)
	}
}

// rebuildDirtyAndPropagate implements steps 2-3 of §4.4's rebuild: snapshot
// and re-mark the dirty set, rebuild each leaf whose bit test-and-clears,
// then propagate parent hashes upward from the touched leaves to the root.
func (e *Engine) rebuildDirtyAndPropagate(ctx context.Context, treeID int64) (int, error) {
	dirty, err := e.digest.ClearAndGetDirtySegments(ctx, treeID)
	if err != nil {
		return 0, fmt.Errorf("snapshot dirty segments: %w", err)
	}
	if len(dirty) == 0 {
		return 0, nil
	}
	if err := e.digest.MarkSegments(ctx, treeID, dirty); err != nil {
		return 0, fmt.Errorf("re-mark dirty segments: %w", err)
	}

	processed, frontier, err := e.rebuildLeaves(ctx, treeID, dirty)
	if err != nil {
		e.remarkOnFailure(treeID, dirty)
		return 0, fmt.Errorf("rebuild leaves: %w", err)
	}

	if err := e.propagateUpward(ctx, treeID, frontier); err != nil {
		e.remarkOnFailure(treeID, dirty)
		return 0, fmt.Errorf("propagate hashes: %w", err)
	}

	if err := e.digest.UnmarkSegments(ctx, treeID, dirty); err != nil {
		return 0, fmt.Errorf("unmark dirty segments: %w", err)
	}
	return processed, nil
}

// remarkOnFailure restores dirty bits for segments whose processing may
// have cleared them before the overall rebuild failed, per §4.4 step 5.
// Re-marking an already-dirty segment is harmless: the next rebuild just
// recomputes an identical leaf hash.
func (e *Engine) remarkOnFailure(treeID int64, dirty []uint32) {
	if err := e.digest.MarkSegments(context.Background(), treeID, dirty); err != nil {
		glog.Errorf("engine: failed to re-mark dirty segments for tree %d after rebuild error: %v", treeID, err)
	}
}

// rebuildLeaves test-and-clears each dirty segment's bit and, on success,
// recomputes and stores its leaf hash from the segment's current
// (key,digest) stream. Segments another rebuild already claimed (bit
// already clear) are skipped.
func (e *Engine) rebuildLeaves(ctx context.Context, treeID int64, dirty []uint32) (int, []merkle.NodeID, error) {
	var (
		mu        sync.Mutex
		processed int
		frontier  []merkle.NodeID
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(reconcileFanOut)
	for _, segID := range dirty {
		segID := segID
		g.Go(func() error {
			cleared, err := e.digest.ClearDirtySegment(gctx, treeID, segID)
			if err != nil {
				return err
			}
			if !cleared {
				return nil
			}
			kvs, err := e.digest.GetSegment(gctx, treeID, segID)
			if err != nil {
				return err
			}
			hash := merkle.LeafHash(toKeyDigests(kvs))
			leaf := merkle.LeafID(e.internalCount, merkle.SegmentID(segID))
			if err := e.digest.PutSegmentHash(gctx, treeID, uint32(leaf), hash); err != nil {
				return err
			}

			mu.Lock()
			processed++
			frontier = append(frontier, leaf)
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return 0, nil, err
	}
	return processed, frontier, nil
}

// propagateUpward implements §4.4 step 3: from a frontier of node ids,
// repeatedly compute the set of distinct parents, recompute each parent's
// hash from its currently stored children (skipping absent ones), store
// it, and continue with the parent frontier until the root is reached or
// the frontier empties.
func (e *Engine) propagateUpward(ctx context.Context, treeID int64, frontier []merkle.NodeID) error {
	for len(frontier) > 0 {
		parents := distinctParents(frontier)
		if len(parents) == 0 {
			return nil
		}

		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(reconcileFanOut)
		for _, p := range parents {
			p := p
			g.Go(func() error {
				return e.recomputeAndStoreParentHash(gctx, treeID, p)
			})
		}
		if err := g.Wait(); err != nil {
			return err
		}

		if len(parents) == 1 && parents[0] == 0 {
			return nil
		}
		frontier = parents
	}
	return nil
}

func (e *Engine) recomputeAndStoreParentHash(ctx context.Context, treeID int64, p merkle.NodeID) error {
	children := merkle.ImmediateChildren(p)
	childIDs := make([]uint32, 0, len(children))
	for _, c := range children {
		childIDs = append(childIDs, uint32(c))
	}
	hashes, err := e.digest.GetSegmentHashes(ctx, treeID, childIDs)
	if err != nil {
		return err
	}
	childHashesInOrder := make([][]byte, 0, len(hashes))
	for _, h := range hashes {
		hh := h.Hash
		childHashesInOrder = append(childHashesInOrder, hh[:])
	}
	hash := merkle.InternalHash(childHashesInOrder)
	return e.digest.PutSegmentHash(ctx, treeID, uint32(p), hash)
}

func distinctParents(frontier []merkle.NodeID) []merkle.NodeID {
	seen := make(map[merkle.NodeID]struct{})
	var out []merkle.NodeID
	for _, n := range frontier {
		if n == 0 {
			continue
		}
		p := merkle.Parent(n)
		if _, ok := seen[p]; ok {
			continue
		}
		seen[p] = struct{}{}
		out = append(out, p)
	}
	return out
}

func toKeyDigests(kvs []storage.KeyDigestPair) []merkle.KeyDigest {
	out := make([]merkle.KeyDigest, len(kvs))
	for i, kv := range kvs {
		out[i] = merkle.KeyDigest{Key: kv.Key, Digest: kv.Digest}
	}
	return out
}
