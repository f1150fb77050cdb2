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

	"golang.org/x/sync/errgroup"

	"github.com/opentreesync/htree/merkle"
	"github.com/opentreesync/htree/storage"
	"github.com/opentreesync/htree/userstore"
)

// sPutBatchSize bounds how many key/value pairs a single Local-only branch
// of the walker sends to the remote in one sPut call (§4.5).
const sPutBatchSize = 5000

// SyncType selects whether Synch writes its findings to the remote or only
// reports them.
type SyncType int

const (
	// Update performs sPut/sRemove/deleteTreeNode against the remote as
	// differences are discovered.
	Update SyncType = iota
	// LocalOnly computes differences without mutating the remote.
	LocalOnly
)

// Peer is the read/write surface the reconciliation walker addresses,
// satisfied identically by an in-process *Engine and by rpcpeer.Client,
// per §6's peer contract.
type Peer interface {
	GetSegmentHashes(ctx context.Context, treeID int64, nodeIDs []uint32) ([]storage.NodeHash, error)
	GetSegment(ctx context.Context, treeID int64, segID uint32) ([]storage.KeyDigestPair, error)
	SPut(ctx context.Context, treeID int64, kvs []userstore.KV) error
	SRemove(ctx context.Context, treeID int64, keys [][]byte) error
	DeleteTreeNode(ctx context.Context, treeID int64, nodeID uint32) error
}

// localPeer adapts *Engine's reads to the Peer interface's GetSegmentHashes
// signature, which the engine already implements directly; this exists so
// Synch can treat "local" and "remote" uniformly in syncSegment.
type localPeer struct{ e *Engine }

func (p localPeer) GetSegmentHashes(ctx context.Context, treeID int64, nodeIDs []uint32) ([]storage.NodeHash, error) {
	return p.e.GetSegmentHashes(ctx, treeID, nodeIDs)
}
func (p localPeer) GetSegment(ctx context.Context, treeID int64, segID uint32) ([]storage.KeyDigestPair, error) {
	return p.e.GetSegment(ctx, treeID, segID)
}
func (p localPeer) SPut(ctx context.Context, treeID int64, kvs []userstore.KV) error {
	return p.e.SPut(ctx, treeID, kvs)
}
func (p localPeer) SRemove(ctx context.Context, treeID int64, keys [][]byte) error {
	return p.e.SRemove(ctx, treeID, keys)
}
func (p localPeer) DeleteTreeNode(ctx context.Context, treeID int64, nodeID uint32) error {
	return p.e.DeleteTreeNode(ctx, treeID, nodeID)
}

// Synch implements §4.4/§4.5's synch: a non-blocking tree-lock acquisition
// (0,0 immediately if busy), followed by the merge-walk reconciliation of
// this engine's tree (authoritative) against remote's, converging remote
// toward local when syncType is Update. Returns (keyDifferences,
// extrinsicSegments).
func (e *Engine) Synch(ctx context.Context, treeID int64, remote Peer, syncType SyncType) (int, int, error) {
	release, ok := e.cfg.LockProvider.TryAcquire(treeID)
	if !ok {
		return 0, 0, nil
	}
	defer release()

	ctx, span := startSpan(ctx, "htree.Synch")
	defer span.End()

	e.observer.notify(func(o Observer) { o.PreSync(treeID) })
	start := time.Now()

	local := localPeer{e: e}
	w := &walker{
		e:          e,
		local:      local,
		remote:     remote,
		treeID:     treeID,
		doUpdate:   syncType == Update,
		internal:   e.internalCount,
	}

	keyDiffs, extrinsic, err := w.run(ctx)
	if err != nil {
		return 0, 0, fmt.Errorf("synch(%d): %w", treeID, err)
	}

	syncKeyDifferences.WithLabelValues(fmt.Sprint(treeID)).Add(float64(keyDiffs))
	syncDuration.WithLabelValues(fmt.Sprint(treeID)).Observe(time.Since(start).Seconds())
	e.observer.notify(func(o Observer) { o.PostSync(treeID, keyDiffs, extrinsic) })
	return keyDiffs, extrinsic, nil
}

// walker holds the state of one Synch invocation's tree-walk.
type walker struct {
	e        *Engine
	local    Peer
	remote   Peer
	treeID   int64
	doUpdate bool
	internal uint32

	mu        sync.Mutex
	keyDiffs  int
	extrinsic int
}

// run implements §4.5's worklist loop: compare local and remote hashes for
// the current worklist (initially [root]), resolve matches/local-only/
// remote-only nodes, and continue with the collected children until the
// worklist is empty.
func (w *walker) run(ctx context.Context) (int, int, error) {
	worklist := []uint32{0}

	for len(worklist) > 0 {
		local, err := w.local.GetSegmentHashes(ctx, w.treeID, worklist)
		if err != nil {
			return 0, 0, fmt.Errorf("local getSegmentHashes: %w", err)
		}
		remote, err := w.remote.GetSegmentHashes(ctx, w.treeID, worklist)
		if err != nil {
			return 0, 0, fmt.Errorf("remote getSegmentHashes: %w", err)
		}

		next, err := w.mergeWalk(ctx, local, remote)
		if err != nil {
			return 0, 0, err
		}
		worklist = next
	}

	return w.keyDiffs, w.extrinsic, nil
}

// mergeItem is one outcome of the nodeId-ascending three-way merge: either
// a matched pair, or a one-sided (local-only/remote-only) node.
type mergeItem struct {
	nodeID     uint32
	localOnly  bool
	remoteOnly bool
	localHash  [merkle.DigestSize]byte
	remoteHash [merkle.DigestSize]byte
}

// mergeWalk performs the three-way merge of §4.5 step 2 over the
// nodeId-ascending local/remote streams, then resolves every item
// concurrently (bounded by reconcileFanOut) since distinct nodes in one
// worklist level are independent, returning the next worklist.
func (w *walker) mergeWalk(ctx context.Context, local, remote []storage.NodeHash) ([]uint32, error) {
	items := mergeItems(local, remote)

	var (
		mu   sync.Mutex
		next []uint32
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(reconcileFanOut)

	for _, it := range items {
		it := it
		g.Go(func() error {
			switch {
			case it.localOnly:
				return w.handleLocalOnly(gctx, it.nodeID)
			case it.remoteOnly:
				return w.handleRemoteOnly(gctx, it.nodeID)
			case it.localHash != it.remoteHash:
				if merkle.IsLeaf(w.internal, merkle.NodeID(it.nodeID)) {
					diffs, err := w.syncSegment(gctx, merkle.SegmentOf(w.internal, merkle.NodeID(it.nodeID)))
					if err != nil {
						return err
					}
					w.addKeyDiffs(diffs)
					return nil
				}
				children := merkle.ImmediateChildren(merkle.NodeID(it.nodeID))
				mu.Lock()
				for _, c := range children {
					next = append(next, uint32(c))
				}
				mu.Unlock()
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return next, nil
}

// mergeItems performs the nodeId-ascending three-way merge of local and
// remote hash streams into a flat list of match/local-only/remote-only
// items, purely in-memory (no I/O), so the actual resolution work in
// mergeWalk can run concurrently.
func mergeItems(local, remote []storage.NodeHash) []mergeItem {
	var items []mergeItem
	i, j := 0, 0
	for i < len(local) || j < len(remote) {
		switch {
		case j >= len(remote) || (i < len(local) && local[i].NodeID < remote[j].NodeID):
			items = append(items, mergeItem{nodeID: local[i].NodeID, localOnly: true})
			i++
		case i >= len(local) || (j < len(remote) && remote[j].NodeID < local[i].NodeID):
			items = append(items, mergeItem{nodeID: remote[j].NodeID, remoteOnly: true})
			j++
		default:
			items = append(items, mergeItem{nodeID: local[i].NodeID, localHash: local[i].Hash, remoteHash: remote[j].Hash})
			i++
			j++
		}
	}
	return items
}

// handleLocalOnly implements §4.5's Local-only branch: remote is missing
// this entire subtree. Every user-store key whose segment falls under n is
// sent to remote in sPut batches of at most sPutBatchSize; each key counts
// toward keyDifferences.
func (w *walker) handleLocalOnly(ctx context.Context, n uint32) error {
	segFrom, segTo := w.e.segmentRangeUnder(merkle.NodeID(n))

	var batch []userstore.KV
	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		if w.doUpdate {
			if err := w.remote.SPut(ctx, w.treeID, batch); err != nil {
				return fmt.Errorf("sPut under node %d: %w", n, err)
			}
		}
		w.addKeyDiffs(len(batch))
		batch = batch[:0]
		return nil
	}

	err := w.e.cfg.UserStore.Iterate(ctx, w.treeID, func(kv userstore.KV) (bool, error) {
		_, seg := w.e.treeAndSeg(kv.Key)
		if seg < segFrom || seg >= segTo {
			return true, nil
		}
		batch = append(batch, kv)
		if len(batch) >= sPutBatchSize {
			if err := flush(); err != nil {
				return false, err
			}
		}
		return true, nil
	})
	if err != nil {
		return fmt.Errorf("enumerate local-only node %d: %w", n, err)
	}
	return flush()
}

// handleRemoteOnly implements §4.5's Remote-only branch: local has no hash
// for a node the remote has, so the remote is instructed to drop the
// entire subtree. Counts one extrinsic segment regardless of update mode.
func (w *walker) handleRemoteOnly(ctx context.Context, n uint32) error {
	w.mu.Lock()
	w.extrinsic++
	w.mu.Unlock()

	if !w.doUpdate {
		return nil
	}
	if err := w.remote.DeleteTreeNode(ctx, w.treeID, n); err != nil {
		return fmt.Errorf("deleteTreeNode(%d) on remote-only node %d: %w", w.treeID, n, err)
	}
	return nil
}

func (w *walker) addKeyDiffs(n int) {
	w.mu.Lock()
	w.keyDiffs += n
	w.mu.Unlock()
}

// syncSegment implements §4.5's syncSegment: merge-walk local and remote's
// key-ordered segment contents, building the additions/removals that make
// remote converge toward local, and (if doUpdate) apply them. Local is
// authoritative; a key present locally at hash time but since deleted from
// the user store (a concurrent delete) is silently skipped rather than
// added.
func (w *walker) syncSegment(ctx context.Context, segID merkle.SegmentID) (int, error) {
	local, err := w.local.GetSegment(ctx, w.treeID, uint32(segID))
	if err != nil {
		return 0, fmt.Errorf("local getSegment(%d): %w", segID, err)
	}
	remote, err := w.remote.GetSegment(ctx, w.treeID, uint32(segID))
	if err != nil {
		return 0, fmt.Errorf("remote getSegment(%d): %w", segID, err)
	}

	var kvsForAddition []userstore.KV
	var keysForRemoval [][]byte

	i, j := 0, 0
	for i < len(local) || j < len(remote) {
		switch {
		case j >= len(remote) || (i < len(local) && lessKey(local[i].Key, remote[j].Key)):
			if kv, ok, err := w.fetchValue(ctx, local[i].Key); err != nil {
				return 0, err
			} else if ok {
				kvsForAddition = append(kvsForAddition, kv)
			}
			i++
		case i >= len(local) || (j < len(remote) && lessKey(remote[j].Key, local[i].Key)):
			keysForRemoval = append(keysForRemoval, remote[j].Key)
			j++
		default:
			if local[i].Digest != remote[j].Digest {
				if kv, ok, err := w.fetchValue(ctx, local[i].Key); err != nil {
					return 0, err
				} else if ok {
					kvsForAddition = append(kvsForAddition, kv)
				}
			}
			i++
			j++
		}
	}

	if w.doUpdate && (len(kvsForAddition) > 0 || len(keysForRemoval) > 0) {
		if len(kvsForAddition) > 0 {
			if err := w.remote.SPut(ctx, w.treeID, kvsForAddition); err != nil {
				return 0, fmt.Errorf("sPut segment %d: %w", segID, err)
			}
		}
		if len(keysForRemoval) > 0 {
			if err := w.remote.SRemove(ctx, w.treeID, keysForRemoval); err != nil {
				return 0, fmt.Errorf("sRemove segment %d: %w", segID, err)
			}
		}
	}
	return len(kvsForAddition) + len(keysForRemoval), nil
}

// fetchValue reads key's current value from the local user store. A
// missing key is treated as a concurrent delete and reported as absent
// rather than an error.
func (w *walker) fetchValue(ctx context.Context, key []byte) (userstore.KV, bool, error) {
	v, ok, err := w.e.cfg.UserStore.Get(ctx, key)
	if err != nil {
		return userstore.KV{}, false, fmt.Errorf("get %q: %w", key, err)
	}
	if !ok {
		return userstore.KV{}, false, nil
	}
	return userstore.KV{Key: key, Value: v}, true, nil
}

func lessKey(a, b []byte) bool {
	for i := 0; i < len(a) && i < len(b); i++ {
		if a[i] != b[i] {
			return a[i] < b[i]
		}
	}
	return len(a) < len(b)
}
