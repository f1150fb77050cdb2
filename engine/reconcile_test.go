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
	"testing"
)

// pair returns two wired engines sharing no state, both scoped to the same
// tree id, ready to be reconciled against each other as local/remote.
func pair(t *testing.T, noOfSegments uint32) (local, remote *Engine) {
	t.Helper()
	return newTestEngine(t, noOfSegments), newTestEngine(t, noOfSegments)
}

func put(t *testing.T, e *Engine, key, value string) {
	t.Helper()
	ctx := context.Background()
	if err := e.cfg.UserStore.Put(ctx, []byte(key), []byte(value)); err != nil {
		t.Fatalf("UserStore.Put(%s): %v", key, err)
	}
	if err := e.HPut(ctx, []byte(key), []byte(value)); err != nil {
		t.Fatalf("HPut(%s): %v", key, err)
	}
}

func userValue(t *testing.T, e *Engine, key string) (string, bool) {
	t.Helper()
	v, ok, err := e.cfg.UserStore.Get(context.Background(), []byte(key))
	if err != nil {
		t.Fatalf("UserStore.Get(%s): %v", key, err)
	}
	return string(v), ok
}

// TestSynchEmptyRemoteCopiesEverything covers scenario 3 of §8: local has
// data, remote is empty. Synch with Update must copy every key across via
// the Local-only branch and report it in keyDifferences.
func TestSynchEmptyRemoteCopiesEverything(t *testing.T) {
	ctx := context.Background()
	local, remote := pair(t, 4)

	put(t, local, "a", "1")
	put(t, local, "b", "2")
	if _, err := local.RebuildHashTree(ctx, testTreeID, -1); err != nil {
		t.Fatalf("RebuildHashTree(local): %v", err)
	}
	if _, err := remote.RebuildHashTree(ctx, testTreeID, -1); err != nil {
		t.Fatalf("RebuildHashTree(remote): %v", err)
	}

	keyDiffs, extrinsic, err := local.Synch(ctx, testTreeID, localPeer{e: remote}, Update)
	if err != nil {
		t.Fatalf("Synch: %v", err)
	}
	if keyDiffs != 2 {
		t.Errorf("keyDifferences = %d, want 2", keyDiffs)
	}
	if extrinsic != 0 {
		t.Errorf("extrinsicSegments = %d, want 0 (remote had no segments to drop)", extrinsic)
	}

	if v, ok := userValue(t, remote, "a"); !ok || v != "1" {
		t.Errorf("remote[a] = %q, %v, want 1, true", v, ok)
	}
	if v, ok := userValue(t, remote, "b"); !ok || v != "2" {
		t.Errorf("remote[b] = %q, %v, want 2, true", v, ok)
	}
}

// TestSynchMissingKeyInLocalRemovesFromRemote covers scenario 4: remote has
// a key local doesn't, under a segment both sides otherwise agree exists.
// deleteTreeNode / syncSegment must remove it, counted as a difference.
func TestSynchMissingKeyInLocalRemovesFromRemote(t *testing.T) {
	ctx := context.Background()
	local, remote := pair(t, 4)

	put(t, local, "a", "1")
	put(t, remote, "a", "1")
	put(t, remote, "extra", "9")
	if _, err := local.RebuildHashTree(ctx, testTreeID, -1); err != nil {
		t.Fatalf("RebuildHashTree(local): %v", err)
	}
	if _, err := remote.RebuildHashTree(ctx, testTreeID, -1); err != nil {
		t.Fatalf("RebuildHashTree(remote): %v", err)
	}

	keyDiffs, extrinsic, err := local.Synch(ctx, testTreeID, localPeer{e: remote}, Update)
	if err != nil {
		t.Fatalf("Synch: %v", err)
	}
	// "extra" is either caught by syncSegment (if it shares a segment with
	// "a", counted in keyDiffs) or by the Remote-only branch (if its
	// segment has no local counterpart at all, counted in extrinsic).
	if keyDiffs+extrinsic < 1 {
		t.Errorf("keyDifferences+extrinsicSegments = %d, want >= 1", keyDiffs+extrinsic)
	}

	if _, ok := userValue(t, remote, "extra"); ok {
		t.Error("remote[extra] should have been removed by Synch")
	}
	if v, ok := userValue(t, remote, "a"); !ok || v != "1" {
		t.Errorf("remote[a] = %q, %v, want 1, true (untouched)", v, ok)
	}
}

// TestSynchDifferingValueLocalWins covers scenario 5: the same key exists
// on both sides with different digests. Local's value must win.
func TestSynchDifferingValueLocalWins(t *testing.T) {
	ctx := context.Background()
	local, remote := pair(t, 4)

	put(t, local, "a", "local-value")
	put(t, remote, "a", "remote-value")
	if _, err := local.RebuildHashTree(ctx, testTreeID, -1); err != nil {
		t.Fatalf("RebuildHashTree(local): %v", err)
	}
	if _, err := remote.RebuildHashTree(ctx, testTreeID, -1); err != nil {
		t.Fatalf("RebuildHashTree(remote): %v", err)
	}

	keyDiffs, _, err := local.Synch(ctx, testTreeID, localPeer{e: remote}, Update)
	if err != nil {
		t.Fatalf("Synch: %v", err)
	}
	if keyDiffs != 1 {
		t.Errorf("keyDifferences = %d, want 1", keyDiffs)
	}

	if v, ok := userValue(t, remote, "a"); !ok || v != "local-value" {
		t.Errorf("remote[a] = %q, %v, want local-value, true", v, ok)
	}
}

// TestSynchLocalOnlyModeDoesNotMutateRemote covers the LocalOnly SyncType:
// differences are still counted but the remote is left untouched.
func TestSynchLocalOnlyModeDoesNotMutateRemote(t *testing.T) {
	ctx := context.Background()
	local, remote := pair(t, 4)

	put(t, local, "a", "1")
	if _, err := local.RebuildHashTree(ctx, testTreeID, -1); err != nil {
		t.Fatalf("RebuildHashTree(local): %v", err)
	}
	if _, err := remote.RebuildHashTree(ctx, testTreeID, -1); err != nil {
		t.Fatalf("RebuildHashTree(remote): %v", err)
	}

	keyDiffs, _, err := local.Synch(ctx, testTreeID, localPeer{e: remote}, LocalOnly)
	if err != nil {
		t.Fatalf("Synch: %v", err)
	}
	if keyDiffs != 1 {
		t.Errorf("keyDifferences = %d, want 1", keyDiffs)
	}
	if _, ok := userValue(t, remote, "a"); ok {
		t.Error("remote[a] should not exist: LocalOnly must not mutate the remote")
	}
}

// TestSynchConvergesToIdenticalRootHash runs Synch repeatedly until both
// trees are identical, covering invariant P3/P4: a converged pair has equal
// root hashes and zero further key differences.
func TestSynchConvergesToIdenticalRootHash(t *testing.T) {
	ctx := context.Background()
	local, remote := pair(t, 8)

	for i, kv := range [][2]string{{"a", "1"}, {"b", "2"}, {"c", "3"}} {
		put(t, local, kv[0], kv[1])
		if i%2 == 0 {
			put(t, remote, kv[0], "stale")
		}
	}
	put(t, remote, "zzz-remote-only", "9")

	if _, err := local.RebuildHashTree(ctx, testTreeID, -1); err != nil {
		t.Fatalf("RebuildHashTree(local): %v", err)
	}
	if _, err := remote.RebuildHashTree(ctx, testTreeID, -1); err != nil {
		t.Fatalf("RebuildHashTree(remote): %v", err)
	}

	if _, _, err := local.Synch(ctx, testTreeID, localPeer{e: remote}, Update); err != nil {
		t.Fatalf("Synch: %v", err)
	}
	if _, err := remote.RebuildHashTree(ctx, testTreeID, -1); err != nil {
		t.Fatalf("RebuildHashTree(remote) after sync: %v", err)
	}

	localRoot, ok, err := local.GetSegmentHash(ctx, testTreeID, 0)
	if err != nil || !ok {
		t.Fatalf("GetSegmentHash(local root): ok=%v err=%v", ok, err)
	}
	remoteRoot, ok, err := remote.GetSegmentHash(ctx, testTreeID, 0)
	if err != nil || !ok {
		t.Fatalf("GetSegmentHash(remote root): ok=%v err=%v", ok, err)
	}
	if localRoot != remoteRoot {
		t.Fatalf("root hashes differ after convergence: local=%x remote=%x", localRoot, remoteRoot)
	}

	keyDiffs, extrinsic, err := local.Synch(ctx, testTreeID, localPeer{e: remote}, Update)
	if err != nil {
		t.Fatalf("Synch (second pass): %v", err)
	}
	if keyDiffs != 0 || extrinsic != 0 {
		t.Errorf("second Synch pass found (%d, %d), want (0, 0) once converged", keyDiffs, extrinsic)
	}
}

// TestSynchNonBlockingReturnsZeroWhenBusy covers §4.6 for Synch.
func TestSynchNonBlockingReturnsZeroWhenBusy(t *testing.T) {
	ctx := context.Background()
	local, remote := pair(t, 4)

	release, ok := local.cfg.LockProvider.TryAcquire(testTreeID)
	if !ok {
		t.Fatal("TryAcquire: expected to acquire the tree lock")
	}
	defer release()

	keyDiffs, extrinsic, err := local.Synch(ctx, testTreeID, localPeer{e: remote}, Update)
	if err != nil {
		t.Fatalf("Synch while locked: %v", err)
	}
	if keyDiffs != 0 || extrinsic != 0 {
		t.Errorf("Synch while locked = (%d, %d), want (0, 0)", keyDiffs, extrinsic)
	}
}
