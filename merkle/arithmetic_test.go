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

import "testing"

func TestNextPowerOfTwo(t *testing.T) {
	for _, tc := range []struct {
		in, want uint32
	}{
		{0, 1}, {1, 1}, {2, 2}, {3, 4}, {5, 8}, {1024, 1024}, {1025, 2048},
	} {
		if got := NextPowerOfTwo(tc.in); got != tc.want {
			t.Errorf("NextPowerOfTwo(%d) = %d, want %d", tc.in, got, tc.want)
		}
	}
}

func TestHeightAndInternalCount(t *testing.T) {
	for _, tc := range []struct {
		leaves uint32
		height int
		internal uint32
	}{
		{1, 0, 0},
		{2, 1, 1},
		{4, 2, 3},
		{8, 3, 7},
		{1 << 17, 17, (1 << 17) - 1},
	} {
		if got := Height(tc.leaves); got != tc.height {
			t.Errorf("Height(%d) = %d, want %d", tc.leaves, got, tc.height)
		}
		if got := InternalNodeCount(tc.height); got != tc.internal {
			t.Errorf("InternalNodeCount(%d) = %d, want %d", tc.height, got, tc.internal)
		}
	}
}

func TestLeafIDRoundTrip(t *testing.T) {
	const internal = 7 // height 3, 8 leaves
	for seg := SegmentID(0); seg < 8; seg++ {
		leaf := LeafID(internal, seg)
		if !IsLeaf(internal, leaf) {
			t.Errorf("IsLeaf(%d) = false, want true", leaf)
		}
		if got := SegmentOf(internal, leaf); got != seg {
			t.Errorf("SegmentOf(LeafID(%d)) = %d, want %d", seg, got, seg)
		}
	}
}

func TestParentAndChildren(t *testing.T) {
	// Tree of height 3: node 0 is root; 1,2 are its children; 3,4 are
	// children of 1; 5,6 are children of 2; 7..14 are leaves.
	if got := ImmediateChildren(0); got != [2]NodeID{1, 2} {
		t.Errorf("ImmediateChildren(0) = %v, want [1 2]", got)
	}
	if got := ImmediateChildren(1); got != [2]NodeID{3, 4} {
		t.Errorf("ImmediateChildren(1) = %v, want [3 4]", got)
	}
	if got := ImmediateChildren(2); got != [2]NodeID{5, 6} {
		t.Errorf("ImmediateChildren(2) = %v, want [5 6]", got)
	}
	for n, want := range map[NodeID]NodeID{
		1: 0, 2: 0,
		3: 1, 4: 1, 5: 2, 6: 2,
	} {
		if got := Parent(n); got != want {
			t.Errorf("Parent(%d) = %d, want %d", n, got, want)
		}
	}
}

func TestLeftRightMostLeaf(t *testing.T) {
	const height = 3
	if got := LeftMostLeaf(0, height); got != 7 {
		t.Errorf("LeftMostLeaf(0) = %d, want 7", got)
	}
	if got := RightMostLeaf(0, height); got != 14 {
		t.Errorf("RightMostLeaf(0) = %d, want 14", got)
	}
	if got := LeftMostLeaf(1, height); got != 7 {
		t.Errorf("LeftMostLeaf(1) = %d, want 7", got)
	}
	if got := RightMostLeaf(1, height); got != 10 {
		t.Errorf("RightMostLeaf(1) = %d, want 10", got)
	}
}
