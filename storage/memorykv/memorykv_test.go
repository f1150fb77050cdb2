// Copyright 2017 Google LLC. All Rights Reserved.
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

package memorykv

import (
	"context"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestGetSetDelete(t *testing.T) {
	ctx := context.Background()
	e := New()

	if _, ok, err := e.Get(ctx, []byte("a")); err != nil || ok {
		t.Fatalf("Get on empty engine: ok=%v err=%v, want ok=false err=nil", ok, err)
	}

	if err := e.Set(ctx, []byte("a"), []byte("1")); err != nil {
		t.Fatalf("Set: %v", err)
	}
	v, ok, err := e.Get(ctx, []byte("a"))
	if err != nil || !ok || string(v) != "1" {
		t.Fatalf("Get after Set = %q, %v, %v, want 1, true, nil", v, ok, err)
	}

	if err := e.Delete(ctx, []byte("a")); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, ok, _ := e.Get(ctx, []byte("a")); ok {
		t.Fatal("Get after Delete: still present")
	}
}

func TestIterateOrderedAndBounded(t *testing.T) {
	ctx := context.Background()
	e := New()
	for _, k := range []string{"b", "d", "a", "c", "e"} {
		if err := e.Set(ctx, []byte(k), []byte(k)); err != nil {
			t.Fatalf("Set(%s): %v", k, err)
		}
	}

	var got []string
	err := e.Iterate(ctx, []byte("b"), []byte("d"), func(k, v []byte) (bool, error) {
		got = append(got, string(k))
		return true, nil
	})
	if err != nil {
		t.Fatalf("Iterate: %v", err)
	}
	want := []string{"b", "c"}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Iterate range [b,d) mismatch (-want +got):\n%s", diff)
	}
}

func TestIterateEarlyStop(t *testing.T) {
	ctx := context.Background()
	e := New()
	for _, k := range []string{"a", "b", "c"} {
		e.Set(ctx, []byte(k), []byte(k))
	}
	var got []string
	err := e.Iterate(ctx, []byte("a"), []byte("z"), func(k, v []byte) (bool, error) {
		got = append(got, string(k))
		return len(got) < 2, nil
	})
	if err != nil {
		t.Fatalf("Iterate: %v", err)
	}
	if len(got) != 2 {
		t.Errorf("Iterate did not stop early: got %v", got)
	}
}
