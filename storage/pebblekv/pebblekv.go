// Copyright 2016 Google LLC. All Rights Reserved.
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

// Package pebblekv implements storage.KVEngine over an embedded
// cockroachdb/pebble LSM engine, for single-process deployments that want
// digest-store durability without operating a separate database.
package pebblekv

import (
	"context"
	"fmt"

	"github.com/cockroachdb/pebble"
	"github.com/golang/glog"
)

// Engine implements storage.KVEngine over a *pebble.DB.
type Engine struct {
	db *pebble.DB
}

// Open opens (creating if necessary) a pebble database rooted at dir.
func Open(dir string) (*Engine, error) {
	db, err := pebble.Open(dir, &pebble.Options{})
	if err != nil {
		return nil, fmt.Errorf("pebblekv: open %s: %w", dir, err)
	}
	glog.Infof("pebblekv: opened database at %s", dir)
	return &Engine{db: db}, nil
}

// Close flushes and closes the underlying pebble database.
func (e *Engine) Close() error {
	return e.db.Close()
}

func (e *Engine) Get(_ context.Context, key []byte) ([]byte, bool, error) {
	v, closer, err := e.db.Get(key)
	if err == pebble.ErrNotFound {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("pebblekv: get: %w", err)
	}
	out := make([]byte, len(v))
	copy(out, v)
	if err := closer.Close(); err != nil {
		return nil, false, fmt.Errorf("pebblekv: get close: %w", err)
	}
	return out, true, nil
}

func (e *Engine) Set(_ context.Context, key, value []byte) error {
	if err := e.db.Set(key, value, pebble.Sync); err != nil {
		return fmt.Errorf("pebblekv: set: %w", err)
	}
	return nil
}

func (e *Engine) Delete(_ context.Context, key []byte) error {
	if err := e.db.Delete(key, pebble.Sync); err != nil {
		return fmt.Errorf("pebblekv: delete: %w", err)
	}
	return nil
}

func (e *Engine) Iterate(_ context.Context, lo, hi []byte, fn func(key, value []byte) (bool, error)) error {
	iter, err := e.db.NewIter(&pebble.IterOptions{LowerBound: lo, UpperBound: hi})
	if err != nil {
		return fmt.Errorf("pebblekv: new iterator: %w", err)
	}
	defer iter.Close()

	for iter.First(); iter.Valid(); iter.Next() {
		ok, err := fn(iter.Key(), iter.Value())
		if err != nil {
			return err
		}
		if !ok {
			break
		}
	}
	return iter.Error()
}
