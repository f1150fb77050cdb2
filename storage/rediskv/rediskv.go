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

// Package rediskv implements storage.KVEngine over a Redis sorted set,
// useful when several stateless engine processes should share one digest
// store without operating a SQL cluster. Ordering is maintained with a
// single zero-score sorted set (so ZRANGEBYLEX compares members
// byte-for-byte); values are held in ordinary string keys alongside it.
package rediskv

import (
	"context"
	"fmt"

	"github.com/go-redis/redis"
	"github.com/golang/glog"
)

const indexSetName = "htree:index"

// Engine implements storage.KVEngine over a Redis instance.
type Engine struct {
	client *redis.Client
}

// Open connects to the Redis instance at addr (host:port).
func Open(addr string) (*Engine, error) {
	client := redis.NewClient(&redis.Options{Addr: addr})
	if err := client.Ping().Err(); err != nil {
		return nil, fmt.Errorf("rediskv: ping %s: %w", addr, err)
	}
	glog.Infof("rediskv: connected to %s", addr)
	return &Engine{client: client}, nil
}

// Close releases the underlying connection.
func (e *Engine) Close() error {
	return e.client.Close()
}

func valueKey(key []byte) string {
	return "v:" + string(key)
}

func (e *Engine) Get(_ context.Context, key []byte) ([]byte, bool, error) {
	v, err := e.client.Get(valueKey(key)).Bytes()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("rediskv: get: %w", err)
	}
	return v, true, nil
}

func (e *Engine) Set(_ context.Context, key, value []byte) error {
	pipe := e.client.TxPipeline()
	pipe.ZAdd(indexSetName, redis.Z{Score: 0, Member: string(key)})
	pipe.Set(valueKey(key), value, 0)
	if _, err := pipe.Exec(); err != nil {
		return fmt.Errorf("rediskv: set: %w", err)
	}
	return nil
}

func (e *Engine) Delete(_ context.Context, key []byte) error {
	pipe := e.client.TxPipeline()
	pipe.ZRem(indexSetName, string(key))
	pipe.Del(valueKey(key))
	if _, err := pipe.Exec(); err != nil {
		return fmt.Errorf("rediskv: delete: %w", err)
	}
	return nil
}

// Iterate reads the index range first and then each value separately, so
// unlike the other engines the walk is not a point-in-time snapshot: a
// value written or deleted concurrently may or may not be observed.
func (e *Engine) Iterate(_ context.Context, lo, hi []byte, fn func(key, value []byte) (bool, error)) error {
	members, err := e.client.ZRangeByLex(indexSetName, redis.ZRangeBy{
		Min: "[" + string(lo),
		Max: "(" + string(hi),
	}).Result()
	if err != nil {
		return fmt.Errorf("rediskv: zrangebylex: %w", err)
	}

	for _, m := range members {
		v, err := e.client.Get(valueKey([]byte(m))).Bytes()
		if err == redis.Nil {
			// Raced with a concurrent delete between the index read and
			// the value read; skip it rather than surface a spurious key.
			continue
		}
		if err != nil {
			return fmt.Errorf("rediskv: iterate get: %w", err)
		}
		ok, err := fn([]byte(m), v)
		if err != nil {
			return err
		}
		if !ok {
			break
		}
	}
	return nil
}
