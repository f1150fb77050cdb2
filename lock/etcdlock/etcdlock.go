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

// Package etcdlock is a distributed alternative to lock.InProcess, for
// deployments that run more than one engine process against the same
// digest store and need rebuild/sync for a given treeId serialized across
// processes, not just goroutines.
package etcdlock

import (
	"context"
	"strconv"

	"github.com/golang/glog"
	clientv3 "go.etcd.io/etcd/client/v3"
	"go.etcd.io/etcd/client/v3/concurrency"

	"github.com/opentreesync/htree/lock"
)

const lockPrefix = "/htree/locks/"

// Provider implements lock.Provider using etcd's concurrency.Mutex, keyed
// by treeId under a shared prefix.
type Provider struct {
	client     *clientv3.Client
	sessionTTL int
}

var _ lock.Provider = (*Provider)(nil)

// New returns a Provider using client, with sessions held open for
// sessionTTLSeconds (etcd releases the lock automatically if the holding
// process dies without releasing it within that window).
func New(client *clientv3.Client, sessionTTLSeconds int) *Provider {
	if sessionTTLSeconds <= 0 {
		sessionTTLSeconds = 30
	}
	return &Provider{client: client, sessionTTL: sessionTTLSeconds}
}

// TryAcquire implements lock.Provider. Each acquisition opens its own etcd
// session so that release is independent of any other in-flight
// acquisition for a different treeId.
func (p *Provider) TryAcquire(treeID int64) (func(), bool) {
	sess, err := concurrency.NewSession(p.client, concurrency.WithTTL(p.sessionTTL))
	if err != nil {
		glog.Errorf("etcdlock: new session for tree %d: %v", treeID, err)
		return nil, false
	}

	mu := concurrency.NewMutex(sess, lockPrefix+strconv.FormatInt(treeID, 10))
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := mu.TryLock(ctx); err != nil {
		sess.Close()
		if err != concurrency.ErrLocked {
			glog.Errorf("etcdlock: try-lock tree %d: %v", treeID, err)
		}
		return nil, false
	}

	return func() {
		if err := mu.Unlock(context.Background()); err != nil {
			glog.Errorf("etcdlock: unlock tree %d: %v", treeID, err)
		}
		if err := sess.Close(); err != nil {
			glog.Errorf("etcdlock: close session tree %d: %v", treeID, err)
		}
	}, true
}
