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

// Package scheduler is the minimal stand-in for the out-of-scope "manager
// daemon" (§4.8): given a set of (treeId, peer) pairs, it calls
// engine.RebuildHashTree and engine.Synch on a ticker. It carries no admin
// API, UI, or multi-tenant policy.
package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/golang/glog"

	"github.com/opentreesync/htree/engine"
)

// Job is one (treeId, peer) pair the scheduler periodically rebuilds and
// syncs.
type Job struct {
	TreeID              int64
	Peer                engine.Peer
	RebuildPeriod       time.Duration
	SyncPeriod          time.Duration
	FullRebuildPeriodMs int64
}

// Scheduler runs a ticker per Job, calling RebuildHashTree and Synch on the
// wrapped engine. A busy tree (lock contention) simply skips that tick;
// the scheduler logs failures rather than propagating them, since there is
// no caller left to propagate to.
type Scheduler struct {
	e    *engine.Engine
	jobs []Job

	mu      sync.Mutex
	cancels []context.CancelFunc
	wg      sync.WaitGroup
}

// New creates a Scheduler driving e according to jobs. Call Start to begin
// ticking.
func New(e *engine.Engine, jobs []Job) *Scheduler {
	return &Scheduler{e: e, jobs: jobs}
}

// Start launches one goroutine per job, each running its own rebuild and
// sync tickers until ctx is cancelled or Stop is called.
func (s *Scheduler) Start(ctx context.Context) {
	for _, job := range s.jobs {
		job := job
		jobCtx, cancel := context.WithCancel(ctx)

		s.mu.Lock()
		s.cancels = append(s.cancels, cancel)
		s.mu.Unlock()

		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.runJob(jobCtx, job)
		}()
	}
}

// Stop cancels every job's context and waits for its goroutine to exit.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	cancels := s.cancels
	s.cancels = nil
	s.mu.Unlock()

	for _, cancel := range cancels {
		cancel()
	}
	s.wg.Wait()
}

func (s *Scheduler) runJob(ctx context.Context, job Job) {
	rebuildTicker := time.NewTicker(job.RebuildPeriod)
	defer rebuildTicker.Stop()
	syncTicker := time.NewTicker(job.SyncPeriod)
	defer syncTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-rebuildTicker.C:
			if _, err := s.e.RebuildHashTree(ctx, job.TreeID, job.FullRebuildPeriodMs); err != nil {
				glog.Errorf("scheduler: rebuild tree %d: %v", job.TreeID, err)
			}
		case <-syncTicker.C:
			if _, _, err := s.e.Synch(ctx, job.TreeID, job.Peer, engine.Update); err != nil {
				glog.Errorf("scheduler: synch tree %d: %v", job.TreeID, err)
			}
		}
	}
}
