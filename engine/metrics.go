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
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	metricsOnce sync.Once

	hputTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "htree_hput_total",
		Help: "Number of hPut calls, by tree id.",
	}, []string{"tree_id"})

	hremoveTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "htree_hremove_total",
		Help: "Number of hRemove calls, by tree id.",
	}, []string{"tree_id"})

	rebuildSegments = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "htree_rebuild_segments_total",
		Help: "Number of dirty segments processed by rebuilds, by tree id.",
	}, []string{"tree_id"})

	rebuildDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name: "htree_rebuild_duration_seconds",
		Help: "Duration of rebuildHashTree calls, by tree id.",
	}, []string{"tree_id"})

	syncKeyDifferences = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "htree_sync_key_differences_total",
		Help: "Number of key-level differences reconciled by synch, by tree id.",
	}, []string{"tree_id"})

	syncDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name: "htree_sync_duration_seconds",
		Help: "Duration of synch calls, by tree id.",
	}, []string{"tree_id"})
)

// registerMetrics registers the package's collectors with the default
// prometheus registry exactly once, mirroring the teacher's
// once.Do(createMetrics) idiom.
func registerMetrics() {
	metricsOnce.Do(func() {
		prometheus.MustRegister(hputTotal, hremoveTotal, rebuildSegments, rebuildDuration, syncKeyDifferences, syncDuration)
	})
}
