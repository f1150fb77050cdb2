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

// htreeserver wires an in-memory user store, a digest store, the hash-tree
// engine, the RPC peer server, and a prometheus metrics endpoint into a
// single runnable process. It is a bootstrap binary, not a general
// operations CLI: production deployments embed the engine package
// directly against their own user store and digest store.
package main

import (
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/golang/glog"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/opentreesync/htree/engine"
	"github.com/opentreesync/htree/rpcpeer"
	"github.com/opentreesync/htree/storage/memorykv"
	"github.com/opentreesync/htree/storage/pebblekv"
	"github.com/opentreesync/htree/userstore/memtest"
)

var (
	rpcAddr     = flag.String("rpc_addr", fmt.Sprintf(":%d", rpcpeer.DefaultPeerPort), "address the peer RPC server listens on")
	metricsAddr = flag.String("metrics_addr", ":8072", "address the prometheus /metrics endpoint listens on")
	dataDir     = flag.String("data_dir", "", "pebble data directory for the digest store; empty uses an in-memory store")
	treeID      = flag.Int64("tree_id", 1, "the single tree id this process serves data for")
)

func main() {
	flag.Parse()
	defer glog.Flush()

	cfg := engine.Config{
		TreeIDProvider: func([]byte) int64 { return *treeID },
		UserStore:      memtest.New(func([]byte) int64 { return *treeID }),
	}

	if *dataDir != "" {
		kv, err := pebblekv.Open(*dataDir)
		if err != nil {
			glog.Exitf("htreeserver: open pebble data dir %q: %v", *dataDir, err)
		}
		defer kv.Close()
		cfg.DigestStoreEngine = kv
	} else {
		cfg.DigestStoreEngine = memorykv.New()
	}

	e, err := engine.NewEngine(cfg)
	if err != nil {
		glog.Exitf("htreeserver: new engine: %v", err)
	}
	e.Start()
	defer e.Stop()

	srv, err := rpcpeer.NewServer(e, *rpcAddr)
	if err != nil {
		glog.Exitf("htreeserver: new rpc server: %v", err)
	}

	go func() {
		glog.Infof("htreeserver: peer RPC listening on %s", srv.Addr())
		if err := srv.Serve(); err != nil {
			glog.Errorf("htreeserver: rpc server exited: %v", err)
		}
	}()

	go func() {
		glog.Infof("htreeserver: metrics listening on %s", *metricsAddr)
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		if err := http.ListenAndServe(*metricsAddr, mux); err != nil {
			glog.Errorf("htreeserver: metrics server exited: %v", err)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	glog.Infof("htreeserver: shutting down")
	srv.Stop()
}
