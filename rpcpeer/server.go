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

package rpcpeer

import (
	"context"
	"net"
	"strconv"

	grpc_middleware "github.com/grpc-ecosystem/go-grpc-middleware"
	grpc_recovery "github.com/grpc-ecosystem/go-grpc-middleware/recovery"
	"github.com/golang/glog"
	"google.golang.org/grpc"

	"github.com/opentreesync/htree/engine"
	"github.com/opentreesync/htree/userstore"
)

// DefaultPeerPort is the port a Server listens on when none is specified,
// chosen arbitrarily the way the teacher's own services pick a default.
const DefaultPeerPort = 7072

// server adapts a local *engine.Engine to the peerServer wire interface.
type server struct {
	e *engine.Engine
}

func (s *server) GetSegmentHashes(ctx context.Context, req *getSegmentHashesRequest) (*getSegmentHashesResponse, error) {
	hashes, err := s.e.GetSegmentHashes(ctx, req.TreeID, req.NodeIDs)
	if err != nil {
		return nil, err
	}
	resp := &getSegmentHashesResponse{
		NodeIDs: make([]uint32, len(hashes)),
		Hashes:  make([][]byte, len(hashes)),
	}
	for i, h := range hashes {
		resp.NodeIDs[i] = h.NodeID
		resp.Hashes[i] = append([]byte(nil), h.Hash[:]...)
	}
	return resp, nil
}

func (s *server) GetSegment(ctx context.Context, req *getSegmentRequest) (*getSegmentResponse, error) {
	kvs, err := s.e.GetSegment(ctx, req.TreeID, req.SegID)
	if err != nil {
		return nil, err
	}
	resp := &getSegmentResponse{Items: make([]keyDigest, len(kvs))}
	for i, kv := range kvs {
		resp.Items[i] = keyDigest{Key: kv.Key, Digest: append([]byte(nil), kv.Digest[:]...)}
	}
	return resp, nil
}

func (s *server) SPut(ctx context.Context, req *sPutRequest) (*sPutResponse, error) {
	kvs := make([]userstore.KV, len(req.KVs))
	for i, kv := range req.KVs {
		kvs[i] = userstore.KV{Key: kv.Key, Value: kv.Value}
	}
	if err := s.e.SPut(ctx, req.TreeID, kvs); err != nil {
		return nil, err
	}
	return &sPutResponse{}, nil
}

func (s *server) SRemove(ctx context.Context, req *sRemoveRequest) (*sRemoveResponse, error) {
	if err := s.e.SRemove(ctx, req.TreeID, req.Keys); err != nil {
		return nil, err
	}
	return &sRemoveResponse{}, nil
}

func (s *server) DeleteTreeNode(ctx context.Context, req *deleteTreeNodeRequest) (*deleteTreeNodeResponse, error) {
	if err := s.e.DeleteTreeNode(ctx, req.TreeID, req.NodeID); err != nil {
		return nil, err
	}
	return &deleteTreeNodeResponse{}, nil
}

// Server is a long-running process wrapping a local engine and dispatching
// the peer RPCs of §6 to it, interceptor-wrapped for panic recovery and
// request logging the way the teacher wraps its own gRPC servers.
type Server struct {
	grpcServer *grpc.Server
	listener   net.Listener
}

// NewServer builds a Server for e, listening on addr (host:port; an empty
// host binds all interfaces). addr with no port defaults to DefaultPeerPort.
func NewServer(e *engine.Engine, addr string) (*Server, error) {
	if _, _, err := net.SplitHostPort(addr); err != nil {
		addr = net.JoinHostPort(addr, strconv.Itoa(DefaultPeerPort))
	}
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}

	recoveryOpt := grpc_recovery.WithRecoveryHandlerContext(
		func(ctx context.Context, p interface{}) error {
			glog.Errorf("rpcpeer: recovered from panic: %v", p)
			return nil
		},
	)
	gs := grpc.NewServer(
		grpc.UnaryInterceptor(grpc_middleware.ChainUnaryServer(
			grpc_recovery.UnaryServerInterceptor(recoveryOpt),
			loggingInterceptor,
		)),
	)
	gs.RegisterService(&serviceDesc, &server{e: e})

	return &Server{grpcServer: gs, listener: lis}, nil
}

// Serve blocks, accepting connections until Stop is called.
func (s *Server) Serve() error {
	return s.grpcServer.Serve(s.listener)
}

// Stop gracefully shuts down the server, letting in-flight RPCs finish.
func (s *Server) Stop() {
	s.grpcServer.GracefulStop()
}

// Addr returns the address the server is actually listening on (useful
// when addr passed to NewServer used port 0).
func (s *Server) Addr() string {
	return s.listener.Addr().String()
}

func loggingInterceptor(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {
	resp, err := handler(ctx, req)
	if err != nil {
		glog.Errorf("rpcpeer: %s failed: %v", info.FullMethod, err)
	} else {
		glog.V(2).Infof("rpcpeer: %s ok", info.FullMethod)
	}
	return resp, err
}
