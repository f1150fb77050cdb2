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

	"google.golang.org/grpc"
)

// peerServer is the interface a gRPC server registers against: the
// read/write surface of engine.Peer, addressed over the wire. It is kept
// unexported because callers only ever construct one via NewServer.
type peerServer interface {
	GetSegmentHashes(context.Context, *getSegmentHashesRequest) (*getSegmentHashesResponse, error)
	GetSegment(context.Context, *getSegmentRequest) (*getSegmentResponse, error)
	SPut(context.Context, *sPutRequest) (*sPutResponse, error)
	SRemove(context.Context, *sRemoveRequest) (*sRemoveResponse, error)
	DeleteTreeNode(context.Context, *deleteTreeNodeRequest) (*deleteTreeNodeResponse, error)
}

// serviceName is the fully qualified gRPC service name, mirroring what a
// "htree.proto" package htree; service Peer would generate.
const serviceName = "htree.Peer"

func handlerFor(methodName string) func(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	switch methodName {
	case "GetSegmentHashes":
		return func(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
			req := new(getSegmentHashesRequest)
			if err := dec(req); err != nil {
				return nil, err
			}
			if interceptor == nil {
				return srv.(peerServer).GetSegmentHashes(ctx, req)
			}
			info := &grpc.UnaryServerInfo{Server: srv, FullMethod: serviceName + "/GetSegmentHashes"}
			handler := func(ctx context.Context, req interface{}) (interface{}, error) {
				return srv.(peerServer).GetSegmentHashes(ctx, req.(*getSegmentHashesRequest))
			}
			return interceptor(ctx, req, info, handler)
		}
	case "GetSegment":
		return func(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
			req := new(getSegmentRequest)
			if err := dec(req); err != nil {
				return nil, err
			}
			if interceptor == nil {
				return srv.(peerServer).GetSegment(ctx, req)
			}
			info := &grpc.UnaryServerInfo{Server: srv, FullMethod: serviceName + "/GetSegment"}
			handler := func(ctx context.Context, req interface{}) (interface{}, error) {
				return srv.(peerServer).GetSegment(ctx, req.(*getSegmentRequest))
			}
			return interceptor(ctx, req, info, handler)
		}
	case "SPut":
		return func(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
			req := new(sPutRequest)
			if err := dec(req); err != nil {
				return nil, err
			}
			if interceptor == nil {
				return srv.(peerServer).SPut(ctx, req)
			}
			info := &grpc.UnaryServerInfo{Server: srv, FullMethod: serviceName + "/SPut"}
			handler := func(ctx context.Context, req interface{}) (interface{}, error) {
				return srv.(peerServer).SPut(ctx, req.(*sPutRequest))
			}
			return interceptor(ctx, req, info, handler)
		}
	case "SRemove":
		return func(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
			req := new(sRemoveRequest)
			if err := dec(req); err != nil {
				return nil, err
			}
			if interceptor == nil {
				return srv.(peerServer).SRemove(ctx, req)
			}
			info := &grpc.UnaryServerInfo{Server: srv, FullMethod: serviceName + "/SRemove"}
			handler := func(ctx context.Context, req interface{}) (interface{}, error) {
				return srv.(peerServer).SRemove(ctx, req.(*sRemoveRequest))
			}
			return interceptor(ctx, req, info, handler)
		}
	case "DeleteTreeNode":
		return func(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
			req := new(deleteTreeNodeRequest)
			if err := dec(req); err != nil {
				return nil, err
			}
			if interceptor == nil {
				return srv.(peerServer).DeleteTreeNode(ctx, req)
			}
			info := &grpc.UnaryServerInfo{Server: srv, FullMethod: serviceName + "/DeleteTreeNode"}
			handler := func(ctx context.Context, req interface{}) (interface{}, error) {
				return srv.(peerServer).DeleteTreeNode(ctx, req.(*deleteTreeNodeRequest))
			}
			return interceptor(ctx, req, info, handler)
		}
	}
	return nil
}

// serviceDesc mirrors what protoc-gen-go-grpc would emit for a
// "service Peer" with the five methods above: a dispatch table grpc.Server
// uses to route incoming unary calls by method name.
var serviceDesc = grpc.ServiceDesc{
	ServiceName: serviceName,
	HandlerType: (*peerServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "GetSegmentHashes", Handler: handlerFor("GetSegmentHashes")},
		{MethodName: "GetSegment", Handler: handlerFor("GetSegment")},
		{MethodName: "SPut", Handler: handlerFor("SPut")},
		{MethodName: "SRemove", Handler: handlerFor("SRemove")},
		{MethodName: "DeleteTreeNode", Handler: handlerFor("DeleteTreeNode")},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "htree/peer.proto",
}
