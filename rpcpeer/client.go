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
	"fmt"

	"google.golang.org/grpc"

	"github.com/opentreesync/htree/engine"
	"github.com/opentreesync/htree/storage"
	"github.com/opentreesync/htree/userstore"
)

// Client is a thin gRPC client implementing engine.Peer directly, so the
// reconciliation walker can address a remote engine exactly like a local
// one (§4.7).
type Client struct {
	conn *grpc.ClientConn
}

var _ engine.Peer = (*Client)(nil)

// Dial connects to a Server at addr. The connection negotiates the
// "json" codec registered by this package instead of protobuf.
func Dial(addr string) (*Client, error) {
	conn, err := grpc.Dial(addr,
		grpc.WithInsecure(),
		grpc.WithDefaultCallOptions(grpc.CallContentSubtype(codecName)),
	)
	if err != nil {
		return nil, fmt.Errorf("rpcpeer: dial %s: %w", addr, err)
	}
	return &Client{conn: conn}, nil
}

// Close releases the underlying connection.
func (c *Client) Close() error {
	return c.conn.Close()
}

func fullMethod(name string) string {
	return "/" + serviceName + "/" + name
}

func (c *Client) GetSegmentHashes(ctx context.Context, treeID int64, nodeIDs []uint32) ([]storage.NodeHash, error) {
	req := &getSegmentHashesRequest{TreeID: treeID, NodeIDs: nodeIDs}
	resp := new(getSegmentHashesResponse)
	if err := c.conn.Invoke(ctx, fullMethod("GetSegmentHashes"), req, resp); err != nil {
		return nil, fmt.Errorf("rpcpeer: GetSegmentHashes: %w", err)
	}
	out := make([]storage.NodeHash, len(resp.NodeIDs))
	for i := range resp.NodeIDs {
		var h [20]byte
		copy(h[:], resp.Hashes[i])
		out[i] = storage.NodeHash{NodeID: resp.NodeIDs[i], Hash: h}
	}
	return out, nil
}

func (c *Client) GetSegment(ctx context.Context, treeID int64, segID uint32) ([]storage.KeyDigestPair, error) {
	req := &getSegmentRequest{TreeID: treeID, SegID: segID}
	resp := new(getSegmentResponse)
	if err := c.conn.Invoke(ctx, fullMethod("GetSegment"), req, resp); err != nil {
		return nil, fmt.Errorf("rpcpeer: GetSegment: %w", err)
	}
	out := make([]storage.KeyDigestPair, len(resp.Items))
	for i, it := range resp.Items {
		var d [20]byte
		copy(d[:], it.Digest)
		out[i] = storage.KeyDigestPair{Key: it.Key, Digest: d}
	}
	return out, nil
}

func (c *Client) SPut(ctx context.Context, treeID int64, kvs []userstore.KV) error {
	req := &sPutRequest{TreeID: treeID, KVs: make([]keyValue, len(kvs))}
	for i, kv := range kvs {
		req.KVs[i] = keyValue{Key: kv.Key, Value: kv.Value}
	}
	resp := new(sPutResponse)
	if err := c.conn.Invoke(ctx, fullMethod("SPut"), req, resp); err != nil {
		return fmt.Errorf("rpcpeer: SPut: %w", err)
	}
	return nil
}

func (c *Client) SRemove(ctx context.Context, treeID int64, keys [][]byte) error {
	req := &sRemoveRequest{TreeID: treeID, Keys: keys}
	resp := new(sRemoveResponse)
	if err := c.conn.Invoke(ctx, fullMethod("SRemove"), req, resp); err != nil {
		return fmt.Errorf("rpcpeer: SRemove: %w", err)
	}
	return nil
}

func (c *Client) DeleteTreeNode(ctx context.Context, treeID int64, nodeID uint32) error {
	req := &deleteTreeNodeRequest{TreeID: treeID, NodeID: nodeID}
	resp := new(deleteTreeNodeResponse)
	if err := c.conn.Invoke(ctx, fullMethod("DeleteTreeNode"), req, resp); err != nil {
		return fmt.Errorf("rpcpeer: DeleteTreeNode: %w", err)
	}
	return nil
}
