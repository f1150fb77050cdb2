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

// These are the plain Go structs carried over the wire by jsonCodec, one
// request/response pair per method of the htree.Peer service (§6).

type getSegmentHashesRequest struct {
	TreeID  int64
	NodeIDs []uint32
}

type getSegmentHashesResponse struct {
	NodeIDs []uint32
	Hashes  [][]byte
}

type getSegmentRequest struct {
	TreeID int64
	SegID  uint32
}

type keyDigest struct {
	Key    []byte
	Digest []byte
}

type getSegmentResponse struct {
	Items []keyDigest
}

type keyValue struct {
	Key   []byte
	Value []byte
}

type sPutRequest struct {
	TreeID int64
	KVs    []keyValue
}

type sPutResponse struct{}

type sRemoveRequest struct {
	TreeID int64
	Keys   [][]byte
}

type sRemoveResponse struct{}

type deleteTreeNodeRequest struct {
	TreeID int64
	NodeID uint32
}

type deleteTreeNodeResponse struct{}
