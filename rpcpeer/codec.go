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

// Package rpcpeer implements §4.7's gRPC-based peer transport: a plain
// request/response RPC surface carrying the engine.Peer contract, without
// a protoc-generated wire format. Messages are ordinary Go structs
// marshaled with a small custom codec registered under the "json" gRPC
// content-subtype, and the service is described by a hand-written
// grpc.ServiceDesc rather than generated stubs.
package rpcpeer

import (
	"encoding/json"
	"fmt"

	"google.golang.org/grpc/encoding"
)

// codecName is the gRPC content-subtype this codec is registered under.
// Clients select it via grpc.CallContentSubtype; the server picks the
// registered codec matching the content-subtype each request carries.
const codecName = "json"

// jsonCodec marshals RPC messages as JSON instead of protobuf. gRPC
// supports arbitrary wire formats through the encoding.Codec extension
// point; this is the minimal implementation of it for plain Go structs.
type jsonCodec struct{}

func (jsonCodec) Marshal(v interface{}) ([]byte, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("rpcpeer: marshal: %w", err)
	}
	return b, nil
}

func (jsonCodec) Unmarshal(data []byte, v interface{}) error {
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("rpcpeer: unmarshal: %w", err)
	}
	return nil
}

func (jsonCodec) Name() string { return codecName }

func init() {
	encoding.RegisterCodec(jsonCodec{})
}
