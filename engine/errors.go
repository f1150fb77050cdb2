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

import "errors"

var (
	// ErrNotStarted is returned by hPut/hRemove when non-blocking calls are
	// enabled but Start has not been called yet.
	ErrNotStarted = errors.New("engine: not started")

	// ErrStopped is returned by hPut/hRemove after Stop has completed.
	ErrStopped = errors.New("engine: stopped")

	// ErrInvalidArgument marks programmer-misuse failures (§7 kind 3):
	// invalid configuration or a required argument that was nil/empty.
	ErrInvalidArgument = errors.New("engine: invalid argument")
)
