// Copyright 2026 The RangeKV Authors.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or
// implied. See the License for the specific language governing
// permissions and limitations under the License.

package errors

import (
	"errors"
	"net/http"

	"github.com/cubefs/cubefs/blobstore/common/rpc"
)

// Identity and bootstrap faults. All of these abort node startup; none is
// retried automatically.
var (
	// ErrClusterMismatch: an engine's persisted ident belongs to a
	// different cluster than the configured one.
	ErrClusterMismatch = errors.New("store ident has mismatched cluster id")

	// ErrNodeIdentityMismatch: two engines on the same process carry
	// idents from different nodes.
	ErrNodeIdentityMismatch = errors.New("store ident has mismatched node id")

	// ErrCorruptIdentity: a persisted ident carries an invalid node or
	// store id.
	ErrCorruptIdentity = errors.New("invalid store ident")

	// ErrInconsistentBootstrapState: the node has local state but the
	// authority reports the cluster as not bootstrapped.
	ErrInconsistentBootstrapState = errors.New("node is not empty, but cluster is not bootstrapped")
)

// Store lifecycle faults. These are surfaced to the caller of the specific
// start/stop operation and never abort sibling operations.
var (
	ErrDuplicateStore    = errors.New("duplicated store id")
	ErrUnknownStore      = errors.New("stop invalid store: no channel registered")
	ErrWorkerAlreadyGone = errors.New("store worker has already gone")
)

// Wire errors of the authority service. These carry HTTP status codes so
// the client can tell recoverable conditions apart without string matching.
var (
	ErrClusterAlreadyBootstrapped = rpc.NewError(http.StatusConflict, "ClusterAlreadyBootstrapped",
		errors.New("cluster is already bootstrapped"))
	ErrClusterNotBootstrapped = rpc.NewError(http.StatusNotFound, "ClusterNotBootstrapped",
		errors.New("cluster is not bootstrapped"))
	ErrNotFound        = rpc.NewError(http.StatusNotFound, "NotFound", errors.New("not found"))
	ErrInvalidArgument = rpc.NewError(http.StatusBadRequest, "InvalidArgument", errors.New("invalid argument"))
)

// IsClusterAlreadyBootstrapped reports whether err is the authority's
// answer to a lost bootstrap race, across process boundaries.
func IsClusterAlreadyBootstrapped(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrClusterAlreadyBootstrapped) {
		return true
	}
	return rpc.DetectStatusCode(err) == http.StatusConflict
}

// IsNotFound reports whether err maps to a 404 from the authority.
func IsNotFound(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrNotFound) {
		return true
	}
	return rpc.DetectStatusCode(err) == http.StatusNotFound
}
