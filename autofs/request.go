// Copyright 2025 Google LLC
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

package autofs

import (
	"time"

	"github.com/stacepellegrino/autofsd/common"
)

// Request is one outstanding trigger: a refcounted, lock-guarded record
// shared by every caller that coalesced onto the same (path, key). All
// mutable fields are GUARDED_BY the owning Coordinator's lock.
type Request struct {
	ID int64

	mount *Mount

	From    string
	Path    string
	Prefix  string
	Key     string
	Options string

	// submittedAt is used only to compute metrics.Handle.FetchLatency
	// observations; it plays no role in coordinator semantics.
	submittedAt time.Time

	// GUARDED_BY(coordinator.mu)
	Done bool

	// GUARDED_BY(coordinator.mu)
	InProgress bool

	// Error, if non-nil, is the daemon-supplied errno from Done, or one
	// of ErrTimeout/ErrGoneAway. nil means success.
	//
	// GUARDED_BY(coordinator.mu)
	Error error

	// GUARDED_BY(coordinator.mu)
	Wildcards bool

	// refcount is the number of callers that submitted or joined the
	// request and have not yet left wait(); the table holds no reference
	// of its own. It reaches zero exactly once, at which point the request
	// is delinked and freed, whether or not it is done: a request whose
	// callers were all interrupted is dropped, and a later daemon
	// completion for its id fails with ErrNoSuchRequest.
	//
	// GUARDED_BY(coordinator.mu)
	refcount int

	// elem is this request's handle in the coordinator's ordered request
	// list, used to unlink it in O(1) once refcount reaches zero.
	//
	// GUARDED_BY(coordinator.mu)
	elem *common.Elem[*Request]

	// timeoutTimer fires after the configured trigger-timeout interval and
	// force-completes the request with ErrTimeout. Stopped once the request
	// is done, by whichever of {daemon completion, timeout fire, mount
	// teardown} gets there first.
	//
	// GUARDED_BY(coordinator.mu)
	timeoutTimer *cancellableTimer

	// waiters counts goroutines blocked in wait() on this request, purely
	// for observability (metrics.Handle.InFlightRequests).
	//
	// GUARDED_BY(coordinator.mu)
	waiters int
}
