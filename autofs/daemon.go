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

import "time"

// Open binds session as the current daemon. Exclusive: fails with ErrBusy
// if a daemon has already opened the control device.
func (c *Coordinator) Open(session SessionID) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.daemonOpen {
		return ErrBusy
	}
	c.logger.Printf("control device opened")
	c.daemonOpen = true
	c.daemonSession = session
	return nil
}

// Close clears the daemon-open flag.
func (c *Coordinator) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.logger.Printf("control device closed")
	c.daemonOpen = false
}

// Fetch serves the daemon's "get next request" ioctl. Session binding is
// refreshed on every call so the currently-fetching daemon process group
// is always the one self-trigger suppression compares against.
func (c *Coordinator) Fetch(session SessionID, interrupt <-chan struct{}) (RequestSnapshot, error) {
	snap, err := c.daemonFetch(interrupt)
	if err != nil {
		// An interrupted fetch leaves daemonSession untouched; the previous
		// binding stays in force until a fetch actually claims a request.
		return snap, err
	}

	c.mu.Lock()
	c.daemonSession = session
	c.mu.Unlock()

	return snap, nil
}

// Done serves the daemon's completion ioctl.
func (c *Coordinator) Done(id int64, errno int, wildcards bool) error {
	return c.daemonComplete(id, errno, wildcards)
}

// IgnoreCurrentThread reports whether the calling process is the daemon
// itself: true iff the daemon channel is open and session equals the
// recorded daemon session. Every VFS hook that would call Trigger must
// consult this first, or the daemon walking its own mountpoint would
// deadlock waiting for itself.
func (c *Coordinator) IgnoreCurrentThread(session SessionID) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.daemonOpen && c.daemonSession != nil && c.daemonSession.Equal(session)
}

// defaultTeardownTick is how long the teardown sweep sleeps between passes
// while draining requests still referenced by a parked caller.
const defaultTeardownTick = 10 * time.Millisecond

// Unmount tears down mount's tree and force-fails every outstanding
// request against it. It blocks until every request against mount has
// drained and the tree is empty.
func (c *Coordinator) Unmount(mount *Mount) {
	c.teardownSweep(mount, defaultTeardownTick)
	mount.Teardown()
}
