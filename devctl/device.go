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

package devctl

import (
	"github.com/stacepellegrino/autofsd/autofs"
)

// Device is the single-reader control device the daemon process opens,
// wrapping a Coordinator with the session bookkeeping a real ioctl
// handler would otherwise have to redo at every call site.
type Device struct {
	coord   *autofs.Coordinator
	session autofs.SessionID
}

// NewDevice binds a Device to the process-wide Coordinator.
func NewDevice(coord *autofs.Coordinator) *Device {
	return &Device{coord: coord}
}

// Open implements the "open: exclusive" control operation.
func (d *Device) Open(session autofs.SessionID) error {
	if err := d.coord.Open(session); err != nil {
		return err
	}
	d.session = session
	return nil
}

// Close implements the "close" control operation.
func (d *Device) Close() {
	d.coord.Close()
	d.session = nil
}

// Fetch implements the "fetch" control operation, returning the
// bit-exact wire payload a real ioctl handler would copy into the
// daemon's buffer.
func (d *Device) Fetch(interrupt <-chan struct{}) (FetchPayload, error) {
	snap, err := d.coord.Fetch(d.session, interrupt)
	if err != nil {
		return FetchPayload{}, err
	}
	return EncodeFetchPayload(snap)
}

// Done implements the "done" control operation from the daemon's
// wire-format DonePayload.
func (d *Device) Done(p DonePayload) error {
	return d.coord.Done(int64(p.ID), int(p.Error), p.Wildcards)
}
