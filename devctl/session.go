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

// Package devctl is the host-facing control device of the automounter: a
// single-reader channel exposing open/close/fetch/done, plus the
// fixed-layout wire structs the fetch and done ioctls carry.
package devctl

import (
	"github.com/google/uuid"
	"golang.org/x/sys/unix"

	"github.com/stacepellegrino/autofsd/autofs"
)

// pgidSession implements autofs.SessionID using the calling process's
// group id, the identity a real automount daemon is recognized by.
type pgidSession struct {
	pgid int
}

func (s pgidSession) Equal(other autofs.SessionID) bool {
	o, ok := other.(pgidSession)
	return ok && o.pgid == s.pgid
}

// HostSession returns the real OS session identity of the calling
// process, for hosts that can answer ignore_current_thread truthfully
// against an actual process group.
func HostSession() (autofs.SessionID, error) {
	pgid, err := unix.Getpgid(0)
	if err != nil {
		return nil, err
	}
	return pgidSession{pgid: pgid}, nil
}

// tokenSession implements autofs.SessionID with an opaque random token,
// for hosts (or tests) with no meaningful process-group notion to bind
// to. Compared by equality only.
type tokenSession struct {
	token uuid.UUID
}

func (s tokenSession) Equal(other autofs.SessionID) bool {
	o, ok := other.(tokenSession)
	return ok && o.token == s.token
}

// NewToken mints a fresh opaque session identity.
func NewToken() autofs.SessionID {
	return tokenSession{token: uuid.New()}
}
