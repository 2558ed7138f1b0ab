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
	"bytes"
	"fmt"

	"github.com/stacepellegrino/autofsd/autofs"
)

// MaxPathLen is the max-path constant the wire structs size their fixed
// buffers to. There is no kernel PATH_MAX to borrow here, so it uses the
// common Linux/BSD value.
const MaxPathLen = 1024

// FetchPayload is the fixed-layout fetch wire struct: an id followed by
// five NUL-terminated byte arrays. The fixed sizes stay at the ioctl
// boundary for binary compatibility with existing daemons even though the
// core uses Go strings internally.
type FetchPayload struct {
	ID      int32
	From    [MaxPathLen]byte
	Path    [MaxPathLen]byte
	Prefix  [MaxPathLen]byte
	Key     [MaxPathLen]byte
	Options [MaxPathLen]byte
}

// DonePayload is the fixed-layout completion wire struct: the request id,
// the daemon's errno (0 for success), and the wildcard hint.
type DonePayload struct {
	ID        int32
	Error     int32
	Wildcards bool
}

func encodeField(dst *[MaxPathLen]byte, s string) error {
	if len(s) >= MaxPathLen {
		return fmt.Errorf("devctl: field %q exceeds %d bytes", s, MaxPathLen-1)
	}
	*dst = [MaxPathLen]byte{}
	copy(dst[:], s)
	return nil
}

func decodeField(src *[MaxPathLen]byte) string {
	n := bytes.IndexByte(src[:], 0)
	if n < 0 {
		n = len(src)
	}
	return string(src[:n])
}

// EncodeFetchPayload packs a RequestSnapshot into the fixed-size wire
// struct a fetch ioctl hands back to the daemon.
func EncodeFetchPayload(snap autofs.RequestSnapshot) (FetchPayload, error) {
	var p FetchPayload
	p.ID = int32(snap.ID)

	for dst, s := range map[*[MaxPathLen]byte]string{
		&p.From:    snap.From,
		&p.Path:    snap.Path,
		&p.Prefix:  snap.Prefix,
		&p.Key:     snap.Key,
		&p.Options: snap.Options,
	} {
		if err := encodeField(dst, s); err != nil {
			return FetchPayload{}, err
		}
	}
	return p, nil
}

// DecodeFetchPayload is EncodeFetchPayload's inverse, used by tests and
// by daemon-side stand-ins that exercise the wire boundary directly.
func DecodeFetchPayload(p FetchPayload) autofs.RequestSnapshot {
	return autofs.RequestSnapshot{
		ID:      int64(p.ID),
		From:    decodeField(&p.From),
		Path:    decodeField(&p.Path),
		Prefix:  decodeField(&p.Prefix),
		Key:     decodeField(&p.Key),
		Options: decodeField(&p.Options),
	}
}
