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
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stacepellegrino/autofsd/autofs"
	"github.com/stacepellegrino/autofsd/clock"
)

func TestDevice_OpenCloseAndSessionIdentity(t *testing.T) {
	clk := clock.NewSimulatedClock(time.Unix(0, 0))
	coord := autofs.NewCoordinator(autofs.Config{RetryAttempts: 1}, clk)
	dev := NewDevice(coord)

	s := NewToken()
	require.NoError(t, dev.Open(s))
	assert.True(t, coord.IgnoreCurrentThread(s))

	dev.Close()
	assert.False(t, coord.IgnoreCurrentThread(s))
}

func TestDevice_SecondOpenFailsBusy(t *testing.T) {
	clk := clock.NewSimulatedClock(time.Unix(0, 0))
	coord := autofs.NewCoordinator(autofs.Config{}, clk)
	dev := NewDevice(coord)

	require.NoError(t, dev.Open(NewToken()))
	assert.ErrorIs(t, dev.Open(NewToken()), autofs.ErrBusy)
}

func TestDevice_FetchAndDoneRoundTrip(t *testing.T) {
	clk := clock.NewSimulatedClock(time.Unix(0, 0))
	coord := autofs.NewCoordinator(autofs.Config{RetryAttempts: 1}, clk)
	m := autofs.NewMount("home", "/mnt", "", "", clk)
	root := m.Root()
	dev := NewDevice(coord)
	require.NoError(t, dev.Open(NewToken()))

	errs := make(chan error, 1)
	go func() { errs <- coord.Trigger(m, root, "bob", nil) }()

	payload, err := dev.Fetch(nil)
	require.NoError(t, err)

	require.NoError(t, dev.Done(DonePayload{ID: payload.ID, Error: 0, Wildcards: false}))
	require.NoError(t, <-errs)
}

func TestPgidSession_EqualOnlyToSamePgid(t *testing.T) {
	a := pgidSession{pgid: 100}
	b := pgidSession{pgid: 100}
	c := pgidSession{pgid: 200}

	assert.True(t, a.Equal(b))
	assert.False(t, a.Equal(c))
	assert.False(t, a.Equal(NewToken()))
}
