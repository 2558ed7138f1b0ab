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

package config

import (
	"testing"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newBoundViper(t *testing.T) *viper.Viper {
	t.Helper()
	cmd := &cobra.Command{Use: "test"}
	require.NoError(t, BindFlags(cmd.Flags()))

	v := viper.New()
	require.NoError(t, v.BindPFlags(cmd.Flags()))
	return v
}

func TestConfig_DecodeAppliesFlagDefaults(t *testing.T) {
	v := newBoundViper(t)

	c, err := Decode(v)
	require.NoError(t, err)

	assert.Equal(t, 1, c.Debug)
	assert.False(t, c.MountOnStat)
	assert.Equal(t, 30*time.Second, c.Timeout)
	assert.Equal(t, 10*time.Minute, c.Cache)
	assert.Equal(t, 3, c.RetryAttempts)
	assert.Equal(t, time.Second, c.RetryDelay)
	assert.True(t, c.Interruptible)
}

func TestConfig_DecodeHonorsExplicitFlagValue(t *testing.T) {
	cmd := &cobra.Command{Use: "test"}
	require.NoError(t, BindFlags(cmd.Flags()))
	require.NoError(t, cmd.ParseFlags([]string{"--retry-attempts=5", "--timeout=2s"}))

	v := viper.New()
	require.NoError(t, v.BindPFlags(cmd.Flags()))

	c, err := Decode(v)
	require.NoError(t, err)
	assert.Equal(t, 5, c.RetryAttempts)
	assert.Equal(t, 2*time.Second, c.Timeout)
}

func TestConfig_ValidateRejectsNonPositiveRetryAttempts(t *testing.T) {
	c := Config{RetryAttempts: 0}
	assert.Error(t, c.Validate())
}

func TestConfig_ValidateRejectsNegativeDurations(t *testing.T) {
	assert.Error(t, Config{RetryAttempts: 1, Timeout: -time.Second}.Validate())
	assert.Error(t, Config{RetryAttempts: 1, Cache: -time.Second}.Validate())
	assert.Error(t, Config{RetryAttempts: 1, RetryDelay: -time.Second}.Validate())
}

func TestConfig_ValidateAcceptsZeroDurationsAsDisabled(t *testing.T) {
	c := Config{RetryAttempts: 1, Timeout: 0, Cache: 0, RetryDelay: 0}
	assert.NoError(t, c.Validate())
}

func TestConfig_ToCoordinatorConfigProjectsFields(t *testing.T) {
	c := Config{
		Debug:         2,
		MountOnStat:   true,
		Timeout:       time.Minute,
		Cache:         time.Hour,
		RetryAttempts: 4,
		RetryDelay:    2 * time.Second,
		Interruptible: false,
	}

	got := c.ToCoordinatorConfig()
	assert.Equal(t, 2, got.Debug)
	assert.True(t, got.MountOnStat)
	assert.Equal(t, time.Minute, got.Timeout)
	assert.Equal(t, time.Hour, got.Cache)
	assert.Equal(t, 4, got.RetryAttempts)
	assert.Equal(t, 2*time.Second, got.RetryDelay)
	assert.False(t, got.Interruptible)
}
