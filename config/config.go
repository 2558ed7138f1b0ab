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

// Package config loads the daemon's runtime-tunable knobs through a
// cobra+viper+mapstructure pipeline: flags bound into viper, decoded with
// a duration hook, then validated.
package config

import (
	"fmt"
	"time"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/stacepellegrino/autofsd/autofs"
)

// Config is the set of runtime-tunable knobs.
type Config struct {
	Debug         int           `mapstructure:"debug"`
	MountOnStat   bool          `mapstructure:"mount-on-stat"`
	Timeout       time.Duration `mapstructure:"timeout"`
	Cache         time.Duration `mapstructure:"cache"`
	RetryAttempts int           `mapstructure:"retry-attempts"`
	RetryDelay    time.Duration `mapstructure:"retry-delay"`
	Interruptible bool          `mapstructure:"interruptible"`
}

// BindFlags registers every knob on flagSet and binds it into viper.
func BindFlags(flagSet *pflag.FlagSet) error {
	var err error

	flagSet.IntP("debug", "", 1, "Debug logging verbosity; 0 disables it.")
	if err = viper.BindPFlag("debug", flagSet.Lookup("debug")); err != nil {
		return err
	}

	flagSet.BoolP("mount-on-stat", "", false, "Trigger the root mount on stat of the mountpoint itself.")
	if err = viper.BindPFlag("mount-on-stat", flagSet.Lookup("mount-on-stat")); err != nil {
		return err
	}

	flagSet.DurationP("timeout", "", 30*time.Second, "How long a trigger request waits before failing with a timeout; 0 disables the timer.")
	if err = viper.BindPFlag("timeout", flagSet.Lookup("timeout")); err != nil {
		return err
	}

	flagSet.DurationP("cache", "", 10*time.Minute, "How long a successful trigger stays cached; 0 disables caching.")
	if err = viper.BindPFlag("cache", flagSet.Lookup("cache")); err != nil {
		return err
	}

	flagSet.IntP("retry-attempts", "", 3, "Number of attempts a failing trigger makes in all before giving up.")
	if err = viper.BindPFlag("retry-attempts", flagSet.Lookup("retry-attempts")); err != nil {
		return err
	}

	flagSet.DurationP("retry-delay", "", time.Second, "Delay between retry attempts.")
	if err = viper.BindPFlag("retry-delay", flagSet.Lookup("retry-delay")); err != nil {
		return err
	}

	flagSet.BoolP("interruptible", "", true, "Allow an interrupted accessor to abandon a wait before the daemon responds.")
	if err = viper.BindPFlag("interruptible", flagSet.Lookup("interruptible")); err != nil {
		return err
	}

	return nil
}

// Decode unmarshals v (typically the global viper instance after
// BindFlags and an optional config file have populated it) into a
// Config and validates the result.
func Decode(v *viper.Viper) (Config, error) {
	var c Config
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           &c,
		WeaklyTypedInput: true,
		DecodeHook:       mapstructure.StringToTimeDurationHookFunc(),
	})
	if err != nil {
		return Config{}, err
	}
	if err := dec.Decode(v.AllSettings()); err != nil {
		return Config{}, err
	}
	if err := c.Validate(); err != nil {
		return Config{}, err
	}
	return c, nil
}

// Validate rejects out-of-bounds settings rather than clamping them.
func (c Config) Validate() error {
	if c.Debug < 0 {
		return fmt.Errorf("debug verbosity must not be negative, got %d", c.Debug)
	}
	if c.Timeout < 0 {
		return fmt.Errorf("timeout must not be negative, got %s", c.Timeout)
	}
	if c.Cache < 0 {
		return fmt.Errorf("cache must not be negative, got %s", c.Cache)
	}
	if c.RetryAttempts < 1 {
		return fmt.Errorf("retry-attempts must be at least 1, got %d", c.RetryAttempts)
	}
	if c.RetryDelay < 0 {
		return fmt.Errorf("retry-delay must not be negative, got %s", c.RetryDelay)
	}
	return nil
}

// ToCoordinatorConfig projects the flag-facing Config onto the
// autofs.Config the coordinator actually consumes.
func (c Config) ToCoordinatorConfig() autofs.Config {
	return autofs.Config{
		Debug:         c.Debug,
		MountOnStat:   c.MountOnStat,
		Timeout:       c.Timeout,
		Cache:         c.Cache,
		RetryAttempts: c.RetryAttempts,
		RetryDelay:    c.RetryDelay,
		Interruptible: c.Interruptible,
	}
}
