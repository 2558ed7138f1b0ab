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

// Package cmd is the cobra-based entrypoint: flags bound into viper at
// init, parsed once at RunE time, decoded into a typed Config and
// validated before anything is built.
package cmd

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/stacepellegrino/autofsd/autofs"
	"github.com/stacepellegrino/autofsd/clock"
	"github.com/stacepellegrino/autofsd/config"
	"github.com/stacepellegrino/autofsd/devctl"
	"github.com/stacepellegrino/autofsd/metrics"
	"github.com/stacepellegrino/autofsd/vfsadapter"
)

var (
	bindErr error
	v       = viper.New()
)

var rootCmd = &cobra.Command{
	Use:   "autofsd map-name mount-point",
	Short: "Run the automount trigger coordinator against a single mount",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		if bindErr != nil {
			return bindErr
		}

		cfg, err := config.Decode(v)
		if err != nil {
			return fmt.Errorf("invalid configuration: %w", err)
		}

		return run(cfg, args[0], args[1])
	},
}

func init() {
	if err := config.BindFlags(rootCmd.Flags()); err != nil {
		bindErr = err
		return
	}
	bindErr = v.BindPFlags(rootCmd.Flags())
}

// run wires a Coordinator, Mount, devctl.Device and metrics.Handle
// together and blocks until a shutdown signal arrives. Attaching the
// resulting vfsadapter.Adapter to a live kernel mount is host-specific;
// this binary stops at the adapter boundary.
func run(cfg config.Config, from, on string) error {
	clk := clock.RealClock{}
	coord := autofs.NewCoordinator(cfg.ToCoordinatorConfig(), clk)
	coord.SetMetrics(metrics.NewHandle(prometheus.DefaultRegisterer))

	mount := autofs.NewMount(from, on, "", "", clk)

	device := devctl.NewDevice(coord)
	session := devctl.NewToken()
	if err := device.Open(session); err != nil {
		return fmt.Errorf("opening control device: %w", err)
	}
	defer device.Close()

	adapter := vfsadapter.NewAdapter(coord, mount, func() autofs.SessionID { return session }, cfg.MountOnStat)
	_ = adapter // attaching this to a live kernel mount is host-specific; see package doc.

	fmt.Fprintf(os.Stdout, "autofsd: serving %s on %s\n", from, on)

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	coord.Unmount(mount)
	return nil
}

// Execute runs the root command; called from main.
func Execute() error {
	return rootCmd.Execute()
}
