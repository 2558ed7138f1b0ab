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
	"io"
	"log"
	"os"
)

// Return a logger configured based on the coordinator's debug verbosity
// knob. Verbosity zero discards everything.
func getLogger(debug int) *log.Logger {
	var writer io.Writer = io.Discard
	if debug >= 1 {
		writer = os.Stderr
	}

	return log.New(writer, "autofs: ", log.LstdFlags)
}
