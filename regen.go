// Copyright 2015 Google Inc. All rights reserved
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package kati

import "runtime"

// NeedsRegen reports whether g, as loaded from a cache or a saved
// ninja/GOB/JSON snapshot, is stale with respect to the makefiles it
// was built from — i.e. whether cmd/kati (or ninja, via its
// build.ninja regeneration rule) needs to re-run kati before building.
// Every entry in g's stamp (see stamp.go) is checked concurrently
// across a small worker pool; a single missing or changed file is
// enough to call the whole graph stale.
func NeedsRegen(g *DepGraph) (bool, error) {
	mks := g.accessedMks
	if len(mks) == 0 {
		return false, nil
	}

	tasks := make([]regenTask, 0, len(mks))
	for _, mk := range mks {
		mk := mk
		tasks = append(tasks, regenTask{
			path: mk.Filename,
			check: func(string) (bool, error) {
				fresh, err := stampFresh(mk)
				return !fresh, err
			},
		})
	}

	numWorkers := runtime.NumCPU()
	if numWorkers > len(tasks) {
		numWorkers = len(tasks)
	}
	wm := newWorkerManager(numWorkers)
	return wm.Run(tasks)
}
