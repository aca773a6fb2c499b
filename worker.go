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

import (
	"github.com/golang/glog"
)

// regenTask is one unit of regeneration-check work: deciding whether a
// single file recorded in a stamp (see stamp.go) is still up to date.
// regen.go posts one regenTask per stamp entry onto a workerManager and
// collects the verdicts.
type regenTask struct {
	path  string
	check func(path string) (bool, error) // reports whether path is stale
}

type regenResult struct {
	task  regenTask
	stale bool
	err   error
}

// workerManager runs regenTask values across a pool of identical
// goroutines, fed by one more goroutine that Run starts. NeedsRegen and
// CheckKatiStamp size the pool to min(runtime.NumCPU(), number of
// tasks); every worker runs whole checks, and the work is not split by
// kind (CheckKatiStamp checks globs serially before it uses the pool).
// Recipe execution itself stays sequential (see exec.go), since
// parallel recipe execution is out of scope; this pool's only job is
// backing the regeneration check.
type workerManager struct {
	numWorkers int

	taskChan   chan regenTask
	resultChan chan regenResult
	stopChan   chan struct{}
}

func newWorkerManager(numWorkers int) *workerManager {
	if numWorkers < 1 {
		numWorkers = 1
	}
	wm := &workerManager{
		numWorkers: numWorkers,
		taskChan:   make(chan regenTask),
		resultChan: make(chan regenResult),
		stopChan:   make(chan struct{}),
	}
	for i := 0; i < numWorkers; i++ {
		go wm.runWorker()
	}
	return wm
}

func (wm *workerManager) runWorker() {
	for {
		select {
		case t, ok := <-wm.taskChan:
			if !ok {
				return
			}
			stale, err := t.check(t.path)
			glog.V(1).Infof("regen check: %s stale=%t err=%v", t.path, stale, err)
			wm.resultChan <- regenResult{task: t, stale: stale, err: err}
		case <-wm.stopChan:
			return
		}
	}
}

// Run submits every task, waits for every result, and returns the
// first error seen along with whether any task found its path stale.
func (wm *workerManager) Run(tasks []regenTask) (bool, error) {
	go func() {
		for _, t := range tasks {
			select {
			case wm.taskChan <- t:
			case <-wm.stopChan:
				return
			}
		}
	}()

	var anyStale bool
	var firstErr error
	for range tasks {
		r := <-wm.resultChan
		if r.err != nil && firstErr == nil {
			firstErr = r.err
		}
		if r.stale {
			anyStale = true
		}
	}
	close(wm.stopChan)
	return anyStale, firstErr
}
