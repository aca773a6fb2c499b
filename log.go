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
	"fmt"
	"os"

	"github.com/golang/glog"
)

// gitVersion is stamped into generated build.ninja/ninja.sh headers.
// Upstream kati sets this via -ldflags at release time; unset here
// since this tree isn't built through that release process.
var gitVersion = "unknown"

// DryRunFlag mirrors make's -n: commands are printed but not executed.
var DryRunFlag bool

// ColorWarningsFlag ANSI-colors the warning:/error: labels emitted by
// warnAt/errorAt whenever it is set; the output is not checked for
// being a terminal.
var ColorWarningsFlag bool

// LogFlag/StatsFlag/PeriodicStatsFlag/EvalStatsFlag gate logf/logStats
// and the per-directive timing table in stats.go, mirroring cmd/kati's
// -kati_log/-kati_stats/-kati_periodic_stats/-kati_eval_stats flags.
var (
	LogFlag           bool
	StatsFlag         bool
	PeriodicStatsFlag bool
	EvalStatsFlag     bool
)

// FatalSink lets callers (tests, embedders) intercept a fatal
// evaluation error instead of the process calling os.Exit. Production
// use leaves this nil, in which case errorAt exits the process like
// the original CLI.
var FatalSink func(error)

func logf(f string, a ...interface{}) {
	if !LogFlag {
		return
	}
	glog.V(1).Infof(f, a...)
}

func logStats(f string, a ...interface{}) {
	if !LogFlag && !StatsFlag {
		return
	}
	glog.Infof("*kati stats*: "+f, a...)
}

func warnColor(label string) string {
	if !ColorWarningsFlag {
		return label
	}
	return "\x1b[33m" + label + "\x1b[0m"
}

func errColor(label string) string {
	if !ColorWarningsFlag {
		return label
	}
	return "\x1b[31m" + label + "\x1b[0m"
}

// warnAt prints a make-style "file:line: warning: ..." diagnostic.
// Non-fatal; evaluation continues.
func warnAt(filename string, lineno int, f string, a ...interface{}) {
	msg := fmt.Sprintf(f, a...)
	fmt.Fprintf(os.Stderr, "%s:%d: %s %s\n", filename, lineno, warnColor("warning:"), msg)
	glog.Warningf("%s:%d: %s", filename, lineno, msg)
}

// warnNoPrefixAt prints a diagnostic without the "warning:" label, used
// for make's own `$(warning ...)` function.
func warnNoPrefixAt(filename string, lineno int, f string, a ...interface{}) {
	msg := fmt.Sprintf(f, a...)
	fmt.Fprintf(os.Stderr, "%s:%d: %s\n", filename, lineno, msg)
}

// warn and warnNoPrefix are srcpos-taking conveniences for call sites
// that already have a srcpos in hand (the eval/parse layer) rather
// than a bare filename/lineno pair.
func warn(pos srcpos, f string, a ...interface{}) {
	warnAt(pos.filename, pos.lineno, f, a...)
}

func warnNoPrefix(pos srcpos, f string, a ...interface{}) {
	warnNoPrefixAt(pos.filename, pos.lineno, f, a...)
}

// errorAt reports a fatal evaluation error at a location and stops.
// If FatalSink is set (tests), it records the error and returns
// instead of exiting the process.
func errorAt(filename string, lineno int, f string, a ...interface{}) {
	err := fmt.Errorf(f, a...)
	fmt.Fprintf(os.Stderr, "%s:%d: %s %v\n", filename, lineno, errColor("*** error:"), err)
	fatal(EvalError{Filename: filename, Lineno: lineno, Err: err})
}

// fatalAt is an alias of errorAt kept for call sites that already hold
// a built error (e.g. propagated from a nested Eval).
func fatalAt(filename string, lineno int, err error) {
	fmt.Fprintf(os.Stderr, "%s:%d: %s %v\n", filename, lineno, errColor("*** error:"), err)
	fatal(EvalError{Filename: filename, Lineno: lineno, Err: err})
}

func fatal(err error) {
	if FatalSink != nil {
		FatalSink(err)
		return
	}
	DumpStats()
	os.Exit(2)
}
