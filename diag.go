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
	"sort"
)

// diagID names one independently toggleable lint, matching a
// --warn_<id>/--werror_<id> flag pair on the command line.
type diagID string

const (
	// DiagPhonyLooksReal fires when a .PHONY target's name also looks
	// like a path (contains a "/" or a "." extension), the usual sign
	// of a typo rather than an intentional alias.
	DiagPhonyLooksReal diagID = "phony_looks_real"
	// DiagRealDependsOnPhony fires when a non-phony target depends on
	// a phony one, which defeats the point of the phony target's
	// always-out-of-date semantics.
	DiagRealDependsOnPhony diagID = "real_depends_on_phony"
	// DiagWritableOutside fires when a rule's output falls outside the
	// configured writable-output allowlist.
	DiagWritableOutside diagID = "writable_outside"
	// DiagNoRuleBody fires when a target has neither a recipe nor any
	// prerequisites — most likely a stray line in the makefile.
	DiagNoRuleBody diagID = "no_rule_body"
	// DiagFindEmulator fires when a $(shell ...) command looks like a
	// find/findleaves invocation but the in-process find emulator
	// (pathutil.go) can't serve it, so it falls back to forking a real
	// shell.
	DiagFindEmulator diagID = "find_emulator"
)

// diagState is the enabled/promoted-to-error pair recorded per diagID.
type diagState struct {
	warn  bool
	error bool
}

// diagRegistry backs the --warn_*/--werror_* flag family: each lint in
// the dependency builder (see dep.go) reports through diagf rather
// than calling warn directly, so every lint is independently
// toggleable instead of being bundled behind a handful of booleans.
var diagRegistry = map[diagID]*diagState{
	DiagPhonyLooksReal:     {warn: true},
	DiagRealDependsOnPhony: {warn: true},
	DiagWritableOutside:    {warn: false},
	DiagNoRuleBody:         {warn: false},
	DiagFindEmulator:       {warn: false},
}

// DiagNames lists every registered diagID as a plain string, in a
// stable order, so cmd/kati can register one --warn_<name>/
// --werror_<name> flag pair per lint without needing to know the
// unexported diagID type.
func DiagNames() []string {
	names := make([]string, 0, len(diagRegistry))
	for id := range diagRegistry {
		names = append(names, string(id))
	}
	sort.Strings(names)
	return names
}

// SetWarnEnabled implements --warn_<name>, and SetWerrorEnabled
// implements --werror_<name>; cmd/kati registers one flag pair per
// name from DiagNames at startup and calls these from the flag's
// callback. Both are no-ops for an unrecognized name.
func SetWarnEnabled(name string, v bool) {
	if st := diagRegistry[diagID(name)]; st != nil {
		st.warn = v
	}
}

func SetWerrorEnabled(name string, v bool) {
	if st := diagRegistry[diagID(name)]; st != nil {
		st.error = v
	}
}

// diagf reports a lint at pos: silent if the lint is disabled, a
// warning if enabled, or a fatal error if promoted via --werror_<id>.
// Callers that can continue past a disabled/warned lint should ignore
// a nil error return; a non-nil error means the lint was promoted to
// fatal and the caller must propagate it.
func diagf(id diagID, pos srcpos, format string, a ...interface{}) error {
	st := diagRegistry[id]
	if st == nil || (!st.warn && !st.error) {
		return nil
	}
	msg := fmt.Sprintf(format, a...)
	if st.error {
		return fmt.Errorf("%s:%d: *** %s", pos.filename, pos.lineno, msg)
	}
	warn(pos, "%s", msg)
	return nil
}
