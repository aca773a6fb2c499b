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
	"strings"

	"github.com/golang/glog"
)

// ast is one parsed statement of a makefile: an assignment, a rule (or
// a line that could still turn out to be either once expanded), an
// include, a conditional block, an export/unexport, a vpath directive,
// or a recipe command line.
type ast interface {
	eval(ev *Evaluator) error
	show()
}

// IgnoreOptionalInclude skips "-include"/"sinclude" directives whose
// resolved filename matches this pattern (a % wildcard, as in
// matchPattern) instead of treating a missing file as a no-op read.
// Mirrors the upstream kati CLI's -ignore_optional_include flag, used
// by the Android build to skip generated .P dependency files that
// don't exist yet on a clean checkout.
var IgnoreOptionalInclude string

type assignAST struct {
	srcpos
	lhs     Value
	rhs     Value
	op      string
	opt     string // "", "override", or "export"
	isFinal bool   // rhs began with a "$=" final-assignment marker
}

func (a *assignAST) eval(ev *Evaluator) error {
	return ev.evalAssign(a)
}

func (a *assignAST) show() {
	glog.Infof("%s %s %s %q", a.opt, a.lhs, a.op, a.rhs)
}

// evalRHS computes the Var that lhs (already resolved to a string)
// should be bound to, honoring make's four assignment flavors and the
// readonly/deprecated/obsolete diagnostics from var.go.
func (a *assignAST) evalRHS(ev *Evaluator, lhs string) (Var, error) {
	if err := checkVarDiagnostic(lhs, a.srcpos); err != nil {
		return nil, err
	}
	if readonlyVars[lhs] {
		return nil, a.error(errReadonlyVar{name: lhs})
	}
	origin := "file"
	if a.opt == "override" {
		origin = "override"
	}
	switch a.op {
	case ":=":
		buf := newEbuf()
		err := a.rhs.Eval(buf, ev)
		if err != nil {
			buf.release()
			return nil, err
		}
		v := &simpleVar{value: []string{buf.String()}, origin: origin}
		buf.release()
		return v, nil
	case "+=":
		prev := ev.lookupVarInCurrentScope(lhs)
		if prev.IsDefined() {
			return prev.AppendVar(ev, a.rhs)
		}
		return &recursiveVar{expr: a.rhs, origin: origin}, nil
	case "?=":
		prev := ev.lookupVarInCurrentScope(lhs)
		if prev.IsDefined() {
			return prev, nil
		}
		return &recursiveVar{expr: a.rhs, origin: origin}, nil
	case "=":
		return &recursiveVar{expr: a.rhs, origin: origin}, nil
	default:
		return nil, a.errorf("unknown assignment operator %q", a.op)
	}
}

// maybeRuleAST is a line that parses as a rule once its variable
// references are expanded, but could still turn out to be a plain
// assignment (e.g. "$(foo) = bar" where $(foo) expands to a name with
// no ':').
type maybeRuleAST struct {
	srcpos
	isRule bool
	expr   Value
	assign *assignAST
	semi   []byte
}

func (a *maybeRuleAST) eval(ev *Evaluator) error {
	return ev.evalMaybeRule(a)
}

func (a *maybeRuleAST) show() {
	glog.Info(a.expr)
}

type includeAST struct {
	srcpos
	expr string
	op   string // "include" or "-include"
}

func (a *includeAST) eval(ev *Evaluator) error {
	return ev.evalInclude(a)
}

func (a *includeAST) show() {
	glog.Infof("include %s", a.expr)
}

type ifAST struct {
	srcpos
	op         string // "ifdef", "ifndef", "ifeq", "ifneq"
	lhs        Value
	rhs        Value // only for ifeq/ifneq
	trueStmts  []ast
	falseStmts []ast
}

func (a *ifAST) eval(ev *Evaluator) error {
	return ev.evalIf(a)
}

func (a *ifAST) show() {
	glog.Infof("if %s", a.op)
}

type exportAST struct {
	srcpos
	expr     []byte
	hasEqual bool
	export   bool
}

func (a *exportAST) eval(ev *Evaluator) error {
	return ev.evalExport(a)
}

func (a *exportAST) show() {
	glog.Infof("export=%t %s", a.export, a.expr)
}

type vpathAST struct {
	srcpos
	expr Value
}

func (a *vpathAST) eval(ev *Evaluator) error {
	return ev.evalVpath(a)
}

func (a *vpathAST) show() {
	glog.Infof("vpath %s", a.expr.String())
}

type commandAST struct {
	srcpos
	cmd string
}

func (a *commandAST) eval(ev *Evaluator) error {
	return ev.evalCommand(a)
}

func (a *commandAST) show() {
	glog.Infof("\t%s", strings.Replace(a.cmd, "\n", `\n`, -1))
}

// vpath is a single "vpath PATTERN DIRS" binding.
type vpath struct {
	pattern string
	dirs    []string
}

// searchPaths is the VPATH/vpath search state accumulated while
// evaluating a makefile, consulted by the dependency builder when an
// input file isn't found relative to the working directory.
type searchPaths struct {
	vpaths []vpath
	dirs   []string // from the VPATH variable
}

// exists reports whether target can be found either directly, under a
// vpath directive whose pattern matches it, or under a VPATH
// directory, returning the resolved path when found elsewhere.
func (sp searchPaths) exists(target string) (string, bool) {
	if exists(target) {
		return target, true
	}
	for _, vp := range sp.vpaths {
		if !matchPattern(vp.pattern, target) {
			continue
		}
		for _, dir := range vp.dirs {
			cand := filepathJoin(dir, target)
			if exists(cand) {
				return cand, true
			}
		}
	}
	for _, dir := range sp.dirs {
		cand := filepathJoin(dir, target)
		if exists(cand) {
			return cand, true
		}
	}
	return "", false
}
