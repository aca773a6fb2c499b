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
	"bytes"
	"fmt"
	"io"
	"io/ioutil"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"
)

// Func is a make builtin function.
// http://www.gnu.org/software/make/manual/make.html#Functions
type Func interface {
	// Arity is the function's max arity; 0 means varargs. ','  past
	// arity is not treated as an argument separator.
	Arity() int

	// AddArg adds v as an argument. The first argument is always the
	// literal function-head text ("(funcname" or "{funcname").
	AddArg(Value)

	Value
}

var funcMap = map[string]func() Func{
	"patsubst":   func() Func { return &funcPatsubst{} },
	"strip":      func() Func { return &funcStrip{} },
	"subst":      func() Func { return &funcSubst{} },
	"findstring": func() Func { return &funcFindstring{} },
	"filter":     func() Func { return &funcFilter{} },
	"filter-out": func() Func { return &funcFilterOut{} },
	"sort":       func() Func { return &funcSort{} },
	"word":       func() Func { return &funcWord{} },
	"wordlist":   func() Func { return &funcWordlist{} },
	"words":      func() Func { return &funcWords{} },
	"firstword":  func() Func { return &funcFirstword{} },
	"lastword":   func() Func { return &funcLastword{} },

	"join":      func() Func { return &funcJoin{} },
	"wildcard":  func() Func { return &funcWildcard{} },
	"dir":       func() Func { return &funcDir{} },
	"notdir":    func() Func { return &funcNotdir{} },
	"suffix":    func() Func { return &funcSuffix{} },
	"basename":  func() Func { return &funcBasename{} },
	"addsuffix": func() Func { return &funcAddsuffix{} },
	"addprefix": func() Func { return &funcAddprefix{} },
	"realpath":  func() Func { return &funcRealpath{} },
	"abspath":   func() Func { return &funcAbspath{} },

	"if":  func() Func { return &funcIf{} },
	"and": func() Func { return &funcAnd{} },
	"or":  func() Func { return &funcOr{} },

	"value": func() Func { return &funcValue{} },

	"eval": func() Func { return &funcEval{} },

	"shell":   func() Func { return &funcShell{} },
	"call":    func() Func { return &funcCall{} },
	"foreach": func() Func { return &funcForeach{} },

	"origin":  func() Func { return &funcOrigin{} },
	"flavor":  func() Func { return &funcFlavor{} },
	"info":    func() Func { return &funcInfo{} },
	"warning": func() Func { return &funcWarning{} },
	"error":   func() Func { return &funcError{} },

	"file": func() Func { return &funcFile{} },

	"KATI_deprecated_var":   func() Func { return &funcDeprecatedVar{} },
	"KATI_obsolete_var":     func() Func { return &funcObsoleteVar{} },
	"KATI_deprecate_export": func() Func { return &funcDeprecateExport{} },
	"KATI_obsolete_export":  func() Func { return &funcObsoleteExport{} },
	"KATI_profile_makefile": func() Func { return &funcProfileMakefile{} },
}

func assertArity(name string, req, n int) error {
	if n-1 < req {
		return fmt.Errorf("*** insufficient number of arguments (%d) to function `%s'.", n-1, name)
	}
	return nil
}

func numericValueForFunc(v string) (int, bool) {
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return n, false
	}
	return n, true
}

func formatCommandOutput(out []byte) []byte {
	out = bytes.TrimRight(out, "\n")
	out = bytes.Replace(out, []byte{'\n'}, []byte{' '}, -1)
	return out
}

// fclosure is the common argument-list storage embedded by every Func
// implementation. args[0] holds the literal function-head text.
type fclosure struct {
	args []Value
}

func (c *fclosure) AddArg(v Value) {
	c.args = append(c.args, v)
}

func (c *fclosure) String() string {
	if len(c.args) == 0 {
		return ""
	}
	arg0 := c.args[0].String()
	if arg0 == "" {
		return ""
	}
	cp := closeParen(arg0[0])
	if cp == 0 {
		return arg0
	}
	var args []string
	for _, arg := range c.args[1:] {
		args = append(args, arg.String())
	}
	return fmt.Sprintf("$%s %s%c", arg0, strings.Join(args, ","), cp)
}

func (c *fclosure) serialize() serializableVar {
	r := serializableVar{Type: "func"}
	for _, a := range c.args {
		r.Children = append(r.Children, a.serialize())
	}
	return r
}

func (c *fclosure) dump(d *dumpbuf) {
	d.Byte(valueTypeFunc)
	d.Int(len(c.args))
	for _, a := range c.args {
		a.dump(d)
	}
}

// http://www.gnu.org/software/make/manual/make.html#Text-Functions
type funcSubst struct{ fclosure }

func (f *funcSubst) Arity() int { return 3 }
func (f *funcSubst) Eval(w evalWriter, ev *Evaluator) error {
	if err := assertArity("subst", 3, len(f.args)); err != nil {
		return ev.error(err)
	}
	abuf := newEbuf()
	defer abuf.release()
	fargs, err := ev.args(abuf, f.args[1:]...)
	if err != nil {
		return err
	}
	t := time.Now()
	from, to, text := fargs[0], fargs[1], fargs[2]
	w.Write(bytes.Replace(text, from, to, -1))
	stats.add("funcbody", "subst", t)
	return nil
}

type funcPatsubst struct{ fclosure }

func (f *funcPatsubst) Arity() int { return 3 }
func (f *funcPatsubst) Eval(w evalWriter, ev *Evaluator) error {
	if err := assertArity("patsubst", 3, len(f.args)); err != nil {
		return ev.error(err)
	}
	abuf := newEbuf()
	defer abuf.release()
	fargs, err := ev.args(abuf, f.args[1:]...)
	if err != nil {
		return err
	}
	t := time.Now()
	pat, repl := fargs[0], fargs[1]
	ws := newWordScanner(fargs[2])
	space := false
	for ws.Scan() {
		if space {
			writeByte(w, ' ')
		}
		pre, subst, post := substPatternBytes(pat, repl, ws.Bytes())
		w.Write(pre)
		if subst != nil {
			w.Write(subst)
			w.Write(post)
		}
		space = true
	}
	stats.add("funcbody", "patsubst", t)
	return nil
}

type funcStrip struct{ fclosure }

func (f *funcStrip) Arity() int { return 1 }
func (f *funcStrip) Eval(w evalWriter, ev *Evaluator) error {
	if err := assertArity("strip", 1, len(f.args)); err != nil {
		return ev.error(err)
	}
	abuf := newEbuf()
	defer abuf.release()
	err := f.args[1].Eval(abuf, ev)
	if err != nil {
		return err
	}
	t := time.Now()
	ws := newWordScanner(abuf.Bytes())
	space := false
	for ws.Scan() {
		if space {
			writeByte(w, ' ')
		}
		w.Write(ws.Bytes())
		space = true
	}
	stats.add("funcbody", "strip", t)
	return nil
}

type funcFindstring struct{ fclosure }

func (f *funcFindstring) Arity() int { return 2 }
func (f *funcFindstring) Eval(w evalWriter, ev *Evaluator) error {
	if err := assertArity("findstring", 2, len(f.args)); err != nil {
		return ev.error(err)
	}
	abuf := newEbuf()
	defer abuf.release()
	fargs, err := ev.args(abuf, f.args[1:]...)
	if err != nil {
		return err
	}
	t := time.Now()
	find, text := fargs[0], fargs[1]
	if bytes.Index(text, find) >= 0 {
		w.Write(find)
	}
	stats.add("funcbody", "findstring", t)
	return nil
}

type funcFilter struct{ fclosure }

func (f *funcFilter) Arity() int { return 2 }
func (f *funcFilter) Eval(w evalWriter, ev *Evaluator) error {
	if err := assertArity("filter", 2, len(f.args)); err != nil {
		return ev.error(err)
	}
	abuf := newEbuf()
	defer abuf.release()
	fargs, err := ev.args(abuf, f.args[1:]...)
	if err != nil {
		return err
	}
	t := time.Now()
	var patterns [][]byte
	ws := newWordScanner(fargs[0])
	for ws.Scan() {
		patterns = append(patterns, ws.Bytes())
	}
	ws = newWordScanner(fargs[1])
	sw := ssvWriter{Writer: w}
	for ws.Scan() {
		text := ws.Bytes()
		for _, pat := range patterns {
			if matchPatternBytes(pat, text) {
				sw.writeWord(text)
				break
			}
		}
	}
	stats.add("funcbody", "filter", t)
	return nil
}

type funcFilterOut struct{ fclosure }

func (f *funcFilterOut) Arity() int { return 2 }
func (f *funcFilterOut) Eval(w evalWriter, ev *Evaluator) error {
	if err := assertArity("filter-out", 2, len(f.args)); err != nil {
		return ev.error(err)
	}
	abuf := newEbuf()
	defer abuf.release()
	fargs, err := ev.args(abuf, f.args[1:]...)
	if err != nil {
		return err
	}
	t := time.Now()
	var patterns [][]byte
	ws := newWordScanner(fargs[0])
	for ws.Scan() {
		patterns = append(patterns, ws.Bytes())
	}
	ws = newWordScanner(fargs[1])
	sw := ssvWriter{Writer: w}
Loop:
	for ws.Scan() {
		text := ws.Bytes()
		for _, pat := range patterns {
			if matchPatternBytes(pat, text) {
				continue Loop
			}
		}
		sw.writeWord(text)
	}
	stats.add("funcbody", "filter-out", t)
	return nil
}

type funcSort struct{ fclosure }

func (f *funcSort) Arity() int { return 1 }
func (f *funcSort) Eval(w evalWriter, ev *Evaluator) error {
	if err := assertArity("sort", 1, len(f.args)); err != nil {
		return ev.error(err)
	}
	abuf := newEbuf()
	defer abuf.release()
	err := f.args[1].Eval(abuf, ev)
	if err != nil {
		return err
	}
	t := time.Now()
	ws := newWordScanner(abuf.Bytes())
	var toks []string
	for ws.Scan() {
		toks = append(toks, string(ws.Bytes()))
	}
	sort.Strings(toks)

	var prev string
	for i, tok := range toks {
		if i > 0 && prev == tok {
			continue
		}
		if i > 0 {
			writeByte(w, ' ')
		}
		io.WriteString(w, tok)
		prev = tok
	}
	stats.add("funcbody", "sort", t)
	return nil
}

type funcWord struct{ fclosure }

func (f *funcWord) Arity() int { return 2 }
func (f *funcWord) Eval(w evalWriter, ev *Evaluator) error {
	if err := assertArity("word", 2, len(f.args)); err != nil {
		return ev.error(err)
	}
	abuf := newEbuf()
	defer abuf.release()
	fargs, err := ev.args(abuf, f.args[1:]...)
	if err != nil {
		return err
	}
	t := time.Now()
	v := string(trimSpaceBytes(fargs[0]))
	index, ok := numericValueForFunc(v)
	if !ok {
		return ev.errorf(`*** non-numeric first argument to "word" function: %q.`, v)
	}
	if index == 0 {
		return ev.errorf(`*** first argument to "word" function must be greater than 0.`)
	}
	ws := newWordScanner(fargs[1])
	for ws.Scan() {
		index--
		if index == 0 {
			w.Write(ws.Bytes())
			break
		}
	}
	stats.add("funcbody", "word", t)
	return nil
}

type funcWordlist struct{ fclosure }

func (f *funcWordlist) Arity() int { return 3 }
func (f *funcWordlist) Eval(w evalWriter, ev *Evaluator) error {
	if err := assertArity("wordlist", 3, len(f.args)); err != nil {
		return ev.error(err)
	}
	abuf := newEbuf()
	defer abuf.release()
	fargs, err := ev.args(abuf, f.args[1:]...)
	if err != nil {
		return err
	}
	t := time.Now()
	v := string(trimSpaceBytes(fargs[0]))
	si, ok := numericValueForFunc(v)
	if !ok {
		return ev.errorf(`*** non-numeric first argument to "wordlist" function: %q.`, v)
	}
	if si == 0 {
		return ev.errorf(`*** invalid first argument to "wordlist" function: %s`, f.args[1])
	}
	v = string(trimSpaceBytes(fargs[1]))
	ei, ok := numericValueForFunc(v)
	if !ok {
		return ev.errorf(`*** non-numeric second argument to "wordlist" function: %q.`, v)
	}

	ws := newWordScanner(fargs[2])
	i := 0
	sw := ssvWriter{Writer: w}
	for ws.Scan() {
		i++
		if si <= i && i <= ei {
			sw.writeWord(ws.Bytes())
		}
	}
	stats.add("funcbody", "wordlist", t)
	return nil
}

type funcWords struct{ fclosure }

func (f *funcWords) Arity() int { return 1 }
func (f *funcWords) Eval(w evalWriter, ev *Evaluator) error {
	if err := assertArity("words", 1, len(f.args)); err != nil {
		return ev.error(err)
	}
	abuf := newEbuf()
	defer abuf.release()
	err := f.args[1].Eval(abuf, ev)
	if err != nil {
		return err
	}
	t := time.Now()
	ws := newWordScanner(abuf.Bytes())
	n := 0
	for ws.Scan() {
		n++
	}
	io.WriteString(w, strconv.Itoa(n))
	stats.add("funcbody", "words", t)
	return nil
}

type funcFirstword struct{ fclosure }

func (f *funcFirstword) Arity() int { return 1 }
func (f *funcFirstword) Eval(w evalWriter, ev *Evaluator) error {
	if err := assertArity("firstword", 1, len(f.args)); err != nil {
		return ev.error(err)
	}
	abuf := newEbuf()
	defer abuf.release()
	err := f.args[1].Eval(abuf, ev)
	if err != nil {
		return err
	}
	t := time.Now()
	ws := newWordScanner(abuf.Bytes())
	if ws.Scan() {
		w.Write(ws.Bytes())
	}
	stats.add("funcbody", "firstword", t)
	return nil
}

type funcLastword struct{ fclosure }

func (f *funcLastword) Arity() int { return 1 }
func (f *funcLastword) Eval(w evalWriter, ev *Evaluator) error {
	if err := assertArity("lastword", 1, len(f.args)); err != nil {
		return ev.error(err)
	}
	abuf := newEbuf()
	defer abuf.release()
	err := f.args[1].Eval(abuf, ev)
	if err != nil {
		return err
	}
	t := time.Now()
	ws := newWordScanner(abuf.Bytes())
	var lw []byte
	for ws.Scan() {
		lw = ws.Bytes()
	}
	if lw != nil {
		w.Write(lw)
	}
	stats.add("funcbody", "lastword", t)
	return nil
}

// https://www.gnu.org/software/make/manual/html_node/File-Name-Functions.html
type funcJoin struct{ fclosure }

func (f *funcJoin) Arity() int { return 2 }
func (f *funcJoin) Eval(w evalWriter, ev *Evaluator) error {
	if err := assertArity("join", 2, len(f.args)); err != nil {
		return ev.error(err)
	}
	abuf := newEbuf()
	defer abuf.release()
	fargs, err := ev.args(abuf, f.args[1:]...)
	if err != nil {
		return err
	}
	t := time.Now()
	ws1 := newWordScanner(fargs[0])
	ws2 := newWordScanner(fargs[1])
	sw := ssvWriter{Writer: w}
	for {
		w1, w2 := ws1.Scan(), ws2.Scan()
		if !w1 && !w2 {
			break
		}
		sw.writeWord(ws1.Bytes())
		w.Write(ws2.Bytes())
	}
	stats.add("funcbody", "join", t)
	return nil
}

type funcWildcard struct{ fclosure }

func (f *funcWildcard) Arity() int { return 1 }
func (f *funcWildcard) Eval(w evalWriter, ev *Evaluator) error {
	if err := assertArity("wildcard", 1, len(f.args)); err != nil {
		return ev.error(err)
	}
	abuf := newEbuf()
	defer abuf.release()
	err := f.args[1].Eval(abuf, ev)
	if err != nil {
		return err
	}
	te := traceEvent.begin("wildcard", tmpval(abuf.Bytes()), traceEventMain)
	defer traceEvent.end(te)
	if ev.avoidIO && !UseWildcardCache {
		ev.hasIO = true
		io.WriteString(w, "$(/bin/ls -d ")
		w.Write(abuf.Bytes())
		io.WriteString(w, " 2> /dev/null)")
		return nil
	}
	t := time.Now()
	ws := newWordScanner(abuf.Bytes())
	sw := ssvWriter{Writer: w}
	for ws.Scan() {
		pat := string(ws.Bytes())
		err := wildcard(&sw, pat)
		if err != nil {
			return err
		}
	}
	stats.add("funcbody", "wildcard", t)
	return nil
}

type funcDir struct{ fclosure }

func (f *funcDir) Arity() int { return 1 }
func (f *funcDir) Eval(w evalWriter, ev *Evaluator) error {
	if err := assertArity("dir", 1, len(f.args)); err != nil {
		return ev.error(err)
	}
	abuf := newEbuf()
	defer abuf.release()
	err := f.args[1].Eval(abuf, ev)
	if err != nil {
		return err
	}
	t := time.Now()
	ws := newWordScanner(abuf.Bytes())
	sw := ssvWriter{Writer: w}
	for ws.Scan() {
		name := string(ws.Bytes())
		if name == "/" {
			sw.writeWordString(name)
			continue
		}
		sw.writeWordString(filepath.Dir(name) + string(filepath.Separator))
	}
	stats.add("funcbody", "dir", t)
	return nil
}

type funcNotdir struct{ fclosure }

func (f *funcNotdir) Arity() int { return 1 }
func (f *funcNotdir) Eval(w evalWriter, ev *Evaluator) error {
	if err := assertArity("notdir", 1, len(f.args)); err != nil {
		return ev.error(err)
	}
	abuf := newEbuf()
	defer abuf.release()
	err := f.args[1].Eval(abuf, ev)
	if err != nil {
		return err
	}
	t := time.Now()
	ws := newWordScanner(abuf.Bytes())
	sw := ssvWriter{Writer: w}
	for ws.Scan() {
		name := string(ws.Bytes())
		if name == string(filepath.Separator) {
			sw.writeWordString("")
			continue
		}
		sw.writeWordString(filepath.Base(name))
	}
	stats.add("funcbody", "notdir", t)
	return nil
}

type funcSuffix struct{ fclosure }

func (f *funcSuffix) Arity() int { return 1 }
func (f *funcSuffix) Eval(w evalWriter, ev *Evaluator) error {
	if err := assertArity("suffix", 1, len(f.args)); err != nil {
		return ev.error(err)
	}
	abuf := newEbuf()
	defer abuf.release()
	err := f.args[1].Eval(abuf, ev)
	if err != nil {
		return err
	}
	t := time.Now()
	ws := newWordScanner(abuf.Bytes())
	sw := ssvWriter{Writer: w}
	for ws.Scan() {
		tok := string(ws.Bytes())
		if e := filepath.Ext(tok); len(e) > 0 {
			sw.writeWordString(e)
		}
	}
	stats.add("funcbody", "suffix", t)
	return nil
}

type funcBasename struct{ fclosure }

func (f *funcBasename) Arity() int { return 1 }
func (f *funcBasename) Eval(w evalWriter, ev *Evaluator) error {
	if err := assertArity("basename", 1, len(f.args)); err != nil {
		return ev.error(err)
	}
	abuf := newEbuf()
	defer abuf.release()
	err := f.args[1].Eval(abuf, ev)
	if err != nil {
		return err
	}
	t := time.Now()
	ws := newWordScanner(abuf.Bytes())
	sw := ssvWriter{Writer: w}
	for ws.Scan() {
		sw.writeWordString(stripExt(string(ws.Bytes())))
	}
	stats.add("funcbody", "basename", t)
	return nil
}

type funcAddsuffix struct{ fclosure }

func (f *funcAddsuffix) Arity() int { return 2 }
func (f *funcAddsuffix) Eval(w evalWriter, ev *Evaluator) error {
	if err := assertArity("addsuffix", 2, len(f.args)); err != nil {
		return ev.error(err)
	}
	abuf := newEbuf()
	defer abuf.release()
	fargs, err := ev.args(abuf, f.args[1:]...)
	if err != nil {
		return err
	}
	t := time.Now()
	suf := fargs[0]
	ws := newWordScanner(fargs[1])
	sw := ssvWriter{Writer: w}
	for ws.Scan() {
		sw.writeWord(ws.Bytes())
		w.Write(suf)
	}
	stats.add("funcbody", "addsuffix", t)
	return nil
}

type funcAddprefix struct{ fclosure }

func (f *funcAddprefix) Arity() int { return 2 }
func (f *funcAddprefix) Eval(w evalWriter, ev *Evaluator) error {
	if err := assertArity("addprefix", 2, len(f.args)); err != nil {
		return ev.error(err)
	}
	abuf := newEbuf()
	defer abuf.release()
	fargs, err := ev.args(abuf, f.args[1:]...)
	if err != nil {
		return err
	}
	t := time.Now()
	pre := fargs[0]
	ws := newWordScanner(fargs[1])
	sw := ssvWriter{Writer: w}
	for ws.Scan() {
		sw.writeWord(pre)
		w.Write(ws.Bytes())
	}
	stats.add("funcbody", "addprefix", t)
	return nil
}

type funcRealpath struct{ fclosure }

func (f *funcRealpath) Arity() int { return 1 }
func (f *funcRealpath) Eval(w evalWriter, ev *Evaluator) error {
	if err := assertArity("realpath", 1, len(f.args)); err != nil {
		return ev.error(err)
	}
	if ev.avoidIO {
		io.WriteString(w, "KATI_TODO(realpath)")
		ev.hasIO = true
		return nil
	}
	abuf := newEbuf()
	defer abuf.release()
	err := f.args[1].Eval(abuf, ev)
	if err != nil {
		return err
	}
	t := time.Now()
	ws := newWordScanner(abuf.Bytes())
	sw := ssvWriter{Writer: w}
	for ws.Scan() {
		name := string(ws.Bytes())
		name, err := filepath.Abs(name)
		if err != nil {
			logf("abs: %v", err)
			continue
		}
		name, err = filepath.EvalSymlinks(name)
		if err != nil {
			logf("realpath: %v", err)
			continue
		}
		sw.writeWordString(name)
	}
	stats.add("funcbody", "realpath", t)
	return nil
}

type funcAbspath struct{ fclosure }

func (f *funcAbspath) Arity() int { return 1 }
func (f *funcAbspath) Eval(w evalWriter, ev *Evaluator) error {
	if err := assertArity("abspath", 1, len(f.args)); err != nil {
		return ev.error(err)
	}
	abuf := newEbuf()
	defer abuf.release()
	err := f.args[1].Eval(abuf, ev)
	if err != nil {
		return err
	}
	t := time.Now()
	ws := newWordScanner(abuf.Bytes())
	sw := ssvWriter{Writer: w}
	for ws.Scan() {
		name, err := filepath.Abs(string(ws.Bytes()))
		if err != nil {
			logf("abs: %v", err)
			continue
		}
		sw.writeWordString(name)
	}
	stats.add("funcbody", "abspath", t)
	return nil
}

// http://www.gnu.org/software/make/manual/make.html#Conditional-Functions
type funcIf struct{ fclosure }

func (f *funcIf) Arity() int { return 3 }
func (f *funcIf) Eval(w evalWriter, ev *Evaluator) error {
	if err := assertArity("if", 2, len(f.args)); err != nil {
		return ev.error(err)
	}
	abuf := newEbuf()
	err := f.args[1].Eval(abuf, ev)
	if err != nil {
		abuf.release()
		return err
	}
	cond := len(abuf.Bytes()) != 0
	abuf.release()
	if cond {
		return f.args[2].Eval(w, ev)
	}
	if len(f.args) > 3 {
		return f.args[3].Eval(w, ev)
	}
	return nil
}

type funcAnd struct{ fclosure }

func (f *funcAnd) Arity() int { return 0 }
func (f *funcAnd) Eval(w evalWriter, ev *Evaluator) error {
	abuf := newEbuf()
	defer abuf.release()
	var cond []byte
	for _, arg := range f.args[1:] {
		abuf.Reset()
		err := arg.Eval(abuf, ev)
		if err != nil {
			return err
		}
		cond = abuf.Bytes()
		if len(cond) == 0 {
			return nil
		}
	}
	w.Write(cond)
	return nil
}

type funcOr struct{ fclosure }

func (f *funcOr) Arity() int { return 0 }
func (f *funcOr) Eval(w evalWriter, ev *Evaluator) error {
	abuf := newEbuf()
	defer abuf.release()
	for _, arg := range f.args[1:] {
		abuf.Reset()
		err := arg.Eval(abuf, ev)
		if err != nil {
			return err
		}
		cond := abuf.Bytes()
		if len(cond) != 0 {
			w.Write(cond)
			return nil
		}
	}
	return nil
}

// http://www.gnu.org/software/make/manual/make.html#Shell-Function
type funcShell struct{ fclosure }

func (f *funcShell) Arity() int { return 1 }

// hasNoIoInShellScript special-cases arithmetic-only shell idioms like
// echo $((3+4)) so that ninja-time deferred evaluation (avoidIO) can
// still compute them eagerly: they have no observable side effect.
func hasNoIoInShellScript(s []byte) bool {
	if len(s) == 0 {
		return true
	}
	if !bytes.HasPrefix(s, []byte("echo $((")) || s[len(s)-1] != ')' {
		return false
	}
	logf("has no IO - evaluate now: %s", s)
	return true
}

func (f *funcShell) Eval(w evalWriter, ev *Evaluator) error {
	if err := assertArity("shell", 1, len(f.args)); err != nil {
		return ev.error(err)
	}
	abuf := newEbuf()
	err := f.args[1].Eval(abuf, ev)
	if err != nil {
		abuf.release()
		return err
	}
	if ev.avoidIO && !hasNoIoInShellScript(abuf.Bytes()) {
		te := traceEvent.begin("shell", tmpval(append([]byte(nil), abuf.Bytes()...)), traceEventMain)
		ev.hasIO = true
		io.WriteString(w, "$(")
		w.Write(abuf.Bytes())
		writeByte(w, ')')
		traceEvent.end(te)
		abuf.release()
		return nil
	}
	arg := abuf.String()
	abuf.release()

	if bc, err := parseBuiltinCommand(arg); err == nil {
		bc.run(w)
		return nil
	} else if err != errFindEmulatorDisabled && err != errNotFind {
		if derr := diagf(DiagFindEmulator, ev.srcpos, "find emulator: %v: %q", err, arg); derr != nil {
			return derr
		}
	}

	shellVar := ev.LookupVar("SHELL")
	shellPath := shellVar.String()
	if shellPath == "" {
		shellPath = "/bin/sh"
	}
	cmdline := []string{shellPath, "-c", arg}
	logf("shell %q", cmdline)
	cmd := exec.Cmd{
		Path: cmdline[0],
		Args: cmdline,
	}
	te := traceEvent.begin("shell", literal(arg), traceEventMain)
	var out []byte
	var err error
	if ShellStderrMode == "merge" {
		// cmd.Output() only ever captures stdout; merging requires
		// stdout and stderr to share one pipe, which is what
		// CombinedOutput wires up.
		out, err = cmd.CombinedOutput()
	} else {
		cmd.Stderr = shellStderrWriter()
		out, err = cmd.Output()
	}
	shellStats.add(time.Since(te.t))
	if err != nil {
		logf("$(shell %q) failed: %q", arg, err)
	}
	recordShell(shellPath, "-c", arg, string(out), ev.srcpos)
	w.Write(formatCommandOutput(out))
	traceEvent.end(te)
	return nil
}

// ShellStderrMode controls what $(shell ...) does with the child's
// stderr: "inherit" (default, passes through to kati's own stderr),
// "merge" (redirected into the captured stdout), or "discard".
var ShellStderrMode = "inherit"

// shellStderrWriter is used for every mode except "merge", which
// instead routes the whole command through cmd.CombinedOutput (see
// funcShell.Eval) since Output()/Stderr can't alias Stdout's pipe.
func shellStderrWriter() io.Writer {
	switch ShellStderrMode {
	case "discard":
		return ioutil.Discard
	default:
		return os.Stderr
	}
}

func (f *funcShell) Compact() Value {
	if len(f.args)-1 < 1 {
		return f
	}
	if !UseFindCache && !UseShellBuiltins {
		return f
	}
	var e expr
	switch v := f.args[1].(type) {
	case expr:
		e = v
	default:
		e = expr{v}
	}
	if UseShellBuiltins {
		for _, sb := range shBuiltins {
			if v, ok := matchExpr(e, sb.pattern); ok {
				logf("shell compact apply %s for %s", sb.name, e)
				return sb.compact(f, v)
			}
		}
		logf("shell compact no match: %s", e)
	}
	return f
}

// https://www.gnu.org/software/make/manual/html_node/Call-Function.html
type funcCall struct{ fclosure }

func (f *funcCall) Arity() int { return 0 }

func (f *funcCall) Eval(w evalWriter, ev *Evaluator) error {
	abuf := newEbuf()
	defer abuf.release()
	fargs, err := ev.args(abuf, f.args[1:]...)
	if err != nil {
		return err
	}
	varname := fargs[0]
	variable := string(varname)
	te := traceEvent.begin("call", literal(variable), traceEventMain)
	defer traceEvent.end(te)
	logf("call %q variable %q", f.args[1], variable)

	v := ev.LookupVar(variable)
	var args []tmpval
	args = append(args, tmpval(varname))
	for i, arg := range fargs[1:] {
		args = append(args, tmpval(arg))
		logf("call $%d: %q=>%q", i+1, arg, fargs[i+1])
	}
	oldParams := ev.paramVars
	ev.paramVars = args
	defer func() { ev.paramVars = oldParams }()

	if err := ev.checkStack(); err != nil {
		return err
	}
	defer func() { ev.evalDepth-- }()
	fr := ev.pushFrame(frameCall, variable, ev.srcpos)
	defer ev.popFrame(fr)

	return v.Eval(w, ev)
}

// http://www.gnu.org/software/make/manual/make.html#Value-Function
type funcValue struct{ fclosure }

func (f *funcValue) Arity() int { return 1 }
func (f *funcValue) Eval(w evalWriter, ev *Evaluator) error {
	if err := assertArity("value", 1, len(f.args)); err != nil {
		return ev.error(err)
	}
	v := ev.LookupVar(f.args[1].String())
	io.WriteString(w, v.String())
	return nil
}

// http://www.gnu.org/software/make/manual/make.html#Eval-Function
type funcEval struct{ fclosure }

func (f *funcEval) Arity() int { return 1 }
func (f *funcEval) Eval(w evalWriter, ev *Evaluator) error {
	if err := assertArity("eval", 1, len(f.args)); err != nil {
		return ev.error(err)
	}
	abuf := newEbuf()
	defer abuf.release()
	err := f.args[1].Eval(abuf, ev)
	if err != nil {
		return err
	}
	s := append([]byte(nil), abuf.Bytes()...)
	logf("eval %q at %s:%d", s, ev.filename, ev.lineno)
	mk, err := parseMakefileBytes(s, ev.srcpos)
	if err != nil {
		return ev.error(err)
	}
	for _, stmt := range mk.stmts {
		err := ev.eval(stmt)
		if err != nil {
			return err
		}
	}
	return nil
}

func (f *funcEval) Compact() Value {
	if len(f.args)-1 < 1 {
		return f
	}
	switch arg := f.args[1].(type) {
	case literal, tmpval:
	case expr:
		if len(arg) == 1 {
			return f
		}
		switch prefix := arg[0].(type) {
		case literal, tmpval:
			lhs, op, rhsprefix, ok := parseAssignLiteral(prefix.String())
			if ok {
				var rhs expr
				if rhsprefix != literal("") {
					rhs = append(rhs, rhsprefix)
				}
				rhs = append(rhs, arg[1:]...)
				logf("eval assign %#v => lhs:%q op:%q rhs:%#v", f, lhs, op, rhs)
				return &funcEvalAssign{
					lhs: lhs,
					op:  op,
					rhs: compactExpr(rhs),
				}
			}
		}
		return f
	default:
		return f
	}
	arg := f.args[1].String()
	arg = stripComment(arg)
	if strings.TrimSpace(arg) == "" {
		return &funcNop{expr: f.String()}
	}
	lhs, op, rhs, ok := parseAssignLiteral(arg)
	if ok {
		return &funcEvalAssign{lhs: lhs, op: op, rhs: rhs}
	}
	f.args[1] = literal(arg)
	return f
}

func stripComment(arg string) string {
	for {
		i := strings.Index(arg, "#")
		if i < 0 {
			return arg
		}
		eol := strings.Index(arg[i:], "\n")
		if eol < 0 {
			return arg[:i]
		}
		arg = arg[:i] + arg[i+eol+1:]
	}
}

type funcNop struct{ expr string }

func (f *funcNop) String() string                     { return f.expr }
func (f *funcNop) Eval(evalWriter, *Evaluator) error  { return nil }
func (f *funcNop) serialize() serializableVar {
	return serializableVar{Type: "funcNop", V: f.expr}
}
func (f *funcNop) dump(d *dumpbuf) {
	d.Byte(valueTypeNop)
	d.Str(f.expr)
}

// parseAssignLiteral recognizes `lhs OP rhs` in a literal $(eval ...)
// body, returning ok=false when it needs full evaluation instead (a
// target-specific var, or an embedded $ that a literal scan can't
// safely split).
func parseAssignLiteral(s string) (lhs, op string, rhs Value, ok bool) {
	eq := strings.Index(s, "=")
	if eq < 0 {
		return "", "", nil, false
	}
	lhs = s[:eq]
	op = s[eq : eq+1]
	if eq >= 1 && (s[eq-1] == ':' || s[eq-1] == '+' || s[eq-1] == '?') {
		lhs = s[:eq-1]
		op = s[eq-1 : eq+1]
	}
	lhs = strings.TrimSpace(lhs)
	if strings.IndexAny(lhs, ":$") >= 0 {
		return "", "", nil, false
	}
	r := strings.TrimLeft(s[eq+1:], " \t")
	return lhs, op, literal(r), true
}

type funcEvalAssign struct {
	lhs string
	op  string
	rhs Value
}

func (f *funcEvalAssign) String() string {
	return fmt.Sprintf("$(eval %s %s %s)", f.lhs, f.op, f.rhs)
}

func (f *funcEvalAssign) Eval(w evalWriter, ev *Evaluator) error {
	abuf := newEbuf()
	defer abuf.release()
	err := f.rhs.Eval(abuf, ev)
	if err != nil {
		return err
	}
	rhs := trimLeftSpaceBytes(append([]byte(nil), abuf.Bytes()...))

	if err := checkVarDiagnostic(f.lhs, ev.srcpos); err != nil {
		return err
	}
	if readonlyVars[f.lhs] {
		return ev.error(errReadonlyVar{name: f.lhs})
	}

	var rvalue Var
	switch f.op {
	case ":=":
		ex, _, err := parseExpr(rhs, nil, parseOp{})
		if err != nil {
			return ev.errorf("eval assign error: %q: %v", f.String(), err)
		}
		vbuf := newEbuf()
		err = ex.Eval(vbuf, ev)
		if err != nil {
			vbuf.release()
			return err
		}
		rvalue = &simpleVar{value: []string{vbuf.String()}, origin: "file"}
		vbuf.release()
	case "=":
		rvalue = &recursiveVar{expr: tmpval(rhs), origin: "file"}
	case "+=":
		prev := ev.LookupVar(f.lhs)
		if prev.IsDefined() {
			rvalue, err = prev.Append(ev, string(rhs))
			if err != nil {
				return err
			}
		} else {
			rvalue = &recursiveVar{expr: tmpval(rhs), origin: "file"}
		}
	case "?=":
		prev := ev.LookupVar(f.lhs)
		if prev.IsDefined() {
			return nil
		}
		rvalue = &recursiveVar{expr: tmpval(rhs), origin: "file"}
	default:
		return ev.errorf("eval assign: unknown op %q", f.op)
	}
	logf("Eval ASSIGN: %s=%q (flavor:%q)", f.lhs, rvalue, rvalue.Flavor())
	ev.outVars.Assign(f.lhs, rvalue)
	return nil
}

func (f *funcEvalAssign) serialize() serializableVar {
	return serializableVar{
		Type: "funcEvalAssign",
		Children: []serializableVar{
			{V: f.lhs},
			{V: f.op},
			f.rhs.serialize(),
		},
	}
}

func (f *funcEvalAssign) dump(d *dumpbuf) {
	d.Byte(valueTypeAssign)
	d.Str(f.lhs)
	d.Str(f.op)
	f.rhs.dump(d)
}

// http://www.gnu.org/software/make/manual/make.html#Origin-Function
type funcOrigin struct{ fclosure }

func (f *funcOrigin) Arity() int { return 1 }
func (f *funcOrigin) Eval(w evalWriter, ev *Evaluator) error {
	if err := assertArity("origin", 1, len(f.args)); err != nil {
		return ev.error(err)
	}
	v := ev.LookupVar(f.args[1].String())
	io.WriteString(w, v.Origin())
	return nil
}

// https://www.gnu.org/software/make/manual/html_node/Flavor-Function.html
type funcFlavor struct{ fclosure }

func (f *funcFlavor) Arity() int { return 1 }
func (f *funcFlavor) Eval(w evalWriter, ev *Evaluator) error {
	if err := assertArity("flavor", 1, len(f.args)); err != nil {
		return ev.error(err)
	}
	v := ev.LookupVar(f.args[1].String())
	io.WriteString(w, v.Flavor())
	return nil
}

// http://www.gnu.org/software/make/manual/make.html#Make-Control-Functions
type funcInfo struct{ fclosure }

func (f *funcInfo) Arity() int { return 1 }
func (f *funcInfo) Eval(w evalWriter, ev *Evaluator) error {
	if err := assertArity("info", 1, len(f.args)); err != nil {
		return ev.error(err)
	}
	if ev.avoidIO {
		io.WriteString(w, "KATI_TODO(info)")
		ev.hasIO = true
		return nil
	}
	abuf := newEbuf()
	defer abuf.release()
	err := f.args[1].Eval(abuf, ev)
	if err != nil {
		return err
	}
	fmt.Printf("%s\n", abuf.String())
	return nil
}

type funcWarning struct{ fclosure }

func (f *funcWarning) Arity() int { return 1 }
func (f *funcWarning) Eval(w evalWriter, ev *Evaluator) error {
	if err := assertArity("warning", 1, len(f.args)); err != nil {
		return ev.error(err)
	}
	if ev.avoidIO {
		io.WriteString(w, "KATI_TODO(warning)")
		ev.hasIO = true
		return nil
	}
	abuf := newEbuf()
	defer abuf.release()
	err := f.args[1].Eval(abuf, ev)
	if err != nil {
		return err
	}
	warnNoPrefixAt(ev.filename, ev.lineno, "%s", abuf.String())
	return nil
}

type funcError struct{ fclosure }

func (f *funcError) Arity() int { return 1 }
func (f *funcError) Eval(w evalWriter, ev *Evaluator) error {
	if err := assertArity("error", 1, len(f.args)); err != nil {
		return ev.error(err)
	}
	if ev.avoidIO {
		io.WriteString(w, "KATI_TODO(error)")
		ev.hasIO = true
		return nil
	}
	abuf := newEbuf()
	defer abuf.release()
	err := f.args[1].Eval(abuf, ev)
	if err != nil {
		return err
	}
	return ev.errorf("*** %s.", abuf.String())
}

// http://www.gnu.org/software/make/manual/make.html#Foreach-Function
type funcForeach struct{ fclosure }

func (f *funcForeach) Arity() int { return 3 }

func (f *funcForeach) Eval(w evalWriter, ev *Evaluator) error {
	if err := assertArity("foreach", 3, len(f.args)); err != nil {
		return ev.error(err)
	}
	abuf := newEbuf()
	defer abuf.release()
	fargs, err := ev.args(abuf, f.args[1], f.args[2])
	if err != nil {
		return err
	}
	varname := string(fargs[0])
	ws := newWordScanner(append([]byte(nil), fargs[1]...))
	text := f.args[3]
	restore := ev.outVars.save(varname)
	defer restore()
	space := false
	for ws.Scan() {
		word := ws.Bytes()
		ev.outVars.Assign(varname, &automaticVar{value: append([]byte(nil), word...)})
		if space {
			writeByte(w, ' ')
		}
		err := text.Eval(w, ev)
		if err != nil {
			return err
		}
		space = true
	}
	return nil
}

// funcFile implements GNU make 4.0's $(file ...): $(file <path>) reads
// a file's contents (trailing newline stripped, like $(shell)'s
// output); $(file >path,text) / $(file >>path,text) write or append.
type funcFile struct{ fclosure }

func (f *funcFile) Arity() int { return 2 }

func (f *funcFile) Eval(w evalWriter, ev *Evaluator) error {
	if err := assertArity("file", 1, len(f.args)); err != nil {
		return ev.error(err)
	}
	abuf := newEbuf()
	defer abuf.release()
	err := f.args[1].Eval(abuf, ev)
	if err != nil {
		return err
	}
	spec := strings.TrimSpace(abuf.String())
	if len(spec) == 0 {
		return ev.errorf("*** missing filename")
	}
	switch spec[0] {
	case '<':
		return f.read(w, ev, strings.TrimSpace(spec[1:]))
	case '>':
		append := false
		rest := spec[1:]
		if len(rest) > 0 && rest[0] == '>' {
			append = true
			rest = rest[1:]
		}
		return f.write(ev, rest, append)
	default:
		return f.read(w, ev, spec)
	}
}

func (f *funcFile) read(w evalWriter, ev *Evaluator, path string) error {
	if ev.avoidIO {
		ev.hasIO = true
		io.WriteString(w, "KATI_TODO(file "+path+")")
		return nil
	}
	b, err := ioutil.ReadFile(path)
	if err != nil {
		recordFileAccess(cmdTagReadMissing, path, "")
		return ev.error(err)
	}
	recordFileAccess(cmdTagRead, path, string(b))
	w.Write(bytes.TrimRight(b, "\n"))
	return nil
}

func (f *funcFile) write(ev *Evaluator, rest string, doAppend bool) error {
	if ev.avoidIO {
		ev.hasIO = true
		return nil
	}
	path := strings.TrimSpace(rest)
	var text string
	if len(f.args) > 2 {
		// Arity 2 makes the first comma the argument separator, so the
		// text argument arrives as f.args[2].
		abuf := newEbuf()
		defer abuf.release()
		if err := f.args[2].Eval(abuf, ev); err != nil {
			return err
		}
		text = abuf.String()
	}
	flags := os.O_WRONLY | os.O_CREATE
	if doAppend {
		flags |= os.O_APPEND
	} else {
		flags |= os.O_TRUNC
	}
	fp, err := os.OpenFile(path, flags, 0644)
	if err != nil {
		return ev.error(err)
	}
	defer fp.Close()
	// Always append a trailing newline, even for empty content: GNU
	// make's $(file >path,) still writes a lone "\n".
	fmt.Fprintln(fp, text)
	tag := cmdTagWrite
	if doAppend {
		tag = cmdTagAppend
	}
	recordFileAccess(tag, path, text)
	return nil
}

// evalOptionalMsg evaluates args[idx], if present, as the trailing
// optional message argument shared by KATI_deprecated_var/
// KATI_obsolete_var/KATI_deprecate_export/KATI_obsolete_export;
// absent, it returns "".
func evalOptionalMsg(f *fclosure, idx int, ev *Evaluator) (string, error) {
	if idx >= len(f.args) {
		return "", nil
	}
	buf := newEbuf()
	defer buf.release()
	if err := f.args[idx].Eval(buf, ev); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// funcDeprecatedVar implements $(KATI_deprecated_var vars[,msg]):
// marks every space-separated name in vars deprecated, so a later
// reference to it warns instead of failing outright.
type funcDeprecatedVar struct{ fclosure }

func (f *funcDeprecatedVar) Arity() int { return 2 }

func (f *funcDeprecatedVar) Eval(w evalWriter, ev *Evaluator) error {
	if err := assertArity("KATI_deprecated_var", 1, len(f.args)); err != nil {
		return ev.error(err)
	}
	if ev.avoidIO {
		return ev.errorf("*** $(KATI_deprecated_var ...) is not supported in rules.")
	}
	abuf := newEbuf()
	err := f.args[1].Eval(abuf, ev)
	if err != nil {
		abuf.release()
		return err
	}
	names := splitSpaces(abuf.String())
	abuf.release()
	msg, err := evalOptionalMsg(&f.fclosure, 2, ev)
	if err != nil {
		return err
	}
	for _, name := range names {
		if _, obsolete := obsoleteVars[name]; obsolete {
			return ev.errorf("*** Cannot call KATI_deprecated_var on already obsolete variable: %s.", name)
		}
		if _, deprecated := deprecatedVars[name]; deprecated {
			return ev.errorf("*** Cannot call KATI_deprecated_var on already deprecated variable: %s.", name)
		}
		markVarDeprecated(name, msg)
	}
	return nil
}

// funcObsoleteVar implements $(KATI_obsolete_var vars[,msg]): any
// later reference to one of vars is a fatal error instead of a
// warning.
type funcObsoleteVar struct{ fclosure }

func (f *funcObsoleteVar) Arity() int { return 2 }

func (f *funcObsoleteVar) Eval(w evalWriter, ev *Evaluator) error {
	if err := assertArity("KATI_obsolete_var", 1, len(f.args)); err != nil {
		return ev.error(err)
	}
	if ev.avoidIO {
		return ev.errorf("*** $(KATI_obsolete_var ...) is not supported in rules.")
	}
	abuf := newEbuf()
	err := f.args[1].Eval(abuf, ev)
	if err != nil {
		abuf.release()
		return err
	}
	names := splitSpaces(abuf.String())
	abuf.release()
	msg, err := evalOptionalMsg(&f.fclosure, 2, ev)
	if err != nil {
		return err
	}
	for _, name := range names {
		if _, deprecated := deprecatedVars[name]; deprecated {
			return ev.errorf("*** Cannot call KATI_obsolete_var on already deprecated variable: %s.", name)
		}
		if _, obsolete := obsoleteVars[name]; obsolete {
			return ev.errorf("*** Cannot call KATI_obsolete_var on already obsolete variable: %s.", name)
		}
		markVarObsolete(name, msg)
	}
	return nil
}

// funcDeprecateExport implements $(KATI_deprecate_export msg): every
// `export`/`unexport` statement for the rest of the makefile warns
// with msg attached.
type funcDeprecateExport struct{ fclosure }

func (f *funcDeprecateExport) Arity() int { return 1 }

func (f *funcDeprecateExport) Eval(w evalWriter, ev *Evaluator) error {
	if err := assertArity("KATI_deprecate_export", 1, len(f.args)); err != nil {
		return ev.error(err)
	}
	if ev.avoidIO {
		return ev.errorf("*** $(KATI_deprecate_export) is not supported in rules.")
	}
	msg, err := evalOptionalMsg(&f.fclosure, 1, ev)
	if err != nil {
		return err
	}
	if exportObsolete {
		return ev.errorf("*** Export is already obsolete.")
	}
	if exportDeprecated {
		return ev.errorf("*** Export is already deprecated.")
	}
	exportDeprecated = true
	exportDeprecatedMsg = msg
	return nil
}

// funcObsoleteExport implements $(KATI_obsolete_export msg): every
// `export`/`unexport` statement for the rest of the makefile is a
// fatal error.
type funcObsoleteExport struct{ fclosure }

func (f *funcObsoleteExport) Arity() int { return 1 }

func (f *funcObsoleteExport) Eval(w evalWriter, ev *Evaluator) error {
	if err := assertArity("KATI_obsolete_export", 1, len(f.args)); err != nil {
		return ev.error(err)
	}
	if ev.avoidIO {
		return ev.errorf("*** $(KATI_obsolete_export) is not supported in rules.")
	}
	msg, err := evalOptionalMsg(&f.fclosure, 1, ev)
	if err != nil {
		return err
	}
	if exportObsolete {
		return ev.errorf("*** Export is already obsolete.")
	}
	exportObsolete = true
	exportObsoleteMsg = msg
	return nil
}

// funcProfileMakefile implements $(KATI_profile_makefile files...):
// asks stats.go to record and report per-include timing for each
// named file, without needing -kati_eval_stats for the whole run.
type funcProfileMakefile struct{ fclosure }

func (f *funcProfileMakefile) Arity() int { return 0 }

func (f *funcProfileMakefile) Eval(w evalWriter, ev *Evaluator) error {
	for _, arg := range f.args[1:] {
		abuf := newEbuf()
		err := arg.Eval(abuf, ev)
		if err != nil {
			abuf.release()
			return err
		}
		names := splitSpaces(abuf.String())
		abuf.release()
		ev.profiledFiles = append(ev.profiledFiles, names...)
	}
	return nil
}
