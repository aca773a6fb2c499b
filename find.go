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
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// UseFindCache/UseShellBuiltins/UseWildcardCache gate the shell-builtin
// shortcuts in shellutil.go: instead of forking a real shell for
// well-known `find`/`test -d`/`wildcard` idioms that appear verbatim in
// Android-style makefiles, serve them from the in-process directory
// cache built on top of fsCache. The package variables start out false;
// cmd/kati sets them from -use_find_cache (default false) and
// -use_shell_builtins/-use_wildcard_cache (default true), mirroring the
// upstream kati CLI.
var (
	UseFindCache     bool
	UseShellBuiltins bool
	UseWildcardCache bool
)

// buildinCommand is a $(shell ...) invocation recognized and served
// without forking, such as a `find` or `findleaves.py` call.
type buildinCommand interface {
	run(w evalWriter)
}

var errFindEmulatorDisabled = errors.New("find emulator disabled")

// parseBuiltinCommand recognizes a shell command line that the find
// emulator (pathutil.go's findCommand/findleavesCommand) can serve
// directly, avoiding a subprocess.
func parseBuiltinCommand(cmd string) (buildinCommand, error) {
	if !UseFindCache {
		return nil, errFindEmulatorDisabled
	}
	trimmed := trimLeftSpace(cmd)
	if strings.Contains(trimmed, "findleaves") {
		fc, err := parseFindleavesCommand(cmd)
		if err != nil {
			return nil, err
		}
		return fc, nil
	}
	fc, err := parseFindCommand(cmd)
	if err != nil {
		return nil, err
	}
	return fc, nil
}

// androidFindCacheT answers the handful of `find`/`test -d && find`
// idioms recognized by shBuiltins (shellutil.go) directly from the
// fsCache directory tree, instead of compacting to a literal command
// for the $(shell) function to fork. It is a cache over fsCache, not a
// second source of truth: every answer is derived by walking
// fsCache.readdir.
type androidFindCacheT struct {
	mu        sync.Mutex
	inited    bool
	roots     []string
	prunes    []string
	leafNames []string
}

var androidFindCache androidFindCacheT

// AndroidFindCacheInit primes the package-level find cache for the
// Android-build shell-builtin shortcuts and records prunes and leafNames
// on it; the shortcuts' directory walks do not consult either list.
// cmd/kati calls this once at startup when -find_cache_prunes is given.
func AndroidFindCacheInit(prunes, leafNames []string) {
	androidFindCache.init(nil)
	androidFindCache.prunes = prunes
	androidFindCache.leafNames = leafNames
}

// init primes the cache. roots, when non-nil, restricts subsequent
// lookups to those directories (unused currently, kept for parity with
// the shBuiltins call sites that pass explicit roots).
func (c *androidFindCacheT) init(roots []string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.inited = true
	c.roots = roots
}

func (c *androidFindCacheT) ready() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.inited && UseFindCache
}

func (c *androidFindCacheT) leavesReady() bool {
	return c.ready()
}

// walkFiles recursively visits dir (already fs-cache-clean), calling
// visit for every non-directory entry whose name doesn't start with a
// dot. It does not follow symlinked directories, matching find's
// default (non -L) behavior.
func (c *androidFindCacheT) walkFiles(dir string, visit func(path string, ent dirent)) {
	_, ents := fsCache.readdir(dir, unknownFileid)
	for _, ent := range ents {
		if strings.HasPrefix(ent.name, ".") {
			continue
		}
		path := filepath.Join(dir, ent.name)
		if ent.mode.IsDir() {
			if ent.lmode&os.ModeSymlink != 0 {
				continue
			}
			c.walkFiles(path, visit)
			continue
		}
		visit(path, ent)
	}
}

// findInDir serves:
//   if [ -d $1 ] ; then cd $1 ; find ./ -not -name '.*' -and -type f -and -not -type l ; fi
func (c *androidFindCacheT) findInDir(w evalWriter, dir string) {
	sw := ssvWriter{Writer: w}
	c.walkFiles(filepathClean(dir), func(path string, ent dirent) {
		if !ent.mode.IsRegular() {
			return
		}
		rel, err := filepath.Rel(dir, path)
		if err != nil {
			rel = path
		}
		sw.writeWordString("./" + rel)
	})
}

// findExtFilesUnder serves:
//   cd $1 && find $2 -name '*.$3' 2>/dev/null
// reporting false when it cannot serve the request from the cache
// (e.g. roots contain "..") so the caller falls back to a real shell.
func (c *androidFindCacheT) findExtFilesUnder(w evalWriter, chdir, root, ext string) bool {
	if strings.Contains(chdir, "..") || strings.Contains(root, "..") {
		return false
	}
	base := filepathClean(filepath.Join(chdir, root))
	sw := ssvWriter{Writer: w}
	c.walkFiles(base, func(path string, ent dirent) {
		if !ent.mode.IsRegular() {
			return
		}
		if ext != "" && filepath.Ext(path) != "."+ext {
			return
		}
		rel, err := filepath.Rel(base, path)
		if err != nil {
			rel = path
		}
		sw.writeWordString(filepath.Join(root, rel))
	})
	return true
}

// findJavaResourceFileGroup serves the android build's
// java-resource-file-group shell idiom: every regular file under dir
// that is not a .java/.c/.h/.cpp source and not an Android.mk.
func (c *androidFindCacheT) findJavaResourceFileGroup(w evalWriter, dir string) {
	excluded := map[string]bool{
		".java": true, ".c": true, ".h": true, ".cpp": true,
	}
	sw := ssvWriter{Writer: w}
	c.walkFiles(filepathClean(dir), func(path string, ent dirent) {
		if !ent.mode.IsRegular() {
			return
		}
		if ent.name == "Android.mk" || excluded[filepath.Ext(path)] {
			return
		}
		rel, err := filepath.Rel(dir, path)
		if err != nil {
			rel = path
		}
		sw.writeWordString(rel)
	})
}

// findleaves serves build/tools/findleaves.py: the topmost name match
// under dir, not descending further once a subtree has matched.
func (c *androidFindCacheT) findleaves(w evalWriter, dir, name string, prunes []string, mindepth int) {
	fc := findleavesCommand{name: name, dirs: []string{dir}, prunes: prunes, mindepth: mindepth}
	fc.run(w)
}
