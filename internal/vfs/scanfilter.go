// Copyright 2024 LatentFS Authors
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

package vfs

import (
	"os"
	"path/filepath"
	"strings"

	ignore "github.com/sabhiram/go-gitignore"
	log "github.com/sirupsen/logrus"
)

// ScanFilter reports whether a project-relative path passes the
// exclude/include/.gitignore rules (SPEC_FULL.md §3 supplemental
// feature), the same way the teacher daemon's BuildFileFilter screens
// paths. Nothing in the engine installs one: Engine.DetectChanges diffs
// every entry the VFS holds, unfiltered.
type ScanFilter func(relPath string, isDir bool) bool

// BuildScanFilter creates a ScanFilter that:
//  1. always excludes the engine's own control directory
//  2. force-excludes anything in excludes (highest priority)
//  3. force-includes anything in includes, even if gitignored
//  4. otherwise applies .gitignore rules when gitignoreEnabled is set
//
// Grounded on the teacher daemon's internal/daemon/filter.go
// BuildFileFilter, generalized from a single ".latentfs" exclusion to a
// caller-supplied control directory name.
func BuildScanFilter(projectDir, controlDir string, gitignoreEnabled bool, includes, excludes []string) ScanFilter {
	var matcher *gitignoreMatcher
	if gitignoreEnabled {
		var err error
		matcher, err = newGitignoreMatcher(projectDir)
		if err != nil {
			log.WithError(err).Warn("vfs: failed to build gitignore matcher")
		}
	}

	return func(relPath string, isDir bool) bool {
		if relPath == controlDir || strings.HasPrefix(relPath, controlDir+"/") {
			return false
		}
		for _, exc := range excludes {
			if relPath == exc || strings.HasPrefix(relPath, exc+"/") {
				return false
			}
		}
		for _, inc := range includes {
			if relPath == inc || strings.HasPrefix(relPath, inc+"/") {
				return true
			}
		}
		if matcher != nil && matcher.isIgnored(relPath, isDir) {
			return false
		}
		return true
	}
}

// gitignoreMatcher collects .gitignore rules from a project tree.
type gitignoreMatcher struct {
	matchers []scopedMatcher
}

type scopedMatcher struct {
	dirPrefix string
	ignore    *ignore.GitIgnore
}

func newGitignoreMatcher(projectDir string) (*gitignoreMatcher, error) {
	m := &gitignoreMatcher{}

	err := filepath.Walk(projectDir, func(p string, info os.FileInfo, err error) error {
		if err != nil {
			return nil
		}
		if info.IsDir() {
			if filepath.Base(p) == ".git" && p != projectDir {
				return filepath.SkipDir
			}
			return nil
		}
		if filepath.Base(p) != ".gitignore" {
			return nil
		}

		data, readErr := os.ReadFile(p)
		if readErr != nil {
			return nil
		}

		dir := filepath.Dir(p)
		relDir, relErr := filepath.Rel(projectDir, dir)
		if relErr != nil {
			return nil
		}
		if relDir == "." {
			relDir = ""
		}

		gi := ignore.CompileIgnoreLines(strings.Split(string(data), "\n")...)
		m.matchers = append(m.matchers, scopedMatcher{dirPrefix: relDir, ignore: gi})
		return nil
	})
	if err != nil {
		return nil, err
	}
	return m, nil
}

func (m *gitignoreMatcher) isIgnored(relPath string, isDir bool) bool {
	if m == nil || len(m.matchers) == 0 {
		return false
	}
	checkPath := relPath
	if isDir {
		checkPath += "/"
	}
	for _, sm := range m.matchers {
		pathToCheck := checkPath
		if sm.dirPrefix != "" {
			prefix := sm.dirPrefix + "/"
			if !strings.HasPrefix(relPath, prefix) {
				continue
			}
			pathToCheck = strings.TrimPrefix(checkPath, prefix)
		}
		if sm.ignore.MatchesPath(pathToCheck) {
			return true
		}
	}
	return false
}
