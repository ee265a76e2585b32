// Package watchset resolves the list of files the live reload watches.
package watchset

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/gobwas/glob"
	"github.com/hashicorp/go-hclog"
	"github.com/magdyamr542/livereload/config"
)

// Build returns the watch set for a validated config.
//
// The set is made of the extra includes, then every file below the directory of
// the app file when TrackFolder is set, then the app file itself. Paths matching
// an exclusion are removed last. Exclusions look at the path relative to the
// directory of the app file, so the directories above the project never match.
// The result holds absolute, unique paths in the order they were first seen.
func Build(c config.Config, logger hclog.Logger) ([]string, error) {
	excluder, err := newExcluder(filepath.Dir(c.AppFile), c.ExcludeFiles, c.ExcludePatterns)
	if err != nil {
		return nil, err
	}

	seen := make(map[string]struct{})
	candidates := make([]string, 0)
	add := func(path string) {
		path = filepath.Clean(path)
		if _, ok := seen[path]; ok {
			return
		}
		seen[path] = struct{}{}
		candidates = append(candidates, path)
	}

	for _, p := range c.ExtraIncludeFiles {
		if _, err := os.Stat(p); err != nil {
			logger.Warn("Extra include can't be stat'ed, watching it anyway", "path", p, "error", err)
		}
		add(p)
	}

	if c.TrackFolder {
		root := filepath.Dir(c.AppFile)
		files, err := walk(root, logger)
		if err != nil {
			return nil, fmt.Errorf("walk %s: %w", root, err)
		}
		for _, f := range files {
			add(f)
		}
	}

	add(c.AppFile)

	watchSet := make([]string, 0, len(candidates))
	for _, p := range candidates {
		if excluder.excluded(p) {
			logger.Debug("Excluding path", "path", p)
			continue
		}
		watchSet = append(watchSet, p)
	}

	if len(watchSet) == 0 {
		logger.Warn("Every file is excluded, nothing will trigger a reload",
			"app", c.AppFile, "excludeFiles", c.ExcludeFiles, "excludePatterns", c.ExcludePatterns)
	}

	return watchSet, nil
}

// walk lists every regular file below root. Unreadable entries are skipped.
func walk(root string, logger hclog.Logger) ([]string, error) {
	files := make([]string, 0)
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if path == root {
				return err
			}
			logger.Debug("Skipping unreadable entry", "path", path, "error", err)
			if d != nil && d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if d.IsDir() {
			return nil
		}
		files = append(files, path)
		return nil
	})
	if errors.Is(err, fs.ErrNotExist) {
		return files, nil
	}
	return files, err
}

type excluder struct {
	root       string
	substrings []string
	globs      []glob.Glob
}

func newExcluder(root string, substrings, patterns []string) (*excluder, error) {
	e := excluder{root: root, substrings: substrings}
	for _, p := range patterns {
		g, err := glob.Compile(filepath.ToSlash(p), '/')
		if err != nil {
			return nil, fmt.Errorf("exclude pattern %q: %w", p, err)
		}
		e.globs = append(e.globs, g)
	}
	return &e, nil
}

func (e *excluder) excluded(path string) bool {
	rel := e.relative(path)
	for _, s := range e.substrings {
		if strings.Contains(rel, s) {
			return true
		}
	}

	normalized := filepath.ToSlash(path)
	base := filepath.Base(path)
	for _, g := range e.globs {
		if g.Match(rel) || g.Match(normalized) || g.Match(base) {
			return true
		}
	}
	return false
}

// relative returns path below root in slash form. Paths outside root keep their
// leading "../" elements.
func (e *excluder) relative(path string) string {
	rel, err := filepath.Rel(e.root, path)
	if err != nil {
		return filepath.ToSlash(path)
	}
	return filepath.ToSlash(rel)
}
