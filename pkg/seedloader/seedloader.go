// Package seedloader enumerates an input directory or glob, copies each
// source file into the session workspace, and emits an initial TestCase per
// seed. Optionally watches for files added after startup.
package seedloader

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/fsnotify/fsnotify"

	"github.com/jihwankim/jitfuzz/pkg/reporting"
	"github.com/jihwankim/jitfuzz/pkg/testcase"
)

// SourceWriter is the subset of workspace.Workspace seedloader needs.
type SourceWriter interface {
	WriteSource(tc *testcase.TestCase, body []byte) (path string, err error)
}

// Loader enumerates seeds from a directory or doublestar glob pattern.
type Loader struct {
	pattern  string
	ext      string
	writer   SourceWriter
	registry *testcase.Registry
	logger   *reporting.Logger

	mu   sync.Mutex
	seen map[string]bool // absolute source path -> already loaded
}

// New constructs a Loader. pattern is either a plain directory (all regular
// files beneath it are seeds) or a doublestar glob.
func New(pattern, ext string, writer SourceWriter, registry *testcase.Registry, logger *reporting.Logger) *Loader {
	return &Loader{
		pattern: pattern, ext: ext, writer: writer, registry: registry, logger: logger,
		seen: make(map[string]bool),
	}
}

// resolve expands the configured pattern to an absolute, sorted file list.
func (l *Loader) resolve() ([]string, error) {
	info, err := os.Stat(l.pattern)
	if err == nil && info.IsDir() {
		var files []string
		err := filepath.WalkDir(l.pattern, func(path string, d os.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if d.IsDir() {
				return nil
			}
			files = append(files, path)
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("seedloader: walk %s: %w", l.pattern, err)
		}
		sort.Strings(files)
		return files, nil
	}

	matches, err := doublestar.FilepathGlob(l.pattern)
	if err != nil {
		return nil, fmt.Errorf("seedloader: glob %s: %w", l.pattern, err)
	}
	sort.Strings(matches)
	return matches, nil
}

// LoadAll enumerates every matching seed file not yet loaded, writes each
// into the workspace, and returns the newly created TestCases in
// deterministic (sorted path) order.
func (l *Loader) LoadAll() ([]*testcase.TestCase, error) {
	files, err := l.resolve()
	if err != nil {
		return nil, err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	var cases []*testcase.TestCase
	for _, path := range files {
		abs, err := filepath.Abs(path)
		if err != nil {
			abs = path
		}
		if l.seen[abs] {
			continue
		}
		l.seen[abs] = true

		tc, err := l.loadOneLocked(path)
		if err != nil {
			l.logger.Warn("seedloader: failed to load seed", "path", path, "error", err)
			continue
		}
		cases = append(cases, tc)
	}
	return cases, nil
}

func (l *Loader) loadOneLocked(path string) (*testcase.TestCase, error) {
	body, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read seed: %w", err)
	}

	name := seedName(path)
	if _, exists := l.registry.Get(name); exists {
		name = fmt.Sprintf("%s-%d", name, len(l.seen))
	}

	tc := testcase.NewSeed(name)
	if _, err := l.writer.WriteSource(tc, body); err != nil {
		return nil, fmt.Errorf("write seed: %w", err)
	}
	l.registry.Put(tc)
	return tc, nil
}

// seedName derives a TestCase name from a seed file's base name, stripping
// its extension.
func seedName(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// Watch starts an fsnotify watch on the pattern's containing directory (or
// the directory itself, if pattern is a directory), invoking onNew with any
// seeds discovered after startup. It returns a stop function; falling back
// silently (logged, not fatal) if fsnotify cannot attach, per spec's "no
// feedback needed" leaf-component framing — the fuzzer still runs on the
// seeds loaded by LoadAll.
func (l *Loader) Watch(onNew func([]*testcase.TestCase)) (stop func(), err error) {
	dir := l.pattern
	if info, statErr := os.Stat(l.pattern); statErr != nil || !info.IsDir() {
		dir = filepath.Dir(l.pattern)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		l.logger.Warn("seedloader: fsnotify unavailable, seed watch disabled", "error", err)
		return func() {}, nil
	}
	if err := watcher.Add(dir); err != nil {
		watcher.Close()
		l.logger.Warn("seedloader: failed to watch directory, seed watch disabled", "dir", dir, "error", err)
		return func() {}, nil
	}

	done := make(chan struct{})
	go func() {
		for {
			select {
			case _, ok := <-watcher.Events:
				if !ok {
					return
				}
				cases, err := l.LoadAll()
				if err != nil {
					l.logger.Warn("seedloader: rescan failed", "error", err)
					continue
				}
				if len(cases) > 0 {
					onNew(cases)
				}
			case werr, ok := <-watcher.Errors:
				if !ok {
					return
				}
				l.logger.Warn("seedloader: watch error", "error", werr)
			case <-done:
				watcher.Close()
				return
			}
		}
	}()

	return func() { close(done) }, nil
}
