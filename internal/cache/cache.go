// Package cache is the concurrent, single-flight cache backing the
// resolver (spec §3, §5): interned metadata, parsed description files,
// parsed tsconfigs, and canonicalised paths. Every filesystem read a
// resolver instance performs for a given path happens at most once, even
// under concurrent callers racing on it, via golang.org/x/sync/singleflight
// — the same coalescing primitive used for fan-out work elsewhere in this
// corpus (see the teacher-adjacent orchestrator packages that import
// golang.org/x/sync for structured concurrency).
package cache

import (
	"sync"

	"golang.org/x/sync/singleflight"

	"github.com/web-infra-dev/rspack-resolver/fs"
	"github.com/web-infra-dev/rspack-resolver/jsonc"
	"github.com/web-infra-dev/rspack-resolver/pathutil"
	"github.com/web-infra-dev/rspack-resolver/tsconfig"
)

// Set is one resolver instance's cache. It is safe for concurrent use and
// is the thing CloneWithOptions shares between sibling resolvers (spec
// §6): two Resolver values pointing at the same *Set record no additional
// filesystem reads for a path either has already read.
type Set struct {
	FS fs.FS

	statGroup singleflight.Group
	statMu    sync.RWMutex
	stats     map[string]fs.Metadata

	fileGroup singleflight.Group
	fileMu    sync.RWMutex
	files     map[string]fileEntry

	dirGroup singleflight.Group
	dirMu    sync.RWMutex
	dirs     map[string]dirEntry

	jsonGroup singleflight.Group
	jsonMu    sync.RWMutex
	jsonDocs  map[string]jsonEntry

	descGroup singleflight.Group
	descMu    sync.RWMutex
	descAt    map[string]descAnswer // directory -> nearest description file lookup

	realGroup singleflight.Group
	realMu    sync.RWMutex
	realpaths map[string]string

	tsGroup singleflight.Group
	tsMu    sync.RWMutex
	tsconfigs map[string]tsEntry
}

type tsEntry struct {
	config *tsconfig.Config
	err    error
}

type fileEntry struct {
	contents string
	modKey   fs.ModKey
	hasKey   bool
	err      error
}

type dirEntry struct {
	entries fs.DirEntries
	err     error
}

type jsonEntry struct {
	value jsonc.Value
	err   error
}

// descAnswer is the cached answer to "what is the nearest description file
// at or above this directory", including the negative case so repeated
// misses up a long node_modules chain don't re-stat every ancestor.
type descAnswer struct {
	path  string // absolute path of the description file, "" if none found
	found bool
}

// New builds an empty cache over the given filesystem.
func New(filesystem fs.FS) *Set {
	return &Set{
		FS:        filesystem,
		stats:     make(map[string]fs.Metadata),
		files:     make(map[string]fileEntry),
		dirs:      make(map[string]dirEntry),
		jsonDocs:  make(map[string]jsonEntry),
		descAt:    make(map[string]descAnswer),
		realpaths: make(map[string]string),
		tsconfigs: make(map[string]tsEntry),
	}
}

// Clear drops every cached entry. Resolutions after Clear perform fresh
// filesystem reads; this is the only supported form of invalidation (spec
// §1 Non-goals rules out hot-reload of individual entries).
func (c *Set) Clear() {
	c.statMu.Lock()
	c.stats = make(map[string]fs.Metadata)
	c.statMu.Unlock()

	c.fileMu.Lock()
	c.files = make(map[string]fileEntry)
	c.fileMu.Unlock()

	c.dirMu.Lock()
	c.dirs = make(map[string]dirEntry)
	c.dirMu.Unlock()

	c.jsonMu.Lock()
	c.jsonDocs = make(map[string]jsonEntry)
	c.jsonMu.Unlock()

	c.descMu.Lock()
	c.descAt = make(map[string]descAnswer)
	c.descMu.Unlock()

	c.realMu.Lock()
	c.realpaths = make(map[string]string)
	c.realMu.Unlock()

	c.tsMu.Lock()
	c.tsconfigs = make(map[string]tsEntry)
	c.tsMu.Unlock()
}

// Stat returns cached filesystem metadata for path, performing at most one
// real Stat call per path for the lifetime of this cache.
func (c *Set) Stat(path string) (fs.Metadata, error) {
	path = pathutil.Normalize(path)

	c.statMu.RLock()
	if m, ok := c.stats[path]; ok {
		c.statMu.RUnlock()
		return m, nil
	}
	c.statMu.RUnlock()

	v, err, _ := c.statGroup.Do(path, func() (interface{}, error) {
		m, err := c.FS.Stat(path)
		if err != nil {
			return fs.Metadata{}, err
		}
		c.statMu.Lock()
		c.stats[path] = m
		c.statMu.Unlock()
		return m, nil
	})
	if err != nil {
		return fs.Metadata{}, err
	}
	return v.(fs.Metadata), nil
}

// ReadFile returns path's contents, reading the real filesystem at most
// once per path.
func (c *Set) ReadFile(path string) (string, error) {
	path = pathutil.Normalize(path)

	c.fileMu.RLock()
	if e, ok := c.files[path]; ok {
		c.fileMu.RUnlock()
		return e.contents, e.err
	}
	c.fileMu.RUnlock()

	v, _, _ := c.fileGroup.Do(path, func() (interface{}, error) {
		contents, err := c.FS.ReadFile(path)
		entry := fileEntry{contents: contents, err: err}
		if err == nil {
			if key, keyErr := fs.ModKeyForOS(path); keyErr == nil {
				entry.modKey, entry.hasKey = key, true
			}
		}
		c.fileMu.Lock()
		c.files[path] = entry
		c.fileMu.Unlock()
		return entry, nil
	})
	entry := v.(fileEntry)
	return entry.contents, entry.err
}

// FileModKey returns the change-detection key recorded the last time
// ReadFile succeeded for path, for callers building a file watcher off
// file_dependencies (spec §4.3's ModKey use, §4.8's dependency sets).
func (c *Set) FileModKey(path string) (fs.ModKey, bool) {
	path = pathutil.Normalize(path)
	c.fileMu.RLock()
	defer c.fileMu.RUnlock()
	e, ok := c.files[path]
	return e.modKey, ok && e.hasKey
}

// ReadDir returns path's directory listing, reading the real filesystem at
// most once per path.
func (c *Set) ReadDir(path string) (fs.DirEntries, error) {
	path = pathutil.Normalize(path)

	c.dirMu.RLock()
	if e, ok := c.dirs[path]; ok {
		c.dirMu.RUnlock()
		return e.entries, e.err
	}
	c.dirMu.RUnlock()

	v, _, _ := c.dirGroup.Do(path, func() (interface{}, error) {
		entries, err := c.FS.ReadDir(path)
		entry := dirEntry{entries: entries, err: err}
		c.dirMu.Lock()
		c.dirs[path] = entry
		c.dirMu.Unlock()
		return entry, nil
	})
	entry := v.(dirEntry)
	return entry.entries, entry.err
}

// ParseJSON parses the JSON document at path (description files and
// tsconfig files both go through this), caching the order-preserving
// parse tree so two resolver clones with different field configuration
// never re-parse the same file — only the typed projection on top differs
// per clone, and that projection is cheap enough not to need its own
// cache entry.
func (c *Set) ParseJSON(path string, opts jsonc.Options) (jsonc.Value, error) {
	path = pathutil.Normalize(path)

	c.jsonMu.RLock()
	if e, ok := c.jsonDocs[path]; ok {
		c.jsonMu.RUnlock()
		return e.value, e.err
	}
	c.jsonMu.RUnlock()

	v, _, _ := c.jsonGroup.Do(path, func() (interface{}, error) {
		contents, err := c.ReadFile(path)
		if err != nil {
			entry := jsonEntry{err: err}
			c.jsonMu.Lock()
			c.jsonDocs[path] = entry
			c.jsonMu.Unlock()
			return entry, nil
		}
		value, err := jsonc.Parse(contents, opts)
		entry := jsonEntry{value: value, err: err}
		c.jsonMu.Lock()
		c.jsonDocs[path] = entry
		c.jsonMu.Unlock()
		return entry, nil
	})
	entry := v.(jsonEntry)
	return entry.value, entry.err
}

// NearestDescriptionFile walks upward from dir looking for a file named
// one of fileNames (in order), caching the answer — including the
// negative case — at every ancestor directory visited along the way, so a
// repeated miss from a sibling subdirectory is also free.
func (c *Set) NearestDescriptionFile(dir string, fileNames []string) (path string, found bool) {
	dir = pathutil.Normalize(dir)

	c.descMu.RLock()
	if a, ok := c.descAt[dir]; ok {
		c.descMu.RUnlock()
		return a.path, a.found
	}
	c.descMu.RUnlock()

	v, _, _ := c.descGroup.Do(dir, func() (interface{}, error) {
		var visited []string
		current := dir
		var answer descAnswer
		for {
			c.descMu.RLock()
			if a, ok := c.descAt[current]; ok {
				c.descMu.RUnlock()
				answer = a
				break
			}
			c.descMu.RUnlock()

			found := false
			for _, name := range fileNames {
				candidate := pathutil.Join(current, name)
				if m, err := c.Stat(candidate); err == nil && m.Kind == fs.FileEntry {
					answer = descAnswer{path: candidate, found: true}
					found = true
					break
				}
			}
			if found {
				break
			}

			visited = append(visited, current)
			parent := pathutil.Join(current, "..")
			if parent == current {
				answer = descAnswer{found: false}
				break
			}
			current = parent
		}

		c.descMu.Lock()
		for _, v := range visited {
			c.descAt[v] = answer
		}
		c.descAt[dir] = answer
		c.descMu.Unlock()
		return answer, nil
	})
	a := v.(descAnswer)
	return a.path, a.found
}

// Realpath canonicalises path via the filesystem's symlink resolution,
// reading the real filesystem at most once per path.
func (c *Set) Realpath(path string) (string, error) {
	path = pathutil.Normalize(path)

	c.realMu.RLock()
	if p, ok := c.realpaths[path]; ok {
		c.realMu.RUnlock()
		return p, nil
	}
	c.realMu.RUnlock()

	v, err, _ := c.realGroup.Do(path, func() (interface{}, error) {
		resolved, err := c.FS.EvalSymlinks(path)
		if err != nil {
			return "", err
		}
		resolved = pathutil.Normalize(resolved)
		c.realMu.Lock()
		c.realpaths[path] = resolved
		c.realMu.Unlock()
		return resolved, nil
	})
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

// LoadTSConfig loads and caches the tsconfig.Config at path, including its
// full "extends" chain, single-flighted per path so two callers resolving
// different specifiers against the same tsconfig don't race to parse it
// twice.
func (c *Set) LoadTSConfig(path string, extends tsconfig.ExtendsResolver) (*tsconfig.Config, error) {
	path = pathutil.Normalize(path)

	c.tsMu.RLock()
	if e, ok := c.tsconfigs[path]; ok {
		c.tsMu.RUnlock()
		return e.config, e.err
	}
	c.tsMu.RUnlock()

	v, _, _ := c.tsGroup.Do(path, func() (interface{}, error) {
		cfg, err := tsconfig.Load(path, c.ReadFile, extends, make(map[string]bool))
		entry := tsEntry{config: cfg, err: err}
		c.tsMu.Lock()
		c.tsconfigs[path] = entry
		c.tsMu.Unlock()
		return entry, nil
	})
	entry := v.(tsEntry)
	return entry.config, entry.err
}
