// Package tsconfig loads tsconfig.json files: "extends" chains (with cycle
// detection), "${configDir}" substitution, and "compilerOptions.paths"
// compiled into ordered matchers, plus project references (spec §4.6).
package tsconfig

import (
	"os"
	"strings"

	"github.com/web-infra-dev/rspack-resolver/jsonc"
	"github.com/web-infra-dev/rspack-resolver/pathutil"
	"github.com/web-infra-dev/rspack-resolver/resolveerr"
)

// PathTarget is one fallback target of a "paths" pattern, carrying the
// directory of the tsconfig file in which it was written so "${configDir}"
// can be substituted with that directory rather than the final merged
// file's directory — substitution provenance must follow the text's
// origin through an "extends" merge (spec §4.6).
type PathTarget struct {
	Text      string
	WrittenIn string
}

// Pattern is one compiled entry of "compilerOptions.paths": a key (which
// may contain one "*") mapped to an ordered list of fallback targets.
type Pattern struct {
	Key     string
	Targets []PathTarget
}

// Reference is one resolved entry of "references": another tsconfig this
// project depends on, with its own Config loaded recursively.
type Reference struct {
	Path   string
	Config *Config
}

// Config is a fully loaded and "extends"-merged tsconfig.json.
type Config struct {
	File             string
	Directory        string // File's containing directory
	BaseURL          *string
	BaseURLForPaths  string
	Paths            []Pattern
	References       []Reference
	DeclaredReferences []string // raw "references" paths, before "auto" resolution
}

// ExtendsResolver resolves the string in an "extends" field (a relative
// path or a bare package specifier) to the absolute path of the tsconfig
// file to merge from. This is the "restricted inner resolver" spec §4.6
// requires — no tsconfig mapping, no alias fields, to avoid infinite
// regress — implemented by the caller (the main resolver keeps a
// restricted clone of itself for exactly this).
type ExtendsResolver func(fromDir string, specifier string) (absPath string, ok bool)

// ReadFile reads a file's contents; callers plug in their cache-backed FS
// read here so tsconfig loads participate in the same single-flight cache
// and file_dependencies/missing_dependencies bookkeeping as everything
// else (spec §3 Cache, §4.8 dependency tracking).
type ReadFile func(path string) (contents string, err error)

type loader struct {
	read    ReadFile
	extends ExtendsResolver
}

// Load parses absPath and its full "extends" chain into a merged Config.
// visited tracks every absolute path seen so far in this chain; passing a
// fresh, non-nil map per top-level Load call is required for cycle
// detection across "extends" and "references" both.
func Load(absPath string, read ReadFile, extends ExtendsResolver, visited map[string]bool) (*Config, error) {
	l := &loader{read: read, extends: extends}
	return l.load(absPath, visited)
}

func (l *loader) load(absPath string, visited map[string]bool) (*Config, error) {
	if visited[absPath] {
		return nil, resolveerr.WithDetail(resolveerr.TsconfigCycle, absPath)
	}
	visited[absPath] = true

	contents, err := l.read(absPath)
	if err != nil {
		if isNotExist(err) {
			return nil, resolveerr.WithDetail(resolveerr.TsconfigNotFound, absPath)
		}
		return nil, resolveerr.Wrap(resolveerr.IOError, absPath, err)
	}

	root, err := jsonc.Parse(contents, jsonc.Options{AllowComments: true, AllowTrailingCommas: true})
	if err != nil {
		return nil, resolveerr.Wrap(resolveerr.TsconfigParseError, absPath, err)
	}

	dir := pathutil.Normalize(dirname(absPath))

	var merged Config
	if extendsVal, ok := root.GetString("extends"); ok {
		if baseAbs, ok := l.extends(dir, extendsVal); ok {
			base, err := l.load(baseAbs, visited)
			if err != nil {
				return nil, err
			}
			merged = *base
		}
	}
	merged.File = absPath
	merged.Directory = dir

	compilerOptions, hasCompilerOptions := root.Get("compilerOptions")
	if hasCompilerOptions {
		if baseURL, ok := compilerOptions.GetString("baseUrl"); ok {
			abs := substituteConfigDir(baseURL, dir)
			if !pathutil.IsAbs(abs) {
				abs = pathutil.Join(dir, abs)
			}
			merged.BaseURL = &abs
		}
	}

	if merged.BaseURL != nil {
		merged.BaseURLForPaths = *merged.BaseURL
	} else if merged.BaseURLForPaths == "" {
		merged.BaseURLForPaths = "."
	}

	if hasCompilerOptions {
		if pathsVal, ok := compilerOptions.Get("paths"); ok && pathsVal.Kind == jsonc.Object {
			merged.Paths = nil // a child's "paths" fully replaces the parent's, like TypeScript does
			for _, m := range pathsVal.Obj {
				if strings.Count(m.Key, "*") > 1 {
					continue
				}
				if m.Value.Kind != jsonc.Array {
					continue
				}
				var targets []PathTarget
				for _, item := range m.Value.Arr {
					if item.Kind != jsonc.String {
						continue
					}
					if strings.Count(item.Str, "*") > 1 {
						continue
					}
					targets = append(targets, PathTarget{Text: item.Str, WrittenIn: dir})
				}
				merged.Paths = append(merged.Paths, Pattern{Key: m.Key, Targets: targets})
			}
		}
	}

	if refsVal, ok := root.Get("references"); ok && refsVal.Kind == jsonc.Array {
		merged.DeclaredReferences = nil
		for _, item := range refsVal.Arr {
			if p, ok := item.GetString("path"); ok {
				merged.DeclaredReferences = append(merged.DeclaredReferences, p)
			}
		}
	}

	return &merged, nil
}

// LoadReferences resolves Config.DeclaredReferences into full Reference
// values, recursively loading each referenced project's own tsconfig
// (which may itself declare references). visited is shared with the
// top-level Load call's cycle-detection set.
func LoadReferences(cfg *Config, read ReadFile, extends ExtendsResolver, visited map[string]bool) ([]Reference, error) {
	var refs []Reference
	for _, rel := range cfg.DeclaredReferences {
		refDir := pathutil.Join(cfg.Directory, rel)
		refFile := refDir
		if !strings.HasSuffix(refFile, ".json") {
			refFile = pathutil.Join(refDir, "tsconfig.json")
		}
		refCfg, err := Load(refFile, read, extends, visited)
		if err != nil {
			continue // a missing/invalid reference falls through rather than failing the whole load
		}
		nested, err := LoadReferences(refCfg, read, extends, visited)
		if err == nil {
			refCfg.References = nested
		}
		refs = append(refs, Reference{Path: refFile, Config: refCfg})
	}
	return refs, nil
}

// substituteConfigDir replaces every "${configDir}" occurrence in s with
// writtenIn, the directory of the tsconfig file the string literally
// appeared in (not the directory of whatever file ultimately merged it
// in) — spec §4.6's provenance requirement.
func substituteConfigDir(s string, writtenIn string) string {
	if !strings.Contains(s, "${configDir}") {
		return s
	}
	return strings.ReplaceAll(s, "${configDir}", writtenIn)
}

// Match finds the best "paths" pattern matching request against cfg, per
// spec §4.6: exact match wins outright; otherwise the pattern with the
// longest prefix wins, ties broken by longest suffix. For each candidate
// pattern, targets are substituted and returned in listed order — the
// first one that check accepts is what the caller should finalize on.
func (cfg *Config) Match(request string, tryTarget func(absPath string) (string, bool)) (string, bool) {
	baseURL := cfg.BaseURLForPaths
	if cfg.BaseURL != nil {
		baseURL = *cfg.BaseURL
	}

	for _, pattern := range cfg.Paths {
		if pattern.Key == request {
			for _, target := range pattern.Targets {
				if hasCaseInsensitiveSuffix(target.Text, ".d.ts") {
					continue
				}
				abs := resolveTarget(target, baseURL)
				if result, ok := tryTarget(abs); ok {
					return result, true
				}
			}
			return "", false
		}
	}

	longestPrefix, longestSuffix := -1, -1
	var best Pattern
	for _, pattern := range cfg.Paths {
		star := strings.IndexByte(pattern.Key, '*')
		if star == -1 {
			continue
		}
		prefix, suffix := pattern.Key[:star], pattern.Key[star+1:]
		if !strings.HasPrefix(request, prefix) || !strings.HasSuffix(request, suffix) {
			continue
		}
		if len(prefix) > longestPrefix || (len(prefix) == longestPrefix && len(suffix) > longestSuffix) {
			longestPrefix, longestSuffix = len(prefix), len(suffix)
			best = pattern
		}
	}

	if longestPrefix == -1 {
		return "", false
	}

	star := strings.IndexByte(best.Key, '*')
	prefix, suffix := best.Key[:star], best.Key[star+1:]
	matched := request[len(prefix) : len(request)-len(suffix)]

	for _, target := range best.Targets {
		substituted := strings.Replace(target.Text, "*", matched, 1)
		if hasCaseInsensitiveSuffix(substituted, ".d.ts") {
			continue
		}
		abs := resolveTarget(PathTarget{Text: substituted, WrittenIn: target.WrittenIn}, baseURL)
		if result, ok := tryTarget(abs); ok {
			return result, true
		}
	}
	return "", false
}

func resolveTarget(target PathTarget, baseURL string) string {
	text := substituteConfigDir(target.Text, target.WrittenIn)
	if pathutil.IsAbs(text) {
		return text
	}
	return pathutil.Join(baseURL, text)
}

func hasCaseInsensitiveSuffix(s, suffix string) bool {
	return len(s) >= len(suffix) && strings.EqualFold(s[len(s)-len(suffix):], suffix)
}

func dirname(p string) string {
	idx := strings.LastIndexAny(p, "/\\")
	if idx <= 0 {
		return "/"
	}
	return p[:idx]
}

func isNotExist(err error) bool {
	return os.IsNotExist(err)
}
