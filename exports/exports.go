// Package exports implements the conditional subpath resolution algorithm
// for package.json "exports" and "imports" fields (spec §4.5), ported from
// the Node.js ESM resolver algorithm the same way the teacher's
// esmPackageExportsResolve/esmPackageTargetResolve do
// (internal/resolver/package_json.go).
package exports

import (
	"path"
	"sort"
	"strings"

	"github.com/web-infra-dev/rspack-resolver/jsonc"
	"github.com/web-infra-dev/rspack-resolver/pathutil"
	"github.com/web-infra-dev/rspack-resolver/resolveerr"
)

// Status is the outcome of walking a target tree. It mirrors the teacher's
// peStatus enum so every edge case the ESM spec calls out keeps a distinct,
// nameable result instead of collapsing into a single error return.
type Status uint8

const (
	StatusUndefined Status = iota
	StatusNull
	StatusExact
	StatusInexact
	StatusInvalidModuleSpecifier
	StatusInvalidPackageConfiguration
	StatusInvalidPackageTarget
	StatusPackagePathNotExported
	StatusPackageImportNotDefined
)

func (s Status) IsSuccess() bool { return s == StatusExact || s == StatusInexact }

// IsIgnored reports whether the chosen branch was an explicit JSON null,
// which spec §4.5's "Condition resolution" calls out as "explicitly
// ignored" rather than "not found".
func (s Status) IsIgnored() bool { return s == StatusNull }

// Result is what Resolve/ResolveImport return.
type Result struct {
	Path   string
	Status Status
}

// ToError converts a terminal (non-success) Status into the stable error
// taxonomy from spec §7.
func (r Result) ToError(specifier string) *resolveerr.Error {
	switch r.Status {
	case StatusPackagePathNotExported:
		return resolveerr.WithDetail(resolveerr.PackagePathNotExported, "No \""+specifier+"\" export is defined")
	case StatusPackageImportNotDefined:
		return resolveerr.WithDetail(resolveerr.PackageImportNotDefined, "No \""+specifier+"\" import is defined")
	case StatusInvalidPackageTarget:
		return resolveerr.WithDetail(resolveerr.InvalidPackageTarget, "target "+r.Path+" is invalid for \""+specifier+"\"")
	case StatusInvalidModuleSpecifier, StatusInvalidPackageConfiguration:
		return resolveerr.WithDetail(resolveerr.InvalidModuleSpecifier, specifier)
	default:
		return resolveerr.WithDetail(resolveerr.PackagePathNotExported, specifier)
	}
}

// expansionKey is a precomputed, length-sorted key of the map used for
// pattern matching. Only keys ending in "*" or "/" take part, ordered by
// length so the longest prefix wins; a key with "*" anywhere else is
// matched only exactly, and no post-"*" tie-break exists.
type expansionKey struct {
	key   string
	value jsonc.Value
}

// Resolve implements "PACKAGE_EXPORTS_RESOLVE" for the given "exports"
// field value against subpath (a "."-rooted subpath, e.g. "./foo" or "."
// for the package root).
func Resolve(exportsRoot jsonc.Value, subpath string, conditions map[string]bool) Result {
	if !isValidExportsShape(exportsRoot) {
		return Result{Status: StatusInvalidPackageConfiguration}
	}

	if subpath == "." {
		mainExport, ok := mainExportOf(exportsRoot)
		if ok {
			resolved, status := targetResolve(mainExport, "", false, conditions)
			if status == StatusNull {
				return Result{Status: StatusNull}
			}
			if status != StatusUndefined {
				return Result{Path: resolved, Status: status}
			}
		}
	} else if exportsRoot.Kind == jsonc.Object && keysStartWithDot(exportsRoot) {
		resolved, status := importsExportsResolve(subpath, exportsRoot, conditions)
		if status == StatusNull {
			return Result{Status: StatusNull}
		}
		if status != StatusUndefined {
			return Result{Path: resolved, Status: status}
		}
	}
	return Result{Status: StatusPackagePathNotExported}
}

// ResolveImport implements "PACKAGE_IMPORTS_RESOLVE" for a "#..." specifier
// against the "imports" field value.
func ResolveImport(importsRoot jsonc.Value, specifier string, conditions map[string]bool) Result {
	if specifier == "#" || strings.HasPrefix(specifier, "#/") {
		return Result{Status: StatusInvalidModuleSpecifier}
	}
	if importsRoot.Kind != jsonc.Object {
		return Result{Status: StatusPackageImportNotDefined}
	}
	resolved, status := importsExportsResolve(specifier, importsRoot, conditions)
	if status == StatusNull || status == StatusUndefined {
		return Result{Status: StatusPackageImportNotDefined}
	}
	return Result{Path: resolved, Status: status}
}

func isValidExportsShape(v jsonc.Value) bool {
	switch v.Kind {
	case jsonc.String, jsonc.Array, jsonc.Null:
		return true
	case jsonc.Object:
		// An object cannot mix keys starting with "." and keys that don't.
		startsWithDot := -1
		for _, m := range v.Obj {
			cur := 0
			if strings.HasPrefix(m.Key, ".") {
				cur = 1
			}
			if startsWithDot == -1 {
				startsWithDot = cur
			} else if startsWithDot != cur {
				return false
			}
		}
		return true
	default:
		return false
	}
}

func keysStartWithDot(v jsonc.Value) bool {
	return len(v.Obj) > 0 && strings.HasPrefix(v.Obj[0].Key, ".")
}

func mainExportOf(exportsRoot jsonc.Value) (jsonc.Value, bool) {
	if exportsRoot.Kind == jsonc.String || exportsRoot.Kind == jsonc.Array ||
		(exportsRoot.Kind == jsonc.Object && !keysStartWithDot(exportsRoot)) {
		return exportsRoot, true
	}
	if exportsRoot.Kind == jsonc.Object {
		if dot, ok := exportsRoot.Get("."); ok {
			return dot, true
		}
	}
	return jsonc.Value{}, false
}

func importsExportsResolve(matchKey string, matchObj jsonc.Value, conditions map[string]bool) (string, Status) {
	if !strings.HasSuffix(matchKey, "*") {
		if target, ok := matchObj.Get(matchKey); ok {
			return targetResolve(target, "", false, conditions)
		}
	}

	for _, expansion := range expansionKeysOf(matchObj) {
		if strings.HasSuffix(expansion.key, "*") {
			prefix := expansion.key[:len(expansion.key)-1]
			if strings.HasPrefix(matchKey, prefix) && matchKey != prefix {
				sub := matchKey[len(expansion.key)-1:]
				return targetResolve(expansion.value, sub, true, conditions)
			}
			continue
		}
		if strings.HasPrefix(matchKey, expansion.key) {
			sub := matchKey[len(expansion.key):]
			result, status := targetResolve(expansion.value, sub, false, conditions)
			if status == StatusExact {
				status = StatusInexact
			}
			return result, status
		}
	}

	return "", StatusUndefined
}

// expansionKeysOf returns every key of matchObj ending in "/" or "*",
// sorted by length descending (spec §4.5's "longest pre-* literal"), with
// Go's stable sort preserving source order among equal lengths so the
// first-declared key wins ties, matching the teacher's sort.Stable usage.
func expansionKeysOf(matchObj jsonc.Value) []expansionKey {
	var keys []expansionKey
	for _, m := range matchObj.Obj {
		if strings.HasSuffix(m.Key, "/") || strings.HasSuffix(m.Key, "*") {
			keys = append(keys, expansionKey{key: m.Key, value: m.Value})
		}
	}
	sort.SliceStable(keys, func(i, j int) bool { return len(keys[i].key) > len(keys[j].key) })
	return keys
}

func targetResolve(target jsonc.Value, subpath string, isPattern bool, conditions map[string]bool) (string, Status) {
	switch target.Kind {
	case jsonc.String:
		str := target.Str
		if !isPattern && subpath != "" && !strings.HasSuffix(str, "/") {
			return str, StatusInvalidModuleSpecifier
		}
		if !strings.HasPrefix(str, "./") {
			return str, StatusInvalidPackageTarget
		}
		if pathutil.HasInvalidSegment(str) {
			return str, StatusInvalidPackageTarget
		}
		resolvedTarget := path.Join("/", str)
		if pathutil.HasInvalidSegment(subpath) {
			return subpath, StatusInvalidModuleSpecifier
		}
		if isPattern {
			return strings.ReplaceAll(resolvedTarget, "*", subpath), StatusExact
		}
		return path.Join(resolvedTarget, subpath), StatusExact

	case jsonc.Object:
		for _, m := range target.Obj {
			if m.Key == "default" || conditions[m.Key] {
				resolved, status := targetResolve(m.Value, subpath, isPattern, conditions)
				if status == StatusUndefined {
					continue
				}
				return resolved, status
			}
		}
		return "", StatusUndefined

	case jsonc.Array:
		if len(target.Arr) == 0 {
			return "", StatusNull
		}
		lastStatus := StatusUndefined
		var lastPath string
		for _, item := range target.Arr {
			resolved, status := targetResolve(item, subpath, isPattern, conditions)
			if status == StatusInvalidPackageTarget || status == StatusNull {
				lastStatus, lastPath = status, resolved
				continue
			}
			if status == StatusUndefined {
				continue
			}
			return resolved, status
		}
		return lastPath, lastStatus

	case jsonc.Null:
		return "", StatusNull

	default:
		return "", StatusInvalidPackageTarget
	}
}

// ParsePackageName splits a bare module specifier into its package name and
// subpath, e.g. "@scope/pkg/sub" -> ("@scope/pkg", "./sub").
func ParsePackageName(specifier string) (name string, subpath string, ok bool) {
	if specifier == "" {
		return "", "", false
	}
	slash := strings.IndexByte(specifier, '/')
	if !strings.HasPrefix(specifier, "@") {
		if slash == -1 {
			slash = len(specifier)
		}
		name = specifier[:slash]
	} else {
		if slash == -1 {
			return "", "", false
		}
		rest := specifier[slash+1:]
		slash2 := strings.IndexByte(rest, '/')
		if slash2 == -1 {
			slash2 = len(rest)
		}
		name = specifier[:slash+1+slash2]
	}
	if strings.HasPrefix(name, ".") || strings.ContainsAny(name, "\\%") {
		return "", "", false
	}
	subpath = "." + specifier[len(name):]
	return name, subpath, true
}
