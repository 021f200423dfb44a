// Package pathutil holds the pure path manipulation the resolver core
// needs: normalisation, joining, relativising, and splitting off the
// "?query" and "#fragment" suffixes a specifier may carry. None of it
// touches a filesystem; see the fs package for that.
package pathutil

import (
	"path"
	"strings"
)

// Split pulls any "?query" and "#fragment" suffix off a raw specifier and
// returns them separately, the way esbuild's resolver preserves them
// verbatim onto the final resolved path (internal/resolver/resolver.go).
// The fragment, if present, always starts after the first "#"; a "?" that
// appears after the fragment is considered part of it, matching how a URL
// parser treats fragments as "everything after #".
func Split(specifier string) (path string, query string, fragment string) {
	path = specifier
	if hash := strings.IndexByte(path, '#'); hash != -1 {
		fragment = path[hash:]
		path = path[:hash]
	}
	if mark := strings.IndexByte(path, '?'); mark != -1 {
		query = path[mark:]
		path = path[:mark]
	}
	return
}

// HadTrailingSlash reports whether p ends in "/", which the exports/imports
// matching algorithm needs to know even after the slash itself is stripped
// for lookup purposes (spec §4.5's "trailing-slash rule").
func HadTrailingSlash(p string) bool {
	return len(p) > 0 && p[len(p)-1] == '/'
}

// StripTrailingSlash removes a single trailing "/", leaving "/" itself
// untouched.
func StripTrailingSlash(p string) string {
	if len(p) > 1 && p[len(p)-1] == '/' {
		return p[:len(p)-1]
	}
	return p
}

// Normalize folds "." and ".." segments and collapses repeated separators,
// preserving a leading "/" for absolute paths and a trailing "/" if the
// input had one (path.Clean alone drops it, which would change exports
// trailing-slash semantics).
func Normalize(p string) string {
	if p == "" {
		return "."
	}
	hadSlash := HadTrailingSlash(p)
	cleaned := path.Clean(toSlash(p))
	if hadSlash && cleaned != "/" && !HadTrailingSlash(cleaned) {
		cleaned += "/"
	}
	return cleaned
}

// Join joins path elements and then Normalizes the result.
func Join(elem ...string) string {
	return Normalize(path.Join(elem...))
}

// IsAbs reports whether p is an absolute path, accepting both POSIX and
// Windows-style roots ("/x", "C:\x", "\\?\x") since specifiers may
// originate from either platform's tooling.
func IsAbs(p string) bool {
	if strings.HasPrefix(p, "/") {
		return true
	}
	if len(p) >= 3 && isDriveLetter(p[0]) && p[1] == ':' && isSlash(p[2]) {
		return true
	}
	if strings.HasPrefix(p, `\\`) {
		return true
	}
	return false
}

func isDriveLetter(c byte) bool {
	return (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

func isSlash(c byte) bool {
	return c == '/' || c == '\\'
}

// toSlash converts Windows-style backslashes to forward slashes so the
// stdlib "path" package (which is slash-only) can operate on Windows input.
// The drive letter/UNC prefix, if any, is left as the literal text before
// the first slash.
func toSlash(p string) string {
	if !strings.ContainsRune(p, '\\') {
		return p
	}
	return strings.ReplaceAll(p, `\`, `/`)
}

// Rel computes a path for target relative to base, both assumed absolute
// and already normalised. ok is false if no relative path could be formed
// (e.g. different Windows drive letters).
func Rel(base string, target string) (rel string, ok bool) {
	base = Normalize(base)
	target = Normalize(target)
	if base == target {
		return ".", true
	}
	baseParts := splitParts(base)
	targetParts := splitParts(target)

	i := 0
	for i < len(baseParts) && i < len(targetParts) && baseParts[i] == targetParts[i] {
		i++
	}

	up := strings.Repeat("../", len(baseParts)-i)
	down := strings.Join(targetParts[i:], "/")

	switch {
	case up == "" && down == "":
		return ".", true
	case up == "":
		return down, true
	case down == "":
		return strings.TrimSuffix(up, "/"), true
	default:
		return up + down, true
	}
}

func splitParts(p string) []string {
	p = strings.Trim(p, "/")
	if p == "" {
		return nil
	}
	return strings.Split(p, "/")
}

// HasInvalidSegment reports whether p contains a ".", ".." or
// "node_modules" segment after the first one — the check the exports/
// imports engine runs on targets and subpaths (spec §4.5).
func HasInvalidSegment(p string) bool {
	slash := strings.IndexAny(p, "/\\")
	if slash == -1 {
		return false
	}
	rest := p[slash+1:]
	for rest != "" {
		idx := strings.IndexAny(rest, "/\\")
		segment := rest
		if idx != -1 {
			segment = rest[:idx]
			rest = rest[idx+1:]
		} else {
			rest = ""
		}
		if segment == "." || segment == ".." || segment == "node_modules" {
			return true
		}
	}
	return false
}
