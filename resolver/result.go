package resolver

import (
	stdcontext "context"

	"github.com/web-infra-dev/rspack-resolver/fs"
)

// SpecifierKind classifies a request's specifier string (spec §3).
type SpecifierKind uint8

const (
	KindRelative SpecifierKind = iota
	KindAbsolute
	KindModule
	KindInternalImport // "#..."
	KindServerRelative // leading "/", resolved against Options.Roots
	KindEmpty          // "."
)

// ClassifySpecifier returns the SpecifierKind of a bare path (query/fragment
// already stripped).
func ClassifySpecifier(path string) SpecifierKind {
	switch {
	case path == "." || len(path) == 0:
		return KindEmpty
	case path[0] == '#':
		return KindInternalImport
	case len(path) >= 2 && path[0] == '.' && (path[1] == '/' || path[1] == '.'):
		return KindRelative
	case path[0] == '/':
		return KindServerRelative
	case isAbsoluteDrivePath(path):
		return KindAbsolute
	default:
		return KindModule
	}
}

func isAbsoluteDrivePath(p string) bool {
	if len(p) >= 3 && ((p[0] >= 'a' && p[0] <= 'z') || (p[0] >= 'A' && p[0] <= 'Z')) && p[1] == ':' {
		return true
	}
	return len(p) >= 2 && p[0] == '\\' && p[1] == '\\'
}

// Result is the outcome of a resolution (spec §3 "Result", §6 "Result
// shape"): exactly one of Path, Ignored, Err is meaningful.
type Result struct {
	Path     string
	Query    string
	Fragment string

	Ignored bool

	Err error

	// DifferentCase is set when the resolved path was found via a
	// case-insensitive filesystem match that differs from the requested
	// case (spec's fs.DifferentCase forwarding).
	DifferentCase *fs.DifferentCase

	FileDependencies    []string
	MissingDependencies []string
}

// request carries per-call mutable state through the pipeline: the visited
// set for loop detection (spec §4.8 "Loop detection") and the dependency
// sets that end up on the returned Result.
type request struct {
	resolver *Resolver

	context string
	query   string
	fragment string

	// visited records every (context, specifier) pair seen so far during
	// this resolution's alias/imports/exports rewrite chain; a repeat is a
	// RecursiveAlias error.
	visited map[string]bool

	fileDeps    map[string]bool
	missingDeps map[string]bool

	// ctx and async drive stage 5's Module branch (resolveModule): when
	// async is set, the modules-directory candidate search fans out across
	// ctx via golang.org/x/sync/errgroup instead of trying candidates one
	// at a time (spec §4.10). Every other stage (alias, PnP, tsconfig
	// paths, preferRelative) is unaffected by this flag — both entry points
	// go through the same resolve() front matter, so ResolveAsync never
	// skips a stage ResolveSync applies (spec §8 property 1).
	ctx   stdcontext.Context
	async bool
}

func newRequest(res *Resolver, context string) *request {
	return &request{
		resolver:    res,
		context:     context,
		visited:     make(map[string]bool),
		fileDeps:    make(map[string]bool),
		missingDeps: make(map[string]bool),
		ctx:         stdcontext.Background(),
	}
}

func (rq *request) markVisited(context, specifier string) bool {
	key := context + "\x00" + specifier
	if rq.visited[key] {
		return false
	}
	rq.visited[key] = true
	return true
}

func (rq *request) addFileDep(path string) { rq.fileDeps[path] = true }
func (rq *request) addMissingDep(path string) { rq.missingDeps[path] = true }

func (rq *request) dependencySlices() (files []string, missing []string) {
	for f := range rq.fileDeps {
		files = append(files, f)
	}
	for m := range rq.missingDeps {
		missing = append(missing, m)
	}
	return
}
