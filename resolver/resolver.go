package resolver

import (
	"strings"
	"sync"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/web-infra-dev/rspack-resolver/descriptor"
	"github.com/web-infra-dev/rspack-resolver/exports"
	"github.com/web-infra-dev/rspack-resolver/fs"
	"github.com/web-infra-dev/rspack-resolver/internal/cache"
	"github.com/web-infra-dev/rspack-resolver/jsonc"
	"github.com/web-infra-dev/rspack-resolver/pathutil"
	"github.com/web-infra-dev/rspack-resolver/pnp"
	"github.com/web-infra-dev/rspack-resolver/resolveerr"
	"github.com/web-infra-dev/rspack-resolver/tsconfig"
)

// Resolver is the core state machine (spec §4.8). It is safe for concurrent
// use: mutable state lives in the shared *cache.Set, apart from the lazily
// loaded PnP manifest, which pnpMu guards; Options is read-only after
// construction (spec §5 "Cache-level" contract).
type Resolver struct {
	fs      fs.FS
	cache   *cache.Set
	options Options
	log     DebugLogger

	// pnpResolver is loaded lazily the first time a module specifier is
	// resolved from a directory under a .pnp.data.json/.pnp.json-governed
	// tree; nil until Options.PnP is set and a manifest is found. pnpMu
	// guards it.
	pnpMu       sync.Mutex
	pnpResolver *pnp.Resolver
}

// New builds a Resolver with its own fresh cache over filesystem.
func New(filesystem fs.FS, options Options) *Resolver {
	return NewWithCache(filesystem, cache.New(filesystem), options)
}

// NewWithCache builds a Resolver sharing an existing cache, the mechanism
// CloneWithOptions itself uses (spec §6 "clone_with_options... shares the
// underlying cache").
func NewWithCache(filesystem fs.FS, c *cache.Set, options Options) *Resolver {
	return &Resolver{fs: filesystem, cache: c, options: options, log: noopLogger{}}
}

// CloneWithOptions returns a sibling Resolver with overrides applied to a
// copy of the Options, sharing this Resolver's cache pointer so no path
// either resolver has already read is ever re-read (spec §6, §8 property 2).
func (r *Resolver) CloneWithOptions(overrides func(*Options)) *Resolver {
	opts := r.options.Clone()
	if overrides != nil {
		overrides(&opts)
	}
	clone := &Resolver{fs: r.fs, cache: r.cache, options: opts, log: r.log}
	return clone
}

// SetDebugLogger installs a non-default DebugLogger (the no-op one is used
// otherwise).
func (r *Resolver) SetDebugLogger(log DebugLogger) { r.log = log }

// ClearCache drops every cached entry; the only supported invalidation
// mechanism (spec §4.3, Non-goals "hot-reload").
func (r *Resolver) ClearCache() { r.cache.Clear() }

// ResolveSync performs one resolution, blocking on every filesystem access
// (spec §4.10 "synchronous mode").
func (r *Resolver) ResolveSync(context, specifier string) Result {
	bare, query, fragment := pathutil.Split(specifier)
	rq := newRequest(r, pathutil.Normalize(context))
	rq.query, rq.fragment = query, fragment

	res := rq.resolve(bare)
	files, missing := rq.dependencySlices()
	res.Query, res.Fragment = query, fragment
	res.FileDependencies = files
	res.MissingDependencies = missing
	return res
}

// resolve is the re-entrant core: every rewrite (alias, alias-field,
// imports, exports, tsconfig paths) calls back into this with the new
// (context is rq.context at time of call) specifier, after recording the
// (context, specifier) pair for loop detection (spec §4.8 "Loop detection").
func (rq *request) resolve(specifier string) Result {
	if !rq.markVisited(rq.context, specifier) {
		return errResult(resolveerr.New(resolveerr.RecursiveAlias, specifier, rq.context))
	}

	r := rq.resolver

	// Stage 3: primary alias.
	if target, ok := matchAlias(r.options.Alias, specifier); ok {
		if res, handled := rq.applyAliasTarget(target, specifier); handled {
			return res
		}
	}

	// Stage 2: Yarn PnP rewrite, for module specifiers only.
	kind := ClassifySpecifier(specifier)
	if r.options.PnP && kind == KindModule {
		if rewritten, ok := rq.pnpRewrite(specifier); ok {
			return rq.expandCandidate(rewritten)
		}
	}

	// Stage 4: tsconfig paths, for bare module specifiers only.
	if kind == KindModule && r.options.TSConfig.ConfigFile != "" {
		if res, ok := rq.tryTSConfigPaths(specifier); ok {
			return res
		}
	}

	var res Result
	switch kind {
	case KindRelative, KindEmpty:
		res = rq.resolveRelative(specifier)
	case KindAbsolute:
		res = rq.expandCandidate(specifier)
	case KindServerRelative:
		res = rq.resolveServerRelative(specifier)
	case KindInternalImport:
		res = rq.resolveInternalImport(specifier)
	case KindModule:
		res = rq.resolveModule(specifier)
	}

	if res.Err != nil && !res.Ignored {
		if fb, ok := matchAlias(r.options.Fallback, specifier); ok {
			if fres, handled := rq.applyAliasTarget(fb, specifier); handled {
				return fres
			}
		}
		return errResult(resolveerr.NotFoundErr(specifier, rq.context))
	}

	return res
}

func errResult(err error) Result { return Result{Err: err} }

// matchAlias finds the first entry in entries whose Key exactly matches, or
// is the longest directory-prefix of, specifier (spec §4.7 "exact or
// longest-prefix").
func matchAlias(entries []AliasEntry, specifier string) (AliasTarget, bool) {
	bestLen := -1
	var best AliasTarget
	found := false
	for _, e := range entries {
		if e.Key == specifier {
			return e.Target, true
		}
		if strings.HasPrefix(specifier, e.Key+"/") && len(e.Key) > bestLen {
			bestLen = len(e.Key)
			best = e.Target
			found = true
		}
	}
	return best, found
}

// applyAliasTarget substitutes specifier with target and re-enters the
// pipeline through rq.resolve, so the substituted specifier passes the
// primary-alias stage again (the visited set stops alias cycles), or
// produces an Ignored result for target=false.
func (rq *request) applyAliasTarget(target AliasTarget, specifier string) (Result, bool) {
	if target.IsFalse {
		return Result{Ignored: true}, true
	}
	var last Result
	for _, t := range target.Targets {
		last = rq.resolve(t)
		if last.Err == nil {
			return last, true
		}
	}
	if len(target.Targets) > 0 {
		return last, true
	}
	return Result{}, false
}

func (rq *request) resolveRelative(specifier string) Result {
	abs := pathutil.Join(rq.context, specifier)
	return rq.expandCandidate(abs)
}

// resolveServerRelative implements stage 5's server-relative branch and the
// PreferAbsolute knob (spec §4.7, §9 Open Question 2: "roots (absolute-first
// if preferAbsolute) -> relative-if-preferRelative -> module"): when
// PreferAbsolute is set, the specifier is first tried as a literal
// filesystem path (e.g. "/usr/local/lib.js" on a POSIX host) before falling
// through to the ordinary Roots-prefixed search.
func (rq *request) resolveServerRelative(specifier string) Result {
	r := rq.resolver

	if r.options.PreferAbsolute {
		if res := rq.expandCandidate(specifier); res.Err == nil {
			return res
		}
	}

	var last Result
	for _, root := range r.options.Roots {
		abs := pathutil.Join(root, specifier)
		res := rq.expandCandidate(abs)
		if res.Err == nil {
			return res
		}
		last = res
	}
	if len(r.options.Roots) == 0 {
		return errResult(resolveerr.NotFoundErr(specifier, rq.context))
	}
	return last
}

// resolveInternalImport implements stage 5's "#..." branch: find the
// nearest description file, apply the imports engine, re-enter with the
// rewritten target.
func (rq *request) resolveInternalImport(specifier string) Result {
	r := rq.resolver
	descPath, found := r.cache.NearestDescriptionFile(rq.context, r.options.DescriptionFiles)
	if !found {
		rq.addMissingDep(rq.context)
		return errResult(resolveerr.New(resolveerr.PackageImportNotDefined, specifier, rq.context))
	}
	rq.addFileDep(descPath)

	desc, err := rq.parseDescriptionFile(descPath)
	if err != nil {
		return errResult(err)
	}
	if desc.Imports == nil {
		return errResult(resolveerr.New(resolveerr.PackageImportNotDefined, specifier, rq.context))
	}

	result := exports.ResolveImport(*desc.Imports, specifier, r.options.ConditionNames)
	if !result.Status.IsSuccess() {
		return errResult(result.ToError(specifier))
	}
	rewritten := pathutil.Join(desc.Directory, result.Path)
	saved := rq.context
	rq.context = desc.Directory
	res := rq.resolve(relativize(rewritten, desc.Directory))
	rq.context = saved
	return res
}

func relativize(abs, dir string) string {
	if rel, ok := pathutil.Rel(dir, abs); ok {
		if !strings.HasPrefix(rel, ".") {
			rel = "./" + rel
		}
		return rel
	}
	return abs
}

// resolveModule implements stage 5's "Module" branch: walk options.Modules,
// either as a bare name (node_modules-style upward walk from context) or as
// an absolute search directory, consulting exports/alias-fields along the
// way. This runs identically whether reached from ResolveSync or
// ResolveAsync — both entry points call rq.resolve, which applies stages
// 2-4 (PnP, primary alias, tsconfig paths) before ever reaching here (spec
// §8 property 1: sync and async must agree). Only the candidate-directory
// search itself differs: resolveModuleAsync (driver.go) fans it out across
// an errgroup when rq.async is set and there is more than one candidate.
func (rq *request) resolveModule(specifier string) Result {
	r := rq.resolver
	name, subpath, ok := exports.ParsePackageName(specifier)
	if !ok {
		return errResult(resolveerr.New(resolveerr.InvalidModuleSpecifier, specifier, rq.context))
	}

	if r.options.PreferRelative {
		if res := rq.resolveRelative("./" + specifier); res.Err == nil {
			return res
		}
	}

	if rq.async {
		if res, ok := rq.resolveModuleAsync(name, subpath, specifier); ok {
			return res
		}
	}

	var lastErr error
	for _, modDir := range r.options.Modules {
		candidates := rq.packageCandidateDirs(modDir)
		for _, dir := range candidates {
			pkgDir := pathutil.Join(dir, name)
			res, tried, err := rq.resolveInPackageDir(pkgDir, name, subpath, specifier)
			if !tried {
				continue
			}
			if err == nil {
				return res
			}
			lastErr = err
		}
	}
	if lastErr != nil {
		return errResult(lastErr)
	}
	return errResult(resolveerr.NotFoundErr(specifier, rq.context))
}

// packageCandidateDirs returns, in search order, the directories that
// `<dir>/<name>` should be tried under for modDir: `<ancestor>/<modDir>` for
// context and every ancestor of it if modDir is bare, or modDir itself if
// absolute.
func (rq *request) packageCandidateDirs(modDir string) []string {
	if pathutil.IsAbs(modDir) {
		return []string{modDir}
	}
	var dirs []string
	current := rq.context
	for {
		dirs = append(dirs, pathutil.Join(current, modDir))
		parent := pathutil.Join(current, "..")
		if parent == current {
			break
		}
		current = parent
	}
	return dirs
}

// resolveInPackageDir tries pkgDir (`<modules dir>/<name>`) as the package
// root for specifier.
// tried is false if pkgDir itself doesn't exist (so the caller's loop moves
// on to the next modules entry without recording a hard error).
func (rq *request) resolveInPackageDir(pkgDir, name, subpath, specifier string) (res Result, tried bool, err error) {
	r := rq.resolver
	m, statErr := r.cache.Stat(pkgDir)
	if statErr != nil || m.Kind == fs.MissingEntry {
		rq.addMissingDep(pkgDir)
		return Result{}, false, nil
	}
	tried = true

	descPath, found := r.cache.NearestDescriptionFile(pkgDir, r.options.DescriptionFiles)
	var desc *descriptor.File
	if found {
		rq.addFileDep(descPath)
		desc, err = rq.parseDescriptionFile(descPath)
		if err != nil {
			return Result{}, true, err
		}
	}

	if desc != nil && desc.Exports != nil && subpath != "" {
		result := exports.Resolve(*desc.Exports, subpath, r.options.ConditionNames)
		if result.Status.IsSuccess() {
			abs := pathutil.Join(desc.Directory, result.Path)
			res := rq.expandCandidateNoExtensions(abs)
			return res, true, res.Err
		}
		if result.Status.IsIgnored() {
			return Result{Ignored: true}, true, nil
		}
		return Result{}, true, result.ToError(specifier)
	}

	var target string
	if subpath == "." {
		target = pkgDir
	} else {
		target = pathutil.Join(pkgDir, subpath)
	}

	if desc != nil {
		reqPath := relativize(target, desc.Directory)
		for field := range desc.AliasFields {
			if av, ok := desc.LookupAliasField(field, reqPath); ok {
				if av.IsFalse {
					return Result{Ignored: true}, true, nil
				}
				var last Result
				for _, t := range av.Strings {
					abs := t
					if !pathutil.IsAbs(t) {
						abs = pathutil.Join(desc.Directory, t)
					}
					last = rq.expandCandidate(abs)
					if last.Err == nil {
						return last, true, nil
					}
				}
				if len(av.Strings) > 0 {
					return last, true, last.Err
				}
			}
		}
	}

	res = rq.expandCandidate(target)
	return res, true, res.Err
}

func (rq *request) parseDescriptionFile(path string) (*descriptor.File, error) {
	r := rq.resolver
	root, err := r.cache.ParseJSON(path, jsonc.Options{AllowComments: true})
	if err != nil {
		return nil, resolveerr.Wrap(resolveerr.JsonParseError, path, err)
	}
	dir := pathutil.Join(path, "..")
	f, err := descriptor.Parse(dir, path, root, r.options.MainFields, r.options.AliasFields,
		r.options.ExportsFields, r.options.ImportsFields, r.options.KeepRawDescriptionFile)
	if err != nil {
		return nil, resolveerr.Wrap(resolveerr.JsonParseError, path, err)
	}
	return f, nil
}

// tryTSConfigPaths implements stage 4.
func (rq *request) tryTSConfigPaths(specifier string) (Result, bool) {
	r := rq.resolver
	cfg, err := r.loadRootTSConfig()
	if err != nil || cfg == nil {
		return Result{}, false
	}
	cfg = rq.tsConfigForContext(cfg)
	if cfg == nil || len(cfg.Paths) == 0 {
		return Result{}, false
	}

	var found Result
	_, matched := cfg.Match(specifier, func(abs string) (string, bool) {
		res := rq.expandCandidate(abs)
		if res.Err == nil {
			found = res
			return abs, true
		}
		return "", false
	})
	return found, matched
}

// tsConfigForContext walks root's References (when loaded) for the one
// governing rq.context, falling back to root itself (spec §4.6 "Project
// references").
func (rq *request) tsConfigForContext(root *tsconfig.Config) *tsconfig.Config {
	best := root
	bestLen := len(root.Directory)
	var walk func(refs []tsconfig.Reference)
	walk = func(refs []tsconfig.Reference) {
		for _, ref := range refs {
			if ref.Config == nil {
				continue
			}
			if strings.HasPrefix(rq.context, ref.Config.Directory) && len(ref.Config.Directory) > bestLen {
				best, bestLen = ref.Config, len(ref.Config.Directory)
			}
			walk(ref.Config.References)
		}
	}
	walk(root.References)
	return best
}

func (r *Resolver) loadRootTSConfig() (*tsconfig.Config, error) {
	if r.options.TSConfig.ConfigFile == "" {
		return nil, nil
	}
	extends := r.restrictedExtendsResolver()
	cfg, err := r.cache.LoadTSConfig(r.options.TSConfig.ConfigFile, extends)
	if err != nil {
		return nil, err
	}
	if r.options.TSConfig.References == TSConfigReferencesAuto {
		refs, err := tsconfig.LoadReferences(cfg, r.cache.ReadFile, extends, map[string]bool{cfg.File: true})
		if err == nil {
			cfg.References = refs
		}
	} else if len(r.options.TSConfig.ExplicitRefs) > 0 {
		var refs []tsconfig.Reference
		for _, p := range r.options.TSConfig.ExplicitRefs {
			refCfg, err := r.cache.LoadTSConfig(p, extends)
			if err == nil {
				refs = append(refs, tsconfig.Reference{Path: p, Config: refCfg})
			}
		}
		cfg.References = refs
	}
	return cfg, nil
}

// restrictedExtendsResolver is the "restricted inner resolver" spec §4.6
// requires for "extends": a module/relative lookup with no tsconfig
// mapping and no alias fields, to avoid infinite regress.
func (r *Resolver) restrictedExtendsResolver() tsconfig.ExtendsResolver {
	restricted := r.CloneWithOptions(func(o *Options) {
		o.TSConfig = TSConfigOptions{}
		o.Alias = nil
		o.Fallback = nil
		o.AliasFields = nil
		if len(o.Extensions) == 0 || o.Extensions[0] != ".json" {
			o.Extensions = append([]string{".json"}, o.Extensions...)
		}
	})
	return func(fromDir, specifier string) (string, bool) {
		res := restricted.ResolveSync(fromDir, specifier)
		if res.Err != nil || res.Ignored {
			return "", false
		}
		return res.Path, true
	}
}

// pnpRewrite consults the Yarn PnP manifest governing rq.context, if any.
func (rq *request) pnpRewrite(specifier string) (string, bool) {
	r := rq.resolver
	r.pnpMu.Lock()
	if r.pnpResolver == nil {
		resolved, err := pnp.Discover(r.fs, r.cache, rq.context)
		if err != nil || resolved == nil {
			r.pnpMu.Unlock()
			return "", false
		}
		r.pnpResolver = resolved
	}
	manifest := r.pnpResolver
	r.pnpMu.Unlock()
	return manifest.Resolve(rq.context, specifier)
}

// globMatch adapts doublestar.Match to the signature descriptor/options
// code expects.
func globMatch(pattern, path string) bool {
	ok, err := doublestar.Match(pattern, strings.TrimPrefix(path, "/"))
	return err == nil && ok
}
