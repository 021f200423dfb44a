package resolver

import (
	stdpath "path"
	"strings"

	"github.com/web-infra-dev/rspack-resolver/descriptor"
	"github.com/web-infra-dev/rspack-resolver/fs"
	"github.com/web-infra-dev/rspack-resolver/pathutil"
	"github.com/web-infra-dev/rspack-resolver/resolveerr"
)

// expandCandidate runs stages 6 through 9 on an already-absolute path: the
// alias-field rewrite, the file/directory expander, the symlink step, and
// the restrictions filter.
func (rq *request) expandCandidate(absPath string) Result {
	resolved, diffCase, err := rq.loadAsFileOrDirectory(absPath)
	if err != nil {
		return errResult(err)
	}

	if av, desc, ok := rq.aliasFieldRewrite(resolved); ok {
		if av.IsFalse {
			return Result{Ignored: true}
		}
		var last Result
		for _, t := range av.Strings {
			var rewritten string
			if pathutil.IsAbs(t) {
				rewritten = t
			} else {
				rewritten = pathutil.Join(desc.Directory, t)
			}
			if !rq.markVisited(desc.Directory, t) {
				return errResult(resolveerr.New(resolveerr.RecursiveAlias, t, desc.Directory))
			}
			last = rq.expandCandidate(rewritten)
			if last.Err == nil {
				return last
			}
		}
		if len(av.Strings) > 0 {
			return last
		}
	}

	final, err := rq.finalizePath(resolved)
	if err != nil {
		return errResult(err)
	}
	return Result{Path: final, DifferentCase: diffCase}
}

// expandCandidateNoExtensions is used for an exports-engine target, which
// the algorithm treats as already-exact: no extension trying, no directory
// main-field fallback (spec §4.5's targets are taken literally), only the
// symlink step and restrictions filter still apply.
func (rq *request) expandCandidateNoExtensions(absPath string) Result {
	r := rq.resolver
	m, err := r.cache.Stat(absPath)
	if err != nil || m.Kind == fs.MissingEntry {
		rq.addMissingDep(absPath)
		return errResult(resolveerr.NotFoundErr(absPath, rq.context))
	}
	rq.addFileDep(absPath)
	final, err := rq.finalizePath(absPath)
	if err != nil {
		return errResult(err)
	}
	return Result{Path: final}
}

// finalizePath applies the symlink step (stage 8) and restrictions filter
// (stage 9).
func (rq *request) finalizePath(absPath string) (string, error) {
	r := rq.resolver
	final := absPath
	if r.options.Symlinks {
		if real, err := r.cache.Realpath(absPath); err == nil {
			final = real
		}
	}
	if err := rq.checkRestrictions(final); err != nil {
		return "", err
	}
	return final, nil
}

func (rq *request) checkRestrictions(path string) error {
	r := rq.resolver
	for _, restr := range r.options.Restrictions {
		if !restr.Match(path, globMatch) {
			return resolveerr.New(resolveerr.Restricted, path, rq.context)
		}
	}
	return nil
}

// loadAsFileOrDirectory implements stage 7, grounded on the teacher's
// loadAsFileOrDirectory/loadAsFile/loadAsIndex/loadAsMainField
// (internal/resolver/resolver.go).
func (rq *request) loadAsFileOrDirectory(path string) (string, *fs.DifferentCase, error) {
	r := rq.resolver

	if r.options.ResolveToContext {
		m, err := r.cache.Stat(path)
		if err == nil && m.Kind == fs.DirEntry {
			rq.addFileDep(path)
			return path, nil, nil
		}
		rq.addMissingDep(path)
		return "", nil, resolveerr.NotFoundErr(path, rq.context)
	}

	if resolved, diffCase, ok := rq.loadAsFile(path); ok {
		return resolved, diffCase, nil
	}

	m, err := r.cache.Stat(path)
	if err == nil && m.Kind == fs.DirEntry {
		rq.addFileDep(path)
		if resolved, diffCase, ok := rq.loadAsIndex(path); ok {
			return resolved, diffCase, nil
		}
	}

	rq.addMissingDep(path)
	return "", nil, resolveerr.NotFoundErr(path, rq.context)
}

// loadAsFile tries path as an exact file, then with each extensions entry
// appended (honouring extensionAlias and enforceExtension).
func (rq *request) loadAsFile(path string) (string, *fs.DifferentCase, bool) {
	r := rq.resolver

	if resolved, diffCase, ok := rq.statAsFile(path); ok {
		if r.options.EnforceExtension && !hasAnyExtension(path, r.options.Extensions) {
			// Fall through to extension trying below rather than accept.
		} else {
			return resolved, diffCase, true
		}
	}

	if r.options.FullySpecified {
		return "", nil, false
	}

	stem, exts := extensionsFor(path, r.options)
	for _, ext := range exts {
		candidate := stem + ext
		if resolved, diffCase, ok := rq.statAsFile(candidate); ok {
			return resolved, diffCase, true
		}
	}
	return "", nil, false
}

// extensionsFor expands r.options.ExtensionAlias against path's current
// suffix, then falls back to r.options.Extensions, matching spec §4.7's
// "replace the former suffix, try each replacement in order, and only fall
// back to the next after exhausting earlier ones". It returns the stem the
// extensions are appended to: path minus the aliased suffix, or path itself.
func extensionsFor(path string, o Options) (string, []string) {
	for suffix, replacements := range o.ExtensionAlias {
		if strings.HasSuffix(path, suffix) {
			return strings.TrimSuffix(path, suffix), replacements
		}
	}
	return path, o.Extensions
}

func hasAnyExtension(path string, extensions []string) bool {
	for _, ext := range extensions {
		if strings.HasSuffix(path, ext) {
			return true
		}
	}
	return false
}

func (rq *request) statAsFile(path string) (string, *fs.DifferentCase, bool) {
	r := rq.resolver
	dir := pathutil.Join(path, "..")
	base := stdpath.Base(path)

	entries, err := r.cache.ReadDir(dir)
	if err != nil {
		rq.addMissingDep(path)
		return "", nil, false
	}
	kind, diffCase, ok := entries.Get(base)
	if !ok || kind == fs.MissingEntry || kind == fs.DirEntry {
		rq.addMissingDep(path)
		return "", nil, false
	}
	rq.addFileDep(path)
	return path, diffCase, true
}

// loadAsIndex tries each mainFields entry of dir's description file, then
// falls back to each mainFiles name with extensions tried, mirroring the
// teacher's loadAsMainField/loadAsIndex pair.
func (rq *request) loadAsIndex(dir string) (string, *fs.DifferentCase, bool) {
	r := rq.resolver

	descPath, found := r.cache.NearestDescriptionFile(dir, r.options.DescriptionFiles)
	if found && pathutil.Join(descPath, "..") == pathutil.Join(dir) {
		rq.addFileDep(descPath)
		if desc, err := rq.parseDescriptionFile(descPath); err == nil {
			for _, field := range r.options.MainFields {
				value, ok := desc.MainFieldValues[field]
				if !ok {
					continue
				}
				candidate := pathutil.Join(desc.Directory, value)
				if resolved, diffCase, ok := rq.loadAsFile(candidate); ok {
					return resolved, diffCase, true
				}
				if m, err := r.cache.Stat(candidate); err == nil && m.Kind == fs.DirEntry {
					if resolved, diffCase, ok := rq.loadAsIndexFiles(candidate); ok {
						return resolved, diffCase, true
					}
				}
			}
		}
	}

	return rq.loadAsIndexFiles(dir)
}

func (rq *request) loadAsIndexFiles(dir string) (string, *fs.DifferentCase, bool) {
	r := rq.resolver
	for _, name := range r.options.MainFiles {
		candidate := pathutil.Join(dir, name)
		if resolved, diffCase, ok := rq.loadAsFile(candidate); ok {
			return resolved, diffCase, true
		}
	}
	return "", nil, false
}

// aliasFieldRewrite checks whether the description file governing resolved
// rewrites it via an alias field (spec §4.8 stage 6).
func (rq *request) aliasFieldRewrite(resolved string) (descriptor.AliasValue, *descriptor.File, bool) {
	r := rq.resolver
	if len(r.options.AliasFields) == 0 {
		return descriptor.AliasValue{}, nil, false
	}
	descPath, found := r.cache.NearestDescriptionFile(pathutil.Join(resolved, ".."), r.options.DescriptionFiles)
	if !found {
		return descriptor.AliasValue{}, nil, false
	}
	desc, err := rq.parseDescriptionFile(descPath)
	if err != nil {
		return descriptor.AliasValue{}, nil, false
	}
	rel := relativize(resolved, desc.Directory)
	for field := range desc.AliasFields {
		if av, ok := desc.LookupAliasField(field, rel); ok {
			return av, desc, true
		}
	}
	return descriptor.AliasValue{}, nil, false
}
