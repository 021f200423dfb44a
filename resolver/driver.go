package resolver

import (
	"context"

	"golang.org/x/sync/errgroup"

	"github.com/web-infra-dev/rspack-resolver/pathutil"
)

// ResolveAsync is the asynchronous entry point (spec §4.10, §6
// "resolve_async"). It goes through the exact same rq.resolve front matter
// as ResolveSync — primary alias, PnP rewrite, tsconfig paths, preferRelative
// — so the two entry points never diverge on anything but how stage 5's
// Module branch searches candidate directories (spec §8 property 1
// "R.resolve_sync and R.resolve_async return equal results"). That search,
// when there is more than one candidate directory, fans out concurrently via
// golang.org/x/sync/errgroup. Every started lookup runs to completion; the
// results are then consumed in declared order, the first positive one wins
// and later ones are discarded (spec §4.10 "results MUST be consumed in
// declared order").
func (r *Resolver) ResolveAsync(ctx context.Context, dir, specifier string) Result {
	bare, query, fragment := pathutil.Split(specifier)
	rq := newRequest(r, pathutil.Normalize(dir))
	rq.query, rq.fragment = query, fragment
	rq.ctx = ctx
	rq.async = true

	res := rq.resolve(bare)
	files, missing := rq.dependencySlices()
	res.Query, res.Fragment = query, fragment
	res.FileDependencies = files
	res.MissingDependencies = missing
	return res
}

// resolveModuleAsync is resolveModule's candidate-directory search, fanned
// out across rq.ctx. ok is false when fanning out isn't worthwhile (zero or
// one candidate directory) or nothing matched as a hard success/failure,
// telling the caller to fall through to the ordinary sequential search
// (which still runs with a single candidate, so no result is lost).
func (rq *request) resolveModuleAsync(name, subpath, specifier string) (Result, bool) {
	r := rq.resolver

	var allDirs []string
	for _, modDir := range r.options.Modules {
		allDirs = append(allDirs, rq.packageCandidateDirs(modDir)...)
	}
	if len(allDirs) <= 1 {
		return Result{}, false
	}

	results := make([]Result, len(allDirs))
	tried := make([]bool, len(allDirs))
	subs := make([]*request, len(allDirs))

	g, gctx := errgroup.WithContext(rq.ctx)
	for i, dir := range allDirs {
		i, dir := i, dir
		g.Go(func() error {
			select {
			case <-gctx.Done():
				return nil
			default:
			}
			// Each candidate gets its own request-local visited set derived
			// from rq's so far, since filesystem reads below are read-only
			// and safe to run concurrently against the shared cache
			// (spec §5 "single-flight" — concurrent callers racing on the
			// same path coalesce to one read).
			sub := &request{resolver: r, context: rq.context, visited: cloneVisited(rq.visited),
				fileDeps: make(map[string]bool), missingDeps: make(map[string]bool),
				ctx: rq.ctx, async: true}
			pkgDir := pathutil.Join(dir, name)
			res, didTry, err := sub.resolveInPackageDir(pkgDir, name, subpath, specifier)
			if didTry {
				tried[i] = true
				if err != nil {
					res.Err = err
				}
				results[i] = res
				subs[i] = sub
			}
			return nil
		})
	}
	_ = g.Wait()

	// Dependency sets are merged only after every goroutine has finished,
	// so rq's maps are never written concurrently.
	for _, sub := range subs {
		if sub != nil {
			mergeDeps(rq, sub)
		}
	}

	for i := range allDirs {
		if tried[i] && results[i].Err == nil {
			return results[i], true
		}
	}
	for i := range allDirs {
		if tried[i] && results[i].Err != nil {
			return results[i], true
		}
	}
	return Result{}, false
}

func cloneVisited(m map[string]bool) map[string]bool {
	out := make(map[string]bool, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func mergeDeps(into, from *request) {
	for f := range from.fileDeps {
		into.addFileDep(f)
	}
	for m := range from.missingDeps {
		into.addMissingDep(m)
	}
}
