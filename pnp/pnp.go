// Package pnp implements the Yarn Plug'n'Play adapter (spec §4.9, C9): an
// optional path-rewrite stage consulted before node_modules lookup when a
// PnP manifest governs the resolution context. Grounded on the teacher's
// internal/resolver/yarnpnp.go (parseBareIdentifier, resolveToUnqualified,
// findLocator, resolveViaFallback, getPackage), narrowed to the
// ".pnp.data.json" manifest shape — pure JSON, unlike the ".pnp.cjs"
// executable manifest esbuild also supports, which requires embedding a
// full JS parser this library has no other use for (see DESIGN.md).
package pnp

import (
	"strings"

	"github.com/web-infra-dev/rspack-resolver/fs"
	"github.com/web-infra-dev/rspack-resolver/jsonc"
	"github.com/web-infra-dev/rspack-resolver/pathutil"
)

// manifestNames are the filenames searched for, in order, at and above a
// resolution context directory.
var manifestNames = []string{".pnp.data.json", ".pnp.json"}

// identAndReference is a locator: a package identity plus the version/
// resolution string that, together, pick one entry out of
// packageRegistryData. Both empty means "null" (missing peer dependency).
type identAndReference struct {
	Ident     string
	Reference string
}

type pkgEntry struct {
	PackageLocation string
	Dependencies    map[string]identAndReference
}

// Resolver is a loaded, queryable PnP manifest.
type Resolver struct {
	rootDir    string
	registry   map[string]map[string]pkgEntry // ident -> reference -> entry
	locatorsByLocation map[string]identAndReference
	fallbackPool map[string]identAndReference
	enableTopLevelFallback bool
}

// cacheReader is the minimal surface Discover needs from
// internal/cache.Set, accepted as an interface so this package doesn't
// import cache and create an import cycle (cache doesn't need pnp).
type cacheReader interface {
	Stat(path string) (fs.Metadata, error)
	ReadFile(path string) (string, error)
}

// Discover walks upward from dir looking for a PnP manifest. It returns a
// nil Resolver (and nil error) if none is found — that is not a failure,
// just "PnP is not in effect here".
func Discover(filesystem fs.FS, cache cacheReader, dir string) (*Resolver, error) {
	current := pathutil.Normalize(dir)
	for {
		for _, name := range manifestNames {
			candidate := pathutil.Join(current, name)
			if m, err := cache.Stat(candidate); err == nil && m.Kind == fs.FileEntry {
				contents, err := cache.ReadFile(candidate)
				if err != nil {
					return nil, err
				}
				return parseManifest(current, contents)
			}
		}
		parent := pathutil.Join(current, "..")
		if parent == current {
			return nil, nil
		}
		current = parent
	}
}

func parseManifest(rootDir, contents string) (*Resolver, error) {
	root, err := jsonc.Parse(contents, jsonc.Options{})
	if err != nil {
		return nil, err
	}

	res := &Resolver{
		rootDir:            rootDir,
		registry:           make(map[string]map[string]pkgEntry),
		locatorsByLocation: make(map[string]identAndReference),
		fallbackPool:       make(map[string]identAndReference),
	}

	if b, ok := root.GetBool("enableTopLevelFallback"); ok {
		res.enableTopLevelFallback = b
	}

	if reg, ok := root.Get("packageRegistryData"); ok && reg.Kind == jsonc.Array {
		for _, entry := range reg.Arr {
			if entry.Kind != jsonc.Array || len(entry.Arr) != 2 {
				continue
			}
			ident := ""
			if entry.Arr[0].Kind == jsonc.String {
				ident = entry.Arr[0].Str
			}
			refList := entry.Arr[1]
			if refList.Kind != jsonc.Array {
				continue
			}
			for _, refEntry := range refList.Arr {
				if refEntry.Kind != jsonc.Array || len(refEntry.Arr) != 2 {
					continue
				}
				reference := ""
				if refEntry.Arr[0].Kind == jsonc.String {
					reference = refEntry.Arr[0].Str
				}
				info := refEntry.Arr[1]
				loc, _ := info.GetString("packageLocation")
				pkg := pkgEntry{
					PackageLocation: pathutil.Join(rootDir, loc),
					Dependencies:    make(map[string]identAndReference),
				}
				if deps, ok := info.Get("packageDependencies"); ok && deps.Kind == jsonc.Array {
					for _, dep := range deps.Arr {
						if dep.Kind != jsonc.Array || len(dep.Arr) != 2 {
							continue
						}
						depName := ""
						if dep.Arr[0].Kind == jsonc.String {
							depName = dep.Arr[0].Str
						}
						var target identAndReference
						switch dep.Arr[1].Kind {
						case jsonc.String:
							target = identAndReference{Ident: depName, Reference: dep.Arr[1].Str}
						case jsonc.Array:
							if len(dep.Arr[1].Arr) == 2 {
								if dep.Arr[1].Arr[0].Kind == jsonc.String {
									target.Ident = dep.Arr[1].Arr[0].Str
								}
								if dep.Arr[1].Arr[1].Kind == jsonc.String {
									target.Reference = dep.Arr[1].Arr[1].Str
								}
							}
						}
						pkg.Dependencies[depName] = target
					}
				}
				if res.registry[ident] == nil {
					res.registry[ident] = make(map[string]pkgEntry)
				}
				res.registry[ident][reference] = pkg
				res.locatorsByLocation[pkg.PackageLocation] = identAndReference{Ident: ident, Reference: reference}
			}
		}
	}

	if topLevel, ok := res.registry[""]; ok {
		if root, ok := topLevel[""]; ok {
			for name, target := range root.Dependencies {
				res.fallbackPool[name] = target
			}
		}
	}

	return res, nil
}

// Resolve rewrites a bare module specifier into an absolute path, if the
// manifest governs context and names the package. ok is false when PnP has
// nothing to say about specifier (the caller should fall through to
// ordinary node_modules resolution, which esbuild's own PnP mode also does
// for ignored paths).
func (r *Resolver) Resolve(context, specifier string) (string, bool) {
	ident, modulePath, ok := splitIdent(specifier)
	if !ok {
		return "", false
	}

	locator, ok := r.findLocator(context)
	if !ok {
		return "", false
	}

	target, ok := r.lookupDependency(locator, ident)
	if !ok {
		target, ok = r.fallbackPool[ident]
		if !ok {
			return "", false
		}
	}
	if target.Ident == "" && target.Reference == "" {
		return "", false
	}

	pkg, ok := r.registry[target.Ident][target.Reference]
	if !ok {
		return "", false
	}
	return pathutil.Join(pkg.PackageLocation, modulePath), true
}

func (r *Resolver) lookupDependency(locator identAndReference, ident string) (identAndReference, bool) {
	pkg, ok := r.registry[locator.Ident][locator.Reference]
	if !ok {
		return identAndReference{}, false
	}
	target, ok := pkg.Dependencies[ident]
	return target, ok
}

// findLocator reports the package locator that owns context, by longest
// matching PackageLocation prefix (mirroring the teacher's findLocator).
func (r *Resolver) findLocator(context string) (identAndReference, bool) {
	best := ""
	var bestLocator identAndReference
	found := false
	for loc, locator := range r.locatorsByLocation {
		if strings.HasPrefix(context, loc) && len(loc) > len(best) {
			best, bestLocator, found = loc, locator, true
		}
	}
	return bestLocator, found
}

// splitIdent mirrors the teacher's parseBareIdentifier: splits a bare
// specifier into its package ident and the module-internal remainder.
func splitIdent(specifier string) (ident string, modulePath string, ok bool) {
	slash := strings.IndexByte(specifier, '/')
	if strings.HasPrefix(specifier, "@") {
		if slash == -1 {
			return "", "", false
		}
		if slash2 := strings.IndexByte(specifier[slash+1:], '/'); slash2 != -1 {
			ident = specifier[:slash+1+slash2]
		} else {
			ident = specifier
		}
	} else if slash != -1 {
		ident = specifier[:slash]
	} else {
		ident = specifier
	}
	modulePath = strings.TrimPrefix(specifier[len(ident):], "/")
	if modulePath == "" {
		modulePath = "."
	} else {
		modulePath = "./" + modulePath
	}
	return ident, modulePath, true
}
