package resolver

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/web-infra-dev/rspack-resolver/descriptor"
	"github.com/web-infra-dev/rspack-resolver/fs"
)

func TestResolveRelativeFile(t *testing.T) {
	filesystem := fs.Mem(map[string]string{
		"/proj/src/index.js": "",
		"/proj/src/util.js":  "",
	})
	r := New(filesystem, DefaultOptions())
	res := r.ResolveSync("/proj/src", "./util.js")
	require.NoError(t, res.Err)
	assert.Equal(t, "/proj/src/util.js", res.Path)
}

func TestResolveRelativeExtensionTrying(t *testing.T) {
	filesystem := fs.Mem(map[string]string{
		"/proj/src/index.js": "",
		"/proj/src/util.js":  "",
	})
	r := New(filesystem, DefaultOptions())
	res := r.ResolveSync("/proj/src", "./util")
	require.NoError(t, res.Err)
	assert.Equal(t, "/proj/src/util.js", res.Path)
}

func TestResolveDirectoryIndex(t *testing.T) {
	filesystem := fs.Mem(map[string]string{
		"/proj/src/lib/index.js": "",
	})
	r := New(filesystem, DefaultOptions())
	res := r.ResolveSync("/proj/src", "./lib")
	require.NoError(t, res.Err)
	assert.Equal(t, "/proj/src/lib/index.js", res.Path)
}

func TestResolveModuleMainField(t *testing.T) {
	filesystem := fs.Mem(map[string]string{
		"/proj/node_modules/pkg/package.json": `{"name": "pkg", "main": "./lib/main.js"}`,
		"/proj/node_modules/pkg/lib/main.js":  "",
		"/proj/src/entry.js":                  "",
	})
	r := New(filesystem, DefaultOptions())
	res := r.ResolveSync("/proj/src", "pkg")
	require.NoError(t, res.Err)
	assert.Equal(t, "/proj/node_modules/pkg/lib/main.js", res.Path)
}

func TestResolveModuleWalksUpNodeModules(t *testing.T) {
	filesystem := fs.Mem(map[string]string{
		"/proj/node_modules/pkg/package.json": `{"name": "pkg", "main": "index.js"}`,
		"/proj/node_modules/pkg/index.js":     "",
	})
	r := New(filesystem, DefaultOptions())
	res := r.ResolveSync("/proj/src/deep/nested", "pkg")
	require.NoError(t, res.Err)
	assert.Equal(t, "/proj/node_modules/pkg/index.js", res.Path)
}

func TestPnPManifestRewritesModuleSpecifier(t *testing.T) {
	manifest := `{
		"packageRegistryData": [
			[null, [["", {
				"packageLocation": "./",
				"packageDependencies": [["pkg-a", "npm:1.0.0"]]
			}]]],
			["pkg-a", [["npm:1.0.0", {
				"packageLocation": "./.yarn/cache/pkg-a-npm-1.0.0/",
				"packageDependencies": []
			}]]]
		]
	}`
	filesystem := fs.Mem(map[string]string{
		"/proj/.pnp.data.json": manifest,
		"/proj/.yarn/cache/pkg-a-npm-1.0.0/package.json": `{"name": "pkg-a", "main": "./index.js"}`,
		"/proj/.yarn/cache/pkg-a-npm-1.0.0/index.js":     "",
		"/proj/node_modules/pkg-a/index.js":              "",
	})
	opts := DefaultOptions()
	opts.PnP = true
	r := New(filesystem, opts)

	res := r.ResolveSync("/proj/src", "pkg-a")
	require.NoError(t, res.Err)
	assert.Equal(t, "/proj/.yarn/cache/pkg-a-npm-1.0.0/index.js", res.Path)
}

func TestAliasStringSubstitution(t *testing.T) {
	filesystem := fs.Mem(map[string]string{
		"/proj/src/real.js": "",
	})
	opts := DefaultOptions()
	opts.Alias = []AliasEntry{{Key: "virtual", Target: AliasTarget{Targets: []string{"./real.js"}}}}
	r := New(filesystem, opts)
	res := r.ResolveSync("/proj/src", "virtual")
	require.NoError(t, res.Err)
	assert.Equal(t, "/proj/src/real.js", res.Path)
}

func TestAliasFalseIsIgnored(t *testing.T) {
	filesystem := fs.Mem(map[string]string{})
	opts := DefaultOptions()
	opts.Alias = []AliasEntry{{Key: "skip-me", Target: AliasTarget{IsFalse: true}}}
	r := New(filesystem, opts)
	res := r.ResolveSync("/proj/src", "skip-me")
	assert.NoError(t, res.Err)
	assert.True(t, res.Ignored)
}

func TestAliasArrayFallsBackToNextTarget(t *testing.T) {
	filesystem := fs.Mem(map[string]string{
		"/proj/src/second.js": "",
	})
	opts := DefaultOptions()
	opts.Alias = []AliasEntry{{Key: "thing", Target: AliasTarget{Targets: []string{"./missing.js", "./second.js"}}}}
	r := New(filesystem, opts)
	res := r.ResolveSync("/proj/src", "thing")
	require.NoError(t, res.Err)
	assert.Equal(t, "/proj/src/second.js", res.Path)
}

func TestBrowserFieldRewrite(t *testing.T) {
	filesystem := fs.Mem(map[string]string{
		"/proj/node_modules/pkg/package.json": `{
			"name": "pkg",
			"main": "./lib/node.js",
			"browser": {"./lib/node.js": "./lib/browser.js"}
		}`,
		"/proj/node_modules/pkg/lib/node.js":    "",
		"/proj/node_modules/pkg/lib/browser.js": "",
	})
	opts := DefaultOptions()
	opts.AliasFields = []descriptor.FieldSpec{{"browser"}}
	r := New(filesystem, opts)
	res := r.ResolveSync("/proj/src", "pkg")
	require.NoError(t, res.Err)
	assert.Equal(t, "/proj/node_modules/pkg/lib/browser.js", res.Path)
}

func TestBrowserFieldRewriteUsesPackageDirectoryNotCallerContext(t *testing.T) {
	// Regression test: a caller resolving from a directory other than the
	// package root must still have the browser-field target resolved
	// relative to the owning package's directory.
	filesystem := fs.Mem(map[string]string{
		"/proj/node_modules/pkg/package.json": `{
			"name": "pkg",
			"browser": {"./sub/mod.js": "./sub/mod-browser.js"}
		}`,
		"/proj/node_modules/pkg/sub/mod.js":         "",
		"/proj/node_modules/pkg/sub/mod-browser.js": "",
	})
	opts := DefaultOptions()
	opts.AliasFields = []descriptor.FieldSpec{{"browser"}}
	opts.Modules = []string{"/proj/node_modules"}
	r := New(filesystem, opts)
	res := r.ResolveSync("/totally/unrelated/dir", "pkg/sub/mod.js")
	require.NoError(t, res.Err)
	assert.Equal(t, "/proj/node_modules/pkg/sub/mod-browser.js", res.Path)
}

func TestNestedAliasField(t *testing.T) {
	filesystem := fs.Mem(map[string]string{
		"/proj/node_modules/pkg/package.json": `{
			"name": "pkg",
			"main": "./index.js",
			"field": {"browser": {"./index.js": "./index-inner.js"}}
		}`,
		"/proj/node_modules/pkg/index.js":       "",
		"/proj/node_modules/pkg/index-inner.js": "",
	})
	opts := DefaultOptions()
	opts.AliasFields = []descriptor.FieldSpec{{"innerBrowser1", "field", "browser"}}
	r := New(filesystem, opts)
	res := r.ResolveSync("/proj/src", "pkg")
	require.NoError(t, res.Err)
	assert.Equal(t, "/proj/node_modules/pkg/index-inner.js", res.Path)
}

func TestExportsCustomField(t *testing.T) {
	filesystem := fs.Mem(map[string]string{
		"/proj/node_modules/pkg/package.json": `{
			"name": "pkg",
			"publishConfig": {".": "./dist/index.js", "./feature": "./dist/feature.js"}
		}`,
		"/proj/node_modules/pkg/dist/index.js":   "",
		"/proj/node_modules/pkg/dist/feature.js": "",
	})
	opts := DefaultOptions()
	opts.ExportsFields = []string{"publishConfig"}
	r := New(filesystem, opts)

	res := r.ResolveSync("/proj/src", "pkg")
	require.NoError(t, res.Err)
	assert.Equal(t, "/proj/node_modules/pkg/dist/index.js", res.Path)

	res = r.ResolveSync("/proj/src", "pkg/feature")
	require.NoError(t, res.Err)
	assert.Equal(t, "/proj/node_modules/pkg/dist/feature.js", res.Path)
}

func TestExportsRestrictsUnlistedSubpath(t *testing.T) {
	filesystem := fs.Mem(map[string]string{
		"/proj/node_modules/pkg/package.json": `{"name": "pkg", "exports": {".": "./index.js"}}`,
		"/proj/node_modules/pkg/index.js":     "",
		"/proj/node_modules/pkg/internal.js":  "",
	})
	r := New(filesystem, DefaultOptions())
	res := r.ResolveSync("/proj/src", "pkg/internal.js")
	assert.Error(t, res.Err)
}

func TestMainFilesDefaultIndex(t *testing.T) {
	filesystem := fs.Mem(map[string]string{
		"/proj/src/lib/index.js": "",
	})
	opts := DefaultOptions()
	r := New(filesystem, opts)
	res := r.ResolveSync("/proj/src", "./lib")
	require.NoError(t, res.Err)
	assert.Equal(t, "/proj/src/lib/index.js", res.Path)
}

func TestTSConfigPathsMapping(t *testing.T) {
	filesystem := fs.Mem(map[string]string{
		"/proj/tsconfig.json": `{
			"compilerOptions": {"baseUrl": ".", "paths": {"@app/*": ["./src/*"]}}
		}`,
		"/proj/src/widget.js": "",
	})
	opts := DefaultOptions()
	opts.TSConfig.ConfigFile = "/proj/tsconfig.json"
	r := New(filesystem, opts)
	res := r.ResolveSync("/proj", "@app/widget")
	require.NoError(t, res.Err)
	assert.Equal(t, "/proj/src/widget.js", res.Path)
}

func TestTSConfigReferencesScopePathsByDirectory(t *testing.T) {
	filesystem := fs.Mem(map[string]string{
		"/proj/tsconfig.json": `{
			"references": [{"path": "./packages/a"}]
		}`,
		"/proj/packages/a/tsconfig.json": `{
			"compilerOptions": {"baseUrl": ".", "paths": {"@a/*": ["./src/*"]}}
		}`,
		"/proj/packages/a/src/widget.js": "",
	})
	opts := DefaultOptions()
	opts.TSConfig.ConfigFile = "/proj/tsconfig.json"
	opts.TSConfig.References = TSConfigReferencesAuto
	r := New(filesystem, opts)
	res := r.ResolveSync("/proj/packages/a", "@a/widget")
	require.NoError(t, res.Err)
	assert.Equal(t, "/proj/packages/a/src/widget.js", res.Path)
}

func TestRestrictionsExcludePath(t *testing.T) {
	filesystem := fs.Mem(map[string]string{
		"/proj/src/secret.js": "",
	})
	opts := DefaultOptions()
	opts.Restrictions = []Restriction{{Prefix: "/proj/public"}}
	r := New(filesystem, opts)
	res := r.ResolveSync("/proj/src", "./secret.js")
	assert.Error(t, res.Err)
}

func TestNotFoundProducesStableErrorPrefix(t *testing.T) {
	filesystem := fs.Mem(map[string]string{})
	r := New(filesystem, DefaultOptions())
	res := r.ResolveSync("/proj/src", "./missing.js")
	require.Error(t, res.Err)
	assert.Contains(t, res.Err.Error(), "Cannot find module")
}

func TestCloneWithOptionsSharesCache(t *testing.T) {
	filesystem := fs.Mem(map[string]string{
		"/proj/src/a.js": "",
	})
	base := New(filesystem, DefaultOptions())
	clone := base.CloneWithOptions(func(o *Options) { o.Symlinks = false })
	assert.Same(t, base.cache, clone.cache)

	res1 := base.ResolveSync("/proj/src", "./a.js")
	res2 := clone.ResolveSync("/proj/src", "./a.js")
	require.NoError(t, res1.Err)
	require.NoError(t, res2.Err)
	assert.Equal(t, res1.Path, res2.Path)
}

func TestResolveAsyncMatchesResolveSync(t *testing.T) {
	filesystem := fs.Mem(map[string]string{
		"/a/node_modules/pkg/package.json": `{"name": "pkg", "main": "index.js"}`,
		"/a/node_modules/pkg/index.js":     "",
		"/proj/node_modules/pkg/package.json": `{"name": "pkg", "main": "index.js"}`,
		"/proj/node_modules/pkg/index.js":     "",
	})
	opts := DefaultOptions()
	opts.Modules = []string{"node_modules", "/a/node_modules"}
	r := New(filesystem, opts)

	sync := r.ResolveSync("/proj/src", "pkg")
	async := r.ResolveAsync(context.Background(), "/proj/src", "pkg")
	require.NoError(t, sync.Err)
	require.NoError(t, async.Err)
	assert.Equal(t, sync.Path, async.Path)
}

func TestResolveAsyncAppliesAliasBeforeFanningOutModules(t *testing.T) {
	// Regression test: with more than one Modules entry, ResolveAsync used
	// to fan out the node_modules directory search directly, bypassing the
	// primary-alias stage ResolveSync applies first. Both entry points must
	// agree (spec §8 property 1).
	filesystem := fs.Mem(map[string]string{
		"/proj/src/local/foo.js": "",
	})
	opts := DefaultOptions()
	opts.Alias = []AliasEntry{{Key: "foo", Target: AliasTarget{Targets: []string{"./local/foo.js"}}}}
	opts.Modules = []string{"node_modules", "extra_modules"}
	r := New(filesystem, opts)

	sync := r.ResolveSync("/proj/src", "foo")
	async := r.ResolveAsync(context.Background(), "/proj/src", "foo")
	require.NoError(t, sync.Err)
	require.NoError(t, async.Err)
	assert.Equal(t, "/proj/src/local/foo.js", sync.Path)
	assert.Equal(t, sync.Path, async.Path)
}

func TestServerRelativeResolvesAgainstRoots(t *testing.T) {
	filesystem := fs.Mem(map[string]string{
		"/www/assets/logo.svg": "",
	})
	opts := DefaultOptions()
	opts.Roots = []string{"/www"}
	r := New(filesystem, opts)
	res := r.ResolveSync("/proj/src", "/assets/logo.svg")
	require.NoError(t, res.Err)
	assert.Equal(t, "/www/assets/logo.svg", res.Path)
}

func TestServerRelativePreferAbsoluteTriesLiteralPathFirst(t *testing.T) {
	filesystem := fs.Mem(map[string]string{
		"/assets/logo.svg":      "",
		"/www/assets/other.svg": "",
	})
	opts := DefaultOptions()
	opts.Roots = []string{"/www"}
	opts.PreferAbsolute = true
	r := New(filesystem, opts)

	res := r.ResolveSync("/proj/src", "/assets/logo.svg")
	require.NoError(t, res.Err)
	assert.Equal(t, "/assets/logo.svg", res.Path)

	res = r.ResolveSync("/proj/src", "/assets/other.svg")
	require.NoError(t, res.Err)
	assert.Equal(t, "/www/assets/other.svg", res.Path)
}

func TestQueryAndFragmentArePreserved(t *testing.T) {
	filesystem := fs.Mem(map[string]string{
		"/proj/src/a.js": "",
	})
	r := New(filesystem, DefaultOptions())
	res := r.ResolveSync("/proj/src", "./a.js?raw#frag")
	require.NoError(t, res.Err)
	assert.Equal(t, "/proj/src/a.js", res.Path)
	assert.Equal(t, "?raw", res.Query)
	assert.Equal(t, "#frag", res.Fragment)
}
