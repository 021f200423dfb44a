package pnp

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/web-infra-dev/rspack-resolver/fs"
	"github.com/web-infra-dev/rspack-resolver/internal/cache"
)

// manifest mirrors the ".pnp.data.json" shape parseManifest reads:
// packageRegistryData is [ident, [[reference, info]]] pairs, with
// the project root keyed by a null ident and empty reference (spec §4.9,
// grounded on the teacher's yarnpnp_test.go fixtures).
const manifest = `{
	"enableTopLevelFallback": true,
	"packageRegistryData": [
		[null, [["", {
			"packageLocation": "./",
			"packageDependencies": [
				["pkg-a", "npm:1.0.0"],
				["pkg-b", "npm:2.0.0"],
				["@scope/pkg", "npm:3.0.0"]
			]
		}]]],
		["pkg-a", [["npm:1.0.0", {
			"packageLocation": "./.yarn/cache/pkg-a-npm-1.0.0/",
			"packageDependencies": []
		}]]],
		["pkg-b", [["npm:2.0.0", {
			"packageLocation": "./.yarn/cache/pkg-b-npm-2.0.0/",
			"packageDependencies": []
		}]]],
		["@scope/pkg", [["npm:3.0.0", {
			"packageLocation": "./.yarn/cache/scope-pkg-npm-3.0.0/",
			"packageDependencies": []
		}]]]
	]
}`

func TestDiscoverFindsManifestWalkingUpward(t *testing.T) {
	filesystem := fs.Mem(map[string]string{
		"/proj/.pnp.data.json": manifest,
		"/proj/src/deep/index.js": "",
	})
	c := cache.New(filesystem)

	r, err := Discover(filesystem, c, "/proj/src/deep")
	require.NoError(t, err)
	require.NotNil(t, r)
	assert.Equal(t, "/proj", r.rootDir)
}

func TestDiscoverReturnsNilWhenNoManifestPresent(t *testing.T) {
	filesystem := fs.Mem(map[string]string{
		"/proj/src/index.js": "",
	})
	c := cache.New(filesystem)

	r, err := Discover(filesystem, c, "/proj/src")
	require.NoError(t, err)
	assert.Nil(t, r)
}

func discoverOrFail(t *testing.T) *Resolver {
	t.Helper()
	filesystem := fs.Mem(map[string]string{
		"/proj/.pnp.data.json": manifest,
	})
	c := cache.New(filesystem)
	r, err := Discover(filesystem, c, "/proj")
	require.NoError(t, err)
	require.NotNil(t, r)
	return r
}

func TestResolveDirectDependencyFromRoot(t *testing.T) {
	r := discoverOrFail(t)

	path, ok := r.Resolve("/proj", "pkg-a")
	require.True(t, ok)
	assert.Equal(t, "/proj/.yarn/cache/pkg-a-npm-1.0.0", path)
}

func TestResolveSubpathAppendsModulePath(t *testing.T) {
	r := discoverOrFail(t)

	path, ok := r.Resolve("/proj", "pkg-a/lib/foo.js")
	require.True(t, ok)
	assert.Equal(t, "/proj/.yarn/cache/pkg-a-npm-1.0.0/lib/foo.js", path)
}

func TestResolveScopedPackage(t *testing.T) {
	r := discoverOrFail(t)

	path, ok := r.Resolve("/proj", "@scope/pkg/index.js")
	require.True(t, ok)
	assert.Equal(t, "/proj/.yarn/cache/scope-pkg-npm-3.0.0/index.js", path)
}

// TestResolveFallsBackToTopLevelPool exercises the unconstrained-fallback
// path (spec §4.9): pkg-a doesn't declare pkg-b as a dependency of its own,
// but a request from inside pkg-a's directory for pkg-b still resolves via
// the root project's dependency pool, mirroring the teacher's
// resolveViaFallback.
func TestResolveFallsBackToTopLevelPool(t *testing.T) {
	r := discoverOrFail(t)

	path, ok := r.Resolve("/proj/.yarn/cache/pkg-a-npm-1.0.0/lib", "pkg-b")
	require.True(t, ok)
	assert.Equal(t, "/proj/.yarn/cache/pkg-b-npm-2.0.0", path)
}

func TestResolveUnknownPackageFails(t *testing.T) {
	r := discoverOrFail(t)

	_, ok := r.Resolve("/proj", "pkg-unlisted")
	assert.False(t, ok)
}

func TestFindLocatorPicksLongestPrefix(t *testing.T) {
	r := discoverOrFail(t)

	locator, ok := r.findLocator("/proj/.yarn/cache/pkg-a-npm-1.0.0/lib/deep")
	require.True(t, ok)
	assert.Equal(t, "pkg-a", locator.Ident)
	assert.Equal(t, "npm:1.0.0", locator.Reference)

	root, ok := r.findLocator("/proj/src")
	require.True(t, ok)
	assert.Equal(t, "", root.Ident)
	assert.Equal(t, "", root.Reference)
}

func TestSplitIdentHandlesScopedAndSubpaths(t *testing.T) {
	cases := []struct {
		specifier   string
		wantIdent   string
		wantModPath string
	}{
		{"pkg-a", "pkg-a", "."},
		{"pkg-a/lib/foo.js", "pkg-a", "./lib/foo.js"},
		{"@scope/pkg", "@scope/pkg", "."},
		{"@scope/pkg/sub", "@scope/pkg", "./sub"},
	}
	for _, c := range cases {
		ident, modPath, ok := splitIdent(c.specifier)
		require.True(t, ok, c.specifier)
		assert.Equal(t, c.wantIdent, ident, c.specifier)
		assert.Equal(t, c.wantModPath, modPath, c.specifier)
	}

	_, _, ok := splitIdent("@scope")
	assert.False(t, ok, "a scope with no package name is not a valid specifier")
}
