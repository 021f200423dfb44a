// Package resolver is the core module resolution state machine (spec §4.8)
// and its supporting options model (spec §4.7), grounded on the teacher's
// internal/resolver package: the same pipeline shape (alias -> tsconfig
// paths -> kind dispatch -> description file -> extensions -> symlinks ->
// restrictions -> fallback), generalised from esbuild's bundler-specific
// options into a standalone library surface.
package resolver

import (
	"regexp"

	"github.com/web-infra-dev/rspack-resolver/descriptor"
)

// AliasTarget is the tagged union an alias/fallback entry's target can be:
// a plain substitute string, "ignore this module" (false), or an ordered
// list of fallbacks to try (spec §4.7 "String-keyed option variants").
type AliasTarget struct {
	IsFalse bool
	Targets []string // len 1 for a plain string, >1 for an array
}

// AliasEntry is one (key, target) pair of the alias/fallback option lists.
// Order matters: entries are tried in the order given, and the key may be
// matched exactly or as a longest directory prefix.
type AliasEntry struct {
	Key    string
	Target AliasTarget
}

// Restriction is a predicate every resolved path must satisfy (spec §4.7
// "restrictions"). Exactly one of Prefix, Regex, Glob is set.
type Restriction struct {
	Prefix string
	Regex  *regexp.Regexp
	Glob   string // doublestar pattern, matched via bmatcuk/doublestar/v4
}

// Match reports whether path satisfies this restriction.
func (r Restriction) Match(path string, globMatch func(pattern, path string) bool) bool {
	switch {
	case r.Regex != nil:
		return r.Regex.MatchString(path)
	case r.Glob != "":
		return globMatch(r.Glob, path)
	default:
		return len(path) >= len(r.Prefix) && path[:len(r.Prefix)] == r.Prefix
	}
}

// TSConfigOptions configures the tsconfig engine (spec §4.6).
type TSConfigOptions struct {
	// ConfigFile is the absolute path of the tsconfig.json to load. Empty
	// disables tsconfig path mapping entirely.
	ConfigFile string

	// References controls project-reference handling: "auto" inherits the
	// declared "references" array from ConfigFile. With any other value, a
	// non-empty ExplicitRefs list of tsconfig paths is used instead of the
	// declared set; with neither, only the root tsconfig is consulted.
	References       string
	ExplicitRefs     []string
}

const TSConfigReferencesAuto = "auto"

// Options is the full set of resolver tunables (spec §4.7's table). A zero
// Options is invalid; use DefaultOptions as a base and override fields, the
// way the teacher seeds config.Options before mutating it per-platform.
type Options struct {
	Alias    []AliasEntry
	Fallback []AliasEntry

	// AliasFields names the description-file fields consulted to rewrite a
	// resolved candidate (e.g. []FieldSpec{{"browser"}}). Nested specs, as
	// in descriptor.FieldSpec, read a field's sub-path but register it
	// under the spec's first element.
	AliasFields []descriptor.FieldSpec

	ExportsFields []string
	ImportsFields []string

	Extensions     []string
	ExtensionAlias map[string][]string

	MainFields []string
	MainFiles  []string

	// Modules is the ordered list of node_modules-style directory names
	// (bare, triggering upward walk) or absolute directories to search for
	// module specifiers.
	Modules []string

	ConditionNames map[string]bool

	DescriptionFiles []string

	EnforceExtension bool
	FullySpecified   bool
	PreferRelative   bool
	PreferAbsolute   bool

	Roots        []string
	Restrictions []Restriction

	Symlinks       bool
	ResolveToContext bool

	TSConfig TSConfigOptions

	// PnP enables Yarn Plug'n'Play manifest consultation (C9) for module
	// specifiers when a .pnp.data.json/.pnp.json manifest governs Context.
	PnP bool

	// KeepRawDescriptionFile preserves the full parsed package.json on
	// descriptor.File.Raw for the opt-in raw-access capability (spec §9:
	// must not change resolution outcomes).
	KeepRawDescriptionFile bool
}

// DefaultOptions returns the enhanced-resolve-compatible defaults, mirrored
// from the teacher's NewResolver seeding of config.Options before callers
// override individual fields.
func DefaultOptions() Options {
	return Options{
		AliasFields:      nil,
		ExportsFields:    []string{"exports"},
		ImportsFields:    []string{"imports"},
		Extensions:       []string{".js", ".json", ".node"},
		MainFields:       []string{"main"},
		MainFiles:        []string{"index"},
		Modules:          []string{"node_modules"},
		ConditionNames:   map[string]bool{"node": true, "require": true},
		DescriptionFiles: []string{"package.json"},
		Symlinks:         true,
	}
}

// Clone returns a deep-enough copy of o for CloneWithOptions to mutate
// independently of the original (the underlying cache, not this struct, is
// what's actually shared between clones — see Resolver.CloneWithOptions).
func (o Options) Clone() Options {
	c := o
	c.Alias = append([]AliasEntry(nil), o.Alias...)
	c.Fallback = append([]AliasEntry(nil), o.Fallback...)
	c.AliasFields = append([]descriptor.FieldSpec(nil), o.AliasFields...)
	c.ExportsFields = append([]string(nil), o.ExportsFields...)
	c.ImportsFields = append([]string(nil), o.ImportsFields...)
	c.Extensions = append([]string(nil), o.Extensions...)
	c.MainFields = append([]string(nil), o.MainFields...)
	c.MainFiles = append([]string(nil), o.MainFiles...)
	c.Modules = append([]string(nil), o.Modules...)
	c.DescriptionFiles = append([]string(nil), o.DescriptionFiles...)
	c.Roots = append([]string(nil), o.Roots...)
	c.Restrictions = append([]Restriction(nil), o.Restrictions...)
	c.ExplicitTSConfigRefs(o.TSConfig.ExplicitRefs)

	condNames := make(map[string]bool, len(o.ConditionNames))
	for k, v := range o.ConditionNames {
		condNames[k] = v
	}
	c.ConditionNames = condNames

	if o.ExtensionAlias != nil {
		extAlias := make(map[string][]string, len(o.ExtensionAlias))
		for k, v := range o.ExtensionAlias {
			extAlias[k] = append([]string(nil), v...)
		}
		c.ExtensionAlias = extAlias
	}
	return c
}

// ExplicitTSConfigRefs is a small helper used by Clone to copy the explicit
// reference list into the receiver being built; it exists as a method
// rather than inline slice surgery so Clone stays readable.
func (o *Options) ExplicitTSConfigRefs(refs []string) {
	o.TSConfig.ExplicitRefs = append([]string(nil), refs...)
}
