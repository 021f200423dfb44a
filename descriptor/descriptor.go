// Package descriptor is the typed view of a package.json-shaped
// description file: main/module/browser fields, alias fields, exports,
// imports, and side-effects metadata (spec §3, §4.4).
package descriptor

import (
	"strings"

	"github.com/web-infra-dev/rspack-resolver/jsonc"
)

// AliasValue is the tagged union a single alias-field mapping entry can
// hold: a plain string substitute, "ignore this module" (false), or a list
// of fallbacks to try in order.
type AliasValue struct {
	IsFalse bool
	Strings []string // len 1 for a plain string mapping, >1 for an array
}

// File is the parsed, typed representation of one description file.
type File struct {
	Directory string
	Path      string
	Name      string
	HasName   bool

	// MainFieldValues holds the raw string value of every recognised main
	// field present, keyed by field name, so the resolver can try them in
	// caller-specified order without re-parsing.
	MainFieldValues map[string]string

	// AliasFields holds, per configured field name, a flat map from
	// request path to AliasValue. Nested field paths (e.g. "browser")
	// are pre-flattened by Parse's caller-supplied field descriptors.
	AliasFields map[string]map[string]AliasValue

	SideEffects     SideEffects
	Exports         *jsonc.Value // the raw "exports" field value, or nil
	Imports         *jsonc.Value // the raw "imports" field value, or nil
	Type            string       // "module" | "commonjs" | ""
	Raw             *jsonc.Value // full parsed document, kept only if requested
}

// SideEffects is opaque to the resolver core (spec §3: "opaque, unused by
// core, forwarded") but typed here because the shapes are finite enough
// that forwarding an interface{} would just push the type assertion onto
// every caller instead of doing it once.
type SideEffects struct {
	Present  bool
	AllFalse bool // "sideEffects": false
	Globs    []string
}

// FieldSpec names a main field or a (possibly nested) alias field to read,
// e.g. []string{"browser"} or []string{"innerBrowser1", "field", "browser"}
// for a nested alias field path (spec §8 "Nested alias field").
type FieldSpec []string

// Parse reads contents into a File. mainFields and aliasFields drive which
// top-level (or nested) keys are projected; exportsFields/importsFields
// name the fields to treat as conditional-exports/imports maps (default
// ["exports"]/["imports"] per spec §4.7). keepRaw preserves the full
// parsed document on File.Raw for the opt-in raw-access capability (spec
// §9: "must not change resolution outcomes").
func Parse(directory, path string, root jsonc.Value, mainFields []string, aliasFields []FieldSpec, exportsFields, importsFields []string, keepRaw bool) (*File, error) {
	f := &File{
		Directory:       directory,
		Path:            path,
		MainFieldValues: make(map[string]string),
		AliasFields:     make(map[string]map[string]AliasValue),
	}

	if keepRaw {
		raw := root
		f.Raw = &raw
	}

	if name, ok := root.GetString("name"); ok {
		f.Name = name
		f.HasName = true
	}

	if typ, ok := root.GetString("type"); ok {
		f.Type = typ
	}

	for _, field := range mainFields {
		if val, ok := root.GetString(field); ok {
			f.MainFieldValues[field] = val
		}
	}

	for _, spec := range aliasFields {
		fieldName, nested, ok := navigateTo(root, spec)
		if !ok || nested.Kind != jsonc.Object {
			continue
		}
		m := make(map[string]AliasValue)
		for _, member := range nested.Obj {
			switch member.Value.Kind {
			case jsonc.False:
				m[member.Key] = AliasValue{IsFalse: true}
			case jsonc.String:
				m[member.Key] = AliasValue{Strings: []string{member.Value.Str}}
			case jsonc.Array:
				var strs []string
				for _, item := range member.Value.Arr {
					if item.Kind == jsonc.String {
						strs = append(strs, item.Str)
					}
				}
				if len(strs) > 0 {
					m[member.Key] = AliasValue{Strings: strs}
				}
			}
		}
		f.AliasFields[fieldName] = m
	}

	for _, field := range exportsFields {
		if val, ok := root.Get(field); ok {
			v := val
			f.Exports = &v
			break
		}
	}
	for _, field := range importsFields {
		if val, ok := root.Get(field); ok {
			v := val
			f.Imports = &v
			break
		}
	}

	if val, ok := root.Get("sideEffects"); ok {
		f.SideEffects.Present = true
		switch val.Kind {
		case jsonc.False:
			f.SideEffects.AllFalse = true
		case jsonc.Array:
			for _, item := range val.Arr {
				if item.Kind == jsonc.String {
					f.SideEffects.Globs = append(f.SideEffects.Globs, item.Str)
				}
			}
		}
	}

	return f, nil
}

// navigateTo resolves a possibly-nested FieldSpec against root. The first
// element of the spec is the name the resolved map is registered under in
// File.AliasFields (so a spec like {"innerBrowser1","field","browser"}
// reads root.field.browser but stores it under the key "innerBrowser1").
func navigateTo(root jsonc.Value, spec FieldSpec) (registeredName string, value jsonc.Value, ok bool) {
	if len(spec) == 0 {
		return "", jsonc.Value{}, false
	}
	registeredName = spec[0]
	path := spec
	if len(spec) > 1 {
		path = spec[1:]
	} else {
		path = spec[:1]
	}
	cur := root
	for _, key := range path {
		next, exists := cur.Get(key)
		if !exists {
			return registeredName, jsonc.Value{}, false
		}
		cur = next
	}
	return registeredName, cur, true
}

// MainFieldPath returns the first main field (in the order given) whose
// value is present, along with that value as written in the file (not
// joined against Directory).
func (f *File) MainFieldPath(order []string) (field string, value string, ok bool) {
	for _, name := range order {
		if v, present := f.MainFieldValues[name]; present {
			return name, v, true
		}
	}
	return "", "", false
}

// LookupAliasField checks whether requestPath (file-relative, e.g.
// "./lib/foo.js" or a bare package name) has a rewrite registered under
// the named alias field, trying both with and without a leading "./" the
// way the teacher's browser-field matching does (package_json.go).
func (f *File) LookupAliasField(fieldName string, requestPath string) (AliasValue, bool) {
	m, ok := f.AliasFields[fieldName]
	if !ok {
		return AliasValue{}, false
	}
	if v, ok := m[requestPath]; ok {
		return v, true
	}
	if strings.HasPrefix(requestPath, "./") {
		if v, ok := m[requestPath[2:]]; ok {
			return v, true
		}
	} else if v, ok := m["./"+requestPath]; ok {
		return v, true
	}
	return AliasValue{}, false
}

// HasNoSideEffects reports whether this description file declares that
// relPath (already relative-ized by the caller against Directory) has no
// side effects: either "sideEffects: false" outright, or an array of globs
// that relPath fails to match against.
func (f *File) HasNoSideEffects(relPath string, globMatch func(pattern, path string) bool) bool {
	if !f.SideEffects.Present {
		return false
	}
	if f.SideEffects.AllFalse {
		return true
	}
	if len(f.SideEffects.Globs) == 0 {
		return false
	}
	for _, g := range f.SideEffects.Globs {
		if globMatch(g, relPath) {
			return false
		}
	}
	return true
}
