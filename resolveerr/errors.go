// Package resolveerr is the resolver's error taxonomy. Every hard failure
// the core can produce is one of these kinds; the textual prefix of each
// is part of the public contract (spec §7) — callers pattern-match on it,
// so Error() must always begin with the documented prefix verbatim.
package resolveerr

import "fmt"

type Kind uint8

const (
	NotFound Kind = iota
	Ignored
	PackagePathNotExported
	PackageImportNotDefined
	InvalidPackageTarget
	InvalidModuleSpecifier
	Restricted
	RecursiveAlias
	TsconfigNotFound
	TsconfigParseError
	TsconfigCycle
	IOError
	JsonParseError
)

var prefixes = map[Kind]string{
	NotFound:                "Cannot find module",
	Ignored:                 "Path is ignored",
	PackagePathNotExported:  "Package subpath is not defined by \"exports\"",
	PackageImportNotDefined: "Package import is not defined",
	InvalidPackageTarget:    "Invalid \"exports\" target",
	InvalidModuleSpecifier:  "Invalid module specifier",
	Restricted:              "Resolved path is excluded by the resolver's restrictions",
	RecursiveAlias:          "Recursive alias detected",
	TsconfigNotFound:        "Cannot find tsconfig file",
	TsconfigParseError:      "Failed to parse tsconfig file",
	TsconfigCycle:           "Circular \"extends\" in tsconfig file",
	IOError:                 "I/O error",
	JsonParseError:          "Failed to parse JSON file",
}

// Error is the concrete value every hard-failure path returns. Context
// fields are optional and only populated when the failing stage has them
// on hand; they exist for debugging, not for the stable prefix contract.
type Error struct {
	Kind       Kind
	Specifier  string
	Context    string
	Path       string
	Detail     string
	wrapped    error
}

func (e *Error) Error() string {
	prefix := prefixes[e.Kind]
	switch e.Kind {
	case NotFound:
		return fmt.Sprintf("%s '%s'", prefix, e.Specifier)
	case Ignored:
		return fmt.Sprintf("%s %s", prefix, e.Path)
	default:
		if e.Detail != "" {
			return fmt.Sprintf("%s: %s", prefix, e.Detail)
		}
		return prefix
	}
}

func (e *Error) Unwrap() error { return e.wrapped }

// Is lets callers write errors.Is(err, resolveerr.Is(resolveerr.NotFound)) by
// comparing against a Kind wrapped as an error by the package-level Is.
func (e *Error) Is(target error) bool {
	if ke, ok := target.(kindError); ok {
		return e.Kind == Kind(ke)
	}
	return false
}

type kindError Kind

func (k kindError) Error() string { return prefixes[Kind(k)] }

// Is exposes a Kind as an error value suitable for errors.Is comparisons,
// e.g. errors.Is(err, resolveerr.Is(resolveerr.NotFound)).
func Is(k Kind) error { return kindError(k) }

func New(kind Kind, specifier, context string) *Error {
	return &Error{Kind: kind, Specifier: specifier, Context: context}
}

func NotFoundErr(specifier, context string) *Error {
	return New(NotFound, specifier, context)
}

func IgnoredErr(path string) *Error {
	return &Error{Kind: Ignored, Path: path}
}

func Wrap(kind Kind, detail string, err error) *Error {
	return &Error{Kind: kind, Detail: detail, wrapped: err}
}

func WithDetail(kind Kind, detail string) *Error {
	return &Error{Kind: kind, Detail: detail}
}
