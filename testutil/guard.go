// Package testutil holds fixtures and import-boundary assertions shared by
// package tests.
package testutil

import (
	"go/parser"
	"go/token"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"testing"
)

// Module is the import path prefix of this repository.
const Module = "dsmanager"

// InternalImport matches import paths inside an internal/ tree.
func InternalImport(path string) bool {
	return strings.Contains(path, "/internal/") || strings.HasSuffix(path, "/internal")
}

// InfraImport matches the concrete driver packages under internal/infra.
func InfraImport(path string) bool {
	return strings.HasPrefix(path, Module+"/internal/infra/")
}

// AssertNoDirectImports parses the non-test .go files in dir and fails if any
// import satisfies forbidden. Build tags are ignored.
func AssertNoDirectImports(t testing.TB, dir string, forbidden func(importPath string) bool, reason string) {
	t.Helper()
	imports, err := directImports(dir)
	if err != nil {
		t.Fatalf("scan %s: %v", dir, err)
	}
	var viols []string
	for imp, files := range imports {
		if forbidden(imp) {
			viols = append(viols, imp+" (in "+strings.Join(files, ", ")+")")
		}
	}
	failIfViolations(t, reason, viols)
}

// AssertModuleImportsWithin fails if a non-test file in dir imports a package
// of this module that is not listed in allowed.
func AssertModuleImportsWithin(t testing.TB, dir string, allowed ...string) {
	t.Helper()
	ok := make(map[string]struct{}, len(allowed))
	for _, a := range allowed {
		ok[a] = struct{}{}
	}
	AssertNoDirectImports(t, dir, func(imp string) bool {
		if imp != Module && !strings.HasPrefix(imp, Module+"/") {
			return false
		}
		_, allowed := ok[imp]
		return !allowed
	}, "only "+strings.Join(allowed, ", ")+" may be imported from "+Module)
}

func directImports(dir string) (map[string][]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	fset := token.NewFileSet()
	out := make(map[string][]string)
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasSuffix(name, ".go") || strings.HasSuffix(name, "_test.go") {
			continue
		}
		f, err := parser.ParseFile(fset, filepath.Join(dir, name), nil, parser.ImportsOnly)
		if err != nil {
			return nil, err
		}
		for _, imp := range f.Imports {
			p := strings.Trim(imp.Path.Value, `"`)
			out[p] = append(out[p], name)
		}
	}
	return out, nil
}

type fatalLogger interface {
	Fatalf(format string, args ...any)
}

func failIfViolations(t fatalLogger, reason string, viols []string) {
	if len(viols) == 0 {
		return
	}
	sort.Strings(viols)
	t.Fatalf("forbidden imports detected (%s):\n%s", reason, strings.Join(viols, "\n"))
}
