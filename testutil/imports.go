// Package testutil holds test helpers that enforce the layering between
// crmcore packages: the domain depends on nothing internal, the service core
// knows no transport, adapters sit on top.
package testutil

import (
	"go/parser"
	"go/token"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"testing"
)

// ImportRule forbids import paths matching Match.
type ImportRule struct {
	Match  func(importPath string) bool
	Reason string
}

// Under matches import paths equal to or nested below any prefix.
func Under(prefixes ...string) func(string) bool {
	return func(path string) bool {
		for _, p := range prefixes {
			if path == p || strings.HasPrefix(path, p+"/") {
				return true
			}
		}
		return false
	}
}

// ThirdParty matches any import whose first element looks like a host name.
func ThirdParty(path string) bool {
	first, _, _ := strings.Cut(path, "/")
	return strings.Contains(first, ".")
}

// Violation is one offending import.
type Violation struct {
	File   string
	Import string
	Reason string
}

// AssertImports fails t when a non-test file under dir (recursively when
// recursive is set) imports a path matched by a rule.
func AssertImports(t testing.TB, dir string, recursive bool, rules ...ImportRule) {
	t.Helper()
	viols, err := ImportViolations(dir, recursive, rules...)
	if err != nil {
		t.Fatalf("scan %s: %v", dir, err)
	}
	if len(viols) == 0 {
		return
	}
	lines := make([]string, 0, len(viols))
	for _, v := range viols {
		lines = append(lines, v.File+": "+v.Import+" ("+v.Reason+")")
	}
	t.Fatalf("forbidden imports:\n%s", strings.Join(lines, "\n"))
}

// ImportViolations parses import clauses only, so build tags are ignored.
func ImportViolations(dir string, recursive bool, rules ...ImportRule) ([]Violation, error) {
	fset := token.NewFileSet()
	var viols []Violation
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if path != dir && (!recursive || strings.HasPrefix(d.Name(), "_") || d.Name() == "testdata") {
				return filepath.SkipDir
			}
			return nil
		}
		name := d.Name()
		if !strings.HasSuffix(name, ".go") || strings.HasSuffix(name, "_test.go") {
			return nil
		}
		src, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		file, err := parser.ParseFile(fset, path, src, parser.ImportsOnly)
		if err != nil {
			return err
		}
		rel, _ := filepath.Rel(dir, path)
		for _, imp := range file.Imports {
			ip := strings.Trim(imp.Path.Value, `"`)
			for _, rule := range rules {
				if rule.Match(ip) {
					viols = append(viols, Violation{File: filepath.ToSlash(rel), Import: ip, Reason: rule.Reason})
				}
			}
		}
		return nil
	})
	sort.Slice(viols, func(i, j int) bool {
		if viols[i].File != viols[j].File {
			return viols[i].File < viols[j].File
		}
		return viols[i].Import < viols[j].Import
	})
	return viols, err
}
