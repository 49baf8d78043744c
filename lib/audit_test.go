// Package lib holds tree-wide checks over the packages below it.
package lib

import (
	"go/ast"
	"go/parser"
	"go/token"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// sources parses every non-test Go file under lib/.
func sources(t *testing.T, mode parser.Mode) map[string]*ast.File {
	t.Helper()
	files := make(map[string]*ast.File)
	fset := token.NewFileSet()
	err := filepath.Walk(".", func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() && info.Name() == "testdata" {
			return filepath.SkipDir
		}
		if !strings.HasSuffix(path, ".go") || strings.HasSuffix(path, "_test.go") {
			return nil
		}
		f, err := parser.ParseFile(fset, path, nil, mode)
		require.NoError(t, err, path)
		files[path] = f
		return nil
	})
	require.NoError(t, err)
	require.NotEmpty(t, files)
	return files
}

// Jitter and tokens must come from crypto/rand or go-i2p/crypto/rand.
func TestNoMathRand(t *testing.T) {
	for path, f := range sources(t, parser.ImportsOnly) {
		for _, imp := range f.Imports {
			p := strings.Trim(imp.Path.Value, `"`)
			assert.NotEqual(t, "math/rand", p, path)
			assert.NotEqual(t, "math/rand/v2", p, path)
		}
	}
}

// Logging goes through github.com/go-i2p/logger so fields and levels are
// uniform.
func TestNoDirectLoggers(t *testing.T) {
	banned := map[string]bool{
		"log":                        true,
		"log/slog":                   true,
		"github.com/sirupsen/logrus": true,
	}
	for path, f := range sources(t, parser.ImportsOnly) {
		for _, imp := range f.Imports {
			p := strings.Trim(imp.Path.Value, `"`)
			assert.False(t, banned[p], "%s imports %s", path, p)
		}
	}
}

// The only panics allowed are in package init, where a broken static
// configuration can not be reported any other way.
func TestPanicsOnlyInInit(t *testing.T) {
	for path, f := range sources(t, 0) {
		for _, decl := range f.Decls {
			fn, ok := decl.(*ast.FuncDecl)
			if !ok || (fn.Name.Name == "init" && fn.Recv == nil) {
				continue
			}
			ast.Inspect(fn, func(n ast.Node) bool {
				call, ok := n.(*ast.CallExpr)
				if !ok {
					return true
				}
				if ident, ok := call.Fun.(*ast.Ident); ok && ident.Name == "panic" {
					t.Errorf("%s: panic in %s", path, fn.Name.Name)
				}
				return true
			})
		}
	}
}
