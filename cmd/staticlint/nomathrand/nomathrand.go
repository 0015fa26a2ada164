// Package nomathrand defines an analyzer that forbids importing math/rand in
// non-test code. Short keys are security relevant identifiers and must come
// from crypto/rand.
package nomathrand

import (
	"strconv"
	"strings"

	"golang.org/x/tools/go/analysis"
)

// Analyzer reports imports of math/rand outside of test files.
var Analyzer = &analysis.Analyzer{
	Name: "nomathrand",
	Doc:  "forbids math/rand in non-test code; identifiers must use crypto/rand",
	Run:  run,
}

func run(pass *analysis.Pass) (interface{}, error) {
	for _, file := range pass.Files {
		filename := pass.Fset.Position(file.Pos()).Filename
		if strings.HasSuffix(filename, "_test.go") {
			continue
		}

		for _, imp := range file.Imports {
			path, err := strconv.Unquote(imp.Path.Value)
			if err != nil {
				continue
			}
			if path == "math/rand" || path == "math/rand/v2" {
				pass.Reportf(imp.Pos(), "use crypto/rand instead of math/rand")
			}
		}
	}

	return nil, nil
}
