// Package matcher provides named predicates over catalog file names and a
// small boolean expression language to combine them.
package matcher

import (
	"context"
	"fmt"
)

type IFileMatcher interface {
	Name() string
	Type() string
	Match(ctx context.Context, filename string) (bool, error)
}

type Factory func(name string, args interface{}) (IFileMatcher, error)

var m = make(map[string]Factory)

func Register(typ string, fac Factory) {
	m[typ] = fac
}

func MakeMatcher(typ string, name string, args interface{}) (IFileMatcher, error) {
	cr, ok := m[typ]
	if !ok {
		return nil, fmt.Errorf("matcher type:%s not found", typ)
	}
	return cr(name, args)
}

// DefaultDataFileMatcherName is the registry name of DataFileMatcher.
const DefaultDataFileMatcherName = "netcdf"

// DataFileMatcher is the catalog's notion of "is a data file": the anchor
// text contains "nc" anywhere. This is a loose heuristic and also accepts
// names like "sync.txt"; swap in a suffix or regex matcher for stricter
// filtering.
func DataFileMatcher() IFileMatcher {
	return newKeywordMatcher(DefaultDataFileMatcherName, []string{"nc"})
}
