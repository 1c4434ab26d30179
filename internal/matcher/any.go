package matcher

import (
	"context"
)

type anyMatcher struct {
	name string
}

func (a *anyMatcher) Name() string {
	if a == nil || a.name == "" {
		return "any"
	}
	return a.name
}

func (a *anyMatcher) Type() string {
	return "any"
}

func (a *anyMatcher) Match(context.Context, string) (bool, error) {
	return true, nil
}

func createAnyMatcher(name string, args interface{}) (IFileMatcher, error) {
	return &anyMatcher{name: name}, nil
}

func init() {
	Register("any", createAnyMatcher)
}
