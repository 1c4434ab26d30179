package matcher

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/xxxsen/common/utils"
)

type suffixConfig struct {
	Suffixes []string `json:"suffixes"`
}

type suffixMatcher struct {
	name     string
	suffixes []string
}

func (s *suffixMatcher) Name() string {
	return s.name
}

func (s *suffixMatcher) Type() string {
	return "suffix"
}

func (s *suffixMatcher) Match(ctx context.Context, filename string) (bool, error) {
	for _, suffix := range s.suffixes {
		if strings.HasSuffix(filename, suffix) {
			return true, nil
		}
	}
	return false, nil
}

func createSuffixMatcher(name string, args interface{}) (IFileMatcher, error) {
	c := &suffixConfig{}
	if err := utils.ConvStructJson(args, c); err != nil {
		return nil, err
	}
	if len(c.Suffixes) == 0 {
		return nil, fmt.Errorf("suffix matcher:%s has no suffixes", name)
	}
	return &suffixMatcher{name: name, suffixes: c.Suffixes}, nil
}

type regexConfig struct {
	Patterns []string `json:"patterns"`
}

type regexMatcher struct {
	name string
	reg  []*regexp.Regexp
}

func (r *regexMatcher) Name() string {
	return r.name
}

func (r *regexMatcher) Type() string {
	return "regex"
}

func (r *regexMatcher) Match(ctx context.Context, filename string) (bool, error) {
	for _, reg := range r.reg {
		if reg.MatchString(filename) {
			return true, nil
		}
	}
	return false, nil
}

func newRegexMatcher(name string, patterns []string) (IFileMatcher, error) {
	if len(patterns) == 0 {
		return nil, fmt.Errorf("regex matcher:%s has no patterns", name)
	}
	rs := make([]*regexp.Regexp, 0, len(patterns))
	for _, p := range patterns {
		exp, err := regexp.Compile(p)
		if err != nil {
			return nil, fmt.Errorf("regex matcher:%s compile %q failed, err:%w", name, p, err)
		}
		rs = append(rs, exp)
	}
	return &regexMatcher{name: name, reg: rs}, nil
}

func createRegexMatcher(name string, args interface{}) (IFileMatcher, error) {
	c := &regexConfig{}
	if err := utils.ConvStructJson(args, c); err != nil {
		return nil, err
	}
	return newRegexMatcher(name, c.Patterns)
}

func init() {
	Register("suffix", createSuffixMatcher)
	Register("regex", createRegexMatcher)
}
