package matcher

import (
	"context"
	"fmt"
	"strings"

	"github.com/xxxsen/common/utils"
)

type keywordConfig struct {
	Keywords []string `json:"keywords"`
}

// keywordMatcher accepts a name containing any of its keywords.
type keywordMatcher struct {
	name string
	kw   []string
}

func (k *keywordMatcher) Name() string {
	return k.name
}

func (k *keywordMatcher) Type() string {
	return "keyword"
}

func (k *keywordMatcher) Match(ctx context.Context, filename string) (bool, error) {
	for _, kw := range k.kw {
		if strings.Contains(filename, kw) {
			return true, nil
		}
	}
	return false, nil
}

func newKeywordMatcher(name string, kws []string) *keywordMatcher {
	return &keywordMatcher{name: name, kw: kws}
}

func createKeywordMatcher(name string, args interface{}) (IFileMatcher, error) {
	c := &keywordConfig{}
	if err := utils.ConvStructJson(args, c); err != nil {
		return nil, err
	}
	kws := make([]string, 0, len(c.Keywords))
	for _, kw := range c.Keywords {
		if kw == "" {
			return nil, fmt.Errorf("keyword matcher:%s has empty keyword", name)
		}
		kws = append(kws, kw)
	}
	if len(kws) == 0 {
		return nil, fmt.Errorf("keyword matcher:%s has no keywords", name)
	}
	return newKeywordMatcher(name, kws), nil
}

func init() {
	Register("keyword", createKeywordMatcher)
}
