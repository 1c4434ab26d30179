// Package fetcher retrieves remote documents (catalog pages, DAS text) by
// link, dispatching on the link scheme.
package fetcher

import (
	"context"
	"fmt"
	"net/url"
	"sort"
	"strings"
)

// IFetcher returns the raw body behind a link.
type IFetcher interface {
	String() string
	Fetch(ctx context.Context, link string) ([]byte, error)
}

type Factory func(scheme string, o *options) (IFetcher, error)

var m = make(map[string]Factory)

func Register(scheme string, fac Factory) {
	m[scheme] = fac
}

// StatusError is returned when a server answers with a non-200 status.
type StatusError struct {
	URL        string
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("fetch %s got status %d: %s", e.URL, e.StatusCode, e.Body)
}

// New builds a fetcher for every registered scheme and returns a router over
// them.
func New(opts ...Option) (IFetcher, error) {
	o := defaultOptions()
	for _, opt := range opts {
		opt(o)
	}
	r := &schemeRouter{backends: make(map[string]IFetcher, len(m))}
	for scheme, fac := range m {
		f, err := fac(scheme, o)
		if err != nil {
			return nil, fmt.Errorf("make fetcher failed, scheme:%s, err:%w", scheme, err)
		}
		r.backends[scheme] = f
	}
	return r, nil
}

type schemeRouter struct {
	backends map[string]IFetcher
}

func (r *schemeRouter) String() string {
	schemes := make([]string, 0, len(r.backends))
	for s := range r.backends {
		schemes = append(schemes, s)
	}
	sort.Strings(schemes)
	return fmt.Sprintf("router(%s)", strings.Join(schemes, ","))
}

func (r *schemeRouter) Fetch(ctx context.Context, link string) ([]byte, error) {
	uri, err := url.Parse(link)
	if err != nil {
		return nil, fmt.Errorf("parse link failed, link:%s, err:%w", link, err)
	}
	f, ok := r.backends[strings.ToLower(uri.Scheme)]
	if !ok {
		return nil, fmt.Errorf("no fetcher found, scheme:%s, link:%s", uri.Scheme, link)
	}
	return f.Fetch(ctx, link)
}
