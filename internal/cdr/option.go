package cdr

import (
	"github.com/xxxsen/cdrfetch/internal/catalog"
	"github.com/xxxsen/cdrfetch/internal/fetcher"
)

// Option configures a Client.
type Option func(*options)

type options struct {
	fetcher  fetcher.IFetcher
	catalog  *catalog.Resolver
	parallel int
}

// WithFetcher sets the fetcher used for DAS documents, and for catalog pages
// unless WithCatalog is given.
func WithFetcher(f fetcher.IFetcher) Option {
	return func(o *options) {
		o.fetcher = f
	}
}

func WithCatalog(r *catalog.Resolver) Option {
	return func(o *options) {
		o.catalog = r
	}
}

// WithParallel fans Query and Info out over up to n concurrent fetches.
// n <= 1 keeps them sequential.
func WithParallel(n int) Option {
	return func(o *options) {
		o.parallel = n
	}
}
