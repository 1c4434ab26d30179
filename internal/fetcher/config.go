package fetcher

import (
	"time"

	"github.com/xxxsen/cdrfetch/internal/resolver"
)

const (
	defaultTimeout     = 30 * time.Second
	defaultUserAgent   = "cdrfetch"
	defaultMaxBodySize = 32 * 1024 * 1024
)

// Option configures the fetchers built by New.
type Option func(*options)

type options struct {
	timeout     time.Duration
	userAgent   string
	maxBodySize int64
	resolver    resolver.IHostResolver
}

func defaultOptions() *options {
	return &options{
		timeout:     defaultTimeout,
		userAgent:   defaultUserAgent,
		maxBodySize: defaultMaxBodySize,
	}
}

// WithTimeout bounds every single fetch.
func WithTimeout(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.timeout = d
		}
	}
}

func WithUserAgent(ua string) Option {
	return func(o *options) {
		if ua != "" {
			o.userAgent = ua
		}
	}
}

// WithMaxBodySize caps the number of bytes read from a response body.
func WithMaxBodySize(n int64) Option {
	return func(o *options) {
		if n > 0 {
			o.maxBodySize = n
		}
	}
}

// WithResolver makes the http backend resolve hostnames through r instead of
// the system resolver.
func WithResolver(r resolver.IHostResolver) Option {
	return func(o *options) {
		o.resolver = r
	}
}
