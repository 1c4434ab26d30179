// Package catalog discovers the data files a dataset publishes for a year by
// reading its THREDDS catalog page.
package catalog

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/xxxsen/cdrfetch/internal/dataset"
	"github.com/xxxsen/cdrfetch/internal/daterange"
	"github.com/xxxsen/cdrfetch/internal/fetcher"
	"github.com/xxxsen/cdrfetch/internal/matcher"
	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"
)

var ErrCatalogUnreachable = errors.New("catalog unreachable")

// UnreachableError is returned when no candidate catalog page of a year
// could be fetched. Err is the failure of the last candidate.
type UnreachableError struct {
	Year int
	Err  error
}

func (e *UnreachableError) Error() string {
	return fmt.Sprintf("catalog of year %d unreachable: %v", e.Year, e.Err)
}

func (e *UnreachableError) Unwrap() error {
	return e.Err
}

func (e *UnreachableError) Is(target error) bool {
	return target == ErrCatalogUnreachable
}

// Entry is a data file found on a catalog page.
type Entry struct {
	Year int    `json:"year"`
	Name string `json:"name"`
	URL  string `json:"url"`
}

// Option configures a Resolver.
type Option func(*Resolver)

// WithFileMatcher replaces the predicate deciding which anchors are data files.
func WithFileMatcher(m matcher.IFileMatcher) Option {
	return func(r *Resolver) {
		if m != nil {
			r.matcher = m
		}
	}
}

// WithPageLocator replaces the strategy producing candidate catalog pages.
func WithPageLocator(l PageLocator) Option {
	return func(r *Resolver) {
		if l != nil {
			r.locator = l
		}
	}
}

// Resolver lists catalog entries through a fetcher.
type Resolver struct {
	fetcher fetcher.IFetcher
	matcher matcher.IFileMatcher
	locator PageLocator
}

func New(f fetcher.IFetcher, opts ...Option) *Resolver {
	r := &Resolver{
		fetcher: f,
		matcher: matcher.DataFileMatcher(),
		locator: DefaultPageLocator,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// ListFilesForYear fetches the catalog page of ds for year and returns the
// data files whose names carry a date token of w. The whole window is
// matched, not just the part falling into year, so a name dated in another
// year of the window is kept as well.
func (r *Resolver) ListFilesForYear(ctx context.Context, ds dataset.Dataset, year int, w daterange.Window) ([]Entry, error) {
	base, err := dataset.Resolve(string(ds))
	if err != nil {
		return nil, err
	}
	logger := logutil.GetLogger(ctx).With(zap.String("dataset", ds.String()), zap.Int("year", year))
	page, link, err := r.fetchPage(ctx, base, year)
	if err != nil {
		return nil, err
	}
	anchors, err := ExtractAnchors(bytes.NewReader(page))
	if err != nil {
		return nil, fmt.Errorf("parse catalog page failed, url:%s, err:%w", link, err)
	}
	tokens := w.Tokens()
	yearDir := joinURL(base, strconv.Itoa(year)) + "/"
	entries := make([]Entry, 0, len(anchors))
	for _, name := range anchors {
		ok, err := r.matcher.Match(ctx, name)
		if err != nil {
			return nil, fmt.Errorf("match catalog name failed, name:%s, matcher:%s, err:%w", name, r.matcher.Name(), err)
		}
		if !ok || !MatchesWindow(name, tokens) {
			continue
		}
		entries = append(entries, Entry{Year: year, Name: name, URL: yearDir + name})
	}
	logger.Debug("list catalog files finish", zap.String("page", link),
		zap.Int("anchor_count", len(anchors)), zap.Int("file_count", len(entries)))
	return entries, nil
}

func (r *Resolver) fetchPage(ctx context.Context, base string, year int) ([]byte, string, error) {
	links := r.locator(base, year)
	if len(links) == 0 {
		return nil, "", &UnreachableError{Year: year, Err: fmt.Errorf("no catalog page candidate, base:%s", base)}
	}
	var lastErr error
	for _, link := range links {
		page, err := r.fetcher.Fetch(ctx, link)
		if err == nil {
			return page, link, nil
		}
		logutil.GetLogger(ctx).Debug("fetch catalog page failed, try next", zap.String("url", link), zap.Error(err))
		lastErr = err
		if ctx.Err() != nil {
			break
		}
	}
	return nil, "", &UnreachableError{Year: year, Err: lastErr}
}

// MatchesWindow reports whether name contains any of the date tokens.
func MatchesWindow(name string, tokens []string) bool {
	for _, tk := range tokens {
		if strings.Contains(name, tk) {
			return true
		}
	}
	return false
}
