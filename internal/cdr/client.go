// Package cdr is the client for NOAA climate data records: it turns a date
// window and a dataset into data file URLs and loads their DAS attributes.
package cdr

import (
	"context"
	"fmt"
	"slices"

	"github.com/xxxsen/cdrfetch/internal/catalog"
	"github.com/xxxsen/cdrfetch/internal/das"
	"github.com/xxxsen/cdrfetch/internal/dataset"
	"github.com/xxxsen/cdrfetch/internal/daterange"
	"github.com/xxxsen/cdrfetch/internal/fetcher"
	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

type State int

const (
	StateConstructed State = iota
	StateURLsResolved
	StateMetadataLoaded
)

func (s State) String() string {
	switch s {
	case StateConstructed:
		return "constructed"
	case StateURLsResolved:
		return "urls_resolved"
	case StateMetadataLoaded:
		return "metadata_loaded"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// Params is the plain form of a client's construction arguments.
type Params struct {
	StartDate string `json:"start_date" yaml:"start_date"`
	EndDate   string `json:"end_date" yaml:"end_date"`
	Dataset   string `json:"dataset" yaml:"dataset"`
}

// Client holds a validated date window and dataset, the URL list of the last
// successful Query and the attributes accumulated by Info. It is not safe
// for concurrent use.
type Client struct {
	window   daterange.Window
	ds       dataset.Dataset
	fetcher  fetcher.IFetcher
	catalog  *catalog.Resolver
	parallel int

	urls  []string
	info  das.Document
	state State
}

// New validates the dates and the dataset. Unlike the loose behaviour of
// Generate, a start date after the end date is rejected with
// daterange.ErrInvalidDateRange.
func New(start, end string, ds dataset.Dataset, opts ...Option) (*Client, error) {
	w, err := daterange.NewWindow(start, end)
	if err != nil {
		return nil, err
	}
	if err := w.Validate(); err != nil {
		return nil, err
	}
	if _, err := dataset.Resolve(string(ds)); err != nil {
		return nil, err
	}
	o := &options{}
	for _, opt := range opts {
		opt(o)
	}
	if o.fetcher == nil {
		f, err := fetcher.New()
		if err != nil {
			return nil, fmt.Errorf("init default fetcher failed, err:%w", err)
		}
		o.fetcher = f
	}
	if o.catalog == nil {
		o.catalog = catalog.New(o.fetcher)
	}
	return &Client{
		window:   w,
		ds:       ds,
		fetcher:  o.fetcher,
		catalog:  o.catalog,
		parallel: o.parallel,
		info:     make(das.Document),
		state:    StateConstructed,
	}, nil
}

// NewFromParams is New taking its arguments from p.
func NewFromParams(p Params, opts ...Option) (*Client, error) {
	ds, err := dataset.Parse(p.Dataset)
	if err != nil {
		return nil, err
	}
	return New(p.StartDate, p.EndDate, ds, opts...)
}

// Query lists the data files of every year in the window, in year order and
// then catalog order, and replaces the stored URL list with them. The list
// is left untouched when any year fails.
//
// Attributes loaded by earlier Info calls are kept even when they belong to
// URLs no longer in the list; call ResetMetadata to drop them.
func (c *Client) Query(ctx context.Context) ([]string, error) {
	if err := c.window.Validate(); err != nil {
		return nil, err
	}
	logger := logutil.GetLogger(ctx).With(zap.String("dataset", c.ds.String()), zap.String("window", c.window.String()))
	years := c.window.Years()
	perYear := make([][]catalog.Entry, len(years))
	list := func(ctx context.Context, i int) error {
		entries, err := c.catalog.ListFilesForYear(ctx, c.ds, years[i], c.window)
		if err != nil {
			return err
		}
		perYear[i] = entries
		return nil
	}
	if err := c.run(ctx, len(years), list); err != nil {
		return nil, err
	}
	urls := make([]string, 0, len(years))
	for _, entries := range perYear {
		for _, e := range entries {
			urls = append(urls, e.URL)
		}
	}
	c.urls = urls
	c.state = StateURLsResolved
	logger.Debug("query catalog finish", zap.Int("year_count", len(years)), zap.Int("url_count", len(urls)))
	return slices.Clone(urls), nil
}

// Info fetches and parses the DAS document of each stored URL and merges the
// results into the accumulated document, replacing entries with the same
// data id. It returns a copy of the whole accumulated document. On failure
// the documents merged before the failing URL are kept. Before any Query
// there is nothing to load and the state stays constructed.
//
// When urlID is not empty only the FIRST stored URL is processed, whatever
// urlID names, and its attributes are stored under urlID. This looks
// unintended but is kept until the expected behaviour is settled.
func (c *Client) Info(ctx context.Context, urlID string) (das.Document, error) {
	targets := c.urls
	if urlID != "" && len(targets) > 1 {
		targets = targets[:1]
	}
	logger := logutil.GetLogger(ctx).With(zap.String("dataset", c.ds.String()))
	frags := make([]das.Document, len(targets))
	load := func(ctx context.Context, i int) error {
		u := targets[i]
		id := urlID
		if id == "" {
			id = das.DataID(u)
		}
		body, err := c.fetcher.Fetch(ctx, u+".das")
		if err != nil {
			return &MetadataUnreachableError{URL: u, Err: err}
		}
		doc, err := das.Parse(string(body), id)
		if err != nil {
			return fmt.Errorf("parse das failed, url:%s, err:%w", u, err)
		}
		frags[i] = doc
		return nil
	}
	err := c.runEach(ctx, len(targets), load)
	merged := 0
	for _, frag := range frags {
		if frag == nil {
			break
		}
		c.info.Merge(frag)
		merged++
	}
	if err != nil {
		logger.Debug("load metadata partially failed", zap.Int("merged", merged), zap.Error(err))
		return nil, err
	}
	if c.state == StateURLsResolved {
		c.state = StateMetadataLoaded
	}
	logger.Debug("load metadata finish", zap.Int("url_count", len(targets)), zap.Int("id_count", len(c.info)))
	return c.info.Clone(), nil
}

// run calls fn for every index in [0, n). Sequentially it stops at the
// first error; in parallel mode the first error cancels the rest.
func (c *Client) run(ctx context.Context, n int, fn func(ctx context.Context, i int) error) error {
	if c.parallel <= 1 || n <= 1 {
		return c.runSequential(ctx, n, fn)
	}
	eg, ctx := errgroup.WithContext(ctx)
	eg.SetLimit(c.parallel)
	for i := 0; i < n; i++ {
		eg.Go(func() error {
			return fn(ctx, i)
		})
	}
	return eg.Wait()
}

// runEach is run without cancellation: every index runs to completion and the
// error of the lowest failed index is returned.
func (c *Client) runEach(ctx context.Context, n int, fn func(ctx context.Context, i int) error) error {
	if c.parallel <= 1 || n <= 1 {
		return c.runSequential(ctx, n, fn)
	}
	errs := make([]error, n)
	eg := new(errgroup.Group)
	eg.SetLimit(c.parallel)
	for i := 0; i < n; i++ {
		eg.Go(func() error {
			errs[i] = fn(ctx, i)
			return nil
		})
	}
	_ = eg.Wait()
	for _, err := range errs {
		if err != nil {
			return err
		}
	}
	return nil
}

func (c *Client) runSequential(ctx context.Context, n int, fn func(ctx context.Context, i int) error) error {
	for i := 0; i < n; i++ {
		if err := fn(ctx, i); err != nil {
			return err
		}
	}
	return nil
}

// IsAvailable reports whether url is in the stored URL list.
func (c *Client) IsAvailable(url string) bool {
	return slices.Contains(c.urls, url)
}

func (c *Client) StartDate() string {
	return c.window.Start().Format(daterange.DateLayout)
}

func (c *Client) EndDate() string {
	return c.window.End().Format(daterange.DateLayout)
}

func (c *Client) Window() daterange.Window {
	return c.window
}

func (c *Client) Dataset() dataset.Dataset {
	return c.ds
}

// URLs returns a copy of the stored URL list.
func (c *Client) URLs() []string {
	return slices.Clone(c.urls)
}

// Metadata returns a copy of the accumulated attribute document.
func (c *Client) Metadata() das.Document {
	return c.info.Clone()
}

func (c *Client) State() State {
	return c.state
}

// SetStartDate only checks the format; an inverted window is reported by
// the next Query.
func (c *Client) SetStartDate(s string) error {
	w, err := c.window.WithStart(s)
	if err != nil {
		return err
	}
	c.window = w
	return nil
}

func (c *Client) SetEndDate(s string) error {
	w, err := c.window.WithEnd(s)
	if err != nil {
		return err
	}
	c.window = w
	return nil
}

func (c *Client) SetDataset(ds dataset.Dataset) error {
	if _, err := dataset.Resolve(string(ds)); err != nil {
		return err
	}
	c.ds = ds
	return nil
}

// ResetMetadata drops every attribute loaded so far.
func (c *Client) ResetMetadata() {
	c.info = make(das.Document)
	if c.state == StateMetadataLoaded {
		c.state = StateURLsResolved
	}
}

func (c *Client) String() string {
	return fmt.Sprintf("Client(start_date=%s, end_date=%s, dataset=%s)", c.StartDate(), c.EndDate(), c.ds)
}
