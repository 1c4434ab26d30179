package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"sort"
	"strings"
	"syscall"
	"time"

	"github.com/xxxsen/cdrfetch/internal/catalog"
	"github.com/xxxsen/cdrfetch/internal/cdr"
	"github.com/xxxsen/cdrfetch/internal/config"
	"github.com/xxxsen/cdrfetch/internal/das"
	"github.com/xxxsen/cdrfetch/internal/dataset"
	"github.com/xxxsen/cdrfetch/internal/fetcher"
	"github.com/xxxsen/cdrfetch/internal/hosts"
	"github.com/xxxsen/cdrfetch/internal/matcher"
	"github.com/xxxsen/cdrfetch/internal/resolver"
	"github.com/xxxsen/common/logger"
	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"
)

type result struct {
	Dataset   string       `json:"dataset"`
	StartDate string       `json:"start_date"`
	EndDate   string       `json:"end_date"`
	URLs      []string     `json:"urls"`
	Info      das.Document `json:"info,omitempty"`
}

func main() {
	cfgPath := flag.String("config", "", "path to yaml configuration file")
	ds := flag.String("dataset", "", "dataset name, see -list")
	start := flag.String("start", "", "start date, YYYY-MM-DD")
	end := flag.String("end", "", "end date, YYYY-MM-DD")
	output := flag.String("output", "", "output file, stdout when empty")
	urlsOnly := flag.Bool("urls-only", false, "skip loading DAS attributes")
	list := flag.Bool("list", false, "print known datasets and exit")
	flag.Parse()

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		// logger not initialised yet, fallback to stderr
		log.Fatalf("init config failed, err:%v", err)
	}
	applyFlags(cfg, *ds, *start, *end, *output, *urlsOnly)

	logkit := logger.Init(cfg.Log.File, cfg.Log.Level, int(cfg.Log.FileCount),
		int(cfg.Log.FileSize), int(cfg.Log.KeepDays), cfg.Log.Console)
	defer logkit.Sync() //nolint:errcheck

	if err := registerDatasets(cfg.ExtraDatasets); err != nil {
		logkit.Fatal("register extra datasets failed", zap.Error(err))
	}
	if *list {
		for _, name := range dataset.List() {
			fmt.Printf("%s\t%s\n", name, dataset.Dataset(name).URL())
		}
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	res, err := execute(ctx, cfg)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			logkit.Info("interrupted")
			return
		}
		logkit.Fatal("fetch catalog failed", zap.Error(err))
	}
	logkit.Info("fetch finish", zap.String("dataset", res.Dataset), zap.String("start_date", res.StartDate),
		zap.String("end_date", res.EndDate), zap.Int("url_count", len(res.URLs)), zap.Int("info_count", len(res.Info)))
}

// execute owns the fetcher for the whole run and closes it before returning,
// so the persistent cache is released on every path.
func execute(ctx context.Context, cfg *config.Config) (*result, error) {
	f, err := buildFetcher(cfg)
	if err != nil {
		return nil, fmt.Errorf("build fetcher failed, err:%w", err)
	}
	defer func() {
		if err := f.Close(); err != nil {
			logutil.GetLogger(ctx).Error("close fetcher failed", zap.Error(err))
		}
	}()
	fm, err := buildFileMatcher(cfg.Filter, cfg.Matcher)
	if err != nil {
		return nil, err
	}
	locator := catalog.ThreddsPageLocator
	if cfg.CatalogLayout == config.CatalogLayoutDefault {
		locator = catalog.DefaultPageLocator
	}
	client, err := cdr.NewFromParams(cdr.Params{
		StartDate: cfg.StartDate,
		EndDate:   cfg.EndDate,
		Dataset:   cfg.Dataset,
	},
		cdr.WithFetcher(f),
		cdr.WithCatalog(catalog.New(f, catalog.WithFileMatcher(fm), catalog.WithPageLocator(locator))),
		cdr.WithParallel(cfg.Fetch.Parallel),
	)
	if err != nil {
		return nil, fmt.Errorf("init client failed, err:%w", err)
	}
	res, err := run(ctx, client, cfg.URLsOnly)
	if err != nil {
		return nil, fmt.Errorf("run client failed, client:%s, err:%w", client, err)
	}
	if err := writeResult(cfg.Output, res); err != nil {
		return nil, err
	}
	return res, nil
}

func applyFlags(cfg *config.Config, ds, start, end, output string, urlsOnly bool) {
	if ds != "" {
		cfg.Dataset = ds
	}
	if start != "" {
		cfg.StartDate = start
	}
	if end != "" {
		cfg.EndDate = end
	}
	if output != "" {
		cfg.Output = output
	}
	if urlsOnly {
		cfg.URLsOnly = true
	}
}

func registerDatasets(extra map[string]string) error {
	names := make([]string, 0, len(extra))
	for name := range extra {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		if err := dataset.Register(name, extra[name]); err != nil {
			return err
		}
	}
	return nil
}

func buildFetcher(cfg *config.Config) (fetcher.ICachedFetcher, error) {
	opts := []fetcher.Option{
		fetcher.WithTimeout(time.Duration(cfg.Fetch.Timeout) * time.Millisecond),
		fetcher.WithUserAgent(cfg.Fetch.UserAgent),
		fetcher.WithMaxBodySize(cfg.Fetch.MaxBodySize),
	}
	r, err := buildHostResolver(cfg.Fetch)
	if err != nil {
		return nil, err
	}
	if r != nil {
		opts = append(opts, fetcher.WithResolver(r))
	}
	f, err := fetcher.New(opts...)
	if err != nil {
		return nil, err
	}
	return fetcher.TryEnableCache(f, fetcher.CacheOptions{
		Size:    cfg.Cache.Size,
		TTL:     time.Duration(cfg.Cache.TTL) * time.Second,
		Persist: cfg.Cache.Persist,
		Dir:     cfg.Cache.Dir,
	})
}

// buildHostResolver returns nil when neither upstream resolvers nor static
// hosts are configured, leaving name resolution to the default dialer.
func buildHostResolver(fc config.FetchConfig) (resolver.IHostResolver, error) {
	var r resolver.IHostResolver
	if len(fc.Resolver) > 0 {
		rs, err := resolver.MakeResolvers(fc.Resolver)
		if err != nil {
			return nil, fmt.Errorf("make resolvers failed, err:%w", err)
		}
		r = resolver.NewGroupResolver(rs, fc.ResolverParallel)
		r = resolver.TryEnableCache(r, resolver.CacheOptions{Size: fc.ResolverCache})
	}
	if len(fc.Hosts.Records) == 0 && len(fc.Hosts.Files) == 0 {
		return r, nil
	}
	records, err := hosts.LoadRecordsFromFiles(fc.Hosts.Files)
	if err != nil {
		return nil, err
	}
	records = append(records, fc.Hosts.Records)
	st, err := hosts.New(records...)
	if err != nil {
		return nil, fmt.Errorf("build static hosts failed, err:%w", err)
	}
	if r == nil {
		r = resolver.System()
	}
	return hosts.WithFallback(st, r), nil
}

func buildFileMatcher(filter string, ms []config.MatcherConfig) (matcher.IFileMatcher, error) {
	rs := make(map[string]matcher.IFileMatcher, len(ms)+1)
	rs[matcher.DefaultDataFileMatcherName] = matcher.DataFileMatcher()
	for _, m := range ms {
		inst, err := matcher.MakeMatcher(m.Type, m.Name, m.Data)
		if err != nil {
			return nil, fmt.Errorf("make matcher failed, name:%s, type:%s, err:%w", m.Name, m.Type, err)
		}
		rs[m.Name] = inst
	}
	expr := strings.TrimSpace(filter)
	if expr == "" {
		expr = matcher.DefaultDataFileMatcherName
	}
	m, err := matcher.BuildExpressionMatcher(expr, rs)
	if err != nil {
		return nil, fmt.Errorf("compile filter expression failed, expr:%s, err:%w", expr, err)
	}
	return m, nil
}

func run(ctx context.Context, client *cdr.Client, urlsOnly bool) (*result, error) {
	urls, err := client.Query(ctx)
	if err != nil {
		return nil, err
	}
	res := &result{
		Dataset:   client.Dataset().String(),
		StartDate: client.StartDate(),
		EndDate:   client.EndDate(),
		URLs:      urls,
	}
	if urlsOnly || len(urls) == 0 {
		return res, nil
	}
	info, err := client.Info(ctx, "")
	if err != nil {
		return nil, err
	}
	res.Info = info
	return res, nil
}

func writeResult(output string, res *result) error {
	var w io.Writer = os.Stdout
	if output != "" {
		file, err := os.Create(output)
		if err != nil {
			return fmt.Errorf("create output file failed, path:%s, err:%w", output, err)
		}
		defer file.Close()
		w = file
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(res)
}
