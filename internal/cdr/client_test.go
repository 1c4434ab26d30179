package cdr

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/xxxsen/cdrfetch/internal/catalog"
	"github.com/xxxsen/cdrfetch/internal/das"
	"github.com/xxxsen/cdrfetch/internal/dataset"
	"github.com/xxxsen/cdrfetch/internal/daterange"
)

const ndviBase = "https://www.ncei.noaa.gov/thredds/dodsC/cdr/ndvi/"

type stubFetcher struct {
	mu       sync.Mutex
	pages    map[string]string
	requests []string
}

func (s *stubFetcher) String() string { return "stub" }

func (s *stubFetcher) Fetch(ctx context.Context, link string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.requests = append(s.requests, link)
	body, ok := s.pages[link]
	if !ok {
		return nil, fmt.Errorf("not found: %s", link)
	}
	return []byte(body), nil
}

func (s *stubFetcher) count(suffix string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, r := range s.requests {
		if strings.HasSuffix(r, suffix) {
			n++
		}
	}
	return n
}

func catalogPage(names ...string) string {
	var sb strings.Builder
	sb.WriteString("<html><body><table>")
	for _, n := range names {
		fmt.Fprintf(&sb, "<tr><td><a href='catalog.html?dataset=%s'><tt>%s</tt></a></td></tr>", n, n)
	}
	sb.WriteString("</table></body></html>")
	return sb.String()
}

func dasDoc(title string) string {
	return fmt.Sprintf(`Attributes {
    NDVI {
        String long_name "Normalized Difference Vegetation Index";
        Int16 _FillValue -9999;
    }
    NC_GLOBAL {
        String title "%s";
    }
}
`, title)
}

// newNDVIFetcher serves a catalog page per year with one file per listed day
// and a DAS document for every file.
func newNDVIFetcher(days map[int][]string) *stubFetcher {
	f := &stubFetcher{pages: make(map[string]string)}
	for year, tokens := range days {
		names := []string{"README.txt"}
		for _, tk := range tokens {
			name := "AVHRR-Land_v005_AVH13C1_NOAA-19_" + tk + "_c20240101.nc"
			names = append(names, name)
			f.pages[fmt.Sprintf("%s%d/%s.das", ndviBase, year, name)] = dasDoc(tk)
		}
		f.pages[fmt.Sprintf("%s%d/catalog.html", ndviBase, year)] = catalogPage(names...)
	}
	return f
}

func TestNewValidation(t *testing.T) {
	if _, err := New("2020/01/01", "2020-01-02", dataset.AVHRRViirsNDVIV5); !errors.Is(err, daterange.ErrInvalidDateFormat) {
		t.Fatalf("expected ErrInvalidDateFormat, got %v", err)
	}
	if _, err := New("2020-01-01", "2020-01-02", dataset.Dataset("NDVI")); !errors.Is(err, dataset.ErrInvalidDataset) {
		t.Fatalf("expected ErrInvalidDataset, got %v", err)
	}
	if _, err := New("2020-01-05", "2020-01-01", dataset.AVHRRViirsNDVIV5); !errors.Is(err, daterange.ErrInvalidDateRange) {
		t.Fatalf("expected ErrInvalidDateRange, got %v", err)
	}
	c, err := New("2020-01-01", "2020-01-02", dataset.AVHRRViirsNDVIV5, WithFetcher(&stubFetcher{}))
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	if c.State() != StateConstructed || len(c.URLs()) != 0 || len(c.Metadata()) != 0 {
		t.Fatalf("unexpected initial client state: %s", c)
	}
	if c.String() != "Client(start_date=2020-01-01, end_date=2020-01-02, dataset=AVHRR_VIIRS_NDVI_V5)" {
		t.Fatalf("unexpected string: %s", c)
	}
}

func TestNewFromParams(t *testing.T) {
	c, err := NewFromParams(Params{StartDate: "2020-01-01", EndDate: "2020-01-01", Dataset: "GRIDSAT"}, WithFetcher(&stubFetcher{}))
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	if c.Dataset() != dataset.Gridsat {
		t.Fatalf("unexpected dataset: %s", c.Dataset())
	}
	if _, err := NewFromParams(Params{StartDate: "2020-01-01", EndDate: "2020-01-01", Dataset: "gridsat"}); !errors.Is(err, dataset.ErrInvalidDataset) {
		t.Fatalf("expected ErrInvalidDataset, got %v", err)
	}
}

func TestQuerySingleYear(t *testing.T) {
	f := newNDVIFetcher(map[int][]string{2020: {"20200101", "20200102", "20200301"}})
	c, err := New("2020-01-01", "2020-01-31", dataset.AVHRRViirsNDVIV5, WithFetcher(f))
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	urls, err := c.Query(context.Background())
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if f.count("catalog.html") != 1 {
		t.Fatalf("expected one catalog fetch, got %v", f.requests)
	}
	if len(urls) != 2 {
		t.Fatalf("expected 2 urls, got %v", urls)
	}
	for _, u := range urls {
		if !strings.HasPrefix(u, ndviBase+"2020/") {
			t.Fatalf("unexpected url prefix: %s", u)
		}
		if !c.IsAvailable(u) {
			t.Fatalf("url should be available: %s", u)
		}
	}
	if c.IsAvailable(ndviBase + "2020/README.txt") {
		t.Fatalf("readme should not be available")
	}
	if c.State() != StateURLsResolved {
		t.Fatalf("unexpected state: %s", c.State())
	}
	urls[0] = "mutated"
	if c.URLs()[0] == "mutated" {
		t.Fatalf("query result should be a copy")
	}
}

func TestQueryThenInfo(t *testing.T) {
	f := newNDVIFetcher(map[int][]string{2020: {"20200101", "20200615", "20201231"}})
	c, err := New("2020-01-01", "2020-12-31", dataset.AVHRRViirsNDVIV5, WithFetcher(f))
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	urls, err := c.Query(context.Background())
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	doc, err := c.Info(context.Background(), "")
	if err != nil {
		t.Fatalf("info: %v", err)
	}
	if len(doc) != len(urls) {
		t.Fatalf("expected %d ids, got %d", len(urls), len(doc))
	}
	for _, u := range urls {
		id := strings.TrimSuffix(u[strings.LastIndex(u, "/")+1:], ".nc")
		blocks, ok := doc[id]
		if !ok {
			t.Fatalf("missing id %s in %v", id, doc.IDs())
		}
		if blocks["NDVI"]["long_name"] != "Normalized Difference Vegetation Index" {
			t.Fatalf("unexpected NDVI block: %+v", blocks["NDVI"])
		}
	}
	if c.State() != StateMetadataLoaded {
		t.Fatalf("unexpected state: %s", c.State())
	}
	doc["x"] = das.Blocks{}
	if _, ok := c.Metadata()["x"]; ok {
		t.Fatalf("info result should be a copy")
	}
}

func TestQueryMultiYearOrder(t *testing.T) {
	for _, parallel := range []int{1, 4} {
		f := newNDVIFetcher(map[int][]string{
			2019: {"20191230", "20191231"},
			2020: {"20200101"},
			2021: {"20210101", "20210102"},
		})
		c, err := New("2019-12-30", "2021-01-02", dataset.AVHRRViirsNDVIV5, WithFetcher(f), WithParallel(parallel))
		if err != nil {
			t.Fatalf("new client: %v", err)
		}
		urls, err := c.Query(context.Background())
		if err != nil {
			t.Fatalf("parallel %d: query: %v", parallel, err)
		}
		want := []string{"20191230", "20191231", "20200101", "20210101", "20210102"}
		if len(urls) != len(want) {
			t.Fatalf("parallel %d: expected %d urls, got %v", parallel, len(want), urls)
		}
		for i, tk := range want {
			if !strings.Contains(urls[i], tk) {
				t.Fatalf("parallel %d: url %d should carry %s: %v", parallel, i, tk, urls)
			}
		}
		if f.count("catalog.html") != 3 {
			t.Fatalf("parallel %d: expected one catalog fetch per year, got %v", parallel, f.requests)
		}
		doc, err := c.Info(context.Background(), "")
		if err != nil {
			t.Fatalf("parallel %d: info: %v", parallel, err)
		}
		if len(doc) != len(want) {
			t.Fatalf("parallel %d: expected %d ids, got %v", parallel, len(want), doc.IDs())
		}
	}
}

func TestQueryReplacesURLs(t *testing.T) {
	f := newNDVIFetcher(map[int][]string{2020: {"20200101", "20200102", "20200103"}})
	c, err := New("2020-01-01", "2020-01-03", dataset.AVHRRViirsNDVIV5, WithFetcher(f))
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	if _, err := c.Query(context.Background()); err != nil {
		t.Fatalf("query: %v", err)
	}
	if len(c.URLs()) != 3 {
		t.Fatalf("expected 3 urls, got %v", c.URLs())
	}
	if err := c.SetStartDate("2020-01-02"); err != nil {
		t.Fatalf("set start: %v", err)
	}
	if err := c.SetEndDate("2020-01-02"); err != nil {
		t.Fatalf("set end: %v", err)
	}
	if _, err := c.Query(context.Background()); err != nil {
		t.Fatalf("query: %v", err)
	}
	urls := c.URLs()
	if len(urls) != 1 || !strings.Contains(urls[0], "20200102") {
		t.Fatalf("second query should replace the list, got %v", urls)
	}
}

func TestQueryFailureKeepsURLs(t *testing.T) {
	f := newNDVIFetcher(map[int][]string{2020: {"20200101"}})
	c, err := New("2020-01-01", "2020-01-01", dataset.AVHRRViirsNDVIV5, WithFetcher(f))
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	if _, err := c.Query(context.Background()); err != nil {
		t.Fatalf("query: %v", err)
	}
	if err := c.SetEndDate("2021-01-01"); err != nil {
		t.Fatalf("set end: %v", err)
	}
	_, err = c.Query(context.Background())
	var ue *catalog.UnreachableError
	if !errors.As(err, &ue) || ue.Year != 2021 {
		t.Fatalf("expected unreachable 2021 catalog, got %v", err)
	}
	if len(c.URLs()) != 1 {
		t.Fatalf("failed query should keep the previous list, got %v", c.URLs())
	}
}

func TestQueryInvertedWindow(t *testing.T) {
	c, err := New("2020-01-01", "2020-01-02", dataset.AVHRRViirsNDVIV5, WithFetcher(&stubFetcher{}))
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	if err := c.SetStartDate("2020-02-01"); err != nil {
		t.Fatalf("setter should only check format: %v", err)
	}
	if _, err := c.Query(context.Background()); !errors.Is(err, daterange.ErrInvalidDateRange) {
		t.Fatalf("expected ErrInvalidDateRange, got %v", err)
	}
	if err := c.SetStartDate("yesterday"); !errors.Is(err, daterange.ErrInvalidDateFormat) {
		t.Fatalf("expected ErrInvalidDateFormat, got %v", err)
	}
	if c.StartDate() != "2020-02-01" {
		t.Fatalf("failed setter must not change the date: %s", c.StartDate())
	}
	if err := c.SetDataset(dataset.Dataset("nope")); !errors.Is(err, dataset.ErrInvalidDataset) {
		t.Fatalf("expected ErrInvalidDataset, got %v", err)
	}
	if err := c.SetDataset(dataset.SeaIceConcentration); err != nil || c.Dataset() != dataset.SeaIceConcentration {
		t.Fatalf("set dataset failed: %v", err)
	}
}

func TestInfoWithURLIDUsesFirstURL(t *testing.T) {
	f := newNDVIFetcher(map[int][]string{2020: {"20200101", "20200102"}})
	c, err := New("2020-01-01", "2020-01-02", dataset.AVHRRViirsNDVIV5, WithFetcher(f))
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	if _, err := c.Query(context.Background()); err != nil {
		t.Fatalf("query: %v", err)
	}
	doc, err := c.Info(context.Background(), "custom")
	if err != nil {
		t.Fatalf("info: %v", err)
	}
	if len(doc) != 1 {
		t.Fatalf("expected a single entry, got %v", doc.IDs())
	}
	if doc["custom"]["NC_GLOBAL"]["title"] != "20200101" {
		t.Fatalf("expected the first url's attributes under custom: %+v", doc["custom"])
	}
	if f.count(".das") != 1 {
		t.Fatalf("expected exactly one das fetch, got %v", f.requests)
	}
}

func TestInfoPartialFailure(t *testing.T) {
	f := newNDVIFetcher(map[int][]string{2020: {"20200101", "20200102", "20200103"}})
	c, err := New("2020-01-01", "2020-01-03", dataset.AVHRRViirsNDVIV5, WithFetcher(f))
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	urls, err := c.Query(context.Background())
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	delete(f.pages, urls[1]+".das")

	_, err = c.Info(context.Background(), "")
	if !errors.Is(err, ErrMetadataUnreachable) {
		t.Fatalf("expected ErrMetadataUnreachable, got %v", err)
	}
	var me *MetadataUnreachableError
	if !errors.As(err, &me) || me.URL != urls[1] {
		t.Fatalf("expected failure on %s, got %v", urls[1], err)
	}
	meta := c.Metadata()
	if len(meta) != 1 {
		t.Fatalf("expected the first fragment to be kept, got %v", meta.IDs())
	}
	if _, ok := meta[das.DataID(urls[0])]; !ok {
		t.Fatalf("missing first fragment: %v", meta.IDs())
	}
	if f.count(".das") != 2 {
		t.Fatalf("remaining urls should not be fetched, got %v", f.requests)
	}
	if c.State() != StateURLsResolved {
		t.Fatalf("failed info must not change state: %s", c.State())
	}
}

func TestInfoMalformedDocument(t *testing.T) {
	f := newNDVIFetcher(map[int][]string{2020: {"20200101"}})
	c, err := New("2020-01-01", "2020-01-01", dataset.AVHRRViirsNDVIV5, WithFetcher(f))
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	urls, err := c.Query(context.Background())
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	f.pages[urls[0]+".das"] = "blk {\n  String broken \"value;\n}"
	if _, err := c.Info(context.Background(), ""); !errors.Is(err, das.ErrMalformedAttributeLine) {
		t.Fatalf("expected ErrMalformedAttributeLine, got %v", err)
	}
}

func TestInfoAccumulatesAndReset(t *testing.T) {
	f := newNDVIFetcher(map[int][]string{2020: {"20200101", "20200102"}})
	c, err := New("2020-01-01", "2020-01-01", dataset.AVHRRViirsNDVIV5, WithFetcher(f))
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	if _, err := c.Query(context.Background()); err != nil {
		t.Fatalf("query: %v", err)
	}
	if _, err := c.Info(context.Background(), ""); err != nil {
		t.Fatalf("info: %v", err)
	}
	if err := c.SetStartDate("2020-01-02"); err != nil {
		t.Fatalf("set start: %v", err)
	}
	if err := c.SetEndDate("2020-01-02"); err != nil {
		t.Fatalf("set end: %v", err)
	}
	if _, err := c.Query(context.Background()); err != nil {
		t.Fatalf("query: %v", err)
	}
	if c.State() != StateURLsResolved || len(c.Metadata()) != 1 {
		t.Fatalf("query should keep stale metadata, state=%s ids=%v", c.State(), c.Metadata().IDs())
	}
	doc, err := c.Info(context.Background(), "")
	if err != nil {
		t.Fatalf("info: %v", err)
	}
	if len(doc) != 2 {
		t.Fatalf("expected metadata of both queries, got %v", doc.IDs())
	}
	c.ResetMetadata()
	if len(c.Metadata()) != 0 || c.State() != StateURLsResolved {
		t.Fatalf("reset should drop metadata, state=%s", c.State())
	}
}

func TestInfoParallelPartialFailure(t *testing.T) {
	f := newNDVIFetcher(map[int][]string{2020: {"20200101", "20200102", "20200103", "20200104"}})
	c, err := New("2020-01-01", "2020-01-04", dataset.AVHRRViirsNDVIV5, WithFetcher(f), WithParallel(2))
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	urls, err := c.Query(context.Background())
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	delete(f.pages, urls[0]+".das")
	if _, err := c.Info(context.Background(), ""); !errors.Is(err, ErrMetadataUnreachable) {
		t.Fatalf("expected ErrMetadataUnreachable, got %v", err)
	}
	if len(c.Metadata()) != 0 {
		t.Fatalf("nothing before the failing url may be merged, got %v", c.Metadata().IDs())
	}
}

// slowDASFetcher delays every DAS fetch except the failing ones, which
// return at once.
type slowDASFetcher struct {
	*stubFetcher
	delay time.Duration
	fail  string
}

func (s *slowDASFetcher) Fetch(ctx context.Context, link string) ([]byte, error) {
	if strings.HasSuffix(link, ".das") {
		if strings.Contains(link, s.fail) {
			return nil, fmt.Errorf("das unavailable: %s", link)
		}
		select {
		case <-time.After(s.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return s.stubFetcher.Fetch(ctx, link)
}

func TestInfoParallelKeepsSlowerEarlierFragments(t *testing.T) {
	for _, parallel := range []int{1, 4} {
		f := &slowDASFetcher{
			stubFetcher: newNDVIFetcher(map[int][]string{2020: {"20200101", "20200102", "20200103", "20200104"}}),
			delay:       50 * time.Millisecond,
			fail:        "20200104",
		}
		c, err := New("2020-01-01", "2020-01-04", dataset.AVHRRViirsNDVIV5, WithFetcher(f), WithParallel(parallel))
		if err != nil {
			t.Fatalf("new client: %v", err)
		}
		urls, err := c.Query(context.Background())
		if err != nil {
			t.Fatalf("parallel %d: query: %v", parallel, err)
		}
		_, err = c.Info(context.Background(), "")
		var me *MetadataUnreachableError
		if !errors.As(err, &me) || me.URL != urls[3] {
			t.Fatalf("parallel %d: expected failure on %s, got %v", parallel, urls[3], err)
		}
		meta := c.Metadata()
		if len(meta) != 3 {
			t.Fatalf("parallel %d: expected the first three fragments, got %v", parallel, meta.IDs())
		}
		for _, u := range urls[:3] {
			if _, ok := meta[das.DataID(u)]; !ok {
				t.Fatalf("parallel %d: missing fragment of %s: %v", parallel, u, meta.IDs())
			}
		}
		if c.State() != StateURLsResolved {
			t.Fatalf("parallel %d: failed info must not change state: %s", parallel, c.State())
		}
	}
}

func TestInfoBeforeQuery(t *testing.T) {
	f := newNDVIFetcher(map[int][]string{2020: {"20200101"}})
	c, err := New("2020-01-01", "2020-01-01", dataset.AVHRRViirsNDVIV5, WithFetcher(f))
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	doc, err := c.Info(context.Background(), "")
	if err != nil {
		t.Fatalf("info: %v", err)
	}
	if len(doc) != 0 || len(f.requests) != 0 {
		t.Fatalf("nothing should be fetched before query, doc=%v requests=%v", doc.IDs(), f.requests)
	}
	if c.State() != StateConstructed {
		t.Fatalf("info before query must not advance state: %s", c.State())
	}
}

func TestWithCatalog(t *testing.T) {
	pages := &stubFetcher{pages: map[string]string{
		"https://www.ncei.noaa.gov/thredds/catalog/cdr/ndvi/2020/catalog.html": catalogPage("X_20200101.nc"),
	}}
	c, err := New("2020-01-01", "2020-01-01", dataset.AVHRRViirsNDVIV5,
		WithFetcher(&stubFetcher{}),
		WithCatalog(catalog.New(pages, catalog.WithPageLocator(catalog.ThreddsPageLocator))))
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	urls, err := c.Query(context.Background())
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if len(urls) != 1 || urls[0] != ndviBase+"2020/X_20200101.nc" {
		t.Fatalf("unexpected urls: %v", urls)
	}
}
