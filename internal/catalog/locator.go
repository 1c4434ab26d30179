package catalog

import (
	"strconv"
	"strings"
)

// PageLocator returns the catalog pages to try for a year, in order.
type PageLocator func(base string, year int) []string

// DefaultPageLocator looks for <base>/<year>/catalog.html and falls back to
// <base>/files/<year>/catalog.html.
func DefaultPageLocator(base string, year int) []string {
	y := strconv.Itoa(year)
	return []string{
		joinURL(base, y, "catalog.html"),
		joinURL(base, "files", y, "catalog.html"),
	}
}

// ThreddsPageLocator tries the browsable THREDDS catalog tree matching an
// OPeNDAP base first (".../thredds/dodsC/..." is listed under
// ".../thredds/catalog/..."), then the default candidates.
func ThreddsPageLocator(base string, year int) []string {
	links := DefaultPageLocator(base, year)
	const dods, cat = "/thredds/dodsC/", "/thredds/catalog/"
	if !strings.Contains(base, dods) {
		return links
	}
	browse := joinURL(strings.Replace(base, dods, cat, 1), strconv.Itoa(year), "catalog.html")
	return append([]string{browse}, links...)
}

func joinURL(base string, parts ...string) string {
	return strings.TrimRight(base, "/") + "/" + strings.Join(parts, "/")
}
