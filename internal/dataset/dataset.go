// Package dataset holds the table of known climate data record products and
// the OPeNDAP base URL each one is served from.
package dataset

import (
	"errors"
	"fmt"
	"strings"
)

var ErrInvalidDataset = errors.New("invalid dataset")

// Dataset names a climate data record product. The zero value is not a valid dataset.
type Dataset string

const (
	AVHRRViirsNDVIV5             Dataset = "AVHRR_VIIRS_NDVI_V5"
	AVHRRLaiFaparV5              Dataset = "AVHRR_LAI_FAPAR_V5"
	AVHRRViirsSurfaceReflectance Dataset = "AVHRR_VIIRS_SURFACE_REFLECTANCE"
	AVHHRAotDaily                Dataset = "AVHHR_AOT_DAILY"
	Persiann                     Dataset = "PERSIANN"
	Gridsat                      Dataset = "GRIDSAT"
	SeaSurfaceTempWHOI           Dataset = "SEA_SURFACE_TEMP_WHOI"
	OceanHeatFluxes              Dataset = "OCEAN_HEAT_FLUXES"
	SeaIceConcentration          Dataset = "SEA_ICE_CONCENTRATION"
)

const nceiRoot = "https://www.ncei.noaa.gov/thredds/dodsC/cdr/"

var (
	urls  = make(map[Dataset]string)
	order []Dataset
)

func init() {
	mustRegister(AVHRRViirsNDVIV5, nceiRoot+"ndvi/")
	mustRegister(AVHRRLaiFaparV5, nceiRoot+"lai/")
	mustRegister(AVHRRViirsSurfaceReflectance, nceiRoot+"surface-reflectance/")
	mustRegister(AVHHRAotDaily, nceiRoot+"avhrr-aot-daily/")
	mustRegister(Persiann, nceiRoot+"persiann/")
	mustRegister(Gridsat, nceiRoot+"gridsat/")
	mustRegister(SeaSurfaceTempWHOI, nceiRoot+"sea-surface-temp-whoi/")
	mustRegister(OceanHeatFluxes, nceiRoot+"ocean-heat-fluxes/")
	mustRegister(SeaIceConcentration, nceiRoot+"sea-ice-concentration/")
}

func mustRegister(ds Dataset, url string) {
	if err := Register(string(ds), url); err != nil {
		panic(err)
	}
}

// Register adds a dataset to the table. It is meant to be called during
// start-up, before any lookup happens; the table is not guarded by a lock.
func Register(name string, url string) error {
	name = strings.TrimSpace(name)
	url = strings.TrimSpace(url)
	if name == "" {
		return fmt.Errorf("register dataset failed, empty name")
	}
	if url == "" {
		return fmt.Errorf("register dataset failed, empty url, name:%s", name)
	}
	ds := Dataset(name)
	if _, ok := urls[ds]; ok {
		return fmt.Errorf("register dataset failed, duplicate name:%s", name)
	}
	urls[ds] = url
	order = append(order, ds)
	return nil
}

// Resolve returns the base URL of the named dataset.
func Resolve(name string) (string, error) {
	url, ok := urls[Dataset(name)]
	if !ok {
		return "", fmt.Errorf("%w: %q, use one of %v", ErrInvalidDataset, name, List())
	}
	return url, nil
}

// Parse validates name against the table.
func Parse(name string) (Dataset, error) {
	if _, err := Resolve(name); err != nil {
		return "", err
	}
	return Dataset(name), nil
}

// List returns the known dataset names in registration order.
func List() []string {
	names := make([]string, 0, len(order))
	for _, ds := range order {
		names = append(names, string(ds))
	}
	return names
}

func (d Dataset) String() string {
	return string(d)
}

// URL returns the base URL, or an empty string for an unknown dataset.
func (d Dataset) URL() string {
	return urls[d]
}

func (d Dataset) Valid() bool {
	_, ok := urls[d]
	return ok
}
