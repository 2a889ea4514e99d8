package entities

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/airbusgeo/geocube-tilefinder/common"
	"github.com/airbusgeo/geocube-tilefinder/service"
	"github.com/airbusgeo/geocube-tilefinder/service/geometry"
	"github.com/airbusgeo/geocube-tilefinder/tilegrid"
	"github.com/go-spatial/geom/encoding/geojson"
)

// ErrProductNotValid is returned when a required field of a product is missing or malformed
type ErrProductNotValid struct {
	ID     string
	Reason string
}

func (e ErrProductNotValid) Error() string {
	return fmt.Sprintf("product %s not valid: %s", e.ID, e.Reason)
}

// Product is an imagery product returned by a provider
type Product struct {
	ID           string // Unique identifier of the product (e.g. uuid of the provider)
	Identifier   string // Name of the product (e.g. S2A_MSIL1C_20200101T...)
	Platform     common.Platform
	ProductType  string
	Polarisation string
	Footprint    geometry.Polygon
	Level        common.ProcessingLevel
	SensingStart time.Time
	SensingEnd   time.Time // Zero if unknown or instantaneous
	// IngestionDate is the date the product has been published by the provider (used to select the last reprocessing)
	IngestionDate time.Time
	Annotation    tilegrid.Annotation
	Metadata      map[string]string
}

// Validate checks the required fields
// Raise ErrProductNotValid
func (p Product) Validate() error {
	switch {
	case p.ID == "":
		return ErrProductNotValid{ID: p.Identifier, Reason: "missing id"}
	case !p.Platform.IsAPlatform() || p.Platform == common.Unknown:
		return ErrProductNotValid{ID: p.ID, Reason: "unknown platform"}
	case !p.Level.IsAProcessingLevel():
		return ErrProductNotValid{ID: p.ID, Reason: "unknown processing level " + p.Level.String()}
	case p.Footprint.IsZero():
		return ErrProductNotValid{ID: p.ID, Reason: "missing footprint"}
	case p.SensingStart.IsZero():
		return ErrProductNotValid{ID: p.ID, Reason: "missing sensing start"}
	case p.HasSensingEnd() && p.SensingEnd.Before(p.SensingStart):
		return ErrProductNotValid{ID: p.ID, Reason: fmt.Sprintf("sensing end %v before sensing start %v", p.SensingEnd, p.SensingStart)}
	}
	return nil
}

// HasSensingEnd returns true if the sensing end is known
func (p Product) HasSensingEnd() bool {
	return !p.SensingEnd.IsZero()
}

// ProductName returns the identifier without the product discriminator:
// two products with the same ProductName are reprocessings of the same acquisition.
// Identifiers that do not follow the naming convention of their platform are returned as is.
func (p Product) ProductName() string {
	if common.GetPlatformFromProductId(p.Identifier) != p.Platform {
		return p.Identifier
	}
	info, err := common.Info(p.Identifier)
	if err != nil {
		return p.Identifier
	}
	return info["ACQUISITION"]
}

// Catalog of products indexed by ID
type Catalog map[string]Product

// NewCatalog creates a catalog from a list of products
// Raise ErrProductNotValid
func NewCatalog(products ...Product) (Catalog, error) {
	c := make(Catalog, len(products))
	for _, p := range products {
		if err := c.Add(p); err != nil {
			return nil, err
		}
	}
	return c, nil
}

// Add validates the product and adds it to the catalog
// Raise ErrProductNotValid if the product is not valid or already in the catalog
func (c Catalog) Add(p Product) error {
	if err := p.Validate(); err != nil {
		return err
	}
	if _, ok := c[p.ID]; ok {
		return ErrProductNotValid{ID: p.ID, Reason: "duplicate id"}
	}
	c[p.ID] = p
	return nil
}

// Copy returns a shallow copy of the catalog (products are values, metadata are shared)
func (c Catalog) Copy() Catalog {
	cp := make(Catalog, len(c))
	for k, v := range c {
		cp[k] = v
	}
	return cp
}

// IDs returns the sorted ids of the catalog
func (c Catalog) IDs() []string {
	ids := make([]string, 0, len(c))
	for id := range c {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Products returns the products sorted by sensing start, then by id
func (c Catalog) Products() []Product {
	products := make([]Product, 0, len(c))
	for _, p := range c {
		products = append(products, p)
	}
	sort.Slice(products, func(i, j int) bool {
		if !products[i].SensingStart.Equal(products[j].SensingStart) {
			return products[i].SensingStart.Before(products[j].SensingStart)
		}
		return products[i].ID < products[j].ID
	})
	return products
}

// Select returns a new catalog with the products whose ids are in the set
func (c Catalog) Select(ids service.StringSet) Catalog {
	selection := make(Catalog, len(ids))
	for id := range ids {
		if p, ok := c[id]; ok {
			selection[id] = p
		}
	}
	return selection
}

// SceneType is the kind of products to search and the provider-specific parameters
type SceneType struct {
	Constellation string            `json:"constellation"`
	Parameters    map[string]string `json:"parameters"`
}

// ProcLevelParameter is the parameter of SceneType defining the requested processing level.
// "ALL" requests all the levels of each acquisition.
const ProcLevelParameter = "proclevel"

var aoiIDPattern = regexp.MustCompile("^[a-zA-Z0-9-:_]+$")

// AreaToSearch is the input of a product selection
type AreaToSearch struct {
	AOIID     string           `json:"aoi"`
	ROI       RegionOfInterest `json:"roi"`
	StartTime time.Time        `json:"start_time"`
	EndTime   time.Time        `json:"end_time"`
	SceneType SceneType        `json:"scene_type"`
	// Retained are the ids of the products already acquired by the caller
	Retained []string `json:"retained,omitempty"`
}

// Validate checks the area
func (a AreaToSearch) Validate() error {
	if !aoiIDPattern.MatchString(a.AOIID) {
		return fmt.Errorf("validate: wrong format for AOI '%s' (must be chars, numbers and -:_)", a.AOIID)
	}
	if common.GetPlatformFromString(a.SceneType.Constellation) == common.Unknown {
		return fmt.Errorf("validate: unrecognized constellation: %s", a.SceneType.Constellation)
	}
	if a.StartTime.IsZero() {
		return fmt.Errorf("validate: start_time is required")
	}
	if !a.EndTime.IsZero() && a.EndTime.Before(a.StartTime) {
		return fmt.Errorf("validate: end_time before start_time")
	}
	return nil
}

// AllLevels returns true if all the processing levels of each acquisition are requested
func (a AreaToSearch) AllLevels() bool {
	return strings.EqualFold(a.SceneType.Parameters[ProcLevelParameter], "ALL")
}

// RegionOfInterest is a polygon, or a point cloud whose convex hull is the region
type RegionOfInterest struct {
	Geometry geojson.Geometry `json:"geometry"`
	// Points must be true if the geometry is a set of scattered points (or shapes) and not a closed ring
	Points bool `json:"points,omitempty"`
}

// Polygon returns the polygon of the region:
//   - the convex hull of all the vertices of the geometry if Points is true
//   - otherwise, the union of all the polygons of the geometry, that must be contiguous.
//
// Raise ErrInvalidGeometry
func (r RegionOfInterest) Polygon() (geometry.Polygon, error) {
	if r.Geometry.Geometry == nil {
		return geometry.Polygon{}, geometry.ErrInvalidGeometry{Reason: "empty region of interest"}
	}
	if r.Points {
		return geometry.ConvexHull(service.Vertices(r.Geometry.Geometry))
	}
	return geometry.PolygonFromGeometry(service.MultiPolygon(r.Geometry.Geometry))
}
