package catalog

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/airbusgeo/geocube-tilefinder/catalog/entities"
	"github.com/airbusgeo/geocube-tilefinder/interface/catalog"
	"github.com/airbusgeo/geocube-tilefinder/interface/messaging"
	"github.com/airbusgeo/geocube-tilefinder/service/log"
	"go.uber.org/zap"
)

// Catalog is the main class of this package
type Catalog struct {
	Annotator *Annotator
	Provider  catalog.ProductsProvider
	// Inventory of the products already acquired (optional)
	Inventory catalog.Inventory
	// Publisher of the selected products (optional)
	Publisher messaging.Publisher
}

// Reasons of removal of a product during a selection
const (
	RemovedReprocessed = "reprocessed"
	RemovedOutside     = "outside"
	RemovedRedundant   = "redundant"
)

// Selection is the result of Select
type Selection struct {
	AOI string `json:"aoi"`
	// Tiles intersecting the region of interest
	Tiles []string `json:"tiles"`
	// Found is the number of products returned by the provider
	Found    int              `json:"found"`
	Products entities.Catalog `json:"products"`
	// Removed ids by reason
	Removed     map[string][]string      `json:"removed"`
	Diagnostics []AmbiguousDeduplication `json:"diagnostics,omitempty"`
}

// Retained returns the ids of the products already acquired for the area
func (c *Catalog) Retained(ctx context.Context, area entities.AreaToSearch) ([]string, error) {
	retained := append([]string{}, area.Retained...)
	if c.Inventory != nil {
		ids, err := c.Inventory.Retained(ctx, area.AOIID)
		if err != nil {
			return nil, fmt.Errorf("Retained.%w", err)
		}
		retained = append(retained, ids...)
	}
	return retained, nil
}

// ResolveProducts annotates the products and removes the redundant ones
func (c *Catalog) ResolveProducts(ctx context.Context, products entities.Catalog, roi entities.RegionOfInterest, allLevels bool, retained ...string) (Result, error) {
	polygon, err := roi.Polygon()
	if err != nil {
		return Result{}, fmt.Errorf("ResolveProducts.%w", err)
	}
	annotated, err := c.Annotator.AnnotateCatalog(ctx, products)
	if err != nil {
		return Result{}, fmt.Errorf("ResolveProducts.%w", err)
	}
	for _, id := range retained {
		if _, ok := annotated[id]; !ok {
			log.Logger(ctx).Sugar().Warnf("retained product %s is not in the catalog", id)
		}
	}
	opts := []ResolveOption{WithRetained(retained...)}
	if allLevels {
		opts = append(opts, WithoutLevelDeduplication())
	}
	return Resolve(ctx, annotated, polygon, opts...)
}

// Select searches the products of the area and returns the minimal set of products covering the region of interest:
// reprocessed products and products outside the region of interest are removed, then the redundant products (see Resolve).
func (c *Catalog) Select(ctx context.Context, area entities.AreaToSearch) (Selection, error) {
	if err := area.Validate(); err != nil {
		return Selection{}, fmt.Errorf("Select.%w", err)
	}
	ctx = log.With(ctx, "aoi", area.AOIID)

	roi, err := area.ROI.Polygon()
	if err != nil {
		return Selection{}, fmt.Errorf("Select.%w", err)
	}
	s := Selection{AOI: area.AOIID, Removed: map[string][]string{}}
	if s.Tiles, err = c.Annotator.Lookup(roi); err != nil {
		return Selection{}, fmt.Errorf("Select.%w", err)
	}
	log.Logger(ctx).Sugar().Debugf("roi intersects %d tiles", len(s.Tiles))

	// Search products covering this area
	log.Logger(ctx).Sugar().Debugf("Search products from %v to %v", area.StartTime, area.EndTime)
	products, err := c.Provider.SearchProducts(ctx, &area, roi)
	if err != nil {
		return Selection{}, fmt.Errorf("Select.%w", err)
	}
	s.Found = len(products)

	// Refine
	products, s.Removed[RemovedReprocessed] = RemoveReprocessed(products)
	if products, s.Removed[RemovedOutside], err = RemoveOutside(products, roi); err != nil {
		return Selection{}, fmt.Errorf("Select.%w", err)
	}

	retained, err := c.Retained(ctx, area)
	if err != nil {
		return Selection{}, fmt.Errorf("Select.%w", err)
	}
	r, err := c.ResolveProducts(ctx, products, area.ROI, area.AllLevels(), retained...)
	if err != nil {
		return Selection{}, fmt.Errorf("Select.%w", err)
	}
	s.Products = r.Products
	s.Removed[RemovedRedundant] = r.Removed
	s.Diagnostics = r.Diagnostics

	log.Logger(ctx).Info("products selected",
		zap.Int("found", s.Found),
		zap.Int("selected", len(s.Products)),
		zap.Int("reprocessed", len(s.Removed[RemovedReprocessed])),
		zap.Int("outside", len(s.Removed[RemovedOutside])),
		zap.Int("redundant", len(s.Removed[RemovedRedundant])))
	return s, nil
}

// Publish sends the products of the selection to the publisher (one message per product, as a GeoJSON Feature)
// and records them in the inventory.
// Products already in the inventory are not published again.
func (c *Catalog) Publish(ctx context.Context, s Selection) (int, error) {
	if c.Publisher == nil {
		return 0, fmt.Errorf("Publish: publisher is not defined")
	}
	var retained []string
	if c.Inventory != nil {
		var err error
		if retained, err = c.Inventory.Retained(ctx, s.AOI); err != nil {
			return 0, fmt.Errorf("Publish.%w", err)
		}
	}
	skip := map[string]struct{}{}
	for _, id := range retained {
		skip[id] = struct{}{}
	}

	var messages [][]byte
	var ids []string
	for _, p := range s.Products.Products() {
		if _, ok := skip[p.ID]; ok {
			continue
		}
		data, err := json.Marshal(p)
		if err != nil {
			return 0, fmt.Errorf("Publish.Marshal[%s]: %w", p.ID, err)
		}
		messages = append(messages, data)
		ids = append(ids, p.ID)
	}
	if len(messages) == 0 {
		return 0, nil
	}
	if err := c.Publisher.Publish(ctx, messages...); err != nil {
		return 0, fmt.Errorf("Publish.%w", err)
	}
	if c.Inventory != nil {
		if err := c.Inventory.Record(ctx, s.AOI, ids...); err != nil {
			return len(ids), fmt.Errorf("Publish.%w", err)
		}
	}
	log.Logger(ctx).Sugar().Infof("%d products published", len(ids))
	return len(ids), nil
}
