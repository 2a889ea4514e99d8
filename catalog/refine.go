package catalog

import (
	"fmt"

	"github.com/airbusgeo/geocube-tilefinder/catalog/entities"
	"github.com/airbusgeo/geocube-tilefinder/service"
	"github.com/airbusgeo/geocube-tilefinder/service/geometry"
)

// RemoveReprocessed removes the products that appear twice in the catalog.
// When a product is reprocessed, the last 4 digits of its identifier (the product discriminator) change.
// When searching for data, both products are found, even though they are the same acquisition.
// This routine keeps the most recently ingested product.
// Credit: OpenSarToolkit
func RemoveReprocessed(c entities.Catalog) (entities.Catalog, []string) {
	products := c.Products()
	identifiers := map[string]int{}
	removed := []string{}

	j := 0
	for _, p := range products {
		name := p.ProductName()
		if k, ok := identifiers[name]; !ok || name == "" {
			products[j] = p
			identifiers[name] = j
			j++
		} else if products[k].IngestionDate.Before(p.IngestionDate) {
			removed = append(removed, products[k].ID)
			products[k] = p
		} else {
			removed = append(removed, p.ID)
		}
	}

	kept := service.StringSet{}
	for _, p := range products[0:j] {
		kept.Push(p.ID)
	}
	return c.Select(kept), removed
}

// RemoveOutside removes the products whose footprint does not intersect the roi.
// The search of the provider works over a simplified representation of the roi.
// This may then include products that do not overlap with the roi.
func RemoveOutside(c entities.Catalog, roi geometry.Polygon) (entities.Catalog, []string, error) {
	offset := geometry.RotationOffset(roi)
	rroi, err := geometry.Rotate(roi, offset)
	if err != nil {
		return nil, nil, fmt.Errorf("RemoveOutside.Rotate: %w", err)
	}

	kept := service.StringSet{}
	removed := []string{}
	for _, p := range c.Products() {
		footprint, err := geometry.Rotate(p.Footprint, offset)
		if err != nil {
			return nil, nil, fmt.Errorf("RemoveOutside[%s].Rotate: %w", p.ID, err)
		}
		intersects, err := geometry.Intersects(footprint, rroi)
		if err != nil {
			return nil, nil, fmt.Errorf("RemoveOutside[%s].%w", p.ID, err)
		}
		if intersects {
			kept.Push(p.ID)
		} else {
			removed = append(removed, p.ID)
		}
	}
	return c.Select(kept), removed, nil
}
