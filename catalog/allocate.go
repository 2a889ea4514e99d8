package catalog

import (
	"fmt"
	"sort"

	"github.com/airbusgeo/geocube-tilefinder/catalog/entities"
	"github.com/airbusgeo/geocube-tilefinder/service/geometry"
)

// AllocateRegions checks the footprints of the products against a set of named regions
// and returns, for each product id, the sorted names of the regions entirely covered by the product.
// Products covering no region are mapped to an empty list.
func AllocateRegions(c entities.Catalog, regions map[string]geometry.Polygon) (map[string][]string, error) {
	names := make([]string, 0, len(regions))
	for name, roi := range regions {
		if roi.IsZero() {
			return nil, geometry.ErrInvalidGeometry{Reason: "empty region " + name}
		}
		names = append(names, name)
	}
	sort.Strings(names)

	jobs := make(map[string][]string, len(c))
	for _, p := range c.Products() {
		jobs[p.ID] = []string{}
		for _, name := range names {
			offset := geometry.RotationOffset(regions[name])
			rroi, err := geometry.Rotate(regions[name], offset)
			if err != nil {
				return nil, fmt.Errorf("AllocateRegions[%s].Rotate: %w", name, err)
			}
			footprint, err := geometry.Rotate(p.Footprint, offset)
			if err != nil {
				return nil, fmt.Errorf("AllocateRegions[%s].Rotate: %w", p.ID, err)
			}
			contains, err := geometry.Contains(footprint, rroi)
			if err != nil {
				return nil, fmt.Errorf("AllocateRegions[%s].%w", p.ID, err)
			}
			if contains {
				jobs[p.ID] = append(jobs[p.ID], name)
			}
		}
	}
	return jobs, nil
}
