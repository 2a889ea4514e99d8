package catalog

import (
	"context"

	"github.com/airbusgeo/geocube-tilefinder/catalog/entities"
	"github.com/airbusgeo/geocube-tilefinder/service/geometry"
)

// ProductsProvider searches the products of an area in a remote catalogue
type ProductsProvider interface {
	// SearchProducts returns the products intersecting roi, sensed during the time window of the area
	SearchProducts(ctx context.Context, area *entities.AreaToSearch, roi geometry.Polygon) (entities.Catalog, error)
}

// Inventory lists the products already acquired
type Inventory interface {
	// Retained returns the ids of the products of the aoi that have already been acquired
	Retained(ctx context.Context, aoi string) ([]string, error)
	// Record adds the ids of the products to the inventory of the aoi
	Record(ctx context.Context, aoi string, ids ...string) error
}
