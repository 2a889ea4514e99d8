package catalog

import (
	"reflect"
	"testing"
	"time"

	"github.com/airbusgeo/geocube-tilefinder/catalog/entities"
	"github.com/airbusgeo/geocube-tilefinder/common"
	"github.com/airbusgeo/geocube-tilefinder/service/geometry"
)

func mustPolygon(t *testing.T, wkt string) geometry.Polygon {
	t.Helper()
	p, err := geometry.PolygonFromWKT(wkt)
	if err != nil {
		t.Fatal(err)
	}
	return p
}

func mustCatalog(t *testing.T, products ...entities.Product) entities.Catalog {
	t.Helper()
	c, err := entities.NewCatalog(products...)
	if err != nil {
		t.Fatal(err)
	}
	return c
}

func s1Product(t *testing.T, id, identifier string, ingestion time.Time) entities.Product {
	start := time.Date(2020, 4, 15, 5, 48, 35, 0, time.UTC)
	return entities.Product{
		ID:            id,
		Identifier:    identifier,
		Platform:      common.Sentinel1,
		ProductType:   "SLC",
		Polarisation:  "VV VH",
		Footprint:     mustPolygon(t, "POLYGON((0 0,1 0,1 1,0 1,0 0))"),
		Level:         common.LevelIntermediate,
		SensingStart:  start,
		SensingEnd:    start.Add(27 * time.Second),
		IngestionDate: ingestion,
	}
}

func TestRemoveReprocessed(t *testing.T) {
	d := time.Date(2019, 1, 1, 0, 0, 0, 0, time.UTC)
	c := mustCatalog(t,
		s1Product(t, "1", "S1A_IW_SLC__1SDV_20200415T054835_20200415T054902_032134_03B6F4_041D", d),
		s1Product(t, "2", "S1A_IW_SLC__1SDV_20200415T054835_20200415T054902_032134_03B6F4_06BD", d.AddDate(0, 0, 1)),
		s1Product(t, "3", "S1A_IW_SLC__1SDV_20200415T054835_20200415T054902_032134_03B6F4_1242", d),
		s1Product(t, "4", "S1A_IW_SLC__1SDV_20200415T054902_20200415T054929_032134_03B6F4_1242", d),
	)

	kept, removed := RemoveReprocessed(c)
	if !reflect.DeepEqual(kept.IDs(), []string{"2", "4"}) {
		t.Errorf("expecting [2 4], found %v", kept.IDs())
	}
	if !reflect.DeepEqual(removed, []string{"1", "3"}) {
		t.Errorf("expecting [1 3], found %v", removed)
	}
	if len(c) != 4 {
		t.Errorf("input catalog modified")
	}
}

func TestRemoveReprocessedWithoutIdentifier(t *testing.T) {
	d := time.Date(2019, 1, 1, 0, 0, 0, 0, time.UTC)
	c := mustCatalog(t, s1Product(t, "1", "", d), s1Product(t, "2", "", d))

	kept, removed := RemoveReprocessed(c)
	if len(kept) != 2 || len(removed) != 0 {
		t.Errorf("expecting 2 products kept, found %v (removed: %v)", kept.IDs(), removed)
	}
}

func TestRemoveOutside(t *testing.T) {
	d := time.Date(2019, 1, 1, 0, 0, 0, 0, time.UTC)
	inside := s1Product(t, "inside", "", d)
	outside := s1Product(t, "outside", "", d)
	outside.Footprint = mustPolygon(t, "POLYGON((2 0,3 0,3 1,2 1,2 0))")
	across := s1Product(t, "across", "", d)
	across.Footprint = mustPolygon(t, "POLYGON((-179.5 0,-179 0,-179 1,-179.5 1,-179.5 0))")

	tests := []struct {
		name    string
		roi     string
		kept    []string
		removed []string
	}{
		{"simple", "POLYGON((0.5 0.5,1.5 0.5,1.5 1.5,0.5 1.5,0.5 0.5))", []string{"inside"}, []string{"across", "outside"}},
		{"antimeridian", "POLYGON((179 0,180.8 0,180.8 1,179 1,179 0))", []string{"across"}, []string{"inside", "outside"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			kept, removed, err := RemoveOutside(mustCatalog(t, inside, outside, across), mustPolygon(t, tt.roi))
			if err != nil {
				t.Fatal(err)
			}
			if !reflect.DeepEqual(kept.IDs(), tt.kept) {
				t.Errorf("kept: expecting %v, found %v", tt.kept, kept.IDs())
			}
			if !reflect.DeepEqual(removed, tt.removed) {
				t.Errorf("removed: expecting %v, found %v", tt.removed, removed)
			}
		})
	}
}
