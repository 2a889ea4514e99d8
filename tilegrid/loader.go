package tilegrid

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/airbusgeo/geocube-tilefinder/service"
	"github.com/airbusgeo/geocube-tilefinder/service/geometry"
	"github.com/airbusgeo/geocube-tilefinder/service/log"
	"github.com/go-spatial/geom/encoding/geojson"
)

func readGridFile(ctx context.Context, uri string) ([]byte, error) {
	if uri == "" {
		return nil, ErrGridLoad{Reason: "grid file undefined"}
	}
	b, err := service.ReadURI(ctx, uri)
	if err != nil {
		if service.IsNotFound(err) {
			return nil, ErrGridLoad{Reason: "absent grid file " + uri, Err: err}
		}
		return nil, ErrGridLoad{Reason: "unable to read " + uri, Err: err}
	}
	return b, nil
}

// LoadArrays loads the grid from two json files (local, gs://, s3:// or http(s)://): an array of
// flattened coordinates [[lon1, lat1, lon2, lat2...], ...] and an array of the names of the cells.
// Raise ErrGridLoad
func LoadArrays(ctx context.Context, polygonsURI, namesURI string, opts ...Option) (*Index, error) {
	start := time.Now()
	pbytes, err := readGridFile(ctx, polygonsURI)
	if err != nil {
		return nil, err
	}
	nbytes, err := readGridFile(ctx, namesURI)
	if err != nil {
		return nil, err
	}

	var polygons [][]float64
	if err := json.Unmarshal(pbytes, &polygons); err != nil {
		return nil, ErrGridLoad{Reason: "malformed polygons " + polygonsURI, Err: err}
	}
	var names []string
	if err := json.Unmarshal(nbytes, &names); err != nil {
		return nil, ErrGridLoad{Reason: "malformed names " + namesURI, Err: err}
	}

	idx, err := New(polygons, names, opts...)
	if err != nil {
		return nil, err
	}
	log.Logger(ctx).Sugar().Debugf("grid of %d cells loaded in %v", idx.Len(), time.Since(start))
	return idx, nil
}

type gridFeatureCollection struct {
	Features []struct {
		Geometry   geojson.Geometry       `json:"geometry"`
		Properties map[string]interface{} `json:"properties"`
	} `json:"features"`
}

// LoadGeoJSON loads the grid from a GeoJSON FeatureCollection of polygons (or multipolygons split at the
// antimeridian). The name of each cell is read from the nameProperty property of the feature.
// Raise ErrGridLoad
func LoadGeoJSON(ctx context.Context, uri, nameProperty string, opts ...Option) (*Index, error) {
	start := time.Now()
	b, err := readGridFile(ctx, uri)
	if err != nil {
		return nil, err
	}
	var fc gridFeatureCollection
	if err := json.Unmarshal(b, &fc); err != nil {
		return nil, ErrGridLoad{Reason: "malformed geojson " + uri, Err: err}
	}

	polygons := make([][]float64, len(fc.Features))
	names := make([]string, len(fc.Features))
	for i, f := range fc.Features {
		name, ok := f.Properties[nameProperty]
		if !ok {
			return nil, ErrGridLoad{Reason: fmt.Sprintf("feature #%d has no property %s", i, nameProperty)}
		}
		names[i] = fmt.Sprintf("%v", name)
		p, err := geometry.PolygonFromGeometry(f.Geometry.Geometry)
		if err != nil {
			return nil, ErrGridLoad{Reason: "cell " + names[i], Err: err}
		}
		for _, pt := range p.Points() {
			polygons[i] = append(polygons[i], pt[0], pt[1])
		}
	}

	idx, err := New(polygons, names, opts...)
	if err != nil {
		return nil, err
	}
	log.Logger(ctx).Sugar().Debugf("grid of %d cells loaded from %s in %v", idx.Len(), uri, time.Since(start))
	return idx, nil
}
