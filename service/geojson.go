package service

import (
	"fmt"

	"github.com/go-spatial/geom"
	"github.com/go-spatial/geom/encoding/geojson"
)

// UnmarshalGeometry, merging featureCollections and geometryCollections into a multipolygon
func UnmarshalGeometry(data []byte) (_ geom.Geometry, err error) {
	var g geojson.Geometry
	if err := g.UnmarshalJSON(data); err != nil {
		return g.Geometry, err
	}
	switch geo := g.Geometry.(type) {
	case geojson.FeatureCollection:
		return MultiPolygon(geo), nil
	case geojson.Feature:
		return geo.Geometry.Geometry, nil
	case nil:
		return nil, fmt.Errorf("UnmarshalGeometry: empty geometry")
	default:
		return g.Geometry, nil
	}
}

func mergeMultiPolygons(g geom.Geometry, mp *geom.MultiPolygon) {
	switch g := g.(type) {
	case geom.MultiPolygon:
		*mp = append(*mp, g.Polygons()...)
	case geom.Polygon:
		*mp = append(*mp, g.LinearRings())
	case geom.Collection:
		for _, g := range g.Geometries() {
			mergeMultiPolygons(g, mp)
		}
	}
}

// FlattenGeometry replaces features and feature collections by their geometries
func FlattenGeometry(g geom.Geometry) geom.Geometry {
	switch geo := g.(type) {
	case geojson.FeatureCollection:
		var geoms []geom.Geometry
		for _, f := range geo.Features {
			geoms = append(geoms, FlattenGeometry(f.Geometry.Geometry))
		}
		return geom.Collection(geoms)
	case *geojson.FeatureCollection:
		return FlattenGeometry(*geo)
	case geojson.Feature:
		return FlattenGeometry(geo.Geometry.Geometry)
	case *geojson.Feature:
		return FlattenGeometry(geo.Geometry.Geometry)
	case geojson.Geometry:
		return FlattenGeometry(geo.Geometry)
	}
	return g
}

// MultiPolygon merges all the polygons of the geometry (collections included) into a multipolygon
func MultiPolygon(g geom.Geometry) geom.MultiPolygon {
	var mp geom.MultiPolygon
	mergeMultiPolygons(FlattenGeometry(g), &mp)
	return mp
}

// Vertices returns all the vertices of the geometry (points, lines, polygons, collections...)
func Vertices(g geom.Geometry) [][2]float64 {
	var pts [][2]float64
	switch geo := FlattenGeometry(g).(type) {
	case geom.Point:
		pts = append(pts, geo)
	case geom.MultiPoint:
		for _, p := range geo.Points() {
			pts = append(pts, p)
		}
	case geom.LineString:
		pts = append(pts, geo.Vertices()...)
	case geom.MultiLineString:
		for _, l := range geo.LineStrings() {
			pts = append(pts, l...)
		}
	case geom.Polygon:
		for _, r := range geo.LinearRings() {
			pts = append(pts, r...)
		}
	case geom.MultiPolygon:
		for _, p := range geo.Polygons() {
			for _, r := range p {
				pts = append(pts, r...)
			}
		}
	case geom.Collection:
		for _, c := range geo.Geometries() {
			pts = append(pts, Vertices(c)...)
		}
	}
	return pts
}
