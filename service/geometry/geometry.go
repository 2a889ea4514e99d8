// Package geometry provides the polygon primitives used by the tile grid and the catalog:
// construction with validation, boundary-inclusive predicates and the longitude
// conventions (±180° at the boundaries, 0–360° internally) needed around the antimeridian.
package geometry

import (
	"fmt"
	"math"

	"github.com/go-spatial/geom"
	geomwkt "github.com/go-spatial/geom/encoding/wkt"
	"github.com/paulsmith/gogeos/geos"
)

// ErrInvalidGeometry is returned when a polygon is malformed (too few vertices, unclosed ring, degenerate area...)
type ErrInvalidGeometry struct {
	Reason string
}

func (e ErrInvalidGeometry) Error() string {
	return "invalid geometry: " + e.Reason
}

func invalidf(format string, a ...interface{}) error {
	return ErrInvalidGeometry{Reason: fmt.Sprintf(format, a...)}
}

// Polygon is a closed ring of (longitude, latitude) vertices in degrees.
// The first and the last vertices are identical and the ring has at least three distinct vertices
// and a non-zero area. A Polygon is immutable.
type Polygon struct {
	ring [][2]float64
	g    *geos.Geometry
}

// NewPolygon creates a polygon from a closed ring
// Raise ErrInvalidGeometry
func NewPolygon(ring [][2]float64) (Polygon, error) {
	if len(ring) < 4 {
		return Polygon{}, invalidf("ring must have at least 4 points, got %d", len(ring))
	}
	for _, p := range ring {
		if math.IsNaN(p[0]) || math.IsNaN(p[1]) || math.IsInf(p[0], 0) || math.IsInf(p[1], 0) {
			return Polygon{}, invalidf("non-finite coordinate %v", p)
		}
	}
	if ring[0] != ring[len(ring)-1] {
		return Polygon{}, invalidf("unclosed ring: %v != %v", ring[0], ring[len(ring)-1])
	}
	distinct := map[[2]float64]struct{}{}
	for _, p := range ring[:len(ring)-1] {
		distinct[p] = struct{}{}
	}
	if len(distinct) < 3 {
		return Polygon{}, invalidf("ring must have at least 3 distinct vertices, got %d", len(distinct))
	}
	if signedArea(ring) == 0 {
		return Polygon{}, invalidf("zero-area ring")
	}

	p := Polygon{ring: make([][2]float64, len(ring))}
	copy(p.ring, ring)

	var err error
	if p.g, err = toGeos(p.ring); err != nil {
		return Polygon{}, invalidf("%v", err)
	}
	return p, nil
}

// ClosePolygon creates a polygon from a ring, appending the first point if the ring is not closed
// Raise ErrInvalidGeometry
func ClosePolygon(points [][2]float64) (Polygon, error) {
	if len(points) > 0 && points[0] != points[len(points)-1] {
		closed := make([][2]float64, len(points), len(points)+1)
		copy(closed, points)
		points = append(closed, points[0])
	}
	return NewPolygon(points)
}

// ConvexHull returns the minimal convex polygon enclosing the points
// Raise ErrInvalidGeometry if the points are collinear or less than 3
func ConvexHull(points [][2]float64) (Polygon, error) {
	if len(points) < 3 {
		return Polygon{}, invalidf("convex hull needs at least 3 points, got %d", len(points))
	}
	geoms := make([]*geos.Geometry, 0, len(points))
	for _, p := range points {
		pt, err := geos.NewPoint(geos.NewCoord(p[0], p[1]))
		if err != nil {
			return Polygon{}, fmt.Errorf("ConvexHull.NewPoint: %w", err)
		}
		geoms = append(geoms, pt)
	}
	mp, err := geos.NewCollection(geos.MULTIPOINT, geoms...)
	if err != nil {
		return Polygon{}, fmt.Errorf("ConvexHull.NewCollection: %w", err)
	}
	hull, err := mp.ConvexHull()
	if err != nil {
		return Polygon{}, fmt.Errorf("ConvexHull: %w", err)
	}
	return fromGeosPolygon(hull)
}

// fromGeosPolygon converts the shell of a geos polygon
func fromGeosPolygon(g *geos.Geometry) (Polygon, error) {
	t, err := g.Type()
	if err != nil {
		return Polygon{}, fmt.Errorf("fromGeosPolygon.Type: %w", err)
	}
	if t != geos.POLYGON {
		return Polygon{}, invalidf("expecting a polygon, got %v", t)
	}
	shell, err := g.Shell()
	if err != nil {
		return Polygon{}, fmt.Errorf("fromGeosPolygon.Shell: %w", err)
	}
	coords, err := shell.Coords()
	if err != nil {
		return Polygon{}, fmt.Errorf("fromGeosPolygon.Coords: %w", err)
	}
	ring := make([][2]float64, len(coords))
	for i, c := range coords {
		ring[i] = [2]float64{c.X, c.Y}
	}
	return NewPolygon(ring)
}

func toGeos(ring [][2]float64) (*geos.Geometry, error) {
	coords := make([]geos.Coord, len(ring))
	for i, p := range ring {
		coords[i] = geos.NewCoord(p[0], p[1])
	}
	return geos.NewPolygon(coords)
}

// signedArea returns the shoelace area of the ring (positive if counter-clockwise)
func signedArea(ring [][2]float64) float64 {
	var a float64
	for i := 0; i < len(ring)-1; i++ {
		a += ring[i][0]*ring[i+1][1] - ring[i+1][0]*ring[i][1]
	}
	return a / 2
}

// IsZero returns true if the polygon has not been initialized by one of the constructors
func (p Polygon) IsZero() bool {
	return len(p.ring) == 0
}

// Points returns a copy of the closed ring
func (p Polygon) Points() [][2]float64 {
	ring := make([][2]float64, len(p.ring))
	copy(ring, p.ring)
	return ring
}

// Area returns the planar area of the polygon in square degrees
func (p Polygon) Area() float64 {
	return math.Abs(signedArea(p.ring))
}

// Extent returns the bounding box of the polygon
func (p Polygon) Extent() *geom.Extent {
	return geom.NewExtent(p.ring...)
}

// Geom returns the polygon as a go-spatial geometry
func (p Polygon) Geom() geom.Polygon {
	return geom.Polygon{p.Points()}
}

// WKT returns the Well-Known-Text representation of the polygon
func (p Polygon) WKT() string {
	if p.IsZero() {
		return "POLYGON EMPTY"
	}
	wkt, err := geomwkt.EncodeString(p.Geom())
	if err != nil {
		return "POLYGON EMPTY"
	}
	return wkt
}

func (p Polygon) String() string {
	return p.WKT()
}

func (p Polygon) geos() (*geos.Geometry, error) {
	if p.IsZero() || p.g == nil {
		return nil, invalidf("uninitialized polygon")
	}
	return p.g, nil
}

func binaryPredicate(name string, a, b Polygon, pred func(a, b *geos.Geometry) (bool, error)) (bool, error) {
	ga, err := a.geos()
	if err != nil {
		return false, err
	}
	gb, err := b.geos()
	if err != nil {
		return false, err
	}
	res, err := pred(ga, gb)
	if err != nil {
		return false, fmt.Errorf("%s: %w", name, err)
	}
	return res, nil
}

// Intersects returns true if a and b share at least one point (boundary included)
func Intersects(a, b Polygon) (bool, error) {
	return binaryPredicate("Intersects", a, b, func(a, b *geos.Geometry) (bool, error) { return a.Intersects(b) })
}

// Contains returns true if no point of b lies outside a (boundary included)
func Contains(a, b Polygon) (bool, error) {
	return binaryPredicate("Contains", a, b, func(a, b *geos.Geometry) (bool, error) { return a.Covers(b) })
}

// Within returns true if no point of a lies outside b (boundary included)
func Within(a, b Polygon) (bool, error) {
	return binaryPredicate("Within", a, b, func(a, b *geos.Geometry) (bool, error) { return a.CoveredBy(b) })
}

// IntersectionArea returns the area of the intersection of a and b in square degrees
func IntersectionArea(a, b Polygon) (float64, error) {
	ga, err := a.geos()
	if err != nil {
		return 0, err
	}
	gb, err := b.geos()
	if err != nil {
		return 0, err
	}
	inter, err := ga.Intersection(gb)
	if err != nil {
		return 0, fmt.Errorf("IntersectionArea.Intersection: %w", err)
	}
	area, err := inter.Area()
	if err != nil {
		return 0, fmt.Errorf("IntersectionArea.Area: %w", err)
	}
	return area, nil
}

// NormalizeTo0360 maps a longitude in degrees to [0, 360)
func NormalizeTo0360(lon float64) float64 {
	lon = math.Mod(lon, 360)
	if lon < 0 {
		lon += 360
	}
	if lon >= 360 {
		// lon+360 may round to 360 for tiny negative longitudes
		lon = 0
	}
	return lon
}

// NormalizeTo180 maps a longitude in degrees to [-180, 180)
func NormalizeTo180(lon float64) float64 {
	return NormalizeTo0360(lon+180) - 180
}

// RotationOffset returns the longitude offset that moves the easternmost vertex of p (in the 0–360° convention) to 180°.
// The result is in [0, 360).
func RotationOffset(p Polygon) float64 {
	maxLon := math.Inf(-1)
	for _, pt := range p.ring {
		maxLon = math.Max(maxLon, NormalizeTo0360(pt[0]))
	}
	return NormalizeTo0360(180 - maxLon)
}

// Rotate converts the polygon to the 0–360° convention, shifts its longitudes by offset (mod 360)
// and unwraps the ring so that it stays contiguous: if the vertices span more than 180°, the ring is
// assumed to cross the 0/360 seam and the longitudes below 180° are shifted by +360°.
// The output polygon may thus have longitudes up to 540°.
func Rotate(p Polygon, offset float64) (Polygon, error) {
	if p.IsZero() {
		return Polygon{}, invalidf("uninitialized polygon")
	}
	return NewPolygon(RotateRing(p.ring, offset))
}

// RotateRing is the same as Rotate on a raw ring. It returns a new ring.
func RotateRing(ring [][2]float64, offset float64) [][2]float64 {
	rotated := make([][2]float64, len(ring))
	minLon, maxLon := math.Inf(1), math.Inf(-1)
	for i, pt := range ring {
		rotated[i] = [2]float64{NormalizeTo0360(NormalizeTo0360(pt[0]) + offset), pt[1]}
		minLon = math.Min(minLon, rotated[i][0])
		maxLon = math.Max(maxLon, rotated[i][0])
	}
	if maxLon-minLon > 180 {
		for i := range rotated {
			if rotated[i][0] < 180 {
				rotated[i][0] += 360
			}
		}
	}
	return rotated
}

// PolygonFromWKT parses a WKT polygon (or multipolygon, see PolygonFromGeometry)
func PolygonFromWKT(wkt string) (Polygon, error) {
	g, err := geomwkt.DecodeString(wkt)
	if err != nil {
		return Polygon{}, invalidf("PolygonFromWKT: %v", err)
	}
	return PolygonFromGeometry(g)
}

// PolygonFromGeometry converts a go-spatial geometry to a Polygon.
// Holes are ignored. A multipolygon is merged into a single polygon if its parts are contiguous,
// possibly across the antimeridian (parts split at ±180° are merged in the 0–360° convention).
func PolygonFromGeometry(g geom.Geometry) (Polygon, error) {
	switch g := g.(type) {
	case geom.Polygon:
		if len(g) == 0 {
			return Polygon{}, invalidf("empty polygon")
		}
		return ClosePolygon(g[0])
	case *geom.Polygon:
		if g == nil {
			return Polygon{}, invalidf("empty polygon")
		}
		return PolygonFromGeometry(*g)
	case geom.MultiPolygon:
		return mergeParts(g.Polygons())
	case *geom.MultiPolygon:
		if g == nil {
			return Polygon{}, invalidf("empty multipolygon")
		}
		return mergeParts(g.Polygons())
	case nil:
		return Polygon{}, invalidf("empty geometry")
	}
	return Polygon{}, invalidf("unsupported geometry type %T", g)
}

func mergeParts(parts [][][][2]float64) (Polygon, error) {
	switch len(parts) {
	case 0:
		return Polygon{}, invalidf("empty multipolygon")
	case 1:
		return PolygonFromGeometry(geom.Polygon(parts[0]))
	}
	crossesAntimeridian := false
	var geoms []*geos.Geometry
	for _, part := range parts {
		if len(part) == 0 {
			continue
		}
		p, err := ClosePolygon(part[0])
		if err != nil {
			return Polygon{}, err
		}
		ext := p.Extent()
		if ext.MinX() <= -180 || ext.MaxX() >= 180 {
			crossesAntimeridian = true
		}
		geoms = append(geoms, p.g)
	}
	if crossesAntimeridian {
		for i, g := range geoms {
			ring, err := geosShell(g)
			if err != nil {
				return Polygon{}, err
			}
			for j := range ring {
				ring[j][0] = NormalizeTo0360(ring[j][0])
			}
			if geoms[i], err = toGeos(ring); err != nil {
				return Polygon{}, invalidf("%v", err)
			}
		}
	}
	union, err := Union(geoms, TOLERANCE_GEOG)
	if err != nil {
		return Polygon{}, fmt.Errorf("mergeParts.%w", err)
	}
	p, err := fromGeosPolygon(union)
	if err != nil {
		return Polygon{}, invalidf("multipolygon with disjoint parts")
	}
	if crossesAntimeridian {
		ring := p.Points()
		for i := range ring {
			ring[i][0] = NormalizeTo180(ring[i][0])
		}
		return NewPolygon(ring)
	}
	return p, nil
}

func geosShell(g *geos.Geometry) ([][2]float64, error) {
	shell, err := g.Shell()
	if err != nil {
		return nil, fmt.Errorf("geosShell: %w", err)
	}
	coords, err := shell.Coords()
	if err != nil {
		return nil, fmt.Errorf("geosShell.Coords: %w", err)
	}
	ring := make([][2]float64, len(coords))
	for i, c := range coords {
		ring[i] = [2]float64{c.X, c.Y}
	}
	return ring, nil
}

var TOLERANCE_GEOG = 0.000001

// UnionPolygons merges the polygons into a single polygon
// Raise ErrInvalidGeometry if the union is not a single polygon
func UnionPolygons(polygons []Polygon) (Polygon, error) {
	if len(polygons) == 0 {
		return Polygon{}, invalidf("no polygon to merge")
	}
	geoms := make([]*geos.Geometry, 0, len(polygons))
	for _, p := range polygons {
		g, err := p.geos()
		if err != nil {
			return Polygon{}, err
		}
		geoms = append(geoms, g)
	}
	union, err := Union(geoms, TOLERANCE_GEOG)
	if err != nil {
		return Polygon{}, fmt.Errorf("UnionPolygons.%w", err)
	}
	return fromGeosPolygon(union)
}

func Union(geoms []*geos.Geometry, tolerance float64) (*geos.Geometry, error) {
	aoi, err := UnaryUnion(geoms)
	if err == nil {
		if aoi, err = aoi.Simplify(tolerance); err != nil {
			return nil, fmt.Errorf("Union.Simplify: %w", err)
		}
		return aoi, nil
	}
	// Union all failed, retry one by one with simplify
	aoi = nil
	for _, geom := range geoms {
		if geom, err = geom.Simplify(tolerance); err != nil {
			return nil, fmt.Errorf("Union.Simplify: %w", err)
		}
		if aoi == nil {
			aoi = geom
			continue
		}
		if aoi, err = geom.Union(aoi); err != nil {
			return nil, fmt.Errorf("Union: %w", err)
		}
	}
	if aoi == nil {
		return nil, fmt.Errorf("Union: no geometry")
	}
	return aoi, nil
}

// UnaryUnion merges the geometries. The inputs are left untouched: the collection takes
// ownership of its parts, so it is built from copies.
func UnaryUnion(geoms []*geos.Geometry) (*geos.Geometry, error) {
	parts := make([]*geos.Geometry, len(geoms))
	for i, g := range geoms {
		var err error
		if parts[i], err = g.Clone(); err != nil {
			return nil, fmt.Errorf("UnaryUnion.Clone: %w", err)
		}
	}
	aoi, err := geos.NewCollection(geos.MULTIPOLYGON, parts...)
	if err != nil {
		return nil, fmt.Errorf("UnaryUnion.NewCollection: %w", err)
	}
	if aoi, err = aoi.UnaryUnion(); err != nil {
		return nil, fmt.Errorf("UnaryUnion.UnaryUnion: %w", err)
	}
	return aoi, nil
}
