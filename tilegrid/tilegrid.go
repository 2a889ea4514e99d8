// Package tilegrid indexes a fixed grid of named cells (e.g. the Sentinel-2 tiling grid)
// and answers which cells a polygon intersects, including polygons crossing the antimeridian.
//
// An Index is immutable once created: it can be shared by concurrent lookups without locking.
// Replacing the grid means creating a new Index; mutating the cells of an Index in use is not supported.
package tilegrid

import (
	"fmt"
	"math"
	"sort"

	"github.com/airbusgeo/geocube-tilefinder/service/geometry"
)

// Default prefilter thresholds, in degrees.
// They are conservative: they only widen the window around the query used to skip distant cells
// before the exact intersection test, and assume cells and queries are not coarser than the thresholds.
const (
	DefaultLonThreshold = 10.
	DefaultLatThreshold = 5.
)

// ErrGridLoad is returned when the grid is absent, empty or inconsistent. The Index cannot be used.
type ErrGridLoad struct {
	Reason string
	Err    error
}

func (e ErrGridLoad) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("grid load: %s: %v", e.Reason, e.Err)
	}
	return "grid load: " + e.Reason
}

func (e ErrGridLoad) Unwrap() error {
	return e.Err
}

// Cell of the grid
type Cell struct {
	Name string
	// Ring of the cell in the 0–360° longitude convention, contiguous (longitudes may exceed 360°)
	Ring [][2]float64

	minLat, maxLat float64
}

// Index of the cells of a grid
type Index struct {
	cells        []Cell
	byName       map[string]int
	lonThreshold float64
	latThreshold float64
}

// Option of the Index
type Option func(*Index)

// WithThresholds overrides the longitude and latitude thresholds of the prefilter (in degrees)
func WithThresholds(lon, lat float64) Option {
	return func(idx *Index) {
		idx.lonThreshold = math.Abs(lon)
		idx.latThreshold = math.Abs(lat)
	}
}

// New creates an index from two parallel arrays: the cell boundaries as flattened
// coordinates [lon1, lat1, lon2, lat2...] (±180° or 0–360° convention) and the names of the cells.
// Unclosed rings are closed.
// Raise ErrGridLoad
func New(polygons [][]float64, names []string, opts ...Option) (*Index, error) {
	if len(polygons) == 0 || len(names) == 0 {
		return nil, ErrGridLoad{Reason: "empty grid"}
	}
	if len(polygons) != len(names) {
		return nil, ErrGridLoad{Reason: fmt.Sprintf("misaligned grid: %d polygons for %d names", len(polygons), len(names))}
	}

	idx := &Index{
		cells:        make([]Cell, 0, len(names)),
		byName:       make(map[string]int, len(names)),
		lonThreshold: DefaultLonThreshold,
		latThreshold: DefaultLatThreshold,
	}
	for _, opt := range opts {
		opt(idx)
	}

	for i, name := range names {
		if name == "" {
			return nil, ErrGridLoad{Reason: fmt.Sprintf("cell #%d has no name", i)}
		}
		if _, ok := idx.byName[name]; ok {
			return nil, ErrGridLoad{Reason: "duplicate cell name " + name}
		}
		coords := polygons[i]
		if len(coords)%2 != 0 {
			return nil, ErrGridLoad{Reason: fmt.Sprintf("cell %s: odd number of coordinates (%d)", name, len(coords))}
		}
		ring := make([][2]float64, len(coords)/2)
		for j := range ring {
			ring[j] = [2]float64{coords[2*j], coords[2*j+1]}
		}
		p, err := geometry.ClosePolygon(ring)
		if err != nil {
			return nil, ErrGridLoad{Reason: "cell " + name, Err: err}
		}
		cell := Cell{
			Name: name,
			Ring: geometry.RotateRing(p.Points(), 0),
		}
		cell.minLat, cell.maxLat = latBounds(cell.Ring)
		idx.byName[name] = len(idx.cells)
		idx.cells = append(idx.cells, cell)
	}
	return idx, nil
}

func latBounds(ring [][2]float64) (float64, float64) {
	minLat, maxLat := math.Inf(1), math.Inf(-1)
	for _, p := range ring {
		minLat, maxLat = math.Min(minLat, p[1]), math.Max(maxLat, p[1])
	}
	return minLat, maxLat
}

func lonBounds(ring [][2]float64) (float64, float64) {
	minLon, maxLon := math.Inf(1), math.Inf(-1)
	for _, p := range ring {
		minLon, maxLon = math.Min(minLon, p[0]), math.Max(maxLon, p[0])
	}
	return minLon, maxLon
}

func (idx *Index) check() error {
	if idx == nil || len(idx.cells) == 0 {
		return ErrGridLoad{Reason: "uninitialized grid"}
	}
	return nil
}

// Len returns the number of cells of the grid
func (idx *Index) Len() int {
	if idx == nil {
		return 0
	}
	return len(idx.cells)
}

// Cell returns the cell with the given name
func (idx *Index) Cell(name string) (Cell, bool) {
	if idx.check() != nil {
		return Cell{}, false
	}
	i, ok := idx.byName[name]
	if !ok {
		return Cell{}, false
	}
	return idx.cells[i], true
}

// Polygon returns the boundary of the cell, shifted by -360° if the whole cell is east of 180°.
// A cell crossing the antimeridian keeps contiguous longitudes (greater than 180°).
func (c Cell) Polygon() (geometry.Polygon, error) {
	ring := make([][2]float64, len(c.Ring))
	copy(ring, c.Ring)
	if minLon, _ := lonBounds(ring); minLon >= 180 {
		for i := range ring {
			ring[i][0] -= 360
		}
	}
	return geometry.NewPolygon(ring)
}

// candidate is a cell intersecting the query, in the rotated frame of the query
type candidate struct {
	name    string
	polygon geometry.Polygon
}

// intersecting returns the rotated query and the cells intersecting it, sorted by name
func (idx *Index) intersecting(query geometry.Polygon) (geometry.Polygon, []candidate, error) {
	if err := idx.check(); err != nil {
		return geometry.Polygon{}, nil, err
	}
	if query.IsZero() {
		return geometry.Polygon{}, nil, geometry.ErrInvalidGeometry{Reason: "empty query"}
	}

	// Rotate the query to have its easternmost longitude on 180°, far from the 0/360 seam
	offset := geometry.RotationOffset(query)
	rquery, err := geometry.Rotate(query, offset)
	if err != nil {
		return geometry.Polygon{}, nil, fmt.Errorf("intersecting.Rotate: %w", err)
	}

	// Prefilter windows
	ext := rquery.Extent()
	minLat, maxLat := ext.MinY()-idx.latThreshold, ext.MaxY()+idx.latThreshold
	minLon := math.Min(ext.MinX(), 180) - idx.lonThreshold
	maxLon := math.Max(ext.MaxX(), 180) + idx.lonThreshold

	var candidates []candidate
	for _, cell := range idx.cells {
		if cell.maxLat < minLat || cell.minLat > maxLat {
			continue
		}
		ring := geometry.RotateRing(cell.Ring, offset)
		if cmin, cmax := lonBounds(ring); cmax < minLon || cmin > maxLon {
			continue
		}
		p, err := geometry.NewPolygon(ring)
		if err != nil {
			return geometry.Polygon{}, nil, fmt.Errorf("intersecting[%s]: %w", cell.Name, err)
		}
		ok, err := geometry.Intersects(rquery, p)
		if err != nil {
			return geometry.Polygon{}, nil, fmt.Errorf("intersecting[%s]: %w", cell.Name, err)
		}
		if ok {
			candidates = append(candidates, candidate{name: cell.Name, polygon: p})
		}
	}
	sort.Slice(candidates, func(i, j int) bool { return candidates[i].name < candidates[j].name })
	return rquery, candidates, nil
}

// Lookup returns the sorted names of the cells intersecting the query ring (±180° convention).
// The ring is closed if needed. An empty result is not an error.
// Raise ErrInvalidGeometry, ErrGridLoad
func (idx *Index) Lookup(ring [][2]float64) ([]string, error) {
	query, err := geometry.ClosePolygon(ring)
	if err != nil {
		return nil, err
	}
	return idx.LookupPolygon(query)
}

// LookupPolygon is the same as Lookup with a polygon
func (idx *Index) LookupPolygon(query geometry.Polygon) ([]string, error) {
	_, candidates, err := idx.intersecting(query)
	if err != nil {
		return nil, err
	}
	names := make([]string, len(candidates))
	for i, c := range candidates {
		names[i] = c.name
	}
	return names, nil
}
