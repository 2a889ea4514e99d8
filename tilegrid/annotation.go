package tilegrid

import (
	"fmt"
	"strings"

	"github.com/airbusgeo/geocube-tilefinder/service/geometry"
)

// Annotation of a footprint with the cells of the grid
type Annotation struct {
	// Tiles intersected by the footprint, sorted. A single tile if the footprint is contained in a cell.
	Tiles []string `json:"tiles,omitempty"`
	// Majority is the tile with the largest overlap (the containing tile for a contained footprint)
	Majority string `json:"majority,omitempty"`
	// Contained is true if the footprint is entirely inside Majority
	Contained bool `json:"contained,omitempty"`
}

// IsZero returns true if the footprint does not intersect the grid
func (a Annotation) IsZero() bool {
	return a.Majority == ""
}

// Key is the tile identity used to group products
func (a Annotation) Key() string {
	return a.Majority
}

func (a Annotation) String() string {
	if a.Contained {
		return a.Majority
	}
	return fmt.Sprintf("[%s](%s)", strings.Join(a.Tiles, ","), a.Majority)
}

// Annotate returns the annotation of the footprint:
//   - if the footprint is inside one cell (boundary included), this cell (the lowest name if several cells contain it)
//   - otherwise, all the intersected cells and the one with the largest intersection area.
//     Ties are broken by the lowest name.
//
// A footprint outside the grid returns a zero Annotation.
// Raise ErrInvalidGeometry, ErrGridLoad
func (idx *Index) Annotate(footprint geometry.Polygon) (Annotation, error) {
	rfootprint, candidates, err := idx.intersecting(footprint)
	if err != nil {
		return Annotation{}, err
	}
	// candidates are sorted by name: the first containing cell is the lowest one
	for _, c := range candidates {
		within, err := geometry.Within(rfootprint, c.polygon)
		if err != nil {
			return Annotation{}, fmt.Errorf("Annotate[%s]: %w", c.name, err)
		}
		if within {
			return Annotation{Tiles: []string{c.name}, Majority: c.name, Contained: true}, nil
		}
	}

	var a Annotation
	bestArea := -1.
	for _, c := range candidates {
		area, err := geometry.IntersectionArea(rfootprint, c.polygon)
		if err != nil {
			return Annotation{}, fmt.Errorf("Annotate[%s]: %w", c.name, err)
		}
		if area > bestArea {
			bestArea = area
			a.Majority = c.name
		}
		a.Tiles = append(a.Tiles, c.name)
	}
	return a, nil
}
