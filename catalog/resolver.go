package catalog

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/airbusgeo/geocube-tilefinder/catalog/entities"
	"github.com/airbusgeo/geocube-tilefinder/common"
	"github.com/airbusgeo/geocube-tilefinder/service"
	"github.com/airbusgeo/geocube-tilefinder/service/geometry"
	"github.com/airbusgeo/geocube-tilefinder/service/log"
)

// AmbiguousDeduplication is reported when two products of the same acquisition (same tile, same sensing start)
// cannot be ordered by processing level. Both products are kept.
// It is a diagnostic returned in Result, never returned as an error.
type AmbiguousDeduplication struct {
	ProductIDs [2]string                 `json:"product_ids"`
	Levels     [2]common.ProcessingLevel `json:"levels"`
	Tile       string                    `json:"tile"`
	Start      time.Time                 `json:"sensing_start"`
}

func (e AmbiguousDeduplication) Error() string {
	return fmt.Sprintf("ambiguous deduplication of %s (%s) and %s (%s) on tile %s at %s",
		e.ProductIDs[0], e.Levels[0], e.ProductIDs[1], e.Levels[1], e.Tile, e.Start.Format(time.RFC3339))
}

// Result of Resolve
type Result struct {
	// Products that are kept
	Products entities.Catalog `json:"products"`
	// Removed ids, sorted
	Removed     []string                 `json:"removed"`
	Diagnostics []AmbiguousDeduplication `json:"diagnostics,omitempty"`
}

// RemovedCount returns the number of products that have been removed
func (r Result) RemovedCount() int {
	return len(r.Removed)
}

type resolveOptions struct {
	retained      service.StringSet
	levelDedup    bool
	coverageDedup bool
}

// ResolveOption is an option of Resolve
type ResolveOption func(*resolveOptions)

// WithRetained marks the products already acquired by the caller. They are never removed and
// are preferred over their duplicates.
func WithRetained(ids ...string) ResolveOption {
	return func(o *resolveOptions) {
		for _, id := range ids {
			o.retained.Push(id)
		}
	}
}

// WithoutLevelDeduplication keeps all the processing levels of an acquisition (e.g. to retrieve both L1C and L2A)
func WithoutLevelDeduplication() ResolveOption {
	return func(o *resolveOptions) {
		o.levelDedup = false
	}
}

// WithoutCoverageDeduplication keeps all the products covering the region of interest
func WithoutCoverageDeduplication() ResolveOption {
	return func(o *resolveOptions) {
		o.coverageDedup = false
	}
}

// Resolve removes the redundant products of the catalog, applying in sequence:
//   - the processing-level deduplication: for two products of the same platform with the same tile annotation
//     and the same sensing start, a raw product is removed if the other one is strictly more processed.
//     Products that cannot be ordered (both raw, or raw vs unknown level) are kept and reported as AmbiguousDeduplication.
//   - the spatial-coverage deduplication: among the products covering the whole roi, for each pair of
//     duplicates of the same platform, the one encountered second (retained products first, then by sensing start and id) is removed.
//     Optical products are duplicates if they have the same level and sensing start. Radar products are duplicates
//     if they have the same product type and polarisation and the sensing start of the second is strictly inside
//     the sensing interval of the first.
//
// Retained products are never removed. The input catalog is not modified.
// Raise ErrInvalidGeometry if the roi is malformed
func Resolve(ctx context.Context, c entities.Catalog, roi geometry.Polygon, opts ...ResolveOption) (Result, error) {
	if roi.IsZero() {
		return Result{}, geometry.ErrInvalidGeometry{Reason: "empty region of interest"}
	}
	o := resolveOptions{retained: service.StringSet{}, levelDedup: true, coverageDedup: true}
	for _, opt := range opts {
		opt(&o)
	}

	products := c.Products()
	removed := service.StringSet{}

	var diagnostics []AmbiguousDeduplication
	if o.levelDedup {
		diagnostics = dedupLevels(products, o.retained, removed)
		for _, d := range diagnostics {
			log.Logger(ctx).Warn(d.Error())
			ambiguousDeduplications.Inc()
		}
		removedProducts.WithLabelValues("level").Add(float64(len(removed)))
	}

	if o.coverageDedup {
		n := len(removed)
		if err := dedupCoverage(products, roi, o.retained, removed); err != nil {
			return Result{}, fmt.Errorf("Resolve.%w", err)
		}
		removedProducts.WithLabelValues("coverage").Add(float64(len(removed) - n))
	}

	// Build the result by selection
	kept := service.StringSet{}
	for _, p := range products {
		if !removed.Exists(p.ID) {
			kept.Push(p.ID)
		}
	}
	r := Result{
		Products:    c.Select(kept),
		Removed:     removed.Sorted(),
		Diagnostics: diagnostics,
	}
	if r.RemovedCount() > 0 {
		log.Logger(ctx).Sugar().Infof("filtered out %d redundant products", r.RemovedCount())
	}
	return r, nil
}

type acquisitionKey struct {
	platform common.Platform
	tile     string
	start    int64
}

// dedupLevels implements the processing-level deduplication
func dedupLevels(products []entities.Product, retained, removed service.StringSet) []AmbiguousDeduplication {
	groups := map[acquisitionKey][]entities.Product{}
	var keys []acquisitionKey
	for _, p := range products {
		if p.Annotation.Key() == "" {
			continue
		}
		k := acquisitionKey{platform: p.Platform, tile: p.Annotation.Key(), start: p.SensingStart.UnixNano()}
		if _, ok := groups[k]; !ok {
			keys = append(keys, k)
		}
		groups[k] = append(groups[k], p)
	}

	var diagnostics []AmbiguousDeduplication
	for _, k := range keys {
		group := groups[k]
		if len(group) < 2 {
			continue
		}
		sort.Slice(group, func(i, j int) bool { return group[i].ID < group[j].ID })

		// Remove the raw products that have a strictly more processed counterpart
		for _, p := range group {
			if p.Level != common.LevelRaw || retained.Exists(p.ID) {
				continue
			}
			for _, q := range group {
				if q.Level.Higher(p.Level) {
					removed.Push(p.ID)
					break
				}
			}
		}

		// Report the pairs involving a raw product that cannot be ordered
		for i, p := range group {
			for _, q := range group[i+1:] {
				if removed.Exists(p.ID) || removed.Exists(q.ID) {
					continue
				}
				if p.Level != common.LevelRaw && q.Level != common.LevelRaw {
					continue
				}
				if p.Level.Higher(q.Level) || q.Level.Higher(p.Level) {
					// Ordered, but kept because retained
					continue
				}
				diagnostics = append(diagnostics, AmbiguousDeduplication{
					ProductIDs: [2]string{p.ID, q.ID},
					Levels:     [2]common.ProcessingLevel{p.Level, q.Level},
					Tile:       k.tile,
					Start:      p.SensingStart,
				})
			}
		}
	}
	return diagnostics
}

// duplicates returns true if b is a duplicate of a, according to the family of the platform
func duplicates(a, b entities.Product) bool {
	if a.Platform != b.Platform {
		return false
	}
	switch a.Platform.Family() {
	case common.TiledOptical:
		return a.Level == b.Level && a.SensingStart.Equal(b.SensingStart)
	case common.ContinuousSwath:
		return a.HasSensingEnd() &&
			a.ProductType == b.ProductType &&
			a.Polarisation == b.Polarisation &&
			b.SensingStart.After(a.SensingStart) &&
			b.SensingStart.Before(a.SensingEnd)
	}
	return false
}

// encompassing returns the products that are not removed and that cover the whole roi,
// the retained products first, then sorted by sensing start and id.
func encompassing(products []entities.Product, roi geometry.Polygon, retained, removed service.StringSet) ([]entities.Product, error) {
	offset := geometry.RotationOffset(roi)
	rroi, err := geometry.Rotate(roi, offset)
	if err != nil {
		return nil, fmt.Errorf("encompassing.Rotate: %w", err)
	}
	var candidates []entities.Product
	for _, p := range products {
		if removed.Exists(p.ID) {
			continue
		}
		footprint, err := geometry.Rotate(p.Footprint, offset)
		if err != nil {
			return nil, fmt.Errorf("encompassing[%s].Rotate: %w", p.ID, err)
		}
		contains, err := geometry.Contains(footprint, rroi)
		if err != nil {
			return nil, fmt.Errorf("encompassing[%s].%w", p.ID, err)
		}
		if contains {
			candidates = append(candidates, p)
		}
	}
	// products are already sorted by sensing start and id
	sort.SliceStable(candidates, func(i, j int) bool {
		return retained.Exists(candidates[i].ID) && !retained.Exists(candidates[j].ID)
	})
	return candidates, nil
}

// dedupCoverage implements the spatial-coverage deduplication
func dedupCoverage(products []entities.Product, roi geometry.Polygon, retained, removed service.StringSet) error {
	candidates, err := encompassing(products, roi, retained, removed)
	if err != nil {
		return fmt.Errorf("dedupCoverage.%w", err)
	}
	for i, a := range candidates {
		if removed.Exists(a.ID) {
			continue
		}
		for j, b := range candidates {
			if i == j || removed.Exists(b.ID) || !duplicates(a, b) {
				continue
			}
			victim := b
			if retained.Exists(b.ID) {
				if retained.Exists(a.ID) {
					continue
				}
				victim = a
			}
			removed.Push(victim.ID)
			if victim.ID == a.ID {
				break
			}
		}
	}
	return nil
}
