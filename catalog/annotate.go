package catalog

import (
	"context"
	"fmt"
	"time"

	"github.com/airbusgeo/geocube-tilefinder/catalog/entities"
	"github.com/airbusgeo/geocube-tilefinder/service/geometry"
	"github.com/airbusgeo/geocube-tilefinder/service/log"
	"github.com/airbusgeo/geocube-tilefinder/tilegrid"
	"github.com/cespare/xxhash/v2"
	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/sync/errgroup"
)

// Annotator annotates the footprints of the products with the cells of a grid.
// The annotations are memoized in memory, keyed by footprint.
type Annotator struct {
	grid    *tilegrid.Index
	cache   *lru.Cache[uint64, tilegrid.Annotation]
	workers int
}

// NewAnnotator creates an annotator on the grid, with a cache of cacheSize annotations
// and annotating catalogs with the given number of workers
func NewAnnotator(grid *tilegrid.Index, cacheSize, workers int) (*Annotator, error) {
	if grid.Len() == 0 {
		return nil, tilegrid.ErrGridLoad{Reason: "uninitialized grid"}
	}
	if cacheSize <= 0 {
		cacheSize = 1
	}
	cache, err := lru.New[uint64, tilegrid.Annotation](cacheSize)
	if err != nil {
		return nil, fmt.Errorf("NewAnnotator: %w", err)
	}
	if workers <= 0 {
		workers = 1
	}
	return &Annotator{grid: grid, cache: cache, workers: workers}, nil
}

// Grid returns the index of the annotator
func (a *Annotator) Grid() *tilegrid.Index {
	return a.grid
}

// Lookup returns the names of the cells intersecting the polygon
func (a *Annotator) Lookup(p geometry.Polygon) ([]string, error) {
	defer func(start time.Time) { lookupDuration.Observe(time.Since(start).Seconds()) }(time.Now())
	return a.grid.LookupPolygon(p)
}

// Annotate returns the annotation of the footprint
func (a *Annotator) Annotate(footprint geometry.Polygon) (tilegrid.Annotation, error) {
	key := xxhash.Sum64String(footprint.WKT())
	if annotation, ok := a.cache.Get(key); ok {
		annotationCache.WithLabelValues("hit").Inc()
		return annotation, nil
	}
	annotationCache.WithLabelValues("miss").Inc()

	start := time.Now()
	annotation, err := a.grid.Annotate(footprint)
	if err != nil {
		return tilegrid.Annotation{}, err
	}
	lookupDuration.Observe(time.Since(start).Seconds())
	a.cache.Add(key, annotation)
	return annotation, nil
}

func (a *Annotator) annotateWorker(ctx context.Context, jobs <-chan int, products []entities.Product) error {
	for i := range jobs {
		select {
		case <-ctx.Done():
		default:
			annotation, err := a.Annotate(products[i].Footprint)
			if err != nil {
				return fmt.Errorf("annotate[%s]: %w", products[i].ID, err)
			}
			products[i].Annotation = annotation
		}
	}
	return nil
}

// AnnotateCatalog returns a copy of the catalog whose products are annotated with the cells of the grid
func (a *Annotator) AnnotateCatalog(ctx context.Context, c entities.Catalog) (entities.Catalog, error) {
	products := c.Products()

	// Create group
	wg, gctx := errgroup.WithContext(ctx)
	jobChan := make(chan int, len(products))

	// Start workers
	for i := 0; i < a.workers && i < len(products); i++ {
		wg.Go(func() error { return a.annotateWorker(gctx, jobChan, products) })
	}

	// Push jobs
	for i := range products {
		jobChan <- i
	}
	close(jobChan)

	// Wait
	if err := wg.Wait(); err != nil {
		return nil, fmt.Errorf("AnnotateCatalog.%w", err)
	}
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("AnnotateCatalog: %w", err)
	}

	annotated := make(entities.Catalog, len(products))
	for _, p := range products {
		annotated[p.ID] = p
		if p.Annotation.IsZero() {
			log.Logger(ctx).Sugar().Debugf("product %s is outside the grid", p.ID)
		}
	}
	return annotated, nil
}
