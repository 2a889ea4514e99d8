package catalog_test

import (
	"errors"
	"time"

	"github.com/airbusgeo/geocube-tilefinder/catalog"
	"github.com/airbusgeo/geocube-tilefinder/catalog/entities"
	"github.com/airbusgeo/geocube-tilefinder/common"
	"github.com/airbusgeo/geocube-tilefinder/service/geometry"
	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"
)

var _ = Describe("Resolve", func() {
	var (
		err    error
		c      entities.Catalog
		result catalog.Result
		roi    = square(0.2, 0.2, 0.8, 0.8)
		inA01  = square(0.1, 0.1, 0.9, 0.9)
		opts   []catalog.ResolveOption
	)

	resolve := func() {
		c, err = annotator.AnnotateCatalog(ctx, c)
		Expect(err).NotTo(HaveOccurred())
		result, err = catalog.Resolve(ctx, c, roi, opts...)
	}

	BeforeEach(func() {
		opts = nil
	})

	Describe("the processing-level deduplication", func() {
		Context("when a raw and a final product share the tile and the sensing start", func() {
			BeforeEach(func() {
				c = newCatalog(
					optical("raw", common.LevelRaw, t0, inA01),
					optical("final", common.LevelFinal, t0, inA01),
				)
			})
			JustBeforeEach(resolve)

			It("should remove the raw product", func() {
				Expect(err).NotTo(HaveOccurred())
				Expect(result.Products.IDs()).To(Equal([]string{"final"}))
				Expect(result.Removed).To(Equal([]string{"raw"}))
				Expect(result.RemovedCount()).To(Equal(1))
				Expect(result.Diagnostics).To(BeEmpty())
			})

			It("should not modify the input catalog", func() {
				Expect(c.IDs()).To(Equal([]string{"final", "raw"}))
			})

			It("should be idempotent", func() {
				again, err := catalog.Resolve(ctx, result.Products, roi, opts...)
				Expect(err).NotTo(HaveOccurred())
				Expect(again.Removed).To(BeEmpty())
				Expect(again.Products.IDs()).To(Equal(result.Products.IDs()))
			})

			It("should be deterministic", func() {
				for i := 0; i < 10; i++ {
					again, err := catalog.Resolve(ctx, c, roi, opts...)
					Expect(err).NotTo(HaveOccurred())
					Expect(again.Products.IDs()).To(Equal(result.Products.IDs()))
					Expect(again.Removed).To(Equal(result.Removed))
				}
			})

			Context("and the raw product is retained", func() {
				BeforeEach(func() {
					opts = []catalog.ResolveOption{catalog.WithRetained("raw")}
				})
				It("should keep both products", func() {
					Expect(err).NotTo(HaveOccurred())
					Expect(result.Products.IDs()).To(Equal([]string{"final", "raw"}))
					Expect(result.Diagnostics).To(BeEmpty())
				})
			})

			Context("and all the levels are requested", func() {
				BeforeEach(func() {
					opts = []catalog.ResolveOption{catalog.WithoutLevelDeduplication()}
				})
				It("should keep both products", func() {
					Expect(err).NotTo(HaveOccurred())
					Expect(result.Products.IDs()).To(Equal([]string{"final", "raw"}))
				})
			})
		})

		Context("when the products are on different tiles", func() {
			BeforeEach(func() {
				c = newCatalog(
					optical("raw", common.LevelRaw, t0, inA01),
					optical("final", common.LevelFinal, t0, square(1.1, 0.1, 1.9, 0.9)),
				)
			})
			JustBeforeEach(resolve)

			It("should keep both products", func() {
				Expect(err).NotTo(HaveOccurred())
				Expect(result.Products).To(HaveLen(2))
			})
		})

		Context("when two raw products share the tile and the sensing start", func() {
			BeforeEach(func() {
				c = newCatalog(
					optical("raw1", common.LevelRaw, t0, inA01),
					optical("raw2", common.LevelRaw, t0, inA01),
				)
				opts = []catalog.ResolveOption{catalog.WithoutCoverageDeduplication()}
			})
			JustBeforeEach(resolve)

			It("should keep both products and report an ambiguous deduplication", func() {
				Expect(err).NotTo(HaveOccurred())
				Expect(result.Products.IDs()).To(Equal([]string{"raw1", "raw2"}))
				Expect(result.Diagnostics).To(HaveLen(1))
				d := result.Diagnostics[0]
				Expect(d.ProductIDs).To(Equal([2]string{"raw1", "raw2"}))
				Expect(d.Tile).To(Equal("A01"))
				Expect(d.Start).To(BeTemporally("==", t0))
				Expect(d.Error()).To(ContainSubstring("raw1"))
			})
		})

		Context("when a raw product has an unknown-level counterpart", func() {
			BeforeEach(func() {
				c = newCatalog(
					optical("raw", common.LevelRaw, t0, inA01),
					optical("open", common.LevelOpen, t0, inA01),
				)
			})
			JustBeforeEach(resolve)

			It("should keep both products and report an ambiguous deduplication", func() {
				Expect(err).NotTo(HaveOccurred())
				Expect(result.Products).To(HaveLen(2))
				Expect(result.Diagnostics).To(HaveLen(1))
				Expect(result.Diagnostics[0].Levels).To(ConsistOf(common.LevelRaw, common.LevelOpen))
			})
		})
	})

	Describe("the spatial-coverage deduplication", func() {
		p1 := radar("P1", t0, t0.Add(30*time.Second), inA01)
		p2 := radar("P2", t0.Add(10*time.Second), t0.Add(40*time.Second), inA01)

		Context("when the sensing start of a radar product is inside the interval of another one", func() {
			BeforeEach(func() {
				c = newCatalog(p1, p2)
			})
			JustBeforeEach(resolve)

			It("should remove the second product", func() {
				Expect(err).NotTo(HaveOccurred())
				Expect(result.Products.IDs()).To(Equal([]string{"P1"}))
				Expect(result.Removed).To(Equal([]string{"P2"}))
			})

			It("should be idempotent", func() {
				again, err := catalog.Resolve(ctx, result.Products, roi)
				Expect(err).NotTo(HaveOccurred())
				Expect(again.Removed).To(BeEmpty())
				Expect(again.Products.IDs()).To(Equal(result.Products.IDs()))
			})

			It("should be deterministic", func() {
				for i := 0; i < 10; i++ {
					again, err := catalog.Resolve(ctx, c, roi)
					Expect(err).NotTo(HaveOccurred())
					Expect(again.Removed).To(Equal(result.Removed))
				}
			})

			Context("and the second product is retained", func() {
				BeforeEach(func() {
					opts = []catalog.ResolveOption{catalog.WithRetained("P2")}
				})
				It("should remove the first product", func() {
					Expect(err).NotTo(HaveOccurred())
					Expect(result.Products.IDs()).To(Equal([]string{"P2"}))
				})
			})

			Context("and both products are retained", func() {
				BeforeEach(func() {
					opts = []catalog.ResolveOption{catalog.WithRetained("P1", "P2")}
				})
				It("should keep both products", func() {
					Expect(err).NotTo(HaveOccurred())
					Expect(result.Products).To(HaveLen(2))
				})
			})

			Context("and the coverage deduplication is disabled", func() {
				BeforeEach(func() {
					opts = []catalog.ResolveOption{catalog.WithoutCoverageDeduplication()}
				})
				It("should keep both products", func() {
					Expect(err).NotTo(HaveOccurred())
					Expect(result.Products).To(HaveLen(2))
				})
			})
		})

		Context("when a duplicate does not cover the region of interest", func() {
			BeforeEach(func() {
				c = newCatalog(p1, radar("P2", t0.Add(10*time.Second), t0.Add(40*time.Second), square(0.5, 0.1, 0.9, 0.9)))
			})
			JustBeforeEach(resolve)

			It("should keep it", func() {
				Expect(err).NotTo(HaveOccurred())
				Expect(result.Products).To(HaveLen(2))
			})
		})

		Context("when the products differ by their polarisation", func() {
			BeforeEach(func() {
				other := p2
				other.Polarisation = "HH HV"
				c = newCatalog(p1, other)
			})
			JustBeforeEach(resolve)

			It("should keep both products", func() {
				Expect(err).NotTo(HaveOccurred())
				Expect(result.Products).To(HaveLen(2))
			})
		})

		Context("when the sensing starts are equal", func() {
			BeforeEach(func() {
				other := p2
				other.SensingStart = t0
				c = newCatalog(p1, other)
			})
			JustBeforeEach(resolve)

			It("should keep both products (the interval is open)", func() {
				Expect(err).NotTo(HaveOccurred())
				Expect(result.Products).To(HaveLen(2))
			})
		})

		Context("when optical products share the level and the sensing start", func() {
			BeforeEach(func() {
				c = newCatalog(
					optical("B", common.LevelFinal, t0, inA01),
					optical("A", common.LevelFinal, t0, square(0.05, 0.05, 0.95, 0.95)),
					optical("C", common.LevelFinal, t0.Add(time.Hour), inA01),
				)
			})
			JustBeforeEach(resolve)

			It("should keep the lowest id", func() {
				Expect(err).NotTo(HaveOccurred())
				Expect(result.Products.IDs()).To(Equal([]string{"A", "C"}))
				Expect(result.Removed).To(Equal([]string{"B"}))
			})

			It("should be idempotent", func() {
				again, err := catalog.Resolve(ctx, result.Products, roi, opts...)
				Expect(err).NotTo(HaveOccurred())
				Expect(again.Removed).To(BeEmpty())
				Expect(again.Products.IDs()).To(Equal(result.Products.IDs()))
			})

			It("should be deterministic", func() {
				for i := 0; i < 10; i++ {
					again, err := catalog.Resolve(ctx, c, roi, opts...)
					Expect(err).NotTo(HaveOccurred())
					Expect(again.Products.IDs()).To(Equal(result.Products.IDs()))
					Expect(again.Removed).To(Equal(result.Removed))
				}
			})
		})

		Context("when the region of interest crosses the antimeridian", func() {
			var footprint geometry.Polygon
			BeforeEach(func() {
				footprint, err = geometry.PolygonFromWKT("MULTIPOLYGON(((179.2 0.1,180 0.1,180 0.9,179.2 0.9,179.2 0.1)),((-180 0.1,-179.2 0.1,-179.2 0.9,-180 0.9,-180 0.1)))")
				Expect(err).NotTo(HaveOccurred())
				roi = square(179.5, 0.2, 180.5, 0.8)
				c = newCatalog(
					radar("P1", t0, t0.Add(30*time.Second), footprint),
					radar("P2", t0.Add(10*time.Second), t0.Add(40*time.Second), footprint),
				)
			})
			AfterEach(func() {
				roi = square(0.2, 0.2, 0.8, 0.8)
			})
			JustBeforeEach(resolve)

			It("should remove the duplicate", func() {
				Expect(err).NotTo(HaveOccurred())
				Expect(result.Products.IDs()).To(Equal([]string{"P1"}))
			})

			It("should annotate the products with the cells on both sides", func() {
				Expect(c["P1"].Annotation.Tiles).To(Equal([]string{"E01", "W01"}))
			})
		})
	})

	Describe("the edge cases", func() {
		It("should return an empty result on an empty catalog", func() {
			result, err := catalog.Resolve(ctx, entities.Catalog{}, roi)
			Expect(err).NotTo(HaveOccurred())
			Expect(result.Products).To(BeEmpty())
			Expect(result.RemovedCount()).To(Equal(0))
		})

		It("should raise ErrInvalidGeometry on an empty region of interest", func() {
			_, err := catalog.Resolve(ctx, newCatalog(optical("A", common.LevelFinal, t0, inA01)), geometry.Polygon{})
			var errInvalid geometry.ErrInvalidGeometry
			Expect(errors.As(err, &errInvalid)).To(BeTrue())
		})

		It("should never remove the products covering the region of interest without keeping a duplicate", func() {
			c := newCatalog(
				radar("P1", t0, t0.Add(30*time.Second), inA01),
				radar("P2", t0.Add(10*time.Second), t0.Add(40*time.Second), inA01),
				radar("P3", t0.Add(20*time.Second), t0.Add(50*time.Second), inA01),
				radar("P4", t0.Add(time.Hour), t0.Add(time.Hour+30*time.Second), inA01),
			)
			result, err := catalog.Resolve(ctx, c, roi)
			Expect(err).NotTo(HaveOccurred())
			Expect(result.Products.IDs()).To(Equal([]string{"P1", "P4"}))
			for _, id := range result.Removed {
				Expect(result.Products).To(HaveKey("P1"), "removed %s without a kept duplicate", id)
			}
		})
	})
})
