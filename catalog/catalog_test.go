package catalog_test

import (
	"encoding/json"
	"os"
	"path/filepath"
	"time"

	"github.com/airbusgeo/geocube-tilefinder/catalog"
	"github.com/airbusgeo/geocube-tilefinder/catalog/entities"
	"github.com/airbusgeo/geocube-tilefinder/common"
	"github.com/airbusgeo/geocube-tilefinder/interface/inventory"
	"github.com/go-spatial/geom"
	"github.com/go-spatial/geom/encoding/geojson"
	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"
)

var _ = Describe("Catalog", func() {
	var (
		err       error
		c         *catalog.Catalog
		provider  *MokeProvider
		publisher *MokePublisher
		inv       *inventory.File
		tmpDir    string
		area      entities.AreaToSearch
		selection catalog.Selection
	)

	inA01 := square(0.1, 0.1, 0.9, 0.9)
	reprocessed := optical("reprocessed", common.LevelFinal, t0, inA01)
	reprocessed.IngestionDate = t0.Add(time.Hour)
	latest := reprocessed
	latest.ID = "latest"
	latest.IngestionDate = t0.Add(2 * time.Hour)

	BeforeEach(func() {
		provider = &MokeProvider{products: []entities.Product{
			optical("raw", common.LevelRaw, t0, inA01),
			reprocessed,
			latest,
			optical("outside", common.LevelFinal, t0.Add(time.Hour), square(1.1, 0.1, 1.9, 0.9)),
			radar("P1", t0, t0.Add(30*time.Second), inA01),
			radar("P2", t0.Add(10*time.Second), t0.Add(40*time.Second), inA01),
		}}
		publisher = &MokePublisher{}
		tmpDir, err = os.MkdirTemp("", "tilefinder")
		Expect(err).NotTo(HaveOccurred())
		inv = inventory.NewFile(filepath.Join(tmpDir, "inventory.json"))
		c = &catalog.Catalog{
			Annotator: annotator,
			Provider:  provider,
			Inventory: inv,
			Publisher: publisher,
		}
		area = entities.AreaToSearch{
			AOIID:     "test-aoi",
			ROI:       entities.RegionOfInterest{Geometry: geojson.Geometry{Geometry: geom.Polygon{{{0.2, 0.2}, {0.8, 0.2}, {0.8, 0.8}, {0.2, 0.8}, {0.2, 0.2}}}}},
			StartTime: t0,
			SceneType: entities.SceneType{Constellation: "sentinel2"},
		}
	})

	AfterEach(func() {
		os.RemoveAll(tmpDir)
	})

	Describe("Select", func() {
		JustBeforeEach(func() {
			selection, err = c.Select(ctx, area)
		})

		It("should return the minimal set of products", func() {
			Expect(err).NotTo(HaveOccurred())
			Expect(provider.searches).To(Equal(1))
			Expect(selection.Tiles).To(Equal([]string{"A01"}))
			Expect(selection.Found).To(Equal(6))
			Expect(selection.Products.IDs()).To(Equal([]string{"P1", "latest"}))
			Expect(selection.Removed[catalog.RemovedReprocessed]).To(Equal([]string{"reprocessed"}))
			Expect(selection.Removed[catalog.RemovedOutside]).To(Equal([]string{"outside"}))
			Expect(selection.Removed[catalog.RemovedRedundant]).To(Equal([]string{"P2", "raw"}))
		})

		It("should annotate the products", func() {
			Expect(err).NotTo(HaveOccurred())
			Expect(selection.Products["latest"].Annotation.Key()).To(Equal("A01"))
		})

		It("should be serializable", func() {
			Expect(err).NotTo(HaveOccurred())
			b, err := json.Marshal(selection)
			Expect(err).NotTo(HaveOccurred())
			Expect(string(b)).To(ContainSubstring(`"aoi":"test-aoi"`))
			Expect(string(b)).To(ContainSubstring(`"FeatureCollection"`))
		})

		Context("when all the levels are requested", func() {
			BeforeEach(func() {
				area.SceneType.Parameters = map[string]string{entities.ProcLevelParameter: "all"}
			})
			It("should keep the raw product", func() {
				Expect(err).NotTo(HaveOccurred())
				Expect(selection.Products.IDs()).To(Equal([]string{"P1", "latest", "raw"}))
			})
		})

		Context("when a product has already been acquired", func() {
			BeforeEach(func() {
				Expect(inv.Record(ctx, area.AOIID, "P2")).To(Succeed())
			})
			It("should prefer it", func() {
				Expect(err).NotTo(HaveOccurred())
				Expect(selection.Products.IDs()).To(Equal([]string{"P2", "latest"}))
			})
		})

		Context("when the area is not valid", func() {
			BeforeEach(func() {
				area.AOIID = "test aoi"
			})
			It("should fail without searching", func() {
				Expect(err).To(HaveOccurred())
				Expect(provider.searches).To(Equal(0))
			})
		})

		Context("when the region of interest is not valid", func() {
			BeforeEach(func() {
				area.ROI = entities.RegionOfInterest{Geometry: geojson.Geometry{Geometry: geom.Polygon{{{0.2, 0.2}, {0.8, 0.2}, {0.2, 0.2}}}}}
			})
			It("should fail without searching", func() {
				Expect(err).To(HaveOccurred())
				Expect(provider.searches).To(Equal(0))
			})
		})
	})

	Describe("Publish", func() {
		var nb int
		JustBeforeEach(func() {
			selection, err = c.Select(ctx, area)
			Expect(err).NotTo(HaveOccurred())
			nb, err = c.Publish(ctx, selection)
		})

		It("should publish and record the selected products", func() {
			Expect(err).NotTo(HaveOccurred())
			Expect(nb).To(Equal(2))
			Expect(publisher.messages).To(HaveLen(2))
			var p entities.Product
			Expect(json.Unmarshal(publisher.messages[0], &p)).To(Succeed())
			Expect(p.ID).To(Equal("P1"))
			Expect(inv.Retained(ctx, area.AOIID)).To(Equal([]string{"P1", "latest"}))
		})

		It("should not publish twice the same products", func() {
			Expect(err).NotTo(HaveOccurred())
			selection, err = c.Select(ctx, area)
			Expect(err).NotTo(HaveOccurred())
			nb, err = c.Publish(ctx, selection)
			Expect(err).NotTo(HaveOccurred())
			Expect(nb).To(Equal(0))
			Expect(publisher.messages).To(HaveLen(2))
		})

		Context("without publisher", func() {
			BeforeEach(func() {
				c.Publisher = nil
			})
			It("should fail", func() {
				Expect(err).To(HaveOccurred())
			})
		})
	})
})
