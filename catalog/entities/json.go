package entities

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/airbusgeo/geocube-tilefinder/common"
	"github.com/airbusgeo/geocube-tilefinder/service/geometry"
	"github.com/airbusgeo/geocube-tilefinder/tilegrid"
	"github.com/go-spatial/geom/encoding/geojson"
)

type productProperties struct {
	Identifier    string                 `json:"identifier"`
	Platform      common.Platform        `json:"platform"`
	ProductType   string                 `json:"product_type,omitempty"`
	Polarisation  string                 `json:"polarisation,omitempty"`
	Level         common.ProcessingLevel `json:"processing_level"`
	SensingStart  time.Time              `json:"sensing_start"`
	SensingEnd    *time.Time             `json:"sensing_end,omitempty"`
	IngestionDate *time.Time             `json:"ingestion_date,omitempty"`
	Annotation    *tilegrid.Annotation   `json:"annotation,omitempty"`
	Metadata      map[string]string      `json:"metadata,omitempty"`
}

type productFeature struct {
	Type       string            `json:"type"`
	ID         string            `json:"id"`
	Geometry   geojson.Geometry  `json:"geometry"`
	Properties productProperties `json:"properties"`
}

type productFeatureCollection struct {
	Type     string           `json:"type"`
	Features []productFeature `json:"features"`
}

func timePtr(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}

func (p Product) toFeature() productFeature {
	f := productFeature{
		Type:     "Feature",
		ID:       p.ID,
		Geometry: geojson.Geometry{Geometry: p.Footprint.Geom()},
		Properties: productProperties{
			Identifier:    p.Identifier,
			Platform:      p.Platform,
			ProductType:   p.ProductType,
			Polarisation:  p.Polarisation,
			Level:         p.Level,
			SensingStart:  p.SensingStart,
			SensingEnd:    timePtr(p.SensingEnd),
			IngestionDate: timePtr(p.IngestionDate),
			Metadata:      p.Metadata,
		},
	}
	if !p.Annotation.IsZero() {
		a := p.Annotation
		f.Properties.Annotation = &a
	}
	return f
}

func (f productFeature) toProduct() (Product, error) {
	footprint, err := geometry.PolygonFromGeometry(f.Geometry.Geometry)
	if err != nil {
		return Product{}, ErrProductNotValid{ID: f.ID, Reason: err.Error()}
	}
	p := Product{
		ID:           f.ID,
		Identifier:   f.Properties.Identifier,
		Platform:     f.Properties.Platform,
		ProductType:  f.Properties.ProductType,
		Polarisation: f.Properties.Polarisation,
		Footprint:    footprint,
		Level:        f.Properties.Level,
		SensingStart: f.Properties.SensingStart,
		Metadata:     f.Properties.Metadata,
	}
	if f.Properties.SensingEnd != nil {
		p.SensingEnd = *f.Properties.SensingEnd
	}
	if f.Properties.IngestionDate != nil {
		p.IngestionDate = *f.Properties.IngestionDate
	}
	if f.Properties.Annotation != nil {
		p.Annotation = *f.Properties.Annotation
	}
	return p, p.Validate()
}

// MarshalJSON implements json.Marshaler (GeoJSON Feature)
func (p Product) MarshalJSON() ([]byte, error) {
	return json.Marshal(p.toFeature())
}

// UnmarshalJSON implements json.Unmarshaler (GeoJSON Feature)
func (p *Product) UnmarshalJSON(data []byte) error {
	var f productFeature
	if err := json.Unmarshal(data, &f); err != nil {
		return fmt.Errorf("Product.UnmarshalJSON: %w", err)
	}
	product, err := f.toProduct()
	if err != nil {
		return err
	}
	*p = product
	return nil
}

// MarshalJSON implements json.Marshaler (GeoJSON FeatureCollection, sorted by id)
func (c Catalog) MarshalJSON() ([]byte, error) {
	fc := productFeatureCollection{
		Type:     "FeatureCollection",
		Features: make([]productFeature, 0, len(c)),
	}
	for _, id := range c.IDs() {
		fc.Features = append(fc.Features, c[id].toFeature())
	}
	return json.Marshal(fc)
}

// UnmarshalJSON implements json.Unmarshaler (GeoJSON FeatureCollection)
func (c *Catalog) UnmarshalJSON(data []byte) error {
	var fc productFeatureCollection
	if err := json.Unmarshal(data, &fc); err != nil {
		return fmt.Errorf("Catalog.UnmarshalJSON: %w", err)
	}
	catalog := make(Catalog, len(fc.Features))
	for _, f := range fc.Features {
		p, err := f.toProduct()
		if err != nil {
			return err
		}
		if err := catalog.Add(p); err != nil {
			return err
		}
	}
	*c = catalog
	return nil
}
