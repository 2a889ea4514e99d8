package catalog

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/airbusgeo/geocube-tilefinder/catalog/entities"
	"github.com/airbusgeo/geocube-tilefinder/service/geometry"
	"github.com/airbusgeo/geocube-tilefinder/service/log"
	"github.com/airbusgeo/geocube-tilefinder/tilegrid"
	"github.com/go-spatial/geom/encoding/geojson"
	"github.com/google/uuid"
	"github.com/gorilla/mux"
)

const areaJSONField = "area"

// AddHandler adds the routes of the catalog to the router
func (c *Catalog) AddHandler(r *mux.Router) {
	r.Use(requestIDMiddleware)
	r.HandleFunc("/tiles", c.TilesHandler).Methods("POST")
	r.HandleFunc("/tiles/{name}", c.TileHandler).Methods("GET")
	r.HandleFunc("/products/resolve", c.ResolveHandler).Methods("POST")
	r.HandleFunc("/products/search", c.SearchHandler).Methods("POST")
}

// requestIDMiddleware adds a request id to the logger of the request
func requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		id := req.Header.Get("X-Request-Id")
		if id == "" {
			id = uuid.New().String()
		}
		w.Header().Set("X-Request-Id", id)
		next.ServeHTTP(w, req.WithContext(log.With(req.Context(), "request_id", id)))
	})
}

// readField returns the field of a form, or the body of the request if it is not a form
func readField(req *http.Request, field string) ([]byte, error) {
	if strings.HasPrefix(req.Header.Get("Content-Type"), "application/json") {
		return io.ReadAll(req.Body)
	}
	if req.FormValue(field) != "" {
		return []byte(req.FormValue(field)), nil
	}
	file, _, err := req.FormFile(field)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	var buf bytes.Buffer
	if _, err := io.Copy(&buf, file); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func loadJSON(req *http.Request, field string, v interface{}) error {
	data, err := readField(req, field)
	if err != nil {
		return fmt.Errorf("missing required field: '%s' (application/json): %w", field, err)
	}
	if len(data) == 0 {
		return fmt.Errorf("missing required field: '%s' (application/json)", field)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("%w\nJSON:\n%s", err, data)
	}
	return nil
}

// writeJSON encodes v before writing anything, so that an encoding error can still be reported as a 500
func writeJSON(w http.ResponseWriter, req *http.Request, v interface{}) {
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(v); err != nil {
		log.Logger(req.Context()).Sugar().Warnf("writeJSON: %v", err)
		w.WriteHeader(500)
		fmt.Fprintf(w, "%v", err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	if _, err := buf.WriteTo(w); err != nil {
		log.Logger(req.Context()).Sugar().Warnf("writeJSON: %v", err)
	}
}

func isInvalidGeometry(err error) bool {
	var errGeom geometry.ErrInvalidGeometry
	return errors.As(err, &errGeom)
}

func isInvalidProduct(err error) bool {
	var errProduct entities.ErrProductNotValid
	return errors.As(err, &errProduct)
}

type tilesRequest struct {
	ROI entities.RegionOfInterest `json:"roi"`
}

type tilesResponse struct {
	Tiles      []string            `json:"tiles"`
	Annotation tilegrid.Annotation `json:"annotation"`
}

// TilesHandler returns the tiles intersecting a region of interest and its annotation
func (c *Catalog) TilesHandler(w http.ResponseWriter, req *http.Request) {
	var r tilesRequest
	if err := loadJSON(req, "roi", &r); err != nil {
		w.WriteHeader(400)
		fmt.Fprintf(w, "%v", err)
		return
	}
	roi, err := r.ROI.Polygon()
	if err != nil {
		w.WriteHeader(400)
		fmt.Fprintf(w, "%v", err)
		return
	}

	resp := tilesResponse{}
	if resp.Tiles, err = c.Annotator.Lookup(roi); err != nil {
		log.Logger(req.Context()).Sugar().Warnf("TilesHandler.%v", err)
		w.WriteHeader(500)
		fmt.Fprintf(w, "%v", err)
		return
	}
	if resp.Annotation, err = c.Annotator.Annotate(roi); err != nil {
		log.Logger(req.Context()).Sugar().Warnf("TilesHandler.%v", err)
		w.WriteHeader(500)
		fmt.Fprintf(w, "%v", err)
		return
	}
	writeJSON(w, req, resp)
}

// TileHandler returns the polygon of a tile as a GeoJSON Feature
func (c *Catalog) TileHandler(w http.ResponseWriter, req *http.Request) {
	name := mux.Vars(req)["name"]
	cell, ok := c.Annotator.Grid().Cell(name)
	if !ok {
		w.WriteHeader(404)
		fmt.Fprintf(w, "tile %s not found", name)
		return
	}
	polygon, err := cell.Polygon()
	if err != nil {
		w.WriteHeader(500)
		fmt.Fprintf(w, "%v", err)
		return
	}
	writeJSON(w, req, geojson.Feature{
		Geometry:   geojson.Geometry{Geometry: polygon.Geom()},
		Properties: map[string]interface{}{"name": name},
	})
}

type resolveRequest struct {
	ROI       entities.RegionOfInterest `json:"roi"`
	Products  entities.Catalog          `json:"products"`
	Retained  []string                  `json:"retained,omitempty"`
	AllLevels bool                      `json:"all_levels,omitempty"`
}

// ResolveHandler removes the redundant products of a catalog
func (c *Catalog) ResolveHandler(w http.ResponseWriter, req *http.Request) {
	var r resolveRequest
	if err := loadJSON(req, "request", &r); err != nil {
		w.WriteHeader(400)
		fmt.Fprintf(w, "%v", err)
		return
	}
	result, err := c.ResolveProducts(req.Context(), r.Products, r.ROI, r.AllLevels, r.Retained...)
	if err != nil {
		if isInvalidGeometry(err) || isInvalidProduct(err) {
			w.WriteHeader(400)
		} else {
			log.Logger(req.Context()).Sugar().Warnf("ResolveHandler.%v", err)
			w.WriteHeader(500)
		}
		fmt.Fprintf(w, "%v", err)
		return
	}
	writeJSON(w, req, result)
}

// SearchHandler selects the products of an area (see Select).
// With publish=true, the selected products are published (see Publish)
func (c *Catalog) SearchHandler(w http.ResponseWriter, req *http.Request) {
	ctx := req.Context()

	var area entities.AreaToSearch
	if err := loadJSON(req, areaJSONField, &area); err != nil {
		w.WriteHeader(400)
		fmt.Fprintf(w, "%v", err)
		return
	}
	if err := area.Validate(); err != nil {
		w.WriteHeader(400)
		fmt.Fprintf(w, "%v", err)
		return
	}

	s, err := c.Select(ctx, area)
	if err != nil {
		// Products are validated by the provider: only the region of interest is at fault
		if isInvalidGeometry(err) {
			w.WriteHeader(400)
		} else {
			log.Logger(ctx).Sugar().Warnf("SearchHandler.%v", err)
			w.WriteHeader(500)
		}
		fmt.Fprintf(w, "%v", err)
		return
	}

	if req.URL.Query().Get("publish") == "true" {
		if _, err := c.Publish(ctx, s); err != nil {
			log.Logger(ctx).Sugar().Warnf("SearchHandler.%v", err)
			w.WriteHeader(500)
			fmt.Fprintf(w, "%v", err)
			return
		}
	}
	writeJSON(w, req, s)
}
