package catalog_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/airbusgeo/geocube-tilefinder/catalog"
	"github.com/airbusgeo/geocube-tilefinder/catalog/entities"
	"github.com/airbusgeo/geocube-tilefinder/common"
	"github.com/gorilla/mux"
)

const roiJSON = `{"type":"Polygon","coordinates":[[[0.2,0.2],[0.8,0.2],[0.8,0.8],[0.2,0.8],[0.2,0.2]]]}`

func newTestServer(t *testing.T, provider *MokeProvider, publisher *MokePublisher) *httptest.Server {
	t.Helper()
	g, err := newGrid()
	if err != nil {
		t.Fatal(err)
	}
	a, err := catalog.NewAnnotator(g, 10, 2)
	if err != nil {
		t.Fatal(err)
	}
	c := &catalog.Catalog{Annotator: a, Provider: provider}
	if publisher != nil {
		c.Publisher = publisher
	}
	r := mux.NewRouter()
	c.AddHandler(r)
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return srv
}

func post(t *testing.T, url, body string) *http.Response {
	t.Helper()
	resp, err := http.Post(url, "application/json", strings.NewReader(body))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func TestTilesHandler(t *testing.T) {
	srv := newTestServer(t, &MokeProvider{}, nil)

	resp := post(t, srv.URL+"/tiles", `{"roi":{"geometry":`+roiJSON+`}}`)
	if resp.StatusCode != 200 {
		t.Fatalf("expecting 200, found %d", resp.StatusCode)
	}
	if resp.Header.Get("X-Request-Id") == "" {
		t.Errorf("expecting a request id")
	}
	var r struct {
		Tiles      []string `json:"tiles"`
		Annotation struct {
			Majority string `json:"majority"`
		} `json:"annotation"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&r); err != nil {
		t.Fatal(err)
	}
	if len(r.Tiles) != 1 || r.Tiles[0] != "A01" {
		t.Errorf("expecting [A01], found %v", r.Tiles)
	}

	resp = post(t, srv.URL+"/tiles", `{"roi":{"geometry":{"type":"Polygon","coordinates":[[[0.2,0.2],[0.8,0.2],[0.2,0.2]]]}}}`)
	if resp.StatusCode != 400 {
		t.Errorf("expecting 400, found %d", resp.StatusCode)
	}
}

func TestTileHandler(t *testing.T) {
	srv := newTestServer(t, &MokeProvider{}, nil)

	req, _ := http.NewRequest("GET", srv.URL+"/tiles/A02", nil)
	req.Header.Set("X-Request-Id", "my-request")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != 200 {
		t.Fatalf("expecting 200, found %d", resp.StatusCode)
	}
	if id := resp.Header.Get("X-Request-Id"); id != "my-request" {
		t.Errorf("expecting my-request, found %s", id)
	}
	var f struct {
		Geometry struct {
			Type string `json:"type"`
		} `json:"geometry"`
		Properties map[string]interface{} `json:"properties"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&f); err != nil {
		t.Fatal(err)
	}
	if f.Geometry.Type != "Polygon" || f.Properties["name"] != "A02" {
		t.Errorf("unexpected feature %+v", f)
	}

	resp2, err := http.Get(srv.URL + "/tiles/Z99")
	if err != nil {
		t.Fatal(err)
	}
	defer resp2.Body.Close()
	if resp2.StatusCode != 404 {
		t.Errorf("expecting 404, found %d", resp2.StatusCode)
	}
}

func TestResolveHandler(t *testing.T) {
	srv := newTestServer(t, &MokeProvider{}, nil)
	products, err := entities.NewCatalog(
		radar("P1", t0, t0.Add(30*time.Second), square(0.1, 0.1, 0.9, 0.9)),
		radar("P2", t0.Add(10*time.Second), t0.Add(40*time.Second), square(0.1, 0.1, 0.9, 0.9)),
	)
	if err != nil {
		t.Fatal(err)
	}
	data, err := json.Marshal(products)
	if err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name     string
		retained string
		kept     string
	}{
		{"default", "", "P1"},
		{"retained", `,"retained":["P2"]`, "P2"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := post(t, srv.URL+"/products/resolve", `{"roi":{"geometry":`+roiJSON+`},"products":`+string(data)+tt.retained+`}`)
			if resp.StatusCode != 200 {
				t.Fatalf("expecting 200, found %d", resp.StatusCode)
			}
			var result catalog.Result
			if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
				t.Fatal(err)
			}
			if ids := result.Products.IDs(); len(ids) != 1 || ids[0] != tt.kept {
				t.Errorf("expecting [%s], found %v", tt.kept, ids)
			}
			if result.RemovedCount() != 1 {
				t.Errorf("expecting 1 removed product, found %v", result.Removed)
			}
		})
	}

	resp := post(t, srv.URL+"/products/resolve", `{"roi":{}}`)
	if resp.StatusCode != 400 {
		t.Errorf("expecting 400, found %d", resp.StatusCode)
	}
}

func TestSearchHandler(t *testing.T) {
	provider := &MokeProvider{products: []entities.Product{
		optical("A", common.LevelFinal, t0, square(0.1, 0.1, 0.9, 0.9)),
		optical("B", common.LevelRaw, t0, square(0.1, 0.1, 0.9, 0.9)),
	}}
	publisher := &MokePublisher{}
	srv := newTestServer(t, provider, publisher)
	area := `{"aoi":"my-aoi","roi":{"geometry":` + roiJSON + `},"start_time":"2020-01-01T00:00:00Z","scene_type":{"constellation":"sentinel2"}}`

	resp := post(t, srv.URL+"/products/search", area)
	if resp.StatusCode != 200 {
		t.Fatalf("expecting 200, found %d", resp.StatusCode)
	}
	var s catalog.Selection
	if err := json.NewDecoder(resp.Body).Decode(&s); err != nil {
		t.Fatal(err)
	}
	if ids := s.Products.IDs(); len(ids) != 1 || ids[0] != "A" {
		t.Errorf("expecting [A], found %v", ids)
	}
	if len(publisher.messages) != 0 {
		t.Errorf("expecting no message, found %d", len(publisher.messages))
	}

	resp = post(t, srv.URL+"/products/search?publish=true", area)
	if resp.StatusCode != 200 {
		t.Fatalf("expecting 200, found %d", resp.StatusCode)
	}
	if len(publisher.messages) != 1 {
		t.Errorf("expecting 1 message, found %d", len(publisher.messages))
	}

	resp = post(t, srv.URL+"/products/search", strings.Replace(area, "my-aoi", "my aoi", 1))
	if resp.StatusCode != 400 {
		t.Errorf("expecting 400, found %d", resp.StatusCode)
	}
	if provider.searches != 2 {
		t.Errorf("expecting 2 searches, found %d", provider.searches)
	}
}

func TestSearchHandlerInvalidROI(t *testing.T) {
	provider := &MokeProvider{}
	srv := newTestServer(t, provider, nil)
	flat := `{"type":"Polygon","coordinates":[[[0.2,0.2],[0.8,0.2],[0.2,0.2]]]}`
	resp := post(t, srv.URL+"/products/search", `{"aoi":"my-aoi","roi":{"geometry":`+flat+`},"start_time":"2020-01-01T00:00:00Z","scene_type":{"constellation":"sentinel2"}}`)
	if resp.StatusCode != 400 {
		t.Errorf("expecting 400, found %d", resp.StatusCode)
	}
	if provider.searches != 0 {
		t.Errorf("expecting no search, found %d", provider.searches)
	}
}

func TestSearchHandlerProviderError(t *testing.T) {
	srv := newTestServer(t, &MokeProvider{products: []entities.Product{{ID: "invalid"}}}, nil)
	resp := post(t, srv.URL+"/products/search", `{"aoi":"my-aoi","roi":{"geometry":`+roiJSON+`},"start_time":"2020-01-01T00:00:00Z","scene_type":{"constellation":"sentinel2"}}`)
	if resp.StatusCode != 500 {
		t.Errorf("expecting 500, found %d", resp.StatusCode)
	}
}
