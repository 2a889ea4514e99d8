package scihub

import (
	"context"
	"encoding/xml"
	"errors"
	"fmt"
	neturl "net/url"
	"strconv"
	"strings"
	"time"

	"github.com/airbusgeo/geocube-tilefinder/catalog/entities"
	"github.com/airbusgeo/geocube-tilefinder/common"
	"github.com/airbusgeo/geocube-tilefinder/service"
	"github.com/airbusgeo/geocube-tilefinder/service/geometry"
	"github.com/airbusgeo/geocube-tilefinder/service/log"
	"github.com/araddon/dateparse"
)

// DefaultURLs of the search endpoints, tried in this order
var DefaultURLs = []string{
	"https://apihub.copernicus.eu/apihub/search",
	"https://scihub.copernicus.eu/dhus/search",
}

const defaultRows = 100

// Provider searches products in a Copernicus OpenSearch hub
type Provider struct {
	Credentials service.Credentials
	// URLs of the search endpoints (DefaultURLs if empty)
	URLs []string
	// Rows per page (100 if zero, the maximum accepted by the hubs)
	Rows      int
	NbRetries int
}

// SearchProducts implements ProductsProvider
func (s *Provider) SearchProducts(ctx context.Context, area *entities.AreaToSearch, roi geometry.Polygon) (entities.Catalog, error) {
	query, err := BuildQuery(area, roi)
	if err != nil {
		return nil, fmt.Errorf("Scihub.SearchProducts.%w", err)
	}
	log.Logger(ctx).Sugar().Debugf("search query: %s", query)

	urls := s.URLs
	if len(urls) == 0 {
		urls = DefaultURLs
	}
	var errs error
	for _, url := range urls {
		c, err := s.queryHub(ctx, url, query)
		if err == nil {
			return c, nil
		}
		var errNotValid entities.ErrProductNotValid
		if errors.As(err, &errNotValid) {
			return nil, fmt.Errorf("Scihub.SearchProducts.%w", err)
		}
		log.Logger(ctx).Sugar().Debugf("%s failed with error : %v", url, err)
		errs = service.MergeErrors(true, errs, err)
	}
	return nil, fmt.Errorf("Scihub.SearchProducts.%w", errs)
}

func (s *Provider) queryHub(ctx context.Context, baseurl, query string) (entities.Catalog, error) {
	rows := s.Rows
	if rows <= 0 {
		rows = defaultRows
	}
	c := entities.Catalog{}
	totalPages := "?"
	for index, nextPage := 0, true; nextPage; index += rows {
		log.Logger(ctx).Sugar().Debugf("Search page %d/%s", index/rows+1, totalPages)
		url := fmt.Sprintf("%s?q=%s&start=%d&rows=%d", baseurl, neturl.QueryEscape(query), index, rows)
		body, err := service.HTTPGetWithAuth(ctx, url, s.Credentials, s.NbRetries)
		if err != nil {
			return nil, fmt.Errorf("queryHub.%w", err)
		}

		page, err := ParseFeed(body)
		if err != nil {
			return nil, fmt.Errorf("queryHub.%w", err)
		}
		for _, p := range page.Products {
			if _, ok := c[p.ID]; ok {
				// The hub may return the same product on two pages
				continue
			}
			if err := c.Add(p); err != nil {
				return nil, fmt.Errorf("queryHub.%w", err)
			}
		}

		nextPage = page.Next && len(page.Products) > 0
		if page.TotalResults != 0 {
			totalPages = strconv.Itoa((page.TotalResults-1)/rows + 1)
			nextPage = nextPage && index+rows < page.TotalResults
		}
	}
	log.Logger(ctx).Sugar().Debugf("%d products found", len(c))
	return c, nil
}

// Page of results of a search
type Page struct {
	Products     []entities.Product
	TotalResults int
	Next         bool
}

type feedElement struct {
	Name  string `xml:"name,attr"`
	Value string `xml:",chardata"`
}

type feedLink struct {
	Rel  string `xml:"rel,attr"`
	Href string `xml:"href,attr"`
}

type feed struct {
	XMLName xml.Name `xml:"feed"`
	Error   struct {
		Code    string `xml:"code"`
		Message string `xml:"message"`
	} `xml:"error"`
	Entries []struct {
		Title          string        `xml:"title"`
		Links          []feedLink    `xml:"link"`
		StrElements    []feedElement `xml:"str"`
		IntElements    []feedElement `xml:"int"`
		DoubleElements []feedElement `xml:"double"`
		DateElements   []feedElement `xml:"date"`
	} `xml:"entry"`
	Links        []feedLink `xml:"link"`
	TotalResults int        `xml:"totalResults"`
}

// ParseFeed parses a page of results of the hub (Atom feed)
// Raise ErrProductNotValid if a product misses a required element
func ParseFeed(data []byte) (Page, error) {
	var results feed
	if err := xml.Unmarshal(data, &results); err != nil {
		return Page{}, fmt.Errorf("ParseFeed.Unmarshal : %w (response: %.200s)", err, data)
	}
	if results.Error.Code != "" || results.Error.Message != "" {
		return Page{}, fmt.Errorf("ParseFeed : %s[code:%s]", results.Error.Message, results.Error.Code)
	}

	page := Page{TotalResults: results.TotalResults}
	for _, link := range results.Links {
		if strings.ToLower(link.Rel) == "next" && link.Href != "" {
			page.Next = true
		}
	}

	for _, entry := range results.Entries {
		// Merge all elements of the product into a dict
		raw := map[string]string{}
		for _, elems := range [][]feedElement{entry.StrElements, entry.IntElements, entry.DoubleElements, entry.DateElements} {
			for _, elem := range elems {
				raw[elem.Name] = strings.TrimSpace(elem.Value)
			}
		}
		if _, ok := raw[common.TagTitle]; !ok && entry.Title != "" {
			raw[common.TagTitle] = entry.Title
		}
		for _, link := range entry.Links {
			if link.Rel == "" && strings.HasSuffix(link.Href, "$value") {
				raw[common.TagDownloadURL] = link.Href
			}
		}

		p, err := newProduct(raw)
		if err != nil {
			return Page{}, fmt.Errorf("ParseFeed.%w", err)
		}
		page.Products = append(page.Products, p)
	}
	return page, nil
}

func parseDate(raw map[string]string, field, id string) (time.Time, error) {
	v, ok := raw[field]
	if !ok || v == "" {
		return time.Time{}, nil
	}
	d, err := dateparse.ParseAny(v)
	if err != nil {
		return time.Time{}, entities.ErrProductNotValid{ID: id, Reason: fmt.Sprintf("%s: %v", field, err)}
	}
	return d.UTC(), nil
}

// newProduct creates a product from the elements of an entry of the feed
func newProduct(raw map[string]string) (entities.Product, error) {
	id := raw[common.TagUUID]
	for _, elem := range []string{common.TagUUID, "identifier", common.TagPlatformName, "beginposition", "footprint"} {
		if raw[elem] == "" {
			return entities.Product{}, entities.ErrProductNotValid{ID: id, Reason: "missing element " + elem}
		}
	}

	p := entities.Product{
		ID:           id,
		Identifier:   raw["identifier"],
		Platform:     common.GetPlatformFromString(raw[common.TagPlatformName]),
		ProductType:  raw[common.TagProductType],
		Polarisation: raw[common.TagPolarisationMode],
		Metadata:     raw,
	}

	var err error
	if p.SensingStart, err = parseDate(raw, "beginposition", id); err != nil {
		return entities.Product{}, err
	}
	if p.SensingEnd, err = parseDate(raw, "endposition", id); err != nil {
		return entities.Product{}, err
	}
	if p.IngestionDate, err = parseDate(raw, common.TagIngestionDate, id); err != nil {
		return entities.Product{}, err
	}

	if level, ok := raw[common.TagProcessingLevel]; ok {
		p.Level = common.ParseProcessingLevel(p.Platform, level)
	}
	if p.Level == common.LevelOpen {
		p.Level = common.ParseProcessingLevel(p.Platform, p.ProductType)
	}

	if p.Footprint, err = geometry.PolygonFromWKT(strings.ToUpper(raw["footprint"])); err != nil {
		return entities.Product{}, entities.ErrProductNotValid{ID: id, Reason: "footprint: " + err.Error()}
	}

	if err := p.Validate(); err != nil {
		return entities.Product{}, err
	}
	return p, nil
}
