package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/airbusgeo/geocube-tilefinder/catalog"
	"github.com/airbusgeo/geocube-tilefinder/catalog/entities"
	"github.com/airbusgeo/geocube-tilefinder/interface/catalog/scihub"
	"github.com/airbusgeo/geocube-tilefinder/interface/inventory"
	"github.com/airbusgeo/geocube-tilefinder/interface/inventory/pg"
	"github.com/airbusgeo/geocube-tilefinder/interface/messaging/pubsub"
	"github.com/airbusgeo/geocube-tilefinder/service"
	"github.com/airbusgeo/geocube-tilefinder/service/log"
	"github.com/airbusgeo/geocube-tilefinder/tilegrid"
	"github.com/caarlos0/env/v10"
	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

type config struct {
	Area    string
	Publish bool

	GridPolygons     string  `env:"GRID_POLYGONS"`
	GridNames        string  `env:"GRID_NAMES"`
	GridGeoJSON      string  `env:"GRID_GEOJSON"`
	GridNameProperty string  `env:"GRID_NAME_PROPERTY" envDefault:"Name"`
	LonThreshold     float64 `env:"LON_THRESHOLD"`
	LatThreshold     float64 `env:"LAT_THRESHOLD"`
	CacheSize        int     `env:"CACHE_SIZE" envDefault:"10000"`
	Workers          int     `env:"WORKERS" envDefault:"4"`

	ScihubUsername  string `env:"SCIHUB_USERNAME"`
	ScihubPassword  string `env:"SCIHUB_PASSWORD"`
	ScihubURLs      string `env:"SCIHUB_URLS"`
	ScihubNbRetries int    `env:"SCIHUB_RETRIES" envDefault:"3"`

	InventoryURI string `env:"INVENTORY_URI"`
	DbConnection string `env:"DB_CONNECTION"`

	PsProject string `env:"PUBSUB_PROJECT"`
	PsTopic   string `env:"PUBSUB_TOPIC"`

	Port int `env:"PORT" envDefault:"8080"`
}

func newAppConfig() (*config, error) {
	config := config{}
	if err := env.Parse(&config); err != nil {
		return nil, fmt.Errorf("env.Parse: %w", err)
	}
	flag.StringVar(&config.Area, "area", "", "Json of the area to search (optional). If empty, the http server is started")
	flag.BoolVar(&config.Publish, "publish", false, "publish the selected products of the area")

	flag.StringVar(&config.GridPolygons, "grid-polygons", config.GridPolygons, "json file of the flattened coordinates of the cells of the grid (local, gs://, s3:// or http(s)://)")
	flag.StringVar(&config.GridNames, "grid-names", config.GridNames, "json file of the names of the cells of the grid")
	flag.StringVar(&config.GridGeoJSON, "grid-geojson", config.GridGeoJSON, "geojson file of the cells of the grid (instead of grid-polygons and grid-names)")
	flag.StringVar(&config.GridNameProperty, "grid-name-property", config.GridNameProperty, "property of the geojson features holding the name of the cell")
	flag.Float64Var(&config.LonThreshold, "lon-threshold", config.LonThreshold, "longitude threshold of the prefilter of the grid (in degrees, optional)")
	flag.Float64Var(&config.LatThreshold, "lat-threshold", config.LatThreshold, "latitude threshold of the prefilter of the grid (in degrees, optional)")
	flag.IntVar(&config.CacheSize, "cache-size", config.CacheSize, "number of annotations kept in memory")
	flag.IntVar(&config.Workers, "workers", config.Workers, "number of parallel annotations")

	flag.StringVar(&config.ScihubUsername, "scihub-username", config.ScihubUsername, "username to connect to the scihub catalog service")
	flag.StringVar(&config.ScihubPassword, "scihub-password", config.ScihubPassword, "password to connect to the scihub catalog service")
	flag.StringVar(&config.ScihubURLs, "scihub-urls", config.ScihubURLs, "comma-separated search endpoints (optional)")
	flag.IntVar(&config.ScihubNbRetries, "scihub-retries", config.ScihubNbRetries, "number of retries on temporary errors")

	flag.StringVar(&config.InventoryURI, "inventory", config.InventoryURI, "json file of the products already acquired (optional)")
	flag.StringVar(&config.DbConnection, "db-connection", config.DbConnection, "connection to the postgres inventory (instead of the json file)")

	flag.StringVar(&config.PsProject, "ps-project", config.PsProject, "pubsub project")
	flag.StringVar(&config.PsTopic, "ps-topic", config.PsTopic, "pubsub topic of the selected products (optional)")

	flag.IntVar(&config.Port, "port", config.Port, "port of the http server")
	flag.Parse()

	if config.GridGeoJSON == "" && (config.GridPolygons == "" || config.GridNames == "") {
		return nil, fmt.Errorf("missing grid: grid-geojson or grid-polygons and grid-names must be defined")
	}
	if config.PsTopic != "" && config.PsProject == "" {
		return nil, fmt.Errorf("missing ps-project")
	}
	return &config, nil
}

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()
	err := run(ctx)
	if err != nil {
		log.Fatal("error", zap.Error(err))
	}
}

func loadGrid(ctx context.Context, config *config) (*tilegrid.Index, error) {
	var opts []tilegrid.Option
	if config.LonThreshold != 0 || config.LatThreshold != 0 {
		opts = append(opts, tilegrid.WithThresholds(config.LonThreshold, config.LatThreshold))
	}
	if config.GridGeoJSON != "" {
		return tilegrid.LoadGeoJSON(ctx, config.GridGeoJSON, config.GridNameProperty, opts...)
	}
	return tilegrid.LoadArrays(ctx, config.GridPolygons, config.GridNames, opts...)
}

func run(ctx context.Context) error {
	config, err := newAppConfig()
	if err != nil {
		return err
	}

	c := catalog.Catalog{}
	{
		// Grid
		grid, err := loadGrid(ctx, config)
		if err != nil {
			return fmt.Errorf("loadGrid: %w", err)
		}
		if c.Annotator, err = catalog.NewAnnotator(grid, config.CacheSize, config.Workers); err != nil {
			return err
		}

		// Connection to the external catalogue service
		provider := &scihub.Provider{
			Credentials: service.Credentials{User: config.ScihubUsername, Password: config.ScihubPassword},
			NbRetries:   config.ScihubNbRetries,
		}
		if config.ScihubURLs != "" {
			provider.URLs = strings.Split(config.ScihubURLs, ",")
		}
		c.Provider = provider

		// Inventory
		switch {
		case config.DbConnection != "":
			db, err := pg.New(ctx, config.DbConnection)
			if err != nil {
				return fmt.Errorf("pg.New: %w", err)
			}
			defer db.Close()
			c.Inventory = db
		case config.InventoryURI != "":
			c.Inventory = inventory.NewFile(config.InventoryURI)
		}

		// Publisher
		if config.PsTopic != "" {
			publisher, err := pubsub.NewPublisher(ctx, config.PsProject, config.PsTopic)
			if err != nil {
				return fmt.Errorf("pubsub.NewPublisher: %w", err)
			}
			defer publisher.Close()
			publisher.NbTries = 5
			c.Publisher = publisher
		}
	}

	if config.Area != "" {
		return searchArea(ctx, &c, config.Area, config.Publish)
	}

	// HTTP Server
	router := mux.NewRouter()
	router.Handle("/metrics", promhttp.Handler())
	c.AddHandler(router.PathPrefix("/").Subrouter())

	headersOk := handlers.AllowedHeaders([]string{"*"})
	originsOk := handlers.AllowedOrigins([]string{"*"})
	methodsOk := handlers.AllowedMethods([]string{"GET", "POST", "OPTIONS"})
	s := http.Server{
		Addr:    fmt.Sprintf(":%d", config.Port),
		Handler: handlers.CORS(originsOk, headersOk, methodsOk)(router),
	}

	go func() {
		if err := s.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Logger(ctx).Fatal("tilefinder.ListenAndServe", zap.Error(err))
		}
	}()
	log.Logger(ctx).Sugar().Infof("tilefinder listening on %s (%d cells)", s.Addr, c.Annotator.Grid().Len())

	<-ctx.Done()
	sctx, cncl := context.WithTimeout(context.Background(), 30*time.Second)
	defer cncl()
	return s.Shutdown(sctx)
}

func searchArea(ctx context.Context, c *catalog.Catalog, jsonPath string, publish bool) error {
	area := entities.AreaToSearch{}
	byteValue, err := os.ReadFile(jsonPath)
	if err != nil {
		return err
	}
	if err = json.Unmarshal(byteValue, &area); err != nil {
		return fmt.Errorf("searchArea.Unmarshal: %w", err)
	}

	s, err := c.Select(ctx, area)
	if err != nil {
		return err
	}
	if publish {
		if _, err = c.Publish(ctx, s); err != nil {
			return err
		}
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(s)
}
