package inventory

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/airbusgeo/geocube-tilefinder/service"
	"github.com/airbusgeo/geocube-tilefinder/service/log"
)

// ErrAlreadyExists is returned when a product is recorded twice for the same aoi
type ErrAlreadyExists struct {
	AOI, ID string
}

func (e ErrAlreadyExists) Error() string {
	return fmt.Sprintf("product %s already recorded for aoi %s", e.ID, e.AOI)
}

// Entry of the inventory
type Entry struct {
	AOI      string    `json:"aoi"`
	Recorded time.Time `json:"recorded"`
}

// File is an inventory stored as a json file (local, gs://, s3://), indexed by product id:
//
//	{"<uuid>": {"aoi": "<aoi>", "recorded": "<date>"}, ...}
type File struct {
	URI string
	mu  sync.Mutex
}

// NewFile returns an inventory stored in the file
func NewFile(uri string) *File {
	return &File{URI: uri}
}

func (f *File) load(ctx context.Context) (map[string]Entry, error) {
	data, err := service.ReadURI(ctx, f.URI)
	if err != nil {
		if service.IsNotFound(err) {
			log.Logger(ctx).Sugar().Debugf("inventory %s not found: new inventory", f.URI)
			return map[string]Entry{}, nil
		}
		return nil, fmt.Errorf("load.%w", err)
	}
	entries := map[string]Entry{}
	if len(data) == 0 {
		return entries, nil
	}
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("load.Unmarshal[%s]: %w", f.URI, err)
	}
	return entries, nil
}

// Retained implements Inventory
// aoi = "" returns all the products of the inventory
func (f *File) Retained(ctx context.Context, aoi string) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	entries, err := f.load(ctx)
	if err != nil {
		return nil, fmt.Errorf("Retained.%w", err)
	}
	ids := []string{}
	for id, e := range entries {
		if aoi == "" || e.AOI == aoi {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids, nil
}

// Record implements Inventory
// Raise ErrAlreadyExists if a product is already recorded for another aoi. Nothing is recorded in that case.
func (f *File) Record(ctx context.Context, aoi string, ids ...string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	entries, err := f.load(ctx)
	if err != nil {
		return fmt.Errorf("Record.%w", err)
	}
	now := time.Now().UTC()
	for _, id := range ids {
		if e, ok := entries[id]; ok {
			if e.AOI != aoi {
				return ErrAlreadyExists{AOI: e.AOI, ID: id}
			}
			continue
		}
		entries[id] = Entry{AOI: aoi, Recorded: now}
	}
	data, err := json.Marshal(entries)
	if err != nil {
		return fmt.Errorf("Record.Marshal: %w", err)
	}
	if err := service.WriteURI(ctx, f.URI, data); err != nil {
		return fmt.Errorf("Record.%w", err)
	}
	return nil
}
