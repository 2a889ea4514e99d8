package inventory

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestFile(t *testing.T) {
	ctx := context.Background()
	uri := filepath.Join(t.TempDir(), "inventory", "product_inventory.json")
	inv := NewFile(uri)

	ids, err := inv.Retained(ctx, "aoi1")
	if err != nil {
		t.Fatal(err)
	}
	if len(ids) != 0 {
		t.Errorf("expecting empty inventory, got %v", ids)
	}

	if err := inv.Record(ctx, "aoi1", "uuid-2", "uuid-1"); err != nil {
		t.Fatal(err)
	}
	if err := inv.Record(ctx, "aoi2", "uuid-3"); err != nil {
		t.Fatal(err)
	}
	// Recording twice is not an error
	if err := inv.Record(ctx, "aoi1", "uuid-1"); err != nil {
		t.Fatal(err)
	}

	var errExists ErrAlreadyExists
	if err := inv.Record(ctx, "aoi2", "uuid-4", "uuid-1"); !errors.As(err, &errExists) || errExists.ID != "uuid-1" {
		t.Errorf("expecting ErrAlreadyExists, got %v", err)
	}

	// Reload from file
	inv = NewFile(uri)
	if ids, err = inv.Retained(ctx, "aoi1"); err != nil {
		t.Fatal(err)
	}
	if strings.Join(ids, ",") != "uuid-1,uuid-2" {
		t.Errorf("unexpected retained products %v", ids)
	}
	if ids, err = inv.Retained(ctx, ""); err != nil {
		t.Fatal(err)
	}
	if strings.Join(ids, ",") != "uuid-1,uuid-2,uuid-3" {
		t.Errorf("unexpected retained products %v", ids)
	}

	if err := os.WriteFile(uri, []byte("{"), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := inv.Retained(ctx, "aoi1"); err == nil {
		t.Error("expecting error on malformed inventory")
	}
}
