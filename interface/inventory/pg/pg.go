package pg

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/airbusgeo/geocube-tilefinder/interface/inventory"
	"github.com/lib/pq"
)

/*
create table retained_product (
	aoi_id     text not null,
	product_id text not null primary key,
	recorded   timestamp with time zone not null default now()
);
create index retained_product_aoi_idx on retained_product(aoi_id);
*/

// pgInterface allows to use either a sql.DB or a sql.Tx
type pgInterface interface {
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
}

// Backend implements Inventory
type Backend struct {
	pgInterface
}

// BackendDB implements Inventory with a connection to the database
type BackendDB struct {
	*sql.DB
	Backend
}

// New creates a new inventory using Postgres
func New(ctx context.Context, dbConnection string) (*BackendDB, error) {
	db, err := sql.Open("postgres", dbConnection)
	if err != nil {
		return nil, fmt.Errorf("sql.open: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("sql.ping: %w", err)
	}
	return &BackendDB{db, Backend{pgInterface: db}}, nil
}

// Retained implements Inventory
// aoi may contain wildcards (*, ?) and the (?i) suffix for case-insensitivity. aoi = "" returns all the products.
func (b Backend) Retained(ctx context.Context, aoi string) ([]string, error) {
	var (
		rows *sql.Rows
		err  error
	)
	if aoi == "" {
		rows, err = b.QueryContext(ctx, "select product_id from retained_product ORDER BY product_id")
	} else {
		value, operator := parseLike(aoi)
		rows, err = b.QueryContext(ctx, "select product_id from retained_product where aoi_id "+operator+" $1 ORDER BY product_id", value)
	}
	if err != nil {
		return nil, fmt.Errorf("Retained.QueryContext: %w", err)
	}
	defer rows.Close()

	ids := []string{}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("Retained.Scan: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("Retained.rows.err: %w", err)
	}
	return ids, nil
}

// Record implements Inventory
// Raise ErrAlreadyExists if a product is already recorded for another aoi. Nothing is recorded in that case.
func (b BackendDB) Record(ctx context.Context, aoi string, ids ...string) error {
	tx, err := b.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("Record.BeginTx: %w", err)
	}
	defer tx.Rollback()

	if err := (Backend{pgInterface: tx}).Record(ctx, aoi, ids...); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("Record.Commit: %w", err)
	}
	return nil
}

// Record implements Inventory, without transaction
func (b Backend) Record(ctx context.Context, aoi string, ids ...string) error {
	if len(ids) == 0 {
		return nil
	}
	var conflict, conflictAOI string
	err := b.QueryRowContext(ctx, "select product_id, aoi_id from retained_product where product_id = ANY($1) and aoi_id != $2 LIMIT 1",
		pq.Array(ids), aoi).Scan(&conflict, &conflictAOI)
	switch {
	case err == nil:
		return inventory.ErrAlreadyExists{AOI: conflictAOI, ID: conflict}
	case !errors.Is(err, sql.ErrNoRows):
		return fmt.Errorf("Record.QueryRowContext: %w", err)
	}

	if _, err = b.ExecContext(ctx, "insert into retained_product(aoi_id, product_id) select $1, unnest($2::text[]) ON CONFLICT DO NOTHING",
		aoi, pq.Array(ids)); err != nil {
		return fmt.Errorf("Record.exec: %w", err)
	}
	return nil
}
