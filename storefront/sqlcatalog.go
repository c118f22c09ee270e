package storefront

import (
	"context"
	"database/sql"
	"fmt"
)

// Schema creates the tables SQLCatalog reads. Listings are denormalised per
// order cycle and distributor; whatever publishes the shopfront owns them.
var Schema = []string{
	`CREATE TABLE IF NOT EXISTS taxons (
		id   BIGINT PRIMARY KEY,
		name TEXT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS properties (
		id           BIGINT PRIMARY KEY,
		presentation TEXT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS shopfront_taxons (
		order_cycle_id BIGINT NOT NULL,
		distributor_id BIGINT NOT NULL,
		taxon_id       BIGINT NOT NULL REFERENCES taxons (id),
		PRIMARY KEY (order_cycle_id, distributor_id, taxon_id)
	)`,
	`CREATE TABLE IF NOT EXISTS shopfront_properties (
		order_cycle_id BIGINT NOT NULL,
		distributor_id BIGINT NOT NULL,
		property_id    BIGINT NOT NULL REFERENCES properties (id),
		PRIMARY KEY (order_cycle_id, distributor_id, property_id)
	)`,
}

const (
	taxonsQuery = `SELECT t.id, t.name
		FROM taxons t
		JOIN shopfront_taxons s ON s.taxon_id = t.id
		WHERE s.order_cycle_id = $1 AND s.distributor_id = $2
		ORDER BY t.name, t.id`

	propertiesQuery = `SELECT p.id, p.presentation
		FROM properties p
		JOIN shopfront_properties s ON s.property_id = p.id
		WHERE s.order_cycle_id = $1 AND s.distributor_id = $2
		ORDER BY p.presentation, p.id`
)

// SQLCatalog reads listings from a relational database. Queries use $N
// placeholders, which both postgres and sqlite accept.
type SQLCatalog struct {
	db *sql.DB
}

// NewSQLCatalog wraps db. The caller owns db.
func NewSQLCatalog(db *sql.DB) *SQLCatalog {
	return &SQLCatalog{db: db}
}

// Migrate applies Schema.
func (c *SQLCatalog) Migrate(ctx context.Context) error {
	for _, stmt := range Schema {
		if _, err := c.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("storefront: migrate: %w", err)
		}
	}
	return nil
}

// Ping checks the database connection.
func (c *SQLCatalog) Ping(ctx context.Context) error {
	return c.db.PingContext(ctx)
}

// Taxons returns the taxons listed for a distributor, ordered by name.
func (c *SQLCatalog) Taxons(ctx context.Context, orderCycleID, distributorID int64) ([]Taxon, error) {
	rows, err := c.db.QueryContext(ctx, taxonsQuery, orderCycleID, distributorID)
	if err != nil {
		return nil, fmt.Errorf("storefront: query taxons: %w", err)
	}
	defer rows.Close()

	out := []Taxon{}
	for rows.Next() {
		var t Taxon
		if err := rows.Scan(&t.ID, &t.Name); err != nil {
			return nil, fmt.Errorf("storefront: scan taxon: %w", err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// Properties returns the properties listed for a distributor, ordered by
// presentation.
func (c *SQLCatalog) Properties(ctx context.Context, orderCycleID, distributorID int64) ([]Property, error) {
	rows, err := c.db.QueryContext(ctx, propertiesQuery, orderCycleID, distributorID)
	if err != nil {
		return nil, fmt.Errorf("storefront: query properties: %w", err)
	}
	defer rows.Close()

	out := []Property{}
	for rows.Next() {
		var p Property
		if err := rows.Scan(&p.ID, &p.Presentation); err != nil {
			return nil, fmt.Errorf("storefront: scan property: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

var (
	_ Catalog = (*MemoryCatalog)(nil)
	_ Catalog = (*SQLCatalog)(nil)
)
