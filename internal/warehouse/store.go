// Package warehouse reads parsed document content from the SQL warehouse.
//
// Documents are parsed out of band into a content table with one row per
// document (path, content). The store answers lookups by document path and
// is the slow parse step of extraction jobs.
package warehouse

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/JonMunkholm/docredact/internal/config"
	"github.com/JonMunkholm/docredact/internal/core"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Limits for List.
const (
	DefaultListLimit = 100
	MaxListLimit     = 1000
)

// volumePrefix marks volume paths that the content table stores in dbfs form.
const volumePrefix = "/Volumes/"

// Document is one parsed document row.
type Document struct {
	Path    string `json:"path"`
	Content string `json:"content"`
}

// querier is the subset of *pgxpool.Pool the store queries through.
type querier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

// Store looks up parsed content in the warehouse content table.
type Store struct {
	pool  *pgxpool.Pool
	db    querier
	table string
}

// Connect opens a pool from cfg, verifies it and returns a store over the
// configured content table.
func Connect(ctx context.Context, cfg config.WarehouseConfig) (*Store, error) {
	poolConfig, err := pgxpool.ParseConfig(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("parse warehouse URL: %w", err)
	}
	poolConfig.MaxConns = int32(cfg.MaxConns)
	poolConfig.MinConns = int32(cfg.MinConns)
	poolConfig.MaxConnLifetime = cfg.MaxConnLifetime
	poolConfig.MaxConnIdleTime = cfg.MaxConnIdleTime

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("connect to warehouse: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping warehouse: %w", err)
	}

	s, err := New(pool, cfg.ContentTable)
	if err != nil {
		pool.Close()
		return nil, err
	}
	return s, nil
}

// New returns a store over table using an existing pool.
func New(pool *pgxpool.Pool, table string) (*Store, error) {
	s, err := newStore(pool, table)
	if err != nil {
		return nil, err
	}
	s.pool = pool
	return s, nil
}

func newStore(db querier, table string) (*Store, error) {
	if !config.ValidTableName(table) {
		return nil, core.NewValidationError("table", fmt.Errorf("invalid table name %q", table))
	}
	return &Store{db: db, table: table}, nil
}

// Table returns the content table name.
func (s *Store) Table() string {
	return s.table
}

// StoragePath converts a document path to the form stored in the path
// column: volume paths carry a dbfs: scheme, everything else is unchanged.
func StoragePath(documentPath string) string {
	if strings.HasPrefix(documentPath, volumePrefix) {
		return "dbfs:" + documentPath
	}
	return documentPath
}

// Parse returns the parsed content of the document at documentID, which is
// its path. A missing row is a NotFoundError.
func (s *Store) Parse(ctx context.Context, documentID string) (string, error) {
	path := StoragePath(documentID)
	query := "SELECT content FROM " + s.table + " WHERE path = $1 LIMIT 1"

	var text *string
	if err := s.db.QueryRow(ctx, query, path).Scan(&text); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", &core.NotFoundError{Kind: "document", Key: documentID}
		}
		return "", fmt.Errorf("query %s: %w", s.table, err)
	}
	if text == nil {
		return "", nil
	}
	return *text, nil
}

// List returns parsed documents, restricted to paths when any are given.
// limit is clamped to [1, MaxListLimit]; zero means DefaultListLimit.
func (s *Store) List(ctx context.Context, paths []string, limit int) ([]Document, error) {
	limit = clampLimit(limit)

	var (
		rows pgx.Rows
		err  error
	)
	if len(paths) == 0 {
		rows, err = s.db.Query(ctx,
			"SELECT path, COALESCE(content, '') FROM "+s.table+" ORDER BY path LIMIT $1", limit)
	} else {
		stored := make([]string, len(paths))
		for i, p := range paths {
			stored[i] = StoragePath(p)
		}
		rows, err = s.db.Query(ctx,
			"SELECT path, COALESCE(content, '') FROM "+s.table+" WHERE path = ANY($1) ORDER BY path LIMIT $2",
			stored, limit)
	}
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", s.table, err)
	}

	docs, err := pgx.CollectRows(rows, pgx.RowToStructByPos[Document])
	if err != nil {
		return nil, fmt.Errorf("scan %s: %w", s.table, err)
	}
	return docs, nil
}

func clampLimit(limit int) int {
	switch {
	case limit == 0:
		return DefaultListLimit
	case limit < 1:
		return 1
	case limit > MaxListLimit:
		return MaxListLimit
	}
	return limit
}

// Ping checks the warehouse connection.
func (s *Store) Ping(ctx context.Context) error {
	if s.pool == nil {
		return nil
	}
	return s.pool.Ping(ctx)
}

// Close releases the pool.
func (s *Store) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}
