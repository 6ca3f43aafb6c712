package database

import (
	"context"
	"database/sql"
	"fmt"
	"regexp"
	"time"

	_ "github.com/lib/pq"

	"github.com/joao-fontenele/medstore/internal/telemetry"
)

var searchPathPattern = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_,\s]*$`)

type Options struct {
	SearchPath      string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// Open opens an instrumented Postgres pool and verifies it with a ping.
func Open(ctx context.Context, dsn string, opts Options) (*sql.DB, error) {
	if opts.SearchPath != "" && !searchPathPattern.MatchString(opts.SearchPath) {
		return nil, fmt.Errorf("invalid search_path %q", opts.SearchPath)
	}
	if opts.SearchPath != "" {
		var err error
		dsn, err = withSearchPath(dsn, opts.SearchPath)
		if err != nil {
			return nil, err
		}
	}

	db, err := telemetry.OpenDB("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if opts.MaxOpenConns > 0 {
		db.SetMaxOpenConns(opts.MaxOpenConns)
	}
	if opts.MaxIdleConns > 0 {
		db.SetMaxIdleConns(opts.MaxIdleConns)
	}
	if opts.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(opts.ConnMaxLifetime)
	}

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	return db, nil
}
