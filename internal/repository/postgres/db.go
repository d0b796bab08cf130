// Package postgres implements every repository interface against PostgreSQL
// using database/sql and lib/pq.
package postgres

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/aegisawareness/phishsim/internal/config"
	_ "github.com/lib/pq"
)

// Open connects to Postgres with the configured pool limits and verifies
// the connection.
func Open(cfg config.DatabaseConfig) (*sql.DB, error) {
	db, err := sql.Open("postgres", cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(time.Duration(cfg.ConnMaxLifetime) * time.Minute)
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return db, nil
}
