package psql

import (
	"context"
	"database/sql"

	_ "github.com/lib/pq"
	migrate "github.com/rubenv/sql-migrate"
)

type PSQL struct {
	DBUrl        string
	Migrations   migrate.MigrationSource
	MaxOpenConns int

	DB *sql.DB
}

// Open connects to the database and applies any pending migrations
func (s *PSQL) Open(ctx context.Context) error {
	db, err := sql.Open("postgres", s.DBUrl)
	if err != nil {
		return err
	}

	if s.MaxOpenConns > 0 {
		db.SetMaxOpenConns(s.MaxOpenConns)
	}

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()

		return err
	}

	s.DB = db

	if s.Migrations != nil {
		if _, err := migrate.Exec(s.DB, "postgres", s.Migrations, migrate.Up); err != nil {
			return err
		}
	}

	return nil
}

func (s *PSQL) Close() error {
	if s.DB == nil {
		return nil
	}

	return s.DB.Close()
}
