package db

import (
	"database/sql"
	"fmt"

	_ "github.com/lib/pq"

	"github.com/DmitryTakmakov/mailout-service/internal/config"
)

// Connect opens and pings a Postgres connection from the given config.
func Connect(cfg config.Config) (*sql.DB, error) {
	conn, err := sql.Open("postgres", cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	if err := conn.Ping(); err != nil {
		return nil, fmt.Errorf("ping db: %w", err)
	}
	return conn, nil
}
