package main

import (
	"database/sql"
	"fmt"
	"log"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"yamdb/internal/config"
	"yamdb/internal/db"
)

var rootCmd = &cobra.Command{
	Use:   "yamdb",
	Short: "Reviews and ratings API for books, films and music",
	Long: `yamdb serves a REST API where users review titles and comment on reviews.

Configuration is read from YAMDB_* environment variables.

Examples:
  yamdb serve                                        # Run the HTTP API
  yamdb migrate                                      # Create or update the schema
  yamdb createadmin --username root --email a@b.c    # Bootstrap an administrator`,
	SilenceUsage: true,
}

func newLogger() *log.Logger {
	return log.New(os.Stdout, "yamdb: ", log.LstdFlags|log.Lshortfile)
}

// openDB loads the config, opens the database and brings its schema up to
// date.
func openDB() (config.Config, *sql.DB, error) {
	cfg, err := config.Load()
	if err != nil {
		return cfg, nil, err
	}
	if dir := filepath.Dir(cfg.DBPath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return cfg, nil, fmt.Errorf("create data dir: %w", err)
		}
	}
	conn, err := db.Open(cfg.DBPath)
	if err != nil {
		return cfg, nil, err
	}
	if err := db.Migrate(conn); err != nil {
		conn.Close()
		return cfg, nil, fmt.Errorf("migrate: %w", err)
	}
	return cfg, conn, nil
}
