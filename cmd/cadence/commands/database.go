package commands

import (
	"database/sql"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/teranos/cadence/am"
	"github.com/teranos/cadence/db"
	"github.com/teranos/cadence/errors"
	"github.com/teranos/cadence/logger"
)

// loadConfig honours the persistent --config and --db flags
func loadConfig(cmd *cobra.Command) (*am.Config, error) {
	var cfg *am.Config
	var err error
	if path, _ := cmd.Flags().GetString("config"); path != "" {
		cfg, err = am.LoadFromFile(am.ExpandPath(path))
	} else {
		cfg, err = am.Load()
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to load config")
	}
	if dbPath, _ := cmd.Flags().GetString("db"); dbPath != "" {
		cfg.Database.Path = dbPath
	}
	return cfg, nil
}

// openDatabase opens and migrates the configured database
func openDatabase(cfg *am.Config) (*sql.DB, error) {
	dbPath := cfg.GetDatabasePath()
	if err := os.MkdirAll(filepath.Dir(dbPath), am.DefaultDirPermissions); err != nil {
		return nil, errors.Wrapf(err, "failed to create database directory for %s", dbPath)
	}
	database, err := db.OpenWithMigrations(dbPath, logger.Logger)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open database at %s", dbPath)
	}
	logger.DBInfow("Database ready", "path", dbPath)
	return database, nil
}
