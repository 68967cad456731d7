package main

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/faciam-dev/gpdb/internal/config"
	"github.com/faciam-dev/gpdb/pkg/fielddef"
	"github.com/faciam-dev/gpdb/pkg/util"
)

var openDB = func(driver, dsn string) (*sql.DB, error) {
	return sql.Open(driver, util.OpenDSN(driver, dsn))
}

// envFlags are the connection flags shared by commands touching the database.
// Flags override the configuration file and environment.
type envFlags struct {
	Config      string
	DSN         string
	Driver      string
	TablePrefix string
}

func (f *envFlags) AddFlags(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.Config, "config", util.GetEnv("PDB_CONFIG", ""), "configuration file")
	cmd.Flags().StringVar(&f.DSN, "db", "", "database DSN")
	cmd.Flags().StringVar(&f.Driver, "driver", "", "database driver (mysql|postgres)")
	cmd.Flags().StringVar(&f.TablePrefix, "table-prefix", "", "table name prefix")
}

func (f *envFlags) load() (*config.Config, error) {
	cfg, err := config.Load(f.Config)
	if err != nil {
		return nil, err
	}
	if f.DSN != "" {
		cfg.DSN = f.DSN
		cfg.Driver = ""
	}
	if f.Driver != "" {
		cfg.Driver = f.Driver
	}
	if f.TablePrefix != "" {
		cfg.TablePrefix = f.TablePrefix
	}
	if cfg.Driver == "" && cfg.DSN != "" {
		d, err := util.DetectDriver(cfg.DSN)
		if err != nil {
			return nil, fmt.Errorf("detect driver: %w", err)
		}
		cfg.Driver = d
	}
	return cfg, nil
}

// source opens the configured database. The caller closes the returned DB.
func (f *envFlags) source() (*fielddef.SQLSource, *config.Config, error) {
	cfg, err := f.load()
	if err != nil {
		return nil, nil, err
	}
	if cfg.DSN == "" {
		return nil, nil, errors.New("--db is required")
	}
	db, err := openDB(cfg.Driver, cfg.DSN)
	if err != nil {
		return nil, nil, err
	}
	return &fielddef.SQLSource{
		DB:          db,
		Dialect:     util.DialectFromDriver(cfg.Driver),
		Driver:      cfg.Driver,
		TablePrefix: cfg.TablePrefix,
	}, cfg, nil
}
