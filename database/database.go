package database

import (
	"context"
	"database/sql"

	_ "github.com/lib/pq"
	"github.com/mager/cochlea/config"
	"go.uber.org/fx"
	"go.uber.org/zap"
	_ "modernc.org/sqlite"
)

// ProvideDatabase opens the version database with the configured driver,
// postgres in production or sqlite for local runs.
func ProvideDatabase(lc fx.Lifecycle, logger *zap.SugaredLogger, cfg config.Config) (*sql.DB, error) {
	db, err := Open(cfg.DatabaseDriver, cfg.DatabaseURL)
	if err != nil {
		logger.Errorw("Failed to open database connection", "driver", cfg.DatabaseDriver, "error", err)
		return nil, err
	}

	err = db.Ping()
	if err != nil {
		logger.Errorw("Failed to ping database", "driver", cfg.DatabaseDriver, "error", err)
		return nil, err
	}

	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			return db.Close()
		},
	})
	return db, nil
}

// Open opens a database without pinging it. An in-memory sqlite database
// is limited to one connection so every query sees the same data.
func Open(driver, url string) (*sql.DB, error) {
	if driver == "" {
		driver = "postgres"
	}
	db, err := sql.Open(driver, url)
	if err != nil {
		return nil, err
	}
	if driver == "sqlite" && (url == ":memory:" || url == "") {
		db.SetMaxOpenConns(1)
	}
	return db, nil
}

var Options = ProvideDatabase
