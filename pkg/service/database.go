package service

import (
	"fmt"
	"log/slog"

	"go.uber.org/fx"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/destekhq/support-platform/pkg/variables"
)

type database_Params struct {
	fx.In

	Logger *slog.Logger
}

func database(params database_Params) (*gorm.DB, error) {
	dsn := variables.Env(variables.DATABASE_URL_NAME, variables.DATABASE_URL_DEFAULT)

	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("unable open database %q: %w", dsn, err)
	}

	params.Logger.Info("database ready", slog.String("dsn", dsn))
	return db, nil
}

var DatabaseModule = fx.Module("database", fx.Provide(
	database,
))
