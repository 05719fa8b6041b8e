package psql

import (
	"context"
	"fmt"

	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"parley/parley/config"
	"parley/parley/sources/psql/models"
	"parley/parley/utils/logging"
)

type Database struct {
	DB *gorm.DB
	// Notifies is true when inserts are announced by the postgres trigger
	// rather than by the process that wrote them.
	Notifies bool
}

// DSN builds the keyword/value connection string shared by gorm and pgx.
func DSN(cfg config.Config) string {
	return fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=disable",
		cfg.DBHost,
		cfg.DBPort,
		cfg.DBUser,
		cfg.DBPassword,
		cfg.DBName,
	)
}

func NewDatabase(ctx context.Context, cfg config.Config) (*Database, error) {
	switch cfg.DBDriver {
	case "sqlite":
		return NewSQLite(ctx, cfg.SQLitePath)
	case "postgres", "":
	default:
		return nil, fmt.Errorf("unsupported DB_DRIVER %q", cfg.DBDriver)
	}

	logging.AppLogger.Info("connecting to database",
		zap.String("host", cfg.DBHost), zap.String("port", cfg.DBPort), zap.String("db", cfg.DBName))

	db, err := gorm.Open(postgres.Open(DSN(cfg)), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, err
	}
	d := &Database{DB: db, Notifies: true}
	if err := d.migrate(ctx); err != nil {
		return nil, err
	}
	if err := db.WithContext(ctx).Exec(notifyTriggerSQL).Error; err != nil {
		return nil, fmt.Errorf("failed to install notify trigger: %w", err)
	}
	return d, nil
}

// NewSQLite opens (or creates) an sqlite database; path may be any sqlite
// DSN, including shared in-memory ones.
func NewSQLite(ctx context.Context, path string) (*Database, error) {
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	// sqlite allows one writer; serialising here avoids SQLITE_BUSY under the gateway
	sqlDB.SetMaxOpenConns(1)

	d := &Database{DB: db}
	if err := d.migrate(ctx); err != nil {
		sqlDB.Close()
		return nil, err
	}
	return d, nil
}

func (db *Database) migrate(ctx context.Context) error {
	err := db.DB.WithContext(ctx).
		AutoMigrate(
			&models.User{},
			&models.Conversation{},
			&models.Message{},
			&models.RevokedToken{},
		)
	if err != nil {
		return fmt.Errorf("failed to auto-migrate: %w", err)
	}
	return nil
}

func (db *Database) Close() {
	sqlDB, err := db.DB.DB()
	if err != nil {
		return
	}
	sqlDB.Close()
}
