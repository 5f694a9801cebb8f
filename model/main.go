package model

import (
	"strings"
	"time"

	"github.com/Laisky/errors/v2"
	"github.com/Laisky/zap"
	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/NodeNestor/CodeGate/common/config"
	"github.com/NodeNestor/CodeGate/common/logger"
)

// DB is the shared database handle, set by InitDB.
var DB *gorm.DB

func openDB() (*gorm.DB, error) {
	dsn := config.SQLDSN
	cfg := &gorm.Config{
		Logger:      gormlogger.Default.LogMode(gormlogger.Silent),
		PrepareStmt: true,
	}

	switch {
	case dsn == "":
		logger.Logger.Info("using sqlite", zap.String("path", config.SQLitePath))
		return gorm.Open(sqlite.Open(config.SQLitePath+"?_busy_timeout=5000"), cfg)
	case strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://"):
		logger.Logger.Info("using postgres")
		return gorm.Open(postgres.New(postgres.Config{DSN: dsn, PreferSimpleProtocol: true}), cfg)
	default:
		logger.Logger.Info("using mysql")
		return gorm.Open(mysql.Open(dsn), cfg)
	}
}

// InitDB opens the record store and migrates the schema.
func InitDB() error {
	db, err := openDB()
	if err != nil {
		return errors.Wrap(err, "open database")
	}
	DB = db

	sqlDB, err := db.DB()
	if err != nil {
		return errors.Wrap(err, "get sql.DB")
	}
	sqlDB.SetMaxIdleConns(10)
	sqlDB.SetMaxOpenConns(100)
	sqlDB.SetConnMaxLifetime(time.Hour)

	if err := migrate(); err != nil {
		return errors.Wrap(err, "migrate database")
	}
	return nil
}

func migrate() error {
	return DB.AutoMigrate(
		&Account{},
		&RouteConfig{},
		&TierAssignment{},
		&Tenant{},
		&Setting{},
		&UsageLog{},
		&RequestLog{},
		&PrivacyMapping{},
	)
}

// CloseDB closes the underlying connection pool.
func CloseDB() error {
	if DB == nil {
		return nil
	}
	sqlDB, err := DB.DB()
	if err != nil {
		return errors.Wrap(err, "get sql.DB")
	}
	return errors.Wrap(sqlDB.Close(), "close database")
}
