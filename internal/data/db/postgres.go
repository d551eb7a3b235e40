package db

import (
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormLogger "gorm.io/gorm/logger"

	"github.com/yungbote/scriptrunner-backend/internal/platform/logger"
)

type Config struct {
	// PostgresDSN selects postgres; when empty a sqlite file at SQLitePath is used.
	PostgresDSN string
	SQLitePath  string
}

type Service struct {
	db     *gorm.DB
	log    *logger.Logger
	driver string
}

func NewService(logg *logger.Logger, cfg Config) (*Service, error) {
	serviceLog := logg.With("service", "DatabaseService")

	gormLog := gormLogger.New(
		log.New(os.Stdout, "\r\n", log.LstdFlags),
		gormLogger.Config{
			SlowThreshold:             1 * time.Second,
			LogLevel:                  gormLogger.Warn,
			IgnoreRecordNotFoundError: true,
			Colorful:                  false,
		},
	)
	gcfg := &gorm.Config{
		DisableForeignKeyConstraintWhenMigrating: true,
		Logger:                                   gormLog,
	}

	var (
		dialector gorm.Dialector
		driver    string
	)
	if dsn := strings.TrimSpace(cfg.PostgresDSN); dsn != "" {
		dialector, driver = postgres.Open(dsn), "postgres"
	} else {
		path := strings.TrimSpace(cfg.SQLitePath)
		if path == "" {
			path = "scriptrunner.db"
		}
		dialector, driver = sqlite.Open(path), "sqlite"
	}

	db, err := gorm.Open(dialector, gcfg)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to %s: %w", driver, err)
	}
	if driver == "sqlite" {
		// sqlite allows one writer; serialise through a single connection.
		if sqlDB, err := db.DB(); err == nil {
			sqlDB.SetMaxOpenConns(1)
		}
	}
	serviceLog.Info("Database connected", "driver", driver, "dsn", cfg.PostgresDSN)
	return &Service{db: db, log: serviceLog, driver: driver}, nil
}

func (s *Service) DB() *gorm.DB { return s.db }

func (s *Service) Driver() string { return s.driver }

func (s *Service) AutoMigrateAll() error { return AutoMigrateAll(s.db) }

func (s *Service) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
