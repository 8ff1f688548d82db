package mysql

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"otherly/backend/go/internal/config"
	"otherly/backend/go/internal/models"

	"gorm.io/driver/mysql"
	"gorm.io/gorm"
)

var (
	dbInstance *gorm.DB
	once       sync.Once
	initErr    error
)

// GetDB returns the process-wide GORM handle and migrates the settings table.
func GetDB(cfg *config.MySQLConfig) (*gorm.DB, error) {
	once.Do(func() {
		dsn := fmt.Sprintf("%s:%s@tcp(%s)/%s?charset=utf8mb4&parseTime=True&loc=UTC",
			cfg.Username,
			cfg.Password,
			cfg.Address,
			cfg.Database,
		)

		db, err := gorm.Open(mysql.Open(dsn), &gorm.Config{})
		if err != nil {
			initErr = fmt.Errorf("connect to MySQL: %w", err)
			return
		}

		sqlDB, err := db.DB()
		if err != nil {
			initErr = fmt.Errorf("get sql.DB: %w", err)
			return
		}
		if cfg.MaxOpenConns > 0 {
			sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
		}
		if cfg.MaxIdleConns > 0 {
			sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
		}
		sqlDB.SetConnMaxLifetime(time.Duration(cfg.ConnMaxLifetime) * time.Second)

		if err := db.AutoMigrate(&models.ProjectSettings{}); err != nil {
			initErr = fmt.Errorf("migrate settings table: %w", err)
			return
		}

		log.Println("connected to MySQL")
		dbInstance = db
	})

	return dbInstance, initErr
}

// Close closes the underlying connection pool.
func Close() error {
	if dbInstance != nil {
		sqlDB, err := dbInstance.DB()
		if err != nil {
			return fmt.Errorf("get sql.DB: %w", err)
		}
		return sqlDB.Close()
	}
	return nil
}

// HealthCheck pings the database.
func HealthCheck(ctx context.Context) error {
	if dbInstance == nil {
		return fmt.Errorf("MySQL connection is not initialized")
	}
	sqlDB, err := dbInstance.DB()
	if err != nil {
		return fmt.Errorf("get sql.DB for health check: %w", err)
	}
	return sqlDB.PingContext(ctx)
}
