package dbhelper

import (
	"fmt"
	"os"
	"time"

	"stylemorphapi/models"
	"stylemorphapi/services"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func SetupDB() (*gorm.DB, error) {
	db, err := gorm.Open(postgres.Open(
		fmt.Sprintf(
			"postgres://%s:%s@%s:%s/%s",
			services.GetEnv("DB_USERNAME", ""),
			services.GetEnv("DB_PASSWORD", ""),
			services.GetEnv("DB_HOST", ""),
			services.GetEnv("DB_PORT", "5432"),
			services.GetEnv("DB_NAME", ""),
		),
	), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return nil, err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxIdleConns(10)
	sqlDB.SetMaxOpenConns(50)
	sqlDB.SetConnMaxLifetime(time.Minute * 5)

	if err := Migrate(db, &models.TryOnBatch{}); err != nil {
		return nil, err
	}
	if err := Migrate(db, &models.TryOnOutcomeRecord{}); err != nil {
		return nil, err
	}
	return db, nil
}

// SetupRecorder returns a batch recorder when a database is configured and nil otherwise.
func SetupRecorder() services.BatchRecorder {
	if services.GetEnv("DB_HOST", "") == "" {
		fmt.Println("[DB] DB_HOST not set, batch audit disabled")
		return nil
	}
	db, err := SetupDB()
	if err != nil {
		fmt.Println("[DB] Failed to connect, batch audit disabled:", err)
		return nil
	}
	return &services.GormBatchRecorder{DB: db}
}

func SetupTestDB() (*gorm.DB, error) {
	os.Setenv("DB_USERNAME", "stylemorph")
	os.Setenv("DB_PASSWORD", "stylemorph")
	os.Setenv("DB_HOST", "localhost")
	os.Setenv("DB_NAME", "stylemorph")
	os.Setenv("DB_PORT", "5432")
	return SetupDB()
}
