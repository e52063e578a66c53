package dbhelper

import (
	"log"

	"stylemorphapi/models"

	"gorm.io/gorm"
)

func SetupCleaner(db *gorm.DB) func() {
	return func() {
		db.Session(&gorm.Session{AllowGlobalUpdate: true}).Delete(&models.TryOnOutcomeRecord{})
		db.Session(&gorm.Session{AllowGlobalUpdate: true}).Delete(&models.TryOnBatch{})
	}
}

func Migrate(db *gorm.DB, model interface{}) error {
	err := db.AutoMigrate(model)
	if err != nil {
		log.Printf("Error while migrating %T: %v", model, err)
	}
	return err
}
