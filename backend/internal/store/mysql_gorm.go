package store

import (
	"gorm.io/driver/mysql"
	"gorm.io/gorm"

	"tripServer/backend/internal/entity"
)

func InitMySQL(dsn string) (*gorm.DB, error) {
	db, err := gorm.Open(mysql.Open(dsn), &gorm.Config{})
	if err != nil {
		return nil, err
	}
	if err := db.AutoMigrate(&entity.JournalEntry{}, &entity.TripMember{}); err != nil {
		return nil, err
	}
	return db, nil
}
