package entity

import "time"

// JournalEntry 行程日志条目，自动保存的对象
// EditVersion 每次成功保存严格 +1（数据库原子自增，见 store）
type JournalEntry struct {
	ID             uint64 `gorm:"primaryKey;autoIncrement"`
	TripID         uint64 `gorm:"index:idx_trip_title,unique"`
	Title          string `gorm:"type:varchar(255);index:idx_trip_title,unique"`
	Text           string `gorm:"type:mediumtext"`
	EditVersion    uint64 `gorm:"default:0"`
	LastModifiedBy string `gorm:"type:varchar(64)"`  // 空串 = 匿名条目
	Location       string `gorm:"type:varchar(255)"` // 自动保存的附加字段
	Rating         int    `gorm:"default:0"`         // 1-5，0 = 未评分
	CreatedAt      time.Time
	UpdatedAt      time.Time
}
