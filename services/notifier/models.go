package notifier

import "gorm.io/gorm"

// Subscription is one (address, genre) pair. The same address may
// follow any number of genres.
type Subscription struct {
	ID    int32  `gorm:"column:subscription_id;primaryKey"`
	Email string `gorm:"column:email;size:256;uniqueIndex:idx_email_genre;not null"`
	Genre string `gorm:"column:genre;size:64;uniqueIndex:idx_email_genre;not null"`
}

func (Subscription) TableName() string { return "subscription" }

// Migrate creates the notifier's own table. The catalog schema is
// migrated separately.
func Migrate(conn *gorm.DB) error {
	return conn.AutoMigrate(&Subscription{})
}
