package model

import "time"

// Building represents a dormitory building.
type Building struct {
	ID        int64     `gorm:"primaryKey" json:"id"`
	Name      string    `gorm:"uniqueIndex;size:128;not null" json:"name"`
	Address   string    `gorm:"size:256" json:"address"`
	CreatedAt time.Time `gorm:"not null" json:"-"`
	UpdatedAt time.Time `gorm:"not null" json:"-"`

	// Associations
	Rooms []Room `gorm:"foreignKey:BuildingID" json:"-"`
}
