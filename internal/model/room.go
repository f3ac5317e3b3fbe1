package model

import "time"

// Room represents a single dormitory room inside a building.
type Room struct {
	ID         int64     `gorm:"primaryKey" json:"id"`
	BuildingID int64     `gorm:"index;not null;uniqueIndex:ux_rooms_building_number" json:"building_id"`
	Number     string    `gorm:"size:32;not null;uniqueIndex:ux_rooms_building_number" json:"number"`
	Floor      int       `json:"floor"`
	Capacity   int       `json:"capacity"`
	CreatedAt  time.Time `json:"-"`
	UpdatedAt  time.Time `json:"-"`

	// Associations
	Building Building `gorm:"constraint:OnDelete:CASCADE" json:"-"`
}
