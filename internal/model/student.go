package model

import "time"

// Student represents a resident assigned to a room. Enrollment and contract
// management are handled elsewhere; the billing side only needs the room link
// to project invoices per student.
type Student struct {
	ID        int64     `gorm:"primaryKey" json:"id"`
	Code      string    `gorm:"uniqueIndex;size:32;not null" json:"code"`
	FullName  string    `gorm:"size:128;not null" json:"full_name"`
	RoomID    *int64    `gorm:"index" json:"room_id"`
	CreatedAt time.Time `json:"-"`
	UpdatedAt time.Time `json:"-"`

	// Associations
	Room *Room `json:"-"`
}
