package model

import "time"

// MonthlyUsage records one room's meter readings for one billing period.
// The unique index enforces at most one row per (room, year, month);
// re-recording a period is an update of the same row, never a second row.
type MonthlyUsage struct {
	ID     int64 `gorm:"primaryKey" json:"id"`
	RoomID int64 `gorm:"not null;index;uniqueIndex:ux_monthly_usages_room_period" json:"room_id"`
	Month  int   `gorm:"not null;uniqueIndex:ux_monthly_usages_room_period" json:"month"`
	Year   int   `gorm:"not null;uniqueIndex:ux_monthly_usages_room_period" json:"year"`

	ElectricityOldIndex int64 `gorm:"not null" json:"electricity_old_index"`
	ElectricityNewIndex int64 `gorm:"not null" json:"electricity_new_index"`
	// Unit price captured at recording time, VND per kWh.
	ElectricityPrice int64 `gorm:"not null" json:"electricity_price"`

	WaterOldIndex int64 `gorm:"not null" json:"water_old_index"`
	WaterNewIndex int64 `gorm:"not null" json:"water_new_index"`
	// Unit price captured at recording time, VND per m³.
	WaterPrice int64 `gorm:"not null" json:"water_price"`

	// TotalAmount is derived from the indices and prices; integer VND.
	TotalAmount int64     `gorm:"not null" json:"total_amount"`
	CreatedAt   time.Time `gorm:"not null" json:"created_at"`
	UpdatedAt   time.Time `gorm:"not null" json:"-"`

	// Associations
	Room Room `gorm:"constraint:OnDelete:CASCADE" json:"-"`
}
