package model

import "time"

// Service identifies a metered utility.
type Service string

const (
	ServiceElectricity Service = "ELECTRICITY"
	ServiceWater       Service = "WATER"
)

// ServicePrice is one tariff row for a service. Rates are time-ranged:
// a row is active at t when EffectiveFrom <= t and (EffectiveTo is null or
// t < EffectiveTo). Administration of rates happens outside the billing core;
// billing only reads them.
type ServicePrice struct {
	ID            int64      `gorm:"primaryKey" json:"id"`
	ServiceName   Service    `gorm:"size:32;not null;index" json:"service_name"`
	UnitPrice     int64      `gorm:"not null" json:"unit_price"`
	EffectiveFrom time.Time  `gorm:"not null" json:"effective_from"`
	EffectiveTo   *time.Time `json:"effective_to"`
	CreatedAt     time.Time  `json:"-"`
}
