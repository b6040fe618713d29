package models

import (
	"time"

	"github.com/google/uuid"
)

// Category is a product grouping managed by the admin collaborator.
type Category struct {
	ID        uuid.UUID `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	Name      string    `gorm:"column:name;not null;uniqueIndex:ux_categories_name"`
	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime"`
}

// Location is a city/district pair products are listed under.
type Location struct {
	ID        uuid.UUID `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	City      string    `gorm:"column:city;not null;uniqueIndex:ux_locations_city_district"`
	District  string    `gorm:"column:district;not null;uniqueIndex:ux_locations_city_district"`
	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime"`
}
