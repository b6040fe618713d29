package catalog

import (
	"context"

	"gorm.io/gorm"

	"github.com/ovasilenko/chatmarket-backend/pkg/db/models"
	pkgerrors "github.com/ovasilenko/chatmarket-backend/pkg/errors"
)

// Listing is the storefront aggregation of purchasable units sharing the same
// category, variant, location and price.
type Listing struct {
	Category       string `json:"category"`
	Variant        string `json:"variant"`
	Location       string `json:"location"`
	PriceCents     int64  `json:"priceCents"`
	PurchasableQty int64  `json:"purchasableQty"`
	Name           string `json:"name"`
}

// Repository serves catalog reads.
type Repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// ListCategories returns all categories ordered by name.
func (r *Repository) ListCategories(ctx context.Context) ([]models.Category, error) {
	var rows []models.Category
	if err := r.db.WithContext(ctx).Order("name ASC").Find(&rows).Error; err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list categories")
	}
	return rows, nil
}

// ListLocations returns all locations ordered by city then district.
func (r *Repository) ListLocations(ctx context.Context) ([]models.Location, error) {
	var rows []models.Location
	if err := r.db.WithContext(ctx).Order("city ASC, district ASC").Find(&rows).Error; err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list locations")
	}
	return rows, nil
}

// ListListings aggregates purchasable stock per listing. Units fully reserved
// fall out of the result: purchasable quantity counts available minus reserved.
func (r *Repository) ListListings(ctx context.Context, category string) ([]Listing, error) {
	var rows []Listing
	q := r.db.WithContext(ctx).
		Table("product_units").
		Select(`category, variant, location, price_cents,
			SUM(available_qty - reserved_qty) AS purchasable_qty,
			MIN(name) AS name`).
		Where("available_qty > reserved_qty").
		Group("category, variant, location, price_cents").
		Order("category ASC, variant ASC, price_cents ASC")
	if category != "" {
		q = q.Where("category = ?", category)
	}
	if err := q.Scan(&rows).Error; err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list listings")
	}
	return rows, nil
}
