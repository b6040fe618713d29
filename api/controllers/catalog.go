package controllers

import (
	"net/http"

	"github.com/ovasilenko/chatmarket-backend/api/responses"
	"github.com/ovasilenko/chatmarket-backend/api/validators"
	"github.com/ovasilenko/chatmarket-backend/internal/catalog"
	pkgerrors "github.com/ovasilenko/chatmarket-backend/pkg/errors"
	"github.com/ovasilenko/chatmarket-backend/pkg/logger"
)

// CatalogCategories lists product categories.
func CatalogCategories(cache *catalog.Cache, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if cache == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "catalog unavailable"))
			return
		}
		rows, err := cache.Categories(r.Context())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, rows)
	}
}

// CatalogLocations lists pickup locations.
func CatalogLocations(cache *catalog.Cache, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if cache == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "catalog unavailable"))
			return
		}
		rows, err := cache.Locations(r.Context())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, rows)
	}
}

// CatalogListings lists purchasable stock; `?category=` filters.
func CatalogListings(cache *catalog.Cache, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if cache == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "catalog unavailable"))
			return
		}
		category := validators.SanitizeString(r.URL.Query().Get("category"), 64)
		rows, err := cache.Listings(r.Context(), category)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, rows)
	}
}
