package controllers

import (
	"net/http"

	"github.com/ovasilenko/chatmarket-backend/api/responses"
	"github.com/ovasilenko/chatmarket-backend/api/validators"
	"github.com/ovasilenko/chatmarket-backend/internal/buyers"
	"github.com/ovasilenko/chatmarket-backend/internal/purchases"
	pkgerrors "github.com/ovasilenko/chatmarket-backend/pkg/errors"
	"github.com/ovasilenko/chatmarket-backend/pkg/logger"
)

// BuyerGet returns the buyer's profile and wallet balance.
func BuyerGet(repo *buyers.Repository, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if repo == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "buyer repository unavailable"))
			return
		}

		buyerID, err := validators.BuyerIDParam(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		buyer, err := repo.FindByID(r.Context(), buyerID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, buyer)
	}
}

// BuyerPurchases returns the buyer's purchase history.
func BuyerPurchases(repo *purchases.Repository, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if repo == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "purchase repository unavailable"))
			return
		}

		buyerID, err := validators.BuyerIDParam(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		limit, err := validators.ParseQueryInt(r, "limit", 50, 1, 200)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		rows, err := repo.ListByBuyer(r.Context(), buyerID, limit)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, rows)
	}
}
