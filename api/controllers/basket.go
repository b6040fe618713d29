package controllers

import (
	"net/http"

	"github.com/ovasilenko/chatmarket-backend/api/responses"
	"github.com/ovasilenko/chatmarket-backend/api/validators"
	basketsvc "github.com/ovasilenko/chatmarket-backend/internal/basket"
	pkgerrors "github.com/ovasilenko/chatmarket-backend/pkg/errors"
	"github.com/ovasilenko/chatmarket-backend/pkg/logger"
)

// BasketGet returns the basket with totals; `?code=` re-applies a discount.
func BasketGet(svc *basketsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "basket service unavailable"))
			return
		}

		buyerID, err := validators.BuyerIDParam(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		code := validators.SanitizeString(r.URL.Query().Get("code"), 64)
		view, err := svc.Get(r.Context(), buyerID, code)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, view)
	}
}

type addBasketEntryRequest struct {
	Username   string `json:"username" validate:"max=64"`
	Category   string `json:"category" validate:"required,max=64"`
	Variant    string `json:"variant" validate:"required,max=64"`
	PriceCents int64  `json:"priceCents" validate:"required,gt=0"`
}

// BasketAdd reserves one unit of the listing and adds it to the basket.
func BasketAdd(svc *basketsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "basket service unavailable"))
			return
		}

		buyerID, err := validators.BuyerIDParam(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var payload addBasketEntryRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		entry, err := svc.Add(r.Context(), basketsvc.AddInput{
			BuyerID:    buyerID,
			Username:   validators.SanitizeString(payload.Username, 64),
			Category:   payload.Category,
			Variant:    payload.Variant,
			PriceCents: payload.PriceCents,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, entry)
	}
}

// BasketRemove drops one entry and releases its reservation.
func BasketRemove(svc *basketsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "basket service unavailable"))
			return
		}

		buyerID, err := validators.BuyerIDParam(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		entryID, err := validators.UUIDParam(r, "entryID")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		if err := svc.Remove(r.Context(), buyerID, entryID); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, nil)
	}
}

// BasketClear empties the basket, releasing every reservation.
func BasketClear(svc *basketsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "basket service unavailable"))
			return
		}

		buyerID, err := validators.BuyerIDParam(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		released, err := svc.Clear(r.Context(), buyerID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]int{"released": released})
	}
}
