package controllers

import (
	"net/http"

	"github.com/ovasilenko/chatmarket-backend/api/responses"
	"github.com/ovasilenko/chatmarket-backend/api/validators"
	"github.com/ovasilenko/chatmarket-backend/internal/payments"
	pkgerrors "github.com/ovasilenko/chatmarket-backend/pkg/errors"
	"github.com/ovasilenko/chatmarket-backend/pkg/logger"
)

type checkoutRequest struct {
	Asset        string `json:"asset" validate:"required,max=16"`
	DiscountCode string `json:"discountCode" validate:"max=64"`
}

// Checkout opens a payment intent for the buyer's current basket.
func Checkout(broker *payments.Broker, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if broker == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "payment broker unavailable"))
			return
		}

		buyerID, err := validators.BuyerIDParam(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var payload checkoutRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		result, err := broker.OpenCheckout(r.Context(), buyerID, payload.Asset,
			validators.SanitizeString(payload.DiscountCode, 64))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, result)
	}
}

type topUpRequest struct {
	AmountCents int64  `json:"amountCents" validate:"required,gt=0"`
	Asset       string `json:"asset" validate:"required,max=16"`
}

// TopUp opens a payment intent that credits the buyer's wallet.
func TopUp(broker *payments.Broker, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if broker == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "payment broker unavailable"))
			return
		}

		buyerID, err := validators.BuyerIDParam(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var payload topUpRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		result, err := broker.OpenTopUp(r.Context(), buyerID, payload.AmountCents, payload.Asset)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, result)
	}
}
