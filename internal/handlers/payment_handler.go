package handlers

import (
	"net/http"

	"github.com/pocketbase/pocketbase"
	"github.com/pocketbase/pocketbase/apis"
	"github.com/pocketbase/pocketbase/core"

	"ticket-marketplace/internal/services"
)

type PaymentHandler struct {
	app      *pocketbase.PocketBase
	payments *services.PaymentService
}

func NewPaymentHandler(app *pocketbase.PocketBase, payments *services.PaymentService) *PaymentHandler {
	return &PaymentHandler{
		app:      app,
		payments: payments,
	}
}

// CreateCheckoutSession - start payment for an accepted booking
func (h *PaymentHandler) CreateCheckoutSession(e *core.RequestEvent) error {
	actor, err := requireActor(e)
	if err != nil {
		return err
	}

	var req struct {
		BookingID string `json:"booking_id"`
	}
	if err := e.BindBody(&req); err != nil {
		return apis.NewBadRequestError("Invalid request", err)
	}
	if req.BookingID == "" {
		return apis.NewBadRequestError("booking_id is required", nil)
	}

	session, err := h.payments.CreateCheckoutSession(e.Request.Context(), actor, req.BookingID)
	if err != nil {
		return toAPIError(err)
	}

	return e.JSON(http.StatusOK, map[string]any{
		"session_id":   session.SessionID,
		"redirect_url": session.RedirectURL,
	})
}

// PaymentSuccess - gateway success callback; safe to deliver repeatedly
func (h *PaymentHandler) PaymentSuccess(e *core.RequestEvent) error {
	sessionID := e.Request.URL.Query().Get("session_id")

	result, err := h.payments.ApplySuccessCallback(e.Request.Context(), sessionID)
	if err != nil {
		return toAPIError(err)
	}

	return e.JSON(http.StatusOK, result)
}
