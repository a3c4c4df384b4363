package handlers

import (
	"net/http"

	"github.com/pocketbase/pocketbase"
	"github.com/pocketbase/pocketbase/apis"
	"github.com/pocketbase/pocketbase/core"

	"ticket-marketplace/internal/services"
	"ticket-marketplace/models"
)

type BookingHandler struct {
	app      *pocketbase.PocketBase
	bookings *services.BookingService
	revenue  *services.RevenueService
}

func NewBookingHandler(app *pocketbase.PocketBase, bookings *services.BookingService, revenue *services.RevenueService) *BookingHandler {
	return &BookingHandler{
		app:      app,
		bookings: bookings,
		revenue:  revenue,
	}
}

// Create - request a booking against an approved ticket
func (h *BookingHandler) Create(e *core.RequestEvent) error {
	actor, err := requireActor(e)
	if err != nil {
		return err
	}

	var req struct {
		TicketID string `json:"ticket_id"`
		Quantity int    `json:"quantity"`
	}
	if err := e.BindBody(&req); err != nil {
		return apis.NewBadRequestError("Invalid request", err)
	}

	booking, err := h.bookings.Create(e.Request.Context(), actor, req.TicketID, req.Quantity)
	if err != nil {
		return toAPIError(err)
	}

	return e.JSON(http.StatusOK, booking)
}

// Decide - vendor accepts or rejects a pending booking
func (h *BookingHandler) Decide(e *core.RequestEvent) error {
	actor, err := requireActor(e)
	if err != nil {
		return err
	}

	bookingID := e.Request.PathValue("id")

	var req struct {
		Decision string `json:"decision"`
	}
	if err := e.BindBody(&req); err != nil {
		return apis.NewBadRequestError("Invalid request", err)
	}

	booking, err := h.bookings.VendorDecide(e.Request.Context(), actor, bookingID, services.Decision(req.Decision))
	if err != nil {
		return toAPIError(err)
	}

	return e.JSON(http.StatusOK, booking)
}

// Cancel - best-effort cancellation while unpaid
func (h *BookingHandler) Cancel(e *core.RequestEvent) error {
	actor, err := requireActor(e)
	if err != nil {
		return err
	}

	bookingID := e.Request.PathValue("id")

	booking, err := h.bookings.Cancel(e.Request.Context(), actor, bookingID)
	if err != nil {
		return toAPIError(err)
	}

	return e.JSON(http.StatusOK, booking)
}

// History - bookings visible to the actor (own as user, own as vendor,
// everything for admins)
func (h *BookingHandler) History(e *core.RequestEvent) error {
	actor, err := requireActor(e)
	if err != nil {
		return err
	}

	filter := "user_email = {:email} || vendor_email = {:email}"
	if actor.Role == models.RoleAdmin {
		filter = "id != ''"
	}

	records, err := h.app.FindRecordsByFilter(
		"bookings",
		filter,
		"-created",
		50,
		0,
		map[string]any{"email": actor.Email},
	)
	if err != nil {
		return apis.NewBadRequestError("Failed to get bookings", err)
	}

	result := make([]*models.Booking, 0, len(records))
	for _, record := range records {
		result = append(result, services.BookingFromRecord(record))
	}

	return e.JSON(http.StatusOK, result)
}

// RevenueStatus - vendor-scoped or global revenue, recomputed from the
// booking ledger on every call
func (h *BookingHandler) RevenueStatus(e *core.RequestEvent) error {
	actor, err := requireActor(e)
	if err != nil {
		return err
	}

	vendorEmail := e.Request.URL.Query().Get("vendorEmail")

	// Vendors see their own numbers; only admins query other vendors or
	// the global aggregate.
	if actor.Role != models.RoleAdmin {
		if actor.Role != models.RoleVendor || (vendorEmail != "" && vendorEmail != actor.Email) {
			return apis.NewForbiddenError("Access denied", nil)
		}
		vendorEmail = actor.Email
	}

	record, err := h.revenue.Compute(e.Request.Context(), vendorEmail)
	if err != nil {
		return toAPIError(err)
	}

	return e.JSON(http.StatusOK, record)
}
