package handlers

import (
	"net/http"
	"strconv"

	"github.com/pocketbase/pocketbase"
	"github.com/pocketbase/pocketbase/apis"
	"github.com/pocketbase/pocketbase/core"

	"ticket-marketplace/internal/services"
	"ticket-marketplace/models"
)

type TicketHandler struct {
	app     *pocketbase.PocketBase
	tickets *services.TicketService
}

func NewTicketHandler(app *pocketbase.PocketBase, tickets *services.TicketService) *TicketHandler {
	return &TicketHandler{
		app:     app,
		tickets: tickets,
	}
}

// ListPublic - publicly discoverable tickets (approved, vendor not fraud)
func (h *TicketHandler) ListPublic(e *core.RequestEvent) error {
	q := e.Request.URL.Query()

	limit, _ := strconv.Atoi(q.Get("limit"))
	offset, _ := strconv.Atoi(q.Get("offset"))

	filter := &services.ListFilter{
		From:           q.Get("from"),
		To:             q.Get("to"),
		TransportType:  q.Get("transport_type"),
		AdvertisedOnly: q.Get("advertised") == "true",
		Limit:          limit,
		Offset:         offset,
	}

	tickets, err := h.tickets.ListPublic(e.Request.Context(), filter)
	if err != nil {
		return toAPIError(err)
	}

	return e.JSON(http.StatusOK, tickets)
}

// Submit - vendor submits a new ticket, created pending verification
func (h *TicketHandler) Submit(e *core.RequestEvent) error {
	actor, err := requireActor(e)
	if err != nil {
		return err
	}

	var fields services.TicketFields
	if err := e.BindBody(&fields); err != nil {
		return apis.NewBadRequestError("Invalid request", err)
	}

	ticket, err := h.tickets.Submit(e.Request.Context(), actor, &fields)
	if err != nil {
		return toAPIError(err)
	}

	return e.JSON(http.StatusOK, ticket)
}

// SetVerification - admin moves a ticket through verification
func (h *TicketHandler) SetVerification(e *core.RequestEvent) error {
	actor, err := requireActor(e)
	if err != nil {
		return err
	}

	ticketID := e.Request.PathValue("id")

	var req struct {
		Status string `json:"status"`
	}
	if err := e.BindBody(&req); err != nil {
		return apis.NewBadRequestError("Invalid request", err)
	}

	ticket, err := h.tickets.SetVerification(e.Request.Context(), actor, ticketID, models.VerificationStatus(req.Status))
	if err != nil {
		return toAPIError(err)
	}

	return e.JSON(http.StatusOK, ticket)
}

// SetAdvertised - owning vendor or admin toggles the advertisement flag
func (h *TicketHandler) SetAdvertised(e *core.RequestEvent) error {
	actor, err := requireActor(e)
	if err != nil {
		return err
	}

	ticketID := e.Request.PathValue("id")

	var req struct {
		Advertised bool `json:"advertised"`
	}
	if err := e.BindBody(&req); err != nil {
		return apis.NewBadRequestError("Invalid request", err)
	}

	ticket, err := h.tickets.SetAdvertised(e.Request.Context(), actor, ticketID, req.Advertised)
	if err != nil {
		return toAPIError(err)
	}

	return e.JSON(http.StatusOK, ticket)
}
