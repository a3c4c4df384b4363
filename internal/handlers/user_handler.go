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

type UserHandler struct {
	app      *pocketbase.PocketBase
	identity *services.IdentityService
}

func NewUserHandler(app *pocketbase.PocketBase, identity *services.IdentityService) *UserHandler {
	return &UserHandler{
		app:      app,
		identity: identity,
	}
}

// ListUsers - admin listing of all users
func (h *UserHandler) ListUsers(e *core.RequestEvent) error {
	actor, err := requireActor(e)
	if err != nil {
		return err
	}

	limit, _ := strconv.Atoi(e.Request.URL.Query().Get("limit"))
	offset, _ := strconv.Atoi(e.Request.URL.Query().Get("offset"))

	users, err := h.identity.List(e.Request.Context(), actor, limit, offset)
	if err != nil {
		return toAPIError(err)
	}

	return e.JSON(http.StatusOK, users)
}

// ChangeRole - admin-initiated role change, never self-targeted
func (h *UserHandler) ChangeRole(e *core.RequestEvent) error {
	actor, err := requireActor(e)
	if err != nil {
		return err
	}

	targetID := e.Request.PathValue("id")

	var req struct {
		Role string `json:"role"`
	}
	if err := e.BindBody(&req); err != nil {
		return apis.NewBadRequestError("Invalid request", err)
	}

	user, err := h.identity.ChangeRole(e.Request.Context(), actor, targetID, models.Role(req.Role))
	if err != nil {
		return toAPIError(err)
	}

	return e.JSON(http.StatusOK, user)
}
