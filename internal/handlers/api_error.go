package handlers

import (
	"errors"
	"net/http"

	"github.com/pocketbase/pocketbase/apis"
	"github.com/pocketbase/pocketbase/core"

	"ticket-marketplace/internal/services"
	"ticket-marketplace/internal/status"
	"ticket-marketplace/models"
)

// toAPIError translates the service error taxonomy to HTTP responses.
// State machine rejections, inventory races and stale payments are all
// conflicts; oversell is a data-consistency failure and stays a 500.
func toAPIError(err error) error {
	switch {
	case errors.Is(err, status.ErrValidation):
		return apis.NewBadRequestError(err.Error(), err)

	case errors.Is(err, status.ErrAuthorization):
		return apis.NewForbiddenError(err.Error(), err)

	case errors.Is(err, status.ErrInvalidTransition),
		errors.Is(err, status.ErrInsufficientInventory),
		errors.Is(err, status.ErrStaleBooking):
		return apis.NewApiError(http.StatusConflict, err.Error(), err)

	case errors.Is(err, status.ErrUnknownSession):
		return apis.NewNotFoundError(err.Error(), err)

	case errors.Is(err, status.ErrOversell):
		return apis.NewApiError(http.StatusInternalServerError, err.Error(), err)

	default:
		return apis.NewInternalServerError("internal error", err)
	}
}

// requireActor resolves the authenticated actor; every authorization
// check downstream receives it explicitly.
func requireActor(e *core.RequestEvent) (*models.User, error) {
	if e.Auth == nil {
		return nil, apis.NewUnauthorizedError("Unauthorized", nil)
	}
	return services.UserFromRecord(e.Auth), nil
}
