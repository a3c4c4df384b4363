package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v5"

	"ticket-marketplace/internal/services"
	"ticket-marketplace/internal/services/paygate"
	"ticket-marketplace/internal/status"
)

// WebhookHandler receives server-to-server settlement notifications from
// the payment gateway on the sidecar server. Deliveries are signed with
// the shared HMAC key and carry the webhook secret; both must check out
// before the payload is trusted.
type WebhookHandler struct {
	payments   *services.PaymentService
	hmacKey    string
	secretHash string
}

func NewWebhookHandler(payments *services.PaymentService, hmacKey, webhookSecret string) (*WebhookHandler, error) {
	secretHash, err := paygate.HashWebhookSecret(webhookSecret)
	if err != nil {
		return nil, err
	}

	return &WebhookHandler{
		payments:   payments,
		hmacKey:    hmacKey,
		secretHash: secretHash,
	}, nil
}

type webhookPayload struct {
	SessionID string `json:"sessionId"`
	TxnRef    string `json:"txnRef"`
}

// PaymentSettled - POST /hooks/paygate
func (h *WebhookHandler) PaymentSettled(c echo.Context) error {
	secret := c.Request().Header.Get("X-Webhook-Secret")
	if !paygate.CompareWebhookSecret(h.secretHash, secret) {
		return c.JSON(http.StatusUnauthorized, map[string]string{
			"error": "invalid webhook secret",
		})
	}

	body, err := io.ReadAll(c.Request().Body)
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{
			"error": "unreadable body",
		})
	}

	signature := c.Request().Header.Get("SignedHash")
	if !paygate.VerifyHMAC(body, h.hmacKey, signature) {
		slog.Warn("webhook signature mismatch", "remote", c.RealIP())
		return c.JSON(http.StatusUnauthorized, map[string]string{
			"error": "invalid signature",
		})
	}

	var payload webhookPayload
	if err := json.Unmarshal(body, &payload); err != nil || payload.SessionID == "" {
		return c.JSON(http.StatusBadRequest, map[string]string{
			"error": "sessionId is required",
		})
	}

	result, err := h.payments.ApplySuccessCallback(c.Request().Context(), payload.SessionID)
	if err != nil {
		switch {
		case errors.Is(err, status.ErrUnknownSession):
			return c.JSON(http.StatusNotFound, map[string]string{"error": err.Error()})
		case errors.Is(err, status.ErrStaleBooking):
			return c.JSON(http.StatusConflict, result)
		default:
			slog.Error("webhook callback failed", "session", payload.SessionID, "error", err)
			return c.JSON(http.StatusInternalServerError, map[string]string{"error": "callback failed"})
		}
	}

	return c.JSON(http.StatusOK, result)
}
