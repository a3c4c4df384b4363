package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/pocketbase/dbx"
	"github.com/pocketbase/pocketbase/core"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"

	"ticket-marketplace/internal/services/paygate"
	"ticket-marketplace/internal/status"
	"ticket-marketplace/models"
	"ticket-marketplace/monitoring"
)

// PaymentService correlates external checkout sessions to bookings and
// applies gateway callbacks exactly once. Duplicate deliveries collapse
// into the recorded result of the first application.
type PaymentService struct {
	app      core.App
	Redis    *redis.Client
	bookings *BookingService
	gateway  *paygate.PayGate
	monitor  *monitoring.Monitor

	// callbackLockTTL bounds the per-session serialization lock.
	callbackLockTTL time.Duration
}

func NewPaymentService(app core.App, redisClient *redis.Client, bookings *BookingService, gateway *paygate.PayGate, monitor *monitoring.Monitor, callbackLockTTL time.Duration) *PaymentService {
	return &PaymentService{
		app:             app,
		Redis:           redisClient,
		bookings:        bookings,
		gateway:         gateway,
		monitor:         monitor,
		callbackLockTTL: callbackLockTTL,
	}
}

func (s *PaymentService) trackCallback(outcome string) {
	if s.monitor != nil {
		s.monitor.TrackCallback(outcome)
	}
}

// CreateCheckoutSession asks the gateway for a checkout session for an
// accepted booking and persists the session with consumed=false.
func (s *PaymentService) CreateCheckoutSession(ctx context.Context, actor *models.User, bookingID string) (*models.PaymentSession, error) {
	if actor == nil {
		return nil, fmt.Errorf("%w: unauthenticated", status.ErrAuthorization)
	}

	bookingRecord, err := s.app.FindRecordById("bookings", bookingID)
	if err != nil {
		return nil, fmt.Errorf("%w: booking %s not found", status.ErrValidation, bookingID)
	}

	if actor.Role != models.RoleAdmin && actor.Email != bookingRecord.GetString("user_email") {
		return nil, fmt.Errorf("%w: only the booking's user may start checkout", status.ErrAuthorization)
	}

	if current := models.BookingStatus(bookingRecord.GetString("status")); current != models.BookingAccepted {
		return nil, fmt.Errorf("%w: checkout requires an accepted booking, got %s", status.ErrInvalidTransition, current)
	}

	reference := bookingRecord.GetString("booking_reference")
	amount := decimal.NewFromFloat(bookingRecord.GetFloat("total_price"))

	started := time.Now()
	session, err := s.gateway.CreateSession(ctx, &paygate.SessionForm{
		OrderID:   bookingID,
		Reference: reference,
		Amount:    amount,
	})
	if s.monitor != nil {
		s.monitor.TrackGatewayRequest("create_session", time.Since(started))
	}
	if err != nil {
		return nil, fmt.Errorf("gateway session: %w", err)
	}

	collection, err := s.app.FindCollectionByNameOrId("payment_sessions")
	if err != nil {
		return nil, fmt.Errorf("payment_sessions collection: %w", err)
	}

	record := core.NewRecord(collection)
	record.Set("session_id", session.SessionID)
	record.Set("booking_id", bookingID)
	record.Set("redirect_url", session.RedirectURL)
	record.Set("consumed", false)
	record.Set("result_status", "")
	record.Set("booking_reference", reference)

	if err := s.app.SaveWithContext(ctx, record); err != nil {
		return nil, fmt.Errorf("save payment session: %w", err)
	}

	if err := s.bookings.AttachSession(ctx, bookingID, session.SessionID); err != nil {
		return nil, err
	}

	slog.Info("checkout session created",
		"booking", bookingID, "reference", reference, "session", session.SessionID)

	return SessionFromRecord(record), nil
}

// CallbackResult is what a success callback application returns, and
// what a duplicate delivery replays.
type CallbackResult struct {
	BookingReference string `json:"booking_reference"`
	Status           string `json:"status"`
}

// ApplySuccessCallback applies a gateway success callback at most once.
// Consumed sessions return the previously recorded result without side
// effects; concurrent deliveries of the same session id are serialized
// through a redis lock.
func (s *PaymentService) ApplySuccessCallback(ctx context.Context, sessionID string) (*CallbackResult, error) {
	if sessionID == "" {
		return nil, fmt.Errorf("%w: session_id is required", status.ErrValidation)
	}

	acquired, err := s.acquireCallbackLock(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if !acquired {
		// Another delivery of this session is mid-flight. If it already
		// finished we can replay its result, otherwise the gateway will
		// retry.
		if result, ok, err := s.recordedResult(ctx, sessionID); err != nil || ok {
			return result, err
		}
		return nil, fmt.Errorf("callback for session %s already in progress", sessionID)
	}
	defer s.releaseCallbackLock(ctx, sessionID)

	sessionRecord, err := s.app.FindFirstRecordByFilter(
		"payment_sessions",
		"session_id = {:sid}",
		dbx.Params{"sid": sessionID},
	)
	if err != nil {
		s.trackCallback("unknown")
		return nil, fmt.Errorf("%w: %s", status.ErrUnknownSession, sessionID)
	}

	if sessionRecord.GetBool("consumed") {
		s.trackCallback("replayed")
		return s.replay(sessionRecord)
	}

	bookingRecord, err := s.app.FindRecordById("bookings", sessionRecord.GetString("booking_id"))
	if err != nil {
		return nil, fmt.Errorf("booking for session %s: %w", sessionID, err)
	}

	current := models.BookingStatus(bookingRecord.GetString("status"))
	switch current {
	case models.BookingAccepted:
		return s.applyPayment(ctx, sessionRecord, bookingRecord)

	case models.BookingPaid:
		// Paid but session unconsumed: a previous application crashed
		// after the booking commit. Finish the bookkeeping.
		if err := s.consume(ctx, sessionRecord, "paid"); err != nil {
			return nil, err
		}
		s.trackCallback("replayed")
		return s.replay(sessionRecord)

	case models.BookingCancelled, models.BookingRejected:
		// Money moved for a booking that is no longer payable. Consume
		// the session with an error result so retries stop; the refund
		// is an operational follow-up.
		if err := s.consume(ctx, sessionRecord, "stale"); err != nil {
			return nil, err
		}
		s.trackCallback("stale")
		slog.Warn("payment callback for stale booking",
			"session", sessionID, "booking", bookingRecord.Id, "status", current)
		return &CallbackResult{
			BookingReference: sessionRecord.GetString("booking_reference"),
			Status:           "stale",
		}, fmt.Errorf("%w: booking %s is %s", status.ErrStaleBooking, bookingRecord.Id, current)

	default:
		return nil, fmt.Errorf("%w: booking %s is %s", status.ErrInvalidTransition, bookingRecord.Id, current)
	}
}

func (s *PaymentService) applyPayment(ctx context.Context, sessionRecord, bookingRecord *core.Record) (*CallbackResult, error) {
	sessionID := sessionRecord.GetString("session_id")

	_, err := s.bookings.MarkPaid(ctx, s.app, bookingRecord.Id, sessionID, time.Now())
	if err != nil {
		if errors.Is(err, status.ErrOversell) {
			// The booking is flagged for manual reconciliation; stop the
			// gateway from redelivering into the same wall.
			if consumeErr := s.consume(ctx, sessionRecord, "oversell"); consumeErr != nil {
				slog.Error("failed to consume oversold session", "session", sessionID, "error", consumeErr)
			}
			s.trackCallback("oversell")
		}
		return nil, err
	}

	if err := s.consume(ctx, sessionRecord, "paid"); err != nil {
		return nil, err
	}
	s.trackCallback("applied")

	return &CallbackResult{
		BookingReference: sessionRecord.GetString("booking_reference"),
		Status:           string(models.BookingPaid),
	}, nil
}

// consume flips the session's consumed flag and records the result.
func (s *PaymentService) consume(ctx context.Context, sessionRecord *core.Record, result string) error {
	sessionRecord.Set("consumed", true)
	sessionRecord.Set("result_status", result)
	if err := s.app.SaveWithContext(ctx, sessionRecord); err != nil {
		return fmt.Errorf("consume session: %w", err)
	}
	return nil
}

// replay returns the recorded result of an already consumed session.
// A recorded stale result replays its error as well, so retries observe
// the same outcome as the first delivery.
func (s *PaymentService) replay(sessionRecord *core.Record) (*CallbackResult, error) {
	result := &CallbackResult{
		BookingReference: sessionRecord.GetString("booking_reference"),
		Status:           sessionRecord.GetString("result_status"),
	}
	if result.Status == "stale" {
		return result, fmt.Errorf("%w: recorded result for session %s", status.ErrStaleBooking, sessionRecord.GetString("session_id"))
	}
	return result, nil
}

func (s *PaymentService) recordedResult(ctx context.Context, sessionID string) (*CallbackResult, bool, error) {
	sessionRecord, err := s.app.FindFirstRecordByFilter(
		"payment_sessions",
		"session_id = {:sid}",
		dbx.Params{"sid": sessionID},
	)
	if err != nil {
		return nil, false, fmt.Errorf("%w: %s", status.ErrUnknownSession, sessionID)
	}
	if !sessionRecord.GetBool("consumed") {
		return nil, false, nil
	}
	result, err := s.replay(sessionRecord)
	return result, true, err
}

func (s *PaymentService) acquireCallbackLock(ctx context.Context, sessionID string) (bool, error) {
	lockKey := fmt.Sprintf("callback:lock:%s", sessionID)
	acquired, err := s.Redis.SetNX(ctx, lockKey, 1, s.callbackLockTTL).Result()
	if err != nil {
		return false, fmt.Errorf("callback lock: %w", err)
	}
	return acquired, nil
}

func (s *PaymentService) releaseCallbackLock(ctx context.Context, sessionID string) {
	lockKey := fmt.Sprintf("callback:lock:%s", sessionID)
	s.Redis.Del(ctx, lockKey)
}

// ProcessNotifications consumes settled transactions from the gateway's
// asynchronous notification stream and applies them through the same
// idempotent path as the REST callback.
func (s *PaymentService) ProcessNotifications(ctx context.Context, ch <-chan *paygate.Transaction) {
	for {
		select {
		case tran := <-ch:
			if tran == nil {
				continue
			}
			if _, err := s.ApplySuccessCallback(ctx, tran.SessionID); err != nil {
				slog.Error("gateway notification not applied",
					"session", tran.SessionID, "txn", tran.TxnRef, "error", err)
			}

		case <-ctx.Done():
			slog.Info("stopping gateway notification consumer")
			return
		}
	}
}

// SessionFromRecord maps a stored record to the domain model.
func SessionFromRecord(record *core.Record) *models.PaymentSession {
	return &models.PaymentSession{
		SessionID:        record.GetString("session_id"),
		BookingID:        record.GetString("booking_id"),
		RedirectURL:      record.GetString("redirect_url"),
		Consumed:         record.GetBool("consumed"),
		ResultStatus:     record.GetString("result_status"),
		BookingReference: record.GetString("booking_reference"),
		CreatedAt:        record.GetDateTime("created").Time(),
	}
}
