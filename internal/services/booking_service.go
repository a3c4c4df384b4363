package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/pocketbase/dbx"
	"github.com/pocketbase/pocketbase/core"
	"github.com/shopspring/decimal"

	"ticket-marketplace/internal/policy"
	"ticket-marketplace/internal/status"
	"ticket-marketplace/models"
	"ticket-marketplace/monitoring"
	"ticket-marketplace/utils"
)

// bookingTransitions is the booking state machine. paid, rejected and
// cancelled are terminal.
var bookingTransitions = map[models.BookingStatus][]models.BookingStatus{
	models.BookingPending:  {models.BookingAccepted, models.BookingRejected, models.BookingCancelled},
	models.BookingAccepted: {models.BookingPaid, models.BookingCancelled},
}

// CanTransition reports whether the state machine allows from -> to.
func CanTransition(from, to models.BookingStatus) bool {
	for _, next := range bookingTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

const referenceLength = 8

// BookingService owns booking records and their lifecycle. It consumes
// the ticket registry for inventory and the policy package for actor
// permissions; it is the only writer of booking status.
type BookingService struct {
	app     core.App
	tickets *TicketService
	monitor *monitoring.Monitor
}

func NewBookingService(app core.App, tickets *TicketService, monitor *monitoring.Monitor) *BookingService {
	return &BookingService{
		app:     app,
		tickets: tickets,
		monitor: monitor,
	}
}

func (s *BookingService) trackTransition(from, to models.BookingStatus) {
	if s.monitor != nil {
		s.monitor.TrackTransition(string(from), string(to))
	}
}

// Create reserves inventory and creates a pending booking with a fresh
// unique booking reference. totalPrice is fixed here; later price edits
// on the ticket are not retroactive.
func (s *BookingService) Create(ctx context.Context, actor *models.User, ticketID string, quantity int) (*models.Booking, error) {
	if actor == nil {
		return nil, fmt.Errorf("%w: unauthenticated", status.ErrAuthorization)
	}
	if quantity <= 0 {
		return nil, fmt.Errorf("%w: quantity must be positive", status.ErrValidation)
	}

	ticketRecord, err := s.app.FindRecordById("tickets", ticketID)
	if err != nil {
		return nil, fmt.Errorf("%w: ticket %s not found", status.ErrValidation, ticketID)
	}

	if models.VerificationStatus(ticketRecord.GetString("verification_status")) != models.VerificationApproved {
		return nil, fmt.Errorf("%w: ticket %s is not approved for booking", status.ErrValidation, ticketID)
	}

	vendorEmail := ticketRecord.GetString("vendor_email")
	vendor, err := s.app.FindFirstRecordByFilter("users", "email = {:email}", dbx.Params{"email": vendorEmail})
	if err != nil {
		return nil, fmt.Errorf("vendor lookup: %w", err)
	}
	if models.Role(vendor.GetString("role")) == models.RoleFraud {
		return nil, fmt.Errorf("%w: ticket %s is not bookable", status.ErrValidation, ticketID)
	}

	reservation, err := s.tickets.ReserveInventory(ctx, ticketID, quantity)
	if err != nil {
		return nil, err
	}

	reference, err := s.generateUniqueReference(ctx)
	if err != nil {
		s.tickets.ReleaseReservation(ctx, reservation.Token)
		return nil, err
	}

	unitPrice := decimal.NewFromFloat(ticketRecord.GetFloat("price"))
	totalPrice := unitPrice.Mul(decimal.NewFromInt(int64(quantity)))

	collection, err := s.app.FindCollectionByNameOrId("bookings")
	if err != nil {
		s.tickets.ReleaseReservation(ctx, reservation.Token)
		return nil, fmt.Errorf("bookings collection: %w", err)
	}

	record := core.NewRecord(collection)
	record.Set("ticket_id", ticketID)
	record.Set("user_email", actor.Email)
	record.Set("vendor_email", vendorEmail)
	record.Set("quantity", quantity)
	unit, _ := unitPrice.Float64()
	total, _ := totalPrice.Float64()
	record.Set("unit_price", unit)
	record.Set("total_price", total)
	record.Set("status", string(models.BookingPending))
	record.Set("booking_reference", reference)
	record.Set("reservation_token", reservation.Token)
	record.Set("needs_reconciliation", false)

	if err := s.app.SaveWithContext(ctx, record); err != nil {
		s.tickets.ReleaseReservation(ctx, reservation.Token)
		return nil, fmt.Errorf("save booking: %w", err)
	}

	slog.Info("booking created",
		"booking", record.Id, "reference", reference, "ticket", ticketID,
		"user", actor.Email, "quantity", quantity)

	return BookingFromRecord(record), nil
}

// generateUniqueReference draws reference codes until one does not
// collide. The unique index on booking_reference still backstops a race
// between the check and the insert.
func (s *BookingService) generateUniqueReference(ctx context.Context) (string, error) {
	for attempt := 0; attempt < 5; attempt++ {
		reference, err := utils.GenerateReference(referenceLength)
		if err != nil {
			return "", fmt.Errorf("generate reference: %w", err)
		}

		_, err = s.app.FindFirstRecordByFilter(
			"bookings",
			"booking_reference = {:ref}",
			dbx.Params{"ref": reference},
		)
		free, err := referenceLookupFree(err)
		if err != nil {
			return "", fmt.Errorf("reference lookup: %w", err)
		}
		if free {
			return reference, nil
		}
	}
	return "", errors.New("generate reference: exhausted attempts")
}

// referenceLookupFree interprets the uniqueness lookup. Only a no-rows
// result means the reference is free; any other lookup failure must not
// masquerade as uniqueness.
func referenceLookupFree(err error) (bool, error) {
	switch {
	case err == nil:
		return false, nil
	case errors.Is(err, sql.ErrNoRows):
		return true, nil
	default:
		return false, err
	}
}

// Decision is a vendor's verdict on a pending booking.
type Decision string

const (
	DecisionAccept Decision = "accept"
	DecisionReject Decision = "reject"
)

// VendorDecide applies accept/reject to a pending booking. Accepting
// does not touch inventory; the decrement happens only at payment.
func (s *BookingService) VendorDecide(ctx context.Context, actor *models.User, bookingID string, decision Decision) (*models.Booking, error) {
	var target models.BookingStatus
	switch decision {
	case DecisionAccept:
		target = models.BookingAccepted
	case DecisionReject:
		target = models.BookingRejected
	default:
		return nil, fmt.Errorf("%w: unknown decision %q", status.ErrValidation, decision)
	}

	record, err := s.app.FindRecordById("bookings", bookingID)
	if err != nil {
		return nil, fmt.Errorf("%w: booking %s not found", status.ErrValidation, bookingID)
	}

	if d := policy.CanPerform(actor, policy.ActionDecideBooking, policy.Target{
		VendorEmail: record.GetString("vendor_email"),
	}); !d.Allowed {
		return nil, fmt.Errorf("%w: %s", status.ErrAuthorization, d.Reason)
	}

	current := models.BookingStatus(record.GetString("status"))
	if current != models.BookingPending || !CanTransition(current, target) {
		return nil, fmt.Errorf("%w: booking %s -> %s", status.ErrInvalidTransition, current, target)
	}

	record.Set("status", string(target))
	if err := s.app.SaveWithContext(ctx, record); err != nil {
		return nil, fmt.Errorf("save booking: %w", err)
	}
	s.trackTransition(current, target)

	if target == models.BookingRejected {
		s.tickets.ReleaseReservation(ctx, record.GetString("reservation_token"))
	}

	slog.Info("booking decided",
		"booking", bookingID, "decision", decision, "actor", actor.Email)

	return BookingFromRecord(record), nil
}

// Cancel is a best-effort transition out of pending/accepted. Once a
// payment session has been consumed the money has moved and cancellation
// is refused.
func (s *BookingService) Cancel(ctx context.Context, actor *models.User, bookingID string) (*models.Booking, error) {
	record, err := s.app.FindRecordById("bookings", bookingID)
	if err != nil {
		return nil, fmt.Errorf("%w: booking %s not found", status.ErrValidation, bookingID)
	}

	current := models.BookingStatus(record.GetString("status"))

	if d := policy.CanPerform(actor, policy.ActionCancelBooking, policy.Target{
		VendorEmail: record.GetString("vendor_email"),
		BookedBy:    record.GetString("user_email"),
		Status:      current,
	}); !d.Allowed {
		return nil, fmt.Errorf("%w: %s", status.ErrAuthorization, d.Reason)
	}

	if !CanTransition(current, models.BookingCancelled) {
		return nil, fmt.Errorf("%w: booking %s -> cancelled", status.ErrInvalidTransition, current)
	}

	if sessionID := record.GetString("payment_session_id"); sessionID != "" {
		session, err := s.app.FindFirstRecordByFilter(
			"payment_sessions",
			"session_id = {:sid}",
			dbx.Params{"sid": sessionID},
		)
		if err == nil && session.GetBool("consumed") {
			return nil, fmt.Errorf("%w: payment already applied to booking %s", status.ErrStaleBooking, bookingID)
		}
	}

	record.Set("status", string(models.BookingCancelled))
	if err := s.app.SaveWithContext(ctx, record); err != nil {
		return nil, fmt.Errorf("save booking: %w", err)
	}
	s.trackTransition(current, models.BookingCancelled)

	s.tickets.ReleaseReservation(ctx, record.GetString("reservation_token"))

	slog.Info("booking cancelled", "booking", bookingID, "actor", actor.Email, "was", current)

	return BookingFromRecord(record), nil
}

// MarkPaid is the internal transition applied by payment reconciliation
// once the gateway confirms settlement. Inventory is committed here with
// a re-check; if the stock raced away the booking stays accepted, gets
// flagged for manual reconciliation and ErrOversell is surfaced, since
// the money has already moved at the gateway.
func (s *BookingService) MarkPaid(ctx context.Context, app core.App, bookingID, sessionID string, paidAt time.Time) (*models.Booking, error) {
	record, err := app.FindRecordById("bookings", bookingID)
	if err != nil {
		return nil, fmt.Errorf("%w: booking %s not found", status.ErrValidation, bookingID)
	}

	current := models.BookingStatus(record.GetString("status"))
	if !CanTransition(current, models.BookingPaid) {
		return nil, fmt.Errorf("%w: booking %s -> paid", status.ErrInvalidTransition, current)
	}

	ticketID := record.GetString("ticket_id")
	quantity := record.GetInt("quantity")

	// The decrement and the paid status must land together. If the save
	// failed after an autocommitted decrement, the session would stay
	// unconsumed and a gateway redelivery would decrement a second time.
	txErr := app.RunInTransaction(func(txApp core.App) error {
		if err := s.tickets.CommitInventory(ctx, txApp.DB(), ticketID, quantity); err != nil {
			return err
		}

		record.Set("status", string(models.BookingPaid))
		record.Set("payment_session_id", sessionID)
		record.Set("payment_date", paidAt)
		if err := txApp.SaveWithContext(ctx, record); err != nil {
			return fmt.Errorf("save booking: %w", err)
		}
		return nil
	})
	if txErr != nil {
		if errors.Is(txErr, status.ErrInsufficientInventory) {
			// Written outside the transaction so the flag survives the
			// rollback.
			record.Set("needs_reconciliation", true)
			if saveErr := app.SaveWithContext(ctx, record); saveErr != nil {
				slog.Error("failed to flag oversold booking", "booking", bookingID, "error", saveErr)
			}
			if s.monitor != nil {
				s.monitor.TrackOversell()
			}
			slog.Error("oversell detected, money captured without inventory",
				"booking", bookingID, "ticket", ticketID, "quantity", quantity, "session", sessionID)
			return nil, fmt.Errorf("%w: booking %s", status.ErrOversell, bookingID)
		}
		return nil, txErr
	}
	s.trackTransition(current, models.BookingPaid)

	s.tickets.ReleaseReservation(ctx, record.GetString("reservation_token"))

	slog.Info("booking paid", "booking", bookingID, "session", sessionID)

	return BookingFromRecord(record), nil
}

// AttachSession records the checkout session id on the booking.
func (s *BookingService) AttachSession(ctx context.Context, bookingID, sessionID string) error {
	record, err := s.app.FindRecordById("bookings", bookingID)
	if err != nil {
		return fmt.Errorf("%w: booking %s not found", status.ErrValidation, bookingID)
	}
	record.Set("payment_session_id", sessionID)
	if err := s.app.SaveWithContext(ctx, record); err != nil {
		return fmt.Errorf("save booking: %w", err)
	}
	return nil
}

// BookingFromRecord maps a stored record to the domain model.
func BookingFromRecord(record *core.Record) *models.Booking {
	booking := &models.Booking{
		ID:                  record.Id,
		TicketID:            record.GetString("ticket_id"),
		UserEmail:           record.GetString("user_email"),
		VendorEmail:         record.GetString("vendor_email"),
		Quantity:            record.GetInt("quantity"),
		UnitPrice:           decimal.NewFromFloat(record.GetFloat("unit_price")),
		TotalPrice:          decimal.NewFromFloat(record.GetFloat("total_price")),
		Status:              models.BookingStatus(record.GetString("status")),
		BookingReference:    record.GetString("booking_reference"),
		ReservationToken:    record.GetString("reservation_token"),
		PaymentSessionID:    record.GetString("payment_session_id"),
		NeedsReconciliation: record.GetBool("needs_reconciliation"),
		CreatedAt:           record.GetDateTime("created").Time(),
	}

	if dt := record.GetDateTime("payment_date"); !dt.IsZero() {
		t := dt.Time()
		booking.PaymentDate = &t
	}

	return booking
}
