package services

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/pocketbase/dbx"
	"github.com/pocketbase/pocketbase/core"
	"github.com/pocketbase/pocketbase/tools/types"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"

	"ticket-marketplace/internal/policy"
	"ticket-marketplace/internal/status"
	"ticket-marketplace/models"
	"ticket-marketplace/utils"
)

// verificationTransitions are the allowed moves of the ticket
// verification state machine. rejected is terminal; a rejected ticket
// comes back only as a new submission.
var verificationTransitions = map[models.VerificationStatus][]models.VerificationStatus{
	models.VerificationPending:  {models.VerificationApproved, models.VerificationRejected},
	models.VerificationApproved: {models.VerificationRejected},
}

// TicketService owns ticket records, their verification status and the
// inventory counters. Soft holds live in Redis; the hard decrement is a
// compare-and-set against the database at payment confirmation.
type TicketService struct {
	app   core.App
	Redis *redis.Client

	// reservationWindow bounds how long a soft hold stays effective.
	reservationWindow time.Duration
}

func NewTicketService(app core.App, redisClient *redis.Client, reservationWindow time.Duration) *TicketService {
	return &TicketService{
		app:               app,
		Redis:             redisClient,
		reservationWindow: reservationWindow,
	}
}

// TicketFields is the vendor-supplied portion of a ticket submission.
type TicketFields struct {
	Title             string          `json:"title"`
	From              string          `json:"from"`
	To                string          `json:"to"`
	Price             decimal.Decimal `json:"price"`
	AvailableQuantity int             `json:"available_quantity"`
	DepartureAt       time.Time       `json:"departure_at"`
	Perks             []string        `json:"perks"`
	TransportType     string          `json:"transport_type"`
}

// ValidateTicketFields applies the submission rules without touching
// storage.
func ValidateTicketFields(f *TicketFields) error {
	if f.Title == "" {
		return fmt.Errorf("%w: title is required", status.ErrValidation)
	}
	if f.From == "" || f.To == "" {
		return fmt.Errorf("%w: route (from, to) is required", status.ErrValidation)
	}
	if !f.Price.IsPositive() {
		return fmt.Errorf("%w: price must be positive", status.ErrValidation)
	}
	if f.AvailableQuantity < 0 {
		return fmt.Errorf("%w: available_quantity must not be negative", status.ErrValidation)
	}
	if f.DepartureAt.IsZero() {
		return fmt.Errorf("%w: departure_at is required", status.ErrValidation)
	}
	return nil
}

// Submit creates a new ticket in verification status pending.
func (s *TicketService) Submit(ctx context.Context, actor *models.User, fields *TicketFields) (*models.Ticket, error) {
	if d := policy.CanPerform(actor, policy.ActionSubmitTicket, policy.Target{}); !d.Allowed {
		return nil, fmt.Errorf("%w: %s", status.ErrAuthorization, d.Reason)
	}
	if err := ValidateTicketFields(fields); err != nil {
		return nil, err
	}

	collection, err := s.app.FindCollectionByNameOrId("tickets")
	if err != nil {
		return nil, fmt.Errorf("tickets collection: %w", err)
	}

	record := core.NewRecord(collection)
	record.Set("vendor_email", actor.Email)
	record.Set("title", fields.Title)
	record.Set("from_location", fields.From)
	record.Set("to_location", fields.To)
	price, _ := fields.Price.Float64()
	record.Set("price", price)
	record.Set("available_quantity", fields.AvailableQuantity)
	record.Set("departure_at", fields.DepartureAt)
	record.Set("verification_status", string(models.VerificationPending))
	record.Set("is_advertised", false)
	record.Set("perks", fields.Perks)
	record.Set("transport_type", fields.TransportType)

	if err := s.app.SaveWithContext(ctx, record); err != nil {
		return nil, fmt.Errorf("save ticket: %w", err)
	}

	slog.Info("ticket submitted", "ticket", record.Id, "vendor", actor.Email)

	return TicketFromRecord(record), nil
}

// SetVerification moves a ticket through the verification state machine.
func (s *TicketService) SetVerification(ctx context.Context, actor *models.User, ticketID string, newStatus models.VerificationStatus) (*models.Ticket, error) {
	if d := policy.CanPerform(actor, policy.ActionVerifyTicket, policy.Target{}); !d.Allowed {
		return nil, fmt.Errorf("%w: %s", status.ErrAuthorization, d.Reason)
	}

	record, err := s.app.FindRecordById("tickets", ticketID)
	if err != nil {
		return nil, fmt.Errorf("%w: ticket %s not found", status.ErrValidation, ticketID)
	}

	current := models.VerificationStatus(record.GetString("verification_status"))
	if !verificationAllowed(current, newStatus) {
		return nil, fmt.Errorf("%w: verification %s -> %s", status.ErrInvalidTransition, current, newStatus)
	}

	record.Set("verification_status", string(newStatus))
	if err := s.app.SaveWithContext(ctx, record); err != nil {
		return nil, fmt.Errorf("save ticket: %w", err)
	}

	slog.Info("ticket verification changed",
		"ticket", ticketID, "from", current, "to", newStatus, "admin", actor.Email)

	return TicketFromRecord(record), nil
}

func verificationAllowed(from, to models.VerificationStatus) bool {
	for _, next := range verificationTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// SetAdvertised toggles the advertisement flag; owning vendor or admin.
func (s *TicketService) SetAdvertised(ctx context.Context, actor *models.User, ticketID string, on bool) (*models.Ticket, error) {
	record, err := s.app.FindRecordById("tickets", ticketID)
	if err != nil {
		return nil, fmt.Errorf("%w: ticket %s not found", status.ErrValidation, ticketID)
	}

	target := policy.Target{VendorEmail: record.GetString("vendor_email")}
	if d := policy.CanPerform(actor, policy.ActionAdvertiseTicket, target); !d.Allowed {
		return nil, fmt.Errorf("%w: %s", status.ErrAuthorization, d.Reason)
	}

	record.Set("is_advertised", on)
	if err := s.app.SaveWithContext(ctx, record); err != nil {
		return nil, fmt.Errorf("save ticket: %w", err)
	}

	return TicketFromRecord(record), nil
}

// ReserveInventory places a soft hold on a ticket's inventory. The hold
// contends atomically through a per-ticket counter so two concurrent
// reservations cannot both win the last unit, but nothing is decremented
// until CommitInventory.
func (s *TicketService) ReserveInventory(ctx context.Context, ticketID string, quantity int) (*models.Reservation, error) {
	if quantity <= 0 {
		return nil, fmt.Errorf("%w: quantity must be positive", status.ErrValidation)
	}

	record, err := s.app.FindRecordById("tickets", ticketID)
	if err != nil {
		return nil, fmt.Errorf("%w: ticket %s not found", status.ErrValidation, ticketID)
	}
	available := record.GetInt("available_quantity")

	reservation, err := s.reserveHold(ctx, ticketID, quantity, available)
	if err != nil {
		return nil, err
	}
	return reservation, nil
}

// reserveHold is the redis-only part of ReserveInventory. held counts
// quantity across all live reservations for the ticket; the counter and
// every token carry the reservation window as TTL so abandoned checkouts
// release themselves.
func (s *TicketService) reserveHold(ctx context.Context, ticketID string, quantity, available int) (*models.Reservation, error) {
	holdKey := fmt.Sprintf("inventory:hold:%s", ticketID)

	held, err := s.Redis.IncrBy(ctx, holdKey, int64(quantity)).Result()
	if err != nil {
		return nil, fmt.Errorf("reserve hold: %w", err)
	}
	s.Redis.Expire(ctx, holdKey, s.reservationWindow)

	if held > int64(available) {
		s.Redis.DecrBy(ctx, holdKey, int64(quantity))
		return nil, fmt.Errorf("%w: ticket %s has %d left", status.ErrInsufficientInventory, ticketID, available)
	}

	token, err := utils.GenerateCode(8)
	if err != nil {
		return nil, fmt.Errorf("reserve token: %w", err)
	}

	resvKey := fmt.Sprintf("resv:%s", token)
	s.Redis.HSet(ctx, resvKey, map[string]any{
		"ticket_id": ticketID,
		"quantity":  quantity,
	})
	s.Redis.Expire(ctx, resvKey, s.reservationWindow)

	return &models.Reservation{
		Token:     token,
		TicketID:  ticketID,
		Quantity:  quantity,
		ExpiresAt: time.Now().Add(s.reservationWindow),
	}, nil
}

// ReleaseReservation drops a soft hold. Releasing an expired or unknown
// token is a no-op.
func (s *TicketService) ReleaseReservation(ctx context.Context, token string) error {
	if token == "" {
		return nil
	}

	resvKey := fmt.Sprintf("resv:%s", token)
	vals, err := s.Redis.HGetAll(ctx, resvKey).Result()
	if err != nil {
		return fmt.Errorf("release reservation: %w", err)
	}
	if len(vals) == 0 {
		return nil
	}

	s.Redis.Del(ctx, resvKey)

	quantity := 0
	fmt.Sscanf(vals["quantity"], "%d", &quantity)
	if quantity > 0 {
		holdKey := fmt.Sprintf("inventory:hold:%s", vals["ticket_id"])
		s.Redis.DecrBy(ctx, holdKey, int64(quantity))
	}

	return nil
}

// CommitInventory performs the hard decrement at payment confirmation.
// Availability is re-checked here with a compare-and-set; a reservation
// is never trusted at commit time. The caller passes the builder so the
// decrement can ride inside the caller's transaction.
func (s *TicketService) CommitInventory(ctx context.Context, db dbx.Builder, ticketID string, quantity int) error {
	result, err := db.NewQuery(
		"UPDATE tickets SET available_quantity = available_quantity - {:qty} " +
			"WHERE id = {:id} AND available_quantity >= {:qty}",
	).Bind(dbx.Params{"qty": quantity, "id": ticketID}).WithContext(ctx).Execute()
	if err != nil {
		return fmt.Errorf("commit inventory: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("commit inventory: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("%w: ticket %s, commit of %d lost the race", status.ErrInsufficientInventory, ticketID, quantity)
	}

	return nil
}

// ListFilter narrows the public listing.
type ListFilter struct {
	From           string
	To             string
	TransportType  string
	AdvertisedOnly bool
	Limit          int
	Offset         int
}

// publicTicketRow is the scan target for the listing join. Bools come
// back as ints from sqlite.
type publicTicketRow struct {
	ID                string         `db:"id"`
	VendorEmail       string         `db:"vendor_email"`
	Title             string         `db:"title"`
	FromLocation      string         `db:"from_location"`
	ToLocation        string         `db:"to_location"`
	Price             float64        `db:"price"`
	AvailableQuantity int            `db:"available_quantity"`
	DepartureAt       types.DateTime `db:"departure_at"`
	IsAdvertised      int            `db:"is_advertised"`
	Perks             types.JSONRaw  `db:"perks"`
	TransportType     string         `db:"transport_type"`
	Created           types.DateTime `db:"created"`
}

// ListPublic returns the publicly discoverable subset: approved tickets
// whose vendor is not fraud-flagged. Finite and restartable per query
// through limit/offset.
func (s *TicketService) ListPublic(ctx context.Context, filter *ListFilter) ([]*models.Ticket, error) {
	if filter == nil {
		filter = &ListFilter{}
	}
	limit := filter.Limit
	if limit <= 0 || limit > 100 {
		limit = 50
	}

	query := "SELECT t.id, t.vendor_email, t.title, t.from_location, t.to_location, " +
		"t.price, t.available_quantity, t.departure_at, t.is_advertised, t.perks, " +
		"t.transport_type, t.created " +
		"FROM tickets t JOIN users u ON u.email = t.vendor_email " +
		"WHERE t.verification_status = {:approved} AND u.role != {:fraud}"

	params := dbx.Params{
		"approved": string(models.VerificationApproved),
		"fraud":    string(models.RoleFraud),
		"limit":    limit,
		"offset":   filter.Offset,
	}

	if filter.From != "" {
		query += " AND t.from_location = {:from}"
		params["from"] = filter.From
	}
	if filter.To != "" {
		query += " AND t.to_location = {:to}"
		params["to"] = filter.To
	}
	if filter.TransportType != "" {
		query += " AND t.transport_type = {:transport}"
		params["transport"] = filter.TransportType
	}
	if filter.AdvertisedOnly {
		query += " AND t.is_advertised = 1"
	}

	query += " ORDER BY t.departure_at ASC LIMIT {:limit} OFFSET {:offset}"

	var rows []publicTicketRow
	if err := s.app.DB().NewQuery(query).Bind(params).WithContext(ctx).All(&rows); err != nil {
		return nil, fmt.Errorf("list public tickets: %w", err)
	}

	tickets := make([]*models.Ticket, 0, len(rows))
	for _, row := range rows {
		var perks []string
		if len(row.Perks) > 0 {
			if err := json.Unmarshal(row.Perks, &perks); err != nil {
				slog.Warn("ticket perks not decodable", "ticket", row.ID, "error", err)
			}
		}

		tickets = append(tickets, &models.Ticket{
			ID:                 row.ID,
			VendorEmail:        row.VendorEmail,
			Title:              row.Title,
			From:               row.FromLocation,
			To:                 row.ToLocation,
			Price:              decimal.NewFromFloat(row.Price),
			AvailableQuantity:  row.AvailableQuantity,
			DepartureAt:        row.DepartureAt.Time(),
			VerificationStatus: models.VerificationApproved,
			IsAdvertised:       row.IsAdvertised != 0,
			Perks:              perks,
			TransportType:      row.TransportType,
			CreatedAt:          row.Created.Time(),
		})
	}

	return tickets, nil
}

// TicketFromRecord maps a stored record to the domain model.
func TicketFromRecord(record *core.Record) *models.Ticket {
	return &models.Ticket{
		ID:                 record.Id,
		VendorEmail:        record.GetString("vendor_email"),
		Title:              record.GetString("title"),
		From:               record.GetString("from_location"),
		To:                 record.GetString("to_location"),
		Price:              decimal.NewFromFloat(record.GetFloat("price")),
		AvailableQuantity:  record.GetInt("available_quantity"),
		DepartureAt:        record.GetDateTime("departure_at").Time(),
		VerificationStatus: models.VerificationStatus(record.GetString("verification_status")),
		IsAdvertised:       record.GetBool("is_advertised"),
		Perks:              record.GetStringSlice("perks"),
		TransportType:      record.GetString("transport_type"),
		CreatedAt:          record.GetDateTime("created").Time(),
	}
}
