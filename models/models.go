package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Role is the single role a user holds at any point in time.
// Transitions between roles are admin-initiated only.
type Role string

const (
	RoleUser   Role = "user"
	RoleVendor Role = "vendor"
	RoleAdmin  Role = "admin"
	RoleFraud  Role = "fraud"
)

func (r Role) Valid() bool {
	switch r {
	case RoleUser, RoleVendor, RoleAdmin, RoleFraud:
		return true
	}
	return false
}

type User struct {
	ID          string     `json:"id"`
	Email       string     `json:"email"`
	DisplayName string     `json:"display_name"`
	PhotoURL    string     `json:"photo_url"`
	Role        Role       `json:"role"`
	CreatedAt   time.Time  `json:"created_at"`
	LastLogin   *time.Time `json:"last_login,omitempty"`
}

// VerificationStatus of a ticket listing.
type VerificationStatus string

const (
	VerificationPending  VerificationStatus = "pending"
	VerificationApproved VerificationStatus = "approved"
	VerificationRejected VerificationStatus = "rejected"
)

type Ticket struct {
	ID                 string             `json:"id"`
	VendorEmail        string             `json:"vendor_email"`
	Title              string             `json:"title"`
	From               string             `json:"from"`
	To                 string             `json:"to"`
	Price              decimal.Decimal    `json:"price"`
	AvailableQuantity  int                `json:"available_quantity"`
	DepartureAt        time.Time          `json:"departure_at"`
	VerificationStatus VerificationStatus `json:"verification_status"`
	IsAdvertised       bool               `json:"is_advertised"`
	Perks              []string           `json:"perks"`
	TransportType      string             `json:"transport_type"`
	CreatedAt          time.Time          `json:"created_at"`
}

// BookingStatus of a booking. Valid paths:
// pending -> accepted -> paid, pending -> rejected,
// pending -> cancelled, accepted -> cancelled (while unpaid).
type BookingStatus string

const (
	BookingPending   BookingStatus = "pending"
	BookingAccepted  BookingStatus = "accepted"
	BookingRejected  BookingStatus = "rejected"
	BookingPaid      BookingStatus = "paid"
	BookingCancelled BookingStatus = "cancelled"
)

type Booking struct {
	ID                  string          `json:"id"`
	TicketID            string          `json:"ticket_id"`
	UserEmail           string          `json:"user_email"`
	VendorEmail         string          `json:"vendor_email"`
	Quantity            int             `json:"quantity"`
	UnitPrice           decimal.Decimal `json:"unit_price"`
	TotalPrice          decimal.Decimal `json:"total_price"`
	Status              BookingStatus   `json:"status"`
	BookingReference    string          `json:"booking_reference"`
	ReservationToken    string          `json:"-"`
	PaymentSessionID    string          `json:"payment_session_id,omitempty"`
	PaymentDate         *time.Time      `json:"payment_date,omitempty"`
	NeedsReconciliation bool            `json:"needs_reconciliation,omitempty"`
	CreatedAt           time.Time       `json:"created_at"`
}

// PaymentSession correlates an external gateway session to a booking.
// consumed flips false -> true at most once; reprocessing a consumed
// session replays the recorded result without side effects.
type PaymentSession struct {
	SessionID        string    `json:"session_id"`
	BookingID        string    `json:"booking_id"`
	RedirectURL      string    `json:"redirect_url"`
	Consumed         bool      `json:"consumed"`
	ResultStatus     string    `json:"result_status,omitempty"` // paid | stale
	BookingReference string    `json:"booking_reference,omitempty"`
	CreatedAt        time.Time `json:"created_at"`
}

// RevenueRecord is derived on demand from paid bookings, never persisted.
type RevenueRecord struct {
	VendorEmail      string          `json:"vendor_email,omitempty"`
	TotalRevenue     decimal.Decimal `json:"total_revenue"`
	TotalTicketsSold int             `json:"total_tickets_sold"`
	LastReference    string          `json:"last_reference,omitempty"`
	LastPaymentDate  *time.Time      `json:"last_payment_date,omitempty"`
}

// Reservation is a soft inventory hold returned by the ticket registry.
// The hard decrement happens only at payment confirmation.
type Reservation struct {
	Token     string    `json:"token"`
	TicketID  string    `json:"ticket_id"`
	Quantity  int       `json:"quantity"`
	ExpiresAt time.Time `json:"expires_at"`
}
