package services

import (
	"context"
	"fmt"

	"github.com/pocketbase/dbx"
	"github.com/pocketbase/pocketbase/core"
	"github.com/pocketbase/pocketbase/tools/types"
	"github.com/shopspring/decimal"

	"ticket-marketplace/models"
)

// RevenueService derives revenue metrics by scanning paid bookings.
// Nothing is cached or incrementally maintained; the booking ledger is
// the single source of truth and every call recomputes from it.
type RevenueService struct {
	app core.App
}

func NewRevenueService(app core.App) *RevenueService {
	return &RevenueService{app: app}
}

// paidBookingRow is the scan target for the revenue query.
type paidBookingRow struct {
	VendorEmail      string         `db:"vendor_email"`
	BookingReference string         `db:"booking_reference"`
	TotalPrice       float64        `db:"total_price"`
	Quantity         int            `db:"quantity"`
	PaymentDate      types.DateTime `db:"payment_date"`
}

// Compute returns the revenue record for one vendor, or the global one
// when vendorEmail is empty.
func (s *RevenueService) Compute(ctx context.Context, vendorEmail string) (*models.RevenueRecord, error) {
	query := "SELECT vendor_email, booking_reference, total_price, quantity, payment_date " +
		"FROM bookings WHERE status = {:paid}"
	params := dbx.Params{"paid": string(models.BookingPaid)}

	if vendorEmail != "" {
		query += " AND vendor_email = {:vendor}"
		params["vendor"] = vendorEmail
	}

	var rows []paidBookingRow
	if err := s.app.DB().NewQuery(query).Bind(params).WithContext(ctx).All(&rows); err != nil {
		return nil, fmt.Errorf("scan paid bookings: %w", err)
	}

	record := aggregateRevenue(rows)
	record.VendorEmail = vendorEmail
	return record, nil
}

// aggregateRevenue sums the ledger rows and picks the most recent
// transaction. Ties on identical payment dates break by booking
// reference ascending, so the result is deterministic.
func aggregateRevenue(rows []paidBookingRow) *models.RevenueRecord {
	record := &models.RevenueRecord{
		TotalRevenue: decimal.Zero,
	}

	for _, row := range rows {
		record.TotalRevenue = record.TotalRevenue.Add(decimal.NewFromFloat(row.TotalPrice))
		record.TotalTicketsSold += row.Quantity

		paidAt := row.PaymentDate.Time()
		switch {
		case record.LastPaymentDate == nil,
			paidAt.After(*record.LastPaymentDate),
			paidAt.Equal(*record.LastPaymentDate) && row.BookingReference < record.LastReference:
			t := paidAt
			record.LastPaymentDate = &t
			record.LastReference = row.BookingReference
		}
	}

	return record
}
