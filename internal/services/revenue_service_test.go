package services

import (
	"testing"
	"time"

	"github.com/pocketbase/pocketbase/tools/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func paidRow(reference string, total float64, quantity int, paidAt time.Time) paidBookingRow {
	dt, _ := types.ParseDateTime(paidAt)
	return paidBookingRow{
		BookingReference: reference,
		TotalPrice:       total,
		Quantity:         quantity,
		PaymentDate:      dt,
	}
}

func TestAggregateRevenue_Empty(t *testing.T) {
	record := aggregateRevenue(nil)

	assert.True(t, record.TotalRevenue.IsZero())
	assert.Equal(t, 0, record.TotalTicketsSold)
	assert.Empty(t, record.LastReference)
	assert.Nil(t, record.LastPaymentDate)
}

func TestAggregateRevenue_SumsAndPicksMostRecent(t *testing.T) {
	base := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)

	record := aggregateRevenue([]paidBookingRow{
		paidRow("REF00001", 100.50, 2, base),
		paidRow("REF00002", 49.50, 1, base.Add(2*time.Hour)),
		paidRow("REF00003", 25.00, 1, base.Add(time.Hour)),
	})

	assert.Equal(t, "175", record.TotalRevenue.String())
	assert.Equal(t, 4, record.TotalTicketsSold)
	assert.Equal(t, "REF00002", record.LastReference)
	require.NotNil(t, record.LastPaymentDate)
	assert.True(t, record.LastPaymentDate.Equal(base.Add(2*time.Hour)))
}

func TestAggregateRevenue_TieBreaksByReference(t *testing.T) {
	// Identical payment dates resolve to the lowest booking reference so
	// repeated computations agree.
	paidAt := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)

	record := aggregateRevenue([]paidBookingRow{
		paidRow("REFB", 10, 1, paidAt),
		paidRow("REFA", 20, 1, paidAt),
		paidRow("REFC", 30, 1, paidAt),
	})

	assert.Equal(t, "REFA", record.LastReference)
	assert.Equal(t, "60", record.TotalRevenue.String())
}

func TestAggregateRevenue_ExactDecimalSum(t *testing.T) {
	// Classic float trap: 0.1 + 0.2 must come out as 0.3.
	paidAt := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)

	record := aggregateRevenue([]paidBookingRow{
		paidRow("REF00001", 0.1, 1, paidAt),
		paidRow("REF00002", 0.2, 1, paidAt),
	})

	assert.Equal(t, "0.3", record.TotalRevenue.String())
}
