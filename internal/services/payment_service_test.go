package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/go-redis/redismock/v9"
	"github.com/pocketbase/pocketbase/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ticket-marketplace/internal/status"
)

func setupTestPaymentService() (*PaymentService, redismock.ClientMock) {
	db, redisMock := redismock.NewClientMock()

	service := &PaymentService{
		Redis:           db,
		callbackLockTTL: 30 * time.Second,
	}

	return service, redisMock
}

func TestApplySuccessCallback_MissingSessionID(t *testing.T) {
	service, redisMock := setupTestPaymentService()
	defer redisMock.ClearExpect()

	result, err := service.ApplySuccessCallback(context.Background(), "")

	assert.Nil(t, result)
	assert.ErrorIs(t, err, status.ErrValidation)
	// Validation fails before any lock traffic.
	assert.NoError(t, redisMock.ExpectationsWereMet())
}

func consumedSessionRecord(t *testing.T, resultStatus string) *core.Record {
	t.Helper()

	collection := core.NewBaseCollection("payment_sessions")
	collection.Fields.Add(
		&core.TextField{Name: "session_id"},
		&core.TextField{Name: "booking_reference"},
		&core.TextField{Name: "result_status"},
		&core.BoolField{Name: "consumed"},
	)

	record := core.NewRecord(collection)
	record.Set("session_id", "sess-1")
	record.Set("booking_reference", "VX7KM2QP")
	record.Set("result_status", resultStatus)
	record.Set("consumed", true)

	return record
}

func TestReplay_DuplicateDeliveries(t *testing.T) {
	tests := []struct {
		name     string
		recorded string
		wantErr  error
	}{
		{
			name:     "paid result replays cleanly",
			recorded: "paid",
		},
		{
			name:     "oversell result replays cleanly",
			recorded: "oversell",
		},
		{
			name:     "stale result replays its error",
			recorded: "stale",
			wantErr:  status.ErrStaleBooking,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			service := &PaymentService{}
			record := consumedSessionRecord(t, tt.recorded)

			// Every delivery after the first observes the recorded result,
			// with no booking or inventory side effects.
			for i := 0; i < 2; i++ {
				result, err := service.replay(record)

				require.NotNil(t, result)
				assert.Equal(t, "VX7KM2QP", result.BookingReference)
				assert.Equal(t, tt.recorded, result.Status)
				if tt.wantErr != nil {
					assert.ErrorIs(t, err, tt.wantErr)
				} else {
					assert.NoError(t, err)
				}
			}
		})
	}
}

func TestAcquireCallbackLock(t *testing.T) {
	service, redisMock := setupTestPaymentService()
	defer redisMock.ClearExpect()

	redisMock.ExpectSetNX("callback:lock:sess-1", 1, 30*time.Second).SetVal(true)

	acquired, err := service.acquireCallbackLock(context.Background(), "sess-1")

	assert.NoError(t, err)
	assert.True(t, acquired)
	assert.NoError(t, redisMock.ExpectationsWereMet())
}

func TestAcquireCallbackLock_Contended(t *testing.T) {
	service, redisMock := setupTestPaymentService()
	defer redisMock.ClearExpect()

	redisMock.ExpectSetNX("callback:lock:sess-1", 1, 30*time.Second).SetVal(false)

	acquired, err := service.acquireCallbackLock(context.Background(), "sess-1")

	assert.NoError(t, err)
	assert.False(t, acquired)
}

func TestAcquireCallbackLock_RedisError(t *testing.T) {
	service, redisMock := setupTestPaymentService()
	defer redisMock.ClearExpect()

	redisMock.ExpectSetNX("callback:lock:sess-1", 1, 30*time.Second).SetErr(errors.New("connection lost"))

	acquired, err := service.acquireCallbackLock(context.Background(), "sess-1")

	assert.Error(t, err)
	assert.False(t, acquired)
}

func TestReleaseCallbackLock(t *testing.T) {
	service, redisMock := setupTestPaymentService()
	defer redisMock.ClearExpect()

	redisMock.ExpectDel("callback:lock:sess-1").SetVal(1)

	service.releaseCallbackLock(context.Background(), "sess-1")

	assert.NoError(t, redisMock.ExpectationsWereMet())
}
