package store

import (
	"context"
	"fmt"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"dorm-billing-backend/internal/billing"
	"dorm-billing-backend/internal/model"
)

// newMockDB creates a sqlmock-backed gorm connection for SQL-level tests.
func newMockDB(t *testing.T) (*gorm.DB, sqlmock.Sqlmock) {
	t.Helper()

	db, mock, err := sqlmock.New()
	require.NoError(t, err)

	gormDB, err := gorm.Open(postgres.New(postgres.Config{
		Conn: db,
	}), &gorm.Config{})
	require.NoError(t, err)

	return gormDB, mock
}

// The tariff lookup failing must never block billing: the configured
// fallback rates are substituted instead.
func TestActiveRatesFallbackOnLookupFailure(t *testing.T) {
	gormDB, mock := newMockDB(t)
	s := NewGormStore(gormDB, testBillingCfg, nil)

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT * FROM "service_prices"`)).
		WillReturnError(fmt.Errorf("connection refused"))

	rates := s.ActiveRates(context.Background(), time.Now().UTC())
	assert.Equal(t, int64(3500), rates.Electricity)
	assert.Equal(t, int64(6000), rates.Water)
	assert.True(t, rates.ElectricityFallback)
	assert.True(t, rates.WaterFallback)

	assert.NoError(t, mock.ExpectationsWereMet())
}

// A transition whose conditional update matches zero rows lost a race to a
// concurrent transition; the caller gets a conflict, not a silent overwrite.
func TestTransitionInvoiceConcurrentConflict(t *testing.T) {
	gormDB, mock := newMockDB(t)
	s := NewGormStore(gormDB, testBillingCfg, nil)

	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	code := "INV-UTL-202405-9F1C03AB"

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT * FROM "invoices"`)).
		WillReturnRows(sqlmock.NewRows([]string{"id", "invoice_code", "room_id", "type", "status", "amount"}).
			AddRow(1, code, 7, "UTILITY_FEE", "UNPAID", 175000))

	// The row was UNPAID when read, but another transition got there first:
	// the compare-and-swap update matches nothing.
	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta(`UPDATE "invoices" SET`)).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectCommit()

	_, err := s.TransitionInvoice(context.Background(), code, billing.RoleStudent, model.InvoiceStatusSubmitted, now)
	assert.ErrorIs(t, err, ErrConflict)

	assert.NoError(t, mock.ExpectationsWereMet())
}
