package payments

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/dcastano/repairhub-backend/internal/jobs"
	"github.com/dcastano/repairhub-backend/pkg/db/models"
	"github.com/dcastano/repairhub-backend/pkg/enums"
	pkgerrors "github.com/dcastano/repairhub-backend/pkg/errors"
)

func setupPaymentsTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{})
	require.NoError(t, err)

	repairJobs := `
CREATE TABLE IF NOT EXISTS repair_jobs (
  id TEXT PRIMARY KEY,
  customer_id TEXT NOT NULL,
  repair_center_id TEXT NOT NULL,
  appliance_type TEXT NOT NULL,
  issue_summary TEXT,
  currency TEXT NOT NULL DEFAULT 'USD',
  quoted_cost_cents INTEGER NOT NULL,
  final_cost_cents INTEGER,
  status TEXT NOT NULL DEFAULT 'requested',
  cost_adjustment_reason TEXT,
  cost_adjustment_approved INTEGER,
  cost_adjustment_pending INTEGER NOT NULL DEFAULT 0,
  device_returned_confirmed INTEGER NOT NULL DEFAULT 0,
  device_returned_at DATETIME,
  satisfaction_confirmed INTEGER NOT NULL DEFAULT 0,
  satisfaction_at DATETIME,
  satisfaction_rating INTEGER,
  satisfaction_feedback TEXT,
  completion_date DATETIME,
  cancelled_at DATETIME,
  created_at DATETIME,
  updated_at DATETIME
);`
	payments := `
CREATE TABLE IF NOT EXISTS payments (
  id TEXT PRIMARY KEY,
  job_id TEXT NOT NULL,
  provider TEXT NOT NULL,
  provider_session_id TEXT UNIQUE,
  provider_transaction_id TEXT,
  status TEXT NOT NULL DEFAULT 'pending',
  amount_cents INTEGER NOT NULL,
  currency TEXT NOT NULL DEFAULT 'USD',
  paid_at DATETIME,
  created_at DATETIME,
  updated_at DATETIME
);`
	require.NoError(t, db.Exec(repairJobs).Error)
	require.NoError(t, db.Exec(payments).Error)
	return db
}

type paymentsFixture struct {
	db  *gorm.DB
	svc Service
}

func newPaymentsFixture(t *testing.T) *paymentsFixture {
	t.Helper()

	db := setupPaymentsTestDB(t)
	svc, err := NewService(NewRepository(db), jobs.NewRepository(db))
	require.NoError(t, err)
	return &paymentsFixture{db: db, svc: svc}
}

func (f *paymentsFixture) seedJob(t *testing.T) *models.RepairJob {
	t.Helper()

	job := &models.RepairJob{
		ID:              uuid.New(),
		CustomerID:      uuid.New(),
		RepairCenterID:  uuid.New(),
		ApplianceType:   "refrigerator",
		Currency:        enums.CurrencyUSD,
		QuotedCostCents: 45000,
		Status:          enums.JobStatusReturned,
	}
	require.NoError(t, f.db.Create(job).Error)
	return job
}

func TestRecordCheckout(t *testing.T) {
	f := newPaymentsFixture(t)
	job := f.seedJob(t)

	payment, err := f.svc.RecordCheckout(context.Background(), RecordCheckoutInput{
		JobID:       job.ID,
		ActorUserID: job.CustomerID,
		Provider:    "checkout",
		SessionID:   "cs_abc",
		AmountCents: 45000,
	})
	require.NoError(t, err)

	assert.Equal(t, enums.PaymentStatusPending, payment.Status)
	assert.Equal(t, job.Currency, payment.Currency)
	require.NotNil(t, payment.ProviderSessionID)
	assert.Equal(t, "cs_abc", *payment.ProviderSessionID)
}

func TestRecordCheckoutDuplicateSession(t *testing.T) {
	f := newPaymentsFixture(t)
	job := f.seedJob(t)

	input := RecordCheckoutInput{
		JobID:       job.ID,
		ActorUserID: job.CustomerID,
		Provider:    "checkout",
		SessionID:   "cs_abc",
		AmountCents: 45000,
	}
	_, err := f.svc.RecordCheckout(context.Background(), input)
	require.NoError(t, err)

	_, err = f.svc.RecordCheckout(context.Background(), input)
	require.Error(t, err)
}

func TestRecordCheckoutForbiddenForStranger(t *testing.T) {
	f := newPaymentsFixture(t)
	job := f.seedJob(t)

	_, err := f.svc.RecordCheckout(context.Background(), RecordCheckoutInput{
		JobID:       job.ID,
		ActorUserID: uuid.New(),
		Provider:    "checkout",
		SessionID:   "cs_abc",
		AmountCents: 45000,
	})
	typed := pkgerrors.As(err)
	require.NotNil(t, typed)
	assert.Equal(t, pkgerrors.CodeForbidden, typed.Code())
}

func TestRecordCheckoutRejectsBadAmount(t *testing.T) {
	f := newPaymentsFixture(t)
	job := f.seedJob(t)

	_, err := f.svc.RecordCheckout(context.Background(), RecordCheckoutInput{
		JobID:       job.ID,
		ActorUserID: job.CustomerID,
		Provider:    "checkout",
		SessionID:   "cs_abc",
		AmountCents: 0,
	})
	typed := pkgerrors.As(err)
	require.NotNil(t, typed)
	assert.Equal(t, pkgerrors.CodeValidation, typed.Code())
}

func TestListForJobAuthorization(t *testing.T) {
	f := newPaymentsFixture(t)
	job := f.seedJob(t)

	_, err := f.svc.RecordCheckout(context.Background(), RecordCheckoutInput{
		JobID:       job.ID,
		ActorUserID: job.CustomerID,
		Provider:    "checkout",
		SessionID:   "cs_abc",
		AmountCents: 45000,
	})
	require.NoError(t, err)

	// the owning customer sees the row
	rows, err := f.svc.ListForJob(context.Background(), ListForJobInput{
		JobID:       job.ID,
		ActorUserID: job.CustomerID,
		ActorRole:   "customer",
	})
	require.NoError(t, err)
	assert.Len(t, rows, 1)

	// the owning center sees the row
	rows, err = f.svc.ListForJob(context.Background(), ListForJobInput{
		JobID:         job.ID,
		ActorUserID:   uuid.New(),
		ActorCenterID: &job.RepairCenterID,
		ActorRole:     "repair_center_staff",
	})
	require.NoError(t, err)
	assert.Len(t, rows, 1)

	// strangers do not
	_, err = f.svc.ListForJob(context.Background(), ListForJobInput{
		JobID:       job.ID,
		ActorUserID: uuid.New(),
		ActorRole:   "customer",
	})
	typed := pkgerrors.As(err)
	require.NotNil(t, typed)
	assert.Equal(t, pkgerrors.CodeForbidden, typed.Code())
}

func TestListForJobMissingJob(t *testing.T) {
	f := newPaymentsFixture(t)

	_, err := f.svc.ListForJob(context.Background(), ListForJobInput{
		JobID:       uuid.New(),
		ActorUserID: uuid.New(),
	})
	typed := pkgerrors.As(err)
	require.NotNil(t, typed)
	assert.Equal(t, pkgerrors.CodeNotFound, typed.Code())
}
