package deliveries

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/dcastano/repairhub-backend/internal/couriers"
	"github.com/dcastano/repairhub-backend/internal/jobs"
	"github.com/dcastano/repairhub-backend/pkg/db/models"
	"github.com/dcastano/repairhub-backend/pkg/enums"
	pkgerrors "github.com/dcastano/repairhub-backend/pkg/errors"
	"github.com/dcastano/repairhub-backend/pkg/logger"
	"github.com/dcastano/repairhub-backend/pkg/types"
)

func setupDeliveriesTestDB(t *testing.T) *gorm.DB {
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
	deliveryRequests := `
CREATE TABLE IF NOT EXISTS delivery_requests (
  id TEXT PRIMARY KEY,
  job_id TEXT NOT NULL,
  type TEXT NOT NULL,
  provider TEXT NOT NULL,
  provider_order_id TEXT NOT NULL UNIQUE,
  pickup_address TEXT,
  pickup_contact TEXT,
  delivery_address TEXT,
  delivery_contact TEXT,
  estimated_cost_cents INTEGER NOT NULL DEFAULT 0,
  actual_cost_cents INTEGER,
  app_commission_cents INTEGER NOT NULL DEFAULT 0,
  status TEXT NOT NULL DEFAULT 'pending',
  cash_payment_status TEXT NOT NULL DEFAULT 'not_due',
  scheduled_pickup_time DATETIME,
  actual_pickup_time DATETIME,
  actual_delivery_time DATETIME,
  tracking_reference TEXT,
  created_at DATETIME,
  updated_at DATETIME
);`
	statusHistory := `
CREATE TABLE IF NOT EXISTS delivery_status_histories (
  id TEXT PRIMARY KEY,
  delivery_id TEXT NOT NULL,
  status TEXT NOT NULL,
  raw_status TEXT NOT NULL,
  location TEXT,
  note TEXT,
  recorded_at DATETIME
);`
	require.NoError(t, db.Exec(repairJobs).Error)
	require.NoError(t, db.Exec(deliveryRequests).Error)
	require.NoError(t, db.Exec(statusHistory).Error)
	return db
}

type gormTxRunner struct {
	db *gorm.DB
}

func (r gormTxRunner) WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error {
	return r.db.WithContext(ctx).Transaction(fn)
}

type stubCenterSource struct {
	center *models.RepairCenter
}

func (s *stubCenterSource) FindByID(ctx context.Context, id uuid.UUID) (*models.RepairCenter, error) {
	if s.center == nil || s.center.ID != id {
		return nil, gorm.ErrRecordNotFound
	}
	return s.center, nil
}

type recordingProvider struct {
	booking   couriers.Booking
	bookErr   error
	cancelErr error
	booked    []couriers.BookingRequest
	cancelled []string
}

func (p *recordingProvider) Name() enums.CourierProvider { return enums.CourierProviderWheely }

func (p *recordingProvider) Book(ctx context.Context, req couriers.BookingRequest) (*couriers.Booking, error) {
	p.booked = append(p.booked, req)
	if p.bookErr != nil {
		return nil, p.bookErr
	}
	booking := p.booking
	return &booking, nil
}

func (p *recordingProvider) Cancel(ctx context.Context, providerOrderID string) error {
	p.cancelled = append(p.cancelled, providerOrderID)
	return p.cancelErr
}

func (p *recordingProvider) MapStatus(raw string) (enums.DeliveryStatus, bool) {
	status, err := enums.ParseDeliveryStatus(raw)
	return status, err == nil
}

func (p *recordingProvider) ConfirmsCashOnDelivery() bool { return true }

type deliveriesFixture struct {
	db       *gorm.DB
	svc      Service
	repo     Repository
	jobsRepo jobs.Repository
	provider *recordingProvider
	center   *models.RepairCenter
}

func newDeliveriesFixture(t *testing.T) *deliveriesFixture {
	t.Helper()

	db := setupDeliveriesTestDB(t)
	repo := NewRepository(db)
	jobsRepo := jobs.NewRepository(db)

	phone := "+15550009999"
	center := &models.RepairCenter{
		ID:           uuid.New(),
		BusinessName: "Spin Cycle Repairs LLC",
		Email:        "ops@spincycle.test",
		Phone:        &phone,
		Address:      types.Address{Line1: "400 Industrial Way", City: "Springfield", Country: "US"},
		ContactName:  "Spin Cycle Repairs",
	}
	provider := &recordingProvider{
		booking: couriers.Booking{
			ProviderOrderID:    "whl_42",
			EstimatedCostCents: 2000,
			TrackingReference:  "TRACK42",
			Status:             enums.DeliveryStatusPending,
		},
	}

	svc, err := NewService(ServiceParams{
		Repo:               repo,
		JobsRepo:           jobsRepo,
		Centers:            &stubCenterSource{center: center},
		Providers:          couriers.NewRegistry(provider),
		TxRunner:           gormTxRunner{db: db},
		Logger:             logger.New(logger.Options{ServiceName: "test"}),
		DeliveryCommission: decimal.RequireFromString("0.05"),
	})
	require.NoError(t, err)

	return &deliveriesFixture{
		db:       db,
		svc:      svc,
		repo:     repo,
		jobsRepo: jobsRepo,
		provider: provider,
		center:   center,
	}
}

func (f *deliveriesFixture) seedJob(t *testing.T, status enums.JobStatus) *models.RepairJob {
	t.Helper()

	job := &models.RepairJob{
		ID:              uuid.New(),
		CustomerID:      uuid.New(),
		RepairCenterID:  f.center.ID,
		ApplianceType:   "washing_machine",
		Currency:        enums.CurrencyUSD,
		QuotedCostCents: 20000,
		Status:          status,
	}
	require.NoError(t, f.db.Create(job).Error)
	return job
}

func customerAddress() types.Address {
	return types.Address{Line1: "12 Elm St", City: "Springfield", PostalCode: "62704", Country: "US"}
}

func customerContact() types.Contact {
	return types.Contact{Name: "Dana Ortiz", Phone: "+15550001111"}
}

func assertCode(t *testing.T, err error, code pkgerrors.Code) {
	t.Helper()

	typed := pkgerrors.As(err)
	require.NotNil(t, typed, "expected a coded error, got %v", err)
	assert.Equal(t, code, typed.Code())
}

func TestScheduleBooksPickupLeg(t *testing.T) {
	f := newDeliveriesFixture(t)
	job := f.seedJob(t, enums.JobStatusQuoteAccepted)

	delivery, err := f.svc.Schedule(context.Background(), ScheduleInput{
		JobID:           job.ID,
		Type:            enums.DeliveryTypePickup,
		Provider:        enums.CourierProviderWheely,
		ActorUserID:     job.CustomerID,
		CustomerAddress: customerAddress(),
		CustomerContact: customerContact(),
	})
	require.NoError(t, err)

	assert.Equal(t, "whl_42", delivery.ProviderOrderID)
	assert.Equal(t, int64(2000), delivery.EstimatedCostCents)
	assert.Equal(t, int64(100), delivery.AppCommissionCents)
	require.NotNil(t, delivery.TrackingReference)
	assert.Equal(t, "TRACK42", *delivery.TrackingReference)

	// pickup runs customer -> center
	require.Len(t, f.provider.booked, 1)
	booked := f.provider.booked[0]
	assert.Equal(t, "12 Elm St", booked.PickupAddress.Line1)
	assert.Equal(t, "400 Industrial Way", booked.DropoffAddress.Line1)
	assert.Equal(t, "Spin Cycle Repairs", booked.DropoffContact.Name)

	// booking alone does not move the job; the courier's delivered
	// webhook is what schedules the pickup
	updatedJob, err := f.jobsRepo.FindByID(context.Background(), job.ID)
	require.NoError(t, err)
	assert.Equal(t, enums.JobStatusQuoteAccepted, updatedJob.Status)

	history, err := f.repo.ListHistory(context.Background(), delivery.ID)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, "booked", history[0].RawStatus)
}

func TestScheduleReturnLegEndpoints(t *testing.T) {
	f := newDeliveriesFixture(t)
	job := f.seedJob(t, enums.JobStatusRepairCompleted)

	_, err := f.svc.Schedule(context.Background(), ScheduleInput{
		JobID:           job.ID,
		Type:            enums.DeliveryTypeReturn,
		Provider:        enums.CourierProviderWheely,
		ActorUserID:     uuid.New(),
		ActorCenterID:   &f.center.ID,
		CustomerAddress: customerAddress(),
		CustomerContact: customerContact(),
	})
	require.NoError(t, err)

	// return runs center -> customer
	require.Len(t, f.provider.booked, 1)
	booked := f.provider.booked[0]
	assert.Equal(t, "400 Industrial Way", booked.PickupAddress.Line1)
	assert.Equal(t, "12 Elm St", booked.DropoffAddress.Line1)
	assert.Equal(t, "Dana Ortiz", booked.DropoffContact.Name)

	// scheduling a return leaves the job status alone
	updatedJob, err := f.jobsRepo.FindByID(context.Background(), job.ID)
	require.NoError(t, err)
	assert.Equal(t, enums.JobStatusRepairCompleted, updatedJob.Status)
}

func TestSchedulePickupRequiresAcceptedQuote(t *testing.T) {
	f := newDeliveriesFixture(t)
	job := f.seedJob(t, enums.JobStatusRequested)

	_, err := f.svc.Schedule(context.Background(), ScheduleInput{
		JobID:           job.ID,
		Type:            enums.DeliveryTypePickup,
		Provider:        enums.CourierProviderWheely,
		ActorUserID:     job.CustomerID,
		CustomerAddress: customerAddress(),
		CustomerContact: customerContact(),
	})
	assertCode(t, err, pkgerrors.CodeStateConflict)
	assert.Empty(t, f.provider.booked, "no courier booking before the job gate passes")
}

func TestScheduleRejectsSecondOpenLeg(t *testing.T) {
	f := newDeliveriesFixture(t)
	job := f.seedJob(t, enums.JobStatusQuoteAccepted)

	input := ScheduleInput{
		JobID:           job.ID,
		Type:            enums.DeliveryTypePickup,
		Provider:        enums.CourierProviderWheely,
		ActorUserID:     job.CustomerID,
		CustomerAddress: customerAddress(),
		CustomerContact: customerContact(),
	}
	_, err := f.svc.Schedule(context.Background(), input)
	require.NoError(t, err)

	// the job is still quote_accepted, so only the open-leg check can
	// refuse the second booking
	_, err = f.svc.Schedule(context.Background(), input)
	assertCode(t, err, pkgerrors.CodeConflict)
}

func TestScheduleForbiddenForStranger(t *testing.T) {
	f := newDeliveriesFixture(t)
	job := f.seedJob(t, enums.JobStatusQuoteAccepted)

	_, err := f.svc.Schedule(context.Background(), ScheduleInput{
		JobID:           job.ID,
		Type:            enums.DeliveryTypePickup,
		Provider:        enums.CourierProviderWheely,
		ActorUserID:     uuid.New(),
		CustomerAddress: customerAddress(),
		CustomerContact: customerContact(),
	})
	assertCode(t, err, pkgerrors.CodeForbidden)
}

func TestScheduleReturnRequiresOwningCenter(t *testing.T) {
	f := newDeliveriesFixture(t)
	job := f.seedJob(t, enums.JobStatusRepairCompleted)
	otherCenter := uuid.New()

	_, err := f.svc.Schedule(context.Background(), ScheduleInput{
		JobID:           job.ID,
		Type:            enums.DeliveryTypeReturn,
		Provider:        enums.CourierProviderWheely,
		ActorUserID:     uuid.New(),
		ActorCenterID:   &otherCenter,
		CustomerAddress: customerAddress(),
		CustomerContact: customerContact(),
	})
	assertCode(t, err, pkgerrors.CodeForbidden)
}

func TestScheduleReleasesOrphanedBooking(t *testing.T) {
	f := newDeliveriesFixture(t)
	job := f.seedJob(t, enums.JobStatusQuoteAccepted)

	// another job already holds the provider order id the fake returns,
	// so the insert inside the transaction collides
	other := f.seedJob(t, enums.JobStatusPickupScheduled)
	require.NoError(t, f.db.Create(&models.DeliveryRequest{
		ID:              uuid.New(),
		JobID:           other.ID,
		Type:            enums.DeliveryTypePickup,
		Provider:        enums.CourierProviderWheely,
		ProviderOrderID: "whl_42",
		Status:          enums.DeliveryStatusAssigned,
	}).Error)

	_, err := f.svc.Schedule(context.Background(), ScheduleInput{
		JobID:           job.ID,
		Type:            enums.DeliveryTypePickup,
		Provider:        enums.CourierProviderWheely,
		ActorUserID:     job.CustomerID,
		CustomerAddress: customerAddress(),
		CustomerContact: customerContact(),
	})
	require.Error(t, err)

	require.Len(t, f.provider.cancelled, 1, "orphaned provider booking must be released")
	assert.Equal(t, "whl_42", f.provider.cancelled[0])
}

func TestCancelLeavesJobRebookable(t *testing.T) {
	f := newDeliveriesFixture(t)
	job := f.seedJob(t, enums.JobStatusQuoteAccepted)
	leg := &models.DeliveryRequest{
		ID:              uuid.New(),
		JobID:           job.ID,
		Type:            enums.DeliveryTypePickup,
		Provider:        enums.CourierProviderWheely,
		ProviderOrderID: "whl_42",
		Status:          enums.DeliveryStatusAssigned,
	}
	require.NoError(t, f.db.Create(leg).Error)

	err := f.svc.Cancel(context.Background(), CancelInput{
		DeliveryID:  leg.ID,
		ActorUserID: job.CustomerID,
	})
	require.NoError(t, err)

	assert.Equal(t, []string{"whl_42"}, f.provider.cancelled)

	reloaded, err := f.repo.FindByID(context.Background(), leg.ID)
	require.NoError(t, err)
	assert.Equal(t, enums.DeliveryStatusCancelled, reloaded.Status)

	history, err := f.repo.ListHistory(context.Background(), leg.ID)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, "cancelled_by_platform", history[0].RawStatus)

	// the job never left quote_accepted, so a fresh pickup leg can be
	// booked straight away
	updatedJob, err := f.jobsRepo.FindByID(context.Background(), job.ID)
	require.NoError(t, err)
	assert.Equal(t, enums.JobStatusQuoteAccepted, updatedJob.Status)

	f.provider.booking.ProviderOrderID = "whl_43"
	rebooked, err := f.svc.Schedule(context.Background(), ScheduleInput{
		JobID:           job.ID,
		Type:            enums.DeliveryTypePickup,
		Provider:        enums.CourierProviderWheely,
		ActorUserID:     job.CustomerID,
		CustomerAddress: customerAddress(),
		CustomerContact: customerContact(),
	})
	require.NoError(t, err)
	assert.Equal(t, "whl_43", rebooked.ProviderOrderID)
}

func TestCancelRefusedAfterPickup(t *testing.T) {
	f := newDeliveriesFixture(t)
	job := f.seedJob(t, enums.JobStatusQuoteAccepted)
	leg := &models.DeliveryRequest{
		ID:              uuid.New(),
		JobID:           job.ID,
		Type:            enums.DeliveryTypePickup,
		Provider:        enums.CourierProviderWheely,
		ProviderOrderID: "whl_42",
		Status:          enums.DeliveryStatusPickedUp,
	}
	require.NoError(t, f.db.Create(leg).Error)

	err := f.svc.Cancel(context.Background(), CancelInput{
		DeliveryID:  leg.ID,
		ActorUserID: job.CustomerID,
	})
	assertCode(t, err, pkgerrors.CodeStateConflict)
	assert.Empty(t, f.provider.cancelled)
}

func TestTrackForbiddenForStranger(t *testing.T) {
	f := newDeliveriesFixture(t)
	job := f.seedJob(t, enums.JobStatusPickupScheduled)
	leg := &models.DeliveryRequest{
		ID:              uuid.New(),
		JobID:           job.ID,
		Type:            enums.DeliveryTypePickup,
		Provider:        enums.CourierProviderWheely,
		ProviderOrderID: "whl_42",
		Status:          enums.DeliveryStatusAssigned,
	}
	require.NoError(t, f.db.Create(leg).Error)

	_, err := f.svc.Track(context.Background(), GetInput{
		DeliveryID:  leg.ID,
		ActorUserID: uuid.New(),
		ActorRole:   "customer",
	})
	assertCode(t, err, pkgerrors.CodeForbidden)

	// admin can always read
	_, err = f.svc.Track(context.Background(), GetInput{
		DeliveryID:  leg.ID,
		ActorUserID: uuid.New(),
		ActorRole:   "admin",
	})
	assert.NoError(t, err)
}
