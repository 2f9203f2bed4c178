package courierwebhook

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/dcastano/repairhub-backend/internal/couriers"
	"github.com/dcastano/repairhub-backend/internal/deliveries"
	"github.com/dcastano/repairhub-backend/internal/jobs"
	"github.com/dcastano/repairhub-backend/internal/webhooks"
	"github.com/dcastano/repairhub-backend/pkg/db/models"
	"github.com/dcastano/repairhub-backend/pkg/enums"
	pkgerrors "github.com/dcastano/repairhub-backend/pkg/errors"
	"github.com/dcastano/repairhub-backend/pkg/logger"
	"github.com/dcastano/repairhub-backend/pkg/metrics"
)

func setupWebhookTestDB(t *testing.T) *gorm.DB {
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
  provider_order_id TEXT NOT NULL,
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

// memStore is an in-memory stand-in for the redis idempotency store.
type memStore struct {
	mu   sync.Mutex
	keys map[string]string
}

func newMemStore() *memStore {
	return &memStore{keys: make(map[string]string)}
}

func (s *memStore) Get(ctx context.Context, key string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.keys[key], nil
}

func (s *memStore) SetNX(ctx context.Context, key string, value any, ttl time.Duration) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.keys[key]; ok {
		return false, nil
	}
	s.keys[key] = "1"
	return true, nil
}

func (s *memStore) IdempotencyKey(scope, id string) string {
	return "test:" + scope + ":" + id
}

func (s *memStore) Del(ctx context.Context, keys ...string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, key := range keys {
		delete(s.keys, key)
	}
	return nil
}

type fakeProvider struct {
	name        enums.CourierProvider
	trustedCash bool
}

var fakeStatusMap = map[string]enums.DeliveryStatus{
	"created":    enums.DeliveryStatusPending,
	"assigned":   enums.DeliveryStatusAssigned,
	"picked_up":  enums.DeliveryStatusPickedUp,
	"in_transit": enums.DeliveryStatusInTransit,
	"delivered":  enums.DeliveryStatusDelivered,
	"failed":     enums.DeliveryStatusFailed,
}

func (p fakeProvider) Name() enums.CourierProvider { return p.name }

func (p fakeProvider) Book(ctx context.Context, req couriers.BookingRequest) (*couriers.Booking, error) {
	return nil, nil
}

func (p fakeProvider) Cancel(ctx context.Context, providerOrderID string) error { return nil }

func (p fakeProvider) MapStatus(raw string) (enums.DeliveryStatus, bool) {
	status, ok := fakeStatusMap[raw]
	return status, ok
}

func (p fakeProvider) ConfirmsCashOnDelivery() bool { return p.trustedCash }

type webhookFixture struct {
	db             *gorm.DB
	svc            *Service
	deliveriesRepo deliveries.Repository
	jobsRepo       jobs.Repository
}

func newWebhookFixture(t *testing.T, trustedCash bool) *webhookFixture {
	t.Helper()

	db := setupWebhookTestDB(t)
	deliveriesRepo := deliveries.NewRepository(db)
	jobsRepo := jobs.NewRepository(db)

	guard, err := webhooks.NewIdempotencyGuard(newMemStore(), time.Hour, "courier")
	require.NoError(t, err)

	svc, err := NewService(ServiceParams{
		DeliveriesRepo: deliveriesRepo,
		JobsRepo:       jobsRepo,
		Providers:      couriers.NewRegistry(fakeProvider{name: enums.CourierProviderWheely, trustedCash: trustedCash}),
		Guard:          guard,
		TxRunner:       gormTxRunner{db: db},
		Metrics:        metrics.NewWebhookMetrics(prometheus.NewRegistry()),
		Logger:         logger.New(logger.Options{ServiceName: "test"}),
	})
	require.NoError(t, err)

	return &webhookFixture{db: db, svc: svc, deliveriesRepo: deliveriesRepo, jobsRepo: jobsRepo}
}

func (f *webhookFixture) seedJob(t *testing.T, status enums.JobStatus) *models.RepairJob {
	t.Helper()

	job := &models.RepairJob{
		ID:              uuid.New(),
		CustomerID:      uuid.New(),
		RepairCenterID:  uuid.New(),
		ApplianceType:   "dishwasher",
		Currency:        enums.CurrencyUSD,
		QuotedCostCents: 18000,
		Status:          status,
	}
	require.NoError(t, f.db.Create(job).Error)
	return job
}

func (f *webhookFixture) seedLeg(t *testing.T, jobID uuid.UUID, legType enums.DeliveryType, status enums.DeliveryStatus) *models.DeliveryRequest {
	t.Helper()

	leg := &models.DeliveryRequest{
		ID:              uuid.New(),
		JobID:           jobID,
		Type:            legType,
		Provider:        enums.CourierProviderWheely,
		ProviderOrderID: "whl_" + uuid.NewString()[:8],
		Status:          status,
	}
	require.NoError(t, f.db.Create(leg).Error)
	return leg
}

func (f *webhookFixture) reloadLeg(t *testing.T, id uuid.UUID) *models.DeliveryRequest {
	t.Helper()

	leg, err := f.deliveriesRepo.FindByID(context.Background(), id)
	require.NoError(t, err)
	return leg
}

func eventFor(leg *models.DeliveryRequest, eventID, raw string) Event {
	return Event{
		Provider:        leg.Provider,
		EventID:         eventID,
		ProviderOrderID: leg.ProviderOrderID,
		RawStatus:       raw,
	}
}

func TestProcessAdvancesDeliveryAndJob(t *testing.T) {
	f := newWebhookFixture(t, true)
	job := f.seedJob(t, enums.JobStatusQuoteAccepted)
	leg := f.seedLeg(t, job.ID, enums.DeliveryTypePickup, enums.DeliveryStatusInTransit)

	err := f.svc.Process(context.Background(), eventFor(leg, "evt-1", "delivered"))
	require.NoError(t, err)

	reloaded := f.reloadLeg(t, leg.ID)
	assert.Equal(t, enums.DeliveryStatusDelivered, reloaded.Status)
	assert.NotNil(t, reloaded.ActualDeliveryTime)
	assert.NotNil(t, reloaded.ActualPickupTime)

	// delivered pickup leg moves the job from quote_accepted to
	// pickup_scheduled
	updatedJob, err := f.jobsRepo.FindByID(context.Background(), job.ID)
	require.NoError(t, err)
	assert.Equal(t, enums.JobStatusPickupScheduled, updatedJob.Status)

	history, err := f.deliveriesRepo.ListHistory(context.Background(), leg.ID)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, enums.DeliveryStatusDelivered, history[0].Status)
	assert.Equal(t, "delivered", history[0].RawStatus)
}

func TestProcessReplayIsIdempotent(t *testing.T) {
	f := newWebhookFixture(t, true)
	job := f.seedJob(t, enums.JobStatusQuoteAccepted)
	leg := f.seedLeg(t, job.ID, enums.DeliveryTypePickup, enums.DeliveryStatusInTransit)

	event := eventFor(leg, "evt-replay", "delivered")
	require.NoError(t, f.svc.Process(context.Background(), event))

	first := f.reloadLeg(t, leg.ID)
	require.NotNil(t, first.ActualDeliveryTime)
	firstDeliveredAt := *first.ActualDeliveryTime

	require.NoError(t, f.svc.Process(context.Background(), event))

	// the replay leaves every state field where the first delivery put it
	second := f.reloadLeg(t, leg.ID)
	assert.Equal(t, enums.DeliveryStatusDelivered, second.Status)
	assert.Equal(t, firstDeliveredAt, *second.ActualDeliveryTime)

	updatedJob, err := f.jobsRepo.FindByID(context.Background(), job.ID)
	require.NoError(t, err)
	assert.Equal(t, enums.JobStatusPickupScheduled, updatedJob.Status)

	// but the audit trail records each receipt
	history, err := f.deliveriesRepo.ListHistory(context.Background(), leg.ID)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, "delivered", history[0].RawStatus)
	assert.Equal(t, "delivered", history[1].RawStatus)
}

func TestProcessOutOfOrderEventKeepsProjection(t *testing.T) {
	f := newWebhookFixture(t, true)
	job := f.seedJob(t, enums.JobStatusQuoteAccepted)
	leg := f.seedLeg(t, job.ID, enums.DeliveryTypePickup, enums.DeliveryStatusInTransit)

	require.NoError(t, f.svc.Process(context.Background(), eventFor(leg, "evt-late-first", "delivered")))

	delivered := f.reloadLeg(t, leg.ID)
	deliveredAt := *delivered.ActualDeliveryTime

	// the picked_up event arrives after delivered; projection and
	// timestamps must not regress, but the trail still records it
	require.NoError(t, f.svc.Process(context.Background(), eventFor(leg, "evt-late-second", "picked_up")))

	reloaded := f.reloadLeg(t, leg.ID)
	assert.Equal(t, enums.DeliveryStatusDelivered, reloaded.Status)
	assert.Equal(t, deliveredAt, *reloaded.ActualDeliveryTime)

	history, err := f.deliveriesRepo.ListHistory(context.Background(), leg.ID)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, enums.DeliveryStatusDelivered, history[1].Status, "stale event records the kept projection")
	assert.Equal(t, "picked_up", history[1].RawStatus)
}

func TestProcessUnknownStatusStillAudited(t *testing.T) {
	f := newWebhookFixture(t, true)
	job := f.seedJob(t, enums.JobStatusQuoteAccepted)
	leg := f.seedLeg(t, job.ID, enums.DeliveryTypePickup, enums.DeliveryStatusInTransit)

	err := f.svc.Process(context.Background(), eventFor(leg, "evt-odd", "driver_took_a_detour"))
	require.NoError(t, err)

	reloaded := f.reloadLeg(t, leg.ID)
	assert.Equal(t, enums.DeliveryStatusInTransit, reloaded.Status)

	history, err := f.deliveriesRepo.ListHistory(context.Background(), leg.ID)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, "driver_took_a_detour", history[0].RawStatus)
	assert.Equal(t, enums.DeliveryStatusInTransit, history[0].Status)
}

func TestProcessReturnLegDelivered(t *testing.T) {
	f := newWebhookFixture(t, true)
	job := f.seedJob(t, enums.JobStatusRepairCompleted)
	leg := f.seedLeg(t, job.ID, enums.DeliveryTypeReturn, enums.DeliveryStatusInTransit)

	err := f.svc.Process(context.Background(), eventFor(leg, "evt-return", "delivered"))
	require.NoError(t, err)

	updatedJob, err := f.jobsRepo.FindByID(context.Background(), job.ID)
	require.NoError(t, err)
	assert.Equal(t, enums.JobStatusReadyForReturn, updatedJob.Status)
}

func TestProcessCashCollectedTrustedProvider(t *testing.T) {
	f := newWebhookFixture(t, true)
	job := f.seedJob(t, enums.JobStatusRepairCompleted)
	leg := f.seedLeg(t, job.ID, enums.DeliveryTypeReturn, enums.DeliveryStatusInTransit)

	event := eventFor(leg, "evt-cash", "delivered")
	event.CashCollected = true
	require.NoError(t, f.svc.Process(context.Background(), event))

	reloaded := f.reloadLeg(t, leg.ID)
	assert.Equal(t, enums.CashPaymentStatusConfirmed, reloaded.CashPaymentStatus)
}

func TestProcessCashCollectedUntrustedProvider(t *testing.T) {
	f := newWebhookFixture(t, false)
	job := f.seedJob(t, enums.JobStatusRepairCompleted)
	leg := f.seedLeg(t, job.ID, enums.DeliveryTypeReturn, enums.DeliveryStatusInTransit)

	event := eventFor(leg, "evt-cash-review", "delivered")
	event.CashCollected = true
	require.NoError(t, f.svc.Process(context.Background(), event))

	reloaded := f.reloadLeg(t, leg.ID)
	assert.Equal(t, enums.CashPaymentStatusAwaitingConfirmation, reloaded.CashPaymentStatus)
}

func TestProcessUnknownOrderRejected(t *testing.T) {
	f := newWebhookFixture(t, true)

	err := f.svc.Process(context.Background(), Event{
		Provider:        enums.CourierProviderWheely,
		EventID:         "evt-ghost",
		ProviderOrderID: "whl_missing",
		RawStatus:       "delivered",
	})
	typed := pkgerrors.As(err)
	require.NotNil(t, typed)
	assert.Equal(t, pkgerrors.CodeNotFound, typed.Code())

	// a rejected event releases the dedupe key so the provider can retry
	err = f.svc.Process(context.Background(), Event{
		Provider:        enums.CourierProviderWheely,
		EventID:         "evt-ghost",
		ProviderOrderID: "whl_missing",
		RawStatus:       "delivered",
	})
	typed = pkgerrors.As(err)
	require.NotNil(t, typed)
	assert.Equal(t, pkgerrors.CodeNotFound, typed.Code())
}

func TestProcessUnconfiguredProvider(t *testing.T) {
	f := newWebhookFixture(t, true)

	err := f.svc.Process(context.Background(), Event{
		Provider:        enums.CourierProviderShipra,
		EventID:         "evt-x",
		ProviderOrderID: "shp_1",
		RawStatus:       "DELIVERED",
	})
	typed := pkgerrors.As(err)
	require.NotNil(t, typed)
	assert.Equal(t, pkgerrors.CodeValidation, typed.Code())
}
