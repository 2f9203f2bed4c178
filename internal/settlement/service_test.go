package settlement

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/dcastano/repairhub-backend/internal/notifications"
	"github.com/dcastano/repairhub-backend/pkg/db/models"
	"github.com/dcastano/repairhub-backend/pkg/enums"
	pkgerrors "github.com/dcastano/repairhub-backend/pkg/errors"
	"github.com/dcastano/repairhub-backend/pkg/logger"
	"github.com/dcastano/repairhub-backend/pkg/metrics"
	"github.com/dcastano/repairhub-backend/pkg/pagination"
)

type stubSettlementRepo struct {
	payouts  map[uuid.UUID]*models.Payout
	accounts map[uuid.UUID]*models.BankAccount
	created  []*models.Payout
}

func newStubSettlementRepo() *stubSettlementRepo {
	return &stubSettlementRepo{
		payouts:  make(map[uuid.UUID]*models.Payout),
		accounts: make(map[uuid.UUID]*models.BankAccount),
	}
}

func (s *stubSettlementRepo) WithTx(tx *gorm.DB) Repository { return s }

func (s *stubSettlementRepo) Create(ctx context.Context, payout *models.Payout) error {
	if payout.ID == uuid.Nil {
		payout.ID = uuid.New()
	}
	s.payouts[payout.ID] = payout
	s.created = append(s.created, payout)
	return nil
}

func (s *stubSettlementRepo) FindByID(ctx context.Context, id uuid.UUID) (*models.Payout, error) {
	payout, ok := s.payouts[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	return payout, nil
}

func (s *stubSettlementRepo) FindByIDForUpdate(ctx context.Context, id uuid.UUID) (*models.Payout, error) {
	return s.FindByID(ctx, id)
}

func (s *stubSettlementRepo) Update(ctx context.Context, id uuid.UUID, updates map[string]any) error {
	payout, ok := s.payouts[id]
	if !ok {
		return gorm.ErrRecordNotFound
	}
	if status, ok := updates["status"].(enums.PayoutStatus); ok {
		payout.Status = status
	}
	if reason, ok := updates["failure_reason"].(string); ok {
		payout.FailureReason = &reason
	} else if v, present := updates["failure_reason"]; present && v == nil {
		payout.FailureReason = nil
	}
	if reference, ok := updates["reference"].(string); ok {
		payout.Reference = &reference
	}
	return nil
}

func (s *stubSettlementRepo) ListByCenter(ctx context.Context, params listPayoutsParams) ([]models.Payout, *pagination.Cursor, error) {
	var rows []models.Payout
	for _, payout := range s.payouts {
		if payout.RepairCenterID == params.CenterID {
			rows = append(rows, *payout)
		}
	}
	return rows, nil, nil
}

func (s *stubSettlementRepo) ActiveBankAccount(ctx context.Context, centerID uuid.UUID) (*models.BankAccount, error) {
	account, ok := s.accounts[centerID]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	return account, nil
}

type stubTxRunner struct{}

func (stubTxRunner) WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error {
	return fn(nil)
}

type stubDispatcher struct {
	events []notifications.Event
}

func (s *stubDispatcher) Dispatch(ctx context.Context, event notifications.Event) {
	s.events = append(s.events, event)
}

func newSettlementService(t *testing.T, repo Repository) (Service, *stubDispatcher) {
	t.Helper()

	dispatcher := &stubDispatcher{}
	svc, err := NewService(ServiceParams{
		Repo:             repo,
		TxRunner:         stubTxRunner{},
		Dispatcher:       dispatcher,
		Metrics:          metrics.NewPayoutMetrics(prometheus.NewRegistry()),
		Logger:           logger.New(logger.Options{ServiceName: "test"}),
		RepairCommission: decimal.RequireFromString("0.075"),
	})
	require.NoError(t, err)
	return svc, dispatcher
}

func TestSplit(t *testing.T) {
	svcIface, _ := newSettlementService(t, newStubSettlementRepo())
	svc := svcIface.(*service)

	cases := []struct {
		gross      int64
		commission int64
		net        int64
	}{
		{100000, 7500, 92500},
		{20000, 1500, 18500},
		{1, 0, 1},
		{99, 7, 92},
		{13333, 1000, 12333},
	}
	for _, tc := range cases {
		commission, net := svc.Split(tc.gross)
		assert.Equal(t, tc.commission, commission, "gross %d", tc.gross)
		assert.Equal(t, tc.net, net, "gross %d", tc.gross)
		assert.Equal(t, tc.gross, commission+net, "split must sum back to gross")
	}
}

func TestCreateForJobPrefersFinalCost(t *testing.T) {
	repo := newStubSettlementRepo()
	svc, _ := newSettlementService(t, repo)

	final := int64(30000)
	job := &models.RepairJob{
		ID:              uuid.New(),
		RepairCenterID:  uuid.New(),
		QuotedCostCents: 20000,
		FinalCostCents:  &final,
		Currency:        enums.CurrencyUSD,
	}

	payout, err := svc.CreateForJob(context.Background(), nil, job)
	require.NoError(t, err)

	assert.Equal(t, int64(30000), payout.GrossCents)
	assert.Equal(t, int64(2250), payout.CommissionCents)
	assert.Equal(t, int64(27750), payout.NetCents)
	assert.Equal(t, enums.PayoutStatusPending, payout.Status)
}

func TestProcessBatchPartialFailure(t *testing.T) {
	repo := newStubSettlementRepo()
	svc, dispatcher := newSettlementService(t, repo)

	fundedCenter := uuid.New()
	unfundedCenter := uuid.New()
	repo.accounts[fundedCenter] = &models.BankAccount{ID: uuid.New(), RepairCenterID: fundedCenter, Active: true}

	funded := &models.Payout{ID: uuid.New(), RepairCenterID: fundedCenter, GrossCents: 10000, Status: enums.PayoutStatusPending}
	unfunded := &models.Payout{ID: uuid.New(), RepairCenterID: unfundedCenter, GrossCents: 10000, Status: enums.PayoutStatusPending}
	repo.payouts[funded.ID] = funded
	repo.payouts[unfunded.ID] = unfunded

	result, err := svc.ProcessBatch(context.Background(), ProcessBatchInput{
		PayoutIDs: []uuid.UUID{funded.ID, unfunded.ID},
		BatchRef:  "batch-test",
	})
	require.NoError(t, err)

	require.Len(t, result.Succeeded, 1)
	assert.Equal(t, funded.ID, result.Succeeded[0].PayoutID)
	assert.Equal(t, "batch-test-1", result.Succeeded[0].Reference)
	assert.Equal(t, enums.PayoutStatusCompleted, funded.Status)

	require.Len(t, result.Failed, 1)
	assert.Equal(t, unfunded.ID, result.Failed[0].PayoutID)
	assert.Equal(t, "no active bank account on file", result.Failed[0].Reason)
	assert.Equal(t, enums.PayoutStatusFailed, unfunded.Status)
	require.NotNil(t, unfunded.FailureReason)
	assert.Equal(t, "no active bank account on file", *unfunded.FailureReason)

	// only the settled payout notifies its center
	require.Len(t, dispatcher.events, 1)
	assert.Equal(t, enums.NotificationTypePayoutProcessed, dispatcher.events[0].Type)
	require.NotNil(t, dispatcher.events[0].RepairCenterID)
	assert.Equal(t, fundedCenter, *dispatcher.events[0].RepairCenterID)
}

func TestProcessBatchNotifiesPerSettledPayout(t *testing.T) {
	repo := newStubSettlementRepo()
	svc, dispatcher := newSettlementService(t, repo)

	centerID := uuid.New()
	repo.accounts[centerID] = &models.BankAccount{ID: uuid.New(), RepairCenterID: centerID, Active: true}

	first := &models.Payout{ID: uuid.New(), JobID: uuid.New(), RepairCenterID: centerID, GrossCents: 10000, NetCents: 9250, Status: enums.PayoutStatusPending}
	second := &models.Payout{ID: uuid.New(), JobID: uuid.New(), RepairCenterID: centerID, GrossCents: 20000, NetCents: 18500, Status: enums.PayoutStatusPending}
	repo.payouts[first.ID] = first
	repo.payouts[second.ID] = second

	result, err := svc.ProcessBatch(context.Background(), ProcessBatchInput{
		PayoutIDs: []uuid.UUID{first.ID, second.ID},
		BatchRef:  "batch-notify",
	})
	require.NoError(t, err)
	require.Len(t, result.Succeeded, 2)

	require.Len(t, dispatcher.events, 2)
	assert.Equal(t, first.JobID, dispatcher.events[0].JobID)
	assert.Equal(t, "batch-notify-1", dispatcher.events[0].Extra["reference"])
	assert.Equal(t, second.JobID, dispatcher.events[1].JobID)
	assert.Equal(t, "batch-notify-2", dispatcher.events[1].Extra["reference"])
	for _, event := range dispatcher.events {
		assert.Equal(t, enums.NotificationTypePayoutProcessed, event.Type)
	}
}

func TestProcessBatchSkipsSettledPayout(t *testing.T) {
	repo := newStubSettlementRepo()
	svc, dispatcher := newSettlementService(t, repo)

	centerID := uuid.New()
	repo.accounts[centerID] = &models.BankAccount{ID: uuid.New(), RepairCenterID: centerID, Active: true}
	settled := &models.Payout{ID: uuid.New(), RepairCenterID: centerID, GrossCents: 10000, Status: enums.PayoutStatusCompleted}
	repo.payouts[settled.ID] = settled

	result, err := svc.ProcessBatch(context.Background(), ProcessBatchInput{
		PayoutIDs: []uuid.UUID{settled.ID},
	})
	require.NoError(t, err)

	assert.Empty(t, result.Succeeded)
	require.Len(t, result.Failed, 1)
	assert.Equal(t, "payout already settled", result.Failed[0].Reason)
	assert.Empty(t, dispatcher.events)
}

func TestProcessBatchMissingPayout(t *testing.T) {
	repo := newStubSettlementRepo()
	svc, _ := newSettlementService(t, repo)

	result, err := svc.ProcessBatch(context.Background(), ProcessBatchInput{
		PayoutIDs: []uuid.UUID{uuid.New()},
	})
	require.NoError(t, err)
	require.Len(t, result.Failed, 1)
	assert.Equal(t, "payout not found", result.Failed[0].Reason)
}

func TestProcessBatchRequiresIDs(t *testing.T) {
	svc, _ := newSettlementService(t, newStubSettlementRepo())

	_, err := svc.ProcessBatch(context.Background(), ProcessBatchInput{})
	typed := pkgerrors.As(err)
	require.NotNil(t, typed)
	assert.Equal(t, pkgerrors.CodeValidation, typed.Code())
}
