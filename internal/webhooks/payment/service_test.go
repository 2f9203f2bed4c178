package paymentwebhook

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/dcastano/repairhub-backend/internal/payments"
	"github.com/dcastano/repairhub-backend/internal/webhooks"
	"github.com/dcastano/repairhub-backend/pkg/db/models"
	"github.com/dcastano/repairhub-backend/pkg/enums"
	pkgerrors "github.com/dcastano/repairhub-backend/pkg/errors"
	"github.com/dcastano/repairhub-backend/pkg/logger"
	"github.com/dcastano/repairhub-backend/pkg/metrics"
)

type stubPaymentsRepo struct {
	bySession map[string]*models.Payment
	updates   []map[string]any
}

func newStubPaymentsRepo() *stubPaymentsRepo {
	return &stubPaymentsRepo{bySession: make(map[string]*models.Payment)}
}

func (s *stubPaymentsRepo) WithTx(tx *gorm.DB) payments.Repository { return s }

func (s *stubPaymentsRepo) Create(ctx context.Context, payment *models.Payment) (*models.Payment, error) {
	if payment.ProviderSessionID != nil {
		s.bySession[*payment.ProviderSessionID] = payment
	}
	return payment, nil
}

func (s *stubPaymentsRepo) FindByID(ctx context.Context, id uuid.UUID) (*models.Payment, error) {
	for _, payment := range s.bySession {
		if payment.ID == id {
			return payment, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (s *stubPaymentsRepo) FindByJob(ctx context.Context, jobID uuid.UUID) ([]models.Payment, error) {
	return nil, nil
}

func (s *stubPaymentsRepo) FindBySessionIDForUpdate(ctx context.Context, sessionID string) (*models.Payment, error) {
	payment, ok := s.bySession[sessionID]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	return payment, nil
}

func (s *stubPaymentsRepo) Update(ctx context.Context, id uuid.UUID, updates map[string]any) error {
	payment, err := s.FindByID(ctx, id)
	if err != nil {
		return err
	}
	s.updates = append(s.updates, updates)
	if status, ok := updates["status"].(enums.PaymentStatus); ok {
		payment.Status = status
	}
	if paidAt, ok := updates["paid_at"].(time.Time); ok {
		payment.PaidAt = &paidAt
	}
	if txnID, ok := updates["provider_transaction_id"].(string); ok {
		payment.ProviderTransactionID = &txnID
	}
	return nil
}

type stubTxRunner struct{}

func (stubTxRunner) WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error {
	return fn(nil)
}

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

func newPaymentWebhookService(t *testing.T, repo payments.Repository) *Service {
	t.Helper()

	guard, err := webhooks.NewIdempotencyGuard(newMemStore(), time.Hour, "payment")
	require.NoError(t, err)

	svc, err := NewService(ServiceParams{
		Repo:     repo,
		Guard:    guard,
		TxRunner: stubTxRunner{},
		Metrics:  metrics.NewWebhookMetrics(prometheus.NewRegistry()),
		Logger:   logger.New(logger.Options{ServiceName: "test"}),
	})
	require.NoError(t, err)
	return svc
}

func seedPayment(repo *stubPaymentsRepo, sessionID string, status enums.PaymentStatus) *models.Payment {
	payment := &models.Payment{
		ID:                uuid.New(),
		JobID:             uuid.New(),
		Provider:          "checkout",
		ProviderSessionID: &sessionID,
		Status:            status,
		AmountCents:       20000,
		Currency:          enums.CurrencyUSD,
	}
	repo.bySession[sessionID] = payment
	return payment
}

func TestProcessCheckoutCompleted(t *testing.T) {
	repo := newStubPaymentsRepo()
	payment := seedPayment(repo, "cs_1", enums.PaymentStatusPending)
	svc := newPaymentWebhookService(t, repo)

	occurred := time.Date(2026, time.April, 2, 9, 30, 0, 0, time.UTC)
	err := svc.Process(context.Background(), Event{
		EventID:       "evt-1",
		Type:          EventCheckoutCompleted,
		SessionID:     "cs_1",
		TransactionID: "txn_789",
		OccurredAt:    &occurred,
	})
	require.NoError(t, err)

	assert.Equal(t, enums.PaymentStatusCompleted, payment.Status)
	require.NotNil(t, payment.PaidAt)
	assert.Equal(t, occurred, *payment.PaidAt)
	require.NotNil(t, payment.ProviderTransactionID)
	assert.Equal(t, "txn_789", *payment.ProviderTransactionID)
}

func TestProcessLateFailureAfterSuccessIgnored(t *testing.T) {
	repo := newStubPaymentsRepo()
	payment := seedPayment(repo, "cs_1", enums.PaymentStatusCompleted)
	svc := newPaymentWebhookService(t, repo)

	err := svc.Process(context.Background(), Event{
		EventID:   "evt-late",
		Type:      EventPaymentIntentFailed,
		SessionID: "cs_1",
	})
	require.NoError(t, err)

	assert.Equal(t, enums.PaymentStatusCompleted, payment.Status)
	assert.Empty(t, repo.updates)
}

func TestProcessSameStatusNoOp(t *testing.T) {
	repo := newStubPaymentsRepo()
	seedPayment(repo, "cs_1", enums.PaymentStatusFailed)
	svc := newPaymentWebhookService(t, repo)

	err := svc.Process(context.Background(), Event{
		EventID:   "evt-again",
		Type:      EventCheckoutExpired,
		SessionID: "cs_1",
	})
	require.NoError(t, err)
	assert.Empty(t, repo.updates)
}

func TestProcessReplayShortCircuits(t *testing.T) {
	repo := newStubPaymentsRepo()
	seedPayment(repo, "cs_1", enums.PaymentStatusPending)
	svc := newPaymentWebhookService(t, repo)

	event := Event{
		EventID:   "evt-dup",
		Type:      EventCheckoutCompleted,
		SessionID: "cs_1",
	}
	require.NoError(t, svc.Process(context.Background(), event))
	require.NoError(t, svc.Process(context.Background(), event))

	assert.Len(t, repo.updates, 1)
}

func TestProcessUnrecognizedTypeAccepted(t *testing.T) {
	repo := newStubPaymentsRepo()
	seedPayment(repo, "cs_1", enums.PaymentStatusPending)
	svc := newPaymentWebhookService(t, repo)

	err := svc.Process(context.Background(), Event{
		EventID:   "evt-odd",
		Type:      "charge.refund_opened",
		SessionID: "cs_1",
	})
	require.NoError(t, err)
	assert.Empty(t, repo.updates)
}

func TestProcessUnknownSessionReleasesDedupeKey(t *testing.T) {
	repo := newStubPaymentsRepo()
	svc := newPaymentWebhookService(t, repo)

	event := Event{
		EventID:   "evt-ghost",
		Type:      EventCheckoutCompleted,
		SessionID: "cs_missing",
	}
	err := svc.Process(context.Background(), event)
	typed := pkgerrors.As(err)
	require.NotNil(t, typed)
	assert.Equal(t, pkgerrors.CodeNotFound, typed.Code())

	// the key was released, so the provider's retry is processed again
	// rather than swallowed as a duplicate
	err = svc.Process(context.Background(), event)
	typed = pkgerrors.As(err)
	require.NotNil(t, typed)
	assert.Equal(t, pkgerrors.CodeNotFound, typed.Code())
}

func TestProcessRequiresIdentifiers(t *testing.T) {
	svc := newPaymentWebhookService(t, newStubPaymentsRepo())

	cases := []Event{
		{Type: EventCheckoutCompleted, SessionID: "cs_1"},
		{EventID: "evt-1", Type: EventCheckoutCompleted},
	}
	for _, event := range cases {
		err := svc.Process(context.Background(), event)
		typed := pkgerrors.As(err)
		require.NotNil(t, typed)
		assert.Equal(t, pkgerrors.CodeValidation, typed.Code())
	}
}
