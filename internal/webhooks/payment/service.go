package paymentwebhook

import (
	"context"
	"fmt"
	"time"

	"github.com/dcastano/repairhub-backend/internal/payments"
	"github.com/dcastano/repairhub-backend/internal/webhooks"
	pkgerrors "github.com/dcastano/repairhub-backend/pkg/errors"
	"github.com/dcastano/repairhub-backend/pkg/logger"
	"github.com/dcastano/repairhub-backend/pkg/metrics"
	"gorm.io/gorm"

	"github.com/dcastano/repairhub-backend/pkg/enums"
)

const providerLabel = "payment"

// Event types the payment provider emits.
const (
	EventCheckoutCompleted      = "checkout.completed"
	EventCheckoutExpired        = "checkout.expired"
	EventPaymentIntentSucceeded = "payment_intent.succeeded"
	EventPaymentIntentFailed    = "payment_intent.failed"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// Event is a normalized payment provider callback.
type Event struct {
	EventID       string
	Type          string
	SessionID     string
	TransactionID string
	OccurredAt    *time.Time
}

// Service reconciles payment webhook events against payment rows.
type Service struct {
	repo    payments.Repository
	guard   *webhooks.IdempotencyGuard
	tx      txRunner
	metrics *metrics.WebhookMetrics
	logg    *logger.Logger
}

// ServiceParams wires the payment reconciler dependencies.
type ServiceParams struct {
	Repo     payments.Repository
	Guard    *webhooks.IdempotencyGuard
	TxRunner txRunner
	Metrics  *metrics.WebhookMetrics
	Logger   *logger.Logger
}

// NewService builds the payment webhook reconciler.
func NewService(params ServiceParams) (*Service, error) {
	if params.Repo == nil {
		return nil, fmt.Errorf("payments repository required")
	}
	if params.Guard == nil {
		return nil, fmt.Errorf("idempotency guard required")
	}
	if params.TxRunner == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &Service{
		repo:    params.Repo,
		guard:   params.Guard,
		tx:      params.TxRunner,
		metrics: params.Metrics,
		logg:    params.Logger,
	}, nil
}

// Process applies one payment event. Terminal payment rows are never
// rewritten; replays and late failure events after a success are
// acknowledged without effect.
func (s *Service) Process(ctx context.Context, event Event) error {
	if event.EventID == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "event id required")
	}
	if event.SessionID == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "session id required")
	}

	logCtx := s.logg.WithFields(ctx, map[string]any{
		"event_id":   event.EventID,
		"event_type": event.Type,
		"session_id": event.SessionID,
	})

	seen, err := s.guard.CheckAndMark(ctx, event.EventID)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "idempotency check")
	}
	if seen {
		s.metrics.IncDuplicate(providerLabel)
		s.logg.Info(logCtx, "payment event already processed")
		return nil
	}

	target, recognized := targetStatus(event.Type)
	if !recognized {
		s.logg.Info(logCtx, "unhandled payment event type")
		s.metrics.IncAccepted(providerLabel)
		return nil
	}

	if err := s.reconcile(ctx, logCtx, event, target); err != nil {
		_ = s.guard.Delete(ctx, event.EventID)
		s.metrics.IncRejected(providerLabel)
		return err
	}
	s.metrics.IncAccepted(providerLabel)
	return nil
}

func targetStatus(eventType string) (enums.PaymentStatus, bool) {
	switch eventType {
	case EventCheckoutCompleted, EventPaymentIntentSucceeded:
		return enums.PaymentStatusCompleted, true
	case EventCheckoutExpired, EventPaymentIntentFailed:
		return enums.PaymentStatusFailed, true
	}
	return "", false
}

func (s *Service) reconcile(ctx context.Context, logCtx context.Context, event Event, target enums.PaymentStatus) error {
	occurredAt := time.Now().UTC()
	if event.OccurredAt != nil {
		occurredAt = event.OccurredAt.UTC()
	}

	return s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		payment, err := repo.FindBySessionIDForUpdate(ctx, event.SessionID)
		if err != nil {
			if err == gorm.ErrRecordNotFound {
				return pkgerrors.New(pkgerrors.CodeNotFound, "payment not found for session")
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load payment")
		}

		// completed is terminal: a late failure or expiry event for the
		// same session must not undo a successful payment
		if payment.Status == enums.PaymentStatusCompleted {
			s.logg.Info(logCtx, "payment already completed, ignoring event")
			return nil
		}
		if payment.Status == target {
			s.logg.Info(logCtx, "payment already in target status")
			return nil
		}

		updates := map[string]any{
			"status": target,
		}
		if target == enums.PaymentStatusCompleted {
			updates["paid_at"] = occurredAt
			if event.TransactionID != "" {
				updates["provider_transaction_id"] = event.TransactionID
			}
		}
		if err := repo.Update(ctx, payment.ID, updates); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update payment")
		}
		return nil
	})
}
