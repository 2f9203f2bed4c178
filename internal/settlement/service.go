package settlement

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/dcastano/repairhub-backend/internal/notifications"
	"github.com/dcastano/repairhub-backend/pkg/db"
	"github.com/dcastano/repairhub-backend/pkg/db/models"
	"github.com/dcastano/repairhub-backend/pkg/enums"
	pkgerrors "github.com/dcastano/repairhub-backend/pkg/errors"
	"github.com/dcastano/repairhub-backend/pkg/logger"
	"github.com/dcastano/repairhub-backend/pkg/metrics"
	"github.com/dcastano/repairhub-backend/pkg/pagination"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

const payoutMethodBankTransfer = "bank_transfer"

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// Service computes settlement splits and processes payout batches.
type Service interface {
	// CreateForJob opens the pending payout for a freshly completed job.
	// Runs inside the caller's transaction so job completion and payout
	// creation commit together.
	CreateForJob(ctx context.Context, tx *gorm.DB, job *models.RepairJob) (*models.Payout, error)
	ProcessBatch(ctx context.Context, input ProcessBatchInput) (*BatchResult, error)
	ListByCenter(ctx context.Context, params ListParams) (*ListResult, error)
}

type service struct {
	repo       Repository
	tx         txRunner
	dispatcher notifications.Dispatcher
	metrics    *metrics.PayoutMetrics
	logg       *logger.Logger
	commission decimal.Decimal
}

// ServiceParams wires the settlement service dependencies.
type ServiceParams struct {
	Repo             Repository
	TxRunner         txRunner
	Dispatcher       notifications.Dispatcher
	Metrics          *metrics.PayoutMetrics
	Logger           *logger.Logger
	RepairCommission decimal.Decimal
}

// NewService builds the settlement service.
func NewService(params ServiceParams) (Service, error) {
	if params.Repo == nil {
		return nil, fmt.Errorf("settlement repository required")
	}
	if params.TxRunner == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if params.Dispatcher == nil {
		return nil, fmt.Errorf("notification dispatcher required")
	}
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.RepairCommission.IsNegative() || params.RepairCommission.GreaterThan(decimal.NewFromInt(1)) {
		return nil, fmt.Errorf("repair commission rate out of range")
	}
	return &service{
		repo:       params.Repo,
		tx:         params.TxRunner,
		dispatcher: params.Dispatcher,
		metrics:    params.Metrics,
		logg:       params.Logger,
		commission: params.RepairCommission,
	}, nil
}

// ProcessBatchInput identifies the payouts an admin wants settled together.
type ProcessBatchInput struct {
	PayoutIDs []uuid.UUID
	BatchRef  string
}

// BatchItem reports the outcome of one payout in a batch.
type BatchItem struct {
	PayoutID  uuid.UUID `json:"payout_id"`
	Reference string    `json:"reference,omitempty"`
	Reason    string    `json:"reason,omitempty"`
}

// BatchResult partitions a batch run into settled and failed items. A
// failed item never aborts the rest of the batch.
type BatchResult struct {
	BatchRef  string      `json:"batch_ref"`
	Succeeded []BatchItem `json:"succeeded"`
	Failed    []BatchItem `json:"failed"`
}

// ListParams configures the payout listing for a repair center.
type ListParams struct {
	CenterID uuid.UUID
	Limit    int
	Cursor   string
	Status   string
}

// ListResult wraps payouts and the cursor for the next page.
type ListResult struct {
	Items  []models.Payout `json:"items"`
	Cursor string          `json:"cursor"`
}

// Split computes the commission and net amounts for a gross repair cost.
// Commission rounds to the nearest cent; the net is whatever remains, so
// the two always sum back to gross.
func (s *service) Split(grossCents int64) (commissionCents, netCents int64) {
	gross := decimal.NewFromInt(grossCents)
	commissionCents = gross.Mul(s.commission).Round(0).IntPart()
	netCents = grossCents - commissionCents
	return commissionCents, netCents
}

func (s *service) CreateForJob(ctx context.Context, tx *gorm.DB, job *models.RepairJob) (*models.Payout, error) {
	if job == nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "job required")
	}

	gross := job.SettlementGrossCents()
	if gross <= 0 {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "job has no settleable amount")
	}
	commission, net := s.Split(gross)

	payout := &models.Payout{
		JobID:           job.ID,
		RepairCenterID:  job.RepairCenterID,
		GrossCents:      gross,
		CommissionCents: commission,
		NetCents:        net,
		Currency:        job.Currency,
		Status:          enums.PayoutStatusPending,
	}
	if err := s.repo.WithTx(tx).Create(ctx, payout); err != nil {
		if db.IsUniqueViolation(err, "idx_payout_job") {
			return nil, pkgerrors.New(pkgerrors.CodeConflict, "payout already exists for job")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create payout")
	}
	return payout, nil
}

func (s *service) ProcessBatch(ctx context.Context, input ProcessBatchInput) (*BatchResult, error) {
	if len(input.PayoutIDs) == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "at least one payout id required")
	}
	batchRef := strings.TrimSpace(input.BatchRef)
	if batchRef == "" {
		batchRef = fmt.Sprintf("batch-%s", time.Now().UTC().Format("20060102-150405"))
	}

	result := &BatchResult{BatchRef: batchRef}
	for n, payoutID := range input.PayoutIDs {
		reference := fmt.Sprintf("%s-%d", batchRef, n+1)
		payout, err := s.settleOne(ctx, payoutID, reference)
		if err != nil {
			reason := err.Error()
			if typed := pkgerrors.As(err); typed != nil {
				reason = typed.Message()
			}
			result.Failed = append(result.Failed, BatchItem{PayoutID: payoutID, Reason: reason})
			s.metrics.IncProcessed("failure")
			logCtx := s.logg.WithFields(ctx, map[string]any{"payout_id": payoutID.String()})
			s.logg.Warn(logCtx, "payout item failed: "+reason)
			continue
		}
		result.Succeeded = append(result.Succeeded, BatchItem{PayoutID: payoutID, Reference: reference})
		s.metrics.IncProcessed("success")

		s.dispatcher.Dispatch(ctx, notifications.Event{
			Type:           enums.NotificationTypePayoutProcessed,
			JobID:          payout.JobID,
			RepairCenterID: &payout.RepairCenterID,
			Title:          "Payout settled",
			Extra: map[string]any{
				"reference": reference,
				"net_cents": payout.NetCents,
			},
		})
	}
	return result, nil
}

// settleOne runs a single payout in its own transaction and returns the
// settled row. A failed item is recorded on the payout row itself so
// retries see the last failure reason.
func (s *service) settleOne(ctx context.Context, payoutID uuid.UUID, reference string) (*models.Payout, error) {
	var settled *models.Payout
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		payout, err := repo.FindByIDForUpdate(ctx, payoutID)
		if err != nil {
			if err == gorm.ErrRecordNotFound {
				return pkgerrors.New(pkgerrors.CodeNotFound, "payout not found")
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load payout")
		}
		if payout.Status == enums.PayoutStatusCompleted {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "payout already settled")
		}

		if _, err := repo.ActiveBankAccount(ctx, payout.RepairCenterID); err != nil {
			if err == gorm.ErrRecordNotFound {
				reason := "no active bank account on file"
				if updateErr := repo.Update(ctx, payout.ID, map[string]any{
					"status":         enums.PayoutStatusFailed,
					"failure_reason": reason,
				}); updateErr != nil {
					return pkgerrors.Wrap(pkgerrors.CodeDependency, updateErr, "record payout failure")
				}
				return pkgerrors.New(pkgerrors.CodeStateConflict, reason)
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load bank account")
		}

		now := time.Now().UTC()
		if err := repo.Update(ctx, payout.ID, map[string]any{
			"status":         enums.PayoutStatusCompleted,
			"method":         payoutMethodBankTransfer,
			"reference":      reference,
			"failure_reason": nil,
			"payout_date":    now,
		}); err != nil {
			return err
		}
		settled = payout
		return nil
	})
	if err != nil {
		return nil, err
	}
	return settled, nil
}

func (s *service) ListByCenter(ctx context.Context, params ListParams) (*ListResult, error) {
	if params.CenterID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "repair center id required")
	}

	query := listPayoutsParams{
		CenterID: params.CenterID,
		Limit:    params.Limit,
		Status:   params.Status,
	}
	if params.Cursor != "" {
		cursor, err := pagination.ParseCursor(params.Cursor)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor")
		}
		query.Cursor = cursor
	}

	rows, next, err := s.repo.ListByCenter(ctx, query)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list payouts")
	}

	cursor := ""
	if next != nil {
		cursor = pagination.EncodeCursor(*next)
	}
	return &ListResult{Items: rows, Cursor: cursor}, nil
}
