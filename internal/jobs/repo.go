package jobs

import (
	"context"

	"github.com/dcastano/repairhub-backend/pkg/db/models"
	"github.com/dcastano/repairhub-backend/pkg/enums"
	"github.com/dcastano/repairhub-backend/pkg/pagination"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Repository persists repair jobs.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, job *models.RepairJob) (*models.RepairJob, error)
	FindByID(ctx context.Context, id uuid.UUID) (*models.RepairJob, error)
	// FindByIDForUpdate locks the job row for the remainder of the
	// surrounding transaction. The completion gate depends on this to
	// evaluate both confirmation flags against current state.
	FindByIDForUpdate(ctx context.Context, id uuid.UUID) (*models.RepairJob, error)
	Update(ctx context.Context, id uuid.UUID, updates map[string]any) error
	List(ctx context.Context, params listJobsParams) ([]models.RepairJob, *pagination.Cursor, error)
}

type listJobsParams struct {
	CustomerID *uuid.UUID
	CenterID   *uuid.UUID
	Status     enums.JobStatus
	Limit      int
	Cursor     *pagination.Cursor
}

type repository struct {
	db *gorm.DB
}

// NewRepository builds a jobs repository bound to the provided DB.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) Create(ctx context.Context, job *models.RepairJob) (*models.RepairJob, error) {
	if err := r.db.WithContext(ctx).Create(job).Error; err != nil {
		return nil, err
	}
	return job, nil
}

func (r *repository) FindByID(ctx context.Context, id uuid.UUID) (*models.RepairJob, error) {
	var job models.RepairJob
	err := r.db.WithContext(ctx).
		Where("id = ?", id).
		First(&job).Error
	if err != nil {
		return nil, err
	}
	return &job, nil
}

func (r *repository) FindByIDForUpdate(ctx context.Context, id uuid.UUID) (*models.RepairJob, error) {
	var job models.RepairJob
	err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id = ?", id).
		First(&job).Error
	if err != nil {
		return nil, err
	}
	return &job, nil
}

func (r *repository) Update(ctx context.Context, id uuid.UUID, updates map[string]any) error {
	return r.db.WithContext(ctx).
		Model(&models.RepairJob{}).
		Where("id = ?", id).
		Updates(updates).Error
}

func (r *repository) List(ctx context.Context, params listJobsParams) ([]models.RepairJob, *pagination.Cursor, error) {
	limit := pagination.LimitWithBuffer(params.Limit)
	normalized := pagination.NormalizeLimit(params.Limit)
	query := r.db.WithContext(ctx).Model(&models.RepairJob{})
	if params.CustomerID != nil {
		query = query.Where("customer_id = ?", *params.CustomerID)
	}
	if params.CenterID != nil {
		query = query.Where("repair_center_id = ?", *params.CenterID)
	}
	if params.Status != "" {
		query = query.Where("status = ?", params.Status)
	}
	if params.Cursor != nil {
		query = query.Where("(created_at, id) < (?, ?)", params.Cursor.CreatedAt, params.Cursor.ID)
	}

	var jobs []models.RepairJob
	if err := query.Order("created_at DESC, id DESC").Limit(limit).Find(&jobs).Error; err != nil {
		return nil, nil, err
	}

	if len(jobs) > normalized {
		next := jobs[normalized]
		jobs = jobs[:normalized]
		return jobs, &pagination.Cursor{CreatedAt: next.CreatedAt, ID: next.ID}, nil
	}
	return jobs, nil, nil
}
