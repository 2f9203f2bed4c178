package centers

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/dcastano/repairhub-backend/pkg/db/models"
	pkgerrors "github.com/dcastano/repairhub-backend/pkg/errors"
	"github.com/dcastano/repairhub-backend/pkg/types"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Service exposes repair center profile operations.
type Service interface {
	Register(ctx context.Context, input RegisterInput) (*models.RepairCenter, error)
	Get(ctx context.Context, id uuid.UUID) (*models.RepairCenter, error)
	UpdateProfile(ctx context.Context, input UpdateProfileInput) error
}

type service struct {
	repo Repository
}

// NewService wires the centers service.
func NewService(repo Repository) (Service, error) {
	if repo == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "centers repository required")
	}
	return &service{repo: repo}, nil
}

// RegisterInput creates a new repair center profile.
type RegisterInput struct {
	BusinessName string        `json:"business_name" validate:"required"`
	Email        string        `json:"email" validate:"required,email"`
	Phone        *string       `json:"phone"`
	Address      types.Address `json:"address"`
	ContactName  string        `json:"contact_name" validate:"required"`
}

// UpdateProfileInput patches mutable center fields.
type UpdateProfileInput struct {
	CenterID    uuid.UUID
	Phone       *string
	Address     *types.Address
	ContactName *string
}

func (s *service) Register(ctx context.Context, input RegisterInput) (*models.RepairCenter, error) {
	businessName := strings.TrimSpace(input.BusinessName)
	if businessName == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "business name required")
	}
	if strings.TrimSpace(input.Email) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "email required")
	}
	if strings.TrimSpace(input.ContactName) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "contact name required")
	}

	center := &models.RepairCenter{
		BusinessName: businessName,
		Email:        strings.TrimSpace(input.Email),
		Phone:        input.Phone,
		Address:      input.Address,
		ContactName:  strings.TrimSpace(input.ContactName),
	}
	created, err := s.repo.Create(ctx, center)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create repair center")
	}
	return created, nil
}

func (s *service) Get(ctx context.Context, id uuid.UUID) (*models.RepairCenter, error) {
	if id == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "repair center id required")
	}
	center, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "repair center not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load repair center")
	}
	return center, nil
}

func (s *service) UpdateProfile(ctx context.Context, input UpdateProfileInput) error {
	if input.CenterID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "repair center id required")
	}

	updates := map[string]any{}
	if input.Phone != nil {
		updates["phone"] = *input.Phone
	}
	if input.Address != nil {
		raw, err := json.Marshal(input.Address)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeValidation, err, "encode address")
		}
		updates["address"] = raw
	}
	if input.ContactName != nil {
		name := strings.TrimSpace(*input.ContactName)
		if name == "" {
			return pkgerrors.New(pkgerrors.CodeValidation, "contact name cannot be empty")
		}
		updates["contact_name"] = name
	}
	if len(updates) == 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "no fields to update")
	}

	if err := s.repo.Update(ctx, input.CenterID, updates); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update repair center")
	}
	return nil
}
