package auth

import (
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// Role is the coarse capability level carried in access tokens.
type Role string

const (
	RoleCustomer Role = "customer"
	RoleStaff    Role = "staff"
	RoleAdmin    Role = "admin"
)

// IsValid reports whether the role is one the platform issues.
func (r Role) IsValid() bool {
	switch r {
	case RoleCustomer, RoleStaff, RoleAdmin:
		return true
	}
	return false
}

// AccessTokenPayload captures the data available when minting a JWT.
type AccessTokenPayload struct {
	UserID         uuid.UUID
	RepairCenterID *uuid.UUID
	Role           Role
	JTI            string
}

// AccessTokenClaims represents the typed JWT issued to clients. Staff
// tokens carry the repair center they act for.
type AccessTokenClaims struct {
	UserID         uuid.UUID  `json:"user_id"`
	RepairCenterID *uuid.UUID `json:"repair_center_id,omitempty"`
	Role           Role       `json:"role"`
	jwt.RegisteredClaims
}
