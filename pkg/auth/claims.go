package auth

import (
	"fmt"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

// Role mirrors the storefront's role-gated areas.
type Role string

const (
	RoleCustomer  Role = "CUSTOMER"
	RoleStaff     Role = "STAFF"
	RoleWarehouse Role = "WAREHOUSE"
	RoleAdmin     Role = "ADMIN"
)

var validRoles = []Role{RoleCustomer, RoleStaff, RoleWarehouse, RoleAdmin}

func (r Role) IsValid() bool {
	for _, candidate := range validRoles {
		if candidate == r {
			return true
		}
	}
	return false
}

// ParseRole normalizes raw input into a Role.
func ParseRole(value string) (Role, error) {
	role := Role(strings.ToUpper(strings.TrimSpace(value)))
	if !role.IsValid() {
		return "", fmt.Errorf("invalid role %q", value)
	}
	return role, nil
}

// AccessTokenPayload captures the data available when minting a JWT.
type AccessTokenPayload struct {
	UserID string
	Email  string
	Role   Role
	JTI    string
}

// AccessTokenClaims represents the storefront access token; the subject is the user id.
type AccessTokenClaims struct {
	Email string `json:"email,omitempty"`
	Role  Role   `json:"role"`
	jwt.RegisteredClaims
}

func (c AccessTokenClaims) UserID() string {
	return c.Subject
}
