package models

import "github.com/golang-jwt/jwt/v5"

// Role classifies API clients for access control.
type Role string

const (
	RoleAdmin     Role = "ADMIN"
	RoleScheduler Role = "SCHEDULER"
	RoleViewer    Role = "VIEWER"
)

// ServiceAccount is a config-sourced API client. The secret is stored as a
// bcrypt hash; this service keeps no user table.
type ServiceAccount struct {
	ClientID   string
	SecretHash string
	Role       Role
}

// JWTClaims is the JWT payload for access tokens.
type JWTClaims struct {
	ClientID string `json:"client_id"`
	Role     Role   `json:"role"`
	jwt.RegisteredClaims
}
