// SPDX-License-Identifier: MIT

// Package token issues and validates the opaque per-table access tokens
// embedded in QR codes. Validation is a pure lookup; issuance and rotation
// are administrative writes outside the guest-facing path.
package token

import (
	"errors"
	"time"
)

var (
	// ErrInvalidToken is returned for tokens unknown to the registry or
	// invalidated by rotation.
	ErrInvalidToken = errors.New("invalid token")
	// ErrTokenExpired is returned when the token's own expiry has passed.
	ErrTokenExpired = errors.New("token expired")
)

// Record describes one issued table token. A rotated-away token keeps its
// row (Revoked=true) so stale QR codes fail with a definite answer instead
// of "unknown".
type Record struct {
	Token       string     `json:"token"`
	TableID     string     `json:"tableId"`
	TableNumber int        `json:"tableNumber"`
	IssuedAt    time.Time  `json:"issuedAt"`
	ExpiresAt   *time.Time `json:"expiresAt,omitempty"`
	Revoked     bool       `json:"revoked"`
}
