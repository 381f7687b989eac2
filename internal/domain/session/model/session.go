// SPDX-License-Identifier: MIT

// Package model holds the session domain types shared between the manager
// and the outer layers. Values of these types are snapshots; the registry
// inside the manager is never exposed.
package model

import "time"

// Status is the lifecycle state of a guest session.
type Status string

const (
	StatusActive  Status = "active"
	StatusExpired Status = "expired"
	StatusClosed  Status = "closed"
)

// IsTerminal reports whether no further transition may leave the status.
// Both expired and closed are terminal.
func (s Status) IsTerminal() bool {
	return s == StatusExpired || s == StatusClosed
}

// Session is a time-bounded record of one guest's access window at one table.
// TableID and TableNumber are immutable for the session's life; ExpiresAt
// moves forward only via extend.
type Session struct {
	ID          string    `json:"id"`
	TableID     string    `json:"tableId"`
	TableNumber int       `json:"tableNumber"`
	CreatedAt   time.Time `json:"createdAt"`
	ExpiresAt   time.Time `json:"expiresAt"`
	Status      Status    `json:"status"`
}

// Fresh reports whether the session is active and its expiry has not passed
// at the given instant. A session can be nominally active but stale between
// reads; every external read path re-evaluates freshness through this.
func (s Session) Fresh(now time.Time) bool {
	return s.Status == StatusActive && s.ExpiresAt.After(now)
}

// Statistics is the read-side aggregate derived from the registry.
type Statistics struct {
	TotalActive int `json:"totalActive"`
	TodayTotal  int `json:"todayTotal"`
}
