package models

import (
	"database/sql/driver"
	"fmt"
	"strings"
	"time"
)

// RoundStatus is the closed set of round lifecycle states.
type RoundStatus string

const (
	RoundStatusPlanned    RoundStatus = "planned"
	RoundStatusPairing    RoundStatus = "pairing"
	RoundStatusPublished  RoundStatus = "published"
	RoundStatusInProgress RoundStatus = "in_progress"
	RoundStatusFinishing  RoundStatus = "finishing"
	RoundStatusCompleted  RoundStatus = "completed"
	RoundStatusVerified   RoundStatus = "verified"

	// legacyRoundStatusUpcoming is accepted on input only and read as planned.
	legacyRoundStatusUpcoming = "upcoming"
)

var roundStatusOrder = []RoundStatus{
	RoundStatusPlanned,
	RoundStatusPairing,
	RoundStatusPublished,
	RoundStatusInProgress,
	RoundStatusFinishing,
	RoundStatusCompleted,
	RoundStatusVerified,
}

// ParseRoundStatus normalises external input, mapping the legacy alias to planned.
func ParseRoundStatus(raw string) (RoundStatus, error) {
	value := strings.ToLower(strings.TrimSpace(raw))
	if value == legacyRoundStatusUpcoming {
		return RoundStatusPlanned, nil
	}
	for _, status := range roundStatusOrder {
		if string(status) == value {
			return status, nil
		}
	}
	return "", fmt.Errorf("unknown round status %q", raw)
}

// Ordinal returns the position in the lifecycle, or -1 for unknown values.
func (s RoundStatus) Ordinal() int {
	for i, status := range roundStatusOrder {
		if status == s {
			return i
		}
	}
	return -1
}

// Valid reports whether s is one of the seven canonical states.
func (s RoundStatus) Valid() bool {
	return s.Ordinal() >= 0
}

// Next returns the only legal successor.
func (s RoundStatus) Next() (RoundStatus, bool) {
	idx := s.Ordinal()
	if idx < 0 || idx == len(roundStatusOrder)-1 {
		return "", false
	}
	return roundStatusOrder[idx+1], true
}

// CanTransitionTo allows exactly one step forward.
func (s RoundStatus) CanTransitionTo(target RoundStatus) bool {
	next, ok := s.Next()
	return ok && next == target
}

// Closed reports whether the round has reached completed or verified.
func (s RoundStatus) Closed() bool {
	return s == RoundStatusCompleted || s == RoundStatusVerified
}

// AcceptsResults reports whether result entry is open.
func (s RoundStatus) AcceptsResults() bool {
	switch s {
	case RoundStatusPublished, RoundStatusInProgress, RoundStatusFinishing:
		return true
	}
	return false
}

// Scan normalises stored values, including legacy rows written as "upcoming".
func (s *RoundStatus) Scan(src interface{}) error {
	var raw string
	switch v := src.(type) {
	case string:
		raw = v
	case []byte:
		raw = string(v)
	case nil:
		return fmt.Errorf("round status is null")
	default:
		return fmt.Errorf("unsupported round status type %T", src)
	}
	status, err := ParseRoundStatus(raw)
	if err != nil {
		return err
	}
	*s = status
	return nil
}

// Value implements driver.Valuer.
func (s RoundStatus) Value() (driver.Value, error) {
	if !s.Valid() {
		return nil, fmt.Errorf("invalid round status %q", string(s))
	}
	return string(s), nil
}

// Round is one scheduled round of a tournament.
type Round struct {
	ID           string      `db:"id" json:"id"`
	TournamentID string      `db:"tournament_id" json:"tournamentId"`
	RoundNumber  int         `db:"round_number" json:"roundNumber"`
	Status       RoundStatus `db:"status" json:"status"`
	CreatedAt    time.Time   `db:"created_at" json:"createdAt"`
	CompletedAt  *time.Time  `db:"completed_at" json:"completedAt,omitempty"`
	VerifiedAt   *time.Time  `db:"verified_at" json:"verifiedAt,omitempty"`
	VerifiedBy   *string     `db:"verified_by" json:"verifiedBy,omitempty"`
}

// RoundDetail bundles a round with its boards.
type RoundDetail struct {
	Round
	Games []Game `json:"games"`
}
