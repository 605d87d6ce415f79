package models

import (
	"time"

	"github.com/jmoiron/sqlx/types"
)

// Lifecycle audit actions.
const (
	AuditActionRoundCreate       = "ROUND_CREATE"
	AuditActionRoundStatusChange = "ROUND_STATUS_CHANGE"
	AuditActionPairingsConfirm   = "PAIRINGS_CONFIRM"
	AuditActionPlayerStatus      = "PLAYER_STATUS_CHANGE"
)

// AuditLog records tournament lifecycle events outside game results.
type AuditLog struct {
	ID           string         `db:"id" json:"id"`
	TournamentID string         `db:"tournament_id" json:"tournamentId"`
	ActorID      string         `db:"actor_id" json:"actorId"`
	Action       string         `db:"action" json:"action"`
	Resource     string         `db:"resource" json:"resource"`
	ResourceID   string         `db:"resource_id" json:"resourceId"`
	OldValues    types.JSONText `db:"old_values" json:"oldValues,omitempty"`
	NewValues    types.JSONText `db:"new_values" json:"newValues,omitempty"`
	CreatedAt    time.Time      `db:"created_at" json:"createdAt"`
}

// ResultAuditAction distinguishes result changes from approvals.
type ResultAuditAction string

const (
	ResultAuditChange   ResultAuditAction = "result_change"
	ResultAuditApproval ResultAuditAction = "approval"
)

// ResultAudit is an append-only record of a game result change. Rows are never updated.
type ResultAudit struct {
	ID            string            `db:"id" json:"id"`
	Sequence      int64             `db:"sequence" json:"sequence"`
	GameID        string            `db:"game_id" json:"gameId"`
	TournamentID  string            `db:"tournament_id" json:"tournamentId"`
	Action        ResultAuditAction `db:"action" json:"action"`
	OldResult     *ResultValue      `db:"old_result" json:"oldResult,omitempty"`
	OldResultType *ResultType       `db:"old_result_type" json:"oldResultType,omitempty"`
	NewResult     ResultValue       `db:"new_result" json:"newResult"`
	NewResultType ResultType        `db:"new_result_type" json:"newResultType"`
	ChangedBy     string            `db:"changed_by" json:"changedBy"`
	ChangedAt     time.Time         `db:"changed_at" json:"changedAt"`
	Reason        *string           `db:"reason" json:"reason,omitempty"`
	Approved      bool              `db:"approved" json:"approved"`
}
