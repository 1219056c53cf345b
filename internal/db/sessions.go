package db

import (
	"context"
	"database/sql"
	"encoding/json"

	"github.com/google/uuid"
	"github.com/sqlc-dev/pqtype"
)

const sessionColumns = `id, answers, total_score, level, category_scores,
	email, name, payment_status, payment_id, preference_id, created_at, updated_at`

func scanSession(row interface{ Scan(...any) error }) (QuizSession, error) {
	var s QuizSession
	err := row.Scan(
		&s.ID,
		&s.Answers,
		&s.TotalScore,
		&s.Level,
		&s.CategoryScores,
		&s.Email,
		&s.Name,
		&s.PaymentStatus,
		&s.PaymentID,
		&s.PreferenceID,
		&s.CreatedAt,
		&s.UpdatedAt,
	)
	return s, err
}

// CreateSessionParams holds the quiz snapshot written when a session is first
// persisted — from either entry path (contact capture or payment initiation).
type CreateSessionParams struct {
	Answers        json.RawMessage
	TotalScore     int32
	Level          RiskLevel
	CategoryScores pqtype.NullRawMessage
	Email          sql.NullString
	Name           sql.NullString
}

const createSession = `
INSERT INTO quiz_sessions (answers, total_score, level, category_scores, email, name)
VALUES ($1, $2, $3, $4, $5, $6)
RETURNING ` + sessionColumns

func (q *Queries) CreateSession(ctx context.Context, p CreateSessionParams) (QuizSession, error) {
	row := q.db.QueryRowContext(ctx, createSession,
		p.Answers, p.TotalScore, p.Level, p.CategoryScores, p.Email, p.Name)
	return scanSession(row)
}

const getSessionByID = `
SELECT ` + sessionColumns + `
FROM quiz_sessions
WHERE id = $1`

func (q *Queries) GetSessionByID(ctx context.Context, id uuid.UUID) (QuizSession, error) {
	return scanSession(q.db.QueryRowContext(ctx, getSessionByID, id))
}

const getApprovedSession = `
SELECT ` + sessionColumns + `
FROM quiz_sessions
WHERE id = $1 AND payment_status = 'approved'`

// GetApprovedSession returns the session only if its payment has been
// confirmed. Used by the report resend path, which must never leak the full
// report to an unpaid session.
func (q *Queries) GetApprovedSession(ctx context.Context, id uuid.UUID) (QuizSession, error) {
	return scanSession(q.db.QueryRowContext(ctx, getApprovedSession, id))
}

// UpdateSessionContactParams sets the contact fields on an existing session.
// Used when the second entry path (capture vs. payment) converges on a row
// created by the first.
type UpdateSessionContactParams struct {
	ID    uuid.UUID
	Email sql.NullString
	Name  sql.NullString
}

const updateSessionContact = `
UPDATE quiz_sessions
SET email = COALESCE($2, email),
    name = COALESCE($3, name),
    updated_at = now()
WHERE id = $1
RETURNING ` + sessionColumns

func (q *Queries) UpdateSessionContact(ctx context.Context, p UpdateSessionContactParams) (QuizSession, error) {
	row := q.db.QueryRowContext(ctx, updateSessionContact, p.ID, p.Email, p.Name)
	return scanSession(row)
}

// AttachPaymentOrderParams records the provider references created at order
// time. Either field may be unset depending on the provider variant.
type AttachPaymentOrderParams struct {
	ID           uuid.UUID
	PaymentID    sql.NullString
	PreferenceID sql.NullString
}

const attachPaymentOrder = `
UPDATE quiz_sessions
SET payment_id = COALESCE($2, payment_id),
    preference_id = COALESCE($3, preference_id),
    updated_at = now()
WHERE id = $1
RETURNING ` + sessionColumns

func (q *Queries) AttachPaymentOrder(ctx context.Context, p AttachPaymentOrderParams) (QuizSession, error) {
	row := q.db.QueryRowContext(ctx, attachPaymentOrder, p.ID, p.PaymentID, p.PreferenceID)
	return scanSession(row)
}

// ApproveSessionPaymentParams marks a session paid with the verified provider
// payment reference.
type ApproveSessionPaymentParams struct {
	ID        uuid.UUID
	PaymentID string
}

const approveSessionPayment = `
UPDATE quiz_sessions
SET payment_status = 'approved',
    payment_id = $2,
    updated_at = now()
WHERE id = $1 AND payment_status <> 'approved'
RETURNING ` + sessionColumns

// ApproveSessionPayment is the single linearization point for fulfillment.
// The status guard in the WHERE clause makes the call idempotent: a duplicate
// webhook or capture for an already-approved session matches zero rows and
// surfaces sql.ErrNoRows, which callers treat as "already fulfilled".
func (q *Queries) ApproveSessionPayment(ctx context.Context, p ApproveSessionPaymentParams) (QuizSession, error) {
	row := q.db.QueryRowContext(ctx, approveSessionPayment, p.ID, p.PaymentID)
	return scanSession(row)
}

const markSessionPaymentFailed = `
UPDATE quiz_sessions
SET payment_status = 'failed',
    updated_at = now()
WHERE id = $1 AND payment_status = 'pending'
RETURNING ` + sessionColumns

// MarkSessionPaymentFailed records a provider-rejected payment. The guard on
// pending keeps a late failure notification from clobbering an approval.
func (q *Queries) MarkSessionPaymentFailed(ctx context.Context, id uuid.UUID) (QuizSession, error) {
	return scanSession(q.db.QueryRowContext(ctx, markSessionPaymentFailed, id))
}
