package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/historiasdelamente/detectar-backend/internal/db"
	"github.com/sqlc-dev/pqtype"
)

// ─── INPUT TYPES ─────────────────────────────────────────────────────────────

// UpsertSessionParams carries the quiz snapshot plus contact fields from
// either entry path: contact capture sends email (and maybe name), payment
// initiation sends email only.
type UpsertSessionParams struct {
	// SessionID is the client-provided session id, if it already has one.
	// uuid.Nil means "no session yet" and always creates a fresh row.
	SessionID uuid.UUID

	Answers        json.RawMessage
	TotalScore     int32
	Level          db.RiskLevel
	CategoryScores json.RawMessage // may be nil
	Email          string
	Name           string // optional
}

// ─── ERRORS ──────────────────────────────────────────────────────────────────

// ErrAlreadyApproved is returned by ApprovePayment when the session was
// already approved by an earlier confirmation. Callers treat it as idempotent
// success: acknowledge the duplicate, fulfill nothing.
var ErrAlreadyApproved = errors.New("store: session payment already approved")

// ErrNotApproved is returned by the report resend path when the session has
// not paid. The handler maps it to a 402-style rejection.
var ErrNotApproved = errors.New("store: session payment not approved")

// ─── METHODS ─────────────────────────────────────────────────────────────────

// UpsertSession makes the two entry paths converge on one row. If the client
// already holds a session id and the row exists, only the contact fields are
// updated — the quiz snapshot written first wins, and payment_status is never
// touched, so a second entry path can never regress an approved session. If
// the id is unknown (or uuid.Nil), a fresh row is created.
func (s *Store) UpsertSession(ctx context.Context, p UpsertSessionParams) (db.QuizSession, error) {
	email := sql.NullString{String: p.Email, Valid: p.Email != ""}
	name := sql.NullString{String: p.Name, Valid: p.Name != ""}

	if p.SessionID != uuid.Nil {
		session, err := s.q.UpdateSessionContact(ctx, db.UpdateSessionContactParams{
			ID:    p.SessionID,
			Email: email,
			Name:  name,
		})
		if err == nil {
			return session, nil
		}
		if !errors.Is(err, sql.ErrNoRows) {
			return db.QuizSession{}, fmt.Errorf("UpsertSession: update contact: %w", err)
		}
		// Client-held id the server has never seen (e.g. the row was created
		// against a different environment). Fall through and create.
	}

	session, err := s.q.CreateSession(ctx, db.CreateSessionParams{
		Answers:    p.Answers,
		TotalScore: p.TotalScore,
		Level:      p.Level,
		CategoryScores: pqtype.NullRawMessage{
			RawMessage: p.CategoryScores,
			Valid:      len(p.CategoryScores) > 0,
		},
		Email: email,
		Name:  name,
	})
	if err != nil {
		return db.QuizSession{}, fmt.Errorf("UpsertSession: create session: %w", err)
	}
	return session, nil
}

// ApprovePayment flips the session to approved with the verified provider
// payment reference. The underlying UPDATE carries a status guard, so exactly
// one confirmation per session can succeed.
//
// Race scenario the guard closes:
//  1. The provider delivers the same webhook twice (or a capture call races a
//     webhook for the same payment).
//  2. Both confirmations verify against the provider and both call this.
//  3. The first UPDATE matches and returns the session; the second matches
//     zero rows and surfaces ErrAlreadyApproved.
//
// The caller sends the report email only on the nil-error return, which is
// what makes fulfillment exactly-once per session.
func (s *Store) ApprovePayment(ctx context.Context, sessionID uuid.UUID, paymentRef string) (db.QuizSession, error) {
	session, err := s.q.ApproveSessionPayment(ctx, db.ApproveSessionPaymentParams{
		ID:        sessionID,
		PaymentID: paymentRef,
	})
	if errors.Is(err, sql.ErrNoRows) {
		return db.QuizSession{}, ErrAlreadyApproved
	}
	if err != nil {
		return db.QuizSession{}, fmt.Errorf("ApprovePayment: %w", err)
	}
	return session, nil
}

// RejectPayment records a provider-declined payment. A session already
// approved is left untouched (the query guards on pending); that outcome is
// not an error, the late rejection is simply ignored.
func (s *Store) RejectPayment(ctx context.Context, sessionID uuid.UUID) error {
	_, err := s.q.MarkSessionPaymentFailed(ctx, sessionID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("RejectPayment: %w", err)
	}
	return nil
}

// ApprovedSession returns the session only if it has paid. Used by the
// report resend path, which must never hand the full report to an unpaid
// session — ErrNotApproved covers both "exists but unpaid" and "unknown id"
// so the endpoint cannot be used to probe which sessions exist.
func (s *Store) ApprovedSession(ctx context.Context, sessionID uuid.UUID) (db.QuizSession, error) {
	session, err := s.q.GetApprovedSession(ctx, sessionID)
	if errors.Is(err, sql.ErrNoRows) {
		return db.QuizSession{}, ErrNotApproved
	}
	if err != nil {
		return db.QuizSession{}, fmt.Errorf("ApprovedSession: %w", err)
	}
	return session, nil
}
