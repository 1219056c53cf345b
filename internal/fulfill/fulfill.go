// Package fulfill turns a verified payment confirmation into a delivered
// report. It owns the ordering that makes fulfillment safe: approval is
// committed to the database first, the report email goes out second, and
// only the caller that won the approval sends it.
package fulfill

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/historiasdelamente/detectar-backend/internal/db"
	"github.com/historiasdelamente/detectar-backend/internal/email"
	"github.com/historiasdelamente/detectar-backend/internal/scoring"
	"github.com/historiasdelamente/detectar-backend/internal/store"
)

// Orchestrator coordinates the approve-then-deliver sequence. It is shared
// by the capture endpoint and the webhook endpoint, so both providers funnel
// through the same idempotency guard.
type Orchestrator struct {
	store  *store.Store
	mailer email.Sender
	logger *slog.Logger
}

func New(st *store.Store, mailer email.Sender, logger *slog.Logger) *Orchestrator {
	return &Orchestrator{store: st, mailer: mailer, logger: logger}
}

// Fulfill records the approved payment and sends the full report email.
//
// The conditional approve is the linearization point: when two confirmations
// race (duplicate webhook delivery, or a capture racing a webhook), exactly
// one gets the updated session back and sends the email; the other sees
// store.ErrAlreadyApproved and returns success without sending anything.
//
// A report email failure after approval is logged and swallowed: the
// approval is already durable, and the buyer can recover the report through
// the resend endpoint. Returning an error here would make the provider
// re-deliver a confirmation that can no longer do anything.
func (o *Orchestrator) Fulfill(ctx context.Context, sessionID uuid.UUID, paymentRef string) error {
	session, err := o.store.ApprovePayment(ctx, sessionID, paymentRef)
	if errors.Is(err, store.ErrAlreadyApproved) {
		o.logger.Debug("duplicate payment confirmation ignored",
			"session_id", sessionID,
			"payment_ref", paymentRef,
		)
		return nil
	}
	if err != nil {
		return fmt.Errorf("fulfill: approve payment: %w", err)
	}

	if !session.Email.Valid || session.Email.String == "" {
		// Possible when payment was initiated before contact capture and the
		// capture never happened. The approval stands; the buyer reaches the
		// report through the resend endpoint once they provide an address.
		o.logger.Warn("approved session has no email, skipping report delivery",
			"session_id", sessionID,
		)
		return nil
	}

	msg := email.BuildReportEmail(reportData(session))
	messageID, err := o.mailer.Send(ctx, msg)
	if err != nil {
		o.logger.Error("report email failed after approval",
			"session_id", sessionID,
			"email", session.Email.String,
			"error", err,
		)
		return nil
	}

	o.logger.Info("payment fulfilled",
		"session_id", sessionID,
		"payment_ref", paymentRef,
		"message_id", messageID,
	)
	return nil
}

// ResendReport re-sends the report to an already-paid session. Unlike
// Fulfill, a send failure here is surfaced: the caller is an interactive
// request that can retry.
func (o *Orchestrator) ResendReport(ctx context.Context, sessionID uuid.UUID) error {
	session, err := o.store.ApprovedSession(ctx, sessionID)
	if err != nil {
		return err
	}
	if !session.Email.Valid || session.Email.String == "" {
		return store.ErrNotApproved
	}

	msg := email.BuildReportEmail(reportData(session))
	messageID, err := o.mailer.Send(ctx, msg)
	if err != nil {
		return fmt.Errorf("fulfill: resend report: %w", err)
	}

	o.logger.Info("report resent",
		"session_id", sessionID,
		"message_id", messageID,
	)
	return nil
}

// reportData rebuilds the template payload from the stored answers. The
// breakdown is recomputed rather than read from category_scores so the email
// never depends on a column that older rows may have left null.
func reportData(s db.QuizSession) email.TemplateData {
	var answers []scoring.Answer
	if err := json.Unmarshal(s.Answers, &answers); err != nil {
		answers = nil
	}
	cats := scoring.CalculateCategoryScores(answers)

	return email.TemplateData{
		Email:          s.Email.String,
		Name:           s.Name.String,
		TotalScore:     int(s.TotalScore),
		MaxScore:       scoring.MaxScore,
		Level:          scoring.RiskLevel(s.Level),
		CategoryScores: cats,
		TopCategory:    scoring.TopCategory(cats),
	}
}
