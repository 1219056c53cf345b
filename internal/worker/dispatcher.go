// Package worker contains the drip-sequence dispatcher: the sweep that finds
// due schedule entries and sends their emails. It is intentionally decoupled
// from the HTTP layer: the api package holds a worker.Sweeper interface and
// calls Sweep — it never imports the concrete Dispatcher or Runner types.
package worker

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/historiasdelamente/detectar-backend/internal/db"
	"github.com/historiasdelamente/detectar-backend/internal/email"
	"github.com/historiasdelamente/detectar-backend/internal/scoring"
)

// DefaultBatchSize bounds one sweep pass. Entries beyond the batch stay
// pending and are picked up by the next pass.
const DefaultBatchSize = 50

// ─── SWEEPER INTERFACE ────────────────────────────────────────────────────────

// Sweeper is the narrow interface the api package uses to run a sweep from
// the cron endpoint. Keeping it here (not in api/) means api/ does not need
// to import worker/.
//
// The concrete implementation is *Dispatcher. In tests, any struct with a
// Sweep method satisfies the interface.
type Sweeper interface {
	Sweep(ctx context.Context) (SweepResult, error)
}

// SweepResult is one pass's tally, returned to the cron caller.
type SweepResult struct {
	Processed int `json:"processed"`
	Sent      int `json:"sent"`
	Failed    int `json:"failed"`
}

// ─── DISPATCHER ───────────────────────────────────────────────────────────────

// Dispatcher executes sweep passes. It holds no state between passes — all
// progress lives in the email_sequences rows, so overlapping passes (cron
// firing while the internal ticker runs, or two replicas sweeping at once)
// are safe: every terminal write is conditioned on status still being
// pending, and an entry that loses that race is simply skipped.
type Dispatcher struct {
	q         db.Querier
	mailer    email.Sender
	batchSize int32
	logger    *slog.Logger
}

// NewDispatcher constructs a Dispatcher. batchSize <= 0 selects
// DefaultBatchSize.
func NewDispatcher(q db.Querier, mailer email.Sender, batchSize int32, logger *slog.Logger) *Dispatcher {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	return &Dispatcher{
		q:         q,
		mailer:    mailer,
		batchSize: batchSize,
		logger:    logger,
	}
}

// Sweep runs one pass: list due pending entries oldest-first, send each one,
// and record the outcome. Per-entry failures never abort the pass — one bad
// address must not starve everyone scheduled after it.
//
// Outcome per entry:
//   - sent: delivery succeeded and this pass won the pending → sent write.
//   - failed: the entry can never succeed (orphaned session, malformed step,
//     or the provider rejected the message outright).
//   - left pending: transient delivery trouble (network, 5xx, rate limit).
//     The entry stays due and the next pass retries it.
func (d *Dispatcher) Sweep(ctx context.Context) (SweepResult, error) {
	var res SweepResult

	entries, err := d.q.ListDueSequenceEntries(ctx, db.ListDueSequenceEntriesParams{
		Now:   time.Now().UTC(),
		Limit: d.batchSize,
	})
	if err != nil {
		return res, fmt.Errorf("worker: list due entries: %w", err)
	}

	for _, entry := range entries {
		res.Processed++
		d.dispatch(ctx, entry, &res)
	}

	if res.Processed > 0 {
		d.logger.Info("sweep finished",
			"processed", res.Processed,
			"sent", res.Sent,
			"failed", res.Failed,
		)
	}
	return res, nil
}

// dispatch resolves a single entry and records its outcome in res.
func (d *Dispatcher) dispatch(ctx context.Context, entry db.EmailSequence, res *SweepResult) {
	log := d.logger.With(
		"entry_id", entry.ID,
		"email", entry.Email,
		"step", entry.SequenceNumber,
	)

	session, err := d.q.GetSessionByID(ctx, entry.QuizSessionID)
	if errors.Is(err, sql.ErrNoRows) {
		// Orphaned schedule row — its session is gone and the personalized
		// email can never be built. Terminal.
		log.Warn("sequence entry references missing session")
		d.markFailed(ctx, entry, res, log)
		return
	}
	if err != nil {
		// Database hiccup: leave the entry pending and let the next pass see it.
		log.Error("load session for sequence entry", "error", err)
		return
	}

	msg, err := email.BuildSequenceEmail(int(entry.SequenceNumber), sequenceData(session))
	if err != nil {
		// A step outside 1..3 cannot exist through the normal enrollment path;
		// if one shows up the row is corrupt and retrying is pointless.
		log.Error("build sequence email", "error", err)
		d.markFailed(ctx, entry, res, log)
		return
	}

	messageID, err := d.mailer.Send(ctx, msg)
	if err != nil {
		if email.IsPermanent(err) {
			log.Warn("sequence email rejected by provider", "error", err)
			d.markFailed(ctx, entry, res, log)
			return
		}
		log.Warn("sequence email delivery failed, will retry next sweep", "error", err)
		return
	}

	affected, err := d.q.MarkSequenceEntrySent(ctx, db.MarkSequenceEntrySentParams{
		ID:     entry.ID,
		SentAt: time.Now().UTC(),
		ResendMessageID: sql.NullString{
			String: messageID,
			Valid:  messageID != "",
		},
	})
	if err != nil {
		// The email went out but the row write failed. An overlapping pass may
		// resend this step once — accepted over holding a transaction open
		// across an external HTTP call.
		log.Error("mark sequence entry sent", "error", err)
		return
	}
	if affected == 0 {
		// An overlapping pass resolved the entry between our list and our
		// write. Its outcome stands; this delivery is the duplicate.
		log.Debug("sequence entry already resolved by a concurrent sweep")
		return
	}

	res.Sent++
	log.Info("sequence email sent", "message_id", messageID)
}

func (d *Dispatcher) markFailed(ctx context.Context, entry db.EmailSequence, res *SweepResult, log *slog.Logger) {
	affected, err := d.q.MarkSequenceEntryFailed(ctx, entry.ID)
	if err != nil {
		log.Error("mark sequence entry failed", "error", err)
		return
	}
	if affected > 0 {
		res.Failed++
	}
}

// sequenceData rebuilds the personalization payload from the stored answers.
func sequenceData(s db.QuizSession) email.TemplateData {
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
