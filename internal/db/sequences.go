package db

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
)

const sequenceColumns = `id, email, quiz_session_id, sequence_number, status,
	scheduled_at, sent_at, resend_message_id, created_at`

func scanSequenceEntry(row interface{ Scan(...any) error }) (EmailSequence, error) {
	var e EmailSequence
	err := row.Scan(
		&e.ID,
		&e.Email,
		&e.QuizSessionID,
		&e.SequenceNumber,
		&e.Status,
		&e.ScheduledAt,
		&e.SentAt,
		&e.ResendMessageID,
		&e.CreatedAt,
	)
	return e, err
}

// InsertSequenceEntriesParams creates the full 3-step schedule for one email.
// ScheduledAt holds the precomputed instants for steps 1..3.
type InsertSequenceEntriesParams struct {
	Email         string
	QuizSessionID uuid.UUID
	ScheduledAt   [3]time.Time
}

const insertSequenceEntries = `
INSERT INTO email_sequences (email, quiz_session_id, sequence_number, scheduled_at)
VALUES ($1, $2, 1, $3),
       ($1, $2, 2, $4),
       ($1, $2, 3, $5)
ON CONFLICT (email, sequence_number) DO NOTHING`

// InsertSequenceEntries inserts all three schedule rows in one statement and
// returns how many were actually inserted. ON CONFLICT DO NOTHING against the
// (email, sequence_number) unique key is what makes enrollment safe under
// concurrent double-submits: the statement is atomic in Postgres, so there is
// no read-then-write window. Zero inserted means the email was already
// enrolled.
func (q *Queries) InsertSequenceEntries(ctx context.Context, p InsertSequenceEntriesParams) (int64, error) {
	res, err := q.db.ExecContext(ctx, insertSequenceEntries,
		p.Email, p.QuizSessionID, p.ScheduledAt[0], p.ScheduledAt[1], p.ScheduledAt[2])
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// ListDueSequenceEntriesParams bounds one sweep pass.
type ListDueSequenceEntriesParams struct {
	Now   time.Time
	Limit int32
}

const listDueSequenceEntries = `
SELECT ` + sequenceColumns + `
FROM email_sequences
WHERE status = 'pending' AND scheduled_at <= $1
ORDER BY scheduled_at ASC
LIMIT $2`

func (q *Queries) ListDueSequenceEntries(ctx context.Context, p ListDueSequenceEntriesParams) ([]EmailSequence, error) {
	rows, err := q.db.QueryContext(ctx, listDueSequenceEntries, p.Now, p.Limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []EmailSequence
	for rows.Next() {
		e, err := scanSequenceEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// MarkSequenceEntrySentParams records a successful dispatch.
type MarkSequenceEntrySentParams struct {
	ID              uuid.UUID
	SentAt          time.Time
	ResendMessageID sql.NullString
}

const markSequenceEntrySent = `
UPDATE email_sequences
SET status = 'sent', sent_at = $2, resend_message_id = $3
WHERE id = $1 AND status = 'pending'`

// MarkSequenceEntrySent transitions pending → sent. The status guard is a
// compare-and-set: an overlapping sweep that already resolved the entry makes
// this a zero-row update, which the caller can detect via the returned count.
func (q *Queries) MarkSequenceEntrySent(ctx context.Context, p MarkSequenceEntrySentParams) (int64, error) {
	res, err := q.db.ExecContext(ctx, markSequenceEntrySent, p.ID, p.SentAt, p.ResendMessageID)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

const markSequenceEntryFailed = `
UPDATE email_sequences
SET status = 'failed'
WHERE id = $1 AND status = 'pending'`

// MarkSequenceEntryFailed transitions pending → failed, same CAS guard as
// MarkSequenceEntrySent. Failed is terminal — there is no requeue path.
func (q *Queries) MarkSequenceEntryFailed(ctx context.Context, id uuid.UUID) (int64, error) {
	res, err := q.db.ExecContext(ctx, markSequenceEntryFailed, id)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// MarkStepSentParams resolves an entry addressed by (email, step) rather than
// id — used by the immediate step-1 send, which runs right after enrollment
// and never saw the inserted row.
type MarkStepSentParams struct {
	Email           string
	SequenceNumber  int16
	SentAt          time.Time
	ResendMessageID sql.NullString
}

const markStepSent = `
UPDATE email_sequences
SET status = 'sent', sent_at = $3, resend_message_id = $4
WHERE email = $1 AND sequence_number = $2 AND status = 'pending'`

func (q *Queries) MarkStepSent(ctx context.Context, p MarkStepSentParams) (int64, error) {
	res, err := q.db.ExecContext(ctx, markStepSent,
		p.Email, p.SequenceNumber, p.SentAt, p.ResendMessageID)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
