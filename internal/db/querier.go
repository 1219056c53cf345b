package db

import (
	"context"

	"github.com/google/uuid"
)

// Querier is the interface over all queries. *Queries is the production
// implementation; tests embed Querier in a stub and implement only the
// methods the code under test reaches.
type Querier interface {
	// ── quiz_sessions ─────────────────────────────────────────────────────────
	CreateSession(ctx context.Context, p CreateSessionParams) (QuizSession, error)
	GetSessionByID(ctx context.Context, id uuid.UUID) (QuizSession, error)
	GetApprovedSession(ctx context.Context, id uuid.UUID) (QuizSession, error)
	UpdateSessionContact(ctx context.Context, p UpdateSessionContactParams) (QuizSession, error)
	AttachPaymentOrder(ctx context.Context, p AttachPaymentOrderParams) (QuizSession, error)
	ApproveSessionPayment(ctx context.Context, p ApproveSessionPaymentParams) (QuizSession, error)
	MarkSessionPaymentFailed(ctx context.Context, id uuid.UUID) (QuizSession, error)

	// ── email_sequences ───────────────────────────────────────────────────────
	InsertSequenceEntries(ctx context.Context, p InsertSequenceEntriesParams) (int64, error)
	ListDueSequenceEntries(ctx context.Context, p ListDueSequenceEntriesParams) ([]EmailSequence, error)
	MarkSequenceEntrySent(ctx context.Context, p MarkSequenceEntrySentParams) (int64, error)
	MarkSequenceEntryFailed(ctx context.Context, id uuid.UUID) (int64, error)
	MarkStepSent(ctx context.Context, p MarkStepSentParams) (int64, error)
}

var _ Querier = (*Queries)(nil)
