package db

import (
	"database/sql"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/sqlc-dev/pqtype"
)

// PaymentStatus mirrors the payment_status Postgres enum.
// The only legal transition is pending → approved (or pending → failed);
// approved never regresses. ApproveSessionPayment enforces this with a
// conditional UPDATE.
type PaymentStatus string

const (
	PaymentStatusPending  PaymentStatus = "pending"
	PaymentStatusApproved PaymentStatus = "approved"
	PaymentStatusFailed   PaymentStatus = "failed"
)

// RiskLevel mirrors the risk_level Postgres enum. String values deliberately
// match the Spanish level keys used across the funnel.
type RiskLevel string

const (
	RiskLevelBajo     RiskLevel = "bajo"
	RiskLevelModerado RiskLevel = "moderado"
	RiskLevelAlto     RiskLevel = "alto"
	RiskLevelExtremo  RiskLevel = "extremo"
)

// SequenceStatus mirrors the email_status Postgres enum. Entries are created
// pending and only ever move to sent or failed.
type SequenceStatus string

const (
	SequenceStatusPending SequenceStatus = "pending"
	SequenceStatusSent    SequenceStatus = "sent"
	SequenceStatusFailed  SequenceStatus = "failed"
)

// QuizSession is one quiz attempt that reached contact capture or payment.
// Rows are updated in place and never deleted — they are the fulfillment
// audit trail.
type QuizSession struct {
	ID         uuid.UUID
	Answers    json.RawMessage // ordered [{"question_id":1,"value":3}, …]
	TotalScore int32
	Level      RiskLevel
	// CategoryScores is the serialised per-category breakdown. Nullable:
	// the sweep falls back to a generic top category when it is absent.
	CategoryScores pqtype.NullRawMessage
	Email          sql.NullString
	Name           sql.NullString
	PaymentStatus  PaymentStatus
	// PaymentID is the provider payment/order reference (PayPal order id or
	// MercadoPago payment id).
	PaymentID sql.NullString
	// PreferenceID is the MercadoPago preference reference from order creation.
	PreferenceID sql.NullString
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// EmailSequence is one scheduled step of the 3-part follow-up campaign.
// (email, sequence_number) is unique — the constraint is what makes
// enrollment idempotent, it is not just data hygiene.
type EmailSequence struct {
	ID              uuid.UUID
	Email           string
	QuizSessionID   uuid.UUID
	SequenceNumber  int16
	Status          SequenceStatus
	ScheduledAt     time.Time
	SentAt          sql.NullTime
	ResendMessageID sql.NullString
	CreatedAt       time.Time
}
