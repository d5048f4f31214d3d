package entity

import (
	"database/sql"
	"time"
)

// EmailType identifies a scripted email a waitlist member can receive.
type EmailType string

const (
	EmailTypeConfirmation EmailType = "confirmation"
	EmailTypeDay1         EmailType = "day_1"
	EmailTypeDay3         EmailType = "day_3"
	EmailTypeDay7         EmailType = "day_7"
)

// DripEmailTypes lists the drip emails in the order they are processed.
var DripEmailTypes = []EmailType{EmailTypeDay1, EmailTypeDay3, EmailTypeDay7}

var dripOffsets = map[EmailType]int{
	EmailTypeDay1: 1,
	EmailTypeDay3: 3,
	EmailTypeDay7: 7,
}

// DayOffset returns the number of days after confirmation a drip email is due.
func (et EmailType) DayOffset() (int, bool) {
	d, ok := dripOffsets[et]
	return d, ok
}

// IsDrip reports whether et is one of the drip campaign emails.
func (et EmailType) IsDrip() bool {
	_, ok := dripOffsets[et]
	return ok
}

func (et EmailType) Valid() bool {
	return et == EmailTypeConfirmation || et.IsDrip()
}

func (et EmailType) String() string {
	return string(et)
}

// EmailSendStatus is the outcome stored for one send attempt.
type EmailSendStatus string

const (
	// EmailSendAttempting is written before the provider is called.
	EmailSendAttempting EmailSendStatus = "attempting"
	EmailSendSent       EmailSendStatus = "sent"
	EmailSendFailed     EmailSendStatus = "failed"
	EmailSendBounced    EmailSendStatus = "bounced"
	// EmailSendUnknown closes an attempt that never reported back, delivery may or may not have happened.
	EmailSendUnknown EmailSendStatus = "unknown"
)

// FailureKind classifies failed sends.
type FailureKind string

const (
	FailureInvalidRecipient    FailureKind = "invalid_recipient"
	FailureRateLimited         FailureKind = "rate_limited"
	FailureProviderUnavailable FailureKind = "provider_unavailable"
	FailureInterrupted         FailureKind = "interrupted"
	// FailureStoreUnavailable is reported in run summaries when the attempt could not be logged.
	// The provider is not called in that case and nothing is persisted.
	FailureStoreUnavailable FailureKind = "store_unavailable"
)

// Permanent reports whether retrying a send with this failure is pointless.
func (fk FailureKind) Permanent() bool {
	return fk == FailureInvalidRecipient
}

// EmailSendRecord is one append-only row of the send log.
type EmailSendRecord struct {
	Id           int             `db:"id"`
	MemberId     int             `db:"member_id"`
	EmailType    EmailType       `db:"email_type"`
	Status       EmailSendStatus `db:"status"`
	AttemptId    string          `db:"attempt_id"`
	MessageId    sql.NullString  `db:"message_id"`
	ErrorKind    sql.NullString  `db:"error_kind"`
	ErrorMessage sql.NullString  `db:"error_message"`
	CreatedAt    time.Time       `db:"created_at"`
}

// EmailSendInsert holds the fields of a new send log row.
type EmailSendInsert struct {
	MemberId     int
	EmailType    EmailType
	Status       EmailSendStatus
	AttemptId    string
	MessageId    string
	ErrorKind    FailureKind
	ErrorMessage string
}

// EmailSendStats is one bucket of the send log aggregate.
type EmailSendStats struct {
	EmailType EmailType       `db:"email_type" json:"emailType"`
	Status    EmailSendStatus `db:"status" json:"status"`
	Count     int             `db:"cnt" json:"count"`
}
