package entity

import (
	"database/sql"
	"time"
)

// WaitlistMember represents a person waiting for the KetoWell launch.
type WaitlistMember struct {
	Id                int            `db:"id"`
	Email             string         `db:"email"`
	FirstName         sql.NullString `db:"first_name"`
	ConfirmationToken sql.NullString `db:"confirmation_token"`
	ConfirmedAt       sql.NullTime   `db:"confirmed_at"`
	CreatedAt         time.Time      `db:"created_at"`
}

// Confirmed reports whether the member redeemed the confirmation token.
func (m *WaitlistMember) Confirmed() bool {
	return m.ConfirmedAt.Valid
}

// WaitlistMemberInsert holds the fields required to create a waitlist member.
type WaitlistMemberInsert struct {
	Email             string         `db:"email"`
	FirstName         sql.NullString `db:"first_name"`
	ConfirmationToken string         `db:"confirmation_token"`
}

type WaitlistStats struct {
	Total     int `db:"total" json:"total"`
	Confirmed int `db:"confirmed" json:"confirmed"`
}
