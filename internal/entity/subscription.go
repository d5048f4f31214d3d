package entity

import "time"

// Subscriber is a newsletter subscriber, independent from the waitlist.
type Subscriber struct {
	ID            int       `db:"id"`
	Name          string    `db:"name"`
	Email         string    `db:"email"`
	ReceiveEmails bool      `db:"receive_emails"`
	CreatedAt     time.Time `db:"created_at"`
}
