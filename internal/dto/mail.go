package dto

// ConfirmationEmail is the template data of the waitlist confirmation email.
type ConfirmationEmail struct {
	Preheader  string
	FirstName  string
	ConfirmURL string
	MemberId   int
}

// DripEmail is the template data shared by the day_1, day_3 and day_7 emails.
type DripEmail struct {
	Preheader      string
	FirstName      string
	BaseURL        string
	UnsubscribeURL string
	// IdempotencyKey travels with the message as a custom arg so provider events
	// can be matched to the attempt that produced them.
	IdempotencyKey string
	MemberId       int
}

type PurchaseReceipt struct {
	Preheader    string
	Email        string
	Amount       string
	Currency     string
	ReferralCode string
	DownloadURL  string
}

type NewSubscriber struct {
	Preheader      string
	Name           string
	UnsubscribeURL string
}
