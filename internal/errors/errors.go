package gerr

import "errors"

var (
	ErrAlreadySubscribed        = errors.New("submitted email already subscribed")
	ErrAlreadyOnWaitlist        = errors.New("submitted email already on the waitlist")
	ErrInvalidConfirmationToken = errors.New("confirmation token is invalid or already used")
	ErrInvalidEmail             = errors.New("invalid email address")

	BadMailRequest         = errors.New("bad mail request")
	MailApiLimitReached    = errors.New("mail api limit reached")
	ErrInvalidRecipient    = errors.New("mail provider rejected the recipient")
	ErrProviderUnavailable = errors.New("mail provider unavailable")

	ErrDripRunInProgress = errors.New("another drip run holds the lease")
	ErrLeaseLost         = errors.New("drip run lease is not held by this owner")

	ErrReferralCodeNotFound  = errors.New("referral code not found")
	ErrReferralCodeExhausted = errors.New("referral code has no redemptions left")
	ErrInvalidReferralCode   = errors.New("referral code discount or limit is out of range")
	ErrPurchaseNotFound      = errors.New("purchase not found")
	ErrCheckoutAmountTooLow  = errors.New("checkout amount must be above zero")
	ErrInvalidWebhook        = errors.New("webhook payload could not be verified")

	ErrNotAuthenticated = errors.New("not authenticated")
	ErrTooManyRequests  = errors.New("too many requests, please try again later")
)
