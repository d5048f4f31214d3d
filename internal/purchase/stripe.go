package purchase

import (
	"github.com/ketowell/waitlist-manager/internal/dependency"
	"github.com/stripe/stripe-go/v79"
	"github.com/stripe/stripe-go/v79/client"
)

type stripeCheckout struct {
	api *client.API
}

// NewStripeClient returns a CheckoutClient backed by the Stripe API.
func NewStripeClient(secretKey string) dependency.CheckoutClient {
	return &stripeCheckout{
		api: client.New(secretKey, nil),
	}
}

func (sc *stripeCheckout) NewSession(params *stripe.CheckoutSessionParams) (*stripe.CheckoutSession, error) {
	return sc.api.CheckoutSessions.New(params)
}

func (sc *stripeCheckout) GetSession(id string) (*stripe.CheckoutSession, error) {
	return sc.api.CheckoutSessions.Get(id, nil)
}
