package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"strings"

	"github.com/ManuelReschke/enrollbilling/internal/pkg/env"
	"github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/webhook"
)

const defaultListLimit = 100

// StripeGateway talks to one Stripe account.
type StripeGateway struct {
	account       AccountType
	client        *stripe.Client
	webhookSecret string
}

// NewStripeGateway creates a gateway for one Stripe account.
func NewStripeGateway(account AccountType, secretKey, webhookSecret string, opts ...stripe.ClientOption) *StripeGateway {
	return &StripeGateway{
		account:       account,
		client:        stripe.NewClient(secretKey, opts...),
		webhookSecret: webhookSecret,
	}
}

// NewRegistryFromEnv builds the MAHAD and DUGSI gateways from
// STRIPE_SECRET_KEY_* / STRIPE_WEBHOOK_SECRET_*.
func NewRegistryFromEnv() (*Registry, error) {
	mahadKey := strings.TrimSpace(env.GetEnv("STRIPE_SECRET_KEY_MAHAD", ""))
	dugsiKey := strings.TrimSpace(env.GetEnv("STRIPE_SECRET_KEY_DUGSI", ""))
	if mahadKey == "" || dugsiKey == "" {
		return nil, errors.New("STRIPE_SECRET_KEY_MAHAD/STRIPE_SECRET_KEY_DUGSI are not configured")
	}
	return NewRegistry(
		NewStripeGateway(AccountMahad, mahadKey, strings.TrimSpace(env.GetEnv("STRIPE_WEBHOOK_SECRET_MAHAD", ""))),
		NewStripeGateway(AccountDugsi, dugsiKey, strings.TrimSpace(env.GetEnv("STRIPE_WEBHOOK_SECRET_DUGSI", ""))),
	), nil
}

func (g *StripeGateway) RetrieveSubscription(ctx context.Context, id string) (*Subscription, error) {
	params := &stripe.SubscriptionRetrieveParams{
		Expand: []*string{stripe.String("customer")},
	}
	sub, err := g.client.V1Subscriptions.Retrieve(ctx, id, params)
	if err != nil {
		return nil, wrapStripeError(err)
	}
	return fromStripeSubscription(sub), nil
}

func (g *StripeGateway) RetrieveCustomer(ctx context.Context, id string) (*Customer, error) {
	c, err := g.client.V1Customers.Retrieve(ctx, id, &stripe.CustomerRetrieveParams{})
	if err != nil {
		return nil, wrapStripeError(err)
	}
	ref := fromStripeCustomer(c)
	if expanded, ok := ref.Expanded(); ok {
		return expanded, nil
	}
	return &Customer{ID: ref.ID()}, nil
}

func (g *StripeGateway) RetrieveCheckoutSession(ctx context.Context, id string) (*CheckoutSession, error) {
	params := &stripe.CheckoutSessionRetrieveParams{
		Expand: []*string{stripe.String("customer")},
	}
	cs, err := g.client.V1CheckoutSessions.Retrieve(ctx, id, params)
	if err != nil {
		return nil, wrapStripeError(err)
	}
	out := &CheckoutSession{
		ID:            cs.ID,
		Mode:          string(cs.Mode),
		Status:        string(cs.Status),
		Customer:      fromStripeCustomer(cs.Customer),
		CustomerEmail: cs.CustomerEmail,
		Metadata:      cs.Metadata,
	}
	if cs.CustomerDetails != nil && cs.CustomerDetails.Email != "" {
		out.CustomerEmail = cs.CustomerDetails.Email
	}
	if cs.Subscription != nil {
		out.SubscriptionID = cs.Subscription.ID
	}
	return out, nil
}

// ListSubscriptions returns one page of at most params.Limit subscriptions
// starting after params.Cursor. Iteration stops on the last wanted item so
// the pager never requests the following page; a full page therefore
// reports HasMore and the caller's next call may come back empty.
func (g *StripeGateway) ListSubscriptions(ctx context.Context, params ListParams) (*SubscriptionPage, error) {
	limit := params.Limit
	if limit <= 0 || limit > defaultListLimit {
		limit = defaultListLimit
	}
	lp := &stripe.SubscriptionListParams{}
	lp.Limit = stripe.Int64(limit)
	if params.Cursor != "" {
		lp.StartingAfter = stripe.String(params.Cursor)
	}
	if params.ExpandCustomer {
		lp.Expand = []*string{stripe.String("data.customer")}
	}

	page := &SubscriptionPage{Items: make([]*Subscription, 0, limit)}
	for sub, err := range g.client.V1Subscriptions.List(ctx, lp) {
		if err != nil {
			return nil, wrapStripeError(err)
		}
		page.Items = append(page.Items, fromStripeSubscription(sub))
		if int64(len(page.Items)) == limit {
			page.HasMore = true
			page.NextCursor = sub.ID
			break
		}
	}
	return page, nil
}

func (g *StripeGateway) CancelSubscription(ctx context.Context, id string) (*Subscription, error) {
	sub, err := g.client.V1Subscriptions.Cancel(ctx, id, &stripe.SubscriptionCancelParams{})
	if err != nil {
		return nil, wrapStripeError(err)
	}
	return fromStripeSubscription(sub), nil
}

func (g *StripeGateway) VerifyWebhookSignature(payload []byte, signature string) (*Event, error) {
	if strings.TrimSpace(g.webhookSecret) == "" {
		return nil, &GatewayError{Code: CodeSignatureInvalid, Message: "webhook secret not configured for " + string(g.account)}
	}
	ev, err := webhook.ConstructEventWithOptions(payload, signature, g.webhookSecret, webhook.ConstructEventOptions{
		IgnoreAPIVersionMismatch: true,
	})
	if err != nil {
		return nil, &GatewayError{Code: CodeSignatureInvalid, Message: "invalid webhook signature", Err: err}
	}
	var raw json.RawMessage
	if ev.Data != nil {
		raw = ev.Data.Raw
	}
	return &Event{ID: ev.ID, Type: string(ev.Type), Raw: raw}, nil
}

func wrapStripeError(err error) error {
	var se *stripe.Error
	if errors.As(err, &se) {
		return NewGatewayError(string(se.Code), se.Msg, err)
	}
	return NewGatewayError("", "", err)
}

func fromStripeCustomer(c *stripe.Customer) CustomerRef {
	if c == nil || c.ID == "" {
		return CustomerRef{}
	}
	// An unexpanded relation decodes to a Customer carrying only its id.
	if c.Created == 0 && c.Email == "" && c.Name == "" {
		return CustomerReference(c.ID)
	}
	return ExpandedCustomer(&Customer{
		ID:       c.ID,
		Email:    c.Email,
		Name:     c.Name,
		Phone:    c.Phone,
		Created:  c.Created,
		Deleted:  c.Deleted,
		Metadata: c.Metadata,
	})
}

func fromStripeSubscription(s *stripe.Subscription) *Subscription {
	if s == nil {
		return nil
	}
	out := &Subscription{
		ID:                s.ID,
		Status:            string(s.Status),
		Customer:          fromStripeCustomer(s.Customer),
		Created:           s.Created,
		CancelAtPeriodEnd: s.CancelAtPeriodEnd,
		Currency:          string(s.Currency),
		Metadata:          s.Metadata,
	}
	if s.Items == nil {
		return out
	}
	for _, it := range s.Items.Data {
		if it == nil {
			continue
		}
		item := SubscriptionItem{
			ID:                 it.ID,
			Quantity:           it.Quantity,
			CurrentPeriodStart: it.CurrentPeriodStart,
			CurrentPeriodEnd:   it.CurrentPeriodEnd,
		}
		if it.Price != nil {
			item.Price = Price{
				ID:         it.Price.ID,
				UnitAmount: it.Price.UnitAmount,
				Currency:   string(it.Price.Currency),
			}
			if it.Price.Recurring != nil {
				item.Price.Recurring = &Recurring{Interval: string(it.Price.Recurring.Interval)}
			}
		}
		out.Items.Data = append(out.Items.Data, item)
	}
	return out
}
