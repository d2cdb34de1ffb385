package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
)

// Gateway is the capability set the billing engine needs from an external
// recurring-payment provider.
type Gateway interface {
	RetrieveSubscription(ctx context.Context, id string) (*Subscription, error)
	RetrieveCustomer(ctx context.Context, id string) (*Customer, error)
	RetrieveCheckoutSession(ctx context.Context, id string) (*CheckoutSession, error)
	ListSubscriptions(ctx context.Context, params ListParams) (*SubscriptionPage, error)
	CancelSubscription(ctx context.Context, id string) (*Subscription, error)
	VerifyWebhookSignature(payload []byte, signature string) (*Event, error)
}

// ListParams pages through subscriptions. An empty Cursor starts at the
// beginning.
type ListParams struct {
	Cursor         string
	Limit          int64
	ExpandCustomer bool
}

// SubscriptionPage is one page of a subscription listing.
type SubscriptionPage struct {
	Items      []*Subscription
	HasMore    bool
	NextCursor string
}

// Customer is the subset of a gateway customer the engine reads.
type Customer struct {
	ID       string            `json:"id"`
	Email    string            `json:"email"`
	Name     string            `json:"name"`
	Phone    string            `json:"phone"`
	Created  int64             `json:"created"`
	Deleted  bool              `json:"deleted"`
	Metadata map[string]string `json:"metadata"`
}

// CustomerRef is a subscription's customer relation. The gateway returns it
// either as a bare id or as the expanded object.
type CustomerRef struct {
	id       string
	expanded *Customer
}

// CustomerReference builds the id-only variant.
func CustomerReference(id string) CustomerRef {
	return CustomerRef{id: id}
}

// ExpandedCustomer builds the expanded variant.
func ExpandedCustomer(c *Customer) CustomerRef {
	if c == nil {
		return CustomerRef{}
	}
	return CustomerRef{id: c.ID, expanded: c}
}

// ID returns the customer id for either variant, or "" when absent.
func (r CustomerRef) ID() string {
	return r.id
}

// Expanded returns the full customer when the relation was expanded.
func (r CustomerRef) Expanded() (*Customer, bool) {
	return r.expanded, r.expanded != nil
}

// UnmarshalJSON accepts "cus_123", null or a customer object.
func (r *CustomerRef) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*r = CustomerRef{}
		return nil
	}
	if data[0] == '"' {
		var id string
		if err := json.Unmarshal(data, &id); err != nil {
			return err
		}
		*r = CustomerReference(id)
		return nil
	}
	var c Customer
	if err := json.Unmarshal(data, &c); err != nil {
		return fmt.Errorf("decode customer: %w", err)
	}
	*r = ExpandedCustomer(&c)
	return nil
}

// MarshalJSON writes the expanded object when present, otherwise the id.
func (r CustomerRef) MarshalJSON() ([]byte, error) {
	if r.expanded != nil {
		return json.Marshal(r.expanded)
	}
	if r.id == "" {
		return []byte("null"), nil
	}
	return json.Marshal(r.id)
}

// Subscription is the provider-neutral view of a gateway subscription. Period
// fields are unix seconds; zero means unset. Older API versions report the
// period on the subscription, newer ones on each item.
type Subscription struct {
	ID                 string            `json:"id"`
	Status             string            `json:"status"`
	Customer           CustomerRef       `json:"customer"`
	Created            int64             `json:"created"`
	CurrentPeriodStart int64             `json:"current_period_start"`
	CurrentPeriodEnd   int64             `json:"current_period_end"`
	CancelAtPeriodEnd  bool              `json:"cancel_at_period_end"`
	Currency           string            `json:"currency"`
	Metadata           map[string]string `json:"metadata"`
	Items              SubscriptionItems `json:"items"`
}

// SubscriptionItems mirrors the gateway's list envelope for items.
type SubscriptionItems struct {
	Data []SubscriptionItem `json:"data"`
}

// SubscriptionItem is one priced line of a subscription.
type SubscriptionItem struct {
	ID                 string `json:"id"`
	Quantity           int64  `json:"quantity"`
	CurrentPeriodStart int64  `json:"current_period_start"`
	CurrentPeriodEnd   int64  `json:"current_period_end"`
	Price              Price  `json:"price"`
}

// Price is the subset of a gateway price the engine reads.
type Price struct {
	ID         string     `json:"id"`
	UnitAmount int64      `json:"unit_amount"`
	Currency   string     `json:"currency"`
	Recurring  *Recurring `json:"recurring"`
}

// Recurring describes a price's billing cadence.
type Recurring struct {
	Interval string `json:"interval"`
}

// FirstItem returns the first subscription item, if any.
func (s *Subscription) FirstItem() (SubscriptionItem, bool) {
	if s == nil || len(s.Items.Data) == 0 {
		return SubscriptionItem{}, false
	}
	return s.Items.Data[0], true
}

// Amount is the first line item's unit amount, 0 when there are no items.
func (s *Subscription) Amount() int64 {
	item, ok := s.FirstItem()
	if !ok {
		return 0
	}
	return item.Price.UnitAmount
}

// Interval is the first line item's recurring interval.
func (s *Subscription) Interval() string {
	item, ok := s.FirstItem()
	if !ok || item.Price.Recurring == nil {
		return ""
	}
	return item.Price.Recurring.Interval
}

// CheckoutSession is the subset of a checkout session the engine reads.
type CheckoutSession struct {
	ID             string            `json:"id"`
	Mode           string            `json:"mode"`
	Status         string            `json:"status"`
	Customer       CustomerRef       `json:"customer"`
	SubscriptionID string            `json:"-"`
	CustomerEmail  string            `json:"customer_email"`
	Metadata       map[string]string `json:"metadata"`
}

// Email prefers the collected customer details over the prefilled email.
func (cs *CheckoutSession) Email() string {
	if c, ok := cs.Customer.Expanded(); ok && c.Email != "" {
		return c.Email
	}
	return cs.CustomerEmail
}

// UnmarshalJSON handles the subscription relation (id or object) and
// customer_details.email.
func (cs *CheckoutSession) UnmarshalJSON(data []byte) error {
	type plain CheckoutSession
	var aux struct {
		plain
		Subscription    json.RawMessage `json:"subscription"`
		CustomerDetails *struct {
			Email string `json:"email"`
		} `json:"customer_details"`
	}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	*cs = CheckoutSession(aux.plain)
	if aux.CustomerDetails != nil && aux.CustomerDetails.Email != "" {
		cs.CustomerEmail = aux.CustomerDetails.Email
	}
	raw := bytes.TrimSpace(aux.Subscription)
	switch {
	case len(raw) == 0 || bytes.Equal(raw, []byte("null")):
	case raw[0] == '"':
		if err := json.Unmarshal(raw, &cs.SubscriptionID); err != nil {
			return err
		}
	default:
		var sub struct {
			ID string `json:"id"`
		}
		if err := json.Unmarshal(raw, &sub); err != nil {
			return err
		}
		cs.SubscriptionID = sub.ID
	}
	return nil
}

// Event is a verified webhook event. Raw holds the event's data.object.
type Event struct {
	ID   string
	Type string
	Raw  json.RawMessage
}

// DecodeSubscription decodes a subscription event payload.
func (e *Event) DecodeSubscription() (*Subscription, error) {
	var sub Subscription
	if err := json.Unmarshal(e.Raw, &sub); err != nil {
		return nil, fmt.Errorf("decode subscription: %w", err)
	}
	return &sub, nil
}

// DecodeCheckoutSession decodes a checkout.session event payload.
func (e *Event) DecodeCheckoutSession() (*CheckoutSession, error) {
	var cs CheckoutSession
	if err := json.Unmarshal(e.Raw, &cs); err != nil {
		return nil, fmt.Errorf("decode checkout.session: %w", err)
	}
	return &cs, nil
}
