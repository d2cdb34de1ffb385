// Package gatewaytest provides an in-memory gateway for tests.
package gatewaytest

import (
	"context"
	"sort"
	"sync"

	"github.com/ManuelReschke/enrollbilling/internal/pkg/gateway"
)

// Fake is an in-memory gateway.Gateway. Subscriptions are listed in id order.
type Fake struct {
	mu            sync.Mutex
	subscriptions map[string]*gateway.Subscription
	customers     map[string]*gateway.Customer
	sessions      map[string]*gateway.CheckoutSession
	events        map[string]*gateway.Event

	// RetrieveErr, when set, is returned by RetrieveSubscription.
	RetrieveErr error
	Retrievals  int
	Cancels     []string
}

// NewFake creates an empty fake gateway.
func NewFake() *Fake {
	return &Fake{
		subscriptions: make(map[string]*gateway.Subscription),
		customers:     make(map[string]*gateway.Customer),
		sessions:      make(map[string]*gateway.CheckoutSession),
		events:        make(map[string]*gateway.Event),
	}
}

// PutSubscription stores or replaces a subscription.
func (f *Fake) PutSubscription(sub *gateway.Subscription) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.subscriptions[sub.ID] = sub
}

// SetStatus changes a stored subscription's status.
func (f *Fake) SetStatus(id, status string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if sub, ok := f.subscriptions[id]; ok {
		sub.Status = status
	}
}

// PutCustomer stores or replaces a customer.
func (f *Fake) PutCustomer(c *gateway.Customer) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.customers[c.ID] = c
}

// PutCheckoutSession stores or replaces a checkout session.
func (f *Fake) PutCheckoutSession(cs *gateway.CheckoutSession) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sessions[cs.ID] = cs
}

// PutEvent registers the event returned for a signature value.
func (f *Fake) PutEvent(signature string, ev *gateway.Event) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events[signature] = ev
}

func (f *Fake) RetrieveSubscription(_ context.Context, id string) (*gateway.Subscription, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Retrievals++
	if f.RetrieveErr != nil {
		return nil, f.RetrieveErr
	}
	sub, ok := f.subscriptions[id]
	if !ok {
		return nil, gateway.NewGatewayError("resource_missing", "No such subscription: "+id, nil)
	}
	cp := *sub
	return &cp, nil
}

func (f *Fake) RetrieveCustomer(_ context.Context, id string) (*gateway.Customer, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.customers[id]
	if !ok {
		return nil, gateway.NewGatewayError("resource_missing", "No such customer: "+id, nil)
	}
	cp := *c
	return &cp, nil
}

func (f *Fake) RetrieveCheckoutSession(_ context.Context, id string) (*gateway.CheckoutSession, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	cs, ok := f.sessions[id]
	if !ok {
		return nil, gateway.NewGatewayError("resource_missing", "No such checkout session: "+id, nil)
	}
	cp := *cs
	return &cp, nil
}

func (f *Fake) ListSubscriptions(_ context.Context, params gateway.ListParams) (*gateway.SubscriptionPage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	ids := make([]string, 0, len(f.subscriptions))
	for id := range f.subscriptions {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	start := 0
	if params.Cursor != "" {
		start = sort.SearchStrings(ids, params.Cursor) + 1
	}
	limit := int(params.Limit)
	if limit <= 0 {
		limit = 100
	}
	page := &gateway.SubscriptionPage{}
	for i := start; i < len(ids); i++ {
		if len(page.Items) == limit {
			page.HasMore = true
			page.NextCursor = page.Items[len(page.Items)-1].ID
			break
		}
		cp := *f.subscriptions[ids[i]]
		if !params.ExpandCustomer {
			cp.Customer = gateway.CustomerReference(cp.Customer.ID())
		}
		page.Items = append(page.Items, &cp)
	}
	return page, nil
}

func (f *Fake) CancelSubscription(_ context.Context, id string) (*gateway.Subscription, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	sub, ok := f.subscriptions[id]
	if !ok {
		return nil, gateway.NewGatewayError("resource_missing", "No such subscription: "+id, nil)
	}
	f.Cancels = append(f.Cancels, id)
	sub.Status = "canceled"
	cp := *sub
	return &cp, nil
}

func (f *Fake) VerifyWebhookSignature(_ []byte, signature string) (*gateway.Event, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	ev, ok := f.events[signature]
	if !ok {
		return nil, &gateway.GatewayError{Code: gateway.CodeSignatureInvalid, Message: "invalid webhook signature"}
	}
	return ev, nil
}
