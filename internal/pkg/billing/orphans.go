package billing

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/ManuelReschke/enrollbilling/app/models"
	"github.com/ManuelReschke/enrollbilling/internal/pkg/gateway"
	"github.com/ManuelReschke/enrollbilling/internal/pkg/metrics"
	fiberlog "github.com/gofiber/fiber/v2/log"
	"github.com/google/uuid"
	"github.com/samber/lo"
	"golang.org/x/sync/errgroup"
)

const orphanReportKey = "orphan-report"

// reconciledPrograms is the order orphan results are merged in.
var reconciledPrograms = []string{models.ProgramMahad, models.ProgramDugsi}

// GetOrphanedSubscriptions lists live gateway subscriptions of every program
// that are not linked to any local record. Programs are scanned concurrently;
// results are merged MAHAD first, each program newest first.
func (s *Service) GetOrphanedSubscriptions(ctx context.Context) ([]OrphanedSubscription, error) {
	results := make([][]OrphanedSubscription, len(reconciledPrograms))
	g, gctx := errgroup.WithContext(ctx)
	for i, program := range reconciledPrograms {
		g.Go(func() error {
			orphans, err := s.orphansForProgram(gctx, program)
			if err != nil {
				return fmt.Errorf("%s: %w", program, err)
			}
			results[i] = orphans
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return lo.Flatten(results), nil
}

func (s *Service) orphansForProgram(ctx context.Context, program string) ([]OrphanedSubscription, error) {
	accountType, err := gateway.ForProgram(program)
	if err != nil {
		return nil, err
	}
	gw, err := s.gateway(accountType)
	if err != nil {
		return nil, err
	}

	live, err := s.listLiveSubscriptions(ctx, gw)
	if err != nil {
		return nil, err
	}
	linkedIDs, err := s.repo.ListLinkedGatewayIDs(ctx, string(accountType), program)
	if err != nil {
		return nil, err
	}
	linked := lo.SliceToMap(linkedIDs, func(id string) (string, struct{}) { return id, struct{}{} })

	// One guardian paying for several students shows up as one customer
	// with several subscriptions.
	var perCustomer map[string]int
	if program == models.ProgramMahad {
		perCustomer = lo.CountValuesBy(live, func(sub *gateway.Subscription) string {
			id, _ := ExtractCustomerID(sub)
			return id
		})
	}

	customers := make(map[string]*gateway.Customer)
	orphans := make([]OrphanedSubscription, 0)
	for _, sub := range live {
		if _, ok := linked[sub.ID]; ok {
			continue
		}
		customerID, _ := ExtractCustomerID(sub)
		customer := s.resolveCustomer(ctx, gw, sub, customers)

		count := 1
		if n := perCustomer[customerID]; customerID != "" && n > 0 {
			count = n
		}
		period := ExtractPeriod(sub)
		orphan := OrphanedSubscription{
			ID:                sub.ID,
			Status:            normalizeStatus(sub.Status),
			CustomerID:        customerID,
			Amount:            sub.Amount(),
			Created:           time.Unix(sub.Created, 0).UTC(),
			PeriodStart:       period.Start,
			PeriodEnd:         period.End,
			Program:           program,
			Metadata:          sub.Metadata,
			SubscriptionCount: count,
		}
		if customer != nil {
			orphan.CustomerEmail = models.NormalizeEmail(customer.Email)
			orphan.CustomerName = customer.Name
		}
		orphans = append(orphans, orphan)
	}

	sort.SliceStable(orphans, func(i, j int) bool {
		return orphans[i].Created.After(orphans[j].Created)
	})
	metrics.OrphanedSubscriptions.WithLabelValues(program).Set(float64(len(orphans)))
	fiberlog.Infof("[Reconcile] %s: %d live subscription(s), %d orphaned", program, len(live), len(orphans))
	return orphans, nil
}

// listLiveSubscriptions pages through the account's subscriptions with the
// customer expanded and keeps the reconcilable ones.
func (s *Service) listLiveSubscriptions(ctx context.Context, gw gateway.Gateway) ([]*gateway.Subscription, error) {
	var live []*gateway.Subscription
	params := gateway.ListParams{Limit: s.listPageSize, ExpandCustomer: true}
	for {
		done := observe("list_subscriptions")
		page, err := gw.ListSubscriptions(ctx, params)
		done()
		if err != nil {
			return nil, fmt.Errorf("list subscriptions: %w", err)
		}
		live = append(live, lo.Filter(page.Items, func(sub *gateway.Subscription, _ int) bool {
			return isReconcilableStatus(sub.Status)
		})...)
		if !page.HasMore || page.NextCursor == "" {
			return live, nil
		}
		params.Cursor = page.NextCursor
	}
}

// resolveCustomer returns the subscription's customer, retrieving it once
// per id when the listing did not expand it. Lookup failures are logged and
// the orphan is reported without contact details.
func (s *Service) resolveCustomer(ctx context.Context, gw gateway.Gateway, sub *gateway.Subscription, seen map[string]*gateway.Customer) *gateway.Customer {
	if c, ok := ExtractCustomer(sub); ok {
		return c
	}
	id, ok := ExtractCustomerID(sub)
	if !ok {
		return nil
	}
	if c, ok := seen[id]; ok {
		return c
	}
	done := observe("retrieve_customer")
	c, err := gw.RetrieveCustomer(ctx, id)
	done()
	if err != nil {
		fiberlog.Warnf("[Reconcile] Could not retrieve customer %s: %v", id, err)
		c = nil
	}
	seen[id] = c
	return c
}

// GetOrphanReport returns the cached orphan report unless refresh is set or
// nothing is cached.
func (s *Service) GetOrphanReport(ctx context.Context, refresh bool) (*OrphanReport, error) {
	if s.reports != nil && !refresh {
		var cached OrphanReport
		hit, err := s.reports.GetJSON(ctx, orphanReportKey, &cached)
		if err != nil {
			fiberlog.Warnf("[Reconcile] Orphan report cache read failed: %v", err)
		}
		if hit {
			cached.Cached = true
			return &cached, nil
		}
	}

	orphans, err := s.GetOrphanedSubscriptions(ctx)
	if err != nil {
		return nil, err
	}
	report := &OrphanReport{
		ID:            uuid.NewString(),
		GeneratedAt:   s.now().UTC(),
		Subscriptions: orphans,
	}
	if s.reports != nil {
		if err := s.reports.SetJSON(ctx, orphanReportKey, report, s.reportTTL); err != nil {
			fiberlog.Warnf("[Reconcile] Orphan report cache write failed: %v", err)
		}
	}
	return report, nil
}

func (s *Service) invalidateOrphanReport(ctx context.Context) {
	if s.reports == nil {
		return
	}
	if err := s.reports.Delete(ctx, orphanReportKey); err != nil {
		fiberlog.Warnf("[Reconcile] Orphan report cache invalidation failed: %v", err)
	}
}

// GetPotentialMatches lists profiles in program whose contact email equals
// email, ignoring case. Matching is exact; there is no fuzzy fallback.
func (s *Service) GetPotentialMatches(ctx context.Context, email, program string) ([]PotentialMatch, error) {
	normalized := models.NormalizeEmail(email)
	if normalized == "" {
		return nil, invalid("email", "email is required")
	}
	if _, err := gateway.ForProgram(program); err != nil {
		return nil, invalid("program", err.Error())
	}

	profiles, err := s.repo.FindProfilesByEmail(ctx, normalized, program)
	if err != nil {
		return nil, err
	}
	return lo.Map(profiles, func(p models.ProgramProfile, _ int) PotentialMatch {
		return toPotentialMatch(p)
	}), nil
}

func toPotentialMatch(p models.ProgramProfile) PotentialMatch {
	m := PotentialMatch{
		ID:              p.ID,
		Status:          p.Status,
		HasSubscription: p.StripeSubscriptionID != nil && *p.StripeSubscriptionID != "",
		Program:         p.Program,
	}
	if p.Person != nil {
		m.Name = p.Person.FullName()
	}
	contact := p.Person
	if p.Program == models.ProgramDugsi && p.Guardian != nil {
		contact = p.Guardian
	}
	if contact != nil {
		m.Email = contact.PrimaryContact(models.ContactTypeEmail)
		m.Phone = contact.PrimaryContact(models.ContactTypePhone)
	}
	return m
}
