package billing

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"strings"
	"time"

	"github.com/ManuelReschke/enrollbilling/app/models"
	"github.com/ManuelReschke/enrollbilling/internal/pkg/gateway"
	"github.com/ManuelReschke/enrollbilling/internal/pkg/metrics"
	"gorm.io/gorm"
)

const (
	defaultListPageSize = 100
	defaultReportTTL    = 10 * time.Minute
)

// GatewayResolver selects the gateway for an account type.
type GatewayResolver interface {
	For(t gateway.AccountType) (gateway.Gateway, error)
}

// ReportCache stores the orphan report between operator requests.
type ReportCache interface {
	GetJSON(ctx context.Context, key string, dst any) (bool, error)
	SetJSON(ctx context.Context, key string, v any, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
}

// Service is the billing reconciliation engine.
type Service struct {
	repo         Repository
	gateways     GatewayResolver
	reports      ReportCache
	reportTTL    time.Duration
	listPageSize int64
	now          func() time.Time
}

// Option configures a Service.
type Option func(*Service)

// WithReportCache enables caching of the orphan report.
func WithReportCache(c ReportCache, ttl time.Duration) Option {
	return func(s *Service) {
		s.reports = c
		if ttl > 0 {
			s.reportTTL = ttl
		}
	}
}

// WithListPageSize sets the page size used when listing gateway subscriptions.
func WithListPageSize(n int64) Option {
	return func(s *Service) {
		if n > 0 {
			s.listPageSize = n
		}
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		s.now = now
	}
}

// NewService creates a billing service from an injected repository and gateways.
func NewService(repo Repository, gateways GatewayResolver, opts ...Option) *Service {
	s := &Service{
		repo:         repo,
		gateways:     gateways,
		reportTTL:    defaultReportTTL,
		listPageSize: defaultListPageSize,
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// NewServiceFromDB creates a billing service from a GORM DB handle.
func NewServiceFromDB(db *gorm.DB, gateways GatewayResolver, opts ...Option) *Service {
	return NewService(NewRepository(db), gateways, opts...)
}

func (s *Service) gateway(t gateway.AccountType) (gateway.Gateway, error) {
	if t == "" {
		return nil, invalid("account_type", "account type is required")
	}
	return s.gateways.For(t)
}

// observe times one gateway call.
func observe(operation string) func() {
	start := time.Now()
	return func() {
		metrics.GatewayCallDuration.WithLabelValues(operation).Observe(time.Since(start).Seconds())
	}
}

func isRecordNotFound(err error) bool {
	return errors.Is(err, gorm.ErrRecordNotFound)
}

// RecordWebhookEvent persists webhook payloads idempotently.
func (s *Service) RecordWebhookEvent(ctx context.Context, in WebhookEventInput) (bool, *models.BillingWebhookEvent, error) {
	provider := strings.ToLower(strings.TrimSpace(in.Provider))
	if provider == "" {
		return false, nil, invalid("provider", "provider is required")
	}
	eventID := strings.TrimSpace(in.ProviderEventID)
	if eventID == "" {
		sum := sha256.Sum256([]byte(in.PayloadJSON))
		eventID = "hash:" + hex.EncodeToString(sum[:])
	}

	event := &models.BillingWebhookEvent{
		Provider:        provider,
		AccountType:     strings.TrimSpace(in.AccountType),
		ProviderEventID: eventID,
		EventType:       strings.TrimSpace(in.EventType),
		PayloadJSON:     in.PayloadJSON,
		SignatureValid:  in.SignatureValid,
	}
	return s.repo.CreateWebhookEventIfNotExists(ctx, event)
}

// MarkWebhookProcessed marks an event as processed and stores an optional error.
func (s *Service) MarkWebhookProcessed(ctx context.Context, webhookEventID uint, processingErr error) error {
	if webhookEventID == 0 {
		return invalid("webhook_event_id", "webhook_event_id is required")
	}
	errMsg := ""
	if processingErr != nil {
		errMsg = processingErr.Error()
	}
	return s.repo.MarkWebhookProcessed(ctx, webhookEventID, errMsg)
}
