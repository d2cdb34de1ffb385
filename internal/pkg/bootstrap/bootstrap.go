package bootstrap

import (
	"fmt"
	"time"

	"github.com/ManuelReschke/enrollbilling/internal/pkg/billing"
	"github.com/ManuelReschke/enrollbilling/internal/pkg/cache"
	"github.com/ManuelReschke/enrollbilling/internal/pkg/database"
	"github.com/ManuelReschke/enrollbilling/internal/pkg/env"
	"github.com/ManuelReschke/enrollbilling/internal/pkg/gateway"
)

const (
	defaultReportTTL = 10 * time.Minute
	cachePrefix      = "enrollbilling:"
)

// BillingService connects the database, cache and both Stripe accounts and
// returns the configured engine. env.SetupEnvFile must have run first.
func BillingService() (*billing.Service, error) {
	database.SetupDatabase()
	cache.SetupCache()

	registry, err := gateway.NewRegistryFromEnv()
	if err != nil {
		return nil, fmt.Errorf("gateway setup: %w", err)
	}

	return billing.NewServiceFromDB(database.GetDB(), registry,
		billing.WithReportCache(
			cache.NewStore(cache.GetClient(), cachePrefix),
			env.GetEnvDuration("ORPHAN_REPORT_TTL", defaultReportTTL),
		),
		billing.WithListPageSize(int64(env.GetEnvInt("GATEWAY_LIST_PAGE_SIZE", 100))),
	), nil
}
