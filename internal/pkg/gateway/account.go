package gateway

import (
	"fmt"
	"strings"

	"github.com/ManuelReschke/enrollbilling/app/models"
)

// AccountType selects which gateway account an operation targets.
type AccountType string

const (
	AccountMahad           AccountType = models.AccountTypeMahad
	AccountDugsi           AccountType = models.AccountTypeDugsi
	AccountYouthEvents     AccountType = models.AccountTypeYouthEvents
	AccountGeneralDonation AccountType = models.AccountTypeGeneralDonation
)

// AllAccountTypes lists every declared account type.
func AllAccountTypes() []AccountType {
	return []AccountType{AccountMahad, AccountDugsi, AccountYouthEvents, AccountGeneralDonation}
}

// ParseAccountType accepts any casing of a declared account type.
func ParseAccountType(raw string) (AccountType, error) {
	t := AccountType(strings.ToUpper(strings.TrimSpace(raw)))
	for _, known := range AllAccountTypes() {
		if t == known {
			return t, nil
		}
	}
	return "", fmt.Errorf("unknown account type %q", raw)
}

// ForProgram maps a program to the account its subscriptions are billed on.
func ForProgram(program string) (AccountType, error) {
	switch program {
	case models.ProgramMahad:
		return AccountMahad, nil
	case models.ProgramDugsi:
		return AccountDugsi, nil
	default:
		return "", fmt.Errorf("unknown program %q", program)
	}
}

// Registry holds one configured gateway per underlying account.
type Registry struct {
	mahad Gateway
	dugsi Gateway
}

// NewRegistry creates a registry from the two configured gateway accounts.
func NewRegistry(mahad, dugsi Gateway) *Registry {
	return &Registry{mahad: mahad, dugsi: dugsi}
}

// For resolves the gateway for an account type. YOUTH_EVENTS and
// GENERAL_DONATION share the MAHAD account. Every new AccountType must be
// added here; TestRegistryResolvesEveryAccountType fails otherwise.
func (r *Registry) For(t AccountType) (Gateway, error) {
	var g Gateway
	switch t {
	case AccountMahad, AccountYouthEvents, AccountGeneralDonation:
		g = r.mahad
	case AccountDugsi:
		g = r.dugsi
	default:
		return nil, fmt.Errorf("unhandled account type %q", t)
	}
	if g == nil {
		return nil, fmt.Errorf("gateway for account %s is not configured", t)
	}
	return g, nil
}
