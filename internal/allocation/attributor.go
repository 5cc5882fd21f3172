package allocation

import (
	"context"
	"strings"

	"github.com/plcoste/syndic/internal/domain"
)

// DepositAttributor maps a deposit transaction to the owner it belongs
// to. This abstraction allows different attribution strategies (name
// matching, model-assisted suggestion) without touching the allocator.
// Implementations must report ok=false rather than guessing when no
// confident match exists; an unattributed deposit contributes to no
// owner's balance.
type DepositAttributor interface {
	Attribute(ctx context.Context, tx *domain.Transaction, owners []*domain.Owner) (ownerID string, ok bool, err error)
}

// NameAttributor is the default strategy: an explicit owner reference on
// the transaction wins; otherwise the owner's name is searched as a
// case-insensitive substring of the counterparty, then the description.
// It is deterministic and never returns an error.
type NameAttributor struct{}

// Attribute implements DepositAttributor.
func (NameAttributor) Attribute(ctx context.Context, tx *domain.Transaction, owners []*domain.Owner) (string, bool, error) {
	if tx.OwnerID != "" {
		for _, o := range owners {
			if o.ID == tx.OwnerID {
				return o.ID, true, nil
			}
		}
		// Explicit attribution pointing outside the building is ignored
		// rather than credited blindly.
		return "", false, nil
	}

	counterparty := normalize(tx.Counterparty)
	description := normalize(tx.Description)

	for _, haystack := range []string{counterparty, description} {
		if haystack == "" {
			continue
		}
		for _, o := range owners {
			if matchesOwner(haystack, o) {
				return o.ID, true, nil
			}
		}
	}
	return "", false, nil
}

// matchesOwner checks the "first last", full-name and bare last-name
// forms of an owner's name against the normalized haystack.
func matchesOwner(haystack string, o *domain.Owner) bool {
	forms := []string{
		o.FullName(),
		strings.TrimSpace(o.LastName + " " + o.FirstName),
		o.LastName,
	}
	for _, form := range forms {
		form = normalize(strings.TrimSpace(form))
		if form == "" {
			continue
		}
		if strings.Contains(haystack, form) {
			return true
		}
	}
	return false
}

var _ DepositAttributor = NameAttributor{}
