package rules

import (
	"github.com/google/uuid"

	"github.com/joaquinvilla/merkado-backend/pkg/enums"
)

// DeriveScope maps the presence of seller/category targets onto the scope enum.
func DeriveScope(sellerStoreID *uuid.UUID, category *string) enums.RuleScope {
	hasSeller := sellerStoreID != nil && *sellerStoreID != uuid.Nil
	hasCategory := category != nil && *category != ""
	switch {
	case hasSeller && hasCategory:
		return enums.RuleScopeSellerAndCategory
	case hasSeller:
		return enums.RuleScopeSellerOnly
	case hasCategory:
		return enums.RuleScopeCategoryOnly
	default:
		return enums.RuleScopeGlobal
	}
}
