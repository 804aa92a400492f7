package enums

import "fmt"

// RuleScope names the specificity tier a commission rule applies at.
// Precedence is resolved tier by tier from most to least specific, so the
// matching logic never has to reason about nullable field combinations.
type RuleScope string

const (
	RuleScopeSellerAndCategory RuleScope = "seller_and_category"
	RuleScopeSellerOnly        RuleScope = "seller_only"
	RuleScopeCategoryOnly      RuleScope = "category_only"
	RuleScopeGlobal            RuleScope = "global"
)

// ScopeTiers lists every scope from most to least specific. Rule resolution
// walks this slice in order and stops at the first tier with a match.
var ScopeTiers = []RuleScope{
	RuleScopeSellerAndCategory,
	RuleScopeSellerOnly,
	RuleScopeCategoryOnly,
	RuleScopeGlobal,
}

// String implements fmt.Stringer.
func (s RuleScope) String() string {
	return string(s)
}

// IsValid reports whether the value is a known RuleScope.
func (s RuleScope) IsValid() bool {
	for _, candidate := range ScopeTiers {
		if candidate == s {
			return true
		}
	}
	return false
}

// ParseRuleScope converts raw input into a RuleScope.
func ParseRuleScope(value string) (RuleScope, error) {
	for _, candidate := range ScopeTiers {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid rule scope %q", value)
}
