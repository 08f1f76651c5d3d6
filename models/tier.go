package models

import (
	"encoding/json"
	"fmt"
)

// IdentifierTier ranks how precisely a product can be matched across retailers.
// The zero value is IdentifierNone; tiers compare with < and >.
type IdentifierTier int

const (
	IdentifierNone IdentifierTier = iota
	IdentifierBrandPlusMpn
	IdentifierGtin
)

var identifierTierNames = [...]string{"none", "brand_mpn", "gtin"}

func (t IdentifierTier) String() string {
	if t < 0 || int(t) >= len(identifierTierNames) {
		return fmt.Sprintf("IdentifierTier(%d)", int(t))
	}
	return identifierTierNames[t]
}

func (t IdentifierTier) MarshalJSON() ([]byte, error) {
	return json.Marshal(t.String())
}

func (t *IdentifierTier) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	v, ok := ParseIdentifierTier(s)
	if !ok {
		return fmt.Errorf("unknown identifier tier %q", s)
	}
	*t = v
	return nil
}

// PolicyTier ranks how machine-readable a retailer's return, warranty and
// shipping disclosure is. Tiers are mutually exclusive; the highest wins.
type PolicyTier int

const (
	PolicyNone PolicyTier = iota
	PolicyLinkOnly
	PolicyStructuredOnPolicyPage
	PolicyStructuredOnProduct
)

var policyTierNames = [...]string{"none", "link_only", "structured_policy_page", "structured_product"}

func (t PolicyTier) String() string {
	if t < 0 || int(t) >= len(policyTierNames) {
		return fmt.Sprintf("PolicyTier(%d)", int(t))
	}
	return policyTierNames[t]
}

func (t PolicyTier) MarshalJSON() ([]byte, error) {
	return json.Marshal(t.String())
}

func (t *PolicyTier) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	v, ok := ParsePolicyTier(s)
	if !ok {
		return fmt.Errorf("unknown policy tier %q", s)
	}
	*t = v
	return nil
}

// ParsePolicyTier is the inverse of PolicyTier.String.
func ParsePolicyTier(s string) (PolicyTier, bool) {
	for i, name := range policyTierNames {
		if name == s {
			return PolicyTier(i), true
		}
	}
	return PolicyNone, false
}

// ParseIdentifierTier is the inverse of IdentifierTier.String.
func ParseIdentifierTier(s string) (IdentifierTier, bool) {
	for i, name := range identifierTierNames {
		if name == s {
			return IdentifierTier(i), true
		}
	}
	return IdentifierNone, false
}
