package structdata

import (
	"fmt"
	"strings"
)

// Kind tags the closed set of entity variants the extractor understands.
type Kind int

const (
	KindProduct Kind = iota + 1
	KindOffer
	KindOrganization
	KindBreadcrumbList
	KindAggregateRating
	KindMerchantReturnPolicy
	KindWarrantyPromise
	KindProductGroup
)

var kindNames = map[Kind]string{
	KindProduct:              "Product",
	KindOffer:                "Offer",
	KindOrganization:         "Organization",
	KindBreadcrumbList:       "BreadcrumbList",
	KindAggregateRating:      "AggregateRating",
	KindMerchantReturnPolicy: "MerchantReturnPolicy",
	KindWarrantyPromise:      "WarrantyPromise",
	KindProductGroup:         "ProductGroup",
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// typeKinds maps lower-cased @type values (prefix-stripped) to variants.
// Subtypes that carry the same fields decode as their parent.
var typeKinds = map[string]Kind{
	"product":              KindProduct,
	"individualproduct":    KindProduct,
	"productmodel":         KindProduct,
	"offer":                KindOffer,
	"aggregateoffer":       KindOffer,
	"organization":         KindOrganization,
	"onlinestore":          KindOrganization,
	"onlinebusiness":       KindOrganization,
	"store":                KindOrganization,
	"corporation":          KindOrganization,
	"localbusiness":        KindOrganization,
	"breadcrumblist":       KindBreadcrumbList,
	"aggregaterating":      KindAggregateRating,
	"merchantreturnpolicy": KindMerchantReturnPolicy,
	"warrantypromise":      KindWarrantyPromise,
	"productgroup":         KindProductGroup,
}

// kindOfType resolves a single @type token such as "Product",
// "schema:Product" or "https://schema.org/Product".
func kindOfType(t string) (Kind, bool) {
	t = strings.TrimSpace(t)
	if i := strings.LastIndexAny(t, "/:#"); i >= 0 {
		t = t[i+1:]
	}
	k, ok := typeKinds[strings.ToLower(t)]
	return k, ok
}

// Node is one decoded entity. The set of implementations is closed.
type Node interface {
	Kind() Kind
	NodeID() string
	node()
}

// Ref points at another node: either an arena position (for embedded
// entities) or an @id key resolved by lookup. A reference that resolves to
// nothing is absent data.
type Ref struct {
	// Index is the 1-based arena position; 0 when the reference is by key only.
	Index int
	Key   string
}

// IsZero reports whether r points nowhere.
func (r Ref) IsZero() bool { return r.Index == 0 && r.Key == "" }

// Identifier is one raw GTIN-family field as it appeared in the markup.
type Identifier struct {
	Field string // gtin, gtin8, gtin12, gtin13 or gtin14
	Value string
}

// Brand is a brand given as plain text, as a nested Brand/Organization
// object, or as a reference to an Organization elsewhere in the graph.
type Brand struct {
	Name string
	Ref  Ref
}

// PropertyValue is one additionalProperty entry.
type PropertyValue struct {
	Name       string
	Value      string
	Numeric    float64
	HasNumeric bool
	MinValue   float64
	HasMin     bool
	MaxValue   float64
	HasMax     bool
	UnitCode   string
	UnitText   string
}

// Policies holds the policy-bearing fields shared by Product, ProductGroup,
// Offer and Organization.
type Policies struct {
	ReturnPolicies []Ref // hasMerchantReturnPolicy
	Warranties     []Ref // warranty, hasWarrantyPromise
	Shipping       bool  // shippingDetails / hasShippingService present
}

type Product struct {
	ID                 string
	Name               string
	URL                string
	SKU                string
	MPN                string
	GTINs              []Identifier
	Brand              Brand
	Offers             []Ref
	AggregateRating    Ref
	AdditionalProperty []PropertyValue
	IsVariantOf        Ref
	Policies
}

type ProductGroup struct {
	ID                 string
	Name               string
	URL                string
	ProductGroupID     string
	VariesBy           []string
	HasVariant         []Ref
	Brand              Brand
	Offers             []Ref
	AggregateRating    Ref
	AdditionalProperty []PropertyValue
	Policies
}

type Offer struct {
	ID            string
	URL           string
	Price         float64
	HasPrice      bool
	PriceCurrency string
	Availability  string
	Seller        Ref
	ItemOffered   Ref
	Policies
}

type Organization struct {
	ID   string
	Name string
	URL  string
	Policies
}

// ListItem is one breadcrumb position.
type ListItem struct {
	Position int
	Name     string
	URL      string
}

type BreadcrumbList struct {
	ID    string
	Items []ListItem
}

type AggregateRating struct {
	ID           string
	Value        float64
	HasValue     bool
	Best         float64 // 0 when not given
	Worst        float64
	Count        int // ratingCount, else reviewCount
	HasCount     bool
	ItemReviewed Ref
}

type MerchantReturnPolicy struct {
	ID                string
	URL               string
	Category          string
	Days              int
	ApplicableCountry string
}

type WarrantyPromise struct {
	ID       string
	Duration string
	Scope    string
}

func (*Product) Kind() Kind              { return KindProduct }
func (*ProductGroup) Kind() Kind         { return KindProductGroup }
func (*Offer) Kind() Kind                { return KindOffer }
func (*Organization) Kind() Kind         { return KindOrganization }
func (*BreadcrumbList) Kind() Kind       { return KindBreadcrumbList }
func (*AggregateRating) Kind() Kind      { return KindAggregateRating }
func (*MerchantReturnPolicy) Kind() Kind { return KindMerchantReturnPolicy }
func (*WarrantyPromise) Kind() Kind      { return KindWarrantyPromise }

func (n *Product) NodeID() string              { return n.ID }
func (n *ProductGroup) NodeID() string         { return n.ID }
func (n *Offer) NodeID() string                { return n.ID }
func (n *Organization) NodeID() string         { return n.ID }
func (n *BreadcrumbList) NodeID() string       { return n.ID }
func (n *AggregateRating) NodeID() string      { return n.ID }
func (n *MerchantReturnPolicy) NodeID() string { return n.ID }
func (n *WarrantyPromise) NodeID() string      { return n.ID }

func (*Product) node()              {}
func (*ProductGroup) node()         {}
func (*Offer) node()                {}
func (*Organization) node()         {}
func (*BreadcrumbList) node()       {}
func (*AggregateRating) node()      {}
func (*MerchantReturnPolicy) node() {}
func (*WarrantyPromise) node()      {}
