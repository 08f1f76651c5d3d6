package structdata

import "strings"

// decoder turns parsed JSON-LD values into arena nodes. JSON trees cannot
// contain cycles, and @id references are stored as keys, so decoding always
// terminates.
type decoder struct {
	g *Graph
}

// block decodes one top-level structured-data value: an object, an array of
// objects, or an object carrying @graph (walked like any untyped wrapper).
func (d *decoder) block(v any) {
	switch t := v.(type) {
	case []any:
		for _, e := range t {
			d.block(e)
		}
	case map[string]any:
		d.object(t)
	}
}

// refs decodes a property value into references. A bare string counts as a
// reference when it looks like an @id: a fragment or a URL.
func (d *decoder) refs(v any) []Ref {
	switch t := v.(type) {
	case string:
		if s := strings.TrimSpace(t); strings.HasPrefix(s, "#") || looksLikeURL(s) {
			return []Ref{{Key: s}}
		}
	case map[string]any:
		if r, ok := d.object(t); ok {
			return []Ref{r}
		}
	case []any:
		var out []Ref
		for _, e := range t {
			out = append(out, d.refs(e)...)
		}
		return out
	}
	return nil
}

func (d *decoder) ref(v any) Ref {
	if rs := d.refs(v); len(rs) > 0 {
		return rs[0]
	}
	return Ref{}
}

// object decodes one JSON object. Objects of a recognised @type become
// nodes; others are searched for nested recognised entities (for example a
// WebPage whose mainEntity is the Product) and, when they carry an @id,
// returned as a keyed reference.
func (d *decoder) object(m map[string]any) (Ref, bool) {
	id := text(m["@id"])
	kind, ok := kindOf(m["@type"])
	if !ok {
		for _, k := range sortedKeys(m) {
			if strings.HasPrefix(k, "@") && k != "@graph" {
				continue
			}
			d.refs(m[k])
		}
		if id != "" {
			return Ref{Key: id}, true
		}
		return Ref{}, false
	}

	var n Node
	switch kind {
	case KindProduct:
		n = d.product(m, id)
	case KindProductGroup:
		n = d.productGroup(m, id)
	case KindOffer:
		n = d.offer(m, id)
	case KindOrganization:
		n = d.organization(m, id)
	case KindBreadcrumbList:
		n = d.breadcrumbs(m, id)
	case KindAggregateRating:
		n = d.aggregateRating(m, id)
	case KindMerchantReturnPolicy:
		rp := &MerchantReturnPolicy{
			ID:                id,
			URL:               text(m["url"]),
			Category:          text(m["returnPolicyCategory"]),
			ApplicableCountry: text(m["applicableCountry"]),
		}
		rp.Days, _ = count(m["merchantReturnDays"])
		n = rp
	case KindWarrantyPromise:
		n = &WarrantyPromise{
			ID:       id,
			Duration: durationText(m["durationOfWarranty"]),
			Scope:    text(m["warrantyScope"]),
		}
	}
	return d.g.add(n, len(m)), true
}

// kindOf returns the first recognised type of a possibly multi-typed node.
func kindOf(v any) (Kind, bool) {
	for _, t := range texts(v) {
		if k, ok := kindOfType(t); ok {
			return k, true
		}
	}
	return 0, false
}

func (d *decoder) product(m map[string]any, id string) *Product {
	p := &Product{
		ID:                 id,
		Name:               text(m["name"]),
		URL:                text(m["url"]),
		SKU:                text(m["sku"]),
		MPN:                text(m["mpn"]),
		GTINs:              gtins(m),
		Brand:              d.brand(m["brand"]),
		Offers:             d.refs(m["offers"]),
		AggregateRating:    d.ref(m["aggregateRating"]),
		AdditionalProperty: properties(m["additionalProperty"]),
		IsVariantOf:        d.ref(m["isVariantOf"]),
		Policies:           d.policies(m),
	}
	if p.Brand.Name == "" && p.Brand.Ref.IsZero() {
		p.Brand = d.brand(m["manufacturer"])
	}
	return p
}

func (d *decoder) productGroup(m map[string]any, id string) *ProductGroup {
	return &ProductGroup{
		ID:                 id,
		Name:               text(m["name"]),
		URL:                text(m["url"]),
		ProductGroupID:     text(m["productGroupID"]),
		VariesBy:           texts(m["variesBy"]),
		HasVariant:         d.refs(m["hasVariant"]),
		Brand:              d.brand(m["brand"]),
		Offers:             d.refs(m["offers"]),
		AggregateRating:    d.ref(m["aggregateRating"]),
		AdditionalProperty: properties(m["additionalProperty"]),
		Policies:           d.policies(m),
	}
}

func (d *decoder) offer(m map[string]any, id string) *Offer {
	o := &Offer{
		ID:            id,
		URL:           text(m["url"]),
		PriceCurrency: text(m["priceCurrency"]),
		Availability:  text(m["availability"]),
		Seller:        d.ref(m["seller"]),
		ItemOffered:   d.ref(m["itemOffered"]),
		Policies:      d.policies(m),
	}
	for _, key := range []string{"price", "lowPrice", "highPrice"} {
		if price, ok := number(m[key]); ok {
			o.Price, o.HasPrice = price, true
			break
		}
	}
	if spec, ok := firstObject(m["priceSpecification"]); ok {
		if !o.HasPrice {
			o.Price, o.HasPrice = number(spec["price"])
		}
		if o.PriceCurrency == "" {
			o.PriceCurrency = text(spec["priceCurrency"])
		}
	}
	return o
}

func (d *decoder) organization(m map[string]any, id string) *Organization {
	return &Organization{
		ID:       id,
		Name:     text(m["name"]),
		URL:      text(m["url"]),
		Policies: d.policies(m),
	}
}

func (d *decoder) breadcrumbs(m map[string]any, id string) *BreadcrumbList {
	b := &BreadcrumbList{ID: id}
	items, _ := m["itemListElement"].([]any)
	for i, raw := range items {
		li, ok := raw.(map[string]any)
		if !ok {
			continue
		}
		item := ListItem{Position: i + 1, Name: text(li["name"])}
		if pos, ok := count(li["position"]); ok {
			item.Position = pos
		}
		switch target := li["item"].(type) {
		case string:
			item.URL = strings.TrimSpace(target)
		case map[string]any:
			if item.Name == "" {
				item.Name = text(target["name"])
			}
			item.URL = text(target["@id"])
			if u := text(target["url"]); u != "" {
				item.URL = u
			}
		}
		b.Items = append(b.Items, item)
	}
	return b
}

func (d *decoder) aggregateRating(m map[string]any, id string) *AggregateRating {
	r := &AggregateRating{ID: id, ItemReviewed: d.ref(m["itemReviewed"])}
	if v, ok := number(m["ratingValue"]); ok && v > 0 {
		r.Value, r.HasValue = v, true
	}
	r.Best, _ = number(m["bestRating"])
	r.Worst, _ = number(m["worstRating"])
	if c, ok := count(m["ratingCount"]); ok {
		r.Count, r.HasCount = c, true
	} else if c, ok := count(m["reviewCount"]); ok {
		r.Count, r.HasCount = c, true
	}
	return r
}

// brand accepts "Acme", {"@type":"Brand","name":"Acme"}, an embedded
// Organization, or {"@id": "#org"}.
func (d *decoder) brand(v any) Brand {
	switch t := v.(type) {
	case string:
		return Brand{Name: strings.TrimSpace(t)}
	case []any:
		for _, e := range t {
			if b := d.brand(e); b.Name != "" || !b.Ref.IsZero() {
				return b
			}
		}
	case map[string]any:
		b := Brand{Name: text(t["name"])}
		if k, ok := kindOf(t["@type"]); ok && k == KindOrganization {
			b.Ref, _ = d.object(t)
		} else if id := text(t["@id"]); id != "" {
			b.Ref = Ref{Key: id}
		}
		return b
	}
	return Brand{}
}

// policies reads the return, warranty and shipping fields. A URL string that
// names no node on the page stays an unresolved reference for the policy
// resolver to follow.
func (d *decoder) policies(m map[string]any) Policies {
	return Policies{
		ReturnPolicies: d.refs(m["hasMerchantReturnPolicy"]),
		Warranties:     append(d.refs(m["warranty"]), d.refs(m["hasWarrantyPromise"])...),
		Shipping:       present(m["shippingDetails"]) || present(m["hasShippingService"]),
	}
}

var gtinFields = []string{"gtin", "gtin8", "gtin12", "gtin13", "gtin14"}

func gtins(m map[string]any) []Identifier {
	var out []Identifier
	for _, f := range gtinFields {
		for _, v := range texts(m[f]) {
			out = append(out, Identifier{Field: f, Value: v})
		}
	}
	return out
}

func properties(v any) []PropertyValue {
	var out []PropertyValue
	var walk func(any)
	walk = func(v any) {
		switch t := v.(type) {
		case []any:
			for _, e := range t {
				walk(e)
			}
		case map[string]any:
			pv := PropertyValue{
				Name:     text(t["name"]),
				Value:    text(t["value"]),
				UnitCode: text(t["unitCode"]),
				UnitText: text(t["unitText"]),
			}
			pv.Numeric, pv.HasNumeric = number(t["value"])
			pv.MinValue, pv.HasMin = number(t["minValue"])
			pv.MaxValue, pv.HasMax = number(t["maxValue"])
			if pv.Name == "" {
				pv.Name = text(t["propertyID"])
			}
			out = append(out, pv)
		}
	}
	walk(v)
	return out
}

// durationText renders durationOfWarranty, which is usually a
// QuantitativeValue ({"value": 2, "unitCode": "ANN"}).
func durationText(v any) string {
	if obj, ok := firstObject(v); ok {
		value := text(obj["value"])
		unit := text(obj["unitCode"])
		if unit == "" {
			unit = text(obj["unitText"])
		}
		return strings.TrimSpace(value + " " + unit)
	}
	return text(v)
}

func firstObject(v any) (map[string]any, bool) {
	switch t := v.(type) {
	case map[string]any:
		return t, true
	case []any:
		for _, e := range t {
			if obj, ok := e.(map[string]any); ok {
				return obj, true
			}
		}
	}
	return nil, false
}
