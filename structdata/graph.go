package structdata

import "github.com/use-agent/shelfscan/models"

// Graph is the ordered arena of entities extracted from one page. Nodes refer
// to each other through Ref values, so resolving a reference is a lookup and
// reference cycles are harmless.
type Graph struct {
	// Source marks whether the graph came from static HTML or a rendered DOM.
	Source models.Origin

	// Blocks counts the structured-data blocks seen on the page.
	Blocks int

	// Skipped counts blocks that could not be decoded even after repair.
	Skipped int

	nodes  []Node
	ids    map[string]int // @id -> arena position of its canonical node
	weight []int          // attribute count per node, picks canonical @id holder
}

func newGraph(source models.Origin) *Graph {
	return &Graph{Source: source, ids: make(map[string]int)}
}

// Len returns the number of decoded entities.
func (g *Graph) Len() int { return len(g.nodes) }

// Empty reports whether no entity was decoded.
func (g *Graph) Empty() bool { return len(g.nodes) == 0 }

// Nodes returns the entities in decode order.
func (g *Graph) Nodes() []Node { return g.nodes }

// Resolve returns the node r points at. A keyed reference resolves to the
// most complete entity declared with that @id anywhere on the page.
func (g *Graph) Resolve(r Ref) (Node, bool) {
	if r.Key != "" {
		if i, ok := g.ids[r.Key]; ok {
			return g.nodes[i], true
		}
	}
	if r.Index > 0 && r.Index <= len(g.nodes) {
		return g.nodes[r.Index-1], true
	}
	return nil, false
}

// ResolveAs resolves r and type-asserts the result. A reference to an entity
// of another kind counts as unresolved.
func ResolveAs[T Node](g *Graph, r Ref) (T, bool) {
	var zero T
	n, ok := g.Resolve(r)
	if !ok {
		return zero, false
	}
	t, ok := n.(T)
	return t, ok
}

// ResolveAll resolves every reference in refs, dropping the unresolved ones.
func ResolveAll[T Node](g *Graph, refs []Ref) []T {
	out := make([]T, 0, len(refs))
	for _, r := range refs {
		if t, ok := ResolveAs[T](g, r); ok {
			out = append(out, t)
		}
	}
	return out
}

// All returns every entity of type T in decode order.
func All[T Node](g *Graph) []T {
	var out []T
	for _, n := range g.nodes {
		if t, ok := n.(T); ok {
			out = append(out, t)
		}
	}
	return out
}

// Products returns every Product entity.
func (g *Graph) Products() []*Product { return All[*Product](g) }

// ProductGroups returns every ProductGroup entity.
func (g *Graph) ProductGroups() []*ProductGroup { return All[*ProductGroup](g) }

// HasProduct reports whether the graph holds at least one Product.
func (g *Graph) HasProduct() bool {
	for _, n := range g.nodes {
		if n.Kind() == KindProduct {
			return true
		}
	}
	return false
}

// HasRating reports whether any AggregateRating carries a usable value.
func (g *Graph) HasRating() bool {
	for _, r := range All[*AggregateRating](g) {
		if r.HasValue {
			return true
		}
	}
	return false
}

// ProductOffers returns the offers of p: those listed under p.Offers plus
// stand-alone offers whose itemOffered points back at p.
func (g *Graph) ProductOffers(p *Product) []*Offer {
	offers := ResolveAll[*Offer](g, p.Offers)
	seen := make(map[*Offer]bool, len(offers))
	for _, o := range offers {
		seen[o] = true
	}
	for _, o := range All[*Offer](g) {
		if seen[o] {
			continue
		}
		if item, ok := ResolveAs[*Product](g, o.ItemOffered); ok && item == p {
			offers = append(offers, o)
			seen[o] = true
		}
	}
	return offers
}

// BrandName returns the brand's text, following a reference to an
// Organization when the brand was given by @id.
func (g *Graph) BrandName(b Brand) string {
	if b.Name != "" {
		return b.Name
	}
	if org, ok := ResolveAs[*Organization](g, b.Ref); ok {
		return org.Name
	}
	return ""
}

// HasStructuredPolicy reports whether p carries a resolved return policy, a
// resolved warranty promise, or shipping details.
func (g *Graph) HasStructuredPolicy(p Policies) bool {
	if p.Shipping {
		return true
	}
	if len(ResolveAll[*MerchantReturnPolicy](g, p.ReturnPolicies)) > 0 {
		return true
	}
	return len(ResolveAll[*WarrantyPromise](g, p.Warranties)) > 0
}

func (g *Graph) add(n Node, attrs int) Ref {
	g.nodes = append(g.nodes, n)
	g.weight = append(g.weight, attrs)
	idx := len(g.nodes) - 1
	if id := n.NodeID(); id != "" {
		if prev, ok := g.ids[id]; !ok || g.weight[prev] < attrs {
			g.ids[id] = idx
		}
	}
	return Ref{Index: idx + 1, Key: n.NodeID()}
}
