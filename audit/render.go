package audit

import (
	"context"

	"github.com/use-agent/shelfscan/models"
	"github.com/use-agent/shelfscan/structdata"
)

// Renderer loads a URL in a JavaScript-capable browser and returns the
// rendered DOM. scraper.Scraper is the production implementation.
type Renderer interface {
	Render(ctx context.Context, url string) (*models.RawPage, error)
}

// NeedsRender reports whether the static evidence is too thin to score: the
// graph has no Product, or neither the graph nor the embedded scan holds a
// rating.
func NeedsRender(g *structdata.Graph, embedded *structdata.EmbeddedRating) bool {
	if g == nil || !g.HasProduct() {
		return true
	}
	return !g.HasRating() && embedded == nil
}
