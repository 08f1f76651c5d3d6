package structdata

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/andybalholm/cascadia"
	"golang.org/x/net/html"

	"github.com/use-agent/shelfscan/models"
)

var scriptSel = cascadia.MustCompile("script")

// Parse parses a page body once so that Extract and ScanEmbedded can share
// the document.
func Parse(body []byte) (*goquery.Document, error) {
	return goquery.NewDocumentFromReader(bytes.NewReader(body))
}

// Extract decodes every JSON-LD block of page into a Graph marked with the
// page's origin. Malformed blocks are counted in Graph.Skipped; they never
// stop the rest of the page from being extracted.
func Extract(page *models.RawPage) *Graph {
	doc, err := Parse(page.Body)
	if err != nil {
		slog.Debug("structdata: parse html", "url", page.URL, "error", err)
		return newGraph(page.Origin)
	}
	return ExtractDocument(doc, page.Origin)
}

// ExtractDocument is Extract over an already parsed document.
func ExtractDocument(doc *goquery.Document, origin models.Origin) *Graph {
	g := newGraph(origin)
	d := &decoder{g: g}
	doc.FindMatcher(scriptSel).Each(func(_ int, s *goquery.Selection) {
		if !isLDJSON(s.AttrOr("type", "")) {
			return
		}
		g.Blocks++
		v, err := decodeBlock(s.Text())
		if err != nil {
			g.Skipped++
			slog.Debug("structdata: skipping undecodable block", "error", err)
			return
		}
		d.block(v)
	})
	return g
}

func isLDJSON(typ string) bool {
	return strings.Contains(strings.ToLower(typ), "ld+json")
}

var errEmptyBlock = errors.New("structdata: empty block")

// decodeBlock parses a block as-is and, failing that, after repair.
func decodeBlock(raw string) (any, error) {
	v, err := parseJSON(raw)
	if err == nil {
		return v, nil
	}
	repaired := repair(raw)
	if repaired == "" {
		return nil, errEmptyBlock
	}
	if v, rerr := parseJSON(repaired); rerr == nil {
		return v, nil
	}
	return nil, err
}

// parseJSON decodes one JSON value, or several concatenated values which are
// then returned as an array.
func parseJSON(s string) (any, error) {
	dec := json.NewDecoder(strings.NewReader(s))
	dec.UseNumber()
	var vals []any
	for {
		var v any
		err := dec.Decode(&v)
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		vals = append(vals, v)
	}
	switch len(vals) {
	case 0:
		return nil, errEmptyBlock
	case 1:
		return vals[0], nil
	default:
		return vals, nil
	}
}

var (
	reTrailingComma = regexp.MustCompile(`,\s*([}\]])`)
	reControlChars  = regexp.MustCompile(`[\x00-\x1f]`)
)

// repair undoes the usual ways CMS templates break JSON-LD: comment and
// CDATA wrappers, HTML-escaped quotes, raw newlines inside strings and
// trailing commas.
func repair(s string) string {
	s = strings.TrimSpace(s)
	for _, w := range [][2]string{
		{"<!--", "-->"},
		{"//<![CDATA[", "//]]>"},
		{"<![CDATA[", "]]>"},
	} {
		s = strings.TrimSpace(strings.TrimPrefix(s, w[0]))
		s = strings.TrimSpace(strings.TrimSuffix(s, w[1]))
	}
	s = strings.TrimSuffix(s, ";")
	s = html.UnescapeString(s)
	s = reControlChars.ReplaceAllString(s, " ")
	s = reTrailingComma.ReplaceAllString(s, "$1")
	return strings.TrimSpace(s)
}
