package policy

import (
	"net/url"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"
	"github.com/andybalholm/cascadia"
)

var anchorSel = cascadia.MustCompile("a[href]")

// Link is an anchor on a product page whose text or target looks like a
// returns, warranty, shipping or terms page.
type Link struct {
	Href string `json:"href"`
	Text string `json:"text,omitempty"`
}

// DiscoverLinks returns same-site anchors whose text or path has a word
// starting with one of keywords (case-insensitive), resolved against baseURL,
// deduplicated and in document order.
func DiscoverLinks(doc *goquery.Document, baseURL string, keywords []string) []Link {
	if doc == nil || len(keywords) == 0 {
		return nil
	}
	base, err := url.Parse(baseURL)
	if err != nil {
		return nil
	}
	site := BaseDomain(base.Host)

	lowered := make([]string, 0, len(keywords))
	for _, k := range keywords {
		if k = strings.ToLower(strings.TrimSpace(k)); k != "" {
			lowered = append(lowered, k)
		}
	}

	var links []Link
	seen := make(map[string]struct{})
	doc.FindMatcher(anchorSel).Each(func(_ int, s *goquery.Selection) {
		href, _ := s.Attr("href")
		if strings.TrimSpace(href) == "" {
			return
		}
		resolved, err := base.Parse(strings.TrimSpace(href))
		if err != nil {
			return
		}
		// Skip javascript:, mailto:, tel: etc.
		if resolved.Scheme != "http" && resolved.Scheme != "https" {
			return
		}
		if BaseDomain(resolved.Host) != site {
			return
		}
		resolved.Fragment = ""
		abs := resolved.String()
		if _, ok := seen[abs]; ok {
			return
		}

		text := strings.Join(strings.Fields(s.Text()), " ")
		if !matches(lowered, strings.ToLower(text), strings.ToLower(resolved.Path)) {
			return
		}
		seen[abs] = struct{}{}
		links = append(links, Link{Href: abs, Text: text})
	})
	return links
}

func matches(keywords []string, text, path string) bool {
	for _, k := range keywords {
		if containsWordStart(text, k) || containsWordStart(path, k) {
			return true
		}
	}
	return false
}

// containsWordStart reports whether k occurs in s at the start of a word, so
// "retur" matches "returer" and "/retur-policy" but "agb" does not match
// "bagby".
func containsWordStart(s, k string) bool {
	for i := 0; i < len(s); {
		j := strings.Index(s[i:], k)
		if j < 0 {
			return false
		}
		j += i
		if j == 0 {
			return true
		}
		if r, _ := utf8.DecodeLastRuneInString(s[:j]); !unicode.IsLetter(r) && !unicode.IsDigit(r) {
			return true
		}
		i = j + len(k)
	}
	return false
}

// BaseDomain reduces a host to its last two labels, so shop.example.com and
// www.example.com compare equal. Any port is stripped.
func BaseDomain(host string) string {
	if idx := strings.LastIndex(host, ":"); idx != -1 {
		host = host[:idx]
	}
	host = strings.ToLower(host)
	parts := strings.Split(host, ".")
	if len(parts) <= 2 {
		return host
	}
	return strings.Join(parts[len(parts)-2:], ".")
}
