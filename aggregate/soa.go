package aggregate

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/use-agent/shelfscan/fetcher"
)

// ShareOfAnswer is the externally measured share-of-answer dimension: how
// often assistants already recommend a retailer. Values are 0..100 and keyed
// by domain, optionally narrowed to a category.
type ShareOfAnswer struct {
	values map[string]float64
}

// NewShareOfAnswer builds a lookup from domain -> value entries. A key of the
// form "domain|category" scopes the value to one category.
func NewShareOfAnswer(values map[string]float64) *ShareOfAnswer {
	s := &ShareOfAnswer{values: make(map[string]float64, len(values))}
	for k, v := range values {
		domain, category, _ := strings.Cut(k, "|")
		s.Set(domain, category, v)
	}
	return s
}

// Set stores the value for domain, or for domain within category when
// category is non-empty.
func (s *ShareOfAnswer) Set(domain, category string, v float64) {
	s.values[key(domain, category)] = v
}

// Lookup returns the value for (domain, category), falling back to the
// domain-wide value, then 0.
func (s *ShareOfAnswer) Lookup(domain, category string) float64 {
	if s == nil {
		return 0
	}
	if category != "" {
		if v, ok := s.values[key(domain, category)]; ok {
			return v
		}
	}
	return s.values[key(domain, "")]
}

// Len returns the number of entries.
func (s *ShareOfAnswer) Len() int {
	if s == nil {
		return 0
	}
	return len(s.values)
}

func key(domain, category string) string {
	domain = fetcher.NormalizeDomain(domain)
	if category == "" {
		return domain
	}
	return domain + "|" + strings.ToLower(strings.TrimSpace(category))
}

// LoadShareOfAnswerFile reads a share-of-answer CSV from path.
func LoadShareOfAnswerFile(path string) (*ShareOfAnswer, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("aggregate: open share-of-answer file: %w", err)
	}
	defer f.Close()
	return LoadShareOfAnswer(f)
}

// LoadShareOfAnswer reads a CSV with a header row. The key column is the
// first of key, domain or brand present; the value column the first of
// value, score or soa; an optional category column scopes the row. Domains
// may be given as URLs.
func LoadShareOfAnswer(r io.Reader) (*ShareOfAnswer, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("aggregate: read share-of-answer header: %w", err)
	}
	col := make(map[string]int, len(header))
	for i, h := range header {
		col[strings.ToLower(strings.TrimSpace(strings.TrimPrefix(h, "\ufeff")))] = i
	}
	keyCol := firstColumn(col, "key", "domain", "brand")
	valCol := firstColumn(col, "value", "score", "soa")
	catCol := firstColumn(col, "category")
	if keyCol < 0 || valCol < 0 {
		return nil, errors.New("aggregate: share-of-answer CSV needs a key and a value column")
	}

	s := &ShareOfAnswer{values: make(map[string]float64)}
	for line := 2; ; line++ {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("aggregate: share-of-answer line %d: %w", line, err)
		}
		domain := field(rec, keyCol)
		if domain == "" {
			continue
		}
		if strings.Contains(domain, "://") {
			domain = fetcher.Domain(domain)
		}
		var v float64
		if raw := field(rec, valCol); raw != "" {
			if v, err = strconv.ParseFloat(raw, 64); err != nil {
				return nil, fmt.Errorf("aggregate: share-of-answer line %d: bad value %q", line, raw)
			}
		}
		s.Set(domain, field(rec, catCol), v)
	}
	return s, nil
}

func firstColumn(col map[string]int, names ...string) int {
	for _, n := range names {
		if i, ok := col[n]; ok {
			return i
		}
	}
	return -1
}

func field(rec []string, i int) string {
	if i < 0 || i >= len(rec) {
		return ""
	}
	return strings.TrimSpace(rec[i])
}
