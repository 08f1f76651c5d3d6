package audit

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/use-agent/shelfscan/models"
)

// ReadInputs parses discovery rows from a CSV with a header. A url column
// is required; domain, intent, brand and category are optional. Rows with
// an empty url are skipped.
func ReadInputs(r io.Reader) ([]models.AuditInput, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("audit: read input header: %w", err)
	}
	col := make(map[string]int, len(header))
	for i, h := range header {
		col[strings.ToLower(strings.TrimSpace(strings.TrimPrefix(h, "\ufeff")))] = i
	}
	if _, ok := col["url"]; !ok {
		return nil, errors.New("audit: input CSV needs a url column")
	}
	get := func(rec []string, name string) string {
		i, ok := col[name]
		if !ok || i >= len(rec) {
			return ""
		}
		return strings.TrimSpace(rec[i])
	}

	var inputs []models.AuditInput
	for line := 2; ; line++ {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("audit: input line %d: %w", line, err)
		}
		in := models.AuditInput{
			URL:      get(rec, "url"),
			Domain:   get(rec, "domain"),
			Intent:   get(rec, "intent"),
			Brand:    get(rec, "brand"),
			Category: get(rec, "category"),
		}
		if in.URL == "" {
			continue
		}
		inputs = append(inputs, in)
	}
	return inputs, nil
}

// WriteRecords writes the header row followed by one row per record.
func WriteRecords(w io.Writer, records []*models.AuditRecord) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(models.RowHeader); err != nil {
		return err
	}
	for _, rec := range records {
		if rec == nil {
			continue
		}
		if err := cw.Write(rec.Row()); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}
