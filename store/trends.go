package store

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/use-agent/shelfscan/models"
)

// RatingHistory returns the rating observations for domain, or for every
// domain when it is empty, ordered by URL then observation time.
func (s *Store) RatingHistory(ctx context.Context, domain string) ([]models.RatingPoint, error) {
	query := `SELECT url, domain, observed_at, has_rating, rating_value, rating_count, source
		FROM rating_observations`
	var args []any
	if domain != "" {
		query += " WHERE domain = ?"
		args = append(args, domain)
	}
	rows, err := s.db.QueryContext(ctx, query+" ORDER BY url", args...)
	if err != nil {
		return nil, fmt.Errorf("store: rating history: %w", err)
	}
	defer rows.Close()

	var out []models.RatingPoint
	for rows.Next() {
		var (
			p         models.RatingPoint
			at        string
			hasRating int
		)
		if err := rows.Scan(&p.URL, &p.Domain, &at, &hasRating, &p.Value, &p.Count, &p.Source); err != nil {
			return nil, fmt.Errorf("store: scan: %w", err)
		}
		if p.ObservedAt, err = time.Parse(time.RFC3339Nano, at); err != nil {
			return nil, fmt.Errorf("store: parse observed_at %q: %w", at, err)
		}
		p.HasRating = hasRating == 1
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	// RFC 3339 text with trimmed fractions does not sort chronologically.
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].URL != out[j].URL {
			return out[i].URL < out[j].URL
		}
		return out[i].ObservedAt.Before(out[j].ObservedAt)
	})
	return out, nil
}

// RatingTrends summarises the rating history of domain (all domains when
// empty), listing at most top review gainers.
func (s *Store) RatingTrends(ctx context.Context, domain string, top int) (*models.RatingTrends, error) {
	points, err := s.RatingHistory(ctx, domain)
	if err != nil {
		return nil, err
	}
	return models.SummarizeTrends(domain, points, top), nil
}
