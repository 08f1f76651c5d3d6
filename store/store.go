package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/use-agent/shelfscan/models"
)

// ErrNotFound is returned when no record exists for a URL.
var ErrNotFound = errors.New("store: record not found")

const schema = `
CREATE TABLE IF NOT EXISTS audit_records (
	url             TEXT PRIMARY KEY,
	domain          TEXT NOT NULL,
	category        TEXT NOT NULL DEFAULT '',
	product_score   REAL NOT NULL,
	family_score    REAL NOT NULL,
	policy_tier     TEXT NOT NULL,
	identifier_tier TEXT NOT NULL,
	failed          INTEGER NOT NULL DEFAULT 0,
	audited_at      TEXT NOT NULL,
	record          TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_audit_records_domain ON audit_records(domain, category);

CREATE TABLE IF NOT EXISTS rating_observations (
	id           INTEGER PRIMARY KEY AUTOINCREMENT,
	url          TEXT NOT NULL,
	domain       TEXT NOT NULL,
	observed_at  TEXT NOT NULL,
	has_rating   INTEGER NOT NULL DEFAULT 0,
	rating_value REAL NOT NULL DEFAULT 0,
	rating_count INTEGER NOT NULL DEFAULT 0,
	source       TEXT NOT NULL DEFAULT '',
	UNIQUE (url, observed_at)
);
CREATE INDEX IF NOT EXISTS idx_rating_observations_domain ON rating_observations(domain, url);
`

// Store persists audit records in SQLite. Records are write-once per audit:
// re-auditing a URL replaces its row wholesale. Rating observations are
// append-only and keep the history the records drop.
type Store struct {
	db   *sql.DB
	path string
}

// Open opens or creates the database at path and ensures the schema exists.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("store: open database: %w", err)
	}
	// SQLite allows one writer; a single connection also keeps ":memory:"
	// databases from splitting across the pool.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("store: set busy timeout: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("store: initialize schema: %w", err)
	}
	return &Store{db: db, path: path}, nil
}

// Path returns the database file path.
func (s *Store) Path() string { return s.path }

// Close closes the database.
func (s *Store) Close() error { return s.db.Close() }

const upsert = `
INSERT INTO audit_records
	(url, domain, category, product_score, family_score, policy_tier, identifier_tier, failed, audited_at, record)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(url) DO UPDATE SET
	domain = excluded.domain,
	category = excluded.category,
	product_score = excluded.product_score,
	family_score = excluded.family_score,
	policy_tier = excluded.policy_tier,
	identifier_tier = excluded.identifier_tier,
	failed = excluded.failed,
	audited_at = excluded.audited_at,
	record = excluded.record
`

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// Save inserts rec or replaces the stored record for the same URL.
func (s *Store) Save(ctx context.Context, rec *models.AuditRecord) error {
	return s.SaveAll(ctx, []*models.AuditRecord{rec})
}

// SaveAll saves every record and its rating observation in one transaction.
func (s *Store) SaveAll(ctx context.Context, recs []*models.AuditRecord) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("store: begin: %w", err)
	}
	for _, rec := range recs {
		if rec == nil {
			continue
		}
		if err := save(ctx, tx, rec); err != nil {
			_ = tx.Rollback()
			return err
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("store: commit: %w", err)
	}
	return nil
}

func save(ctx context.Context, db execer, rec *models.AuditRecord) error {
	blob, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("store: encode record: %w", err)
	}
	failed := 0
	if rec.Failed() {
		failed = 1
	}
	_, err = db.ExecContext(ctx, upsert,
		rec.URL,
		rec.Domain,
		rec.Category,
		rec.ProductScore,
		rec.FamilyScore,
		rec.PolicyTier.String(),
		rec.IdentifierTier.String(),
		failed,
		rec.AuditedAt.UTC().Format(time.RFC3339Nano),
		string(blob),
	)
	if err != nil {
		return fmt.Errorf("store: save %s: %w", rec.URL, err)
	}
	return observe(ctx, db, rec)
}

const insertObservation = `
INSERT OR IGNORE INTO rating_observations
	(url, domain, observed_at, has_rating, rating_value, rating_count, source)
VALUES (?, ?, ?, ?, ?, ?, ?)
`

// observe appends the rating seen by a successful audit. A failed fetch says
// nothing about the rating and is not recorded; saving the same audit twice
// adds one observation.
func observe(ctx context.Context, db execer, rec *models.AuditRecord) error {
	if rec.Failed() {
		return nil
	}
	var (
		hasRating int
		value     float64
		count     int
		source    string
	)
	if r := rec.Rating; r != nil {
		hasRating, value, count = 1, r.Value, r.Count
		source = r.Origin
		if source == "" {
			source = string(r.Source)
		}
	}
	_, err := db.ExecContext(ctx, insertObservation,
		rec.URL,
		rec.Domain,
		rec.AuditedAt.UTC().Format(time.RFC3339Nano),
		hasRating,
		value,
		count,
		source,
	)
	if err != nil {
		return fmt.Errorf("store: observe rating %s: %w", rec.URL, err)
	}
	return nil
}

// Get returns the stored record for url, or ErrNotFound.
func (s *Store) Get(ctx context.Context, url string) (*models.AuditRecord, error) {
	var blob string
	err := s.db.QueryRowContext(ctx, "SELECT record FROM audit_records WHERE url = ?", url).Scan(&blob)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("store: get %s: %w", url, err)
	}
	return decode(blob)
}

// List returns the stored records for domain, or every record when domain
// is empty, ordered by domain then URL.
func (s *Store) List(ctx context.Context, domain string) ([]*models.AuditRecord, error) {
	query := "SELECT record FROM audit_records ORDER BY domain, url"
	var args []any
	if domain != "" {
		query = "SELECT record FROM audit_records WHERE domain = ? ORDER BY url"
		args = append(args, domain)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("store: list: %w", err)
	}
	defer rows.Close()

	var out []*models.AuditRecord
	for rows.Next() {
		var blob string
		if err := rows.Scan(&blob); err != nil {
			return nil, fmt.Errorf("store: scan: %w", err)
		}
		rec, err := decode(blob)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// DomainSummary is the per-domain row count.
type DomainSummary struct {
	Domain  string `json:"domain"`
	Records int    `json:"records"`
	Failed  int    `json:"failed"`
}

// Domains lists every audited domain with its record counts.
func (s *Store) Domains(ctx context.Context) ([]DomainSummary, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT domain, COUNT(*), SUM(failed) FROM audit_records GROUP BY domain ORDER BY domain")
	if err != nil {
		return nil, fmt.Errorf("store: domains: %w", err)
	}
	defer rows.Close()

	var out []DomainSummary
	for rows.Next() {
		var d DomainSummary
		if err := rows.Scan(&d.Domain, &d.Records, &d.Failed); err != nil {
			return nil, fmt.Errorf("store: scan: %w", err)
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

func decode(blob string) (*models.AuditRecord, error) {
	var rec models.AuditRecord
	if err := json.Unmarshal([]byte(blob), &rec); err != nil {
		return nil, fmt.Errorf("store: decode record: %w", err)
	}
	return &rec, nil
}
