package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"

	"github.com/linkpeek/linkpeek/internal/model"
)

// Incident repository errors.
var (
	ErrIncidentNotFound = errors.New("incident not found")
	ErrIncidentOpen     = errors.New("an open incident already exists for this tuple")
)

const incidentColumns = `
	id, platform, country, device, error_rate::float8, severity, sample_size,
	affected_users, detected_at, resolved_at, metadata, superseded_by`

// IncidentFilter narrows ListIncidents.
type IncidentFilter struct {
	OpenOnly   bool
	Severities []model.Severity
	Limit      int
}

// GetOpenIncident returns the unresolved incident for key, if any.
func (r *Repository) GetOpenIncident(ctx context.Context, key model.GroupKey) (*model.Incident, error) {
	query := `SELECT ` + incidentColumns + `
		FROM incidents
		WHERE platform = $1 AND country = $2 AND device = $3 AND resolved_at IS NULL AND superseded_by IS NULL`

	inc, err := scanIncident(r.pool.QueryRow(ctx, query, key.Platform, key.Country, key.Device))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrIncidentNotFound
		}
		return nil, fmt.Errorf("failed to get open incident: %w", err)
	}
	return inc, nil
}

// CreateIncident inserts an open incident. The partial unique index turns a
// second open incident for the same tuple into ErrIncidentOpen.
func (r *Repository) CreateIncident(ctx context.Context, inc *model.Incident) error {
	return insertIncident(ctx, r.pool, inc)
}

// SupersedeIncident links a stale open incident to its replacement and opens
// the replacement in one transaction, keeping at most one open incident per
// tuple. The stale incident is not resolved.
func (r *Repository) SupersedeIncident(ctx context.Context, staleID string, inc *model.Incident) error {
	return pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx,
			`UPDATE incidents SET superseded_by = $2 WHERE id = $1 AND resolved_at IS NULL AND superseded_by IS NULL`,
			staleID, inc.ID,
		)
		if err != nil {
			return fmt.Errorf("failed to close stale incident: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return ErrIncidentNotFound
		}
		return insertIncident(ctx, tx, inc)
	})
}

// execer is satisfied by both *pgxpool.Pool and pgx.Tx.
type execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

func insertIncident(ctx context.Context, db execer, inc *model.Incident) error {
	metadata, err := json.Marshal(inc.Metadata)
	if err != nil {
		return fmt.Errorf("marshal incident metadata: %w", err)
	}

	query := `
		INSERT INTO incidents (
			id, platform, country, device, error_rate, severity, sample_size,
			affected_users, detected_at, metadata
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`

	_, err = db.Exec(ctx, query,
		inc.ID,
		inc.Platform,
		inc.Country,
		inc.Device,
		inc.ErrorRate,
		inc.Severity,
		inc.SampleSize,
		inc.AffectedUsers,
		inc.DetectedAt,
		metadata,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrIncidentOpen
		}
		return fmt.Errorf("failed to create incident: %w", err)
	}
	return nil
}

// ListOpenIncidents returns unresolved incidents detected before cutoff,
// oldest first.
func (r *Repository) ListOpenIncidents(ctx context.Context, detectedBefore time.Time) ([]*model.Incident, error) {
	query := `SELECT ` + incidentColumns + `
		FROM incidents
		WHERE resolved_at IS NULL AND superseded_by IS NULL AND detected_at < $1
		ORDER BY detected_at`

	return r.queryIncidents(ctx, query, detectedBefore)
}

// ResolveIncidents sets resolved_at on every listed incident that is still
// open and returns the number resolved.
func (r *Repository) ResolveIncidents(ctx context.Context, ids []string, at time.Time) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}

	tag, err := r.pool.Exec(ctx,
		`UPDATE incidents SET resolved_at = $2 WHERE id = ANY($1) AND resolved_at IS NULL AND superseded_by IS NULL`,
		pq.Array(ids), at,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to resolve incidents: %w", err)
	}
	return tag.RowsAffected(), nil
}

// ListIncidents returns incidents newest first.
func (r *Repository) ListIncidents(ctx context.Context, filter IncidentFilter) ([]*model.Incident, error) {
	limit := filter.Limit
	if limit <= 0 || limit > 200 {
		limit = 50
	}

	severities := make([]string, 0, len(filter.Severities))
	for _, s := range filter.Severities {
		severities = append(severities, string(s))
	}

	query := `SELECT ` + incidentColumns + `
		FROM incidents
		WHERE ($1::boolean IS FALSE OR (resolved_at IS NULL AND superseded_by IS NULL))
		  AND (cardinality($2::text[]) = 0 OR severity = ANY($2))
		ORDER BY detected_at DESC
		LIMIT $3`

	return r.queryIncidents(ctx, query, filter.OpenOnly, pq.Array(severities), limit)
}

func (r *Repository) queryIncidents(ctx context.Context, query string, args ...any) ([]*model.Incident, error) {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list incidents: %w", err)
	}
	defer rows.Close()

	var incidents []*model.Incident
	for rows.Next() {
		inc, err := scanIncident(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan incident: %w", err)
		}
		incidents = append(incidents, inc)
	}
	return incidents, rows.Err()
}

func scanIncident(row pgx.Row) (*model.Incident, error) {
	var inc model.Incident
	var metadata []byte
	err := row.Scan(
		&inc.ID,
		&inc.Platform,
		&inc.Country,
		&inc.Device,
		&inc.ErrorRate,
		&inc.Severity,
		&inc.SampleSize,
		&inc.AffectedUsers,
		&inc.DetectedAt,
		&inc.ResolvedAt,
		&metadata,
		&inc.SupersededBy,
	)
	if err != nil {
		return nil, err
	}
	if len(metadata) > 0 {
		_ = json.Unmarshal(metadata, &inc.Metadata)
	}
	return &inc, nil
}
