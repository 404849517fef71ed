package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/linkpeek/linkpeek/internal/model"
)

// Common errors for link repository operations.
var (
	ErrLinkNotFound = errors.New("link not found")
	ErrLinkExists   = errors.New("link already exists")
)

const linkColumns = `
	id, owner_id, dest_url, sanitized_dest_url, is_active, health_status,
	health_checked_at, avg_redirect_time_ms, redirect_chain_length,
	integrity_score::float8, created_at, updated_at`

// CreateLink inserts a new link. Links are created by the profile editor;
// this exists for seeding and tests.
func (r *Repository) CreateLink(ctx context.Context, link *model.Link) error {
	query := `
		INSERT INTO links (id, owner_id, dest_url, sanitized_dest_url, is_active, health_status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`

	status := link.HealthStatus
	if status == "" {
		status = model.HealthUnknown
	}

	_, err := r.pool.Exec(ctx, query,
		link.ID,
		link.OwnerID,
		link.DestURL,
		link.SanitizedDestURL,
		link.IsActive,
		status,
		link.CreatedAt,
		link.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrLinkExists
		}
		return fmt.Errorf("failed to create link: %w", err)
	}
	return nil
}

// GetLinkByID retrieves a link by its ID. Inactive links are returned;
// callers decide how to treat them.
func (r *Repository) GetLinkByID(ctx context.Context, id string) (*model.Link, error) {
	query := `SELECT ` + linkColumns + ` FROM links WHERE id = $1`

	link, err := scanLink(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrLinkNotFound
		}
		return nil, fmt.Errorf("failed to get link by ID: %w", err)
	}
	return link, nil
}

// ListActiveLinks returns up to limit active links with IDs greater than
// afterID, ordered by ID. Pass an empty afterID for the first page.
func (r *Repository) ListActiveLinks(ctx context.Context, afterID string, limit int) ([]*model.Link, error) {
	query := `
		SELECT ` + linkColumns + `
		FROM links
		WHERE is_active AND id > $1
		ORDER BY id
		LIMIT $2
	`

	rows, err := r.pool.Query(ctx, query, afterID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list active links: %w", err)
	}
	defer rows.Close()

	var links []*model.Link
	for rows.Next() {
		link, err := scanLink(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan link: %w", err)
		}
		links = append(links, link)
	}
	return links, rows.Err()
}

// UpdateLinkHealth writes the health fields of a link. No other column is
// touched.
func (r *Repository) UpdateLinkHealth(ctx context.Context, id string, health model.LinkHealth) error {
	query := `
		UPDATE links
		SET health_status = $2,
		    health_checked_at = $3,
		    redirect_chain_length = $4,
		    avg_redirect_time_ms = $5,
		    integrity_score = $6,
		    updated_at = NOW()
		WHERE id = $1
	`

	tag, err := r.pool.Exec(ctx, query,
		id,
		health.Status,
		health.CheckedAt,
		health.ChainLength,
		health.AvgRedirectMs,
		health.IntegrityScore,
	)
	if err != nil {
		return fmt.Errorf("failed to update link health: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrLinkNotFound
	}
	return nil
}

// UpdateSanitizedURL caches the normalized destination of a link. An empty
// sanitized value clears the cached form.
func (r *Repository) UpdateSanitizedURL(ctx context.Context, id, sanitized string) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE links SET sanitized_dest_url = NULLIF($2, ''), updated_at = NOW() WHERE id = $1`,
		id, sanitized,
	)
	if err != nil {
		return fmt.Errorf("failed to update sanitized URL: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrLinkNotFound
	}
	return nil
}

func scanLink(row pgx.Row) (*model.Link, error) {
	var link model.Link
	err := row.Scan(
		&link.ID,
		&link.OwnerID,
		&link.DestURL,
		&link.SanitizedDestURL,
		&link.IsActive,
		&link.HealthStatus,
		&link.HealthCheckedAt,
		&link.AvgRedirectMs,
		&link.ChainLength,
		&link.IntegrityScore,
		&link.CreatedAt,
		&link.UpdatedAt,
	)
	return &link, err
}
