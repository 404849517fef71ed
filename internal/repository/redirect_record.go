package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/linkpeek/linkpeek/internal/model"
)

// RedirectRecordRepository provides database access for redirect records.
type RedirectRecordRepository struct {
	repo *Repository
}

// NewRedirectRecordRepository creates a new RedirectRecordRepository.
func NewRedirectRecordRepository(repo *Repository) *RedirectRecordRepository {
	return &RedirectRecordRepository{repo: repo}
}

// insertRedirectRecord inserts a record when its link exists and reports
// whether the link was found. Duplicate event ids are ignored.
const insertRedirectRecord = `
	WITH inserted AS (
		INSERT INTO redirect_records (
			id, event_id, link_id, ts, success, in_app_browser_detected,
			load_time_ms, platform, browser, device, country, user_agent,
			referrer, visitor_hash, recovery_strategy_used
		)
		SELECT $1::text, $2::text, $3::text, $4::timestamptz, $5::boolean, $6::boolean,
			$7::integer, $8::text, $9::text, $10::text, $11::varchar, $12::varchar,
			$13::varchar, $14::varchar, $15::text
		WHERE EXISTS (SELECT 1 FROM links WHERE id = $3::text)
		ON CONFLICT (event_id) DO NOTHING
		RETURNING 1
	)
	SELECT EXISTS (SELECT 1 FROM links WHERE id = $3::text)
`

// BulkInsert appends records and returns those refused because their link
// does not exist. Redelivered stream messages are ignored via ON CONFLICT on
// event_id. A batch runs as one implicit transaction, so refused records are
// filtered in SQL rather than left to fail the foreign key.
func (r *RedirectRecordRepository) BulkInsert(ctx context.Context, records []*model.RedirectRecord) ([]*model.RedirectRecord, error) {
	if len(records) == 0 {
		return nil, nil
	}

	batch := &pgx.Batch{}
	for _, rec := range records {
		batch.Queue(insertRedirectRecord,
			rec.ID,
			rec.EventID,
			rec.LinkID,
			rec.TS,
			rec.Success,
			rec.InAppBrowserDetected,
			rec.LoadTimeMs,
			rec.Platform,
			rec.Browser,
			nullableString(rec.Device),
			nullableString(rec.Country),
			nullableString(rec.UserAgent),
			nullableString(rec.Referrer),
			nullableString(rec.VisitorHash),
			rec.RecoveryStrategyUsed,
		)
	}

	results := r.repo.pool.SendBatch(ctx, batch)
	defer results.Close()

	var rejected []*model.RedirectRecord
	for i, rec := range records {
		var linkExists bool
		if err := results.QueryRow().Scan(&linkExists); err != nil {
			return nil, fmt.Errorf("batch insert record %d: %w", i, err)
		}
		if !linkExists {
			rejected = append(rejected, rec)
		}
	}
	return rejected, nil
}

// WindowStats aggregates records with from <= ts < to by
// (platform, country, device). Missing country and device group as "unknown".
// AffectedUsers counts distinct visitors among failed records.
func (r *RedirectRecordRepository) WindowStats(ctx context.Context, from, to time.Time) ([]model.GroupStats, error) {
	query := `
		SELECT
			platform,
			COALESCE(NULLIF(country, ''), 'unknown') AS country,
			COALESCE(NULLIF(device, ''), 'unknown') AS device,
			COUNT(*) AS total,
			COUNT(*) FILTER (WHERE NOT success) AS failures,
			COUNT(DISTINCT visitor_hash) FILTER (WHERE NOT success) AS affected
		FROM redirect_records
		WHERE ts >= $1 AND ts < $2
		GROUP BY 1, 2, 3
	`

	rows, err := r.repo.pool.Query(ctx, query, from, to)
	if err != nil {
		return nil, fmt.Errorf("query window stats: %w", err)
	}
	defer rows.Close()

	var stats []model.GroupStats
	for rows.Next() {
		var s model.GroupStats
		if err := rows.Scan(&s.Key.Platform, &s.Key.Country, &s.Key.Device, &s.Total, &s.Failures, &s.AffectedUsers); err != nil {
			return nil, fmt.Errorf("scan window stats: %w", err)
		}
		stats = append(stats, s)
	}
	return stats, rows.Err()
}

// LinkOutcomes summarises a link's records since the given time.
type LinkOutcomes struct {
	Total         int
	Successes     int
	AvgLoadTimeMs int
}

// SuccessRate returns successes as a percentage, or nil with no records.
func (o LinkOutcomes) SuccessRate() *float64 {
	if o.Total == 0 {
		return nil
	}
	rate := float64(o.Successes) / float64(o.Total) * 100
	return &rate
}

// LinkOutcomesSince aggregates one link's records with ts >= since.
func (r *RedirectRecordRepository) LinkOutcomesSince(ctx context.Context, linkID string, since time.Time) (LinkOutcomes, error) {
	query := `
		SELECT
			COUNT(*),
			COUNT(*) FILTER (WHERE success),
			COALESCE(AVG(load_time_ms), 0)::int
		FROM redirect_records
		WHERE link_id = $1 AND ts >= $2
	`

	var out LinkOutcomes
	if err := r.repo.pool.QueryRow(ctx, query, linkID, since).Scan(&out.Total, &out.Successes, &out.AvgLoadTimeMs); err != nil {
		return LinkOutcomes{}, fmt.Errorf("query link outcomes: %w", err)
	}
	return out, nil
}
