package playback

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"pipewatch/pkg/db"
)

// readingsTables maps a field identifier to its pressure readings table.
// Table names are never taken from request input; anything outside this map
// is rejected.
var readingsTables = map[string]string{
	"jbi": "pressure_jbi",
	"rtu": "pressure_rtu",
}

// TableForField resolves the readings table for a field through the closed
// lookup above.
func TableForField(field string) (string, error) {
	table, ok := readingsTables[field]
	if !ok {
		return "", fmt.Errorf("%w: unknown field %q", ErrInvalidArgument, field)
	}
	return table, nil
}

// BucketAverage is one grouped row of the bucketing query: the average
// pressure for a (bucket, spot) pair within a single day.
type BucketAverage struct {
	SpotID string  `db:"spot_id"`
	Bucket int     `db:"bucket"`
	AvgPSI float64 `db:"avg_psi"`
}

// Reading is a single raw sensor sample.
type Reading struct {
	SpotID    string  `db:"spot_id"`
	Timestamp string  `db:"ts"`
	PSI       float64 `db:"psi"`
}

// Store reads pressure samples from the field-scoped readings tables.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore creates a Store backed by the provided pool.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// ForField binds the store to the readings table of one field.
func (s *Store) ForField(field string) (*TableReadings, error) {
	table, err := TableForField(field)
	if err != nil {
		return nil, err
	}
	return &TableReadings{pool: s.pool, table: table}, nil
}

// TableReadings executes queries against a single readings table.
type TableReadings struct {
	pool  *pgxpool.Pool
	table string
}

// BucketAverages groups one calendar day of readings for the given spots into
// fixed-width buckets and averages the pressure per (bucket, spot). Rows come
// back ordered by bucket then spot.
func (t *TableReadings) BucketAverages(ctx context.Context, date string, spotIDs []string, widthMinutes int) ([]BucketAverage, error) {
	query := fmt.Sprintf(`
        SELECT
            spot_id,
            floor((extract(hour FROM "timestamp") * 60 + extract(minute FROM "timestamp")) / $1)::int AS bucket,
            avg(psi) AS avg_psi
        FROM %s
        WHERE "timestamp" >= $2::date
          AND "timestamp" < $2::date + interval '1 day'
          AND spot_id = ANY($3)
        GROUP BY spot_id, bucket
        ORDER BY bucket, spot_id
    `, t.table)

	var rows []BucketAverage
	if err := db.Select(ctx, t.pool, &rows, query, widthMinutes, date, spotIDs); err != nil {
		return nil, fmt.Errorf("bucket averages: %w", err)
	}
	return rows, nil
}

// SpotDay returns the raw readings of one spot for one calendar day ordered
// by timestamp.
func (t *TableReadings) SpotDay(ctx context.Context, spotID, date string) ([]Reading, error) {
	query := fmt.Sprintf(`
        SELECT
            spot_id,
            to_char("timestamp", 'YYYY-MM-DD HH24:MI:SS') AS ts,
            psi
        FROM %s
        WHERE spot_id = $1
          AND "timestamp" >= $2::date
          AND "timestamp" < $2::date + interval '1 day'
        ORDER BY "timestamp" ASC
    `, t.table)

	var rows []Reading
	if err := db.Select(ctx, t.pool, &rows, query, spotID, date); err != nil {
		return nil, fmt.Errorf("spot day readings: %w", err)
	}
	return rows, nil
}
