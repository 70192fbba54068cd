package usage

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/toolstack/toolstack/pkg/pg"
)

type pgStore struct {
	pool *pgxpool.Pool
}

// NewPgStore returns a Store backed by the tool_usage table.
func NewPgStore(pool *pgxpool.Pool) Store {
	return &pgStore{pool: pool}
}

const recordColumns = `id, user_id, tool_id, status, input_data, result_data, started_at, completed_at`

func scanRecord(row pgx.Row) (*Record, error) {
	var record Record
	err := row.Scan(
		&record.ID, &record.UserID, &record.ToolID, &record.Status,
		&record.InputData, &record.ResultData, &record.StartedAt, &record.CompletedAt,
	)
	if err != nil {
		if pg.IsNotFoundError(err) {
			return nil, ErrRecordNotFound
		}
		return nil, err
	}
	return &record, nil
}

func (s *pgStore) Append(ctx context.Context, userID, toolID uuid.UUID, input map[string]any) (*Record, error) {
	record := Record{
		ID:        uuid.New(),
		UserID:    userID,
		ToolID:    toolID,
		Status:    StatusStarted,
		InputData: input,
		StartedAt: time.Now().UTC(),
	}

	_, err := s.pool.Exec(ctx,
		`INSERT INTO tool_usage (id, user_id, tool_id, status, input_data, started_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		record.ID, record.UserID, record.ToolID, record.Status, record.InputData, record.StartedAt,
	)
	if err != nil {
		return nil, errors.Join(ErrFailedToAppendRecord, err)
	}
	return &record, nil
}

func (s *pgStore) Update(ctx context.Context, recordID, userID uuid.UUID, status Status, result map[string]any) (*Record, error) {
	if !status.Valid() {
		return nil, ErrInvalidStatus
	}

	record, err := s.Get(ctx, recordID)
	if err != nil {
		return nil, err
	}
	if record.UserID != userID {
		return nil, ErrNotRecordOwner
	}
	if record.Status.Terminal() {
		return nil, ErrRecordFinalized
	}

	record.Status = status
	if result != nil {
		record.ResultData = result
	}
	if status.Terminal() {
		now := time.Now().UTC()
		record.CompletedAt = &now
	}

	// The status guard is repeated in SQL so a concurrent finalize
	// cannot be overwritten between the read above and this write.
	tag, err := s.pool.Exec(ctx,
		`UPDATE tool_usage SET status = $3, result_data = $4, completed_at = $5
		 WHERE id = $1 AND user_id = $2 AND status IN ('started', 'in_progress')`,
		record.ID, userID, record.Status, record.ResultData, record.CompletedAt,
	)
	if err != nil {
		return nil, err
	}
	if tag.RowsAffected() == 0 {
		return nil, ErrRecordFinalized
	}
	return record, nil
}

func (s *pgStore) Get(ctx context.Context, recordID uuid.UUID) (*Record, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+recordColumns+` FROM tool_usage WHERE id = $1`, recordID)
	return scanRecord(row)
}

func (s *pgStore) CountSince(ctx context.Context, userID, toolID uuid.UUID, since time.Time) (int64, error) {
	var count int64
	err := s.pool.QueryRow(ctx,
		`SELECT count(*) FROM tool_usage WHERE user_id = $1 AND tool_id = $2 AND started_at >= $3`,
		userID, toolID, since,
	).Scan(&count)
	if err != nil {
		return 0, errors.Join(ErrFailedToCountUsage, err)
	}
	return count, nil
}

func (s *pgStore) StatsSince(ctx context.Context, userID uuid.UUID, since time.Time) ([]ToolStat, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT tool_id, count(*) FROM tool_usage
		 WHERE user_id = $1 AND started_at >= $2
		 GROUP BY tool_id ORDER BY count(*) DESC`,
		userID, since,
	)
	if err != nil {
		return nil, errors.Join(ErrFailedToCountUsage, err)
	}
	defer rows.Close()

	var stats []ToolStat
	for rows.Next() {
		var stat ToolStat
		if err := rows.Scan(&stat.ToolID, &stat.Count); err != nil {
			return nil, err
		}
		stats = append(stats, stat)
	}
	return stats, rows.Err()
}

func (s *pgStore) ListByUser(ctx context.Context, userID uuid.UUID, limit, offset int) ([]Record, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.pool.Query(ctx,
		`SELECT `+recordColumns+` FROM tool_usage
		 WHERE user_id = $1 ORDER BY started_at DESC LIMIT $2 OFFSET $3`,
		userID, limit, offset,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []Record
	for rows.Next() {
		record, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, *record)
	}
	return records, rows.Err()
}
