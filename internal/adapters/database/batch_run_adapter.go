package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/doug-martin/goqu/v9"
	_ "github.com/doug-martin/goqu/v9/dialect/postgres"
	"github.com/jmoiron/sqlx"

	"github.com/zatekoja/Readmissionriskdashboard/backend/internal/domain/entities"
	"github.com/zatekoja/Readmissionriskdashboard/backend/internal/domain/repositories"
	"github.com/zatekoja/Readmissionriskdashboard/backend/internal/infrastructure/clients/postgres"
	apperrors "github.com/zatekoja/Readmissionriskdashboard/backend/pkg/errors"
)

const batchRunsTable = "batch_runs"

// BatchRunsSchema creates the batch history table.
const BatchRunsSchema = `
CREATE TABLE IF NOT EXISTS batch_runs (
	id          UUID PRIMARY KEY,
	user_id     TEXT NOT NULL,
	source      TEXT NOT NULL DEFAULT '',
	state       TEXT NOT NULL,
	done        INTEGER NOT NULL DEFAULT 0,
	total       INTEGER NOT NULL DEFAULT 0,
	succeeded   INTEGER NOT NULL DEFAULT 0,
	failed      INTEGER NOT NULL DEFAULT 0,
	high_risk   INTEGER NOT NULL DEFAULT 0,
	error       TEXT,
	results     JSONB NOT NULL DEFAULT '[]'::jsonb,
	started_at  TIMESTAMPTZ NOT NULL,
	finished_at TIMESTAMPTZ
);
CREATE INDEX IF NOT EXISTS idx_batch_runs_user_started ON batch_runs (user_id, started_at DESC);
`

var batchRunSummaryColumns = []interface{}{
	"id", "user_id", "source", "state", "done", "total", "error", "started_at", "finished_at",
}

// batchRunRow is the scan target for batch_runs.
type batchRunRow struct {
	ID         string         `db:"id"`
	UserID     string         `db:"user_id"`
	Source     string         `db:"source"`
	State      string         `db:"state"`
	Done       int            `db:"done"`
	Total      int            `db:"total"`
	Error      sql.NullString `db:"error"`
	Results    []byte         `db:"results"`
	StartedAt  time.Time      `db:"started_at"`
	FinishedAt sql.NullTime   `db:"finished_at"`
}

func (r *batchRunRow) toEntity() (*entities.BatchRun, error) {
	run := &entities.BatchRun{
		ID:        r.ID,
		UserID:    r.UserID,
		Source:    r.Source,
		State:     entities.BatchState(r.State),
		Progress:  entities.Progress{Done: r.Done, Total: r.Total},
		Error:     r.Error.String,
		StartedAt: r.StartedAt,
	}
	if r.FinishedAt.Valid {
		t := r.FinishedAt.Time
		run.FinishedAt = &t
	}
	if len(r.Results) > 0 {
		if err := json.Unmarshal(r.Results, &run.Results); err != nil {
			return nil, fmt.Errorf("failed to decode results of batch %s: %w", r.ID, err)
		}
	}
	return run, nil
}

// BatchRunAdapter implements BatchRunRepository on PostgreSQL
type BatchRunAdapter struct {
	client *postgres.Client
	db     *goqu.Database
	sqlx   *sqlx.DB
}

// NewBatchRunAdapter creates a new batch run adapter
func NewBatchRunAdapter(client *postgres.Client) *BatchRunAdapter {
	return &BatchRunAdapter{
		client: client,
		db:     goqu.New("postgres", client.DB()),
		sqlx:   sqlx.NewDb(client.DB(), "postgres"),
	}
}

var _ repositories.BatchRunRepository = (*BatchRunAdapter)(nil)

// EnsureSchema creates the table if it does not exist
func (a *BatchRunAdapter) EnsureSchema(ctx context.Context) error {
	if _, err := a.client.DB().ExecContext(ctx, BatchRunsSchema); err != nil {
		return apperrors.NewInternalError("failed to create batch_runs table", err)
	}
	return nil
}

// Save inserts a run or replaces the stored copy
func (a *BatchRunAdapter) Save(ctx context.Context, run *entities.BatchRun) error {
	results := run.Results
	if results == nil {
		results = []entities.ExplanationResult{}
	}
	data, err := json.Marshal(results)
	if err != nil {
		return apperrors.NewInternalError("failed to encode batch results", err)
	}

	summary := run.Summary()
	record := goqu.Record{
		"id":          run.ID,
		"user_id":     run.UserID,
		"source":      run.Source,
		"state":       string(run.State),
		"done":        run.Progress.Done,
		"total":       run.Progress.Total,
		"succeeded":   summary.Succeeded,
		"failed":      summary.Failed,
		"high_risk":   summary.HighRisk,
		"error":       sql.NullString{String: run.Error, Valid: run.Error != ""},
		"results":     string(data),
		"started_at":  run.StartedAt,
		"finished_at": run.FinishedAt,
	}

	update := goqu.Record{}
	for k, v := range record {
		if k != "id" {
			update[k] = v
		}
	}

	query, args, err := a.db.Insert(batchRunsTable).
		Rows(record).
		OnConflict(goqu.DoUpdate("id", update)).
		ToSQL()
	if err != nil {
		return apperrors.NewInternalError("failed to build insert query", err)
	}

	if _, err := a.client.DB().ExecContext(ctx, query, args...); err != nil {
		return apperrors.NewInternalError("failed to save batch run", err)
	}
	return nil
}

// GetByID retrieves a run with its results
func (a *BatchRunAdapter) GetByID(ctx context.Context, id string) (*entities.BatchRun, error) {
	cols := append(append([]interface{}{}, batchRunSummaryColumns...), "results")
	query, args, err := a.db.From(batchRunsTable).
		Select(cols...).
		Where(goqu.Ex{"id": id}).
		ToSQL()
	if err != nil {
		return nil, apperrors.NewInternalError("failed to build query", err)
	}

	var row batchRunRow
	if err := a.sqlx.GetContext(ctx, &row, query, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperrors.NewNotFoundError(fmt.Sprintf("batch run with id %s not found", id))
		}
		return nil, apperrors.NewInternalError("failed to get batch run", err)
	}
	return row.toEntity()
}

// ListByUser returns the user's newest runs first, without results
func (a *BatchRunAdapter) ListByUser(ctx context.Context, userID string, limit int) ([]*entities.BatchRun, error) {
	if limit <= 0 {
		limit = 20
	}

	query, args, err := a.db.From(batchRunsTable).
		Select(batchRunSummaryColumns...).
		Where(goqu.Ex{"user_id": userID}).
		Order(goqu.I("started_at").Desc()).
		Limit(uint(limit)).
		ToSQL()
	if err != nil {
		return nil, apperrors.NewInternalError("failed to build query", err)
	}

	var rows []batchRunRow
	if err := a.sqlx.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, apperrors.NewInternalError("failed to list batch runs", err)
	}

	runs := make([]*entities.BatchRun, 0, len(rows))
	for i := range rows {
		run, err := rows[i].toEntity()
		if err != nil {
			return nil, apperrors.NewInternalError("failed to decode batch run", err)
		}
		runs = append(runs, run)
	}
	return runs, nil
}
