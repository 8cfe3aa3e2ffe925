package database_test

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zatekoja/Readmissionriskdashboard/backend/internal/adapters/database"
	"github.com/zatekoja/Readmissionriskdashboard/backend/internal/domain/entities"
	"github.com/zatekoja/Readmissionriskdashboard/backend/internal/infrastructure/clients/postgres"
	apperrors "github.com/zatekoja/Readmissionriskdashboard/backend/pkg/errors"
)

func setupAdapter(t *testing.T) (*database.BatchRunAdapter, sqlmock.Sqlmock) {
	t.Helper()

	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	return database.NewBatchRunAdapter(postgres.NewClientFromDB(db)), mock
}

func TestBatchRunAdapter_Save(t *testing.T) {
	adapter, mock := setupAdapter(t)

	id := "P1"
	finished := time.Date(2026, 10, 18, 9, 30, 0, 0, time.UTC)
	run := &entities.BatchRun{
		ID:         "7d1f4c0e-4f0e-4b8e-9c55-3f1d2f7f3b10",
		UserID:     "demo-user",
		Source:     "ward-a.xlsx",
		State:      entities.BatchStateDone,
		Progress:   entities.Progress{Done: 2, Total: 2},
		StartedAt:  finished.Add(-time.Minute),
		FinishedAt: &finished,
		Results: []entities.ExplanationResult{
			entities.NewSuccessResult(1, entities.PatientRecord{PatientID: &id, TimeInHospital: 1}, &entities.Explanation{RiskLabel: entities.RiskLabelHigh}),
			entities.NewFailedResult(2, entities.PatientRecord{TimeInHospital: 1}, "HTTP 503"),
		},
	}

	mock.ExpectExec(`INSERT INTO "batch_runs" .* ON CONFLICT \(id\) DO UPDATE SET`).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, adapter.Save(context.Background(), run))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestBatchRunAdapter_SaveFailure(t *testing.T) {
	adapter, mock := setupAdapter(t)

	mock.ExpectExec(`INSERT INTO "batch_runs"`).WillReturnError(assert.AnError)

	err := adapter.Save(context.Background(), &entities.BatchRun{ID: "x", UserID: "u", State: entities.BatchStateFailed})
	require.Error(t, err)
	assert.True(t, apperrors.IsType(err, apperrors.ErrorTypeInternal))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestBatchRunAdapter_ListByUser(t *testing.T) {
	adapter, mock := setupAdapter(t)

	started := time.Date(2026, 10, 18, 9, 0, 0, 0, time.UTC)
	rows := sqlmock.NewRows([]string{"id", "user_id", "source", "state", "done", "total", "error", "started_at", "finished_at"}).
		AddRow("b2", "demo-user", "b.xlsx", "cancelled", 1, 3, nil, started.Add(time.Hour), nil).
		AddRow("b1", "demo-user", "a.xls", "failed", 0, 0, "the spreadsheet has no rows", started, started)

	mock.ExpectQuery(`SELECT .* FROM "batch_runs" WHERE \("user_id" = 'demo-user'\) ORDER BY "started_at" DESC LIMIT 5`).
		WillReturnRows(rows)

	runs, err := adapter.ListByUser(context.Background(), "demo-user", 5)
	require.NoError(t, err)
	require.Len(t, runs, 2)

	assert.Equal(t, "b2", runs[0].ID)
	assert.Equal(t, entities.BatchStateCancelled, runs[0].State)
	assert.Equal(t, entities.Progress{Done: 1, Total: 3}, runs[0].Progress)
	assert.Nil(t, runs[0].FinishedAt)

	assert.Equal(t, "the spreadsheet has no rows", runs[1].Error)
	require.NotNil(t, runs[1].FinishedAt)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestBatchRunAdapter_GetByID(t *testing.T) {
	adapter, mock := setupAdapter(t)

	started := time.Date(2026, 10, 18, 9, 0, 0, 0, time.UTC)
	results := `[{"index":1,"patient_id":"P9","input":{"patient_id":"P9","time_in_hospital":2},"risk_label":"Low risk","readmission_probability":0.12,"top_contributions":[],"reasons":[]}]`
	rows := sqlmock.NewRows([]string{"id", "user_id", "source", "state", "done", "total", "error", "started_at", "finished_at", "results"}).
		AddRow("b1", "demo-user", "a.xlsx", "done", 1, 1, nil, started, started, []byte(results))

	mock.ExpectQuery(`SELECT .* FROM "batch_runs" WHERE \("id" = 'b1'\)`).WillReturnRows(rows)

	run, err := adapter.GetByID(context.Background(), "b1")
	require.NoError(t, err)
	require.Len(t, run.Results, 1)
	assert.Equal(t, "P9", run.Results[0].Input.ID())
	assert.Equal(t, entities.RiskLabelLow, run.Results[0].RiskLabel)
	assert.Equal(t, 2, run.Results[0].Input.TimeInHospital)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestBatchRunAdapter_GetByIDNotFound(t *testing.T) {
	adapter, mock := setupAdapter(t)

	mock.ExpectQuery(`SELECT .* FROM "batch_runs"`).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	_, err := adapter.GetByID(context.Background(), "missing")
	require.Error(t, err)
	assert.True(t, apperrors.IsType(err, apperrors.ErrorTypeNotFound))
}

func TestBatchRunAdapter_EnsureSchema(t *testing.T) {
	adapter, mock := setupAdapter(t)

	mock.ExpectExec(`CREATE TABLE IF NOT EXISTS batch_runs`).WillReturnResult(sqlmock.NewResult(0, 0))

	require.NoError(t, adapter.EnsureSchema(context.Background()))
	assert.NoError(t, mock.ExpectationsWereMet())
}
