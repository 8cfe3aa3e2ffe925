package repositories

import (
	"context"

	"github.com/zatekoja/Readmissionriskdashboard/backend/internal/domain/entities"
)

// BatchRunRepository persists finished batch runs
type BatchRunRepository interface {
	// Save inserts or replaces a run
	Save(ctx context.Context, run *entities.BatchRun) error

	// GetByID retrieves a run with its results
	GetByID(ctx context.Context, id string) (*entities.BatchRun, error)

	// ListByUser returns a user's most recent runs without results
	ListByUser(ctx context.Context, userID string, limit int) ([]*entities.BatchRun, error)
}
