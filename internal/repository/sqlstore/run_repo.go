package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"finextract/internal/domain"
	"finextract/internal/port"
)

const runColumns = `id, document_name, status, record_count, conflict_count, total_value,
	expected_total, accuracy, consensus_score, content_hash, archive_key, result, created_at`

type runRepo struct {
	db *sqlx.DB
}

// NewRunRepo creates a sqlx-backed RunRepository.
func NewRunRepo(db *sqlx.DB) port.RunRepository {
	return &runRepo{db: db}
}

func (r *runRepo) Create(ctx context.Context, run *domain.ExtractionRun) error {
	if run.ID == uuid.Nil {
		run.ID = uuid.New()
	}
	if run.CreatedAt.IsZero() {
		run.CreatedAt = time.Now().UTC()
	}

	query := r.db.Rebind(`INSERT INTO extraction_runs (` + runColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)

	_, err := r.db.ExecContext(ctx, query,
		run.ID, run.DocumentName, run.Status, run.RecordCount, run.ConflictCount, run.TotalValue,
		run.ExpectedTotal, run.Accuracy, run.ConsensusScore, run.ContentHash, run.ArchiveKey, run.Result, run.CreatedAt)
	if err != nil {
		return fmt.Errorf("runRepo.Create: %w", err)
	}
	return nil
}

func (r *runRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.ExtractionRun, error) {
	var run domain.ExtractionRun
	query := r.db.Rebind(`SELECT ` + runColumns + ` FROM extraction_runs WHERE id = ?`)
	err := r.db.GetContext(ctx, &run, query, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrRunNotFound
		}
		return nil, fmt.Errorf("runRepo.GetByID: %w", err)
	}
	return &run, nil
}

func (r *runRepo) List(ctx context.Context, offset, limit int) ([]domain.ExtractionRun, int, error) {
	var total int
	err := r.db.GetContext(ctx, &total, "SELECT COUNT(*) FROM extraction_runs")
	if err != nil {
		return nil, 0, fmt.Errorf("runRepo.List count: %w", err)
	}

	var runs []domain.ExtractionRun
	query := r.db.Rebind(`SELECT ` + runColumns + ` FROM extraction_runs
		ORDER BY created_at DESC, id LIMIT ? OFFSET ?`)
	err = r.db.SelectContext(ctx, &runs, query, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("runRepo.List: %w", err)
	}
	if runs == nil {
		runs = []domain.ExtractionRun{}
	}
	return runs, total, nil
}

func (r *runRepo) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}
