package job

import (
	"context"
	"database/sql"
	"encoding/json"
)

type Repository interface {
	Save(ctx context.Context, job *Job) error
	Get(ctx context.Context, id int64) (*Job, error)
	GetByDocument(ctx context.Context, documentID int64) (*Job, error)
	ListFailed(ctx context.Context) ([]Job, error)
	ListByOwner(ctx context.Context, ownerID int64) ([]Job, error)
	MarkQueued(ctx context.Context, id int64, payload []byte) error
	DeleteByDocument(ctx context.Context, documentID int64) error
}

type PostgresRepo struct {
	db *sql.DB
}

func NewPostgresRepo(db *sql.DB) *PostgresRepo {
	return &PostgresRepo{db: db}
}

const jobColumns = `id, document_id, owner_id, status, chunks_total, chunks_indexed, chunks_skipped, error, payload, retries, created_at, updated_at`

// Save upserts the row for job.DocumentID; a document has one current job.
func (r *PostgresRepo) Save(ctx context.Context, job *Job) error {
	query := `INSERT INTO index_jobs (document_id, owner_id, status, chunks_total, chunks_indexed, chunks_skipped, error, payload)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
ON CONFLICT (document_id) DO UPDATE SET owner_id = EXCLUDED.owner_id, status = EXCLUDED.status, chunks_total = EXCLUDED.chunks_total, chunks_indexed = EXCLUDED.chunks_indexed, chunks_skipped = EXCLUDED.chunks_skipped, error = EXCLUDED.error, payload = EXCLUDED.payload, updated_at = NOW()
RETURNING id, retries, created_at, updated_at`
	return r.db.QueryRowContext(ctx, query,
		job.DocumentID, job.OwnerID, job.Status, job.ChunksTotal, job.ChunksIndexed, job.ChunksSkipped, job.Error, []byte(job.Payload),
	).Scan(&job.ID, &job.Retries, &job.CreatedAt, &job.UpdatedAt)
}

func (r *PostgresRepo) Get(ctx context.Context, id int64) (*Job, error) {
	query := `SELECT ` + jobColumns + ` FROM index_jobs WHERE id = $1`
	j, err := scanJob(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		return nil, err
	}
	return j, nil
}

func (r *PostgresRepo) GetByDocument(ctx context.Context, documentID int64) (*Job, error) {
	query := `SELECT ` + jobColumns + ` FROM index_jobs WHERE document_id = $1`
	j, err := scanJob(r.db.QueryRowContext(ctx, query, documentID))
	if err != nil {
		return nil, err
	}
	return j, nil
}

func (r *PostgresRepo) ListFailed(ctx context.Context) ([]Job, error) {
	query := `SELECT ` + jobColumns + ` FROM index_jobs WHERE status IN ('failed', 'partial') ORDER BY updated_at DESC`
	return r.list(ctx, query)
}

func (r *PostgresRepo) ListByOwner(ctx context.Context, ownerID int64) ([]Job, error) {
	query := `SELECT ` + jobColumns + ` FROM index_jobs WHERE owner_id = $1 ORDER BY updated_at DESC`
	return r.list(ctx, query, ownerID)
}

func (r *PostgresRepo) MarkQueued(ctx context.Context, id int64, payload []byte) error {
	query := `UPDATE index_jobs SET status = 'queued', error = '', payload = $2, retries = retries + 1, updated_at = NOW() WHERE id = $1`
	res, err := r.db.ExecContext(ctx, query, id, payload)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return sql.ErrNoRows
	}
	return nil
}

func (r *PostgresRepo) DeleteByDocument(ctx context.Context, documentID int64) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM index_jobs WHERE document_id = $1`, documentID)
	return err
}

func (r *PostgresRepo) list(ctx context.Context, query string, args ...any) ([]Job, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var jobs []Job
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, *j)
	}
	return jobs, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanJob(s scanner) (*Job, error) {
	var j Job
	var payload []byte
	if err := s.Scan(&j.ID, &j.DocumentID, &j.OwnerID, &j.Status, &j.ChunksTotal, &j.ChunksIndexed, &j.ChunksSkipped,
		&j.Error, &payload, &j.Retries, &j.CreatedAt, &j.UpdatedAt); err != nil {
		return nil, err
	}
	j.Payload = json.RawMessage(payload)
	return &j, nil
}
