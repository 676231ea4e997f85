package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/moodsense/moody/internal/pkg/persistence"
	"github.com/moodsense/moody/internal/pkg/status"
	"github.com/moodsense/moody/internal/pkg/utils"
)

// DB provides job, upload and prediction operations with postgresql
type DB struct {
	pool *pgxpool.Pool
}

//NewDB creates DB instance
func NewDB(pool *pgxpool.Pool) (*DB, error) {
	res := &DB{pool: pool}
	return res, nil
}

const jobFields = `id, user_id_sha256, upload_id, status, created, started_at, finished_at, error`

// ClaimNextQueued atomically selects the oldest queued job and moves it to processing.
// SKIP LOCKED guarantees two pollers never take the same row.
// Returns nil if there is no eligible job.
func (db *DB) ClaimNextQueued(ctx context.Context) (*persistence.Job, error) {
	var res persistence.Job
	err := db.pool.QueryRow(ctx, `UPDATE jobs SET status = $2, started_at = $3
		WHERE id = (SELECT id FROM jobs WHERE status = $1 ORDER BY created FOR UPDATE SKIP LOCKED LIMIT 1)
		RETURNING `+jobFields,
		status.Queued.String(), status.Processing.String(), time.Now()).
		Scan(&res.ID, &res.UserIDSHA, &res.UploadID, &res.Status, &res.Created,
			&res.StartedAt, &res.FinishedAt, &res.Error)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("can't claim job: %w", err)
	}
	return &res, nil
}

// ClaimJob moves one queued job to processing by ID.
// Returns nil if the job is missing or no longer queued.
func (db *DB) ClaimJob(ctx context.Context, id string) (*persistence.Job, error) {
	var res persistence.Job
	err := db.pool.QueryRow(ctx, `UPDATE jobs SET status = $2, started_at = $3
		WHERE id = $1 and status = $4
		RETURNING `+jobFields, id, status.Processing.String(), time.Now(), status.Queued.String()).
		Scan(&res.ID, &res.UserIDSHA, &res.UploadID, &res.Status, &res.Created,
			&res.StartedAt, &res.FinishedAt, &res.Error)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("can't claim job: %w", err)
	}
	return &res, nil
}

// LoadJob loads job from DB, nil if not found
func (db *DB) LoadJob(ctx context.Context, id string) (*persistence.Job, error) {
	var res persistence.Job
	err := db.pool.QueryRow(ctx, `SELECT `+jobFields+` FROM jobs WHERE id = $1`, id).
		Scan(&res.ID, &res.UserIDSHA, &res.UploadID, &res.Status, &res.Created,
			&res.StartedAt, &res.FinishedAt, &res.Error)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("can't load job: %w", err)
	}
	return &res, nil
}

// LoadUpload loads upload from DB, nil if not found
func (db *DB) LoadUpload(ctx context.Context, id string) (*persistence.Upload, error) {
	var res persistence.Upload
	err := db.pool.QueryRow(ctx, `SELECT id, user_id_sha256, audio_file_path, created FROM uploads
		WHERE id = $1`, id).Scan(&res.ID, &res.UserIDSHA, &res.AudioFilePath, &res.Created)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("can't load upload: %w", err)
	}
	return &res, nil
}

// UpdateStatus finalizes a claimed job. The update is guarded by the current
// processing state, so a terminal job can never move again.
func (db *DB) UpdateStatus(ctx context.Context, id string, to status.Status, errMsg string) error {
	if !to.Terminal() {
		return fmt.Errorf("not a terminal status: %s", to.String())
	}
	rows, err := db.pool.Exec(ctx, `UPDATE jobs SET
	status = $2,
	finished_at = $3,
	error = $4
	WHERE id = $1 and status = $5`, id, to.String(), time.Now(), utils.ToSQLStr(errMsg),
		status.Processing.String())
	if err != nil {
		return fmt.Errorf("can't update status: %w", err)
	}
	if rows.RowsAffected() != 1 {
		return fmt.Errorf("can't update status, no processing job %s", id)
	}
	return nil
}

// InsertPrediction inserts prediction into DB.
// Exec surfaces execution errors directly, a job may complete only
// after this returns nil.
func (db *DB) InsertPrediction(ctx context.Context, item *persistence.Prediction) error {
	scores, err := json.Marshal(item.Scores)
	if err != nil {
		return fmt.Errorf("can't marshal scores: %w", err)
	}
	_, err = db.pool.Exec(ctx, `INSERT INTO predictions(id, user_id_sha256, upload_id, scores,
	model_version, model_name, inference_time, created)
	VALUES($1, $2, $3, $4, $5, $6, $7, $8)`, item.ID, item.UserIDSHA, item.UploadID, scores,
		item.ModelVersion, item.ModelName, item.InferenceTime, item.Created)
	if err != nil {
		return fmt.Errorf("can't insert prediction: %w", err)
	}
	return nil
}

// LoadPrediction loads the prediction for an upload, nil if not found
func (db *DB) LoadPrediction(ctx context.Context, uploadID string) (*persistence.Prediction, error) {
	var res persistence.Prediction
	var scores []byte
	err := db.pool.QueryRow(ctx, `SELECT id, user_id_sha256, upload_id, scores, model_version,
	model_name, inference_time, created FROM predictions
		WHERE upload_id = $1 ORDER BY created DESC LIMIT 1`, uploadID).
		Scan(&res.ID, &res.UserIDSHA, &res.UploadID, &scores, &res.ModelVersion,
			&res.ModelName, &res.InferenceTime, &res.Created)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("can't load prediction: %w", err)
	}
	if err := json.Unmarshal(scores, &res.Scores); err != nil {
		return nil, fmt.Errorf("can't unmarshal scores: %w", err)
	}
	return &res, nil
}

// RequeueStale returns over-age processing jobs back to the queue.
// Covers workers that died after claim without finalizing.
func (db *DB) RequeueStale(ctx context.Context, maxAge time.Duration) (int64, error) {
	rows, err := db.pool.Exec(ctx, `UPDATE jobs SET
	status = $1,
	started_at = NULL,
	error = NULL
	WHERE status = $2 and started_at < $3`, status.Queued.String(), status.Processing.String(),
		time.Now().Add(-maxAge))
	if err != nil {
		return 0, fmt.Errorf("can't requeue stale jobs: %w", err)
	}
	return rows.RowsAffected(), nil
}

// Requeue returns one failed job back to the queue
func (db *DB) Requeue(ctx context.Context, id string) error {
	rows, err := db.pool.Exec(ctx, `UPDATE jobs SET
	status = $2,
	started_at = NULL,
	finished_at = NULL,
	error = NULL
	WHERE id = $1 and status = $3`, id, status.Queued.String(), status.Failed.String())
	if err != nil {
		return fmt.Errorf("can't requeue: %w", err)
	}
	if rows.RowsAffected() != 1 {
		return fmt.Errorf("can't requeue, no failed job %s", id)
	}
	return nil
}

// Live returns no error if db is reachable and initialized
func (db *DB) Live(ctx context.Context) error {
	var exists bool
	if err := db.pool.QueryRow(ctx, `SELECT EXISTS (SELECT FROM pg_tables WHERE tablename = 'jobs')`).Scan(&exists); err != nil {
		return fmt.Errorf("can't check table: %w", err)
	}
	if !exists {
		return fmt.Errorf("no migration done")
	}
	return nil
}
