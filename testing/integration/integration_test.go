//go:build integration
// +build integration

package integration

import (
	"context"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/moodsense/moody/internal/pkg/persistence"
	"github.com/moodsense/moody/internal/pkg/postgres"
	"github.com/moodsense/moody/internal/pkg/status"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type config struct {
	dbURL string
	pool  *pgxpool.Pool
	db    *postgres.DB
}

var cfg config

func TestMain(m *testing.M) {
	cfg.dbURL = GetEnvOrFail("DB_URL")

	tCtx, cf := context.WithTimeout(context.Background(), time.Second*20)
	defer cf()
	waitForDB(tCtx, cfg.dbURL)

	var err error
	cfg.pool, err = pgxpool.New(context.Background(), cfg.dbURL)
	if err != nil {
		panic(err)
	}
	defer cfg.pool.Close()
	cfg.db, err = postgres.NewDB(cfg.pool)
	if err != nil {
		panic(err)
	}

	os.Exit(m.Run())
}

func TestLive(t *testing.T) {
	require.Nil(t, cfg.db.Live(testCtx(t)))
}

func TestClaimNextQueued(t *testing.T) {
	cleanTables(t)
	id := newJob(t, status.Queued, time.Time{})

	job, err := cfg.db.ClaimNextQueued(testCtx(t))
	require.Nil(t, err)
	require.NotNil(t, job)
	assert.Equal(t, id, job.ID)
	assert.Equal(t, status.Processing.String(), job.Status)
	assert.True(t, job.StartedAt.Valid)

	job, err = cfg.db.ClaimNextQueued(testCtx(t))
	require.Nil(t, err)
	assert.Nil(t, job)
}

func TestClaimNextQueued_oldestFirst(t *testing.T) {
	cleanTables(t)
	older := insertJob(t, status.Queued, time.Now().Add(-time.Hour), time.Time{})
	newJob(t, status.Queued, time.Time{})

	job, err := cfg.db.ClaimNextQueued(testCtx(t))
	require.Nil(t, err)
	require.NotNil(t, job)
	assert.Equal(t, older, job.ID)
}

func TestClaimNextQueued_concurrent(t *testing.T) {
	cleanTables(t)
	newJob(t, status.Queued, time.Time{})

	const workers = 5
	claimed := make([]*persistence.Job, workers)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			job, err := cfg.db.ClaimNextQueued(testCtx(t))
			assert.Nil(t, err)
			claimed[i] = job
		}(i)
	}
	wg.Wait()

	got := 0
	for _, job := range claimed {
		if job != nil {
			got++
		}
	}
	assert.Equal(t, 1, got)
}

func TestClaimJob(t *testing.T) {
	cleanTables(t)
	id := newJob(t, status.Queued, time.Time{})

	job, err := cfg.db.ClaimJob(testCtx(t), id)
	require.Nil(t, err)
	require.NotNil(t, job)
	assert.Equal(t, status.Processing.String(), job.Status)

	job, err = cfg.db.ClaimJob(testCtx(t), id)
	require.Nil(t, err)
	assert.Nil(t, job)
}

func TestUpdateStatus(t *testing.T) {
	cleanTables(t)
	id := newJob(t, status.Processing, time.Now())

	require.Nil(t, cfg.db.UpdateStatus(testCtx(t), id, status.Completed, ""))
	job, err := cfg.db.LoadJob(testCtx(t), id)
	require.Nil(t, err)
	require.NotNil(t, job)
	assert.Equal(t, status.Completed.String(), job.Status)
	assert.True(t, job.FinishedAt.Valid)
	assert.False(t, job.Error.Valid)
}

func TestUpdateStatus_failedKeepsError(t *testing.T) {
	cleanTables(t)
	id := newJob(t, status.Processing, time.Now())

	require.Nil(t, cfg.db.UpdateStatus(testCtx(t), id, status.Failed, "can't acquire audio"))
	job, err := cfg.db.LoadJob(testCtx(t), id)
	require.Nil(t, err)
	require.NotNil(t, job)
	assert.Equal(t, status.Failed.String(), job.Status)
	assert.Equal(t, "can't acquire audio", job.Error.String)
}

func TestUpdateStatus_terminalIsFinal(t *testing.T) {
	cleanTables(t)
	id := newJob(t, status.Processing, time.Now())

	require.Nil(t, cfg.db.UpdateStatus(testCtx(t), id, status.Completed, ""))
	err := cfg.db.UpdateStatus(testCtx(t), id, status.Failed, "olia")
	assert.NotNil(t, err)
	job, err := cfg.db.LoadJob(testCtx(t), id)
	require.Nil(t, err)
	assert.Equal(t, status.Completed.String(), job.Status)
}

func TestUpdateStatus_rejectsNonTerminal(t *testing.T) {
	cleanTables(t)
	id := newJob(t, status.Processing, time.Now())
	assert.NotNil(t, cfg.db.UpdateStatus(testCtx(t), id, status.Queued, ""))
}

func TestUpdateStatus_noJob(t *testing.T) {
	cleanTables(t)
	assert.NotNil(t, cfg.db.UpdateStatus(testCtx(t), uuid.NewString(), status.Completed, ""))
}

func TestRequeueStale(t *testing.T) {
	cleanTables(t)
	stale := newJob(t, status.Processing, time.Now().Add(-time.Hour*2))
	fresh := newJob(t, status.Processing, time.Now())

	n, err := cfg.db.RequeueStale(testCtx(t), time.Hour)
	require.Nil(t, err)
	assert.Equal(t, int64(1), n)

	job, err := cfg.db.LoadJob(testCtx(t), stale)
	require.Nil(t, err)
	assert.Equal(t, status.Queued.String(), job.Status)
	assert.False(t, job.StartedAt.Valid)
	job, err = cfg.db.LoadJob(testCtx(t), fresh)
	require.Nil(t, err)
	assert.Equal(t, status.Processing.String(), job.Status)
}

func TestRequeue(t *testing.T) {
	cleanTables(t)
	id := newJob(t, status.Processing, time.Now())
	require.Nil(t, cfg.db.UpdateStatus(testCtx(t), id, status.Failed, "olia"))

	require.Nil(t, cfg.db.Requeue(testCtx(t), id))
	job, err := cfg.db.LoadJob(testCtx(t), id)
	require.Nil(t, err)
	assert.Equal(t, status.Queued.String(), job.Status)
	assert.False(t, job.Error.Valid)

	assert.NotNil(t, cfg.db.Requeue(testCtx(t), id))
}

func TestInsertPrediction(t *testing.T) {
	cleanTables(t)
	uploadID := newUpload(t)
	pred := testPrediction(uploadID)

	require.Nil(t, cfg.db.InsertPrediction(testCtx(t), pred))
	got, err := cfg.db.LoadPrediction(testCtx(t), uploadID)
	require.Nil(t, err)
	require.NotNil(t, got)
	assert.Equal(t, pred.ID, got.ID)
	assert.Equal(t, pred.Scores, got.Scores)
	assert.Equal(t, pred.ModelName, got.ModelName)
}

func TestInsertPrediction_failureSurfaces(t *testing.T) {
	cleanTables(t)
	uploadID := newUpload(t)
	pred := testPrediction(uploadID)

	require.Nil(t, cfg.db.InsertPrediction(testCtx(t), pred))
	// same primary key again, the error must reach the caller
	assert.NotNil(t, cfg.db.InsertPrediction(testCtx(t), pred))
}

func TestLoad_notFound(t *testing.T) {
	cleanTables(t)
	job, err := cfg.db.LoadJob(testCtx(t), uuid.NewString())
	require.Nil(t, err)
	assert.Nil(t, job)
	upload, err := cfg.db.LoadUpload(testCtx(t), uuid.NewString())
	require.Nil(t, err)
	assert.Nil(t, upload)
	pred, err := cfg.db.LoadPrediction(testCtx(t), uuid.NewString())
	require.Nil(t, err)
	assert.Nil(t, pred)
}

func testCtx(t *testing.T) context.Context {
	t.Helper()
	ctx, cf := context.WithTimeout(context.Background(), time.Second*20)
	t.Cleanup(func() { cf() })
	return ctx
}

func cleanTables(t *testing.T) {
	t.Helper()
	_, err := cfg.pool.Exec(testCtx(t), `TRUNCATE predictions, jobs, uploads`)
	require.Nil(t, err)
}

func newUpload(t *testing.T) string {
	t.Helper()
	id := uuid.NewString()
	_, err := cfg.pool.Exec(testCtx(t), `INSERT INTO uploads(id, user_id_sha256, audio_file_path, created)
		VALUES($1, $2, $3, $4)`, id, "u1", "u1/audio.wav", time.Now())
	require.Nil(t, err)
	return id
}

func newJob(t *testing.T, st status.Status, startedAt time.Time) string {
	t.Helper()
	return insertJob(t, st, time.Now(), startedAt)
}

func insertJob(t *testing.T, st status.Status, created, startedAt time.Time) string {
	t.Helper()
	id := uuid.NewString()
	var started *time.Time
	if !startedAt.IsZero() {
		started = &startedAt
	}
	_, err := cfg.pool.Exec(testCtx(t), `INSERT INTO jobs(id, user_id_sha256, upload_id, status, created, started_at)
		VALUES($1, $2, $3, $4, $5, $6)`, id, "u1", newUpload(t), st.String(), created, started)
	require.Nil(t, err)
	return id
}

func testPrediction(uploadID string) *persistence.Prediction {
	return &persistence.Prediction{
		ID:        uuid.NewString(),
		UserIDSHA: "u1",
		UploadID:  uploadID,
		Scores: persistence.Scores{SoundClassification: "Speech",
			YamnetTopClasses: []persistence.TopClass{{Class: "Speech", Score: 0.9}},
			YamnetConfidence: 0.9, Emotion: "happy", EmotionScore: 0.8},
		ModelVersion:  "1.0.0",
		ModelName:     "yamnet-wav2vec2-emotion",
		InferenceTime: 1.5,
		Created:       time.Now(),
	}
}
