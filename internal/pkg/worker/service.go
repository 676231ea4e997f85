package worker

import (
	"context"
	"fmt"
	"time"

	"github.com/airenas/go-app/pkg/goapp"
	"github.com/google/uuid"
	"github.com/moodsense/moody/internal/pkg/audio"
	capi "github.com/moodsense/moody/internal/pkg/classifier/api"
	"github.com/moodsense/moody/internal/pkg/emotion"
	"github.com/moodsense/moody/internal/pkg/fusion"
	"github.com/moodsense/moody/internal/pkg/persistence"
	"github.com/moodsense/moody/internal/pkg/status"
)

// DB provides job persistence
type DB interface {
	ClaimNextQueued(ctx context.Context) (*persistence.Job, error)
	ClaimJob(ctx context.Context, id string) (*persistence.Job, error)
	LoadJob(ctx context.Context, id string) (*persistence.Job, error)
	LoadUpload(ctx context.Context, id string) (*persistence.Upload, error)
	UpdateStatus(ctx context.Context, id string, to status.Status, errMsg string) error
	InsertPrediction(ctx context.Context, item *persistence.Prediction) error
	RequeueStale(ctx context.Context, maxAge time.Duration) (int64, error)
}

// Acquirer resolves a stored audio reference to a decoded buffer
type Acquirer interface {
	Acquire(ctx context.Context, ref string) (*audio.Buffer, error)
}

// Classifier maps a waveform to a ranked label/score list
type Classifier interface {
	Classify(ctx context.Context, samples []float32, sampleRate int) ([]capi.Result, error)
}

// ServiceData keeps data required for service work
type ServiceData struct {
	DB                 DB
	Acquirer           Acquirer
	Sound              Classifier
	Emotion            Classifier
	PollInterval       time.Duration
	StaleCheckInterval time.Duration
	MaxProcessing      time.Duration
	ModelName          string
	ModelVersion       string
}

// Result is the outcome of processing one job
type Result struct {
	Success    bool
	Prediction *persistence.Scores
	Err        error
}

// StartWorkerService starts the job poll loop.
// Returns channel closed when the loop is done.
func StartWorkerService(ctx context.Context, data *ServiceData) (chan struct{}, error) {
	if err := validate(data); err != nil {
		return nil, err
	}
	goapp.Log.Info().Dur("pollInterval", data.PollInterval).Dur("maxProcessing", data.MaxProcessing).
		Msg("Starting poll for queued jobs")
	res := make(chan struct{}, 1)
	go func() {
		serviceLoop(ctx, data)
		goapp.Log.Info().Msg("Poll loop finished")
		res <- struct{}{}
	}()
	return res, nil
}

// serviceLoop claims at most one job per cycle. Errors never stop the loop,
// the only exit is ctx cancellation between cycles.
func serviceLoop(ctx context.Context, data *ServiceData) {
	lastStaleCheck := time.Time{}
	for {
		if ctx.Err() != nil {
			return
		}
		if data.MaxProcessing > 0 && time.Since(lastStaleCheck) >= data.StaleCheckInterval {
			requeueStale(ctx, data)
			lastStaleCheck = time.Now()
		}
		job, err := data.DB.ClaimNextQueued(ctx)
		if err != nil {
			goapp.Log.Error().Err(err).Msg("can't claim job")
			pause(ctx, data.PollInterval)
			continue
		}
		if job == nil {
			pause(ctx, data.PollInterval)
			continue
		}
		goapp.Log.Info().Str("ID", job.ID).Msg("claimed job")
		res := processJob(ctx, data, job)
		if res.Success {
			goapp.Log.Info().Str("ID", job.ID).Msg("job completed")
		} else {
			goapp.Log.Warn().Err(res.Err).Str("ID", job.ID).Msg("job failed")
		}
	}
}

func requeueStale(ctx context.Context, data *ServiceData) {
	n, err := data.DB.RequeueStale(ctx, data.MaxProcessing)
	if err != nil {
		goapp.Log.Error().Err(err).Msg("can't requeue stale jobs")
		return
	}
	if n > 0 {
		goapp.Log.Warn().Int64("count", n).Msg("requeued stale processing jobs")
	}
}

func pause(ctx context.Context, d time.Duration) {
	select {
	case <-ctx.Done():
	case <-time.After(d):
	}
}

// Process runs one job by ID. A queued job is claimed first, so processing
// always starts from an owned processing row. If the job can't be loaded or
// claimed, no status mutation is attempted.
func Process(ctx context.Context, data *ServiceData, id string) *Result {
	job, err := data.DB.LoadJob(ctx, id)
	if err != nil {
		return &Result{Err: fmt.Errorf("can't load job: %w", err)}
	}
	if job == nil {
		return &Result{Err: fmt.Errorf("job %s not found", id)}
	}
	switch st := status.From(job.Status); st {
	case status.Processing:
	case status.Queued:
		job, err = data.DB.ClaimJob(ctx, id)
		if err != nil {
			return &Result{Err: fmt.Errorf("can't claim job: %w", err)}
		}
		if job == nil {
			return &Result{Err: fmt.Errorf("job %s is taken by another worker", id)}
		}
	default:
		return &Result{Err: fmt.Errorf("job %s is already %s", id, st.String())}
	}
	return processJob(ctx, data, job)
}

// processJob owns all per job error handling, nothing propagates to the loop
func processJob(ctx context.Context, data *ServiceData, job *persistence.Job) (res *Result) {
	defer func() {
		if r := recover(); r != nil {
			err := fmt.Errorf("panic: %v", r)
			res = markFailed(ctx, data, job.ID, err)
		}
	}()
	return process(ctx, data, job)
}

func process(ctx context.Context, data *ServiceData, job *persistence.Job) *Result {
	goapp.Log.Info().Str("ID", job.ID).Str("uploadID", job.UploadID).Msg("processing")
	upload, err := data.DB.LoadUpload(ctx, job.UploadID)
	if err != nil {
		return markFailed(ctx, data, job.ID, fmt.Errorf("can't load upload: %w", err))
	}
	if upload == nil {
		// no mutation on not-found, stale requeue recovers the claim
		return &Result{Err: fmt.Errorf("upload %s not found", job.UploadID)}
	}
	buf, err := data.Acquirer.Acquire(ctx, upload.AudioFilePath)
	if err != nil {
		return markFailed(ctx, data, job.ID, fmt.Errorf("can't acquire audio: %w", err))
	}
	goapp.Log.Info().Str("ID", job.ID).Dur("audio", buf.Duration()).Msg("audio ready")

	inferenceStart := time.Now()
	soundRes, err := data.Sound.Classify(ctx, buf.Samples, buf.SampleRate)
	if err != nil {
		return markFailed(ctx, data, job.ID, fmt.Errorf("can't classify sound: %w", err))
	}
	emotionRes, err := data.Emotion.Classify(ctx, buf.Samples, buf.SampleRate)
	if err != nil {
		return markFailed(ctx, data, job.ID, fmt.Errorf("can't classify emotion: %w", err))
	}
	inferenceTime := time.Since(inferenceStart)
	if len(emotionRes) > 0 && !emotion.Known(emotionRes[0].Label) {
		goapp.Log.Warn().Str("ID", job.ID).Str("label", emotionRes[0].Label).Msg("unknown emotion label")
	}

	scores := fusion.Fuse(soundRes, emotionRes)
	pred := &persistence.Prediction{
		ID:            uuid.NewString(),
		UserIDSHA:     job.UserIDSHA,
		UploadID:      job.UploadID,
		Scores:        *scores,
		ModelVersion:  data.ModelVersion,
		ModelName:     data.ModelName,
		InferenceTime: inferenceTime.Seconds(),
		Created:       time.Now(),
	}
	if err := data.DB.InsertPrediction(ctx, pred); err != nil {
		return markFailed(ctx, data, job.ID, fmt.Errorf("can't insert prediction: %w", err))
	}
	if err := data.DB.UpdateStatus(ctx, job.ID, status.Completed, ""); err != nil {
		return markFailed(ctx, data, job.ID, fmt.Errorf("can't complete job: %w", err))
	}
	return &Result{Success: true, Prediction: scores}
}

func markFailed(ctx context.Context, data *ServiceData, id string, err error) *Result {
	if errU := data.DB.UpdateStatus(ctx, id, status.Failed, err.Error()); errU != nil {
		goapp.Log.Error().Err(errU).Str("ID", id).Msg("can't mark job failed")
	}
	return &Result{Err: err}
}

func validate(data *ServiceData) error {
	if data.DB == nil {
		return fmt.Errorf("no DB")
	}
	if data.Acquirer == nil {
		return fmt.Errorf("no acquirer")
	}
	if data.Sound == nil {
		return fmt.Errorf("no sound classifier")
	}
	if data.Emotion == nil {
		return fmt.Errorf("no emotion classifier")
	}
	if data.PollInterval < time.Millisecond {
		return fmt.Errorf("no poll interval")
	}
	if data.MaxProcessing > 0 && data.StaleCheckInterval < time.Millisecond {
		return fmt.Errorf("no stale check interval")
	}
	if data.ModelName == "" {
		return fmt.Errorf("no model name")
	}
	if data.ModelVersion == "" {
		return fmt.Errorf("no model version")
	}
	return nil
}
