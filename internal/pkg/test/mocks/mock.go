package mocks

import (
	"context"
	"io"
	"time"

	"github.com/moodsense/moody/internal/pkg/audio"
	capi "github.com/moodsense/moody/internal/pkg/classifier/api"
	"github.com/moodsense/moody/internal/pkg/persistence"
	"github.com/moodsense/moody/internal/pkg/status"
	"github.com/stretchr/testify/mock"
)

// DB is postgres DB mock
type DB struct{ mock.Mock }

func (m *DB) ClaimNextQueued(ctx context.Context) (*persistence.Job, error) {
	args := m.Called(ctx)
	return to[*persistence.Job](args.Get(0)), args.Error(1)
}

func (m *DB) ClaimJob(ctx context.Context, id string) (*persistence.Job, error) {
	args := m.Called(ctx, id)
	return to[*persistence.Job](args.Get(0)), args.Error(1)
}

func (m *DB) LoadJob(ctx context.Context, id string) (*persistence.Job, error) {
	args := m.Called(ctx, id)
	return to[*persistence.Job](args.Get(0)), args.Error(1)
}

func (m *DB) LoadUpload(ctx context.Context, id string) (*persistence.Upload, error) {
	args := m.Called(ctx, id)
	return to[*persistence.Upload](args.Get(0)), args.Error(1)
}

func (m *DB) UpdateStatus(ctx context.Context, id string, st status.Status, errMsg string) error {
	args := m.Called(ctx, id, st, errMsg)
	return args.Error(0)
}

func (m *DB) InsertPrediction(ctx context.Context, item *persistence.Prediction) error {
	args := m.Called(ctx, item)
	return args.Error(0)
}

func (m *DB) RequeueStale(ctx context.Context, maxAge time.Duration) (int64, error) {
	args := m.Called(ctx, maxAge)
	return args.Get(0).(int64), args.Error(1)
}

func (m *DB) LoadPrediction(ctx context.Context, uploadID string) (*persistence.Prediction, error) {
	args := m.Called(ctx, uploadID)
	return to[*persistence.Prediction](args.Get(0)), args.Error(1)
}

func (m *DB) Live(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

// Acquirer is audio acquirer mock
type Acquirer struct{ mock.Mock }

func (m *Acquirer) Acquire(ctx context.Context, ref string) (*audio.Buffer, error) {
	args := m.Called(ctx, ref)
	return to[*audio.Buffer](args.Get(0)), args.Error(1)
}

// Classifier is classification client mock
type Classifier struct{ mock.Mock }

func (m *Classifier) Classify(ctx context.Context, samples []float32, sampleRate int) ([]capi.Result, error) {
	args := m.Called(ctx, samples, sampleRate)
	return to[[]capi.Result](args.Get(0)), args.Error(1)
}

// Signer is signed URL minter mock
type Signer struct{ mock.Mock }

func (m *Signer) PresignURL(ctx context.Context, bucket, path string, ttl time.Duration) (string, error) {
	args := m.Called(ctx, bucket, path, ttl)
	return args.String(0), args.Error(1)
}

// Loader is direct file fetch mock
type Loader struct{ mock.Mock }

func (m *Loader) LoadFile(ctx context.Context, bucket, path string) (io.ReadCloser, error) {
	args := m.Called(ctx, bucket, path)
	return to[io.ReadCloser](args.Get(0)), args.Error(1)
}

func to[T interface{}](val interface{}) T {
	if val == nil {
		var res T
		return res
	}
	return val.(T)
}
