package audio

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/airenas/go-app/pkg/goapp"
)

// Signer mints time limited retrieval URLs
type Signer interface {
	PresignURL(ctx context.Context, bucket, path string, ttl time.Duration) (string, error)
}

// Loader fetches object bytes with store credentials
type Loader interface {
	LoadFile(ctx context.Context, bucket, path string) (io.ReadCloser, error)
}

// Acquirer resolves a stored file reference to a decoded mono waveform.
// The primary strategy fetches via a minted signed URL, the fallback is a
// direct authenticated fetch of the same object. Both converge on the same
// decode step. Failure of both is fatal for the current job.
type Acquirer struct {
	signer        Signer
	loader        Loader
	httpclient    *http.Client
	defaultBucket string
	signTTL       time.Duration
	timeout       time.Duration
	targetRate    int
	maxDuration   time.Duration
	maxSize       int64
}

// NewAcquirer creates an audio acquirer
func NewAcquirer(signer Signer, loader Loader, defaultBucket string) (*Acquirer, error) {
	if signer == nil {
		return nil, fmt.Errorf("no signer")
	}
	if loader == nil {
		return nil, fmt.Errorf("no loader")
	}
	if defaultBucket == "" {
		return nil, fmt.Errorf("no default bucket")
	}
	res := &Acquirer{signer: signer, loader: loader, defaultBucket: defaultBucket}
	res.httpclient = &http.Client{Transport: &http.Transport{MaxIdleConns: 5,
		IdleConnTimeout: 90 * time.Second}}
	res.signTTL = time.Minute * 5
	res.timeout = time.Second * 30
	res.targetRate = 16000
	res.maxDuration = time.Second * 30
	res.maxSize = 100 << 20
	return res, nil
}

// Acquire resolves the stored reference to decoded audio
func (a *Acquirer) Acquire(ctx context.Context, ref string) (*Buffer, error) {
	fr, err := ParseFileRef(ref, a.defaultBucket)
	if err != nil {
		return nil, fmt.Errorf("can't resolve file reference: %w", err)
	}
	res, errS := a.acquireSigned(ctx, fr)
	if errS == nil {
		return res, nil
	}
	goapp.Log.Warn().Err(errS).Str("path", fr.Path).Msg("signed retrieval failed - try direct fetch")
	res, errD := a.acquireDirect(ctx, fr)
	if errD != nil {
		return nil, fmt.Errorf("both retrieval strategies failed: %w (signed: %v)", errD, errS)
	}
	return res, nil
}

func (a *Acquirer) acquireSigned(ctx context.Context, fr FileRef) (*Buffer, error) {
	urlStr, err := a.signer.PresignURL(ctx, fr.Bucket, fr.Path, a.signTTL)
	if err != nil {
		return nil, fmt.Errorf("can't mint signed URL: %w", err)
	}
	ctx, cancelF := context.WithTimeout(ctx, a.timeout)
	defer cancelF()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, urlStr, nil)
	if err != nil {
		return nil, err
	}
	resp, err := a.httpclient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("can't call: %w", err)
	}
	defer func() {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 10000))
		_ = resp.Body.Close()
	}()
	if err := goapp.ValidateHTTPResp(resp, 100); err != nil {
		return nil, fmt.Errorf("can't fetch signed URL: %w", err)
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, a.maxSize))
	if err != nil {
		return nil, fmt.Errorf("can't read response: %w", err)
	}
	return a.decode(data, filepath.Ext(fr.Path))
}

func (a *Acquirer) acquireDirect(ctx context.Context, fr FileRef) (*Buffer, error) {
	ctx, cancelF := context.WithTimeout(ctx, a.timeout)
	defer cancelF()
	r, err := a.loader.LoadFile(ctx, fr.Bucket, fr.Path)
	if err != nil {
		return nil, fmt.Errorf("can't load file: %w", err)
	}
	defer func() { _ = r.Close() }()
	data, err := io.ReadAll(io.LimitReader(r, a.maxSize))
	if err != nil {
		return nil, fmt.Errorf("can't read file: %w", err)
	}
	return a.decode(data, filepath.Ext(fr.Path))
}

// decode materializes bytes into a scoped temp file and decodes it.
// The file is removed on every exit path.
func (a *Acquirer) decode(data []byte, ext string) (*Buffer, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("empty audio payload")
	}
	tf, err := os.CreateTemp("", "moody-audio-*"+ext)
	if err != nil {
		return nil, fmt.Errorf("can't create temp file: %w", err)
	}
	defer func() {
		_ = tf.Close()
		_ = os.Remove(tf.Name())
	}()
	if _, err := tf.Write(data); err != nil {
		return nil, fmt.Errorf("can't write temp file: %w", err)
	}
	if _, err := tf.Seek(0, io.SeekStart); err != nil {
		return nil, fmt.Errorf("can't rewind temp file: %w", err)
	}
	return decodeWAV(tf, a.targetRate, a.maxDuration)
}
