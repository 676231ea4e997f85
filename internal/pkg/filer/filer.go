package filer

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// Options is minio filer init params
type Options struct {
	URL    string
	User   string
	Key    string
	Bucket string
	Secure bool
}

// Filer retrieves audio bytes from the minio content store.
// It serves both acquisition strategies: signed URL minting and direct fetch.
type Filer struct {
	client *minio.Client
	bucket string
}

// NewFiler creates minio client wrapper
func NewFiler(ctx context.Context, opts Options) (*Filer, error) {
	if opts.URL == "" {
		return nil, fmt.Errorf("no url")
	}
	if opts.Bucket == "" {
		return nil, fmt.Errorf("no bucket")
	}
	cl, err := minio.New(opts.URL, &minio.Options{
		Creds:  credentials.NewStaticV4(opts.User, opts.Key, ""),
		Secure: opts.Secure,
	})
	if err != nil {
		return nil, fmt.Errorf("can't init minio client: %w", err)
	}
	return &Filer{client: cl, bucket: opts.Bucket}, nil
}

// PresignURL mints a time limited GET URL for the object
func (f *Filer) PresignURL(ctx context.Context, bucket, path string, ttl time.Duration) (string, error) {
	b := f.orDefault(bucket)
	u, err := f.client.PresignedGetObject(ctx, b, path, ttl, url.Values{})
	if err != nil {
		return "", fmt.Errorf("can't presign %s/%s: %w", b, path, err)
	}
	return u.String(), nil
}

// LoadFile fetches object bytes using the configured credentials
func (f *Filer) LoadFile(ctx context.Context, bucket, path string) (io.ReadCloser, error) {
	b := f.orDefault(bucket)
	obj, err := f.client.GetObject(ctx, b, path, minio.GetObjectOptions{})
	if err != nil {
		return nil, fmt.Errorf("can't load %s/%s: %w", b, path, err)
	}
	// GetObject is lazy, make sure the object is there
	if _, err := obj.Stat(); err != nil {
		_ = obj.Close()
		return nil, fmt.Errorf("can't load %s/%s: %w", b, path, err)
	}
	return obj, nil
}

func (f *Filer) orDefault(bucket string) string {
	if bucket == "" {
		return f.bucket
	}
	return bucket
}
