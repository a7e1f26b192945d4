package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"path"
	"time"

	"github.com/cenkalti/backoff/v4"
	minio "github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"go.uber.org/zap"

	"github.com/emiller/vigil/internal/capture"
	"github.com/emiller/vigil/internal/record"
)

// MinIOConfig configures the object-store footage backend.
type MinIOConfig struct {
	Endpoint        string
	AccessKeyID     string
	SecretAccessKey string
	UseSSL          bool
	Bucket          string
	// Prefix is prepended to every session key, e.g. "footage".
	Prefix string
	// RequestTimeout bounds each remote call. Zero means 30s.
	RequestTimeout time.Duration
}

// MinIOWriter stores sessions as bucket objects under
// prefix/YYYY/MM/DD/HHMMSS_id/. Uploads are retried with exponential
// backoff; a session's Discard removes every object under its key
// prefix so a failed session leaves nothing behind.
type MinIOWriter struct {
	client  *minio.Client
	bucket  string
	prefix  string
	timeout time.Duration
	logger  *zap.SugaredLogger
}

// NewMinIOWriter connects to the object store and verifies the bucket
// exists.
func NewMinIOWriter(cfg MinIOConfig, logger *zap.SugaredLogger) (*MinIOWriter, error) {
	if cfg.RequestTimeout == 0 {
		cfg.RequestTimeout = 30 * time.Second
	}

	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("create minio client: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.RequestTimeout)
	defer cancel()

	exists, err := client.BucketExists(ctx, cfg.Bucket)
	if err != nil {
		return nil, fmt.Errorf("check bucket %q: %w", cfg.Bucket, err)
	}
	if !exists {
		return nil, fmt.Errorf("bucket %q does not exist", cfg.Bucket)
	}

	return &MinIOWriter{
		client:  client,
		bucket:  cfg.Bucket,
		prefix:  cfg.Prefix,
		timeout: cfg.RequestTimeout,
		logger:  logger.Named("storage.minio"),
	}, nil
}

type minioDestination struct {
	keyPrefix string
	sessionID string
	start     time.Time
	frames    int
}

func (d *minioDestination) Path() string { return d.keyPrefix }

// Open reserves the session's key prefix. No remote call is needed:
// object stores have no directories to create.
func (w *MinIOWriter) Open(start time.Time, sessionID string) (record.Destination, error) {
	keyPrefix := path.Join(w.prefix, start.Format("2006/01/02"), sessionDirName(start, sessionID))
	return &minioDestination{keyPrefix: keyPrefix, sessionID: sessionID, start: start}, nil
}

// Write uploads one frame as a JPEG object.
func (w *MinIOWriter) Write(dest record.Destination, frame *capture.Frame) error {
	d, ok := dest.(*minioDestination)
	if !ok {
		return fmt.Errorf("destination %T does not belong to the minio writer", dest)
	}

	data, err := encodeJPEG(frame)
	if err != nil {
		return err
	}

	key := path.Join(d.keyPrefix, frameName(d.frames))
	if err := w.put(key, data, "image/jpeg"); err != nil {
		return err
	}

	d.frames++
	return nil
}

// Close finalizes the session by uploading its manifest.
func (w *MinIOWriter) Close(dest record.Destination) error {
	d, ok := dest.(*minioDestination)
	if !ok {
		return fmt.Errorf("destination %T does not belong to the minio writer", dest)
	}

	manifest := Manifest{
		SessionID: d.sessionID,
		StartedAt: d.start,
		EndedAt:   time.Now(),
		Frames:    d.frames,
	}

	data, err := json.Marshal(manifest)
	if err != nil {
		return fmt.Errorf("marshal manifest: %w", err)
	}

	if err := w.put(path.Join(d.keyPrefix, "manifest.json"), data, "application/json"); err != nil {
		return err
	}

	w.logger.Debugw("session finalized", "key_prefix", d.keyPrefix, "frames", d.frames)
	return nil
}

// Discard removes every object already uploaded for the session.
func (w *MinIOWriter) Discard(dest record.Destination) error {
	d, ok := dest.(*minioDestination)
	if !ok {
		return fmt.Errorf("destination %T does not belong to the minio writer", dest)
	}

	ctx, cancel := context.WithTimeout(context.Background(), w.timeout)
	defer cancel()

	var firstErr error
	for obj := range w.client.ListObjects(ctx, w.bucket, minio.ListObjectsOptions{
		Prefix:    d.keyPrefix + "/",
		Recursive: true,
	}) {
		if obj.Err != nil {
			if firstErr == nil {
				firstErr = obj.Err
			}
			continue
		}
		if err := w.client.RemoveObject(ctx, w.bucket, obj.Key, minio.RemoveObjectOptions{}); err != nil && firstErr == nil {
			firstErr = err
		}
	}

	if firstErr != nil {
		return fmt.Errorf("discard session objects: %w", firstErr)
	}

	w.logger.Debugw("session discarded", "key_prefix", d.keyPrefix)
	return nil
}

// put uploads one object, retrying transient failures.
func (w *MinIOWriter) put(key string, data []byte, contentType string) error {
	upload := func() error {
		ctx, cancel := context.WithTimeout(context.Background(), w.timeout)
		defer cancel()

		_, err := w.client.PutObject(ctx, w.bucket, key,
			bytes.NewReader(data), int64(len(data)),
			minio.PutObjectOptions{ContentType: contentType})
		return err
	}

	policy := backoff.WithMaxRetries(backoff.NewExponentialBackOff(), 3)
	if err := backoff.Retry(upload, policy); err != nil {
		return fmt.Errorf("upload %s: %w", key, err)
	}
	return nil
}
