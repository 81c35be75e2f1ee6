// Package publish uploads exported decks to Google Cloud Storage.
package publish

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"time"

	"cloud.google.com/go/storage"
	"github.com/sirupsen/logrus"

	"deckflow/internal/config"
)

const maxRetries = 4

// WriterFunc opens a writer for bucket/object.
type WriterFunc func(ctx context.Context, bucket, object string) io.WriteCloser

// GCSPublisher uploads artifacts under <prefix>/<run id>/<file name>.
type GCSPublisher struct {
	bucket     string
	prefix     string
	newWriter  WriterFunc
	client     *storage.Client
	retryDelay time.Duration
	log        *logrus.Entry
}

// NewGCSPublisher connects with application default credentials.
func NewGCSPublisher(ctx context.Context, cfg config.PublishConfig) (*GCSPublisher, error) {
	client, err := storage.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create Storage client: %w", err)
	}
	p := NewPublisher(cfg, func(ctx context.Context, bucket, object string) io.WriteCloser {
		w := client.Bucket(bucket).Object(object).NewWriter(ctx)
		w.ContentType = "application/pdf"
		return w
	})
	p.client = client
	return p, nil
}

// NewPublisher builds a publisher around any object writer.
func NewPublisher(cfg config.PublishConfig, newWriter WriterFunc) *GCSPublisher {
	return &GCSPublisher{
		bucket:     cfg.Bucket,
		prefix:     cfg.Prefix,
		newWriter:  newWriter,
		retryDelay: time.Second,
		log:        logrus.WithField("component", "publisher"),
	}
}

// Publish uploads the file at localPath and returns its gs:// URL.
func (p *GCSPublisher) Publish(ctx context.Context, runID, localPath string) (string, error) {
	object := path.Join(p.prefix, runID, filepath.Base(localPath))
	if err := p.upload(ctx, localPath, object); err != nil {
		return "", err
	}
	url := fmt.Sprintf("gs://%s/%s", p.bucket, object)
	p.log.WithFields(logrus.Fields{"run_id": runID, "url": url}).Info("artifact published")
	return url, nil
}

func (p *GCSPublisher) upload(ctx context.Context, localPath, object string) error {
	delay := p.retryDelay
	var lastErr error
	for i := 0; i < maxRetries; i++ {
		err := func() error {
			f, err := os.Open(localPath)
			if err != nil {
				return fmt.Errorf("could not open local file %s: %w", localPath, err)
			}
			defer f.Close()

			writeCtx, cancel := context.WithTimeout(ctx, 50*time.Second)
			defer cancel()

			w := p.newWriter(writeCtx, p.bucket, object)
			if _, err := io.Copy(w, f); err != nil {
				_ = w.Close()
				return fmt.Errorf("copy to GCS failed: %w", err)
			}
			if err := w.Close(); err != nil {
				return fmt.Errorf("failed to finalize upload: %w", err)
			}
			return nil
		}()
		if err == nil {
			return nil
		}
		if errors.Is(err, os.ErrNotExist) {
			return err
		}
		lastErr = err
		p.log.WithFields(logrus.Fields{"object": object, "attempt": i + 1, "backoff": delay.String()}).WithError(err).Warn("upload failed, will retry")

		select {
		case <-time.After(delay):
			delay *= 2
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return fmt.Errorf("upload %s failed after %d attempts: %w", object, maxRetries, lastErr)
}

func (p *GCSPublisher) Close() error {
	if p.client != nil {
		return p.client.Close()
	}
	return nil
}
