package journal

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/autopeer-io/crossway/pkg/log"
	"github.com/autopeer-io/crossway/pkg/options"
)

// archiveBatch bounds the episodes uploaded in one object.
const archiveBatch = 500

// Uploader stores one object. *MinIO implements it.
type Uploader interface {
	Upload(ctx context.Context, key string, data []byte, contentType string) error
}

// MinIO is an Uploader backed by an S3-compatible service.
type MinIO struct {
	client     *minio.Client
	bucketName string
}

// NewMinIO creates the S3 client.
func NewMinIO(opts *options.S3Options) (*MinIO, error) {
	minioOpts := &minio.Options{
		Creds:  credentials.NewStaticV4(opts.AccessKeyID, opts.SecretAccessKey, ""),
		Secure: opts.UseSSL,
		Region: opts.Region,
	}
	if opts.UseSSL {
		// Bench setups run minio with self-signed certificates.
		minioOpts.Transport = &http.Transport{
			TLSClientConfig: &tls.Config{InsecureSkipVerify: true},
		}
	}

	client, err := minio.New(opts.Endpoint, minioOpts)
	if err != nil {
		return nil, fmt.Errorf("failed to create minio client: %w", err)
	}

	return &MinIO{
		client:     client,
		bucketName: opts.BucketName,
	}, nil
}

// CheckBucket creates the bucket when it does not exist yet.
func (p *MinIO) CheckBucket(ctx context.Context) error {
	exists, err := p.client.BucketExists(ctx, p.bucketName)
	if err != nil {
		return fmt.Errorf("failed to check bucket existence: %w", err)
	}
	if !exists {
		log.Info("Bucket does not exist, creating...", "bucket", p.bucketName)
		if err := p.client.MakeBucket(ctx, p.bucketName, minio.MakeBucketOptions{}); err != nil {
			return fmt.Errorf("failed to create bucket: %w", err)
		}
	}
	return nil
}

func (p *MinIO) Upload(ctx context.Context, key string, data []byte, contentType string) error {
	_, err := p.client.PutObject(ctx, p.bucketName, key, bytes.NewReader(data), int64(len(data)),
		minio.PutObjectOptions{ContentType: contentType})
	if err != nil {
		return fmt.Errorf("failed to upload %s: %w", key, err)
	}
	return nil
}

// Archiver periodically uploads pending episodes as newline-delimited JSON.
type Archiver struct {
	store    *Store
	uploader Uploader
	prefix   string
	interval time.Duration
	logger   log.Logger
}

// NewArchiver creates an archiver writing objects under prefix.
func NewArchiver(store *Store, uploader Uploader, prefix string, interval time.Duration, logger log.Logger) *Archiver {
	return &Archiver{
		store:    store,
		uploader: uploader,
		prefix:   prefix,
		interval: interval,
		logger:   logger.WithName("archiver"),
	}
}

// Run archives every interval until ctx is done, and once more on the way out.
func (a *Archiver) Run(ctx context.Context) error {
	if m, ok := a.uploader.(*MinIO); ok {
		if err := m.CheckBucket(ctx); err != nil {
			a.logger.Warn("Object storage not reachable yet", "error", err.Error())
		}
	}

	ticker := time.NewTicker(a.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			a.flush()
			return nil
		case <-ticker.C:
			if _, err := a.ArchiveOnce(ctx); err != nil {
				a.logger.Error(err, "Archive failed, will retry")
			}
		}
	}
}

func (a *Archiver) flush() {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if _, err := a.ArchiveOnce(ctx); err != nil {
		a.logger.Warn("Final archive failed", "error", err.Error())
	}
}

// ArchiveOnce uploads up to one batch of pending episodes and returns how
// many were archived.
func (a *Archiver) ArchiveOnce(ctx context.Context) (int, error) {
	episodes, err := a.store.Pending(archiveBatch)
	if err != nil || len(episodes) == 0 {
		return 0, err
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	ids := make([]string, 0, len(episodes))
	for i := range episodes {
		if err := enc.Encode(&episodes[i]); err != nil {
			return 0, err
		}
		ids = append(ids, episodes[i].ID)
	}

	first := episodes[0]
	key := fmt.Sprintf("%s/%s/%s.jsonl", a.prefix, first.ClosedAt.UTC().Format("2006/01/02"), first.ID)
	if err := a.uploader.Upload(ctx, key, buf.Bytes(), "application/x-ndjson"); err != nil {
		return 0, err
	}
	if err := a.store.MarkArchived(ids...); err != nil {
		return 0, err
	}

	a.logger.Info("Archived episodes", "count", len(ids), "object", key)
	return len(ids), nil
}
