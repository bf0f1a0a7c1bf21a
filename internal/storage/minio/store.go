// Package minio keeps each key as a JSON object in a bucket and follows
// bucket notifications for changes made by other contexts.
package minio

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/url"
	"strings"
	"sync"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/notification"

	"github.com/dtroode/puricare-client/internal/logger"
	"github.com/dtroode/puricare-client/internal/model"
	"github.com/dtroode/puricare-client/internal/storage/feed"
)

const objectSuffix = ".json"

var watchedEvents = []string{
	"s3:ObjectCreated:*",
	"s3:ObjectRemoved:*",
}

// Internal adapter interface to enable mocking without a real MinIO server.
type minioAPI interface {
	BucketExists(ctx context.Context, bucketName string) (bool, error)
	MakeBucket(ctx context.Context, bucketName string, opts minio.MakeBucketOptions) error
	PutObject(ctx context.Context, bucketName, objectName string, reader io.Reader, objectSize int64, opts minio.PutObjectOptions) (minio.UploadInfo, error)
	GetObject(ctx context.Context, bucketName, objectName string, opts minio.GetObjectOptions) (io.ReadCloser, error)
	RemoveObject(ctx context.Context, bucketName, objectName string, opts minio.RemoveObjectOptions) error
	ListenBucketNotification(ctx context.Context, bucketName, prefix, suffix string, events []string) <-chan notification.Info
}

// Wrapper to adapt *minio.Client to minioAPI.
type minioClientWrapper struct{ c *minio.Client }

func (w minioClientWrapper) BucketExists(ctx context.Context, bucketName string) (bool, error) {
	return w.c.BucketExists(ctx, bucketName)
}
func (w minioClientWrapper) MakeBucket(ctx context.Context, bucketName string, opts minio.MakeBucketOptions) error {
	return w.c.MakeBucket(ctx, bucketName, opts)
}
func (w minioClientWrapper) PutObject(ctx context.Context, bucketName, objectName string, reader io.Reader, objectSize int64, opts minio.PutObjectOptions) (minio.UploadInfo, error) {
	return w.c.PutObject(ctx, bucketName, objectName, reader, objectSize, opts)
}
func (w minioClientWrapper) GetObject(ctx context.Context, bucketName, objectName string, opts minio.GetObjectOptions) (io.ReadCloser, error) {
	obj, err := w.c.GetObject(ctx, bucketName, objectName, opts)
	if err != nil {
		return nil, err
	}
	return obj, nil
}
func (w minioClientWrapper) RemoveObject(ctx context.Context, bucketName, objectName string, opts minio.RemoveObjectOptions) error {
	return w.c.RemoveObject(ctx, bucketName, objectName, opts)
}
func (w minioClientWrapper) ListenBucketNotification(ctx context.Context, bucketName, prefix, suffix string, events []string) <-chan notification.Info {
	return w.c.ListenBucketNotification(ctx, bucketName, prefix, suffix, events)
}

// Config selects the bucket and the object prefix shared by one origin.
type Config struct {
	Bucket    string
	Namespace string
}

var _ model.KeyValueStore = (*Store)(nil)

// Store implements model.KeyValueStore on MinIO.
type Store struct {
	api      minioAPI
	bucket   string
	prefix   string
	logger   *logger.Logger
	feed     *feed.Feed
	// writeMu orders this context's writes against re-reads of notifications.
	writeMu  sync.Mutex
	versions *feed.Versions

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// New creates a MinIO store using a real *minio.Client instance.
func New(ctx context.Context, client *minio.Client, cfg Config, logger *logger.Logger) (*Store, error) {
	return NewWithAPI(ctx, minioClientWrapper{c: client}, cfg, logger)
}

// NewWithAPI allows injecting a mockable API (used in tests).
func NewWithAPI(ctx context.Context, api minioAPI, cfg Config, logger *logger.Logger) (*Store, error) {
	s := &Store{
		api:      api,
		bucket:   cfg.Bucket,
		prefix:   strings.Trim(cfg.Namespace, "/") + "/",
		logger:   logger,
		feed:     feed.New(),
		versions: feed.NewVersions(),
	}

	if err := s.ensureBucketExists(ctx); err != nil {
		return nil, fmt.Errorf("failed to ensure bucket exists: %w", err)
	}

	return s, nil
}

func (s *Store) ensureBucketExists(ctx context.Context) error {
	exists, err := s.api.BucketExists(ctx, s.bucket)
	if err != nil {
		return fmt.Errorf("failed to check bucket existence: %w", err)
	}

	if !exists {
		err = s.api.MakeBucket(ctx, s.bucket, minio.MakeBucketOptions{})
		if err != nil {
			return fmt.Errorf("failed to create bucket: %w", err)
		}
	}

	return nil
}

// Get downloads the object for key. A missing object is an absent key.
func (s *Store) Get(ctx context.Context, key string) ([]byte, bool, error) {
	rc, err := s.api.GetObject(ctx, s.bucket, s.objectName(key), minio.GetObjectOptions{})
	if err != nil {
		return s.notFound(err)
	}
	defer rc.Close()

	// minio.Object reports a missing key on the first read, not on GetObject.
	value, err := io.ReadAll(rc)
	if err != nil {
		return s.notFound(err)
	}
	return value, true, nil
}

func (s *Store) notFound(err error) ([]byte, bool, error) {
	if minio.ToErrorResponse(err).Code == "NoSuchKey" {
		return nil, false, nil
	}
	return nil, false, fmt.Errorf("failed to get object: %w", err)
}

// Set uploads value as a single object; object writes are atomic.
func (s *Store) Set(ctx context.Context, key string, value []byte) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	s.versions.Record(key, value, true)
	_, err := s.api.PutObject(ctx, s.bucket, s.objectName(key), bytes.NewReader(value), int64(len(value)),
		minio.PutObjectOptions{ContentType: "application/json"})
	if err != nil {
		return fmt.Errorf("failed to upload object: %w", err)
	}
	return nil
}

// Remove deletes the object for key.
func (s *Store) Remove(ctx context.Context, key string) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	s.versions.Record(key, nil, false)
	err := s.api.RemoveObject(ctx, s.bucket, s.objectName(key), minio.RemoveObjectOptions{})
	if err != nil {
		return fmt.Errorf("failed to delete object: %w", err)
	}
	return nil
}

// Watch subscribes to bucket notifications on first use.
func (s *Store) Watch(ctx context.Context) (<-chan model.ChangeEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cancel == nil {
		lctx, cancel := context.WithCancel(context.Background())
		infos := s.api.ListenBucketNotification(lctx, s.bucket, s.prefix, objectSuffix, watchedEvents)
		s.cancel = cancel
		s.done = make(chan struct{})
		go s.listen(lctx, infos)
	}

	return s.feed.Subscribe(ctx), nil
}

func (s *Store) listen(ctx context.Context, infos <-chan notification.Info) {
	defer close(s.done)

	for {
		select {
		case <-ctx.Done():
			return
		case info, ok := <-infos:
			if !ok {
				if ctx.Err() == nil {
					s.logger.Warn("bucket notifications stopped")
				}
				return
			}
			if info.Err != nil {
				s.logger.Warn("bucket notification error", "error", info.Err)
				continue
			}
			for _, record := range info.Records {
				s.handle(ctx, record.S3.Object.Key)
			}
		}
	}
}

func (s *Store) handle(ctx context.Context, objectKey string) {
	key, ok := s.keyFromObject(objectKey)
	if !ok {
		return
	}

	// Notifications can arrive late or out of order; the current object
	// is the truth.
	s.writeMu.Lock()
	value, present, err := s.Get(ctx, key)
	if err != nil {
		s.writeMu.Unlock()
		s.logger.Warn("failed to read changed key", "key", key, "error", err)
		return
	}
	changed := s.versions.Changed(key, value, present)
	s.writeMu.Unlock()
	if !changed {
		return
	}
	s.feed.Publish(model.ChangeEvent{Key: key, NewValue: value, Present: present})
}

// Close stops the notification listener.
func (s *Store) Close() error {
	s.mu.Lock()
	if s.cancel != nil {
		s.cancel()
		<-s.done
		s.cancel = nil
	}
	s.mu.Unlock()

	s.feed.Close()
	return nil
}

func (s *Store) objectName(key string) string {
	return s.prefix + url.PathEscape(key) + objectSuffix
}

func (s *Store) keyFromObject(objectKey string) (string, bool) {
	// Event keys are URL-encoded.
	name, err := url.QueryUnescape(objectKey)
	if err != nil {
		return "", false
	}
	if !strings.HasPrefix(name, s.prefix) || !strings.HasSuffix(name, objectSuffix) {
		return "", false
	}
	key, err := url.PathUnescape(strings.TrimSuffix(strings.TrimPrefix(name, s.prefix), objectSuffix))
	if err != nil || key == "" {
		return "", false
	}
	return key, true
}
