package services

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/url"
	"time"

	"github.com/google/uuid"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// EventArchive keeps the raw body of every inbound gateway callback.
type EventArchive interface {
	Store(ctx context.Context, externalID string, body []byte) (string, error)
	EnsureBucketExists(ctx context.Context) error
	Ping(ctx context.Context) error
}

// objectStore is the subset of *minio.Client the archive uses.
type objectStore interface {
	PutObject(ctx context.Context, bucketName, objectName string, reader io.Reader, objectSize int64, opts minio.PutObjectOptions) (minio.UploadInfo, error)
	BucketExists(ctx context.Context, bucketName string) (bool, error)
	MakeBucket(ctx context.Context, bucketName string, opts minio.MakeBucketOptions) error
}

type minioEventArchive struct {
	client objectStore
	bucket string
	now    func() time.Time
}

func NewMinioEventArchive(endpoint, accessKey, secretKey string, useSSL bool, bucket string) (EventArchive, error) {
	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(accessKey, secretKey, ""),
		Secure: useSSL,
	})
	if err != nil {
		return nil, err
	}
	return newEventArchive(client, bucket), nil
}

func newEventArchive(client objectStore, bucket string) *minioEventArchive {
	return &minioEventArchive{client: client, bucket: bucket, now: time.Now}
}

// ArchiveObjectName lays callbacks out by UTC day. The external id comes
// from the request and is escaped to stay a single path segment.
func ArchiveObjectName(at time.Time, externalID string) string {
	if externalID == "" {
		externalID = "unidentified"
	}
	return fmt.Sprintf("webhooks/%s/%s-%s.json", at.UTC().Format("2006/01/02"), url.PathEscape(externalID), uuid.NewString())
}

func (a *minioEventArchive) Store(ctx context.Context, externalID string, body []byte) (string, error) {
	objectName := ArchiveObjectName(a.now(), externalID)
	_, err := a.client.PutObject(ctx, a.bucket, objectName, bytes.NewReader(body), int64(len(body)), minio.PutObjectOptions{
		ContentType: "application/json",
	})
	if err != nil {
		return "", fmt.Errorf("failed to archive webhook body: %w", err)
	}
	return objectName, nil
}

func (a *minioEventArchive) EnsureBucketExists(ctx context.Context) error {
	found, err := a.client.BucketExists(ctx, a.bucket)
	if err != nil {
		return err
	}
	if !found {
		return a.client.MakeBucket(ctx, a.bucket, minio.MakeBucketOptions{})
	}
	return nil
}

func (a *minioEventArchive) Ping(ctx context.Context) error {
	_, err := a.client.BucketExists(ctx, a.bucket)
	return err
}
