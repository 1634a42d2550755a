package storage

import (
	"context"
	"fmt"
	"io"
	"path"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	domain "github.com/bryanwahyu/receipt-pipeline/internal/domain/receipts"
)

// MaxDocumentBytes caps how much of a stored object is read into memory.
const MaxDocumentBytes = 10 << 20

type Store struct {
	client     *minio.Client
	bucketName string
}

// New buat koneksi MinIO. The bucket must already exist; documents are
// written by upstream systems, this service only reads them.
func New(ctx context.Context, endpoint, region, bucket, accessKey, secretKey string, useSSL bool) (*Store, error) {
	cli, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(accessKey, secretKey, ""),
		Secure: useSSL,
		Region: region,
	})
	if err != nil {
		return nil, err
	}

	exists, err := cli.BucketExists(ctx, bucket)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, fmt.Errorf("bucket %q does not exist", bucket)
	}

	return &Store{client: cli, bucketName: bucket}, nil
}

// Fetch implements receipts.DocumentSource.
func (s *Store) Fetch(ctx context.Context, key string) (domain.Document, error) {
	obj, err := s.client.GetObject(ctx, s.bucketName, key, minio.GetObjectOptions{})
	if err != nil {
		return domain.Document{}, err
	}
	defer obj.Close()

	info, err := obj.Stat()
	if err != nil {
		if minio.ToErrorResponse(err).Code == "NoSuchKey" {
			return domain.Document{}, fmt.Errorf("%w: %s", domain.ErrDocumentNotFound, key)
		}
		return domain.Document{}, fmt.Errorf("stat %s: %w", key, err)
	}
	if info.Size > MaxDocumentBytes {
		return domain.Document{}, fmt.Errorf("object %s is %d bytes, limit is %d", key, info.Size, MaxDocumentBytes)
	}

	data, err := io.ReadAll(io.LimitReader(obj, MaxDocumentBytes))
	if err != nil {
		return domain.Document{}, fmt.Errorf("read %s: %w", key, err)
	}
	return domain.Document{
		Name:        path.Base(key),
		ContentType: contentType(info.ContentType, key),
		Data:        data,
	}, nil
}

// contentType prefers the stored metadata and falls back to the key's extension.
func contentType(stored, key string) string {
	if stored != "" && stored != "application/octet-stream" {
		return stored
	}
	switch path.Ext(key) {
	case ".png":
		return "image/png"
	case ".jpg", ".jpeg":
		return "image/jpeg"
	case ".webp":
		return "image/webp"
	case ".gif":
		return "image/gif"
	case ".pdf":
		return "application/pdf"
	default:
		return "application/octet-stream"
	}
}
