package minioctrl

import (
	"context"
	"fmt"
	"io"
	"path"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"pdfchat/src/core/corpus"
)

type MinioService struct {
	client *minio.Client
}

func NewMinioService(endpoint, accessKeyID, secretAccessKey string, useSSL bool) (*MinioService, error) {
	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(accessKeyID, secretAccessKey, ""),
		Secure: useSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create minio client: %w", err)
	}

	return &MinioService{
		client: client,
	}, nil
}

func (s *MinioService) EnsureBucketExists(ctx context.Context, bucketName string) error {
	exists, err := s.client.BucketExists(ctx, bucketName)
	if err != nil {
		return fmt.Errorf("failed to check bucket existence: %w", err)
	}

	if !exists {
		err = s.client.MakeBucket(ctx, bucketName, minio.MakeBucketOptions{})
		if err != nil {
			return fmt.Errorf("failed to create bucket: %w", err)
		}
	}

	return nil
}

// BucketSource serves the PDF objects under a bucket prefix as a corpus.
type BucketSource struct {
	svc    *MinioService
	bucket string
	prefix string
}

// NewBucketSource takes a location of the form "bucket" or "bucket/prefix".
func (s *MinioService) NewBucketSource(location string) (*BucketSource, error) {
	bucket, prefix := SplitLocation(location)
	if bucket == "" {
		return nil, fmt.Errorf("invalid bucket location %q", location)
	}
	return &BucketSource{svc: s, bucket: bucket, prefix: prefix}, nil
}

func (b *BucketSource) Location() string {
	return "s3://" + path.Join(b.bucket, b.prefix)
}

func (b *BucketSource) List(ctx context.Context) ([]corpus.Object, error) {
	opts := minio.ListObjectsOptions{Prefix: b.prefix, Recursive: true}

	var objects []corpus.Object
	for info := range b.svc.client.ListObjects(ctx, b.bucket, opts) {
		if info.Err != nil {
			return nil, fmt.Errorf("failed to list %s: %w", b.Location(), info.Err)
		}
		if !IsPDFKey(info.Key) {
			continue
		}
		objects = append(objects, corpus.Object{Name: info.Key, Size: info.Size})
	}
	return objects, nil
}

func (b *BucketSource) Open(ctx context.Context, name string) (io.ReadCloser, error) {
	obj, err := b.svc.client.GetObject(ctx, b.bucket, name, minio.GetObjectOptions{})
	if err != nil {
		return nil, fmt.Errorf("failed to get object: %w", err)
	}
	return obj, nil
}

func (b *BucketSource) Put(ctx context.Context, name string, r io.Reader, size int64) (string, error) {
	key := ObjectKey(b.prefix, name)
	if !IsPDFKey(key) {
		return "", fmt.Errorf("invalid file name %q: %w", name, corpus.ErrNotPDF)
	}
	if err := b.svc.EnsureBucketExists(ctx, b.bucket); err != nil {
		return "", err
	}

	_, err := b.svc.client.PutObject(ctx, b.bucket, key, r, size, minio.PutObjectOptions{
		ContentType: "application/pdf",
	})
	if err != nil {
		return "", fmt.Errorf("failed to put object: %w", err)
	}
	return key, nil
}

// SplitLocation splits "bucket/some/prefix" into its bucket and prefix.
func SplitLocation(location string) (bucket, prefix string) {
	location = strings.TrimPrefix(location, "s3://")
	parts := strings.SplitN(strings.Trim(location, "/"), "/", 2)
	if len(parts) == 2 {
		return parts[0], parts[1]
	}
	return parts[0], ""
}

// ObjectKey places the base name of name under prefix.
func ObjectKey(prefix, name string) string {
	base := path.Base(strings.ReplaceAll(name, "\\", "/"))
	if prefix == "" {
		return base
	}
	return strings.TrimSuffix(prefix, "/") + "/" + base
}

func IsPDFKey(key string) bool {
	return strings.EqualFold(path.Ext(key), ".pdf")
}
