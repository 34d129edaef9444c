package storage

import (
	"context"
	"fmt"
	"io"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// ImageStore serves reference and candidate images from S3-compatible
// object storage. Detection crops are uploaded by the upstream detector;
// this side only reads them.
type ImageStore struct {
	client     *minio.Client
	bucketName string
}

// NewImageStore creates a new S3-backed image store
func NewImageStore(endpoint, accessKey, secretKey, bucketName, region string, useSSL bool) (*ImageStore, error) {
	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(accessKey, secretKey, ""),
		Secure: useSSL,
		Region: region,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create S3 client: %w", err)
	}

	return &ImageStore{
		client:     client,
		bucketName: bucketName,
	}, nil
}

// EnsureBucket verifies the image bucket exists.
func (s *ImageStore) EnsureBucket(ctx context.Context) error {
	exists, err := s.client.BucketExists(ctx, s.bucketName)
	if err != nil {
		return fmt.Errorf("failed to check bucket existence: %w", err)
	}
	if !exists {
		return fmt.Errorf("image bucket %q does not exist", s.bucketName)
	}
	return nil
}

// Fetch downloads the image stored under key and returns its bytes and
// content type.
func (s *ImageStore) Fetch(ctx context.Context, key string) ([]byte, string, error) {
	obj, err := s.client.GetObject(ctx, s.bucketName, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, "", fmt.Errorf("failed to fetch object %q: %w", key, err)
	}
	defer obj.Close()

	info, err := obj.Stat()
	if err != nil {
		return nil, "", fmt.Errorf("failed to stat object %q: %w", key, err)
	}

	data, err := io.ReadAll(obj)
	if err != nil {
		return nil, "", fmt.Errorf("failed to read object %q: %w", key, err)
	}

	return data, info.ContentType, nil
}
