package storage

import (
	"context"
	"errors"
	"fmt"
	"net/url"

	gcs "cloud.google.com/go/storage"
	firebase "firebase.google.com/go/v4"
)

const publicCacheControl = "public, max-age=31536000, immutable"

// FirebaseStore writes objects to a Firebase Storage (GCS) bucket.
type FirebaseStore struct {
	bucket *gcs.BucketHandle
	name   string
}

// NewFirebaseStore opens bucketName through the app's storage client.
func NewFirebaseStore(ctx context.Context, app *firebase.App, bucketName string) (*FirebaseStore, error) {
	client, err := app.Storage(ctx)
	if err != nil {
		return nil, fmt.Errorf("firebase storage client: %w", err)
	}
	bucket, err := client.Bucket(bucketName)
	if err != nil {
		return nil, fmt.Errorf("open bucket %q: %w", bucketName, err)
	}
	return NewBucketStore(bucket, bucketName), nil
}

// NewBucketStore wraps an existing bucket handle.
func NewBucketStore(bucket *gcs.BucketHandle, name string) *FirebaseStore {
	return &FirebaseStore{bucket: bucket, name: name}
}

func (s *FirebaseStore) Put(ctx context.Context, key, contentType string, data []byte) (string, error) {
	key, err := cleanKey(key)
	if err != nil {
		return "", err
	}
	w := s.bucket.Object(key).NewWriter(ctx)
	w.ContentType = contentType
	w.CacheControl = publicCacheControl
	if _, err := w.Write(data); err != nil {
		_ = w.Close()
		return "", fmt.Errorf("write object %s: %w", key, err)
	}
	if err := w.Close(); err != nil {
		return "", fmt.Errorf("close object %s: %w", key, err)
	}
	return s.URL(key), nil
}

func (s *FirebaseStore) Exists(ctx context.Context, key string) (bool, error) {
	key, err := cleanKey(key)
	if err != nil {
		return false, err
	}
	_, err = s.bucket.Object(key).Attrs(ctx)
	if errors.Is(err, gcs.ErrObjectNotExist) {
		return false, nil
	}
	return err == nil, err
}

func (s *FirebaseStore) Delete(ctx context.Context, key string) error {
	key, err := cleanKey(key)
	if err != nil {
		return err
	}
	err = s.bucket.Object(key).Delete(ctx)
	if errors.Is(err, gcs.ErrObjectNotExist) {
		return nil
	}
	return err
}

// URL is the Firebase download URL for key.
func (s *FirebaseStore) URL(key string) string {
	return fmt.Sprintf("https://firebasestorage.googleapis.com/v0/b/%s/o/%s?alt=media",
		s.name, url.PathEscape(key))
}
