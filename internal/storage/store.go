// Package storage puts uploaded media somewhere a browser can fetch it.
package storage

import (
	"context"
	"errors"
	"path"
	"strings"

	"wavely/internal/config"

	firebase "firebase.google.com/go/v4"
)

var ErrInvalidKey = errors.New("invalid object key")

// ObjectStore is a flat key space of public objects.
type ObjectStore interface {
	Put(ctx context.Context, key, contentType string, data []byte) (string, error)
	Exists(ctx context.Context, key string) (bool, error)
	Delete(ctx context.Context, key string) error
	URL(key string) string
}

// New picks the store named by OBJECT_STORE. app may be nil for the local store.
func New(ctx context.Context, cfg *config.Config, app *firebase.App) (ObjectStore, error) {
	switch cfg.ObjectStore {
	case config.ObjectStoreFirebase:
		if app == nil {
			return nil, errors.New("firebase object store requires a firebase app")
		}
		return NewFirebaseStore(ctx, app, cfg.FirebaseStorageBucket)
	default:
		return NewLocalStore(cfg.MediaDir, cfg.MediaPublicURL), nil
	}
}

// cleanKey rejects absolute keys and keys that climb out of the root.
func cleanKey(key string) (string, error) {
	if key == "" || strings.HasPrefix(key, "/") || strings.Contains(key, "\\") {
		return "", ErrInvalidKey
	}
	cleaned := path.Clean(key)
	if cleaned != key || cleaned == "." || strings.HasPrefix(cleaned, "../") || cleaned == ".." {
		return "", ErrInvalidKey
	}
	return cleaned, nil
}
