// Package objectstore provides a NATS JetStream implementation of the
// core.ObjectStore interface for moving job text and rendered audio.
package objectstore

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
)

// AudioStore stores job inputs and rendered audio in a JetStream object
// store bucket.
type AudioStore struct {
	bucket string
	store  nats.ObjectStore
}

// New binds to the named bucket, creating it when it does not exist yet.
func New(jetstreamContext nats.JetStreamContext, bucketName string) (*AudioStore, error) {
	store, err := openBucket(jetstreamContext, bucketName)
	if err != nil {
		return nil, err
	}

	return &AudioStore{
		bucket: bucketName,
		store:  store,
	}, nil
}

func openBucket(jetstreamContext nats.JetStreamContext, bucketName string) (nats.ObjectStore, error) {
	store, err := jetstreamContext.CreateObjectStore(&nats.ObjectStoreConfig{
		Bucket:      bucketName,
		Description: fmt.Sprintf("Blob storage for the %s bucket.", bucketName),
		Storage:     nats.FileStorage,
		Replicas:    1,
	})
	if err == nil {
		return store, nil
	}

	if !errors.Is(err, jetstream.ErrBucketExists) {
		return nil, fmt.Errorf("failed to create object store bucket '%s': %w", bucketName, err)
	}

	store, err = jetstreamContext.ObjectStore(bucketName)
	if err != nil {
		return nil, fmt.Errorf("failed to bind to existing object store bucket '%s': %w", bucketName, err)
	}

	return store, nil
}

// Download retrieves an object by key.
func (s *AudioStore) Download(ctx context.Context, key string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("download of '%s' aborted: %w", key, err)
	}

	obj, err := s.store.Get(key)
	if err != nil {
		return nil, fmt.Errorf("failed to get object '%s' from bucket '%s': %w", key, s.bucket, err)
	}

	data, readErr := io.ReadAll(obj)
	closeErr := obj.Close()

	if readErr != nil {
		return nil, fmt.Errorf("failed to read object '%s': %w", key, readErr)
	}

	if closeErr != nil {
		return data, fmt.Errorf("failed to close object '%s': %w", key, closeErr)
	}

	return data, nil
}

// Upload stores data under key, overwriting any previous object.
func (s *AudioStore) Upload(ctx context.Context, key string, data []byte) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("upload of '%s' aborted: %w", key, err)
	}

	_, err := s.store.Put(&nats.ObjectMeta{Name: key}, bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("failed to put object '%s' to bucket '%s': %w", key, s.bucket, err)
	}

	return nil
}
