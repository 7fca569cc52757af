package gateway

import (
	"context"
	"errors"
	"io"

	"github.com/arencloud/bucketgw/internal/keycodec"
	"github.com/arencloud/bucketgw/internal/s3"
	"github.com/google/uuid"
)

// Object is an open download. The caller must close Body.
type Object struct {
	Key  string
	Name string
	Info s3.ObjectInfo
	Body io.ReadCloser
}

// OpenObject resolves token to a key and opens it for streaming.
func (s *Service) OpenObject(ctx context.Context, bucket string, tenant uuid.UUID, token string) (*Object, error) {
	key, err := keycodec.Decode(token)
	if err != nil {
		return nil, newError(KindInvalidRequest, err, "Invalid object name %s", token)
	}
	if keycodec.IsDirectory(key) {
		return nil, newError(KindInvalidRequest, nil, "%s is a directory", key)
	}
	if err := s.requireBucket(ctx, bucket, tenant); err != nil {
		return nil, err
	}
	rc, info, err := s.store.GetObject(ctx, bucket, key)
	if err != nil {
		if errors.Is(err, s3.ErrNoSuchKey) {
			return nil, newError(KindNotFound, err, "Object with name %s not found", key)
		}
		return nil, storeError(err, bucket)
	}
	return &Object{Key: key, Name: keycodec.FileName(key), Info: info, Body: rc}, nil
}
