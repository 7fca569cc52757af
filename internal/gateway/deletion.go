package gateway

import (
	"context"
	"fmt"

	"github.com/arencloud/bucketgw/internal/keycodec"
	"github.com/google/uuid"
)

const notEmptyMsg = "Bucket not empty, consider emptying it or adding 'force-delete' header to your request"

// DeleteOutcome is the verdict for one requested key.
type DeleteOutcome struct {
	Key     string `json:"objectName"`
	Deleted bool   `json:"deleted"`
	Error   string `json:"error,omitempty"`
}

// DeleteBucket removes bucket. Unless force is set the bucket must already
// be empty; with force every object is removed one by one first. The
// emptiness check and the removal are not atomic, a concurrent writer can
// still make the final removal fail with KindConflict.
func (s *Service) DeleteBucket(ctx context.Context, name string, tenant uuid.UUID, force bool) (Bucket, error) {
	if err := s.requireBucket(ctx, name, tenant); err != nil {
		return Bucket{}, err
	}
	objs, err := s.store.ListObjects(ctx, name, "", true)
	if err != nil {
		return Bucket{}, storeError(err, name)
	}
	if force && len(objs) > 0 {
		for _, o := range objs {
			if err := s.store.DeleteObject(ctx, name, o.Key); err != nil {
				return Bucket{}, storeError(err, name)
			}
		}
		s.log.Info("bucket emptied", "bucket", name, "objects", len(objs))
		if objs, err = s.store.ListObjects(ctx, name, "", true); err != nil {
			return Bucket{}, storeError(err, name)
		}
	}
	if len(objs) > 0 {
		return Bucket{}, newError(KindConflict, nil, notEmptyMsg)
	}
	if err := s.store.DeleteBucket(ctx, name); err != nil {
		return Bucket{}, storeError(err, name)
	}
	if s.mirror != nil {
		if err := s.mirror.Forget(ctx, name); err != nil {
			s.log.Warn("bucket mirror cleanup failed", "bucket", name, "err", err)
		}
	}
	s.log.Info("bucket deleted", "bucket", name, "tenant", tenant, "force", force)
	return Bucket{Name: name, Owner: tenant}, nil
}

// DeleteObjects removes the objects named by tokens in one batch. Tokens
// denoting directories have everything under them removed first; a directory
// that cannot be emptied is reported as failed and left out of the batch.
// Per-key store failures are reported in the outcomes, in request order.
func (s *Service) DeleteObjects(ctx context.Context, bucket string, tenant uuid.UUID, tokens []string) ([]DeleteOutcome, error) {
	if len(tokens) == 0 {
		return nil, newError(KindInvalidRequest, nil, "No object names given")
	}
	keys := make([]string, len(tokens))
	for i, t := range tokens {
		k, err := keycodec.Decode(t)
		if err != nil {
			return nil, newError(KindInvalidRequest, err, "Invalid object name %s", t)
		}
		keys[i] = k
	}
	if err := s.requireBucket(ctx, bucket, tenant); err != nil {
		return nil, err
	}

	failed := map[string]string{}
	batch := make([]string, 0, len(keys))
	for _, k := range keys {
		if keycodec.IsDirectory(k) {
			if err := s.emptyDirectory(ctx, bucket, k); err != nil {
				failed[k] = err.Error()
				continue
			}
		}
		batch = append(batch, k)
	}

	deleted := map[string]bool{}
	if len(batch) > 0 {
		res, err := s.store.DeleteObjects(ctx, bucket, batch)
		if err != nil {
			return nil, storeError(err, bucket)
		}
		for _, r := range res {
			if r.Err != nil {
				failed[r.Key] = r.Err.Error()
				continue
			}
			deleted[r.Key] = true
		}
	}

	out := make([]DeleteOutcome, 0, len(keys))
	for _, k := range keys {
		o := DeleteOutcome{Key: k, Deleted: deleted[k]}
		if msg, ok := failed[k]; ok {
			o.Deleted, o.Error = false, msg
		}
		out = append(out, o)
	}
	s.log.Info("objects deleted", "bucket", bucket, "requested", len(keys), "failed", len(failed))
	return out, nil
}

// emptyDirectory removes everything under dir except dir's own marker, which
// goes out with the caller's batch.
func (s *Service) emptyDirectory(ctx context.Context, bucket, dir string) error {
	objs, err := s.store.ListObjects(ctx, bucket, dir, true)
	if err != nil {
		return err
	}
	keys := make([]string, 0, len(objs))
	for _, o := range objs {
		if o.Key != dir {
			keys = append(keys, o.Key)
		}
	}
	if len(keys) == 0 {
		return nil
	}
	res, err := s.store.DeleteObjects(ctx, bucket, keys)
	if err != nil {
		return err
	}
	n := 0
	for _, r := range res {
		if r.Err != nil {
			n++
		}
	}
	if n > 0 {
		return fmt.Errorf("%d object(s) under %s could not be removed", n, dir)
	}
	return nil
}
