package s3

import (
	"context"
	"io"
	"net/url"
	"time"
)

// ObserveFunc receives the outcome of every store call made through
// Instrument.
type ObserveFunc func(op string, took time.Duration, err error)

type instrumented struct {
	next    Store
	timeout time.Duration
	observe ObserveFunc
}

// Instrument applies a per-call deadline to every store operation and reports
// each call to observe. A zero timeout leaves the caller's context untouched;
// observe may be nil.
//
// GetObject is observed but runs under the caller's context, since the body
// it returns is streamed after the call completes.
func Instrument(next Store, timeout time.Duration, observe ObserveFunc) Store {
	if timeout <= 0 && observe == nil {
		return next
	}
	return &instrumented{next: next, timeout: timeout, observe: observe}
}

func (s *instrumented) call(ctx context.Context, op string, fn func(context.Context) error) error {
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}
	start := time.Now()
	err := fn(ctx)
	if s.observe != nil {
		s.observe(op, time.Since(start), err)
	}
	return err
}

func (s *instrumented) ListBuckets(ctx context.Context) (out []BucketInfo, err error) {
	err = s.call(ctx, "list_buckets", func(ctx context.Context) error {
		out, err = s.next.ListBuckets(ctx)
		return err
	})
	return out, err
}

func (s *instrumented) BucketExists(ctx context.Context, bucket string) (ok bool, err error) {
	err = s.call(ctx, "bucket_exists", func(ctx context.Context) error {
		ok, err = s.next.BucketExists(ctx, bucket)
		return err
	})
	return ok, err
}

func (s *instrumented) CreateBucket(ctx context.Context, bucket string) error {
	return s.call(ctx, "create_bucket", func(ctx context.Context) error {
		return s.next.CreateBucket(ctx, bucket)
	})
}

func (s *instrumented) DeleteBucket(ctx context.Context, bucket string) error {
	return s.call(ctx, "delete_bucket", func(ctx context.Context) error {
		return s.next.DeleteBucket(ctx, bucket)
	})
}

func (s *instrumented) GetBucketTags(ctx context.Context, bucket string) (tags map[string]string, err error) {
	err = s.call(ctx, "get_bucket_tags", func(ctx context.Context) error {
		tags, err = s.next.GetBucketTags(ctx, bucket)
		return err
	})
	return tags, err
}

func (s *instrumented) SetBucketTags(ctx context.Context, bucket string, tags map[string]string) error {
	return s.call(ctx, "set_bucket_tags", func(ctx context.Context) error {
		return s.next.SetBucketTags(ctx, bucket, tags)
	})
}

func (s *instrumented) ListObjects(ctx context.Context, bucket, prefix string, recursive bool) (out []ObjectInfo, err error) {
	err = s.call(ctx, "list_objects", func(ctx context.Context) error {
		out, err = s.next.ListObjects(ctx, bucket, prefix, recursive)
		return err
	})
	return out, err
}

func (s *instrumented) GetObject(ctx context.Context, bucket, key string) (io.ReadCloser, ObjectInfo, error) {
	start := time.Now()
	rc, info, err := s.next.GetObject(ctx, bucket, key)
	if s.observe != nil {
		s.observe("get_object", time.Since(start), err)
	}
	return rc, info, err
}

func (s *instrumented) DeleteObject(ctx context.Context, bucket, key string) error {
	return s.call(ctx, "delete_object", func(ctx context.Context) error {
		return s.next.DeleteObject(ctx, bucket, key)
	})
}

func (s *instrumented) DeleteObjects(ctx context.Context, bucket string, keys []string) (out []DeleteResult, err error) {
	err = s.call(ctx, "delete_objects", func(ctx context.Context) error {
		out, err = s.next.DeleteObjects(ctx, bucket, keys)
		return err
	})
	return out, err
}

func (s *instrumented) PresignPut(ctx context.Context, bucket, key string, expiry time.Duration) (u *url.URL, err error) {
	err = s.call(ctx, "presign_put", func(ctx context.Context) error {
		u, err = s.next.PresignPut(ctx, bucket, key, expiry)
		return err
	})
	return u, err
}
