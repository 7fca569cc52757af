package s3

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"time"

	minio "github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/minio/minio-go/v7/pkg/tags"
)

// Client is the minio-go backed Store.
type Client struct{ mc *minio.Client }

var _ Store = (*Client)(nil)

func NewMinio(opts Options) (*Client, error) {
	endpoint, secure := normalizeEndpoint(opts.Endpoint, opts.UseSSL)
	mc, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(opts.AccessKey, opts.SecretKey, ""),
		Secure: secure,
		Region: opts.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("s3: minio client for %q: %w", opts.Endpoint, err)
	}
	return &Client{mc: mc}, nil
}

// classifyMinio maps minio error codes onto the package sentinels.
func classifyMinio(err error) error {
	if err == nil {
		return nil
	}
	switch minio.ToErrorResponse(err).Code {
	case "NoSuchBucket":
		return fmt.Errorf("%w: %w", ErrNoSuchBucket, err)
	case "BucketAlreadyExists", "BucketAlreadyOwnedByYou":
		return fmt.Errorf("%w: %w", ErrBucketExists, err)
	case "InvalidBucketName":
		return fmt.Errorf("%w: %w", ErrInvalidBucketName, err)
	case "NoSuchKey":
		return fmt.Errorf("%w: %w", ErrNoSuchKey, err)
	case "BucketNotEmpty":
		return fmt.Errorf("%w: %w", ErrBucketNotEmpty, err)
	}
	return err
}

func isNoTagSet(err error) bool {
	code := minio.ToErrorResponse(err).Code
	return code == "NoSuchTagSet" || code == "NoSuchTagSetError"
}

func (c *Client) ListBuckets(ctx context.Context) ([]BucketInfo, error) {
	items, err := c.mc.ListBuckets(ctx)
	if err != nil {
		return nil, classifyMinio(err)
	}
	out := make([]BucketInfo, 0, len(items))
	for _, b := range items {
		out = append(out, BucketInfo{Name: b.Name, CreationDate: b.CreationDate})
	}
	return out, nil
}

func (c *Client) BucketExists(ctx context.Context, bucket string) (bool, error) {
	ok, err := c.mc.BucketExists(ctx, bucket)
	return ok, classifyMinio(err)
}

func (c *Client) CreateBucket(ctx context.Context, bucket string) error {
	return classifyMinio(c.mc.MakeBucket(ctx, bucket, minio.MakeBucketOptions{}))
}

func (c *Client) DeleteBucket(ctx context.Context, bucket string) error {
	return classifyMinio(c.mc.RemoveBucket(ctx, bucket))
}

func (c *Client) GetBucketTags(ctx context.Context, bucket string) (map[string]string, error) {
	t, err := c.mc.GetBucketTagging(ctx, bucket)
	if err != nil {
		if isNoTagSet(err) {
			return map[string]string{}, nil
		}
		return nil, classifyMinio(err)
	}
	return t.ToMap(), nil
}

func (c *Client) SetBucketTags(ctx context.Context, bucket string, m map[string]string) error {
	t, err := tags.NewTags(m, false)
	if err != nil {
		return fmt.Errorf("s3: bucket tags: %w", err)
	}
	return classifyMinio(c.mc.SetBucketTagging(ctx, bucket, t))
}

func (c *Client) ListObjects(ctx context.Context, bucket, prefix string, recursive bool) ([]ObjectInfo, error) {
	var out []ObjectInfo
	for obj := range c.mc.ListObjects(ctx, bucket, minio.ListObjectsOptions{Prefix: prefix, Recursive: recursive}) {
		if obj.Err != nil {
			return nil, classifyMinio(obj.Err)
		}
		out = append(out, fromMinio(obj))
	}
	return out, nil
}

func fromMinio(o minio.ObjectInfo) ObjectInfo {
	return ObjectInfo{
		Key:          o.Key,
		Size:         o.Size,
		LastModified: o.LastModified,
		ETag:         o.ETag,
		Owner:        Owner{DisplayName: o.Owner.DisplayName, ID: o.Owner.ID},
		StorageClass: o.StorageClass,
		IsLatest:     o.IsLatest,
		VersionID:    o.VersionID,
		UserMetadata: o.UserMetadata,
		IsDir:        isDirKey(o.Key),
	}
}

func (c *Client) GetObject(ctx context.Context, bucket, key string) (io.ReadCloser, ObjectInfo, error) {
	info, err := c.mc.StatObject(ctx, bucket, key, minio.StatObjectOptions{})
	if err != nil {
		return nil, ObjectInfo{}, classifyMinio(err)
	}
	rc, err := c.mc.GetObject(ctx, bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, ObjectInfo{}, classifyMinio(err)
	}
	return rc, fromMinio(info), nil
}

func (c *Client) DeleteObject(ctx context.Context, bucket, key string) error {
	return classifyMinio(c.mc.RemoveObject(ctx, bucket, key, minio.RemoveObjectOptions{}))
}

func (c *Client) DeleteObjects(ctx context.Context, bucket string, keys []string) ([]DeleteResult, error) {
	objects := make(chan minio.ObjectInfo, len(keys))
	for _, k := range keys {
		objects <- minio.ObjectInfo{Key: k}
	}
	close(objects)

	failed := map[string]error{}
	for rerr := range c.mc.RemoveObjects(ctx, bucket, objects, minio.RemoveObjectsOptions{}) {
		failed[rerr.ObjectName] = classifyMinio(rerr.Err)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	out := make([]DeleteResult, 0, len(keys))
	for _, k := range keys {
		out = append(out, DeleteResult{Key: k, Err: failed[k]})
	}
	return out, nil
}

func (c *Client) PresignPut(ctx context.Context, bucket, key string, expiry time.Duration) (*url.URL, error) {
	u, err := c.mc.PresignedPutObject(ctx, bucket, key, expiry)
	return u, classifyMinio(err)
}
