// Package s3 wraps the S3-compatible object store behind a small Store
// interface. Two backends are provided: minio-go (default) and aws-sdk-go-v2.
package s3

import (
	"context"
	"errors"
	"io"
	"net/url"
	"strings"
	"time"
)

// Backend failures the gateway needs to tell apart. Backends wrap the raw
// client error so errors.Is works on these sentinels.
var (
	ErrNoSuchBucket      = errors.New("bucket does not exist")
	ErrBucketExists      = errors.New("bucket already exists")
	ErrInvalidBucketName = errors.New("invalid bucket name")
	ErrNoSuchKey         = errors.New("object does not exist")
	ErrBucketNotEmpty    = errors.New("bucket not empty")
)

type BucketInfo struct {
	Name         string
	CreationDate time.Time
}

type Owner struct {
	DisplayName string `json:"name,omitempty"`
	ID          string `json:"id,omitempty"`
}

// ObjectInfo is one listing entry. IsDir marks a common prefix or a
// zero-byte placeholder whose key ends in '/'.
type ObjectInfo struct {
	Key          string
	Size         int64
	LastModified time.Time
	ETag         string
	Owner        Owner
	StorageClass string
	IsLatest     bool
	VersionID    string
	UserMetadata map[string]string
	IsDir        bool
}

// DeleteResult is the store's verdict for one key of a batched removal.
type DeleteResult struct {
	Key string
	Err error
}

type Store interface {
	ListBuckets(ctx context.Context) ([]BucketInfo, error)
	BucketExists(ctx context.Context, bucket string) (bool, error)
	CreateBucket(ctx context.Context, bucket string) error
	DeleteBucket(ctx context.Context, bucket string) error

	// GetBucketTags returns an empty map when the bucket carries no tags.
	GetBucketTags(ctx context.Context, bucket string) (map[string]string, error)
	SetBucketTags(ctx context.Context, bucket string, tags map[string]string) error

	// ListObjects lists every entry under prefix. A non-recursive listing
	// returns one level only, with sub-prefixes reported as IsDir entries.
	ListObjects(ctx context.Context, bucket, prefix string, recursive bool) ([]ObjectInfo, error)
	// GetObject stats the object first so a missing key fails before any
	// bytes are streamed.
	GetObject(ctx context.Context, bucket, key string) (io.ReadCloser, ObjectInfo, error)
	DeleteObject(ctx context.Context, bucket, key string) error
	// DeleteObjects removes keys in one batch and returns one result per key.
	DeleteObjects(ctx context.Context, bucket string, keys []string) ([]DeleteResult, error)

	PresignPut(ctx context.Context, bucket, key string, expiry time.Duration) (*url.URL, error)
}

// Options configures either backend.
type Options struct {
	Driver    string // minio|aws
	Endpoint  string
	AccessKey string
	SecretKey string
	Region    string
	UseSSL    bool
}

// Open builds the backend selected by opts.Driver.
func Open(opts Options) (Store, error) {
	switch strings.ToLower(opts.Driver) {
	case "aws":
		return NewAWS(opts)
	case "", "minio":
		return NewMinio(opts)
	default:
		return nil, errors.New("s3: unknown driver " + opts.Driver)
	}
}

func isDirKey(key string) bool { return strings.HasSuffix(key, "/") }

func normalizeEndpoint(endpoint string, useSSL bool) (host string, secure bool) {
	secure = useSSL
	if endpoint == "" {
		return "", secure
	}
	// scheme wins over the useSSL flag
	if strings.HasPrefix(endpoint, "http://") || strings.HasPrefix(endpoint, "https://") {
		if u, err := url.Parse(endpoint); err == nil {
			return u.Host, u.Scheme == "https"
		}
	}
	return endpoint, secure
}
