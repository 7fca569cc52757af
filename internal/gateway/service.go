// Package gateway holds the tenant-scoped bucket and object operations that
// sit between the REST surface and the object store: ownership checks,
// bucket lifecycle, aggregate statistics, directory listings, deletion and
// presigned uploads.
package gateway

import (
	"context"
	"net/http"
	"time"

	"github.com/arencloud/bucketgw/internal/logging"
	"github.com/arencloud/bucketgw/internal/s3"
	"github.com/google/uuid"
)

// DefaultUploadExpiry is the lifetime of a presigned upload URL.
const DefaultUploadExpiry = time.Hour

// Mirror keeps the optional bucket side table in step with the store.
// Failures are logged by the gateway and never fail the primary operation.
type Mirror interface {
	Record(ctx context.Context, bucket string, tenant uuid.UUID) error
	Forget(ctx context.Context, bucket string) error
}

type Options struct {
	// TagKey is the bucket tag holding the owner's tenant id.
	TagKey string
	// UploadExpiry is how long a presigned upload URL stays valid.
	UploadExpiry time.Duration
	// UploadTimeout bounds the outbound PUT; zero leaves it to the caller's context.
	UploadTimeout time.Duration
	// HTTPClient performs uploads against presigned URLs.
	HTTPClient *http.Client
	Mirror     Mirror
	Logger     logging.Logger
}

// Service is safe for concurrent use; it holds no per-request state.
type Service struct {
	store    s3.Store
	guard    *Guard
	mirror   Mirror
	uploader *Uploader
	expiry   time.Duration
	log      logging.Logger
}

// New wires a Service over store. Per-call store deadlines are the store's
// concern, see s3.Instrument.
func New(store s3.Store, opts Options) *Service {
	if opts.TagKey == "" {
		opts.TagKey = "projectId"
	}
	if opts.UploadExpiry <= 0 {
		opts.UploadExpiry = DefaultUploadExpiry
	}
	if opts.Logger == nil {
		opts.Logger = logging.Nop()
	}
	return &Service{
		store:    store,
		guard:    NewGuard(store, opts.TagKey),
		mirror:   opts.Mirror,
		uploader: NewUploader(opts.HTTPClient, opts.UploadTimeout),
		expiry:   opts.UploadExpiry,
		log:      opts.Logger.With("component", "gateway"),
	}
}

// Guard exposes the ownership guard for callers that only need the check.
func (s *Service) Guard() *Guard { return s.guard }

// requireBucket verifies existence, then ownership.
func (s *Service) requireBucket(ctx context.Context, bucket string, tenant uuid.UUID) error {
	ok, err := s.store.BucketExists(ctx, bucket)
	if err != nil {
		return storeError(err, bucket)
	}
	if !ok {
		return bucketNotFound(bucket, nil)
	}
	if err := s.guard.VerifyOwnership(ctx, bucket, tenant); err != nil {
		if KindOf(err) == KindOwnership {
			s.log.Debug("ownership check failed", "bucket", bucket, "tenant", tenant, "err", err)
		}
		return err
	}
	return nil
}
