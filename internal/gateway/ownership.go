package gateway

import (
	"context"
	"errors"

	"github.com/arencloud/bucketgw/internal/s3"
	"github.com/google/uuid"
)

// Reasons an ownership check fails. They are wrapped in a KindOwnership Error.
var (
	ErrNoTenantTag      = errors.New("no tenant tag")
	ErrUnparsableTenant = errors.New("unparsable tenant id")
	ErrTenantMismatch   = errors.New("tenant mismatch")
)

// Guard compares a bucket's ownership tag with the calling tenant.
type Guard struct {
	store  s3.Store
	tagKey string
}

func NewGuard(store s3.Store, tagKey string) *Guard {
	return &Guard{store: store, tagKey: tagKey}
}

// VerifyOwnership fails closed: a missing or malformed tag denies every
// tenant. Store failures come back as KindInfrastructure (or KindNotFound
// when the bucket vanished), never as KindOwnership.
func (g *Guard) VerifyOwnership(ctx context.Context, bucket string, tenant uuid.UUID) error {
	tags, err := g.store.GetBucketTags(ctx, bucket)
	if err != nil {
		return storeError(err, bucket)
	}
	raw, ok := tags[g.tagKey]
	if !ok {
		return denied(bucket, ErrNoTenantTag)
	}
	owner, err := uuid.Parse(raw)
	if err != nil {
		return denied(bucket, ErrUnparsableTenant)
	}
	if owner != tenant {
		return denied(bucket, ErrTenantMismatch)
	}
	return nil
}

// denied uses the not-found wording so a foreign bucket is indistinguishable
// from a missing one.
func denied(bucket string, reason error) *Error {
	return newError(KindOwnership, reason, "Bucket with name %s not found", bucket)
}
