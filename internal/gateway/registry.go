package gateway

import (
	"context"

	"github.com/google/uuid"
	"github.com/minio/minio-go/v7/pkg/s3utils"
)

// Bucket is a tenant-visible bucket with its aggregate statistics.
type Bucket struct {
	Name    string    `json:"name"`
	Owner   uuid.UUID `json:"-"`
	Size    uint64    `json:"size"`
	Objects uint32    `json:"amountOfObjects"`
}

// CreateBucket creates the bucket and tags it with tenant. A bucket whose
// tag write fails is left behind untagged and the call reports
// KindInfrastructure; there is no rollback.
func (s *Service) CreateBucket(ctx context.Context, name string, tenant uuid.UUID) (Bucket, error) {
	if err := s3utils.CheckValidBucketNameStrict(name); err != nil {
		return Bucket{}, newError(KindInvalidRequest, err, "Invalid bucket name %s: %v", name, err)
	}
	if err := s.store.CreateBucket(ctx, name); err != nil {
		return Bucket{}, storeError(err, name)
	}
	if err := s.store.SetBucketTags(ctx, name, map[string]string{s.guard.tagKey: tenant.String()}); err != nil {
		s.log.Error("bucket created without ownership tag", "bucket", name, "tenant", tenant, "err", err)
		return Bucket{}, newError(KindInfrastructure, err, "Bucket %s was created but its ownership could not be recorded", name)
	}
	if s.mirror != nil {
		if err := s.mirror.Record(ctx, name, tenant); err != nil {
			s.log.Warn("bucket mirror insert failed", "bucket", name, "err", err)
		}
	}
	s.log.Info("bucket created", "bucket", name, "tenant", tenant)
	return Bucket{Name: name, Owner: tenant}, nil
}

// GetBucket returns the bucket with fresh statistics.
func (s *Service) GetBucket(ctx context.Context, name string, tenant uuid.UUID) (Bucket, error) {
	if err := s.requireBucket(ctx, name, tenant); err != nil {
		return Bucket{}, err
	}
	size, count, err := s.Aggregate(ctx, name)
	if err != nil {
		return Bucket{}, err
	}
	return Bucket{Name: name, Owner: tenant, Size: size, Objects: count}, nil
}

// ListBuckets returns every bucket tenant owns. Buckets failing the
// ownership check are skipped, as are buckets deleted mid-listing; any other
// store failure aborts the listing.
func (s *Service) ListBuckets(ctx context.Context, tenant uuid.UUID) ([]Bucket, error) {
	all, err := s.store.ListBuckets(ctx)
	if err != nil {
		return nil, storeError(err, "")
	}
	out := make([]Bucket, 0, len(all))
	for _, b := range all {
		if err := s.guard.VerifyOwnership(ctx, b.Name, tenant); err != nil {
			if skippable(err) {
				continue
			}
			return nil, err
		}
		size, count, err := s.Aggregate(ctx, b.Name)
		if err != nil {
			if skippable(err) {
				continue
			}
			return nil, err
		}
		out = append(out, Bucket{Name: b.Name, Owner: tenant, Size: size, Objects: count})
	}
	return out, nil
}

func skippable(err error) bool {
	k := KindOf(err)
	return k == KindOwnership || k == KindNotFound
}
