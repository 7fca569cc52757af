package gateway

import (
	"context"

	"github.com/dustin/go-humanize"
)

// Aggregate walks the full listing of bucket and returns the total size and
// number of objects. Directory markers count towards neither. Nothing is
// cached; every call re-lists.
func (s *Service) Aggregate(ctx context.Context, bucket string) (uint64, uint32, error) {
	objs, err := s.store.ListObjects(ctx, bucket, "", true)
	if err != nil {
		return 0, 0, storeError(err, bucket)
	}
	var size uint64
	var count uint32
	for _, o := range objs {
		if o.IsDir {
			continue
		}
		if o.Size > 0 {
			size += uint64(o.Size)
		}
		count++
	}
	s.log.Debug("bucket aggregated", "bucket", bucket, "objects", count, "size", humanize.IBytes(size))
	return size, count, nil
}
