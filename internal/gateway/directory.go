package gateway

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/arencloud/bucketgw/internal/keycodec"
	"github.com/arencloud/bucketgw/internal/s3"
	"github.com/google/uuid"
)

// Item is one entry of a directory listing. Directory items serialize only
// their name and the directory flag.
type Item struct {
	ETag         string            `json:"etag"`
	ObjectName   string            `json:"objectName"`
	LastModified time.Time         `json:"lastModified"`
	Owner        s3.Owner          `json:"owner"`
	Size         int64             `json:"size"`
	StorageClass string            `json:"storageClass"`
	IsLatest     bool              `json:"isLatest"`
	VersionID    string            `json:"versionId"`
	UserMetadata map[string]string `json:"userMetadata"`
	IsDirectory  bool              `json:"isDirectory"`
}

func (i Item) MarshalJSON() ([]byte, error) {
	if i.IsDirectory {
		return json.Marshal(struct {
			ObjectName  string `json:"objectName"`
			IsDirectory bool   `json:"isDirectory"`
		}{i.ObjectName, true})
	}
	type plain Item
	return json.Marshal(plain(i))
}

func itemOf(o s3.ObjectInfo) Item {
	if o.IsDir {
		return Item{ObjectName: o.Key, IsDirectory: true}
	}
	return Item{
		ETag:         o.ETag,
		ObjectName:   o.Key,
		LastModified: o.LastModified,
		Owner:        o.Owner,
		Size:         o.Size,
		StorageClass: o.StorageClass,
		IsLatest:     o.IsLatest,
		VersionID:    o.VersionID,
		UserMetadata: o.UserMetadata,
	}
}

// ListDirectory returns one level of bucket under the directory encoded in
// token, files first, in store order. The token "/" is the bucket root.
//
// A directory that has neither entries nor a marker object is NotFound; the
// root of an empty bucket is an empty listing.
func (s *Service) ListDirectory(ctx context.Context, bucket string, tenant uuid.UUID, token string) ([]Item, error) {
	dir, err := keycodec.Decode(token)
	if err != nil {
		return nil, newError(KindInvalidRequest, err, "Invalid directory name %s", token)
	}
	if err := s.requireBucket(ctx, bucket, tenant); err != nil {
		return nil, err
	}
	prefix := dir
	if dir == "/" {
		prefix = ""
	} else if !strings.HasSuffix(prefix, "/") {
		prefix += "/"
	}
	objs, err := s.store.ListObjects(ctx, bucket, prefix, false)
	if err != nil {
		return nil, storeError(err, bucket)
	}
	items := make([]Item, 0, len(objs))
	marker := false
	for _, o := range objs {
		if prefix != "" && o.Key == prefix {
			// the directory's own marker object
			marker = true
			continue
		}
		items = append(items, itemOf(o))
	}
	if len(items) == 0 && prefix != "" && !marker {
		return nil, newError(KindNotFound, nil, "Directory with name %s not found", dir)
	}
	return items, nil
}
