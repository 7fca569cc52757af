// Package s3test provides an in-memory s3.Store for tests. Presigned PUT URLs
// point at the store's own HTTP handler, so uploads can be exercised end to
// end with httptest.
package s3test

import (
	"bytes"
	"context"
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/arencloud/bucketgw/internal/s3"
	"github.com/minio/minio-go/v7/pkg/s3utils"
)

type object struct {
	data     []byte
	modified time.Time
}

type bucket struct {
	tags    map[string]string
	objects map[string]object
	created time.Time
}

// Store is a concurrency-safe in-memory s3.Store.
type Store struct {
	mu      sync.Mutex
	buckets map[string]*bucket
	// Endpoint is the base URL presigned URLs point at, e.g. an
	// httptest.Server wrapping Handler.
	Endpoint string
	// Fail makes the named operation ("ListBuckets", "GetBucketTags", ...)
	// return the given error.
	Fail map[string]error
	// FailKeys makes DeleteObjects report the given per-key errors.
	FailKeys map[string]error
	// Calls counts invocations by operation name.
	Calls map[string]int
}

var _ s3.Store = (*Store)(nil)

func New() *Store {
	return &Store{
		buckets:  map[string]*bucket{},
		Endpoint: "http://s3.test",
		Fail:     map[string]error{},
		FailKeys: map[string]error{},
		Calls:    map[string]int{},
	}
}

// enter records the call and returns the injected failure, if any.
// Callers must hold s.mu.
func (s *Store) enter(op string) error {
	s.Calls[op]++
	return s.Fail[op]
}

func (s *Store) get(name string) (*bucket, error) {
	b, ok := s.buckets[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", s3.ErrNoSuchBucket, name)
	}
	return b, nil
}

// AddBucket creates a bucket with the given tags, bypassing name validation.
func (s *Store) AddBucket(name string, tags map[string]string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t := map[string]string{}
	for k, v := range tags {
		t[k] = v
	}
	s.buckets[name] = &bucket{tags: t, objects: map[string]object{}, created: time.Now()}
}

// Put stores an object. Keys ending in '/' become directory markers.
func (s *Store) Put(bucketName, key string, data []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.buckets[bucketName]
	if !ok {
		panic("s3test: no bucket " + bucketName)
	}
	b.objects[key] = object{data: append([]byte(nil), data...), modified: time.Now().UTC()}
}

// PutSized stores an object of n zero bytes.
func (s *Store) PutSized(bucketName, key string, n int) { s.Put(bucketName, key, make([]byte, n)) }

// Object returns an object's bytes.
func (s *Store) Object(bucketName, key string) ([]byte, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.buckets[bucketName]
	if !ok {
		return nil, false
	}
	o, ok := b.objects[key]
	return o.data, ok
}

// Keys returns every key in a bucket, sorted.
func (s *Store) Keys(bucketName string) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.buckets[bucketName]
	if !ok {
		return nil
	}
	return sortedKeys(b.objects)
}

func (s *Store) HasBucket(name string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.buckets[name]
	return ok
}

func (s *Store) ListBuckets(ctx context.Context) ([]s3.BucketInfo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enter("ListBuckets"); err != nil {
		return nil, err
	}
	names := make([]string, 0, len(s.buckets))
	for n := range s.buckets {
		names = append(names, n)
	}
	sort.Strings(names)
	out := make([]s3.BucketInfo, 0, len(names))
	for _, n := range names {
		out = append(out, s3.BucketInfo{Name: n, CreationDate: s.buckets[n].created})
	}
	return out, nil
}

func (s *Store) BucketExists(ctx context.Context, name string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enter("BucketExists"); err != nil {
		return false, err
	}
	_, ok := s.buckets[name]
	return ok, nil
}

func (s *Store) CreateBucket(ctx context.Context, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enter("CreateBucket"); err != nil {
		return err
	}
	if err := s3utils.CheckValidBucketNameStrict(name); err != nil {
		return fmt.Errorf("%w: %w", s3.ErrInvalidBucketName, err)
	}
	if _, ok := s.buckets[name]; ok {
		return fmt.Errorf("%w: %s", s3.ErrBucketExists, name)
	}
	s.buckets[name] = &bucket{tags: map[string]string{}, objects: map[string]object{}, created: time.Now()}
	return nil
}

func (s *Store) DeleteBucket(ctx context.Context, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enter("DeleteBucket"); err != nil {
		return err
	}
	b, err := s.get(name)
	if err != nil {
		return err
	}
	if len(b.objects) > 0 {
		return fmt.Errorf("%w: %s", s3.ErrBucketNotEmpty, name)
	}
	delete(s.buckets, name)
	return nil
}

func (s *Store) GetBucketTags(ctx context.Context, name string) (map[string]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enter("GetBucketTags"); err != nil {
		return nil, err
	}
	b, err := s.get(name)
	if err != nil {
		return nil, err
	}
	out := make(map[string]string, len(b.tags))
	for k, v := range b.tags {
		out[k] = v
	}
	return out, nil
}

func (s *Store) SetBucketTags(ctx context.Context, name string, tags map[string]string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enter("SetBucketTags"); err != nil {
		return err
	}
	b, err := s.get(name)
	if err != nil {
		return err
	}
	b.tags = map[string]string{}
	for k, v := range tags {
		b.tags[k] = v
	}
	return nil
}

// ListObjects mimics S3: files of the level first, then common prefixes,
// each sorted lexically.
func (s *Store) ListObjects(ctx context.Context, name, prefix string, recursive bool) ([]s3.ObjectInfo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enter("ListObjects"); err != nil {
		return nil, err
	}
	b, err := s.get(name)
	if err != nil {
		return nil, err
	}
	var files []s3.ObjectInfo
	prefixes := map[string]struct{}{}
	for _, k := range sortedKeys(b.objects) {
		if !strings.HasPrefix(k, prefix) {
			continue
		}
		if !recursive {
			rest := k[len(prefix):]
			if i := strings.Index(rest, "/"); i >= 0 {
				prefixes[prefix+rest[:i+1]] = struct{}{}
				continue
			}
		}
		o := b.objects[k]
		files = append(files, s3.ObjectInfo{
			Key:          k,
			Size:         int64(len(o.data)),
			LastModified: o.modified,
			ETag:         etag(o.data),
			Owner:        s3.Owner{DisplayName: "s3test", ID: "s3test"},
			StorageClass: "STANDARD",
			IsLatest:     true,
			UserMetadata: map[string]string{},
			IsDir:        strings.HasSuffix(k, "/"),
		})
	}
	out := files
	for _, p := range sortedKeys(prefixes) {
		out = append(out, s3.ObjectInfo{Key: p, IsDir: true})
	}
	return out, nil
}

func (s *Store) GetObject(ctx context.Context, name, key string) (io.ReadCloser, s3.ObjectInfo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enter("GetObject"); err != nil {
		return nil, s3.ObjectInfo{}, err
	}
	b, err := s.get(name)
	if err != nil {
		return nil, s3.ObjectInfo{}, err
	}
	o, ok := b.objects[key]
	if !ok {
		return nil, s3.ObjectInfo{}, fmt.Errorf("%w: %s", s3.ErrNoSuchKey, key)
	}
	info := s3.ObjectInfo{Key: key, Size: int64(len(o.data)), LastModified: o.modified, ETag: etag(o.data)}
	return io.NopCloser(bytes.NewReader(o.data)), info, nil
}

func (s *Store) DeleteObject(ctx context.Context, name, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enter("DeleteObject"); err != nil {
		return err
	}
	b, err := s.get(name)
	if err != nil {
		return err
	}
	delete(b.objects, key)
	return nil
}

func (s *Store) DeleteObjects(ctx context.Context, name string, keys []string) ([]s3.DeleteResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enter("DeleteObjects"); err != nil {
		return nil, err
	}
	b, err := s.get(name)
	if err != nil {
		return nil, err
	}
	out := make([]s3.DeleteResult, 0, len(keys))
	for _, k := range keys {
		if ferr := s.FailKeys[k]; ferr != nil {
			out = append(out, s3.DeleteResult{Key: k, Err: ferr})
			continue
		}
		delete(b.objects, k)
		out = append(out, s3.DeleteResult{Key: k})
	}
	return out, nil
}

func (s *Store) PresignPut(ctx context.Context, name, key string, expiry time.Duration) (*url.URL, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enter("PresignPut"); err != nil {
		return nil, err
	}
	u, err := url.Parse(s.Endpoint)
	if err != nil {
		return nil, err
	}
	u.Path = "/" + name + "/" + key
	q := url.Values{}
	q.Set("X-Amz-Expires", strconv.Itoa(int(expiry.Seconds())))
	q.Set("X-Amz-Signature", "s3test")
	u.RawQuery = q.Encode()
	return u, nil
}

// Handler accepts PUTs against presigned URLs and stores the body. Requests
// without a Content-Length are rejected with 411, like S3 does.
func (s *Store) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPut {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		if r.URL.Query().Get("X-Amz-Signature") == "" {
			http.Error(w, "AccessDenied", http.StatusForbidden)
			return
		}
		if r.ContentLength < 0 {
			http.Error(w, "MissingContentLength", http.StatusLengthRequired)
			return
		}
		parts := strings.SplitN(strings.TrimPrefix(r.URL.Path, "/"), "/", 2)
		if len(parts) != 2 || parts[1] == "" {
			http.Error(w, "InvalidRequest", http.StatusBadRequest)
			return
		}
		data, err := io.ReadAll(r.Body)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		if !s.HasBucket(parts[0]) {
			http.Error(w, "NoSuchBucket", http.StatusNotFound)
			return
		}
		s.Put(parts[0], parts[1], data)
		w.Header().Set("ETag", `"`+etag(data)+`"`)
		w.WriteHeader(http.StatusOK)
	})
}

func etag(b []byte) string {
	sum := md5.Sum(b)
	return hex.EncodeToString(sum[:])
}

func sortedKeys[V any](m map[string]V) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
