package gateway

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
)

// UploadTicket is a short-lived write grant for one key. It is never stored.
type UploadTicket struct {
	URL       *url.URL
	Bucket    string
	Key       string
	ExpiresAt time.Time
}

// Uploader streams payloads to presigned URLs.
type Uploader struct {
	client  *http.Client
	timeout time.Duration
}

// NewUploader uses http.DefaultClient when client is nil. A positive timeout
// bounds each PUT on top of the caller's context.
func NewUploader(client *http.Client, timeout time.Duration) *Uploader {
	if client == nil {
		client = http.DefaultClient
	}
	return &Uploader{client: client, timeout: timeout}
}

// Put sends body to the ticket's URL. size must be the exact payload length;
// the body is streamed, never buffered. Rejections by the store (4xx) are
// KindInvalidRequest, everything else KindInfrastructure.
func (u *Uploader) Put(ctx context.Context, t UploadTicket, body io.Reader, size int64, contentType string) error {
	if size < 0 {
		return newError(KindInvalidRequest, nil, "Upload size of %s is unknown", t.Key)
	}
	if u.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, u.timeout)
		defer cancel()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, t.URL.String(), body)
	if err != nil {
		return newError(KindInfrastructure, err, "Could not prepare upload of %s", t.Key)
	}
	req.ContentLength = size
	if size == 0 {
		req.Body = http.NoBody
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	resp, err := u.client.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return newError(KindInfrastructure, err, "Upload of %s timed out", t.Key)
		}
		return newError(KindInfrastructure, err, "Upload of %s failed", t.Key)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 300 {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	detail, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
	cause := fmt.Errorf("object store answered %s: %s", resp.Status, strings.TrimSpace(string(detail)))
	if resp.StatusCode < 500 {
		return newError(KindInvalidRequest, cause, "Upload of %s was rejected by the object store", t.Key)
	}
	return newError(KindInfrastructure, cause, "Upload of %s failed", t.Key)
}

// IssueUploadTicket presigns a PUT for key in bucket, valid for the
// configured expiry.
func (s *Service) IssueUploadTicket(ctx context.Context, bucket string, tenant uuid.UUID, key string) (UploadTicket, error) {
	if key == "" || strings.HasSuffix(key, "/") {
		return UploadTicket{}, newError(KindInvalidRequest, nil, "Invalid object name %q", key)
	}
	if err := s.requireBucket(ctx, bucket, tenant); err != nil {
		return UploadTicket{}, err
	}
	issued := time.Now()
	u, err := s.store.PresignPut(ctx, bucket, key, s.expiry)
	if err != nil {
		return UploadTicket{}, storeError(err, bucket)
	}
	return UploadTicket{URL: u, Bucket: bucket, Key: key, ExpiresAt: issued.Add(s.expiry)}, nil
}

// Upload issues a ticket for key and streams body through it.
func (s *Service) Upload(ctx context.Context, bucket string, tenant uuid.UUID, key string, body io.Reader, size int64, contentType string) (UploadTicket, error) {
	t, err := s.IssueUploadTicket(ctx, bucket, tenant, key)
	if err != nil {
		return UploadTicket{}, err
	}
	if err := s.uploader.Put(ctx, t, body, size, contentType); err != nil {
		s.log.Warn("upload failed", "bucket", bucket, "key", key, "err", err)
		return UploadTicket{}, err
	}
	s.log.Info("object uploaded", "bucket", bucket, "key", key, "size", size)
	return t, nil
}
