package api

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/arencloud/bucketgw/internal/gateway"
	"github.com/arencloud/bucketgw/internal/keycodec"
	"github.com/arencloud/bucketgw/internal/logging"
	"github.com/arencloud/bucketgw/internal/middleware"
	"github.com/arencloud/bucketgw/internal/probe"
	"github.com/arencloud/bucketgw/internal/s3/s3test"
	"github.com/arencloud/bucketgw/internal/tasks"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTenantHeaderRequired(t *testing.T) {
	env := setupTestServer(t)

	resp := env.do(t, http.MethodGet, "/buckets", "", nil, nil)
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	body := decode[errorBody](t, resp)
	assert.Equal(t, "InvalidRequest", body.Error)

	resp = env.do(t, http.MethodGet, "/buckets", "not-a-uuid", nil, nil)
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Zero(t, env.store.Calls["ListBuckets"])
}

func TestBucketLifecycle(t *testing.T) {
	env := setupTestServer(t)

	resp := env.doJSON(t, http.MethodPost, "/buckets", tenantX, map[string]string{"name": "lcab-bucket"}, nil)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	assert.Equal(t, "/buckets/lcab-bucket", resp.Header.Get("Location"))
	created := decode[createBucketResponse](t, resp)
	assert.Equal(t, "lcab-bucket", created.Name)
	assert.Equal(t, "/buckets/lcab-bucket", created.Links.Self.Href)

	env.store.Put("lcab-bucket", "report.pdf", bytes.Repeat([]byte("a"), 100))

	resp = env.do(t, http.MethodGet, "/buckets/lcab-bucket", tenantX, nil, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	got := decode[map[string]any](t, resp)
	assert.Equal(t, map[string]any{"name": "lcab-bucket", "size": float64(100), "amountOfObjects": float64(1)}, got)

	// another tenant sees exactly what a missing bucket looks like
	foreign := env.do(t, http.MethodGet, "/buckets/lcab-bucket", tenantY, nil, nil)
	missing := env.do(t, http.MethodGet, "/buckets/no-such-bucket", tenantY, nil, nil)
	require.Equal(t, http.StatusNotFound, foreign.StatusCode)
	require.Equal(t, http.StatusNotFound, missing.StatusCode)
	fb := decode[errorBody](t, foreign)
	assert.Equal(t, errorBody{Error: "NotFound", Message: "Bucket with name lcab-bucket not found"}, fb)
	assert.Equal(t, "NotFound", decode[errorBody](t, missing).Error)

	resp = env.do(t, http.MethodGet, "/buckets", tenantY, nil, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Empty(t, decode[[]map[string]any](t, resp))

	resp = env.do(t, http.MethodGet, "/buckets", tenantX, nil, nil)
	list := decode[[]map[string]any](t, resp)
	require.Len(t, list, 1)
	assert.Equal(t, "lcab-bucket", list[0]["name"])

	resp = env.do(t, http.MethodDelete, "/buckets/lcab-bucket", tenantX, nil, nil)
	require.Equal(t, http.StatusConflict, resp.StatusCode)
	assert.Equal(t,
		"Bucket not empty, consider emptying it or adding 'force-delete' header to your request",
		decode[errorBody](t, resp).Message)

	resp = env.do(t, http.MethodDelete, "/buckets/lcab-bucket", tenantX, nil, map[string]string{"force-delete": "maybe"})
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = env.do(t, http.MethodDelete, "/buckets/lcab-bucket", tenantY, nil, map[string]string{"force-delete": "true"})
	require.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.True(t, env.store.HasBucket("lcab-bucket"))

	resp = env.do(t, http.MethodDelete, "/buckets/lcab-bucket", tenantX, nil, map[string]string{"force-delete": "true"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, deleteBucketResponse{Name: "lcab-bucket"}, decode[deleteBucketResponse](t, resp))
	assert.False(t, env.store.HasBucket("lcab-bucket"))
}

func TestCreateBucketErrors(t *testing.T) {
	env := setupTestServer(t)
	env.store.AddBucket("taken", map[string]string{"projectId": tenantY})

	resp := env.doJSON(t, http.MethodPost, "/buckets", tenantX, map[string]string{"name": "taken"}, nil)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)

	resp = env.doJSON(t, http.MethodPost, "/buckets", tenantX, map[string]string{"name": "Bad_Name"}, nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = env.doJSON(t, http.MethodPost, "/buckets", tenantX, map[string]string{}, nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	env.store.Fail["CreateBucket"] = io.ErrUnexpectedEOF
	resp = env.doJSON(t, http.MethodPost, "/buckets", tenantX, map[string]string{"name": "fresh"}, nil)
	require.Equal(t, http.StatusInternalServerError, resp.StatusCode)
	assert.Equal(t, "Infrastructure", decode[errorBody](t, resp).Error)
}

func TestObjectRoundTrip(t *testing.T) {
	env := setupTestServer(t)
	env.store.AddBucket("docs", map[string]string{"projectId": tenantX})
	payload := bytes.Repeat([]byte("pdf"), 1000)

	body, ctype := multipartBody(t, "/reports/", "q1.pdf", payload)
	resp := env.do(t, http.MethodPost, "/buckets/docs/objects", tenantX, body, map[string]string{"Content-Type": ctype})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	up := decode[uploadResponse](t, resp)
	assert.Equal(t, "reports/q1.pdf", up.Name)
	assert.Equal(t, "/buckets/docs/objects/"+keycodec.Encode("reports/q1.pdf"), up.Links.Self.Href)

	stored, ok := env.store.Object("docs", "reports/q1.pdf")
	require.True(t, ok)
	assert.Equal(t, payload, stored)

	resp = env.do(t, http.MethodGet, up.Links.Self.Href, tenantX, nil, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "attachment; filename=q1.pdf", resp.Header.Get("Content-Disposition"))
	assert.Equal(t, "application/octet-stream", resp.Header.Get("Content-Type"))
	got, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, payload, got)

	resp = env.do(t, http.MethodGet, "/buckets/docs/objects/directory/"+keycodec.Encode("/"), tenantX, nil, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t,
		[]map[string]any{{"objectName": "reports/", "isDirectory": true}},
		decode[[]map[string]any](t, resp))

	resp = env.do(t, http.MethodGet, "/buckets/docs/objects/directory/"+keycodec.Encode("missing/"), tenantX, nil, nil)
	require.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, "Directory with name missing/ not found", decode[errorBody](t, resp).Message)

	resp = env.doJSON(t, http.MethodDelete, "/buckets/docs/objects", tenantX,
		[]string{keycodec.Encode("reports/q1.pdf")}, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	del := decode[map[string]any](t, resp)
	assert.Equal(t, "docs", del["bucketName"])
	assert.Equal(t, []any{map[string]any{"objectName": "reports/q1.pdf", "deleted": true}}, del["results"])
	assert.Empty(t, env.store.Keys("docs"))
}

func TestUploadWithoutFile(t *testing.T) {
	env := setupTestServer(t)
	env.store.AddBucket("docs", map[string]string{"projectId": tenantX})

	resp := env.do(t, http.MethodPost, "/buckets/docs/objects", tenantX,
		bytes.NewBufferString("objectPath=x"), map[string]string{"Content-Type": "application/x-www-form-urlencoded"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestDownloadTokenWithSlash(t *testing.T) {
	env := setupTestServer(t)
	env.store.AddBucket("docs", map[string]string{"projectId": tenantX})
	// "???>>>" encodes to "Pz8/Pj4+", which carries a '/' in the standard alphabet
	env.store.Put("docs", "???>>>", []byte("odd"))

	resp := env.do(t, http.MethodGet, "/buckets/docs/objects/Pz8%2FPj4%2B", tenantX, nil, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	got, _ := io.ReadAll(resp.Body)
	assert.Equal(t, "odd", string(got))

	resp = env.do(t, http.MethodGet, "/buckets/docs/objects/"+keycodec.Encode("nope.txt"), tenantX, nil, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestDeleteObjectsBadBody(t *testing.T) {
	env := setupTestServer(t)
	env.store.AddBucket("docs", map[string]string{"projectId": tenantX})

	resp := env.doJSON(t, http.MethodDelete, "/buckets/docs/objects", tenantX, map[string]string{"a": "b"}, nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = env.doJSON(t, http.MethodDelete, "/buckets/docs/objects", tenantX, []string{}, nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestPingPublishesProbe(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	env := setupTestServer(t, func(d *Deps) {
		d.Probe = probe.NewProducer(client, "probe", logging.Nop())
	})
	resp := env.do(t, http.MethodGet, "/ping", "", nil, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	items, err := mr.List("probe")
	require.NoError(t, err)
	assert.Equal(t, []string{probe.Message}, items)

	mr.Close()
	resp = env.do(t, http.MethodGet, "/ping", "", nil, nil)
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}

func TestRateLimitedTenant(t *testing.T) {
	env := setupTestServer(t, func(d *Deps) {
		d.Limiter = middleware.NewRateLimiter(0.001, 1, logging.Nop())
	})

	first := env.do(t, http.MethodGet, "/buckets", tenantX, nil, nil)
	second := env.do(t, http.MethodGet, "/buckets", tenantX, nil, nil)
	other := env.do(t, http.MethodGet, "/buckets", tenantY, nil, nil)
	assert.Equal(t, http.StatusOK, first.StatusCode)
	assert.Equal(t, http.StatusTooManyRequests, second.StatusCode)
	assert.NotEmpty(t, second.Header.Get("Retry-After"))
	assert.Equal(t, http.StatusOK, other.StatusCode)
}

func TestCreateRunsOnTaskRunner(t *testing.T) {
	env := setupTestServer(t)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	// fill both worker slots so the create has to wait for its turn
	release := make(chan struct{})
	started := make(chan struct{}, 2)
	for range 2 {
		tasks.Submit(env.deps.Runner, ctx, "block", func(context.Context) (struct{}, error) {
			started <- struct{}{}
			<-release
			return struct{}{}, nil
		})
	}
	<-started
	<-started
	req, err := http.NewRequest(http.MethodPost, env.srv.URL+"/buckets", bytes.NewBufferString(`{"name":"queued"}`))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(middleware.TenantHeader, tenantX)
	done := make(chan int, 1)
	go func() {
		resp, err := http.DefaultClient.Do(req)
		if err != nil {
			done <- 0
			return
		}
		resp.Body.Close()
		done <- resp.StatusCode
	}()
	select {
	case <-done:
		t.Fatal("create finished while the runner was saturated")
	case <-time.After(50 * time.Millisecond):
	}
	close(release)
	assert.Equal(t, http.StatusCreated, <-done)
	assert.True(t, env.store.HasBucket("queued"))
}

// pausingStore holds CreateBucket until the test lets it go, and fails tag
// writes on a cancelled context like a networked client would.
type pausingStore struct {
	*s3test.Store
	created chan struct{}
	proceed chan struct{}
}

func (p *pausingStore) CreateBucket(ctx context.Context, name string) error {
	if err := p.Store.CreateBucket(ctx, name); err != nil {
		return err
	}
	close(p.created)
	<-p.proceed
	return nil
}

func (p *pausingStore) SetBucketTags(ctx context.Context, name string, tags map[string]string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return p.Store.SetBucketTags(ctx, name, tags)
}

func TestCreateSurvivesClientDisconnect(t *testing.T) {
	var paused *pausingStore
	env := setupTestServer(t, func(d *Deps) {
		paused = &pausingStore{created: make(chan struct{}), proceed: make(chan struct{})}
		d.Service = gateway.New(paused, gateway.Options{Logger: logging.Nop()})
	})
	paused.Store = env.store

	ctx, cancel := context.WithCancel(context.Background())
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, env.srv.URL+"/buckets", bytes.NewBufferString(`{"name":"sturdy-bucket"}`))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(middleware.TenantHeader, tenantX)
	done := make(chan error, 1)
	go func() {
		resp, err := http.DefaultClient.Do(req)
		if err == nil {
			resp.Body.Close()
		}
		done <- err
	}()

	<-paused.created
	cancel()
	require.Error(t, <-done)
	// give the server time to notice the closed connection
	time.Sleep(100 * time.Millisecond)
	close(paused.proceed)

	require.Eventually(t, func() bool {
		tags, err := env.store.GetBucketTags(context.Background(), "sturdy-bucket")
		return err == nil && tags["projectId"] == tenantX
	}, 2*time.Second, 10*time.Millisecond)

	resp := env.do(t, http.MethodGet, "/buckets/sturdy-bucket", tenantX, nil, nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}
