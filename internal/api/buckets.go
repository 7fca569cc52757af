package api

import (
	"context"
	"net/http"
	"strconv"

	"github.com/arencloud/bucketgw/internal/gateway"
	"github.com/arencloud/bucketgw/internal/tasks"
	"github.com/gin-gonic/gin"
)

const forceDeleteHeader = "force-delete"

type link struct {
	Href string `json:"href"`
}

type links struct {
	Self link `json:"self"`
}

type createBucketRequest struct {
	Name string `json:"name" binding:"required"`
}

type createBucketResponse struct {
	Name  string `json:"name"`
	Links links  `json:"_links"`
}

type deleteBucketResponse struct {
	Name string `json:"name"`
}

func bucketHref(name string) string { return "/buckets/" + name }

// createBucket runs on the task runner; the handler waits for the result.
// A client that disconnects after the task started does not cancel it, so
// the bucket never ends up created but untagged.
func (h *handler) createBucket(c *gin.Context) {
	var in createBucketRequest
	if err := c.ShouldBindJSON(&in); err != nil {
		badRequest(c, "Request body must be {\"name\": \"<bucket name>\"}")
		return
	}
	tenant := tenantOf(c)
	f := tasks.SubmitDetached(h.runner, c.Request.Context(), "bucket.create", func(ctx context.Context) (gateway.Bucket, error) {
		return h.svc.CreateBucket(ctx, in.Name, tenant)
	})
	b, err := f.Await(c.Request.Context())
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	href := bucketHref(b.Name)
	c.Header("Location", href)
	c.JSON(http.StatusCreated, createBucketResponse{Name: b.Name, Links: links{Self: link{Href: href}}})
}

func (h *handler) listBuckets(c *gin.Context) {
	out, err := h.svc.ListBuckets(c.Request.Context(), tenantOf(c))
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, out)
}

func (h *handler) getBucket(c *gin.Context) {
	b, err := h.svc.GetBucket(c.Request.Context(), c.Param("bucketName"), tenantOf(c))
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, b)
}

func (h *handler) deleteBucket(c *gin.Context) {
	force := false
	if raw := c.GetHeader(forceDeleteHeader); raw != "" {
		v, err := strconv.ParseBool(raw)
		if err != nil {
			badRequest(c, "Header "+forceDeleteHeader+" must be true or false")
			return
		}
		force = v
	}
	name, tenant := c.Param("bucketName"), tenantOf(c)
	f := tasks.SubmitDetached(h.runner, c.Request.Context(), "bucket.delete", func(ctx context.Context) (gateway.Bucket, error) {
		return h.svc.DeleteBucket(ctx, name, tenant, force)
	})
	b, err := f.Await(c.Request.Context())
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, deleteBucketResponse{Name: b.Name})
}
