package api

import (
	"io"
	"mime"
	"net/http"
	"path"
	"strconv"
	"strings"

	"github.com/arencloud/bucketgw/internal/gateway"
	"github.com/arencloud/bucketgw/internal/keycodec"
	"github.com/gin-gonic/gin"
)

type uploadResponse struct {
	Name  string `json:"name"`
	Links links  `json:"_links"`
}

type deleteObjectsResponse struct {
	BucketName string                  `json:"bucketName"`
	Results    []gateway.DeleteOutcome `json:"results"`
}

func objectHref(bucket, key string) string {
	return bucketHref(bucket) + "/objects/" + keycodec.Encode(key)
}

// uploadKey joins the optional objectPath form field and the file name.
func uploadKey(objectPath, filename string) string {
	dir := strings.Trim(objectPath, "/")
	if dir == "" {
		return filename
	}
	return dir + "/" + filename
}

// uploadObject accepts multipart fields objectPath (optional) and object.
// gin spools parts larger than MaxMultipartMemory to disk, so the payload is
// never held in memory whole and its size is known for Content-Length.
func (h *handler) uploadObject(c *gin.Context) {
	fh, err := c.FormFile("object")
	if err != nil {
		badRequest(c, "Multipart field 'object' is required")
		return
	}
	name := path.Base(strings.ReplaceAll(fh.Filename, "\\", "/"))
	if name == "" || name == "." || name == "/" {
		badRequest(c, "Uploaded file has no name")
		return
	}
	key := uploadKey(c.PostForm("objectPath"), name)

	f, err := fh.Open()
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	defer f.Close()

	ctype := fh.Header.Get("Content-Type")
	bucket := c.Param("bucketName")
	t, err := h.svc.Upload(c.Request.Context(), bucket, tenantOf(c), key, f, fh.Size, ctype)
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, uploadResponse{Name: t.Key, Links: links{Self: link{Href: objectHref(bucket, t.Key)}}})
}

func (h *handler) downloadObject(c *gin.Context) {
	obj, err := h.svc.OpenObject(c.Request.Context(), c.Param("bucketName"), tenantOf(c), c.Param("objectName"))
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	defer obj.Body.Close()

	c.Header("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": obj.Name}))
	c.Header("Content-Type", "application/octet-stream")
	if obj.Info.Size >= 0 {
		c.Header("Content-Length", strconv.FormatInt(obj.Info.Size, 10))
	}
	if obj.Info.ETag != "" {
		c.Header("ETag", `"`+obj.Info.ETag+`"`)
	}
	c.Status(http.StatusOK)
	if _, err := io.Copy(c.Writer, obj.Body); err != nil {
		// headers are gone; all we can do is log and cut the response
		h.log.Warn("download interrupted", "bucket", c.Param("bucketName"), "key", obj.Key, "err", err)
	}
}

// deleteObjects takes a JSON array of encoded object names.
func (h *handler) deleteObjects(c *gin.Context) {
	var tokens []string
	if err := c.ShouldBindJSON(&tokens); err != nil {
		badRequest(c, "Request body must be a JSON array of base64 object names")
		return
	}
	bucket := c.Param("bucketName")
	out, err := h.svc.DeleteObjects(c.Request.Context(), bucket, tenantOf(c), tokens)
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, deleteObjectsResponse{BucketName: bucket, Results: out})
}

func (h *handler) listDirectory(c *gin.Context) {
	items, err := h.svc.ListDirectory(c.Request.Context(), c.Param("bucketName"), tenantOf(c), c.Param("directoryName"))
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, items)
}
