package api

import (
	"net/http"
	"time"

	"github.com/arencloud/bucketgw/internal/config"
	"github.com/arencloud/bucketgw/internal/gateway"
	"github.com/arencloud/bucketgw/internal/logging"
	"github.com/arencloud/bucketgw/internal/metrics"
	"github.com/arencloud/bucketgw/internal/middleware"
	"github.com/arencloud/bucketgw/internal/probe"
	"github.com/arencloud/bucketgw/internal/tasks"
	"github.com/arencloud/bucketgw/internal/version"
	"github.com/gin-contrib/requestid"
	ginzap "github.com/gin-contrib/zap"
	"github.com/gin-gonic/gin"
	"github.com/go-chi/cors"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Deps are the collaborators the REST surface needs. Probe and Limiter are
// optional.
type Deps struct {
	Service *gateway.Service
	Runner  *tasks.Runner
	Metrics *metrics.Metrics
	Probe   *probe.Producer
	Limiter *middleware.RateLimiter
	Logger  logging.Logger
}

type handler struct {
	svc     *gateway.Service
	runner  *tasks.Runner
	probe   *probe.Producer
	metrics *metrics.Metrics
	log     logging.Logger
}

const tenantKey = "tenant"

func Router(cfg *config.Config, d Deps) http.Handler {
	h := &handler{svc: d.Service, runner: d.Runner, probe: d.Probe, metrics: d.Metrics, log: d.Logger.With("component", "api")}

	r := gin.New()
	r.MaxMultipartMemory = cfg.MaxMultipartMemory
	// tokens in the standard base64 alphabet arrive with '/' escaped as %2F
	r.UseRawPath = true
	r.UnescapePathValues = true
	r.Use(requestid.New())
	r.Use(ginzap.GinzapWithConfig(d.Logger.Zap(), &ginzap.Config{
		TimeFormat: time.RFC3339,
		UTC:        true,
		SkipPaths:  []string{"/health", "/metrics"},
		Context: func(c *gin.Context) []zapcore.Field {
			return []zapcore.Field{zap.String("requestId", requestid.Get(c))}
		},
	}))
	r.Use(d.Metrics.Middleware())

	r.GET("/health", func(c *gin.Context) { c.String(http.StatusOK, "ok") })
	r.GET("/api/version", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"name": version.Name, "version": version.Version})
	})
	r.GET("/metrics", gin.WrapH(d.Metrics.Handler()))
	lvl := logging.Level()
	r.GET("/log/level", gin.WrapH(lvl))
	r.PUT("/log/level", gin.WrapH(lvl))
	r.GET("/ping", h.ping)

	buckets := r.Group("/buckets", requireTenant())
	if d.Limiter != nil {
		buckets.Use(d.Limiter.Middleware())
	}
	buckets.POST("", h.createBucket)
	buckets.GET("", h.listBuckets)
	buckets.GET("/:bucketName", h.getBucket)
	buckets.DELETE("/:bucketName", h.deleteBucket)
	buckets.POST("/:bucketName/objects", h.uploadObject)
	buckets.DELETE("/:bucketName/objects", h.deleteObjects)
	buckets.GET("/:bucketName/objects/directory/:directoryName", h.listDirectory)
	buckets.GET("/:bucketName/objects/:objectName", h.downloadObject)

	return cors.Handler(cors.Options{
		AllowedOrigins: cfg.CORSAllowedOrigins,
		AllowedMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"*"},
		ExposedHeaders: []string{"Content-Disposition", "X-Request-ID", "Location"},
	})(r)
}

// requireTenant resolves the caller's tenant from the Project-Id header.
func requireTenant() gin.HandlerFunc {
	return func(c *gin.Context) {
		raw := c.GetHeader(middleware.TenantHeader)
		if raw == "" {
			badRequest(c, "Missing "+middleware.TenantHeader+" header")
			return
		}
		id, err := uuid.Parse(raw)
		if err != nil {
			badRequest(c, middleware.TenantHeader+" header must be a UUID")
			return
		}
		c.Set(tenantKey, id)
		c.Next()
	}
}

func tenantOf(c *gin.Context) uuid.UUID { return c.MustGet(tenantKey).(uuid.UUID) }

func (h *handler) ping(c *gin.Context) {
	if h.probe != nil {
		if err := h.probe.Send(c.Request.Context(), probe.Message); err != nil {
			h.log.Error("liveness publish failed", "err", err)
			c.JSON(http.StatusServiceUnavailable, errorBody{Error: "Infrastructure", Message: "Message queue unavailable"})
			return
		}
		h.metrics.ProbeMessages.WithLabelValues("sent").Inc()
	}
	c.String(http.StatusOK, "Pong!")
}
