package api

import (
	"context"
	"crypto/subtle"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/instabidslabs/instabids-cloud/internal/api/middleware"
	"github.com/instabidslabs/instabids-cloud/internal/config"
	"github.com/instabidslabs/instabids-cloud/internal/domain/bid"
	"github.com/instabidslabs/instabids-cloud/internal/domain/payment"
	"github.com/instabidslabs/instabids-cloud/internal/outbox"
	"github.com/instabidslabs/instabids-cloud/internal/process"
)

type Router struct {
	engine       *gin.Engine
	server       *http.Server
	cfg          *config.Config
	bidSvc       *bid.Service
	paymentSvc   *payment.Service
	outboxStore  *outbox.Store
	processStore process.Store
	logger       *zap.Logger
}

func NewRouter(
	cfg *config.Config,
	bidSvc *bid.Service,
	paymentSvc *payment.Service,
	outboxStore *outbox.Store,
	processStore process.Store,
	logger *zap.Logger,
) *Router {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.Correlation())
	r.Use(middleware.Logger(logger))

	router := &Router{
		engine:       r,
		cfg:          cfg,
		bidSvc:       bidSvc,
		paymentSvc:   paymentSvc,
		outboxStore:  outboxStore,
		processStore: processStore,
		logger:       logger.Named("api"),
	}

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "version": cfg.AppVersion})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := r.Group("/v1")
	{
		v1.POST("/bids/:bid_id/accept", router.AcceptBid)
		v1.POST("/payments/webhook", router.PaymentWebhook)
	}

	admin := r.Group("/admin", router.requireAdminToken)
	{
		admin.GET("/outbox/stats", router.OutboxStats)
		admin.GET("/processes", router.ListProcesses)
		admin.GET("/processes/:process_id", router.GetProcess)
	}

	router.server = &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: r,
	}

	return router
}

// Run starts the HTTP server and blocks until it stops.
func (r *Router) Run() error {
	return r.server.ListenAndServe()
}

// Shutdown drains in-flight requests.
func (r *Router) Shutdown(ctx context.Context) error {
	return r.server.Shutdown(ctx)
}

// requireAdminToken guards operator endpoints with a constant-time compare.
func (r *Router) requireAdminToken(c *gin.Context) {
	token := r.cfg.AdminAPIToken
	if token == "" {
		c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "admin API disabled"})
		return
	}
	provided := c.GetHeader("X-Admin-Token")
	if subtle.ConstantTimeCompare([]byte(provided), []byte(token)) != 1 {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}
	c.Next()
}
