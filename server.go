package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/mmdatafocus/allocation_backend/config"
	"github.com/mmdatafocus/allocation_backend/models"
	"github.com/mmdatafocus/allocation_backend/models/reports"
	"github.com/mmdatafocus/allocation_backend/utils"
	"github.com/mmdatafocus/allocation_backend/workflow"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
)

const defaultPort = "8080"

var tracer = otel.Tracer("allocation-engine")

// Define a struct to represent the rate limiter.
type RateLimiter struct {
	client *redis.Client
	limit  int64
	window time.Duration
}

func min(a, b int) int {
	if a < b {
		return a
	}
	return b
}

func getRedisClient(redisAddress string) *redis.Client {
	client := redis.NewClient(&redis.Options{
		Addr: redisAddress,
	})
	return client
}

// respondError maps model errors onto HTTP statuses: business/state
// failures are the caller's problem (400), missing records 404,
// everything else 500.
func respondError(c *gin.Context, err error) {
	if errors.Is(err, utils.ErrorRecordNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	if utils.IsBusinessError(err) {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
}

func allocationIdParam(c *gin.Context) (int, bool) {
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid allocation id"})
		return 0, false
	}
	return id, true
}

func runAllocationHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var input models.NewAllocation
		if err := c.ShouldBindJSON(&input); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		if input.CreatedBy == "" {
			if userName, ok := utils.GetUserNameFromContext(c.Request.Context()); ok {
				input.CreatedBy = userName
			}
		}

		ctx, span := tracer.Start(c.Request.Context(), "RunAllocation")
		defer span.End()

		// Best-effort fast-fail gate; the run itself serializes on a
		// MySQL advisory lock.
		warehouseCode := input.WarehouseCode
		if warehouseCode == "" {
			warehouseCode = models.DefaultWarehouseCode
		}
		if err := utils.WarehouseLock(ctx, warehouseCode, "allocation_run", "server.go", "runAllocationHandler"); err != nil {
			c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
			return
		}

		result, err := models.RunAllocation(ctx, input)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusCreated, result)
	}
}

type overridesRequest struct {
	Overrides []models.AllocationOverrideInput `json:"overrides" binding:"required"`
	ChangedBy string                           `json:"changed_by"`
}

func applyOverridesHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := allocationIdParam(c)
		if !ok {
			return
		}
		var req overridesRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		result, err := models.ApplyAllocationOverrides(c.Request.Context(), id, req.Overrides, req.ChangedBy)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, result)
	}
}

func approveAllocationHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := allocationIdParam(c)
		if !ok {
			return
		}
		var req struct {
			ApprovedBy string `json:"approved_by"`
		}
		_ = c.ShouldBindJSON(&req)
		header, err := models.ApproveAllocation(c.Request.Context(), id, req.ApprovedBy)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, header)
	}
}

func executeAllocationHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := allocationIdParam(c)
		if !ok {
			return
		}
		var req struct {
			ExecutedBy string `json:"executed_by"`
		}
		_ = c.ShouldBindJSON(&req)
		header, err := models.ExecuteAllocation(c.Request.Context(), id, req.ExecutedBy)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, header)
	}
}

func cancelAllocationHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := allocationIdParam(c)
		if !ok {
			return
		}
		var req struct {
			CancelledBy string `json:"cancelled_by"`
			Reason      string `json:"reason"`
		}
		_ = c.ShouldBindJSON(&req)
		header, err := models.CancelAllocation(c.Request.Context(), id, req.CancelledBy, req.Reason)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, header)
	}
}

func listAllocationsHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var limit *int
		if v := c.Query("limit"); v != "" {
			if n, err := strconv.Atoi(v); err == nil {
				limit = &n
			}
		}
		var after *string
		if v := c.Query("after"); v != "" {
			after = &v
		}
		var status *models.AllocationStatus
		if v := c.Query("status"); v != "" {
			s := models.AllocationStatus(v)
			if !s.IsValid() {
				c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("%s is not a valid status", v)})
				return
			}
			status = &s
		}
		var allocationType *models.AllocationType
		if v := c.Query("type"); v != "" {
			t := models.AllocationType(v)
			if !t.IsValid() {
				c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("%s is not a valid allocation type", v)})
				return
			}
			allocationType = &t
		}

		edges, pageInfo, err := models.PaginateAllocationHeaders(c.Request.Context(), limit, after, status, allocationType)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"edges": edges, "pageInfo": pageInfo})
	}
}

func allocationDetailsHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := allocationIdParam(c)
		if !ok {
			return
		}
		page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
		pageSize, _ := strconv.Atoi(c.DefaultQuery("page_size", "100"))
		var storeCode, sizeCode *string
		if v := c.Query("store_code"); v != "" {
			storeCode = &v
		}
		if v := c.Query("size_code"); v != "" {
			sizeCode = &v
		}

		result, err := models.GetAllocationDetails(c.Request.Context(), id, page, pageSize, storeCode, sizeCode)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, result)
	}
}

func allocationSummaryHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := allocationIdParam(c)
		if !ok {
			return
		}
		summary, err := models.GetAllocationSummary(c.Request.Context(), id)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, summary)
	}
}

func allocationHistoryHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := allocationIdParam(c)
		if !ok {
			return
		}
		histories, err := models.GetAllocationHistory(c.Request.Context(), id)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"allocation_id": id, "history": histories})
	}
}

func allocationExportHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := allocationIdParam(c)
		if !ok {
			return
		}
		f, filename, err := reports.BuildAllocationDetailExcel(c.Request.Context(), id)
		if err != nil {
			respondError(c, err)
			return
		}
		c.Header("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
		c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%s", filename))
		if err := f.Write(c.Writer); err != nil {
			logger := config.GetLogger()
			config.LogError(logger, "server.go", "allocationExportHandler", "Failed to write xlsx", id, err)
		}
	}
}

func createStoreHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var input models.Store
		if err := c.ShouldBindJSON(&input); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		store, err := models.CreateStore(c.Request.Context(), input)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusCreated, store)
	}
}

func getStoreHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		store, err := models.GetStoreByCode(c.Request.Context(), c.Param("code"))
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, store)
	}
}

func divisionIdParam(c *gin.Context) (int, bool) {
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid division id"})
		return 0, false
	}
	return id, true
}

func upsertAllocationSettingHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := divisionIdParam(c)
		if !ok {
			return
		}
		var input models.NewAllocationSetting
		if err := c.ShouldBindJSON(&input); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		setting, err := models.UpsertAllocationSetting(c.Request.Context(), id, input)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, setting)
	}
}

func getAllocationSettingHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := divisionIdParam(c)
		if !ok {
			return
		}
		cfg, err := models.GetAllocationConfig(c.Request.Context(), id)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"division_id":       id,
			"grade_ratios":      cfg.GradeRatios,
			"size_curve":        cfg.SizeCurve,
			"base_stock_target": cfg.BaseStockTarget,
		})
	}
}

func customNotFoundHandler(c *gin.Context) {
	c.JSON(http.StatusNotFound, gin.H{"error": "route not found"})
}

func main() {
	port := os.Getenv("API_PORT")
	if port == "" {
		// Cloud Run standard env var.
		port = os.Getenv("PORT")
	}
	if port == "" {
		port = defaultPort
	}

	logger := config.GetLogger()

	// Shutdown coordination.
	// Cloud Run sends SIGTERM on revision shutdown; handle it for graceful drain.
	sigCtx, stopSignals := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stopSignals()

	// Start the HTTP server ASAP so Cloud Run considers the revision healthy.
	// Until DB/Redis are ready, we return 503 for app endpoints.
	r := gin.New()
	// Correlation IDs: generate once per request and attach to context.
	// The caller's user name (forwarded by the gateway) rides along for
	// audit fields when the request body omits it.
	r.Use(func(c *gin.Context) {
		cid := c.GetHeader("x-correlation-id")
		if cid == "" {
			cid = uuid.NewString()
		}
		ctx := utils.SetCorrelationIdInContext(c.Request.Context(), cid)
		if userName := c.GetHeader("x-user-name"); userName != "" {
			ctx = utils.SetUserNameInContext(ctx, userName)
		}
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	})
	r.Use(func(c *gin.Context) {
		// Always allow Cloud Run startup probe.
		if c.Request.URL.Path == "/healthz" {
			c.Status(http.StatusNoContent)
			c.Abort()
			return
		}
		// Gate critical endpoints on dependency readiness.
		if config.GetDB() == nil || config.GetRedisDB() == nil {
			c.AbortWithStatus(http.StatusServiceUnavailable)
			return
		}
		c.Next()
	})

	r.GET("/healthz", func(c *gin.Context) { c.Status(http.StatusNoContent) })

	corsConfig := cors.DefaultConfig()
	// Production-safe CORS:
	// - In production, require explicit allowlist via CORS_ALLOWED_ORIGINS (comma-separated).
	// - In non-production, allow all (developer convenience).
	allowedOrigins := strings.TrimSpace(os.Getenv("CORS_ALLOWED_ORIGINS"))
	if strings.EqualFold(strings.TrimSpace(os.Getenv("GO_ENV")), "production") {
		if allowedOrigins == "" {
			// Safer default: deny all if not configured in production.
			corsConfig.AllowOrigins = []string{}
		} else {
			corsConfig.AllowOrigins = splitAndTrim(allowedOrigins)
		}
	} else {
		corsConfig.AllowAllOrigins = true
	}
	corsConfig.AddAllowMethods("GET", "POST", "PUT", "DELETE", "OPTIONS")
	corsConfig.AddAllowHeaders("token", "Origin", "Content-Type", "Authorization")
	corsConfig.AddExposeHeaders("Content-Length")
	corsConfig.AllowCredentials = true

	r.Use(cors.New(corsConfig))

	// Optional rate limiting (recommended for production).
	// Env:
	// - RATE_LIMIT_ENABLED=true
	// - RATE_LIMIT_WINDOW_SECONDS=60
	// - RATE_LIMIT_MAX_REQUESTS=600
	if strings.EqualFold(strings.TrimSpace(os.Getenv("RATE_LIMIT_ENABLED")), "true") {
		client := getRedisClient(os.Getenv("REDIS_ADDRESS"))
		limit := int64(600)
		if v := strings.TrimSpace(os.Getenv("RATE_LIMIT_MAX_REQUESTS")); v != "" {
			if n, err := strconv.ParseInt(v, 10, 64); err == nil && n > 0 {
				limit = n
			}
		}
		windowSec := int64(60)
		if v := strings.TrimSpace(os.Getenv("RATE_LIMIT_WINDOW_SECONDS")); v != "" {
			if n, err := strconv.ParseInt(v, 10, 64); err == nil && n > 0 {
				windowSec = n
			}
		}
		rateLimiter := NewRateLimiter(client, limit, time.Duration(windowSec)*time.Second)
		r.Use(rateLimiter.RateLimitMiddleware)
	}

	r.Use(customErrorLogger(logger))
	r.Use(gin.Recovery())

	r.POST("/allocations/run", runAllocationHandler())
	r.GET("/allocations", listAllocationsHandler())
	r.POST("/allocations/:id/overrides", applyOverridesHandler())
	r.POST("/allocations/:id/approve", approveAllocationHandler())
	r.POST("/allocations/:id/execute", executeAllocationHandler())
	r.POST("/allocations/:id/cancel", cancelAllocationHandler())
	r.GET("/allocations/:id/details", allocationDetailsHandler())
	r.GET("/allocations/:id/summary", allocationSummaryHandler())
	r.GET("/allocations/:id/history", allocationHistoryHandler())
	r.GET("/allocations/:id/export", allocationExportHandler())
	r.POST("/stores", createStoreHandler())
	r.GET("/stores/:code", getStoreHandler())
	r.PUT("/divisions/:id/allocation-setting", upsertAllocationSettingHandler())
	r.GET("/divisions/:id/allocation-setting", getAllocationSettingHandler())
	r.NoRoute(customNotFoundHandler)

	// Start listening immediately (Cloud Run startup probe is TCP based).
	srv := &http.Server{
		Addr:    ":" + port,
		Handler: r,
	}
	serverErrCh := make(chan error, 1)
	go func() {
		// ListenAndServe returns http.ErrServerClosed on graceful shutdown.
		serverErrCh <- srv.ListenAndServe()
	}()

	// Connect dependencies after the port is open.
	config.ConnectDatabaseWithRetry()
	config.ConnectRedisWithRetry()

	// Now DB is ready; run migrations.
	db := config.GetDB()
	sqlDB, _ := db.DB()
	defer func() {
		if sqlDB != nil {
			_ = sqlDB.Close()
		}
	}()
	// IMPORTANT: AutoMigrate can run DDL that blocks tables and causes 504/502 timeouts.
	// Allow disabling migrations on startup (run them as a separate job instead).
	if !strings.EqualFold(strings.TrimSpace(os.Getenv("SKIP_MIGRATIONS")), "true") {
		models.MigrateTable()
	} else {
		logger.WithFields(logrus.Fields{"field": "migrations"}).Warn("SKIP_MIGRATIONS=true; skipping AutoMigrate on startup")
	}

	// Start outbox dispatcher (publishes AFTER commit).
	dispatcherCtx, cancelDispatcher := context.WithCancel(context.Background())
	defer cancelDispatcher()
	if config.DispatchOutboxEnabled() {
		go workflow.NewOutboxDispatcher(db, logger).Run(dispatcherCtx)
	} else {
		logger.WithFields(logrus.Fields{"field": "dispatcher"}).Warn("DISPATCH_OUTBOX_ENABLED not set; dispatch records will not be published")
	}

	// Set the session isolation level to READ COMMITTED
	for attempt := 1; ; attempt++ {
		err := db.Exec("SET SESSION TRANSACTION ISOLATION LEVEL READ COMMITTED").Error
		if err == nil {
			break
		}
		sleep := time.Second * time.Duration(1<<min(attempt, 5))
		if sleep > 30*time.Second {
			sleep = 30 * time.Second
		}
		logger.WithFields(logrus.Fields{
			"field":   "database",
			"attempt": attempt,
		}).Warn("failed to set isolation level; retrying in " + sleep.String() + ": " + err.Error())
		time.Sleep(sleep)
	}

	logger.WithFields(logrus.Fields{
		"info": "Connection Established",
	}).Info("allocation engine listening on port ", port)
	log.Println("Server started successfully")

	// Block until shutdown or server error.
	select {
	case <-sigCtx.Done():
		// graceful shutdown below
	case err := <-serverErrCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.WithFields(logrus.Fields{"field": "http"}).Error("server stopped unexpectedly: " + err.Error())
		}
	}

	// Stop background workers first so they don't start new work while we're draining.
	cancelDispatcher()

	// Drain HTTP requests.
	shutdownTimeout := 30 * time.Second
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.WithFields(logrus.Fields{"field": "http"}).Error("graceful shutdown failed: " + err.Error())
	}

	// Close Redis (best-effort).
	if rdb := config.GetRedisDB(); rdb != nil {
		_ = rdb.Close()
	}
}

// customErrorLogger is a custom Gin middleware that logs only errors
func customErrorLogger(logger *logrus.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		// Only log when there are errors
		if len(c.Errors) > 0 {
			logger.Error(c.Errors.String())
		}
	}
}

// Initialize a new RateLimiter instance.
func NewRateLimiter(client *redis.Client, limit int64, window time.Duration) *RateLimiter {
	return &RateLimiter{
		client: client,
		limit:  limit,
		window: window,
	}
}

// Middleware function to check rate limits.
func (rl *RateLimiter) RateLimitMiddleware(c *gin.Context) {
	// Get the IP address or user identifier from the request.
	key := c.ClientIP() // Assuming IP-based rate limiting

	// Check if the key exists in Redis.
	exists, err := rl.client.Exists(c.Request.Context(), key).Result()
	if err != nil {
		c.AbortWithError(http.StatusInternalServerError, err)
		return
	}

	// If the key doesn't exist, create it and set expiry.
	if exists == 0 {
		err := rl.client.Set(c.Request.Context(), key, 1, rl.window).Err()
		if err != nil {
			c.AbortWithError(http.StatusInternalServerError, err)
			return
		}
		c.Next()
		return
	}

	// If the key exists, get the current count.
	count, err := rl.client.Incr(c.Request.Context(), key).Result()
	if err != nil {
		c.AbortWithError(http.StatusInternalServerError, err)
		return
	}

	// If the count exceeds the limit, return an error response.
	if count > rl.limit {
		c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
			"error": fmt.Sprintf("Rate limit exceeded. Try again in %d seconds", int(rl.window.Seconds())),
		})
		return
	}

	c.Next()
}

func splitAndTrim(csv string) []string {
	if strings.TrimSpace(csv) == "" {
		return nil
	}
	parts := strings.Split(csv, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
