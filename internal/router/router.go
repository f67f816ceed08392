package router

import (
	"time"

	"settlepos/internal/config"
	"settlepos/internal/handler"
	"settlepos/internal/infra"
	"settlepos/internal/middleware"
	"settlepos/internal/repository"
	"settlepos/internal/service"
	"settlepos/internal/worker"

	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

// New wires all dependencies and returns a configured Gin engine.
// Dependency graph: Handler ← Service ← Repository ← DB/Redis
func New(cfg *config.Config, db *gorm.DB, rdb *redis.Client, store *repository.SettlementStore, gatewayCB, fiscalCB *infra.CircuitBreaker) *gin.Engine {
	if cfg.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()

	// Global middleware chain (order matters)
	r.Use(middleware.RequestID())
	r.Use(middleware.Logger())
	r.Use(middleware.Recovery())
	r.Use(middleware.CORS())
	r.Use(middleware.ErrorHandler())
	r.Use(middleware.RateLimiter(1000, time.Minute)) // 1000 req/min per IP

	// ── Infrastructure ───────────────────────────────────────────────────────
	gateway := infra.NewGatewayClient(cfg.GatewayURL, cfg.GatewayTimeout())

	// ── Repositories ─────────────────────────────────────────────────────────
	sessionRepo := repository.NewSessionRepository(db)
	receiptRepo := repository.NewReceiptRepository(db)

	// Worker dispatcher — injected into services that enqueue async jobs
	dispatcher := worker.NewDispatcher(rdb)

	// ── Services ─────────────────────────────────────────────────────────────
	artifacts := service.PDFArtifacts{StoragePath: cfg.PDFStoragePath}
	sessionSvc := service.NewSessionService(sessionRepo, receiptRepo, store, dispatcher, artifacts, cfg.SupervisorEmail)
	settlementSvc := service.NewSettlementCoordinator(store, sessionRepo, sessionSvc, receiptRepo, gateway, gatewayCB, dispatcher, cfg.NonCashToleranceCents)

	// ── Handlers ─────────────────────────────────────────────────────────────
	sessionH := handler.NewSessionHandler(sessionSvc)
	settlementH := handler.NewSettlementHandler(settlementSvc)

	// ── Routes ───────────────────────────────────────────────────────────────

	// Public
	r.GET("/health", handler.Health(db, rdb, gatewayCB, fiscalCB))

	// Protected routes
	jwtMW := middleware.JWTAuth(cfg.JWTSecret)
	v1 := r.Group("/v1", jwtMW)
	{
		anyOperator := middleware.RequireRole(middleware.RoleCashier, middleware.RoleSupervisor, middleware.RoleAdmin)
		supervisorUp := middleware.RequireRole(middleware.RoleSupervisor, middleware.RoleAdmin)

		sessions := v1.Group("/cash-sessions")
		{
			sessions.POST("", anyOperator, sessionH.Open)
			sessions.GET("/active", anyOperator, sessionH.Active)
			sessions.GET("/history", supervisorUp, sessionH.History)
			sessions.GET("/:id/report", anyOperator, sessionH.Report)
			sessions.GET("/:id/report.pdf", anyOperator, sessionH.ReportPDF)
			sessions.POST("/:id/movements", anyOperator, sessionH.PostMovement)
			sessions.POST("/:id/close", anyOperator, sessionH.Close)
		}

		settlements := v1.Group("/settlements", anyOperator)
		{
			settlements.POST("", settlementH.Begin)
			settlements.GET("/:id", settlementH.Get)
			settlements.POST("/:id/tenders", settlementH.AddTender)
			settlements.DELETE("/:id/tenders/:tenderID", settlementH.VoidTender)
			settlements.POST("/:id/tenders/:tenderID/confirm", settlementH.ConfirmTender)
			settlements.POST("/:id/finalize", settlementH.Finalize)
			settlements.POST("/:id/abandon", settlementH.Abandon)
		}
	}

	// Swagger UI — only enabled outside production
	if cfg.Env != "production" {
		r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	return r
}
