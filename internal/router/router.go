package router

import (
	"context"
	"time"

	"alumnigate/internal/handlers"
	"alumnigate/internal/middleware"
	"alumnigate/internal/services"
	"alumnigate/pkg/config"
	"alumnigate/pkg/jwt"
	"alumnigate/pkg/metrics"
	"alumnigate/pkg/response"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// Dependencies 路由依赖
type Dependencies struct {
	Config      *config.Config
	Log         *logrus.Logger
	DB          *gorm.DB
	Redis       *redis.Client // 可为 nil
	JWT         *jwt.JWTManager
	Invitations *services.InvitationService
	OTP         *services.OTPService
}

// SetupRouter 设置路由
func SetupRouter(deps Dependencies) *gin.Engine {
	handlers.RegisterValidation()

	router := gin.New()

	// 中间件
	router.Use(middleware.RequestLogger(deps.Log))
	router.Use(middleware.ErrorHandler(deps.Log))
	router.Use(middleware.SetupCORS(deps.Config.CORS))

	router.GET("/metrics", gin.WrapH(metrics.Handler()))

	registerRoutes(router, deps)
	return router
}

// 注册所有路由
func registerRoutes(router *gin.Engine, deps Dependencies) {
	auth := middleware.NewAuthMiddleware(deps.JWT)
	admin := []gin.HandlerFunc{auth.RequireLogin(), auth.RequireRole(jwt.RoleAdmin)}
	service := []gin.HandlerFunc{auth.RequireLogin(), auth.RequireRole(jwt.RoleService, jwt.RoleAdmin)}

	api := router.Group("/api/v1")
	{
		// 健康检查接口
		api.GET("/health", healthCheck(deps))
		api.GET("/ping", ping)

		invitationHandler := handlers.NewInvitationHandler(deps.Invitations)
		invitations := api.Group("/invitations")
		{
			// 注册页面使用，无需登录
			invitations.POST("/validate", invitationHandler.ValidateInvitation)

			manage := invitations.Group("", admin...)
			manage.POST("", invitationHandler.CreateInvitation)
			manage.GET("", invitationHandler.ListInvitations)
			manage.POST("/bulk", invitationHandler.BulkCreateInvitations)
			manage.PUT("/:id", invitationHandler.UpdateInvitation)
			manage.POST("/:id/resend", invitationHandler.ResendInvitation)
			manage.POST("/:id/revoke", invitationHandler.RevokeInvitation)
		}

		otpHandler := handlers.NewOTPHandler(deps.OTP)
		otp := api.Group("/otp")
		{
			otp.POST("/validate", otpHandler.ValidateOTP)

			internal := otp.Group("", service...)
			internal.POST("", otpHandler.GenerateOTP)
			internal.GET("/remaining-attempts", otpHandler.GetRemainingAttempts)
			internal.GET("/daily-count", otpHandler.GetDailyCount)
			internal.GET("/rate-limit", otpHandler.CheckRateLimit)
			internal.POST("/cleanup", otpHandler.CleanupExpired)
		}
	}
}

func healthCheck(deps Dependencies) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()

		checks := map[string]string{"database": "ok"}
		healthy := true

		if sqlDB, err := deps.DB.DB(); err != nil || sqlDB.PingContext(ctx) != nil {
			checks["database"] = "unavailable"
			healthy = false
		}
		if deps.Redis != nil {
			checks["redis"] = "ok"
			if err := deps.Redis.Ping(ctx).Err(); err != nil {
				checks["redis"] = "unavailable"
				healthy = false
			}
		}

		data := map[string]interface{}{
			"status":    "ok",
			"timestamp": time.Now(),
			"service":   "alumnigate",
			"checks":    checks,
		}
		if !healthy {
			data["status"] = "degraded"
			response.ServiceUnavailable(c, "服务暂时不可用", data)
			return
		}
		response.Success(c, data)
	}
}

func ping(c *gin.Context) {
	response.SuccessWithMessage(c, "pong", nil)
}
