package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"alumnigate/internal/database"
	"alumnigate/internal/router"
	"alumnigate/internal/services"
	"alumnigate/pkg/config"
	"alumnigate/pkg/jwt"
	"alumnigate/pkg/logger"
	"alumnigate/pkg/mailer"
	"alumnigate/pkg/metrics"
	"alumnigate/pkg/queue"
	"alumnigate/pkg/token"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
)

func main() {
	// 加载配置
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// 初始化日志
	if err := logger.Initialize(cfg); err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}

	appLogger := logger.GetLogger()
	appLogger.Info("Starting alumni invitation gateway...")
	metrics.Register()

	// 初始化数据库
	db, err := database.Connect(cfg.Database)
	if err != nil {
		appLogger.Fatalf("Failed to connect database: %v", err)
	}
	defer func() {
		if err := database.Close(db); err != nil {
			appLogger.Error("Failed to close database:", err)
		}
	}()

	if err := database.Migrate(db, appLogger); err != nil {
		appLogger.Fatalf("Failed to migrate database: %v", err)
	}

	if cfg.Server.SeedDemoData {
		if err := seedDemoProfiles(db, appLogger); err != nil {
			appLogger.Fatalf("Failed to seed demo data: %v", err)
		}
	}

	// Redis 只在限流或邮件队列需要时连接
	var redisClient *redis.Client
	if cfg.OTP.RateLimitBackend == "redis" || cfg.Mail.QueueEnabled {
		redisClient = database.NewRedisClient(cfg.Redis)
		defer func() {
			if err := redisClient.Close(); err != nil {
				appLogger.Error("Failed to close Redis:", err)
			}
		}()
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// 邮件
	mailSender, err := mailer.New(ctx, cfg.Mail, appLogger)
	if err != nil {
		appLogger.Fatalf("Failed to initialize mailer: %v", err)
	}

	var mailQueue *queue.RedisQueue
	var enqueuer services.MailEnqueuer
	if cfg.Mail.QueueEnabled {
		mailQueue = queue.NewRedisQueue(redisClient, cfg.Redis.Prefix)
		if err := mailQueue.Ping(ctx); err != nil {
			appLogger.Warnf("Mail queue unavailable at startup, will fall back to direct send: %v", err)
		}
		enqueuer = mailQueue
	}
	notifications := services.NewNotificationService(enqueuer, mailSender, cfg.Invitation.AcceptURL, appLogger)

	// 业务服务
	codec, err := token.NewCodec(cfg.Invitation.TokenSecret)
	if err != nil {
		appLogger.Fatalf("Failed to initialize token codec: %v", err)
	}
	timeout := cfg.Database.AcquireTimeout
	directory := services.NewDirectoryService(db, timeout)
	// OTP 日限额和年龄分级共用同一业务日历时区
	dayLocation, err := time.LoadLocation(cfg.OTP.DayLocation)
	if err != nil {
		appLogger.Fatalf("Failed to load day location: %v", err)
	}
	invitationService := services.NewInvitationService(db, codec, directory, notifications, appLogger, timeout,
		time.Duration(cfg.Invitation.DefaultTTLDays)*24*time.Hour).WithDayLocation(dayLocation)

	var counter services.RateCounter = services.NewTableRateCounter(db)
	if cfg.OTP.RateLimitBackend == "redis" {
		counter = services.NewRedisRateCounter(redisClient, cfg.Redis.Prefix, time.Hour)
	}
	otpService := services.NewOTPService(db, services.NewRateLimiter(counter, cfg.OTP.HourlyLimit, time.Hour), appLogger,
		timeout, services.OTPOptions{
			MaxAttempts: cfg.OTP.MaxAttempts,
			DefaultTTL:  time.Duration(cfg.OTP.DefaultTTLSeconds) * time.Second,
			DayLocation: dayLocation,
		})

	// 定时维护任务
	scheduler := services.NewMaintenanceScheduler(otpService, invitationService, appLogger)
	if err := scheduler.AddOTPCleanup(cfg.OTP.CleanupCron); err != nil {
		appLogger.Fatalf("Failed to schedule OTP cleanup: %v", err)
	}
	if cfg.Invitation.ExpireSweep {
		if err := scheduler.AddInvitationExpire(cfg.Invitation.SweepCron); err != nil {
			appLogger.Fatalf("Failed to schedule invitation sweep: %v", err)
		}
	}
	scheduler.Start()
	defer scheduler.Stop()

	// 邮件队列消费者
	workerDone := make(chan struct{})
	if mailQueue != nil {
		worker := services.NewMailWorker(mailQueue, mailSender, appLogger)
		go func() {
			defer close(workerDone)
			worker.Run(ctx)
		}()
	} else {
		close(workerDone)
	}

	gin.SetMode(cfg.Server.Mode)
	r := router.SetupRouter(router.Dependencies{
		Config:      cfg,
		Log:         appLogger,
		DB:          db,
		Redis:       redisClient,
		JWT:         jwt.NewJWTManager(cfg.JWT.SecretKey, cfg.JWTDuration()),
		Invitations: invitationService,
		OTP:         otpService,
	})

	server := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      r,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			appLogger.Fatalf("Failed to start server: %v", err)
		}
	}()

	appLogger.Infof("Server started on port %s", cfg.Server.Port)

	// 优雅关闭
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	appLogger.Info("Shutting down server...")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		appLogger.Error("Server forced to shutdown:", err)
	}

	cancel()
	<-workerDone
	notifications.Wait()
	appLogger.Info("Server exited")
}
