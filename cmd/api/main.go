package main

import (
	"fmt"
	"log"
	"net/http"

	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	_ "github.com/aksara-edu/bimbel-api/api/swagger"
	"github.com/aksara-edu/bimbel-api/internal/handler"
	"github.com/aksara-edu/bimbel-api/internal/middleware"
	"github.com/aksara-edu/bimbel-api/internal/models"
	"github.com/aksara-edu/bimbel-api/internal/repository"
	"github.com/aksara-edu/bimbel-api/internal/service"
	"github.com/aksara-edu/bimbel-api/pkg/cache"
	"github.com/aksara-edu/bimbel-api/pkg/config"
	"github.com/aksara-edu/bimbel-api/pkg/database"
	"github.com/aksara-edu/bimbel-api/pkg/logger"
	corsmiddleware "github.com/aksara-edu/bimbel-api/pkg/middleware/cors"
	reqidmiddleware "github.com/aksara-edu/bimbel-api/pkg/middleware/requestid"
)

// @title Bimbel API
// @version 1.0.0
// @description Tutoring center administration API
// @BasePath /api/v1
// @schemes http

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logr, err := logger.New(cfg)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logr.Sync() //nolint:errcheck

	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		logr.Sugar().Fatalw("failed to connect to postgres", "error", err)
	}
	defer db.Close()

	// Redis is optional: without it teacher reads simply skip the cache.
	redisClient, err := cache.NewRedis(cfg.Redis)
	if err != nil {
		logr.Sugar().Warnw("redis unavailable, caching disabled", "error", err)
		redisClient = nil
	}

	userRepo := repository.NewUserRepository(db)
	teacherRepo := repository.NewTeacherRepository(db)
	roomRepo := repository.NewRoomRepository(db)
	lessonRepo := repository.NewLessonRepository(db)
	cacheRepo := repository.NewCacheRepository(redisClient, logr)
	defer cacheRepo.Close() //nolint:errcheck

	metricsService := service.NewMetricsService()
	authService := service.NewAuthService(userRepo, nil, logr, service.AuthConfig{
		AccessTokenSecret:  cfg.JWT.Secret,
		AccessTokenExpiry:  cfg.JWT.Expiration,
		RefreshTokenExpiry: cfg.JWT.RefreshExpiration,
		Issuer:             "bimbel-api",
	})
	teacherService := service.NewTeacherService(teacherRepo, cacheRepo, nil, logr, cfg.Teachers.CacheTTL)
	roomService := service.NewRoomService(roomRepo, nil, logr)
	lessonService := service.NewLessonService(lessonRepo, teacherService, nil, logr, metricsService, service.LessonServiceConfig{
		ConflictWindow: cfg.Lessons.ConflictWindow,
		MaxDuration:    cfg.Lessons.MaxDuration,
	})

	authHandler := handler.NewAuthHandler(authService)
	teacherHandler := handler.NewTeacherHandler(teacherService)
	roomHandler := handler.NewRoomHandler(roomService)
	lessonHandler := handler.NewLessonHandler(lessonService)
	metricsHandler := handler.NewMetricsHandler(metricsService)

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(metricsService))

	r.GET("/health", metricsHandler.Health)
	r.GET("/ready", func(c *gin.Context) {
		if err := db.Ping(); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ready"})
	})
	r.GET("/metrics", metricsHandler.Prometheus)

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	api := r.Group(cfg.APIPrefix)

	auth := api.Group("/auth")
	{
		auth.POST("/login", authHandler.Login)
		auth.POST("/refresh", authHandler.Refresh)
		auth.POST("/logout", middleware.JWT(authService), authHandler.Logout)
		auth.GET("/me", middleware.JWT(authService), authHandler.Me)
	}

	staff := middleware.RequireRoles(models.RoleAdmin, models.RoleStaff)
	staffOrSelf := middleware.RBAC(string(models.RoleAdmin), string(models.RoleStaff), middleware.RoleSelf)

	teachers := api.Group("/teachers", middleware.JWT(authService))
	{
		teachers.GET("", staff, teacherHandler.List)
		teachers.POST("", staff, teacherHandler.Create)
		teachers.GET("/:id", staffOrSelf, teacherHandler.Get)
		teachers.PUT("/:id", staff, teacherHandler.Update)
		teachers.DELETE("/:id", staff, teacherHandler.Delete)
		teachers.PUT("/:id/availability", staff, teacherHandler.ReplaceAvailability)
		teachers.POST("/:id/availability/exceptions", staff, teacherHandler.AddException)
		teachers.DELETE("/:id/availability/exceptions/:exceptionId", staff, teacherHandler.RemoveException)
		teachers.GET("/:id/availability/check", staffOrSelf, teacherHandler.CheckAvailability)
	}

	rooms := api.Group("/rooms", middleware.JWT(authService))
	{
		rooms.GET("", staff, roomHandler.List)
		rooms.POST("", staff, roomHandler.Create)
		rooms.GET("/:id", staff, roomHandler.Get)
		rooms.PUT("/:id", staff, roomHandler.Update)
		rooms.DELETE("/:id", staff, roomHandler.Delete)
	}

	lessons := api.Group("/lessons", middleware.JWT(authService))
	{
		lessons.GET("", middleware.RequireRoles(models.RoleAdmin, models.RoleStaff, models.RoleTeacher), lessonHandler.List)
		lessons.POST("", staff, lessonHandler.Create)
		lessons.GET("/:id", middleware.RequireRoles(models.RoleAdmin, models.RoleStaff, models.RoleTeacher), lessonHandler.Get)
		lessons.PUT("/:id", staff, lessonHandler.Update)
		lessons.POST("/:id/complete", staff, lessonHandler.Complete)
		lessons.DELETE("/:id", staff, lessonHandler.Delete)
	}

	addr := fmt.Sprintf(":%d", cfg.Port)
	logr.Sugar().Infow("server starting", "addr", addr, "env", cfg.Env)
	if err := r.Run(addr); err != nil {
		logr.Sugar().Fatalw("server failed", "error", err)
	}
}
