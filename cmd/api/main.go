package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/campus-activity/checkin-engine/internal/config"
	"github.com/campus-activity/checkin-engine/internal/domain/attendance"
	appHTTP "github.com/campus-activity/checkin-engine/internal/handler/http"
	"github.com/campus-activity/checkin-engine/internal/pkg/cron"
	"github.com/campus-activity/checkin-engine/internal/pkg/database"
	"github.com/campus-activity/checkin-engine/internal/pkg/geocode"
	"github.com/campus-activity/checkin-engine/internal/pkg/jwt"
	"github.com/campus-activity/checkin-engine/internal/pkg/lock"
	"github.com/campus-activity/checkin-engine/internal/pkg/logger"
	"github.com/campus-activity/checkin-engine/internal/pkg/metrics"
	"github.com/campus-activity/checkin-engine/internal/pkg/sse"
	"github.com/campus-activity/checkin-engine/internal/pkg/storage"
	"github.com/campus-activity/checkin-engine/internal/repository/postgresql"
	attendanceService "github.com/campus-activity/checkin-engine/internal/service/attendance"
	"github.com/campus-activity/checkin-engine/internal/service/file"
	"github.com/campus-activity/checkin-engine/internal/service/geofence"
	"github.com/campus-activity/checkin-engine/internal/service/schedule"
	"github.com/campus-activity/checkin-engine/internal/service/timewindow"
	"go.uber.org/zap"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal("Error loading config: ", err)
	}

	zapLogger, err := logger.New(cfg.App.LogLevel, cfg.App.LogFormat, cfg.App.IsDevelopment())
	if err != nil {
		log.Fatal("Error creating logger: ", err)
	}
	defer func() { _ = zapLogger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := database.NewPostgreSQLDB(ctx, cfg.DatabaseURL(), database.PoolOptions{
		MaxConns: cfg.Database.MaxConns,
		MinConns: cfg.Database.MinConns,
	})
	if err != nil {
		zapLogger.Fatal("Error connecting to database", zap.Error(err))
	}
	defer db.Close()

	if err := postgresql.Migrate(ctx, db); err != nil {
		zapLogger.Fatal("Error migrating database", zap.Error(err))
	}

	activityRepo := postgresql.NewActivityRepository(db)
	attendanceRepo := postgresql.NewAttendanceRepository(db)

	fileStorage, err := storage.NewLocalStorage(cfg.Storage.BasePath, cfg.Storage.BaseURL)
	if err != nil {
		zapLogger.Fatal("Failed to initialize local storage", zap.Error(err))
	}
	photoService := file.NewPhotoService(fileStorage, file.Config{
		MaxDimension: cfg.Storage.MaxDimension,
		MaxBytes:     cfg.Storage.MaxPhotoBytes,
		MinBytes:     cfg.Storage.MinPhotoBytes,
		LineWidth:    cfg.CheckIn.WatermarkLineWidth,
	}, zapLogger.Named("photo"))

	var geocoder attendance.Geocoder
	if cfg.Geocode.Enabled() {
		geocoder = geocode.NewClient(cfg.Geocode.URL, cfg.Geocode.UserAgent, cfg.Geocode.Timeout,
			geocode.WithLanguage(cfg.Geocode.Language))
	}

	var locker lock.Locker = lock.NewMemoryLocker()
	if cfg.Redis.Enabled() {
		redisClient, err := lock.NewRedisClient(ctx, lock.RedisOptions{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
			Prefix:   cfg.Redis.Prefix,
		})
		if err != nil {
			zapLogger.Fatal("Error connecting to redis", zap.Error(err))
		}
		defer func() { _ = redisClient.Close() }()
		locker = lock.NewRedisLocker(redisClient, cfg.Redis.Prefix)
	}

	checkInMetrics := metrics.NewCheckIn()
	checkInService := attendanceService.NewCheckInService(
		activityRepo,
		attendanceRepo,
		photoService,
		geocoder,
		schedule.NewResolver(cfg.CheckIn.DefaultRadiusMeters, zapLogger.Named("schedule")),
		timewindow.NewEngine(timewindow.Policy{OnTime: cfg.CheckIn.OnTime(), Late: cfg.CheckIn.Late()}),
		geofence.NewValidator(),
		attendanceService.NewRecordStoreWithLimit(cfg.CheckIn.RecordCacheSubjects),
		locker,
		checkInMetrics,
		attendanceService.Config{
			GeocodeTimeout: cfg.Geocode.Timeout,
			UploadTimeout:  cfg.CheckIn.UploadTimeout,
			SubmitTimeout:  cfg.CheckIn.SubmitTimeout,
			LockTTL:        cfg.CheckIn.LockTTL,
		},
		zapLogger.Named("checkin"),
	)

	hub := sse.NewHub()
	boardJobs := cron.NewBoardJobs(checkInService, hub, zapLogger.Named("board"))
	scheduler := cron.NewScheduler(zapLogger.Named("cron"))
	scheduler.AddJob(boardJobs.Job(cfg.CheckIn.BoardRefreshInterval))
	scheduler.Start()
	defer scheduler.Stop()

	JWTService := jwt.NewJWTService(cfg.JWT.Secret, cfg.JWT.AccessExpiration)
	attendanceHandler := appHTTP.NewAttendanceHandler(checkInService, cfg.Storage.MaxUploadBytes, zapLogger.Named("http"))
	eventHandler := appHTTP.NewEventHandler(hub, checkInService)

	router := appHTTP.NewRouter(
		appHTTP.RouterOptions{
			AppName:        cfg.App.Name,
			Version:        cfg.App.Version,
			Env:            cfg.App.Env,
			AllowedOrigins: cfg.App.AllowedOrigins,
			LogLevel:       slogLevel(cfg.App.LogLevel),
		},
		JWTService,
		attendanceHandler,
		eventHandler,
		appHTTP.NewUploadHandler(fileStorage, zapLogger.Named("uploads")),
		checkInMetrics.Handler(),
	)

	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.App.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		zapLogger.Info("Server running", zap.String("addr", server.Addr), zap.String("env", cfg.App.Env))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			zapLogger.Error("Server error", zap.Error(err))
			stop()
		}
	}()

	<-ctx.Done()
	zapLogger.Info("Shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		zapLogger.Error("Server shutdown failed", zap.Error(err))
	}
}

func slogLevel(level string) slog.Level {
	var l slog.Level
	if err := l.UnmarshalText([]byte(level)); err != nil {
		return slog.LevelInfo
	}
	return l
}
