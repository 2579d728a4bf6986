package server

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/SunnyC0d3/booking-system-sub009/core/cache"
	"github.com/SunnyC0d3/booking-system-sub009/core/config"
	"github.com/SunnyC0d3/booking-system-sub009/core/database"
	"github.com/SunnyC0d3/booking-system-sub009/core/errors"
	"github.com/SunnyC0d3/booking-system-sub009/core/logger"
	"github.com/SunnyC0d3/booking-system-sub009/core/middleware"
	"github.com/SunnyC0d3/booking-system-sub009/core/queue"
	"github.com/SunnyC0d3/booking-system-sub009/core/storage"
	"github.com/SunnyC0d3/booking-system-sub009/modules/auth"
	"github.com/SunnyC0d3/booking-system-sub009/modules/booking"
	"github.com/SunnyC0d3/booking-system-sub009/modules/calendar"
	"github.com/SunnyC0d3/booking-system-sub009/modules/notification"

	"github.com/hibiken/asynq"
	"github.com/labstack/echo/v4"
	echoMiddleware "github.com/labstack/echo/v4/middleware"
	"golang.org/x/sync/errgroup"
)

const shutdownTimeout = 15 * time.Second

// Run boots the HTTP API, the task worker and the scheduler in one process and
// blocks until SIGINT/SIGTERM or the first fatal error.
func Run(cfg *config.Config) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := database.InitDB(cfg.Database)
	if err != nil {
		return err
	}
	defer db.Close()

	if cfg.Database.AutoMigrate {
		if err := database.Migrate(ctx, db); err != nil {
			return err
		}
	}

	redisCache, err := cache.NewRedisCache(cfg.Redis)
	if err != nil {
		return err
	}
	defer redisCache.Close()

	store, err := storage.New(ctx, cfg.Storage)
	if err != nil {
		return err
	}

	queueClient := queue.NewClient(cfg.Redis)
	defer queueClient.Close()

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(echoMiddleware.Recover())
	e.Use(echoMiddleware.RequestID())
	e.Use(requestLogger())

	e.GET("/health", func(c echo.Context) error {
		reqCtx := c.Request().Context()
		if err := db.SQLx().PingContext(reqCtx); err != nil {
			logger.Error("Server:Health:Database", "error", err)
			return c.JSON(http.StatusServiceUnavailable, map[string]string{"status": "database unavailable"})
		}
		if err := redisCache.Ping(reqCtx); err != nil {
			logger.Error("Server:Health:Redis", "error", err)
			return c.JSON(http.StatusServiceUnavailable, map[string]string{"status": "redis unavailable"})
		}
		return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
	})

	v1 := e.Group("/api/v1")
	mw := middleware.NewMiddleware(cfg.Security.JWTSecret)

	notifications := notification.Init(v1.Group("/private"), db, mw)

	cal, err := calendar.Init(v1, mw, calendar.Deps{
		Config:   cfg,
		DB:       db,
		Cache:    redisCache,
		Store:    store,
		Enqueuer: queueClient,
		Notifier: notifications,
	})
	if err != nil {
		return err
	}
	auth.Init(v1, mw, cfg, redisCache, cal)
	bookingTasks := booking.Init(v1, mw, db, cal, notifications)

	mux := asynq.NewServeMux()
	cal.Tasks.Register(mux)
	bookingTasks.Register(mux)

	worker := asynq.NewServer(queue.RedisOpt(cfg.Redis), asynq.Config{
		Concurrency: cfg.Queue.Concurrency,
		Queues: map[string]int{
			queue.QueueCalendar: 6,
			queue.QueueDefault:  3,
		},
		Logger:   asynqLogger{},
		LogLevel: asynq.WarnLevel,
		ErrorHandler: asynq.ErrorHandlerFunc(func(_ context.Context, task *asynq.Task, err error) {
			logger.Error("Server:Worker:TaskFailed", "type", task.Type(), "error", err)
		}),
	})

	scheduler := asynq.NewScheduler(queue.RedisOpt(cfg.Redis), &asynq.SchedulerOpts{
		Logger:   asynqLogger{},
		LogLevel: asynq.WarnLevel,
	})
	if err := registerSchedules(scheduler, cfg.Queue); err != nil {
		return err
	}

	if err := worker.Start(mux); err != nil {
		return errors.NewAppError(errors.ErrInternalServer, "failed to start task worker", err)
	}
	if err := scheduler.Start(); err != nil {
		worker.Shutdown()
		return errors.NewAppError(errors.ErrInternalServer, "failed to start scheduler", err)
	}

	g, gctx := errgroup.WithContext(ctx)

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	g.Go(func() error {
		logger.Info("Server:Run:Listening", "addr", addr, "env", cfg.Server.Env)
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		logger.Info("Server:Run:ShuttingDown")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		err := e.Shutdown(shutdownCtx)

		scheduler.Shutdown()
		worker.Shutdown()
		return err
	})

	if err := g.Wait(); err != nil {
		logger.Error("Server:Run:Error", "error", err)
		return err
	}
	logger.Info("Server:Run:Stopped")
	return nil
}

func registerSchedules(scheduler *asynq.Scheduler, cfg config.QueueConfig) error {
	if cfg.ScheduledSyncCron != "" {
		id, err := scheduler.Register(cfg.ScheduledSyncCron,
			asynq.NewTask(queue.TypeScheduledSync, nil), asynq.Queue(queue.QueueCalendar))
		if err != nil {
			return errors.NewAppError(errors.ErrConfiguration, "invalid scheduled sync cron", err)
		}
		logger.Info("Server:Scheduler:Registered", "type", queue.TypeScheduledSync, "cron", cfg.ScheduledSyncCron, "entry_id", id)
	}
	if cfg.PurgeCron != "" {
		id, err := scheduler.Register(cfg.PurgeCron,
			asynq.NewTask(queue.TypePurgeEvents, nil), asynq.Queue(queue.QueueDefault))
		if err != nil {
			return errors.NewAppError(errors.ErrConfiguration, "invalid purge cron", err)
		}
		logger.Info("Server:Scheduler:Registered", "type", queue.TypePurgeEvents, "cron", cfg.PurgeCron, "entry_id", id)
	}
	return nil
}

func requestLogger() echo.MiddlewareFunc {
	return echoMiddleware.RequestLoggerWithConfig(echoMiddleware.RequestLoggerConfig{
		LogStatus:    true,
		LogURI:       true,
		LogMethod:    true,
		LogLatency:   true,
		LogRequestID: true,
		LogError:     true,
		LogValuesFunc: func(_ echo.Context, v echoMiddleware.RequestLoggerValues) error {
			kv := []any{
				"method", v.Method,
				"uri", v.URI,
				"status", v.Status,
				"latency", v.Latency,
				"request_id", v.RequestID,
			}
			if v.Error != nil {
				logger.Warn("HTTP:Request", append(kv, "error", v.Error)...)
				return nil
			}
			logger.Info("HTTP:Request", kv...)
			return nil
		},
	})
}

// asynqLogger routes asynq's own logging through the process logger.
type asynqLogger struct{}

func (asynqLogger) Debug(args ...interface{}) { logger.Debug("Asynq", "msg", fmt.Sprint(args...)) }
func (asynqLogger) Info(args ...interface{})  { logger.Info("Asynq", "msg", fmt.Sprint(args...)) }
func (asynqLogger) Warn(args ...interface{})  { logger.Warn("Asynq", "msg", fmt.Sprint(args...)) }
func (asynqLogger) Error(args ...interface{}) { logger.Error("Asynq", "msg", fmt.Sprint(args...)) }

func (asynqLogger) Fatal(args ...interface{}) {
	logger.Error("Asynq:Fatal", "msg", fmt.Sprint(args...))
	os.Exit(1)
}
