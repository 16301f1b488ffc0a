package app

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"lesson_engine_backend/internal/config"
	"lesson_engine_backend/internal/controller"
	"lesson_engine_backend/internal/repository"
	"lesson_engine_backend/internal/service"
	"lesson_engine_backend/internal/util"
	"lesson_engine_backend/pkg/configwatcher"
	"lesson_engine_backend/pkg/database"
	"lesson_engine_backend/pkg/events"
	"lesson_engine_backend/pkg/logger"
	"lesson_engine_backend/pkg/monitoring"
	"lesson_engine_backend/pkg/security"
	"lesson_engine_backend/pkg/tracing"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type App struct {
	Config *config.Config
	Router *gin.Engine
	DB     *gorm.DB
	Redis  *redis.Client

	current         atomic.Pointer[config.Config]
	services        *services
	publisher       events.Publisher
	limiter         *security.Limiter
	tracer          *sdktrace.TracerProvider
	configCallbacks []func(*config.Config)
}

type repositories struct {
	user     *repository.UserRepository
	lesson   *repository.LessonRepository
	attempt  *repository.AttemptRepository
	sessions *repository.SessionStore
	tickets  *repository.TicketStore
}

type services struct {
	auth    *service.AuthService
	session *service.SessionService
	lesson  *service.LessonService
	attempt *service.LessonAttemptService
	archive *service.ArchiveService
}

type controllers struct {
	auth   *controller.AuthController
	lesson *controller.LessonController
	health *controller.HealthController
}

func (a *App) RegisterConfigCallback(callback func(*config.Config)) {
	a.configCallbacks = append(a.configCallbacks, callback)
}

// CurrentConfig 返回最近一次加载的配置
func (a *App) CurrentConfig() *config.Config {
	return a.current.Load()
}

func (a *App) applyConfig(cfg *config.Config) {
	a.current.Store(cfg)
	for _, cb := range a.configCallbacks {
		cb(cfg)
	}
}

func (a *App) initRepositories(db *gorm.DB, rdb *redis.Client) *repositories {
	return &repositories{
		user:     repository.NewUserRepository(db),
		lesson:   repository.NewLessonRepository(db),
		attempt:  repository.NewAttemptRepository(db),
		sessions: repository.NewSessionStore(rdb),
		tickets:  repository.NewTicketStore(rdb),
	}
}

func (a *App) initServices(repos *repositories, cfg *config.Config) *services {
	s := &services{}

	archive, err := service.NewArchiveService(context.Background(), &cfg.Archive)
	if err != nil {
		// 归档是尽力而为，初始化失败时不归档
		logger.Log.Error("Failed to initialize attempt archive, archiving disabled", zap.Error(err))
		archive = &service.ArchiveService{}
	}
	s.archive = archive

	s.session = service.NewSessionService(
		repos.user,
		repos.sessions,
		a.publisher,
		cfg.Session.TTL(),
		cfg.Session.DestroyTimeout(),
		logger.Named("session"),
	)
	s.auth = service.NewAuthService(repos.user, s.session, cfg, logger.Named("auth"))
	s.lesson = service.NewLessonService(repos.lesson)
	s.attempt = service.NewLessonAttemptService(
		repos.lesson,
		repos.attempt,
		repos.tickets,
		a.publisher,
		s.archive,
		cfg.Attempt,
		logger.Named("attempt"),
	)
	return s
}

func (a *App) initControllers(s *services) *controllers {
	return &controllers{
		auth:   controller.NewAuthController(s.auth),
		lesson: controller.NewLessonController(s.lesson, s.attempt),
		health: controller.NewHealthController(a.DB, a.Redis),
	}
}

func (a *App) setupMiddlewares(router *gin.Engine, cfg *config.Config) {
	router.Use(security.CORS(cfg.CORS.AllowedOrigins))
	router.Use(security.Secure())
	router.Use(a.limiter.Middleware())

	// 分布式追踪中间件
	if cfg.Tracing.Enabled {
		router.Use(tracing.GinMiddleware())
	}

	router.Use(monitoring.MetricsMiddleware())

	// 每个请求使用最新加载的配置
	router.Use(func(c *gin.Context) {
		c.Set(util.ContextConfigKey, a.CurrentConfig())
		c.Next()
	})
}

func NewApp(cfg *config.Config) *App {
	logger.InitLogger(cfg)
	logger.Log.Info("Logger initialized successfully")

	db, err := database.InitDB(&cfg.Database)
	if err != nil {
		logger.Log.Fatal("Failed to initialize database", zap.Error(err))
	}

	if cfg.Server.Mode != gin.ReleaseMode || cfg.ForceMigrate {
		if err := database.Migrate(db); err != nil {
			logger.Log.Fatal("Failed to migrate database", zap.Error(err))
		}
	}

	rdb, err := database.InitRedis(&cfg.Redis)
	if err != nil {
		logger.Log.Fatal("Failed to initialize redis", zap.Error(err))
	}

	app := &App{
		Config: cfg,
		DB:     db,
		Redis:  rdb,
	}
	app.current.Store(cfg)

	eventsURL := ""
	if cfg.Events.Enabled {
		eventsURL = cfg.Events.URL
	}
	publisher, err := events.NewEventPublisher(eventsURL, cfg.Events.Exchange, logger.Named("events"))
	if err != nil {
		// 事件发布失败不影响主流程
		logger.Log.Error("Failed to connect to RabbitMQ, event publishing disabled", zap.Error(err))
		publisher, _ = events.NewEventPublisher("", cfg.Events.Exchange, logger.Named("events"))
	}
	app.publisher = publisher

	if cfg.Tracing.Enabled {
		tp, err := tracing.InitTracer(cfg.Tracing.ServiceName, cfg.Tracing.CollectorEndpoint)
		if err != nil {
			logger.Log.Fatal("Failed to initialize tracing", zap.Error(err))
		}
		app.tracer = tp
	}

	app.limiter = security.NewLimiter(cfg.RateLimit.MaxRequests, time.Duration(cfg.RateLimit.WindowMinutes)*time.Minute)
	app.RegisterConfigCallback(func(c *config.Config) {
		logger.SetLevel(c)
		app.limiter.Update(c.RateLimit.MaxRequests, time.Duration(c.RateLimit.WindowMinutes)*time.Minute)
	})

	repos := app.initRepositories(db, rdb)
	app.services = app.initServices(repos, cfg)
	controllers := app.initControllers(app.services)

	// 监控初始化
	monitoring.Init()

	gin.SetMode(cfg.Server.Mode)
	router := gin.New()
	router.Use(gin.Recovery())
	app.Router = router

	app.setupMiddlewares(router, cfg)
	app.registerRoutes(router, controllers)

	return app
}

func (a *App) Run() {
	srv := &http.Server{
		Addr:    ":" + a.Config.Server.Port,
		Handler: a.Router,
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	stop := make(chan struct{})
	go a.limiter.Run(stop)

	if a.Config.File != "" {
		watcher := configwatcher.New(a.Config.File, logger.Named("config"))
		go func() {
			if err := watcher.Watch(ctx, a.applyConfig); err != nil {
				logger.Log.Error("Config watcher stopped", zap.Error(err))
			}
		}()
	}

	// 启动服务器
	go func() {
		logger.Log.Info("Server running", zap.String("port", a.Config.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Log.Fatal("listen", zap.Error(err))
		}
	}()

	// 等待中断信号优雅地关闭服务器（设置5秒的超时时间）
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Log.Info("Shutting down server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Log.Error("Server forced to shutdown", zap.Error(err))
	}

	cancel()
	close(stop)
	a.Close()

	logger.Log.Info("Server exiting")
}

// Close 等待后台任务结束并释放外部连接
func (a *App) Close() {
	if a.services != nil {
		a.services.session.Wait()
		a.services.attempt.Wait()
	}
	if a.publisher != nil {
		if err := a.publisher.Close(); err != nil {
			logger.Log.Error("Failed to close event publisher", zap.Error(err))
		}
	}
	if a.tracer != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := a.tracer.Shutdown(ctx); err != nil {
			logger.Log.Error("Failed to shutdown tracer provider", zap.Error(err))
		}
	}
	if a.Redis != nil {
		a.Redis.Close()
	}
	if a.DB != nil {
		if sqlDB, err := a.DB.DB(); err == nil {
			sqlDB.Close()
		}
	}
	_ = logger.Log.Sync()
}
