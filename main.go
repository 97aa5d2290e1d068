package main

import (
	"context"
	"fmt"
	"net/http"
	"net/http/pprof"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/qmdx00/lifecycle"
	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"calendar-engine/core"
	"calendar-engine/pkg/resources"
	"calendar-engine/pkg/servers"
)

func main() {
	var err error

	name, version := "calendar-engine", "1.0"

	// 1. Config and logger
	resources.LoadConfig()

	log.Logger = log.Logger.With().Timestamp().Str("service", name).Logger()
	ctx := log.Logger.WithContext(context.Background())

	startupLogger := log.Ctx(ctx).With().Str("stage", "startup").Str("component", "main").Logger()
	shutdownLogger := log.Ctx(ctx).With().Str("stage", "shut down").Str("component", "main").Logger()

	startupLogger.Info().Msg("application starting up")
	defer shutdownLogger.Info().Msg("application stopped")

	// 2. Telemetry (traces/metrics/logs), then bridge zerolog -> OTel logs
	stopTracer, err := resources.CreateTracer(ctx)
	if err != nil {
		shutdownLogger.Fatal().Err(err).Msg(fmt.Sprintf("unable to setup tracing: %v", err))
	}
	defer stopWithTimeout(ctx, stopTracer)

	stopMeter, err := resources.CreateMeter(ctx)
	if err != nil {
		shutdownLogger.Fatal().Err(err).Msg(fmt.Sprintf("unable to setup metrics: %v", err))
	}
	defer stopWithTimeout(ctx, stopMeter)

	stopLogger, err := resources.CreateLoggerProvider(ctx)
	if err != nil {
		shutdownLogger.Fatal().Err(err).Msg(fmt.Sprintf("unable to setup log export: %v", err))
	}
	defer stopWithTimeout(ctx, stopLogger)

	log.Logger = log.Logger.Hook(resources.NewZerologHook(name, version))
	ctx = log.Logger.WithContext(ctx)

	// 3. Core resources
	pool, err := resources.CreateDatabaseConnectionPool(ctx)
	if err != nil {
		shutdownLogger.Fatal().Err(err).Msg(fmt.Sprintf("unable to create database connection pool: %v", err))
	}

	// 4. Wiring
	repo := core.NewRepository(pool)
	engine := core.NewEngine(repo)
	handlers := core.NewHandlers(engine, resources.WeekStart())

	// 5. Servers

	gin.SetMode(gin.ReleaseMode)

	restHandler := gin.Default()
	restHandler.Use(otelgin.Middleware(name))
	restHandler.Use(resources.NewHTTPMetrics(name).Middleware())

	restHandler.GET("/events", handlers.GetEvents)
	restHandler.POST("/events", handlers.PostEvents)
	restHandler.POST("/events/overlap", handlers.PostOverlapCheck)
	restHandler.PUT("/events/:id", handlers.PutEvent)
	restHandler.POST("/events/:id/actions", handlers.PostEventAction)
	restHandler.POST("/events/decision", handlers.PostScopeDecision)
	restHandler.DELETE("/events/decision", handlers.DeleteScopeDecision)
	restHandler.GET("/occurrences", handlers.GetOccurrences)
	restHandler.GET("/search", handlers.GetSearch)
	restHandler.GET("/notifications", handlers.GetNotifications)

	debugHandler := http.NewServeMux()
	debugHandler.HandleFunc("/debug/pprof/", pprof.Index)
	debugHandler.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
	debugHandler.HandleFunc("/debug/pprof/profile", pprof.Profile)
	debugHandler.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
	debugHandler.HandleFunc("/debug/pprof/trace", pprof.Trace)

	tickServer, err := servers.NewCronServer("notify-ticker", viper.GetString("NOTIFY_CRON"), func(tickCtx context.Context) {
		due, tickErr := engine.Tick(tickCtx, time.Now())
		if tickErr != nil {
			log.Ctx(tickCtx).Error().Err(tickErr).Str("component", "notify-ticker").Msg("reminder tick failed")
			return
		}

		for _, occ := range due {
			log.Ctx(tickCtx).Info().
				Str("component", "notify-ticker").
				Str("event_id", occ.Id).
				Str("title", occ.Title).
				Time("starts_at", occ.StartTime).
				Msg("reminder due")
		}
	})
	if err != nil {
		shutdownLogger.Fatal().Err(err).Msg("unable to build notify ticker")
	}

	// 6. Lifecycle

	app := lifecycle.NewApp(
		lifecycle.WithName(name),
		lifecycle.WithVersion(version),
		lifecycle.WithSignal(syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT),
	)

	app.Attach(servers.NewBaseServer(pool))
	app.Attach("debug-server", servers.NewHttpServer("debug-server",
		newServer(viper.GetString("SERVER_HOST"), viper.GetString("DEBUG_PORT"), debugHandler)))
	app.Attach("rest-server", servers.NewHttpServer("rest-server",
		newServer(viper.GetString("SERVER_HOST"), viper.GetString("SERVER_PORT"), restHandler)))
	app.Attach("notify-ticker", tickServer)

	startupLogger.Info().Msg("application running")

	if err = app.Run(); err != nil {
		shutdownLogger.Error().Err(err).Msg("runtime error")
	}
}

func newServer(host string, port string, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              host + ":" + port,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}
}

func stopWithTimeout(ctx context.Context, stopFn func(context.Context) error) {
	stopCtx, cancelFn := context.WithTimeout(context.WithoutCancel(ctx), 15*time.Second)
	defer cancelFn()

	if err := stopFn(stopCtx); err != nil {
		log.Ctx(ctx).Error().Err(err).Str("stage", "shut down").Msg("failed to stop telemetry")
	}
}
