package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/segmentio/kafka-go"
	"golang.org/x/sync/errgroup"

	"gridsim/internal/admission"
	"gridsim/internal/config"
	"gridsim/internal/constants"
	"gridsim/internal/delivery"
	"gridsim/internal/logger"
	"gridsim/internal/topic"
	"gridsim/pkg/bootstrap"
	"gridsim/pkg/health"
	"gridsim/pkg/logging"
	"gridsim/pkg/metrics"
	"gridsim/pkg/middleware"
	"gridsim/pkg/ratelimit"
	"gridsim/pkg/tracing"
)

type App struct {
	*bootstrap.Base
	topics     *topic.Registry
	dispatcher *delivery.Dispatcher
	pipeline   *admission.Pipeline
	listeners  map[int]*http.Server
	admin      *http.Server
}

func NewApp(cfg *config.Config, log logger.Logger) *App {
	if sugaredLogger, ok := log.(*logger.SugaredLogger); ok {
		sugaredLogger.SetServiceName(constants.ServiceName)
	}
	return &App{
		Base:      bootstrap.NewBase(cfg, log),
		listeners: make(map[int]*http.Server),
	}
}

func (a *App) Initialize(ctx context.Context) error {
	registry, err := topic.NewRegistry(a.Config.Topics)
	if err != nil {
		return fmt.Errorf("failed to build topic registry: %w", err)
	}
	a.topics = registry

	if err := a.InitBroker(); err != nil {
		return fmt.Errorf("failed to initialize broker: %w", err)
	}

	if err := a.InitTracing(ctx, a.Config.Tracing.ServiceName); err != nil {
		return err
	}

	metrics.RegisterAdmissionMetrics()
	metrics.RegisterDeliveryMetrics()
	if a.Config.Broker.Type == "kafka" {
		metrics.RegisterBrokerMetrics()
	}
	if a.Config.CircuitBreaker.Enabled {
		metrics.RegisterCircuitBreakerMetrics()
	}
	if a.Config.RateLimit.Enabled {
		metrics.RegisterRateLimitMetrics()
	}

	if err := a.initDelivery(); err != nil {
		return fmt.Errorf("failed to initialize delivery: %w", err)
	}

	gin.SetMode(gin.ReleaseMode)
	for _, t := range a.topics.All() {
		a.listeners[t.Port] = &http.Server{
			Addr:         ":" + strconv.Itoa(t.Port),
			Handler:      a.newTopicRouter(ctx, t),
			ReadTimeout:  a.Config.Server.ReadTimeout(),
			WriteTimeout: a.Config.Server.WriteTimeout(),
		}
	}

	a.admin = &http.Server{
		Addr:    ":" + strconv.Itoa(a.Config.Server.Port),
		Handler: a.newAdminRouter(),
	}

	return nil
}

func (a *App) initDelivery() error {
	subscriptions, err := delivery.NewSubscriptionRegistry(a.topics.All(), a.Config.CircuitBreaker)
	if err != nil {
		return err
	}

	a.dispatcher = delivery.NewDispatcher(
		subscriptions,
		delivery.NewWebhookSender(a.Config.Delivery.Timeout()),
		a.Producer,
		a.Logger,
		delivery.WithAdvertisedHost(a.Config.Server.Host),
	)
	a.pipeline = admission.NewPipeline(a.dispatcher, a.Logger)
	return nil
}

func (a *App) newTopicRouter(ctx context.Context, t topic.Topic) *gin.Engine {
	router := gin.New()

	if a.Config.Tracing.Enabled {
		router.Use(tracing.GinMiddleware(constants.ServiceName))
	}

	router.Use(middleware.RecoveryMiddleware(a.Logger))
	router.Use(middleware.RequestIDMiddleware())
	router.Use(middleware.ContextValue(func(c context.Context) context.Context {
		return logging.WithTopic(c, t.Name)
	}))
	router.Use(middleware.LoggerMiddleware(a.Logger))

	if a.Config.RateLimit.Enabled {
		router.Use(ratelimit.RateLimitMiddleware(ctx, ratelimit.RateLimitConfig{
			RPS:             a.Config.RateLimit.RPS,
			Burst:           a.Config.RateLimit.Burst,
			CleanupInterval: time.Duration(a.Config.RateLimit.CleanupInterval) * time.Second,
			MaxAge:          time.Duration(a.Config.RateLimit.MaxAge) * time.Second,
		}))
	}

	admission.NewHandler(a.pipeline, a.topics, t, a.Logger).Register(router)
	return router
}

func (a *App) newAdminRouter() *gin.Engine {
	router := gin.New()
	router.Use(middleware.RecoveryMiddleware(a.Logger))

	healthRegistry := health.NewCheckerRegistry()
	for _, t := range a.topics.All() {
		healthRegistry.Register(health.NewListenerChecker("topic:"+t.Name, "127.0.0.1", t.Port))
	}
	if a.Config.Broker.Type == "kafka" {
		brokers := a.Config.Broker.Kafka.Brokers
		healthRegistry.RegisterOptional(health.NewFuncChecker("kafka", func(ctx context.Context) error {
			conn, err := kafka.DialContext(ctx, "tcp", brokers[0])
			if err != nil {
				return fmt.Errorf("kafka dial failed: %w", err)
			}
			return conn.Close()
		}))
	}

	router.GET("/health", func(c *gin.Context) {
		h := healthRegistry.Check(c.Request.Context())
		statusCode := http.StatusOK
		if h.Status == health.StatusUnhealthy {
			statusCode = http.StatusServiceUnavailable
		}
		c.JSON(statusCode, h)
	})

	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return router
}

// Run binds every listener before announcing subscriptions, so validation
// URLs are reachable by the time subscribers see them.
func (a *App) Run(ctx context.Context) error {
	g, gCtx := errgroup.WithContext(ctx)

	servers := make([]*http.Server, 0, len(a.listeners)+1)
	servers = append(servers, a.admin)
	for _, t := range a.topics.All() {
		servers = append(servers, a.listeners[t.Port])
	}

	for _, srv := range servers {
		ln, err := net.Listen("tcp", srv.Addr)
		if err != nil {
			return errors.Join(fmt.Errorf("failed to listen on %s: %w", srv.Addr, err), a.Shutdown(context.Background()))
		}
		a.Logger.InfowCtx(ctx, "Listener started", "addr", srv.Addr)

		g.Go(func() error {
			if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("server %s error: %w", srv.Addr, err)
			}
			return nil
		})
	}

	a.dispatcher.SendValidationEvents(gCtx)

	g.Go(func() error {
		<-gCtx.Done()
		return a.Shutdown(context.Background())
	})

	return g.Wait()
}

func (a *App) Shutdown(ctx context.Context) error {
	additionalShutdown := func(ctx context.Context) []error {
		var errs []error

		shutdownCtx, cancel := context.WithTimeout(ctx, constants.ShutdownTimeout)
		defer cancel()

		for port, srv := range a.listeners {
			if err := srv.Shutdown(shutdownCtx); err != nil {
				errs = append(errs, fmt.Errorf("topic listener %d shutdown error: %w", port, err))
			}
		}
		if a.admin != nil {
			if err := a.admin.Shutdown(shutdownCtx); err != nil {
				errs = append(errs, fmt.Errorf("admin server shutdown error: %w", err))
			}
		}

		if a.dispatcher != nil {
			if err := a.dispatcher.Close(shutdownCtx); err != nil {
				errs = append(errs, err)
			}
		} else if a.Producer != nil {
			if err := a.Producer.Close(); err != nil {
				errs = append(errs, fmt.Errorf("producer close error: %w", err))
			}
		}

		return errs
	}

	return a.Base.Shutdown(ctx, additionalShutdown)
}
