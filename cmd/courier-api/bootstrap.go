package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/BearBump/CourierBox/config"
	courierapi "github.com/BearBump/CourierBox/internal/api/courier_api"
	"github.com/BearBump/CourierBox/internal/broker/kafka"
	"github.com/BearBump/CourierBox/internal/cache/rediscache"
	"github.com/BearBump/CourierBox/internal/clock"
	"github.com/BearBump/CourierBox/internal/integrations/backend"
	"github.com/BearBump/CourierBox/internal/integrations/wsnotify"
	"github.com/BearBump/CourierBox/internal/models"
	"github.com/BearBump/CourierBox/internal/services/banner"
	"github.com/BearBump/CourierBox/internal/services/dashboard"
	"github.com/BearBump/CourierBox/internal/services/journal"
	"github.com/BearBump/CourierBox/internal/services/notifications"
	"github.com/BearBump/CourierBox/internal/services/orders"
	"github.com/BearBump/CourierBox/internal/session"
	"github.com/joho/godotenv"
)

type courierAPIApp struct {
	ctx    context.Context
	cancel context.CancelFunc
	opts   courierAPIOpts

	api     *courierapi.CourierAPI
	hub     *courierapi.EventHub
	channel *notifications.Manager
	unsub   func()
	closers []func() error
}

func mustBootstrapCourierAPI() *courierAPIApp {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		slog.Warn("load .env", "error", err.Error())
	}
	cfgPath := os.Getenv("configPath")
	if cfgPath == "" {
		panic("configPath env var is required")
	}
	swaggerPath := os.Getenv("swaggerPath")
	if swaggerPath == "" {
		panic("swaggerPath env var is required")
	}

	cfg, err := config.LoadConfig(cfgPath)
	if err != nil {
		panic(fmt.Sprintf("ошибка парсинга конфига, %v", err))
	}

	httpAddr := cfg.Courier.HTTPAddr
	if httpAddr == "" {
		httpAddr = ":8081"
	}
	topic := cfg.Kafka.ActionsTopicName
	if topic == "" {
		topic = journal.DefaultTopic
	}
	dashboardTTL := time.Duration(cfg.Courier.DashboardCacheTTLSeconds) * time.Second
	if dashboardTTL <= 0 {
		dashboardTTL = time.Minute
	}
	mutationLimit := int64(cfg.Courier.MutationRateLimitPerMin)
	if mutationLimit <= 0 {
		mutationLimit = 60
	}
	center := orders.DefaultCenter
	if cfg.Courier.DefaultLatitude != 0 || cfg.Courier.DefaultLongitude != 0 {
		center = models.GeoPoint{Lat: cfg.Courier.DefaultLatitude, Lon: cfg.Courier.DefaultLongitude}
	}

	clk := clock.Real{}

	// клиент и сессия ссылаются друг на друга: сначала клиент без токенов
	issuer := backend.New(cfg.Backend.BaseURL, nil, time.Duration(cfg.Backend.TimeoutSeconds)*time.Second)
	sess := session.New(issuer)
	api := issuer.WithTokens(sess)

	courierID := func() string {
		c, ok := sess.Current()
		if !ok {
			return ""
		}
		if c.Email != "" {
			return c.Email
		}
		return c.UserID
	}
	courierEmail := func() string {
		c, _ := sess.Current()
		return c.Email
	}

	rc := rediscache.New(rediscache.Options{
		Addr:     cfg.Redis.Addr(),
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
		Prefix:   cfg.Redis.KeyPrefix,
	})
	rl := rc.Limiter()
	producer := kafka.NewProducer(cfg.Kafka.Brokers(), topic)
	publisher := journal.NewPublisher(producer)

	dash := dashboard.New(api, rc, dashboardTTL, courierID)

	ws := orders.NewWorkspace(api, orders.WorkspaceConfig{
		Available: orders.AvailableConfig{
			DefaultCenter:   center,
			DefaultRadiusKm: cfg.Courier.DefaultRadiusKm,
			DevMode:         cfg.Courier.DevMode,
			SuccessTTL:      time.Duration(cfg.Courier.AvailableSuccessBannerMs) * time.Millisecond,
			ErrorTTL:        time.Duration(cfg.Courier.AvailableErrorBannerMs) * time.Millisecond,
		},
		ActiveTTL: time.Duration(cfg.Courier.ActiveBannerMs) * time.Millisecond,
		Email:     courierEmail,
	}, orders.Options{
		Clock:    clk,
		Board:    banner.NewBoard(clk),
		Recorder: orders.Recorders{publisher, dash},
		Courier:  courierID,
	})

	inbox := notifications.NewInbox(api, clk, cfg.Notifications.MaxInboxPages)
	hub := courierapi.NewEventHub()

	var channel *notifications.Manager
	var binder channelBinder
	if cfg.Notifications.NotificationsEnabled() {
		channel = notifications.NewManager(wsnotify.New(cfg.Backend.WSURL), inbox, hub, notifications.Config{
			ConnectTimeout:    time.Duration(cfg.Notifications.ConnectTimeoutMs) * time.Millisecond,
			ReconnectInterval: time.Duration(cfg.Notifications.ReconnectIntervalMs) * time.Millisecond,
			MaxReconnects:     cfg.Notifications.MaxReconnectAttempts,
		}, clk)
		binder = channel
	} else {
		slog.Info("notification channel disabled")
	}
	unsub := sess.Subscribe(onSessionChange(ws, inbox, binder, dash))

	deps := courierapi.Deps{
		Workspace:     ws,
		Dashboard:     dash,
		Inbox:         inbox,
		Session:       sess,
		Events:        hub,
		Limiter:       rl,
		MutationLimit: mutationLimit,
	}
	if channel != nil {
		deps.Channel = channel
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	signIn(ctx, sess, cfg.Backend)

	return &courierAPIApp{
		ctx:    ctx,
		cancel: cancel,
		opts: courierAPIOpts{
			httpAddr:    httpAddr,
			swaggerPath: swaggerPath,
		},
		api:     courierapi.New(deps),
		hub:     hub,
		channel: channel,
		unsub:   unsub,
		closers: []func() error{publisher.Close, producer.Close, rc.Close},
	}
}

// signIn uses a pre-issued token if configured, otherwise email/password.
// A failed sign-in is not fatal: the courier can sign in through the API.
func signIn(ctx context.Context, sess *session.Manager, cfg config.BackendConfig) {
	switch {
	case cfg.AccessToken != "":
		if _, err := sess.Adopt(cfg.AccessToken, cfg.RefreshToken); err != nil {
			slog.Warn("adopt configured token", "error", err.Error())
		}
	case cfg.Email != "" && cfg.Password != "":
		if _, err := sess.Login(ctx, cfg.Email, cfg.Password); err != nil {
			slog.Warn("sign in with configured credentials", "email", cfg.Email, "error", err.Error())
		}
	default:
		slog.Info("no credentials configured, waiting for sign in")
	}
}

func (a *courierAPIApp) Close() {
	if a.cancel != nil {
		a.cancel()
	}
	if a.unsub != nil {
		a.unsub()
	}
	if a.channel != nil {
		a.channel.Stop()
	}
	for _, c := range a.closers {
		_ = c()
	}
}

func (a *courierAPIApp) Run() error {
	return runCourierAPI(a.ctx, a.opts, a.api, a.hub)
}
