package main

import (
	"context"
	"fmt"
	"time"

	"github.com/Freeeeeet/skillswap_core/internal/api"
	"github.com/Freeeeeet/skillswap_core/internal/app"
	"github.com/Freeeeeet/skillswap_core/internal/config"
	"github.com/Freeeeeet/skillswap_core/internal/media"
	"github.com/Freeeeeet/skillswap_core/internal/model"
	"github.com/Freeeeeet/skillswap_core/internal/presence"
	"github.com/Freeeeeet/skillswap_core/internal/repository"
	"github.com/Freeeeeet/skillswap_core/internal/room"
	"github.com/Freeeeeet/skillswap_core/internal/service"
	"github.com/Freeeeeet/skillswap_core/internal/session"
	"github.com/Freeeeeet/skillswap_core/internal/transport"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

const handshakeTimeout = 10 * time.Second

// runtime собранные зависимости клиента
type runtime struct {
	cfg    *config.Config
	logger *zap.Logger
	pool   *pgxpool.Pool

	api            *api.Client
	channel        *transport.Channel
	rooms          *room.Manager
	presence       *presence.Tracker
	reconciliation *service.ReconciliationService
}

func newRuntime(ctx context.Context) (*runtime, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	logger := app.NewLogger(cfg.Environment)

	rt := &runtime{
		cfg:    cfg,
		logger: logger,
		api:    api.NewClient(cfg.APIBaseURL, cfg.AuthToken, logger.Named("api")),
	}

	var store service.ReconciliationStore
	if dsn := cfg.GetDBDSN(); dsn != "" {
		pool, err := app.OpenDatabase(ctx, dsn, cfg.MigrationsDir, logger)
		if err != nil {
			logger.Sync()
			return nil, err
		}
		rt.pool = pool
		store = repository.NewReconciliationRepository(pool)
		logger.Info("Using database reconciliation ledger")
	} else {
		store = repository.NewMemoryReconciliationRepository()
		logger.Warn("DB_DSN not set, reconciliation ledger is kept in memory")
	}
	rt.reconciliation = service.NewReconciliationService(store, rt.api, logger.Named("reconcile"))

	policy := transport.ReconnectPolicy{
		MaxAttempts:  cfg.ReconnectAttempts,
		InitialDelay: cfg.ReconnectDelay,
		MaxDelay:     cfg.ReconnectMaxDelay,
		Multiplier:   2.0,
		Jitter:       true,
	}
	rt.channel = transport.NewChannel(cfg.SocketURL, transport.NewWebSocketDialer(handshakeTimeout), policy, logger.Named("transport"))
	rt.rooms = room.NewManager(rt.channel, logger.Named("room"))
	rt.channel.OnDisconnect(rt.rooms.HandleDisconnect)
	rt.presence = presence.NewTracker(logger.Named("presence"))
	rt.presence.Attach(rt.channel)
	rt.channel.OnStateChange(func(st transport.State) {
		if rt.channel.Reconnecting() {
			logger.Warn("Connection lost, reconnecting")
			return
		}
		logger.Debug("Connection state changed", zap.String("state", st.String()))
	})

	return rt, nil
}

func (rt *runtime) coordinator(provider *media.LinkProvider) *service.Coordinator {
	return service.NewCoordinator(
		rt.api,
		rt.channel,
		rt.rooms,
		provider,
		rt.reconciliation,
		rt.cfg.UserID,
		rt.cfg.EndTimeout,
		rt.logger.Named("session"),
	)
}

// machine модель занятия для разовых действий без подписки на канал
func (rt *runtime) machine(ctx context.Context, sessionID string) (*session.Machine, error) {
	s, err := rt.api.GetSession(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("get session: %w", err)
	}
	if s.RoleOf(rt.cfg.UserID) == model.RoleNone {
		return nil, fmt.Errorf("session %s: %w", sessionID, session.ErrNotParticipant)
	}
	return session.NewMachine(*s, rt.cfg.UserID, rt.api, rt.logger.Named("session")), nil
}

func (rt *runtime) Close() {
	rt.channel.Close()
	if rt.pool != nil {
		rt.pool.Close()
	}
	_ = rt.logger.Sync()
}
