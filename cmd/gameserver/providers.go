package main

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/cory-johannsen/fibula/internal/admin"
	"github.com/cory-johannsen/fibula/internal/config"
	"github.com/cory-johannsen/fibula/internal/frontend/handlers"
	"github.com/cory-johannsen/fibula/internal/frontend/telnet"
	"github.com/cory-johannsen/fibula/internal/frontend/websocket"
	"github.com/cory-johannsen/fibula/internal/game/catalog"
	"github.com/cory-johannsen/fibula/internal/game/command"
	"github.com/cory-johannsen/fibula/internal/game/dice"
	"github.com/cory-johannsen/fibula/internal/game/event"
	"github.com/cory-johannsen/fibula/internal/game/operation"
	"github.com/cory-johannsen/fibula/internal/game/session"
	"github.com/cory-johannsen/fibula/internal/game/world"
	"github.com/cory-johannsen/fibula/internal/gameserver"
	"github.com/cory-johannsen/fibula/internal/scripting"
	"github.com/cory-johannsen/fibula/internal/server"
	"github.com/cory-johannsen/fibula/internal/storage/postgres"
)

const (
	healthInterval = 30 * time.Second
	healthTimeout  = 5 * time.Second
)

func provideSchedulerConfig(cfg config.Config) event.Config {
	return event.Config{
		Granularity:     cfg.Scheduler.Granularity,
		MaxWait:         cfg.Scheduler.MaxWait,
		InitialCapacity: cfg.Scheduler.InitialCapacity,
	}
}

func provideClock() event.Clock { return event.SystemClock{} }

func provideRoller(logger *zap.Logger) *dice.Roller {
	return dice.NewRoller(dice.NewCryptoSource(), logger)
}

func provideMap(cfg config.Config, logger *zap.Logger) (*world.Map, error) {
	m, err := world.LoadMapFromFile(cfg.Game.MapFile)
	if err != nil {
		return nil, fmt.Errorf("loading map: %w", err)
	}
	logger.Info("map loaded",
		zap.String("map", m.Name()),
		zap.Int("spawns", len(m.Spawns())),
	)
	return m, nil
}

func provideCatalog(cfg config.Config, logger *zap.Logger) (*catalog.Registry, error) {
	cat, err := catalog.LoadDirectory(cfg.Game.CatalogDir)
	if err != nil {
		return nil, fmt.Errorf("loading catalog: %w", err)
	}
	logger.Info("catalog loaded", zap.Int("creatures", len(cat.CreatureIDs())))
	return cat, nil
}

func provideSessions(cfg config.Config, logger *zap.Logger) *session.Manager {
	return session.NewManager(cfg.Game.SessionBuffer, logger)
}

func provideCommands() *command.Registry { return command.DefaultRegistry() }

// provideRules loads the scripted rules. An empty script dir yields a nil
// evaluator, under which every rule passes.
func provideRules(cfg config.Config, roller *dice.Roller, logger *zap.Logger) (operation.RuleEvaluator, func(), error) {
	if cfg.Game.ScriptDir == "" {
		logger.Info("scripting disabled")
		return nil, func() {}, nil
	}
	m := scripting.NewManager(roller, logger)
	if err := m.LoadDir(cfg.Game.ScriptDir, cfg.Game.ScriptInstructionLimit); err != nil {
		return nil, nil, fmt.Errorf("loading scripts: %w", err)
	}
	logger.Info("scripts loaded", zap.String("dir", cfg.Game.ScriptDir))
	return m, m.Close, nil
}

// providePool connects to PostgreSQL when persistence is enabled and returns
// a nil pool otherwise.
func providePool(ctx context.Context, cfg config.Config, logger *zap.Logger) (*postgres.Pool, func(), error) {
	if !cfg.Database.Enabled {
		logger.Info("persistence disabled, every player is a guest")
		return nil, func() {}, nil
	}
	start := time.Now()
	pool, err := postgres.NewPool(ctx, cfg.Database)
	if err != nil {
		return nil, nil, fmt.Errorf("connecting to database: %w", err)
	}
	logger.Info("database connected",
		zap.String("host", cfg.Database.Host),
		zap.Duration("elapsed", time.Since(start)),
	)
	return pool, pool.Close, nil
}

func provideCharacters(pool *postgres.Pool) gameserver.CharacterStore {
	if pool == nil {
		return nil
	}
	return postgres.NewCharacterRepository(pool.DB())
}

func provideAccounts(pool *postgres.Pool) handlers.AccountStore {
	if pool == nil {
		return nil
	}
	return postgres.NewAccountRepository(pool.DB())
}

func provideGame(
	cfg config.Config,
	sched *event.Scheduler,
	worldMap *world.Map,
	cat *catalog.Registry,
	sessions *session.Manager,
	commands *command.Registry,
	roller *dice.Roller,
	rules operation.RuleEvaluator,
	characters gameserver.CharacterStore,
	logger *zap.Logger,
) (*gameserver.Game, error) {
	return gameserver.NewGame(cfg.Game, sched, worldMap, cat, sessions, commands, roller, rules, characters, logger)
}

func provideAuthHandler(accounts handlers.AccountStore, game *gameserver.Game, logger *zap.Logger) *handlers.AuthHandler {
	return handlers.NewAuthHandler(accounts, game, logger)
}

func provideTelnet(cfg config.Config, h *handlers.AuthHandler, logger *zap.Logger) *telnet.Acceptor {
	return telnet.NewAcceptor(cfg.Telnet, h, logger)
}

func provideWebsocket(cfg config.Config, h *handlers.AuthHandler, logger *zap.Logger) *websocket.Server {
	if !cfg.Websocket.Enabled {
		return nil
	}
	return websocket.NewServer(cfg.Websocket, h, logger)
}

func provideAdmin(cfg config.Config, sched *event.Scheduler, sessions *session.Manager, pool *postgres.Pool, logger *zap.Logger) *admin.Server {
	if !cfg.Admin.Enabled {
		return nil
	}
	svc := admin.NewService(sched, sessions)
	if pool != nil {
		svc.WithDatabase(pool)
	}
	return admin.NewServer(cfg.Admin, svc, logger)
}

// provideLifecycle orders the services so that shutdown stops the frontends
// first, letting their logouts reach the game and the database.
func provideLifecycle(
	cfg config.Config,
	logger *zap.Logger,
	pool *postgres.Pool,
	game *gameserver.Game,
	acceptor *telnet.Acceptor,
	ws *websocket.Server,
	adm *admin.Server,
) *server.Lifecycle {
	lc := server.NewLifecycle(logger, cfg.Server.ShutdownTimeout)
	if pool != nil {
		lc.Add("postgres", healthService(pool, logger))
	}
	lc.Add("game", game)
	lc.Add("telnet", acceptor)
	if ws != nil {
		lc.Add("websocket", ws)
	}
	if adm != nil {
		lc.Add("admin", adm)
	}
	return lc
}

func healthService(pool *postgres.Pool, logger *zap.Logger) server.Service {
	done := make(chan struct{})
	return &server.FuncService{
		StartFn: func() error {
			ticker := time.NewTicker(healthInterval)
			defer ticker.Stop()
			for {
				select {
				case <-done:
					return nil
				case <-ticker.C:
					report, err := pool.Check(context.Background(), healthTimeout)
					fields := []zap.Field{
						zap.Duration("latency", report.Latency),
						zap.Int32("conns", report.Stats.Total),
						zap.Int32("acquired", report.Stats.Acquired),
						zap.Int32("max_conns", report.Stats.Max),
					}
					switch {
					case err != nil:
						logger.Warn("database health check failed", append(fields, zap.Error(err))...)
					case report.Stats.Saturated():
						logger.Warn("database pool saturated", fields...)
					default:
						logger.Debug("database healthy", fields...)
					}
				}
			}
		},
		StopFn: func() { close(done) },
	}
}
