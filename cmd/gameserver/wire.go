//go:build wireinject

package main

import (
	"context"

	"github.com/google/wire"
	"go.uber.org/zap"

	"github.com/cory-johannsen/fibula/internal/config"
	"github.com/cory-johannsen/fibula/internal/game/event"
	"github.com/cory-johannsen/fibula/internal/server"
)

var worldSet = wire.NewSet(
	provideSchedulerConfig,
	provideClock,
	event.NewScheduler,
	provideRoller,
	provideMap,
	provideCatalog,
	provideSessions,
	provideCommands,
	provideRules,
)

var storageSet = wire.NewSet(
	providePool,
	provideCharacters,
	provideAccounts,
)

var frontendSet = wire.NewSet(
	provideAuthHandler,
	provideTelnet,
	provideWebsocket,
	provideAdmin,
)

func initializeServer(ctx context.Context, cfg config.Config, logger *zap.Logger) (*server.Lifecycle, func(), error) {
	wire.Build(worldSet, storageSet, frontendSet, provideGame, provideLifecycle)
	return nil, nil, nil
}
