package service

import (
	"context"

	"bj-service/internal/config"
	"bj-service/internal/service/admin"
	"bj-service/internal/service/auth"
	"bj-service/internal/service/game"
	"bj-service/internal/service/match"
	"bj-service/internal/service/user"
	"bj-service/internal/service/wallet"

	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

type Container struct {
	Game   *game.Service
	Match  *match.Service
	Auth   *auth.Service
	User   *user.Service
	Wallet *wallet.Service
	Admin  *admin.Service
}

func NewContainer(db *gorm.DB, rdb *redis.Client, cfg *config.Config) *Container {
	walletSvc := wallet.NewService(db)
	gameSvc := game.NewService(db, rdb, walletSvc, cfg.Blackjack.Rules(), cfg.Blackjack.Runtime())
	return &Container{
		Admin:  admin.NewService(db, walletSvc),
		Auth:   auth.NewService(db, rdb, auth.OptionsFromConfig(cfg.Auth)),
		Game:   gameSvc,
		Match:  match.NewService(rdb, gameSvc, cfg.Blackjack.SeatsPerTable),
		User:   user.NewService(db),
		Wallet: walletSvc,
	}
}

func (c *Container) Start(ctx context.Context) error {
	if err := c.Admin.EnsureDefaultAdmin(ctx); err != nil {
		return err
	}
	c.Match.Start(ctx)
	return nil
}

func (c *Container) Stop() {
	c.Game.Shutdown()
}
