package main

import (
	"github.com/bwmarrin/snowflake"
	"github.com/stridehq/stride/internal/alert"
	"github.com/stridehq/stride/internal/audit"
	"github.com/stridehq/stride/internal/clock"
	"github.com/stridehq/stride/internal/config"
	"github.com/stridehq/stride/internal/member"
	"github.com/stridehq/stride/internal/migration"
	"github.com/stridehq/stride/internal/observability"
	"github.com/stridehq/stride/internal/seed"
	"github.com/stridehq/stride/internal/server"
	"github.com/stridehq/stride/pkg/db"
	"go.uber.org/fx"
	"gorm.io/gorm"
)

func main() {
	app := fx.New(
		config.Module,
		observability.Module,
		fx.Provide(func() *snowflake.Node {
			node, err := snowflake.NewNode(1)
			if err != nil {
				panic(err)
			}
			return node
		}),
		clock.Module,
		db.Module,
		fx.Invoke(func(conn *gorm.DB, cfg config.Config) error {
			sqlDB, err := conn.DB()
			if err != nil {
				return err
			}
			if err := migration.RunMigrations(sqlDB); err != nil {
				return err
			}
			if cfg.Environment == "development" {
				return seed.EnsureDemoOrg(conn)
			}
			return nil
		}),
		member.Module,
		alert.Module,
		audit.Module,
		server.Module,
	)
	app.Run()
}
