package alert

import (
	"context"

	"github.com/stridehq/stride/internal/alert/cooldown"
	"github.com/stridehq/stride/internal/alert/dispatch"
	"github.com/stridehq/stride/internal/alert/repository"
	"github.com/stridehq/stride/internal/alert/service"
	"go.uber.org/fx"
)

var Module = fx.Module("alert.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.NewService),
	fx.Provide(cooldown.NewTracker),
	fx.Provide(dispatch.NewDispatcher),
	fx.Provide(dispatch.NewWorker),
	fx.Invoke(runDispatchWorker),
)

func runDispatchWorker(lc fx.Lifecycle, worker *dispatch.Worker) {
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			worker.Start()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			worker.Stop()
			return nil
		},
	})
}
