package audit

import (
	"github.com/stridehq/stride/internal/audit/repository"
	"github.com/stridehq/stride/internal/audit/service"
	"go.uber.org/fx"
)

var Module = fx.Module("audit.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.NewService),
)
