package audit

import (
	"github.com/egplabs/gateway/internal/audit/repository"
	"github.com/egplabs/gateway/internal/audit/service"
	"go.uber.org/fx"
)

var Module = fx.Module("audit.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.NewService),
)
