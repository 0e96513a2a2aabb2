package apikey

import (
	"github.com/egplabs/gateway/internal/apikey/repository"
	"github.com/egplabs/gateway/internal/apikey/service"
	"github.com/egplabs/gateway/internal/apikey/signature"
	"go.uber.org/fx"
)

var Module = fx.Module("apikey.service",
	fx.Provide(repository.Provide),
	fx.Provide(repository.ProvideNonces),
	fx.Provide(service.New),
	fx.Provide(signature.NewVerifier),
)
