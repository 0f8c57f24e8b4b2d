package worker

import (
	"github.com/smallbiznis/shopfloor/internal/worker/repository"
	"github.com/smallbiznis/shopfloor/internal/worker/service"
	"go.uber.org/fx"
)

var Module = fx.Module("worker.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.New),
)
