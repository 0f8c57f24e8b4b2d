package statussync

import (
	"github.com/smallbiznis/shopfloor/internal/statussync/repository"
	"github.com/smallbiznis/shopfloor/internal/statussync/service"
	"go.uber.org/fx"
)

var Module = fx.Module("statussync.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.New),
)
