package timelog

import (
	"github.com/smallbiznis/shopfloor/internal/timelog/repository"
	"github.com/smallbiznis/shopfloor/internal/timelog/service"
	"go.uber.org/fx"
)

var Module = fx.Module("timelog.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.New),
)
