package realtime

import (
	"context"

	"github.com/smallbiznis/shopfloor/internal/config"
	"go.uber.org/fx"
)

var Module = fx.Module("realtime",
	fx.Provide(provideHub),
	fx.Provide(NewRedisBridge),
	fx.Provide(NewPublisher),
	fx.Invoke(registerBridge),
)

func provideHub(cfg *config.WorkflowConfigHolder) *Hub {
	rt := cfg.Get().Realtime
	return NewHub(rt.BacklogSize, rt.SubscriberBuffer)
}

func registerBridge(lc fx.Lifecycle, bridge *RedisBridge) {
	if bridge == nil {
		return
	}
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error { return bridge.Start(ctx) },
		OnStop:  func(ctx context.Context) error { return bridge.Stop(ctx) },
	})
}
