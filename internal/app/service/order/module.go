package order

import "go.uber.org/fx"

// Module exposes the order service via Fx.
var Module = fx.Options(
	fx.Provide(
		fx.Annotate(NewGormStore, fx.As(new(Store))),
		NewService,
	),
)
