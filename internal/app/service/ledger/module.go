package ledger

import "go.uber.org/fx"

// Module exposes the ledger service via Fx.
var Module = fx.Options(
	fx.Provide(
		fx.Annotate(NewGormStore, fx.As(new(Store))),
		NewService,
	),
)
