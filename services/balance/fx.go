package balance

import (
	"go.uber.org/fx"
)

var Module = fx.Module("balance.module",
	fx.Provide(
		NewService,
	),
)
