package sweeper

import (
	"go.uber.org/fx"
)

var Module = fx.Module("sweeper.module",
	fx.Provide(
		NewService,
	),
)

// Worker adds the queue handlers and the periodic scheduler on top of
// the base module.
var Worker = fx.Module("sweeper.worker",
	Module,
	fx.Provide(NewScheduler),
	fx.Invoke(
		RegisterHandlers,
		StartScheduler,
	),
)
