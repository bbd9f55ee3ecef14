package settlement

import (
	"cloudfund-settlement/pkg/chainrpc"
	"cloudfund-settlement/services/balance"

	"go.uber.org/fx"
)

func provideCustodySender(c *chainrpc.Custodian) CustodySender {
	return c
}

func provideAddressResolver(s *balance.Service) AddressResolver {
	return s
}

var Module = fx.Module("settlement.module",
	fx.Provide(
		NewRate,
		provideCustodySender,
		provideAddressResolver,
		NewService,
	),
)
