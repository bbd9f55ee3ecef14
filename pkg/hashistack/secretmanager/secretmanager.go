package secretmanager

import (
	vault "github.com/hashicorp/vault-client-go"
	"go.uber.org/fx"
)

// Module provides a vault client configured from VAULT_* environment
// variables. Include it only when a vault is actually reachable; the
// config loader treats the client as optional.
var Module = fx.Module("secretmanager", fx.Provide(ProvideVault))

func ProvideVault() (*vault.Client, error) {
	return vault.New(
		vault.WithEnvironment(),
	)
}
