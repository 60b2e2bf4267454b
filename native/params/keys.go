package params

const (
	// ParamsKeyParameters stores the fee and timing parameters.
	ParamsKeyParameters = "vault/parameters"
	// ParamsKeyRoles stores the governance, keeper and fee recipient roles.
	ParamsKeyRoles = "vault/roles"
	// ParamsKeyPauses stores the module pause configuration.
	ParamsKeyPauses = "vault/pauses"
)

const (
	ModuleVault       = "vault"
	ModuleDistributor = "distributor"
)
