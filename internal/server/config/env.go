package config

import "github.com/kelseyhightower/envconfig"

// EnvPrefix is prepended to every variable name, e.g. ARCTIC_GRPC_ADDR.
const EnvPrefix = "ARCTIC"

// parseEnv overlays variables that are set in the environment. Unset
// variables leave the current value untouched.
func parseEnv(config *Config) {
	if err := envconfig.Process(EnvPrefix, config); err != nil {
		panic(err)
	}
}
