package config

import "github.com/kelseyhightower/envconfig"

const EnvPrefix = "ARCTIC_CLIENT"

func parseEnv(cfg *Config) {
	if err := envconfig.Process(EnvPrefix, cfg); err != nil {
		panic(err)
	}
}
