package config

import (
	"os"
	"strings"
)

const EnvModeKey = "GO_ENV_MODE"

type EnvMode string

const (
	DevMode  EnvMode = "development"
	ProMode  EnvMode = "production"
	TestMode EnvMode = "test"
)

func ParseEnv(env string) EnvMode {
	switch strings.ToLower(strings.TrimSpace(env)) {
	case "production", "prod", "pro":
		return ProMode
	case "test", "testing":
		return TestMode
	default:
		return DevMode
	}
}

// Mode reads GO_ENV_MODE on every call so tests can switch it with t.Setenv.
func Mode() EnvMode {
	return ParseEnv(os.Getenv(EnvModeKey))
}
