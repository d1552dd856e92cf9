package config

import (
	"context"
	"errors"
	"io/fs"

	"github.com/joho/godotenv"
	"github.com/sethvargo/go-envconfig"
)

// EnvPrefix namespaces every environment variable read by the server.
const EnvPrefix = "MICROBLOG_"

// DotenvPath is loaded into the process environment before variables are
// read. Variables already set in the environment take precedence.
var DotenvPath = ".env"

// loadDotenv tolerates a missing file but not a malformed one.
func loadDotenv(path string) error {
	if err := godotenv.Load(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return nil
}

// parseEnv overlays MICROBLOG_* variables on config. Unset variables leave
// the current value in place.
func parseEnv(config *Config, l envconfig.Lookuper) error {
	return envconfig.ProcessWith(context.Background(), config, envconfig.PrefixLookuper(EnvPrefix, l))
}
