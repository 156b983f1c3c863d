package misc

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/joho/godotenv"
)

// LoadEnvSettings loads layered env files - .env.local wins over .env.
func LoadEnvSettings(logger *slog.Logger) {
	if err := godotenv.Load(".env.local"); err == nil {
		Debugf(logger, "loaded .env.local")
	}
	if err := godotenv.Load(); err == nil {
		Debugf(logger, "loaded .env")
	}
}

// LoadEnvForNetwork loads the network specific overrides, ie: .env.sandbox
// containing the generated accounts from a local bootstrap script.
func LoadEnvForNetwork(logger *slog.Logger, network string) {
	fname := fmt.Sprintf(".env.%s", network)
	if _, err := os.Stat(fname); err != nil {
		return
	}
	if err := godotenv.Load(fname); err != nil {
		Warnf(logger, "error loading env file:%s, error:%v", fname, err)
		return
	}
	Debugf(logger, "loaded %s", fname)
}
