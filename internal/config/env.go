package config

import (
	"os"

	"github.com/caarlos0/env/v11"
)

// OSEnviron returns the process environment as the map Load consumes.
func OSEnviron() map[string]string {
	return env.ToMap(os.Environ())
}
