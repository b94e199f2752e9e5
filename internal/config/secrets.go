package config

import (
	"os"
	"strings"

	"github.com/spf13/afero"
)

// EnvPrefix prefixes every environment variable zonedeck reads.
const EnvPrefix = "ZONEDECK_"

// getEnv retrieves an environment variable value.
func getEnv(key string) string {
	return os.Getenv(EnvPrefix + key)
}

// getEnvOrFile retrieves a value from either a direct environment variable
// or a file path specified by the file key (Docker secrets pattern).
//
// If both are set, the file takes precedence. The file contents are
// trimmed of leading/trailing whitespace. A file that cannot be read falls
// through to the direct value.
func getEnvOrFile(fs afero.Fs, key string) string {
	if filePath := getEnv(key + "_FILE"); filePath != "" {
		content, err := afero.ReadFile(fs, filePath)
		if err == nil {
			return strings.TrimSpace(string(content))
		}
	}
	return getEnv(key)
}

// parseBool parses a boolean string, returning defaultValue on parse failure.
// Accepts: true/false, 1/0, yes/no, on/off (case-insensitive).
func parseBool(s string, defaultValue bool) bool {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "true", "1", "yes", "on":
		return true
	case "false", "0", "no", "off":
		return false
	default:
		return defaultValue
	}
}
