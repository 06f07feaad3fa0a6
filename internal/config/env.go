package config

import (
	"log/slog"
	"os"
	"path/filepath"

	"github.com/joho/godotenv"
)

// envFiles are tried in order; values already in the environment win.
var envFiles = []string{".env", ".env.local"}

// LoadEnvFiles loads .env files from dir so the config file can reference
// them via ${VAR}. Missing files are not an error.
func LoadEnvFiles(dir string) {
	for _, name := range envFiles {
		p := filepath.Join(dir, name)
		if _, err := os.Stat(p); err != nil {
			continue
		}
		if err := godotenv.Load(p); err != nil {
			slog.Warn("Failed to load env file", "path", p, "error", err)
			continue
		}
		slog.Debug("Loaded environment variables", "path", p)
	}
}

// LoadEnvFile loads a single explicitly requested env file.
func LoadEnvFile(path string) error {
	return godotenv.Load(path)
}
