package app

import (
	"fmt"
	"os"
	"path/filepath"
)

// GetDefaults returns application default paths, checking environment variables first.
// Environment variables:
//   - TCM_CONFIG_PATH: config file location (default: ~/.config/tcm.toml)
//   - TCM_HOME: base directory for tcm data (default: ~/.local/share/tcm)
//
// Everything else (logs, database, snapshots, keys) lives under the base directory.
func GetDefaults() (map[string]string, error) {
	configPath, err := fromEnvOrHome("TCM_CONFIG_PATH", ".config", "tcm.toml")
	if err != nil {
		return nil, err
	}

	baseDir, err := fromEnvOrHome("TCM_HOME", ".local", "share", "tcm")
	if err != nil {
		return nil, err
	}

	return map[string]string{
		"config_path":  configPath,
		"base_dir":     baseDir,
		"log_dir":      filepath.Join(baseDir, "log"),
		"data_dir":     filepath.Join(baseDir, "db"),
		"snapshot_dir": filepath.Join(baseDir, "snapshots"),
	}, nil
}

// fromEnvOrHome returns the value of env if set, else the path made of
// homeRel under the user's home directory.
func fromEnvOrHome(env string, homeRel ...string) (string, error) {
	if path := os.Getenv(env); path != "" {
		return path, nil
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("cannot determine home directory for %s: %w", env, err)
	}
	return filepath.Join(append([]string{homeDir}, homeRel...)...), nil
}
