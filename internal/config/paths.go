package config

import (
	"os"
	"os/user"
	"path/filepath"
)

// DefaultDataDir returns where the encrypted store, key and logs live.
// Root installs use /var/lib/applock; users get ~/.applock.
func DefaultDataDir() string {
	if os.Geteuid() == 0 {
		return "/var/lib/applock"
	}
	return filepath.Join(GetRealUserHome(), ".applock")
}

// GetRealUserHome returns the real user's home directory, even when running under sudo.
// Under sudo, os.UserHomeDir() returns root's home, so we use SUDO_USER to find the real user.
func GetRealUserHome() string {
	if sudoUser := os.Getenv("SUDO_USER"); sudoUser != "" {
		if u, err := user.Lookup(sudoUser); err == nil {
			return u.HomeDir
		}
	}
	home, _ := os.UserHomeDir()
	return home
}

// LogPaths returns the info and error log files inside dataDir.
func LogPaths(dataDir string) (info, errs string) {
	return filepath.Join(dataDir, "applock.log"), filepath.Join(dataDir, "applock.error.log")
}
