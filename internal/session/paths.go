package session

import (
	"os"
	"path/filepath"
)

// BaseDir returns ~/.hubchat.
func BaseDir() string {
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".hubchat")
}

// Dir returns the profile-specific directory.
func Dir(name string) string {
	return filepath.Join(BaseDir(), "profiles", name)
}

// CredentialsPath returns the path of the credentials file written by the
// auth flow. The chat core only ever reads it.
func CredentialsPath(name string) string {
	return filepath.Join(Dir(name), "credentials.json")
}

// LockPath returns the lock file path for a profile.
func LockPath(name string) string {
	return filepath.Join(Dir(name), "LOCK")
}

// LogDir returns the log directory for a profile.
func LogDir(name string) string {
	return filepath.Join(Dir(name), "logs")
}

// LogPath returns the client log file path.
func LogPath(name string) string {
	return filepath.Join(LogDir(name), "hubchat.log")
}

// ConfigPath returns the global config file path.
func ConfigPath() string {
	return filepath.Join(BaseDir(), "config.toml")
}

// EnsureDir creates the profile directory tree with proper permissions.
func EnsureDir(name string) error {
	dirs := []string{
		Dir(name),
		LogDir(name),
	}
	for _, d := range dirs {
		if err := os.MkdirAll(d, 0700); err != nil {
			return err
		}
	}
	return nil
}
