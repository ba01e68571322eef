// Package instance locates the on-disk home of a bot instance.
package instance

import (
	"os"
	"path/filepath"
)

// BaseDir returns ~/.doska. DOSKA_HOME overrides it.
func BaseDir() string {
	if dir := os.Getenv("DOSKA_HOME"); dir != "" {
		return dir
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".doska")
}

// Dir returns the instance directory.
func Dir(name string) string {
	return filepath.Join(BaseDir(), "instances", name)
}

// SocketPath returns the admin socket of an instance.
func SocketPath(name string) string {
	return filepath.Join(Dir(name), "admin.sock")
}

func LockPath(name string) string {
	return filepath.Join(Dir(name), "LOCK")
}

// DBPath returns the retraction store.
func DBPath(name string) string {
	return filepath.Join(Dir(name), "doska.db")
}

// ConfigPath returns the instance config file.
func ConfigPath(name string) string {
	return filepath.Join(Dir(name), "config.toml")
}

func LogDir(name string) string {
	return filepath.Join(Dir(name), "logs")
}

// LogPath returns the daemon log file.
func LogPath(name string) string {
	return filepath.Join(LogDir(name), "doskad.log")
}

// GlobalConfigPath returns ~/.doska/config.toml.
func GlobalConfigPath() string {
	return filepath.Join(BaseDir(), "config.toml")
}

// EnsureDir creates the instance directory tree.
func EnsureDir(name string) error {
	for _, d := range []string{Dir(name), LogDir(name)} {
		if err := os.MkdirAll(d, 0700); err != nil {
			return err
		}
	}
	return nil
}
