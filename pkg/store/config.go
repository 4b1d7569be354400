package store

import (
	"time"

	"github.com/glimt/glimt/pkg/logging"
)

// Config represents configuration options for the store
type Config struct {
	Path        string         // Database file path, or ":memory:"
	BusyTimeout time.Duration  // How long SQLite waits on a locked database
	Logger      logging.Logger // Defaults to logging.Nop()
	Now         func() time.Time
}

// DefaultConfig returns a default configuration for the database at path
func DefaultConfig(path string) Config {
	return Config{
		Path:        path,
		BusyTimeout: 5 * time.Second,
		Logger:      logging.Nop(),
		Now:         time.Now,
	}
}
