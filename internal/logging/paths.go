package logging

import (
	"os"
	"path/filepath"
)

// DefaultLogDir returns ~/.hotelrag/logs, or a temp directory when the home
// directory is unavailable.
func DefaultLogDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), ".hotelrag", "logs")
	}
	return filepath.Join(home, ".hotelrag", "logs")
}

// DefaultLogPath returns the debug log file path.
func DefaultLogPath() string {
	return filepath.Join(DefaultLogDir(), "hotelrag.log")
}
