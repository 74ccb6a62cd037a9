//go:build prod

package database

import (
	"os"
	"path/filepath"
)

func dbPath() (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "wattson", "wattson.db"), nil
}
