package scaffold

import (
	"fmt"
	"os"
)

// CheckExisting returns an error if a configuration already exists at path.
func CheckExisting(path string) error {
	info, err := os.Stat(path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to check %s: %w", path, err)
	}
	if info.IsDir() {
		return fmt.Errorf("%s is a directory", path)
	}
	return fmt.Errorf("swarm already initialized\n\nFound existing: %s\n\nUse 'swarm init --force' to overwrite it", path)
}
