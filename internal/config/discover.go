package config

import (
	"fmt"
	"os"
	"path/filepath"
)

// Discover finds the config file by checking standard locations in order:
// $UNITD_CONFIG, ~/.config/unitd/config.yaml, /etc/unitd/config.yaml,
// ./unitd.yaml.
func Discover() (string, error) {
	var candidates []string
	if p := os.Getenv("UNITD_CONFIG"); p != "" {
		candidates = append(candidates, p)
	}
	if home, err := os.UserHomeDir(); err == nil {
		candidates = append(candidates, filepath.Join(home, ".config", "unitd", "config.yaml"))
	}
	candidates = append(candidates, "/etc/unitd/config.yaml", "./unitd.yaml")

	for _, c := range candidates {
		if _, err := os.Stat(c); err == nil {
			return c, nil
		}
	}
	return "", fmt.Errorf("no config found (checked: $UNITD_CONFIG, ~/.config/unitd, /etc/unitd, ./unitd.yaml)")
}
