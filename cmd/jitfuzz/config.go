package main

import (
	"fmt"
	"os"

	"github.com/jihwankim/jitfuzz/pkg/config"
)

// loadConfig loads jitfuzz.yaml (or --config), auto-generating a default
// file the first time a session runs.
func loadConfig() (*config.Config, error) {
	path := cfgFile
	if path == "" {
		path = "jitfuzz.yaml"
	}

	if _, err := os.Stat(path); os.IsNotExist(err) {
		fmt.Printf("config file not found, writing defaults to %s\n", path)
		if err := config.DefaultConfig().Save(path); err != nil {
			return nil, fmt.Errorf("write default config: %w", err)
		}
	}

	cfg, err := config.Load(path)
	if err != nil {
		return nil, fmt.Errorf("load config from %s: %w", path, err)
	}
	return cfg, nil
}
