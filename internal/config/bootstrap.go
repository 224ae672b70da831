package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
)

const userConfigName = "config.yml"

// EnsureUserConfig returns dataDir/config.yml, seeding it from the shipped
// template on first run. An existing file is never touched.
func EnsureUserConfig(dataDir, templatePath string) (string, error) {
	userPath := filepath.Join(dataDir, userConfigName)
	if _, err := os.Stat(userPath); err == nil {
		return userPath, nil
	} else if !errors.Is(err, fs.ErrNotExist) {
		return "", err
	}

	tmpl, err := os.ReadFile(templatePath)
	if err != nil {
		return "", fmt.Errorf("read config template: %w", err)
	}
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return "", err
	}

	tmp, err := os.CreateTemp(dataDir, userConfigName+".*")
	if err != nil {
		return "", err
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(tmpl); err != nil {
		tmp.Close()
		return "", err
	}
	if err := tmp.Close(); err != nil {
		return "", err
	}
	if err := os.Rename(tmp.Name(), userPath); err != nil {
		return "", err
	}
	return userPath, nil
}

// Resolve joins p onto the data dir unless it is already absolute.
func (c Config) Resolve(p string) string {
	if p == "" || filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(c.App.DataDir, p)
}
