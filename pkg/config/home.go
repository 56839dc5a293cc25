package config

import (
	"os"
	"path/filepath"
	"sync"
)

const envHome = "BRYNDZA_HOME"

var (
	homeOnce sync.Once
	homeDir  string
)

// GetHome returns the bryndza home directory.
//
// Resolution order:
//  1. $BRYNDZA_HOME environment variable
//  2. Parent of the binary's directory (if binary is in <home>/bin/)
//  3. Current working directory (development fallback)
func GetHome() string {
	homeOnce.Do(func() {
		homeDir = resolveHome()
	})
	return homeDir
}

// GetCacheDir returns <home>/cache.
func GetCacheDir() string {
	return filepath.Join(GetHome(), "cache")
}

// GetScriptsDir returns <home>/cache/scripts, where native bridges write
// the tree-dump scripts they hand to powershell and osascript.
func GetScriptsDir() string {
	return filepath.Join(GetCacheDir(), "scripts")
}

// WriteScript writes a bridge script under GetScriptsDir and returns its path.
// An unchanged script is not rewritten.
func WriteScript(name, content string) (string, error) {
	dir := GetScriptsDir()
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	path := filepath.Join(dir, name)
	if existing, err := os.ReadFile(path); err == nil && string(existing) == content { //#nosec G304 -- path under our cache dir
		return path, nil
	}
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		return "", err
	}
	return path, nil
}

func resolveHome() string {
	// 1. Environment variable
	if env := os.Getenv(envHome); env != "" {
		return env
	}

	// 2. Binary-relative: if binary is at <home>/bin/bryndza, use <home>
	if execPath, err := os.Executable(); err == nil {
		if resolved, err := filepath.EvalSymlinks(execPath); err == nil {
			execPath = resolved
		}
		binDir := filepath.Dir(execPath)
		if filepath.Base(binDir) == "bin" {
			return filepath.Dir(binDir)
		}
	}

	// 3. Current working directory
	if cwd, err := os.Getwd(); err == nil {
		return cwd
	}

	return "."
}

// ResetHome resets the cached home directory (for testing).
func ResetHome() {
	homeOnce = sync.Once{}
	homeDir = ""
}
