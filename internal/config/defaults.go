package config

import (
	"os"
	"path/filepath"
	"runtime"
)

const appName = "truthsig"

// PlatformDataDir returns the platform-specific data directory.
//
// Platform paths:
//   - macOS:   ~/Library/Application Support/truthsig/
//   - Linux:   ~/.local/share/truthsig/
//   - Windows: %APPDATA%\truthsig\
//
// Falls back to ~/.truthsig if platform detection fails.
func PlatformDataDir() string {
	switch runtime.GOOS {
	case "darwin":
		return macOSDataDir()
	case "linux":
		return xdgDir("XDG_DATA_HOME", ".local", "share")
	case "windows":
		return windowsDir("APPDATA", "Roaming")
	default:
		return fallbackDataDir()
	}
}

// PlatformCacheDir returns the platform-specific cache directory. Artifacts
// such as heatmaps and extracted frames live here.
//
// Platform paths:
//   - macOS:   ~/Library/Caches/truthsig/
//   - Linux:   ~/.cache/truthsig/
//   - Windows: %LOCALAPPDATA%\truthsig\cache\
func PlatformCacheDir() string {
	switch runtime.GOOS {
	case "darwin":
		return filepath.Join(homeDir(), "Library", "Caches", appName)
	case "linux":
		return xdgDir("XDG_CACHE_HOME", ".cache")
	case "windows":
		return filepath.Join(windowsDir("LOCALAPPDATA", "Local"), "cache")
	default:
		return filepath.Join(fallbackDataDir(), "cache")
	}
}

// PlatformConfigDir returns the platform-specific config directory.
func PlatformConfigDir() string {
	switch runtime.GOOS {
	case "darwin":
		return macOSDataDir()
	case "linux":
		return xdgDir("XDG_CONFIG_HOME", ".config")
	case "windows":
		return windowsDir("APPDATA", "Roaming")
	default:
		return fallbackDataDir()
	}
}

// PlatformLogDir returns the platform-specific log directory.
func PlatformLogDir() string {
	switch runtime.GOOS {
	case "darwin":
		return filepath.Join(homeDir(), "Library", "Logs", appName)
	case "linux":
		return filepath.Join(PlatformDataDir(), "logs")
	case "windows":
		return filepath.Join(windowsDir("LOCALAPPDATA", "Local"), "logs")
	default:
		return filepath.Join(fallbackDataDir(), "logs")
	}
}

func homeDir() string {
	home := os.Getenv("HOME")
	if home == "" {
		home, _ = os.UserHomeDir()
	}
	return home
}

func macOSDataDir() string {
	return filepath.Join(homeDir(), "Library", "Application Support", appName)
}

// xdgDir follows the XDG Base Directory Specification.
func xdgDir(env string, fallback ...string) string {
	if base := os.Getenv(env); base != "" {
		return filepath.Join(base, appName)
	}
	parts := append([]string{homeDir()}, fallback...)
	return filepath.Join(append(parts, appName)...)
}

func windowsDir(env, fallback string) string {
	if base := os.Getenv(env); base != "" {
		return filepath.Join(base, appName)
	}
	return filepath.Join(homeDir(), "AppData", fallback, appName)
}

func fallbackDataDir() string {
	return filepath.Join(homeDir(), "."+appName)
}

// SupportedConfigFormats returns the list of supported config file formats.
func SupportedConfigFormats() []string {
	return []string{
		"toml",
		"json",
		"yaml",
		"yml",
	}
}

// FindConfigFile searches the current directory, then the config directory,
// for config.<format>. It returns "" when none is found.
func FindConfigFile() string {
	for _, dir := range []string{".", PlatformConfigDir()} {
		for _, ext := range SupportedConfigFormats() {
			path := filepath.Join(dir, "config."+ext)
			if _, err := os.Stat(path); err == nil {
				return path
			}
		}
	}
	return ""
}
