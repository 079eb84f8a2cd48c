package config

import (
	"errors"
	"os"
	"path/filepath"
	"runtime"
)

// Name is the directory and base file name used for configuration.
const Name = "vcpsim"

// DefaultDir returns the platform configuration directory.
func DefaultDir() (string, error) {
	switch runtime.GOOS {
	case "windows":
		if appdata := os.Getenv("AppData"); appdata != "" {
			return filepath.Join(appdata, Name), nil
		}
		return "", errors.New("AppData not set")
	default:
		if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
			return filepath.Join(xdg, Name), nil
		}
		if home := os.Getenv("HOME"); home != "" {
			return filepath.Join(home, ".config", Name), nil
		}
		return "", errors.New("HOME not set")
	}
}

// Extension returns the file extension of a normalized format.
func Extension(format string) string {
	switch NormalizeFormat(format) {
	case "yaml":
		return ".yaml"
	case "toml":
		return ".toml"
	default:
		return ".json"
	}
}

// EnsureDir creates the parent directory of path.
func EnsureDir(path string) error {
	return os.MkdirAll(filepath.Dir(path), 0o755)
}

// CandidatePaths lists configuration files per format in priority order:
// userPath, then base in the working directory, the configuration
// directory and, on Unix, /etc.
func CandidatePaths(userPath string, bases ...string) (jsonPaths, yamlPaths, tomlPaths []string) {
	if userPath != "" {
		switch NormalizeFormat(filepath.Ext(userPath)) {
		case "yaml":
			yamlPaths = append(yamlPaths, userPath)
		case "toml":
			tomlPaths = append(tomlPaths, userPath)
		default:
			jsonPaths = append(jsonPaths, userPath)
		}
	}
	if len(bases) == 0 {
		bases = []string{Name}
	}

	var dirs []string
	if wd, err := os.Getwd(); err == nil {
		dirs = append(dirs, wd)
	}
	if dir, err := DefaultDir(); err == nil {
		dirs = append(dirs, dir)
	}
	if runtime.GOOS != "windows" {
		dirs = append(dirs, filepath.Join("/etc", Name))
	}

	for _, dir := range dirs {
		for _, base := range bases {
			jsonPaths = append(jsonPaths, filepath.Join(dir, base+".json"))
			yamlPaths = append(yamlPaths, filepath.Join(dir, base+".yaml"), filepath.Join(dir, base+".yml"))
			tomlPaths = append(tomlPaths, filepath.Join(dir, base+".toml"))
		}
	}
	return
}

// Find returns userPath if set, else the first existing file among the
// candidate paths for base, or "" when there is none.
func Find(userPath, base string) string {
	if userPath != "" {
		return userPath
	}
	j, y, t := CandidatePaths("", base)
	for _, paths := range [][]string{j, y, t} {
		for _, p := range paths {
			if fi, err := os.Stat(p); err == nil && !fi.IsDir() {
				return p
			}
		}
	}
	return ""
}
