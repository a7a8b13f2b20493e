package utils

import (
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
	"github.com/charmbracelet/log"
	"github.com/cockroachdb/errors"
)

// DirCheckResult is the outcome of CheckDirStatus.
type DirCheckResult struct {
	Exists   bool
	Writable bool
	Error    error
}

// FileExists reports whether path can be stat'ed.
func FileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// EnsureDir creates dir and its parents.
func EnsureDir(dir string) error {
	return errors.Wrapf(os.MkdirAll(dir, 0o755), "create %s", dir)
}

// SaveTOMLFile encodes v into path. The file is written next to its
// destination first and renamed, so a watcher never sees a partial file.
func SaveTOMLFile(v any, path string) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".ghostserve-*.toml")
	if err != nil {
		log.Errorf("Failed to create file: %v", err)
		return errors.Wrapf(err, "save %s", path)
	}
	defer os.Remove(tmp.Name())

	if err := toml.NewEncoder(tmp).Encode(v); err != nil {
		tmp.Close()
		return errors.Wrapf(err, "encode %s", path)
	}
	if err := tmp.Close(); err != nil {
		return errors.Wrapf(err, "save %s", path)
	}
	return errors.Wrapf(os.Rename(tmp.Name(), path), "save %s", path)
}

// GetAbsolutePath returns path made absolute, or "unknown" when empty.
func GetAbsolutePath(path string) string {
	if path == "" {
		return "unknown"
	}
	if !filepath.IsAbs(path) {
		if abs, err := filepath.Abs(path); err == nil {
			return abs
		}
	}
	return path
}

func testWriteAccess(dir string) bool {
	probe := filepath.Join(dir, ".write_test")
	f, err := os.Create(probe)
	if err != nil {
		log.Warnf("Cannot write to directory %s: %v", dir, err)
		return false
	}
	f.Close()
	os.Remove(probe)
	return true
}

// GetExecutableDir returns the directory of the running binary.
func GetExecutableDir() (string, error) {
	exe, err := os.Executable()
	if err != nil {
		return "", errors.Wrap(err, "locate executable")
	}
	if resolved, err := filepath.EvalSymlinks(exe); err == nil {
		exe = resolved
	}
	return filepath.Dir(exe), nil
}

// CheckDirStatus creates dir when missing and tests that it is writable.
func CheckDirStatus(dir string) DirCheckResult {
	result := DirCheckResult{}
	if _, err := os.Stat(dir); err == nil {
		result.Exists = true
		result.Writable = testWriteAccess(dir)
		return result
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		result.Error = err
		log.Warnf("Cannot create directory %s: %v", dir, err)
		return result
	}
	result.Exists = true
	result.Writable = testWriteAccess(dir)
	return result
}
