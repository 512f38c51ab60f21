package util

import (
	"os"
	"path"
	"strings"

	"github.com/spf13/afero"
)

// NormalizePath turns any archive path into a clean forward-slash relative path.
// Cartridges authored on Windows ship hrefs like "a1\a1.html".
func NormalizePath(p string) string {
	p = strings.ReplaceAll(p, "\\", "/")
	p = strings.TrimPrefix(p, "./")
	if p == "" {
		return ""
	}
	cleaned := path.Clean(p)
	if cleaned == "." {
		return ""
	}
	return cleaned
}

// IsSafeRelative reports whether a normalized path stays inside its root
func IsSafeRelative(p string) bool {
	if p == "" || strings.HasPrefix(p, "/") {
		return false
	}
	if p == ".." || strings.HasPrefix(p, "../") {
		return false
	}
	// windows drive letters sneak past the slash checks
	if len(p) >= 2 && p[1] == ':' {
		return false
	}
	return true
}

// EnsureDirectoryExists creates directory if it doesn't exist
func EnsureDirectoryExists(fs afero.Fs, dir string) bool {
	if _, err := fs.Stat(dir); os.IsNotExist(err) {
		// try to create it
		if err := fs.MkdirAll(dir, 0o755); err != nil {
			return false
		}
	}
	return true
}

// Folder returns the directory part of a normalized path ("" for root files)
func Folder(p string) string {
	dir := path.Dir(p)
	if dir == "." {
		return ""
	}
	return dir
}
