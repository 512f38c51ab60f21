package archive

import (
	"fmt"
	"os"
	"path"
	"path/filepath"

	"github.com/NeroQue/cartridge-import-backend/pkg/util"
	"github.com/spf13/afero"
)

// Package is a handle to one extracted cartridge. Paths passed to its
// methods are relative to the manifest's directory.
type Package struct {
	fs           afero.Fs
	dir          string
	Root         string // manifest directory inside the zip, "" when at the top
	ManifestPath string // manifest path inside the zip
	files        []string
}

// Files lists every extracted file, forward-slash separated and sorted
func (p *Package) Files() []string {
	out := make([]string, len(p.files))
	copy(out, p.files)
	return out
}

// Dir is where the package was extracted on the loader's filesystem
func (p *Package) Dir() string {
	return p.dir
}

// ReadManifest returns the raw manifest bytes
func (p *Package) ReadManifest() ([]byte, error) {
	return p.ReadFile(path.Base(p.ManifestPath))
}

// ReadFile reads a file from the package
func (p *Package) ReadFile(rel string) ([]byte, error) {
	full, err := p.resolve(rel)
	if err != nil {
		return nil, err
	}
	return afero.ReadFile(p.fs, full)
}

// Open opens a file from the package for streaming
func (p *Package) Open(rel string) (afero.File, error) {
	full, err := p.resolve(rel)
	if err != nil {
		return nil, err
	}
	return p.fs.Open(full)
}

// Stat returns file info for a package file
func (p *Package) Stat(rel string) (os.FileInfo, error) {
	full, err := p.resolve(rel)
	if err != nil {
		return nil, err
	}
	return p.fs.Stat(full)
}

// Exists is true when rel names a regular file in the package
func (p *Package) Exists(rel string) bool {
	info, err := p.Stat(rel)
	return err == nil && !info.IsDir()
}

// Close removes the extracted files
func (p *Package) Close() error {
	if p.dir == "" {
		return nil
	}
	return p.fs.RemoveAll(p.dir)
}

func (p *Package) resolve(rel string) (string, error) {
	clean := util.NormalizePath(rel)
	if !util.IsSafeRelative(clean) {
		return "", fmt.Errorf("%w: %s", ErrUnsafePath, rel)
	}
	return filepath.Join(p.dir, filepath.FromSlash(path.Join(p.Root, clean))), nil
}
