package archive

import (
	"archive/zip"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"github.com/NeroQue/cartridge-import-backend/internal/logger"
	"github.com/NeroQue/cartridge-import-backend/pkg/util"
	"github.com/google/uuid"
	"github.com/spf13/afero"
)

// ManifestName is the file every cartridge carries at its root
const ManifestName = "imsmanifest.xml"

var (
	ErrInvalidArchive   = errors.New("invalid cartridge archive")
	ErrManifestNotFound = errors.New("imsmanifest.xml not found in archive")
	ErrUnsafePath       = errors.New("archive entry escapes the extraction directory")
)

// Loader extracts cartridge zips into a working directory
type Loader struct {
	Fs      afero.Fs // OsFs in production, MemMapFs in tests
	WorkDir string   // every extraction gets its own subdirectory here
	Log     *logger.Logger
}

// NewLoader creates loader on top of the given filesystem
func NewLoader(fs afero.Fs, workDir string, log *logger.Logger) *Loader {
	if log == nil {
		log = logger.Nop()
	}
	return &Loader{Fs: fs, WorkDir: workDir, Log: log}
}

// Extract unpacks the zip at archivePath and locates its manifest.
// The caller owns the returned package and must Close it.
func (l *Loader) Extract(ctx context.Context, archivePath string) (*Package, error) {
	f, err := l.Fs.Open(archivePath)
	if err != nil {
		return nil, fmt.Errorf("opening archive %s: %w", archivePath, err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("reading archive info: %w", err)
	}

	zr, err := zip.NewReader(f, info.Size())
	if errors.Is(err, zip.ErrInsecurePath) && zr != nil {
		// entry names get checked one by one below, after backslash normalization
		err = nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidArchive, err)
	}

	if !util.EnsureDirectoryExists(l.Fs, l.WorkDir) {
		return nil, fmt.Errorf("cannot create work directory %s", l.WorkDir)
	}
	dest := filepath.Join(l.WorkDir, uuid.NewString())
	if err := l.Fs.MkdirAll(dest, 0o755); err != nil {
		return nil, fmt.Errorf("creating extraction directory: %w", err)
	}

	pkg := &Package{fs: l.Fs, dir: dest}
	var names []string
	for _, zf := range zr.File {
		if err := ctx.Err(); err != nil {
			pkg.Close()
			return nil, err
		}

		name := util.NormalizePath(zf.Name)
		if name == "" {
			continue
		}
		if !util.IsSafeRelative(name) {
			pkg.Close()
			return nil, fmt.Errorf("%w: %s", ErrUnsafePath, zf.Name)
		}

		target := filepath.Join(dest, filepath.FromSlash(name))
		if zf.FileInfo().IsDir() || strings.HasSuffix(zf.Name, "/") {
			if err := l.Fs.MkdirAll(target, 0o755); err != nil {
				pkg.Close()
				return nil, fmt.Errorf("creating directory %s: %w", name, err)
			}
			continue
		}

		if err := l.extractFile(zf, target); err != nil {
			pkg.Close()
			return nil, err
		}
		names = append(names, name)
	}

	manifest, ok := findManifest(names)
	if !ok {
		pkg.Close()
		return nil, ErrManifestNotFound
	}
	pkg.Root = util.Folder(manifest)
	pkg.ManifestPath = manifest

	// everything else is addressed relative to the manifest's directory
	for _, n := range names {
		if rel, ok := relativeTo(pkg.Root, n); ok {
			pkg.files = append(pkg.files, rel)
		}
	}
	sort.Strings(pkg.files)

	l.Log.Debug("extracted cartridge", "archive", archivePath, "dir", dest, "files", len(pkg.files), "root", pkg.Root)
	return pkg, nil
}

func (l *Loader) extractFile(zf *zip.File, target string) error {
	if err := l.Fs.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return fmt.Errorf("creating directory for %s: %w", zf.Name, err)
	}

	src, err := zf.Open()
	if err != nil {
		return fmt.Errorf("%w: %s: %v", ErrInvalidArchive, zf.Name, err)
	}
	defer src.Close()

	dst, err := l.Fs.OpenFile(target, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return fmt.Errorf("creating %s: %w", target, err)
	}
	defer dst.Close()

	if _, err := io.Copy(dst, src); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrInvalidArchive, zf.Name, err)
	}
	return nil
}

// findManifest prefers the root manifest, then the shallowest nested one
func findManifest(names []string) (string, bool) {
	best := ""
	bestDepth := -1
	for _, n := range names {
		if !strings.EqualFold(path.Base(n), ManifestName) {
			continue
		}
		depth := strings.Count(n, "/")
		if bestDepth == -1 || depth < bestDepth || (depth == bestDepth && n < best) {
			best = n
			bestDepth = depth
		}
	}
	return best, bestDepth >= 0
}

func relativeTo(root, name string) (string, bool) {
	if root == "" {
		return name, true
	}
	if !strings.HasPrefix(name, root+"/") {
		return "", false
	}
	return strings.TrimPrefix(name, root+"/"), true
}
