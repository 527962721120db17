// Package archive extracts skin package zip archives into a destination
// directory.
//
// The central directory is read in full before anything is written, so a
// corrupt archive fails before producing partial output. Entry paths are
// confined to the destination directory; entries that would escape it
// (".." segments or absolute paths) fail the whole extraction.
package archive

import (
	"archive/zip"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// ErrInsecurePath indicates an archive entry whose path would resolve
// outside the destination directory.
var ErrInsecurePath = errors.New("archive entry escapes destination")

// Extract unpacks the zip archive at archivePath into destDir, creating
// destDir if needed. Directory entries are created recursively; file
// entries get their parent directories created on demand and overwrite
// any existing file at the same path.
//
// On any entry failure the destination directory is rolled back if this
// call created it, so a half-extracted package never looks installed.
// The archive itself is never deleted here.
func Extract(archivePath, destDir string) (err error) {
	r, err := zip.OpenReader(archivePath)
	if err != nil {
		// The stdlib flags non-local entry names itself but still hands
		// back a usable reader; secureJoin below produces the rejection.
		if !errors.Is(err, zip.ErrInsecurePath) {
			return fmt.Errorf("opening archive %s: %w", archivePath, err)
		}
	}
	defer r.Close()

	// Validate every entry path before writing anything.
	for _, f := range r.File {
		if _, err := secureJoin(destDir, f.Name); err != nil {
			return err
		}
	}

	createdDest := false
	if _, statErr := os.Stat(destDir); os.IsNotExist(statErr) {
		createdDest = true
	}
	if err := os.MkdirAll(destDir, 0755); err != nil {
		return fmt.Errorf("creating destination %s: %w", destDir, err)
	}
	defer func() {
		if err != nil && createdDest {
			os.RemoveAll(destDir)
		}
	}()

	for _, f := range r.File {
		if err := writeEntry(f, destDir); err != nil {
			return err
		}
	}
	return nil
}

// writeEntry materializes a single archive entry under destDir.
func writeEntry(f *zip.File, destDir string) error {
	target, err := secureJoin(destDir, f.Name)
	if err != nil {
		return err
	}

	if f.FileInfo().IsDir() {
		if err := os.MkdirAll(target, 0755); err != nil {
			return fmt.Errorf("creating directory %s: %w", target, err)
		}
		return nil
	}

	// Parents may not be listed as their own entries.
	if err := os.MkdirAll(filepath.Dir(target), 0755); err != nil {
		return fmt.Errorf("creating parent of %s: %w", target, err)
	}

	rc, err := f.Open()
	if err != nil {
		return fmt.Errorf("opening entry %s: %w", f.Name, err)
	}
	defer rc.Close()

	out, err := os.OpenFile(target, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0644)
	if err != nil {
		return fmt.Errorf("creating file %s: %w", target, err)
	}
	if _, err := io.Copy(out, rc); err != nil {
		out.Close()
		return fmt.Errorf("extracting entry %s: %w", f.Name, err)
	}
	if err := out.Close(); err != nil {
		return fmt.Errorf("closing file %s: %w", target, err)
	}
	return nil
}

// secureJoin joins an archive entry name onto destDir, rejecting names
// that resolve outside it.
func secureJoin(destDir, name string) (string, error) {
	if filepath.IsAbs(name) || strings.HasPrefix(name, "/") {
		return "", fmt.Errorf("%w: %q", ErrInsecurePath, name)
	}
	target := filepath.Join(destDir, filepath.FromSlash(name))
	rel, err := filepath.Rel(destDir, target)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(os.PathSeparator)) {
		return "", fmt.Errorf("%w: %q", ErrInsecurePath, name)
	}
	return target, nil
}
